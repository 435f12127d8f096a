package model

import "time"

// Anonymity levels, strongest first. Elite endpoints leak neither the
// caller's address nor any forwarding header; transparent ones expose the
// real origin.
const (
	AnonymityElite       = "elite"
	AnonymityAnonymous   = "anonymous"
	AnonymityTransparent = "transparent"
	AnonymityUnknown     = "unknown"
)

// ConnectivityResult is the outcome of the round-trip probe.
type ConnectivityResult struct {
	Success    bool          `json:"success"`
	StatusCode int           `json:"status_code,omitempty"`
	RTT        time.Duration `json:"rtt"`
	Error      string        `json:"error,omitempty"`
}

// SpeedResult is the outcome of the latency/throughput probe.
type SpeedResult struct {
	Success        bool          `json:"success"`
	AvgLatency     time.Duration `json:"avg_latency"`
	ThroughputKBps float64       `json:"throughput_kbps"`
	Stability      float64       `json:"stability"` // majority-success ratio in [0,1]
	Error          string        `json:"error,omitempty"`
}

// GeoResult is the outcome of the geolocation consistency probe.
type GeoResult struct {
	Success         bool   `json:"success"`
	RealCountry     string `json:"real_country,omitempty"`
	ApparentCountry string `json:"apparent_country,omitempty"`
	Mismatch        bool   `json:"mismatch"`
	Error           string `json:"error,omitempty"`
}

// AnonymityResult is the outcome of the origin/header leakage probe.
type AnonymityResult struct {
	Success       bool     `json:"success"`
	Level         string   `json:"level"`
	LeakedHeaders []string `json:"leaked_headers,omitempty"`
	Error         string   `json:"error,omitempty"`
}

// ValidationOutcome is the immutable record of one validation run of one
// endpoint. A later re-validation produces a new outcome, never an edit.
type ValidationOutcome struct {
	Endpoint     *Endpoint           `json:"endpoint"`
	Connectivity *ConnectivityResult `json:"connectivity"`
	Speed        *SpeedResult        `json:"speed"`
	Geo          *GeoResult          `json:"geo"`
	Anonymity    *AnonymityResult    `json:"anonymity"`
	Score        float64             `json:"score"` // composite in [0,100]
	Acceptable   bool                `json:"acceptable"`
	MeasuredAt   time.Time           `json:"measured_at"`
	Duration     time.Duration       `json:"duration"`
	Error        string              `json:"error,omitempty"`
}

// Failed builds a zero-score outcome for an endpoint whose validation
// could not run at all. Batch operations return one outcome per input, so
// callers can tell "not run" from "ran and failed".
func Failed(e *Endpoint, at time.Time, err string) *ValidationOutcome {
	return &ValidationOutcome{
		Endpoint:     e,
		Connectivity: &ConnectivityResult{Error: err},
		Speed:        &SpeedResult{Error: err},
		Geo:          &GeoResult{Error: err},
		Anonymity:    &AnonymityResult{Level: AnonymityUnknown, Error: err},
		Score:        0,
		Acceptable:   false,
		MeasuredAt:   at,
		Error:        err,
	}
}
