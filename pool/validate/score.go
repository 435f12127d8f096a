package validate

import (
	"time"

	"proxynexus/internal/shared/types"
	"proxynexus/pool/model"
)

// Response-time and throughput anchor points for signal normalization.
const (
	bestRTT        = 200 * time.Millisecond // at or below scores 1.0
	worstRTT       = 5 * time.Second        // at or above scores 0.0
	fullThroughput = 500.0                  // KB/s worth a 1.0 speed signal
)

// Scorer reduces the four probe signals to one composite score in
// [0,100]. It is a pure function of the probe results and owns no state.
type Scorer struct {
	cfg types.ScoringConf
}

// NewScorer builds a scorer from config. Weights need not sum to 1; the
// score is normalized by the weight sum. All-zero weights fall back to
// the documented defaults.
func NewScorer(cfg types.ScoringConf) *Scorer {
	total := cfg.ConnectivityWeight + cfg.ResponseTimeWeight + cfg.AnonymityWeight +
		cfg.StabilityWeight + cfg.GeolocationWeight + cfg.SpeedWeight
	if total <= 0 {
		cfg.ConnectivityWeight = 0.25
		cfg.ResponseTimeWeight = 0.20
		cfg.AnonymityWeight = 0.20
		cfg.StabilityWeight = 0.15
		cfg.GeolocationWeight = 0.10
		cfg.SpeedWeight = 0.10
	}
	if cfg.AcceptThreshold <= 0 {
		cfg.AcceptThreshold = 60
	}
	return &Scorer{cfg: cfg}
}

// Threshold returns the acceptance threshold.
func (s *Scorer) Threshold() float64 {
	return s.cfg.AcceptThreshold
}

// Score computes the weighted composite for one outcome. A missing or
// failed signal contributes zero; it never raises.
func (s *Scorer) Score(o *model.ValidationOutcome) float64 {
	weightSum := s.cfg.ConnectivityWeight + s.cfg.ResponseTimeWeight + s.cfg.AnonymityWeight +
		s.cfg.StabilityWeight + s.cfg.GeolocationWeight + s.cfg.SpeedWeight
	if weightSum <= 0 {
		return 0
	}

	var sum float64
	sum += s.cfg.ConnectivityWeight * connectivitySignal(o.Connectivity)
	sum += s.cfg.ResponseTimeWeight * responseTimeSignal(o.Connectivity)
	sum += s.cfg.AnonymityWeight * anonymitySignal(o.Anonymity)
	sum += s.cfg.StabilityWeight * stabilitySignal(o.Speed)
	sum += s.cfg.GeolocationWeight * geolocationSignal(o.Geo)
	sum += s.cfg.SpeedWeight * speedSignal(o.Speed)

	score := sum / weightSum * 100
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}
	return score
}

// Acceptable reports whether a score clears the threshold.
func (s *Scorer) Acceptable(score float64) bool {
	return score >= s.cfg.AcceptThreshold
}

func connectivitySignal(r *model.ConnectivityResult) float64 {
	if r == nil || !r.Success {
		return 0
	}
	return 1
}

func responseTimeSignal(r *model.ConnectivityResult) float64 {
	if r == nil || !r.Success || r.RTT <= 0 {
		return 0
	}
	if r.RTT <= bestRTT {
		return 1
	}
	if r.RTT >= worstRTT {
		return 0
	}
	return 1 - float64(r.RTT-bestRTT)/float64(worstRTT-bestRTT)
}

func anonymitySignal(r *model.AnonymityResult) float64 {
	if r == nil || !r.Success {
		return 0
	}
	switch r.Level {
	case model.AnonymityElite:
		return 1
	case model.AnonymityAnonymous:
		return 0.7
	case model.AnonymityTransparent:
		return 0.2
	default:
		return 0
	}
}

func stabilitySignal(r *model.SpeedResult) float64 {
	if r == nil || !r.Success {
		return 0
	}
	return r.Stability
}

func geolocationSignal(r *model.GeoResult) float64 {
	if r == nil || !r.Success {
		return 0
	}
	if r.Mismatch {
		return 0.3
	}
	return 1
}

func speedSignal(r *model.SpeedResult) float64 {
	if r == nil || !r.Success {
		return 0
	}
	v := r.ThroughputKBps / fullThroughput
	if v > 1 {
		v = 1
	}
	if v < 0 {
		v = 0
	}
	return v
}
