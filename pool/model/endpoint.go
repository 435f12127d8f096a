package model

import (
	"fmt"
	"time"
)

// Supported endpoint protocols.
const (
	ProtocolHTTP   = "http"
	ProtocolHTTPS  = "https"
	ProtocolSOCKS4 = "socks4"
	ProtocolSOCKS5 = "socks5"
)

// Endpoint is an unvalidated proxy candidate emitted by an extractor.
// It is immutable once emitted; validation produces outcomes, never edits.
type Endpoint struct {
	Host            string `json:"host"`
	Port            int    `json:"port"`
	Protocol        string `json:"protocol"`
	DeclaredCountry string `json:"declared_country,omitempty"` // as claimed by the source
	Source          string `json:"source"`
}

// ID returns the host:port identity used for deduplication and storage.
// Two candidates with the same host:port are the same endpoint regardless
// of which source produced them.
func (e *Endpoint) ID() string {
	return fmt.Sprintf("%s:%d", e.Host, e.Port)
}

// Address returns the dialable host:port form.
func (e *Endpoint) Address() string {
	return fmt.Sprintf("%s:%d", e.Host, e.Port)
}

// EndpointRecord is the persisted aggregate of an endpoint across
// validation runs: the durable row behind the in-memory pool view.
type EndpointRecord struct {
	ID              string        `json:"id"` // "host:port"
	Host            string        `json:"host"`
	Port            int           `json:"port"`
	Protocol        string        `json:"protocol"`
	DeclaredCountry string        `json:"declared_country,omitempty"`
	Source          string        `json:"source"`
	Score           float64       `json:"score"`
	Acceptable      bool          `json:"acceptable"`
	Latency         time.Duration `json:"latency"` // 0 means failed or untested
	Anonymity       string        `json:"anonymity"`
	SuccessCount    int           `json:"success_count"` // consecutive successes
	FailureCount    int           `json:"failure_count"` // consecutive failures
	FirstSeen       time.Time     `json:"first_seen"`
	LastChecked     time.Time     `json:"last_checked"`
	LastError       string        `json:"last_error,omitempty"`
}

// Candidate returns the Endpoint view of a stored record, used when
// feeding stored rows back into the validation pipeline.
func (r *EndpointRecord) Candidate() *Endpoint {
	return &Endpoint{
		Host:            r.Host,
		Port:            r.Port,
		Protocol:        r.Protocol,
		DeclaredCountry: r.DeclaredCountry,
		Source:          r.Source,
	}
}
