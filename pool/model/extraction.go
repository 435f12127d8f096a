package model

import "time"

// SourceStats records one source's contribution to an extraction run.
// A failed source carries Success=false and Error; it never aborts the
// run.
type SourceStats struct {
	Source   string        `json:"source"`
	Success  bool          `json:"success"`
	Found    int           `json:"found"`    // endpoints emitted by the source
	Attempts int           `json:"attempts"` // extractor calls including retries
	Duration time.Duration `json:"duration"`
	Error    string        `json:"error,omitempty"`
}

// ExtractionStats is the combined record of one coordinated extraction
// run across all requested sources.
type ExtractionStats struct {
	StartedAt  time.Time      `json:"started_at"`
	Duration   time.Duration  `json:"duration"`
	Sources    []*SourceStats `json:"sources"`
	TotalFound int            `json:"total_found"` // before deduplication
	Unique     int            `json:"unique"`      // after dedup by host:port
	Persisted  int            `json:"persisted"`
}

// Succeeded returns how many sources completed without error.
func (s *ExtractionStats) Succeeded() int {
	n := 0
	for _, src := range s.Sources {
		if src.Success {
			n++
		}
	}
	return n
}
