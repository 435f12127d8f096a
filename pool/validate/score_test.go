package validate

import (
	"math"
	"testing"
	"time"

	"proxynexus/internal/shared/types"
	"proxynexus/pool/model"
)

func perfectOutcome() *model.ValidationOutcome {
	return &model.ValidationOutcome{
		Connectivity: &model.ConnectivityResult{Success: true, RTT: 100 * time.Millisecond},
		Speed:        &model.SpeedResult{Success: true, Stability: 1.0, ThroughputKBps: 900},
		Geo:          &model.GeoResult{Success: true, Mismatch: false},
		Anonymity:    &model.AnonymityResult{Success: true, Level: model.AnonymityElite},
	}
}

func TestScorePerfectEndpoint(t *testing.T) {
	s := NewScorer(types.ScoringConf{})
	score := s.Score(perfectOutcome())
	if math.Abs(score-100) > 0.001 {
		t.Fatalf("perfect outcome score = %.2f, want 100", score)
	}
	if !s.Acceptable(score) {
		t.Fatal("perfect score must be acceptable")
	}
}

func TestScoreAllSignalsFailed(t *testing.T) {
	s := NewScorer(types.ScoringConf{})
	score := s.Score(&model.ValidationOutcome{
		Connectivity: &model.ConnectivityResult{Error: "timeout"},
		Speed:        &model.SpeedResult{Error: "timeout"},
		Geo:          &model.GeoResult{Error: "timeout"},
		Anonymity:    &model.AnonymityResult{Level: model.AnonymityUnknown, Error: "timeout"},
	})
	if score != 0 {
		t.Fatalf("all-failed score = %.2f, want 0", score)
	}
	if s.Acceptable(score) {
		t.Fatal("zero score must not be acceptable")
	}
}

func TestScoreNilSignalsContributeZero(t *testing.T) {
	s := NewScorer(types.ScoringConf{})
	// Only connectivity present, everything else nil. With default
	// weights connectivity is 0.25 and response time 0.20 of the total.
	score := s.Score(&model.ValidationOutcome{
		Connectivity: &model.ConnectivityResult{Success: true, RTT: 100 * time.Millisecond},
	})
	if math.Abs(score-45) > 0.001 {
		t.Fatalf("connectivity-only score = %.2f, want 45", score)
	}
}

func TestScoreNormalizedByWeightSum(t *testing.T) {
	// Weights deliberately not summing to 1; only connectivity counts.
	s := NewScorer(types.ScoringConf{ConnectivityWeight: 5})
	score := s.Score(&model.ValidationOutcome{
		Connectivity: &model.ConnectivityResult{Success: true, RTT: time.Millisecond},
	})
	if math.Abs(score-100) > 0.001 {
		t.Fatalf("single-weight score = %.2f, want 100 after normalization", score)
	}
}

func TestResponseTimeSignalAnchors(t *testing.T) {
	cases := []struct {
		rtt  time.Duration
		want float64
	}{
		{100 * time.Millisecond, 1.0}, // below bestRTT
		{200 * time.Millisecond, 1.0}, // at bestRTT
		{5 * time.Second, 0.0},        // at worstRTT
		{10 * time.Second, 0.0},       // beyond worstRTT
		{2600 * time.Millisecond, 0.5},
	}
	for _, c := range cases {
		got := responseTimeSignal(&model.ConnectivityResult{Success: true, RTT: c.rtt})
		if math.Abs(got-c.want) > 0.001 {
			t.Errorf("responseTimeSignal(%v) = %.3f, want %.3f", c.rtt, got, c.want)
		}
	}
}

func TestAnonymitySignalLevels(t *testing.T) {
	cases := map[string]float64{
		model.AnonymityElite:       1.0,
		model.AnonymityAnonymous:   0.7,
		model.AnonymityTransparent: 0.2,
		model.AnonymityUnknown:     0.0,
	}
	for level, want := range cases {
		got := anonymitySignal(&model.AnonymityResult{Success: true, Level: level})
		if math.Abs(got-want) > 0.001 {
			t.Errorf("anonymitySignal(%s) = %.2f, want %.2f", level, got, want)
		}
	}
}

func TestGeolocationSignalMismatch(t *testing.T) {
	if got := geolocationSignal(&model.GeoResult{Success: true, Mismatch: true}); math.Abs(got-0.3) > 0.001 {
		t.Fatalf("mismatch signal = %.2f, want 0.3", got)
	}
	if got := geolocationSignal(&model.GeoResult{Success: true}); got != 1 {
		t.Fatalf("match signal = %.2f, want 1", got)
	}
}

func TestSpeedSignalClamped(t *testing.T) {
	if got := speedSignal(&model.SpeedResult{Success: true, ThroughputKBps: 250}); math.Abs(got-0.5) > 0.001 {
		t.Fatalf("250 KB/s signal = %.2f, want 0.5", got)
	}
	if got := speedSignal(&model.SpeedResult{Success: true, ThroughputKBps: 2000}); got != 1 {
		t.Fatalf("2000 KB/s signal = %.2f, want 1 (clamped)", got)
	}
}

func TestThresholdConfigurable(t *testing.T) {
	s := NewScorer(types.ScoringConf{AcceptThreshold: 80})
	if s.Acceptable(79.9) {
		t.Fatal("79.9 must fail an 80 threshold")
	}
	if !s.Acceptable(80) {
		t.Fatal("80 must pass an 80 threshold")
	}
}
