package validate

import (
	"context"
	"testing"
	"time"

	"proxynexus/internal/shared/types"
	"proxynexus/pool/model"
)

// stubProber returns canned results, optionally panicking in chosen
// probes or for chosen endpoints.
type stubProber struct {
	connectivity *model.ConnectivityResult
	speed        *model.SpeedResult
	geo          *model.GeoResult
	anonymity    *model.AnonymityResult

	panicInSpeed bool
	panicHosts   map[string]bool
}

func (s *stubProber) Connectivity(ctx context.Context, e *model.Endpoint) *model.ConnectivityResult {
	if s.panicHosts[e.Host] {
		panic("probe blew up")
	}
	return s.connectivity
}

func (s *stubProber) Speed(ctx context.Context, e *model.Endpoint) *model.SpeedResult {
	if s.panicInSpeed || s.panicHosts[e.Host] {
		panic("speed probe blew up")
	}
	return s.speed
}

func (s *stubProber) Geolocation(ctx context.Context, e *model.Endpoint) *model.GeoResult {
	if s.panicHosts[e.Host] {
		panic("probe blew up")
	}
	return s.geo
}

func (s *stubProber) Anonymity(ctx context.Context, e *model.Endpoint) *model.AnonymityResult {
	if s.panicHosts[e.Host] {
		panic("probe blew up")
	}
	return s.anonymity
}

func healthyStub() *stubProber {
	return &stubProber{
		connectivity: &model.ConnectivityResult{Success: true, RTT: 150 * time.Millisecond},
		speed:        &model.SpeedResult{Success: true, Stability: 1.0, ThroughputKBps: 600},
		geo:          &model.GeoResult{Success: true},
		anonymity:    &model.AnonymityResult{Success: true, Level: model.AnonymityElite},
	}
}

func testEndpoint(host string) *model.Endpoint {
	return &model.Endpoint{Host: host, Port: 8080, Protocol: model.ProtocolHTTP, Source: "test"}
}

func TestValidateOneScoresHealthyEndpoint(t *testing.T) {
	p := NewPipeline(types.ValidateConf{}, types.ScoringConf{}, healthyStub())
	outcome := p.ValidateOne(context.Background(), testEndpoint("10.0.0.1"))

	if outcome.Score < 99 {
		t.Fatalf("score = %.2f, want ~100", outcome.Score)
	}
	if !outcome.Acceptable {
		t.Fatal("healthy endpoint must be acceptable")
	}
	if outcome.MeasuredAt.IsZero() {
		t.Fatal("outcome must carry a measurement time")
	}
	if outcome.Connectivity == nil || outcome.Speed == nil || outcome.Geo == nil || outcome.Anonymity == nil {
		t.Fatal("all four signals must be present")
	}
}

func TestValidateOneProbePanicIsolated(t *testing.T) {
	stub := healthyStub()
	stub.panicInSpeed = true
	p := NewPipeline(types.ValidateConf{}, types.ScoringConf{}, stub)

	outcome := p.ValidateOne(context.Background(), testEndpoint("10.0.0.1"))

	if outcome.Speed == nil || outcome.Speed.Success {
		t.Fatal("panicking speed probe must yield a failed speed result")
	}
	if outcome.Speed.Error == "" {
		t.Fatal("failed speed result must carry the panic message")
	}
	// The other three signals completed and still count.
	if outcome.Connectivity == nil || !outcome.Connectivity.Success {
		t.Fatal("connectivity must survive a speed probe panic")
	}
	if outcome.Score <= 0 {
		t.Fatal("surviving signals must still contribute to the score")
	}
}

func TestValidateBatchIndexAligned(t *testing.T) {
	p := NewPipeline(types.ValidateConf{}, types.ScoringConf{}, healthyStub())
	endpoints := []*model.Endpoint{
		testEndpoint("10.0.0.1"),
		testEndpoint("10.0.0.2"),
		testEndpoint("10.0.0.3"),
	}

	outcomes := p.ValidateBatch(context.Background(), endpoints, 2)
	if len(outcomes) != len(endpoints) {
		t.Fatalf("outcomes = %d, want one per input", len(outcomes))
	}
	for i, o := range outcomes {
		if o == nil {
			t.Fatalf("outcome %d is nil", i)
		}
		if o.Endpoint.Host != endpoints[i].Host {
			t.Fatalf("outcome %d is for %s, want %s", i, o.Endpoint.Host, endpoints[i].Host)
		}
	}
}

func TestValidateBatchOnePanicDoesNotAbort(t *testing.T) {
	stub := healthyStub()
	stub.panicHosts = map[string]bool{"10.0.0.3": true}
	p := NewPipeline(types.ValidateConf{}, types.ScoringConf{}, stub)

	endpoints := []*model.Endpoint{
		testEndpoint("10.0.0.1"),
		testEndpoint("10.0.0.2"),
		testEndpoint("10.0.0.3"),
		testEndpoint("10.0.0.4"),
		testEndpoint("10.0.0.5"),
	}
	outcomes := p.ValidateBatch(context.Background(), endpoints, 5)

	if len(outcomes) != 5 {
		t.Fatalf("outcomes = %d, want 5", len(outcomes))
	}
	for i, o := range outcomes {
		if o == nil {
			t.Fatalf("outcome %d is nil", i)
		}
		if o.Endpoint.Host == "10.0.0.3" {
			if o.Acceptable || o.Score != 0 {
				t.Fatalf("panicking endpoint scored %.2f acceptable=%v, want 0/false", o.Score, o.Acceptable)
			}
			continue
		}
		if !o.Acceptable {
			t.Fatalf("healthy endpoint %s not acceptable", o.Endpoint.Host)
		}
	}
}

func TestValidateBatchEmptyInput(t *testing.T) {
	p := NewPipeline(types.ValidateConf{}, types.ScoringConf{}, healthyStub())
	if outcomes := p.ValidateBatch(context.Background(), nil, 4); outcomes != nil {
		t.Fatalf("empty batch returned %d outcomes, want nil", len(outcomes))
	}
}
