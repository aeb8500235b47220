package health

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

// scriptedProbe fails a fixed number of times before passing. failures < 0
// means it never passes.
type scriptedProbe struct {
	name     string
	failures int32
	calls    atomic.Int32
}

func (p *scriptedProbe) Name() string { return p.name }

func (p *scriptedProbe) Check(ctx context.Context) error {
	n := p.calls.Add(1)
	if p.failures < 0 || n <= p.failures {
		return errors.New("not ready")
	}
	return nil
}

func fastConfig(p Probe, budget int) ProbeConfig {
	return ProbeConfig{
		Probe:    p,
		Interval: time.Millisecond,
		Timeout:  100 * time.Millisecond,
		Budget:   budget,
	}
}

func probeByName(t *testing.T, res *GateResult, name string) ProbeResult {
	t.Helper()
	for _, p := range res.Probes {
		if p.Name == name {
			return p
		}
	}
	t.Fatalf("no result for probe %s", name)
	return ProbeResult{}
}

func TestGateHealthyWhenAllProbesPass(t *testing.T) {
	gate := NewGate([]ProbeConfig{
		fastConfig(&scriptedProbe{name: "a"}, 3),
		fastConfig(&scriptedProbe{name: "b", failures: 2}, 3),
	}, GateOptions{})

	if gate.State() != GatePending {
		t.Errorf("initial state: got %s, want PENDING", gate.State())
	}

	res := gate.Wait(context.Background())
	if !res.Healthy() {
		t.Fatalf("gate not healthy: %+v", res)
	}
	if gate.State() != GateHealthy {
		t.Errorf("final state: got %s, want HEALTHY", gate.State())
	}
	if got := probeByName(t, res, "b").Attempts; got != 3 {
		t.Errorf("probe b: got %d attempts, want 3", got)
	}
}

func TestGateUnhealthyReportsCompositeResult(t *testing.T) {
	alwaysFail := &scriptedProbe{name: "b", failures: -1}
	gate := NewGate([]ProbeConfig{
		fastConfig(&scriptedProbe{name: "a"}, 3),
		fastConfig(alwaysFail, 4),
	}, GateOptions{})

	res := gate.Wait(context.Background())
	if res.Healthy() {
		t.Fatal("gate should be unhealthy")
	}
	if res.State != GateUnhealthy {
		t.Errorf("state: got %s, want UNHEALTHY", res.State)
	}

	// The passing probe must still be reported PASS for diagnostics.
	if got := probeByName(t, res, "a").Status; got != ProbePass {
		t.Errorf("probe a: got %s, want PASS", got)
	}
	b := probeByName(t, res, "b")
	if b.Status != ProbeFail {
		t.Errorf("probe b: got %s, want FAIL", b.Status)
	}
	if b.Attempts != 4 {
		t.Errorf("probe b: got %d attempts, want full budget of 4", b.Attempts)
	}
	if b.LastErr == nil {
		t.Error("probe b: missing last error")
	}
}

func TestGateWithNoProbesIsHealthy(t *testing.T) {
	res := NewGate(nil, GateOptions{}).Wait(context.Background())
	if !res.Healthy() {
		t.Errorf("empty gate should be healthy, got %s", res.State)
	}
}

func TestHTTPProbe(t *testing.T) {
	var healthy atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if healthy.Load() {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	probe := &HTTPProbe{ProbeName: "api", URL: srv.URL}

	if err := probe.Check(context.Background()); err == nil {
		t.Error("expected failure while endpoint is unavailable")
	}

	healthy.Store(true)
	if err := probe.Check(context.Background()); err != nil {
		t.Errorf("expected success once endpoint is up: %v", err)
	}
}

func TestGateRecoversWhenEndpointComesUp(t *testing.T) {
	var requests atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if requests.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	gate := NewGate([]ProbeConfig{
		fastConfig(&HTTPProbe{ProbeName: "api", URL: srv.URL}, 5),
	}, GateOptions{})

	res := gate.Wait(context.Background())
	if !res.Healthy() {
		t.Fatalf("gate should recover within budget: %+v", res)
	}
	if got := probeByName(t, res, "api").Attempts; got != 3 {
		t.Errorf("got %d attempts, want 3", got)
	}
}
