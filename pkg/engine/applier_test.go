package engine

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stacklift/stacklift/pkg/graph"
)

// mockProvisioner scripts failures per resource. Resources are keyed by
// their "name" attribute.
type mockProvisioner struct {
	mu sync.Mutex

	// transientFailures is the number of transient errors to return before
	// succeeding, per resource name.
	transientFailures map[string]int

	// permanentFailures marks resources that always fail permanently.
	permanentFailures map[string]bool

	calls    []string
	received map[string]graph.Attributes
}

func newMockProvisioner() *mockProvisioner {
	return &mockProvisioner{
		transientFailures: make(map[string]int),
		permanentFailures: make(map[string]bool),
		received:          make(map[string]graph.Attributes),
	}
}

func (m *mockProvisioner) Create(ctx context.Context, typ graph.ResourceType, attrs graph.Attributes) (string, graph.Attributes, error) {
	name, _ := attrs["name"].(string)

	m.mu.Lock()
	m.calls = append(m.calls, name)
	m.received[name] = attrs
	if m.permanentFailures[name] {
		m.mu.Unlock()
		return "", nil, NewPermanentError("invalid configuration", nil).WithCode(ErrCodeValidation)
	}
	if m.transientFailures[name] > 0 {
		m.transientFailures[name]--
		m.mu.Unlock()
		return "", nil, NewTransientError("provider timed out", nil).WithCode(ErrCodeTimeout)
	}
	m.mu.Unlock()

	resolved := graph.Attributes{"name": name, "status": "ready"}
	for k, v := range attrs {
		resolved[k] = v
	}
	return "prov-" + name, resolved, nil
}

func (m *mockProvisioner) Update(ctx context.Context, providerID string, attrs graph.Attributes) (graph.Attributes, error) {
	name, _ := attrs["name"].(string)
	m.mu.Lock()
	m.calls = append(m.calls, name)
	m.received[name] = attrs
	m.mu.Unlock()

	resolved := graph.Attributes{"status": "ready"}
	for k, v := range attrs {
		resolved[k] = v
	}
	return resolved, nil
}

func (m *mockProvisioner) Delete(ctx context.Context, providerID string) error {
	return nil
}

// memoryStore is an in-memory StateStore.
type memoryStore struct {
	mu    sync.Mutex
	state State
}

func newMemoryStore() *memoryStore {
	return &memoryStore{state: make(State)}
}

func (s *memoryStore) LoadState(ctx context.Context) (State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(State, len(s.state))
	for k, v := range s.state {
		out[k] = v
	}
	return out, nil
}

func (s *memoryStore) PutResourceState(ctx context.Context, resourceID string, st AppliedState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state[resourceID] = st
	return nil
}

func fastRetry(attempts int) RetryPolicy {
	return RetryPolicy{
		MaxAttempts: attempts,
		BaseDelay:   time.Millisecond,
		MaxDelay:    5 * time.Millisecond,
		Multiplier:  2,
	}
}

func newTestApplier(mock *mockProvisioner, store StateStore, attempts int) *Applier {
	return NewApplier(NewProvisionerRegistry(mock), store, ApplierOptions{
		Retry:       fastRetry(attempts),
		MaxParallel: 4,
	})
}

func resultFor(t *testing.T, res *ApplyResult, resourceID string) ActionResult {
	t.Helper()
	for _, r := range res.Results {
		if r.ResourceID == resourceID {
			return r
		}
	}
	t.Fatalf("no result for resource %s", resourceID)
	return ActionResult{}
}

func TestApplyCreatesInDependencyOrder(t *testing.T) {
	fg := buildGraph(t, []*graph.Resource{
		{ID: "net", Type: graph.TypeNetwork, Attributes: graph.Attributes{"name": "net"}},
		{ID: "sub", Type: graph.TypeSubnet, Attributes: graph.Attributes{"name": "sub"}, DependsOn: []string{"net"}},
		{ID: "db", Type: graph.TypeDatabase, Attributes: graph.Attributes{"name": "db"}, DependsOn: []string{"sub"}},
	})

	mock := newMockProvisioner()
	store := newMemoryStore()
	applier := newTestApplier(mock, store, 3)

	plan := NewPlanner().Plan(fg, State{})
	res := applier.Apply(context.Background(), plan, State{})

	if res.Failed() {
		t.Fatalf("apply failed: %v", res.Err)
	}
	want := []string{"net", "sub", "db"}
	if len(mock.calls) != len(want) {
		t.Fatalf("got calls %v, want %v", mock.calls, want)
	}
	for i, name := range want {
		if mock.calls[i] != name {
			t.Errorf("call %d: got %s, want %s", i, mock.calls[i], name)
		}
	}

	st, _ := store.LoadState(context.Background())
	if st["db"].ProviderID != "prov-db" {
		t.Errorf("db state not persisted: %+v", st["db"])
	}
}

func TestApplyIsIdempotent(t *testing.T) {
	fg := buildGraph(t, []*graph.Resource{
		{ID: "net", Type: graph.TypeNetwork, Attributes: graph.Attributes{"name": "net"}},
		{ID: "db", Type: graph.TypeDatabase, Attributes: graph.Attributes{"name": "db"}, DependsOn: []string{"net"}},
	})

	mock := newMockProvisioner()
	store := newMemoryStore()
	applier := newTestApplier(mock, store, 3)

	first := NewPlanner().Plan(fg, State{})
	if res := applier.Apply(context.Background(), first, State{}); res.Failed() {
		t.Fatalf("first apply failed: %v", res.Err)
	}

	last, _ := store.LoadState(context.Background())
	second := NewPlanner().Plan(fg, last)
	if !second.AllNoop() {
		t.Fatalf("expected all-noop second plan, got %+v", second.Summary)
	}

	callsBefore := len(mock.calls)
	if res := applier.Apply(context.Background(), second, last); res.Failed() {
		t.Fatalf("second apply failed: %v", res.Err)
	}
	if len(mock.calls) != callsBefore {
		t.Errorf("noop apply called the provisioner %d more times", len(mock.calls)-callsBefore)
	}
}

func TestApplySubstitutesReferences(t *testing.T) {
	fg := buildGraph(t, []*graph.Resource{
		{ID: "net", Type: graph.TypeNetwork, Attributes: graph.Attributes{
			"name": "net",
			"cidr": "10.0.0.0/16",
		}},
		{ID: "sub", Type: graph.TypeSubnet, Attributes: graph.Attributes{
			"name":    "sub",
			"network": "${net.id}",
			"parent":  "${net.cidr}",
		}, DependsOn: []string{"net"}},
	})

	mock := newMockProvisioner()
	applier := newTestApplier(mock, newMemoryStore(), 3)

	plan := NewPlanner().Plan(fg, State{})
	res := applier.Apply(context.Background(), plan, State{})
	if res.Failed() {
		t.Fatalf("apply failed: %v", res.Err)
	}

	got := mock.received["sub"]
	if got["network"] != "prov-net" {
		t.Errorf("network reference: got %v, want prov-net", got["network"])
	}
	if got["parent"] != "10.0.0.0/16" {
		t.Errorf("cidr reference: got %v, want 10.0.0.0/16", got["parent"])
	}
}

func TestApplyNoopStillPublishesResolvedAttributes(t *testing.T) {
	fg := buildGraph(t, []*graph.Resource{
		{ID: "net", Type: graph.TypeNetwork, Attributes: graph.Attributes{"name": "net"}},
		{ID: "sub", Type: graph.TypeSubnet, Attributes: graph.Attributes{
			"name":    "sub",
			"network": "${net.id}",
		}, DependsOn: []string{"net"}},
	})

	// net is already applied, sub is new.
	last := State{
		"net": {
			ProviderID: "prov-net",
			Attributes: graph.Attributes{"name": "net"},
			Resolved:   graph.Attributes{"name": "net", "status": "ready"},
		},
	}

	mock := newMockProvisioner()
	applier := newTestApplier(mock, newMemoryStore(), 3)

	plan := NewPlanner().Plan(fg, last)
	if plan.Summary.NoChange != 1 || plan.Summary.ToCreate != 1 {
		t.Fatalf("unexpected plan summary: %+v", plan.Summary)
	}

	res := applier.Apply(context.Background(), plan, last)
	if res.Failed() {
		t.Fatalf("apply failed: %v", res.Err)
	}
	if got := mock.received["sub"]["network"]; got != "prov-net" {
		t.Errorf("reference into noop resource: got %v, want prov-net", got)
	}
}

func TestApplyRetriesTransientWithinBudget(t *testing.T) {
	fg := buildGraph(t, []*graph.Resource{
		{ID: "db", Type: graph.TypeDatabase, Attributes: graph.Attributes{"name": "db"}},
	})

	mock := newMockProvisioner()
	mock.transientFailures["db"] = 2
	applier := newTestApplier(mock, newMemoryStore(), 3)

	plan := NewPlanner().Plan(fg, State{})
	res := applier.Apply(context.Background(), plan, State{})

	if res.Failed() {
		t.Fatalf("apply failed: %v", res.Err)
	}
	ar := resultFor(t, res, "db")
	if ar.Status != ActionStatusApplied {
		t.Errorf("got status %s, want applied", ar.Status)
	}
	if ar.Attempts != 3 {
		t.Errorf("got %d attempts, want 3", ar.Attempts)
	}
}

func TestApplyRetryBudgetExhaustedIsFatal(t *testing.T) {
	fg := buildGraph(t, []*graph.Resource{
		{ID: "db", Type: graph.TypeDatabase, Attributes: graph.Attributes{"name": "db"}},
		{ID: "bucket", Type: graph.TypeBucket, Attributes: graph.Attributes{"name": "bucket"}, DependsOn: []string{"db"}},
	})

	mock := newMockProvisioner()
	mock.transientFailures["db"] = 10
	applier := newTestApplier(mock, newMemoryStore(), 3)

	plan := NewPlanner().Plan(fg, State{})
	res := applier.Apply(context.Background(), plan, State{})

	if !res.Failed() {
		t.Fatal("expected fatal apply result")
	}
	if res.Err.Class != ErrorClassPermanent {
		t.Errorf("got class %s, want permanent", res.Err.Class)
	}
	if res.Err.Code != ErrCodeRetryExhausted {
		t.Errorf("got code %s, want %s", res.Err.Code, ErrCodeRetryExhausted)
	}

	dbRes := resultFor(t, res, "db")
	if dbRes.Status != ActionStatusFailed || dbRes.Attempts != 3 {
		t.Errorf("db result: %+v", dbRes)
	}
	if got := resultFor(t, res, "bucket").Status; got != ActionStatusSkipped {
		t.Errorf("bucket: got status %s, want skipped", got)
	}
}

func TestApplyPermanentErrorHaltsWithoutRetry(t *testing.T) {
	fg := buildGraph(t, []*graph.Resource{
		{ID: "db", Type: graph.TypeDatabase, Attributes: graph.Attributes{"name": "db"}},
		{ID: "bucket", Type: graph.TypeBucket, Attributes: graph.Attributes{"name": "bucket"}, DependsOn: []string{"db"}},
	})

	mock := newMockProvisioner()
	mock.permanentFailures["db"] = true
	applier := newTestApplier(mock, newMemoryStore(), 3)

	plan := NewPlanner().Plan(fg, State{})
	res := applier.Apply(context.Background(), plan, State{})

	if !res.Failed() {
		t.Fatal("expected fatal apply result")
	}
	dbRes := resultFor(t, res, "db")
	if dbRes.Attempts != 1 {
		t.Errorf("permanent error retried: %d attempts", dbRes.Attempts)
	}
	if dbRes.Err == nil || dbRes.Err.Resource != "db" {
		t.Errorf("error missing resource context: %+v", dbRes.Err)
	}
	if got := resultFor(t, res, "bucket").Status; got != ActionStatusSkipped {
		t.Errorf("bucket: got status %s, want skipped", got)
	}
}

func TestApplyRejectsUnresolvableReference(t *testing.T) {
	fg := buildGraph(t, []*graph.Resource{
		{ID: "net", Type: graph.TypeNetwork, Attributes: graph.Attributes{"name": "net"}},
		{ID: "sub", Type: graph.TypeSubnet, Attributes: graph.Attributes{
			"name":    "sub",
			"network": "${net.no_such_attribute}",
		}, DependsOn: []string{"net"}},
	})

	mock := newMockProvisioner()
	applier := newTestApplier(mock, newMemoryStore(), 3)

	plan := NewPlanner().Plan(fg, State{})
	res := applier.Apply(context.Background(), plan, State{})

	if !res.Failed() {
		t.Fatal("expected fatal apply result")
	}
	if res.Err.Code != ErrCodeValidation {
		t.Errorf("got code %s, want %s", res.Err.Code, ErrCodeValidation)
	}
}

func TestRetryPolicyDelayGrowsAndCaps(t *testing.T) {
	p := RetryPolicy{
		MaxAttempts: 5,
		BaseDelay:   time.Second,
		MaxDelay:    5 * time.Second,
		Multiplier:  2,
	}

	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{0, time.Second},
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{3, 5 * time.Second}, // capped
	}
	for _, tc := range cases {
		if got := p.Delay(tc.attempt); got != tc.want {
			t.Errorf("Delay(%d): got %v, want %v", tc.attempt, got, tc.want)
		}
	}
}

func TestRetryDoStopsOnPermanent(t *testing.T) {
	calls := 0
	err := fastRetry(5).Do(context.Background(), func(ctx context.Context) error {
		calls++
		return NewPermanentError("bad input", nil)
	})
	if calls != 1 {
		t.Errorf("got %d calls, want 1", calls)
	}
	if !IsPermanent(err) {
		t.Errorf("expected permanent error, got %v", err)
	}
}

func TestApplyManyIndependentResourcesConcurrently(t *testing.T) {
	var resources []*graph.Resource
	for i := 0; i < 64; i++ {
		name := fmt.Sprintf("bucket-%02d", i)
		resources = append(resources, &graph.Resource{
			ID:         name,
			Type:       graph.TypeBucket,
			Attributes: graph.Attributes{"name": name},
		})
	}
	fg := buildGraph(t, resources)
	store := newMemoryStore()
	plan := NewPlanner().Plan(fg, State{})

	lastApplied := State{}
	result := newTestApplier(newMockProvisioner(), store, 3).Apply(context.Background(), plan, lastApplied)

	if result.Failed() {
		t.Fatalf("apply failed: %v", result.Err)
	}
	for _, res := range result.Results {
		if res.Status != ActionStatusApplied {
			t.Errorf("%s status = %s, want applied", res.ResourceID, res.Status)
		}
	}
	state, err := store.LoadState(context.Background())
	if err != nil {
		t.Fatalf("LoadState: %v", err)
	}
	if len(state) != 64 {
		t.Errorf("store holds %d resources, want 64", len(state))
	}
	if len(lastApplied) != 64 {
		t.Errorf("applied state holds %d resources, want 64", len(lastApplied))
	}
}
