package sim

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/stacklift/stacklift/pkg/engine"
	"github.com/stacklift/stacklift/pkg/graph"
	"github.com/stacklift/stacklift/pkg/telemetry"
)

// Provisioner is an in-memory provisioner used for dry runs, demos, and
// tests. It assigns deterministic provider IDs and synthesizes the resolved
// attributes a real provider would return.
type Provisioner struct {
	mu      sync.Mutex
	seq     int
	records map[string]*record
	latency time.Duration
	log     *telemetry.Logger
}

type record struct {
	typ   graph.ResourceType
	attrs graph.Attributes
}

// Options configures the simulated provisioner.
type Options struct {
	// Latency is an artificial delay applied to every call.
	Latency time.Duration

	// Logger receives one debug line per call. Nil disables logging.
	Logger *telemetry.Logger
}

var _ engine.Provisioner = (*Provisioner)(nil)

// New creates a simulated provisioner.
func New(opts Options) *Provisioner {
	log := opts.Logger
	if log == nil {
		log = telemetry.NopLogger()
	}
	return &Provisioner{
		records: make(map[string]*record),
		latency: opts.Latency,
		log:     log,
	}
}

// Create simulates provisioning a resource.
func (p *Provisioner) Create(ctx context.Context, typ graph.ResourceType, attrs graph.Attributes) (string, graph.Attributes, error) {
	if err := p.wait(ctx); err != nil {
		return "", nil, err
	}

	p.mu.Lock()
	p.seq++
	providerID := fmt.Sprintf("sim-%s-%04d", typ, p.seq)
	p.records[providerID] = &record{typ: typ, attrs: cloneAttrs(attrs)}
	p.mu.Unlock()

	p.log.WithField("provider_id", providerID).
		WithField("type", string(typ)).
		Debug("simulated create")

	return providerID, resolve(typ, providerID, attrs), nil
}

// Update simulates reconciling an existing resource. Provider IDs persisted
// by an earlier process are adopted rather than rejected: the state store
// outlives the in-memory simulator, so an unknown ID on update is normal.
func (p *Provisioner) Update(ctx context.Context, providerID string, attrs graph.Attributes) (graph.Attributes, error) {
	if err := p.wait(ctx); err != nil {
		return nil, err
	}
	if providerID == "" {
		return nil, engine.NewPermanentError("update without a provider id", nil).
			WithCode(engine.ErrCodeNotFound)
	}

	p.mu.Lock()
	rec, ok := p.records[providerID]
	if !ok {
		rec = &record{typ: typeFromID(providerID)}
		p.records[providerID] = rec
	}
	rec.attrs = cloneAttrs(attrs)
	typ := rec.typ
	p.mu.Unlock()

	p.log.WithField("provider_id", providerID).Debug("simulated update")

	return resolve(typ, providerID, attrs), nil
}

// Delete simulates removing a resource. Deleting an unknown resource is
// not an error.
func (p *Provisioner) Delete(ctx context.Context, providerID string) error {
	if err := p.wait(ctx); err != nil {
		return err
	}

	p.mu.Lock()
	delete(p.records, providerID)
	p.mu.Unlock()

	p.log.WithField("provider_id", providerID).Debug("simulated delete")

	return nil
}

// Len reports how many resources the simulator currently holds.
func (p *Provisioner) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.records)
}

func (p *Provisioner) wait(ctx context.Context) error {
	if p.latency <= 0 {
		if err := ctx.Err(); err != nil {
			return engine.NewTransientError("simulated call interrupted", err)
		}
		return nil
	}
	select {
	case <-time.After(p.latency):
		return nil
	case <-ctx.Done():
		return engine.NewTransientError("simulated call interrupted", ctx.Err())
	}
}

// resolve synthesizes the provider-assigned outputs for a resource type on
// top of the declared attributes.
func resolve(typ graph.ResourceType, providerID string, attrs graph.Attributes) graph.Attributes {
	out := cloneAttrs(attrs)

	switch typ {
	case graph.TypeNetwork:
		out["self_link"] = fmt.Sprintf("sim://networks/%s", providerID)
	case graph.TypeSubnet:
		out["self_link"] = fmt.Sprintf("sim://subnets/%s", providerID)
	case graph.TypeCluster:
		out["endpoint"] = fmt.Sprintf("https://%s.sim.internal", providerID)
	case graph.TypeDatabase:
		out["connection_uri"] = fmt.Sprintf("postgres://%s.sim.internal:5432", providerID)
	case graph.TypeBucket:
		out["url"] = fmt.Sprintf("sim://buckets/%s", providerID)
	case graph.TypeKeyRing, graph.TypeCryptoKey:
		out["resource_name"] = fmt.Sprintf("sim://kms/%s", providerID)
	}

	return out
}

// typeFromID recovers the resource type from the simulator's own ID format
// "sim-<type>-<seq>". IDs minted elsewhere yield an empty type, which
// resolves without synthesized outputs.
func typeFromID(providerID string) graph.ResourceType {
	rest, ok := strings.CutPrefix(providerID, "sim-")
	if !ok {
		return ""
	}
	typ, _, ok := strings.Cut(rest, "-")
	if !ok {
		return ""
	}
	return graph.ResourceType(typ)
}

func cloneAttrs(attrs graph.Attributes) graph.Attributes {
	out := make(graph.Attributes, len(attrs))
	for k, v := range attrs {
		out[k] = v
	}
	return out
}
