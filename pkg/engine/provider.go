package engine

import (
	"context"

	"github.com/stacklift/stacklift/pkg/graph"
)

// Provisioner is the resource-provisioning interface the engine delegates
// to. Implementations wrap a cloud provider API for one or more resource
// types. Errors should be classified with NewTransientError /
// NewPermanentError so the engine can decide whether to retry.
type Provisioner interface {
	// Create provisions a new resource and returns the provider-assigned
	// identifier along with the fully resolved attributes.
	Create(ctx context.Context, typ graph.ResourceType, attrs graph.Attributes) (providerID string, resolved graph.Attributes, err error)

	// Update reconciles an existing resource to the given attributes and
	// returns the resolved attributes.
	Update(ctx context.Context, providerID string, attrs graph.Attributes) (resolved graph.Attributes, err error)

	// Delete removes an existing resource.
	Delete(ctx context.Context, providerID string) error
}

// ProvisionerRegistry dispatches resource types to provisioners, so the
// engine never embeds provider-specific logic.
type ProvisionerRegistry struct {
	byType   map[graph.ResourceType]Provisioner
	fallback Provisioner
}

// NewProvisionerRegistry creates a registry with an optional fallback
// provisioner used for types without an explicit registration.
func NewProvisionerRegistry(fallback Provisioner) *ProvisionerRegistry {
	return &ProvisionerRegistry{
		byType:   make(map[graph.ResourceType]Provisioner),
		fallback: fallback,
	}
}

// Register binds a provisioner to a resource type, replacing any previous
// binding.
func (r *ProvisionerRegistry) Register(typ graph.ResourceType, p Provisioner) {
	r.byType[typ] = p
}

// Get returns the provisioner for a resource type.
func (r *ProvisionerRegistry) Get(typ graph.ResourceType) (Provisioner, error) {
	if p, ok := r.byType[typ]; ok {
		return p, nil
	}
	if r.fallback != nil {
		return r.fallback, nil
	}
	return nil, NewPermanentError("no provisioner registered", nil).
		WithCode(ErrCodeValidation).
		WithOperation(string(typ))
}
