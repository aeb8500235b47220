package graph

import "fmt"

// ResourceType identifies the kind of managed infrastructure unit.
type ResourceType string

const (
	// TypeNetwork is a virtual network.
	TypeNetwork ResourceType = "network"

	// TypeSubnet is a subnetwork carved out of a network.
	TypeSubnet ResourceType = "subnet"

	// TypeCluster is a managed compute cluster.
	TypeCluster ResourceType = "cluster"

	// TypeDatabase is a managed database instance.
	TypeDatabase ResourceType = "database"

	// TypeBucket is an object storage bucket.
	TypeBucket ResourceType = "bucket"

	// TypeKeyRing is a grouping of encryption keys.
	TypeKeyRing ResourceType = "keyring"

	// TypeCryptoKey is an encryption key inside a key ring.
	TypeCryptoKey ResourceType = "cryptokey"
)

// Validate checks if the resource type is one of the supported kinds.
func (t ResourceType) Validate() error {
	switch t {
	case TypeNetwork, TypeSubnet, TypeCluster, TypeDatabase,
		TypeBucket, TypeKeyRing, TypeCryptoKey:
		return nil
	default:
		return fmt.Errorf("invalid resource type: %s", t)
	}
}

// Attributes is the desired configuration of a resource. Values are strings,
// numbers, booleans, or nested attribute maps.
type Attributes map[string]any

// Resource is a single declared infrastructure unit.
type Resource struct {
	// ID is the identifier, unique within a graph.
	ID string `json:"id" yaml:"id"`

	// Type is the resource kind.
	Type ResourceType `json:"type" yaml:"type"`

	// Attributes is the desired configuration.
	Attributes Attributes `json:"attributes" yaml:"attributes"`

	// DependsOn lists the IDs of resources this resource depends on.
	DependsOn []string `json:"depends_on,omitempty" yaml:"depends_on,omitempty"`
}
