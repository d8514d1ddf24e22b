package compute

import "context"

// Service is the capability set every compute provider implements.
type Service interface {
	// ListZones lists the zones available to the caller.
	ListZones(ctx context.Context) ([]Zone, error)

	// ListNetworkOfferings lists network offerings passing the filter.
	ListNetworkOfferings(ctx context.Context, filter NetworkOfferingFilter) ([]NetworkOffering, error)

	// ListNetworks lists networks passing the filter.
	ListNetworks(ctx context.Context, opts ListNetworksOptions) ([]Network, error)

	// CreateNetwork creates a network. The spec must pass Validate.
	CreateNetwork(ctx context.Context, spec NetworkSpec) (*Network, error)

	// DeleteNetwork deletes a network and waits for the deletion to finish.
	DeleteNetwork(ctx context.Context, id string) error

	// CreateNodesInGroup launches count nodes tagged with group. If some
	// nodes fail, the error is a *RunNodesError describing every node.
	CreateNodesInGroup(ctx context.Context, group string, count int, tmpl Template) ([]Node, error)

	// DestroyNodesInGroup destroys every node tagged with group and returns
	// the nodes it destroyed.
	DestroyNodesInGroup(ctx context.Context, group string) ([]Node, error)

	// DestroyNode destroys a single node.
	DestroyNode(ctx context.Context, id string) error

	// CreateKeyPair has the provider generate a key pair.
	CreateKeyPair(ctx context.Context, name string) (*KeyPair, error)

	// RegisterKeyPair imports an existing public key.
	RegisterKeyPair(ctx context.Context, name, publicKey string) (*KeyPair, error)

	// DeleteKeyPair deletes a key pair. A missing key pair is not an error.
	DeleteKeyPair(ctx context.Context, name string) error
}
