package compute

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
)

// ExperimentSpec configures RunNetworkExperiment.
type ExperimentSpec struct {
	// Group tags the launched nodes and names the network.
	Group string

	// VLAN is the VLAN id of the network. Stale networks with the same
	// VLAN in the zone are deleted first.
	VLAN string

	// ZoneID selects the zone; empty means the first zone.
	ZoneID string

	// Count is the number of nodes to launch. Zero means one.
	Count int

	Template Template

	StartIP string
	EndIP   string
	Netmask string
	Gateway string
}

// ExperimentResult is what RunNetworkExperiment provisioned before tearing
// it down.
type ExperimentResult struct {
	Zone            Zone
	Offering        NetworkOffering
	Network         *Network
	Nodes           []Node
	DeletedNetworks []Network
}

// RunNetworkExperiment creates a VLAN network, launches nodes attached to
// it and verifies that at least one started. The nodes and the network are
// always torn down before returning, including nodes left behind by a
// partially failed launch. Teardown failures are joined into the returned
// error.
func RunNetworkExperiment(ctx context.Context, svc Service, spec ExperimentSpec) (res *ExperimentResult, err error) {
	if spec.Group == "" {
		return nil, errors.New("group is required")
	}
	if spec.VLAN == "" {
		return nil, errors.New("VLAN is required")
	}
	count := spec.Count
	if count == 0 {
		count = 1
	}

	logger := log.Ctx(ctx).With().Str("group", spec.Group).Str("vlan", spec.VLAN).Logger()
	res = &ExperimentResult{}

	// State tracking for teardown
	var (
		network       *Network
		nodesMayExist bool
		targets       []Node
	)
	defer func() {
		teardownCtx := context.WithoutCancel(ctx)
		var errs []error
		if nodesMayExist {
			if tErr := destroyNodes(teardownCtx, svc, spec.Group, targets); tErr != nil {
				errs = append(errs, tErr)
			}
		}
		if network != nil {
			logger.Info().Str("network", network.ID).Msg("Deleting network...")
			if tErr := svc.DeleteNetwork(teardownCtx, network.ID); tErr != nil {
				logger.Warn().Err(tErr).Str("network", network.ID).Msg("Warning: failed to delete network")
				errs = append(errs, fmt.Errorf("failed to delete network %s: %w", network.ID, tErr))
			}
		}
		if len(errs) > 0 {
			err = errors.Join(append([]error{err}, errs...)...)
		}
	}()

	// Step 1: Pick the zone
	zone, err := pickZone(ctx, svc, spec.ZoneID)
	if err != nil {
		return res, err
	}
	res.Zone = zone
	logger.Info().Str("zone", zone.ID).Msg("Using zone")

	// Step 2: Remove leftovers of earlier runs
	res.DeletedNetworks, err = DeleteNetworksWithVLAN(ctx, svc, zone.ID, spec.VLAN)
	if err != nil {
		return res, fmt.Errorf("failed to clean up stale networks: %w", err)
	}

	// Step 3: Find an offering that lets us pick the VLAN
	offering, err := pickVLANOffering(ctx, svc, zone.ID)
	if err != nil {
		return res, err
	}
	res.Offering = offering

	// Step 4: Create the network
	logger.Info().Str("offering", offering.ID).Msg("Creating network...")
	network, err = svc.CreateNetwork(ctx, NetworkSpec{
		ZoneID:      zone.ID,
		OfferingID:  offering.ID,
		Name:        spec.Group,
		DisplayText: spec.Group,
		VLAN:        spec.VLAN,
		StartIP:     spec.StartIP,
		EndIP:       spec.EndIP,
		Netmask:     spec.Netmask,
		Gateway:     spec.Gateway,
	})
	if err != nil {
		return res, fmt.Errorf("failed to create network: %w", err)
	}
	res.Network = network

	// Step 5: Launch nodes on the network
	tmpl := spec.Template
	tmpl.ZoneID = zone.ID
	tmpl.NetworkID = network.ID

	logger.Info().Int("count", count).Msg("Creating nodes...")
	nodes, err := svc.CreateNodesInGroup(ctx, spec.Group, count, tmpl)
	if err != nil {
		var runErr *RunNodesError
		if errors.As(err, &runErr) {
			logger.Error().Err(err).Msg("error creating nodes")
			nodesMayExist = true
			targets = runErr.AllNodes()
			res.Nodes = targets
		}
		return res, fmt.Errorf("failed to create nodes: %w", err)
	}
	nodesMayExist = true
	targets = nodes
	res.Nodes = nodes

	// Step 6: Verify
	if len(nodes) == 0 {
		return res, fmt.Errorf("no nodes started in group %s", spec.Group)
	}

	logger.Info().Int("nodes", len(nodes)).Msg("Experiment succeeded")
	return res, nil
}

// DeleteNetworksWithVLAN deletes the non-default, non-system guest
// networks in a zone whose broadcast URI is vlan://{vlan}, and returns
// them.
func DeleteNetworksWithVLAN(ctx context.Context, svc Service, zoneID, vlan string) ([]Network, error) {
	broadcastURI, err := VLANBroadcastURI(vlan)
	if err != nil {
		return nil, err
	}

	networks, err := svc.ListNetworks(ctx, ListNetworksOptions{
		ZoneID:      zoneID,
		TrafficType: TrafficTypeGuest,
		IsDefault:   Bool(false),
		IsSystem:    Bool(false),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list networks: %w", err)
	}

	var deleted []Network
	for _, n := range networks {
		if !SameURI(broadcastURI, n.BroadcastURI) {
			continue
		}
		log.Ctx(ctx).Info().Str("network", n.ID).Str("broadcast_uri", n.BroadcastURIString()).Msg("Deleting stale network...")
		if err := svc.DeleteNetwork(ctx, n.ID); err != nil {
			return deleted, fmt.Errorf("failed to delete network %s: %w", n.ID, err)
		}
		deleted = append(deleted, n)
	}

	return deleted, nil
}

// KeyPairLaunchSpec configures LaunchWithKeyPair.
type KeyPairLaunchSpec struct {
	KeyPairName string

	// PublicKey, when set, is registered instead of having the provider
	// generate a pair.
	PublicKey string

	Group    string
	Template Template

	// RetrievePassword asks for the node's generated password after launch.
	RetrievePassword bool
}

// KeyPairLaunchResult is what LaunchWithKeyPair provisioned.
type KeyPairLaunchResult struct {
	KeyPair *KeyPair
	Node    *Node
}

// LaunchWithKeyPair replaces any key pair with the same name, launches
// exactly one node with it and destroys the node (and the key pair) again
// before returning.
func LaunchWithKeyPair(ctx context.Context, svc Service, spec KeyPairLaunchSpec) (res *KeyPairLaunchResult, err error) {
	if spec.KeyPairName == "" {
		return nil, errors.New("key pair name is required")
	}
	if spec.Group == "" {
		return nil, errors.New("group is required")
	}

	logger := log.Ctx(ctx).With().Str("group", spec.Group).Str("keypair", spec.KeyPairName).Logger()
	res = &KeyPairLaunchResult{}

	var (
		keyPairCreated bool
		targets        []Node
	)
	defer func() {
		teardownCtx := context.WithoutCancel(ctx)
		var errs []error
		for _, n := range targets {
			logger.Info().Str("node", n.ID).Msg("Destroying node...")
			if tErr := svc.DestroyNode(teardownCtx, n.ID); tErr != nil && !errors.Is(tErr, ErrNotFound) {
				logger.Warn().Err(tErr).Str("node", n.ID).Msg("Warning: failed to destroy node")
				errs = append(errs, fmt.Errorf("failed to destroy node %s: %w", n.ID, tErr))
			}
		}
		if keyPairCreated {
			if tErr := svc.DeleteKeyPair(teardownCtx, spec.KeyPairName); tErr != nil {
				logger.Warn().Err(tErr).Msg("Warning: failed to delete key pair")
				errs = append(errs, fmt.Errorf("failed to delete key pair %s: %w", spec.KeyPairName, tErr))
			}
		}
		if len(errs) > 0 {
			err = errors.Join(append([]error{err}, errs...)...)
		}
	}()

	// Step 1: Drop a stale key pair with the same name
	if err := svc.DeleteKeyPair(ctx, spec.KeyPairName); err != nil {
		return res, fmt.Errorf("failed to delete stale key pair: %w", err)
	}

	// Step 2: Create or register the key pair
	var kp *KeyPair
	if spec.PublicKey != "" {
		logger.Info().Msg("Registering key pair...")
		kp, err = svc.RegisterKeyPair(ctx, spec.KeyPairName, spec.PublicKey)
	} else {
		logger.Info().Msg("Creating key pair...")
		kp, err = svc.CreateKeyPair(ctx, spec.KeyPairName)
	}
	if err != nil {
		return res, fmt.Errorf("failed to create key pair: %w", err)
	}
	keyPairCreated = true
	res.KeyPair = kp

	// Step 3: Launch one node with the key pair
	tmpl := spec.Template
	tmpl.KeyPair = kp.Name
	tmpl.SetupStaticNAT = false

	logger.Info().Msg("Creating node...")
	nodes, err := svc.CreateNodesInGroup(ctx, spec.Group, 1, tmpl)
	if err != nil {
		var runErr *RunNodesError
		if errors.As(err, &runErr) {
			targets = runErr.AllNodes()
		}
		return res, fmt.Errorf("failed to create node: %w", err)
	}
	targets = nodes
	if len(nodes) != 1 {
		return res, fmt.Errorf("expected exactly one node, got %d", len(nodes))
	}
	res.Node = &nodes[0]

	// Step 4: Password retrieval
	if spec.RetrievePassword {
		return res, fmt.Errorf("failed to retrieve password for node %s: %w", nodes[0].ID, ErrNotSupported)
	}

	return res, nil
}

func pickZone(ctx context.Context, svc Service, zoneID string) (Zone, error) {
	zones, err := svc.ListZones(ctx)
	if err != nil {
		return Zone{}, fmt.Errorf("failed to list zones: %w", err)
	}
	if len(zones) == 0 {
		return Zone{}, ErrNoZones
	}
	if zoneID == "" {
		return zones[0], nil
	}
	for _, z := range zones {
		if z.ID == zoneID || z.Name == zoneID {
			return z, nil
		}
	}
	return Zone{}, fmt.Errorf("zone %s: %w", zoneID, ErrNotFound)
}

func pickVLANOffering(ctx context.Context, svc Service, zoneID string) (NetworkOffering, error) {
	offerings, err := svc.ListNetworkOfferings(ctx, NetworkOfferingFilter{
		ZoneID:      zoneID,
		SpecifyVLAN: Bool(true),
	})
	if err != nil {
		return NetworkOffering{}, fmt.Errorf("failed to list network offerings: %w", err)
	}
	if len(offerings) == 0 {
		return NetworkOffering{}, fmt.Errorf("zone %s: %w", zoneID, ErrNoOffering)
	}
	return offerings[0], nil
}

// destroyNodes destroys the group, then destroys any target the group
// destroy did not report, so nothing from a partial launch is left behind.
func destroyNodes(ctx context.Context, svc Service, group string, targets []Node) error {
	logger := log.Ctx(ctx)
	var errs []error

	logger.Info().Str("group", group).Msg("Destroying nodes in group...")
	destroyed, err := svc.DestroyNodesInGroup(ctx, group)
	if err != nil {
		logger.Warn().Err(err).Str("group", group).Msg("Warning: failed to destroy nodes in group")
		errs = append(errs, fmt.Errorf("failed to destroy nodes in group %s: %w", group, err))
	}

	done := make(map[string]bool, len(destroyed))
	for _, n := range destroyed {
		done[n.ID] = true
	}
	for _, n := range targets {
		if done[n.ID] {
			continue
		}
		if err := svc.DestroyNode(ctx, n.ID); err != nil && !errors.Is(err, ErrNotFound) {
			logger.Warn().Err(err).Str("node", n.ID).Msg("Warning: failed to destroy node")
			errs = append(errs, fmt.Errorf("failed to destroy node %s: %w", n.ID, err))
		}
	}

	return errors.Join(errs...)
}
