package libvirt

import (
	"context"
	"errors"
	"fmt"

	"github.com/digitalocean/go-libvirt"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/jbweber/nimbus/internal/compute"
	nimbuslibvirt "github.com/jbweber/nimbus/internal/libvirt"
)

// ListNetworks lists the libvirt networks passing opts. Network ids are
// the libvirt network UUIDs.
func (p *Provider) ListNetworks(ctx context.Context, opts compute.ListNetworksOptions) ([]compute.Network, error) {
	zone, err := p.zone()
	if err != nil {
		return nil, err
	}

	nets, _, err := p.lv.ConnectListAllNetworks(1, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to list networks: %w", err)
	}

	var networks []compute.Network
	for _, net := range nets {
		doc, err := p.lv.NetworkGetXMLDesc(net, 0)
		if err != nil {
			log.Ctx(ctx).Warn().Err(err).Str("network", net.Name).Msg("Warning: failed to get network XML")
			continue
		}
		info, err := nimbuslibvirt.ParseNetworkXML(doc)
		if err != nil {
			log.Ctx(ctx).Warn().Err(err).Str("network", net.Name).Msg("Warning: failed to parse network XML")
			continue
		}

		n, err := networkFromInfo(info, zone.ID)
		if err != nil {
			return nil, err
		}
		if opts.Matches(n) {
			networks = append(networks, n)
		}
	}
	return networks, nil
}

func networkFromInfo(info *nimbuslibvirt.NetworkInfo, zoneID string) (compute.Network, error) {
	n := compute.Network{
		ID:          info.UUID,
		Name:        info.Name,
		DisplayText: info.Name,
		ZoneID:      zoneID,
		OfferingID:  OfferingIsolatedVLAN,
		TrafficType: compute.TrafficTypeGuest,
		IsDefault:   info.Name == DefaultNetwork,
		Gateway:     info.Gateway,
		Netmask:     info.Netmask,
	}
	if info.Forward == nimbuslibvirt.ForwardNAT {
		n.OfferingID = OfferingNAT
	}
	if info.VLAN != "" {
		u, err := compute.VLANBroadcastURI(info.VLAN)
		if err != nil {
			return compute.Network{}, err
		}
		n.BroadcastURI = u
	}
	return n, nil
}

// CreateNetwork defines, starts and autostarts a libvirt network. The
// offering defaults to isolated-vlan when a VLAN is given and to nat
// otherwise.
func (p *Provider) CreateNetwork(ctx context.Context, spec compute.NetworkSpec) (*compute.Network, error) {
	if err := spec.Validate(); err != nil {
		return nil, fmt.Errorf("invalid network spec: %w", err)
	}
	zone, err := p.checkZone(spec.ZoneID)
	if err != nil {
		return nil, err
	}

	offering := spec.OfferingID
	if offering == "" {
		offering = OfferingNAT
		if spec.VLAN != "" {
			offering = OfferingIsolatedVLAN
		}
	}

	netSpec := nimbuslibvirt.NetworkSpec{
		Name:      spec.Name,
		VLAN:      spec.VLAN,
		Gateway:   spec.Gateway,
		Netmask:   spec.Netmask,
		DHCPStart: spec.StartIP,
		DHCPEnd:   spec.EndIP,
	}
	switch offering {
	case OfferingIsolatedVLAN:
		if spec.VLAN == "" {
			return nil, fmt.Errorf("offering %s requires a VLAN", offering)
		}
		netSpec.Forward = nimbuslibvirt.ForwardNone
	case OfferingNAT:
		netSpec.Forward = nimbuslibvirt.ForwardNAT
	default:
		return nil, fmt.Errorf("offering %s: %w", offering, compute.ErrNoOffering)
	}

	logger := log.Ctx(ctx).With().Str("network", spec.Name).Logger()

	// Step 1: Generate network XML
	doc, err := nimbuslibvirt.GenerateNetworkXML(netSpec)
	if err != nil {
		return nil, fmt.Errorf("failed to generate network XML: %w", err)
	}

	// Step 2: Define network
	logger.Info().Msg("Creating network...")
	net, err := p.lv.NetworkDefineXML(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to define network: %w", err)
	}

	// Step 3: Start it and survive hypervisor restarts
	if err := p.lv.NetworkCreate(net); err != nil {
		p.undefineNetwork(ctx, net)
		return nil, fmt.Errorf("failed to start network: %w", err)
	}
	if err := p.lv.NetworkSetAutostart(net, 1); err != nil {
		if derr := p.lv.NetworkDestroy(net); derr != nil {
			logger.Warn().Err(derr).Msg("Warning: failed to stop network")
		}
		p.undefineNetwork(ctx, net)
		return nil, fmt.Errorf("failed to set network autostart: %w", err)
	}

	info, err := nimbuslibvirt.ParseNetworkXML(doc)
	if err != nil {
		return nil, err
	}
	n, err := networkFromInfo(info, zone.ID)
	if err != nil {
		return nil, err
	}
	n.DisplayText = spec.DisplayText
	n.OfferingID = offering

	logger.Info().Str("id", n.ID).Msg("Network created")
	return &n, nil
}

func (p *Provider) undefineNetwork(ctx context.Context, net libvirt.Network) {
	if err := p.lv.NetworkUndefine(net); err != nil {
		log.Ctx(ctx).Warn().Err(err).Str("network", net.Name).Msg("Warning: failed to undefine network")
	}
}

// isNoNetwork reports libvirt's ERR_NO_NETWORK. libvirt.IsNotFound only
// covers domains.
func isNoNetwork(err error) bool {
	var lerr libvirt.Error
	return errors.As(err, &lerr) && lerr.Code == uint32(libvirt.ErrNoNetwork)
}

// lookupNetwork finds a network by UUID. Unknown and malformed ids are
// compute.ErrNotFound.
func (p *Provider) lookupNetwork(id string) (libvirt.Network, error) {
	u, err := uuid.Parse(id)
	if err != nil {
		return libvirt.Network{}, fmt.Errorf("network %s: %w", id, compute.ErrNotFound)
	}
	net, err := p.lv.NetworkLookupByUUID(libvirt.UUID(u))
	if isNoNetwork(err) {
		return libvirt.Network{}, fmt.Errorf("network %s: %w", id, compute.ErrNotFound)
	}
	if err != nil {
		return libvirt.Network{}, fmt.Errorf("failed to look up network %s: %w", id, err)
	}
	return net, nil
}

// DeleteNetwork stops the network if it is active and undefines it.
func (p *Provider) DeleteNetwork(ctx context.Context, id string) error {
	net, err := p.lookupNetwork(id)
	if err != nil {
		return err
	}

	logger := log.Ctx(ctx).With().Str("network", net.Name).Logger()
	logger.Info().Msg("Deleting network...")

	active, err := p.lv.NetworkIsActive(net)
	if err != nil {
		return fmt.Errorf("failed to get network state: %w", err)
	}
	if active == 1 {
		if err := p.lv.NetworkDestroy(net); err != nil {
			return fmt.Errorf("failed to stop network: %w", err)
		}
	}
	if err := p.lv.NetworkUndefine(net); err != nil {
		return fmt.Errorf("failed to undefine network: %w", err)
	}

	logger.Info().Msg("Network deleted")
	return nil
}

// networkName resolves the network a template attaches to. Templates may
// name a network by id or, for networks nimbus didn't create, by name.
func (p *Provider) networkName(id string) (string, error) {
	if id == "" {
		return DefaultNetwork, nil
	}
	if _, err := uuid.Parse(id); err != nil {
		net, err := p.lv.NetworkLookupByName(id)
		if isNoNetwork(err) {
			return "", fmt.Errorf("network %s: %w", id, compute.ErrNotFound)
		}
		if err != nil {
			return "", fmt.Errorf("failed to look up network %s: %w", id, err)
		}
		return net.Name, nil
	}
	net, err := p.lookupNetwork(id)
	if err != nil {
		return "", err
	}
	return net.Name, nil
}
