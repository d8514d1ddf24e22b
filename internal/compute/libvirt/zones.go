package libvirt

import (
	"context"
	"fmt"

	"github.com/jbweber/nimbus/internal/compute"
)

// Offerings. A libvirt network either stays on its own bridge or is NATed
// to the host's uplink.
const (
	OfferingIsolatedVLAN = "isolated-vlan"
	OfferingNAT          = "nat"
)

func (p *Provider) zone() (compute.Zone, error) {
	hostname, err := p.lv.ConnectGetHostname()
	if err != nil {
		return compute.Zone{}, fmt.Errorf("failed to get hypervisor hostname: %w", err)
	}
	return compute.Zone{ID: hostname, Name: hostname}, nil
}

// checkZone fails for any zone but the hypervisor itself. An empty id
// selects the hypervisor.
func (p *Provider) checkZone(id string) (compute.Zone, error) {
	zone, err := p.zone()
	if err != nil {
		return compute.Zone{}, err
	}
	if id != "" && id != zone.ID {
		return compute.Zone{}, fmt.Errorf("zone %s: %w", id, compute.ErrNotFound)
	}
	return zone, nil
}

// ListZones returns the hypervisor as the single zone.
func (p *Provider) ListZones(_ context.Context) ([]compute.Zone, error) {
	zone, err := p.zone()
	if err != nil {
		return nil, err
	}
	return []compute.Zone{zone}, nil
}

// ListNetworkOfferings returns the isolated-vlan and nat offerings.
func (p *Provider) ListNetworkOfferings(_ context.Context, filter compute.NetworkOfferingFilter) ([]compute.NetworkOffering, error) {
	zone, err := p.zone()
	if err != nil {
		return nil, err
	}

	all := []compute.NetworkOffering{
		{ID: OfferingIsolatedVLAN, Name: "Isolated VLAN network", SpecifyVLAN: true, ZoneID: zone.ID},
		{ID: OfferingNAT, Name: "NAT network", SpecifyVLAN: false, ZoneID: zone.ID},
	}

	var offerings []compute.NetworkOffering
	for _, o := range all {
		if filter.Matches(o) {
			offerings = append(offerings, o)
		}
	}
	return offerings, nil
}
