package libvirt

import (
	"errors"
	"fmt"
	"net"

	"github.com/google/uuid"
	"libvirt.org/go/libvirtxml"

	"github.com/jbweber/nimbus/internal/naming"
)

// Forward modes of a generated network.
const (
	ForwardNone = ""
	ForwardNAT  = "nat"
)

// NetworkSpec describes a libvirt virtual network.
type NetworkSpec struct {
	Name string
	// UUID is generated when empty.
	UUID string
	// Bridge is left to libvirt when empty.
	Bridge  string
	Forward string
	// VLAN is recorded in the bridge name when Bridge is empty.
	VLAN string

	Gateway   string
	Netmask   string
	DHCPStart string
	DHCPEnd   string
}

// NetworkInfo is what ParseNetworkXML recovers from a network definition.
type NetworkInfo struct {
	Name    string
	UUID    string
	Bridge  string
	Forward string
	VLAN    string
	Gateway string
	Netmask string
}

func validIP(field, value string) error {
	if value != "" && net.ParseIP(value) == nil {
		return fmt.Errorf("%s %q is not a valid IP address", field, value)
	}
	return nil
}

// GenerateNetworkXML renders a libvirt network. Without a gateway the
// network carries no IP configuration and libvirt runs no DHCP server.
func GenerateNetworkXML(spec NetworkSpec) (string, error) {
	if spec.Name == "" {
		return "", errors.New("network name is required")
	}
	if spec.Forward != ForwardNone && spec.Forward != ForwardNAT {
		return "", fmt.Errorf("unsupported forward mode %q", spec.Forward)
	}
	for _, f := range []struct{ name, value string }{
		{"gateway", spec.Gateway},
		{"netmask", spec.Netmask},
		{"dhcp start", spec.DHCPStart},
		{"dhcp end", spec.DHCPEnd},
	} {
		if err := validIP(f.name, f.value); err != nil {
			return "", err
		}
	}
	if spec.Gateway != "" && spec.Netmask == "" {
		return "", errors.New("netmask is required with a gateway")
	}
	if spec.DHCPStart != "" && spec.Gateway == "" {
		return "", errors.New("gateway is required with a DHCP range")
	}

	id := spec.UUID
	if id == "" {
		id = uuid.NewString()
	}

	network := &libvirtxml.Network{
		Name: spec.Name,
		UUID: id,
	}

	bridge := spec.Bridge
	if bridge == "" && spec.VLAN != "" {
		var err error
		if bridge, err = naming.BridgeNameFromVLAN(spec.VLAN); err != nil {
			return "", err
		}
	}
	if bridge != "" {
		network.Bridge = &libvirtxml.NetworkBridge{
			Name:  bridge,
			STP:   "on",
			Delay: "0",
		}
	}

	if spec.Forward == ForwardNAT {
		network.Forward = &libvirtxml.NetworkForward{Mode: ForwardNAT}
	}

	if spec.Gateway != "" {
		ip := libvirtxml.NetworkIP{
			Address: spec.Gateway,
			Netmask: spec.Netmask,
		}
		if spec.DHCPStart != "" {
			end := spec.DHCPEnd
			if end == "" {
				end = spec.DHCPStart
			}
			ip.DHCP = &libvirtxml.NetworkDHCP{
				Ranges: []libvirtxml.NetworkDHCPRange{
					{Start: spec.DHCPStart, End: end},
				},
			}
		}
		network.IPs = []libvirtxml.NetworkIP{ip}
	}

	xml, err := network.Marshal()
	if err != nil {
		return "", fmt.Errorf("failed to marshal network XML: %w", err)
	}
	return xml, nil
}

// ParseNetworkXML reads back a network definition. The VLAN comes from an
// explicit <vlan> tag if present, otherwise from an nbr{vlan} bridge name.
func ParseNetworkXML(doc string) (*NetworkInfo, error) {
	var network libvirtxml.Network
	if err := network.Unmarshal(doc); err != nil {
		return nil, fmt.Errorf("failed to parse network XML: %w", err)
	}

	info := &NetworkInfo{
		Name: network.Name,
		UUID: network.UUID,
	}
	if network.Forward != nil {
		info.Forward = network.Forward.Mode
	}
	if network.Bridge != nil {
		info.Bridge = network.Bridge.Name
	}

	switch {
	case network.VLAN != nil && len(network.VLAN.Tags) > 0:
		info.VLAN = fmt.Sprintf("%d", network.VLAN.Tags[0].ID)
	case info.Bridge != "":
		if vlan, ok := naming.VLANFromBridgeName(info.Bridge); ok {
			info.VLAN = vlan
		}
	}

	for _, ip := range network.IPs {
		if ip.Family != "" && ip.Family != "ipv4" {
			continue
		}
		info.Gateway = ip.Address
		info.Netmask = ip.Netmask
		if info.Netmask == "" && ip.Prefix > 0 {
			info.Netmask = net.IP(net.CIDRMask(int(ip.Prefix), 32)).String()
		}
		break
	}

	return info, nil
}
