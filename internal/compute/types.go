package compute

import (
	"net/url"
)

// NodeState is the provider-neutral lifecycle state of a node.
type NodeState string

const (
	NodeStatePending NodeState = "pending"
	NodeStateRunning NodeState = "running"
	NodeStateStopped NodeState = "stopped"
	NodeStateError   NodeState = "error"
	NodeStateUnknown NodeState = "unknown"
)

// TrafficTypeGuest is the traffic type of tenant networks.
const TrafficTypeGuest = "Guest"

// Zone is a location nodes and networks are created in.
type Zone struct {
	ID   string `json:"id" yaml:"id"`
	Name string `json:"name" yaml:"name"`
}

// NetworkOffering describes a kind of network a provider can create.
type NetworkOffering struct {
	ID          string `json:"id" yaml:"id"`
	Name        string `json:"name" yaml:"name"`
	SpecifyVLAN bool   `json:"specifyVlan" yaml:"specifyVlan"`
	ZoneID      string `json:"zoneId,omitempty" yaml:"zoneId,omitempty"`
}

// Network is a provider network. BroadcastURI is the only place the VLAN
// shows up for providers that don't report the VLAN id itself.
type Network struct {
	ID           string   `json:"id" yaml:"id"`
	Name         string   `json:"name" yaml:"name"`
	DisplayText  string   `json:"displayText,omitempty" yaml:"displayText,omitempty"`
	ZoneID       string   `json:"zoneId" yaml:"zoneId"`
	OfferingID   string   `json:"offeringId,omitempty" yaml:"offeringId,omitempty"`
	BroadcastURI *url.URL `json:"-" yaml:"-"`
	TrafficType  string   `json:"trafficType,omitempty" yaml:"trafficType,omitempty"`
	IsDefault    bool     `json:"isDefault" yaml:"isDefault"`
	IsSystem     bool     `json:"isSystem" yaml:"isSystem"`
	Gateway      string   `json:"gateway,omitempty" yaml:"gateway,omitempty"`
	Netmask      string   `json:"netmask,omitempty" yaml:"netmask,omitempty"`
}

// BroadcastURIString returns the broadcast URI or "" when unset.
func (n Network) BroadcastURIString() string {
	if n.BroadcastURI == nil {
		return ""
	}
	return n.BroadcastURI.String()
}

// ListNetworksOptions filters a network listing. Nil pointers and empty
// strings don't filter.
type ListNetworksOptions struct {
	ZoneID      string
	TrafficType string
	IsDefault   *bool
	IsSystem    *bool
}

// Matches reports whether n passes the filter.
func (o ListNetworksOptions) Matches(n Network) bool {
	if o.ZoneID != "" && n.ZoneID != o.ZoneID {
		return false
	}
	if o.TrafficType != "" && n.TrafficType != o.TrafficType {
		return false
	}
	if o.IsDefault != nil && n.IsDefault != *o.IsDefault {
		return false
	}
	if o.IsSystem != nil && n.IsSystem != *o.IsSystem {
		return false
	}
	return true
}

// NetworkOfferingFilter filters a network offering listing.
type NetworkOfferingFilter struct {
	ZoneID      string
	SpecifyVLAN *bool
}

// Matches reports whether o passes the filter.
func (f NetworkOfferingFilter) Matches(o NetworkOffering) bool {
	if f.ZoneID != "" && o.ZoneID != "" && o.ZoneID != f.ZoneID {
		return false
	}
	if f.SpecifyVLAN != nil && o.SpecifyVLAN != *f.SpecifyVLAN {
		return false
	}
	return true
}

// Template describes the nodes to launch.
type Template struct {
	ImageID    string
	ZoneID     string
	HardwareID string
	NetworkID  string
	KeyPair    string

	// SetupStaticNAT asks the provider to map a public address to the node.
	SetupStaticNAT bool

	// Sizing, used by providers without hardware profiles.
	VCPUs     int
	MemoryMiB int
	DiskGB    int
}

// Node is a virtual machine created by a provider.
type Node struct {
	ID         string    `json:"id" yaml:"id"`
	Name       string    `json:"name" yaml:"name"`
	Group      string    `json:"group,omitempty" yaml:"group,omitempty"`
	ZoneID     string    `json:"zoneId,omitempty" yaml:"zoneId,omitempty"`
	State      NodeState `json:"state" yaml:"state"`
	PrivateIPs []string  `json:"privateIps,omitempty" yaml:"privateIps,omitempty"`
}

// KeyPair is an SSH key pair known to a provider. PrivateKey is only set
// when the provider generated the pair.
type KeyPair struct {
	Name        string `json:"name" yaml:"name"`
	Fingerprint string `json:"fingerprint" yaml:"fingerprint"`
	PublicKey   string `json:"publicKey,omitempty" yaml:"publicKey,omitempty"`
	PrivateKey  string `json:"privateKey,omitempty" yaml:"privateKey,omitempty"`
}

// Bool returns a pointer to b, for filter fields.
func Bool(b bool) *bool {
	return &b
}
