package cloudstack

import (
	"net/url"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/jbweber/nimbus/internal/compute"
)

func zoneFromJSON(v gjson.Result) compute.Zone {
	return compute.Zone{
		ID:   v.Get("id").String(),
		Name: v.Get("name").String(),
	}
}

func offeringFromJSON(v gjson.Result, zoneID string) compute.NetworkOffering {
	return compute.NetworkOffering{
		ID:          v.Get("id").String(),
		Name:        v.Get("name").String(),
		SpecifyVLAN: v.Get("specifyvlan").Bool(),
		ZoneID:      zoneID,
	}
}

func networkFromJSON(v gjson.Result) compute.Network {
	n := compute.Network{
		ID:          v.Get("id").String(),
		Name:        v.Get("name").String(),
		DisplayText: v.Get("displaytext").String(),
		ZoneID:      v.Get("zoneid").String(),
		OfferingID:  v.Get("networkofferingid").String(),
		TrafficType: v.Get("traffictype").String(),
		IsDefault:   v.Get("isdefault").Bool(),
		IsSystem:    v.Get("issystem").Bool(),
		Gateway:     v.Get("gateway").String(),
		Netmask:     v.Get("netmask").String(),
	}

	// A malformed broadcast URI only loses the VLAN match, not the network.
	if raw := v.Get("broadcasturi").String(); raw != "" {
		if u, err := url.Parse(raw); err == nil {
			n.BroadcastURI = u
		}
	}

	return n
}

func nodeFromJSON(v gjson.Result) compute.Node {
	n := compute.Node{
		ID:     v.Get("id").String(),
		Name:   v.Get("name").String(),
		Group:  v.Get("group").String(),
		ZoneID: v.Get("zoneid").String(),
		State:  nodeState(v.Get("state").String()),
	}
	for _, nic := range v.Get("nic").Array() {
		if ip := nic.Get("ipaddress").String(); ip != "" {
			n.PrivateIPs = append(n.PrivateIPs, ip)
		}
	}
	return n
}

// nodeState maps CloudStack VM states onto compute.NodeState.
func nodeState(state string) compute.NodeState {
	switch strings.ToLower(state) {
	case "starting", "creating", "migrating":
		return compute.NodeStatePending
	case "running":
		return compute.NodeStateRunning
	case "stopping", "stopped", "destroyed", "expunging":
		return compute.NodeStateStopped
	case "error":
		return compute.NodeStateError
	default:
		return compute.NodeStateUnknown
	}
}

func keyPairFromJSON(v gjson.Result) *compute.KeyPair {
	return &compute.KeyPair{
		Name:        v.Get("name").String(),
		Fingerprint: v.Get("fingerprint").String(),
		PrivateKey:  v.Get("privatekey").String(),
	}
}
