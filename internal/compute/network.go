package compute

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
)

// NetworkSpec describes a network to create.
type NetworkSpec struct {
	ZoneID      string
	OfferingID  string
	Name        string
	DisplayText string
	VLAN        string

	// StartIP, Netmask and Gateway must be given together.
	StartIP string
	EndIP   string
	Netmask string
	Gateway string
}

// Validate checks the spec before it is sent to a provider.
func (s NetworkSpec) Validate() error {
	if s.Name == "" {
		return errors.New("name is required")
	}
	if s.ZoneID == "" {
		return errors.New("zone is required")
	}

	set := 0
	for _, v := range []string{s.StartIP, s.Netmask, s.Gateway} {
		if v != "" {
			set++
		}
	}
	if set != 0 && set != 3 {
		return errors.New("start IP, netmask and gateway must be specified together")
	}
	if s.EndIP != "" && s.StartIP == "" {
		return errors.New("end IP requires a start IP")
	}

	addrs := []struct{ field, value string }{
		{"start IP", s.StartIP},
		{"end IP", s.EndIP},
		{"netmask", s.Netmask},
		{"gateway", s.Gateway},
	}
	for _, a := range addrs {
		if a.value != "" && net.ParseIP(a.value) == nil {
			return fmt.Errorf("invalid %s %q", a.field, a.value)
		}
	}

	if s.VLAN != "" {
		id, err := strconv.Atoi(s.VLAN)
		if err != nil || id < 1 || id > 4094 {
			return fmt.Errorf("invalid VLAN %q: must be a number between 1 and 4094", s.VLAN)
		}
	}

	return nil
}

// VLANBroadcastURI returns the broadcast URI providers report for a VLAN
// backed network, e.g. vlan://2.
func VLANBroadcastURI(vlan string) (*url.URL, error) {
	u, err := url.Parse("vlan://" + vlan)
	if err != nil {
		return nil, fmt.Errorf("invalid VLAN %q: %w", vlan, err)
	}
	return u, nil
}

// SameURI compares two URIs by their string form. A nil URI matches
// nothing.
func SameURI(a, b *url.URL) bool {
	if a == nil || b == nil {
		return false
	}
	return a.String() == b.String()
}
