package cloudstack

import (
	"context"
	"fmt"
	"net/url"

	"github.com/rs/zerolog/log"

	"github.com/jbweber/nimbus/internal/compute"
)

// ListNetworks lists networks. The filter is applied both server side and
// to the result, since older management servers ignore some parameters.
func (c *Client) ListNetworks(ctx context.Context, opts compute.ListNetworksOptions) ([]compute.Network, error) {
	params := url.Values{}
	if opts.ZoneID != "" {
		params.Set("zoneid", opts.ZoneID)
	}
	if opts.TrafficType != "" {
		params.Set("traffictype", opts.TrafficType)
	}
	if opts.IsDefault != nil {
		params.Set("isdefault", boolParam(*opts.IsDefault))
	}
	if opts.IsSystem != nil {
		params.Set("issystem", boolParam(*opts.IsSystem))
	}

	res, err := c.call(ctx, "listNetworks", params)
	if err != nil {
		return nil, fmt.Errorf("failed to list networks: %w", err)
	}

	var networks []compute.Network
	for _, v := range res.Get("network").Array() {
		n := networkFromJSON(v)
		if opts.Matches(n) {
			networks = append(networks, n)
		}
	}
	return networks, nil
}

// CreateNetwork creates a network. createNetwork is synchronous.
func (c *Client) CreateNetwork(ctx context.Context, spec compute.NetworkSpec) (*compute.Network, error) {
	if err := spec.Validate(); err != nil {
		return nil, fmt.Errorf("invalid network spec: %w", err)
	}

	displayText := spec.DisplayText
	if displayText == "" {
		displayText = spec.Name
	}

	params := url.Values{
		"zoneid":            {spec.ZoneID},
		"networkofferingid": {spec.OfferingID},
		"name":              {spec.Name},
		"displaytext":       {displayText},
	}
	optional := map[string]string{
		"vlan":    spec.VLAN,
		"startip": spec.StartIP,
		"endip":   spec.EndIP,
		"netmask": spec.Netmask,
		"gateway": spec.Gateway,
	}
	for key, val := range optional {
		if val != "" {
			params.Set(key, val)
		}
	}

	log.Ctx(ctx).Debug().Str("name", spec.Name).Str("vlan", spec.VLAN).Msg("creating network")
	res, err := c.call(ctx, "createNetwork", params)
	if err != nil {
		return nil, fmt.Errorf("failed to create network %s: %w", spec.Name, err)
	}

	n := networkFromJSON(res.Get("network"))
	return &n, nil
}

// DeleteNetwork deletes a network and waits for the job to finish.
func (c *Client) DeleteNetwork(ctx context.Context, id string) error {
	if _, err := c.callAsync(ctx, "deleteNetwork", url.Values{"id": {id}}); err != nil {
		return fmt.Errorf("failed to delete network %s: %w", id, err)
	}
	return nil
}
