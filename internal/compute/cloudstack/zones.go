package cloudstack

import (
	"context"
	"fmt"
	"net/url"

	"github.com/jbweber/nimbus/internal/compute"
)

// ListZones lists the available zones.
func (c *Client) ListZones(ctx context.Context) ([]compute.Zone, error) {
	res, err := c.call(ctx, "listZones", url.Values{"available": {"true"}})
	if err != nil {
		return nil, fmt.Errorf("failed to list zones: %w", err)
	}

	var zones []compute.Zone
	for _, v := range res.Get("zone").Array() {
		zones = append(zones, zoneFromJSON(v))
	}
	return zones, nil
}

// ListNetworkOfferings lists the enabled network offerings.
func (c *Client) ListNetworkOfferings(ctx context.Context, filter compute.NetworkOfferingFilter) ([]compute.NetworkOffering, error) {
	params := url.Values{"state": {"Enabled"}}
	if filter.ZoneID != "" {
		params.Set("zoneid", filter.ZoneID)
	}
	if filter.SpecifyVLAN != nil {
		params.Set("specifyvlan", boolParam(*filter.SpecifyVLAN))
	}

	res, err := c.call(ctx, "listNetworkOfferings", params)
	if err != nil {
		return nil, fmt.Errorf("failed to list network offerings: %w", err)
	}

	var offerings []compute.NetworkOffering
	for _, v := range res.Get("networkoffering").Array() {
		o := offeringFromJSON(v, filter.ZoneID)
		if filter.Matches(o) {
			offerings = append(offerings, o)
		}
	}
	return offerings, nil
}
