package cloudstack

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"github.com/rs/zerolog/log"

	"github.com/jbweber/nimbus/internal/compute"
	"github.com/jbweber/nimbus/internal/naming"
	"github.com/jbweber/nimbus/internal/requester"
)

// errorCodeParam is CloudStack's errorcode for invalid parameters.
const errorCodeParam = "431"

// deployment is a VM whose deploy command was accepted.
type deployment struct {
	node  compute.Node
	jobID string
}

// CreateNodesInGroup deploys count VMs named {group}-{hex} and waits for
// them. The deploys are submitted first and then awaited, so the jobs run
// side by side on the management server.
func (c *Client) CreateNodesInGroup(ctx context.Context, group string, count int, tmpl compute.Template) ([]compute.Node, error) {
	if err := naming.ValidateGroup(group); err != nil {
		return nil, err
	}
	if count < 1 {
		return nil, fmt.Errorf("count must be at least 1, got %d", count)
	}
	if tmpl.ImageID == "" || tmpl.HardwareID == "" || tmpl.ZoneID == "" {
		return nil, errors.New("template needs an image, a service offering and a zone")
	}

	logger := log.Ctx(ctx).With().Str("group", group).Logger()
	runErr := &compute.RunNodesError{Group: group, NodeErrors: map[string]compute.NodeError{}}

	// Step 1: Submit the deploys
	var pending []deployment
	for i := 0; i < count; i++ {
		name, err := naming.NodeName(group)
		if err != nil {
			return nil, err
		}

		params := url.Values{
			"zoneid":            {tmpl.ZoneID},
			"templateid":        {tmpl.ImageID},
			"serviceofferingid": {tmpl.HardwareID},
			"name":              {name},
			"displayname":       {name},
			"group":             {group},
		}
		if tmpl.NetworkID != "" {
			params.Set("networkids", tmpl.NetworkID)
		}
		if tmpl.KeyPair != "" {
			params.Set("keypair", tmpl.KeyPair)
		}

		logger.Info().Str("node", name).Msg("Deploying node...")
		res, err := c.call(ctx, "deployVirtualMachine", params)
		if err != nil {
			// Nothing was allocated, but the caller still learns about it.
			runErr.NodeErrors[name] = compute.NodeError{
				Node: compute.Node{ID: name, Name: name, Group: group, State: compute.NodeStateError},
				Err:  err,
			}
			continue
		}

		pending = append(pending, deployment{
			node: compute.Node{
				ID:     res.Get("id").String(),
				Name:   name,
				Group:  group,
				ZoneID: tmpl.ZoneID,
				State:  compute.NodeStatePending,
			},
			jobID: res.Get("jobid").String(),
		})
	}

	// Step 2: Wait for every deploy
	for _, d := range pending {
		node, err := c.awaitDeploy(ctx, d)
		if err == nil && tmpl.SetupStaticNAT {
			err = c.setupStaticNAT(ctx, node, tmpl)
		}
		if err != nil {
			logger.Warn().Err(err).Str("node", node.ID).Msg("Warning: node failed")
			node.State = compute.NodeStateError
			runErr.NodeErrors[node.ID] = compute.NodeError{Node: node, Err: err}
			continue
		}
		runErr.Successful = append(runErr.Successful, node)
	}

	if len(runErr.NodeErrors) > 0 {
		return nil, runErr
	}
	return runErr.Successful, nil
}

func (c *Client) awaitDeploy(ctx context.Context, d deployment) (compute.Node, error) {
	if d.jobID == "" {
		return d.node, fmt.Errorf("deploy of %s returned no job id", d.node.Name)
	}

	res, err := c.waitForJob(ctx, d.jobID)
	if err != nil {
		return d.node, err
	}

	node := nodeFromJSON(res.Get("virtualmachine"))
	if node.ID == "" {
		node.ID = d.node.ID
	}
	if node.Group == "" {
		node.Group = d.node.Group
	}
	return node, nil
}

// setupStaticNAT acquires a public address on the node's network and maps
// it to the node.
func (c *Client) setupStaticNAT(ctx context.Context, node compute.Node, tmpl compute.Template) error {
	params := url.Values{"zoneid": {tmpl.ZoneID}}
	if tmpl.NetworkID != "" {
		params.Set("networkid", tmpl.NetworkID)
	}

	res, err := c.callAsync(ctx, "associateIpAddress", params)
	if err != nil {
		return fmt.Errorf("failed to acquire public IP: %w", err)
	}
	ipID := res.Get("ipaddress.id").String()

	if _, err := c.call(ctx, "enableStaticNat", url.Values{
		"ipaddressid":      {ipID},
		"virtualmachineid": {node.ID},
	}); err != nil {
		return fmt.Errorf("failed to enable static NAT: %w", err)
	}
	return nil
}

// listNodes lists VMs matching params.
func (c *Client) listNodes(ctx context.Context, params url.Values) ([]compute.Node, error) {
	res, err := c.call(ctx, "listVirtualMachines", params)
	if err != nil {
		return nil, fmt.Errorf("failed to list virtual machines: %w", err)
	}

	var nodes []compute.Node
	for _, v := range res.Get("virtualmachine").Array() {
		nodes = append(nodes, nodeFromJSON(v))
	}
	return nodes, nil
}

// DestroyNodesInGroup destroys every VM whose group is group. It keeps
// going after a failure and reports every failure at the end.
func (c *Client) DestroyNodesInGroup(ctx context.Context, group string) ([]compute.Node, error) {
	// keyword matches names and groups loosely; filter exactly below
	nodes, err := c.listNodes(ctx, url.Values{"keyword": {group}})
	if err != nil {
		return nil, err
	}

	var (
		destroyed []compute.Node
		errs      []error
	)
	for _, n := range nodes {
		if n.Group != group {
			continue
		}
		if err := c.destroy(ctx, n.ID); err != nil {
			errs = append(errs, fmt.Errorf("failed to destroy node %s: %w", n.ID, err))
			continue
		}
		destroyed = append(destroyed, n)
	}

	return destroyed, errors.Join(errs...)
}

// DestroyNode destroys a VM. An unknown id is compute.ErrNotFound.
func (c *Client) DestroyNode(ctx context.Context, id string) error {
	nodes, err := c.listNodes(ctx, url.Values{"id": {id}})
	var apiErr *requester.APIError
	if errors.As(err, &apiErr) && apiErr.Code == errorCodeParam {
		// Ids that are not UUIDs are rejected as invalid parameters.
		return fmt.Errorf("node %s: %w", id, compute.ErrNotFound)
	}
	if err != nil {
		return err
	}
	if len(nodes) == 0 {
		return fmt.Errorf("node %s: %w", id, compute.ErrNotFound)
	}

	if err := c.destroy(ctx, id); err != nil {
		return fmt.Errorf("failed to destroy node %s: %w", id, err)
	}
	return nil
}

func (c *Client) destroy(ctx context.Context, id string) error {
	log.Ctx(ctx).Info().Str("node", id).Msg("Destroying node...")
	_, err := c.callAsync(ctx, "destroyVirtualMachine", url.Values{
		"id":      {id},
		"expunge": {"true"},
	})
	return err
}
