package cloudstack

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jbweber/nimbus/internal/compute"
	"github.com/jbweber/nimbus/internal/requester"
)

func TestNewClient_Validation(t *testing.T) {
	_, err := NewClient("ftp://cloud.example.com/client/api")
	assert.Error(t, err)

	_, err = NewClient("https://cloud.example.com/client/api", WithPollInterval(0))
	assert.Error(t, err)

	c, err := NewClient("https://cloud.example.com/client/api")
	require.NoError(t, err)
	assert.Equal(t, DefaultPollInterval, c.pollInterval)
	assert.Equal(t, DefaultJobTimeout, c.jobTimeout)
}

func TestParseResponse(t *testing.T) {
	t.Run("payload", func(t *testing.T) {
		res, err := parseResponse("listZones", 200, []byte(`{"listzonesresponse":{"count":1,"zone":[{"id":"z"}]}}`))
		require.NoError(t, err)
		assert.Equal(t, "z", res.Get("zone.0.id").String())
	})

	t.Run("empty list", func(t *testing.T) {
		res, err := parseResponse("listZones", 200, []byte(`{"listzonesresponse":{}}`))
		require.NoError(t, err)
		assert.Empty(t, res.Get("zone").Array())
	})

	t.Run("error payload", func(t *testing.T) {
		_, err := parseResponse("createNetwork", 431, []byte(`{"createnetworkresponse":{"uuidList":[],"errorcode":431,"cserrorcode":4350,"errortext":"Network with vlan 2 already exists"}}`))

		var apiErr *requester.APIError
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, 431, apiErr.StatusCode)
		assert.Equal(t, "431", apiErr.Code)
		assert.Equal(t, "Network with vlan 2 already exists", apiErr.Message)
		assert.ErrorIs(t, err, requester.ErrUnexpectedStatus)
	})

	t.Run("errorresponse wrapper", func(t *testing.T) {
		_, err := parseResponse("bogus", 432, []byte(`{"errorresponse":{"errorcode":432,"errortext":"The given command does not exist"}}`))
		assert.Equal(t, 432, requester.StatusCode(err))
		assert.Contains(t, err.Error(), "does not exist")
	})

	t.Run("non-JSON error", func(t *testing.T) {
		_, err := parseResponse("listZones", 502, []byte(`<html>Bad Gateway</html>`))
		assert.Equal(t, 502, requester.StatusCode(err))
	})

	t.Run("non-JSON success", func(t *testing.T) {
		_, err := parseResponse("listZones", 200, []byte(`<html></html>`))
		assert.ErrorIs(t, err, requester.ErrParsingBody)
	})

	t.Run("missing wrapper", func(t *testing.T) {
		_, err := parseResponse("listZones", 200, []byte(`{"other":{}}`))
		assert.ErrorIs(t, err, requester.ErrParsingBody)
	})
}

func TestClient_Credentials(t *testing.T) {
	f := newFakeCloudStack()
	c := newTestClient(t, f, WithAPIKey("key-123"), WithSessionKey("sess"))

	_, err := c.ListZones(context.Background())
	require.NoError(t, err)

	q := f.lastQuery("listZones")
	assert.Equal(t, "key-123", q.Get("apiKey"))
	assert.Equal(t, "sess", q.Get("sessionkey"))
	assert.Equal(t, "json", q.Get("response"))
}

func TestClient_ListZones(t *testing.T) {
	f := newFakeCloudStack()
	c := newTestClient(t, f)

	zones, err := c.ListZones(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []compute.Zone{{ID: "zone-1", Name: "Zone One"}, {ID: "zone-2", Name: "Zone Two"}}, zones)
}

func TestClient_ListNetworkOfferings(t *testing.T) {
	f := newFakeCloudStack()
	c := newTestClient(t, f)

	offerings, err := c.ListNetworkOfferings(context.Background(), compute.NetworkOfferingFilter{
		ZoneID:      "zone-1",
		SpecifyVLAN: compute.Bool(true),
	})
	require.NoError(t, err)

	require.Len(t, offerings, 1)
	assert.Equal(t, "off-vlan", offerings[0].ID)
	assert.True(t, offerings[0].SpecifyVLAN)
	assert.Equal(t, "zone-1", offerings[0].ZoneID)

	q := f.lastQuery("listNetworkOfferings")
	assert.Equal(t, "true", q.Get("specifyvlan"))
	assert.Equal(t, "zone-1", q.Get("zoneid"))
}

func TestClient_CreateAndListNetworks(t *testing.T) {
	f := newFakeCloudStack()
	c := newTestClient(t, f)
	ctx := context.Background()

	network, err := c.CreateNetwork(ctx, compute.NetworkSpec{
		ZoneID:     "zone-1",
		OfferingID: "off-vlan",
		Name:       "nimbus-vlan",
		VLAN:       "2",
		StartIP:    "192.168.1.2",
		Netmask:    "255.255.255.0",
		Gateway:    "192.168.1.1",
	})
	require.NoError(t, err)
	assert.Equal(t, "nimbus-vlan", network.Name)
	assert.Equal(t, "vlan://2", network.BroadcastURIString())

	q := f.lastQuery("createNetwork")
	assert.Equal(t, "2", q.Get("vlan"))
	assert.Equal(t, "192.168.1.2", q.Get("startip"))
	assert.Equal(t, "nimbus-vlan", q.Get("displaytext"))
	assert.Empty(t, q.Get("endip"))

	networks, err := c.ListNetworks(ctx, compute.ListNetworksOptions{
		ZoneID:      "zone-1",
		TrafficType: compute.TrafficTypeGuest,
		IsDefault:   compute.Bool(false),
		IsSystem:    compute.Bool(false),
	})
	require.NoError(t, err)
	require.Len(t, networks, 1)
	assert.Equal(t, network.ID, networks[0].ID)

	q = f.lastQuery("listNetworks")
	assert.Equal(t, "false", q.Get("isdefault"))
	assert.Equal(t, "Guest", q.Get("traffictype"))

	// Client side filtering
	networks, err = c.ListNetworks(ctx, compute.ListNetworksOptions{ZoneID: "zone-2"})
	require.NoError(t, err)
	assert.Empty(t, networks)
}

func TestClient_CreateNetwork_InvalidSpec(t *testing.T) {
	f := newFakeCloudStack()
	c := newTestClient(t, f)

	_, err := c.CreateNetwork(context.Background(), compute.NetworkSpec{
		ZoneID:  "zone-1",
		Name:    "n",
		StartIP: "192.168.1.2",
	})
	require.Error(t, err)
	assert.Zero(t, f.called("createNetwork"))
}

func TestClient_DeleteNetwork_WaitsForJob(t *testing.T) {
	f := newFakeCloudStack()
	f.pendingPolls = 3
	c := newTestClient(t, f)

	require.NoError(t, c.DeleteNetwork(context.Background(), "net-9"))
	assert.Equal(t, 4, f.called("queryAsyncJobResult"))
}

func TestClient_WaitForJob_Failure(t *testing.T) {
	f := newFakeCloudStack()
	c := newTestClient(t, f)

	f.mu.Lock()
	f.jobs["job-x"] = &fakeJob{status: 2, result: obj{"errorcode": 530, "errortext": "Failed to destroy network"}}
	f.mu.Unlock()

	_, err := c.waitForJob(context.Background(), "job-x")

	var jobErr *JobError
	require.ErrorAs(t, err, &jobErr)
	assert.Equal(t, "job-x", jobErr.JobID)
	assert.Equal(t, int64(530), jobErr.Code)
	assert.Equal(t, "Failed to destroy network", jobErr.Message)
	assert.Equal(t, 1, f.called("queryAsyncJobResult"))
}

func TestClient_WaitForJob_Timeout(t *testing.T) {
	f := newFakeCloudStack()
	c := newTestClient(t, f, WithJobTimeout(5*time.Millisecond))

	f.mu.Lock()
	f.jobs["job-slow"] = &fakeJob{polls: 1000, status: 1}
	f.mu.Unlock()

	_, err := c.waitForJob(context.Background(), "job-slow")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "did not finish")
	assert.Equal(t, 6, f.called("queryAsyncJobResult"))
}

func TestClient_WaitForJob_UnknownJob(t *testing.T) {
	f := newFakeCloudStack()
	c := newTestClient(t, f)

	_, err := c.waitForJob(context.Background(), "nope")
	assert.Equal(t, 431, requester.StatusCode(err))
	assert.Equal(t, 1, f.called("queryAsyncJobResult"))
}

func TestClient_WaitForJob_Canceled(t *testing.T) {
	f := newFakeCloudStack()
	c := newTestClient(t, f, WithJobTimeout(time.Minute))

	f.mu.Lock()
	f.jobs["job-slow"] = &fakeJob{polls: 1 << 30, status: 1}
	f.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := c.waitForJob(ctx, "job-slow")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

var nodeNamePattern = regexp.MustCompile(`^web-[0-9a-f]{4}$`)

func testTemplate() compute.Template {
	return compute.Template{ImageID: "tmpl-1", HardwareID: "small", ZoneID: "zone-1", NetworkID: "net-1"}
}

func TestClient_CreateNodesInGroup(t *testing.T) {
	f := newFakeCloudStack()
	f.pendingPolls = 1
	c := newTestClient(t, f)

	nodes, err := c.CreateNodesInGroup(context.Background(), "web", 2, testTemplate())
	require.NoError(t, err)
	require.Len(t, nodes, 2)

	for _, n := range nodes {
		assert.Regexp(t, nodeNamePattern, n.Name)
		assert.Equal(t, "web", n.Group)
		assert.Equal(t, compute.NodeStateRunning, n.State)
		assert.Len(t, n.PrivateIPs, 1)
	}

	q := f.lastQuery("deployVirtualMachine")
	assert.Equal(t, "web", q.Get("group"))
	assert.Equal(t, "net-1", q.Get("networkids"))
	assert.Equal(t, "small", q.Get("serviceofferingid"))
	assert.Equal(t, "tmpl-1", q.Get("templateid"))
	assert.Empty(t, q.Get("keypair"))
	assert.Zero(t, f.called("associateIpAddress"))
}

func TestClient_CreateNodesInGroup_StaticNATAndKeyPair(t *testing.T) {
	f := newFakeCloudStack()
	c := newTestClient(t, f)

	tmpl := testTemplate()
	tmpl.KeyPair = "my-key"
	tmpl.SetupStaticNAT = true

	nodes, err := c.CreateNodesInGroup(context.Background(), "web", 1, tmpl)
	require.NoError(t, err)
	require.Len(t, nodes, 1)

	assert.Equal(t, "my-key", f.lastQuery("deployVirtualMachine").Get("keypair"))
	assert.Equal(t, 1, f.called("associateIpAddress"))
	assert.Equal(t, nodes[0].ID, f.lastQuery("enableStaticNat").Get("virtualmachineid"))
}

func TestClient_CreateNodesInGroup_PartialFailure(t *testing.T) {
	f := newFakeCloudStack()
	f.failDeploys[2] = true
	f.rejectDeploys[3] = true
	c := newTestClient(t, f)

	nodes, err := c.CreateNodesInGroup(context.Background(), "web", 3, testTemplate())
	assert.Nil(t, nodes)

	var runErr *compute.RunNodesError
	require.ErrorAs(t, err, &runErr)
	assert.Equal(t, "web", runErr.Group)
	require.Len(t, runErr.Successful, 1)
	require.Len(t, runErr.NodeErrors, 2)

	all := runErr.AllNodes()
	assert.Len(t, all, 3)

	// The failed job left a VM behind, the rejected deploy did not
	var jobErr *JobError
	assert.ErrorAs(t, err, &jobErr)
	assert.Equal(t, 535, requester.StatusCode(err))
}

func TestClient_CreateNodesInGroup_Validation(t *testing.T) {
	f := newFakeCloudStack()
	c := newTestClient(t, f)
	ctx := context.Background()

	_, err := c.CreateNodesInGroup(ctx, "Bad_Group", 1, testTemplate())
	assert.Error(t, err)

	_, err = c.CreateNodesInGroup(ctx, "web", 0, testTemplate())
	assert.Error(t, err)

	_, err = c.CreateNodesInGroup(ctx, "web", 1, compute.Template{ZoneID: "zone-1"})
	assert.Error(t, err)

	assert.Zero(t, f.called("deployVirtualMachine"))
}

func TestClient_DestroyNodesInGroup(t *testing.T) {
	f := newFakeCloudStack()
	c := newTestClient(t, f)
	ctx := context.Background()

	_, err := c.CreateNodesInGroup(ctx, "web", 2, testTemplate())
	require.NoError(t, err)
	// Matches the keyword, but is in another group
	other, err := c.CreateNodesInGroup(ctx, "web-admin", 1, testTemplate())
	require.NoError(t, err)

	destroyed, err := c.DestroyNodesInGroup(ctx, "web")
	require.NoError(t, err)
	assert.Len(t, destroyed, 2)

	f.mu.Lock()
	remaining := len(f.vms)
	f.mu.Unlock()
	assert.Equal(t, 1, remaining)

	require.NoError(t, c.DestroyNode(ctx, other[0].ID))
	assert.Equal(t, "true", f.lastQuery("destroyVirtualMachine").Get("expunge"))
}

func TestClient_DestroyNode_NotFound(t *testing.T) {
	f := newFakeCloudStack()
	c := newTestClient(t, f)

	err := c.DestroyNode(context.Background(), "vm-404")
	assert.ErrorIs(t, err, compute.ErrNotFound)

	// Names of deploys that never got an id
	err = c.DestroyNode(context.Background(), "web-1a2b")
	assert.ErrorIs(t, err, compute.ErrNotFound)

	assert.Zero(t, f.called("destroyVirtualMachine"))
}

func TestClient_KeyPairs(t *testing.T) {
	f := newFakeCloudStack()
	c := newTestClient(t, f)
	ctx := context.Background()

	// Deleting a missing key pair is not an error and sends no delete
	require.NoError(t, c.DeleteKeyPair(ctx, "nimbus-keypair"))
	assert.Zero(t, f.called("deleteSSHKeyPair"))

	kp, err := c.CreateKeyPair(ctx, "nimbus-keypair")
	require.NoError(t, err)
	assert.Equal(t, "nimbus-keypair", kp.Name)
	assert.Contains(t, kp.PrivateKey, "PRIVATE KEY")
	assert.NotEmpty(t, kp.Fingerprint)

	_, err = c.CreateKeyPair(ctx, "nimbus-keypair")
	assert.Error(t, err)

	require.NoError(t, c.DeleteKeyPair(ctx, "nimbus-keypair"))
	assert.Equal(t, 1, f.called("deleteSSHKeyPair"))
}

func TestClient_RegisterKeyPair(t *testing.T) {
	f := newFakeCloudStack()
	c := newTestClient(t, f)

	generated, err := compute.GenerateKeyPair("imported")
	require.NoError(t, err)

	kp, err := c.RegisterKeyPair(context.Background(), "imported", generated.PublicKey)
	require.NoError(t, err)
	assert.Equal(t, generated.PublicKey, kp.PublicKey)
	assert.Equal(t, generated.PublicKey, f.lastQuery("registerSSHKeyPair").Get("publickey"))

	_, err = c.RegisterKeyPair(context.Background(), "bad", "not-a-key")
	assert.Error(t, err)
	assert.Equal(t, 1, f.called("registerSSHKeyPair"))
}

func TestClient_RunNetworkExperiment(t *testing.T) {
	f := newFakeCloudStack()
	f.pendingPolls = 1
	c := newTestClient(t, f)

	// A leftover network from an earlier run on the same VLAN
	f.networks = append(f.networks, obj{
		"id": "net-stale", "name": "old", "zoneid": "zone-1", "traffictype": "Guest",
		"isdefault": false, "issystem": false, "broadcasturi": "vlan://2",
	})

	tmpl := compute.Template{ImageID: "tmpl-1", HardwareID: "small"}
	res, err := compute.RunNetworkExperiment(context.Background(), c, compute.ExperimentSpec{
		Group:    "nimbus-vlan",
		VLAN:     "2",
		Template: tmpl,
		StartIP:  "192.168.1.2",
		Netmask:  "255.255.255.0",
		Gateway:  "192.168.1.1",
	})
	require.NoError(t, err)

	assert.Equal(t, "zone-1", res.Zone.ID)
	assert.Equal(t, "off-vlan", res.Offering.ID)
	require.Len(t, res.DeletedNetworks, 1)
	assert.Equal(t, "net-stale", res.DeletedNetworks[0].ID)
	assert.Len(t, res.Nodes, 1)

	// Everything was torn down
	f.mu.Lock()
	defer f.mu.Unlock()
	assert.Empty(t, f.vms)
	assert.Empty(t, f.networks)
}

func TestClient_RunNetworkExperiment_PartialFailureCleansUp(t *testing.T) {
	f := newFakeCloudStack()
	f.failDeploys[1] = true
	c := newTestClient(t, f)

	_, err := compute.RunNetworkExperiment(context.Background(), c, compute.ExperimentSpec{
		Group:    "nimbus-vlan",
		VLAN:     "3",
		Count:    2,
		Template: compute.Template{ImageID: "tmpl-1", HardwareID: "small"},
	})
	require.Error(t, err)

	var runErr *compute.RunNodesError
	require.True(t, errors.As(err, &runErr))

	f.mu.Lock()
	defer f.mu.Unlock()
	assert.Empty(t, f.vms, "the errored VM must be destroyed too")
	assert.Empty(t, f.networks)
}
