package libvirt

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/digitalocean/go-libvirt"
	"github.com/google/uuid"
	"libvirt.org/go/libvirtxml"

	"github.com/jbweber/nimbus/internal/compute"
	"github.com/jbweber/nimbus/internal/keystore"
	"github.com/jbweber/nimbus/internal/storage"
)

const testHostname = "hv01.example.com"

type mockNetwork struct {
	net       libvirt.Network
	xml       string
	active    bool
	autostart bool
}

type mockDomain struct {
	dom       libvirt.Domain
	xml       string
	state     int32
	autostart bool
	metadata  string
}

// mockLibvirtClient is an in-memory hypervisor.
type mockLibvirtClient struct {
	mu sync.Mutex

	networks map[string]*mockNetwork
	domains  map[string]*mockDomain

	// Configurable behavior
	hostnameErr       error
	networkCreateErr  error
	domainDefineErr   error
	domainCreateFunc  func(dom libvirt.Domain) error
	setMetadataErr    error
	undefineDomainErr error
	// domainLookupErr, networkLookupErr and getMetadataErr stand in for
	// transport failures of the lookup calls.
	domainLookupErr  error
	networkLookupErr error
	getMetadataErr   error
	// ignoreShutdown leaves domains running after DomainShutdown.
	ignoreShutdown bool

	// Call tracking
	networkUndefineCalls []string
	domainShutdownCalls  []string
	domainDestroyCalls   []string
	domainUndefineCalls  []string
}

func newMockLibvirtClient() *mockLibvirtClient {
	return &mockLibvirtClient{
		networks: map[string]*mockNetwork{},
		domains:  map[string]*mockDomain{},
	}
}

var (
	errMockNotFound   = errors.New("not found")
	errMockNoNetwork  = libvirt.Error{Code: uint32(libvirt.ErrNoNetwork), Message: "network not found"}
	errMockNoDomain   = libvirt.Error{Code: uint32(libvirt.ErrNoDomain), Message: "domain not found"}
	errMockNoMetadata = libvirt.Error{Code: uint32(libvirt.ErrNoDomainMetadata), Message: "metadata not found"}
)

func (m *mockLibvirtClient) ConnectGetHostname() (string, error) {
	if m.hostnameErr != nil {
		return "", m.hostnameErr
	}
	return testHostname, nil
}

// addNetwork defines an existing network from its XML.
func (m *mockLibvirtClient) addNetwork(doc string, active bool) libvirt.Network {
	net, err := m.NetworkDefineXML(doc)
	if err != nil {
		panic(err)
	}
	m.networks[net.Name].active = active
	return net
}

func (m *mockLibvirtClient) ConnectListAllNetworks(_ int32, _ libvirt.ConnectListAllNetworksFlags) ([]libvirt.Network, uint32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	names := make([]string, 0, len(m.networks))
	for name := range m.networks {
		names = append(names, name)
	}
	sort.Strings(names)

	nets := make([]libvirt.Network, 0, len(names))
	for _, name := range names {
		nets = append(nets, m.networks[name].net)
	}
	return nets, uint32(len(nets)), nil
}

func (m *mockLibvirtClient) NetworkGetXMLDesc(net libvirt.Network, _ uint32) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.networks[net.Name]
	if !ok {
		return "", errMockNotFound
	}
	return n.xml, nil
}

func (m *mockLibvirtClient) NetworkLookupByUUID(id libvirt.UUID) (libvirt.Network, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.networkLookupErr != nil {
		return libvirt.Network{}, m.networkLookupErr
	}
	for _, n := range m.networks {
		if n.net.UUID == id {
			return n.net, nil
		}
	}
	return libvirt.Network{}, errMockNoNetwork
}

func (m *mockLibvirtClient) NetworkLookupByName(name string) (libvirt.Network, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.networkLookupErr != nil {
		return libvirt.Network{}, m.networkLookupErr
	}
	n, ok := m.networks[name]
	if !ok {
		return libvirt.Network{}, errMockNoNetwork
	}
	return n.net, nil
}

func (m *mockLibvirtClient) NetworkDefineXML(doc string) (libvirt.Network, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var def libvirtxml.Network
	if err := def.Unmarshal(doc); err != nil {
		return libvirt.Network{}, err
	}
	if _, ok := m.networks[def.Name]; ok {
		return libvirt.Network{}, fmt.Errorf("network %s already exists", def.Name)
	}
	id, err := uuid.Parse(def.UUID)
	if err != nil {
		return libvirt.Network{}, err
	}

	net := libvirt.Network{Name: def.Name, UUID: libvirt.UUID(id)}
	m.networks[def.Name] = &mockNetwork{net: net, xml: doc}
	return net, nil
}

func (m *mockLibvirtClient) NetworkCreate(net libvirt.Network) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.networkCreateErr != nil {
		return m.networkCreateErr
	}
	m.networks[net.Name].active = true
	return nil
}

func (m *mockLibvirtClient) NetworkSetAutostart(net libvirt.Network, autostart int32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.networks[net.Name].autostart = autostart == 1
	return nil
}

func (m *mockLibvirtClient) NetworkIsActive(net libvirt.Network) (int32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.networks[net.Name]
	if !ok {
		return 0, errMockNotFound
	}
	if n.active {
		return 1, nil
	}
	return 0, nil
}

func (m *mockLibvirtClient) NetworkDestroy(net libvirt.Network) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.networks[net.Name]
	if !ok || !n.active {
		return errors.New("network is not active")
	}
	n.active = false
	return nil
}

func (m *mockLibvirtClient) NetworkUndefine(net libvirt.Network) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.networkUndefineCalls = append(m.networkUndefineCalls, net.Name)
	if _, ok := m.networks[net.Name]; !ok {
		return errMockNotFound
	}
	delete(m.networks, net.Name)
	return nil
}

// addDomain adds a domain that nimbus didn't necessarily create.
func (m *mockLibvirtClient) addDomain(name string, state int32, metadata string) {
	m.domains[name] = &mockDomain{dom: libvirt.Domain{Name: name}, state: state, metadata: metadata}
}

func (m *mockLibvirtClient) domainNames() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	names := make([]string, 0, len(m.domains))
	for name := range m.domains {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (m *mockLibvirtClient) ConnectListAllDomains(_ int32, _ libvirt.ConnectListAllDomainsFlags) ([]libvirt.Domain, uint32, error) {
	names := m.domainNames()

	m.mu.Lock()
	defer m.mu.Unlock()
	doms := make([]libvirt.Domain, 0, len(names))
	for _, name := range names {
		doms = append(doms, m.domains[name].dom)
	}
	return doms, uint32(len(doms)), nil
}

func (m *mockLibvirtClient) DomainLookupByName(name string) (libvirt.Domain, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.domainLookupErr != nil {
		return libvirt.Domain{}, m.domainLookupErr
	}
	d, ok := m.domains[name]
	if !ok {
		return libvirt.Domain{}, errMockNoDomain
	}
	return d.dom, nil
}

func (m *mockLibvirtClient) DomainDefineXML(doc string) (libvirt.Domain, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.domainDefineErr != nil {
		return libvirt.Domain{}, m.domainDefineErr
	}

	var def libvirtxml.Domain
	if err := def.Unmarshal(doc); err != nil {
		return libvirt.Domain{}, err
	}
	dom := libvirt.Domain{Name: def.Name}
	m.domains[def.Name] = &mockDomain{dom: dom, xml: doc, state: domainStateShutoff}
	return dom, nil
}

func (m *mockLibvirtClient) DomainSetAutostart(dom libvirt.Domain, autostart int32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.domains[dom.Name].autostart = autostart == 1
	return nil
}

func (m *mockLibvirtClient) DomainCreate(dom libvirt.Domain) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.domainCreateFunc != nil {
		if err := m.domainCreateFunc(dom); err != nil {
			return err
		}
	}
	m.domains[dom.Name].state = domainStateRunning
	return nil
}

func (m *mockLibvirtClient) DomainGetState(dom libvirt.Domain, _ uint32) (int32, int32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.domains[dom.Name]
	if !ok {
		return 0, 0, errMockNotFound
	}
	return d.state, 0, nil
}

func (m *mockLibvirtClient) DomainShutdown(dom libvirt.Domain) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.domainShutdownCalls = append(m.domainShutdownCalls, dom.Name)
	if !m.ignoreShutdown {
		m.domains[dom.Name].state = domainStateShutoff
	}
	return nil
}

func (m *mockLibvirtClient) DomainDestroy(dom libvirt.Domain) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.domainDestroyCalls = append(m.domainDestroyCalls, dom.Name)
	d, ok := m.domains[dom.Name]
	if !ok || d.state != domainStateRunning {
		return errors.New("domain is not running")
	}
	d.state = domainStateShutoff
	return nil
}

func (m *mockLibvirtClient) DomainUndefineFlags(dom libvirt.Domain, _ libvirt.DomainUndefineFlagsValues) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.domainUndefineCalls = append(m.domainUndefineCalls, dom.Name)
	if m.undefineDomainErr != nil {
		return m.undefineDomainErr
	}
	delete(m.domains, dom.Name)
	return nil
}

func (m *mockLibvirtClient) DomainSetMetadata(dom libvirt.Domain, _ int32, md libvirt.OptString, _ libvirt.OptString, _ libvirt.OptString, _ libvirt.DomainModificationImpact) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.setMetadataErr != nil {
		return m.setMetadataErr
	}
	m.domains[dom.Name].metadata = md[0]
	return nil
}

func (m *mockLibvirtClient) DomainGetMetadata(dom libvirt.Domain, _ int32, _ libvirt.OptString, _ libvirt.DomainModificationImpact) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getMetadataErr != nil {
		return "", m.getMetadataErr
	}
	d, ok := m.domains[dom.Name]
	if !ok || d.metadata == "" {
		return "", errMockNoMetadata
	}
	return d.metadata, nil
}

// mockStorageManager keeps volume names per pool.
type mockStorageManager struct {
	mu sync.Mutex

	images  map[string]bool
	volumes map[string][]storage.VolumeSpec
	data    map[string][]byte

	// Configurable behavior
	imageExistsErr error
	createErr      map[string]error // by volume name suffix
	writeErr       error
}

func newMockStorageManager(images ...string) *mockStorageManager {
	m := &mockStorageManager{
		images:    map[string]bool{},
		volumes:   map[string][]storage.VolumeSpec{},
		data:      map[string][]byte{},
		createErr: map[string]error{},
	}
	for _, img := range images {
		m.images[img] = true
	}
	return m
}

func (m *mockStorageManager) ImagesPool() string { return storage.DefaultImagesPool }
func (m *mockStorageManager) NodesPool() string  { return storage.DefaultNodesPool }

func (m *mockStorageManager) ImageExists(_ context.Context, image string) (bool, error) {
	if m.imageExistsErr != nil {
		return false, m.imageExistsErr
	}
	return m.images[image], nil
}

func (m *mockStorageManager) CreateVolume(_ context.Context, pool string, spec storage.VolumeSpec) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for suffix, err := range m.createErr {
		if strings.HasSuffix(spec.Name, suffix) {
			return err
		}
	}
	if err := spec.Validate(); err != nil {
		return err
	}
	m.volumes[pool] = append(m.volumes[pool], spec)
	return nil
}

func (m *mockStorageManager) WriteVolumeData(_ context.Context, _ string, volume string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.writeErr != nil {
		return m.writeErr
	}
	m.data[volume] = data
	return nil
}

func (m *mockStorageManager) DeleteVolumesWithPrefix(_ context.Context, pool, prefix string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var kept []storage.VolumeSpec
	deleted := 0
	for _, v := range m.volumes[pool] {
		if strings.HasPrefix(v.Name, prefix) {
			deleted++
			continue
		}
		kept = append(kept, v)
	}
	m.volumes[pool] = kept
	return deleted, nil
}

func (m *mockStorageManager) volumeNames(pool string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var names []string
	for _, v := range m.volumes[pool] {
		names = append(names, v.Name)
	}
	sort.Strings(names)
	return names
}

// mockKeyStore keeps key pairs in memory.
type mockKeyStore struct {
	mu    sync.Mutex
	pairs map[string]compute.KeyPair

	deleteErr error
}

func newMockKeyStore() *mockKeyStore {
	return &mockKeyStore{pairs: map[string]compute.KeyPair{}}
}

func (m *mockKeyStore) Save(kp *compute.KeyPair) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.pairs[kp.Name]; ok {
		return fmt.Errorf("%w: %s", keystore.ErrExists, kp.Name)
	}
	m.pairs[kp.Name] = *kp
	return nil
}

func (m *mockKeyStore) Load(name string) (*keystore.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	kp, ok := m.pairs[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", keystore.ErrNotFound, name)
	}
	return &keystore.Entry{KeyPair: kp, CreatedAt: time.Now()}, nil
}

func (m *mockKeyStore) Delete(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.deleteErr != nil {
		return m.deleteErr
	}
	if _, ok := m.pairs[name]; !ok {
		return fmt.Errorf("%w: %s", keystore.ErrNotFound, name)
	}
	delete(m.pairs, name)
	return nil
}

// newTestProvider wires a provider to fresh mocks with the image
// "ubuntu-24.04.qcow2" available.
func newTestProvider() (*Provider, *mockLibvirtClient, *mockStorageManager, *mockKeyStore) {
	lv := newMockLibvirtClient()
	sm := newMockStorageManager("ubuntu-24.04.qcow2")
	keys := newMockKeyStore()

	p := newProvider(lv, sm, keys)
	p.shutdownTimeout = 200 * time.Millisecond
	p.shutdownPoll = 10 * time.Millisecond
	p.now = func() time.Time { return time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC) }
	return p, lv, sm, keys
}
