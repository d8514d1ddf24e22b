package libvirt

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/jbweber/nimbus/internal/compute"
	"github.com/jbweber/nimbus/internal/keystore"
	nimbuslibvirt "github.com/jbweber/nimbus/internal/libvirt"
	"github.com/jbweber/nimbus/internal/storage"
)

// ProviderName identifies this implementation in configuration.
const ProviderName = "libvirt"

const (
	// DefaultShutdownTimeout is how long to wait for graceful shutdown
	// before forcing.
	DefaultShutdownTimeout = 5 * time.Second

	// DefaultNetwork is used when a template names no network.
	DefaultNetwork = "default"

	defaultVCPUs     = 2
	defaultMemoryMiB = 2048
	defaultDiskGB    = 20

	shutdownPollInterval = 500 * time.Millisecond
)

// Config configures a Provider.
type Config struct {
	// Socket is the libvirt socket, DefaultSocket when empty.
	Socket  string
	Timeout time.Duration

	Pools storage.Pools

	// KeystoreDir holds the key pair files.
	KeystoreDir string

	// DNSDomain is appended to node names to form their FQDN.
	DNSDomain string

	ShutdownTimeout time.Duration
}

// Provider is a compute.Service backed by one libvirt hypervisor.
type Provider struct {
	lv      libvirtClient
	storage storageManager
	keys    keyStore
	client  *nimbuslibvirt.Client

	dnsDomain       string
	shutdownTimeout time.Duration
	shutdownPoll    time.Duration
	now             func() time.Time
}

var _ compute.Service = (*Provider)(nil)

// New connects to libvirt, makes sure the storage pools exist and opens
// the keystore. Close releases the connection.
func New(ctx context.Context, cfg Config) (*Provider, error) {
	keys, err := keystore.New(cfg.KeystoreDir)
	if err != nil {
		return nil, fmt.Errorf("failed to open keystore: %w", err)
	}

	log.Ctx(ctx).Debug().Str("socket", cfg.Socket).Msg("Connecting to libvirt...")
	client, err := nimbuslibvirt.ConnectWithContext(ctx, cfg.Socket, cfg.Timeout)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to libvirt: %w", err)
	}

	storageMgr := storage.NewManager(client.Libvirt(), cfg.Pools)
	if err := storageMgr.EnsurePools(ctx); err != nil {
		if cerr := client.Close(); cerr != nil {
			log.Ctx(ctx).Warn().Err(cerr).Msg("Warning: failed to close libvirt connection")
		}
		return nil, fmt.Errorf("failed to ensure storage pools: %w", err)
	}

	p := newProvider(client.Libvirt(), storageMgr, keys)
	p.client = client
	p.dnsDomain = cfg.DNSDomain
	if cfg.ShutdownTimeout > 0 {
		p.shutdownTimeout = cfg.ShutdownTimeout
	}
	return p, nil
}

// newProvider wires a provider from its dependencies.
func newProvider(lv libvirtClient, sm storageManager, keys keyStore) *Provider {
	return &Provider{
		lv:              lv,
		storage:         sm,
		keys:            keys,
		shutdownTimeout: DefaultShutdownTimeout,
		shutdownPoll:    shutdownPollInterval,
		now:             time.Now,
	}
}

// Close closes the libvirt connection.
func (p *Provider) Close() error {
	if p.client == nil {
		return nil
	}
	return p.client.Close()
}
