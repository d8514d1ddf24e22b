// Package provider builds the queue and compute services named in the
// configuration.
package provider

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/jbweber/nimbus/internal/compute"
	"github.com/jbweber/nimbus/internal/compute/cloudstack"
	computelibvirt "github.com/jbweber/nimbus/internal/compute/libvirt"
	"github.com/jbweber/nimbus/internal/config"
	"github.com/jbweber/nimbus/internal/queue"
	"github.com/jbweber/nimbus/internal/queue/azure"
	"github.com/jbweber/nimbus/internal/storage"
)

// QueueProviders and ComputeProviders list the supported provider names.
var (
	QueueProviders   = []string{azure.ProviderName}
	ComputeProviders = []string{cloudstack.ProviderName, computelibvirt.ProviderName}
)

// nopCloser is returned for services holding no connection.
type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// NewQueueService returns the queue service selected by cfg.Provider.
func NewQueueService(cfg config.QueueConfig) (queue.Service, error) {
	switch cfg.Provider {
	case azure.ProviderName:
		if cfg.Endpoint == "" {
			return nil, fmt.Errorf("queue.endpoint is required for provider %s", cfg.Provider)
		}
		opts := []azure.ClientOption{azure.WithTimeout(cfg.Timeout)}
		if cfg.APIVersion != "" {
			opts = append(opts, azure.WithAPIVersion(cfg.APIVersion))
		}
		if cfg.SASToken != "" {
			opts = append(opts, azure.WithSASToken(cfg.SASToken))
		}
		return azure.NewClient(cfg.Endpoint, opts...)
	default:
		return nil, unknownProvider("queue", cfg.Provider, QueueProviders)
	}
}

// NewComputeService returns the compute service selected by cfg.Provider.
// The closer releases provider connections and must be closed by the
// caller.
func NewComputeService(ctx context.Context, cfg config.ComputeConfig) (compute.Service, io.Closer, error) {
	switch cfg.Provider {
	case cloudstack.ProviderName:
		if cfg.Endpoint == "" {
			return nil, nil, fmt.Errorf("compute.endpoint is required for provider %s", cfg.Provider)
		}
		opts := []cloudstack.ClientOption{
			cloudstack.WithTimeout(cfg.Timeout),
		}
		if cfg.JobPollInterval > 0 {
			opts = append(opts, cloudstack.WithPollInterval(cfg.JobPollInterval))
		}
		if cfg.JobTimeout > 0 {
			opts = append(opts, cloudstack.WithJobTimeout(cfg.JobTimeout))
		}
		if cfg.APIKey != "" {
			opts = append(opts, cloudstack.WithAPIKey(cfg.APIKey))
		}
		if cfg.SessionKey != "" {
			opts = append(opts, cloudstack.WithSessionKey(cfg.SessionKey))
		}
		c, err := cloudstack.NewClient(cfg.Endpoint, opts...)
		if err != nil {
			return nil, nil, err
		}
		return c, nopCloser{}, nil

	case computelibvirt.ProviderName:
		lv := cfg.Libvirt
		p, err := computelibvirt.New(ctx, computelibvirt.Config{
			Socket:  lv.Socket,
			Timeout: cfg.Timeout,
			Pools: storage.Pools{
				Images: storage.Pool{Name: lv.ImagesPool, Path: lv.ImagesPath},
				Nodes:  storage.Pool{Name: lv.NodesPool, Path: lv.NodesPath},
			},
			KeystoreDir:     lv.Keystore,
			DNSDomain:       lv.DNSDomain,
			ShutdownTimeout: lv.ShutdownTimeout,
		})
		if err != nil {
			return nil, nil, err
		}
		return p, p, nil

	default:
		return nil, nil, unknownProvider("compute", cfg.Provider, ComputeProviders)
	}
}

func unknownProvider(kind, name string, supported []string) error {
	return fmt.Errorf("unknown %s provider %q (supported: %s)", kind, name, strings.Join(supported, ", "))
}
