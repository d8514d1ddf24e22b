// Package config loads the nimbus configuration file.
//
// The file is YAML. Secrets may instead come from the environment, which
// in turn may be seeded from a .env file.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Environment variables overriding secrets from the file.
const (
	EnvAzureSASToken        = "NIMBUS_AZURE_SAS_TOKEN"
	EnvCloudStackAPIKey     = "NIMBUS_CLOUDSTACK_API_KEY"
	EnvCloudStackSessionKey = "NIMBUS_CLOUDSTACK_SESSION_KEY"
)

// Defaults applied by ApplyDefaults.
const (
	DefaultQueueProvider   = "azure-queue-storage"
	DefaultQueueAPIVersion = "2017-04-17"
	DefaultTimeout         = 30 * time.Second

	DefaultComputeProvider = "cloudstack"
	DefaultJobPollInterval = 2 * time.Second
	DefaultJobTimeout      = 10 * time.Minute

	DefaultLibvirtSocket   = "/var/run/libvirt/libvirt-sock"
	DefaultImagesPool      = "nimbus-images"
	DefaultNodesPool       = "nimbus-nodes"
	DefaultKeystore        = "~/.local/share/nimbus/keypairs"
	DefaultShutdownTimeout = 5 * time.Second
)

// Config is the whole configuration file.
type Config struct {
	Queue   QueueConfig   `yaml:"queue"`
	Compute ComputeConfig `yaml:"compute"`
}

// QueueConfig selects and configures the queue provider.
type QueueConfig struct {
	Provider   string        `yaml:"provider"`
	Endpoint   string        `yaml:"endpoint"`
	APIVersion string        `yaml:"api_version,omitempty"`
	SASToken   string        `yaml:"sas_token,omitempty"`
	Timeout    time.Duration `yaml:"timeout,omitempty"`
}

// ComputeConfig selects and configures the compute provider.
type ComputeConfig struct {
	Provider string `yaml:"provider"`

	// CloudStack
	Endpoint        string        `yaml:"endpoint,omitempty"`
	APIKey          string        `yaml:"api_key,omitempty"`
	SessionKey      string        `yaml:"session_key,omitempty"`
	JobPollInterval time.Duration `yaml:"job_poll_interval,omitempty"`
	JobTimeout      time.Duration `yaml:"job_timeout,omitempty"`
	Timeout         time.Duration `yaml:"timeout,omitempty"`

	Libvirt LibvirtConfig `yaml:"libvirt,omitempty"`
}

// LibvirtConfig configures the libvirt compute provider.
type LibvirtConfig struct {
	Socket          string        `yaml:"socket,omitempty"`
	ImagesPool      string        `yaml:"images_pool,omitempty"`
	ImagesPath      string        `yaml:"images_path,omitempty"`
	NodesPool       string        `yaml:"nodes_pool,omitempty"`
	NodesPath       string        `yaml:"nodes_path,omitempty"`
	Keystore        string        `yaml:"keystore,omitempty"`
	DNSDomain       string        `yaml:"dns_domain,omitempty"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout,omitempty"`
}

// Default returns the configuration used when there is no file.
func Default() *Config {
	cfg := &Config{}
	cfg.ApplyDefaults()
	return cfg
}

// DefaultPath returns $XDG_CONFIG_HOME/nimbus/config.yaml, falling back
// to ~/.config/nimbus/config.yaml.
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "config.yaml"
	}
	return filepath.Join(dir, "nimbus", "config.yaml")
}

// LoadFromFile loads, completes and validates a configuration file.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg, err := LoadFromYAML(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// LoadFromYAML is LoadFromFile for a document already in memory. Unknown
// keys are an error.
func LoadFromYAML(data []byte) (*Config, error) {
	var cfg Config

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	cfg.ApplyEnv(os.LookupEnv)
	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// LoadOrDefault loads path. When path is the default path and no file
// exists there, the defaults completed from the environment are used.
func LoadOrDefault(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath()
		if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
			cfg := &Config{}
			cfg.ApplyEnv(os.LookupEnv)
			cfg.ApplyDefaults()
			return cfg, cfg.Validate()
		}
	}
	return LoadFromFile(path)
}

// LoadDotEnv loads .env files into the process environment. Variables
// already set win. Missing files are skipped.
func LoadDotEnv(paths ...string) error {
	for _, p := range paths {
		if _, err := os.Stat(p); errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("failed to load %s: %w", p, err)
		}
	}
	return nil
}

// ApplyEnv overrides secrets with the environment. lookup is usually
// os.LookupEnv.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	if v, ok := lookup(EnvAzureSASToken); ok && v != "" {
		c.Queue.SASToken = v
	}
	if v, ok := lookup(EnvCloudStackAPIKey); ok && v != "" {
		c.Compute.APIKey = v
	}
	if v, ok := lookup(EnvCloudStackSessionKey); ok && v != "" {
		c.Compute.SessionKey = v
	}
}

// ApplyDefaults fills every unset optional field.
func (c *Config) ApplyDefaults() {
	q := &c.Queue
	if q.Provider == "" {
		q.Provider = DefaultQueueProvider
	}
	if q.APIVersion == "" {
		q.APIVersion = DefaultQueueAPIVersion
	}
	if q.Timeout == 0 {
		q.Timeout = DefaultTimeout
	}

	cc := &c.Compute
	if cc.Provider == "" {
		cc.Provider = DefaultComputeProvider
	}
	if cc.JobPollInterval == 0 {
		cc.JobPollInterval = DefaultJobPollInterval
	}
	if cc.JobTimeout == 0 {
		cc.JobTimeout = DefaultJobTimeout
	}
	if cc.Timeout == 0 {
		cc.Timeout = DefaultTimeout
	}

	lv := &cc.Libvirt
	if lv.Socket == "" {
		lv.Socket = DefaultLibvirtSocket
	}
	if lv.ImagesPool == "" {
		lv.ImagesPool = DefaultImagesPool
	}
	if lv.NodesPool == "" {
		lv.NodesPool = DefaultNodesPool
	}
	if lv.Keystore == "" {
		lv.Keystore = DefaultKeystore
	}
	if lv.ShutdownTimeout == 0 {
		lv.ShutdownTimeout = DefaultShutdownTimeout
	}
}

// Validate checks the structure of the configuration. It does not check
// that endpoints are reachable or that provider names are known.
func (c *Config) Validate() error {
	if err := validateEndpoint(c.Queue.Endpoint); err != nil {
		return fmt.Errorf("queue.endpoint: %w", err)
	}
	if c.Queue.Timeout < 0 {
		return fmt.Errorf("queue.timeout: must not be negative, got %v", c.Queue.Timeout)
	}

	cc := c.Compute
	if err := validateEndpoint(cc.Endpoint); err != nil {
		return fmt.Errorf("compute.endpoint: %w", err)
	}
	durations := []struct {
		field string
		value time.Duration
	}{
		{"compute.job_poll_interval", cc.JobPollInterval},
		{"compute.job_timeout", cc.JobTimeout},
		{"compute.timeout", cc.Timeout},
		{"compute.libvirt.shutdown_timeout", cc.Libvirt.ShutdownTimeout},
	}
	for _, d := range durations {
		if d.value < 0 {
			return fmt.Errorf("%s: must not be negative, got %v", d.field, d.value)
		}
	}
	if cc.JobTimeout > 0 && cc.JobPollInterval > cc.JobTimeout {
		return fmt.Errorf("compute.job_poll_interval: %v is longer than job_timeout %v", cc.JobPollInterval, cc.JobTimeout)
	}
	if cc.Libvirt.ImagesPool != "" && cc.Libvirt.ImagesPool == cc.Libvirt.NodesPool {
		return fmt.Errorf("compute.libvirt.nodes_pool: must differ from images_pool %q", cc.Libvirt.ImagesPool)
	}

	return nil
}

func validateEndpoint(endpoint string) error {
	if endpoint == "" {
		return nil
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return fmt.Errorf("invalid URL %q: %w", endpoint, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("must be an http or https URL, got %q", endpoint)
	}
	if u.Host == "" {
		return fmt.Errorf("missing host in %q", endpoint)
	}
	return nil
}
