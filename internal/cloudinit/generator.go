// Package cloudinit renders the NoCloud seed that injects a node's host
// name and key pair into its first boot.
//
// See https://cloudinit.readthedocs.io/en/latest/reference/datasources/nocloud.html
package cloudinit

import (
	"errors"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// NodeConfig is the per-node input of the seed.
type NodeConfig struct {
	// Name becomes the host name and the instance id.
	Name string
	// Domain is appended to Name to form the FQDN when set.
	Domain            string
	SSHAuthorizedKeys []string
}

func (c *NodeConfig) validate() error {
	if c == nil {
		return errors.New("node configuration cannot be nil")
	}
	if c.Name == "" {
		return errors.New("node name is required")
	}
	return nil
}

func (c *NodeConfig) fqdn() string {
	if c.Domain == "" {
		return c.Name
	}
	return c.Name + "." + strings.TrimPrefix(c.Domain, ".")
}

// UserData is the cloud-config document, written with a "#cloud-config"
// header.
type UserData struct {
	Hostname          string   `yaml:"hostname"`
	FQDN              string   `yaml:"fqdn"`
	SSHAuthorizedKeys []string `yaml:"ssh_authorized_keys,omitempty"`
	SSHPasswordAuth   bool     `yaml:"ssh_pwauth"`
	Output            *Output  `yaml:"output,omitempty"`
}

// Output configures cloud-init output logging.
type Output struct {
	All string `yaml:"all"`
}

// MetaData is the NoCloud meta-data document.
type MetaData struct {
	InstanceID    string `yaml:"instance-id"`
	LocalHostname string `yaml:"local-hostname"`
}

// NetworkConfig is a netplan v2 network configuration.
type NetworkConfig struct {
	Version   int                       `yaml:"version"`
	Ethernets map[string]EthernetConfig `yaml:"ethernets"`
}

// EthernetConfig configures the interfaces selected by Match.
type EthernetConfig struct {
	Match MatchConfig `yaml:"match"`
	DHCP4 bool        `yaml:"dhcp4"`
}

// MatchConfig selects interfaces by kernel name glob.
type MatchConfig struct {
	Name string `yaml:"name"`
}

// GenerateUserData renders user-data: host name, FQDN and the authorized
// keys. Password logins stay disabled.
func GenerateUserData(cfg *NodeConfig) (string, error) {
	if err := cfg.validate(); err != nil {
		return "", err
	}

	userData := UserData{
		Hostname:          cfg.Name,
		FQDN:              cfg.fqdn(),
		SSHAuthorizedKeys: cfg.SSHAuthorizedKeys,
		Output: &Output{
			All: "| tee -a /var/log/cloud-init-output.log",
		},
	}

	yamlBytes, err := yaml.Marshal(&userData)
	if err != nil {
		return "", fmt.Errorf("failed to marshal user-data to YAML: %w", err)
	}

	return "#cloud-config\n" + string(yamlBytes), nil
}

// GenerateMetaData renders meta-data. The instance id is the node name, so
// a node recreated under the same name runs cloud-init again only if the
// name is reused.
func GenerateMetaData(cfg *NodeConfig) (string, error) {
	if err := cfg.validate(); err != nil {
		return "", err
	}

	metaData := MetaData{
		InstanceID:    cfg.Name,
		LocalHostname: cfg.Name,
	}

	yamlBytes, err := yaml.Marshal(&metaData)
	if err != nil {
		return "", fmt.Errorf("failed to marshal meta-data to YAML: %w", err)
	}

	return string(yamlBytes), nil
}

// GenerateNetworkConfig renders network-config. Addresses come from the
// libvirt network's DHCP server, so every ethernet interface runs DHCPv4.
func GenerateNetworkConfig(cfg *NodeConfig) (string, error) {
	if err := cfg.validate(); err != nil {
		return "", err
	}

	networkConfig := NetworkConfig{
		Version: 2,
		Ethernets: map[string]EthernetConfig{
			"primary": {
				Match: MatchConfig{Name: "e*"},
				DHCP4: true,
			},
		},
	}

	yamlBytes, err := yaml.Marshal(&networkConfig)
	if err != nil {
		return "", fmt.Errorf("failed to marshal network-config to YAML: %w", err)
	}

	return string(yamlBytes), nil
}
