// Package metadata keeps a node's nimbus bookkeeping in libvirt's custom
// domain metadata, so the group a node belongs to travels with the domain
// and can be recovered without any external store.
package metadata

import (
	"encoding/xml"
	"errors"
	"fmt"
	"time"

	"github.com/digitalocean/go-libvirt"
	"gopkg.in/yaml.v3"
)

const (
	// Namespace is the XML namespace of the metadata element.
	Namespace = "http://nimbus.jbweber.github.io/node/v1"

	// Key is the namespace prefix libvirt writes the element under.
	Key = "nimbus"
)

// ErrNoMetadata is returned by Load for domains that carry no node
// metadata, i.e. domains nimbus didn't create.
var ErrNoMetadata = errors.New("domain has no node metadata")

// LibvirtClient is the subset of *libvirt.Libvirt this package uses.
type LibvirtClient interface {
	DomainSetMetadata(Dom libvirt.Domain, Type int32, Metadata libvirt.OptString, Key libvirt.OptString, Uri libvirt.OptString, Flags libvirt.DomainModificationImpact) error
	DomainGetMetadata(Dom libvirt.Domain, Type int32, Uri libvirt.OptString, Flags libvirt.DomainModificationImpact) (string, error)
}

// NodeMetadata is what nimbus records about a node it created.
type NodeMetadata struct {
	Group     string    `yaml:"group"`
	KeyPair   string    `yaml:"keyPair,omitempty"`
	ImageID   string    `yaml:"imageId,omitempty"`
	NetworkID string    `yaml:"networkId,omitempty"`
	CreatedAt time.Time `yaml:"createdAt"`
}

// element wraps the YAML document. The YAML is kept as character data so
// it stays readable in `virsh dumpxml`.
type element struct {
	XMLName xml.Name `xml:"node"`
	Xmlns   string   `xml:"xmlns,attr,omitempty"`
	YAML    string   `xml:",chardata"`
}

// Store replaces the node metadata of a domain.
func Store(l LibvirtClient, domain libvirt.Domain, md *NodeMetadata) error {
	if md == nil {
		return errors.New("node metadata cannot be nil")
	}
	if md.Group == "" {
		return errors.New("node metadata requires a group")
	}

	yamlData, err := yaml.Marshal(md)
	if err != nil {
		return fmt.Errorf("failed to marshal node metadata to YAML: %w", err)
	}

	xmlData, err := xml.Marshal(element{Xmlns: Namespace, YAML: "\n" + string(yamlData)})
	if err != nil {
		return fmt.Errorf("failed to marshal metadata to XML: %w", err)
	}

	err = l.DomainSetMetadata(
		domain,
		int32(libvirt.DomainMetadataElement),
		libvirt.OptString{string(xmlData)},
		libvirt.OptString{Key},
		libvirt.OptString{Namespace},
		libvirt.DomainAffectConfig,
	)
	if err != nil {
		return fmt.Errorf("failed to set libvirt domain metadata: %w", err)
	}

	return nil
}

// Load reads the node metadata of a domain. Domains nimbus didn't create
// have none and return ErrNoMetadata. Any other error means the metadata
// could not be read.
func Load(l LibvirtClient, domain libvirt.Domain) (*NodeMetadata, error) {
	xmlStr, err := l.DomainGetMetadata(
		domain,
		int32(libvirt.DomainMetadataElement),
		libvirt.OptString{Namespace},
		libvirt.DomainAffectConfig,
	)
	if isNoMetadata(err) {
		return nil, ErrNoMetadata
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get libvirt domain metadata: %w", err)
	}

	var el element
	if err := xml.Unmarshal([]byte(xmlStr), &el); err != nil {
		return nil, fmt.Errorf("failed to unmarshal metadata XML: %w", err)
	}

	var md NodeMetadata
	if err := yaml.Unmarshal([]byte(el.YAML), &md); err != nil {
		return nil, fmt.Errorf("failed to unmarshal node metadata from YAML: %w", err)
	}
	if md.Group == "" {
		return nil, fmt.Errorf("%w: no group recorded", ErrNoMetadata)
	}

	return &md, nil
}

func isNoMetadata(err error) bool {
	var lerr libvirt.Error
	return errors.As(err, &lerr) && lerr.Code == uint32(libvirt.ErrNoDomainMetadata)
}
