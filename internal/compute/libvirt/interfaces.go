package libvirt

import (
	"context"

	"github.com/digitalocean/go-libvirt"

	"github.com/jbweber/nimbus/internal/compute"
	"github.com/jbweber/nimbus/internal/keystore"
	"github.com/jbweber/nimbus/internal/metadata"
	"github.com/jbweber/nimbus/internal/storage"
)

// libvirtClient is the part of *libvirt.Libvirt the provider uses.
//
// In production, this is satisfied by *libvirt.Libvirt directly.
// In tests, this is satisfied by mock implementations.
type libvirtClient interface {
	metadata.LibvirtClient

	ConnectGetHostname() (string, error)

	// Networks
	ConnectListAllNetworks(NeedResults int32, Flags libvirt.ConnectListAllNetworksFlags) ([]libvirt.Network, uint32, error)
	NetworkGetXMLDesc(Net libvirt.Network, Flags uint32) (string, error)
	NetworkLookupByUUID(UUID libvirt.UUID) (libvirt.Network, error)
	NetworkLookupByName(Name string) (libvirt.Network, error)
	NetworkDefineXML(XML string) (libvirt.Network, error)
	NetworkCreate(Net libvirt.Network) error
	NetworkSetAutostart(Net libvirt.Network, Autostart int32) error
	NetworkIsActive(Net libvirt.Network) (int32, error)
	NetworkDestroy(Net libvirt.Network) error
	NetworkUndefine(Net libvirt.Network) error

	// Domains
	ConnectListAllDomains(NeedResults int32, Flags libvirt.ConnectListAllDomainsFlags) ([]libvirt.Domain, uint32, error)
	DomainLookupByName(Name string) (libvirt.Domain, error)
	DomainDefineXML(XML string) (libvirt.Domain, error)
	DomainSetAutostart(Dom libvirt.Domain, Autostart int32) error
	DomainCreate(Dom libvirt.Domain) error
	DomainGetState(Dom libvirt.Domain, Flags uint32) (int32, int32, error)
	DomainShutdown(Dom libvirt.Domain) error
	DomainDestroy(Dom libvirt.Domain) error
	DomainUndefineFlags(Dom libvirt.Domain, Flags libvirt.DomainUndefineFlagsValues) error
}

// storageManager is satisfied by *storage.Manager.
type storageManager interface {
	ImagesPool() string
	NodesPool() string
	ImageExists(ctx context.Context, imageName string) (bool, error)
	CreateVolume(ctx context.Context, poolName string, spec storage.VolumeSpec) error
	WriteVolumeData(ctx context.Context, poolName, volumeName string, data []byte) error
	DeleteVolumesWithPrefix(ctx context.Context, poolName, prefix string) (int, error)
}

// keyStore is satisfied by *keystore.Store.
type keyStore interface {
	Save(kp *compute.KeyPair) error
	Load(name string) (*keystore.Entry, error)
	Delete(name string) error
}
