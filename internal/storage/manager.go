package storage

import (
	"context"
	"fmt"
	"io"

	"github.com/digitalocean/go-libvirt"
)

// LibvirtClient is the subset of *libvirt.Libvirt the storage manager uses.
type LibvirtClient interface {
	StoragePoolLookupByName(Name string) (libvirt.StoragePool, error)
	StoragePoolDefineXML(XML string, Flags uint32) (libvirt.StoragePool, error)
	StoragePoolCreate(Pool libvirt.StoragePool, Flags libvirt.StoragePoolCreateFlags) error
	StoragePoolBuild(Pool libvirt.StoragePool, Flags libvirt.StoragePoolBuildFlags) error
	StoragePoolSetAutostart(Pool libvirt.StoragePool, Autostart int32) error
	StoragePoolUndefine(Pool libvirt.StoragePool) error
	StoragePoolListAllVolumes(Pool libvirt.StoragePool, NeedResults int32, Flags uint32) ([]libvirt.StorageVol, uint32, error)
	StorageVolLookupByName(Pool libvirt.StoragePool, Name string) (libvirt.StorageVol, error)
	StorageVolCreateXML(Pool libvirt.StoragePool, XML string, Flags libvirt.StorageVolCreateFlags) (libvirt.StorageVol, error)
	StorageVolDelete(Vol libvirt.StorageVol, Flags libvirt.StorageVolDeleteFlags) error
	StorageVolGetPath(Vol libvirt.StorageVol) (string, error)
	StorageVolGetInfo(Vol libvirt.StorageVol) (rType int8, rCapacity uint64, rAllocation uint64, err error)
	StorageVolUpload(Vol libvirt.StorageVol, outStream io.Reader, Offset uint64, Length uint64, Flags libvirt.StorageVolUploadFlags) error
}

// Manager coordinates pool and volume operations.
type Manager struct {
	client LibvirtClient
	pools  Pools
}

// NewManager creates a storage manager. Unset pool names and paths take
// their defaults.
func NewManager(client LibvirtClient, pools Pools) *Manager {
	return &Manager{
		client: client,
		pools:  pools.withDefaults(),
	}
}

// ImagesPool returns the name of the template image pool.
func (m *Manager) ImagesPool() string {
	return m.pools.Images.Name
}

// NodesPool returns the name of the per-node volume pool.
func (m *Manager) NodesPool() string {
	return m.pools.Nodes.Name
}

// EnsurePools creates the images and nodes pools if they don't exist.
func (m *Manager) EnsurePools(ctx context.Context) error {
	if err := m.EnsurePool(ctx, m.pools.Images); err != nil {
		return fmt.Errorf("failed to ensure images pool: %w", err)
	}

	if err := m.EnsurePool(ctx, m.pools.Nodes); err != nil {
		return fmt.Errorf("failed to ensure nodes pool: %w", err)
	}

	return nil
}
