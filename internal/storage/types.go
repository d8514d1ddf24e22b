package storage

import (
	"errors"
	"fmt"
)

// VolumeFormat is the on-disk format of a volume.
type VolumeFormat string

const (
	VolumeFormatQCOW2 VolumeFormat = "qcow2"
	VolumeFormatRaw   VolumeFormat = "raw"
)

// GiB converts gibibytes to bytes.
func GiB(n uint64) uint64 {
	return n * 1024 * 1024 * 1024
}

// VolumeSpec specifies a volume to create.
type VolumeSpec struct {
	Name     string
	Format   VolumeFormat
	Capacity uint64 // bytes

	// BackingVolume makes the new volume a copy-on-write overlay. It lives
	// in BackingPool, or in the target pool when BackingPool is empty.
	BackingPool   string
	BackingVolume string
	// BackingFormat defaults to qcow2.
	BackingFormat VolumeFormat
}

// Validate checks the spec without touching libvirt.
func (v *VolumeSpec) Validate() error {
	if v.Name == "" {
		return errors.New("volume name is required")
	}
	if v.Format != VolumeFormatQCOW2 && v.Format != VolumeFormatRaw {
		return fmt.Errorf("invalid volume format: %q (must be qcow2 or raw)", v.Format)
	}
	if v.Capacity == 0 {
		return errors.New("volume capacity must be greater than 0")
	}
	if v.BackingVolume != "" && v.Format != VolumeFormatQCOW2 {
		return errors.New("backing volumes are only supported for qcow2 format")
	}
	if v.BackingFormat != "" && v.BackingFormat != VolumeFormatQCOW2 && v.BackingFormat != VolumeFormatRaw {
		return fmt.Errorf("invalid backing format: %q", v.BackingFormat)
	}
	return nil
}

// VolumeInfo describes an existing volume.
type VolumeInfo struct {
	Name       string
	Path       string
	Pool       string
	Capacity   uint64
	Allocation uint64
}

// Pool names a directory pool and where it lives on the host.
type Pool struct {
	Name string
	Path string
}

// Pools is the pair of pools the compute provider works with.
type Pools struct {
	Images Pool
	Nodes  Pool
}

const (
	DefaultImagesPool = "nimbus-images"
	DefaultNodesPool  = "nimbus-nodes"

	DefaultImagesPath = "/var/lib/libvirt/images/nimbus/images"
	DefaultNodesPath  = "/var/lib/libvirt/images/nimbus/nodes"
)

// DefaultPools returns the default pool layout.
func DefaultPools() Pools {
	return Pools{
		Images: Pool{Name: DefaultImagesPool, Path: DefaultImagesPath},
		Nodes:  Pool{Name: DefaultNodesPool, Path: DefaultNodesPath},
	}
}

// withDefaults fills unset names and paths from DefaultPools.
func (p Pools) withDefaults() Pools {
	def := DefaultPools()
	if p.Images.Name == "" {
		p.Images.Name = def.Images.Name
	}
	if p.Images.Path == "" {
		p.Images.Path = def.Images.Path
	}
	if p.Nodes.Name == "" {
		p.Nodes.Name = def.Nodes.Name
	}
	if p.Nodes.Path == "" {
		p.Nodes.Path = def.Nodes.Path
	}
	return p
}
