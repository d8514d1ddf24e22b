package storage

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	libvirtxml "libvirt.org/go/libvirtxml"
)

// qemu user and group on Fedora/RHEL hosts.
const (
	qemuUID = "107"
	qemuGID = "107"
)

// CreateVolume creates a volume in poolName.
func (m *Manager) CreateVolume(ctx context.Context, poolName string, spec VolumeSpec) error {
	if err := spec.Validate(); err != nil {
		return fmt.Errorf("invalid volume spec: %w", err)
	}

	pool, err := m.client.StoragePoolLookupByName(poolName)
	if err != nil {
		return fmt.Errorf("pool not found: %w", err)
	}

	volumeXML, err := m.generateVolumeXML(ctx, poolName, spec)
	if err != nil {
		return fmt.Errorf("failed to generate volume XML: %w", err)
	}

	if _, err := m.client.StorageVolCreateXML(pool, volumeXML, 0); err != nil {
		return fmt.Errorf("failed to create volume: %w", err)
	}

	log.Ctx(ctx).Debug().Str("pool", poolName).Str("volume", spec.Name).Msg("Volume created")
	return nil
}

// DeleteVolume deletes a volume from poolName.
func (m *Manager) DeleteVolume(ctx context.Context, poolName, volumeName string) error {
	pool, err := m.client.StoragePoolLookupByName(poolName)
	if err != nil {
		return fmt.Errorf("pool not found: %w", err)
	}

	vol, err := m.client.StorageVolLookupByName(pool, volumeName)
	if err != nil {
		return fmt.Errorf("volume not found: %w", err)
	}

	if err := m.client.StorageVolDelete(vol, 0); err != nil {
		return fmt.Errorf("failed to delete volume: %w", err)
	}

	return nil
}

// DeleteVolumesWithPrefix deletes every volume in poolName whose name
// starts with prefix. It keeps going past failures and reports how many
// volumes were deleted along with the first failure.
func (m *Manager) DeleteVolumesWithPrefix(ctx context.Context, poolName, prefix string) (int, error) {
	volumes, err := m.ListVolumes(ctx, poolName)
	if err != nil {
		return 0, err
	}

	var (
		deleted  int
		firstErr error
	)
	for _, vol := range volumes {
		if !strings.HasPrefix(vol.Name, prefix) {
			continue
		}
		log.Ctx(ctx).Info().Str("pool", poolName).Str("volume", vol.Name).Msg("Deleting volume...")
		if err := m.DeleteVolume(ctx, poolName, vol.Name); err != nil {
			log.Ctx(ctx).Warn().Err(err).Str("volume", vol.Name).Msg("Warning: failed to delete volume")
			if firstErr == nil {
				firstErr = fmt.Errorf("failed to delete volume %s: %w", vol.Name, err)
			}
			continue
		}
		deleted++
	}

	return deleted, firstErr
}

// ListVolumes lists the volumes of poolName. Volumes whose path or size
// can't be read are skipped.
func (m *Manager) ListVolumes(ctx context.Context, poolName string) ([]VolumeInfo, error) {
	pool, err := m.client.StoragePoolLookupByName(poolName)
	if err != nil {
		return nil, fmt.Errorf("pool not found: %w", err)
	}

	volumes, _, err := m.client.StoragePoolListAllVolumes(pool, 1, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to list volumes: %w", err)
	}

	var infos []VolumeInfo
	for _, vol := range volumes {
		path, err := m.client.StorageVolGetPath(vol)
		if err != nil {
			log.Ctx(ctx).Debug().Err(err).Str("volume", vol.Name).Msg("Skipping volume without path")
			continue
		}

		_, capacity, allocation, err := m.client.StorageVolGetInfo(vol)
		if err != nil {
			log.Ctx(ctx).Debug().Err(err).Str("volume", vol.Name).Msg("Skipping volume without info")
			continue
		}

		infos = append(infos, VolumeInfo{
			Name:       vol.Name,
			Path:       path,
			Pool:       poolName,
			Capacity:   capacity,
			Allocation: allocation,
		})
	}

	return infos, nil
}

// GetVolumePath returns the host path of a volume.
func (m *Manager) GetVolumePath(ctx context.Context, poolName, volumeName string) (string, error) {
	pool, err := m.client.StoragePoolLookupByName(poolName)
	if err != nil {
		return "", fmt.Errorf("pool not found: %w", err)
	}

	vol, err := m.client.StorageVolLookupByName(pool, volumeName)
	if err != nil {
		return "", fmt.Errorf("volume not found: %w", err)
	}

	path, err := m.client.StorageVolGetPath(vol)
	if err != nil {
		return "", fmt.Errorf("failed to get volume path: %w", err)
	}

	return path, nil
}

// WriteVolumeData uploads data to the start of a volume.
func (m *Manager) WriteVolumeData(ctx context.Context, poolName, volumeName string, data []byte) error {
	pool, err := m.client.StoragePoolLookupByName(poolName)
	if err != nil {
		return fmt.Errorf("pool not found: %w", err)
	}

	vol, err := m.client.StorageVolLookupByName(pool, volumeName)
	if err != nil {
		return fmt.Errorf("volume not found: %w", err)
	}

	if err := m.client.StorageVolUpload(vol, bytes.NewReader(data), 0, uint64(len(data)), 0); err != nil {
		return fmt.Errorf("failed to upload data to volume: %w", err)
	}

	return nil
}

// VolumeExists reports whether poolName has a volume named volumeName.
func (m *Manager) VolumeExists(ctx context.Context, poolName, volumeName string) (bool, error) {
	pool, err := m.client.StoragePoolLookupByName(poolName)
	if err != nil {
		return false, fmt.Errorf("pool not found: %w", err)
	}

	if _, err := m.client.StorageVolLookupByName(pool, volumeName); err != nil {
		return false, nil
	}

	return true, nil
}

// ImageExists reports whether the images pool has the template image.
func (m *Manager) ImageExists(ctx context.Context, imageName string) (bool, error) {
	return m.VolumeExists(ctx, m.ImagesPool(), imageName)
}

func (m *Manager) generateVolumeXML(ctx context.Context, poolName string, spec VolumeSpec) (string, error) {
	vol := &libvirtxml.StorageVolume{
		Type: "file",
		Name: spec.Name,
		Capacity: &libvirtxml.StorageVolumeSize{
			Value: spec.Capacity,
			Unit:  "B",
		},
		Target: &libvirtxml.StorageVolumeTarget{
			Format: &libvirtxml.StorageVolumeTargetFormat{
				Type: string(spec.Format),
			},
			Permissions: &libvirtxml.StorageVolumeTargetPermissions{
				Owner: qemuUID,
				Group: qemuGID,
				Mode:  "0644",
			},
		},
	}

	if spec.BackingVolume != "" {
		backingPool := spec.BackingPool
		if backingPool == "" {
			backingPool = poolName
		}
		backingFormat := spec.BackingFormat
		if backingFormat == "" {
			backingFormat = VolumeFormatQCOW2
		}

		backingPath, err := m.GetVolumePath(ctx, backingPool, spec.BackingVolume)
		if err != nil {
			return "", fmt.Errorf("failed to get backing volume path: %w", err)
		}

		vol.BackingStore = &libvirtxml.StorageVolumeBackingStore{
			Path: backingPath,
			Format: &libvirtxml.StorageVolumeTargetFormat{
				Type: string(backingFormat),
			},
		}
	}

	return vol.Marshal()
}
