package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
	libvirtxml "libvirt.org/go/libvirtxml"
)

// EnsurePool creates a directory pool unless one with the name exists.
func (m *Manager) EnsurePool(ctx context.Context, pool Pool) error {
	if _, err := m.client.StoragePoolLookupByName(pool.Name); err == nil {
		return nil
	}

	log.Ctx(ctx).Info().Str("pool", pool.Name).Str("path", pool.Path).Msg("Creating storage pool...")
	return m.CreatePool(ctx, pool)
}

// CreatePool defines, builds, starts and autostarts a directory pool.
// A pool that fails to build or start is undefined again.
func (m *Manager) CreatePool(ctx context.Context, pool Pool) error {
	if pool.Name == "" || pool.Path == "" {
		return errors.New("pool name and path are required")
	}

	poolXML, err := generateDirPoolXML(pool.Name, pool.Path)
	if err != nil {
		return fmt.Errorf("failed to generate pool XML: %w", err)
	}

	p, err := m.client.StoragePoolDefineXML(poolXML, 0)
	if err != nil {
		return fmt.Errorf("failed to define pool: %w", err)
	}

	if err := m.client.StoragePoolBuild(p, 0); err != nil {
		m.undefinePool(ctx, p.Name)
		return fmt.Errorf("failed to build pool: %w", err)
	}

	if err := m.client.StoragePoolCreate(p, 0); err != nil {
		m.undefinePool(ctx, p.Name)
		return fmt.Errorf("failed to start pool: %w", err)
	}

	if err := m.client.StoragePoolSetAutostart(p, 1); err != nil {
		return fmt.Errorf("pool created but failed to set autostart: %w", err)
	}

	return nil
}

func (m *Manager) undefinePool(ctx context.Context, name string) {
	p, err := m.client.StoragePoolLookupByName(name)
	if err == nil {
		err = m.client.StoragePoolUndefine(p)
	}
	if err != nil {
		log.Ctx(ctx).Warn().Err(err).Str("pool", name).Msg("Warning: failed to undefine pool")
	}
}

func generateDirPoolXML(name, path string) (string, error) {
	pool := &libvirtxml.StoragePool{
		Type: "dir",
		Name: name,
		Target: &libvirtxml.StoragePoolTarget{
			Path: path,
			Permissions: &libvirtxml.StoragePoolTargetPermissions{
				Owner: qemuUID,
				Group: qemuGID,
				Mode:  "0755",
			},
		},
	}

	return pool.Marshal()
}
