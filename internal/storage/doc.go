// Package storage manages the libvirt storage pools and volumes backing
// nodes of the libvirt compute provider.
//
// Two directory pools are used:
//   - the images pool holds template images, referenced by a Template's
//     ImageID and never modified
//   - the nodes pool holds per-node volumes: a qcow2 boot volume backed by
//     a template image and the cloud-init ISO
//
// Per-node volumes share the {node}_ prefix (see internal/naming), which is
// how DeleteVolumesWithPrefix finds them again at destroy time.
//
//	mgr := storage.NewManager(client.Libvirt(), storage.DefaultPools())
//	if err := mgr.EnsurePools(ctx); err != nil {
//	    return err
//	}
//
//	err := mgr.CreateVolume(ctx, mgr.NodesPool(), storage.VolumeSpec{
//	    Name:          "web-3f9a_boot.qcow2",
//	    Format:        storage.VolumeFormatQCOW2,
//	    Capacity:      storage.GiB(20),
//	    BackingPool:   mgr.ImagesPool(),
//	    BackingVolume: "fedora-43.qcow2",
//	})
package storage
