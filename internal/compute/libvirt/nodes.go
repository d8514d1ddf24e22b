package libvirt

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/digitalocean/go-libvirt"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/jbweber/nimbus/internal/cloudinit"
	"github.com/jbweber/nimbus/internal/compute"
	nimbuslibvirt "github.com/jbweber/nimbus/internal/libvirt"
	"github.com/jbweber/nimbus/internal/metadata"
	"github.com/jbweber/nimbus/internal/naming"
	"github.com/jbweber/nimbus/internal/storage"
)

// Domain states (from libvirt VIR_DOMAIN_* constants)
const (
	domainStateNoState     = 0
	domainStateRunning     = 1
	domainStateBlocked     = 2
	domainStatePaused      = 3
	domainStateShutdown    = 4
	domainStateShutoff     = 5
	domainStateCrashed     = 6
	domainStatePMSuspended = 7
)

func nodeState(state int32) compute.NodeState {
	switch state {
	case domainStateRunning, domainStateBlocked:
		return compute.NodeStateRunning
	case domainStatePaused, domainStateShutdown, domainStateShutoff, domainStatePMSuspended:
		return compute.NodeStateStopped
	case domainStateCrashed:
		return compute.NodeStateError
	case domainStateNoState:
		return compute.NodeStatePending
	}
	return compute.NodeStateUnknown
}

// launch is everything the nodes of one CreateNodesInGroup call share.
type launch struct {
	group     string
	zoneID    string
	tmpl      compute.Template
	network   string
	publicKey string
}

// CreateNodesInGroup creates count domains named {group}-{hex}, one after
// the other. A node that fails is cleaned up before the next one starts;
// the remaining nodes are still attempted.
func (p *Provider) CreateNodesInGroup(ctx context.Context, group string, count int, tmpl compute.Template) ([]compute.Node, error) {
	if err := naming.ValidateGroup(group); err != nil {
		return nil, err
	}
	if count < 1 {
		return nil, fmt.Errorf("count must be at least 1, got %d", count)
	}
	if tmpl.ImageID == "" {
		return nil, errors.New("template needs an image")
	}
	if tmpl.SetupStaticNAT {
		return nil, fmt.Errorf("static NAT: %w", compute.ErrNotSupported)
	}

	zone, err := p.checkZone(tmpl.ZoneID)
	if err != nil {
		return nil, err
	}

	// Pre-flight checks shared by every node
	exists, err := p.storage.ImageExists(ctx, tmpl.ImageID)
	if err != nil {
		return nil, fmt.Errorf("failed to check image: %w", err)
	}
	if !exists {
		return nil, fmt.Errorf("image %s not found in pool %s", tmpl.ImageID, p.storage.ImagesPool())
	}

	network, err := p.networkName(tmpl.NetworkID)
	if err != nil {
		return nil, err
	}

	l := launch{group: group, zoneID: zone.ID, tmpl: withSizing(tmpl), network: network}
	if tmpl.KeyPair != "" {
		entry, err := p.keys.Load(tmpl.KeyPair)
		if err != nil {
			return nil, fmt.Errorf("failed to load key pair: %w", err)
		}
		l.publicKey = entry.PublicKey
	}

	logger := log.Ctx(ctx).With().Str("group", group).Logger()
	runErr := &compute.RunNodesError{Group: group, NodeErrors: map[string]compute.NodeError{}}

	for i := 0; i < count; i++ {
		name, err := naming.NodeName(group)
		if err != nil {
			return nil, err
		}

		node, err := p.createNode(logger.WithContext(ctx), name, l)
		if err != nil {
			logger.Warn().Err(err).Str("node", name).Msg("Warning: node failed")
			node.State = compute.NodeStateError
			runErr.NodeErrors[name] = compute.NodeError{Node: node, Err: err}
			continue
		}
		runErr.Successful = append(runErr.Successful, node)
	}

	if len(runErr.NodeErrors) > 0 {
		return nil, runErr
	}
	return runErr.Successful, nil
}

func withSizing(tmpl compute.Template) compute.Template {
	if tmpl.VCPUs <= 0 {
		tmpl.VCPUs = defaultVCPUs
	}
	if tmpl.MemoryMiB <= 0 {
		tmpl.MemoryMiB = defaultMemoryMiB
	}
	if tmpl.DiskGB <= 0 {
		tmpl.DiskGB = defaultDiskGB
	}
	return tmpl
}

// createNode creates and starts one domain. On failure everything it
// created is removed again.
func (p *Provider) createNode(ctx context.Context, name string, l launch) (node compute.Node, createErr error) {
	logger := log.Ctx(ctx).With().Str("node", name).Logger()
	nodesPool := p.storage.NodesPool()
	node = compute.Node{ID: name, Name: name, Group: l.group, ZoneID: l.zoneID, State: compute.NodeStatePending}

	// State tracking for cleanup
	var (
		domainDefined  bool
		storageCreated bool
	)
	defer func() {
		if createErr != nil {
			if err := p.cleanupNode(context.WithoutCancel(ctx), name, domainDefined, storageCreated); err != nil {
				createErr = errors.Join(createErr, err)
			}
		}
	}()

	// Step 1: Check if the domain already exists
	_, err := p.lv.DomainLookupByName(name)
	if err == nil {
		return node, fmt.Errorf("domain %s already exists", name)
	}
	if !libvirt.IsNotFound(err) {
		return node, fmt.Errorf("failed to look up domain: %w", err)
	}

	// Step 2: Create boot volume on top of the image
	logger.Info().Int("sizeGB", l.tmpl.DiskGB).Msg("Creating boot volume...")
	storageCreated = true
	err = p.storage.CreateVolume(ctx, nodesPool, storage.VolumeSpec{
		Name:          naming.VolumeNameBoot(name),
		Format:        storage.VolumeFormatQCOW2,
		Capacity:      storage.GiB(uint64(l.tmpl.DiskGB)),
		BackingPool:   p.storage.ImagesPool(),
		BackingVolume: l.tmpl.ImageID,
	})
	if err != nil {
		return node, fmt.Errorf("failed to create boot volume: %w", err)
	}

	// Step 3: Generate and write cloud-init ISO
	logger.Debug().Msg("Generating cloud-init ISO...")
	seed := &cloudinit.NodeConfig{Name: name, Domain: p.dnsDomain}
	if l.publicKey != "" {
		seed.SSHAuthorizedKeys = []string{l.publicKey}
	}
	iso, err := cloudinit.GenerateISO(seed)
	if err != nil {
		return node, fmt.Errorf("failed to generate cloud-init ISO: %w", err)
	}

	isoVolume := naming.VolumeNameCloudInit(name)
	err = p.storage.CreateVolume(ctx, nodesPool, storage.VolumeSpec{
		Name:     isoVolume,
		Format:   storage.VolumeFormatRaw,
		Capacity: uint64(len(iso)),
	})
	if err != nil {
		return node, fmt.Errorf("failed to create cloud-init volume: %w", err)
	}
	if err := p.storage.WriteVolumeData(ctx, nodesPool, isoVolume, iso); err != nil {
		return node, fmt.Errorf("failed to write cloud-init ISO: %w", err)
	}

	// Step 4: Generate domain XML
	doc, err := nimbuslibvirt.GenerateDomainXML(nimbuslibvirt.DomainSpec{
		Name:            name,
		VCPUs:           l.tmpl.VCPUs,
		MemoryMiB:       l.tmpl.MemoryMiB,
		Pool:            nodesPool,
		BootVolume:      naming.VolumeNameBoot(name),
		CloudInitVolume: isoVolume,
		Network:         l.network,
	})
	if err != nil {
		return node, fmt.Errorf("failed to generate domain XML: %w", err)
	}

	// Step 5: Define domain in libvirt
	logger.Info().Msg("Defining domain...")
	domain, err := p.lv.DomainDefineXML(doc)
	if err != nil {
		return node, fmt.Errorf("failed to define domain: %w", err)
	}
	domainDefined = true

	// Step 6: Record the group
	err = metadata.Store(p.lv, domain, &metadata.NodeMetadata{
		Group:     l.group,
		KeyPair:   l.tmpl.KeyPair,
		ImageID:   l.tmpl.ImageID,
		NetworkID: l.tmpl.NetworkID,
		CreatedAt: p.now().UTC(),
	})
	if err != nil {
		return node, fmt.Errorf("failed to store node metadata: %w", err)
	}

	// Step 7: Set autostart and start
	if err := p.lv.DomainSetAutostart(domain, 1); err != nil {
		return node, fmt.Errorf("failed to set autostart: %w", err)
	}
	logger.Info().Msg("Starting domain...")
	if err := p.lv.DomainCreate(domain); err != nil {
		return node, fmt.Errorf("failed to start domain: %w", err)
	}

	node.State = compute.NodeStateRunning
	logger.Info().Msg("Node created")
	return node, nil
}

// cleanupNode removes what a failed createNode left behind. It keeps
// going after failures and returns them joined.
func (p *Provider) cleanupNode(ctx context.Context, name string, domainDefined, storageCreated bool) error {
	logger := log.Ctx(ctx)
	logger.Info().Str("node", name).Msg("Cleaning up after failed node creation...")

	var errs []error
	if domainDefined {
		domain, err := p.lv.DomainLookupByName(name)
		switch {
		case libvirt.IsNotFound(err):
			logger.Debug().Str("node", name).Msg("Note: domain already gone")
		case err != nil:
			errs = append(errs, fmt.Errorf("failed to lookup domain for cleanup: %w", err))
		default:
			if err := p.lv.DomainDestroy(domain); err != nil {
				logger.Debug().Err(err).Msg("Note: domain was not running")
			}
			if err := p.lv.DomainUndefineFlags(domain, libvirt.DomainUndefineNvram); err != nil {
				errs = append(errs, fmt.Errorf("failed to undefine domain: %w", err))
			}
		}
	}

	if storageCreated {
		if _, err := p.storage.DeleteVolumesWithPrefix(ctx, p.storage.NodesPool(), naming.VolumePrefix(name)); err != nil {
			errs = append(errs, fmt.Errorf("failed to delete volumes: %w", err))
		}
	}

	err := errors.Join(errs...)
	if err != nil {
		logger.Warn().Err(err).Str("node", name).Msg("Warning: cleanup incomplete")
	}
	return err
}

// DestroyNodesInGroup destroys every domain whose metadata names group.
// Domains without nimbus metadata are left alone. It keeps going after a
// failure, including domains whose metadata can't be read, and reports
// every failure at the end.
func (p *Provider) DestroyNodesInGroup(ctx context.Context, group string) ([]compute.Node, error) {
	zone, err := p.zone()
	if err != nil {
		return nil, err
	}

	domains, _, err := p.lv.ConnectListAllDomains(1, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to list domains: %w", err)
	}

	var (
		destroyed []compute.Node
		errs      []error
	)
	for _, d := range domains {
		md, err := metadata.Load(p.lv, d)
		if errors.Is(err, metadata.ErrNoMetadata) {
			continue
		}
		if err != nil {
			log.Ctx(ctx).Warn().Err(err).Str("node", d.Name).Msg("Warning: failed to read node metadata")
			errs = append(errs, fmt.Errorf("failed to read metadata of %s: %w", d.Name, err))
			continue
		}
		if md.Group != group {
			continue
		}

		node := compute.Node{ID: d.Name, Name: d.Name, Group: group, ZoneID: zone.ID, State: compute.NodeStateUnknown}
		if state, _, err := p.lv.DomainGetState(d, 0); err == nil {
			node.State = nodeState(state)
		}

		if err := p.DestroyNode(ctx, d.Name); err != nil {
			errs = append(errs, fmt.Errorf("failed to destroy node %s: %w", d.Name, err))
			continue
		}
		destroyed = append(destroyed, node)
	}

	return destroyed, errors.Join(errs...)
}

// DestroyNode destroys a domain by name:
//  1. Check if the domain exists
//  2. Graceful shutdown if running
//  3. Force destroy if still running
//  4. Undefine domain (with NVRAM cleanup for UEFI domains)
//  5. Delete the node's volumes from the nodes pool
//
// An unknown name is compute.ErrNotFound.
func (p *Provider) DestroyNode(ctx context.Context, id string) error {
	logger := log.Ctx(ctx).With().Str("node", id).Logger()

	// Step 1: Check if the domain exists
	domain, err := p.lv.DomainLookupByName(id)
	if libvirt.IsNotFound(err) {
		return fmt.Errorf("node %s: %w", id, compute.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to look up domain %s: %w", id, err)
	}

	// Step 2: Graceful shutdown if running
	state, _, err := p.lv.DomainGetState(domain, 0)
	if err != nil {
		return fmt.Errorf("failed to get domain state: %w", err)
	}

	needsForceDestroy := false
	if state == domainStateRunning {
		logger.Info().Msg("Shutting down node...")
		if err := p.lv.DomainShutdown(domain); err != nil {
			logger.Warn().Err(err).Msg("Warning: graceful shutdown failed")
			needsForceDestroy = true
		} else {
			needsForceDestroy = !p.waitForShutoff(ctx, &logger, domain)
		}
	}

	// Step 3: Force destroy if still running
	if needsForceDestroy {
		currentState, _, err := p.lv.DomainGetState(domain, 0)
		if err != nil {
			logger.Warn().Err(err).Msg("Warning: failed to check state before destroy")
		}
		if err == nil && currentState == domainStateRunning {
			logger.Info().Msg("Force destroying node...")
			if err := p.lv.DomainDestroy(domain); err != nil {
				logger.Warn().Err(err).Msg("Warning: force destroy failed")
			}
		}
	}

	// Step 4: Undefine domain with NVRAM cleanup
	if err := p.lv.DomainUndefineFlags(domain, libvirt.DomainUndefineNvram); err != nil {
		return fmt.Errorf("failed to undefine domain: %w", err)
	}

	// Step 5: Delete storage volumes
	deleted, err := p.storage.DeleteVolumesWithPrefix(ctx, p.storage.NodesPool(), naming.VolumePrefix(id))
	if err != nil {
		logger.Warn().Err(err).Msg("Warning: failed to delete some volumes")
	}

	logger.Info().Int("volumes", deleted).Msg("Node destroyed")
	return nil
}

// waitForShutoff polls the domain until it is shut off or the shutdown
// timeout passes. It reports whether the domain shut off.
func (p *Provider) waitForShutoff(ctx context.Context, logger *zerolog.Logger, domain libvirt.Domain) bool {
	shutdownCtx, cancel := context.WithTimeout(ctx, p.shutdownTimeout)
	defer cancel()

	ticker := time.NewTicker(p.shutdownPoll)
	defer ticker.Stop()

	for {
		select {
		case <-shutdownCtx.Done():
			logger.Info().Msg("Graceful shutdown timed out")
			return false
		case <-ticker.C:
			state, _, err := p.lv.DomainGetState(domain, 0)
			if err != nil {
				logger.Warn().Err(err).Msg("Warning: failed to check shutdown state")
				return false
			}
			if state == domainStateShutoff {
				logger.Debug().Msg("Node shut down gracefully")
				return true
			}
		}
	}
}
