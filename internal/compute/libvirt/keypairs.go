package libvirt

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/jbweber/nimbus/internal/compute"
	"github.com/jbweber/nimbus/internal/keystore"
)

// CreateKeyPair generates an ed25519 key pair and stores it. The returned
// pair carries the private key.
func (p *Provider) CreateKeyPair(ctx context.Context, name string) (*compute.KeyPair, error) {
	kp, err := compute.GenerateKeyPair(name)
	if err != nil {
		return nil, err
	}
	if err := p.keys.Save(kp); err != nil {
		return nil, fmt.Errorf("failed to save key pair: %w", err)
	}

	log.Ctx(ctx).Info().Str("keypair", name).Str("fingerprint", kp.Fingerprint).Msg("Key pair created")
	return kp, nil
}

// RegisterKeyPair stores an existing public key.
func (p *Provider) RegisterKeyPair(ctx context.Context, name, publicKey string) (*compute.KeyPair, error) {
	fingerprint, err := compute.ParsePublicKey(publicKey)
	if err != nil {
		return nil, err
	}

	kp := &compute.KeyPair{
		Name:        name,
		Fingerprint: fingerprint,
		PublicKey:   strings.TrimSpace(publicKey),
	}
	if err := p.keys.Save(kp); err != nil {
		return nil, fmt.Errorf("failed to save key pair: %w", err)
	}

	log.Ctx(ctx).Info().Str("keypair", name).Str("fingerprint", fingerprint).Msg("Key pair registered")
	return kp, nil
}

// DeleteKeyPair removes a key pair from the keystore. Nodes already
// launched with it keep the key.
func (p *Provider) DeleteKeyPair(ctx context.Context, name string) error {
	if err := p.keys.Delete(name); err != nil {
		if errors.Is(err, keystore.ErrNotFound) {
			log.Ctx(ctx).Debug().Str("keypair", name).Msg("Key pair already gone")
			return nil
		}
		return fmt.Errorf("failed to delete key pair: %w", err)
	}
	return nil
}
