package cloudstack

import (
	"context"
	"fmt"
	"net/url"

	"github.com/jbweber/nimbus/internal/compute"
)

// CreateKeyPair has CloudStack generate a key pair. The private key is only
// returned this once.
func (c *Client) CreateKeyPair(ctx context.Context, name string) (*compute.KeyPair, error) {
	res, err := c.call(ctx, "createSSHKeyPair", url.Values{"name": {name}})
	if err != nil {
		return nil, fmt.Errorf("failed to create key pair %s: %w", name, err)
	}
	return keyPairFromJSON(res.Get("keypair")), nil
}

// RegisterKeyPair imports a public key.
func (c *Client) RegisterKeyPair(ctx context.Context, name, publicKey string) (*compute.KeyPair, error) {
	if _, err := compute.ParsePublicKey(publicKey); err != nil {
		return nil, err
	}

	res, err := c.call(ctx, "registerSSHKeyPair", url.Values{
		"name":      {name},
		"publickey": {publicKey},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to register key pair %s: %w", name, err)
	}

	kp := keyPairFromJSON(res.Get("keypair"))
	kp.PublicKey = publicKey
	return kp, nil
}

// DeleteKeyPair deletes a key pair if it exists.
func (c *Client) DeleteKeyPair(ctx context.Context, name string) error {
	res, err := c.call(ctx, "listSSHKeyPairs", url.Values{"name": {name}})
	if err != nil {
		return fmt.Errorf("failed to look up key pair %s: %w", name, err)
	}
	if len(res.Get("sshkeypair").Array()) == 0 {
		return nil
	}

	res, err = c.call(ctx, "deleteSSHKeyPair", url.Values{"name": {name}})
	if err != nil {
		return fmt.Errorf("failed to delete key pair %s: %w", name, err)
	}
	if !res.Get("success").Bool() {
		return fmt.Errorf("failed to delete key pair %s: %s", name, res.Get("displaytext").String())
	}
	return nil
}
