package compute

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"fmt"
	"strings"

	"golang.org/x/crypto/ssh"
)

// GenerateKeyPair creates an ed25519 key pair in OpenSSH formats.
func GenerateKeyPair(name string) (*KeyPair, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate key: %w", err)
	}

	sshPub, err := ssh.NewPublicKey(pub)
	if err != nil {
		return nil, fmt.Errorf("failed to convert public key: %w", err)
	}

	block, err := ssh.MarshalPrivateKey(priv, name)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal private key: %w", err)
	}

	return &KeyPair{
		Name:        name,
		Fingerprint: ssh.FingerprintLegacyMD5(sshPub),
		PublicKey:   strings.TrimSpace(string(ssh.MarshalAuthorizedKey(sshPub))) + " " + name,
		PrivateKey:  string(pem.EncodeToMemory(block)),
	}, nil
}

// ParsePublicKey validates an authorized_keys style public key and returns
// its MD5 fingerprint, the format CloudStack reports.
func ParsePublicKey(publicKey string) (string, error) {
	pub, _, _, _, err := ssh.ParseAuthorizedKey([]byte(publicKey))
	if err != nil {
		return "", fmt.Errorf("invalid public key: %w", err)
	}
	return ssh.FingerprintLegacyMD5(pub), nil
}
