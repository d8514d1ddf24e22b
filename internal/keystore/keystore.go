// Package keystore keeps key pairs generated or registered for the libvirt
// compute provider as one YAML file per key pair.
package keystore

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jbweber/nimbus/internal/compute"
)

var (
	ErrNotFound    = errors.New("key pair not found")
	ErrExists      = errors.New("key pair already exists")
	ErrInvalidName = errors.New("invalid key pair name")
)

// namePattern keeps names usable as file names.
var namePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,127}$`)

const fileSuffix = ".yaml"

// Entry is the on-disk form of a key pair.
type Entry struct {
	compute.KeyPair `yaml:",inline"`
	CreatedAt       time.Time `yaml:"createdAt"`
}

// Store is a directory of key pair files.
type Store struct {
	dir string
	now func() time.Time
}

// New opens the store at dir, creating the directory if needed. A leading
// "~/" is expanded to the user's home directory.
func New(dir string) (*Store, error) {
	if dir == "" {
		return nil, errors.New("keystore directory is required")
	}

	expanded, err := ExpandHome(dir)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(expanded, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create keystore directory %s: %w", expanded, err)
	}

	return &Store{dir: expanded, now: time.Now}, nil
}

// ExpandHome expands a leading "~/" in path.
func ExpandHome(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve home directory: %w", err)
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}

// Dir returns the directory backing the store.
func (s *Store) Dir() string {
	return s.dir
}

func (s *Store) path(name string) (string, error) {
	if !namePattern.MatchString(name) {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return filepath.Join(s.dir, name+fileSuffix), nil
}

// Save writes a new key pair. An existing key pair with the same name is
// never overwritten.
func (s *Store) Save(kp *compute.KeyPair) error {
	if kp == nil {
		return errors.New("key pair cannot be nil")
	}
	path, err := s.path(kp.Name)
	if err != nil {
		return err
	}

	data, err := yaml.Marshal(&Entry{KeyPair: *kp, CreatedAt: s.now().UTC()})
	if err != nil {
		return fmt.Errorf("failed to marshal key pair %s to YAML: %w", kp.Name, err)
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return fmt.Errorf("%w: %s", ErrExists, kp.Name)
		}
		return fmt.Errorf("failed to create file %s: %w", path, err)
	}

	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return fmt.Errorf("failed to write file %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(path)
		return fmt.Errorf("failed to write file %s: %w", path, err)
	}

	return nil
}

// Load reads a key pair by name.
func (s *Store) Load(name string) (*Entry, error) {
	path, err := s.path(name)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return nil, fmt.Errorf("failed to read file %s: %w", path, err)
	}

	var entry Entry
	if err := yaml.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("failed to unmarshal key pair %s: %w", name, err)
	}
	if entry.Name != name {
		return nil, fmt.Errorf("key pair file %s holds %q", path, entry.Name)
	}
	if entry.PublicKey == "" {
		return nil, fmt.Errorf("key pair %s has no public key", name)
	}

	return &entry, nil
}

// Delete removes a key pair by name.
func (s *Store) Delete(name string) error {
	path, err := s.path(name)
	if err != nil {
		return err
	}

	if err := os.Remove(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return fmt.Errorf("failed to remove file %s: %w", path, err)
	}
	return nil
}

// List returns every key pair in the store sorted by name. Unreadable
// files are skipped.
func (s *Store) List() ([]Entry, error) {
	files, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read keystore directory %s: %w", s.dir, err)
	}

	var entries []Entry
	for _, f := range files {
		if f.IsDir() || !strings.HasSuffix(f.Name(), fileSuffix) {
			continue
		}
		entry, err := s.Load(strings.TrimSuffix(f.Name(), fileSuffix))
		if err != nil {
			continue
		}
		entries = append(entries, *entry)
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return entries, nil
}
