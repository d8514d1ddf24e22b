package cloudinit

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/kdomanski/iso9660"
)

func TestGenerateISO(t *testing.T) {
	cfg := &NodeConfig{
		Name:              "web-3f9a",
		SSHAuthorizedKeys: []string{"ssh-ed25519 AAAAC3NzaC1lZDI1NTE5AAAAIFoo launch-key"},
	}

	isoBytes, err := GenerateISO(cfg)
	if err != nil {
		t.Fatalf("GenerateISO() error = %v", err)
	}

	img, err := iso9660.OpenImage(bytes.NewReader(isoBytes))
	if err != nil {
		t.Fatalf("failed to open ISO image: %v", err)
	}

	label, err := img.Label()
	if err != nil {
		t.Fatalf("failed to get volume label: %v", err)
	}
	if label != VolumeLabel {
		t.Errorf("volume label = %q, want %q", label, VolumeLabel)
	}

	root, err := img.RootDir()
	if err != nil {
		t.Fatalf("failed to get root directory: %v", err)
	}
	children, err := root.GetChildren()
	if err != nil {
		t.Fatalf("failed to get children: %v", err)
	}
	if len(children) != 3 {
		t.Errorf("ISO contains %d files, want 3", len(children))
	}

	expected := map[string]func(*NodeConfig) (string, error){
		"user-data":      GenerateUserData,
		"meta-data":      GenerateMetaData,
		"network-config": GenerateNetworkConfig,
	}
	for name, generate := range expected {
		child := findFile(children, name)
		if child == nil {
			t.Errorf("file %q not found in ISO", name)
			continue
		}

		content, err := io.ReadAll(child.Reader())
		if err != nil {
			t.Fatalf("failed to read %s: %v", name, err)
		}
		want, err := generate(cfg)
		if err != nil {
			t.Fatalf("failed to generate %s: %v", name, err)
		}
		if string(content) != want {
			t.Errorf("%s content mismatch:\ngot:\n%s\nwant:\n%s", name, content, want)
		}
	}
}

func TestGenerateISO_Validation(t *testing.T) {
	if _, err := GenerateISO(nil); err == nil {
		t.Error("expected error for nil config")
	}
	if _, err := GenerateISO(&NodeConfig{}); err == nil {
		t.Error("expected error for missing name")
	}
}

func findFile(children []*iso9660.File, name string) *iso9660.File {
	for _, child := range children {
		if strings.EqualFold(strings.TrimSuffix(child.Name(), ";1"), name) {
			return child
		}
	}
	return nil
}
