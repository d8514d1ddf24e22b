// Package naming provides the naming conventions shared by the compute
// providers: node names derived from their group, libvirt bridge names
// derived from a VLAN id, and volume names derived from a node name.
package naming

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// maxGroupLength keeps node names within the 63 character hostname limit
// once the suffix is appended.
const maxGroupLength = 58

var groupPattern = regexp.MustCompile(`^[a-z0-9]([a-z0-9-]*[a-z0-9])?$`)

// ValidateGroup checks that a group name can prefix node hostnames.
func ValidateGroup(group string) error {
	if group == "" {
		return fmt.Errorf("group name is required")
	}
	if len(group) > maxGroupLength {
		return fmt.Errorf("group name %q is longer than %d characters", group, maxGroupLength)
	}
	if !groupPattern.MatchString(group) {
		return fmt.Errorf("group name %q must contain only lowercase letters, digits and dashes", group)
	}
	return nil
}

// NodeName returns a new node name in group.
// Format: {group}-{4 hex digits} (e.g., "web-3f9a")
func NodeName(group string) (string, error) {
	suffix := make([]byte, 2)
	if _, err := rand.Read(suffix); err != nil {
		return "", fmt.Errorf("failed to generate node name: %w", err)
	}
	return NodeNameWithSuffix(group, hex.EncodeToString(suffix)), nil
}

// NodeNameWithSuffix returns {group}-{suffix}.
func NodeNameWithSuffix(group, suffix string) string {
	return fmt.Sprintf("%s-%s", group, suffix)
}

// GroupFromNodeName returns the group part of a node name, or "" when the
// name does not follow the NodeName format.
func GroupFromNodeName(name string) string {
	i := strings.LastIndexByte(name, '-')
	if i <= 0 || len(name)-i-1 != 4 {
		return ""
	}
	if _, err := hex.DecodeString(name[i+1:]); err != nil {
		return ""
	}
	return name[:i]
}

// BridgeNameFromVLAN returns the bridge name used for a VLAN network.
// Format: nbr{vlan} (e.g., "nbr2", at most 7 chars, within the Linux
// 15-char limit)
func BridgeNameFromVLAN(vlan string) (string, error) {
	id, err := strconv.Atoi(vlan)
	if err != nil || id < 1 || id > 4094 {
		return "", fmt.Errorf("invalid VLAN: %q", vlan)
	}
	return fmt.Sprintf("nbr%d", id), nil
}

// VLANFromBridgeName is the inverse of BridgeNameFromVLAN. It returns
// false for bridges that don't follow the nbr{vlan} format.
func VLANFromBridgeName(bridge string) (string, bool) {
	rest, ok := strings.CutPrefix(bridge, "nbr")
	if !ok {
		return "", false
	}
	id, err := strconv.Atoi(rest)
	if err != nil || id < 1 || id > 4094 || strconv.Itoa(id) != rest {
		return "", false
	}
	return rest, true
}

// VolumeNameBoot returns the volume name for a node's boot disk.
// Format: {nodeName}_boot.qcow2
func VolumeNameBoot(nodeName string) string {
	return fmt.Sprintf("%s_boot.qcow2", nodeName)
}

// VolumeNameCloudInit returns the volume name for a node's cloud-init ISO.
// Format: {nodeName}_cloudinit.iso
func VolumeNameCloudInit(nodeName string) string {
	return fmt.Sprintf("%s_cloudinit.iso", nodeName)
}

// VolumePrefix returns the prefix shared by every volume of a node.
func VolumePrefix(nodeName string) string {
	return nodeName + "_"
}
