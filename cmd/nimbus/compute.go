package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/jbweber/nimbus/internal/compute"
)

var (
	networksZone string
	networksAll  bool

	experimentSpec      compute.ExperimentSpec
	keyPairLaunchSpec   compute.KeyPairLaunchSpec
	launchPublicKeyPath string
)

var computeCmd = &cobra.Command{
	Use:   "compute",
	Short: "Work with the compute provider",
	Long: `Inspect zones and networks of the configured compute provider and run
provisioning scenarios against it.

The provider is selected by compute.provider in the configuration file
(cloudstack or libvirt).`,
}

func init() {
	computeNetworksCmd.Flags().StringVar(&networksZone, "zone", "", "only list networks in this zone")
	computeNetworksCmd.Flags().BoolVar(&networksAll, "all", false, "include default and system networks")

	ef := computeExperimentCmd.Flags()
	ef.StringVar(&experimentSpec.Group, "group", "", "group tagging the nodes and naming the network (required)")
	ef.StringVar(&experimentSpec.VLAN, "vlan", "", "VLAN id of the network (required)")
	ef.StringVar(&experimentSpec.ZoneID, "zone", "", "zone to use (default: first zone)")
	ef.IntVar(&experimentSpec.Count, "count", 1, "number of nodes to launch")
	ef.StringVar(&experimentSpec.StartIP, "start-ip", "", "first address of the network range")
	ef.StringVar(&experimentSpec.EndIP, "end-ip", "", "last address of the network range")
	ef.StringVar(&experimentSpec.Netmask, "netmask", "", "netmask of the network")
	ef.StringVar(&experimentSpec.Gateway, "gateway", "", "gateway of the network")
	addTemplateFlags(ef, &experimentSpec.Template)
	_ = computeExperimentCmd.MarkFlagRequired("group")
	_ = computeExperimentCmd.MarkFlagRequired("vlan")

	lf := computeKeyPairLaunchCmd.Flags()
	lf.StringVar(&keyPairLaunchSpec.KeyPairName, "keypair", "", "name of the key pair to create (required)")
	lf.StringVar(&launchPublicKeyPath, "public-key-file", "", "register this public key instead of generating a pair")
	lf.StringVar(&keyPairLaunchSpec.Group, "group", "", "group tagging the node (required)")
	lf.StringVar(&keyPairLaunchSpec.Template.ZoneID, "zone", "", "zone to launch in")
	lf.StringVar(&keyPairLaunchSpec.Template.NetworkID, "network", "", "network to attach the node to")
	lf.BoolVar(&keyPairLaunchSpec.RetrievePassword, "retrieve-password", false, "retrieve the generated password after launch")
	addTemplateFlags(lf, &keyPairLaunchSpec.Template)
	_ = computeKeyPairLaunchCmd.MarkFlagRequired("keypair")
	_ = computeKeyPairLaunchCmd.MarkFlagRequired("group")

	computeCmd.AddCommand(computeZonesCmd)
	computeCmd.AddCommand(computeNetworksCmd)
	computeCmd.AddCommand(computeExperimentCmd)
	computeCmd.AddCommand(computeKeyPairLaunchCmd)
}

// addTemplateFlags binds the node template flags shared by the launch
// commands.
func addTemplateFlags(fs *pflag.FlagSet, tmpl *compute.Template) {
	fs.StringVar(&tmpl.ImageID, "image", "", "image or template to boot")
	fs.StringVar(&tmpl.HardwareID, "hardware", "", "hardware profile (service offering)")
	fs.BoolVar(&tmpl.SetupStaticNAT, "static-nat", false, "map a public address to each node")
	fs.IntVar(&tmpl.VCPUs, "vcpus", 0, "vCPUs, for providers without hardware profiles")
	fs.IntVar(&tmpl.MemoryMiB, "memory", 0, "memory in MiB, for providers without hardware profiles")
	fs.IntVar(&tmpl.DiskGB, "disk", 0, "boot disk in GB, for providers without hardware profiles")
}

var computeZonesCmd = &cobra.Command{
	Use:   "zones",
	Short: "List zones",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		svc, closer, err := newComputeService(ctx)
		if err != nil {
			return err
		}
		defer closeService(ctx, closer)

		zones, err := svc.ListZones(ctx)
		if err != nil {
			return fmt.Errorf("failed to list zones: %w", err)
		}

		formatter, err := newFormatter()
		if err != nil {
			return err
		}
		result, err := formatter.FormatZones(zones)
		return writeResult(cmd, result, err)
	},
}

var computeNetworksCmd = &cobra.Command{
	Use:   "networks",
	Short: "List guest networks",
	Long: `List guest networks. Default and system networks are hidden unless
--all is given.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		svc, closer, err := newComputeService(ctx)
		if err != nil {
			return err
		}
		defer closeService(ctx, closer)

		opts := compute.ListNetworksOptions{ZoneID: networksZone}
		if !networksAll {
			opts.TrafficType = compute.TrafficTypeGuest
			opts.IsDefault = compute.Bool(false)
			opts.IsSystem = compute.Bool(false)
		}

		networks, err := svc.ListNetworks(ctx, opts)
		if err != nil {
			return fmt.Errorf("failed to list networks: %w", err)
		}

		formatter, err := newFormatter()
		if err != nil {
			return err
		}
		result, err := formatter.FormatNetworks(networks)
		return writeResult(cmd, result, err)
	},
}

var computeExperimentCmd = &cobra.Command{
	Use:   "experiment",
	Short: "Create a VLAN network, launch nodes on it and tear everything down",
	Long: `Run the network experiment:

- delete stale networks with the same VLAN in the zone
- create a network with an offering that lets us pick the VLAN
- launch --count nodes in --group on it
- destroy the nodes and delete the network again

Teardown always runs, also when a step fails.

Example:
  nimbus compute experiment --group exp1 --vlan 2001 --image ubuntu-24.04.qcow2 \
      --start-ip 10.20.1.10 --netmask 255.255.255.0 --gateway 10.20.1.1`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		svc, closer, err := newComputeService(ctx)
		if err != nil {
			return err
		}
		defer closeService(ctx, closer)

		res, runErr := compute.RunNetworkExperiment(ctx, svc, experimentSpec)
		if res != nil {
			formatter, err := newFormatter()
			if err != nil {
				return err
			}
			result, err := formatter.FormatExperiment(res)
			if err := writeResult(cmd, result, err); err != nil {
				return err
			}
		}
		if runErr != nil {
			return fmt.Errorf("experiment failed: %w", runErr)
		}
		return nil
	},
}

var computeKeyPairLaunchCmd = &cobra.Command{
	Use:   "keypair-launch",
	Short: "Launch one node with a fresh key pair and tear it down",
	Long: `Replace the key pair named by --keypair, launch a single node with it
and destroy the node and the key pair again.

Example:
  nimbus compute keypair-launch --keypair kp1 --group kp-test --image ubuntu-24.04.qcow2`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		spec := keyPairLaunchSpec
		if launchPublicKeyPath != "" {
			data, err := os.ReadFile(launchPublicKeyPath)
			if err != nil {
				return fmt.Errorf("failed to read public key: %w", err)
			}
			spec.PublicKey = string(data)
		}

		ctx := cmd.Context()
		svc, closer, err := newComputeService(ctx)
		if err != nil {
			return err
		}
		defer closeService(ctx, closer)

		res, runErr := compute.LaunchWithKeyPair(ctx, svc, spec)
		if res != nil && res.KeyPair != nil {
			formatter, err := newFormatter()
			if err != nil {
				return err
			}
			result, err := formatter.FormatKeyPair(res.KeyPair)
			if err := writeResult(cmd, result, err); err != nil {
				return err
			}
			if res.Node != nil {
				result, err := formatter.FormatNodes([]compute.Node{*res.Node})
				if err := writeResult(cmd, result, err); err != nil {
					return err
				}
			}
		}
		if runErr != nil {
			return fmt.Errorf("key pair launch failed: %w", runErr)
		}
		return nil
	},
}
