package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jbweber/nimbus/internal/compute"
)

var keypairPublicKeyPath string

var keypairCmd = &cobra.Command{
	Use:   "keypair",
	Short: "Manage SSH key pairs of the compute provider",
}

func init() {
	keypairCreateCmd.Flags().StringVar(&keypairPublicKeyPath, "public-key-file", "", "register this public key instead of generating a pair")

	keypairCmd.AddCommand(keypairCreateCmd)
	keypairCmd.AddCommand(keypairDeleteCmd)
}

var keypairCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create or register a key pair",
	Long: `Create a key pair. Without --public-key-file the provider generates the
pair and the private key is printed once; store it, it cannot be
retrieved again.

Example:
  nimbus keypair create deploy --public-key-file ~/.ssh/id_ed25519.pub`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]

		var publicKey string
		if keypairPublicKeyPath != "" {
			data, err := os.ReadFile(keypairPublicKeyPath)
			if err != nil {
				return fmt.Errorf("failed to read public key: %w", err)
			}
			publicKey = string(data)
		}

		ctx := cmd.Context()
		svc, closer, err := newComputeService(ctx)
		if err != nil {
			return err
		}
		defer closeService(ctx, closer)

		var kp *compute.KeyPair
		if publicKey != "" {
			kp, err = svc.RegisterKeyPair(ctx, name, publicKey)
		} else {
			kp, err = svc.CreateKeyPair(ctx, name)
		}
		if err != nil {
			return fmt.Errorf("failed to create key pair: %w", err)
		}

		formatter, err := newFormatter()
		if err != nil {
			return err
		}
		result, err := formatter.FormatKeyPair(kp)
		return writeResult(cmd, result, err)
	},
}

var keypairDeleteCmd = &cobra.Command{
	Use:   "delete <name>",
	Short: "Delete a key pair",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		svc, closer, err := newComputeService(ctx)
		if err != nil {
			return err
		}
		defer closeService(ctx, closer)

		if err := svc.DeleteKeyPair(ctx, args[0]); err != nil {
			return fmt.Errorf("failed to delete key pair: %w", err)
		}

		fmt.Fprintf(cmd.OutOrStdout(), "✓ Key pair %s deleted\n", args[0])
		return nil
	},
}
