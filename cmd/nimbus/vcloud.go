package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/jbweber/nimbus/internal/vcloud"
)

var vcloudCmd = &cobra.Command{
	Use:   "vcloud",
	Short: "Work with vCloud Director documents",
}

func init() {
	vcloudCmd.AddCommand(vcloudEndpointsCmd)
}

var vcloudEndpointsCmd = &cobra.Command{
	Use:   "endpoints <file>",
	Short: "Resolve the references of a vCloud document to endpoints",
	Long: `Read a vCloud XML document (an org list, a VDC, a catalog...) and print
every reference in it with the endpoint it points at. Use "-" to read
standard input.

Example:
  curl -s -H "x-vcloud-authorization: $TOKEN" https://vcloud.example.com/api/org | \
      nimbus vcloud endpoints -`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var r io.Reader = cmd.InOrStdin()
		if args[0] != "-" {
			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("failed to open document: %w", err)
			}
			defer func() { _ = f.Close() }()
			r = f
		}

		refs, err := vcloud.ParseReferences(r)
		if err != nil {
			return err
		}

		formatter, err := newFormatter()
		if err != nil {
			return err
		}
		result, err := formatter.FormatEndpoints(refs)
		return writeResult(cmd, result, err)
	},
}
