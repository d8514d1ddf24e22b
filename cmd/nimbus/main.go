package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/jbweber/nimbus/internal/compute"
	"github.com/jbweber/nimbus/internal/config"
	"github.com/jbweber/nimbus/internal/logging"
	"github.com/jbweber/nimbus/internal/output"
	"github.com/jbweber/nimbus/internal/provider"
	"github.com/jbweber/nimbus/internal/queue"
)

var (
	version = "dev"
	commit  = "unknown"
)

// Global flags
var (
	configPath   string
	outputFormat string
	noHeaders    bool
	logLevel     string
	logJSON      bool
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "nimbus",
	Short: "Nimbus - cloud queue and compute client",
	Long: `Nimbus is a CLI for cloud message queues and compute providers.

It talks to Azure Queue Storage for messaging and to CloudStack or a local
libvirt hypervisor for networks, nodes and key pairs. Provider settings
are read from a YAML configuration file; secrets may come from the
environment or a .env file.`,
	Version:       fmt.Sprintf("%s (commit: %s)", version, commit),
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		logging.Init(logLevel, !logJSON)
		cmd.SetContext(log.Logger.WithContext(cmd.Context()))
		return output.ValidateFormat(outputFormat)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (default "+config.DefaultPath()+")")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", string(output.FormatTable), "output format: table, json, yaml")
	rootCmd.PersistentFlags().BoolVar(&noHeaders, "no-headers", false, "omit headers in table output")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().BoolVar(&logJSON, "log-json", false, "log as JSON lines instead of console output")

	rootCmd.AddCommand(queueCmd)
	rootCmd.AddCommand(computeCmd)
	rootCmd.AddCommand(keypairCmd)
	rootCmd.AddCommand(vcloudCmd)
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Fprintf(cmd.OutOrStdout(), "nimbus %s (commit: %s)\n", version, commit)
		return nil
	},
}

// loadConfig reads .env from the working directory and then the config
// file.
func loadConfig() (*config.Config, error) {
	if err := config.LoadDotEnv(".env"); err != nil {
		return nil, err
	}
	cfg, err := config.LoadOrDefault(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

func newQueueService() (queue.Service, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return provider.NewQueueService(cfg.Queue)
}

func newComputeService(ctx context.Context) (compute.Service, io.Closer, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	return provider.NewComputeService(ctx, cfg.Compute)
}

func closeService(ctx context.Context, c io.Closer) {
	if err := c.Close(); err != nil {
		log.Ctx(ctx).Warn().Err(err).Msg("Warning: failed to close provider connection")
	}
}

func newFormatter() (output.Formatter, error) {
	return output.NewFormatter(output.Options{
		Format:    output.Format(outputFormat),
		NoHeaders: noHeaders,
	})
}

// writeResult writes formatted output, or the formatting error.
func writeResult(cmd *cobra.Command, result string, err error) error {
	if err != nil {
		return fmt.Errorf("failed to format output: %w", err)
	}
	fmt.Fprint(cmd.OutOrStdout(), result)
	return nil
}
