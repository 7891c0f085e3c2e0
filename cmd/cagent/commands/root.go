// Package commands defines all Cobra CLI commands for the cagent binary.
package commands

import (
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/commerce-agent/cagent-go/internal/audit"
	"github.com/commerce-agent/cagent-go/internal/config"
	"github.com/commerce-agent/cagent-go/internal/logging"
)

// configPath holds the --config flag value for YAML config file override.
var configPath string

// loadedConfigPath stores the resolved config file path for audit logging.
var loadedConfigPath string

// NewRootCmd constructs the root Cobra command that all subcommands attach to.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "cagent",
		Short: "CommerceAgent, a product discovery assistant over catalog and web",
		Long: `CommerceAgent is a local-first shopping assistant.

It searches a product catalog lexically and semantically, matches products
against uploaded images, augments results with live product pages from
allowlisted retail domains, and holds a conversational session that routes
each message to the right capability.

Model provider is selected via the MODEL_PROVIDER environment variable
or a YAML config file (~/.cagent/config.yaml).
See 'cagent --help' for available commands.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			// A missing .env file is fine; env vars may come from anywhere.
			_ = godotenv.Load()

			log := logging.New()

			// Load YAML config (env vars always override YAML values).
			path, err := config.Load(configPath, log)
			if err != nil {
				return err
			}
			loadedConfigPath = path

			// Emit structured audit log for every command invocation.
			audit.LogCommandStart(log, cmd.Name(), loadedConfigPath)

			return nil
		},
	}

	root.PersistentFlags().StringVar(&configPath, "config", "", "Path to YAML config file (default: ~/.cagent/config.yaml)")

	root.AddCommand(
		NewAskCmd(),
		NewServeCmd(),
		NewIngestCmd(),
		NewVersionCmd(),
	)

	return root
}
