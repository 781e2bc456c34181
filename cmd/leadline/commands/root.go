// Package commands defines all Cobra CLI commands for the leadline binary.
package commands

import (
	"github.com/spf13/cobra"

	"github.com/leadline-ai/leadline/internal/audit"
	"github.com/leadline-ai/leadline/internal/config"
	"github.com/leadline-ai/leadline/internal/logging"
)

// configPath holds the --config flag value for YAML config file override.
var configPath string

// loadedConfigPath stores the resolved config file path for audit logging.
var loadedConfigPath string

// NewRootCmd constructs the root Cobra command that all subcommands attach to.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "leadline",
		Short: "Leadline — an apartment-locator lead agent that texts like a human",
		Long: `Leadline answers apartment-seeker messages in the persona of a human
locator. Replies are grounded in an embedded corpus of real past
conversations: every turn retrieves similar exchanges from the corpus and
uses them as tone and flow reference, with escalation rules deciding when a
human teammate takes over.

Model provider is selected via the MODEL_PROVIDER environment variable or a
YAML config file (~/.leadline/config.yaml).
See 'leadline --help' for available commands.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
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

	root.PersistentFlags().StringVar(&configPath, "config", "", "Path to YAML config file (default: ~/.leadline/config.yaml)")

	root.AddCommand(
		NewServeCmd(),
		NewReplyCmd(),
		NewIngestCmd(),
		NewReembedCmd(),
		NewVersionCmd(),
	)

	return root
}
