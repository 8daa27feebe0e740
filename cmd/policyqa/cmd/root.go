// Package cmd provides the CLI commands for policyqa.
package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/policyqa/policyqa/internal/logging"
	"github.com/policyqa/policyqa/pkg/version"
)

var (
	debugMode      bool
	configPath     string
	loggingCleanup func()
)

// NewRootCmd creates the root command for the policyqa CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "policyqa",
		Short: "Hybrid search and QA engine for government policy documents",
		Long: `policyqa answers questions about Korean government grant and policy
programs over a per-session document cache, and exposes a hybrid
BM25 + dense-vector search engine with Reciprocal Rank Fusion.

It speaks MCP over stdio so AI assistants can drive it directly, and
also works as a standalone CLI for search and one-shot chat.`,
		Version: version.Version,
	}

	cmd.SetVersionTemplate("policyqa version {{.Version}}\n")

	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging to ~/.policyqa/logs/")
	cmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to a search config YAML file (defaults built in)")

	cmd.PersistentPreRunE = startLogging
	cmd.PersistentPostRunE = stopLogging

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newSearchCmd())
	cmd.AddCommand(newInitPolicyCmd())
	cmd.AddCommand(newCleanupCmd())
	cmd.AddCommand(newChatCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

func startLogging(_ *cobra.Command, _ []string) error {
	if !debugMode {
		return nil
	}
	logger, cleanup, err := logging.Setup(logging.DebugConfig())
	if err != nil {
		return fmt.Errorf("failed to setup debug logging: %w", err)
	}
	loggingCleanup = cleanup
	slog.SetDefault(logger)
	slog.Info("debug logging enabled", slog.String("log_file", logging.DefaultLogPath()))
	return nil
}

func stopLogging(_ *cobra.Command, _ []string) error {
	if loggingCleanup != nil {
		loggingCleanup()
		loggingCleanup = nil
	}
	return nil
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}
