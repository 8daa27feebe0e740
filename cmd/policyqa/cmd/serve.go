package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/policyqa/policyqa/internal/mcpserver"
)

func newServeCmd() *cobra.Command {
	opts := engineOptions{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the MCP server over stdio",
		Long: `Start the policyqa MCP server, exposing init_policy, chat, cleanup,
and search_policies as tools over stdio.

BUG-034 applies here too: stdout is reserved exclusively for JSON-RPC
messages once the server starts. Use --debug for diagnostics, which are
written to ~/.policyqa/logs/ instead of stdout.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			eng, err := buildEngine(opts)
			if err != nil {
				return fmt.Errorf("building engine: %w", err)
			}
			srv := mcpserver.NewServer(eng.qa, eng.search)
			slog.Info("policyqa MCP server starting")
			return srv.Serve(cmd.Context())
		},
	}

	cmd.Flags().StringVar(&opts.ollamaModel, "ollama-model", "", "Ollama model to use for answer generation (default: template-only, no network)")
	cmd.Flags().StringVar(&opts.ollamaHost, "ollama-host", "", "Ollama host, e.g. http://localhost:11434")
	addEmbedFlags(cmd, &opts)

	return cmd
}
