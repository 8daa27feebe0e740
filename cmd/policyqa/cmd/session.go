package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/policyqa/policyqa/internal/model"
	"github.com/policyqa/policyqa/internal/output"
)

func newInitPolicyCmd() *cobra.Command {
	var sessionID string
	var policyID int64

	cmd := &cobra.Command{
		Use:   "initpolicy",
		Short: "Load a policy's documents into a session cache (diagnostic)",
		Long: `Exercises the same InitPolicy path the MCP server's init_policy tool
uses: looks the policy up in the relational store and scrolls its
chunks from the vector store into a fresh session cache.

Because the CLI is a one-shot process, the cache it builds doesn't
outlive this command; use this to verify the configured backends
resolve a policy ID, not to seed a session for a later "chat" call —
"chat" builds its own engine and calls InitPolicy itself.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := output.New(cmd.OutOrStdout())
			eng, err := buildEngine(engineOptions{})
			if err != nil {
				return fmt.Errorf("building engine: %w", err)
			}
			sid := sessionIDOrNew(sessionID)
			if err := eng.qa.InitPolicy(cmd.Context(), sid, policyID); err != nil {
				return err
			}
			out.Success(fmt.Sprintf("policy %d cached under session %s", policyID, sid))
			return nil
		},
	}

	cmd.Flags().StringVar(&sessionID, "session", "", "Session ID (a fresh UUID is generated if omitted)")
	cmd.Flags().Int64Var(&policyID, "policy", 0, "Policy ID to load")
	_ = cmd.MarkFlagRequired("policy")

	return cmd
}

func newCleanupCmd() *cobra.Command {
	var sessionID string

	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Clear a session's cached policy context and chat history (diagnostic)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := output.New(cmd.OutOrStdout())
			eng, err := buildEngine(engineOptions{})
			if err != nil {
				return fmt.Errorf("building engine: %w", err)
			}
			eng.qa.Cleanup(model.SessionID(sessionID))
			out.Success("session cleared")
			return nil
		},
	}

	cmd.Flags().StringVar(&sessionID, "session", "", "Session ID to clear")
	_ = cmd.MarkFlagRequired("session")

	return cmd
}

func sessionIDOrNew(s string) model.SessionID {
	if s == "" {
		return model.NewSessionID()
	}
	return model.SessionID(s)
}
