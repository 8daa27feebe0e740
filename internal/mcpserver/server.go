// Package mcpserver exposes the QA and search workflows as an MCP tool
// surface (init_policy, chat, cleanup, search_policies), bridging the
// hybrid search engine to an AI client over the Model Context Protocol.
package mcpserver

import (
	"context"
	"fmt"
	"log/slog"

	gosdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/policyqa/policyqa/internal/adapters"
	"github.com/policyqa/policyqa/internal/errkit"
	"github.com/policyqa/policyqa/internal/model"
	"github.com/policyqa/policyqa/internal/qaworkflow"
	"github.com/policyqa/policyqa/internal/searchworkflow"
	"github.com/policyqa/policyqa/pkg/version"
)

// Server is the MCP server for the policy QA/search engine. It bridges an
// MCP client (an AI assistant) to the qaworkflow and searchworkflow
// handlers.
type Server struct {
	mcp    *gosdk.Server
	qa     *qaworkflow.Handler
	search *searchworkflow.Handler
	logger *slog.Logger
}

// NewServer constructs a Server and registers its tools.
func NewServer(qa *qaworkflow.Handler, search *searchworkflow.Handler) *Server {
	s := &Server{
		qa:     qa,
		search: search,
		logger: slog.Default(),
	}
	s.mcp = gosdk.NewServer(&gosdk.Implementation{
		Name:    "policyqa",
		Version: version.Version,
	}, nil)
	s.registerTools()
	return s
}

// MCPServer returns the underlying SDK server, e.g. for Run(ctx, transport).
func (s *Server) MCPServer() *gosdk.Server {
	return s.mcp
}

// InitPolicyInput is the input schema for the init_policy tool.
type InitPolicyInput struct {
	SessionID string `json:"session_id" jsonschema:"conversation session identifier"`
	PolicyID  int64  `json:"policy_id" jsonschema:"the policy to load into this session's context"`
}

// InitPolicyOutput is the output schema for the init_policy tool.
type InitPolicyOutput struct {
	OK bool `json:"ok" jsonschema:"true if the policy context was cached successfully"`
}

// ChatInput is the input schema for the chat tool.
type ChatInput struct {
	SessionID string `json:"session_id" jsonschema:"conversation session identifier"`
	Query     string `json:"query" jsonschema:"the user's question"`
}

// ChatOutput is the output schema for the chat tool.
type ChatOutput struct {
	Answer   string           `json:"answer" jsonschema:"the rendered answer, with inline citation tokens"`
	Evidence []model.Evidence `json:"evidence" jsonschema:"the evidence entries the citation tokens refer to"`
}

// CleanupInput is the input schema for the cleanup tool.
type CleanupInput struct {
	SessionID string `json:"session_id" jsonschema:"conversation session identifier"`
}

// CleanupOutput is the output schema for the cleanup tool.
type CleanupOutput struct {
	OK bool `json:"ok" jsonschema:"always true; cleanup is idempotent"`
}

// SearchPoliciesInput is the input schema for the search_policies tool.
type SearchPoliciesInput struct {
	Query    string `json:"query" jsonschema:"the search query"`
	Region   string `json:"region,omitempty" jsonschema:"filter by region"`
	Category string `json:"category,omitempty" jsonschema:"filter by category"`
}

// SearchPoliciesOutput is the output schema for the search_policies tool.
type SearchPoliciesOutput struct {
	Policies []model.SearchHit   `json:"policies" jsonschema:"ranked policy matches"`
	Metrics  model.SearchMetrics `json:"metrics" jsonschema:"search diagnostics"`
	Evidence []model.Evidence    `json:"evidence" jsonschema:"supporting evidence for the matched policies"`
	Summary  string              `json:"summary" jsonschema:"one-line human-readable result summary"`
}

func (s *Server) registerTools() {
	s.logger.Debug("registering MCP tools")

	gosdk.AddTool(s.mcp, &gosdk.Tool{
		Name:        "init_policy",
		Description: "Load a policy's documents into this session's cache. Must be called before chat.",
	}, s.handleInitPolicy)

	gosdk.AddTool(s.mcp, &gosdk.Tool{
		Name:        "chat",
		Description: "Ask a question about the session's initialized policy. Answers cite internal documents as [정책문서 i] and web sources as [웹 j].",
	}, s.handleChat)

	gosdk.AddTool(s.mcp, &gosdk.Tool{
		Name:        "cleanup",
		Description: "Clear a session's cached policy context and chat history. Idempotent.",
	}, s.handleCleanup)

	gosdk.AddTool(s.mcp, &gosdk.Tool{
		Name:        "search_policies",
		Description: "Hybrid search across all indexed policies, with automatic web-search fallback when internal results are thin.",
	}, s.handleSearchPolicies)

	s.logger.Info("MCP tools registered", slog.Int("count", 4))
}

func (s *Server) handleInitPolicy(ctx context.Context, _ *gosdk.CallToolRequest, input InitPolicyInput) (*gosdk.CallToolResult, InitPolicyOutput, error) {
	sid := model.SessionID(input.SessionID)
	if err := model.ValidateSessionID(sid); err != nil {
		return nil, InitPolicyOutput{}, mapError(errkit.Validation(err.Error()))
	}
	if err := s.qa.InitPolicy(ctx, sid, input.PolicyID); err != nil {
		return nil, InitPolicyOutput{}, mapError(err)
	}
	return nil, InitPolicyOutput{OK: true}, nil
}

func (s *Server) handleChat(ctx context.Context, _ *gosdk.CallToolRequest, input ChatInput) (*gosdk.CallToolResult, ChatOutput, error) {
	sid := model.SessionID(input.SessionID)
	if err := model.ValidateSessionID(sid); err != nil {
		return nil, ChatOutput{}, mapError(errkit.Validation(err.Error()))
	}
	if input.Query == "" {
		return nil, ChatOutput{}, mapError(errkit.Validation("query is required"))
	}
	result, err := s.qa.Chat(ctx, sid, input.Query)
	if err != nil {
		return nil, ChatOutput{}, mapError(err)
	}
	return nil, ChatOutput{Answer: result.Answer, Evidence: result.Evidence}, nil
}

func (s *Server) handleCleanup(_ context.Context, _ *gosdk.CallToolRequest, input CleanupInput) (*gosdk.CallToolResult, CleanupOutput, error) {
	sid := model.SessionID(input.SessionID)
	if err := model.ValidateSessionID(sid); err != nil {
		return nil, CleanupOutput{}, mapError(errkit.Validation(err.Error()))
	}
	s.qa.Cleanup(sid)
	return nil, CleanupOutput{OK: true}, nil
}

func (s *Server) handleSearchPolicies(ctx context.Context, _ *gosdk.CallToolRequest, input SearchPoliciesInput) (*gosdk.CallToolResult, SearchPoliciesOutput, error) {
	if input.Query == "" {
		return nil, SearchPoliciesOutput{}, mapError(errkit.Validation("query is required"))
	}
	filter := adapters.ScrollFilter{Region: input.Region, Category: input.Category}
	result, err := s.search.Search(ctx, input.Query, filter)
	if err != nil {
		return nil, SearchPoliciesOutput{}, mapError(err)
	}
	return nil, SearchPoliciesOutput{
		Policies: result.Policies,
		Metrics:  result.Metrics,
		Evidence: result.Evidence,
		Summary:  result.Summary,
	}, nil
}

// Serve runs the MCP server over stdio until ctx is cancelled.
func (s *Server) Serve(ctx context.Context) error {
	s.logger.Info("starting MCP server", slog.String("transport", "stdio"))
	err := s.mcp.Run(ctx, &gosdk.StdioTransport{})
	if err != nil && err != context.Canceled {
		s.logger.Error("MCP server stopped with error", slog.String("error", err.Error()))
		return fmt.Errorf("mcp server: %w", err)
	}
	s.logger.Info("MCP server stopped gracefully")
	return nil
}
