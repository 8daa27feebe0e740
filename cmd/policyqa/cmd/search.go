package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/policyqa/policyqa/internal/adapters"
	"github.com/policyqa/policyqa/internal/output"
)

type searchOptions struct {
	region   string
	category string
	format   string // "text", "json"
}

func newSearchCmd() *cobra.Command {
	var opts searchOptions
	var engOpts engineOptions

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Hybrid-search indexed policies",
		Long: `Search indexed policies using BM25 + dense vector hybrid retrieval
with Reciprocal Rank Fusion, falling back to web search when the
internal result set is thin.

Examples:
  policyqa search "청년 창업 지원금"
  policyqa search "소상공인 대출" --region 서울 --format json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")
			return runSearch(cmd.Context(), cmd, query, opts, engOpts)
		},
	}

	cmd.Flags().StringVar(&opts.region, "region", "", "Filter by region")
	cmd.Flags().StringVar(&opts.category, "category", "", "Filter by category")
	cmd.Flags().StringVar(&opts.format, "format", "text", "Output format: text, json")
	addEmbedFlags(cmd, &engOpts)

	return cmd
}

func runSearch(ctx context.Context, cmd *cobra.Command, query string, opts searchOptions, engOpts engineOptions) error {
	out := output.New(cmd.OutOrStdout())

	eng, err := buildEngine(engOpts)
	if err != nil {
		return fmt.Errorf("building engine: %w", err)
	}

	filter := adapters.ScrollFilter{Region: opts.region, Category: opts.category}
	result, err := eng.search.Search(ctx, query, filter)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	if opts.format == "json" {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}

	out.Status("", result.Summary)
	out.Newline()
	for i, hit := range result.Policies {
		out.Statusf("", "%d. policy #%d  score=%.3f  match=%s", i+1, hit.PolicyID, hit.Score, hit.MatchType)
		if hit.MatchedExcerpt != "" {
			out.Statusf("", "   %s", hit.MatchedExcerpt)
		}
	}
	if result.Metrics.WebSearchTriggered {
		out.Newline()
		out.Statusf("", "web fallback: %d result(s), reason=%s", result.Metrics.WebSearchCount, result.Metrics.SufficiencyReason)
	}
	return nil
}
