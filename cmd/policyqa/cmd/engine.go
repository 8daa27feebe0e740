package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/policyqa/policyqa/internal/adapters/hnswvector"
	"github.com/policyqa/policyqa/internal/adapters/memrelational"
	"github.com/policyqa/policyqa/internal/config"
	"github.com/policyqa/policyqa/internal/embed"
	"github.com/policyqa/policyqa/internal/hybrid"
	"github.com/policyqa/policyqa/internal/llm"
	"github.com/policyqa/policyqa/internal/qaworkflow"
	"github.com/policyqa/policyqa/internal/searchworkflow"
	"github.com/policyqa/policyqa/internal/sessioncache"
	"github.com/policyqa/policyqa/internal/sparseindex"
	"github.com/policyqa/policyqa/internal/websearch"
)

// engineOptions controls which concrete backends buildEngine wires up.
// The reference CLI ships in-process reference adapters (memrelational,
// hnswvector, a static embedder by default), with an Ollama embedder and
// Ollama completer selectable by flag; production deployments
// build their own equivalent of this file against real store/LLM clients
// behind the same interfaces.
type engineOptions struct {
	ollamaModel string // empty uses the template completer (no network)
	ollamaHost  string

	embedProvider string // "static" (default) or "ollama"
	embedModel    string
	embedHost     string
}

// engine bundles the two workflow handlers the CLI commands drive,
// plus the stores backing them so commands that need direct access
// (e.g. to seed data) can reach in.
type engine struct {
	relational *memrelational.Store
	vector     *hnswvector.Store
	qa         *qaworkflow.Handler
	search     *searchworkflow.Handler
}

// addEmbedFlags registers the dense-embedding provider flags shared by
// serve/search/chat, so each command doesn't repeat the same three
// cobra.Flags() calls.
func addEmbedFlags(cmd *cobra.Command, opts *engineOptions) {
	cmd.Flags().StringVar(&opts.embedProvider, "embed-provider", "static", "Dense embedding provider: static (offline, no network) or ollama")
	cmd.Flags().StringVar(&opts.embedModel, "embed-model", "", "Ollama embedding model (only used with --embed-provider=ollama)")
	cmd.Flags().StringVar(&opts.embedHost, "embed-host", "", "Ollama host for embeddings, e.g. http://localhost:11434")
}

// buildEngine wires the reference in-process backends behind
// adapters.RelationalStore/VectorStore into both workflow handlers,
// resolving search configuration by layering an optional YAML file
// from --config over the built-in defaults.
func buildEngine(opts engineOptions) (*engine, error) {
	cfg := config.Default()
	if configPath != "" {
		loaded, err := config.Load(configPath)
		if err != nil {
			return nil, fmt.Errorf("loading config: %w", err)
		}
		cfg = loaded
	}

	var embedder embed.Embedder = embed.NewStaticEmbedder()
	if opts.embedProvider == "ollama" {
		ollamaEmbedder, err := embed.NewOllamaEmbedder(context.Background(), embed.OllamaConfig{
			Host:  opts.embedHost,
			Model: opts.embedModel,
		})
		if err != nil {
			return nil, fmt.Errorf("constructing ollama embedder: %w", err)
		}
		// Policy chunks repeat across sessions (the same grant notice gets
		// re-embedded on every query that touches it); cache query/chunk
		// embeddings in front of the network round trip.
		embedder = embed.NewCachedEmbedderWithDefaults(ollamaEmbedder)
	}
	relational := memrelational.New()
	vector, err := hnswvector.New(hnswvector.DefaultConfig(embedder.Dimensions()))
	if err != nil {
		return nil, fmt.Errorf("constructing vector store: %w", err)
	}
	sparse := sparseindex.New()

	searcher := hybrid.New(vector, sparse, embedder, hybrid.DefaultConfig())

	var completer llm.Completer = llm.TemplateCompleter{}
	if opts.ollamaModel != "" {
		completer = llm.NewOllamaCompleter(llm.Config{Model: opts.ollamaModel, OllamaHost: opts.ollamaHost})
	}

	webSearcher := websearch.New(websearch.NewFakeProvider(), 0, 0)
	policyCache := sessioncache.NewPolicyContextCache(sessioncache.DefaultTTL)
	chatCache := sessioncache.NewChatCache(sessioncache.DefaultTTL)

	qa := qaworkflow.NewHandler(relational, vector, webSearcher, completer, policyCache, chatCache)
	search := searchworkflow.NewHandler(searcher, webSearcher, cfg)

	return &engine{relational: relational, vector: vector, qa: qa, search: search}, nil
}
