// Package llm defines the completion interface the QA workflow's answer
// nodes use to render a final response, plus an Ollama-backed
// implementation (same request/response shape as a query classifier's
// HTTP client, generalized from a one-word classification prompt to a
// free-form completion prompt).
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/policyqa/policyqa/internal/errkit"
)

// DefaultModel and DefaultTimeout are scaled up for a full completion
// instead of a one-word classification, with an LLM timeout budget of
// roughly 120s.
const (
	DefaultModel      = "llama3.2"
	DefaultTimeout    = 120 * time.Second
	DefaultOllamaHost = "http://localhost:11434"
)

// Completer renders a final answer from a prompt. Implementations fail
// with an errkit.TransportLLM error on any network/provider issue and do
// not retry internally; retries are the workflow's responsibility.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Config configures OllamaCompleter.
type Config struct {
	Model      string
	Timeout    time.Duration
	OllamaHost string
}

// DefaultConfig returns the package defaults.
func DefaultConfig() Config {
	return Config{Model: DefaultModel, Timeout: DefaultTimeout, OllamaHost: DefaultOllamaHost}
}

// OllamaCompleter is a reference Completer backed by a local Ollama
// server's /api/generate endpoint.
type OllamaCompleter struct {
	client *http.Client
	cfg    Config
}

// NewOllamaCompleter constructs a completer, filling in defaults for any
// zero-valued Config fields.
func NewOllamaCompleter(cfg Config) *OllamaCompleter {
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.OllamaHost == "" {
		cfg.OllamaHost = DefaultOllamaHost
	}
	return &OllamaCompleter{
		client: &http.Client{Timeout: cfg.Timeout},
		cfg:    cfg,
	}
}

type generateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

type generateResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

// Complete implements Completer.
func (c *OllamaCompleter) Complete(ctx context.Context, prompt string) (string, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return "", nil
	}

	body, err := json.Marshal(generateRequest{Model: c.cfg.Model, Prompt: prompt, Stream: false})
	if err != nil {
		return "", errkit.Internal("llm: marshal request", err)
	}

	url := c.cfg.OllamaHost + "/api/generate"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", errkit.TransportLLM(err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", errkit.TransportLLM(err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return "", errkit.TransportLLM(fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(respBody)))
	}

	var result generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", errkit.TransportLLM(err)
	}
	return result.Response, nil
}

var _ Completer = (*OllamaCompleter)(nil)

// TemplateCompleter is a deterministic reference Completer for tests and
// offline deployments: it never calls out to a model, simply echoing the
// prompt back verbatim. The QA workflow's answer nodes build the prompt
// with the full citation contract already embedded, so even this stand-in
// produces a structurally valid answer.
type TemplateCompleter struct{}

// Complete implements Completer.
func (TemplateCompleter) Complete(_ context.Context, prompt string) (string, error) {
	return prompt, nil
}

var _ Completer = TemplateCompleter{}
