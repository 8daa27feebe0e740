// Package config defines the process-wide search configuration: the
// dynamic similarity threshold, fusion parameters, and fallback triggers
// consumed by the hybrid searcher and search workflow. Loading is
// layered (defaults → YAML file → env vars) and supports fsnotify-driven
// hot reload of the YAML file.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// FusionMode selects how the hybrid searcher combines dense and sparse
// rankings.
type FusionMode string

const (
	FusionRRF      FusionMode = "rrf"
	FusionWeighted FusionMode = "weighted"
)

// SearchConfig is the C4 configuration struct: retrieval sizing, dynamic
// threshold parameters, and fusion tuning. Field names match spec §4.4's
// conceptual names.
type SearchConfig struct {
	ThresholdDefault float64 `yaml:"threshold_default" json:"threshold_default"`
	ThresholdMin     float64 `yaml:"threshold_min" json:"threshold_min"`
	ThresholdMax     float64 `yaml:"threshold_max" json:"threshold_max"`

	CandidatesPerSource int `yaml:"candidates_per_source" json:"candidates_per_source"`
	FinalLimit          int `yaml:"final_limit" json:"final_limit"`

	TargetMinResults int `yaml:"target_min_results" json:"target_min_results"`
	TargetMaxResults int `yaml:"target_max_results" json:"target_max_results"`

	FallbackMinResults  int     `yaml:"fallback_min_results" json:"fallback_min_results"`
	FallbackMinTopScore float64 `yaml:"fallback_min_top_score" json:"fallback_min_top_score"`

	FusionMode   FusionMode `yaml:"fusion_mode" json:"fusion_mode"`
	DenseWeight  float64    `yaml:"dense_weight" json:"dense_weight"`
	SparseWeight float64    `yaml:"sparse_weight" json:"sparse_weight"`
	RRFK         int        `yaml:"rrf_k" json:"rrf_k"`
	SparseMinScore float64  `yaml:"sparse_min_score" json:"sparse_min_score"`

	// KeywordAdjustments maps a domain keyword to the threshold delta it
	// contributes when present in the query's extracted keyword set.
	KeywordAdjustments map[string]float64 `yaml:"keyword_adjustments" json:"keyword_adjustments"`
}

// Default returns spec §4.4's literal default values.
func Default() SearchConfig {
	return SearchConfig{
		ThresholdDefault:    0.25,
		ThresholdMin:        0.15,
		ThresholdMax:        0.50,
		CandidatesPerSource: 100,
		FinalLimit:          50,
		TargetMinResults:    3,
		TargetMaxResults:    15,
		FallbackMinResults:  2,
		FallbackMinTopScore: 0.35,
		FusionMode:          FusionRRF,
		DenseWeight:         0.7,
		SparseWeight:        0.3,
		RRFK:                60,
		SparseMinScore:      0.1,
		KeywordAdjustments: map[string]float64{
			"지원금": -0.05,
			"창업":  -0.05,
			"R&D": 0.05,
		},
	}
}

// ThresholdInputs carries the per-query signals the dynamic threshold
// formula conditions on.
type ThresholdInputs struct {
	Keywords            []string
	RegionPresent        bool
	CategoryPresent      bool
	ProvisionalResultCount int
}

// DynamicThreshold computes the similarity threshold for one query, per
// spec §4.4:
//
//	t ← threshold_default
//	for each k in K ∩ keyword_adjustments.keys: t += keyword_adjustments[k]
//	if R present: t -= 0.02
//	if G present: t -= 0.02
//	if N < target_min_results: t -= 0.05
//	elif N > target_max_results: t += 0.03
//	return clamp(t, threshold_min, threshold_max)
func (c SearchConfig) DynamicThreshold(in ThresholdInputs) float64 {
	t := c.ThresholdDefault

	seen := make(map[string]struct{}, len(in.Keywords))
	for _, k := range in.Keywords {
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		if delta, ok := c.KeywordAdjustments[k]; ok {
			t += delta
		}
	}

	if in.RegionPresent {
		t -= 0.02
	}
	if in.CategoryPresent {
		t -= 0.02
	}

	if in.ProvisionalResultCount < c.TargetMinResults {
		t -= 0.05
	} else if in.ProvisionalResultCount > c.TargetMaxResults {
		t += 0.03
	}

	return clamp(t, c.ThresholdMin, c.ThresholdMax)
}

// ShouldFallbackToWeb reports whether the search workflow should trigger
// web enrichment given the final filtered hit count and top score.
func (c SearchConfig) ShouldFallbackToWeb(resultCount int, topScore float64) bool {
	return resultCount < c.FallbackMinResults || topScore < c.FallbackMinTopScore
}

func clamp(v, min, max float64) float64 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

// Validate rejects configurations that would make the dynamic threshold
// or fusion weights nonsensical.
func (c SearchConfig) Validate() error {
	if c.ThresholdMin > c.ThresholdDefault || c.ThresholdDefault > c.ThresholdMax {
		return fmt.Errorf("config: thresholds must satisfy min <= default <= max, got min=%v default=%v max=%v",
			c.ThresholdMin, c.ThresholdDefault, c.ThresholdMax)
	}
	if c.FusionMode != FusionRRF && c.FusionMode != FusionWeighted {
		return fmt.Errorf("config: unknown fusion_mode %q", c.FusionMode)
	}
	if c.CandidatesPerSource <= 0 || c.FinalLimit <= 0 {
		return fmt.Errorf("config: candidates_per_source and final_limit must be positive")
	}
	return nil
}

// Load reads a SearchConfig from defaults, optionally overridden by the
// YAML file at path (if it exists), then by POLICYQA_* environment
// variables.
func Load(path string) (SearchConfig, error) {
	cfg := Default()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := mergeYAMLFile(&cfg, path); err != nil {
				return cfg, err
			}
		}
	}

	applyEnvOverrides(&cfg)

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func mergeYAMLFile(cfg *SearchConfig, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: read %s: %w", path, err)
	}

	var parsed SearchConfig
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	mergeNonZero(cfg, &parsed)
	return nil
}

// mergeNonZero overlays non-zero fields of other onto cfg. Zero values in
// a partial YAML file are treated as "not set" rather than an explicit
// override to zero.
func mergeNonZero(cfg, other *SearchConfig) {
	if other.ThresholdDefault != 0 {
		cfg.ThresholdDefault = other.ThresholdDefault
	}
	if other.ThresholdMin != 0 {
		cfg.ThresholdMin = other.ThresholdMin
	}
	if other.ThresholdMax != 0 {
		cfg.ThresholdMax = other.ThresholdMax
	}
	if other.CandidatesPerSource != 0 {
		cfg.CandidatesPerSource = other.CandidatesPerSource
	}
	if other.FinalLimit != 0 {
		cfg.FinalLimit = other.FinalLimit
	}
	if other.TargetMinResults != 0 {
		cfg.TargetMinResults = other.TargetMinResults
	}
	if other.TargetMaxResults != 0 {
		cfg.TargetMaxResults = other.TargetMaxResults
	}
	if other.FallbackMinResults != 0 {
		cfg.FallbackMinResults = other.FallbackMinResults
	}
	if other.FallbackMinTopScore != 0 {
		cfg.FallbackMinTopScore = other.FallbackMinTopScore
	}
	if other.FusionMode != "" {
		cfg.FusionMode = other.FusionMode
	}
	if other.DenseWeight != 0 {
		cfg.DenseWeight = other.DenseWeight
	}
	if other.SparseWeight != 0 {
		cfg.SparseWeight = other.SparseWeight
	}
	if other.RRFK != 0 {
		cfg.RRFK = other.RRFK
	}
	if other.SparseMinScore != 0 {
		cfg.SparseMinScore = other.SparseMinScore
	}
	if len(other.KeywordAdjustments) > 0 {
		for k, v := range other.KeywordAdjustments {
			cfg.KeywordAdjustments[k] = v
		}
	}
}

// applyEnvOverrides applies POLICYQA_* environment variables, the highest
// precedence layer.
func applyEnvOverrides(cfg *SearchConfig) {
	if v := os.Getenv("POLICYQA_THRESHOLD_DEFAULT"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.ThresholdDefault = f
		}
	}
	if v := os.Getenv("POLICYQA_DENSE_WEIGHT"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.DenseWeight = f
		}
	}
	if v := os.Getenv("POLICYQA_SPARSE_WEIGHT"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.SparseWeight = f
		}
	}
	if v := os.Getenv("POLICYQA_RRF_K"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.RRFK = n
		}
	}
	if v := os.Getenv("POLICYQA_FUSION_MODE"); v != "" {
		cfg.FusionMode = FusionMode(strings.ToLower(v))
	}
}

// Watcher hot-reloads a SearchConfig from its backing YAML file whenever
// it changes on disk: a single fsnotify.Watcher on the containing
// directory, filtered down to the config file's own path.
type Watcher struct {
	path string
	fsw  *fsnotify.Watcher

	mu  sync.RWMutex
	cur SearchConfig

	onReload func(SearchConfig)
}

// NewWatcher loads path once and begins watching it for changes. Callers
// must call Close when done.
func NewWatcher(path string, onReload func(SearchConfig)) (*Watcher, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("config: create watcher: %w", err)
	}

	dir := dirOf(path)
	if dir != "" {
		if err := fsw.Add(dir); err != nil {
			_ = fsw.Close()
			return nil, fmt.Errorf("config: watch %s: %w", dir, err)
		}
	}

	w := &Watcher{path: path, fsw: fsw, cur: cfg, onReload: onReload}
	go w.loop()
	return w, nil
}

func (w *Watcher) loop() {
	for {
		select {
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if event.Name != w.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			cfg, err := Load(w.path)
			if err != nil {
				continue // keep serving the last-good config
			}
			w.mu.Lock()
			w.cur = cfg
			w.mu.Unlock()
			if w.onReload != nil {
				w.onReload(cfg)
			}
		case _, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
		}
	}
}

// Current returns the most recently loaded configuration.
func (w *Watcher) Current() SearchConfig {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.cur
}

// Close stops the underlying fsnotify watcher.
func (w *Watcher) Close() error {
	return w.fsw.Close()
}

func dirOf(path string) string {
	idx := strings.LastIndexByte(path, '/')
	if idx < 0 {
		return "."
	}
	return path[:idx]
}
