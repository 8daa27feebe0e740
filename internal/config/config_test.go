package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TS01: default values match spec §4.4 literally.
func TestDefault_MatchesSpecDefaults(t *testing.T) {
	cfg := Default()
	assert.Equal(t, 0.25, cfg.ThresholdDefault)
	assert.Equal(t, 0.15, cfg.ThresholdMin)
	assert.Equal(t, 0.50, cfg.ThresholdMax)
	assert.Equal(t, 100, cfg.CandidatesPerSource)
	assert.Equal(t, 50, cfg.FinalLimit)
	require.NoError(t, cfg.Validate())
}

// TS02: dynamic threshold applies keyword deltas, region/category
// discounts, and result-count adjustments, then clamps.
func TestDynamicThreshold_AppliesAllAdjustments(t *testing.T) {
	cfg := Default()

	t.Run("keyword discount", func(t *testing.T) {
		got := cfg.DynamicThreshold(ThresholdInputs{Keywords: []string{"지원금"}, ProvisionalResultCount: 5})
		assert.InDelta(t, 0.20, got, 1e-9)
	})

	t.Run("keyword boost", func(t *testing.T) {
		got := cfg.DynamicThreshold(ThresholdInputs{Keywords: []string{"R&D"}, ProvisionalResultCount: 5})
		assert.InDelta(t, 0.30, got, 1e-9)
	})

	t.Run("region and category both present", func(t *testing.T) {
		got := cfg.DynamicThreshold(ThresholdInputs{RegionPresent: true, CategoryPresent: true, ProvisionalResultCount: 5})
		assert.InDelta(t, 0.21, got, 1e-9)
	})

	t.Run("few provisional results lowers threshold", func(t *testing.T) {
		got := cfg.DynamicThreshold(ThresholdInputs{ProvisionalResultCount: 1})
		assert.InDelta(t, 0.20, got, 1e-9)
	})

	t.Run("many provisional results raises threshold", func(t *testing.T) {
		got := cfg.DynamicThreshold(ThresholdInputs{ProvisionalResultCount: 100})
		assert.InDelta(t, 0.28, got, 1e-9)
	})

	t.Run("clamps to threshold_max", func(t *testing.T) {
		got := cfg.DynamicThreshold(ThresholdInputs{Keywords: []string{"R&D"}, ProvisionalResultCount: 100})
		assert.LessOrEqual(t, got, cfg.ThresholdMax)
	})

	t.Run("clamps to threshold_min", func(t *testing.T) {
		got := cfg.DynamicThreshold(ThresholdInputs{Keywords: []string{"지원금", "창업"}, ProvisionalResultCount: 1})
		assert.GreaterOrEqual(t, got, cfg.ThresholdMin)
	})

	t.Run("duplicate keywords apply their delta once", func(t *testing.T) {
		once := cfg.DynamicThreshold(ThresholdInputs{Keywords: []string{"지원금"}, ProvisionalResultCount: 5})
		twice := cfg.DynamicThreshold(ThresholdInputs{Keywords: []string{"지원금", "지원금"}, ProvisionalResultCount: 5})
		assert.Equal(t, once, twice)
	})
}

// TS03: threshold monotonicity — raising threshold_default never raises
// the dynamic threshold for the same inputs.
func TestDynamicThreshold_Monotonic(t *testing.T) {
	low := Default()
	high := Default()
	high.ThresholdDefault = 0.40

	in := ThresholdInputs{Keywords: []string{"창업"}, ProvisionalResultCount: 5}
	assert.LessOrEqual(t, low.DynamicThreshold(in), high.DynamicThreshold(in))
}

// TS04: ShouldFallbackToWeb triggers on low count or low top score.
func TestShouldFallbackToWeb(t *testing.T) {
	cfg := Default()
	assert.True(t, cfg.ShouldFallbackToWeb(1, 0.9))
	assert.True(t, cfg.ShouldFallbackToWeb(5, 0.1))
	assert.False(t, cfg.ShouldFallbackToWeb(5, 0.9))
}

// TS05: Load merges a YAML override file on top of defaults.
func TestLoad_MergesYAMLOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "search.yaml")
	require.NoError(t, os.WriteFile(path, []byte("threshold_default: 0.30\nfinal_limit: 10\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 0.30, cfg.ThresholdDefault)
	assert.Equal(t, 10, cfg.FinalLimit)
	// Unset fields keep their defaults.
	assert.Equal(t, 100, cfg.CandidatesPerSource)
}

// TS06: Load with a nonexistent path silently falls back to defaults.
func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default().ThresholdDefault, cfg.ThresholdDefault)
}

// TS07: Validate rejects an inverted threshold ordering.
func TestValidate_RejectsInvertedThresholds(t *testing.T) {
	cfg := Default()
	cfg.ThresholdMin = 0.6
	assert.Error(t, cfg.Validate())
}
