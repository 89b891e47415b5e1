package waterfall

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/prospect-cli/internal/config"
	"github.com/sells-group/prospect-cli/internal/model"
	"github.com/sells-group/prospect-cli/internal/resilience"
)

func testPricing() config.PricingConfig {
	return config.PricingConfig{
		HunterPerSearch:     0.034,
		NeverBouncePerEmail: 0.008,
		ApolloPerPerson:     1.00,
	}
}

func testWaterfallConfig() config.WaterfallConfig {
	return config.WaterfallConfig{
		QualityFloor:           30,
		TargetScore:            90,
		ProbeTimeoutSecs:       5,
		EmailHalfLifeDays:      180,
		PatternEmailConfidence: 40,
	}
}

func TestDefaultConfig(t *testing.T) {
	t.Parallel()
	cfg := DefaultConfig(testPricing(), testWaterfallConfig())

	for _, name := range model.StageOrder {
		assert.True(t, cfg.Stage(name).IsEnabled(), name)
	}
	assert.Equal(t, 180, cfg.Decay.HalfLifeDays)

	dd := cfg.Stage(model.StageDomainEmailDiscovery)
	assert.Equal(t, "hunter", dd.Provider)
	assert.InDelta(t, 0.034, dd.EstimatedCost, 1e-9)
	assert.Equal(t, resilience.CategoryPaidAPI, dd.Category)
	assert.Equal(t, 30*24*time.Hour, dd.CacheTTL())

	ev := cfg.Stage(model.StageEmailVerification)
	assert.Equal(t, "neverbounce", ev.Provider)
	assert.InDelta(t, 0.008, ev.EstimatedCost, 1e-9)

	rl := cfg.Stage(model.StageRegistryLookup)
	assert.Equal(t, resilience.CategoryRegistry, rl.Category)
	assert.Zero(t, rl.EstimatedCost)

	fv := cfg.Stage(model.StageFreeValidation)
	assert.Equal(t, 5*time.Second, fv.Timeout())
	assert.Empty(t, fv.Provider)
}

func TestStageConfig_Timeout(t *testing.T) {
	t.Parallel()
	assert.Equal(t, 30*time.Second, StageConfig{}.Timeout())
	assert.Equal(t, 7*time.Second, StageConfig{TimeoutSecs: 7}.Timeout())
	assert.Zero(t, StageConfig{}.CacheTTL())
}

func TestLoadConfig(t *testing.T) {
	t.Parallel()
	yaml := `
waterfall:
  decay:
    half_life_days: 90
    floor: 5
  stages:
    premium_person_enrichment:
      enabled: false
    email_verification:
      provider: zerobounce
      estimated_cost: 0.01
      timeout_secs: 12
    compliance_registry_lookup:
      cache_ttl_hours: 0
      category: website
`
	path := filepath.Join(t.TempDir(), "waterfall.yaml")
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))

	defaults := DefaultConfig(testPricing(), testWaterfallConfig())
	cfg, err := LoadConfig(path, defaults)
	require.NoError(t, err)

	assert.Equal(t, 90, cfg.Decay.HalfLifeDays)
	assert.InDelta(t, 5, cfg.Decay.Floor, 1e-9)

	assert.False(t, cfg.Stage(model.StagePersonEnrichment).IsEnabled())
	// Omitted keys keep their defaults.
	assert.Equal(t, "apollo", cfg.Stage(model.StagePersonEnrichment).Provider)

	ev := cfg.Stage(model.StageEmailVerification)
	assert.Equal(t, "zerobounce", ev.Provider)
	assert.InDelta(t, 0.01, ev.EstimatedCost, 1e-9)
	assert.Equal(t, 12*time.Second, ev.Timeout())
	assert.Equal(t, 7*24*time.Hour, ev.CacheTTL())

	rl := cfg.Stage(model.StageRegistryLookup)
	assert.Zero(t, rl.CacheTTL())
	assert.Equal(t, resilience.CategoryWebsite, rl.Category)

	// Defaults are not mutated.
	assert.True(t, defaults.Stage(model.StagePersonEnrichment).IsEnabled())
	assert.Equal(t, "neverbounce", defaults.Stage(model.StageEmailVerification).Provider)
}

func TestLoadConfig_ZeroCostOverride(t *testing.T) {
	t.Parallel()
	yaml := `
waterfall:
  stages:
    domain_email_discovery:
      estimated_cost: 0
`
	path := filepath.Join(t.TempDir(), "waterfall.yaml")
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))

	cfg, err := LoadConfig(path, DefaultConfig(testPricing(), testWaterfallConfig()))
	require.NoError(t, err)
	assert.Zero(t, cfg.Stage(model.StageDomainEmailDiscovery).EstimatedCost)
}

func TestLoadConfig_UnknownStage(t *testing.T) {
	t.Parallel()
	yaml := `
waterfall:
  stages:
    crystal_ball:
      enabled: true
`
	path := filepath.Join(t.TempDir(), "waterfall.yaml")
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))

	_, err := LoadConfig(path, DefaultConfig(testPricing(), testWaterfallConfig()))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "crystal_ball")
}

func TestLoadConfig_FileNotFound(t *testing.T) {
	t.Parallel()
	_, err := LoadConfig("/nonexistent/waterfall.yaml", DefaultConfig(testPricing(), testWaterfallConfig()))
	assert.Error(t, err)
}

func TestLoadConfig_InvalidYAML(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "waterfall.yaml")
	require.NoError(t, os.WriteFile(path, []byte("waterfall: [unclosed"), 0o644))

	_, err := LoadConfig(path, DefaultConfig(testPricing(), testWaterfallConfig()))
	assert.Error(t, err)
}

func TestLoadConfigOrDefault(t *testing.T) {
	t.Parallel()
	defaults := DefaultConfig(testPricing(), testWaterfallConfig())

	cfg, err := LoadConfigOrDefault("", defaults)
	require.NoError(t, err)
	assert.Same(t, defaults, cfg)

	cfg, err = LoadConfigOrDefault(filepath.Join(t.TempDir(), "missing.yaml"), defaults)
	require.NoError(t, err)
	assert.Same(t, defaults, cfg)
}
