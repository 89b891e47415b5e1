package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })
	return dir
}

func TestLoadDefaults(t *testing.T) {
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.InDelta(t, 0.78, cfg.Similarity.Cutoff, 0.001)
	assert.InDelta(t, 0.85, cfg.Similarity.StrongName, 0.001)
	assert.InDelta(t, 0.9, cfg.Similarity.ContainmentScore, 0.001)
	assert.InDelta(t, 25, cfg.Quality.NameWeight, 0.001)
	assert.Equal(t, 60, cfg.Quality.OwnerFallbackConfidence)
	assert.InDelta(t, 30, cfg.Waterfall.QualityFloor, 0.001)
	assert.Equal(t, "waterfall.yaml", cfg.Waterfall.StagesPath)
	assert.Equal(t, 5, cfg.Concurrency.MaxConcurrentRecords)
	assert.Equal(t, "memory", cfg.Cache.Driver)
	assert.InDelta(t, 45, cfg.Calibrate.MinThreshold, 0.001)
	assert.InDelta(t, 75, cfg.Calibrate.MaxThreshold, 0.001)
	assert.InDelta(t, 58, cfg.Calibrate.Fallback, 0.001)
	assert.InDelta(t, 0.034, cfg.Pricing.HunterPerSearch, 0.0001)
	assert.InDelta(t, 0.008, cfg.Pricing.NeverBouncePerEmail, 0.0001)
	assert.InDelta(t, 1.00, cfg.Pricing.ApolloPerPerson, 0.0001)
	assert.Equal(t, []string{"google_places", "foursquare"}, cfg.Discovery.Sources)
	assert.Contains(t, cfg.Discovery.DirectoryBlocklist, "yelp.com")
	assert.NoError(t, cfg.Validate())
}

func TestLoadFromYAML(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
log:
  level: debug
  format: console
budget:
  session_ceiling: 0.05
cache:
  driver: sqlite
  path: /tmp/cache.db
concurrency:
  max_concurrent_records: 12
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.InDelta(t, 0.05, cfg.Budget.SessionCeiling, 0.0001)
	assert.Equal(t, "sqlite", cfg.Cache.Driver)
	assert.Equal(t, "/tmp/cache.db", cfg.Cache.Path)
	assert.Equal(t, 12, cfg.Concurrency.MaxConcurrentRecords)
	// Defaults still apply for unset values
	assert.InDelta(t, 2.0, cfg.Budget.PerRecordCap, 0.0001)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
cache:
  driver: sqlite
log:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	t.Setenv("PROSPECT_CACHE_DRIVER", "memory")
	t.Setenv("PROSPECT_LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "memory", cfg.Cache.Driver)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadEnvOverridesDefaults(t *testing.T) {
	chdirTemp(t)

	t.Setenv("PROSPECT_BUDGET_SESSION_CEILING", "3.5")

	cfg, err := Load()
	require.NoError(t, err)
	assert.InDelta(t, 3.5, cfg.Budget.SessionCeiling, 0.0001)
}

func TestLoadInvalidYAML(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("log: [unclosed"), 0644))

	_, err := Load()
	assert.Error(t, err)
}

func TestInitLoggerConsole(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerJSON(t *testing.T) {
	err := InitLogger(LogConfig{Level: "info", Format: "json"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerInvalidLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "invalid", Format: "json"})
	assert.Error(t, err)
}

func validDefaults(t *testing.T) *Config {
	t.Helper()
	chdirTemp(t)
	cfg, err := Load()
	require.NoError(t, err)
	return cfg
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"defaults", func(*Config) {}, ""},
		{"cutoff out of range", func(c *Config) { c.Similarity.Cutoff = 1.5 }, "similarity.cutoff"},
		{"strong name below cutoff", func(c *Config) { c.Similarity.StrongName = 0.5 }, "similarity.strong_name"},
		{"negative ceiling", func(c *Config) { c.Budget.SessionCeiling = -1 }, "budget.session_ceiling"},
		{"negative per-record cap", func(c *Config) { c.Budget.PerRecordCap = -0.1 }, "budget.per_record_cap"},
		{"floor above 100", func(c *Config) { c.Waterfall.QualityFloor = 101 }, "waterfall.quality_floor"},
		{"zero concurrency", func(c *Config) { c.Concurrency.MaxConcurrentRecords = 0 }, "max_concurrent_records"},
		{"inverted band", func(c *Config) { c.Calibrate.MinThreshold = 80 }, "calibrate.min_threshold"},
		{"postgres without url", func(c *Config) { c.Cache.Driver = "postgres" }, "cache.database_url"},
		{"unknown driver", func(c *Config) { c.Cache.Driver = "redis" }, "cache.driver"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validDefaults(t)
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
