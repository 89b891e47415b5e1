package waterfall

import (
	"os"
	"time"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/prospect-cli/internal/config"
	"github.com/sells-group/prospect-cli/internal/model"
	"github.com/sells-group/prospect-cli/internal/resilience"
)

// Config is the stage configuration read from waterfall.yaml.
type Config struct {
	Decay  DecayConfig                     `yaml:"decay"`
	Stages map[model.StageName]StageConfig `yaml:"stages"`
}

// DecayConfig holds time decay parameters for cached email confidence.
type DecayConfig struct {
	HalfLifeDays int     `yaml:"half_life_days"`
	Floor        float64 `yaml:"floor"`
}

// StageConfig configures one enrichment stage.
type StageConfig struct {
	// Enabled defaults to true when omitted.
	Enabled *bool `yaml:"enabled,omitempty"`
	// Provider is the registry name of the client the stage calls.
	Provider string `yaml:"provider"`
	// EstimatedCost is reserved before the call. Email verification
	// multiplies it by the number of candidates.
	EstimatedCost float64             `yaml:"estimated_cost"`
	TimeoutSecs   int                 `yaml:"timeout_secs"`
	Category      resilience.Category `yaml:"category"`
	CacheTTLHours int                 `yaml:"cache_ttl_hours"`
}

// IsEnabled reports whether the stage is switched on.
func (s StageConfig) IsEnabled() bool {
	return s.Enabled == nil || *s.Enabled
}

// Timeout returns the per-call timeout.
func (s StageConfig) Timeout() time.Duration {
	if s.TimeoutSecs <= 0 {
		return 30 * time.Second
	}
	return time.Duration(s.TimeoutSecs) * time.Second
}

// CacheTTL returns how long responses are cached. Zero disables caching.
func (s StageConfig) CacheTTL() time.Duration {
	return time.Duration(s.CacheTTLHours) * time.Hour
}

// DefaultConfig returns the built-in stage table priced from the rate card.
func DefaultConfig(pricing config.PricingConfig, wcfg config.WaterfallConfig) *Config {
	return &Config{
		Decay: DecayConfig{HalfLifeDays: wcfg.EmailHalfLifeDays},
		Stages: map[model.StageName]StageConfig{
			model.StageFreeValidation: {
				TimeoutSecs: wcfg.ProbeTimeoutSecs,
				Category:    resilience.CategoryWebsite,
			},
			model.StageDomainEmailDiscovery: {
				Provider:      string(model.SourceHunter),
				EstimatedCost: pricing.HunterPerSearch,
				TimeoutSecs:   30,
				Category:      resilience.CategoryPaidAPI,
				CacheTTLHours: 24 * 30,
			},
			model.StageEmailVerification: {
				Provider:      string(model.SourceNeverBounce),
				EstimatedCost: pricing.NeverBouncePerEmail,
				TimeoutSecs:   20,
				Category:      resilience.CategoryPaidAPI,
				CacheTTLHours: 24 * 7,
			},
			model.StagePersonEnrichment: {
				Provider:      string(model.SourceApollo),
				EstimatedCost: pricing.ApolloPerPerson,
				TimeoutSecs:   15,
				Category:      resilience.CategoryPaidAPI,
				CacheTTLHours: 24 * 30,
			},
			model.StageRegistryLookup: {
				Provider:      string(model.SourceStateRegistry),
				EstimatedCost: pricing.RegistryPerLookup,
				TimeoutSecs:   15,
				Category:      resilience.CategoryRegistry,
				CacheTTLHours: 24 * 30,
			},
		},
	}
}

// Stage returns the configuration for a stage.
func (c *Config) Stage(name model.StageName) StageConfig {
	return c.Stages[name]
}

// LoadConfig reads waterfall.yaml and overlays it on defaults. Unset stage
// fields keep their default values.
func LoadConfig(path string, defaults *Config) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "waterfall: read config %s", path)
	}

	// The YAML has a top-level "waterfall" key.
	var wrapper struct {
		Waterfall struct {
			Decay  DecayConfig                      `yaml:"decay"`
			Stages map[model.StageName]stageOverlay `yaml:"stages"`
		} `yaml:"waterfall"`
	}
	if err := yaml.Unmarshal(data, &wrapper); err != nil {
		return nil, eris.Wrap(err, "waterfall: parse config")
	}

	cfg := &Config{Decay: defaults.Decay, Stages: make(map[model.StageName]StageConfig, len(defaults.Stages))}
	for name, sc := range defaults.Stages {
		cfg.Stages[name] = sc
	}
	if wrapper.Waterfall.Decay.HalfLifeDays > 0 {
		cfg.Decay.HalfLifeDays = wrapper.Waterfall.Decay.HalfLifeDays
	}
	if wrapper.Waterfall.Decay.Floor > 0 {
		cfg.Decay.Floor = wrapper.Waterfall.Decay.Floor
	}

	for name, over := range wrapper.Waterfall.Stages {
		if model.StageIndex(name) < 0 {
			return nil, eris.Errorf("waterfall: unknown stage %q", name)
		}
		sc := cfg.Stages[name]
		if over.Enabled != nil {
			sc.Enabled = over.Enabled
		}
		if over.Provider != "" {
			sc.Provider = over.Provider
		}
		if over.EstimatedCost != nil {
			sc.EstimatedCost = max(*over.EstimatedCost, 0)
		}
		if over.TimeoutSecs > 0 {
			sc.TimeoutSecs = over.TimeoutSecs
		}
		if over.Category != "" {
			sc.Category = over.Category
		}
		if over.CacheTTLHours != nil {
			sc.CacheTTLHours = max(*over.CacheTTLHours, 0)
		}
		cfg.Stages[name] = sc
	}
	return cfg, nil
}

// stageOverlay distinguishes an explicit zero from an omitted key.
type stageOverlay struct {
	Enabled       *bool               `yaml:"enabled"`
	Provider      string              `yaml:"provider"`
	EstimatedCost *float64            `yaml:"estimated_cost"`
	TimeoutSecs   int                 `yaml:"timeout_secs"`
	Category      resilience.Category `yaml:"category"`
	CacheTTLHours *int                `yaml:"cache_ttl_hours"`
}

// LoadConfigOrDefault is LoadConfig that falls back to defaults when the
// file does not exist.
func LoadConfigOrDefault(path string, defaults *Config) (*Config, error) {
	if path == "" {
		return defaults, nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return defaults, nil
	}
	return LoadConfig(path, defaults)
}
