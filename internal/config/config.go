package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Log         LogConfig         `yaml:"log" mapstructure:"log"`
	Similarity  SimilarityConfig  `yaml:"similarity" mapstructure:"similarity"`
	Quality     QualityConfig     `yaml:"quality" mapstructure:"quality"`
	Budget      BudgetConfig      `yaml:"budget" mapstructure:"budget"`
	Waterfall   WaterfallConfig   `yaml:"waterfall" mapstructure:"waterfall"`
	Concurrency ConcurrencyConfig `yaml:"concurrency" mapstructure:"concurrency"`
	Resilience  ResilienceConfig  `yaml:"resilience" mapstructure:"resilience"`
	Cache       CacheConfig       `yaml:"cache" mapstructure:"cache"`
	Calibrate   CalibrateConfig   `yaml:"calibrate" mapstructure:"calibrate"`
	Pricing     PricingConfig     `yaml:"pricing" mapstructure:"pricing"`
	Providers   ProvidersConfig   `yaml:"providers" mapstructure:"providers"`
	Discovery   DiscoveryConfig   `yaml:"discovery" mapstructure:"discovery"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// SimilarityConfig holds the identity-match thresholds (0-1 scale).
type SimilarityConfig struct {
	Cutoff             float64 `yaml:"cutoff" mapstructure:"cutoff"`
	StrongName         float64 `yaml:"strong_name" mapstructure:"strong_name"`
	ContainmentScore   float64 `yaml:"containment_score" mapstructure:"containment_score"`
	ContainmentMinLen  int     `yaml:"containment_min_len" mapstructure:"containment_min_len"`
	StrongAddressBonus float64 `yaml:"strong_address_bonus" mapstructure:"strong_address_bonus"`
	WeakAddressBonus   float64 `yaml:"weak_address_bonus" mapstructure:"weak_address_bonus"`
	MinSharedTokens    int     `yaml:"min_shared_tokens" mapstructure:"min_shared_tokens"`
	MinTokenLen        int     `yaml:"min_token_len" mapstructure:"min_token_len"`
}

// QualityConfig holds factor weights and recommendation thresholds.
type QualityConfig struct {
	// Free factors (sum = 100).
	NameWeight    float64 `yaml:"name_weight" mapstructure:"name_weight"`
	AddressWeight float64 `yaml:"address_weight" mapstructure:"address_weight"`
	PhoneWeight   float64 `yaml:"phone_weight" mapstructure:"phone_weight"`
	WebsiteWeight float64 `yaml:"website_weight" mapstructure:"website_weight"`

	// Paid factors, added on top of the free total.
	VerifiedEmailWeight   float64 `yaml:"verified_email_weight" mapstructure:"verified_email_weight"`
	UnverifiedEmailWeight float64 `yaml:"unverified_email_weight" mapstructure:"unverified_email_weight"`
	PatternEmailWeight    float64 `yaml:"pattern_email_weight" mapstructure:"pattern_email_weight"`
	OwnerContactWeight    float64 `yaml:"owner_contact_weight" mapstructure:"owner_contact_weight"`
	RegistryActiveWeight  float64 `yaml:"registry_active_weight" mapstructure:"registry_active_weight"`
	RegistryOtherWeight   float64 `yaml:"registry_other_weight" mapstructure:"registry_other_weight"`

	OwnerVerifiedConfidence int `yaml:"owner_verified_confidence" mapstructure:"owner_verified_confidence"`
	OwnerFallbackConfidence int `yaml:"owner_fallback_confidence" mapstructure:"owner_fallback_confidence"`

	HighQualityThreshold float64 `yaml:"high_quality_threshold" mapstructure:"high_quality_threshold"`
	GoodThreshold        float64 `yaml:"good_threshold" mapstructure:"good_threshold"`
	MarginalThreshold    float64 `yaml:"marginal_threshold" mapstructure:"marginal_threshold"`
}

// BudgetConfig holds the session ceiling and the per-record cap in USD.
type BudgetConfig struct {
	SessionCeiling float64 `yaml:"session_ceiling" mapstructure:"session_ceiling"`
	PerRecordCap   float64 `yaml:"per_record_cap" mapstructure:"per_record_cap"`
}

// WaterfallConfig configures the enrichment waterfall.
type WaterfallConfig struct {
	StagesPath             string  `yaml:"stages_path" mapstructure:"stages_path"`
	QualityFloor           float64 `yaml:"quality_floor" mapstructure:"quality_floor"`
	TargetScore            float64 `yaml:"target_score" mapstructure:"target_score"`
	SessionTimeoutSecs     int     `yaml:"session_timeout_secs" mapstructure:"session_timeout_secs"`
	ProbeWebsite           bool    `yaml:"probe_website" mapstructure:"probe_website"`
	ProbeTimeoutSecs       int     `yaml:"probe_timeout_secs" mapstructure:"probe_timeout_secs"`
	EmailHalfLifeDays      int     `yaml:"email_half_life_days" mapstructure:"email_half_life_days"`
	PatternEmailConfidence int     `yaml:"pattern_email_confidence" mapstructure:"pattern_email_confidence"`
}

// ConcurrencyConfig bounds in-flight work per record and per provider category.
type ConcurrencyConfig struct {
	MaxConcurrentRecords int     `yaml:"max_concurrent_records" mapstructure:"max_concurrent_records"`
	Website              int     `yaml:"website" mapstructure:"website"`
	PaidAPI              int     `yaml:"paid_api" mapstructure:"paid_api"`
	Registry             int     `yaml:"registry" mapstructure:"registry"`
	WebsiteRPS           float64 `yaml:"website_rps" mapstructure:"website_rps"`
	PaidAPIRPS           float64 `yaml:"paid_api_rps" mapstructure:"paid_api_rps"`
	RegistryRPS          float64 `yaml:"registry_rps" mapstructure:"registry_rps"`
}

// ResilienceConfig configures retries and circuit breakers for provider calls.
type ResilienceConfig struct {
	MaxAttempts      int     `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMs int     `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMs     int     `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
	Multiplier       float64 `yaml:"multiplier" mapstructure:"multiplier"`
	JitterFraction   float64 `yaml:"jitter_fraction" mapstructure:"jitter_fraction"`
	FailureThreshold int     `yaml:"failure_threshold" mapstructure:"failure_threshold"`
	ResetTimeoutSecs int     `yaml:"reset_timeout_secs" mapstructure:"reset_timeout_secs"`
}

// CacheConfig configures the provider response cache.
type CacheConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	Path        string `yaml:"path" mapstructure:"path"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	TTLHours    int    `yaml:"ttl_hours" mapstructure:"ttl_hours"`
}

// CalibrateConfig bounds the suggested qualification threshold.
type CalibrateConfig struct {
	MinThreshold float64 `yaml:"min_threshold" mapstructure:"min_threshold"`
	MaxThreshold float64 `yaml:"max_threshold" mapstructure:"max_threshold"`
	Fallback     float64 `yaml:"fallback" mapstructure:"fallback"`
	TargetRate   float64 `yaml:"target_rate" mapstructure:"target_rate"`
}

// PricingConfig holds the provider rate card in USD.
type PricingConfig struct {
	GooglePlacesPerSearch float64 `yaml:"google_places_per_search" mapstructure:"google_places_per_search"`
	FoursquarePerSearch   float64 `yaml:"foursquare_per_search" mapstructure:"foursquare_per_search"`
	HunterPerSearch       float64 `yaml:"hunter_per_search" mapstructure:"hunter_per_search"`
	NeverBouncePerEmail   float64 `yaml:"neverbounce_per_email" mapstructure:"neverbounce_per_email"`
	ApolloPerPerson       float64 `yaml:"apollo_per_person" mapstructure:"apollo_per_person"`
	RegistryPerLookup     float64 `yaml:"registry_per_lookup" mapstructure:"registry_per_lookup"`
}

// ProviderConfig points at a JSON-over-HTTP provider gateway.
type ProviderConfig struct {
	BaseURL     string `yaml:"base_url" mapstructure:"base_url"`
	Key         string `yaml:"key" mapstructure:"key"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// ProvidersConfig lists the enrichment and search gateways.
type ProvidersConfig struct {
	Hunter        ProviderConfig `yaml:"hunter" mapstructure:"hunter"`
	NeverBounce   ProviderConfig `yaml:"neverbounce" mapstructure:"neverbounce"`
	Apollo        ProviderConfig `yaml:"apollo" mapstructure:"apollo"`
	StateRegistry ProviderConfig `yaml:"state_registry" mapstructure:"state_registry"`
	GooglePlaces  ProviderConfig `yaml:"google_places" mapstructure:"google_places"`
	Foursquare    ProviderConfig `yaml:"foursquare" mapstructure:"foursquare"`
}

// DiscoveryConfig configures the query scheduler.
type DiscoveryConfig struct {
	TargetCount        int      `yaml:"target_count" mapstructure:"target_count"`
	MaxQueries         int      `yaml:"max_queries" mapstructure:"max_queries"`
	MaxResultsPerQuery int      `yaml:"max_results_per_query" mapstructure:"max_results_per_query"`
	Modifiers          []string `yaml:"modifiers" mapstructure:"modifiers"`
	Sources            []string `yaml:"sources" mapstructure:"sources"`
	DirectoryBlocklist []string `yaml:"directory_blocklist" mapstructure:"directory_blocklist"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("PROSPECT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("similarity.cutoff", 0.78)
	v.SetDefault("similarity.strong_name", 0.85)
	v.SetDefault("similarity.containment_score", 0.9)
	v.SetDefault("similarity.containment_min_len", 4)
	v.SetDefault("similarity.strong_address_bonus", 0.10)
	v.SetDefault("similarity.weak_address_bonus", 0.05)
	v.SetDefault("similarity.min_shared_tokens", 2)
	v.SetDefault("similarity.min_token_len", 4)

	v.SetDefault("quality.name_weight", 25)
	v.SetDefault("quality.address_weight", 25)
	v.SetDefault("quality.phone_weight", 25)
	v.SetDefault("quality.website_weight", 25)
	v.SetDefault("quality.verified_email_weight", 25)
	v.SetDefault("quality.unverified_email_weight", 10)
	v.SetDefault("quality.pattern_email_weight", 3)
	v.SetDefault("quality.owner_contact_weight", 10)
	v.SetDefault("quality.registry_active_weight", 10)
	v.SetDefault("quality.registry_other_weight", 3)
	v.SetDefault("quality.owner_verified_confidence", 70)
	v.SetDefault("quality.owner_fallback_confidence", 60)
	v.SetDefault("quality.high_quality_threshold", 70)
	v.SetDefault("quality.good_threshold", 55)
	v.SetDefault("quality.marginal_threshold", 40)

	v.SetDefault("budget.session_ceiling", 25.0)
	v.SetDefault("budget.per_record_cap", 2.0)

	v.SetDefault("waterfall.stages_path", "waterfall.yaml")
	v.SetDefault("waterfall.quality_floor", 30)
	v.SetDefault("waterfall.target_score", 90)
	v.SetDefault("waterfall.session_timeout_secs", 0)
	v.SetDefault("waterfall.probe_website", false)
	v.SetDefault("waterfall.probe_timeout_secs", 5)
	v.SetDefault("waterfall.email_half_life_days", 180)
	v.SetDefault("waterfall.pattern_email_confidence", 40)

	v.SetDefault("concurrency.max_concurrent_records", 5)
	v.SetDefault("concurrency.website", 10)
	v.SetDefault("concurrency.paid_api", 3)
	v.SetDefault("concurrency.registry", 2)
	v.SetDefault("concurrency.website_rps", 10)
	v.SetDefault("concurrency.paid_api_rps", 5)
	v.SetDefault("concurrency.registry_rps", 2)

	v.SetDefault("resilience.max_attempts", 3)
	v.SetDefault("resilience.initial_backoff_ms", 500)
	v.SetDefault("resilience.max_backoff_ms", 10000)
	v.SetDefault("resilience.multiplier", 2.0)
	v.SetDefault("resilience.jitter_fraction", 0.25)
	v.SetDefault("resilience.failure_threshold", 5)
	v.SetDefault("resilience.reset_timeout_secs", 30)

	v.SetDefault("cache.driver", "memory")
	v.SetDefault("cache.path", "prospect-cache.db")
	v.SetDefault("cache.ttl_hours", 168)

	v.SetDefault("calibrate.min_threshold", 45)
	v.SetDefault("calibrate.max_threshold", 75)
	v.SetDefault("calibrate.fallback", 58)
	v.SetDefault("calibrate.target_rate", 30)

	v.SetDefault("pricing.google_places_per_search", 0.032)
	v.SetDefault("pricing.foursquare_per_search", 0.0)
	v.SetDefault("pricing.hunter_per_search", 0.034)
	v.SetDefault("pricing.neverbounce_per_email", 0.008)
	v.SetDefault("pricing.apollo_per_person", 1.00)
	v.SetDefault("pricing.registry_per_lookup", 0.0)

	v.SetDefault("providers.hunter.timeout_secs", 15)
	v.SetDefault("providers.neverbounce.timeout_secs", 15)
	v.SetDefault("providers.apollo.timeout_secs", 30)
	v.SetDefault("providers.state_registry.timeout_secs", 20)
	v.SetDefault("providers.google_places.timeout_secs", 15)
	v.SetDefault("providers.foursquare.timeout_secs", 15)

	v.SetDefault("discovery.target_count", 50)
	v.SetDefault("discovery.max_queries", 12)
	v.SetDefault("discovery.max_results_per_query", 20)
	v.SetDefault("discovery.modifiers", []string{"", "best", "local", "family owned", "licensed"})
	v.SetDefault("discovery.sources", []string{"google_places", "foursquare"})
	v.SetDefault("discovery.directory_blocklist", []string{
		"yelp.com", "facebook.com", "instagram.com", "linkedin.com", "yellowpages.com",
		"bbb.org", "angi.com", "homeadvisor.com", "thumbtack.com", "nextdoor.com",
	})
}

// Validate checks the loaded configuration for values the pipeline cannot
// run with.
func (c *Config) Validate() error {
	var errs []string

	if c.Similarity.Cutoff <= 0 || c.Similarity.Cutoff > 1 {
		errs = append(errs, "similarity.cutoff must be in (0, 1]")
	}
	if c.Similarity.StrongName < c.Similarity.Cutoff || c.Similarity.StrongName > 1 {
		errs = append(errs, "similarity.strong_name must be in [cutoff, 1]")
	}
	if c.Budget.SessionCeiling < 0 {
		errs = append(errs, "budget.session_ceiling must be >= 0")
	}
	if c.Budget.PerRecordCap < 0 {
		errs = append(errs, "budget.per_record_cap must be >= 0")
	}
	if c.Waterfall.QualityFloor < 0 || c.Waterfall.QualityFloor > 100 {
		errs = append(errs, "waterfall.quality_floor must be between 0 and 100")
	}
	if c.Concurrency.MaxConcurrentRecords < 1 {
		errs = append(errs, "concurrency.max_concurrent_records must be >= 1")
	}
	if c.Calibrate.MinThreshold > c.Calibrate.MaxThreshold {
		errs = append(errs, "calibrate.min_threshold must be <= max_threshold")
	}
	switch c.Cache.Driver {
	case "memory", "sqlite", "none":
	case "postgres":
		if c.Cache.DatabaseURL == "" {
			errs = append(errs, "cache.database_url is required for the postgres driver")
		}
	default:
		errs = append(errs, "cache.driver must be one of memory, sqlite, postgres, none")
	}

	if len(errs) > 0 {
		return eris.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
