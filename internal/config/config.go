// File: internal/config/config.go
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Interface is the read contract components receive. Keeping consumers off
// the concrete struct makes them mockable in tests.
type Interface interface {
	Logger() LoggerConfig
	Server() ServerConfig
	Engine() EngineConfig
	RateLimit() RateLimitConfig
	Judge() JudgeConfig
	Actions() ActionsConfig
	Bulk() BulkConfig
	Commerce() CommerceConfig
	LLM() LLMConfig
}

// Config holds the entire application configuration.
type Config struct {
	LoggerCfg    LoggerConfig    `mapstructure:"logger" yaml:"logger"`
	ServerCfg    ServerConfig    `mapstructure:"server" yaml:"server"`
	EngineCfg    EngineConfig    `mapstructure:"engine" yaml:"engine"`
	RateLimitCfg RateLimitConfig `mapstructure:"rate_limit" yaml:"rate_limit"`
	JudgeCfg     JudgeConfig     `mapstructure:"judge" yaml:"judge"`
	ActionsCfg   ActionsConfig   `mapstructure:"actions" yaml:"actions"`
	BulkCfg      BulkConfig      `mapstructure:"bulk" yaml:"bulk"`
	CommerceCfg  CommerceConfig  `mapstructure:"commerce" yaml:"commerce"`
	LLMCfg       LLMConfig       `mapstructure:"llm" yaml:"llm"`
}

func (c *Config) Logger() LoggerConfig       { return c.LoggerCfg }
func (c *Config) Server() ServerConfig       { return c.ServerCfg }
func (c *Config) Engine() EngineConfig       { return c.EngineCfg }
func (c *Config) RateLimit() RateLimitConfig { return c.RateLimitCfg }
func (c *Config) Judge() JudgeConfig         { return c.JudgeCfg }
func (c *Config) Actions() ActionsConfig     { return c.ActionsCfg }
func (c *Config) Bulk() BulkConfig           { return c.BulkCfg }
func (c *Config) Commerce() CommerceConfig   { return c.CommerceCfg }
func (c *Config) LLM() LLMConfig             { return c.LLMCfg }

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string `mapstructure:"level" yaml:"level"`
	Format      string `mapstructure:"format" yaml:"format"`
	AddSource   bool   `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int    `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int    `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool   `mapstructure:"compress" yaml:"compress"`
}

// ServerConfig configures the HTTP/SSE front end.
type ServerConfig struct {
	Address           string        `mapstructure:"address" yaml:"address"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
	KeepAliveInterval time.Duration `mapstructure:"keep_alive_interval" yaml:"keep_alive_interval"`
	JWTSecret         string        `mapstructure:"jwt_secret" yaml:"-"`
}

// EngineConfig tunes the conversation execution engine.
type EngineConfig struct {
	TurnTimeout     time.Duration `mapstructure:"turn_timeout" yaml:"turn_timeout"`
	SessionIdleTTL  time.Duration `mapstructure:"session_idle_ttl" yaml:"session_idle_ttl"`
	ChunkBufferSize int           `mapstructure:"chunk_buffer_size" yaml:"chunk_buffer_size"`
	ToolCacheSize   int           `mapstructure:"tool_cache_size" yaml:"tool_cache_size"`
}

// RateLimitTier is one (window, max requests) admission policy.
type RateLimitTier struct {
	Window      time.Duration `mapstructure:"window" yaml:"window"`
	MaxRequests int           `mapstructure:"max_requests" yaml:"max_requests"`
}

// RateLimitConfig holds the tier table and sweep interval. The limiter itself
// is tier-agnostic; callers pick the tier per identity.
type RateLimitConfig struct {
	SweepInterval time.Duration            `mapstructure:"sweep_interval" yaml:"sweep_interval"`
	Tiers         map[string]RateLimitTier `mapstructure:"tiers" yaml:"tiers"`
}

// JudgePolicy is the externally tunable severity/threshold table. Thresholds
// are product policy, not structure, so they live in config.
type JudgePolicy struct {
	MaxBase64TokenLen     int      `mapstructure:"max_base64_token_len" yaml:"max_base64_token_len"`
	MaxPercentEncoded     int      `mapstructure:"max_percent_encoded" yaml:"max_percent_encoded"`
	MaxUnicodeEscapes     int      `mapstructure:"max_unicode_escapes" yaml:"max_unicode_escapes"`
	MaxSymbolRatio        float64  `mapstructure:"max_symbol_ratio" yaml:"max_symbol_ratio"`
	MinPrice              float64  `mapstructure:"min_price" yaml:"min_price"`
	MaxDiscountPercent    float64  `mapstructure:"max_discount_percent" yaml:"max_discount_percent"`
	SuspiciousCouponWords []string `mapstructure:"suspicious_coupon_words" yaml:"suspicious_coupon_words"`
	B2CMaxQuantity        int      `mapstructure:"b2c_max_quantity" yaml:"b2c_max_quantity"`
	B2BMaxQuantity        int      `mapstructure:"b2b_max_quantity" yaml:"b2b_max_quantity"`
	B2CMinCartValue       float64  `mapstructure:"b2c_min_cart_value" yaml:"b2c_min_cart_value"`
	B2CMaxCartValue       float64  `mapstructure:"b2c_max_cart_value" yaml:"b2c_max_cart_value"`
	B2BMinCartValue       float64  `mapstructure:"b2b_min_cart_value" yaml:"b2b_min_cart_value"`
	B2BMaxCartValue       float64  `mapstructure:"b2b_max_cart_value" yaml:"b2b_max_cart_value"`
	B2CRestrictedOps      []string `mapstructure:"b2c_restricted_ops" yaml:"b2c_restricted_ops"`
	B2BRestrictedOps      []string `mapstructure:"b2b_restricted_ops" yaml:"b2b_restricted_ops"`
}

// JudgeConfig wraps the policy table.
type JudgeConfig struct {
	Policy JudgePolicy `mapstructure:"policy" yaml:"policy"`
}

// ActionsConfig points at the action-definition file and tunes hot reload.
type ActionsConfig struct {
	Path           string        `mapstructure:"path" yaml:"path"`
	HotReload      bool          `mapstructure:"hot_reload" yaml:"hot_reload"`
	ReloadDebounce time.Duration `mapstructure:"reload_debounce" yaml:"reload_debounce"`
}

// BulkConfig tunes the secure CSV ingestion pipeline.
type BulkConfig struct {
	MaxRows          int           `mapstructure:"max_rows" yaml:"max_rows"`
	MaxPayloadBytes  int64         `mapstructure:"max_payload_bytes" yaml:"max_payload_bytes"`
	BatchSize        int           `mapstructure:"batch_size" yaml:"batch_size"`
	BatchConcurrency int           `mapstructure:"batch_concurrency" yaml:"batch_concurrency"`
	CacheCapacity    int           `mapstructure:"cache_capacity" yaml:"cache_capacity"`
	CacheTTL         time.Duration `mapstructure:"cache_ttl" yaml:"cache_ttl"`
}

// CommerceConfig configures the commerce-data client.
type CommerceConfig struct {
	BaseURL        string        `mapstructure:"base_url" yaml:"base_url"`
	APIKey         string        `mapstructure:"api_key" yaml:"-"`
	RequestTimeout time.Duration `mapstructure:"request_timeout" yaml:"request_timeout"`
	RateLimit      float64       `mapstructure:"rate_limit" yaml:"rate_limit"`
	RateBurst      int           `mapstructure:"rate_burst" yaml:"rate_burst"`
}

// LLMConfig configures the model tiers.
type LLMConfig struct {
	APIKey        string        `mapstructure:"api_key" yaml:"-"`
	FastModel     string        `mapstructure:"fast_model" yaml:"fast_model"`
	PowerfulModel string        `mapstructure:"powerful_model" yaml:"powerful_model"`
	APITimeout    time.Duration `mapstructure:"api_timeout" yaml:"api_timeout"`
	Temperature   float32       `mapstructure:"temperature" yaml:"temperature"`
}

// NewDefaultConfig creates a configuration populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// Cannot happen with the built-in defaults.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults initializes default values for all configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "shoptalk")
	v.SetDefault("logger.log_file", "shoptalk.log")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)

	// -- Server --
	v.SetDefault("server.address", ":8080")
	v.SetDefault("server.read_header_timeout", "10s")
	v.SetDefault("server.shutdown_timeout", "15s")
	v.SetDefault("server.keep_alive_interval", "15s")

	// -- Engine --
	v.SetDefault("engine.turn_timeout", "2m")
	v.SetDefault("engine.session_idle_ttl", "30m")
	v.SetDefault("engine.chunk_buffer_size", 64)
	v.SetDefault("engine.tool_cache_size", 128)

	// -- Rate limiting --
	v.SetDefault("rate_limit.sweep_interval", "60s")
	v.SetDefault("rate_limit.tiers.anonymous.window", "60s")
	v.SetDefault("rate_limit.tiers.anonymous.max_requests", 10)
	v.SetDefault("rate_limit.tiers.authenticated.window", "60s")
	v.SetDefault("rate_limit.tiers.authenticated.max_requests", 60)
	v.SetDefault("rate_limit.tiers.business.window", "60s")
	v.SetDefault("rate_limit.tiers.business.max_requests", 300)

	// -- Judge policy --
	v.SetDefault("judge.policy.max_base64_token_len", 20)
	v.SetDefault("judge.policy.max_percent_encoded", 5)
	v.SetDefault("judge.policy.max_unicode_escapes", 3)
	v.SetDefault("judge.policy.max_symbol_ratio", 0.3)
	v.SetDefault("judge.policy.min_price", 0.01)
	v.SetDefault("judge.policy.max_discount_percent", 90)
	v.SetDefault("judge.policy.suspicious_coupon_words", []string{"admin", "test", "debug", "internal", "staff"})
	v.SetDefault("judge.policy.b2c_max_quantity", 100)
	v.SetDefault("judge.policy.b2b_max_quantity", 10000)
	v.SetDefault("judge.policy.b2c_min_cart_value", 1.0)
	v.SetDefault("judge.policy.b2c_max_cart_value", 50000.0)
	v.SetDefault("judge.policy.b2b_min_cart_value", 100.0)
	v.SetDefault("judge.policy.b2b_max_cart_value", 1000000.0)
	v.SetDefault("judge.policy.b2c_restricted_ops", []string{"purchase order", "net terms", "tax exemption", "net-30", "net 30"})
	v.SetDefault("judge.policy.b2b_restricted_ops", []string{"wishlist", "gift card", "gift wrap"})

	// -- Actions --
	v.SetDefault("actions.path", "actions.json")
	v.SetDefault("actions.hot_reload", true)
	v.SetDefault("actions.reload_debounce", "300ms")

	// -- Bulk ingestion --
	v.SetDefault("bulk.max_rows", 1000)
	v.SetDefault("bulk.max_payload_bytes", 5*1024*1024)
	v.SetDefault("bulk.batch_size", 50)
	v.SetDefault("bulk.batch_concurrency", 10)
	v.SetDefault("bulk.cache_capacity", 1000)
	v.SetDefault("bulk.cache_ttl", "5m")

	// -- Commerce client --
	v.SetDefault("commerce.base_url", "http://localhost:9000")
	v.SetDefault("commerce.request_timeout", "15s")
	v.SetDefault("commerce.rate_limit", 20.0)
	v.SetDefault("commerce.rate_burst", 5)

	// -- LLM --
	v.SetDefault("llm.fast_model", "gemini-2.5-flash")
	v.SetDefault("llm.powerful_model", "gemini-2.5-pro")
	v.SetDefault("llm.api_timeout", "60s")
	v.SetDefault("llm.temperature", 0.3)
}

// NewConfigFromViper creates a configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	// Bind environment variables for sensitive data.
	v.BindEnv("llm.api_key", "SHOPTALK_LLM_API_KEY")
	v.BindEnv("commerce.api_key", "SHOPTALK_COMMERCE_API_KEY")
	v.BindEnv("server.jwt_secret", "SHOPTALK_JWT_SECRET")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if c.BulkCfg.MaxRows <= 0 {
		return fmt.Errorf("bulk.max_rows must be a positive integer")
	}
	if c.BulkCfg.BatchConcurrency <= 0 {
		return fmt.Errorf("bulk.batch_concurrency must be a positive integer")
	}
	if c.EngineCfg.ToolCacheSize <= 0 {
		return fmt.Errorf("engine.tool_cache_size must be a positive integer")
	}
	if len(c.RateLimitCfg.Tiers) == 0 {
		return fmt.Errorf("rate_limit.tiers must define at least one tier")
	}
	for name, tier := range c.RateLimitCfg.Tiers {
		if tier.MaxRequests <= 0 || tier.Window <= 0 {
			return fmt.Errorf("rate_limit.tiers.%s must have positive window and max_requests", name)
		}
	}
	if err := c.JudgeCfg.Policy.Validate(); err != nil {
		return fmt.Errorf("judge policy invalid: %w", err)
	}
	return nil
}

// Validate checks the Judge policy table.
func (p *JudgePolicy) Validate() error {
	if p.MaxSymbolRatio <= 0 || p.MaxSymbolRatio >= 1 {
		return fmt.Errorf("max_symbol_ratio must be between 0 and 1")
	}
	if p.B2CMaxQuantity <= 0 || p.B2BMaxQuantity <= 0 {
		return fmt.Errorf("quantity ceilings must be positive")
	}
	if p.B2CMaxCartValue <= p.B2CMinCartValue {
		return fmt.Errorf("b2c cart value bounds are inverted")
	}
	if p.B2BMaxCartValue <= p.B2BMinCartValue {
		return fmt.Errorf("b2b cart value bounds are inverted")
	}
	return nil
}
