package config

import (
	"time"

	"github.com/examtile/examtile/internal/providers"
	"github.com/examtile/examtile/internal/ratelimit"
	"github.com/examtile/examtile/internal/tiling"
)

// Config holds examtile configuration.
// Stored at: {home}/config.yaml
type Config struct {
	Provider  string                 `mapstructure:"provider" json:"provider" yaml:"provider"`
	Providers map[string]ProviderCfg `mapstructure:"providers" json:"providers" yaml:"providers"`
	Tiling    TilingCfg              `mapstructure:"tiling" json:"tiling" yaml:"tiling"`
	RateLimit RateLimitCfg           `mapstructure:"rate_limit" json:"rate_limit" yaml:"rate_limit"`
	Inference InferenceCfg           `mapstructure:"inference" json:"inference" yaml:"inference"`
	Prompt    PromptCfg              `mapstructure:"prompt" json:"prompt" yaml:"prompt"`
	Server    ServerCfg              `mapstructure:"server" json:"server" yaml:"server"`
	Calls     CallsCfg               `mapstructure:"calls" json:"calls" yaml:"calls"`
	Report    ReportCfg              `mapstructure:"report" json:"report" yaml:"report"`
}

// ProviderCfg configures one inference provider.
type ProviderCfg struct {
	Type    string        `mapstructure:"type" json:"type" yaml:"type"`             // "gemini", "openai", "openrouter", "mock"
	Model   string        `mapstructure:"model" json:"model" yaml:"model"`          // Model name
	APIKey  string        `mapstructure:"api_key" json:"api_key" yaml:"api_key"`    // API key (supports ${ENV_VAR} syntax)
	BaseURL string        `mapstructure:"base_url" json:"base_url" yaml:"base_url"` // Optional endpoint override
	Timeout time.Duration `mapstructure:"timeout" json:"timeout" yaml:"timeout"`
}

// TilingCfg controls rasterization and page splitting.
type TilingCfg struct {
	Mode        string `mapstructure:"mode" json:"mode" yaml:"mode"`                            // "quarter" or "half"
	DPI         int    `mapstructure:"dpi" json:"dpi" yaml:"dpi"`                               // Rasterization resolution
	MaxTileEdge int    `mapstructure:"max_tile_edge" json:"max_tile_edge" yaml:"max_tile_edge"` // Downscale tiles above this edge (0 = never)
	ImageFormat string `mapstructure:"image_format" json:"image_format" yaml:"image_format"`    // "png" or "jpeg"
	JPEGQuality int    `mapstructure:"jpeg_quality" json:"jpeg_quality" yaml:"jpeg_quality"`
}

// RateLimitCfg paces requests to the provider.
type RateLimitCfg struct {
	Strategy          string        `mapstructure:"strategy" json:"strategy" yaml:"strategy"` // "interval" or "bucket"
	MinInterval       time.Duration `mapstructure:"min_interval" json:"min_interval" yaml:"min_interval"`
	RequestsPerMinute int           `mapstructure:"requests_per_minute" json:"requests_per_minute" yaml:"requests_per_minute"`
	Burst             int           `mapstructure:"burst" json:"burst" yaml:"burst"`
}

// InferenceCfg controls each tile request.
type InferenceCfg struct {
	Temperature float64       `mapstructure:"temperature" json:"temperature" yaml:"temperature"`
	MaxAttempts int           `mapstructure:"max_attempts" json:"max_attempts" yaml:"max_attempts"` // 1 = no retry
	RetryDelay  time.Duration `mapstructure:"retry_delay" json:"retry_delay" yaml:"retry_delay"`
	OnQuota     string        `mapstructure:"on_quota" json:"on_quota" yaml:"on_quota"` // "continue" or "halt"
}

// PromptCfg selects the instruction sent with every tile.
type PromptCfg struct {
	Subject string `mapstructure:"subject" json:"subject" yaml:"subject"` // Interpolated into the built-in prompt
	File    string `mapstructure:"file" json:"file" yaml:"file"`          // Replaces the built-in prompt
}

// ServerCfg configures the HTTP server.
type ServerCfg struct {
	Host        string `mapstructure:"host" json:"host" yaml:"host"`
	Port        string `mapstructure:"port" json:"port" yaml:"port"`
	MaxUploadMB int    `mapstructure:"max_upload_mb" json:"max_upload_mb" yaml:"max_upload_mb"`
}

// CallsCfg controls the per-run call log.
type CallsCfg struct {
	Enabled bool `mapstructure:"enabled" json:"enabled" yaml:"enabled"`
}

// ReportCfg controls the PDF report.
type ReportCfg struct {
	Font     string `mapstructure:"font" json:"font" yaml:"font"`                // TrueType file for answer text (empty = Go fonts)
	FontBold string `mapstructure:"font_bold" json:"font_bold" yaml:"font_bold"` // Bold variant (empty = font)
}

// On-quota policies.
const (
	OnQuotaContinue = "continue"
	OnQuotaHalt     = "halt"
)

// DefaultConfig returns configuration with sensible defaults.
func DefaultConfig() *Config {
	v := newViper()
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// Defaults are static; failing to decode them is a programming error.
		panic(err)
	}
	return &cfg
}

// ActiveProvider returns the selected provider's config.
func (c *Config) ActiveProvider() (ProviderCfg, bool) {
	p, ok := c.Providers[c.Provider]
	return p, ok
}

// ProviderConfigs resolves ${ENV_VAR} references in API keys and converts
// the configured providers for providers.Registry.
func (c *Config) ProviderConfigs() map[string]providers.ProviderConfig {
	out := make(map[string]providers.ProviderConfig, len(c.Providers))
	for name, p := range c.Providers {
		out[name] = providers.ProviderConfig{
			Type:    p.Type,
			Model:   p.Model,
			APIKey:  ResolveEnvVars(p.APIKey),
			BaseURL: p.BaseURL,
			Timeout: p.Timeout,
		}
	}
	return out
}

// LimiterOptions converts the rate limit settings.
func (c *Config) LimiterOptions() ratelimit.Options {
	return ratelimit.Options{
		Strategy:          ratelimit.Strategy(c.RateLimit.Strategy),
		MinInterval:       c.RateLimit.MinInterval,
		RequestsPerMinute: c.RateLimit.RequestsPerMinute,
		Burst:             c.RateLimit.Burst,
	}
}

// TilingMode returns the parsed tiling mode.
func (c *Config) TilingMode() (tiling.Mode, error) {
	return tiling.ParseMode(c.Tiling.Mode)
}

// HaltOnQuota reports whether a quota error ends the run.
func (c *Config) HaltOnQuota() bool {
	return c.Inference.OnQuota == OnQuotaHalt
}
