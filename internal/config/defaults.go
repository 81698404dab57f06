package config

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"unicode"

	"github.com/spf13/viper"
)

// ErrNoDefault is returned when no default value exists for a config key.
var ErrNoDefault = errors.New("no default exists")

// ErrInvalidKey is returned when a config key contains invalid characters.
var ErrInvalidKey = errors.New("invalid config key")

// Entry is one documented configuration key with its default value.
type Entry struct {
	Key         string `json:"key" yaml:"key"`
	Value       any    `json:"value" yaml:"value"`
	Description string `json:"description" yaml:"description"`
}

// DefaultEntries returns the default configuration entries.
// These are seeded into viper before any file or environment is read.
func DefaultEntries() []Entry {
	return []Entry{
		{
			Key:         "provider",
			Value:       "gemini",
			Description: "Name of the entry under providers used for inference",
		},

		// Providers - Gemini
		{
			Key:         "providers.gemini.type",
			Value:       "gemini",
			Description: "Provider type for Gemini",
		},
		{
			Key:         "providers.gemini.model",
			Value:       "gemini-1.5-pro",
			Description: "Gemini model",
		},
		{
			Key:         "providers.gemini.api_key",
			Value:       "${GEMINI_API_KEY}",
			Description: "Gemini API key (uses environment variable)",
		},
		{
			Key:         "providers.gemini.timeout",
			Value:       "120s",
			Description: "Per-request timeout",
		},

		// Providers - OpenRouter
		{
			Key:         "providers.openrouter.type",
			Value:       "openrouter",
			Description: "Provider type for OpenRouter",
		},
		{
			Key:         "providers.openrouter.model",
			Value:       "google/gemini-2.5-flash",
			Description: "OpenRouter model",
		},
		{
			Key:         "providers.openrouter.api_key",
			Value:       "${OPENROUTER_API_KEY}",
			Description: "OpenRouter API key (uses environment variable)",
		},
		{
			Key:         "providers.openrouter.timeout",
			Value:       "120s",
			Description: "Per-request timeout",
		},

		// Providers - OpenAI
		{
			Key:         "providers.openai.type",
			Value:       "openai",
			Description: "Provider type for OpenAI",
		},
		{
			Key:         "providers.openai.model",
			Value:       "gpt-4o",
			Description: "OpenAI model",
		},
		{
			Key:         "providers.openai.api_key",
			Value:       "${OPENAI_API_KEY}",
			Description: "OpenAI API key (uses environment variable)",
		},
		{
			Key:         "providers.openai.timeout",
			Value:       "120s",
			Description: "Per-request timeout",
		},

		// Tiling
		{
			Key:         "tiling.mode",
			Value:       "quarter",
			Description: "Page grid: quarter (2x2) or half (two columns)",
		},
		{
			Key:         "tiling.dpi",
			Value:       300,
			Description: "Rasterization resolution; lower values save memory on large documents",
		},
		{
			Key:         "tiling.max_tile_edge",
			Value:       0,
			Description: "Downscale tiles whose longest edge exceeds this many pixels (0 = never)",
		},
		{
			Key:         "tiling.image_format",
			Value:       "png",
			Description: "Tile encoding sent to the model: png or jpeg",
		},
		{
			Key:         "tiling.jpeg_quality",
			Value:       90,
			Description: "JPEG quality when image_format is jpeg",
		},

		// Rate limit
		{
			Key:         "rate_limit.strategy",
			Value:       "interval",
			Description: "interval (fixed gap after each request) or bucket (token bucket)",
		},
		{
			Key:         "rate_limit.min_interval",
			Value:       "30s",
			Description: "Minimum gap between requests for the interval strategy",
		},
		{
			Key:         "rate_limit.requests_per_minute",
			Value:       0,
			Description: "Requests per minute; overrides min_interval when set, required for bucket",
		},
		{
			Key:         "rate_limit.burst",
			Value:       1,
			Description: "Token bucket size for the bucket strategy",
		},

		// Inference
		{
			Key:         "inference.temperature",
			Value:       0.0,
			Description: "Sampling temperature",
		},
		{
			Key:         "inference.max_attempts",
			Value:       1,
			Description: "Attempts per tile; 1 disables retry",
		},
		{
			Key:         "inference.retry_delay",
			Value:       "5s",
			Description: "Base backoff between attempts",
		},
		{
			Key:         "inference.on_quota",
			Value:       OnQuotaContinue,
			Description: "On quota exhaustion: continue with the next tile or halt the run",
		},

		// Prompt
		{
			Key:         "prompt.subject",
			Value:       "chemistry",
			Description: "Exam subject interpolated into the built-in prompt",
		},
		{
			Key:         "prompt.file",
			Value:       "",
			Description: "Path to a prompt template replacing the built-in one",
		},

		// Server
		{
			Key:         "server.host",
			Value:       "127.0.0.1",
			Description: "HTTP listen host",
		},
		{
			Key:         "server.port",
			Value:       "8080",
			Description: "HTTP listen port",
		},
		{
			Key:         "server.max_upload_mb",
			Value:       50,
			Description: "Maximum PDF upload size in megabytes",
		},

		// Calls
		{
			Key:         "calls.enabled",
			Value:       true,
			Description: "Write a calls.jsonl log for each run",
		},

		// Report
		{
			Key:         "report.font",
			Value:       "",
			Description: "TrueType font for PDF report text; set one covering the exam's script (e.g. NanumGothic.ttf for Korean)",
		},
		{
			Key:         "report.font_bold",
			Value:       "",
			Description: "Bold TrueType font for report headings (defaults to report.font)",
		},
	}
}

// GetDefault returns the default entry for a key.
func GetDefault(key string) (Entry, error) {
	for _, e := range DefaultEntries() {
		if e.Key == key {
			return e, nil
		}
	}
	return Entry{}, fmt.Errorf("%w: %s", ErrNoDefault, key)
}

// applyDefaults seeds every default entry into v.
func applyDefaults(v *viper.Viper) {
	for _, e := range DefaultEntries() {
		v.SetDefault(e.Key, e.Value)
	}
}

// ValidateKey checks if a config key contains only allowed characters.
// Valid keys contain: letters, digits, dots, underscores, and hyphens.
func ValidateKey(key string) error {
	if key == "" {
		return fmt.Errorf("%w: key cannot be empty", ErrInvalidKey)
	}
	for i, r := range key {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '.' && r != '_' && r != '-' {
			return fmt.Errorf("%w: invalid character %q at position %d", ErrInvalidKey, r, i)
		}
	}
	if key[0] == '.' || key[len(key)-1] == '.' {
		return fmt.Errorf("%w: key cannot start or end with a dot", ErrInvalidKey)
	}
	return nil
}

// DefaultKeys returns all default keys with the given prefix, sorted.
func DefaultKeys(prefix string) []string {
	var keys []string
	for _, e := range DefaultEntries() {
		if strings.HasPrefix(e.Key, prefix) {
			keys = append(keys, e.Key)
		}
	}
	sort.Strings(keys)
	return keys
}
