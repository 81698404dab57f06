package providers

import (
	"os"
)

// TestConfig holds provider API keys for live tests.
// Live tests skip when the relevant key is absent.
type TestConfig struct {
	GeminiAPIKey     string
	OpenAIAPIKey     string
	OpenRouterAPIKey string
}

// LoadTestConfig reads provider API keys from the same environment variables
// the default configuration references.
func LoadTestConfig() TestConfig {
	return TestConfig{
		GeminiAPIKey:     os.Getenv("GEMINI_API_KEY"),
		OpenAIAPIKey:     os.Getenv("OPENAI_API_KEY"),
		OpenRouterAPIKey: os.Getenv("OPENROUTER_API_KEY"),
	}
}

// HasAny reports whether at least one live provider can be tested.
func (c TestConfig) HasAny() bool {
	return c.GeminiAPIKey != "" || c.OpenAIAPIKey != "" || c.OpenRouterAPIKey != ""
}

// ToProviderConfigs converts the keys to registry input, keeping only
// providers with a key.
func (c TestConfig) ToProviderConfigs() map[string]ProviderConfig {
	cfgs := make(map[string]ProviderConfig)
	if c.GeminiAPIKey != "" {
		cfgs[GeminiName] = ProviderConfig{Type: GeminiName, APIKey: c.GeminiAPIKey}
	}
	if c.OpenAIAPIKey != "" {
		cfgs[OpenAIName] = ProviderConfig{Type: OpenAIName, APIKey: c.OpenAIAPIKey}
	}
	if c.OpenRouterAPIKey != "" {
		cfgs[OpenRouterName] = ProviderConfig{Type: OpenRouterName, APIKey: c.OpenRouterAPIKey}
	}
	return cfgs
}
