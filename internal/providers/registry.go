package providers

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// ProviderConfig describes one configured inference provider with its API key resolved.
type ProviderConfig struct {
	Type    string // "gemini", "openai", "openrouter", "mock"
	Model   string
	APIKey  string
	BaseURL string
	Timeout time.Duration
}

type registryEntry struct {
	client InferenceClient
	cfg    ProviderConfig
}

// Registry holds inference clients by name.
// It supports config-driven instantiation, hot-reload, and provides thread-safe access.
type Registry struct {
	mu      sync.RWMutex
	clients map[string]registryEntry
	logger  *slog.Logger
}

// NewRegistry creates a new empty provider registry.
func NewRegistry() *Registry {
	return &Registry{
		clients: make(map[string]registryEntry),
		logger:  slog.Default(),
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger *slog.Logger) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logger = logger
}

// Register adds a client by name, replacing any existing one.
func (r *Registry) Register(name string, client InferenceClient) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients[name] = registryEntry{client: client, cfg: ProviderConfig{Type: client.Name(), Model: client.Model()}}
	if r.logger != nil {
		r.logger.Info("registered inference client", "name", name)
	}
}

// Get returns a client by name.
func (r *Registry) Get(name string) (InferenceClient, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.clients[name]
	if !ok {
		return nil, fmt.Errorf("inference client not found: %s", name)
	}
	return e.client, nil
}

// Has checks if a client is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.clients[name]
	return ok
}

// List returns all registered client names, sorted.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.clients))
	for name := range r.clients {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// NewRegistryFromConfig creates a registry with every provider that has an API key.
func NewRegistryFromConfig(ctx context.Context, cfgs map[string]ProviderConfig) (*Registry, error) {
	r := NewRegistry()
	if err := r.Reload(ctx, cfgs); err != nil {
		return nil, err
	}
	return r, nil
}

// Reload updates the registry based on new configuration.
// Providers that are no longer configured are unregistered and providers
// with changed settings are recreated. Providers without an API key are skipped.
func (r *Registry) Reload(ctx context.Context, cfgs map[string]ProviderConfig) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	want := make(map[string]bool)
	var errs []error
	for name, cfg := range cfgs {
		if cfg.APIKey == "" && cfg.Type != MockClientName {
			continue
		}
		want[name] = true

		existing, hasExisting := r.clients[name]
		if hasExisting && existing.cfg == cfg {
			continue
		}
		client, err := NewClient(ctx, cfg)
		if err != nil {
			errs = append(errs, fmt.Errorf("provider %s: %w", name, err))
			continue
		}
		r.clients[name] = registryEntry{client: client, cfg: cfg}
		if r.logger != nil {
			if hasExisting {
				r.logger.Info("updated inference client", "name", name, "type", cfg.Type, "model", client.Model())
			} else {
				r.logger.Info("registered inference client", "name", name, "type", cfg.Type, "model", client.Model())
			}
		}
	}

	for name := range r.clients {
		if !want[name] {
			delete(r.clients, name)
			if r.logger != nil {
				r.logger.Info("unregistered inference client", "name", name)
			}
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("failed to load providers: %v", errs)
	}
	return nil
}

// NewClient creates an inference client based on provider type.
func NewClient(ctx context.Context, cfg ProviderConfig) (InferenceClient, error) {
	switch cfg.Type {
	case GeminiName:
		return NewGeminiClient(ctx, GeminiConfig{
			APIKey:  cfg.APIKey,
			Model:   cfg.Model,
			BaseURL: cfg.BaseURL,
			Timeout: cfg.Timeout,
		})
	case OpenAIName:
		return NewOpenAIClient(OpenAIConfig{
			APIKey:  cfg.APIKey,
			Model:   cfg.Model,
			BaseURL: cfg.BaseURL,
			Timeout: cfg.Timeout,
		}), nil
	case OpenRouterName:
		return NewOpenRouterClient(OpenRouterConfig{
			APIKey:  cfg.APIKey,
			Model:   cfg.Model,
			BaseURL: cfg.BaseURL,
			Timeout: cfg.Timeout,
		}), nil
	case MockClientName:
		return NewMockClient(), nil
	default:
		return nil, fmt.Errorf("unknown provider type %q", cfg.Type)
	}
}
