package endpoints

import (
	"github.com/examtile/examtile/internal/api"
)

// Config holds dependencies needed by some endpoints.
type Config struct {
	// RendererCheck backs the renderer field of the readiness check.
	RendererCheck func() error
	// SwaggerHost is the host advertised in the OpenAPI document.
	SwaggerHost string
}

// Registry returns every endpoint, grouped the way `examtile api` presents
// them. The CLI builds it with a zero Config.
func Registry(cfg Config) *api.Registry {
	r := api.NewRegistry()
	r.Register(
		&HealthEndpoint{},
		&ReadyEndpoint{RendererCheck: cfg.RendererCheck},
		&StatusEndpoint{},
		&AnalyzeEndpoint{},
	)
	r.RegisterGroup(api.Group{Name: "runs", Short: "Inspect past runs and their inference calls"},
		&ListRunsEndpoint{},
		&ListCallsEndpoint{},
		&GetCallEndpoint{},
		&CallStatsEndpoint{},
	)
	r.RegisterGroup(api.Group{Name: "settings", Short: "Read the server's configuration"},
		&ListSettingsEndpoint{},
		&GetSettingEndpoint{},
	)
	r.RegisterGroup(api.Group{Name: "prompts", Short: "Show prompt templates"},
		&ListPromptsEndpoint{},
		&GetPromptEndpoint{},
	)
	r.Register(
		&SwaggerEndpoint{Host: cfg.SwaggerHost},
		&SwaggerUIEndpoint{},
	)
	return r
}
