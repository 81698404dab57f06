package endpoints

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/examtile/examtile/internal/api"
	"github.com/examtile/examtile/internal/ratelimit"
	"github.com/examtile/examtile/internal/svcctx"
	"github.com/examtile/examtile/version"
)

// HealthResponse is the response for health check endpoints.
type HealthResponse struct {
	Status   string `json:"status"`
	Config   string `json:"config,omitempty"`
	Renderer string `json:"renderer,omitempty"`
	Provider string `json:"provider,omitempty"`
}

// HealthEndpoint handles GET /health.
type HealthEndpoint struct{}

func (e *HealthEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/health", e.handler
}

func (e *HealthEndpoint) RequiresInit() bool { return false }

// handler godoc
//
//	@Summary		Liveness check
//	@Tags			health
//	@Produce		json
//	@Success		200	{object}	HealthResponse
//	@Router			/health [get]
func (e *HealthEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

func (e *HealthEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check server health",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp HealthResponse
			if err := client.Get(cmd.Context(), "/health", &resp); err != nil {
				return err
			}
			fmt.Printf("Status: %s\n", resp.Status)
			return nil
		},
	}
}

// ReadyEndpoint handles GET /ready.
type ReadyEndpoint struct {
	// RendererCheck reports whether page rendering is possible. Nil skips
	// the check.
	RendererCheck func() error
}

func (e *ReadyEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/ready", e.handler
}

func (e *ReadyEndpoint) RequiresInit() bool { return false }

// handler godoc
//
//	@Summary		Readiness check
//	@Description	Reports whether documents can be analyzed: the configuration is valid, pages can be rendered and the selected provider is available
//	@Tags			health
//	@Produce		json
//	@Success		200	{object}	HealthResponse
//	@Failure		503	{object}	HealthResponse
//	@Router			/ready [get]
func (e *ReadyEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{Status: "ok", Config: "ok", Renderer: "ok", Provider: "ok"}
	status := http.StatusOK
	degrade := func(field *string, value string) {
		*field = value
		resp.Status = "degraded"
		status = http.StatusServiceUnavailable
	}

	analyzer := svcctx.AnalyzerFrom(r.Context())
	if analyzer == nil {
		degrade(&resp.Config, "not_initialized")
	} else {
		cfg := analyzer.Config()
		if err := cfg.Validate(); err != nil {
			degrade(&resp.Config, err.Error())
		}
		if registry := svcctx.RegistryFrom(r.Context()); registry != nil && !registry.Has(cfg.Provider) {
			degrade(&resp.Provider, "not_registered")
		}
	}

	if e.RendererCheck != nil {
		if err := e.RendererCheck(); err != nil {
			degrade(&resp.Renderer, err.Error())
		}
	}

	writeJSON(w, status, resp)
}

func (e *ReadyEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "ready",
		Short: "Check server readiness (config, renderer, provider)",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp HealthResponse
			if err := client.Get(cmd.Context(), "/ready", &resp); err != nil {
				return err
			}
			fmt.Printf("Status:   %s\n", resp.Status)
			fmt.Printf("Config:   %s\n", resp.Config)
			fmt.Printf("Renderer: %s\n", resp.Renderer)
			fmt.Printf("Provider: %s\n", resp.Provider)
			return nil
		},
	}
}

// StatusResponse is the detailed status response.
type StatusResponse struct {
	Server    string            `json:"server"`
	Version   version.Info      `json:"version"`
	Provider  string            `json:"provider"`
	Model     string            `json:"model,omitempty"`
	Mode      string            `json:"mode"`
	Providers []string          `json:"providers"`
	Busy      bool              `json:"busy"`
	Limiter   *ratelimit.Status `json:"limiter,omitempty"`
	Home      string            `json:"home,omitempty"`
}

// StatusEndpoint handles GET /api/status.
type StatusEndpoint struct{}

func (e *StatusEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/status", e.handler
}

func (e *StatusEndpoint) RequiresInit() bool { return false }

// handler godoc
//
//	@Summary		Server status
//	@Description	Version, active provider, registered providers and rate limiter state
//	@Tags			health
//	@Produce		json
//	@Success		200	{object}	StatusResponse
//	@Router			/api/status [get]
func (e *StatusEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	resp := StatusResponse{
		Server:    "running",
		Version:   version.Get(),
		Providers: []string{},
	}

	if analyzer := svcctx.AnalyzerFrom(r.Context()); analyzer != nil {
		cfg := analyzer.Config()
		resp.Provider = cfg.Provider
		resp.Mode = cfg.Tiling.Mode
		if pc, ok := cfg.ActiveProvider(); ok {
			resp.Model = pc.Model
		}
		resp.Busy = analyzer.Busy()
		if st, ok := analyzer.LimiterStatus(); ok {
			resp.Limiter = &st
		}
	}
	if registry := svcctx.RegistryFrom(r.Context()); registry != nil {
		resp.Providers = registry.List()
	}
	if h := svcctx.HomeFrom(r.Context()); h != nil {
		resp.Home = h.Path()
	}

	writeJSON(w, http.StatusOK, resp)
}

func (e *StatusEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Get detailed server status",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp StatusResponse
			if err := client.Get(cmd.Context(), "/api/status", &resp); err != nil {
				return err
			}
			if api.IsStructuredOutput() {
				return api.Output(resp)
			}
			fmt.Printf("Server:    %s (%s)\n", resp.Server, resp.Version.Release)
			fmt.Printf("Provider:  %s %s\n", resp.Provider, resp.Model)
			fmt.Printf("Mode:      %s\n", resp.Mode)
			fmt.Printf("Providers: %v\n", resp.Providers)
			fmt.Printf("Busy:      %t\n", resp.Busy)
			if resp.Limiter != nil {
				fmt.Printf("Limiter:   %s, %d requests, next in %s\n",
					resp.Limiter.Strategy, resp.Limiter.TotalRequests, resp.Limiter.TimeUntilReady)
			}
			return nil
		},
	}
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// ErrorResponse is a standard error response. Kind classifies failures
// that stop an analysis: configuration, rasterization, quota, canceled.
type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}

// writeKindError writes a JSON error response carrying an error kind.
func writeKindError(w http.ResponseWriter, status int, kind string, err error) {
	writeJSON(w, status, ErrorResponse{Error: err.Error(), Kind: kind})
}
