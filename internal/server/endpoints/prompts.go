package endpoints

import (
	"net/http"
	"net/url"

	"github.com/spf13/cobra"

	"github.com/examtile/examtile/internal/api"
	"github.com/examtile/examtile/internal/prompts"
	"github.com/examtile/examtile/internal/svcctx"
)

// PromptsListResponse contains all built-in prompts.
type PromptsListResponse struct {
	Prompts []prompts.Prompt `json:"prompts"`
}

// ListPromptsEndpoint handles GET /api/prompts.
type ListPromptsEndpoint struct{}

func (e *ListPromptsEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/prompts", e.handler
}

func (e *ListPromptsEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		List all prompts
//	@Description	Get the built-in prompt templates
//	@Tags			prompts
//	@Produce		json
//	@Success		200	{object}	PromptsListResponse
//	@Failure		500	{object}	ErrorResponse
//	@Router			/api/prompts [get]
func (e *ListPromptsEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	resolver := svcctx.PromptsFrom(r.Context())
	if resolver == nil {
		writeError(w, http.StatusInternalServerError, "prompt resolver not available")
		return
	}
	writeJSON(w, http.StatusOK, PromptsListResponse{Prompts: resolver.List()})
}

func (e *ListPromptsEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all prompts",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp PromptsListResponse
			if err := client.Get(cmd.Context(), "/api/prompts", &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
}

// GetPromptEndpoint handles GET /api/prompts/{key...}.
//
// With ?resolved=true the prompt is rendered with the current
// configuration, including any prompt file override, exactly as a run
// would send it.
type GetPromptEndpoint struct{}

func (e *GetPromptEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/prompts/{key...}", e.handler
}

func (e *GetPromptEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		Get a prompt
//	@Description	Get a prompt template by key, or the rendered prompt with resolved=true
//	@Tags			prompts
//	@Produce		json
//	@Param			key			path		string	true	"Prompt key (e.g., exam.tile)"
//	@Param			resolved	query		bool	false	"Render with current configuration"
//	@Success		200			{object}	prompts.Prompt
//	@Failure		404			{object}	ErrorResponse
//	@Failure		503			{object}	ErrorResponse
//	@Router			/api/prompts/{key} [get]
func (e *GetPromptEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	key, err := url.PathUnescape(r.PathValue("key"))
	if err != nil || key == "" {
		writeError(w, http.StatusBadRequest, "invalid prompt key")
		return
	}

	resolver := svcctx.PromptsFrom(r.Context())
	if resolver == nil {
		writeError(w, http.StatusInternalServerError, "prompt resolver not available")
		return
	}

	p, ok := resolver.Get(key)
	if !ok {
		writeError(w, http.StatusNotFound, "prompt not found: "+key)
		return
	}
	if r.URL.Query().Get("resolved") != "true" {
		writeJSON(w, http.StatusOK, p)
		return
	}

	analyzer := svcctx.AnalyzerFrom(r.Context())
	if analyzer == nil {
		writeError(w, http.StatusInternalServerError, "analyzer not available")
		return
	}
	cfg := analyzer.Config()
	resolved, err := resolver.Resolve(key, cfg.Prompt.File, prompts.Data{
		Subject: cfg.Prompt.Subject,
		Mode:    cfg.Tiling.Mode,
	})
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, resolved)
}

func (e *GetPromptEndpoint) Command(getServerURL func() string) *cobra.Command {
	var resolved bool
	cmd := &cobra.Command{
		Use:   "get <key>",
		Short: "Get a prompt by key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			path := "/api/prompts/" + url.PathEscape(args[0])
			if resolved {
				path += "?resolved=true"
			}
			var resp map[string]any
			if err := client.Get(cmd.Context(), path, &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
	cmd.Flags().BoolVar(&resolved, "resolved", false, "Render with the server's current configuration")
	return cmd
}
