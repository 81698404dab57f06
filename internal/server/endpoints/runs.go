package endpoints

import (
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/examtile/examtile/internal/api"
	"github.com/examtile/examtile/internal/llmcall"
	"github.com/examtile/examtile/internal/svcctx"
)

// RunsResponse lists run IDs with a directory under the home directory.
type RunsResponse struct {
	Runs []string `json:"runs"`
}

// CallsResponse is a page of recorded inference calls.
type CallsResponse struct {
	RunID string         `json:"run_id"`
	Calls []llmcall.Call `json:"calls"`
}

// CallResponse wraps a single recorded call.
type CallResponse struct {
	Call *llmcall.Call `json:"call"`
}

// ListRunsEndpoint handles GET /api/runs.
type ListRunsEndpoint struct{}

func (e *ListRunsEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/runs", e.handler
}

func (e *ListRunsEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		List runs
//	@Tags			runs
//	@Produce		json
//	@Success		200	{object}	RunsResponse
//	@Failure		500	{object}	ErrorResponse
//	@Router			/api/runs [get]
func (e *ListRunsEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	h := svcctx.HomeFrom(r.Context())
	if h == nil {
		writeError(w, http.StatusInternalServerError, "home directory not available")
		return
	}
	ids, err := h.ListRuns()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if ids == nil {
		ids = []string{}
	}
	writeJSON(w, http.StatusOK, RunsResponse{Runs: ids})
}

func (e *ListRunsEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp RunsResponse
			if err := client.Get(cmd.Context(), "/api/runs", &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
}

// callStore opens the call log of the run named in the request path.
func callStore(w http.ResponseWriter, r *http.Request) (string, *llmcall.Store, bool) {
	runID := r.PathValue("id")
	if _, err := uuid.Parse(runID); err != nil {
		writeError(w, http.StatusBadRequest, "invalid run id")
		return "", nil, false
	}
	h := svcctx.HomeFrom(r.Context())
	if h == nil {
		writeError(w, http.StatusInternalServerError, "home directory not available")
		return "", nil, false
	}
	return runID, llmcall.NewStore(h.CallsPath(runID)), true
}

// writeStoreError maps a missing call log to 404.
func writeStoreError(w http.ResponseWriter, err error) {
	if errors.Is(err, fs.ErrNotExist) {
		writeError(w, http.StatusNotFound, "run has no call log")
		return
	}
	writeError(w, http.StatusInternalServerError, err.Error())
}

// ListCallsEndpoint handles GET /api/runs/{id}/calls.
type ListCallsEndpoint struct{}

func (e *ListCallsEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/runs/{id}/calls", e.handler
}

func (e *ListCallsEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		List inference calls for a run
//	@Description	Query the run's call log with optional filters
//	@Tags			runs
//	@Produce		json
//	@Param			id			path		string	true	"Run ID"
//	@Param			page		query		int		false	"Filter by page number"
//	@Param			tile		query		string	false	"Filter by tile label"
//	@Param			provider	query		string	false	"Filter by provider"
//	@Param			success		query		bool	false	"Filter by success"
//	@Param			after		query		string	false	"Only calls after this RFC3339 time"
//	@Param			before		query		string	false	"Only calls before this RFC3339 time"
//	@Param			limit		query		int		false	"Max results"
//	@Param			offset		query		int		false	"Result offset"
//	@Success		200			{object}	CallsResponse
//	@Failure		400			{object}	ErrorResponse
//	@Failure		404			{object}	ErrorResponse
//	@Router			/api/runs/{id}/calls [get]
func (e *ListCallsEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	runID, store, ok := callStore(w, r)
	if !ok {
		return
	}
	filter, err := parseCallFilter(r.URL.Query())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	calls, err := store.List(filter)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if calls == nil {
		calls = []llmcall.Call{}
	}
	writeJSON(w, http.StatusOK, CallsResponse{RunID: runID, Calls: calls})
}

func parseCallFilter(q url.Values) (llmcall.QueryFilter, error) {
	f := llmcall.QueryFilter{
		Tile:     q.Get("tile"),
		Provider: q.Get("provider"),
	}
	ints := []struct {
		name string
		dst  *int
	}{
		{"page", &f.Page},
		{"limit", &f.Limit},
		{"offset", &f.Offset},
	}
	for _, p := range ints {
		if v := q.Get(p.name); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 0 {
				return f, fmt.Errorf("invalid %s: %q", p.name, v)
			}
			*p.dst = n
		}
	}
	if v := q.Get("success"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return f, fmt.Errorf("invalid success: %q", v)
		}
		f.Success = &b
	}
	for name, dst := range map[string]**time.Time{"after": &f.After, "before": &f.Before} {
		if v := q.Get(name); v != "" {
			t, err := time.Parse(time.RFC3339, v)
			if err != nil {
				return f, fmt.Errorf("invalid %s: %q", name, v)
			}
			*dst = &t
		}
	}
	return f, nil
}

func (e *ListCallsEndpoint) Command(getServerURL func() string) *cobra.Command {
	var page, limit, offset int
	var tile, provider string
	var successOnly, failedOnly bool
	cmd := &cobra.Command{
		Use:   "calls <run-id>",
		Short: "List inference calls recorded for a run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			params := url.Values{}
			if page > 0 {
				params.Set("page", strconv.Itoa(page))
			}
			if tile != "" {
				params.Set("tile", tile)
			}
			if provider != "" {
				params.Set("provider", provider)
			}
			if successOnly {
				params.Set("success", "true")
			} else if failedOnly {
				params.Set("success", "false")
			}
			if limit > 0 {
				params.Set("limit", strconv.Itoa(limit))
			}
			if offset > 0 {
				params.Set("offset", strconv.Itoa(offset))
			}

			path := "/api/runs/" + url.PathEscape(args[0]) + "/calls"
			if len(params) > 0 {
				path += "?" + params.Encode()
			}
			client := api.NewClient(getServerURL())
			var resp CallsResponse
			if err := client.Get(cmd.Context(), path, &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
	cmd.Flags().IntVar(&page, "page", 0, "Filter by page number")
	cmd.Flags().StringVar(&tile, "tile", "", "Filter by tile label")
	cmd.Flags().StringVar(&provider, "provider", "", "Filter by provider")
	cmd.Flags().BoolVar(&successOnly, "success", false, "Only show successful calls")
	cmd.Flags().BoolVar(&failedOnly, "failed", false, "Only show failed calls")
	cmd.Flags().IntVar(&limit, "limit", 100, "Max results")
	cmd.Flags().IntVar(&offset, "offset", 0, "Result offset")
	return cmd
}

// GetCallEndpoint handles GET /api/runs/{id}/calls/{call}.
type GetCallEndpoint struct{}

func (e *GetCallEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/runs/{id}/calls/{call}", e.handler
}

func (e *GetCallEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		Get an inference call
//	@Tags			runs
//	@Produce		json
//	@Param			id		path		string	true	"Run ID"
//	@Param			call	path		string	true	"Call ID"
//	@Success		200		{object}	CallResponse
//	@Failure		404		{object}	ErrorResponse
//	@Router			/api/runs/{id}/calls/{call} [get]
func (e *GetCallEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	_, store, ok := callStore(w, r)
	if !ok {
		return
	}
	call, err := store.Get(r.PathValue("call"))
	if errors.Is(err, llmcall.ErrNotFound) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, CallResponse{Call: call})
}

func (e *GetCallEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "call <run-id> <call-id>",
		Short: "Get one recorded inference call",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp CallResponse
			path := "/api/runs/" + url.PathEscape(args[0]) + "/calls/" + url.PathEscape(args[1])
			if err := client.Get(cmd.Context(), path, &resp); err != nil {
				return err
			}
			return api.Output(resp.Call)
		},
	}
}

// CallStatsEndpoint handles GET /api/runs/{id}/stats.
type CallStatsEndpoint struct{}

func (e *CallStatsEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/runs/{id}/stats", e.handler
}

func (e *CallStatsEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		Aggregate call statistics for a run
//	@Tags			runs
//	@Produce		json
//	@Param			id	path		string	true	"Run ID"
//	@Success		200	{object}	llmcall.Stats
//	@Failure		404	{object}	ErrorResponse
//	@Router			/api/runs/{id}/stats [get]
func (e *CallStatsEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	_, store, ok := callStore(w, r)
	if !ok {
		return
	}
	stats, err := store.Stats()
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (e *CallStatsEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "stats <run-id>",
		Short: "Show call statistics for a run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var stats llmcall.Stats
			if err := client.Get(cmd.Context(), "/api/runs/"+url.PathEscape(args[0])+"/stats", &stats); err != nil {
				return err
			}
			return api.Output(stats)
		},
	}
}
