package endpoints

import (
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/examtile/examtile/internal/api"
	"github.com/examtile/examtile/internal/config"
	"github.com/examtile/examtile/internal/svcctx"
)

const redacted = "********"

// SettingsResponse contains every effective setting keyed by dotted path.
type SettingsResponse struct {
	ConfigFile string                  `json:"config_file,omitempty"`
	Settings   map[string]config.Entry `json:"settings"`
}

// SettingResponse contains a single config entry.
type SettingResponse struct {
	Entry *config.Entry `json:"entry,omitempty"`
	Error string        `json:"error,omitempty"`
}

// ListSettingsEndpoint handles GET /api/settings.
type ListSettingsEndpoint struct{}

func (e *ListSettingsEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/settings", e.handler
}

func (e *ListSettingsEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		List all settings
//	@Description	Get every effective configuration setting. API keys are redacted unless they reference an environment variable.
//	@Tags			settings
//	@Produce		json
//	@Success		200	{object}	SettingsResponse
//	@Failure		500	{object}	ErrorResponse
//	@Router			/api/settings [get]
func (e *ListSettingsEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	cm := svcctx.ConfigManagerFrom(r.Context())
	if cm == nil {
		writeError(w, http.StatusInternalServerError, "config manager not available")
		return
	}

	flat := make(map[string]any)
	flatten("", cm.Settings(), flat)

	resp := SettingsResponse{
		ConfigFile: cm.ConfigFile(),
		Settings:   make(map[string]config.Entry, len(flat)),
	}
	for key, value := range flat {
		resp.Settings[key] = settingEntry(key, value)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (e *ListSettingsEndpoint) Command(getServerURL func() string) *cobra.Command {
	var prefix string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List all settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp SettingsResponse
			if err := client.Get(cmd.Context(), "/api/settings", &resp); err != nil {
				return err
			}

			keys := make([]string, 0, len(resp.Settings))
			for k := range resp.Settings {
				if strings.HasPrefix(k, prefix) {
					keys = append(keys, k)
				}
			}
			sort.Strings(keys)

			if api.IsStructuredOutput() {
				entries := make([]config.Entry, len(keys))
				for i, k := range keys {
					entries[i] = resp.Settings[k]
				}
				return api.Output(entries)
			}
			for _, k := range keys {
				fmt.Printf("%s = %v\n", k, resp.Settings[k].Value)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&prefix, "prefix", "", "Filter by key prefix (e.g., 'rate_limit.')")
	return cmd
}

// GetSettingEndpoint handles GET /api/settings/{key...}.
type GetSettingEndpoint struct{}

func (e *GetSettingEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/settings/{key...}", e.handler
}

func (e *GetSettingEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		Get a setting
//	@Description	Get a single configuration setting by dotted key
//	@Tags			settings
//	@Produce		json
//	@Param			key	path		string	true	"Setting key (e.g., tiling.mode)"
//	@Success		200	{object}	SettingResponse
//	@Failure		400	{object}	ErrorResponse
//	@Failure		404	{object}	ErrorResponse
//	@Router			/api/settings/{key} [get]
func (e *GetSettingEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	key, err := url.PathUnescape(r.PathValue("key"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid key encoding")
		return
	}
	if err := config.ValidateKey(key); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	cm := svcctx.ConfigManagerFrom(r.Context())
	if cm == nil {
		writeError(w, http.StatusInternalServerError, "config manager not available")
		return
	}

	value, ok := cm.Lookup(key)
	if !ok {
		writeError(w, http.StatusNotFound, "setting not found: "+key)
		return
	}
	entry := settingEntry(key, value)
	writeJSON(w, http.StatusOK, SettingResponse{Entry: &entry})
}

func (e *GetSettingEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "get <key>",
		Short: "Get a setting by key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp SettingResponse
			if err := client.Get(cmd.Context(), "/api/settings/"+url.PathEscape(args[0]), &resp); err != nil {
				return err
			}
			return api.Output(resp.Entry)
		},
	}
}

// settingEntry pairs a value with its default description and redacts
// literal API keys.
func settingEntry(key string, value any) config.Entry {
	entry := config.Entry{Key: key, Value: value}
	if def, err := config.GetDefault(key); err == nil {
		entry.Description = def.Description
	}
	if strings.HasSuffix(key, "api_key") {
		if s, ok := value.(string); ok && s != "" && !strings.HasPrefix(s, "${") {
			entry.Value = redacted
		}
	}
	return entry
}

// flatten writes nested settings into out under dotted keys.
func flatten(prefix string, in map[string]any, out map[string]any) {
	for k, v := range in {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		if nested, ok := v.(map[string]any); ok {
			flatten(key, nested, out)
			continue
		}
		out[key] = v
	}
}
