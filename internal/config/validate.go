package config

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/examtile/examtile/internal/providers"
	"github.com/examtile/examtile/internal/tiling"
)

//go:embed config.schema.json
var schemaJSON []byte

const schemaURL = "examtile://config.schema.json"

// Rasterization resolutions accepted in tiling.dpi and per-run overrides.
const (
	MinDPI = 36
	MaxDPI = 1200
)

// ErrNoProvider is returned when the selected provider is not configured.
var ErrNoProvider = errors.New("provider not configured")

// ConfigurationError reports a missing credential or an invalid setting.
// It is returned before any document is processed.
type ConfigurationError struct {
	Key string
	Msg string
	Err error
}

func (e *ConfigurationError) Error() string {
	if e.Key == "" {
		return "configuration error: " + e.Msg
	}
	return fmt.Sprintf("configuration error: %s: %s", e.Key, e.Msg)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

var (
	schemaOnce     sync.Once
	compiledSchema *jsonschema.Schema
	schemaErr      error
)

func configSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource(schemaURL, bytes.NewReader(schemaJSON)); err != nil {
			schemaErr = fmt.Errorf("failed to add config schema: %w", err)
			return
		}
		compiledSchema, schemaErr = compiler.Compile(schemaURL)
	})
	return compiledSchema, schemaErr
}

// ValidateSchema checks the structure, enums and ranges of cfg against the
// embedded JSON schema.
func ValidateSchema(cfg *Config) error {
	schema, err := configSchema()
	if err != nil {
		return err
	}

	raw, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	var doc any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return fmt.Errorf("failed to decode config: %w", err)
	}

	if err := schema.Validate(doc); err != nil {
		var ve *jsonschema.ValidationError
		if errors.As(err, &ve) {
			return &ConfigurationError{Key: schemaKey(ve), Msg: ve.Error(), Err: err}
		}
		return &ConfigurationError{Msg: err.Error(), Err: err}
	}
	return nil
}

// ValidateDPI checks a rasterization resolution against MinDPI and MaxDPI.
func ValidateDPI(dpi int) error {
	if dpi < MinDPI || dpi > MaxDPI {
		return &ConfigurationError{
			Key: "tiling.dpi",
			Msg: fmt.Sprintf("%d is outside %d..%d", dpi, MinDPI, MaxDPI),
		}
	}
	return nil
}

// schemaKey returns the dotted key of the deepest failing location.
func schemaKey(ve *jsonschema.ValidationError) string {
	for len(ve.Causes) > 0 {
		ve = ve.Causes[0]
	}
	loc := strings.Trim(ve.InstanceLocation, "/")
	return strings.ReplaceAll(loc, "/", ".")
}

// Validate checks that a run can start: the selected provider exists and
// has a credential, and every setting parses. It returns a *ConfigurationError.
func (c *Config) Validate() error {
	if err := ValidateSchema(c); err != nil {
		return err
	}

	p, ok := c.ActiveProvider()
	if !ok {
		return &ConfigurationError{
			Key: "provider",
			Msg: fmt.Sprintf("%q is not defined under providers", c.Provider),
			Err: ErrNoProvider,
		}
	}
	if p.Type != providers.MockClientName && ResolveEnvVars(p.APIKey) == "" {
		msg := "missing API key"
		if names := envVarNames(p.APIKey); len(names) > 0 {
			msg = fmt.Sprintf("missing API key (set %s)", strings.Join(names, ", "))
		}
		return &ConfigurationError{Key: "providers." + c.Provider + ".api_key", Msg: msg}
	}

	if _, err := tiling.ParseMode(c.Tiling.Mode); err != nil {
		return &ConfigurationError{Key: "tiling.mode", Msg: err.Error(), Err: err}
	}
	if c.RateLimit.Strategy == "bucket" && c.RateLimit.RequestsPerMinute <= 0 {
		return &ConfigurationError{Key: "rate_limit.requests_per_minute", Msg: "must be set for the bucket strategy"}
	}
	return nil
}
