package api

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Format selects how CLI commands print results.
type Format string

const (
	// FormatText is the human-readable default. Commands without a text
	// rendering print YAML instead.
	FormatText Format = "text"
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
)

// format is set from the root command's --output flag.
var format = FormatText

// ParseFormat parses an --output value.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(s)); f {
	case FormatText, FormatYAML, FormatJSON:
		return f, nil
	case "yml":
		return FormatYAML, nil
	}
	return "", fmt.Errorf("invalid --output %q (text, yaml or json)", s)
}

// SetFormat sets the format used by Output.
func SetFormat(f Format) {
	format = f
}

// IsStructuredOutput reports whether results should be printed as JSON or
// YAML rather than text.
func IsStructuredOutput() bool {
	return format == FormatJSON || format == FormatYAML
}

// Output writes data to stdout as JSON or YAML.
func Output(data any) error {
	return Write(os.Stdout, format, data)
}

// Write encodes data to w. FormatText writes YAML.
func Write(w io.Writer, f Format, data any) error {
	switch f {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(data)
	case FormatYAML, FormatText:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(data); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("unknown output format: %s", f)
	}
}

// WriteFile writes data to path. A .json, .yaml or .yml extension picks the
// encoding; other paths use the current format.
func WriteFile(path string, data any) error {
	f := format
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		f = FormatJSON
	case ".yaml", ".yml":
		f = FormatYAML
	}

	out, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	if err := Write(out, f, data); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
