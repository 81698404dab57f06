package home

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/examtile/examtile/internal/tiling"
)

const (
	// DefaultDirName is the default name for the examtile home directory.
	DefaultDirName = ".examtile"

	// RunsDirName is the subdirectory holding one directory per run.
	RunsDirName = "runs"

	// ConfigFileName is the default config file name.
	ConfigFileName = "config.yaml"

	// CallsFileName is the call log inside a run directory.
	CallsFileName = "calls.jsonl"

	// ReportFileName is the default PDF report inside a run directory.
	ReportFileName = "report.pdf"
)

// Dir represents the examtile home directory structure.
type Dir struct {
	path string
}

// New creates a new Dir with the given path.
// If path is empty, uses the default (~/.examtile).
func New(path string) (*Dir, error) {
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get user home directory: %w", err)
		}
		path = filepath.Join(home, DefaultDirName)
	}

	return &Dir{path: path}, nil
}

// Path returns the root path of the home directory.
func (d *Dir) Path() string {
	return d.path
}

// RunsPath returns the path to the runs directory.
func (d *Dir) RunsPath() string {
	return filepath.Join(d.path, RunsDirName)
}

// ConfigPath returns the path to the default config file.
func (d *Dir) ConfigPath() string {
	return filepath.Join(d.path, ConfigFileName)
}

// EnsureExists creates the home directory and subdirectories if they don't exist.
func (d *Dir) EnsureExists() error {
	if err := os.MkdirAll(d.RunsPath(), 0o755); err != nil {
		return fmt.Errorf("failed to create runs directory: %w", err)
	}
	return nil
}

// Exists returns true if the home directory exists.
func (d *Dir) Exists() bool {
	_, err := os.Stat(d.path)
	return err == nil
}

// ConfigExists returns true if the config file exists in the home directory.
func (d *Dir) ConfigExists() bool {
	_, err := os.Stat(d.ConfigPath())
	return err == nil
}

// RunDir returns the directory of a run.
func (d *Dir) RunDir(runID string) string {
	return filepath.Join(d.RunsPath(), runID)
}

// EnsureRunDir creates the directory of a run.
func (d *Dir) EnsureRunDir(runID string) error {
	return os.MkdirAll(d.RunDir(runID), 0o755)
}

// CallsPath returns the call log of a run.
func (d *Dir) CallsPath(runID string) string {
	return filepath.Join(d.RunDir(runID), CallsFileName)
}

// ReportPath returns the default PDF report of a run.
func (d *Dir) ReportPath(runID string) string {
	return filepath.Join(d.RunDir(runID), ReportFileName)
}

// TilesDir returns the directory for saved tile images of a run.
func (d *Dir) TilesDir(runID string) string {
	return filepath.Join(d.RunDir(runID), "tiles")
}

// TileImagePath returns the path of one saved tile image.
// Page numbers are 1-indexed.
func (d *Dir) TileImagePath(runID string, page int, label string, format tiling.Format) string {
	return filepath.Join(d.TilesDir(runID), TileFileName(page, label, format))
}

// TileFileName names a tile image, e.g. "page_0001_top-left.png".
func TileFileName(page int, label string, format tiling.Format) string {
	ext := "png"
	if format == tiling.FormatJPEG {
		ext = "jpg"
	}
	return fmt.Sprintf("page_%04d_%s.%s", page, slug(label), ext)
}

// ListRuns returns run IDs that have a directory, sorted by name.
func (d *Dir) ListRuns() ([]string, error) {
	entries, err := os.ReadDir(d.RunsPath())
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var ids []string
	for _, e := range entries {
		if e.IsDir() {
			ids = append(ids, e.Name())
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func slug(label string) string {
	out := make([]rune, 0, len(label))
	for _, r := range label {
		switch {
		case r >= 'A' && r <= 'Z':
			out = append(out, r+('a'-'A'))
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-':
			out = append(out, r)
		default:
			out = append(out, '_')
		}
	}
	return string(out)
}
