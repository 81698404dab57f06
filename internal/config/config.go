package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v2"
)

// EnvPrefix prefixes environment overrides, e.g. EXAMTILE_TILING_MODE=half.
const EnvPrefix = "EXAMTILE"

// Manager handles loading and hot-reloading configuration.
type Manager struct {
	mu        sync.RWMutex
	v         *viper.Viper
	config    *Config
	callbacks []func(*Config)
	logger    *slog.Logger
}

// NewManager creates a new config manager and loads initial config.
// With an empty cfgFile, config.yaml is searched in the working directory
// and then in homeDir.
func NewManager(cfgFile, homeDir string) (*Manager, error) {
	cm := &Manager{
		callbacks: make([]func(*Config), 0),
		logger:    slog.Default(),
	}

	if err := cm.initViper(cfgFile, homeDir); err != nil {
		return nil, err
	}

	cfg, err := cm.load()
	if err != nil {
		return nil, err
	}
	cm.config = cfg

	return cm, nil
}

// SetLogger sets the logger used for reload messages.
func (cm *Manager) SetLogger(logger *slog.Logger) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.logger = logger
}

// newViper returns a viper instance seeded with defaults.
func newViper() *viper.Viper {
	v := viper.New()
	applyDefaults(v)
	return v
}

// initViper sets up viper with defaults and config file.
func (cm *Manager) initViper(cfgFile, homeDir string) error {
	v := newViper()

	// Environment variables with EXAMTILE_ prefix
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Config file
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if homeDir != "" {
			v.AddConfigPath(homeDir)
		}
	}

	// Try to read config file (not required unless given explicitly)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	cm.v = v
	return nil
}

// load parses the current viper state into a Config struct and checks it
// against the schema.
func (cm *Manager) load() (*Config, error) {
	var cfg Config
	if err := cm.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := ValidateSchema(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Get returns the current configuration (thread-safe).
func (cm *Manager) Get() *Config {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.config
}

// Lookup returns the effective raw value of a key.
func (cm *Manager) Lookup(key string) (any, bool) {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	if !cm.v.IsSet(key) {
		return nil, false
	}
	return cm.v.Get(key), true
}

// Settings returns every effective setting as a nested map.
func (cm *Manager) Settings() map[string]any {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.v.AllSettings()
}

// ConfigFile returns the path of the loaded config file, if any.
func (cm *Manager) ConfigFile() string {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.v.ConfigFileUsed()
}

// OnChange registers a callback for config changes.
func (cm *Manager) OnChange(fn func(*Config)) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.callbacks = append(cm.callbacks, fn)
}

// WatchConfig enables hot-reloading of configuration. An edit that fails
// validation is logged and the previous configuration stays in effect.
func (cm *Manager) WatchConfig() {
	cm.v.OnConfigChange(func(e fsnotify.Event) {
		cfg, err := cm.load()

		cm.mu.Lock()
		logger := cm.logger
		if err != nil {
			cm.mu.Unlock()
			logger.Warn("ignoring invalid config change", "file", e.Name, "error", err)
			return
		}
		cm.config = cfg
		callbacks := make([]func(*Config), len(cm.callbacks))
		copy(callbacks, cm.callbacks)
		cm.mu.Unlock()

		logger.Info("config reloaded", "file", e.Name)
		for _, fn := range callbacks {
			fn(cfg)
		}
	})
	cm.v.WatchConfig()
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// ResolveEnvVars expands ${ENV_VAR} references in a string.
func ResolveEnvVars(value string) string {
	if value == "" {
		return value
	}
	return envVarPattern.ReplaceAllStringFunc(value, func(match string) string {
		varName := match[2 : len(match)-1]
		return os.Getenv(varName)
	})
}

// envVarNames returns the variable names referenced by value.
func envVarNames(value string) []string {
	var names []string
	for _, m := range envVarPattern.FindAllStringSubmatch(value, -1) {
		names = append(names, m[1])
	}
	return names
}

// MarshalYAML renders the default entries as an ordered YAML document.
func MarshalYAML(entries []Entry) ([]byte, error) {
	root := yaml.MapSlice{}
	for _, e := range entries {
		root = setPath(root, strings.Split(e.Key, "."), e.Value)
	}
	return yaml.Marshal(root)
}

// setPath inserts value at path into an ordered map, keeping first-seen order.
func setPath(m yaml.MapSlice, path []string, value any) yaml.MapSlice {
	for i := range m {
		if m[i].Key != path[0] {
			continue
		}
		if len(path) == 1 {
			m[i].Value = value
			return m
		}
		child, _ := m[i].Value.(yaml.MapSlice)
		m[i].Value = setPath(child, path[1:], value)
		return m
	}
	if len(path) == 1 {
		return append(m, yaml.MapItem{Key: path[0], Value: value})
	}
	return append(m, yaml.MapItem{Key: path[0], Value: setPath(nil, path[1:], value)})
}

// WriteDefault writes the default configuration to the specified path.
func WriteDefault(path string) error {
	data, err := MarshalYAML(DefaultEntries())
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := []byte(`# examtile configuration
# API keys use ${ENV_VAR} syntax to reference environment variables
# Set these in your shell: export GEMINI_API_KEY=xxx OPENROUTER_API_KEY=xxx OPENAI_API_KEY=xxx

`)
	return os.WriteFile(path, append(header, data...), 0o644)
}
