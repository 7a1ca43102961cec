package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cast"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/bryanchriswhite/tilecap/internal/capture"
	"github.com/bryanchriswhite/tilecap/internal/logger"
)

// EnvPrefix prefixes environment overrides: capture.backend is read from
// TILECAP_CAPTURE_BACKEND.
const EnvPrefix = "TILECAP"

// Keys understood by the config file.
const (
	KeyLogLevel           = "log_level"
	KeyLogPretty          = "log_pretty"
	KeyBackend            = "capture.backend"
	KeyFailureLogInterval = "capture.failure_log_interval"
	KeyBackoffThreshold   = "capture.backoff_threshold"
	KeyBackoffDelay       = "capture.backoff_delay"
	KeyWaylandTimeout     = "capture.wayland_timeout"
	KeyX11Display         = "capture.x11_display"
	KeyIPCTimeout         = "scanner.ipc_timeout"
	KeyServerPort         = "server.port"
	KeyStatusInterval     = "server.status_interval"
)

// ErrUnknownKey is returned by Set for keys outside the schema.
var ErrUnknownKey = errors.New("unknown config key")

// defaults doubles as the schema: the type of each value decides how Set
// coerces strings and how Save writes the key.
var defaults = map[string]any{
	KeyLogLevel:           "info",
	KeyLogPretty:          false,
	KeyBackend:            "auto",
	KeyFailureLogInterval: 100,
	KeyBackoffThreshold:   10,
	KeyBackoffDelay:       10 * time.Millisecond,
	KeyWaylandTimeout:     2 * time.Second,
	KeyX11Display:         "",
	KeyIPCTimeout:         5 * time.Second,
	KeyServerPort:         8080,
	KeyStatusInterval:     time.Second,
}

// Config is the decoded configuration.
type Config struct {
	LogLevel  string        `mapstructure:"log_level"`
	LogPretty bool          `mapstructure:"log_pretty"`
	Capture   CaptureConfig `mapstructure:"capture"`
	Scanner   ScannerConfig `mapstructure:"scanner"`
	Server    ServerConfig  `mapstructure:"server"`
}

// CaptureConfig holds backend selection and capture loop tuning.
type CaptureConfig struct {
	Backend            string        `mapstructure:"backend"`
	FailureLogInterval int           `mapstructure:"failure_log_interval"`
	BackoffThreshold   int           `mapstructure:"backoff_threshold"`
	BackoffDelay       time.Duration `mapstructure:"backoff_delay"`
	WaylandTimeout     time.Duration `mapstructure:"wayland_timeout"`
	X11Display         string        `mapstructure:"x11_display"`
}

type ScannerConfig struct {
	IPCTimeout time.Duration `mapstructure:"ipc_timeout"`
}

type ServerConfig struct {
	Port           int           `mapstructure:"port"`
	StatusInterval time.Duration `mapstructure:"status_interval"`
}

// Validate rejects values the capture stack cannot run with.
func (c Config) Validate() error {
	var errs []error
	if _, err := capture.ParseKind(c.Capture.Backend); err != nil {
		errs = append(errs, err)
	}
	if c.Capture.FailureLogInterval < 0 {
		errs = append(errs, fmt.Errorf("%s must not be negative", KeyFailureLogInterval))
	}
	if c.Capture.BackoffThreshold < 0 {
		errs = append(errs, fmt.Errorf("%s must not be negative", KeyBackoffThreshold))
	}
	for key, d := range map[string]time.Duration{
		KeyBackoffDelay:   c.Capture.BackoffDelay,
		KeyWaylandTimeout: c.Capture.WaylandTimeout,
		KeyIPCTimeout:     c.Scanner.IPCTimeout,
		KeyStatusInterval: c.Server.StatusInterval,
	} {
		if d < 0 {
			errs = append(errs, fmt.Errorf("%s must not be negative, got %s", key, d))
		}
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("%s out of range: %d", KeyServerPort, c.Server.Port))
	}
	return errors.Join(errs...)
}

// CaptureOptions maps the capture section onto capture.Options. Call
// Validate first; an unparsable backend falls back to auto.
func (c Config) CaptureOptions() capture.Options {
	kind, _ := capture.ParseKind(c.Capture.Backend)
	return capture.Options{
		Backend:            kind,
		FailureLogInterval: c.Capture.FailureLogInterval,
		BackoffThreshold:   c.Capture.BackoffThreshold,
		BackoffDelay:       c.Capture.BackoffDelay,
		WaylandTimeout:     c.Capture.WaylandTimeout,
		X11Display:         c.Capture.X11Display,
	}
}

// Manager handles configuration loading and saving
type Manager struct {
	mu         sync.RWMutex
	v          *viper.Viper
	configPath string
}

// DefaultPath returns $HOME/.config/tilecap/config.yaml.
func DefaultPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(homeDir, ".config", "tilecap", "config.yaml"), nil
}

// NewManager loads configFile, or the default path when empty. A missing
// file is created with defaults.
func NewManager(configFile string) (*Manager, error) {
	path := configFile
	if path == "" {
		p, err := DefaultPath()
		if err != nil {
			return nil, err
		}
		path = p
	}

	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	m := &Manager{v: v, configPath: path}
	log := logger.WithComponent("config")

	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		log.Info().
			Str("path", path).
			Msg("Config file not found, creating new config")
		if err := m.Save(); err != nil {
			return nil, fmt.Errorf("failed to create default config: %w", err)
		}
	} else if err != nil {
		return nil, fmt.Errorf("failed to stat config: %w", err)
	}

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	log.Debug().
		Str("path", path).
		Msg("Config loaded")
	return m, nil
}

// Get returns the decoded configuration, including env and flag
// overrides.
func (m *Manager) Get() (Config, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var cfg Config
	if err := m.v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to decode config: %w", err)
	}
	return cfg, nil
}

// Value returns the effective value of key, normalized to the key's type.
func (m *Manager) Value(key string) (any, error) {
	def, ok := defaults[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownKey, key)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return coerce(def, m.v.Get(key))
}

// Set parses value according to key's type and stores it. The change is
// in memory until Save.
func (m *Manager) Set(key, value string) error {
	def, ok := defaults[key]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownKey, key)
	}
	parsed, err := coerce(def, value)
	if err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	if key == KeyBackend {
		if _, err := capture.ParseKind(value); err != nil {
			return err
		}
	}

	m.mu.Lock()
	m.v.Set(key, parsed)
	m.mu.Unlock()

	logger.WithComponent("config").Debug().
		Str("key", key).
		Interface("value", parsed).
		Msg("Config value set")
	return nil
}

// Default returns the built-in value of key.
func Default(key string) (any, bool) {
	v, ok := defaults[key]
	return v, ok
}

// Keys lists every config key in sorted order.
func Keys() []string {
	keys := make([]string, 0, len(defaults))
	for k := range defaults {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Settings returns the effective configuration as nested maps, with
// durations rendered as strings.
func (m *Manager) Settings() (map[string]any, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := map[string]any{}
	for _, key := range Keys() {
		value, err := coerce(defaults[key], m.v.Get(key))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", key, err)
		}
		if d, ok := value.(time.Duration); ok {
			value = d.String()
		}
		section, leaf, nested := strings.Cut(key, ".")
		if !nested {
			out[key] = value
			continue
		}
		sub, _ := out[section].(map[string]any)
		if sub == nil {
			sub = map[string]any{}
			out[section] = sub
		}
		sub[leaf] = value
	}
	return out, nil
}

// Save writes the effective configuration to the config file.
func (m *Manager) Save() error {
	log := logger.WithComponent("config")

	settings, err := m.Settings()
	if err != nil {
		return err
	}

	configDir := m.GetConfigDir()
	if err := os.MkdirAll(configDir, 0755); err != nil {
		log.Error().
			Err(err).
			Str("config_dir", configDir).
			Msg("Failed to create config directory")
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(settings)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(m.configPath, data, 0644); err != nil {
		log.Error().
			Err(err).
			Str("path", m.configPath).
			Msg("Failed to write config file")
		return fmt.Errorf("failed to write config: %w", err)
	}

	log.Debug().
		Str("path", m.configPath).
		Msg("Config saved")
	return nil
}

// GetViper exposes the underlying viper instance so commands can bind
// flags onto config keys.
func (m *Manager) GetViper() *viper.Viper {
	return m.v
}

// GetConfigPath returns the path to the config file
func (m *Manager) GetConfigPath() string {
	return m.configPath
}

// GetConfigDir returns the config directory path
func (m *Manager) GetConfigDir() string {
	return filepath.Dir(m.configPath)
}

func coerce(def, value any) (any, error) {
	switch def.(type) {
	case bool:
		return cast.ToBoolE(value)
	case int:
		return cast.ToIntE(value)
	case time.Duration:
		return cast.ToDurationE(value)
	default:
		return cast.ToStringE(value)
	}
}
