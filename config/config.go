package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override, e.g.
// CUEMS_ENGINE_CONTROL_URL for engine.control_url.
const EnvPrefix = "CUEMS"

// Log output formats
const (
	FormatAuto = "auto"
	FormatText = "text"
	FormatJSON = "json"
)

// Engine holds the endpoints of the show-control engine.
type Engine struct {
	ControlURL              string `toml:"control_url" mapstructure:"control_url"`
	RealtimeURL             string `toml:"realtime_url" mapstructure:"realtime_url"`
	ControlReconnectSeconds int    `toml:"control_reconnect_seconds" mapstructure:"control_reconnect_seconds"`
	RealtimeReconnectMillis int    `toml:"realtime_reconnect_millis" mapstructure:"realtime_reconnect_millis"`
	AddressPrefix           string `toml:"address_prefix" mapstructure:"address_prefix"`
}

// State locates the persisted console state.
type State struct {
	Path string `toml:"path" mapstructure:"path"`
}

// Topology controls how long the console waits for output mappings.
type Topology struct {
	MaxAttempts int `toml:"max_attempts" mapstructure:"max_attempts"`
	DelayMillis int `toml:"delay_millis" mapstructure:"delay_millis"`
}

// Logging configures the console logger.
type Logging struct {
	Level  string `toml:"level" mapstructure:"level"`
	Format string `toml:"format" mapstructure:"format"`
}

// Config is the complete console configuration.
type Config struct {
	Engine   Engine   `toml:"engine" mapstructure:"engine"`
	State    State    `toml:"state" mapstructure:"state"`
	Topology Topology `toml:"topology" mapstructure:"topology"`
	Logging  Logging  `toml:"logging" mapstructure:"logging"`
}

// Default returns the built-in configuration. Paths are left unexpanded.
func Default() Config {
	return Config{
		Engine: Engine{
			ControlURL:              "ws://localhost:9092/ws",
			RealtimeURL:             "ws://localhost:9092/realtime",
			ControlReconnectSeconds: 10,
			RealtimeReconnectMillis: 1000,
		},
		State: State{
			Path: "~/.cache/cuems/state.db",
		},
		Topology: Topology{
			MaxAttempts: 5,
			DelayMillis: 500,
		},
		Logging: Logging{
			Level:  "info",
			Format: FormatAuto,
		},
	}
}

// DefaultConfigPath returns the config file location, honoring XDG_CONFIG_HOME.
func DefaultConfigPath() (string, error) {
	if base, ok := os.LookupEnv("XDG_CONFIG_HOME"); ok && strings.TrimSpace(base) != "" {
		return filepath.Join(base, "cuems", "config.toml"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, ".config", "cuems", "config.toml"), nil
}

// Load reads configuration from path, layering defaults, the TOML file,
// CUEMS_* environment variables and finally overrides (usually flags the
// user set explicitly, keyed like "engine.control_url"). A missing file
// is not an error. If path is empty, DefaultConfigPath is used.
func Load(path string, overrides map[string]any) (Config, error) {
	if path == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			return Config{}, err
		}
		path = defaultPath
	}
	path, err := ExpandPath(path)
	if err != nil {
		return Config{}, err
	}

	def := Default()
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("engine.control_url", def.Engine.ControlURL)
	v.SetDefault("engine.realtime_url", def.Engine.RealtimeURL)
	v.SetDefault("engine.control_reconnect_seconds", def.Engine.ControlReconnectSeconds)
	v.SetDefault("engine.realtime_reconnect_millis", def.Engine.RealtimeReconnectMillis)
	v.SetDefault("engine.address_prefix", def.Engine.AddressPrefix)
	v.SetDefault("state.path", def.State.Path)
	v.SetDefault("topology.max_attempts", def.Topology.MaxAttempts)
	v.SetDefault("topology.delay_millis", def.Topology.DelayMillis)
	v.SetDefault("logging.level", def.Logging.Level)
	v.SetDefault("logging.format", def.Logging.Format)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		log.Debugf("No config file at %s, using defaults", path)
	} else {
		log.Debugf("Loaded config from %s", path)
	}

	for key, value := range overrides {
		v.Set(key, value)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.normalize(); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) normalize() error {
	c.Engine.ControlURL = strings.TrimSpace(c.Engine.ControlURL)
	c.Engine.RealtimeURL = strings.TrimSpace(c.Engine.RealtimeURL)
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = FormatAuto
	}
	statePath, err := ExpandPath(c.State.Path)
	if err != nil {
		return fmt.Errorf("state.path: %w", err)
	}
	c.State.Path = statePath
	return nil
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error
	if err := validateEngineURL("engine.control_url", c.Engine.ControlURL); err != nil {
		errs = append(errs, err)
	}
	if err := validateEngineURL("engine.realtime_url", c.Engine.RealtimeURL); err != nil {
		errs = append(errs, err)
	}
	if c.Engine.ControlReconnectSeconds <= 0 {
		errs = append(errs, fmt.Errorf("engine.control_reconnect_seconds must be positive, got %d", c.Engine.ControlReconnectSeconds))
	}
	if c.Engine.RealtimeReconnectMillis <= 0 {
		errs = append(errs, fmt.Errorf("engine.realtime_reconnect_millis must be positive, got %d", c.Engine.RealtimeReconnectMillis))
	}
	if c.State.Path == "" {
		errs = append(errs, errors.New("state.path is required"))
	}
	if c.Topology.MaxAttempts <= 0 {
		errs = append(errs, fmt.Errorf("topology.max_attempts must be positive, got %d", c.Topology.MaxAttempts))
	}
	if c.Topology.DelayMillis < 0 {
		errs = append(errs, fmt.Errorf("topology.delay_millis must not be negative, got %d", c.Topology.DelayMillis))
	}
	if _, err := log.ParseLevel(c.Logging.Level); err != nil {
		errs = append(errs, fmt.Errorf("logging.level: %w", err))
	}
	switch c.Logging.Format {
	case FormatAuto, FormatText, FormatJSON:
	default:
		errs = append(errs, fmt.Errorf("logging.format must be one of auto, text, json; got %q", c.Logging.Format))
	}
	return errors.Join(errs...)
}

func validateEngineURL(key, raw string) error {
	if raw == "" {
		return fmt.Errorf("%s is required", key)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("%s must use ws or wss, got %q", key, u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("%s has no host", key)
	}
	return nil
}

// ControlReconnectDelay is the fixed wait between control channel reconnects.
func (c Config) ControlReconnectDelay() time.Duration {
	return time.Duration(c.Engine.ControlReconnectSeconds) * time.Second
}

// RealtimeReconnectDelay is the fixed wait between event channel reconnects.
func (c Config) RealtimeReconnectDelay() time.Duration {
	return time.Duration(c.Engine.RealtimeReconnectMillis) * time.Millisecond
}

// TopologyStep is the delay unit multiplied by the attempt number while
// waiting for output mappings.
func (c Config) TopologyStep() time.Duration {
	return time.Duration(c.Topology.DelayMillis) * time.Millisecond
}

// LockPath is the file guarding the single live console per state directory.
func (c Config) LockPath() string {
	return c.State.Path + ".lock"
}

// ExpandPath resolves a leading ~ and returns an absolute, cleaned path.
func ExpandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	absolute, err := filepath.Abs(filepath.Clean(pathValue))
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", pathValue, err)
	}
	return absolute, nil
}

// WriteDefault renders the default configuration as TOML at path. An
// existing file is only replaced when overwrite is set.
func WriteDefault(path string, overwrite bool) error {
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config file already exists at %s", path)
		} else if !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("check config path: %w", err)
		}
	}

	data, err := toml.Marshal(Default())
	if err != nil {
		return fmt.Errorf("encode default config: %w", err)
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write default config: %w", err)
	}
	return nil
}
