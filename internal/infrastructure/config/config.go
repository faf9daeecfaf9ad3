package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/goccy/go-yaml"
	"github.com/kelseyhightower/envconfig"
	"github.com/pelletier/go-toml/v2"
)

// Backend names a page capability implementation.
const (
	BackendChrome  = "chrome"
	BackendSandbox = "sandbox"
)

// Config holds all launcher configuration.
type Config struct {
	Browser BrowserConfig `yaml:"browser" toml:"browser" json:"browser"`
	Sandbox SandboxConfig `yaml:"sandbox" toml:"sandbox" json:"sandbox"`
	Logging LogConfig     `yaml:"logging" toml:"logging" json:"logging"`
	Metrics MetricsConfig `yaml:"metrics" toml:"metrics" json:"metrics"`
}

// BrowserConfig selects and configures the page backend.
type BrowserConfig struct {
	Backend      string   `envconfig:"WORKER_BACKEND" default:"chrome" yaml:"backend" toml:"backend" json:"backend"`
	ExecPath     string   `envconfig:"CHROME_PATH" yaml:"exec_path" toml:"exec_path" json:"exec_path"`
	RemoteURL    string   `envconfig:"CHROME_REMOTE_URL" yaml:"remote_url" toml:"remote_url" json:"remote_url"`
	Headless     bool     `envconfig:"CHROME_HEADLESS" default:"true" yaml:"headless" toml:"headless" json:"headless"`
	Flags        []string `envconfig:"CHROME_FLAGS" default:"enable-experimental-web-platform-features,no-sandbox" yaml:"flags" toml:"flags" json:"flags"`
	StartTimeout Duration `envconfig:"CHROME_START_TIMEOUT" default:"30s" yaml:"start_timeout" toml:"start_timeout" json:"start_timeout"`
}

// SandboxConfig configures the in-process goja page backend.
type SandboxConfig struct {
	EnableConsole bool     `envconfig:"SANDBOX_CONSOLE" default:"true" yaml:"enable_console" toml:"enable_console" json:"enable_console"`
	FetchTimeout  Duration `envconfig:"SANDBOX_FETCH_TIMEOUT" default:"10s" yaml:"fetch_timeout" toml:"fetch_timeout" json:"fetch_timeout"`
	UserAgent     string   `envconfig:"SANDBOX_USER_AGENT" default:"browserworker-sandbox/1.0" yaml:"user_agent" toml:"user_agent" json:"user_agent"`
	FetchRetries  int      `envconfig:"SANDBOX_FETCH_RETRIES" default:"2" yaml:"fetch_retries" toml:"fetch_retries" json:"fetch_retries"`
	FetchRPS      float64  `envconfig:"SANDBOX_FETCH_RPS" default:"0" yaml:"fetch_rps" toml:"fetch_rps" json:"fetch_rps"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info" yaml:"level" toml:"level" json:"level"`
	Development bool   `envconfig:"LOG_DEV" default:"false" yaml:"development" toml:"development" json:"development"`
}

// MetricsConfig holds Prometheus configuration.
type MetricsConfig struct {
	Enabled   bool   `envconfig:"METRICS_ENABLED" default:"false" yaml:"enabled" toml:"enabled" json:"enabled"`
	Namespace string `envconfig:"METRICS_NAMESPACE" default:"browserworker" yaml:"namespace" toml:"namespace" json:"namespace"`
}

// Duration is a time.Duration that decodes from strings such as "30s" in
// environment variables and config files alike.
type Duration time.Duration

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadFile reads a YAML, TOML or JSON file over the defaults. The format is
// picked from the file extension. Environment variables are not consulted.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	cfg := Default()
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, cfg)
	case ".toml":
		err = toml.Unmarshal(data, cfg)
	case ".json":
		err = sonic.Unmarshal(data, cfg)
	default:
		return nil, fmt.Errorf("unsupported config format %q", ext)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	switch c.Browser.Backend {
	case BackendChrome, BackendSandbox:
	default:
		return fmt.Errorf("unknown browser backend %q", c.Browser.Backend)
	}
	if c.Browser.StartTimeout < 0 {
		return fmt.Errorf("browser start timeout must not be negative")
	}
	if c.Sandbox.FetchRetries < 0 {
		return fmt.Errorf("sandbox fetch retries must not be negative")
	}
	return nil
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Browser: BrowserConfig{
			Backend:      BackendChrome,
			Headless:     true,
			Flags:        []string{"enable-experimental-web-platform-features", "no-sandbox"},
			StartTimeout: Duration(30 * time.Second),
		},
		Sandbox: SandboxConfig{
			EnableConsole: true,
			FetchTimeout:  Duration(10 * time.Second),
			UserAgent:     "browserworker-sandbox/1.0",
			FetchRetries:  2,
		},
		Logging: LogConfig{
			Level:       "info",
			Development: false,
		},
		Metrics: MetricsConfig{
			Enabled:   false,
			Namespace: "browserworker",
		},
	}
}
