package sandbox

import (
	"time"

	"github.com/GriffinCanCode/AgentOS/browserworker/internal/infrastructure/config"
)

// Config defines sandbox page configuration
type Config struct {
	EnableConsole bool          // Install console.log/warn/error/info/debug
	FetchTimeout  time.Duration // Per-request timeout for documents and scripts
	FetchRetries  int           // Retries for failed fetches
	FetchRPS      float64       // Fetch rate limit, 0 for unlimited
	UserAgent     string        // User-Agent header sent by the loader
}

// LogEntry represents console output
type LogEntry struct {
	Level   string    // log, warn, error, info, debug
	Message string    // Log message
	Source  string    // "page" or the worker script URL
	Time    time.Time // Timestamp
}

// DefaultConfig returns the default sandbox configuration
func DefaultConfig() Config {
	return Config{
		EnableConsole: true,
		FetchTimeout:  10 * time.Second,
		FetchRetries:  2,
		UserAgent:     "browserworker-sandbox/1.0",
	}
}

// ConfigFrom maps the launcher's sandbox section onto a Config
func ConfigFrom(cfg config.SandboxConfig) Config {
	return Config{
		EnableConsole: cfg.EnableConsole,
		FetchTimeout:  cfg.FetchTimeout.Std(),
		FetchRetries:  cfg.FetchRetries,
		FetchRPS:      cfg.FetchRPS,
		UserAgent:     cfg.UserAgent,
	}
}
