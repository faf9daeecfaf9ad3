// Package config provides launcher configuration for managed workers.
//
// Configuration is loaded from environment variables with defaults, or from
// a YAML/TOML/JSON file laid over the defaults.
//
// Configuration Sections:
//   - Browser: page backend (chrome or sandbox) and Chrome launch options
//   - Sandbox: in-process goja page options
//   - Logging: log level and output format
//   - Metrics: Prometheus collectors
//
// Example Usage:
//
//	cfg, err := config.Load()
//	if err != nil {
//		return err
//	}
//	fmt.Println(cfg.Browser.Backend, cfg.Browser.Flags)
//
// Environment Variables:
//   - WORKER_BACKEND, CHROME_PATH, CHROME_REMOTE_URL, CHROME_HEADLESS,
//     CHROME_FLAGS, CHROME_START_TIMEOUT
//   - SANDBOX_CONSOLE, SANDBOX_FETCH_TIMEOUT, SANDBOX_USER_AGENT
//   - LOG_LEVEL, LOG_DEV
//   - METRICS_ENABLED, METRICS_NAMESPACE
package config
