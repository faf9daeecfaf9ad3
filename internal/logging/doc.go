// Package logging provides structured logging using uber/zap.
//
// Two modes are supported:
//   - Production: JSON output for machine parsing
//   - Development: colored console output for human readability
//
// Library packages take a *zap.Logger and fall back to OrNop. Worker and
// Page scope a logger to one bridged worker or one page backend.
//
// Example Usage:
//
//	logger := logging.NewDefault()
//	w, err := bridge.FromString(ctx, p, src, bridge.WithLogger(logger.Logger))
//	logger.Page("chrome").Info("Tab opened")
package logging
