package bridge

import (
	"github.com/GriffinCanCode/AgentOS/browserworker/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/AgentOS/browserworker/internal/shared/id"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// DefaultNamespace prefixes worker metrics registered through WithRegisterer
const DefaultNamespace = "browserworker"

type options struct {
	logger   *zap.Logger
	metrics  *monitoring.Metrics
	identity id.WorkerID
}

// Option configures a Worker
type Option func(*options)

// WithLogger sets the worker logger
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithMetrics records worker activity on m
func WithMetrics(m *monitoring.Metrics) Option {
	return func(o *options) {
		o.metrics = m
	}
}

// WithRegisterer records worker activity on collectors registered with reg
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *options) {
		o.metrics = monitoring.NewMetrics(reg, DefaultNamespace)
	}
}

// WithIdentity uses wid instead of minting a fresh identity
func WithIdentity(wid id.WorkerID) Option {
	return func(o *options) {
		o.identity = wid
	}
}

func buildOptions(opts []Option) options {
	var o options
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return o
}
