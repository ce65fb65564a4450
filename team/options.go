package team

import (
	"github.com/hupe1980/agentbridge/internal/metrics"
	"github.com/hupe1980/agentbridge/logging"
)

// BrokerOptions configures the broker implementations.
type BrokerOptions struct {
	Logger  logging.Logger
	Metrics *metrics.Collector
	// MaxRetries bounds optimistic retries of RedisBroker.Update.
	MaxRetries int
}

func newBrokerOptions(optFns ...func(o *BrokerOptions)) BrokerOptions {
	opts := BrokerOptions{Logger: logging.NoOpLogger{}, MaxRetries: 10}
	for _, fn := range optFns {
		fn(&opts)
	}
	opts.Logger = logging.OrNoOp(opts.Logger)
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 10
	}
	return opts
}
