// Package observability wires the ambient logging and metrics stack:
// a zap logger threaded explicitly into every component (no package
// global), and a prometheus registry of counters/gauges for queue
// depth, cache hits and misses, batch duration, and worker-pool size
// (see Metrics for which of them are updated).
package observability

import (
	"fmt"

	"go.uber.org/zap"
)

// NewLogger builds a zap logger: a human-readable development
// encoder when verbose is set, a JSON production encoder otherwise.
func NewLogger(verbose bool) (*zap.Logger, error) {
	var cfg zap.Config
	if verbose {
		cfg = zap.NewDevelopmentConfig()
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	} else {
		cfg = zap.NewProductionConfig()
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("observability: build logger: %w", err)
	}
	return logger, nil
}
