package worker

import (
	"github.com/okian/perimeter/internal/domain/dedupe"
	"github.com/okian/perimeter/pkg/logger"
)

// Option applies a configuration option to a worker. Pool options are applied
// to every worker it creates.
type Option func(*InMemoryWorker)

// WithName sets the worker name for identification and logging.
func WithName(name string) Option {
	return func(w *InMemoryWorker) {
		if name != "" {
			w.name = name
		}
	}
}

// WithLogger sets a custom logger for the worker.
func WithLogger(l logger.Logger) Option {
	return func(w *InMemoryWorker) {
		if l != nil {
			w.logger = l
		}
	}
}

// WithDeduper makes the worker release a claim's in-flight mark once its
// resolution has been processed.
func WithDeduper(d dedupe.Deduper) Option {
	return func(w *InMemoryWorker) {
		w.deduper = d
	}
}
