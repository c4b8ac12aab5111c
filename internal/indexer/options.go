package indexer

import (
	"log/slog"

	"github.com/shuoer86/grants-stack-indexer/internal/metrics"
)

// Options carries the ambient dependencies shared by the indexer components.
// The zero value logs to slog.Default and records no metrics.
type Options struct {
	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

func (o Options) component(name string) *slog.Logger {
	l := o.Logger
	if l == nil {
		l = slog.Default()
	}
	return l.With("component", name)
}
