package bqetl

import (
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"golang.org/x/xerrors"
)

// Option configures ETL.
type Option interface {
	apply(*etl) error
}

type optionFunc func(*etl) error

func (f optionFunc) apply(e *etl) error {
	return f(e)
}

// WithPrettyLogging configures ETL to print human friendly logs.
func WithPrettyLogging() Option {
	return optionFunc(func(e *etl) error {
		e.prettyLogging = true
		return nil
	})
}

// WithLogLevel configures log level. One of trace, debug, info, warn, error,
// fatal and panic.
func WithLogLevel(level string) Option {
	return optionFunc(func(e *etl) error {
		l, err := zerolog.ParseLevel(level)
		if err != nil {
			return xerrors.Errorf("invalid log level %q: %w", level, err)
		}
		e.logLevel = l
		return nil
	})
}

// WithConcurrency configures how many pipelines RunAll runs at once.
func WithConcurrency(n int) Option {
	return optionFunc(func(e *etl) error {
		if n < 1 {
			return xerrors.Errorf("concurrency must be positive: %d", n)
		}
		e.concurrency = n
		return nil
	})
}

// WithClock configures the clock dating pipeline runs.
func WithClock(c clockwork.Clock) Option {
	return optionFunc(func(e *etl) error {
		e.clock = c
		return nil
	})
}

// WithNotifier configures the notifier of pipelines without their own.
func WithNotifier(n Notifier) Option {
	return optionFunc(func(e *etl) error {
		e.notifier = n
		return nil
	})
}
