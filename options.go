package blockcache

import (
	"log/slog"
)

type (
	// Option configures a [Cache] constructed by [New].
	Option func(*options)
	// Reporter receives human readable diagnostics
	// about rejected requests, such as a negative block id.
	Reporter func(message string)
	options  struct {
		logger   *slog.Logger
		reporter Reporter
		observer Observer
	}
)

// WithLogger sets the structured logger used by the cache.
// Operations are logged at debug level; device failures at error level.
// If nil is passed, logging is discarded (the default).
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithReporter sets the diagnostic sink for rejected requests.
// By default diagnostics are logged at error level.
func WithReporter(reporter Reporter) Option {
	return func(o *options) {
		o.reporter = reporter
	}
}

// WithObserver registers hooks for cache events.
// If nil is passed, [NoopObserver] is used.
func WithObserver(observer Observer) Option {
	return func(o *options) {
		o.observer = observer
	}
}

func newOptions(opts []Option) options {
	var o options
	for _, apply := range opts {
		apply(&o)
	}
	if o.logger == nil {
		o.logger = slog.New(slog.DiscardHandler)
	}
	if o.reporter == nil {
		logger := o.logger
		o.reporter = func(message string) {
			logger.Error(message)
		}
	}
	if o.observer == nil {
		o.observer = NoopObserver{}
	}
	return o
}
