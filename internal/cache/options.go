package cache

import (
	"log/slog"

	"github.com/go-git/go-billy/v5"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/tiercache/tiercache/internal/storage/s3"
	"github.com/tiercache/tiercache/pkg/types"
)

type options struct {
	logger     *slog.Logger
	recorder   types.Recorder
	tracer     trace.Tracer
	s3Client   s3.ObjectAPI
	filesystem billy.Filesystem
	intN       func(n int) int
}

func defaultOptions() *options {
	return &options{
		logger: slog.Default(),
		tracer: noop.NewTracerProvider().Tracer("tiercache"),
	}
}

// Option configures a Cache.
type Option func(*options)

// WithLogger sets the logger for the engine and the tiers it builds.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithRecorder reports operations and tier usage to r.
func WithRecorder(r types.Recorder) Option {
	return func(o *options) {
		o.recorder = r
	}
}

// WithTracer sets the tracer used for operation spans.
func WithTracer(t trace.Tracer) Option {
	return func(o *options) {
		if t != nil {
			o.tracer = t
		}
	}
}

// WithS3Client makes NewFromConfig use client for every s3 tier instead of
// building one from the level config.
func WithS3Client(client s3.ObjectAPI) Option {
	return func(o *options) {
		o.s3Client = client
	}
}

// WithFilesystem makes NewFromConfig place file tiers on fs instead of the
// host filesystem.
func WithFilesystem(fs billy.Filesystem) Option {
	return func(o *options) {
		o.filesystem = fs
	}
}

// WithRand sets the randomness source of the Random strategy.
func WithRand(intN func(n int) int) Option {
	return func(o *options) {
		o.intN = intN
	}
}
