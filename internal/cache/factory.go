package cache

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"

	"github.com/tiercache/tiercache/internal/circuit"
	"github.com/tiercache/tiercache/internal/codec"
	"github.com/tiercache/tiercache/internal/config"
	"github.com/tiercache/tiercache/internal/storage"
	"github.com/tiercache/tiercache/internal/storage/file"
	"github.com/tiercache/tiercache/internal/storage/s3"
	"github.com/tiercache/tiercache/internal/strategy"
	"github.com/tiercache/tiercache/internal/tier"
	"github.com/tiercache/tiercache/pkg/errors"
	"github.com/tiercache/tiercache/pkg/retry"
)

// New creates a cache over tiers, which must be non-empty, have positive
// capacities and carry indices 0..N-1 in order.
func New(policy *strategy.Policy, tiers []tier.Tier, opts ...Option) (*Cache, error) {
	if policy == nil {
		return nil, invalidConfig("displacement policy cannot be nil")
	}
	if len(tiers) == 0 {
		return nil, invalidConfig("cache requires at least one tier")
	}
	for i, t := range tiers {
		if t == nil {
			return nil, invalidConfig("tier %d is nil", i)
		}
		if t.Index() != i {
			return nil, invalidConfig("tier at position %d reports index %d", i, t.Index())
		}
		if t.Capacity() <= 0 {
			return nil, invalidConfig("tier %d capacity must be positive, got %d", i, t.Capacity())
		}
	}

	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}

	c := &Cache{
		policy:   policy,
		tiers:    append([]tier.Tier(nil), tiers...),
		logger:   o.logger.With("component", "cache"),
		recorder: o.recorder,
		tracer:   o.tracer,
	}

	c.logger.Info("Cache created", "strategy", policy.String(), "tiers", len(tiers), "max_size", c.MaxSize())
	c.reportUsage(context.Background())
	return c, nil
}

// NewFromConfig validates cfg and builds the configured tiers. Tiers
// already built are disposed when a later one fails.
func NewFromConfig(ctx context.Context, cfg *config.Configuration, opts ...Option) (*Cache, error) {
	if cfg == nil {
		return nil, invalidConfig("configuration cannot be nil")
	}
	if err := cfg.Cache.Validate(); err != nil {
		return nil, err
	}

	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}

	policy := strategy.NewPolicy(cfg.Cache.Strategy, strategy.WithRand(o.intN))

	b := &builder{cfg: cfg, opts: o, policy: policy}
	levels := cfg.Cache.ResolvedLevels()
	tiers := make([]tier.Tier, 0, len(levels))
	for i, level := range levels {
		t, err := b.build(ctx, i, level)
		if err != nil {
			for _, built := range tiers {
				_ = built.Dispose(ctx)
			}
			return nil, err
		}
		tiers = append(tiers, t)
	}

	return New(policy, tiers, opts...)
}

type builder struct {
	cfg    *config.Configuration
	opts   *options
	policy *strategy.Policy
}

func (b *builder) build(ctx context.Context, index int, level config.LevelConfig) (tier.Tier, error) {
	kind, err := tier.ParseKind(level.Kind)
	if err != nil {
		return nil, invalidConfig("level %d: %v", index, err)
	}

	if kind == tier.KindMemory {
		t, err := tier.NewMemory(index, level.Capacity, b.policy)
		if err != nil {
			return nil, invalidConfig("level %d: %v", index, err)
		}
		return t, nil
	}

	var store storage.Store
	switch kind {
	case tier.KindFile:
		store, err = b.fileStore(level)
	case tier.KindS3:
		store, err = b.s3Store(ctx, level)
	}
	if err != nil {
		return nil, errors.NewTierError(errors.ErrCodeTierIO, index, "create").WithCause(err)
	}

	b.opts.logger.Info("Created persistent tier", "tier", index, "kind", string(kind), "capacity", level.Capacity, "location", store.Location())
	t, err := tier.NewPersistent(index, level.Capacity, kind, b.policy, store,
		tier.WithCodec(codec.New(level.Compression)),
		tier.WithLogger(b.opts.logger),
	)
	if err != nil {
		return nil, invalidConfig("level %d: %v", index, err)
	}
	return t, nil
}

// fileStore places the image at level.Path when set, otherwise in a fresh
// temp file under the level or cache directory.
func (b *builder) fileStore(level config.LevelConfig) (storage.Store, error) {
	if level.Path != "" {
		if b.opts.filesystem != nil {
			return file.NewStore(b.opts.filesystem, level.Path)
		}
		fs, err := hostFS(filepath.Dir(level.Path))
		if err != nil {
			return nil, err
		}
		return file.NewStore(fs, filepath.Base(level.Path))
	}

	dir := level.Directory
	if dir == "" {
		dir = b.cfg.Cache.Directory
	}
	if b.opts.filesystem != nil {
		return file.NewTempStore(b.opts.filesystem, dir)
	}
	fs, err := hostFS(dir)
	if err != nil {
		return nil, err
	}
	return file.NewTempStore(fs, ".")
}

// hostFS returns the host filesystem rooted at dir.
func hostFS(dir string) (billy.Filesystem, error) {
	if dir == "" {
		dir = "."
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", dir, err)
	}
	return osfs.New(abs), nil
}

func (b *builder) s3Store(ctx context.Context, level config.LevelConfig) (storage.Store, error) {
	s3cfg := *level.S3
	s3cfg.ApplyDefaults()

	api := b.opts.s3Client
	var client *awss3.Client
	if api == nil {
		var err error
		client, err = s3.NewClient(ctx, &s3cfg)
		if err != nil {
			return nil, err
		}
		api = client
	} else if c, ok := api.(*awss3.Client); ok {
		client = c
	}

	logger := b.opts.logger.With("component", "s3-store", "bucket", s3cfg.Bucket)
	storeOpts := []s3.Option{
		s3.WithLogger(logger),
		s3.WithRetryer(retry.New(retry.Config{
			MaxAttempts:  b.cfg.Retry.MaxAttempts,
			InitialDelay: b.cfg.Retry.InitialDelay,
			MaxDelay:     b.cfg.Retry.MaxDelay,
			Multiplier:   b.cfg.Retry.Multiplier,
			Jitter:       b.cfg.Retry.Jitter,
			Retryable:    s3.IsTransient,
			OnRetry: func(attempt int, err error, delay time.Duration) {
				logger.Warn("Retrying S3 request", "attempt", attempt, "delay", delay, "error", err)
			},
		})),
	}

	if b.cfg.Breaker.Enabled {
		breaker := circuit.New("s3://"+s3cfg.Bucket+"/"+s3cfg.Key, circuit.Config{
			FailureThreshold: b.cfg.Breaker.FailureThreshold,
			MaxRequests:      b.cfg.Breaker.MaxRequests,
			Timeout:          b.cfg.Breaker.Timeout,
			IsFailure:        s3.IsTransient,
			OnStateChange: func(name string, from, to circuit.State) {
				logger.Warn("Circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
			},
		})
		storeOpts = append(storeOpts, s3.WithBreaker(breaker))
	}

	if s3cfg.EnableCargoShipOptimization {
		if client != nil {
			storeOpts = append(storeOpts, s3.WithTransporter(s3.NewTransporter(client, &s3cfg)))
			logger.Info("CargoShip S3 optimization enabled", "concurrency", s3cfg.Concurrency, "storage_class", s3cfg.StorageClass)
		} else {
			logger.Warn("CargoShip optimization requires an AWS SDK client; using PutObject")
		}
	}

	return s3.NewStore(api, &s3cfg, storeOpts...)
}

func invalidConfig(format string, args ...interface{}) error {
	return errors.NewConfigError(errors.ErrCodeInvalidConfig, fmt.Sprintf(format, args...))
}
