package cache

import (
	"bytes"
	"context"
	"io"
	"math/rand/v2"
	"sync"
	"testing"

	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tiercache/tiercache/internal/config"
	"github.com/tiercache/tiercache/internal/storage/s3"
	"github.com/tiercache/tiercache/internal/strategy"
	"github.com/tiercache/tiercache/internal/tier"
	"github.com/tiercache/tiercache/pkg/errors"
	"github.com/tiercache/tiercache/pkg/types"
)

type memoryBucket struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newMemoryBucket() *memoryBucket {
	return &memoryBucket{objects: make(map[string][]byte)}
}

func (b *memoryBucket) GetObject(_ context.Context, in *awss3.GetObjectInput, _ ...func(*awss3.Options)) (*awss3.GetObjectOutput, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	data, ok := b.objects[*in.Bucket+"/"+*in.Key]
	if !ok {
		return nil, &s3types.NoSuchKey{}
	}
	return &awss3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (b *memoryBucket) PutObject(_ context.Context, in *awss3.PutObjectInput, _ ...func(*awss3.Options)) (*awss3.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.objects[*in.Bucket+"/"+*in.Key] = data
	return &awss3.PutObjectOutput{}, nil
}

func (b *memoryBucket) DeleteObject(_ context.Context, in *awss3.DeleteObjectInput, _ ...func(*awss3.Options)) (*awss3.DeleteObjectOutput, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.objects, *in.Bucket+"/"+*in.Key)
	return &awss3.DeleteObjectOutput{}, nil
}

func (b *memoryBucket) len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.objects)
}

func TestNew_Validation(t *testing.T) {
	t.Parallel()

	policy := strategy.NewPolicy(strategy.LRU)
	t0, err := tier.NewMemory(0, 1, policy)
	require.NoError(t, err)
	t1, err := tier.NewMemory(1, 1, policy)
	require.NoError(t, err)

	tests := []struct {
		name   string
		policy *strategy.Policy
		tiers  []tier.Tier
	}{
		{"nil policy", nil, []tier.Tier{t0}},
		{"no tiers", policy, nil},
		{"nil tier", policy, []tier.Tier{t0, nil}},
		{"out of order", policy, []tier.Tier{t1, t0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.policy, tt.tiers)
			require.Error(t, err)
			assert.Equal(t, errors.ErrCodeInvalidConfig, errors.CodeOf(err))
		})
	}
}

func TestNewFromConfig_DefaultLevels(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	fs := memfs.New()
	cfg := config.NewDefault()
	cfg.Cache.BaseSize = 2
	cfg.Cache.Multiplier = 2
	cfg.Cache.Compression = true

	c, err := NewFromConfig(ctx, cfg, WithFilesystem(fs))
	require.NoError(t, err)

	assert.Equal(t, 6, c.MaxSize())
	tiers := c.Tiers()
	require.Len(t, tiers, 2)
	assert.Equal(t, tier.KindMemory, tiers[0].Kind())
	assert.Equal(t, tier.KindFile, tiers[1].Kind())

	put(t, c, 1, 2, 3, 4, 5)
	levels, err := c.Levels(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int64{4, 5}, levels[0].IDs)
	assert.Equal(t, []int64{1, 2, 3}, levels[1].IDs)

	files, err := fs.ReadDir("tmp")
	require.NoError(t, err)
	assert.Len(t, files, 1)

	require.NoError(t, c.Delete(ctx))
	files, err = fs.ReadDir("tmp")
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestNewFromConfig_MultiplierClamp(t *testing.T) {
	t.Parallel()

	cfg := config.NewDefault()
	cfg.Cache.BaseSize = 2
	cfg.Cache.Multiplier = 0.1

	c, err := NewFromConfig(context.Background(), cfg, WithFilesystem(memfs.New()))
	require.NoError(t, err)
	assert.Equal(t, 3, c.MaxSize())
}

func TestNewFromConfig_PathSurvivesRestart(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	fs := memfs.New()
	cfg := config.NewDefault()
	cfg.Cache.Levels = []config.LevelConfig{
		{Kind: "memory", Capacity: 1},
		{Kind: "disk", Capacity: 3, Path: "images/level1.img"},
	}

	first, err := NewFromConfig(ctx, cfg, WithFilesystem(fs))
	require.NoError(t, err)
	put(t, first, 1, 2, 3)

	second, err := NewFromConfig(ctx, cfg, WithFilesystem(fs))
	require.NoError(t, err)

	e, err := second.Find(ctx, 2)
	require.NoError(t, err)
	require.NotNil(t, e)
	assert.Equal(t, []byte{2}, e.Value)

	e, err = second.Find(ctx, 3)
	require.NoError(t, err)
	assert.Nil(t, e, "tier 0 is not persistent")
}

func TestNewFromConfig_S3Level(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	bucket := newMemoryBucket()
	cfg := config.NewDefault()
	cfg.Cache.Levels = []config.LevelConfig{
		{Kind: "memory", Capacity: 1},
		{Kind: "s3", Capacity: 2, Compression: true, S3: &s3.Config{Bucket: "cache", Key: "levels/1.img"}},
	}

	c, err := NewFromConfig(ctx, cfg, WithS3Client(bucket))
	require.NoError(t, err)
	assert.Equal(t, tier.KindS3, c.Tiers()[1].Kind())

	put(t, c, 1, 2, 3)
	assert.Equal(t, 1, bucket.len())

	e, err := c.Get(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, e)

	levels, err := c.Levels(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int64{1}, levels[0].IDs)
	assert.ElementsMatch(t, []int64{2, 3}, levels[1].IDs)

	require.NoError(t, c.Delete(ctx))
	assert.Equal(t, 0, bucket.len())
}

func TestNewFromConfig_Invalid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		modify func(*config.Configuration)
		code   errors.ErrorCode
	}{
		{"bad strategy", func(c *config.Configuration) { c.Cache.Strategy = strategy.Kind(9) }, errors.ErrCodeConfigValidation},
		{"zero base size", func(c *config.Configuration) { c.Cache.BaseSize = 0 }, errors.ErrCodeConfigValidation},
		{"negative multiplier", func(c *config.Configuration) { c.Cache.Multiplier = -1 }, errors.ErrCodeConfigValidation},
		{"zero capacity level", func(c *config.Configuration) {
			c.Cache.Levels = []config.LevelConfig{{Kind: "memory", Capacity: 0}}
		}, errors.ErrCodeConfigValidation},
		{"unknown kind", func(c *config.Configuration) {
			c.Cache.Levels = []config.LevelConfig{{Kind: "tape", Capacity: 1}}
		}, errors.ErrCodeConfigValidation},
		{"s3 without section", func(c *config.Configuration) {
			c.Cache.Levels = []config.LevelConfig{{Kind: "s3", Capacity: 1}}
		}, errors.ErrCodeConfigValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.NewDefault()
			tt.modify(cfg)
			_, err := NewFromConfig(context.Background(), cfg, WithFilesystem(memfs.New()))
			require.Error(t, err)
			assert.Equal(t, tt.code, errors.CodeOf(err))
		})
	}

	t.Run("nil config", func(t *testing.T) {
		_, err := NewFromConfig(context.Background(), nil)
		assert.Equal(t, errors.ErrCodeInvalidConfig, errors.CodeOf(err))
	})
}

func TestNewFromConfig_RandomSeed(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	run := func() []types.LevelInfo {
		cfg := config.NewDefault()
		cfg.Cache.Strategy = strategy.Random
		cfg.Cache.BaseSize = 3
		cfg.Cache.Multiplier = 1
		rng := rand.New(rand.NewPCG(1, 2))

		c, err := NewFromConfig(ctx, cfg, WithFilesystem(memfs.New()), WithRand(rng.IntN))
		require.NoError(t, err)
		put(t, c, 1, 2, 3, 4, 5, 6, 7, 8, 9)
		levels, err := c.Levels(ctx)
		require.NoError(t, err)
		return levels
	}

	a, b := run(), run()
	for i := range a {
		assert.Equal(t, a[i].IDs, b[i].IDs)
	}
}
