package config

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/tiercache/tiercache/internal/storage/s3"
	"github.com/tiercache/tiercache/internal/strategy"
	"github.com/tiercache/tiercache/internal/tier"
	"github.com/tiercache/tiercache/pkg/errors"
)

const envPrefix = "TIERCACHE_"

// Configuration represents the complete application configuration
type Configuration struct {
	Global  GlobalConfig  `yaml:"global"`
	Cache   CacheConfig   `yaml:"cache"`
	Retry   RetryConfig   `yaml:"retry"`
	Breaker BreakerConfig `yaml:"breaker"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// GlobalConfig represents global application settings
type GlobalConfig struct {
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
	LogFile   string `yaml:"log_file"`
}

// CacheConfig selects the strategy and the ordered tier levels. When Levels
// is empty the cache gets a memory tier of BaseSize followed by a file tier
// of BaseSize*Multiplier.
type CacheConfig struct {
	Strategy    strategy.Kind `yaml:"strategy"`
	BaseSize    int           `yaml:"base_size"`
	Multiplier  float64       `yaml:"multiplier"`
	Directory   string        `yaml:"directory"`
	Compression bool          `yaml:"compression"`
	Levels      []LevelConfig `yaml:"levels"`
}

// LevelConfig represents one tier
type LevelConfig struct {
	Kind     string `yaml:"kind"`
	Capacity int    `yaml:"capacity"`

	// File tiers: Path names a fixed image file that survives restarts;
	// otherwise a fresh cache temp file is created in Directory.
	Directory   string `yaml:"directory,omitempty"`
	Path        string `yaml:"path,omitempty"`
	Compression bool   `yaml:"compression,omitempty"`

	S3 *s3.Config `yaml:"s3,omitempty"`
}

// RetryConfig represents backing store retry settings
type RetryConfig struct {
	MaxAttempts  int           `yaml:"max_attempts"`
	InitialDelay time.Duration `yaml:"initial_delay"`
	MaxDelay     time.Duration `yaml:"max_delay"`
	Multiplier   float64       `yaml:"multiplier"`
	Jitter       bool          `yaml:"jitter"`
}

// BreakerConfig represents the circuit breaker placed in front of each s3 level
type BreakerConfig struct {
	Enabled          bool          `yaml:"enabled"`
	FailureThreshold uint32        `yaml:"failure_threshold"`
	MaxRequests      uint32        `yaml:"max_requests"`
	Timeout          time.Duration `yaml:"timeout"`
}

// MetricsConfig represents the Prometheus endpoint
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Port    int    `yaml:"port"`
	Path    string `yaml:"path"`
}

// NewDefault returns a configuration with sensible defaults
func NewDefault() *Configuration {
	return &Configuration{
		Global: GlobalConfig{
			LogLevel:  "INFO",
			LogFormat: "text",
			LogFile:   "",
		},
		Cache: CacheConfig{
			Strategy:   strategy.LRU,
			BaseSize:   10,
			Multiplier: 10,
			Directory:  "tmp",
		},
		Retry: RetryConfig{
			MaxAttempts:  3,
			InitialDelay: 100 * time.Millisecond,
			MaxDelay:     5 * time.Second,
			Multiplier:   2.0,
			Jitter:       true,
		},
		Breaker: BreakerConfig{
			Enabled:          true,
			FailureThreshold: 5,
			MaxRequests:      1,
			Timeout:          30 * time.Second,
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Port:    9090,
			Path:    "/metrics",
		},
	}
}

// LoadFromFile loads configuration from a YAML file
func (c *Configuration) LoadFromFile(filename string) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return errors.NewConfigError(errors.ErrCodeConfigLoad, "failed to read config file").WithCause(err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return errors.NewConfigError(errors.ErrCodeConfigLoad, "failed to parse config file").WithCause(err)
	}

	return nil
}

// LoadFromEnv loads configuration from TIERCACHE_* environment variables
func (c *Configuration) LoadFromEnv() error {
	// Global settings
	if val := os.Getenv(envPrefix + "LOG_LEVEL"); val != "" {
		c.Global.LogLevel = strings.ToUpper(val)
	}
	if val := os.Getenv(envPrefix + "LOG_FORMAT"); val != "" {
		c.Global.LogFormat = strings.ToLower(val)
	}
	if val := os.Getenv(envPrefix + "LOG_FILE"); val != "" {
		c.Global.LogFile = val
	}

	// Cache settings
	if val := os.Getenv(envPrefix + "STRATEGY"); val != "" {
		kind, err := strategy.ParseKind(val)
		if err != nil {
			return envError("STRATEGY", err)
		}
		c.Cache.Strategy = kind
	}
	if val := os.Getenv(envPrefix + "BASE_SIZE"); val != "" {
		size, err := strconv.Atoi(val)
		if err != nil {
			return envError("BASE_SIZE", err)
		}
		c.Cache.BaseSize = size
	}
	if val := os.Getenv(envPrefix + "MULTIPLIER"); val != "" {
		multiplier, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return envError("MULTIPLIER", err)
		}
		c.Cache.Multiplier = multiplier
	}
	if val := os.Getenv(envPrefix + "CACHE_DIR"); val != "" {
		c.Cache.Directory = val
	}
	if val := os.Getenv(envPrefix + "COMPRESSION"); val != "" {
		c.Cache.Compression = strings.ToLower(val) == "true"
	}

	// Metrics settings
	if val := os.Getenv(envPrefix + "METRICS_PORT"); val != "" {
		port, err := strconv.Atoi(val)
		if err != nil {
			return envError("METRICS_PORT", err)
		}
		c.Metrics.Port = port
	}
	if val := os.Getenv(envPrefix + "METRICS_ENABLED"); val != "" {
		c.Metrics.Enabled = strings.ToLower(val) == "true"
	}

	return nil
}

func envError(name string, cause error) error {
	return errors.NewConfigError(errors.ErrCodeConfigLoad, "invalid "+envPrefix+name).WithCause(cause)
}

// SaveToFile saves the configuration to a YAML file
func (c *Configuration) SaveToFile(filename string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(filename), 0750); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(filename, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate validates the configuration
func (c *Configuration) Validate() error {
	validLogLevels := []string{"DEBUG", "INFO", "WARN", "ERROR"}
	logLevelValid := false
	for _, level := range validLogLevels {
		if strings.ToUpper(c.Global.LogLevel) == level {
			logLevelValid = true
			break
		}
	}
	if !logLevelValid {
		return validationError("invalid log_level: %s (must be one of: %s)",
			c.Global.LogLevel, strings.Join(validLogLevels, ", "))
	}

	switch c.Global.LogFormat {
	case "", "text", "json":
	default:
		return validationError("invalid log_format: %s (must be text or json)", c.Global.LogFormat)
	}

	if err := c.Cache.Validate(); err != nil {
		return err
	}

	if c.Retry.MaxAttempts < 0 {
		return validationError("retry max_attempts cannot be negative")
	}

	if c.Breaker.Enabled && c.Breaker.Timeout < 0 {
		return validationError("breaker timeout cannot be negative")
	}

	if c.Metrics.Enabled && (c.Metrics.Port <= 0 || c.Metrics.Port > 65535) {
		return validationError("metrics port must be between 1 and 65535, got %d", c.Metrics.Port)
	}

	return nil
}

// Validate checks the strategy and every resolved level.
func (c *CacheConfig) Validate() error {
	switch c.Strategy {
	case strategy.LRU, strategy.MRU, strategy.Random:
	default:
		return validationError("invalid strategy: %s", c.Strategy)
	}

	if len(c.Levels) == 0 {
		if c.BaseSize <= 0 {
			return validationError("base_size must be greater than 0")
		}
		if c.Multiplier <= 0 {
			return validationError("multiplier must be greater than 0")
		}
	}

	for i, level := range c.ResolvedLevels() {
		if err := level.Validate(); err != nil {
			return validationError("level %d: %v", i, err)
		}
	}
	return nil
}

// ResolvedLevels returns the configured levels, or the default memory+file
// pair derived from BaseSize and Multiplier.
func (c *CacheConfig) ResolvedLevels() []LevelConfig {
	if len(c.Levels) > 0 {
		return c.Levels
	}
	return []LevelConfig{
		{Kind: string(tier.KindMemory), Capacity: c.BaseSize},
		{Kind: string(tier.KindFile), Capacity: scaledSize(c.BaseSize, c.Multiplier), Directory: c.Directory, Compression: c.Compression},
	}
}

// scaledSize returns base*multiplier, clamped to [1, MaxInt].
func scaledSize(base int, multiplier float64) int {
	size := float64(base) * multiplier
	if size >= math.MaxInt {
		return math.MaxInt
	}
	if size < 1 {
		return 1
	}
	return int(size)
}

// Validate checks a single level.
func (l *LevelConfig) Validate() error {
	kind, err := tier.ParseKind(l.Kind)
	if err != nil {
		return err
	}
	if l.Capacity <= 0 {
		return fmt.Errorf("capacity must be greater than 0, got %d", l.Capacity)
	}
	if kind == tier.KindS3 {
		if l.S3 == nil {
			return fmt.Errorf("s3 level requires an s3 section")
		}
		if err := l.S3.Validate(); err != nil {
			return err
		}
	}
	return nil
}

func validationError(format string, args ...interface{}) error {
	return errors.NewConfigError(errors.ErrCodeConfigValidation, fmt.Sprintf(format, args...))
}
