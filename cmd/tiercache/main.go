// Command tiercache runs a put/get workload against a cache built from a
// configuration file and prints the resulting tier layout.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tiercache/tiercache/internal/cache"
	"github.com/tiercache/tiercache/internal/config"
	"github.com/tiercache/tiercache/internal/metrics"
	"github.com/tiercache/tiercache/pkg/types"
	"github.com/tiercache/tiercache/pkg/utils"
)

func main() {
	configPath := flag.String("config", "", "Path to a YAML configuration file")
	items := flag.Int("items", 100, "Number of entries to put")
	reads := flag.Int("reads", 100, "Number of random gets after the puts")
	seed := flag.Uint64("seed", 1, "Seed for the workload and the random strategy")
	metricsPort := flag.Int("metrics-port", 0, "Serve Prometheus metrics on this port (0 uses the config)")
	keep := flag.Bool("keep", false, "Keep tier images instead of deleting the cache on exit")
	flag.Parse()

	if err := run(*configPath, *items, *reads, *seed, *metricsPort, *keep); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string, items, reads int, seed uint64, metricsPort int, keep bool) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := config.NewDefault()
	if configPath != "" {
		if err := cfg.LoadFromFile(configPath); err != nil {
			return err
		}
	}
	if err := cfg.LoadFromEnv(); err != nil {
		return err
	}
	if metricsPort > 0 {
		cfg.Metrics.Enabled = true
		cfg.Metrics.Port = metricsPort
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, closer, err := utils.SetupLogging(utils.LoggingConfig{
		Level:      cfg.Global.LogLevel,
		Format:     cfg.Global.LogFormat,
		File:       cfg.Global.LogFile,
		MaxSizeMB:  100,
		MaxBackups: 3,
	})
	if err != nil {
		return err
	}
	defer func() { _ = closer.Close() }()
	slog.SetDefault(logger)

	rng := rand.New(rand.NewPCG(seed, seed))
	opts := []cache.Option{
		cache.WithLogger(logger),
		cache.WithRand(rand.New(rand.NewPCG(seed, ^seed)).IntN),
	}

	if cfg.Metrics.Enabled {
		collector, err := metrics.NewCollector(&metrics.Config{
			Enabled:   true,
			Port:      cfg.Metrics.Port,
			Path:      cfg.Metrics.Path,
			Namespace: "tiercache",
		})
		if err != nil {
			return err
		}
		collector.SetLogger(logger)
		if err := collector.Start(ctx); err != nil {
			return err
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = collector.Stop(shutdownCtx)
		}()
		opts = append(opts, cache.WithRecorder(collector))
	}

	c, err := cache.NewFromConfig(ctx, cfg, opts...)
	if err != nil {
		return err
	}
	if !keep {
		defer func() {
			if err := c.Delete(context.Background()); err != nil {
				logger.Error("Failed to delete cache", "error", err)
			}
		}()
	}

	start := time.Now()
	for id := 0; id < items; id++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		e := &types.Entry{ID: int64(id), Value: []byte(fmt.Sprintf("value-%d", id))}
		if err := c.Put(ctx, e); err != nil {
			return err
		}
	}

	hits := 0
	for i := 0; i < reads && items > 0; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		e, err := c.Get(ctx, int64(rng.IntN(items)))
		if err != nil {
			return err
		}
		if e != nil {
			hits++
		}
	}

	logger.Info("Workload finished", "items", items, "reads", reads, "hits", hits, "elapsed", time.Since(start))
	fmt.Print(c.String())
	if reads > 0 {
		fmt.Printf("Hits: %d of %d reads.\n", hits, reads)
	}
	return nil
}
