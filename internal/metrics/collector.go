package metrics

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tiercache/tiercache/pkg/errors"
	"github.com/tiercache/tiercache/pkg/types"
)

// Collector records cache engine events as Prometheus metrics. It satisfies
// types.Recorder and can serve its registry over HTTP.
type Collector struct {
	mu       sync.RWMutex
	config   *Config
	registry *prometheus.Registry
	logger   *slog.Logger

	// Prometheus metrics
	operationCounter  *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	errorCounter      *prometheus.CounterVec
	displacements     *prometheus.CounterVec
	discards          *prometheus.CounterVec
	tierEntries       *prometheus.GaugeVec
	tierCapacity      *prometheus.GaugeVec

	// Internal tracking
	operations map[string]*OperationMetrics
	lastReset  time.Time

	server   *http.Server
	listener net.Listener
}

var _ types.Recorder = (*Collector)(nil)

// Config represents metrics configuration
type Config struct {
	Enabled   bool              `yaml:"enabled"`
	Port      int               `yaml:"port"`
	Path      string            `yaml:"path"`
	Labels    map[string]string `yaml:"labels"`
	Namespace string            `yaml:"namespace"`
}

// OperationMetrics tracks one cache operation
type OperationMetrics struct {
	Count         int64         `json:"count"`
	Errors        int64         `json:"errors"`
	TotalDuration time.Duration `json:"total_duration"`
	AvgDuration   time.Duration `json:"avg_duration"`
	LastOperation time.Time     `json:"last_operation"`
}

// NewCollector creates a collector with a private registry. A nil config
// enables metrics on :9090/metrics.
func NewCollector(config *Config) (*Collector, error) {
	if config == nil {
		config = &Config{
			Enabled:   true,
			Port:      9090,
			Path:      "/metrics",
			Namespace: "tiercache",
		}
	}
	if config.Path == "" {
		config.Path = "/metrics"
	}

	c := &Collector{
		config:     config,
		logger:     slog.Default().With("component", "metrics"),
		operations: make(map[string]*OperationMetrics),
		lastReset:  time.Now(),
	}
	if !config.Enabled {
		return c, nil
	}

	c.registry = prometheus.NewRegistry()
	c.initMetrics()
	if err := c.registerMetrics(); err != nil {
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}
	return c, nil
}

// SetLogger sets the logger for server errors.
func (c *Collector) SetLogger(logger *slog.Logger) {
	if logger != nil {
		c.logger = logger.With("component", "metrics")
	}
}

// Registry returns the Prometheus registry, nil when disabled.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus or OpenMetrics format.
func (c *Collector) Handler() http.Handler {
	if !c.config.Enabled {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// Start listens on the configured port and serves metrics until Stop.
func (c *Collector) Start(_ context.Context) error {
	if !c.config.Enabled {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle(c.config.Path, c.Handler())
	mux.HandleFunc("/health", c.healthHandler)
	mux.HandleFunc("/debug/operations", c.debugOperationsHandler)

	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", c.config.Port))
	if err != nil {
		return fmt.Errorf("failed to listen for metrics: %w", err)
	}

	c.mu.Lock()
	c.listener = listener
	c.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 30 * time.Second, // Prevent Slowloris attacks
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	server := c.server
	c.mu.Unlock()

	go func() {
		if err := server.Serve(listener); err != nil && err != http.ErrServerClosed {
			c.logger.Error("Metrics server error", "error", err)
		}
	}()

	c.logger.Info("Metrics server started", "addr", listener.Addr().String(), "path", c.config.Path)
	return nil
}

// Addr returns the address the server listens on, or "" before Start.
func (c *Collector) Addr() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.listener == nil {
		return ""
	}
	return c.listener.Addr().String()
}

// Stop shuts the metrics server down.
func (c *Collector) Stop(ctx context.Context) error {
	c.mu.RLock()
	server := c.server
	c.mu.RUnlock()

	if server != nil {
		return server.Shutdown(ctx)
	}
	return nil
}

// RecordOperation records one cache operation and its outcome.
func (c *Collector) RecordOperation(operation string, seconds float64, err error) {
	if !c.config.Enabled {
		return
	}

	duration := time.Duration(seconds * float64(time.Second))

	c.mu.Lock()
	m, ok := c.operations[operation]
	if !ok {
		m = &OperationMetrics{}
		c.operations[operation] = m
	}
	m.Count++
	m.TotalDuration += duration
	m.AvgDuration = time.Duration(int64(m.TotalDuration) / m.Count)
	m.LastOperation = time.Now()
	if err != nil {
		m.Errors++
	}
	c.mu.Unlock()

	status := "success"
	if err != nil {
		status = "error"
		code := string(errors.CodeOf(err))
		if code == "" {
			code = "unknown"
		}
		c.errorCounter.WithLabelValues(operation, code).Inc()
	}
	c.operationCounter.WithLabelValues(operation, status).Inc()
	c.operationDuration.WithLabelValues(operation).Observe(seconds)
}

// RecordDisplacement counts a victim moved out of fromTier.
func (c *Collector) RecordDisplacement(fromTier int) {
	if !c.config.Enabled {
		return
	}
	c.displacements.WithLabelValues(strconv.Itoa(fromTier)).Inc()
}

// RecordDiscard counts a victim dropped from the last tier.
func (c *Collector) RecordDiscard(tier int) {
	if !c.config.Enabled {
		return
	}
	c.discards.WithLabelValues(strconv.Itoa(tier)).Inc()
}

// SetTierUsage publishes the occupancy of a tier.
func (c *Collector) SetTierUsage(tier int, kind string, size, capacity int) {
	if !c.config.Enabled {
		return
	}
	label := strconv.Itoa(tier)
	c.tierEntries.WithLabelValues(label, kind).Set(float64(size))
	c.tierCapacity.WithLabelValues(label, kind).Set(float64(capacity))
}

// GetMetrics returns a copy of the per-operation tracking.
func (c *Collector) GetMetrics() map[string]OperationMetrics {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make(map[string]OperationMetrics, len(c.operations))
	for k, v := range c.operations {
		out[k] = *v
	}
	return out
}

// ResetMetrics clears the per-operation tracking. Prometheus series are kept.
func (c *Collector) ResetMetrics() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.operations = make(map[string]*OperationMetrics)
	c.lastReset = time.Now()
}

func (c *Collector) initMetrics() {
	ns := c.config.Namespace
	labels := prometheus.Labels(c.config.Labels)

	c.operationCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   ns,
			Name:        "operations_total",
			Help:        "Total number of cache operations",
			ConstLabels: labels,
		},
		[]string{"operation", "status"},
	)

	c.operationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace:   ns,
			Name:        "operation_duration_seconds",
			Help:        "Duration of cache operations in seconds",
			Buckets:     prometheus.ExponentialBuckets(0.00001, 4, 12), // 10µs to ~42s
			ConstLabels: labels,
		},
		[]string{"operation"},
	)

	c.errorCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   ns,
			Name:        "errors_total",
			Help:        "Total number of failed cache operations",
			ConstLabels: labels,
		},
		[]string{"operation", "code"},
	)

	c.displacements = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   ns,
			Name:        "displacements_total",
			Help:        "Victims moved to the next tier",
			ConstLabels: labels,
		},
		[]string{"from_tier"},
	)

	c.discards = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   ns,
			Name:        "discards_total",
			Help:        "Victims dropped from the last tier",
			ConstLabels: labels,
		},
		[]string{"tier"},
	)

	c.tierEntries = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace:   ns,
			Name:        "tier_entries",
			Help:        "Entries currently held by a tier",
			ConstLabels: labels,
		},
		[]string{"tier", "kind"},
	)

	c.tierCapacity = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace:   ns,
			Name:        "tier_capacity",
			Help:        "Capacity of a tier",
			ConstLabels: labels,
		},
		[]string{"tier", "kind"},
	)
}

func (c *Collector) registerMetrics() error {
	metrics := []prometheus.Collector{
		c.operationCounter,
		c.operationDuration,
		c.errorCounter,
		c.displacements,
		c.discards,
		c.tierEntries,
		c.tierCapacity,
	}

	for _, metric := range metrics {
		if err := c.registry.Register(metric); err != nil {
			return err
		}
	}
	return nil
}

// HTTP handlers

func (c *Collector) healthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"healthy","service":"tiercache-metrics"}`))
}

func (c *Collector) debugOperationsHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet, http.MethodHead:
	case http.MethodDelete:
		c.ResetMetrics()
		w.WriteHeader(http.StatusNoContent)
		return
	default:
		w.Header().Set("Allow", "GET, HEAD, DELETE")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	operations := c.GetMetrics()
	c.mu.RLock()
	lastReset := c.lastReset
	c.mu.RUnlock()

	w.Header().Set("Content-Type", "text/plain")
	writef := func(format string, args ...interface{}) { _, _ = fmt.Fprintf(w, format, args...) }

	writef("Cache Operations Summary\n")
	writef("========================\n\n")
	writef("Uptime: %v\n\n", time.Since(lastReset).Round(time.Second))

	if len(operations) == 0 {
		writef("No operations recorded.\n")
		return
	}

	names := make([]string, 0, len(operations))
	for name := range operations {
		names = append(names, name)
	}
	sort.Strings(names)

	writef("%-12s %10s %10s %14s %10s\n", "Operation", "Count", "Errors", "Avg Duration", "Last Op")
	writef("%-12s %10s %10s %14s %10s\n", "---------", "-----", "------", "------------", "-------")
	for _, name := range names {
		op := operations[name]
		writef("%-12s %10d %10d %14v %10s\n",
			name, op.Count, op.Errors, op.AvgDuration, op.LastOperation.Format("15:04:05"))
	}
}
