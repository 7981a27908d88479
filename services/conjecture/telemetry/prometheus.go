// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package telemetry

import (
	"context"
	"errors"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// ErrRegistrationFailed is returned when metric registration fails.
var ErrRegistrationFailed = errors.New("metric registration failed")

// overflowLabel replaces label values past the cardinality limit.
const overflowLabel = "_other"

// -----------------------------------------------------------------------------
// Configuration
// -----------------------------------------------------------------------------

// PrometheusConfig configures the Prometheus sink.
//
// Thread Safety: Immutable after creation; safe for concurrent read access.
type PrometheusConfig struct {
	// Namespace is the metrics namespace. Required.
	Namespace string

	// Subsystem is the metrics subsystem. Required.
	Subsystem string

	// Registry is where collectors are registered.
	// If nil, uses prometheus.DefaultRegisterer.
	Registry prometheus.Registerer

	// DurationBuckets are histogram buckets for run duration (seconds).
	DurationBuckets []float64

	// LengthBuckets are histogram buckets for final buffer length (bytes).
	LengthBuckets []float64

	// MaxLabelCardinality bounds unique values per label. Values past the
	// limit are recorded as "_other". Default: 1000.
	MaxLabelCardinality int
}

// DefaultPrometheusConfig returns the stock configuration.
func DefaultPrometheusConfig() *PrometheusConfig {
	return &PrometheusConfig{
		Namespace:           "conjecture",
		Subsystem:           "engine",
		DurationBuckets:     []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
		LengthBuckets:       prometheus.ExponentialBuckets(1, 4, 8),
		MaxLabelCardinality: 1000,
	}
}

// Validate checks required fields.
func (c *PrometheusConfig) Validate() error {
	if c.Namespace == "" {
		return errors.New("namespace is required")
	}
	if c.Subsystem == "" {
		return errors.New("subsystem is required")
	}
	return nil
}

// -----------------------------------------------------------------------------
// Prometheus Sink
// -----------------------------------------------------------------------------

// PrometheusSink exposes engine telemetry as Prometheus metrics.
//
// Description:
//
//	Collectors are registered on creation and unregistered on Close. Run
//	summaries feed run, execution and cache counters plus duration and
//	length histograms; accepted shrinks are counted per strategy.
//
// Thread Safety: Safe for concurrent use.
//
// Example:
//
//	reg := prometheus.NewRegistry()
//	cfg := telemetry.DefaultPrometheusConfig()
//	cfg.Registry = reg
//	sink, err := telemetry.NewPrometheusSink(cfg)
//	if err != nil {
//	    return fmt.Errorf("create prometheus sink: %w", err)
//	}
//	defer sink.Close()
type PrometheusSink struct {
	config   *PrometheusConfig
	registry prometheus.Registerer

	runsTotal       *prometheus.CounterVec
	runDuration     *prometheus.HistogramVec
	executionsTotal *prometheus.CounterVec
	cacheHitsTotal  *prometheus.CounterVec
	shrinksTotal    *prometheus.CounterVec
	finalLength     *prometheus.HistogramVec

	mu         sync.RWMutex
	closed     bool
	collectors []prometheus.Collector

	labelMu        sync.Mutex
	seenLabels     map[string]map[string]struct{}
	maxCardinality int
}

// NewPrometheusSink creates and registers the collectors.
//
// Outputs:
//   - *PrometheusSink: The created sink. Never nil on success.
//   - error: ErrInvalidConfig or ErrRegistrationFailed, joined with the cause.
func NewPrometheusSink(config *PrometheusConfig) (*PrometheusSink, error) {
	if config == nil {
		return nil, ErrInvalidConfig
	}
	if err := config.Validate(); err != nil {
		return nil, errors.Join(ErrInvalidConfig, err)
	}

	cfg := *config
	defaults := DefaultPrometheusConfig()
	if cfg.DurationBuckets == nil {
		cfg.DurationBuckets = defaults.DurationBuckets
	}
	if cfg.LengthBuckets == nil {
		cfg.LengthBuckets = defaults.LengthBuckets
	}
	registry := cfg.Registry
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}
	maxCard := cfg.MaxLabelCardinality
	if maxCard <= 0 {
		maxCard = 1000
	}

	s := &PrometheusSink{
		config:         &cfg,
		registry:       registry,
		seenLabels:     make(map[string]map[string]struct{}),
		maxCardinality: maxCard,
	}

	s.runsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: cfg.Namespace,
		Subsystem: cfg.Subsystem,
		Name:      "runs_total",
		Help:      "Search runs by outcome",
	}, []string{"name", "outcome"})

	s.runDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: cfg.Namespace,
		Subsystem: cfg.Subsystem,
		Name:      "run_duration_seconds",
		Help:      "Wall time of a search run in seconds",
		Buckets:   cfg.DurationBuckets,
	}, []string{"name"})

	s.executionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: cfg.Namespace,
		Subsystem: cfg.Subsystem,
		Name:      "executions_total",
		Help:      "Subject executions by final status",
	}, []string{"name", "status"})

	s.cacheHitsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: cfg.Namespace,
		Subsystem: cfg.Subsystem,
		Name:      "cache_hits_total",
		Help:      "Executions answered from the execution cache",
	}, []string{"name"})

	s.shrinksTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: cfg.Namespace,
		Subsystem: cfg.Subsystem,
		Name:      "shrinks_total",
		Help:      "Accepted shrinks by strategy",
	}, []string{"name", "strategy"})

	s.finalLength = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: cfg.Namespace,
		Subsystem: cfg.Subsystem,
		Name:      "final_buffer_bytes",
		Help:      "Length of the best buffer when a run ends",
		Buckets:   cfg.LengthBuckets,
	}, []string{"name"})

	s.collectors = []prometheus.Collector{
		s.runsTotal,
		s.runDuration,
		s.executionsTotal,
		s.cacheHitsTotal,
		s.shrinksTotal,
		s.finalLength,
	}
	for _, c := range s.collectors {
		if err := registry.Register(c); err != nil {
			var alreadyErr prometheus.AlreadyRegisteredError
			if !errors.As(err, &alreadyErr) {
				return nil, errors.Join(ErrRegistrationFailed, err)
			}
		}
	}
	return s, nil
}

func (s *PrometheusSink) isClosed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.closed
}

// RecordRun records a run summary.
//
// Thread Safety: Safe for concurrent use.
func (s *PrometheusSink) RecordRun(ctx context.Context, data *RunData) error {
	if err := checkRecord(ctx, data); err != nil {
		return err
	}
	if s.isClosed() {
		return ErrSinkClosed
	}

	name := s.sanitizeLabel("name", orUnknown(data.Name))
	outcome := "not_found"
	if data.Found {
		outcome = "found"
	}
	s.runsTotal.WithLabelValues(name, outcome).Inc()
	s.runDuration.WithLabelValues(name).Observe(data.Duration.Seconds())
	for status, n := range data.Statuses {
		s.executionsTotal.WithLabelValues(name, status).Add(float64(n))
	}
	if data.CacheHits > 0 {
		s.cacheHitsTotal.WithLabelValues(name).Add(float64(data.CacheHits))
	}
	s.finalLength.WithLabelValues(name).Observe(float64(data.FinalLength))
	return nil
}

// RecordShrink counts one accepted shrink.
//
// Thread Safety: Safe for concurrent use.
func (s *PrometheusSink) RecordShrink(ctx context.Context, data *ShrinkData) error {
	if err := checkRecord(ctx, data); err != nil {
		return err
	}
	if s.isClosed() {
		return ErrSinkClosed
	}
	name := s.sanitizeLabel("name", orUnknown(data.Name))
	strategy := s.sanitizeLabel("strategy", orUnknown(data.Strategy))
	s.shrinksTotal.WithLabelValues(name, strategy).Inc()
	return nil
}

// Flush is a no-op; metrics are read at scrape or export time.
func (s *PrometheusSink) Flush(ctx context.Context) error {
	if ctx == nil {
		return ErrNilContext
	}
	return nil
}

// Close unregisters all collectors. Safe to call more than once.
func (s *PrometheusSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	for _, c := range s.collectors {
		s.registry.Unregister(c)
	}
	return nil
}

// sanitizeLabel bounds the number of distinct values seen per label.
func (s *PrometheusSink) sanitizeLabel(label, value string) string {
	s.labelMu.Lock()
	defer s.labelMu.Unlock()

	seen, ok := s.seenLabels[label]
	if !ok {
		seen = make(map[string]struct{})
		s.seenLabels[label] = seen
	}
	if _, ok := seen[value]; ok {
		return value
	}
	if len(seen) >= s.maxCardinality {
		return overflowLabel
	}
	seen[value] = struct{}{}
	return value
}

func orUnknown(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}
