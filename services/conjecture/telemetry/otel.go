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
	"fmt"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// instrumentationName scopes the sink's tracer and meter.
const instrumentationName = "github.com/adamchainz/conjecture/telemetry"

// OTelConfig configures the OpenTelemetry sink.
//
// Thread Safety: Immutable after creation; safe for concurrent read access.
type OTelConfig struct {
	// ServiceName is recorded on every span. Required.
	ServiceName string

	// TracerProvider overrides the global tracer provider.
	TracerProvider trace.TracerProvider

	// MeterProvider overrides the global meter provider.
	MeterProvider metric.MeterProvider

	// TraceEnabled emits a span per recorded run.
	TraceEnabled bool

	// MetricsEnabled records instruments.
	MetricsEnabled bool
}

// DefaultOTelConfig enables both traces and metrics on the global providers.
func DefaultOTelConfig() *OTelConfig {
	return &OTelConfig{
		ServiceName:    "conjecture",
		TraceEnabled:   true,
		MetricsEnabled: true,
	}
}

// Validate checks required fields.
func (c *OTelConfig) Validate() error {
	if c.ServiceName == "" {
		return errors.New("service name is required")
	}
	return nil
}

// OTelSink records engine telemetry through OpenTelemetry.
//
// Thread Safety: Safe for concurrent use.
type OTelSink struct {
	config *OTelConfig
	tracer trace.Tracer

	runs        metric.Int64Counter
	runDuration metric.Float64Histogram
	executions  metric.Int64Counter
	shrinks     metric.Int64Counter
	finalLength metric.Int64Histogram

	mu     sync.RWMutex
	closed bool
}

// NewOTelSink creates the sink and its instruments.
//
// Outputs:
//   - *OTelSink: The created sink. Never nil on success.
//   - error: ErrInvalidConfig joined with the cause, or an instrument error.
func NewOTelSink(config *OTelConfig) (*OTelSink, error) {
	if config == nil {
		return nil, ErrInvalidConfig
	}
	if err := config.Validate(); err != nil {
		return nil, errors.Join(ErrInvalidConfig, err)
	}
	cfg := *config

	tp := cfg.TracerProvider
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	mp := cfg.MeterProvider
	if mp == nil {
		mp = otel.GetMeterProvider()
	}

	s := &OTelSink{
		config: &cfg,
		tracer: tp.Tracer(instrumentationName),
	}
	if err := s.initInstruments(mp.Meter(instrumentationName)); err != nil {
		return nil, fmt.Errorf("create instruments: %w", err)
	}
	return s, nil
}

func (s *OTelSink) initInstruments(meter metric.Meter) error {
	var err error
	if s.runs, err = meter.Int64Counter("conjecture.runs",
		metric.WithDescription("Search runs by outcome"),
		metric.WithUnit("{run}")); err != nil {
		return err
	}
	if s.runDuration, err = meter.Float64Histogram("conjecture.run.duration",
		metric.WithDescription("Wall time of a search run"),
		metric.WithUnit("s")); err != nil {
		return err
	}
	if s.executions, err = meter.Int64Counter("conjecture.executions",
		metric.WithDescription("Subject executions by final status"),
		metric.WithUnit("{execution}")); err != nil {
		return err
	}
	if s.shrinks, err = meter.Int64Counter("conjecture.shrinks",
		metric.WithDescription("Accepted shrinks by strategy"),
		metric.WithUnit("{shrink}")); err != nil {
		return err
	}
	if s.finalLength, err = meter.Int64Histogram("conjecture.final_buffer.length",
		metric.WithDescription("Length of the best buffer when a run ends"),
		metric.WithUnit("By")); err != nil {
		return err
	}
	return nil
}

func (s *OTelSink) isClosed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.closed
}

// RecordRun records the run summary as metrics and, when tracing is
// enabled, a "run.record" span carrying the same attributes.
func (s *OTelSink) RecordRun(ctx context.Context, data *RunData) error {
	if err := checkRecord(ctx, data); err != nil {
		return err
	}
	if s.isClosed() {
		return ErrSinkClosed
	}

	attrs := []attribute.KeyValue{
		attribute.String("conjecture.name", data.Name),
		attribute.Bool("conjecture.found", data.Found),
	}
	if s.config.TraceEnabled {
		_, span := s.tracer.Start(ctx, "run.record", trace.WithAttributes(append(attrs,
			attribute.String("service.name", s.config.ServiceName),
			attribute.String("conjecture.run_id", data.RunID),
			attribute.Int("conjecture.calls", data.Calls),
			attribute.Int("conjecture.shrinks", data.Shrinks),
			attribute.Int("conjecture.final_length", data.FinalLength),
		)...))
		span.End()
	}
	if !s.config.MetricsEnabled {
		return nil
	}

	set := metric.WithAttributes(attrs...)
	s.runs.Add(ctx, 1, set)
	s.runDuration.Record(ctx, data.Duration.Seconds(), set)
	s.finalLength.Record(ctx, int64(data.FinalLength), set)
	for status, n := range data.Statuses {
		s.executions.Add(ctx, int64(n), metric.WithAttributes(
			attribute.String("conjecture.name", data.Name),
			attribute.String("conjecture.status", status),
		))
	}
	return nil
}

// RecordShrink counts one accepted shrink.
func (s *OTelSink) RecordShrink(ctx context.Context, data *ShrinkData) error {
	if err := checkRecord(ctx, data); err != nil {
		return err
	}
	if s.isClosed() {
		return ErrSinkClosed
	}
	if !s.config.MetricsEnabled {
		return nil
	}
	s.shrinks.Add(ctx, 1, metric.WithAttributes(
		attribute.String("conjecture.name", data.Name),
		attribute.String("conjecture.strategy", data.Strategy),
	))
	return nil
}

// Flush is a no-op; providers own export.
func (s *OTelSink) Flush(ctx context.Context) error {
	if ctx == nil {
		return ErrNilContext
	}
	return nil
}

// Close marks the sink closed. Providers are shut down by their owner.
func (s *OTelSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
