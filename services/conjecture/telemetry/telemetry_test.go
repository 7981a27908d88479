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
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func sampleRun() *RunData {
	return &RunData{
		Name:        "summing_list",
		RunID:       "run-1",
		Found:       true,
		Calls:       120,
		CacheHits:   7,
		Rounds:      1,
		Shrinks:     14,
		Statuses:    map[string]int{"interesting": 20, "valid": 100},
		FinalLength: 6,
		Duration:    25 * time.Millisecond,
	}
}

// -----------------------------------------------------------------------------
// Prometheus
// -----------------------------------------------------------------------------

func newTestPrometheusSink(t *testing.T) (*PrometheusSink, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	cfg := DefaultPrometheusConfig()
	cfg.Registry = reg
	sink, err := NewPrometheusSink(cfg)
	require.NoError(t, err)
	return sink, reg
}

func TestPrometheusConfig_Validate(t *testing.T) {
	cfg := DefaultPrometheusConfig()
	require.NoError(t, cfg.Validate())

	cfg.Namespace = ""
	assert.Error(t, cfg.Validate())

	_, err := NewPrometheusSink(cfg)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = NewPrometheusSink(nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

// TestPrometheusSink_RecordRun verifies run summaries land in the counters.
func TestPrometheusSink_RecordRun(t *testing.T) {
	sink, _ := newTestPrometheusSink(t)
	ctx := context.Background()

	require.NoError(t, sink.RecordRun(ctx, sampleRun()))

	assert.Equal(t, 1.0, testutil.ToFloat64(sink.runsTotal.WithLabelValues("summing_list", "found")))
	assert.Equal(t, 100.0, testutil.ToFloat64(sink.executionsTotal.WithLabelValues("summing_list", "valid")))
	assert.Equal(t, 20.0, testutil.ToFloat64(sink.executionsTotal.WithLabelValues("summing_list", "interesting")))
	assert.Equal(t, 7.0, testutil.ToFloat64(sink.cacheHitsTotal.WithLabelValues("summing_list")))
	assert.Equal(t, 1, testutil.CollectAndCount(sink.runDuration))
}

func TestPrometheusSink_RecordShrink(t *testing.T) {
	sink, reg := newTestPrometheusSink(t)
	ctx := context.Background()

	for range 3 {
		require.NoError(t, sink.RecordShrink(ctx, &ShrinkData{Name: "p", Strategy: "delete_intervals"}))
	}
	require.NoError(t, sink.RecordShrink(ctx, &ShrinkData{Name: "p"}))

	expected := `
# HELP conjecture_engine_shrinks_total Accepted shrinks by strategy
# TYPE conjecture_engine_shrinks_total counter
conjecture_engine_shrinks_total{name="p",strategy="delete_intervals"} 3
conjecture_engine_shrinks_total{name="p",strategy="unknown"} 1
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "conjecture_engine_shrinks_total"))
}

func TestPrometheusSink_InvalidInput(t *testing.T) {
	sink, _ := newTestPrometheusSink(t)

	assert.ErrorIs(t, sink.RecordRun(nil, sampleRun()), ErrNilContext)
	assert.ErrorIs(t, sink.RecordRun(context.Background(), nil), ErrNilData)
	assert.ErrorIs(t, sink.RecordShrink(context.Background(), nil), ErrNilData)
}

// TestPrometheusSink_Close verifies collectors are unregistered and later
// records fail.
func TestPrometheusSink_Close(t *testing.T) {
	sink, reg := newTestPrometheusSink(t)
	require.NoError(t, sink.RecordRun(context.Background(), sampleRun()))

	require.NoError(t, sink.Close())
	require.NoError(t, sink.Close())

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.Empty(t, families)
	assert.ErrorIs(t, sink.RecordRun(context.Background(), sampleRun()), ErrSinkClosed)
}

func TestPrometheusSink_LabelCardinality(t *testing.T) {
	reg := prometheus.NewRegistry()
	cfg := DefaultPrometheusConfig()
	cfg.Registry = reg
	cfg.MaxLabelCardinality = 2
	sink, err := NewPrometheusSink(cfg)
	require.NoError(t, err)

	assert.Equal(t, "a", sink.sanitizeLabel("name", "a"))
	assert.Equal(t, "b", sink.sanitizeLabel("name", "b"))
	assert.Equal(t, overflowLabel, sink.sanitizeLabel("name", "c"))
	assert.Equal(t, "a", sink.sanitizeLabel("name", "a"))
}

func TestPrometheusSink_SharedRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	cfg := DefaultPrometheusConfig()
	cfg.Registry = reg

	_, err := NewPrometheusSink(cfg)
	require.NoError(t, err)
	_, err = NewPrometheusSink(cfg)
	assert.NoError(t, err, "already registered collectors are tolerated")
}

// -----------------------------------------------------------------------------
// OpenTelemetry
// -----------------------------------------------------------------------------

// TestOTelSink_RecordRun verifies instruments and the run span are emitted
// through the configured providers.
func TestOTelSink_RecordRun(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))

	cfg := DefaultOTelConfig()
	cfg.MeterProvider = mp
	cfg.TracerProvider = tp
	sink, err := NewOTelSink(cfg)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, sink.RecordRun(ctx, sampleRun()))
	require.NoError(t, sink.RecordShrink(ctx, &ShrinkData{Name: "p", Strategy: "borrow"}))

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "run.record", spans[0].Name())

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))
	names := map[string]bool{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			names[m.Name] = true
		}
	}
	for _, want := range []string{"conjecture.runs", "conjecture.run.duration", "conjecture.executions", "conjecture.shrinks"} {
		assert.True(t, names[want], "missing metric %s", want)
	}

	require.NoError(t, sink.Close())
	assert.ErrorIs(t, sink.RecordRun(ctx, sampleRun()), ErrSinkClosed)
}

func TestOTelSink_InvalidConfig(t *testing.T) {
	_, err := NewOTelSink(nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = NewOTelSink(&OTelConfig{})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

// -----------------------------------------------------------------------------
// Log and composite sinks
// -----------------------------------------------------------------------------

func TestLogSink(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	sink := NewLogSink(logger)
	ctx := context.Background()

	require.NoError(t, sink.RecordRun(ctx, sampleRun()))
	require.NoError(t, sink.RecordShrink(ctx, &ShrinkData{Name: "p", Strategy: "borrow"}))

	out := buf.String()
	assert.Contains(t, out, "run finished")
	assert.Contains(t, out, "name=summing_list")
	assert.Contains(t, out, "strategy=borrow")

	require.NoError(t, sink.Close())
	assert.ErrorIs(t, sink.RecordShrink(ctx, &ShrinkData{}), ErrSinkClosed)
}

type failingSink struct{ NopSink }

var errBackend = errors.New("backend down")

func (failingSink) RecordRun(context.Context, *RunData) error { return errBackend }

func TestCompositeSink(t *testing.T) {
	_, err := NewCompositeSink(nil, nil)
	assert.ErrorIs(t, err, ErrNoSinks)

	prom, _ := newTestPrometheusSink(t)
	c, err := NewCompositeSink(prom, nil, failingSink{})
	require.NoError(t, err)

	err = c.RecordRun(context.Background(), sampleRun())
	assert.ErrorIs(t, err, errBackend)
	assert.Equal(t, 1.0, testutil.ToFloat64(prom.runsTotal.WithLabelValues("summing_list", "found")),
		"healthy sinks still record")

	require.NoError(t, c.RecordShrink(context.Background(), &ShrinkData{Name: "p"}))
	require.NoError(t, c.Flush(context.Background()))
	require.NoError(t, c.Close())
}

// -----------------------------------------------------------------------------
// Provider init
// -----------------------------------------------------------------------------

func TestInit_NilContext(t *testing.T) {
	_, err := Init(nil, DefaultProviderConfig())
	assert.ErrorIs(t, err, ErrNilContext)
}

func TestInit_NoExporters(t *testing.T) {
	cfg := DefaultProviderConfig()
	cfg.TraceExporter = ExporterNone
	cfg.MetricExporter = ExporterNone

	shutdown, err := Init(context.Background(), cfg)
	require.NoError(t, err)
	require.NotNil(t, shutdown)
	assert.NoError(t, shutdown(context.Background()))
}

func TestInit_StdoutAndPrometheus(t *testing.T) {
	var out bytes.Buffer
	reg := prometheus.NewRegistry()
	cfg := DefaultProviderConfig()
	cfg.TraceExporter = ExporterStdout
	cfg.MetricExporter = ExporterPrometheus
	cfg.PrometheusRegistry = reg
	cfg.Writer = &out

	shutdown, err := Init(context.Background(), cfg)
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}

func TestInit_UnknownExporter(t *testing.T) {
	cfg := DefaultProviderConfig()
	cfg.TraceExporter = "zipkin"

	_, err := Init(context.Background(), cfg)
	assert.ErrorIs(t, err, ErrUnknownExporter)

	cfg.TraceExporter = ExporterNone
	cfg.MetricExporter = "influx"
	_, err = Init(context.Background(), cfg)
	assert.ErrorIs(t, err, ErrUnknownExporter)
}
