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
	"log/slog"
	"sync"
	"time"
)

// -----------------------------------------------------------------------------
// Errors
// -----------------------------------------------------------------------------

var (
	// ErrNilContext is returned when a nil context is passed.
	ErrNilContext = errors.New("context must not be nil")

	// ErrNilData is returned when nil data is passed to a record method.
	ErrNilData = errors.New("data must not be nil")

	// ErrSinkClosed is returned when recording to a closed sink.
	ErrSinkClosed = errors.New("sink is closed")

	// ErrNoSinks is returned when creating a composite sink without sinks.
	ErrNoSinks = errors.New("no sinks provided")

	// ErrInvalidConfig is returned when a sink configuration is invalid.
	ErrInvalidConfig = errors.New("invalid telemetry configuration")

	// ErrUnknownExporter is returned for an unsupported exporter name.
	ErrUnknownExporter = errors.New("unknown exporter")
)

// -----------------------------------------------------------------------------
// Data
// -----------------------------------------------------------------------------

// RunData summarises one search run.
//
// Thread Safety: Immutable after creation.
type RunData struct {
	// Name labels the property or subject searched.
	Name string

	// RunID correlates logs, spans and metrics of one run.
	RunID string

	// Found is true when an interesting buffer was found.
	Found bool

	// Calls is the number of subject executions.
	Calls int

	// CacheHits is the number of executions answered from the cache.
	CacheHits int

	// Rounds is the number of discovery rounds started.
	Rounds int

	// Shrinks is the number of accepted shrink improvements.
	Shrinks int

	// Statuses counts executions by final status name.
	Statuses map[string]int

	// FinalLength is the length of the best buffer at the end of the run.
	FinalLength int

	// Duration is the wall time of the run.
	Duration time.Duration
}

// ShrinkData describes one accepted shrink.
//
// Thread Safety: Immutable after creation.
type ShrinkData struct {
	Name     string
	RunID    string
	Strategy string
	Length   int
}

// -----------------------------------------------------------------------------
// Sink
// -----------------------------------------------------------------------------

// Sink receives engine telemetry.
//
// Implementations must be safe for concurrent use; the verifier runs
// several properties at once against a shared sink.
type Sink interface {
	// RecordRun records the summary of a finished run.
	RecordRun(ctx context.Context, data *RunData) error

	// RecordShrink records one accepted shrink.
	RecordShrink(ctx context.Context, data *ShrinkData) error

	// Flush pushes buffered data to the backend.
	Flush(ctx context.Context) error

	// Close releases resources. Later records return ErrSinkClosed.
	Close() error
}

func checkRecord[T any](ctx context.Context, data *T) error {
	if ctx == nil {
		return ErrNilContext
	}
	if data == nil {
		return ErrNilData
	}
	return nil
}

// -----------------------------------------------------------------------------
// NopSink
// -----------------------------------------------------------------------------

// NopSink discards everything.
type NopSink struct{}

func (NopSink) RecordRun(context.Context, *RunData) error       { return nil }
func (NopSink) RecordShrink(context.Context, *ShrinkData) error { return nil }
func (NopSink) Flush(context.Context) error                     { return nil }
func (NopSink) Close() error                                    { return nil }

// -----------------------------------------------------------------------------
// LogSink
// -----------------------------------------------------------------------------

// LogSink writes telemetry as structured log lines.
//
// Runs are logged at Info, shrinks at Debug.
type LogSink struct {
	logger *slog.Logger

	mu     sync.RWMutex
	closed bool
}

// NewLogSink creates a LogSink. A nil logger uses slog.Default().
func NewLogSink(logger *slog.Logger) *LogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSink{logger: logger}
}

func (s *LogSink) isClosed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.closed
}

// RecordRun logs the run summary.
func (s *LogSink) RecordRun(ctx context.Context, data *RunData) error {
	if err := checkRecord(ctx, data); err != nil {
		return err
	}
	if s.isClosed() {
		return ErrSinkClosed
	}
	s.logger.InfoContext(ctx, "run finished",
		slog.String("name", data.Name),
		slog.String("run_id", data.RunID),
		slog.Bool("found", data.Found),
		slog.Int("calls", data.Calls),
		slog.Int("cache_hits", data.CacheHits),
		slog.Int("rounds", data.Rounds),
		slog.Int("shrinks", data.Shrinks),
		slog.Int("final_length", data.FinalLength),
		slog.Duration("duration", data.Duration),
	)
	return nil
}

// RecordShrink logs the accepted shrink at Debug.
func (s *LogSink) RecordShrink(ctx context.Context, data *ShrinkData) error {
	if err := checkRecord(ctx, data); err != nil {
		return err
	}
	if s.isClosed() {
		return ErrSinkClosed
	}
	s.logger.DebugContext(ctx, "shrink accepted",
		slog.String("name", data.Name),
		slog.String("run_id", data.RunID),
		slog.String("strategy", data.Strategy),
		slog.Int("length", data.Length),
	)
	return nil
}

// Flush is a no-op.
func (s *LogSink) Flush(ctx context.Context) error {
	if ctx == nil {
		return ErrNilContext
	}
	return nil
}

// Close marks the sink closed. Safe to call more than once.
func (s *LogSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// -----------------------------------------------------------------------------
// CompositeSink
// -----------------------------------------------------------------------------

// CompositeSink fans records out to several sinks.
//
// Every sink receives every record; errors are joined.
type CompositeSink struct {
	sinks []Sink
}

// NewCompositeSink combines sinks, skipping nil entries.
//
// Outputs:
//   - *CompositeSink: The combined sink.
//   - error: ErrNoSinks if no non-nil sink was given.
func NewCompositeSink(sinks ...Sink) (*CompositeSink, error) {
	var valid []Sink
	for _, s := range sinks {
		if s != nil {
			valid = append(valid, s)
		}
	}
	if len(valid) == 0 {
		return nil, ErrNoSinks
	}
	return &CompositeSink{sinks: valid}, nil
}

// RecordRun forwards to every sink.
func (c *CompositeSink) RecordRun(ctx context.Context, data *RunData) error {
	var errs []error
	for _, s := range c.sinks {
		if err := s.RecordRun(ctx, data); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// RecordShrink forwards to every sink.
func (c *CompositeSink) RecordShrink(ctx context.Context, data *ShrinkData) error {
	var errs []error
	for _, s := range c.sinks {
		if err := s.RecordShrink(ctx, data); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Flush flushes every sink.
func (c *CompositeSink) Flush(ctx context.Context) error {
	var errs []error
	for _, s := range c.sinks {
		if err := s.Flush(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close closes every sink.
func (c *CompositeSink) Close() error {
	var errs []error
	for _, s := range c.sinks {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
