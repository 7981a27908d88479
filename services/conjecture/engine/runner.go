// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package engine drives the search: discovery of an interesting buffer
// followed by deterministic shrinking.
//
// A Runner executes a Subject against byte buffers. Discovery samples
// fresh random buffers, mutating the best result so far once per round,
// until the subject marks one Interesting or the round budget runs out. Shrinking then
// applies buffer transforms to the best result, keeping only candidates
// that Better ranks strictly simpler, until a full pass changes nothing or
// the shrink cap is reached.
//
// # Determinism
//
// All randomness comes from a PCG source seeded from Settings.Seed. Two
// runs with the same seed and a deterministic subject produce identical
// results.
//
// # Thread Safety
//
// A Runner is single-threaded. Run independent searches on separate
// runners.
package engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	oteltrace "go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/adamchainz/conjecture/services/conjecture/config"
	"github.com/adamchainz/conjecture/services/conjecture/telemetry"
	"github.com/adamchainz/conjecture/services/conjecture/trace"
)

var tracer = otel.Tracer("conjecture.engine")

// -----------------------------------------------------------------------------
// Errors
// -----------------------------------------------------------------------------

var (
	// ErrSubject wraps an error returned by the subject other than
	// trace.ErrStop. It aborts the run.
	ErrSubject = errors.New("subject failed")

	// ErrNilSubject is returned by New for a nil subject.
	ErrNilSubject = errors.New("subject must not be nil")
)

// -----------------------------------------------------------------------------
// Types
// -----------------------------------------------------------------------------

// Subject runs one execution against a trace.
//
// It draws input through the trace and reports its verdict with
// MarkInteresting or MarkInvalid. Returning trace.ErrStop, directly or
// wrapped, ends the execution normally. Any other error aborts the run.
// A subject must behave identically for identical bytes.
type Subject func(t *trace.Trace) error

// Phase names the stage of a run.
type Phase string

const (
	PhaseDiscover Phase = "discover"
	PhaseShrink   Phase = "shrink"
)

// Event describes one accepted improvement of the current best.
type Event struct {
	Phase    Phase
	Strategy string
	Previous *trace.Result
	Result   *trace.Result
}

// Stats counts what a run did.
type Stats struct {
	RunID     string
	Seed      uint64
	Calls     int
	CacheHits int
	Rounds    int
	Samples   int // fresh random buffers offered during discovery
	Mutations int // mutations offered during discovery
	Accepted  int
	Shrinks   int
	Statuses  map[trace.Status]int
	Duration  time.Duration
}

// Outcome is the result of a run.
type Outcome struct {
	// Found is true when an interesting buffer was found.
	Found bool

	// Result is the best result at the end of the run. When Found is true
	// it is the minimized interesting result.
	Result *trace.Result

	Stats Stats
}

// -----------------------------------------------------------------------------
// Options
// -----------------------------------------------------------------------------

// Option configures a Runner.
type Option func(*Runner)

// WithSettings replaces the default settings.
func WithSettings(s config.Settings) Option {
	return func(r *Runner) { r.settings = s }
}

// WithLogger sets the logger. A nil logger keeps slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithSink sends run summaries and accepted shrinks to sink.
func WithSink(sink telemetry.Sink) Option {
	return func(r *Runner) {
		if sink != nil {
			r.sink = sink
		}
	}
}

// WithName labels logs, spans and metrics of this runner.
func WithName(name string) Option {
	return func(r *Runner) { r.name = name }
}

// WithObserver is called for every accepted improvement.
func WithObserver(fn func(Event)) Option {
	return func(r *Runner) { r.observer = fn }
}

// -----------------------------------------------------------------------------
// Runner
// -----------------------------------------------------------------------------

// Runner searches for and shrinks an interesting buffer.
type Runner struct {
	subject  Subject
	settings config.Settings
	name     string
	logger   *slog.Logger
	sink     telemetry.Sink
	observer func(Event)
	cache    *execCache
	progress rate.Sometimes

	// Per-run state, reset by Run.
	ctx           context.Context
	rng           *rand.Rand
	best          *trace.Result
	phase         Phase
	strategy      string
	stats         Stats
	err           error
	stopShrinking bool
}

// New creates a Runner for subject.
//
// Outputs:
//   - *Runner: The runner. Never nil on success.
//   - error: ErrNilSubject, config.ErrInvalidSettings, or a cache error.
func New(subject Subject, opts ...Option) (*Runner, error) {
	if subject == nil {
		return nil, ErrNilSubject
	}
	r := &Runner{
		subject:  subject,
		settings: config.Default(),
		name:     "subject",
		logger:   slog.Default(),
		sink:     telemetry.NopSink{},
		progress: rate.Sometimes{First: 1, Interval: 2 * time.Second},
	}
	for _, opt := range opts {
		opt(r)
	}
	if err := r.settings.Validate(); err != nil {
		return nil, err
	}
	cache, err := newExecCache(r.settings.CacheSize)
	if err != nil {
		return nil, err
	}
	r.cache = cache
	return r, nil
}

// Settings returns the runner's settings.
func (r *Runner) Settings() config.Settings { return r.settings }

// Run searches for an interesting buffer and shrinks it.
//
// Description:
//
//	Discovery runs until the subject marks a buffer Interesting or
//	MaxRounds rounds of MaxMutationAttemptsPerRound executions pass. If
//	an interesting buffer was found it is shrunk until no pass improves
//	it or MaxShrinks improvements were accepted. Every Run starts from
//	the configured seed, so repeated runs are identical.
//
// Inputs:
//
//	ctx - Carries spans and cancellation. Checked between executions.
//
// Outputs:
//
//	*Outcome - Found reports whether an interesting buffer exists. Never
//	           nil when error is nil.
//	error - ctx.Err() on cancellation or ErrSubject if the subject failed.
func (r *Runner) Run(ctx context.Context) (*Outcome, error) {
	start := time.Now()
	r.reset()

	ctx, span := tracer.Start(ctx, "engine.Run", oteltrace.WithAttributes(
		attribute.String("conjecture.name", r.name),
		attribute.String("conjecture.run_id", r.stats.RunID),
		attribute.Int64("conjecture.seed", int64(r.stats.Seed)),
	))
	defer span.End()
	r.ctx = ctx

	found := r.discover()
	if found && r.err == nil {
		r.shrink()
	}
	r.stats.Duration = time.Since(start)

	if r.err != nil {
		span.RecordError(r.err)
		span.SetStatus(codes.Error, r.err.Error())
		return nil, r.err
	}
	r.best.MustVerify()

	span.SetAttributes(
		attribute.Bool("conjecture.found", found),
		attribute.Int("conjecture.calls", r.stats.Calls),
		attribute.Int("conjecture.shrinks", r.stats.Shrinks),
	)
	r.report(ctx, found)

	return &Outcome{Found: found, Result: r.best, Stats: r.stats}, nil
}

func (r *Runner) reset() {
	seed := r.settings.Seed
	if r.settings.RandomSeed {
		seed = uint64(time.Now().UnixNano())
	}
	r.rng = rand.New(rand.NewPCG(seed, seed^0x9E3779B97F4A7C15))
	r.best = nil
	r.err = nil
	r.stopShrinking = false
	r.strategy = ""
	r.stats = Stats{
		RunID:    uuid.NewString(),
		Seed:     seed,
		Statuses: make(map[trace.Status]int),
	}
	r.cache.purge()
}

// halted reports whether the run must stop making executions.
func (r *Runner) halted() bool {
	if r.err != nil || r.stopShrinking {
		return true
	}
	if err := r.ctx.Err(); err != nil {
		r.err = err
		return true
	}
	return false
}

// execute runs the subject on buf, or answers from the cache.
func (r *Runner) execute(buf []byte) *trace.Result {
	key := cacheKey(buf)
	if res, ok := r.cache.get(key); ok {
		r.stats.CacheHits++
		return res
	}
	r.stats.Calls++
	t := trace.New(buf)
	if err := r.subject(t); err != nil && !errors.Is(err, trace.ErrStop) {
		r.err = fmt.Errorf("%w: %w", ErrSubject, err)
	}
	res := t.Freeze()
	r.stats.Statuses[res.Status()]++
	if r.err == nil {
		r.cache.add(key, res)
	}
	return res
}

// offer executes buf and promotes the result if it ranks better than the
// current best. Candidates identical to the best buffer are skipped, and
// once the shrink cap is reached nothing more is executed.
func (r *Runner) offer(buf []byte) bool {
	if r.halted() || bytes.Equal(buf, r.best.Buffer()) {
		return false
	}
	if r.best.Status() == trace.Interesting && r.stats.Shrinks >= r.settings.MaxShrinks {
		r.stopShrinking = true
		return false
	}
	res := r.execute(buf)
	if r.err != nil || !Better(res, r.best) {
		return false
	}
	r.accept(res)
	return true
}

func (r *Runner) accept(res *trace.Result) {
	res.MustVerify()
	prev := r.best
	r.best = res
	r.stats.Accepted++
	if prev != nil && prev.Status() == trace.Interesting {
		r.stats.Shrinks++
		if err := r.sink.RecordShrink(r.ctx, &telemetry.ShrinkData{
			Name:     r.name,
			RunID:    r.stats.RunID,
			Strategy: r.strategy,
			Length:   len(res.Buffer()),
		}); err != nil {
			r.logger.Warn("record shrink failed", slog.String("error", err.Error()))
		}
	}
	if r.settings.Debug {
		r.logger.Info("improved",
			slog.String("name", r.name),
			slog.String("phase", string(r.phase)),
			slog.String("strategy", r.strategy),
			slog.String("status", res.Status().String()),
			slog.Int("length", len(res.Buffer())),
			slog.Int("cost", res.Cost()),
		)
	}
	if r.observer != nil {
		r.observer(Event{Phase: r.phase, Strategy: r.strategy, Previous: prev, Result: res})
	}
}

// discover looks for an interesting buffer. Fresh random buffers are the
// default; each one advances the attempt counter. When the counter reaches
// MaxMutationAttemptsPerRound a new round starts with a single mutation of
// the best result, which counts as that round's first attempt. After
// MaxRounds rounds the search gives up.
func (r *Runner) discover() bool {
	ctx, span := tracer.Start(r.ctx, "engine.discover")
	defer span.End()
	outer := r.ctx
	r.ctx = ctx
	defer func() { r.ctx = outer }()

	r.phase = PhaseDiscover
	r.strategy = "sample"
	r.stats.Rounds = 1
	if r.halted() {
		return false
	}
	r.stats.Samples++
	first := r.execute(r.randomBytes(r.settings.BufferSize))
	if r.err != nil {
		return false
	}
	r.accept(first)

	attempts := 1
	for r.best.Status() != trace.Interesting {
		if r.halted() {
			return false
		}
		if attempts >= r.settings.MaxMutationAttemptsPerRound {
			if r.stats.Rounds >= r.settings.MaxRounds {
				span.SetAttributes(attribute.Int("conjecture.rounds", r.stats.Rounds))
				return false
			}
			r.stats.Rounds++
			attempts = 1
			r.strategy = "mutate"
			r.stats.Mutations++
			r.offer(r.mutate())
		} else {
			attempts++
			r.strategy = "sample"
			r.stats.Samples++
			r.offer(r.randomBytes(r.settings.BufferSize))
		}
		if r.settings.Debug {
			r.progress.Do(func() {
				r.logger.Info("searching",
					slog.String("name", r.name),
					slog.Int("round", r.stats.Rounds),
					slog.Int("calls", r.stats.Calls),
					slog.String("best", r.best.Status().String()),
				)
			})
		}
	}
	span.SetAttributes(attribute.Int("conjecture.rounds", r.stats.Rounds))
	return r.err == nil
}

func (r *Runner) report(ctx context.Context, found bool) {
	statuses := make(map[string]int, len(r.stats.Statuses))
	for s, n := range r.stats.Statuses {
		statuses[s.String()] = n
	}
	data := &telemetry.RunData{
		Name:        r.name,
		RunID:       r.stats.RunID,
		Found:       found,
		Calls:       r.stats.Calls,
		CacheHits:   r.stats.CacheHits,
		Rounds:      r.stats.Rounds,
		Shrinks:     r.stats.Shrinks,
		Statuses:    statuses,
		FinalLength: len(r.best.Buffer()),
		Duration:    r.stats.Duration,
	}
	if err := r.sink.RecordRun(ctx, data); err != nil {
		r.logger.Warn("record run failed", slog.String("error", err.Error()))
	}
	if r.settings.Debug {
		r.logger.Info("run finished",
			slog.String("name", r.name),
			slog.String("run_id", r.stats.RunID),
			slog.Bool("found", found),
			slog.Int("calls", r.stats.Calls),
			slog.Int("samples", r.stats.Samples),
			slog.Int("mutations", r.stats.Mutations),
			slog.Int("shrinks", r.stats.Shrinks),
		)
	}
}
