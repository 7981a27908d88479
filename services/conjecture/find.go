// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package conjecture finds minimal values that satisfy a predicate.
//
// Values are drawn from a byte buffer through a generator. The engine
// searches buffers until the predicate holds for the drawn value, then
// shrinks the buffer, and the minimized buffer is replayed to produce the
// returned value:
//
//	xs, err := conjecture.Find(ctx, gen.List(gen.Uint32()), func(xs []uint32) bool {
//	    return sum(xs) >= 1000
//	})
//	switch {
//	case errors.Is(err, conjecture.ErrNoExampleFound):
//	    // nothing in the budget satisfied the predicate
//	case err != nil:
//	    return err
//	}
//
// Generators and predicates must be deterministic: identical bytes must
// produce identical values and verdicts. A replay that disagrees with the
// search is reported as ErrFlaky.
package conjecture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/adamchainz/conjecture/services/conjecture/config"
	"github.com/adamchainz/conjecture/services/conjecture/engine"
	"github.com/adamchainz/conjecture/services/conjecture/gen"
	"github.com/adamchainz/conjecture/services/conjecture/telemetry"
	"github.com/adamchainz/conjecture/services/conjecture/trace"
)

var (
	// ErrNoExampleFound is returned when the search budget ran out before
	// any drawn value satisfied the predicate.
	ErrNoExampleFound = errors.New("no example found")

	// ErrFlaky is returned when replaying the minimized buffer does not
	// reproduce a value satisfying the predicate.
	ErrFlaky = errors.New("flaky: replay did not reproduce the result")
)

// Option configures Find and FindBuffer.
type Option func(*options)

type options struct {
	settings config.Settings
	seed     *uint64
	name     string
	logger   *slog.Logger
	sink     telemetry.Sink
	observer func(engine.Event)
}

func defaultOptions() *options {
	return &options{settings: config.Default(), name: "find"}
}

// WithSettings replaces the default search budget.
func WithSettings(s config.Settings) Option {
	return func(o *options) { o.settings = s }
}

// WithSeed fixes the random seed, overriding the settings.
func WithSeed(seed uint64) Option {
	return func(o *options) { o.seed = &seed }
}

// WithName labels logs and metrics.
func WithName(name string) Option {
	return func(o *options) { o.name = name }
}

// WithLogger sets the engine logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithSink reports run summaries and shrinks to sink.
func WithSink(sink telemetry.Sink) Option {
	return func(o *options) { o.sink = sink }
}

// WithObserver is called for every accepted improvement.
func WithObserver(fn func(engine.Event)) Option {
	return func(o *options) { o.observer = fn }
}

func (o *options) engineOptions() []engine.Option {
	settings := o.settings
	if o.seed != nil {
		settings.Seed = *o.seed
		settings.RandomSeed = false
	}
	opts := []engine.Option{
		engine.WithSettings(settings),
		engine.WithName(o.name),
		engine.WithLogger(o.logger),
		engine.WithSink(o.sink),
	}
	if o.observer != nil {
		opts = append(opts, engine.WithObserver(o.observer))
	}
	return opts
}

// FindBuffer runs the engine on subject and returns the minimized
// interesting buffer.
//
// Outputs:
//   - []byte: The minimized buffer. Nil on error.
//   - *engine.Stats: Counters for the run, also set with ErrNoExampleFound.
//   - error: ErrNoExampleFound, engine.ErrSubject, ctx.Err() or a settings
//     error.
func FindBuffer(ctx context.Context, subject engine.Subject, opts ...Option) ([]byte, *engine.Stats, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	runner, err := engine.New(subject, o.engineOptions()...)
	if err != nil {
		return nil, nil, err
	}
	out, err := runner.Run(ctx)
	if err != nil {
		return nil, nil, err
	}
	if !out.Found {
		return nil, &out.Stats, ErrNoExampleFound
	}
	return out.Result.Buffer(), &out.Stats, nil
}

// Find returns a minimal value drawn from g for which pred holds.
//
// Description:
//
//	The search draws a value from g on each candidate buffer and marks the
//	buffer interesting when pred(value) is true. Generator errors other
//	than trace.ErrStop abort the search. After shrinking, the minimized
//	buffer is replayed through g on a fresh trace and the value checked
//	again.
//
// Outputs:
//
//	T - The minimal value. The zero value on error.
//	error - ErrNoExampleFound, ErrFlaky, engine.ErrSubject or ctx.Err().
func Find[T any](ctx context.Context, g gen.Generator[T], pred func(T) bool, opts ...Option) (T, error) {
	var zero T
	v, _, err := FindWithStats(ctx, g, pred, opts...)
	if err != nil {
		return zero, err
	}
	return v, nil
}

// FindWithStats is Find that also returns the run's counters.
func FindWithStats[T any](ctx context.Context, g gen.Generator[T], pred func(T) bool, opts ...Option) (T, *engine.Stats, error) {
	var zero T
	subject := func(t *trace.Trace) error {
		v, err := g.Draw(t)
		if err != nil {
			return err
		}
		if pred(v) {
			return t.MarkInteresting()
		}
		return nil
	}

	buf, stats, err := FindBuffer(ctx, subject, opts...)
	if err != nil {
		return zero, stats, err
	}

	v, err := Replay(g, buf)
	if err != nil {
		return zero, stats, fmt.Errorf("%w: %w", ErrFlaky, err)
	}
	if !pred(v) {
		return zero, stats, fmt.Errorf("%w: predicate no longer holds for %v", ErrFlaky, v)
	}
	return v, stats, nil
}

// Replay draws a value from g on a fresh trace over buf.
func Replay[T any](g gen.Generator[T], buf []byte) (T, error) {
	return g.Draw(trace.New(buf))
}
