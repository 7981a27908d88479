// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package correctness runs registered properties and reports minimal
// counterexamples.
package correctness

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/adamchainz/conjecture/services/conjecture"
	"github.com/adamchainz/conjecture/services/conjecture/config"
	"github.com/adamchainz/conjecture/services/conjecture/eval"
	"github.com/adamchainz/conjecture/services/conjecture/telemetry"
)

// errStopped cancels the remaining properties after a failure.
var errStopped = errors.New("stopped after failure")

// Option configures a verification run.
type Option func(*verifyOptions)

type verifyOptions struct {
	settings      *config.Settings
	seed          *uint64
	parallelism   int
	stopOnFailure bool
	tags          []string
	logger        *slog.Logger
	sink          telemetry.Sink
}

func defaultOptions() *verifyOptions {
	return &verifyOptions{parallelism: runtime.GOMAXPROCS(0)}
}

// WithSettings sets the search budget for every property.
func WithSettings(s config.Settings) Option {
	return func(o *verifyOptions) { o.settings = &s }
}

// WithSeed fixes the seed for every property.
func WithSeed(seed uint64) Option {
	return func(o *verifyOptions) { o.seed = &seed }
}

// WithParallelism bounds how many properties run at once. Values below 1
// are treated as 1.
func WithParallelism(n int) Option {
	return func(o *verifyOptions) { o.parallelism = max(n, 1) }
}

// WithStopOnFailure skips the properties not yet finished after the first
// failure.
func WithStopOnFailure(stop bool) Option {
	return func(o *verifyOptions) { o.stopOnFailure = stop }
}

// WithTags restricts VerifyAll to properties carrying any of tags.
func WithTags(tags ...string) Option {
	return func(o *verifyOptions) { o.tags = tags }
}

// WithLogger sets the logger for progress and engine output.
func WithLogger(logger *slog.Logger) Option {
	return func(o *verifyOptions) { o.logger = logger }
}

// WithSink reports every run to sink.
func WithSink(sink telemetry.Sink) Option {
	return func(o *verifyOptions) { o.sink = sink }
}

func (o *verifyOptions) searchOptions() []conjecture.Option {
	var opts []conjecture.Option
	if o.settings != nil {
		opts = append(opts, conjecture.WithSettings(*o.settings))
	}
	if o.seed != nil {
		opts = append(opts, conjecture.WithSeed(*o.seed))
	}
	if o.logger != nil {
		opts = append(opts, conjecture.WithLogger(o.logger))
	}
	if o.sink != nil {
		opts = append(opts, conjecture.WithSink(o.sink))
	}
	return opts
}

// Verifier runs properties from a registry.
//
// Thread Safety: Safe for concurrent use; each call works on its own
// results.
type Verifier struct {
	registry *eval.Registry
}

// NewVerifier creates a verifier over registry.
func NewVerifier(registry *eval.Registry) *Verifier {
	return &Verifier{registry: registry}
}

// Verify runs a single named property.
//
// Outputs:
//   - *eval.VerifyResult: One property result. Never nil on success.
//   - error: eval.ErrNotFound if the name is not registered.
func (v *Verifier) Verify(ctx context.Context, name string, opts ...Option) (*eval.VerifyResult, error) {
	p, ok := v.registry.Get(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", eval.ErrNotFound, name)
	}
	return v.run(ctx, []*eval.Property{p}, opts)
}

// VerifyAll runs every property matching the tag filter.
//
// Description:
//
//	Properties run concurrently up to the parallelism limit. Results are
//	ordered by property name. With WithStopOnFailure, properties that had
//	not finished when the first failure was recorded are marked Skipped.
//
// Outputs:
//   - *eval.VerifyResult: Never nil on success.
//   - error: ctx.Err() if ctx was cancelled before the run started.
func (v *Verifier) VerifyAll(ctx context.Context, opts ...Option) (*eval.VerifyResult, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	return v.run(ctx, v.registry.Select(o.tags), opts)
}

// VerifyNames runs the named properties in the given order.
func (v *Verifier) VerifyNames(ctx context.Context, names []string, opts ...Option) (*eval.VerifyResult, error) {
	props := make([]*eval.Property, 0, len(names))
	for _, name := range names {
		p, ok := v.registry.Get(name)
		if !ok {
			return nil, fmt.Errorf("%w: %s", eval.ErrNotFound, name)
		}
		props = append(props, p)
	}
	return v.run(ctx, props, opts)
}

func (v *Verifier) run(ctx context.Context, props []*eval.Property, opts []Option) (*eval.VerifyResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	logger := o.logger
	if logger == nil {
		logger = slog.Default()
	}
	searchOpts := o.searchOptions()

	start := time.Now()
	results := make([]eval.PropertyResult, len(props))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.parallelism)
	for i, p := range props {
		g.Go(func() error {
			results[i] = checkProperty(gctx, p, searchOpts)
			pr := results[i]
			switch {
			case pr.Skipped:
				logger.Debug("property skipped", slog.String("property", p.Name))
			case pr.Passed:
				logger.Info("property passed",
					slog.String("property", p.Name),
					slog.Int("calls", pr.Calls),
					slog.Duration("duration", pr.Duration))
			default:
				logger.Warn("property failed",
					slog.String("property", p.Name),
					slog.Any("counterexample", pr.Counterexample),
					slog.Any("error", pr.Error))
				if o.stopOnFailure {
					return errStopped
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil && !errors.Is(err, errStopped) {
		return nil, err
	}

	res := &eval.VerifyResult{
		Properties: results,
		Duration:   time.Since(start),
	}
	_, failed, skipped := res.Counts()
	res.Passed = failed == 0 && skipped == 0
	return res, nil
}

// checkProperty runs one property. A property whose search is cancelled
// is marked Skipped rather than failed.
func checkProperty(ctx context.Context, p *eval.Property, opts []conjecture.Option) eval.PropertyResult {
	pr := eval.PropertyResult{Name: p.Name}
	if ctx.Err() != nil {
		pr.Skipped = true
		return pr
	}

	start := time.Now()
	cex, stats, err := p.Run(ctx, opts...)
	pr.Duration = time.Since(start)
	if stats != nil {
		pr.Calls = stats.Calls
		pr.Shrinks = stats.Shrinks
		pr.Seed = stats.Seed
	}

	switch {
	case errors.Is(err, conjecture.ErrNoExampleFound):
		pr.Passed = true
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		pr.Skipped = true
	case err != nil:
		pr.Error = err
	default:
		pr.Counterexample = cex
	}
	return pr
}
