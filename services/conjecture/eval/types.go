// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package eval holds named properties and the results of checking them.
//
// A Property wraps a generator and a predicate that should hold for every
// value the generator can produce. Running a property searches for a
// value where it does not hold and returns the minimized counterexample.
package eval

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/adamchainz/conjecture/services/conjecture"
	"github.com/adamchainz/conjecture/services/conjecture/engine"
	"github.com/adamchainz/conjecture/services/conjecture/gen"
)

// -----------------------------------------------------------------------------
// Errors
// -----------------------------------------------------------------------------

var (
	// ErrNotFound is returned when a property is not in the registry.
	ErrNotFound = errors.New("property not found")

	// ErrAlreadyRegistered is returned when a property name is taken.
	ErrAlreadyRegistered = errors.New("property already registered")

	// ErrNilProperty is returned when registering nil.
	ErrNilProperty = errors.New("property must not be nil")

	// ErrInvalidProperty is returned when a property is malformed.
	ErrInvalidProperty = errors.New("invalid property definition")
)

// -----------------------------------------------------------------------------
// Property
// -----------------------------------------------------------------------------

// RunFunc searches for a counterexample.
//
// It returns conjecture.ErrNoExampleFound when none was found within the
// budget. Stats may be nil when the search failed before running.
type RunFunc func(ctx context.Context, opts ...conjecture.Option) (counterexample any, stats *engine.Stats, err error)

// Property is a named claim about generated values.
type Property struct {
	// Name is a unique identifier, lowercase with underscores.
	Name string

	// Description explains what the property claims.
	Description string

	// Tags categorize the property for selective runs.
	Tags []string

	// Run searches for a counterexample.
	Run RunFunc
}

// NewProperty builds a property claiming holds(v) for every v drawn
// from g. The search looks for a v where holds is false.
//
// Example:
//
//	p := eval.NewProperty("small_sum", "Three digits sum to at most 25.",
//	    gen.List(gen.IntRange(0, 9)),
//	    func(xs []int64) bool { return sum(xs) <= 25 },
//	    "arithmetic")
func NewProperty[T any](name, description string, g gen.Generator[T], holds func(T) bool, tags ...string) *Property {
	return &Property{
		Name:        name,
		Description: description,
		Tags:        tags,
		Run: func(ctx context.Context, opts ...conjecture.Option) (any, *engine.Stats, error) {
			opts = append([]conjecture.Option{conjecture.WithName(name)}, opts...)
			v, stats, err := conjecture.FindWithStats(ctx, g, func(v T) bool { return !holds(v) }, opts...)
			if err != nil {
				return nil, stats, err
			}
			return v, stats, nil
		},
	}
}

// Validate checks that the property is well-formed.
func (p *Property) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidProperty)
	}
	if p.Description == "" {
		return fmt.Errorf("%w: description is required for %s", ErrInvalidProperty, p.Name)
	}
	if p.Run == nil {
		return fmt.Errorf("%w: run function is required for %s", ErrInvalidProperty, p.Name)
	}
	return nil
}

// HasTag returns true if the property has the given tag.
func (p *Property) HasTag(tag string) bool {
	return slices.Contains(p.Tags, tag)
}

// HasAnyTag returns true if tags is empty or the property has one of them.
func (p *Property) HasAnyTag(tags []string) bool {
	if len(tags) == 0 {
		return true
	}
	return slices.ContainsFunc(tags, p.HasTag)
}

// -----------------------------------------------------------------------------
// Results
// -----------------------------------------------------------------------------

// VerifyResult collects the outcome of verifying one or more properties.
type VerifyResult struct {
	// Properties holds one result per property, sorted by name.
	Properties []PropertyResult

	// Duration is the wall time of the whole verification.
	Duration time.Duration

	// Passed is true when every property passed.
	Passed bool
}

// FailedProperties returns the properties that did not pass, including
// those that errored.
func (r *VerifyResult) FailedProperties() []PropertyResult {
	var failed []PropertyResult
	for _, pr := range r.Properties {
		if !pr.Passed && !pr.Skipped {
			failed = append(failed, pr)
		}
	}
	return failed
}

// Counts returns the number of passed, failed and skipped properties.
func (r *VerifyResult) Counts() (passed, failed, skipped int) {
	for _, pr := range r.Properties {
		switch {
		case pr.Skipped:
			skipped++
		case pr.Passed:
			passed++
		default:
			failed++
		}
	}
	return passed, failed, skipped
}

// PropertyResult is the outcome of verifying one property.
type PropertyResult struct {
	Name string

	// Passed is true when no counterexample was found.
	Passed bool

	// Skipped is true when the run was cancelled before the property
	// finished.
	Skipped bool

	// Counterexample is the minimized failing value.
	Counterexample any

	// Calls is the number of subject executions.
	Calls int

	// Shrinks is the number of accepted shrinks.
	Shrinks int

	// Seed is the seed the search used.
	Seed uint64

	Duration time.Duration

	// Error is set when the search itself failed, for instance with
	// conjecture.ErrFlaky.
	Error error
}
