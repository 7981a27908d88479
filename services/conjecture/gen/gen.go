// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package gen turns trace bytes into typed values.
//
// Every generator brackets its draw in an example region so the shrinker
// can delete, zero and reorder whole values. Generators return
// trace.ErrStop, possibly wrapped, when the trace overruns or the value is
// rejected; callers pass it up unchanged.
//
// Generators shrink toward zero bytes, so prefer encodings where smaller
// bytes mean simpler values:
//
//	pairs := gen.List(gen.Pair(gen.IntRange(0, 9), gen.Bool()))
//	xs, err := pairs.Draw(t)
//	if err != nil {
//	    return err
//	}
package gen

import (
	"errors"

	"github.com/adamchainz/conjecture/services/conjecture/trace"
)

// ErrNoChoices is returned by OneOf when it has nothing to choose from.
var ErrNoChoices = errors.New("gen: OneOf needs at least one generator")

// Generator draws a value of type T from a trace.
type Generator[T any] interface {
	Draw(t *trace.Trace) (T, error)
}

// Func adapts a plain function to Generator. The function's draw is
// bracketed in its own example.
type Func[T any] func(t *trace.Trace) (T, error)

// Draw implements Generator.
func (f Func[T]) Draw(t *trace.Trace) (T, error) {
	return example(t, func() (T, error) { return f(t) })
}

// example runs draw inside an example region. The region is left open when
// draw fails; the trace is frozen by then or about to be abandoned.
func example[T any](t *trace.Trace, draw func() (T, error)) (T, error) {
	var zero T
	if err := t.StartExample(); err != nil {
		return zero, err
	}
	v, err := draw()
	if err != nil {
		return zero, err
	}
	if err := t.StopExample(); err != nil {
		return zero, err
	}
	return v, nil
}

// Just always returns v without consuming input.
func Just[T any](v T) Generator[T] {
	return Func[T](func(*trace.Trace) (T, error) { return v, nil })
}

// Map applies f to each value drawn from g.
func Map[T, U any](g Generator[T], f func(T) U) Generator[U] {
	return Func[U](func(t *trace.Trace) (U, error) {
		v, err := g.Draw(t)
		if err != nil {
			var zero U
			return zero, err
		}
		return f(v), nil
	})
}

// Filter redraws from g until keep accepts the value. An attempt that
// consumed no input can never change, so the trace is marked invalid.
func Filter[T any](g Generator[T], keep func(T) bool) Generator[T] {
	return Func[T](func(t *trace.Trace) (T, error) {
		var zero T
		for {
			start := t.Index()
			v, err := g.Draw(t)
			if err != nil {
				return zero, err
			}
			if keep(v) {
				return v, nil
			}
			if t.Index() == start {
				return zero, t.MarkInvalid()
			}
		}
	})
}

// FlatMap draws from g, then from the generator f builds from that value.
func FlatMap[T, U any](g Generator[T], f func(T) Generator[U]) Generator[U] {
	return Func[U](func(t *trace.Trace) (U, error) {
		v, err := g.Draw(t)
		if err != nil {
			var zero U
			return zero, err
		}
		return f(v).Draw(t)
	})
}

// OneOf picks one of gs with IntRange and draws from it. Earlier
// generators are simpler.
func OneOf[T any](gs ...Generator[T]) Generator[T] {
	return Func[T](func(t *trace.Trace) (T, error) {
		var zero T
		if len(gs) == 0 {
			return zero, ErrNoChoices
		}
		i, err := IntRange(0, int64(len(gs)-1)).Draw(t)
		if err != nil {
			return zero, err
		}
		return gs[i].Draw(t)
	})
}

// Tuple2 holds the values drawn by Pair.
type Tuple2[A, B any] struct {
	First  A
	Second B
}

// Pair draws from a, then from b.
func Pair[A, B any](a Generator[A], b Generator[B]) Generator[Tuple2[A, B]] {
	return Func[Tuple2[A, B]](func(t *trace.Trace) (Tuple2[A, B], error) {
		var out Tuple2[A, B]
		x, err := a.Draw(t)
		if err != nil {
			return out, err
		}
		y, err := b.Draw(t)
		if err != nil {
			return out, err
		}
		return Tuple2[A, B]{First: x, Second: y}, nil
	})
}

// List draws a variable-length list of elements.
//
// Each element is preceded by a continuation byte in the element's example;
// a byte of 50 or less ends the list. Zeroing a continuation byte therefore
// truncates the list at that point.
func List[T any](elem Generator[T]) Generator[[]T] {
	return Func[[]T](func(t *trace.Trace) ([]T, error) {
		var out []T
		for {
			more, err := example(t, func() (bool, error) {
				c, err := t.DrawByte()
				if err != nil || c <= listStop {
					return false, err
				}
				v, err := elem.Draw(t)
				if err != nil {
					return false, err
				}
				out = append(out, v)
				return true, nil
			})
			if err != nil {
				return nil, err
			}
			if !more {
				return out, nil
			}
		}
	})
}

const listStop = 50
