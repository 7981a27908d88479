// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package engine

import (
	"go.opentelemetry.io/otel/attribute"

	"github.com/adamchainz/conjecture/services/conjecture/buffer"
)

// Shrink strategy names, reported in events, logs and metrics.
const (
	StrategyDeleteIntervals = "delete_intervals"
	StrategyZeroIntervals   = "zero_intervals"
	StrategySortIntervals   = "sort_intervals"
	StrategyZeroWindows     = "zero_windows"
	StrategyMinimizeBytes   = "minimize_bytes"
	StrategySortAdjacent    = "sort_adjacent"
	StrategyDeleteBytes     = "delete_bytes"
	StrategyBorrow          = "borrow"
	StrategyReducePairs     = "reduce_pairs"
	StrategyOrderPairs      = "order_pairs"
)

// windowSize is the width of the zeroed window in the zero_windows pass.
const windowSize = 8

// shrinkStep runs one or more passes and reports whether any improved.
type shrinkStep func(r *Runner) bool

// shrinkSteps run in order. After any step improves the best, the sequence
// restarts from the top; shrinking ends when a full sequence changes
// nothing.
var shrinkSteps = []shrinkStep{
	(*Runner).deleteIntervals,
	(*Runner).zeroAndSortIntervals,
	(*Runner).zeroWindows,
	(*Runner).minimizeBytes,
	(*Runner).sortAdjacent,
	(*Runner).deleteBytes,
	(*Runner).borrowBytes,
	(*Runner).reducePairs,
	(*Runner).orderPairs,
}

// shrink minimizes the current interesting best.
func (r *Runner) shrink() {
	ctx, span := tracer.Start(r.ctx, "engine.shrink")
	defer span.End()
	outer := r.ctx
	r.ctx = ctx
	defer func() { r.ctx = outer }()

	r.phase = PhaseShrink
	passes := 0
	for !r.halted() {
		passes++
		improved := false
		for _, step := range shrinkSteps {
			if step(r) {
				improved = true
				break
			}
			if r.halted() {
				break
			}
		}
		if !improved {
			break
		}
	}
	span.SetAttributes(
		attribute.Int("conjecture.passes", passes),
		attribute.Int("conjecture.shrinks", r.stats.Shrinks),
		attribute.Int("conjecture.length", len(r.best.Buffer())),
	)
}

func (r *Runner) buf() []byte { return r.best.Buffer() }

// deleteIntervals removes each recorded interval. A successful deletion
// leaves the index in place since the interval list has changed.
func (r *Runner) deleteIntervals() bool {
	r.strategy = StrategyDeleteIntervals
	improved := false
	for i := 0; i < len(r.best.Intervals()) && !r.halted(); {
		iv := r.best.Intervals()[i]
		if iv.End > len(r.buf()) {
			i++
			continue
		}
		if r.offer(buffer.Delete(r.buf(), iv.Start, iv.End)) {
			improved = true
		} else {
			i++
		}
	}
	return improved
}

// zeroAndSortIntervals zeroes each interval, then sorts the bytes inside
// each interval.
func (r *Runner) zeroAndSortIntervals() bool {
	improved := false
	r.strategy = StrategyZeroIntervals
	for i := 0; i < len(r.best.Intervals()) && !r.halted(); i++ {
		iv := r.best.Intervals()[i]
		if iv.End <= len(r.buf()) && r.offer(buffer.Zero(r.buf(), iv.Start, iv.End)) {
			improved = true
		}
	}
	r.strategy = StrategySortIntervals
	for i := 0; i < len(r.best.Intervals()) && !r.halted(); i++ {
		iv := r.best.Intervals()[i]
		if iv.End <= len(r.buf()) && r.offer(buffer.Sort(r.buf(), iv.Start, iv.End)) {
			improved = true
		}
	}
	return improved
}

// zeroWindows zeroes every window of windowSize bytes.
func (r *Runner) zeroWindows() bool {
	r.strategy = StrategyZeroWindows
	improved := false
	for i := 0; i+windowSize <= len(r.buf()) && !r.halted(); i++ {
		if r.offer(buffer.Zero(r.buf(), i, i+windowSize)) {
			improved = true
		}
	}
	return improved
}

// minimizeBytes lowers each nonzero byte. If a decrement by one is
// accepted, the smallest accepted value at or above zero replaces it.
func (r *Runner) minimizeBytes() bool {
	r.strategy = StrategyMinimizeBytes
	improved := false
	for i := 0; i < len(r.buf()) && !r.halted(); i++ {
		b := r.buf()[i]
		if b == 0 {
			continue
		}
		if !r.offer(buffer.Replace(r.buf(), i, b-1)) {
			if r.settings.ShortCircuitByteScan {
				break
			}
			continue
		}
		improved = true
		for c := 0; i < len(r.buf()) && c < int(r.buf()[i]) && !r.halted(); c++ {
			if r.offer(buffer.Replace(r.buf(), i, byte(c))) {
				break
			}
		}
	}
	return improved
}

// sortAdjacent sorts every adjacent pair of bytes.
func (r *Runner) sortAdjacent() bool {
	r.strategy = StrategySortAdjacent
	improved := false
	for i := 0; i+1 < len(r.buf()) && !r.halted(); i++ {
		if r.offer(buffer.Sort(r.buf(), i, i+2)) {
			improved = true
		}
	}
	return improved
}

// deleteBytes removes single bytes.
func (r *Runner) deleteBytes() bool {
	r.strategy = StrategyDeleteBytes
	improved := false
	for i := 0; i < len(r.buf()) && !r.halted(); i++ {
		if r.offer(buffer.Delete(r.buf(), i, i+1)) {
			improved = true
		}
	}
	return improved
}

// borrowBytes tries a radix borrow into every zero byte.
func (r *Runner) borrowBytes() bool {
	r.strategy = StrategyBorrow
	improved := false
	for i := 0; i < len(r.buf()) && !r.halted(); i++ {
		if out, ok := buffer.Borrow(r.buf(), i); ok && r.offer(out) {
			improved = true
		}
	}
	return improved
}

// reducePairs lowers pairs of equal bytes together. Positions are grouped
// by value from a snapshot taken at the start of the pass; each pair is
// rechecked against the live best before use. A pair of zeros borrows
// from both predecessors instead.
func (r *Runner) reducePairs() bool {
	r.strategy = StrategyReducePairs
	var buckets [256][]int
	for i, b := range r.buf() {
		buckets[b] = append(buckets[b], i)
	}

	improved := false
	for _, positions := range buckets {
		for x := 0; x < len(positions); x++ {
			for y := x + 1; y < len(positions); y++ {
				if r.halted() {
					return improved
				}
				j, k := positions[x], positions[y]
				cur := r.buf()
				if k >= len(cur) || cur[j] != cur[k] {
					continue
				}
				v := cur[j]
				if v == 0 {
					if j > 0 && cur[j-1] != 0 && cur[k-1] != 0 {
						out := buffer.DecrementPair(cur, j-1, k-1)
						out[j], out[k] = 255, 255
						if r.offer(out) {
							improved = true
						}
					}
					continue
				}
				for c := 0; c < int(v) && !r.halted(); c++ {
					if r.offer(buffer.ReplacePair(cur, j, k, byte(c))) {
						improved = true
						break
					}
				}
			}
		}
	}
	return improved
}

// orderPairs swaps out-of-order pairs of bytes and lowers pairs of nonzero
// bytes together.
func (r *Runner) orderPairs() bool {
	r.strategy = StrategyOrderPairs
	improved := false
	for i := 0; i < len(r.buf()) && !r.halted(); i++ {
		if r.buf()[i] == 0 {
			continue
		}
		for j := i + 1; j < len(r.buf()) && i < len(r.buf()) && !r.halted(); j++ {
			cur := r.buf()
			if cur[i] > cur[j] && r.offer(buffer.Swap(cur, i, j)) {
				improved = true
			}
			cur = r.buf()
			if j < len(cur) && cur[i] != 0 && cur[j] != 0 && r.offer(buffer.DecrementPair(cur, i, j)) {
				improved = true
			}
		}
	}
	return improved
}
