// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package examples registers a set of demonstration properties.
//
// Most of them are false on purpose, so running them shows the shape of
// the minimized counterexamples. too_much_data always passes because every
// draw overruns the buffer.
package examples

import (
	"cmp"
	"math"
	"slices"

	"github.com/adamchainz/conjecture/services/conjecture/eval"
	"github.com/adamchainz/conjecture/services/conjecture/gen"
	"github.com/adamchainz/conjecture/services/conjecture/trace"
)

// Tags used by the example properties.
const (
	TagBytes    = "bytes"
	TagLists    = "lists"
	TagNumbers  = "numbers"
	TagFloats   = "floats"
	TagStrings  = "strings"
	TagOverrun  = "overrun"
	TagShrinker = "shrinker"
)

// tooMuchData exceeds any sensible buffer size.
const tooMuchData = 8 * 1024 * 1024

const (
	summingManyLimit uint64 = 0x7000000000000000
	halfUint64       uint64 = 1 << 63
)

// Register adds every example property to r.
func Register(r *eval.Registry) error {
	for _, p := range Properties() {
		if err := r.Register(p); err != nil {
			return err
		}
	}
	return nil
}

// Properties returns fresh copies of the example properties.
func Properties() []*eval.Property {
	return []*eval.Property{
		eval.NewProperty("lexicographic_bytes",
			"A block of 1000 bytes has fewer than 100 nonzero bytes.",
			gen.Bytes(1000), func(b []byte) bool { return countNonzero(b) < 100 },
			TagBytes, TagShrinker),

		eval.NewProperty("summing_list",
			"A list of uint32 sums to less than one million.",
			gen.List(gen.Uint32()), func(xs []uint32) bool { return sum(xs) < 1_000_000 },
			TagLists, TagNumbers, TagShrinker),

		eval.NewProperty("small_sum",
			"Three digits sum to at most 25.",
			triple(gen.IntRange(0, 9)), func(xs [3]int64) bool { return xs[0]+xs[1]+xs[2] <= 25 },
			TagNumbers),

		eval.NewProperty("distinct_list",
			"A list of digits has no duplicates.",
			gen.List(gen.IntRange(0, 9)), func(xs []int64) bool { return !hasDuplicate(xs) },
			TagLists, TagShrinker),

		eval.NewProperty("mixed_bools",
			"A list of bools is all true or all false.",
			gen.List(gen.Bool()), uniform,
			TagLists, TagShrinker),

		eval.NewProperty("sorted_strings",
			"A list of strings is sorted.",
			gen.List(gen.String()), slices.IsSorted[[]string],
			TagLists, TagStrings),

		eval.NewProperty("associative_doubles",
			"Floating point addition is associative.",
			triple(finiteFloat()), func(xs [3]float64) bool {
				return (xs[0]+xs[1])+xs[2] == xs[0]+(xs[1]+xs[2])
			},
			TagFloats),

		eval.NewProperty("reversible_sums",
			"Summing a list of doubles forward or backward agrees within one.",
			gen.List(finiteFloat()), reversible,
			TagLists, TagFloats),

		eval.NewProperty("knapsack",
			"Doubling the weight of a packed item never raises the greedy packing's value.",
			knapsack(), heavierDoesNotHelp,
			TagLists, TagNumbers),

		eval.NewProperty("summing_many",
			"A list of more than three uint64 values sums to at most 0x7000000000000000.",
			summingMany(), func(xs []uint64) bool { return len(xs) <= 3 || sum(xs) <= summingManyLimit },
			TagLists, TagNumbers),

		eval.NewProperty("too_much_data",
			"A subject that reads more than the buffer never runs to completion.",
			gen.Bytes(tooMuchData), func([]byte) bool { return false },
			TagOverrun),
	}
}

// triple draws three values from g.
func triple[T any](g gen.Generator[T]) gen.Generator[[3]T] {
	return gen.Func[[3]T](func(t *trace.Trace) ([3]T, error) {
		var out [3]T
		for i := range out {
			v, err := g.Draw(t)
			if err != nil {
				return out, err
			}
			out[i] = v
		}
		return out, nil
	})
}

func finiteFloat() gen.Generator[float64] {
	return gen.Filter(gen.Float64(), func(f float64) bool {
		return !math.IsInf(f, 0) && !math.IsNaN(f)
	})
}

func countNonzero(b []byte) int {
	n := 0
	for _, c := range b {
		if c != 0 {
			n++
		}
	}
	return n
}

func sum[T uint32 | uint64](xs []T) uint64 {
	var total uint64
	for _, x := range xs {
		total += uint64(x)
	}
	return total
}

func hasDuplicate[T comparable](xs []T) bool {
	seen := make(map[T]struct{}, len(xs))
	for _, x := range xs {
		if _, ok := seen[x]; ok {
			return true
		}
		seen[x] = struct{}{}
	}
	return false
}

func uniform(xs []bool) bool {
	for _, x := range xs {
		if x != xs[0] {
			return false
		}
	}
	return true
}

// reversible ignores lists whose sum is not finite.
func reversible(xs []float64) bool {
	var fwd, rev float64
	for i := range xs {
		fwd += xs[i]
		rev += xs[len(xs)-1-i]
	}
	if math.IsNaN(fwd) || math.IsInf(fwd, 0) || math.IsNaN(rev) || math.IsInf(rev, 0) {
		return true
	}
	return math.Abs(fwd-rev) <= 1
}

// assume marks the trace invalid when ok rejects the drawn value.
func assume[T any](g gen.Generator[T], ok func(T) bool) gen.Generator[T] {
	return gen.Func[T](func(t *trace.Trace) (T, error) {
		v, err := g.Draw(t)
		if err != nil {
			return v, err
		}
		if !ok(v) {
			return v, t.MarkInvalid()
		}
		return v, nil
	})
}

// summingMany draws uint64 lists whose running sum stays below 1<<63.
func summingMany() gen.Generator[[]uint64] {
	return assume(gen.List(gen.Uint64()), func(xs []uint64) bool {
		var total uint64
		for _, x := range xs {
			if total >= halfUint64 || x >= halfUint64 {
				return false
			}
			total += x
		}
		return true
	})
}

type knapsackItem struct {
	Weight uint64
	Value  uint64
}

// knapsackCase is a packing problem plus the index of one packed item.
type knapsackCase struct {
	Items    []knapsackItem
	Capacity uint64
	Selected int
}

// knapsack draws items, then a capacity no larger than their total weight,
// then an index among the items the greedy packing chose.
func knapsack() gen.Generator[knapsackCase] {
	item := gen.Map(gen.Pair(gen.SmallUint64(), gen.SmallUint64()),
		func(p gen.Tuple2[uint64, uint64]) knapsackItem {
			return knapsackItem{Weight: p.First, Value: p.Second}
		})
	items := assume(gen.Map(gen.List(item), func(xs []knapsackItem) []knapsackItem {
		slices.SortStableFunc(xs, func(a, b knapsackItem) int { return cmp.Compare(b.Value, a.Value) })
		return xs
	}), func(xs []knapsackItem) bool { return len(xs) > 0 })

	problem := gen.FlatMap(items, func(xs []knapsackItem) gen.Generator[knapsackCase] {
		var total uint64
		for _, it := range xs {
			total += it.Weight
		}
		return gen.Map(gen.IntRange(0, int64(min(total, math.MaxInt64))), func(c int64) knapsackCase {
			return knapsackCase{Items: xs, Capacity: uint64(c)}
		})
	})
	packed := assume(problem, func(k knapsackCase) bool {
		return slices.Contains(pack(k.Items, k.Capacity), true)
	})

	return gen.FlatMap(packed, func(k knapsackCase) gen.Generator[knapsackCase] {
		chosen := pack(k.Items, k.Capacity)
		pick := gen.Filter(gen.IntRange(0, int64(len(k.Items)-1)), func(i int64) bool { return chosen[i] })
		return gen.Map(pick, func(i int64) knapsackCase {
			k.Selected = int(i)
			return k
		})
	})
}

// pack fills capacity greedily in item order.
func pack(items []knapsackItem, capacity uint64) []bool {
	chosen := make([]bool, len(items))
	left := capacity
	for i, it := range items {
		if it.Weight <= left {
			left -= it.Weight
			chosen[i] = true
		}
	}
	return chosen
}

func packedValue(items []knapsackItem, chosen []bool) uint64 {
	var v uint64
	for i, ok := range chosen {
		if ok {
			v += items[i].Value
		}
	}
	return v
}

func heavierDoesNotHelp(k knapsackCase) bool {
	before := packedValue(k.Items, pack(k.Items, k.Capacity))
	heavier := slices.Clone(k.Items)
	if w := heavier[k.Selected].Weight; w > 0 {
		heavier[k.Selected].Weight = 2 * w
	} else {
		heavier[k.Selected].Weight = 1
	}
	return packedValue(heavier, pack(heavier, k.Capacity)) <= before
}
