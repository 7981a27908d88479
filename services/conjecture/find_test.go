// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package conjecture

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adamchainz/conjecture/services/conjecture/config"
	"github.com/adamchainz/conjecture/services/conjecture/engine"
	"github.com/adamchainz/conjecture/services/conjecture/gen"
	"github.com/adamchainz/conjecture/services/conjecture/trace"
)

func sum32(xs []uint32) uint64 {
	var total uint64
	for _, x := range xs {
		total += uint64(x)
	}
	return total
}

func hasDuplicate[T comparable](xs []T) bool {
	seen := make(map[T]bool, len(xs))
	for _, x := range xs {
		if seen[x] {
			return true
		}
		seen[x] = true
	}
	return false
}

func TestFind_BlockOfBytesShrinksToZeros(t *testing.T) {
	b, err := Find(context.Background(), gen.Bytes(100), func([]byte) bool { return true })
	require.NoError(t, err)
	assert.Equal(t, make([]byte, 100), b)
}

func TestFind_MinimumSumLists(t *testing.T) {
	for _, n := range []uint64{1, 10, 49, 1000, 1 << 32} {
		xs, err := Find(context.Background(), gen.List(gen.Uint32()), func(xs []uint32) bool {
			return sum32(xs) >= n
		})
		require.NoError(t, err, "n=%d", n)
		assert.Equal(t, n, sum32(xs), "n=%d xs=%v", n, xs)
		assert.NotContains(t, xs, uint32(0))
	}
}

func TestFind_Duplicates(t *testing.T) {
	xs, err := Find(context.Background(), gen.List(gen.IntRange(0, 9)), hasDuplicate[int64])
	require.NoError(t, err)
	assert.Equal(t, []int64{0, 0}, xs)
}

func TestFind_DistinctValuesSort(t *testing.T) {
	xs, err := Find(context.Background(), gen.List(gen.Uint64()), func(xs []uint64) bool {
		seen := map[uint64]bool{}
		for _, x := range xs {
			seen[x] = true
		}
		return len(seen) >= 10
	})
	require.NoError(t, err)
	assert.Equal(t, []uint64{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, xs)
}

func TestFind_MixedBools(t *testing.T) {
	xs, err := Find(context.Background(), gen.List(gen.Bool()), func(xs []bool) bool {
		anyTrue, allTrue := false, true
		for _, x := range xs {
			anyTrue = anyTrue || x
			allTrue = allTrue && x
		}
		return anyTrue && !allTrue
	})
	require.NoError(t, err)
	assert.Equal(t, []bool{false, true}, xs)
}

func TestFind_LongBoolList(t *testing.T) {
	xs, err := Find(context.Background(), gen.List(gen.Bool()), func(xs []bool) bool { return len(xs) >= 10 })
	require.NoError(t, err)
	assert.Equal(t, make([]bool, 10), xs)
}

func TestFind_NoExampleFound(t *testing.T) {
	s := config.Default()
	s.MaxRounds = 2

	_, err := Find(context.Background(), gen.Bytes(4), func([]byte) bool { return false }, WithSettings(s))
	assert.ErrorIs(t, err, ErrNoExampleFound)
}

// TestFind_FilterNeverSatisfied verifies a filter that can never pass
// ends the search instead of looping.
func TestFind_FilterNeverSatisfied(t *testing.T) {
	never := gen.Filter(gen.Just(false), func(b bool) bool { return b })
	_, stats, err := FindWithStats(context.Background(), never, func(bool) bool { return true })
	assert.ErrorIs(t, err, ErrNoExampleFound)
	require.NotNil(t, stats)
	assert.Zero(t, stats.Statuses[trace.Interesting])
}

func TestFind_Flaky(t *testing.T) {
	calls := 0
	_, err := Find(context.Background(), gen.Bytes(8), func([]byte) bool {
		calls++
		return calls == 1
	})
	assert.ErrorIs(t, err, ErrFlaky)
}

func TestFind_GeneratorError(t *testing.T) {
	boom := errors.New("boom")
	g := gen.Func[int](func(*trace.Trace) (int, error) { return 0, boom })

	_, err := Find(context.Background(), g, func(int) bool { return true })
	assert.ErrorIs(t, err, engine.ErrSubject)
	assert.ErrorIs(t, err, boom)
}

func TestFind_Seeded(t *testing.T) {
	pred := func(xs []uint32) bool { return sum32(xs) >= 300 }
	var events []engine.Event
	a, err := Find(context.Background(), gen.List(gen.Uint32()), pred, WithSeed(7),
		WithObserver(func(ev engine.Event) { events = append(events, ev) }))
	require.NoError(t, err)
	b, err := Find(context.Background(), gen.List(gen.Uint32()), pred, WithSeed(7))
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.NotEmpty(t, events)
}

func TestFind_InvalidSettings(t *testing.T) {
	s := config.Default()
	s.MaxRounds = 0
	_, err := Find(context.Background(), gen.Byte(), func(byte) bool { return true }, WithSettings(s))
	assert.ErrorIs(t, err, config.ErrInvalidSettings)
}

func TestFindBuffer(t *testing.T) {
	buf, stats, err := FindBuffer(context.Background(), func(t *trace.Trace) error {
		b, err := t.DrawBytes(2)
		if err != nil {
			return err
		}
		if b[0] > 0 && b[1] > 0 {
			return t.MarkInteresting()
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 1}, buf)
	assert.Positive(t, stats.Calls)
	assert.Equal(t, uint64(0), stats.Seed)
}

func TestReplay(t *testing.T) {
	v, err := Replay(gen.Uint32(), []byte{0, 0, 1, 0})
	require.NoError(t, err)
	assert.Equal(t, uint32(256), v)

	_, err = Replay(gen.Uint32(), []byte{1})
	assert.ErrorIs(t, err, trace.ErrStop)
}
