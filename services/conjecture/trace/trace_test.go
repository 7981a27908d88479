// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package trace

import (
	"errors"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatus_Order(t *testing.T) {
	assert.Less(t, Overrun, Invalid)
	assert.Less(t, Invalid, Valid)
	assert.Less(t, Valid, Interesting)
	assert.Equal(t, "interesting", Interesting.String())
	assert.Equal(t, "status(9)", Status(9).String())
}

func TestNew_CopiesInput(t *testing.T) {
	in := []byte{1, 2, 3}
	tr := New(in)
	in[0] = 99

	got, err := tr.DrawBytes(1)
	require.NoError(t, err)
	assert.Equal(t, []byte{1}, got)
	assert.Equal(t, Valid, tr.Status())
}

// TestDrawBytes_RecordsInterval verifies each draw brackets its own example.
func TestDrawBytes_RecordsInterval(t *testing.T) {
	tr := New([]byte{1, 2, 3, 4})

	_, err := tr.DrawBytes(2)
	require.NoError(t, err)
	_, err = tr.DrawBytes(0)
	require.NoError(t, err)
	b, err := tr.DrawByte()
	require.NoError(t, err)
	assert.Equal(t, byte(3), b)

	r := tr.Freeze()
	assert.Equal(t, []Interval{{2, 3}, {0, 2}}, r.Intervals())
	assert.Equal(t, 3, r.Index())
	assert.Equal(t, 0, tr.Depth())
}

// TestDrawBytes_Overrun verifies reading past the end freezes the trace
// and signals a stop.
func TestDrawBytes_Overrun(t *testing.T) {
	tr := New([]byte{1, 2})

	_, err := tr.DrawBytes(3)
	require.ErrorIs(t, err, ErrStop)
	assert.True(t, tr.Frozen())

	r := tr.Freeze()
	assert.Equal(t, Overrun, r.Status())
	assert.Equal(t, 3, r.Index())
	assert.Empty(t, r.Intervals())
	assert.True(t, r.Rejected())
}

// TestFrozen_RejectsMutation verifies every building method fails once the
// trace is frozen.
func TestFrozen_RejectsMutation(t *testing.T) {
	tr := New([]byte{1})
	tr.Freeze()

	calls := map[string]func() error{
		"DrawBytes":       func() error { _, err := tr.DrawBytes(1); return err },
		"StartExample":    tr.StartExample,
		"StopExample":     tr.StopExample,
		"MarkInteresting": tr.MarkInteresting,
		"MarkInvalid":     tr.MarkInvalid,
		"IncurCost":       func() error { return tr.IncurCost(1) },
	}
	for name, call := range calls {
		t.Run(name, func(t *testing.T) {
			err := call()
			assert.True(t, errors.Is(err, ErrFrozen), "got %v", err)
			assert.Contains(t, err.Error(), name)
		})
	}
}

func TestMarkInteresting(t *testing.T) {
	t.Run("promotes valid", func(t *testing.T) {
		tr := New(nil)
		assert.ErrorIs(t, tr.MarkInteresting(), ErrStop)
		assert.Equal(t, Interesting, tr.Status())
	})

	t.Run("keeps invalid", func(t *testing.T) {
		tr := New(nil)
		assert.ErrorIs(t, tr.MarkInvalid(), ErrStop)
		assert.ErrorIs(t, tr.MarkInteresting(), ErrStop)
		assert.Equal(t, Invalid, tr.Status())
	})
}

func TestIncurCost(t *testing.T) {
	tr := New(nil)
	require.NoError(t, tr.IncurCost(3))
	require.NoError(t, tr.IncurCost(4))
	assert.ErrorIs(t, tr.IncurCost(-1), ErrNegativeCost)
	assert.Equal(t, 7, tr.Freeze().Cost())
}

// TestStopExample_Collapses verifies empty regions are dropped and a repeat
// of the last interval is not recorded twice.
func TestStopExample_Collapses(t *testing.T) {
	tr := New([]byte{5, 6, 7})

	require.NoError(t, tr.StartExample())
	require.NoError(t, tr.StopExample())

	require.NoError(t, tr.StartExample())
	_, err := tr.DrawBytes(2)
	require.NoError(t, err)
	require.NoError(t, tr.StopExample())

	// The outer region [0,2) equals the draw's own interval.
	assert.Equal(t, []Interval{{0, 2}}, tr.Freeze().Intervals())
}

func TestStopExample_Unbalanced(t *testing.T) {
	tr := New(nil)
	assert.Panics(t, func() { _ = tr.StopExample() })
}

// TestFreeze_TruncatesInteresting verifies an interesting trace keeps only
// the consumed prefix and a fresh checksum.
func TestFreeze_TruncatesInteresting(t *testing.T) {
	tr := New([]byte{9, 8, 7, 6, 5})
	_, err := tr.DrawBytes(2)
	require.NoError(t, err)
	_ = tr.MarkInteresting()

	r := tr.Freeze()
	assert.Equal(t, []byte{9, 8}, r.Buffer())
	assert.Equal(t, r.Index(), len(r.Buffer()))
	require.NoError(t, r.Verify())
	assert.Same(t, r, tr.Freeze(), "freeze is idempotent")
}

func TestFreeze_KeepsValidBuffer(t *testing.T) {
	tr := New([]byte{9, 8, 7})
	_, err := tr.DrawBytes(1)
	require.NoError(t, err)

	r := tr.Freeze()
	assert.Equal(t, []byte{9, 8, 7}, r.Buffer())
	assert.Equal(t, Valid, r.Status())
}

// TestFreeze_SortsNestedIntervals verifies nested regions end up ordered by
// (length, start) and never overlap partially.
func TestFreeze_SortsNestedIntervals(t *testing.T) {
	tr := New(make([]byte, 16))
	for range 3 {
		require.NoError(t, tr.StartExample())
		_, err := tr.DrawByte()
		require.NoError(t, err)
		_, err = tr.DrawBytes(3)
		require.NoError(t, err)
		require.NoError(t, tr.StopExample())
	}
	ivs := tr.Freeze().Intervals()

	assert.True(t, slices.IsSortedFunc(ivs, compareIntervals))
	for _, iv := range ivs {
		assert.Positive(t, iv.Len())
	}
	for i, a := range ivs {
		for _, b := range ivs[i+1:] {
			disjoint := a.End <= b.Start || b.End <= a.Start
			nested := (a.Start >= b.Start && a.End <= b.End) || (b.Start >= a.Start && b.End <= a.End)
			assert.True(t, disjoint || nested, "%v and %v overlap", a, b)
		}
	}
}

func TestResult_VerifyDetectsCorruption(t *testing.T) {
	r := New([]byte{1, 2, 3}).Freeze()
	require.NoError(t, r.Verify())

	r.Buffer()[0] ^= 0xFF
	assert.ErrorIs(t, r.Verify(), ErrCorrupted)
	assert.Panics(t, r.MustVerify)
}

// TestCompare verifies the simplicity order: cost, interval count, length,
// then unsigned bytes.
func TestCompare(t *testing.T) {
	build := func(buf []byte, draws []int, cost int) *Result {
		tr := New(buf)
		for _, n := range draws {
			_, err := tr.DrawBytes(n)
			require.NoError(t, err)
		}
		require.NoError(t, tr.IncurCost(cost))
		_ = tr.MarkInteresting()
		return tr.Freeze()
	}

	cheap := build([]byte{9, 9}, []int{2}, 0)
	costly := build([]byte{0, 0}, []int{2}, 1)
	assert.Negative(t, Compare(cheap, costly))

	fewer := build([]byte{9, 9}, []int{2}, 0)
	more := build([]byte{0, 0}, []int{1, 1}, 0)
	assert.Negative(t, Compare(fewer, more))

	shorter := build([]byte{9, 9}, []int{2}, 0)
	longer := build([]byte{0, 0, 0}, []int{3}, 0)
	assert.Negative(t, Compare(shorter, longer))

	low := build([]byte{1, 255}, []int{2}, 0)
	high := build([]byte{128, 0}, []int{2}, 0)
	assert.Negative(t, Compare(low, high))
	assert.Positive(t, Compare(high, low))
	assert.Zero(t, Compare(low, build([]byte{1, 255}, []int{2}, 0)))
}
