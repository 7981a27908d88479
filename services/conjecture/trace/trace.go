// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package trace records one execution of a subject over a fixed byte buffer.
//
// A Trace has two phases. While building, generators draw bytes from it,
// bracket structural regions with StartExample/StopExample and report the
// outcome with MarkInteresting or MarkInvalid. Freeze ends the building
// phase and returns an immutable Result, which is what the engine ranks,
// keeps and shrinks.
//
// # Control Flow
//
// Overrunning the buffer, MarkInteresting and MarkInvalid all return
// ErrStop. Generators propagate it like any other error and the engine
// swallows it at the per-execution boundary, so it is never observed by
// callers of the search.
//
// # Thread Safety
//
// A Trace is owned by a single execution and is not safe for concurrent
// use. A Result is immutable and safe to share.
package trace

import (
	"errors"
	"fmt"
	"slices"

	"golang.org/x/crypto/sha3"
)

// -----------------------------------------------------------------------------
// Errors
// -----------------------------------------------------------------------------

var (
	// ErrFrozen is returned when a building method is called after Freeze.
	ErrFrozen = errors.New("trace is frozen")

	// ErrStop ends the current execution. It is control flow, not a failure.
	ErrStop = errors.New("stop execution")

	// ErrNegativeCost is returned by IncurCost for a negative amount.
	ErrNegativeCost = errors.New("cost must be non-negative")

	// ErrCorrupted means a frozen buffer no longer matches its checksum.
	ErrCorrupted = errors.New("trace buffer modified after construction")
)

// -----------------------------------------------------------------------------
// Status
// -----------------------------------------------------------------------------

// Status is the outcome class of an execution.
//
// Statuses are ordered: Overrun < Invalid < Valid < Interesting.
type Status int

const (
	// Overrun means the subject tried to read past the end of the buffer.
	Overrun Status = iota

	// Invalid means the subject rejected the input as not meaningful.
	Invalid

	// Valid means the execution completed without a verdict.
	Valid

	// Interesting means the subject found what the search is looking for.
	Interesting
)

// String returns the lowercase status name.
func (s Status) String() string {
	switch s {
	case Overrun:
		return "overrun"
	case Invalid:
		return "invalid"
	case Valid:
		return "valid"
	case Interesting:
		return "interesting"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// -----------------------------------------------------------------------------
// Interval
// -----------------------------------------------------------------------------

// Interval is a half-open byte range [Start, End) consumed by one
// structural read.
type Interval struct {
	Start int
	End   int
}

// Len returns the number of bytes covered.
func (iv Interval) Len() int {
	return iv.End - iv.Start
}

// Less orders intervals by length, then by start.
func (iv Interval) Less(other Interval) bool {
	if iv.Len() != other.Len() {
		return iv.Len() < other.Len()
	}
	return iv.Start < other.Start
}

func compareIntervals(a, b Interval) int {
	if a.Less(b) {
		return -1
	}
	if b.Less(a) {
		return 1
	}
	return 0
}

// -----------------------------------------------------------------------------
// Trace
// -----------------------------------------------------------------------------

// Trace is the building phase of one execution record.
type Trace struct {
	buf       []byte
	checksum  [32]byte
	index     int
	cost      int
	status    Status
	intervals []Interval
	open      []int
	result    *Result
}

// New starts a trace over a private copy of buf.
func New(buf []byte) *Trace {
	owned := make([]byte, len(buf))
	copy(owned, buf)
	return &Trace{
		buf:      owned,
		checksum: sha3.Sum256(owned),
		status:   Valid,
	}
}

// Index returns the number of bytes consumed so far. After an overrun it
// exceeds the buffer length.
func (t *Trace) Index() int { return t.index }

// Status returns the current outcome class.
func (t *Trace) Status() Status { return t.status }

// Frozen reports whether Freeze has run.
func (t *Trace) Frozen() bool { return t.result != nil }

// Depth returns the number of currently open examples.
func (t *Trace) Depth() int { return len(t.open) }

func (t *Trace) checkFrozen(op string) error {
	if t.result != nil {
		return fmt.Errorf("%w: cannot call %s", ErrFrozen, op)
	}
	return nil
}

// DrawBytes consumes the next n bytes and returns a copy of them.
//
// Description:
//
//	The read is recorded as its own example, so every draw of at least one
//	byte contributes an interval. Reading past the end of the buffer marks
//	the trace Overrun, freezes it and returns ErrStop.
//
// Inputs:
//
//	n - Number of bytes to read. Must be non-negative.
//
// Outputs:
//
//	[]byte - The bytes read, owned by the caller.
//	error - ErrStop on overrun, ErrFrozen after Freeze.
func (t *Trace) DrawBytes(n int) ([]byte, error) {
	if err := t.checkFrozen("DrawBytes"); err != nil {
		return nil, err
	}
	if n < 0 {
		panic("trace: DrawBytes with negative length")
	}
	t.open = append(t.open, t.index)
	t.index += n
	if t.index > len(t.buf) {
		t.status = Overrun
		t.Freeze()
		return nil, ErrStop
	}
	out := make([]byte, n)
	copy(out, t.buf[t.index-n:t.index])
	if err := t.StopExample(); err != nil {
		return nil, err
	}
	return out, nil
}

// DrawByte consumes a single byte.
func (t *Trace) DrawByte() (byte, error) {
	b, err := t.DrawBytes(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

// StartExample opens a structural region at the current index.
func (t *Trace) StartExample() error {
	if err := t.checkFrozen("StartExample"); err != nil {
		return err
	}
	t.open = append(t.open, t.index)
	return nil
}

// StopExample closes the innermost open region.
//
// A region that consumed no bytes is not recorded, and a region identical to
// the most recently recorded one is collapsed into it. Calling StopExample
// with no open region is a programming error and panics.
func (t *Trace) StopExample() error {
	if err := t.checkFrozen("StopExample"); err != nil {
		return err
	}
	if len(t.open) == 0 {
		panic("trace: StopExample without matching StartExample")
	}
	start := t.open[len(t.open)-1]
	t.open = t.open[:len(t.open)-1]
	if start == t.index {
		return nil
	}
	iv := Interval{Start: start, End: t.index}
	if n := len(t.intervals); n == 0 || t.intervals[n-1] != iv {
		t.intervals = append(t.intervals, iv)
	}
	return nil
}

// MarkInteresting promotes a Valid trace to Interesting and stops the
// execution. A trace already marked Invalid keeps its status.
func (t *Trace) MarkInteresting() error {
	if err := t.checkFrozen("MarkInteresting"); err != nil {
		return err
	}
	if t.status == Valid {
		t.status = Interesting
	}
	return ErrStop
}

// MarkInvalid demotes a Valid trace to Invalid and stops the execution.
func (t *Trace) MarkInvalid() error {
	if err := t.checkFrozen("MarkInvalid"); err != nil {
		return err
	}
	if t.status == Valid {
		t.status = Invalid
	}
	return ErrStop
}

// IncurCost adds n to the trace's cost. Lower cost ranks better among
// interesting traces.
func (t *Trace) IncurCost(n int) error {
	if err := t.checkFrozen("IncurCost"); err != nil {
		return err
	}
	if n < 0 {
		return fmt.Errorf("%w: %d", ErrNegativeCost, n)
	}
	t.cost += n
	return nil
}

// Freeze ends the building phase and returns the immutable record.
//
// Description:
//
//	Intervals are sorted by (length, start). An Interesting trace drops
//	every byte past its index and its checksum is recomputed. Freeze is
//	idempotent: later calls return the same Result.
//
// Outputs:
//
//	*Result - The frozen record. Never nil.
func (t *Trace) Freeze() *Result {
	if t.result != nil {
		return t.result
	}
	intervals := slices.Clone(t.intervals)
	slices.SortFunc(intervals, compareIntervals)

	buf := t.buf
	checksum := t.checksum
	if t.status == Interesting && len(buf) > t.index {
		buf = buf[:t.index:t.index]
		checksum = sha3.Sum256(buf)
	}
	t.open = nil
	t.result = &Result{
		buf:       buf,
		checksum:  checksum,
		index:     t.index,
		cost:      t.cost,
		status:    t.status,
		intervals: intervals,
	}
	return t.result
}
