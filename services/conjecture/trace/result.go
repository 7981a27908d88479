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
	"bytes"
	"fmt"

	"golang.org/x/crypto/sha3"
)

// Result is the frozen, immutable record of one execution.
//
// Thread Safety: Immutable; safe for concurrent read access. Buffer and
// Intervals return the owned slices, which callers must not modify.
type Result struct {
	buf       []byte
	checksum  [32]byte
	index     int
	cost      int
	status    Status
	intervals []Interval
}

// Buffer returns the frozen bytes. An Interesting result holds exactly
// Index() bytes.
func (r *Result) Buffer() []byte { return r.buf }

// Index returns how many bytes the execution consumed.
func (r *Result) Index() int { return r.index }

// Cost returns the accumulated cost.
func (r *Result) Cost() int { return r.cost }

// Status returns the outcome class.
func (r *Result) Status() Status { return r.status }

// Intervals returns the recorded intervals sorted by (length, start).
func (r *Result) Intervals() []Interval { return r.intervals }

// Checksum returns the SHA3-256 digest of Buffer taken at construction or
// truncation time.
func (r *Result) Checksum() [32]byte { return r.checksum }

// Rejected reports whether the execution was Invalid or overran.
func (r *Result) Rejected() bool {
	return r.status == Invalid || r.status == Overrun
}

// Verify recomputes the checksum and returns ErrCorrupted on mismatch.
func (r *Result) Verify() error {
	if sha3.Sum256(r.buf) != r.checksum {
		return fmt.Errorf("%w: %d byte buffer", ErrCorrupted, len(r.buf))
	}
	return nil
}

// MustVerify panics if Verify fails. A mismatch means some code wrote
// through an aliased buffer, which the engine cannot recover from.
func (r *Result) MustVerify() {
	if err := r.Verify(); err != nil {
		panic(err)
	}
}

// String summarises the result for logs.
func (r *Result) String() string {
	return fmt.Sprintf("%s index=%d cost=%d intervals=%d len=%d",
		r.status, r.index, r.cost, len(r.intervals), len(r.buf))
}

// Compare orders two results by simplicity: cost, then number of
// intervals, then buffer length, then unsigned lexicographic bytes.
// It returns a negative number when a is simpler than b.
func Compare(a, b *Result) int {
	switch {
	case a.cost != b.cost:
		return cmpInt(a.cost, b.cost)
	case len(a.intervals) != len(b.intervals):
		return cmpInt(len(a.intervals), len(b.intervals))
	case len(a.buf) != len(b.buf):
		return cmpInt(len(a.buf), len(b.buf))
	}
	return bytes.Compare(a.buf, b.buf)
}

func cmpInt(a, b int) int {
	if a < b {
		return -1
	}
	return 1
}
