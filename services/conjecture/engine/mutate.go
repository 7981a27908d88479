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
	"encoding/binary"

	"github.com/adamchainz/conjecture/services/conjecture/buffer"
	"github.com/adamchainz/conjecture/services/conjecture/trace"
)

// randomBytes returns n uniformly random bytes from the runner's source.
func (r *Runner) randomBytes(n int) []byte {
	out := make([]byte, n)
	var word [8]byte
	for i := 0; i < n; i += 8 {
		binary.LittleEndian.PutUint64(word[:], r.rng.Uint64())
		copy(out[i:], word[:])
	}
	return out
}

// mutate derives a new candidate from the current best.
//
// Overrun results have their nonzero bytes zeroed, lowered or kept with
// equal odds, which tends to make the subject ask for less input. Otherwise
// three times in four, or always with fewer than two intervals, a random
// sub-range or a recorded interval is filled with zeros, 0xFF or noise. The
// remaining quarter splices a shorter interval over a longer one and shifts
// the rest of the buffer left, keeping the total length.
func (r *Runner) mutate() []byte {
	best := r.best
	src := best.Buffer()
	n := min(len(src), best.Index())
	switch n {
	case 0:
		return []byte{}
	case 1:
		return r.randomBytes(1)
	}

	if best.Status() == trace.Overrun {
		out := buffer.Clone(src)
		for i, b := range out {
			if b == 0 {
				continue
			}
			switch r.rng.IntN(3) {
			case 0:
				out[i] = 0
			case 1:
				out[i] = byte(r.rng.IntN(int(b)))
			}
		}
		return out
	}

	intervals := best.Intervals()
	if len(intervals) < 2 || r.rng.IntN(4) != 0 {
		return r.fill(src, n, intervals)
	}

	i := r.rng.IntN(len(intervals) - 1)
	j := i + 1 + r.rng.IntN(len(intervals)-1-i)
	first, second := intervals[j], intervals[i]
	if first == second {
		return r.fill(src, n, intervals)
	}
	return buffer.Splice(src, first.Start, first.End, src, second.Start, second.End)
}

// fill overwrites a range inside the first n bytes of src.
func (r *Runner) fill(src []byte, n int, intervals []trace.Interval) []byte {
	var u, v int
	if len(intervals) < 2 || r.rng.IntN(2) == 0 {
		u = r.rng.IntN(n)
		v = u + 1 + r.rng.IntN(n-u)
	} else {
		iv := intervals[r.rng.IntN(len(intervals))]
		u, v = iv.Start, iv.End
	}

	switch r.rng.IntN(3) {
	case 0:
		return buffer.Zero(src, u, v)
	case 1:
		return buffer.Fill(src, u, v, 0xFF)
	default:
		out := buffer.Clone(src)
		copy(out[u:v], r.randomBytes(v-u))
		return out
	}
}
