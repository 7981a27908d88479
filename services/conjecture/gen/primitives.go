// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package gen

import (
	"encoding/binary"
	"math"
	"math/bits"
	"strings"

	"github.com/adamchainz/conjecture/services/conjecture/trace"
)

// Bytes draws n raw bytes.
func Bytes(n int) Generator[[]byte] {
	return Func[[]byte](func(t *trace.Trace) ([]byte, error) {
		return t.DrawBytes(n)
	})
}

// Byte draws a single byte.
func Byte() Generator[byte] {
	return Func[byte](func(t *trace.Trace) (byte, error) {
		return t.DrawByte()
	})
}

// Bool draws a byte and returns its low bit.
func Bool() Generator[bool] {
	return Func[bool](func(t *trace.Trace) (bool, error) {
		b, err := t.DrawByte()
		return b&1 == 1, err
	})
}

// Uint32 draws 4 bytes as a big-endian integer.
func Uint32() Generator[uint32] {
	return Func[uint32](func(t *trace.Trace) (uint32, error) {
		b, err := t.DrawBytes(4)
		if err != nil {
			return 0, err
		}
		return binary.BigEndian.Uint32(b), nil
	})
}

// Uint64 draws 8 bytes as a big-endian integer.
func Uint64() Generator[uint64] {
	return Func[uint64](drawUint64)
}

// Int64 draws 8 bytes as a big-endian two's complement integer.
func Int64() Generator[int64] {
	return Func[int64](func(t *trace.Trace) (int64, error) {
		u, err := drawUint64(t)
		return int64(u), err
	})
}

func drawUint64(t *trace.Trace) (uint64, error) {
	b, err := t.DrawBytes(8)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(b), nil
}

// IntRange draws an integer in [lo, hi].
//
// It reads just enough bytes to cover hi-lo, masks them to the next power
// of two minus one and redraws until the value fits, so zero bytes map to
// lo. lo == hi draws nothing. It panics when lo > hi.
func IntRange(lo, hi int64) Generator[int64] {
	if lo > hi {
		panic("gen: IntRange with lo > hi")
	}
	gap := uint64(hi) - uint64(lo)
	width := (bits.Len64(gap) + 7) / 8
	mask := uint64(math.MaxUint64)
	if n := bits.Len64(gap); n < 64 {
		mask = 1<<n - 1
	}
	return Func[int64](func(t *trace.Trace) (int64, error) {
		if gap == 0 {
			return lo, nil
		}
		for {
			b, err := t.DrawBytes(width)
			if err != nil {
				return 0, err
			}
			var probe uint64
			for _, c := range b {
				probe = probe<<8 | uint64(c)
			}
			if probe &= mask; probe <= gap {
				return int64(uint64(lo) + probe), nil
			}
		}
	})
}

// SmallUint64 sums bytes until one is below 255. Small values take one
// byte; large ones grow the input linearly.
func SmallUint64() Generator[uint64] {
	return Func[uint64](drawSmallUint64)
}

func drawSmallUint64(t *trace.Trace) (uint64, error) {
	var total uint64
	for {
		b, err := t.DrawByte()
		if err != nil {
			return 0, err
		}
		total += uint64(b)
		if b < 0xFF {
			return total, nil
		}
	}
}

// String draws a maximum length with SmallUint64, then up to that many
// bytes, stopping early at a zero byte which is not included.
func String() Generator[string] {
	return Func[string](func(t *trace.Trace) (string, error) {
		limit, err := drawSmallUint64(t)
		if err != nil {
			return "", err
		}
		var sb strings.Builder
		for range limit {
			c, err := t.DrawByte()
			if err != nil {
				return "", err
			}
			if c == 0 {
				break
			}
			sb.WriteByte(c)
		}
		return sb.String(), nil
	})
}

// nastyFloats are edge-case doubles reachable from the high end of the
// branch byte. Negations fill the second half.
var nastyFloats = func() [32]float64 {
	base := [16]float64{
		0.0, 0.5, 1.0 / 3, 10e6, 10e-6, 1.175494351e-38, 2.2250738585072014e-308,
		math.MaxFloat64, 3.402823466e+38, 9007199254740992, 1 - 10e-6,
		1 + 10e-6, 1.192092896e-07, 2.2204460492503131e-016,
		math.Inf(1), math.NaN(),
	}
	var out [32]float64
	for i, f := range base {
		out[i] = f
		out[i+16] = -f
	}
	return out
}()

// Float64 draws a double.
//
// A branch byte and 8 more bytes are always drawn. A branch byte of 224 or
// more picks a nasty float. A branch byte of 55 or less converts the 8
// bytes as an integer. Anything in between reinterprets them as IEEE-754
// bits. Non-finite values incur cost 2 and magnitudes in (0, 1) incur
// cost 1, so shrinking prefers plain integral values.
func Float64() Generator[float64] {
	return Func[float64](func(t *trace.Trace) (float64, error) {
		b, err := t.DrawByte()
		if err != nil {
			return 0, err
		}
		branch := 255 - int(b)
		k, err := drawUint64(t)
		if err != nil {
			return 0, err
		}

		var f float64
		switch {
		case branch < 32:
			f = nastyFloats[(31-branch)&31]
		case branch >= 200:
			f = float64(int64(k))
		default:
			f = math.Float64frombits(k)
		}

		switch {
		case math.IsInf(f, 0) || math.IsNaN(f):
			err = t.IncurCost(2)
		case f != 0 && math.Abs(f) < 1:
			err = t.IncurCost(1)
		}
		return f, err
	})
}
