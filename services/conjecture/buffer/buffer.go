// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package buffer provides the byte-range transforms the shrinker composes.
//
// Every function returns a freshly allocated slice and never writes to its
// input, so a frozen trace buffer can be passed in directly. Ranges are
// half-open [start, end). Out-of-range arguments panic the same way slice
// indexing does.
package buffer

// Clone returns a copy of buf. A nil input yields an empty, non-nil slice.
func Clone(buf []byte) []byte {
	out := make([]byte, len(buf))
	copy(out, buf)
	return out
}

// Delete removes buf[start:end].
//
// The result is exactly end-start bytes shorter and keeps the order of
// everything outside the range.
func Delete(buf []byte, start, end int) []byte {
	checkRange(buf, start, end)
	out := make([]byte, 0, len(buf)-(end-start))
	out = append(out, buf[:start]...)
	return append(out, buf[end:]...)
}

// Zero clears buf[start:end], leaving the length unchanged.
func Zero(buf []byte, start, end int) []byte {
	return Fill(buf, start, end, 0)
}

// Fill sets every byte of buf[start:end] to b.
func Fill(buf []byte, start, end int, b byte) []byte {
	checkRange(buf, start, end)
	out := Clone(buf)
	for i := start; i < end; i++ {
		out[i] = b
	}
	return out
}

// Sort orders buf[start:end] ascending by unsigned value.
//
// Uses a 256-bucket counting sort, so the result is a permutation of the
// range's bytes regardless of its length.
func Sort(buf []byte, start, end int) []byte {
	checkRange(buf, start, end)
	var counts [256]int
	for _, b := range buf[start:end] {
		counts[b]++
	}
	out := Clone(buf)
	idx := start
	for v, n := range counts {
		for ; n > 0; n-- {
			out[idx] = byte(v)
			idx++
		}
	}
	return out
}

// Swap exchanges the bytes at i and j.
func Swap(buf []byte, i, j int) []byte {
	out := Clone(buf)
	out[i], out[j] = out[j], out[i]
	return out
}

// Replace sets the byte at i to b.
func Replace(buf []byte, i int, b byte) []byte {
	out := Clone(buf)
	out[i] = b
	return out
}

// ReplacePair sets the bytes at i and j to b.
func ReplacePair(buf []byte, i, j int, b byte) []byte {
	out := Clone(buf)
	out[i] = b
	out[j] = b
	return out
}

// DecrementPair lowers the bytes at i and j by one each. Both must be
// nonzero.
func DecrementPair(buf []byte, i, j int) []byte {
	if buf[i] == 0 || buf[j] == 0 {
		panic("buffer: DecrementPair on a zero byte")
	}
	out := Clone(buf)
	out[i]--
	out[j]--
	return out
}

// Borrow performs a radix-255 borrow into position i.
//
// It walks backward from i to the nearest nonzero byte, decrements it and
// sets every byte after it up to and including i to 255. ok is false when
// buf[i] is nonzero or no nonzero byte precedes it.
func Borrow(buf []byte, i int) (out []byte, ok bool) {
	if buf[i] != 0 {
		return nil, false
	}
	j := i
	for j >= 0 && buf[j] == 0 {
		j--
	}
	if j < 0 {
		return nil, false
	}
	out = Clone(buf)
	out[j]--
	for k := j + 1; k <= i; k++ {
		out[k] = 255
	}
	return out, true
}

// Splice copies src[from:to] over dst starting at at, then shifts
// dst[dstEnd:] left so it directly follows the copied bytes.
//
// The returned slice always has len(dst) bytes; when the shift leaves a gap
// at the tail the original trailing bytes stay in place. to-from must not
// exceed dstEnd-at.
func Splice(dst []byte, at, dstEnd int, src []byte, from, to int) []byte {
	checkRange(dst, at, dstEnd)
	checkRange(src, from, to)
	n := to - from
	if n > dstEnd-at {
		panic("buffer: Splice source longer than destination range")
	}
	out := Clone(dst)
	copy(out[at:], src[from:to])
	if n != dstEnd-at {
		copy(out[at+n:], dst[dstEnd:])
	}
	return out
}

func checkRange(buf []byte, start, end int) {
	if start < 0 || end < start || end > len(buf) {
		panic("buffer: range out of bounds")
	}
}
