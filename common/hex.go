// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package common

const hexDigits = "0123456789ABCDEF"

// AppendHex appends two uppercase hex characters per byte of src to dst,
// high nibble first.
func AppendHex(dst, src []byte) []byte {
	for _, b := range src {
		dst = append(dst, hexDigits[b>>4], hexDigits[b&0x0f])
	}
	return dst
}

// HexNibble returns the value of a single hex character, accepting both
// upper and lower case. ok is false for any other character.
func HexNibble(c byte) (v byte, ok bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, true
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, true
	}
	return 0, false
}

// HexPair decodes the two hex characters hi and lo into a byte.
func HexPair(hi, lo byte) (byte, bool) {
	h, ok := HexNibble(hi)
	if !ok {
		return 0, false
	}
	l, ok := HexNibble(lo)
	if !ok {
		return 0, false
	}
	return h<<4 | l, true
}
