// Copyright 2025 Lemon4ksan. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tar

import (
	"fmt"
	"math"
	"math/big"
)

// parseOctal reads an octal number from a header field.
// Leading spaces and trailing NULs or spaces are ignored, and a field whose
// first byte is NUL reads as zero.
func parseOctal(b []byte) (int64, error) {
	if len(b) < 2 {
		return 0, fmt.Errorf("%w: octal field of length %d", ErrFormat, len(b))
	}
	if b[0] == 0 {
		return 0, nil
	}

	start, end := 0, len(b)
	for start < end && b[start] == ' ' {
		start++
	}
	for end > start && (b[end-1] == 0 || b[end-1] == ' ') {
		end--
	}

	var v int64
	for _, c := range b[start:end] {
		if c < '0' || c > '7' {
			return 0, fmt.Errorf("%w: invalid byte %q in octal field %q", ErrFormat, c, b)
		}
		if v > math.MaxInt64>>3 {
			return 0, fmt.Errorf("%w: octal field %q overflows", ErrFormat, b)
		}
		v = v<<3 | int64(c-'0')
	}
	return v, nil
}

// parseOctalOrBinary reads a numeric field that may use the GNU base-256
// extension, signalled by the high bit of the first byte.
func parseOctalOrBinary(b []byte) (int64, error) {
	if len(b) == 0 || b[0]&0x80 == 0 {
		return parseOctal(b)
	}
	negative := b[0] == 0xff
	if len(b) >= 9 {
		return parseBinaryBig(b[1:], negative)
	}
	return parseBinaryLong(b[1:], negative), nil
}

func parseBinaryLong(b []byte, negative bool) int64 {
	var v uint64
	for _, c := range b {
		v = v<<8 | uint64(c)
	}
	if negative {
		mask := uint64(1)<<(8*uint(len(b))) - 1
		v = ((v - 1) ^ mask) & mask
		return -int64(v)
	}
	return int64(v)
}

func parseBinaryBig(b []byte, negative bool) (int64, error) {
	v := new(big.Int).SetBytes(b)
	if negative && v.Sign() != 0 {
		// two's complement magnitude: 2^n - v
		v.Sub(new(big.Int).Lsh(big.NewInt(1), uint(8*len(b))), v)
	}
	if v.BitLen() > 63 {
		return 0, fmt.Errorf("%w: binary field of %d bytes is too large", ErrFieldOverflow, len(b)+1)
	}
	if negative {
		return -v.Int64(), nil
	}
	return v.Int64(), nil
}

// formatUnsignedOctalString writes value as zero-padded octal digits filling b.
func formatUnsignedOctalString(value int64, b []byte) error {
	v := uint64(value)
	i := len(b) - 1
	if v == 0 && i >= 0 {
		b[i] = '0'
		i--
	}
	for ; i >= 0 && v != 0; i-- {
		b[i] = '0' + byte(v&7)
		v >>= 3
	}
	if v != 0 {
		return fmt.Errorf("%w: %d (octal %o) does not fit in %d digits", ErrFieldOverflow, value, uint64(value), len(b))
	}
	for ; i >= 0; i-- {
		b[i] = '0'
	}
	return nil
}

// formatOctalBytes writes digits followed by a space and a NUL.
func formatOctalBytes(value int64, b []byte) error {
	n := len(b) - 2
	if err := formatUnsignedOctalString(value, b[:n]); err != nil {
		return err
	}
	b[n] = ' '
	b[n+1] = 0
	return nil
}

// formatLongOctalBytes writes digits followed by a single space.
func formatLongOctalBytes(value int64, b []byte) error {
	n := len(b) - 1
	if err := formatUnsignedOctalString(value, b[:n]); err != nil {
		return err
	}
	b[n] = ' '
	return nil
}

// formatCheckSumOctalBytes writes digits followed by a NUL and a space.
func formatCheckSumOctalBytes(value int64, b []byte) error {
	n := len(b) - 2
	if err := formatUnsignedOctalString(value, b[:n]); err != nil {
		return err
	}
	b[n] = 0
	b[n+1] = ' '
	return nil
}

// fitsOctal reports whether value can be stored in octal in a field of
// length n whose last trailer bytes take trailer positions.
func fitsOctal(value int64, n, trailer int) bool {
	digits := n - trailer
	return value >= 0 && (digits >= 21 || value < int64(1)<<(3*uint(digits)))
}

// formatLongOctalOrBinaryBytes writes value in octal when it fits, and in the
// star/GNU base-256 form otherwise.
func formatLongOctalOrBinaryBytes(value int64, b []byte) error {
	if fitsOctal(value, len(b), 1) {
		return formatLongOctalBytes(value, b)
	}

	negative := value < 0
	if len(b) < 9 {
		bits := uint(8 * (len(b) - 1))
		limit := uint64(1) << bits
		mag := uint64(value)
		if negative {
			mag = uint64(-value)
		}
		if value == math.MinInt64 || mag >= limit {
			return fmt.Errorf("%w: %d does not fit in a %d byte binary field", ErrFieldOverflow, value, len(b))
		}
		v := mag
		if negative {
			v = ((mag ^ (limit - 1)) + 1) & (limit - 1)
		}
		for i := len(b) - 1; i > 0; i-- {
			b[i] = byte(v)
			v >>= 8
		}
	} else {
		fill := byte(0)
		if negative {
			fill = 0xff
		}
		for i := 1; i < len(b); i++ {
			b[i] = fill
		}
		v := uint64(value)
		for i := len(b) - 1; i >= len(b)-8; i-- {
			b[i] = byte(v)
			v >>= 8
		}
	}

	if negative {
		b[0] = 0xff
	} else {
		b[0] = 0x80
	}
	return nil
}
