// Copyright 2025 Lemon4ksan. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package zip

import (
	"encoding/binary"
	"fmt"
)

// Short is a 2-byte little-endian ZIP value, such as an extra field header id.
type Short uint16

// Bytes returns the little-endian encoding of s.
func (s Short) Bytes() []byte {
	return binary.LittleEndian.AppendUint16(nil, uint16(s))
}

func (s Short) String() string { return fmt.Sprintf("%#04x", uint16(s)) }

// ShortFrom decodes the Short stored at off in b.
func ShortFrom(b []byte, off int) Short {
	return Short(binary.LittleEndian.Uint16(b[off:]))
}

// Long is a 4-byte little-endian ZIP value, such as a signature or a CRC.
type Long uint32

// Bytes returns the little-endian encoding of l.
func (l Long) Bytes() []byte {
	return binary.LittleEndian.AppendUint32(nil, uint32(l))
}

func (l Long) String() string { return fmt.Sprintf("%#08x", uint32(l)) }

// LongFrom decodes the Long stored at off in b.
func LongFrom(b []byte, off int) Long {
	return Long(binary.LittleEndian.Uint32(b[off:]))
}
