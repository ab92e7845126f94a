// Copyright 2025 Lemon4ksan. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package zip

import (
	"fmt"
	"hash/crc32"
)

// UnicodePathHeaderID identifies the Info-ZIP Unicode path field.
const UnicodePathHeaderID Short = 0x7075

const unicodePathVersion = 1

// UnicodePathExtraField carries the UTF-8 form of an entry name next to a
// CRC of the raw header name it stands for. Readers ignore it when the
// CRC no longer matches.
type UnicodePathExtraField struct {
	nameCRC uint32
	name    string
}

// NewUnicodePathExtraField builds the field for text, recording the CRC of
// the name bytes stored in the header.
func NewUnicodePathExtraField(text string, rawName []byte) *UnicodePathExtraField {
	return &UnicodePathExtraField{
		nameCRC: crc32.ChecksumIEEE(rawName),
		name:    text,
	}
}

func (u *UnicodePathExtraField) HeaderID() Short { return UnicodePathHeaderID }

func (u *UnicodePathExtraField) LocalFileDataLength() Short { return Short(5 + len(u.name)) }

func (u *UnicodePathExtraField) LocalFileDataData() []byte {
	data := make([]byte, 5, 5+len(u.name))
	data[0] = unicodePathVersion
	copy(data[1:5], Long(u.nameCRC).Bytes())
	return append(data, u.name...)
}

func (u *UnicodePathExtraField) CentralDirectoryLength() Short { return u.LocalFileDataLength() }
func (u *UnicodePathExtraField) CentralDirectoryData() []byte  { return u.LocalFileDataData() }

func (u *UnicodePathExtraField) ParseFromLocalFileData(data []byte) error {
	if len(data) < 5 {
		return fmt.Errorf("%w: unicode path field is %d bytes", ErrFormat, len(data))
	}
	if data[0] != unicodePathVersion {
		return fmt.Errorf("%w: unsupported unicode path version %d", ErrFormat, data[0])
	}
	u.nameCRC = uint32(LongFrom(data, 1))
	u.name = string(data[5:])
	return nil
}

// Name returns the UTF-8 entry name.
func (u *UnicodePathExtraField) Name() string { return u.name }

// NameCRC32 returns the CRC of the header name this field belongs to.
func (u *UnicodePathExtraField) NameCRC32() uint32 { return u.nameCRC }

// Matches reports whether the field still describes rawName.
func (u *UnicodePathExtraField) Matches(rawName []byte) bool {
	return crc32.ChecksumIEEE(rawName) == u.nameCRC
}
