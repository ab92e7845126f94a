// Copyright 2025 Lemon4ksan. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package zip

import (
	"fmt"
	"hash/crc32"

	"github.com/lemon4ksan/goarchive/internal/sys"
)

// AsiHeaderID identifies the ASi Unix extra field.
const AsiHeaderID Short = 0x756e

// asiFixedLen counts crc, mode, link length, uid and gid.
const asiFixedLen = 4 + 2 + 4 + 2 + 2

// AsiExtraField stores Unix permissions, ownership and an optional
// symlink target, as written by Info-ZIP's ASi variant.
//
//	crc32     4 bytes  over the remaining payload
//	mode      2 bytes
//	linkLen   4 bytes
//	uid       2 bytes
//	gid       2 bytes
//	link      linkLen bytes
type AsiExtraField struct {
	mode    uint32
	uid     int
	gid     int
	link    string
	dirFlag bool
}

// NewAsiExtraField returns a field describing a regular file with no permissions.
func NewAsiExtraField() *AsiExtraField {
	return &AsiExtraField{mode: sys.S_IFREG}
}

func (a *AsiExtraField) HeaderID() Short { return AsiHeaderID }

func (a *AsiExtraField) LocalFileDataLength() Short {
	return Short(asiFixedLen + len(a.link))
}

func (a *AsiExtraField) LocalFileDataData() []byte {
	data := make([]byte, asiFixedLen+len(a.link))
	copy(data[4:6], Short(a.Mode()).Bytes())
	copy(data[6:10], Long(len(a.link)).Bytes())
	copy(data[10:12], Short(a.uid).Bytes())
	copy(data[12:14], Short(a.gid).Bytes())
	copy(data[asiFixedLen:], a.link)
	copy(data[0:4], Long(crc32.ChecksumIEEE(data[4:])).Bytes())
	return data
}

// The central directory carries the same payload.
func (a *AsiExtraField) CentralDirectoryLength() Short { return a.LocalFileDataLength() }
func (a *AsiExtraField) CentralDirectoryData() []byte  { return a.LocalFileDataData() }

func (a *AsiExtraField) ParseFromLocalFileData(data []byte) error {
	if len(data) < asiFixedLen {
		return fmt.Errorf("%w: asi extra field is %d bytes, need at least %d", ErrFormat, len(data), asiFixedLen)
	}
	want := LongFrom(data, 0)
	if got := Long(crc32.ChecksumIEEE(data[4:])); got != want {
		return fmt.Errorf("%w: bad CRC in asi extra field: got %v, stored %v", ErrFormat, got, want)
	}

	mode := uint32(ShortFrom(data, 4))
	linkLen := LongFrom(data, 6)
	if uint64(linkLen) > uint64(len(data)-asiFixedLen) {
		return fmt.Errorf("%w: asi link length %d exceeds payload", ErrFormat, linkLen)
	}
	a.uid = int(ShortFrom(data, 10))
	a.gid = int(ShortFrom(data, 12))
	a.link = string(data[asiFixedLen : asiFixedLen+int(linkLen)])
	a.dirFlag = mode&sys.S_IFDIR != 0
	a.SetMode(mode)
	return nil
}

// Mode returns the file type bits combined with the permission bits.
func (a *AsiExtraField) Mode() uint32 { return a.mode }

// SetMode keeps the permission bits of mode and derives the type bits
// from the link target and directory flag.
func (a *AsiExtraField) SetMode(mode uint32) {
	a.mode = a.typeBits() | mode&07777
}

func (a *AsiExtraField) typeBits() uint32 {
	switch {
	case a.IsLink():
		return sys.S_IFLNK
	case a.dirFlag:
		return sys.S_IFDIR
	}
	return sys.S_IFREG
}

func (a *AsiExtraField) UserID() int       { return a.uid }
func (a *AsiExtraField) SetUserID(uid int) { a.uid = uid }

func (a *AsiExtraField) GroupID() int       { return a.gid }
func (a *AsiExtraField) SetGroupID(gid int) { a.gid = gid }

// LinkedFile returns the symlink target, or "" for anything but a link.
func (a *AsiExtraField) LinkedFile() string { return a.link }

// SetLinkedFile sets the symlink target. An empty name makes the entry a
// regular file or directory again.
func (a *AsiExtraField) SetLinkedFile(name string) {
	a.link = name
	a.SetMode(a.mode)
}

func (a *AsiExtraField) IsLink() bool { return a.link != "" }

func (a *AsiExtraField) SetDirectory(dir bool) {
	a.dirFlag = dir
	a.SetMode(a.mode)
}

// IsDirectory reports whether the field describes a directory. A link
// is never a directory.
func (a *AsiExtraField) IsDirectory() bool { return a.dirFlag && !a.IsLink() }
