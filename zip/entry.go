// Copyright 2025 Lemon4ksan. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package zip

import (
	"fmt"
	"io/fs"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/lemon4ksan/goarchive/internal/sys"
)

// Unset marks a size or CRC that is not known yet.
const Unset = -1

// External attribute bits understood by MS-DOS.
const (
	dosReadOnly  = 0x01
	dosDirectory = 0x10
)

// Entry describes one file of a ZIP archive. Extra fields are kept in
// insertion order with at most one field per header id; trailing bytes
// that could not be parsed are kept apart and written back last.
type Entry struct {
	name    string
	comment string
	method  Method
	modTime time.Time // zero until set

	size  int64 // uncompressed, Unset if unknown
	csize int64 // compressed, Unset if unknown
	crc   int64 // Unset if unknown

	internalAttrs uint16
	externalAttrs uint32
	platform      sys.HostSystem
	flags         uint16

	extra       []ExtraField
	unparseable *UnparseableExtraFieldData
	registry    *ExtraFieldRegistry

	// filled in by a Reader
	owner        *Reader
	headerOffset int64
	dataOffset   int64
}

// NewEntry returns an entry with the given name whose method, sizes and
// CRC are unset. Names ending in '/' denote directories.
func NewEntry(name string) *Entry {
	return &Entry{
		name:     name,
		method:   MethodUnset,
		size:     Unset,
		csize:    Unset,
		crc:      Unset,
		platform: sys.HostSystemFAT,
	}
}

// NewEntryFromFileInfo returns an entry for a file described by info.
// Directory names get a trailing slash. The Unix mode is recorded in the
// external attributes and, together with the owner when the platform
// exposes it, in an ASi extra field.
func NewEntryFromFileInfo(info fs.FileInfo, name string) *Entry {
	name = strings.TrimLeft(filepath.ToSlash(name), "/")
	if info.IsDir() && !strings.HasSuffix(name, "/") {
		name += "/"
	}
	e := NewEntry(name)
	e.modTime = info.ModTime()
	if info.Mode().IsRegular() {
		e.size = info.Size()
	}

	mode := sys.UnixMode(info.Mode())
	e.SetUnixMode(mode)

	asi := NewAsiExtraField()
	asi.SetDirectory(info.IsDir())
	asi.SetMode(mode)
	if uid, gid, ok := sys.FileOwner(info); ok {
		asi.SetUserID(int(uid))
		asi.SetGroupID(int(gid))
	}
	e.AddExtraField(asi)
	return e
}

// Name returns the file's path within the ZIP archive.
func (e *Entry) Name() string { return e.name }

// SetName renames the entry.
func (e *Entry) SetName(name string) { e.name = name }

// Comment returns the per-entry comment.
func (e *Entry) Comment() string { return e.comment }

func (e *Entry) SetComment(c string) { e.comment = c }

// Method returns the compression method, MethodUnset if none was chosen.
func (e *Entry) Method() Method { return e.method }

// SetMethod sets the compression method. Only Stored and Deflated can be
// written.
func (e *Entry) SetMethod(m Method) error {
	switch m {
	case Stored, Deflated, MethodUnset:
		e.method = m
		return nil
	}
	return fmt.Errorf("%w: %v", ErrAlgorithm, m)
}

// ModTime returns the last modification time. MS-DOS time keeps two
// second resolution, so a value read back may differ from the one set.
func (e *Entry) ModTime() time.Time { return e.modTime }

func (e *Entry) SetModTime(t time.Time) { e.modTime = t }

// Size returns the uncompressed size, or Unset.
func (e *Entry) Size() int64 { return e.size }

// SetSize declares the uncompressed size.
func (e *Entry) SetSize(n int64) error {
	if n < 0 {
		return fmt.Errorf("zip: invalid entry size %d", n)
	}
	e.size = n
	return nil
}

// CompressedSize returns the size of the data as stored, or Unset.
func (e *Entry) CompressedSize() int64 { return e.csize }

func (e *Entry) SetCompressedSize(n int64) { e.csize = n }

// CRC32 returns the CRC-32 of the uncompressed data, or Unset.
func (e *Entry) CRC32() int64 { return e.crc }

func (e *Entry) SetCRC32(crc uint32) { e.crc = int64(crc) }

func (e *Entry) InternalAttributes() uint16     { return e.internalAttrs }
func (e *Entry) SetInternalAttributes(a uint16) { e.internalAttrs = a }

func (e *Entry) ExternalAttributes() uint32     { return e.externalAttrs }
func (e *Entry) SetExternalAttributes(a uint32) { e.externalAttrs = a }

// Platform returns the system the attributes were written for.
func (e *Entry) Platform() sys.HostSystem { return e.platform }

// SetUnixMode stores Unix mode bits in the high half of the external
// attributes, keeping the MS-DOS read-only and directory bits in sync.
// The entry platform becomes Unix.
func (e *Entry) SetUnixMode(mode uint32) {
	attrs := mode << 16
	if mode&0200 == 0 {
		attrs |= dosReadOnly
	}
	if e.IsDir() {
		attrs |= dosDirectory
	}
	e.externalAttrs = attrs
	e.platform = sys.HostSystemUNIX
}

// UnixMode returns the Unix mode bits, or 0 for entries not made on Unix.
func (e *Entry) UnixMode() uint32 {
	if e.platform != sys.HostSystemUNIX {
		return 0
	}
	return e.externalAttrs >> 16 & 0xFFFF
}

// IsUnixSymlink reports whether the Unix mode marks a symbolic link.
func (e *Entry) IsUnixSymlink() bool {
	return e.UnixMode()&sys.S_IFMT == sys.S_IFLNK
}

// IsDir reports whether the entry is a directory.
func (e *Entry) IsDir() bool { return strings.HasSuffix(e.name, "/") }

// Mode maps the stored attributes onto an fs.FileMode.
func (e *Entry) Mode() fs.FileMode {
	var mode fs.FileMode
	if m := e.UnixMode(); m != 0 {
		mode = sys.FileMode(m)
	} else {
		mode = 0666
		if e.externalAttrs&dosReadOnly != 0 {
			mode = 0444
		}
		if e.externalAttrs&dosDirectory != 0 {
			mode |= 0111
		}
	}
	if e.IsDir() {
		mode |= fs.ModeDir
	}
	return mode
}

// FileInfo returns an fs.FileInfo describing the entry.
func (e *Entry) FileInfo() fs.FileInfo { return fileInfo{e} }

// SetExtraFields replaces every extra field of the entry.
func (e *Entry) SetExtraFields(fields []ExtraField) {
	e.extra = nil
	e.unparseable = nil
	for _, f := range fields {
		e.AddExtraField(f)
	}
}

// ExtraFields returns the extra fields in order. The unparseable tail is
// included last when includeUnparseable is set.
func (e *Entry) ExtraFields(includeUnparseable bool) []ExtraField {
	fields := make([]ExtraField, 0, len(e.extra)+1)
	fields = append(fields, e.extra...)
	if includeUnparseable && e.unparseable != nil {
		fields = append(fields, e.unparseable)
	}
	return fields
}

// ExtraField returns the field with the given header id, or nil.
func (e *Entry) ExtraField(id Short) ExtraField {
	if i := e.extraIndex(id); i >= 0 {
		return e.extra[i]
	}
	return nil
}

// UnparseableExtraFieldData returns the raw trailing extra bytes, or nil.
func (e *Entry) UnparseableExtraFieldData() *UnparseableExtraFieldData {
	return e.unparseable
}

// AddExtraField adds f, replacing in place any field with the same header id.
func (e *Entry) AddExtraField(f ExtraField) {
	if u, ok := f.(*UnparseableExtraFieldData); ok {
		e.unparseable = u
		return
	}
	if i := e.extraIndex(f.HeaderID()); i >= 0 {
		e.extra[i] = f
		return
	}
	e.extra = append(e.extra, f)
}

// AddAsFirstExtraField puts f ahead of every other field, dropping any
// field with the same header id.
func (e *Entry) AddAsFirstExtraField(f ExtraField) {
	if u, ok := f.(*UnparseableExtraFieldData); ok {
		e.unparseable = u
		return
	}
	if i := e.extraIndex(f.HeaderID()); i >= 0 {
		e.extra = append(e.extra[:i], e.extra[i+1:]...)
	}
	e.extra = append([]ExtraField{f}, e.extra...)
}

// RemoveExtraField drops the field with the given header id.
func (e *Entry) RemoveExtraField(id Short) error {
	i := e.extraIndex(id)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrNoSuchExtraField, id)
	}
	e.extra = append(e.extra[:i], e.extra[i+1:]...)
	return nil
}

// RemoveUnparseableExtraFieldData drops the raw trailing extra bytes.
func (e *Entry) RemoveUnparseableExtraFieldData() error {
	if e.unparseable == nil {
		return fmt.Errorf("%w: unparseable extra data", ErrNoSuchExtraField)
	}
	e.unparseable = nil
	return nil
}

// SetExtra parses extra as local file header data and merges the result
// into the existing fields. Malformed trailing bytes are kept raw.
func (e *Entry) SetExtra(extra []byte) error {
	fields, err := e.extraRegistry().Parse(extra, true, UnparseableRead)
	if err != nil {
		return err
	}
	return e.mergeExtraFields(fields, true)
}

// SetCentralDirectoryExtra parses extra as central directory data and
// merges the result into the existing fields.
func (e *Entry) SetCentralDirectoryExtra(extra []byte) error {
	fields, err := e.extraRegistry().Parse(extra, false, UnparseableRead)
	if err != nil {
		return err
	}
	return e.mergeExtraFields(fields, false)
}

// LocalFileDataExtra encodes the extra fields for a local file header.
func (e *Entry) LocalFileDataExtra() []byte {
	return MergeLocalFileDataData(e.ExtraFields(true))
}

// CentralDirectoryExtra encodes the extra fields for the central directory.
func (e *Entry) CentralDirectoryExtra() []byte {
	return MergeCentralDirectoryData(e.ExtraFields(true))
}

// SetRegistry selects the registry used by SetExtra and
// SetCentralDirectoryExtra.
func (e *Entry) SetRegistry(r *ExtraFieldRegistry) { e.registry = r }

func (e *Entry) extraRegistry() *ExtraFieldRegistry {
	if e.registry != nil {
		return e.registry
	}
	return defaultRegistry
}

func (e *Entry) extraIndex(id Short) int {
	for i, f := range e.extra {
		if f.HeaderID() == id {
			return i
		}
	}
	return -1
}

// mergeExtraFields folds parsed fields into the entry. Fields already
// present are re-parsed from the new payload so that a field can carry
// distinct local and central data.
func (e *Entry) mergeExtraFields(fields []ExtraField, local bool) error {
	if len(e.extra) == 0 && e.unparseable == nil {
		e.SetExtraFields(fields)
		return nil
	}
	for _, f := range fields {
		var existing ExtraField
		if _, ok := f.(*UnparseableExtraFieldData); ok {
			if e.unparseable != nil {
				existing = e.unparseable
			}
		} else {
			existing = e.ExtraField(f.HeaderID())
		}
		if existing == nil {
			e.AddExtraField(f)
			continue
		}

		var err error
		if cp, ok := existing.(CentralDirectoryParser); ok && !local {
			err = cp.ParseFromCentralDirectoryData(f.CentralDirectoryData())
		} else {
			err = existing.ParseFromLocalFileData(f.LocalFileDataData())
		}
		if err != nil {
			return fmt.Errorf("extra field %s: %w", f.HeaderID(), err)
		}
	}
	return nil
}

type fileInfo struct{ e *Entry }

func (i fileInfo) Name() string       { return path.Base(strings.TrimSuffix(i.e.name, "/")) }
func (i fileInfo) Size() int64        { return max(i.e.size, 0) }
func (i fileInfo) Mode() fs.FileMode  { return i.e.Mode() }
func (i fileInfo) ModTime() time.Time { return i.e.modTime }
func (i fileInfo) IsDir() bool        { return i.e.IsDir() }
func (i fileInfo) Sys() interface{}   { return i.e }
