// Copyright 2025 Lemon4ksan. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tar

import (
	"bytes"
	"fmt"
	"io/fs"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/afero"

	"github.com/lemon4ksan/goarchive/internal/sys"
)

// Type flags stored in the link flag byte of a header.
const (
	TypeOldNormal     byte = 0
	TypeNormal        byte = '0'
	TypeLink          byte = '1'
	TypeSymlink       byte = '2'
	TypeChar          byte = '3'
	TypeBlock         byte = '4'
	TypeDir           byte = '5'
	TypeFIFO          byte = '6'
	TypeContiguous    byte = '7'
	TypeXHeader       byte = 'x'
	TypeXGlobalHeader byte = 'g'
	TypeGNULongLink   byte = 'K'
	TypeGNULongName   byte = 'L'
	TypeGNUSparse     byte = 'S'
)

// Magic and version markers at offset 257.
const (
	MagicPOSIX   = "ustar\x00"
	VersionPOSIX = "00"
	MagicGNU     = "ustar "
	VersionGNU   = " \x00"
)

// GNULongLinkName is the name of the synthetic entry that carries a long
// file or link name.
const GNULongLinkName = "././@LongLink"

// Default modes of entries built from a bare name.
const (
	DefaultFileMode = 0100644
	DefaultDirMode  = 040755
)

// Header field layout. Every field is described by its offset and width.
const (
	HeaderSize = 512
	NameLen    = 100

	nameOff, nameLen         = 0, 100
	modeOff, modeLen         = 100, 8
	uidOff, uidLen           = 108, 8
	gidOff, gidLen           = 116, 8
	sizeOff, sizeLen         = 124, 12
	modTimeOff, modTimeLen   = 136, 12
	chksumOff, chksumLen     = 148, 8
	typeFlagOff              = 156
	linkNameOff, linkNameLen = 157, 100
	magicOff, magicLen       = 257, 6
	versionOff, versionLen   = 263, 2
	unameOff, unameLen       = 265, 32
	gnameOff, gnameLen       = 297, 32
	devMajorOff, devLen      = 329, 8
	devMinorOff              = 337
	prefixOff, prefixLen     = 345, 155
)

// Format identifies the header dialect an entry was read from.
type Format int

const (
	FormatV7 Format = iota
	FormatPOSIX
	FormatGNU
)

// String representation of Format for debugging
func (f Format) String() string {
	switch f {
	case FormatPOSIX:
		return "POSIX"
	case FormatGNU:
		return "GNU"
	}
	return "V7"
}

// BigNumberMode selects how numeric values too large for an octal field are written.
type BigNumberMode int

const (
	// BigNumberError rejects such values with ErrFieldOverflow.
	BigNumberError BigNumberMode = iota
	// BigNumberStar stores them in the star/GNU base-256 form.
	BigNumberStar
	// BigNumberPOSIX stores them in a pax extended header.
	BigNumberPOSIX
)

// Entry is the metadata of a single tar archive member.
type Entry struct {
	Name      string    // Path within the archive, using forward slashes
	Mode      int64     // Permission and file type bits
	UID       int64     // Numeric owner
	GID       int64     // Numeric group
	Size      int64     // Content length in bytes
	ModTime   time.Time // Modification time, second precision
	TypeFlag  byte      // Link flag
	LinkName  string    // Target of a hard or symbolic link
	Magic     string    // Format marker, see MagicPOSIX and MagicGNU
	Version   string    // Format version following the magic
	UserName  string
	GroupName string
	DevMajor  int64
	DevMinor  int64

	checksum int64
	format   Format
}

// NewEntry builds an entry from a bare name. A trailing slash makes the
// entry a directory.
func NewEntry(name string) *Entry {
	name = normalizeName(name)
	e := &Entry{
		Name:     name,
		Mode:     DefaultFileMode,
		TypeFlag: TypeNormal,
		ModTime:  time.Now().Truncate(time.Second),
		Magic:    MagicPOSIX,
		Version:  VersionPOSIX,
		format:   FormatPOSIX,
	}
	if strings.HasSuffix(name, "/") {
		e.Mode = DefaultDirMode
		e.TypeFlag = TypeDir
	}
	return e
}

// NewEntryWithFlag builds an entry from a name and an explicit link flag.
// GNU long-name markers carry the GNU magic.
func NewEntryWithFlag(name string, flag byte) *Entry {
	e := NewEntry(name)
	e.TypeFlag = flag
	if flag == TypeGNULongName || flag == TypeGNULongLink {
		e.Magic = MagicGNU
		e.Version = VersionGNU
		e.format = FormatGNU
	}
	return e
}

// NewEntryFromFileInfo builds an entry describing a file system object.
func NewEntryFromFileInfo(info fs.FileInfo, name string) *Entry {
	e := NewEntry(name)
	e.ModTime = info.ModTime().Truncate(time.Second)
	e.Mode = int64(sys.UnixMode(info.Mode()))

	switch m := info.Mode(); {
	case m.IsDir():
		e.TypeFlag = TypeDir
		if !strings.HasSuffix(e.Name, "/") {
			e.Name += "/"
		}
	case m&fs.ModeSymlink != 0:
		e.TypeFlag = TypeSymlink
	case m&fs.ModeNamedPipe != 0:
		e.TypeFlag = TypeFIFO
	case m&fs.ModeCharDevice != 0:
		e.TypeFlag = TypeChar
	case m&fs.ModeDevice != 0:
		e.TypeFlag = TypeBlock
	default:
		e.TypeFlag = TypeNormal
		e.Name = strings.TrimSuffix(e.Name, "/")
		e.Size = info.Size()
	}

	if uid, gid, ok := sys.FileOwner(info); ok {
		e.UID, e.GID = uid, gid
	}
	return e
}

// NewEntryFromFs stats path on fsys and builds an entry named name.
// Symbolic links are not followed when the file system can report them.
func NewEntryFromFs(fsys afero.Fs, filePath, name string) (*Entry, error) {
	var (
		info fs.FileInfo
		err  error
	)
	if lst, ok := fsys.(afero.Lstater); ok {
		info, _, err = lst.LstatIfPossible(filePath)
	} else {
		info, err = fsys.Stat(filePath)
	}
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", filePath, err)
	}

	e := NewEntryFromFileInfo(info, name)
	if e.IsSymlink() {
		lr, ok := fsys.(afero.LinkReader)
		if !ok {
			return nil, fmt.Errorf("read link %s: %w", filePath, afero.ErrNoReadlink)
		}
		target, err := lr.ReadlinkIfPossible(filePath)
		if err != nil {
			return nil, fmt.Errorf("read link %s: %w", filePath, err)
		}
		e.LinkName = filepath.ToSlash(target)
	}
	return e, nil
}

// ParseEntry parses a 512-byte header record.
func ParseEntry(header []byte) (*Entry, error) {
	e := &Entry{}
	if err := e.ParseHeader(header); err != nil {
		return nil, err
	}
	return e, nil
}

func normalizeName(name string) string {
	name = filepath.ToSlash(name)
	if vol := filepath.VolumeName(name); vol != "" {
		name = name[len(vol):]
	}
	return strings.TrimLeft(name, "/")
}

// Checksum returns the checksum stored in, or computed for, the last header
// this entry was parsed from or written to.
func (e *Entry) Checksum() int64 { return e.checksum }

// Format returns the header dialect of a parsed entry.
func (e *Entry) Format() Format { return e.format }

// IsDirectory reports whether the entry describes a directory.
func (e *Entry) IsDirectory() bool {
	return e.TypeFlag == TypeDir || strings.HasSuffix(e.Name, "/")
}

// IsFile reports whether the entry describes a regular file.
func (e *Entry) IsFile() bool {
	switch e.TypeFlag {
	case TypeNormal, TypeContiguous:
		return true
	case TypeOldNormal:
		return !strings.HasSuffix(e.Name, "/")
	}
	return false
}

func (e *Entry) IsSymlink() bool         { return e.TypeFlag == TypeSymlink }
func (e *Entry) IsLink() bool            { return e.TypeFlag == TypeLink }
func (e *Entry) IsCharDevice() bool      { return e.TypeFlag == TypeChar }
func (e *Entry) IsBlockDevice() bool     { return e.TypeFlag == TypeBlock }
func (e *Entry) IsFIFO() bool            { return e.TypeFlag == TypeFIFO }
func (e *Entry) IsGNULongName() bool     { return e.TypeFlag == TypeGNULongName }
func (e *Entry) IsGNULongLink() bool     { return e.TypeFlag == TypeGNULongLink }
func (e *Entry) IsGNUSparse() bool       { return e.TypeFlag == TypeGNUSparse }
func (e *Entry) IsPaxHeader() bool       { return e.TypeFlag == TypeXHeader }
func (e *Entry) IsGlobalPaxHeader() bool { return e.TypeFlag == TypeXGlobalHeader }

// WriteHeader serializes the entry into a 512-byte header record. Names longer
// than their field fail with ErrNameTooLong.
func (e *Entry) WriteHeader(buf []byte, bigNumbers BigNumberMode) error {
	return e.writeHeader(buf, bigNumbers, false)
}

func (e *Entry) writeHeader(buf []byte, bigNumbers BigNumberMode, truncate bool) error {
	if len(buf) < HeaderSize {
		return fmt.Errorf("%w: header buffer of %d bytes", ErrFormat, len(buf))
	}
	h := buf[:HeaderSize]
	clear(h)

	if err := formatName(h[nameOff:nameOff+nameLen], e.Name, "name", truncate); err != nil {
		return err
	}
	if err := formatName(h[linkNameOff:linkNameOff+linkNameLen], e.LinkName, "link name", truncate); err != nil {
		return err
	}

	fields := []struct {
		name  string
		value int64
		field []byte
		long  bool
		noPax bool
	}{
		{"mode", e.Mode, h[modeOff : modeOff+modeLen], false, true},
		{"user id", e.UID, h[uidOff : uidOff+uidLen], false, false},
		{"group id", e.GID, h[gidOff : gidOff+gidLen], false, false},
		{"size", e.Size, h[sizeOff : sizeOff+sizeLen], true, false},
		{"modification time", unixTime(e.ModTime), h[modTimeOff : modTimeOff+modTimeLen], true, false},
		{"major device number", e.DevMajor, h[devMajorOff : devMajorOff+devLen], false, false},
		{"minor device number", e.DevMinor, h[devMinorOff : devMinorOff+devLen], false, false},
	}
	for _, f := range fields {
		if err := writeNumeric(f.field, f.value, f.long, bigNumbers, f.noPax); err != nil {
			return fmt.Errorf("%s of %q: %w", f.name, e.Name, err)
		}
	}

	h[typeFlagOff] = e.TypeFlag
	magic, version := e.Magic, e.Version
	if magic == "" {
		magic, version = MagicPOSIX, VersionPOSIX
	}
	copy(h[magicOff:magicOff+magicLen], magic)
	copy(h[versionOff:versionOff+versionLen], version)
	copy(h[unameOff:unameOff+unameLen], e.UserName)
	copy(h[gnameOff:gnameOff+gnameLen], e.GroupName)

	unsigned, _ := checksum(h)
	if err := formatCheckSumOctalBytes(unsigned, h[chksumOff:chksumOff+chksumLen]); err != nil {
		return err
	}
	e.checksum = unsigned
	return nil
}

func unixTime(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Unix()
}

func formatName(field []byte, name, what string, truncate bool) error {
	if len(name) > len(field) && !truncate {
		return fmt.Errorf("%w: %s %q is %d bytes, limit %d", ErrNameTooLong, what, name, len(name), len(field))
	}
	copy(field, name)
	return nil
}

// writeNumeric formats a numeric field, falling back to the selected big
// number mode when the octal form does not fit.
func writeNumeric(field []byte, value int64, long bool, mode BigNumberMode, noPax bool) error {
	trailer := 2
	if long {
		trailer = 1
	}
	if fitsOctal(value, len(field), trailer) {
		if long {
			return formatLongOctalBytes(value, field)
		}
		return formatOctalBytes(value, field)
	}
	// One more digit fits when the NUL is dropped.
	if !long && fitsOctal(value, len(field), 1) {
		return formatLongOctalBytes(value, field)
	}
	switch {
	case mode == BigNumberStar:
		return formatLongOctalOrBinaryBytes(value, field)
	case mode == BigNumberPOSIX && !noPax:
		// the real value travels in a pax record
		if long {
			return formatLongOctalBytes(0, field)
		}
		return formatOctalBytes(0, field)
	}
	return fmt.Errorf("%w: %d exceeds the octal field", ErrFieldOverflow, value)
}

// ParseHeader fills the entry from a 512-byte header record, verifying its checksum.
func (e *Entry) ParseHeader(header []byte) error {
	if len(header) < HeaderSize {
		return fmt.Errorf("%w: header of %d bytes", ErrFormat, len(header))
	}
	h := header[:HeaderSize]

	stored, err := parseOctal(h[chksumOff : chksumOff+chksumLen])
	if err != nil {
		return fmt.Errorf("checksum field: %w", err)
	}
	unsigned, signed := checksum(h)
	if stored != unsigned && stored != signed {
		return fmt.Errorf("%w: stored %d, computed %d (signed %d)", ErrChecksum, stored, unsigned, signed)
	}

	*e = Entry{checksum: stored}
	e.Name = parseName(h[nameOff : nameOff+nameLen])

	numbers := []struct {
		name  string
		field []byte
		dst   *int64
	}{
		{"mode", h[modeOff : modeOff+modeLen], &e.Mode},
		{"uid", h[uidOff : uidOff+uidLen], &e.UID},
		{"gid", h[gidOff : gidOff+gidLen], &e.GID},
		{"size", h[sizeOff : sizeOff+sizeLen], &e.Size},
	}
	for _, n := range numbers {
		v, err := parseOctalOrBinary(n.field)
		if err != nil {
			return fmt.Errorf("%s field: %w", n.name, err)
		}
		*n.dst = v
	}
	if e.Size < 0 {
		return fmt.Errorf("%w: negative size %d", ErrFormat, e.Size)
	}
	mtime, err := parseOctalOrBinary(h[modTimeOff : modTimeOff+modTimeLen])
	if err != nil {
		return fmt.Errorf("mtime field: %w", err)
	}
	e.ModTime = time.Unix(mtime, 0)

	e.TypeFlag = h[typeFlagOff]
	e.LinkName = parseName(h[linkNameOff : linkNameOff+linkNameLen])

	magic := string(h[magicOff : magicOff+magicLen])
	switch magic {
	case MagicPOSIX:
		e.format = FormatPOSIX
	case MagicGNU:
		e.format = FormatGNU
	default:
		e.format = FormatV7
	}

	if e.format != FormatV7 {
		e.Magic = magic
		e.Version = string(h[versionOff : versionOff+versionLen])
		e.UserName = parseName(h[unameOff : unameOff+unameLen])
		e.GroupName = parseName(h[gnameOff : gnameOff+gnameLen])
		if e.DevMajor, err = parseOctalOrBinary(h[devMajorOff : devMajorOff+devLen]); err != nil {
			return fmt.Errorf("devmajor field: %w", err)
		}
		if e.DevMinor, err = parseOctalOrBinary(h[devMinorOff : devMinorOff+devLen]); err != nil {
			return fmt.Errorf("devminor field: %w", err)
		}
	}

	if e.TypeFlag == TypeDir && !strings.HasSuffix(e.Name, "/") {
		e.Name += "/"
	}
	// The GNU dialect reuses the prefix area for access times and sparse maps.
	if e.format == FormatPOSIX {
		if prefix := parseName(h[prefixOff : prefixOff+prefixLen]); prefix != "" {
			e.Name = prefix + "/" + e.Name
		}
	}
	return nil
}

func parseName(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(b)
}

// checksum sums the header bytes with the checksum field counted as spaces.
// Historic encoders disagree on signedness, so both sums are returned.
func checksum(header []byte) (unsigned, signed int64) {
	for i, c := range header {
		if i >= chksumOff && i < chksumOff+chksumLen {
			c = ' '
		}
		unsigned += int64(c)
		signed += int64(int8(c))
	}
	return unsigned, signed
}

// VerifyChecksum reports whether the stored checksum of a header record matches
// its contents.
func VerifyChecksum(header []byte) bool {
	if len(header) < HeaderSize {
		return false
	}
	stored, err := parseOctal(header[chksumOff : chksumOff+chksumLen])
	if err != nil {
		return false
	}
	unsigned, signed := checksum(header[:HeaderSize])
	return stored == unsigned || stored == signed
}

// FileInfo returns an fs.FileInfo describing the entry.
func (e *Entry) FileInfo() fs.FileInfo { return entryFileInfo{e} }

type entryFileInfo struct{ e *Entry }

func (fi entryFileInfo) Name() string {
	return path.Base(strings.TrimSuffix(fi.e.Name, "/"))
}

func (fi entryFileInfo) Size() int64        { return fi.e.Size }
func (fi entryFileInfo) ModTime() time.Time { return fi.e.ModTime }
func (fi entryFileInfo) IsDir() bool        { return fi.e.IsDirectory() }
func (fi entryFileInfo) Sys() any           { return fi.e }

func (fi entryFileInfo) Mode() fs.FileMode {
	mode := sys.FileMode(uint32(fi.e.Mode))
	if mode.Type() != 0 {
		return mode
	}
	switch fi.e.TypeFlag {
	case TypeDir:
		mode |= fs.ModeDir
	case TypeSymlink:
		mode |= fs.ModeSymlink
	case TypeChar:
		mode |= fs.ModeDevice | fs.ModeCharDevice
	case TypeBlock:
		mode |= fs.ModeDevice
	case TypeFIFO:
		mode |= fs.ModeNamedPipe
	}
	if fi.e.TypeFlag == TypeOldNormal && strings.HasSuffix(fi.e.Name, "/") {
		mode |= fs.ModeDir
	}
	return mode
}
