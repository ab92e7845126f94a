// Copyright 2025 Lemon4ksan. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package zip

import (
	"bytes"
	"fmt"
	"hash"
	"hash/crc32"
	"io"
	"io/fs"
	"math"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/hashicorp/go-multierror"
	"github.com/klauspost/compress/flate"
	"github.com/scylladb/go-set/strset"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/lemon4ksan/goarchive/internal"
	"github.com/lemon4ksan/goarchive/internal/log"
	"github.com/lemon4ksan/goarchive/internal/sys"
)

// Version needed to extract.
const (
	versionStored   uint16 = 10
	versionDeflated uint16 = 20

	// versionMadeBy is the APPNOTE version recorded in the low byte
	// of "version made by".
	versionMadeBy uint16 = 20
)

// General purpose bit flags.
const (
	flagDataDescriptor uint16 = 0x0008
	flagUTF8           uint16 = 0x0800
)

// Writer writes a ZIP archive as a stream. Each entry is started with
// PutNextEntry, filled with Write and ended with CloseEntry; Close writes
// the central directory.
//
// When the destination is an io.WriteSeeker the CRC and sizes of each
// entry are patched into its local header and no data descriptor is
// written. Otherwise DEFLATED entries are followed by a data descriptor and
// STORED entries must declare their size and CRC up front.
type Writer struct {
	out    *byteCountWriter // archive offset relative to base
	seeker io.WriteSeeker   // nil unless seekable
	base   int64
	closer io.Closer
	opts   writerOptions
	log    logrus.FieldLogger

	entries []*zipHeaders
	names   *strset.Set

	cur      *zipHeaders
	crc      hash.Hash32
	data     *byteCountWriter // compressed bytes of cur
	deflater *flate.Writer
	written  int64 // uncompressed bytes of cur

	finished bool
	closed   bool
}

// NewWriter creates a Writer on top of w.
func NewWriter(w io.Writer, opts ...WriterOption) (*Writer, error) {
	o := writerOptions{
		method: Deflated,
		level:  DeflateNormal,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if len(o.comment) > math.MaxUint16 {
		return nil, ErrCommentTooLong
	}
	if o.method != Stored && o.method != Deflated {
		return nil, fmt.Errorf("%w: %v", ErrAlgorithm, o.method)
	}
	if o.level < flate.HuffmanOnly || o.level > flate.BestCompression {
		return nil, fmt.Errorf("zip: invalid compression level %d", o.level)
	}

	zw := &Writer{
		out:   &byteCountWriter{dest: w},
		opts:  o,
		log:   log.Or(o.logger),
		names: strset.New(),
		crc:   crc32.NewIEEE(),
	}
	if ws, ok := w.(io.WriteSeeker); ok {
		// Pipes and terminals implement Seek but fail on use.
		if pos, err := ws.Seek(0, io.SeekCurrent); err == nil {
			zw.seeker = ws
			zw.base = pos
		}
	}
	if c, ok := w.(io.Closer); ok {
		zw.closer = c
	}
	zw.log.WithField("seekable", zw.seeker != nil).Debug("zip: created writer")
	return zw, nil
}

// Seekable reports whether local headers are patched in place.
func (w *Writer) Seekable() bool { return w.seeker != nil }

// PutNextEntry writes the local header of e and makes it the current
// entry. An entry that is still open is closed first.
func (w *Writer) PutNextEntry(e *Entry) error {
	if w.finished {
		return ErrFinished
	}
	if w.cur != nil {
		if err := w.CloseEntry(); err != nil {
			return err
		}
	}

	if e.method == MethodUnset {
		e.method = w.opts.method
	}
	if e.modTime.IsZero() {
		e.modTime = time.Now()
	}
	if err := w.validate(e); err != nil {
		return err
	}
	if e.method == Stored && w.seeker == nil {
		if e.size == Unset || e.crc == Unset {
			return fmt.Errorf("%w: stored entry %q needs size and CRC before writing", ErrFormat, e.name)
		}
		e.csize = e.size
	}

	h := newZipHeaders(e, w.seeker != nil)
	h.offset = w.out.bytesWritten
	if h.offset > math.MaxUint32 {
		return fmt.Errorf("%w: local header offset %d", ErrTooLarge, h.offset)
	}
	if _, err := w.out.Write(h.LocalHeader().Encode()); err != nil {
		return fmt.Errorf("write local header: %w", err)
	}

	w.entries = append(w.entries, h)
	w.names.Add(e.name)
	w.cur = h
	w.crc.Reset()
	w.written = 0
	w.data = &byteCountWriter{dest: w.out}
	if e.method == Deflated {
		d, err := getDeflater(w.data, w.opts.level)
		if err != nil {
			return err
		}
		w.deflater = d
	}

	w.log.WithFields(logrus.Fields{
		"name":   e.name,
		"method": e.method,
		"offset": h.offset,
	}).Debug("zip: put entry")
	return nil
}

func (w *Writer) validate(e *Entry) error {
	if len(e.name) > math.MaxUint16 {
		return fmt.Errorf("%w: %d bytes", ErrFilenameTooLong, len(e.name))
	}
	if len(e.comment) > math.MaxUint16 {
		return fmt.Errorf("%w: entry %q", ErrCommentTooLong, e.name)
	}
	if n := len(e.LocalFileDataExtra()); n > math.MaxUint16 {
		return fmt.Errorf("%w: entry %q has %d bytes", ErrExtraFieldTooLong, e.name, n)
	}
	if n := len(e.CentralDirectoryExtra()); n > math.MaxUint16 {
		return fmt.Errorf("%w: entry %q has %d central bytes", ErrExtraFieldTooLong, e.name, n)
	}
	if e.method != Stored && e.method != Deflated {
		return fmt.Errorf("%w: %v", ErrAlgorithm, e.method)
	}
	if w.names.Has(e.name) {
		return fmt.Errorf("%w: %s", ErrDuplicateEntry, e.name)
	}
	return nil
}

// Write writes content of the current entry.
func (w *Writer) Write(p []byte) (n int, err error) {
	if w.finished {
		return 0, ErrFinished
	}
	if w.cur == nil {
		return 0, ErrNoEntry
	}
	if w.deflater != nil {
		n, err = w.deflater.Write(p)
	} else {
		n, err = w.data.Write(p)
	}
	w.crc.Write(p[:n])
	w.written += int64(n)
	return n, err
}

// CloseEntry completes the current entry. For STORED entries written to
// a non-seekable stream the data must match the declared CRC and size.
func (w *Writer) CloseEntry() error {
	if w.finished {
		return ErrFinished
	}
	h := w.cur
	if h == nil {
		return ErrNoEntry
	}
	w.cur = nil
	e := h.entry

	if w.deflater != nil {
		err := w.deflater.Close()
		putDeflater(w.deflater, w.opts.level)
		w.deflater = nil
		if err != nil {
			return fmt.Errorf("compress %s: %w", e.name, err)
		}
	}

	sum := int64(w.crc.Sum32())
	if e.method == Stored && w.seeker == nil {
		if sum != e.crc {
			return fmt.Errorf("%w: %w: entry %q: crc %#08x, declared %#08x",
				ErrSizeMismatch, ErrChecksum, e.name, sum, e.crc)
		}
		if w.written != e.size {
			return fmt.Errorf("%w: entry %q: wrote %d bytes, declared %d",
				ErrSizeMismatch, e.name, w.written, e.size)
		}
	}
	e.size = w.written
	e.csize = w.data.bytesWritten
	e.crc = sum
	if e.size > math.MaxUint32 || e.csize > math.MaxUint32 {
		return fmt.Errorf("%w: entry %q", ErrTooLarge, e.name)
	}

	switch {
	case w.seeker != nil:
		if err := w.updateLocalHeader(h); err != nil {
			return err
		}
	case h.flags&flagDataDescriptor != 0:
		dd := internal.DataDescriptor{
			CRC32:            uint32(e.crc),
			CompressedSize:   uint32(e.csize),
			UncompressedSize: uint32(e.size),
		}
		if _, err := w.out.Write(dd.Encode()); err != nil {
			return fmt.Errorf("write data descriptor: %w", err)
		}
	}

	w.log.WithFields(logrus.Fields{
		"name":       e.name,
		"size":       humanize.Bytes(uint64(e.size)),
		"compressed": humanize.Bytes(uint64(e.csize)),
	}).Debug("zip: closed entry")
	return nil
}

// updateLocalHeader writes the final CRC and sizes into the local header
// of h and returns to the end of the archive.
func (w *Writer) updateLocalHeader(h *zipHeaders) error {
	if _, err := w.seeker.Seek(w.base+h.offset+14, io.SeekStart); err != nil {
		return fmt.Errorf("seek to CRC position: %w", err)
	}

	buf := make([]byte, 0, 12)
	buf = append(buf, Long(h.entry.crc).Bytes()...)
	buf = append(buf, Long(h.entry.csize).Bytes()...)
	buf = append(buf, Long(h.entry.size).Bytes()...)

	if _, err := w.seeker.Write(buf); err != nil {
		return fmt.Errorf("write CRC and sizes: %w", err)
	}

	if _, err := w.seeker.Seek(w.base+w.out.bytesWritten, io.SeekStart); err != nil {
		return fmt.Errorf("seek to end of archive: %w", err)
	}
	return nil
}

// Finish closes the current entry and writes the central directory and
// end record. The trailer is written even when closing the entry fails,
// and that failure is still returned. Finish is idempotent.
func (w *Writer) Finish() error {
	if w.finished {
		return nil
	}

	var result *multierror.Error
	if w.cur != nil {
		if err := w.CloseEntry(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	w.finished = true

	cdOffset := w.out.bytesWritten
	var cd bytes.Buffer
	for _, h := range w.entries {
		cd.Write(h.CentralDirEntry().Encode())
	}
	if _, err := w.out.Write(cd.Bytes()); err != nil {
		return multierror.Append(result, fmt.Errorf("write central directory: %w", err))
	}

	if len(w.entries) > math.MaxUint16 || cdOffset > math.MaxUint32 || cd.Len() > math.MaxUint32 {
		return multierror.Append(result, fmt.Errorf("%w: %d entries, central directory at %d",
			ErrTooLarge, len(w.entries), cdOffset))
	}
	end := internal.EncodeEndOfCentralDirRecord(
		uint16(len(w.entries)),
		uint32(cd.Len()),
		uint32(cdOffset),
		w.opts.comment,
	)
	if _, err := w.out.Write(end); err != nil {
		return multierror.Append(result, fmt.Errorf("write end of central directory: %w", err))
	}

	w.log.WithFields(logrus.Fields{
		"entries": len(w.entries),
		"size":    humanize.Bytes(uint64(w.out.bytesWritten)),
	}).Debug("zip: finished archive")
	return result.ErrorOrNil()
}

// Close finishes the archive and closes the destination if it is an
// io.Closer.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true

	var result *multierror.Error
	if err := w.Finish(); err != nil {
		result = multierror.Append(result, err)
	}
	if w.closer != nil {
		if err := w.closer.Close(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

// AddFromFs writes the file at filePath on fsys as an entry named name.
// Directories get a trailing slash, symbolic links store their target as
// content, and Unix permissions and ownership go into an ASi extra field.
func (w *Writer) AddFromFs(fsys afero.Fs, filePath, name string) error {
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
		return fmt.Errorf("stat %s: %w", filePath, err)
	}

	e := NewEntryFromFileInfo(info, name)
	var content io.Reader
	switch {
	case info.IsDir():
		e.method = Stored
		e.size, e.crc = 0, 0

	case info.Mode()&fs.ModeSymlink != 0:
		lr, ok := fsys.(afero.LinkReader)
		if !ok {
			return fmt.Errorf("read link %s: %w", filePath, afero.ErrNoReadlink)
		}
		target, err := lr.ReadlinkIfPossible(filePath)
		if err != nil {
			return fmt.Errorf("read link %s: %w", filePath, err)
		}
		target = filepath.ToSlash(target)
		if asi, ok := e.ExtraField(AsiHeaderID).(*AsiExtraField); ok {
			asi.SetLinkedFile(target)
		}
		e.size = int64(len(target))
		e.crc = int64(crc32.ChecksumIEEE([]byte(target)))
		content = strings.NewReader(target)

	default:
		f, err := fsys.Open(filePath)
		if err != nil {
			return fmt.Errorf("open %s: %w", filePath, err)
		}
		defer log.CloseAndLogError(f, filePath)

		if (e.method == Stored || e.method == MethodUnset && w.opts.method == Stored) && w.seeker == nil {
			hasher := crc32.NewIEEE()
			if _, err := io.Copy(hasher, f); err != nil {
				return fmt.Errorf("checksum %s: %w", filePath, err)
			}
			if _, err := f.Seek(0, io.SeekStart); err != nil {
				return fmt.Errorf("rewind %s: %w", filePath, err)
			}
			e.crc = int64(hasher.Sum32())
		}
		content = f
	}

	if err := w.PutNextEntry(e); err != nil {
		return err
	}
	if content != nil {
		if _, err := io.Copy(w, content); err != nil {
			return fmt.Errorf("copy %s: %w", filePath, err)
		}
	}
	return w.CloseEntry()
}

// zipHeaders is responsible for generating ZIP format headers for an entry
// written by this Writer.
type zipHeaders struct {
	entry   *Entry
	offset  int64 // of the local header, relative to the archive start
	version uint16
	flags   uint16
	zeroed  bool // local header carries placeholder CRC and sizes
}

func newZipHeaders(e *Entry, seekable bool) *zipHeaders {
	h := &zipHeaders{entry: e, version: versionStored}
	if e.method == Deflated {
		h.version = versionDeflated
		h.zeroed = true
		if !seekable {
			h.flags |= flagDataDescriptor
		}
	}
	if seekable {
		h.zeroed = true
	}
	if !isASCII(e.name) || !isASCII(e.comment) {
		h.flags |= flagUTF8
	}
	return h
}

// LocalHeader generates the local file header that precedes the file data.
func (h *zipHeaders) LocalHeader() internal.LocalFileHeader {
	e := h.entry
	dosDate, dosTime := timeToMsDos(e.modTime)
	extra := e.LocalFileDataExtra()

	lh := internal.LocalFileHeader{
		VersionNeededToExtract: h.version,
		GeneralPurposeBitFlag:  h.flags,
		CompressionMethod:      uint16(e.method),
		LastModFileTime:        dosTime,
		LastModFileDate:        dosDate,
		FilenameLength:         uint16(len(e.name)),
		ExtraFieldLength:       uint16(len(extra)),
		Filename:               e.name,
		ExtraField:             extra,
	}
	if !h.zeroed {
		lh.CRC32 = uint32(e.crc)
		lh.CompressedSize = uint32(e.size)
		lh.UncompressedSize = uint32(e.size)
	}
	return lh
}

// CentralDirEntry generates the central directory entry for this file.
func (h *zipHeaders) CentralDirEntry() internal.CentralDirectory {
	e := h.entry
	dosDate, dosTime := timeToMsDos(e.modTime)
	extra := e.CentralDirectoryExtra()

	return internal.CentralDirectory{
		VersionMadeBy:          uint16(h.platform())<<8 | versionMadeBy,
		VersionNeededToExtract: h.version,
		GeneralPurposeBitFlag:  h.flags,
		CompressionMethod:      uint16(e.method),
		LastModFileTime:        dosTime,
		LastModFileDate:        dosDate,
		CRC32:                  uint32(max(e.crc, 0)),
		CompressedSize:         uint32(max(e.csize, 0)),
		UncompressedSize:       uint32(max(e.size, 0)),
		FilenameLength:         uint16(len(e.name)),
		ExtraFieldLength:       uint16(len(extra)),
		FileCommentLength:      uint16(len(e.comment)),
		DiskNumberStart:        0,
		InternalFileAttributes: e.internalAttrs,
		ExternalFileAttributes: e.externalAttrs,
		LocalHeaderOffset:      uint32(h.offset),
		Filename:               e.name,
		ExtraField:             extra,
		Comment:                e.comment,
	}
}

func (h *zipHeaders) platform() sys.HostSystem {
	if h.entry.platform == sys.HostSystemUNIX {
		return sys.HostSystemUNIX
	}
	return sys.HostSystemFAT
}
