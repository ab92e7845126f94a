// Copyright 2025 Lemon4ksan. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package zip

import (
	"bytes"
	"errors"
	"fmt"
	"hash"
	"hash/crc32"
	"io"
	"math"
	"strings"
	"sync"

	"github.com/bmatcuk/doublestar/v2"
	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/lemon4ksan/goarchive/internal"
	"github.com/lemon4ksan/goarchive/internal/log"
	"github.com/lemon4ksan/goarchive/internal/sys"
)

// scanChunkLen is the read size of the linear central directory search.
const scanChunkLen = 32 * 1024

// Reader provides random access to the entries of a ZIP archive.
// Entry streams may be read concurrently; reads of the shared source are
// serialized.
type Reader struct {
	src    *lockedReaderAt
	size   int64
	base   int64 // where the archive starts within src
	closer io.Closer
	opts   readerOptions
	log    logrus.FieldLogger

	entries []*Entry
	byName  map[string]*Entry
	comment string
}

// NewReader reads the central directory of the archive held in r, which
// is size bytes long.
func NewReader(r io.ReaderAt, size int64, opts ...ReaderOption) (*Reader, error) {
	o := readerOptions{strategy: ScanLinear}
	for _, opt := range opts {
		opt(&o)
	}
	if o.registry == nil {
		o.registry = defaultRegistry
	}

	zr := &Reader{
		src:    &lockedReaderAt{r: r},
		size:   size,
		opts:   o,
		log:    log.Or(o.logger),
		byName: make(map[string]*Entry),
	}
	if err := zr.init(); err != nil {
		return nil, err
	}
	return zr, nil
}

// OpenFile opens the archive stored at path on fsys. Closing the Reader
// closes the file.
func OpenFile(fsys afero.Fs, path string, opts ...ReaderOption) (*Reader, error) {
	f, err := fsys.Open(path)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		log.CloseAndLogError(f, path)
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	r, err := NewReader(f, info.Size(), opts...)
	if err != nil {
		log.CloseAndLogError(f, path)
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	r.closer = f
	return r, nil
}

func (r *Reader) init() error {
	var (
		cdStart int64
		err     error
	)
	switch r.opts.strategy {
	case ScanEndOfCentralDirectory:
		cdStart, err = r.locateFromEnd()
	default:
		cdStart, err = r.locateLinear()
	}
	if err != nil {
		return err
	}

	if err := r.readCentralDir(cdStart); err != nil {
		return err
	}
	for _, e := range r.entries {
		if err := r.readLocalHeader(e); err != nil {
			return err
		}
	}

	r.log.WithFields(logrus.Fields{
		"entries":  len(r.entries),
		"strategy": r.opts.strategy,
		"size":     humanize.Bytes(uint64(r.size)),
	}).Debug("zip: opened archive")
	return nil
}

// locateLinear returns the offset of the first central directory header,
// searching forward from the start of the source. Stored entries may hold
// nested archives, so a match only counts when the headers from there
// run up to this archive's end record and fill the size it declares.
// When no match passes, or there is no end record, the first match is
// used. An archive without entries has no header; its end record is
// accepted instead.
func (r *Reader) locateLinear() (int64, error) {
	end, endPos, endErr := r.findEndOfCentralDir()
	sig := Long(internal.CentralDirectorySignature).Bytes()

	first := int64(-1)
	for from := int64(0); ; {
		pos, err := r.scanForward(sig, from)
		if err != nil {
			return 0, err
		}
		if pos < 0 {
			break
		}
		if endErr != nil {
			return pos, nil
		}
		if endPos-pos == int64(end.CentralDirSize) && r.centralDirEnd(pos) == endPos {
			return pos, nil
		}
		if first < 0 {
			first = pos
		}
		r.log.WithField("offset", pos).Trace("zip: signature does not start the central directory")
		from = pos + 1
	}
	if first >= 0 {
		return first, nil
	}

	if endErr == nil && end.TotalNumberOfEntries == 0 {
		return endPos, nil
	}
	return 0, fmt.Errorf("%w: no central directory header found", ErrFormat)
}

// centralDirEnd walks the central directory headers starting at pos and
// returns the offset just past the last one, or -1 if one is malformed.
func (r *Reader) centralDirEnd(pos int64) int64 {
	sr := io.NewSectionReader(r.src, pos, r.size-pos)
	want := Long(internal.CentralDirectorySignature)
	for {
		off, _ := sr.Seek(0, io.SeekCurrent)
		var buf [4]byte
		if _, err := io.ReadFull(sr, buf[:]); err != nil || LongFrom(buf[:], 0) != want {
			return pos + off
		}
		if _, err := internal.ReadCentralDirEntry(sr); err != nil {
			return -1
		}
	}
}

// scanForward returns the offset of the first occurrence of sig at or
// after from, or -1.
func (r *Reader) scanForward(sig []byte, from int64) (int64, error) {
	buf := make([]byte, scanChunkLen)
	for pos := from; pos < r.size; {
		n, err := r.src.ReadAt(buf[:min(int64(len(buf)), r.size-pos)], pos)
		if err != nil && !errors.Is(err, io.EOF) {
			return 0, fmt.Errorf("read at %d: %w", pos, err)
		}
		if i := bytes.Index(buf[:n], sig); i >= 0 {
			return pos + int64(i), nil
		}
		if n < len(sig) {
			break
		}
		// Overlap so that a signature across chunks is not missed.
		pos += int64(n - len(sig) + 1)
	}
	return -1, nil
}

// locateFromEnd follows the end record to the central directory.
func (r *Reader) locateFromEnd() (int64, error) {
	end, endPos, err := r.findEndOfCentralDir()
	if err != nil {
		return 0, err
	}
	cdStart := endPos - int64(end.CentralDirSize)
	if cdStart < 0 {
		return 0, fmt.Errorf("%w: central directory size %d exceeds archive", ErrFormat, end.CentralDirSize)
	}
	return cdStart, nil
}

// findEndOfCentralDir searches backwards from the end of the source for
// the end of central directory record.
func (r *Reader) findEndOfCentralDir() (internal.EndOfCentralDirectory, int64, error) {
	var end internal.EndOfCentralDirectory
	if r.size < internal.EndOfCentralDirLen {
		return end, 0, fmt.Errorf("%w: file too small", ErrFormat)
	}

	tailLen := min(r.size, math.MaxUint16+internal.EndOfCentralDirLen)
	tail := make([]byte, tailLen)
	n, err := r.src.ReadAt(tail, r.size-tailLen)
	if err != nil && !errors.Is(err, io.EOF) {
		return end, 0, fmt.Errorf("read end of archive: %w", err)
	}
	tail = tail[:n]

	for p := len(tail) - internal.EndOfCentralDirLen; p >= 0; p-- {
		if LongFrom(tail, p) != Long(internal.EndOfCentralDirSignature) {
			continue
		}
		end, err := internal.ReadEndOfCentralDir(bytes.NewReader(tail[p+4:]))
		if err != nil {
			continue
		}
		return end, r.size - tailLen + int64(p), nil
	}
	return end, 0, fmt.Errorf("%w: no end of central directory signature found", ErrFormat)
}

// readCentralDir decodes consecutive central directory headers starting
// at cdStart until a different signature follows.
func (r *Reader) readCentralDir(cdStart int64) error {
	cdReader := io.NewSectionReader(r.src, cdStart, r.size-cdStart)

	var sig Long
	for {
		var buf [4]byte
		if _, err := io.ReadFull(cdReader, buf[:]); err != nil {
			sig = 0
			break
		}
		sig = LongFrom(buf[:], 0)
		if sig != Long(internal.CentralDirectorySignature) {
			break
		}

		cd, err := internal.ReadCentralDirEntry(cdReader)
		if err != nil {
			return fmt.Errorf("%w: decode central dir entry %d: %v", ErrFormat, len(r.entries), err)
		}
		e, err := r.newEntryFromCentralDir(cd)
		if err != nil {
			return err
		}
		r.entries = append(r.entries, e)
		r.byName[e.name] = e
	}

	cdLen := cdReader.Size()
	if sig == Long(internal.EndOfCentralDirSignature) {
		pos, _ := cdReader.Seek(0, io.SeekCurrent)
		end, err := internal.ReadEndOfCentralDir(cdReader)
		if err != nil {
			r.log.WithError(err).Debug("zip: unreadable end of central directory")
			return nil
		}
		r.comment = end.Comment
		cdLen = pos - 4

		// Offsets are relative to the archive start, which a prefix moves.
		if base := cdStart - int64(end.CentralDirOffset); base > 0 && int64(end.CentralDirSize) == cdLen {
			r.base = base
		}
	}
	r.log.WithFields(logrus.Fields{
		"offset": cdStart,
		"base":   r.base,
	}).Trace("zip: read central directory")
	return nil
}

func (r *Reader) newEntryFromCentralDir(cd internal.CentralDirectory) (*Entry, error) {
	e := NewEntry(cd.Filename)
	e.platform = sys.HostSystem(cd.VersionMadeBy>>8&0x0F)
	e.method = Method(cd.CompressionMethod)
	e.flags = cd.GeneralPurposeBitFlag
	e.modTime = msDosToTime(cd.LastModFileDate, cd.LastModFileTime)
	e.crc = int64(cd.CRC32)
	e.csize = int64(cd.CompressedSize)
	e.size = int64(cd.UncompressedSize)
	e.internalAttrs = cd.InternalFileAttributes
	e.externalAttrs = cd.ExternalFileAttributes
	e.comment = cd.Comment
	e.headerOffset = int64(cd.LocalHeaderOffset)
	e.registry = r.opts.registry
	e.owner = r

	if err := e.SetCentralDirectoryExtra(cd.ExtraField); err != nil {
		return nil, fmt.Errorf("entry %q: %w", e.name, err)
	}
	return e, nil
}

// readLocalHeader merges the local extra field into e and records where
// its data starts. Local headers may carry other extra bytes than the
// central directory.
func (r *Reader) readLocalHeader(e *Entry) error {
	offset := r.base + e.headerOffset
	nameLen, extraLen, err := internal.ReadLocalFileHeaderLengths(r.src, offset)
	if err != nil {
		return fmt.Errorf("%w: entry %q: %v", ErrFormat, e.name, err)
	}

	extraStart := offset + internal.LocalFileHeaderLen + int64(nameLen)
	if extraLen > 0 {
		extra := make([]byte, extraLen)
		if _, err := r.src.ReadAt(extra, extraStart); err != nil {
			return fmt.Errorf("%w: entry %q: read local extra: %v", ErrFormat, e.name, err)
		}
		if err := e.SetExtra(extra); err != nil {
			return fmt.Errorf("entry %q: %w", e.name, err)
		}
	}
	e.dataOffset = extraStart + int64(extraLen)
	return nil
}

// Entries returns the entries in central directory order.
func (r *Reader) Entries() []*Entry {
	entries := make([]*Entry, len(r.entries))
	copy(entries, r.entries)
	return entries
}

// Entry returns the entry with the given name, or nil.
func (r *Reader) Entry(name string) *Entry { return r.byName[name] }

// Glob returns the entries whose names match pattern. Patterns use
// doublestar syntax, so "**" crosses directories. Directory entries
// match without their trailing slash.
func (r *Reader) Glob(pattern string) ([]*Entry, error) {
	if !hasMeta(pattern) {
		if e := r.Entry(pattern); e != nil {
			return []*Entry{e}, nil
		}
		if e := r.Entry(pattern + "/"); e != nil {
			return []*Entry{e}, nil
		}
		return nil, nil
	}

	var matches []*Entry
	for _, e := range r.entries {
		ok, err := doublestar.Match(pattern, strings.TrimSuffix(e.name, "/"))
		if err != nil {
			return nil, fmt.Errorf("glob %q: %w", pattern, err)
		}
		if ok {
			matches = append(matches, e)
		}
	}
	return matches, nil
}

// Comment returns the archive comment.
func (r *Reader) Comment() string { return r.comment }

// Open returns a stream of the uncompressed content of e. The CRC and
// size are verified when the stream reaches its end.
func (r *Reader) Open(e *Entry) (io.ReadCloser, error) {
	if e == nil || e.owner != r {
		return nil, ErrFileNotFound
	}

	data := io.NewSectionReader(r.src, e.dataOffset, e.csize)
	var rc io.ReadCloser
	switch e.method {
	case Stored:
		rc = io.NopCloser(data)
	case Deflated:
		rc = newInflater(data)
	default:
		return nil, fmt.Errorf("%w: %v in entry %q", ErrAlgorithm, e.method, e.name)
	}

	r.log.WithFields(logrus.Fields{
		"name": e.name,
		"size": humanize.Bytes(uint64(e.size)),
	}).Debug("zip: open entry")
	return &checksumReader{
		rc:   rc,
		hash: crc32.NewIEEE(),
		want: uint32(e.crc),
		size: e.size,
		name: e.name,
	}, nil
}

// Close closes the file opened by OpenFile. It does nothing for a Reader
// made with NewReader.
func (r *Reader) Close() error {
	if r.closer == nil {
		return nil
	}
	c := r.closer
	r.closer = nil
	return c.Close()
}

// lockedReaderAt serializes access to a shared source.
type lockedReaderAt struct {
	mu sync.Mutex
	r  io.ReaderAt
}

func (l *lockedReaderAt) ReadAt(p []byte, off int64) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.r.ReadAt(p, off)
}

// checksumReader wraps an io.ReadCloser to verify CRC32 checksum and size during reading.
type checksumReader struct {
	rc   io.ReadCloser
	hash hash.Hash32
	want uint32
	read int64
	size int64
	name string
}

// Read implements io.Reader interface while calculating CRC32 and tracking bytes read.
// At the end of the stream a short read or a checksum mismatch is reported instead of io.EOF.
func (cr *checksumReader) Read(p []byte) (int, error) {
	n, err := cr.rc.Read(p)
	if n > 0 {
		cr.read += int64(n)
		if cr.read > cr.size {
			return n, fmt.Errorf("%w: entry %q is longer than %d bytes", ErrSizeMismatch, cr.name, cr.size)
		}
		cr.hash.Write(p[:n])
	}
	if errors.Is(err, io.EOF) {
		if cr.read != cr.size {
			return n, fmt.Errorf("%w: entry %q: read %d, want %d", ErrSizeMismatch, cr.name, cr.read, cr.size)
		}
		if got := cr.hash.Sum32(); got != cr.want {
			return n, fmt.Errorf("%w: entry %q: got %#08x, want %#08x", ErrChecksum, cr.name, got, cr.want)
		}
	}
	return n, err
}

func (cr *checksumReader) Close() error { return cr.rc.Close() }
