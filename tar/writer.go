// Copyright 2025 Lemon4ksan. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tar

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/lemon4ksan/goarchive/internal/log"
)

// maxOctalSize is the largest value an 11-digit octal field can hold.
const maxOctalSize = 077777777777

// Writer writes a tar archive. Each entry is started with PutNextEntry,
// filled with Write and ended with CloseEntry; Close finishes the archive.
type Writer struct {
	buf  *Buffer
	opts options
	log  logrus.FieldLogger

	record   []byte // header scratch record
	assem    []byte // partial content record
	assemLen int

	cur      *Entry
	size     int64 // declared size of cur
	written  int64 // content bytes accepted for cur
	open     bool
	finished bool
}

// NewWriter creates a Writer on top of w.
func NewWriter(w io.Writer, opts ...Option) (*Writer, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	buf, err := NewWriteBuffer(w, o.blockSize, o.recordSize)
	if err != nil {
		return nil, err
	}
	l := log.Or(o.logger)
	buf.SetLogger(l)
	return &Writer{
		buf:    buf,
		opts:   o,
		log:    l,
		record: make([]byte, o.recordSize),
		assem:  make([]byte, o.recordSize),
	}, nil
}

// RecordSize returns the record size of the underlying Buffer.
func (w *Writer) RecordSize() int { return w.buf.RecordSize() }

// PutNextEntry closes any open entry and writes the header of e.
// Long names and oversized numbers are handled according to the
// configured LongFileMode and BigNumberMode.
func (w *Writer) PutNextEntry(e *Entry) error {
	if w.finished {
		return ErrFinished
	}
	if w.open {
		if err := w.CloseEntry(); err != nil {
			return err
		}
	}
	if w.buf.RecordSize() < HeaderSize {
		return fmt.Errorf("%w: record size %d cannot hold a header", ErrBlocking, w.buf.RecordSize())
	}

	if e.IsDirectory() {
		e.Size = 0
	}

	pax := make(map[string]string)
	if err := w.handleLongName(e, e.Name, pax, paxPath, TypeGNULongName, "name"); err != nil {
		return err
	}
	if e.LinkName != "" {
		if err := w.handleLongName(e, e.LinkName, pax, paxLinkpath, TypeGNULongLink, "link name"); err != nil {
			return err
		}
	}
	if w.opts.bigNumberMode == BigNumberPOSIX {
		addPaxHeadersForBigNumbers(pax, e)
	}
	if len(pax) > 0 {
		if err := w.writePaxHeaders(e, pax); err != nil {
			return err
		}
	}

	// Long names were dealt with above, the header keeps what fits.
	if err := e.writeHeader(w.record, w.opts.bigNumberMode, true); err != nil {
		return err
	}
	if err := w.buf.WriteRecord(w.record); err != nil {
		return err
	}

	w.cur = e
	w.written = 0
	w.size = e.Size
	w.open = true
	w.log.WithFields(logrus.Fields{
		"name": e.Name,
		"size": humanize.Bytes(uint64(w.size)),
	}).Debug("tar: put entry")
	return nil
}

// handleLongName applies the long file mode to a name or link name that
// does not fit its header field.
func (w *Writer) handleLongName(e *Entry, name string, pax map[string]string, paxKey string, flag byte, what string) error {
	if len(name) <= NameLen {
		return nil
	}
	switch w.opts.longFileMode {
	case LongFilePOSIX:
		pax[paxKey] = name
	case LongFileGNU:
		marker := NewEntryWithFlag(GNULongLinkName, flag)
		marker.ModTime = transferModTime(e)
		data := append([]byte(name), 0)
		if err := w.writeSpecial(marker, data); err != nil {
			return fmt.Errorf("write long %s entry: %w", what, err)
		}
	case LongFileTruncate:
		w.log.WithField("name", name).Debug("tar: truncating long " + what)
	default:
		return fmt.Errorf("%w: %s %q is %d bytes, limit %d", ErrNameTooLong, what, name, len(name), NameLen)
	}
	return nil
}

// writePaxHeaders emits a pax extended header entry carrying headers.
func (w *Writer) writePaxHeaders(e *Entry, headers map[string]string) error {
	name := "./PaxHeaders.X/" + stripTo7Bits(e.Name)
	if len(name) >= NameLen {
		name = name[:NameLen-1]
	}
	// a trailing slash would turn the header entry into a directory
	name = strings.TrimRight(name, "/")

	marker := NewEntryWithFlag(name, TypeXHeader)
	marker.ModTime = transferModTime(e)
	if err := w.writeSpecial(marker, formatPaxRecords(headers)); err != nil {
		return fmt.Errorf("write pax header: %w", err)
	}
	return nil
}

func (w *Writer) writeSpecial(marker *Entry, data []byte) error {
	marker.Size = int64(len(data))
	if err := w.PutNextEntry(marker); err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		return err
	}
	return w.CloseEntry()
}

func addPaxHeadersForBigNumbers(pax map[string]string, e *Entry) {
	add := func(key string, value int64, n, trailer int) {
		if !fitsOctal(value, n, trailer) {
			pax[key] = strconv.FormatInt(value, 10)
		}
	}
	add(paxSize, e.Size, sizeLen, 1)
	add(paxGID, e.GID, gidLen, 1)
	add(paxMtime, unixTime(e.ModTime), modTimeLen, 1)
	add(paxUID, e.UID, uidLen, 1)
	add(paxDevMajor, e.DevMajor, devLen, 1)
	add(paxDevMinor, e.DevMinor, devLen, 1)
}

func transferModTime(e *Entry) time.Time {
	if sec := unixTime(e.ModTime); sec < 0 || sec > maxOctalSize {
		return time.Unix(0, 0)
	}
	return e.ModTime
}

func stripTo7Bits(name string) string {
	var b strings.Builder
	for i := 0; i < len(name); i++ {
		if c := name[i] & 0x7f; c != 0 {
			b.WriteByte(c)
		}
	}
	return b.String()
}

// Write writes content for the current entry. Writing past the size
// declared in the header fails with ErrWriteTooLong.
func (w *Writer) Write(p []byte) (int, error) {
	if w.finished {
		return 0, ErrFinished
	}
	if !w.open {
		return 0, ErrNoEntry
	}
	if w.written+int64(len(p)) > w.size {
		return 0, fmt.Errorf("%w: %d bytes on top of %d exceed %d declared for %q",
			ErrWriteTooLong, len(p), w.written, w.size, w.cur.Name)
	}

	rs := len(w.assem)
	total := 0
	defer func() { w.written += int64(total) }()

	for len(p) > 0 {
		if w.assemLen == 0 && len(p) >= rs {
			if err := w.buf.WriteRecord(p[:rs]); err != nil {
				return total, err
			}
			p = p[rs:]
			total += rs
			continue
		}
		k := copy(w.assem[w.assemLen:], p)
		w.assemLen += k
		p = p[k:]
		total += k
		if w.assemLen == rs {
			w.assemLen = 0
			if err := w.buf.WriteRecord(w.assem); err != nil {
				return total, err
			}
		}
	}
	return total, nil
}

// CloseEntry pads the current entry to a whole record. It fails with
// ErrShortWrite when less content was written than declared.
func (w *Writer) CloseEntry() error {
	if w.finished {
		return ErrFinished
	}
	if !w.open {
		return ErrNoEntry
	}
	w.open = false

	if w.assemLen > 0 {
		clear(w.assem[w.assemLen:])
		w.assemLen = 0
		if err := w.buf.WriteRecord(w.assem); err != nil {
			return err
		}
	}
	if w.written < w.size {
		return fmt.Errorf("%w: %q closed at %d of %d bytes", ErrShortWrite, w.cur.Name, w.written, w.size)
	}
	return nil
}

// Finish closes any open entry and writes the two zero records that end
// the archive. It does not close the underlying stream.
func (w *Writer) Finish() error {
	if w.finished {
		return nil
	}
	var result *multierror.Error
	if w.open {
		if err := w.CloseEntry(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	w.finished = true

	clear(w.record)
	for range 2 {
		if err := w.buf.WriteRecord(w.record); err != nil {
			result = multierror.Append(result, err)
			break
		}
	}
	return result.ErrorOrNil()
}

// Close finishes the archive, flushes the last block and closes the
// underlying stream when it is an io.Closer. Every step is attempted even
// if an earlier one fails.
func (w *Writer) Close() error {
	var result *multierror.Error
	if err := w.Finish(); err != nil {
		result = multierror.Append(result, err)
	}
	if err := w.buf.Close(); err != nil {
		result = multierror.Append(result, err)
	}
	return result.ErrorOrNil()
}

// AddFromFs writes the file at filePath on fsys as an entry named name,
// including its content when it is a regular file.
func (w *Writer) AddFromFs(fsys afero.Fs, filePath, name string) error {
	e, err := NewEntryFromFs(fsys, filePath, name)
	if err != nil {
		return err
	}
	if err := w.PutNextEntry(e); err != nil {
		return err
	}
	if e.IsFile() && e.Size > 0 {
		f, err := fsys.Open(filePath)
		if err != nil {
			return fmt.Errorf("open %s: %w", filePath, err)
		}
		defer log.CloseAndLogError(f, filePath)

		if _, err := io.Copy(w, f); err != nil {
			return fmt.Errorf("copy %s: %w", filePath, err)
		}
	}
	return w.CloseEntry()
}
