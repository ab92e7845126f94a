// Copyright 2025 Lemon4ksan. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tar

import (
	"errors"
	"fmt"
	"io"
	"maps"

	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"

	"github.com/lemon4ksan/goarchive/internal/log"
)

// Reader reads a tar archive sequentially. Next advances to the following
// entry and Read returns that entry's content.
type Reader struct {
	buf *Buffer
	log logrus.FieldLogger

	cur         *Entry
	size        int64  // declared content size of cur
	offset      int64  // content bytes already returned
	recordsLeft int64  // content records not yet pulled from buf
	rec         []byte // partially consumed content record
	recOff      int

	globals map[string]string
	eof     bool
}

// NewReader creates a Reader on top of r.
func NewReader(r io.Reader, opts ...Option) (*Reader, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	buf, err := NewReadBuffer(r, o.blockSize, o.recordSize)
	if err != nil {
		return nil, err
	}
	l := log.Or(o.logger)
	buf.SetLogger(l)
	return &Reader{buf: buf, log: l}, nil
}

// RecordSize returns the record size of the underlying Buffer.
func (r *Reader) RecordSize() int { return r.buf.RecordSize() }

// Next advances to the next entry. GNU long names and pax headers are
// resolved internally and never returned. At the end of the archive Next
// returns io.EOF, and keeps doing so on later calls.
func (r *Reader) Next() (*Entry, error) {
	if r.eof {
		return nil, io.EOF
	}
	if r.cur != nil {
		if err := r.skipContent(); err != nil {
			return nil, err
		}
		r.cur = nil
	}

	header, err := r.buf.ReadRecord()
	if errors.Is(err, io.EOF) || (err == nil && r.buf.IsEOFRecord(header)) {
		r.eof = true
		r.log.WithField("block", r.buf.CurrentBlock()).Debug("tar: reached end of archive")
		return nil, io.EOF
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	e, err := ParseEntry(header)
	if err != nil {
		return nil, fmt.Errorf("parse header at block %d record %d: %w", r.buf.CurrentBlock(), r.buf.CurrentRecord(), err)
	}
	r.begin(e)
	r.log.WithFields(logrus.Fields{
		"name": e.Name,
		"type": string(rune(e.TypeFlag)),
		"size": humanize.Bytes(uint64(e.Size)),
	}).Debug("tar: read header")

	switch {
	case e.IsGNULongName(), e.IsGNULongLink():
		return r.resolveLongName(e)
	case e.IsPaxHeader():
		return r.resolvePax(e)
	case e.IsGlobalPaxHeader():
		data, err := r.readSpecial()
		if err != nil {
			return nil, err
		}
		headers, err := parsePaxRecords(data)
		if err != nil {
			return nil, err
		}
		if r.globals == nil {
			r.globals = make(map[string]string)
		}
		maps.Copy(r.globals, headers)
		r.log.WithField("records", len(headers)).Debug("tar: stored global pax header")
		return r.Next()
	}

	if len(r.globals) > 0 {
		if err := r.applyPax(e, nil); err != nil {
			return nil, err
		}
	}
	return e, nil
}

func (r *Reader) begin(e *Entry) {
	r.cur = e
	r.size = e.Size
	r.offset = 0
	r.rec = nil
	r.recOff = 0
	rs := int64(r.buf.RecordSize())
	r.recordsLeft = (e.Size + rs - 1) / rs
}

func (r *Reader) resolveLongName(marker *Entry) (*Entry, error) {
	data, err := r.readSpecial()
	if err != nil {
		return nil, err
	}
	for len(data) > 0 && data[len(data)-1] == 0 {
		data = data[:len(data)-1]
	}

	next, err := r.Next()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("long name entry not followed by an entry: %w", io.ErrUnexpectedEOF)
	}
	if err != nil {
		return nil, err
	}

	if marker.IsGNULongLink() {
		next.LinkName = string(data)
	} else {
		next.Name = string(data)
	}
	r.log.WithField("name", next.Name).Debug("tar: applied GNU long name")
	return next, nil
}

func (r *Reader) resolvePax(marker *Entry) (*Entry, error) {
	data, err := r.readSpecial()
	if err != nil {
		return nil, err
	}
	headers, err := parsePaxRecords(data)
	if err != nil {
		return nil, err
	}

	next, err := r.Next()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("pax header %q not followed by an entry: %w", marker.Name, io.ErrUnexpectedEOF)
	}
	if err != nil {
		return nil, err
	}
	if err := r.applyPax(next, headers); err != nil {
		return nil, err
	}
	return next, nil
}

// applyPax applies global then local pax records to e, the current entry.
// A size override changes how much content the entry spans.
func (r *Reader) applyPax(e *Entry, local map[string]string) error {
	if err := applyPaxHeaders(e, r.globals); err != nil {
		return err
	}
	if err := applyPaxHeaders(e, local); err != nil {
		return err
	}
	if e == r.cur && e.Size != r.size && r.offset == 0 {
		r.begin(e)
	}
	return nil
}

// readSpecial reads the whole content of a marker entry.
func (r *Reader) readSpecial() ([]byte, error) {
	if r.size > maxSpecialFileSize {
		return nil, fmt.Errorf("%w: %q entry of %d bytes", ErrFormat, r.cur.Name, r.size)
	}
	return io.ReadAll(r)
}

// skipContent discards whatever remains of the current entry.
func (r *Reader) skipContent() error {
	if left := r.size - r.offset; left > 0 {
		r.log.WithFields(logrus.Fields{
			"name": r.cur.Name,
			"skip": humanize.Bytes(uint64(left)),
		}).Debug("tar: skipping unread content")
	}
	r.rec = nil
	for ; r.recordsLeft > 0; r.recordsLeft-- {
		if err := r.buf.SkipRecord(); err != nil {
			if errors.Is(err, io.EOF) {
				err = io.ErrUnexpectedEOF
			}
			return fmt.Errorf("skip %q: %w", r.cur.Name, err)
		}
	}
	r.offset = r.size
	return nil
}

// Read reads from the current entry. It returns io.EOF at the end of the
// entry and io.ErrUnexpectedEOF if the archive ends first.
func (r *Reader) Read(p []byte) (int, error) {
	if r.cur == nil {
		return 0, io.EOF
	}
	remaining := r.size - r.offset
	if remaining <= 0 {
		return 0, io.EOF
	}
	if int64(len(p)) > remaining {
		p = p[:remaining]
	}

	n := 0
	for n < len(p) {
		if r.recOff >= len(r.rec) {
			rec, err := r.buf.nextRecord()
			if err != nil {
				r.offset += int64(n)
				if errors.Is(err, io.EOF) {
					err = io.ErrUnexpectedEOF
				}
				return n, fmt.Errorf("read %q: %w", r.cur.Name, err)
			}
			r.rec, r.recOff = rec, 0
			r.recordsLeft--
		}
		c := copy(p[n:], r.rec[r.recOff:])
		r.recOff += c
		n += c
	}
	r.offset += int64(n)
	return n, nil
}

// Available returns the number of unread content bytes of the current entry.
func (r *Reader) Available() int64 {
	if r.cur == nil {
		return 0
	}
	return r.size - r.offset
}

// Skip discards up to n content bytes of the current entry and returns the
// number skipped.
func (r *Reader) Skip(n int64) (int64, error) {
	n = min(n, r.Available())
	if n <= 0 {
		return 0, nil
	}
	return io.CopyN(io.Discard, struct{ io.Reader }{r}, n)
}

// CopyEntryContents copies the rest of the current entry to w.
func (r *Reader) CopyEntryContents(w io.Writer) (int64, error) {
	return io.Copy(w, struct{ io.Reader }{r})
}

// Close closes the underlying stream if it implements io.Closer.
func (r *Reader) Close() error {
	return r.buf.Close()
}
