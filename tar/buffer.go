// Copyright 2025 Lemon4ksan. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tar

import (
	"errors"
	"fmt"
	"io"

	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"

	"github.com/lemon4ksan/goarchive/internal/log"
)

// Default tar blocking: 20 records of 512 bytes per physical block.
const (
	DefaultRecordSize = 512
	DefaultBlockSize  = DefaultRecordSize * 20
)

// Buffer frames an underlying stream into fixed-size records grouped in
// blocks. All physical I/O happens a whole block at a time; a Buffer is
// either a read buffer or a write buffer for its whole life.
type Buffer struct {
	r io.Reader
	w io.Writer

	blockSize    int
	recordSize   int
	recsPerBlock int

	block    []byte
	blockIdx int // index of the block held in memory
	recIdx   int // next record slot within the block
	valid    int // records of the current read block backed by stream data
	eof      bool
	closed   bool

	log logrus.FieldLogger
}

func validateBlocking(blockSize, recordSize int) error {
	if recordSize <= 0 || blockSize <= 0 || blockSize%recordSize != 0 {
		return fmt.Errorf("%w: block size %d, record size %d", ErrBlocking, blockSize, recordSize)
	}
	return nil
}

// NewReadBuffer returns a Buffer that reads records from r.
func NewReadBuffer(r io.Reader, blockSize, recordSize int) (*Buffer, error) {
	if err := validateBlocking(blockSize, recordSize); err != nil {
		return nil, err
	}
	b := newBuffer(blockSize, recordSize)
	b.r = r
	b.blockIdx = -1
	b.recIdx = b.recsPerBlock
	return b, nil
}

// NewWriteBuffer returns a Buffer that writes records to w.
func NewWriteBuffer(w io.Writer, blockSize, recordSize int) (*Buffer, error) {
	if err := validateBlocking(blockSize, recordSize); err != nil {
		return nil, err
	}
	b := newBuffer(blockSize, recordSize)
	b.w = w
	return b, nil
}

func newBuffer(blockSize, recordSize int) *Buffer {
	return &Buffer{
		blockSize:    blockSize,
		recordSize:   recordSize,
		recsPerBlock: blockSize / recordSize,
		block:        make([]byte, blockSize),
		log:          log.Get(),
	}
}

// SetLogger sets the logger used for block-level tracing.
func (b *Buffer) SetLogger(l logrus.FieldLogger) { b.log = log.Or(l) }

// BlockSize returns the physical block size in bytes.
func (b *Buffer) BlockSize() int { return b.blockSize }

// RecordSize returns the record size in bytes.
func (b *Buffer) RecordSize() int { return b.recordSize }

// CurrentBlock returns the index of the block currently held in memory.
func (b *Buffer) CurrentBlock() int { return b.blockIdx }

// CurrentRecord returns the index, within the current block, of the last
// record read or written.
func (b *Buffer) CurrentRecord() int { return b.recIdx - 1 }

// IsEOFRecord reports whether every byte of record is zero.
func (b *Buffer) IsEOFRecord(record []byte) bool {
	for _, c := range record {
		if c != 0 {
			return false
		}
	}
	return true
}

// ReadRecord returns a copy of the next record. It returns io.EOF once the
// stream holds no further record.
func (b *Buffer) ReadRecord() ([]byte, error) {
	rec, err := b.nextRecord()
	if err != nil {
		return nil, err
	}
	out := make([]byte, b.recordSize)
	copy(out, rec)
	return out, nil
}

// SkipRecord advances past the next record without copying it.
func (b *Buffer) SkipRecord() error {
	_, err := b.nextRecord()
	return err
}

// nextRecord returns a view of the next record inside the block buffer.
func (b *Buffer) nextRecord() ([]byte, error) {
	if b.r == nil {
		return nil, fmt.Errorf("read record: %w", ErrBufferMode)
	}
	if b.recIdx >= b.valid {
		if b.recIdx < b.recsPerBlock || b.eof {
			return nil, io.EOF
		}
		if err := b.readBlock(); err != nil {
			return nil, err
		}
	}
	off := b.recIdx * b.recordSize
	b.recIdx++
	return b.block[off : off+b.recordSize], nil
}

func (b *Buffer) readBlock() error {
	n, err := io.ReadFull(b.r, b.block)
	switch {
	case err == nil:
	case errors.Is(err, io.EOF):
		b.eof = true
		b.log.WithField("block", b.blockIdx+1).Debug("tar: end of stream at block boundary")
		return io.EOF
	case errors.Is(err, io.ErrUnexpectedEOF):
		// A short final block is accepted: the tail is zero-filled and any
		// record not touched by stream data is reported as missing.
		b.eof = true
		clear(b.block[n:])
		b.log.WithFields(logrus.Fields{
			"block": b.blockIdx + 1,
			"bytes": humanize.Bytes(uint64(n)),
			"want":  humanize.Bytes(uint64(b.blockSize)),
		}).Debug("tar: incomplete block read")
	default:
		return fmt.Errorf("read block %d: %w", b.blockIdx+1, err)
	}

	b.blockIdx++
	b.recIdx = 0
	b.valid = (n + b.recordSize - 1) / b.recordSize
	b.log.WithFields(logrus.Fields{
		"block":   b.blockIdx,
		"records": b.valid,
	}).Trace("tar: read block")
	return nil
}

// WriteRecord buffers one record. The block is written out as soon as its
// last record is filled.
func (b *Buffer) WriteRecord(record []byte) error {
	if b.w == nil {
		return fmt.Errorf("write record: %w", ErrBufferMode)
	}
	if len(record) != b.recordSize {
		return fmt.Errorf("%w: got %d bytes, want %d", ErrRecordSize, len(record), b.recordSize)
	}
	copy(b.block[b.recIdx*b.recordSize:], record)
	b.recIdx++
	if b.recIdx == b.recsPerBlock {
		return b.writeBlock(b.blockSize)
	}
	return nil
}

func (b *Buffer) writeBlock(n int) error {
	if _, err := b.w.Write(b.block[:n]); err != nil {
		return fmt.Errorf("write block %d: %w", b.blockIdx, err)
	}
	b.log.WithFields(logrus.Fields{
		"block": b.blockIdx,
		"bytes": humanize.Bytes(uint64(n)),
	}).Trace("tar: wrote block")
	b.recIdx = 0
	b.blockIdx++
	return nil
}

// Flush writes any buffered records. A partially filled block is written
// as it stands, without padding it out to the block size.
func (b *Buffer) Flush() error {
	if b.w == nil {
		return fmt.Errorf("flush: %w", ErrBufferMode)
	}
	if b.recIdx == 0 {
		return nil
	}
	return b.writeBlock(b.recIdx * b.recordSize)
}

// Close flushes a write buffer and then closes the underlying stream if it
// implements io.Closer. Closing twice is a no-op.
func (b *Buffer) Close() error {
	if b.closed {
		return nil
	}
	b.closed = true

	if b.w != nil {
		if err := b.Flush(); err != nil {
			if c, ok := b.w.(io.Closer); ok {
				log.CloseAndLogError(c, "tar output")
			}
			return err
		}
		if c, ok := b.w.(io.Closer); ok {
			return c.Close()
		}
		return nil
	}
	if c, ok := b.r.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
