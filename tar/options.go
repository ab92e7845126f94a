// Copyright 2025 Lemon4ksan. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tar

import "github.com/sirupsen/logrus"

// LongFileMode selects how the writer handles names longer than NameLen bytes.
type LongFileMode int

const (
	// LongFileError rejects long names with ErrNameTooLong.
	LongFileError LongFileMode = iota
	// LongFileTruncate cuts names down to the header field.
	LongFileTruncate
	// LongFileGNU stores the full name in a preceding ././@LongLink entry.
	LongFileGNU
	// LongFilePOSIX stores the full name in a pax extended header.
	LongFilePOSIX
)

// String representation of LongFileMode for debugging
func (m LongFileMode) String() string {
	switch m {
	case LongFileTruncate:
		return "truncate"
	case LongFileGNU:
		return "gnu"
	case LongFilePOSIX:
		return "posix"
	}
	return "error"
}

type options struct {
	blockSize     int
	recordSize    int
	longFileMode  LongFileMode
	bigNumberMode BigNumberMode
	logger        logrus.FieldLogger
}

func defaultOptions() options {
	return options{
		blockSize:  DefaultBlockSize,
		recordSize: DefaultRecordSize,
	}
}

// Option configures a Reader or a Writer.
type Option func(o *options)

// WithBlockSize sets the physical block size in bytes.
func WithBlockSize(n int) Option {
	return func(o *options) {
		o.blockSize = n
	}
}

// WithRecordSize sets the record size in bytes.
func WithRecordSize(n int) Option {
	return func(o *options) {
		o.recordSize = n
	}
}

// WithLongFileMode sets the long name policy of a Writer.
// Readers always understand every long name form.
func WithLongFileMode(m LongFileMode) Option {
	return func(o *options) {
		o.longFileMode = m
	}
}

// WithBigNumberMode sets how a Writer stores numbers that overflow their octal field.
func WithBigNumberMode(m BigNumberMode) Option {
	return func(o *options) {
		o.bigNumberMode = m
	}
}

// WithLogger sets the logger for debug tracing. The package logger is used otherwise.
func WithLogger(l logrus.FieldLogger) Option {
	return func(o *options) {
		o.logger = l
	}
}
