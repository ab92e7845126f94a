// Copyright 2025 Lemon4ksan. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package zip

import "github.com/sirupsen/logrus"

type writerOptions struct {
	comment string
	method  Method
	level   int
	logger  logrus.FieldLogger
}

// WriterOption configures a Writer.
type WriterOption func(o *writerOptions)

// WithComment sets the archive comment written in the end record.
func WithComment(comment string) WriterOption {
	return func(o *writerOptions) {
		o.comment = comment
	}
}

// WithMethod sets the method used for entries whose method is unset.
// Deflated is the default.
func WithMethod(m Method) WriterOption {
	return func(o *writerOptions) {
		o.method = m
	}
}

// WithLevel sets the DEFLATE compression level.
func WithLevel(level int) WriterOption {
	return func(o *writerOptions) {
		o.level = level
	}
}

// WithWriterLogger sets the logger for debug tracing.
func WithWriterLogger(l logrus.FieldLogger) WriterOption {
	return func(o *writerOptions) {
		o.logger = l
	}
}

// ScanStrategy selects how a Reader locates the central directory.
type ScanStrategy int

const (
	// ScanLinear searches forward from the first byte for the first
	// central directory header. It tolerates arbitrary prefixes such as
	// self-extractor stubs.
	ScanLinear ScanStrategy = iota
	// ScanEndOfCentralDirectory searches backward for the end record and
	// follows its central directory offset.
	ScanEndOfCentralDirectory
)

// String representation of ScanStrategy for debugging
func (s ScanStrategy) String() string {
	if s == ScanEndOfCentralDirectory {
		return "end-of-central-directory"
	}
	return "linear"
}

type readerOptions struct {
	strategy ScanStrategy
	registry *ExtraFieldRegistry
	logger   logrus.FieldLogger
}

// ReaderOption configures a Reader.
type ReaderOption func(o *readerOptions)

// WithScanStrategy sets how the central directory is located.
func WithScanStrategy(s ScanStrategy) ReaderOption {
	return func(o *readerOptions) {
		o.strategy = s
	}
}

// WithReaderRegistry sets the registry used to decode extra fields.
func WithReaderRegistry(r *ExtraFieldRegistry) ReaderOption {
	return func(o *readerOptions) {
		o.registry = r
	}
}

// WithReaderLogger sets the logger for debug tracing.
func WithReaderLogger(l logrus.FieldLogger) ReaderOption {
	return func(o *readerOptions) {
		o.logger = l
	}
}
