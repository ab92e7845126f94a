// Copyright 2025 Lemon4ksan. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

/*
Package log holds the package-level logger shared by the archive codecs.
Nothing is printed until a caller installs a logger with Set.
*/
package log

import (
	"io"

	"github.com/sirupsen/logrus"
)

var log logrus.FieldLogger = discard()

func discard() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	l.SetLevel(logrus.PanicLevel)
	return l
}

// Set replaces the shared logger. A nil logger restores the silent default.
func Set(l logrus.FieldLogger) {
	if l == nil {
		log = discard()
		return
	}
	log = l
}

// Get returns the shared logger.
func Get() logrus.FieldLogger {
	return log
}

// Or returns l when it is set, otherwise the shared logger.
func Or(l logrus.FieldLogger) logrus.FieldLogger {
	if l != nil {
		return l
	}
	return log
}

// Debugf takes a formatted template string and template arguments for the debug logging level.
func Debugf(format string, args ...interface{}) {
	log.Debugf(format, args...)
}
