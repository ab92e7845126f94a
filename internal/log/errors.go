// Copyright 2025 Lemon4ksan. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package log

import "io"

// CloseAndLogError closes closer and logs a failure instead of returning it.
// It is meant for cleanup on paths that already carry an error.
func CloseAndLogError(closer io.Closer, location string) {
	if closer == nil {
		Debugf("no closer provided when attempting to close: %v", location)
		return
	}
	if err := closer.Close(); err != nil {
		Debugf("failed to close %v due to: %v", location, err)
	}
}
