//go:build unix

// Copyright 2025 Lemon4ksan. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sys

import (
	"io/fs"
	"syscall"
)

// FileOwner returns the numeric owner of a file when the platform stat
// structure is available.
func FileOwner(info fs.FileInfo) (uid, gid int64, ok bool) {
	s, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return 0, 0, false
	}
	return int64(s.Uid), int64(s.Gid), true
}
