//go:build !unix

// Copyright 2025 Lemon4ksan. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sys

import "io/fs"

// FileOwner reports no owner on platforms without POSIX ownership.
func FileOwner(_ fs.FileInfo) (uid, gid int64, ok bool) {
	return 0, 0, false
}
