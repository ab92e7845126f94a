// Copyright 2025 Lemon4ksan. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sys

import "io/fs"

// HostSystem represents the host system recorded in the high byte of
// a ZIP "version made by" field.
type HostSystem uint8

// Host systems this module writes or recognises when reading.
const (
	HostSystemFAT    HostSystem = 0  // MS-DOS and OS/2 (FAT / VFAT / FAT32 file systems)
	HostSystemUNIX   HostSystem = 3  // UNIX
	HostSystemNTFS   HostSystem = 10 // Windows NTFS
	HostSystemDarwin HostSystem = 19 // OS X (Darwin)
)

// String representation of HostSystem for debugging
func (h HostSystem) String() string {
	switch h {
	case HostSystemFAT:
		return "MS-DOS/OS2 (FAT)"
	case HostSystemUNIX:
		return "UNIX"
	case HostSystemNTFS:
		return "Windows NTFS"
	case HostSystemDarwin:
		return "OS X (Darwin)"
	}
	return "Unknown"
}

// Unix constants for file types (standard POSIX)
const (
	S_IFMT  = 0170000 // Type mask
	S_IFIFO = 0010000 // FIFO
	S_IFCHR = 0020000 // Character device
	S_IFDIR = 0040000 // Directory
	S_IFBLK = 0060000 // Block device
	S_IFREG = 0100000 // Regular file
	S_IFLNK = 0120000 // Symlink
	S_ISUID = 0004000
	S_ISGID = 0002000
	S_ISVTX = 0001000
)

// UnixMode converts an fs.FileMode into POSIX st_mode bits.
func UnixMode(m fs.FileMode) uint32 {
	mode := uint32(m.Perm())
	switch {
	case m.IsDir():
		mode |= S_IFDIR
	case m&fs.ModeSymlink != 0:
		mode |= S_IFLNK
	case m&fs.ModeNamedPipe != 0:
		mode |= S_IFIFO
	case m&fs.ModeCharDevice != 0:
		mode |= S_IFCHR
	case m&fs.ModeDevice != 0:
		mode |= S_IFBLK
	default:
		mode |= S_IFREG
	}
	if m&fs.ModeSetuid != 0 {
		mode |= S_ISUID
	}
	if m&fs.ModeSetgid != 0 {
		mode |= S_ISGID
	}
	if m&fs.ModeSticky != 0 {
		mode |= S_ISVTX
	}
	return mode
}

// FileMode converts POSIX st_mode bits back into an fs.FileMode.
func FileMode(mode uint32) fs.FileMode {
	m := fs.FileMode(mode & 0777)
	switch mode & S_IFMT {
	case S_IFDIR:
		m |= fs.ModeDir
	case S_IFLNK:
		m |= fs.ModeSymlink
	case S_IFIFO:
		m |= fs.ModeNamedPipe
	case S_IFCHR:
		m |= fs.ModeDevice | fs.ModeCharDevice
	case S_IFBLK:
		m |= fs.ModeDevice
	}
	if mode&S_ISUID != 0 {
		m |= fs.ModeSetuid
	}
	if mode&S_ISGID != 0 {
		m |= fs.ModeSetgid
	}
	if mode&S_ISVTX != 0 {
		m |= fs.ModeSticky
	}
	return m
}
