// Copyright 2025 Lemon4ksan. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package internal

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Each record type must be identified using a header signature that identifies the record type.
// Signature values begin with the two byte constant marker of 0x4b50, representing the characters "PK".
const (
	LocalFileHeaderSignature  uint32 = 0x04034b50
	DataDescriptorSignature   uint32 = 0x08074b50
	CentralDirectorySignature uint32 = 0x02014b50
	EndOfCentralDirSignature  uint32 = 0x06054b50
)

// Fixed record sizes, signatures included.
const (
	LocalFileHeaderLen  = 30
	DataDescriptorLen   = 16
	CentralDirectoryLen = 46
	EndOfCentralDirLen  = 22

	// Offset of the filename length within a local file header.
	LocalFilenameLengthOffset = 26
)

type LocalFileHeader struct {
	VersionNeededToExtract uint16
	GeneralPurposeBitFlag  uint16
	CompressionMethod      uint16
	LastModFileTime        uint16
	LastModFileDate        uint16
	CRC32                  uint32
	CompressedSize         uint32
	UncompressedSize       uint32
	FilenameLength         uint16
	ExtraFieldLength       uint16
	Filename               string
	ExtraField             []byte
}

func (h LocalFileHeader) Encode() []byte {
	// Fixed size (30 bytes) + variable filename and extra field
	size := LocalFileHeaderLen + int(h.FilenameLength) + int(h.ExtraFieldLength)
	buf := make([]byte, size)

	binary.LittleEndian.PutUint32(buf[0:4], LocalFileHeaderSignature)
	binary.LittleEndian.PutUint16(buf[4:6], h.VersionNeededToExtract)
	binary.LittleEndian.PutUint16(buf[6:8], h.GeneralPurposeBitFlag)
	binary.LittleEndian.PutUint16(buf[8:10], h.CompressionMethod)
	binary.LittleEndian.PutUint16(buf[10:12], h.LastModFileTime)
	binary.LittleEndian.PutUint16(buf[12:14], h.LastModFileDate)
	binary.LittleEndian.PutUint32(buf[14:18], h.CRC32)
	binary.LittleEndian.PutUint32(buf[18:22], h.CompressedSize)
	binary.LittleEndian.PutUint32(buf[22:26], h.UncompressedSize)
	binary.LittleEndian.PutUint16(buf[26:28], h.FilenameLength)
	binary.LittleEndian.PutUint16(buf[28:30], h.ExtraFieldLength)

	copy(buf[30:], h.Filename)
	copy(buf[30+int(h.FilenameLength):], h.ExtraField)

	return buf
}

// DataDescriptor trails entry data whose CRC and sizes were unknown when
// the local header was written.
type DataDescriptor struct {
	CRC32            uint32
	CompressedSize   uint32
	UncompressedSize uint32
}

func (d DataDescriptor) Encode() []byte {
	buf := make([]byte, DataDescriptorLen)

	binary.LittleEndian.PutUint32(buf[0:4], DataDescriptorSignature)
	binary.LittleEndian.PutUint32(buf[4:8], d.CRC32)
	binary.LittleEndian.PutUint32(buf[8:12], d.CompressedSize)
	binary.LittleEndian.PutUint32(buf[12:16], d.UncompressedSize)

	return buf
}

type CentralDirectory struct {
	VersionMadeBy          uint16
	VersionNeededToExtract uint16
	GeneralPurposeBitFlag  uint16
	CompressionMethod      uint16
	LastModFileTime        uint16
	LastModFileDate        uint16
	CRC32                  uint32
	CompressedSize         uint32
	UncompressedSize       uint32
	FilenameLength         uint16
	ExtraFieldLength       uint16
	FileCommentLength      uint16
	DiskNumberStart        uint16
	InternalFileAttributes uint16
	ExternalFileAttributes uint32
	LocalHeaderOffset      uint32
	Filename               string
	ExtraField             []byte
	Comment                string
}

// ReadCentralDirEntry reads one central directory record whose signature
// has already been consumed from src.
func ReadCentralDirEntry(src io.Reader) (CentralDirectory, error) {
	var buf [CentralDirectoryLen - 4]byte
	if _, err := io.ReadFull(src, buf[:]); err != nil {
		return CentralDirectory{}, fmt.Errorf("read source: %w", err)
	}

	entry := CentralDirectory{
		VersionMadeBy:          binary.LittleEndian.Uint16(buf[0:2]),
		VersionNeededToExtract: binary.LittleEndian.Uint16(buf[2:4]),
		GeneralPurposeBitFlag:  binary.LittleEndian.Uint16(buf[4:6]),
		CompressionMethod:      binary.LittleEndian.Uint16(buf[6:8]),
		LastModFileTime:        binary.LittleEndian.Uint16(buf[8:10]),
		LastModFileDate:        binary.LittleEndian.Uint16(buf[10:12]),
		CRC32:                  binary.LittleEndian.Uint32(buf[12:16]),
		CompressedSize:         binary.LittleEndian.Uint32(buf[16:20]),
		UncompressedSize:       binary.LittleEndian.Uint32(buf[20:24]),
		FilenameLength:         binary.LittleEndian.Uint16(buf[24:26]),
		ExtraFieldLength:       binary.LittleEndian.Uint16(buf[26:28]),
		FileCommentLength:      binary.LittleEndian.Uint16(buf[28:30]),
		DiskNumberStart:        binary.LittleEndian.Uint16(buf[30:32]),
		InternalFileAttributes: binary.LittleEndian.Uint16(buf[32:34]),
		ExternalFileAttributes: binary.LittleEndian.Uint32(buf[34:38]),
		LocalHeaderOffset:      binary.LittleEndian.Uint32(buf[38:42]),
	}

	if entry.FilenameLength > 0 {
		filename := make([]byte, entry.FilenameLength)
		if _, err := io.ReadFull(src, filename); err != nil {
			return CentralDirectory{}, fmt.Errorf("read filename: %w", err)
		}
		entry.Filename = string(filename)
	}

	if entry.ExtraFieldLength > 0 {
		entry.ExtraField = make([]byte, entry.ExtraFieldLength)
		if _, err := io.ReadFull(src, entry.ExtraField); err != nil {
			return CentralDirectory{}, fmt.Errorf("read extra field: %w", err)
		}
	}

	if entry.FileCommentLength > 0 {
		comment := make([]byte, entry.FileCommentLength)
		if _, err := io.ReadFull(src, comment); err != nil {
			return CentralDirectory{}, fmt.Errorf("read comment: %w", err)
		}
		entry.Comment = string(comment)
	}

	return entry, nil
}

func (d CentralDirectory) Encode() []byte {
	totalSize := CentralDirectoryLen + int(d.FilenameLength) + int(d.ExtraFieldLength) + int(d.FileCommentLength)
	buf := make([]byte, totalSize)

	binary.LittleEndian.PutUint32(buf[0:4], CentralDirectorySignature)
	binary.LittleEndian.PutUint16(buf[4:6], d.VersionMadeBy)
	binary.LittleEndian.PutUint16(buf[6:8], d.VersionNeededToExtract)
	binary.LittleEndian.PutUint16(buf[8:10], d.GeneralPurposeBitFlag)
	binary.LittleEndian.PutUint16(buf[10:12], d.CompressionMethod)
	binary.LittleEndian.PutUint16(buf[12:14], d.LastModFileTime)
	binary.LittleEndian.PutUint16(buf[14:16], d.LastModFileDate)
	binary.LittleEndian.PutUint32(buf[16:20], d.CRC32)
	binary.LittleEndian.PutUint32(buf[20:24], d.CompressedSize)
	binary.LittleEndian.PutUint32(buf[24:28], d.UncompressedSize)
	binary.LittleEndian.PutUint16(buf[28:30], d.FilenameLength)
	binary.LittleEndian.PutUint16(buf[30:32], d.ExtraFieldLength)
	binary.LittleEndian.PutUint16(buf[32:34], d.FileCommentLength)
	binary.LittleEndian.PutUint16(buf[34:36], d.DiskNumberStart)
	binary.LittleEndian.PutUint16(buf[36:38], d.InternalFileAttributes)
	binary.LittleEndian.PutUint32(buf[38:42], d.ExternalFileAttributes)
	binary.LittleEndian.PutUint32(buf[42:46], d.LocalHeaderOffset)

	offset := CentralDirectoryLen
	offset += copy(buf[offset:], d.Filename)
	offset += copy(buf[offset:], d.ExtraField)
	copy(buf[offset:], d.Comment)

	return buf
}

type EndOfCentralDirectory struct {
	ThisDiskNum                     uint16
	DiskNumWithTheStartOfCentralDir uint16
	TotalNumberOfEntriesOnThisDisk  uint16
	TotalNumberOfEntries            uint16
	CentralDirSize                  uint32
	CentralDirOffset                uint32
	CommentLength                   uint16
	Comment                         string
}

func EncodeEndOfCentralDirRecord(entriesNum uint16, centralDirSize, centralDirOffset uint32, comment string) []byte {
	buf := make([]byte, EndOfCentralDirLen+len(comment))

	binary.LittleEndian.PutUint32(buf[0:4], EndOfCentralDirSignature)
	binary.LittleEndian.PutUint16(buf[4:6], 0)
	binary.LittleEndian.PutUint16(buf[6:8], 0)
	binary.LittleEndian.PutUint16(buf[8:10], entriesNum)
	binary.LittleEndian.PutUint16(buf[10:12], entriesNum)
	binary.LittleEndian.PutUint32(buf[12:16], centralDirSize)
	binary.LittleEndian.PutUint32(buf[16:20], centralDirOffset)
	binary.LittleEndian.PutUint16(buf[20:22], uint16(len(comment)))

	copy(buf[22:], comment)

	return buf
}

// ReadEndOfCentralDir reads the end record whose signature has already been
// consumed from src.
func ReadEndOfCentralDir(src io.Reader) (EndOfCentralDirectory, error) {
	var buf [EndOfCentralDirLen - 4]byte
	if _, err := io.ReadFull(src, buf[:]); err != nil {
		return EndOfCentralDirectory{}, fmt.Errorf("read source: %w", err)
	}
	end := EndOfCentralDirectory{
		ThisDiskNum:                     binary.LittleEndian.Uint16(buf[0:2]),
		DiskNumWithTheStartOfCentralDir: binary.LittleEndian.Uint16(buf[2:4]),
		TotalNumberOfEntriesOnThisDisk:  binary.LittleEndian.Uint16(buf[4:6]),
		TotalNumberOfEntries:            binary.LittleEndian.Uint16(buf[6:8]),
		CentralDirSize:                  binary.LittleEndian.Uint32(buf[8:12]),
		CentralDirOffset:                binary.LittleEndian.Uint32(buf[12:16]),
		CommentLength:                   binary.LittleEndian.Uint16(buf[16:18]),
	}
	if end.CommentLength > 0 {
		commentBuf := make([]byte, end.CommentLength)
		if _, err := io.ReadFull(src, commentBuf); err != nil {
			return EndOfCentralDirectory{}, fmt.Errorf("read comment: %w", err)
		}
		end.Comment = string(commentBuf)
	}

	return end, nil
}

// ReadLocalFileHeaderLengths returns the filename and extra field lengths
// of the local file header at offset.
func ReadLocalFileHeaderLengths(src io.ReaderAt, offset int64) (nameLen, extraLen uint16, err error) {
	var buf [LocalFileHeaderLen]byte
	if _, err := src.ReadAt(buf[:], offset); err != nil {
		return 0, 0, fmt.Errorf("read local header at %d: %w", offset, err)
	}
	if sig := binary.LittleEndian.Uint32(buf[0:4]); sig != LocalFileHeaderSignature {
		return 0, 0, fmt.Errorf("local header at %d: signature %#08x", offset, sig)
	}
	nameLen = binary.LittleEndian.Uint16(buf[LocalFilenameLengthOffset:])
	extraLen = binary.LittleEndian.Uint16(buf[LocalFilenameLengthOffset+2:])
	return nameLen, extraLen, nil
}
