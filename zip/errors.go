package zip

import (
	"errors"
	"fmt"
)

var (
	// ErrFormat is returned when the input is not a valid ZIP archive.
	ErrFormat = errors.New("zip: not a valid zip file")

	// ErrChecksum is returned when a CRC-32 does not match the data it covers.
	ErrChecksum = fmt.Errorf("%w: checksum error", ErrFormat)

	// ErrSizeMismatch is returned when the number of bytes written or read differs
	// from the size declared for an entry.
	ErrSizeMismatch = fmt.Errorf("%w: size mismatch", ErrFormat)

	// ErrAlgorithm is returned when a compression method is not supported.
	ErrAlgorithm = fmt.Errorf("%w: unsupported compression method", ErrFormat)

	// ErrTooLarge is returned when a size or offset needs more than 32 bits.
	ErrTooLarge = fmt.Errorf("%w: size exceeds 4 GiB", ErrFormat)

	// ErrFileNotFound is returned when the requested entry does not belong to the archive.
	ErrFileNotFound = errors.New("zip: file not found")

	// ErrDuplicateEntry is returned when attempting to add a file with a name that already exists.
	ErrDuplicateEntry = errors.New("zip: duplicate file name")

	// ErrFilenameTooLong is returned when a filename exceeds 65535 bytes.
	ErrFilenameTooLong = errors.New("zip: filename too long")

	// ErrCommentTooLong is returned when a comment exceeds 65535 bytes.
	ErrCommentTooLong = errors.New("zip: comment too long")

	// ErrExtraFieldTooLong is returned when the total size of extra fields exceeds 65535 bytes.
	ErrExtraFieldTooLong = errors.New("zip: extra field too long")

	// ErrRegistration is returned when an extra field factory cannot be registered.
	ErrRegistration = errors.New("zip: invalid extra field registration")

	// ErrNoSuchExtraField is returned when removing an extra field the entry does not carry.
	ErrNoSuchExtraField = errors.New("zip: no such extra field")

	// ErrNoEntry is returned when entry data is written with no open entry.
	ErrNoEntry = errors.New("zip: no current entry")

	// ErrFinished is returned when a writer is used after Finish.
	ErrFinished = errors.New("zip: archive already finished")
)
