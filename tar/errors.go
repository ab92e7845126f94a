package tar

import (
	"errors"
	"fmt"
)

var (
	// ErrFormat is returned when header bytes do not follow the tar layout.
	ErrFormat = errors.New("tar: invalid archive format")

	// ErrChecksum is returned when a header checksum matches neither the signed nor the unsigned sum.
	ErrChecksum = fmt.Errorf("%w: header checksum mismatch", ErrFormat)

	// ErrNameTooLong is returned when a name does not fit in its header field and
	// the long file mode does not allow an extension.
	ErrNameTooLong = fmt.Errorf("%w: name too long", ErrFormat)

	// ErrFieldOverflow is returned when a numeric value does not fit in its header field.
	ErrFieldOverflow = fmt.Errorf("%w: numeric field overflow", ErrFormat)

	// ErrRecordSize is returned when a record of the wrong length is written to a Buffer.
	ErrRecordSize = fmt.Errorf("%w: record length differs from the record size", ErrFormat)

	// ErrBlocking is returned for an invalid block or record size.
	ErrBlocking = fmt.Errorf("%w: invalid blocking factor", ErrFormat)

	// ErrBufferMode is returned when reading from a write buffer or writing to a read buffer.
	ErrBufferMode = errors.New("tar: operation does not match buffer mode")

	// ErrWriteTooLong is returned when more bytes are written than the entry header declared.
	ErrWriteTooLong = errors.New("tar: write exceeds declared entry size")

	// ErrShortWrite is returned when an entry is closed before its declared size was written.
	ErrShortWrite = errors.New("tar: entry closed before declared size was written")

	// ErrNoEntry is returned when entry data is written or closed with no open entry.
	ErrNoEntry = errors.New("tar: no current entry")

	// ErrFinished is returned when a writer is used after Finish.
	ErrFinished = errors.New("tar: archive already finished")
)
