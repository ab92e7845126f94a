// Copyright 2025 Lemon4ksan. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package zip

import (
	"io"
	"time"
	"unicode/utf8"
)

// byteCountWriter counts bytes written to a writer.
type byteCountWriter struct {
	dest         io.Writer
	bytesWritten int64
}

func (w *byteCountWriter) Write(p []byte) (int, error) {
	n, err := w.dest.Write(p)
	w.bytesWritten += int64(n)
	return n, err
}

// dosEpochDate is 1980-01-01, the earliest date MS-DOS can store.
const dosEpochDate = 1<<5 | 1

// Time conversion functions
func timeToMsDos(t time.Time) (dosDate uint16, dosTime uint16) {
	if t.Year() < 1980 {
		return dosEpochDate, 0
	}
	year := min(t.Year()-1980, 127)
	month := uint16(t.Month())
	day := uint16(t.Day())
	hour := uint16(t.Hour())
	minute := uint16(t.Minute())
	second := uint16(t.Second())

	dosDate = uint16(year)<<9 | month<<5 | day
	dosTime = hour<<11 | minute<<5 | second/2
	return dosDate, dosTime
}

func msDosToTime(dosDate uint16, dosTime uint16) time.Time {
	day := dosDate & 0x1F
	month := (dosDate >> 5) & 0x0F
	year := int((dosDate>>9)&0x7F) + 1980
	second := (dosTime & 0x1F) * 2
	minute := (dosTime >> 5) & 0x3F
	hour := (dosTime >> 11) & 0x1F

	if month < 1 || month > 12 {
		month = 1
	}
	if day < 1 || day > 31 {
		day = 1
	}

	return time.Date(year, time.Month(month), int(day), int(hour), int(minute), int(second), 0, time.UTC)
}

// isASCII reports whether s can be stored without the UTF-8 flag.
func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= utf8.RuneSelf {
			return false
		}
	}
	return true
}

// hasMeta checks if the string contains pattern matching characters.
func hasMeta(path string) bool {
	for i := 0; i < len(path); i++ {
		switch path[i] {
		case '*', '?', '[', '{', '\\':
			return true
		}
	}
	return false
}
