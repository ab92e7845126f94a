// Copyright 2025 Lemon4ksan. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package zip

import (
	"bytes"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// shortWriter accepts at most limit bytes in total.
type shortWriter struct {
	limit int
	buf   bytes.Buffer
}

func (w *shortWriter) Write(p []byte) (int, error) {
	n := min(len(p), w.limit-w.buf.Len())
	w.buf.Write(p[:n])
	if n < len(p) {
		return n, io.ErrShortWrite
	}
	return n, nil
}

func TestByteCountWriter(t *testing.T) {
	var buf bytes.Buffer
	w := &byteCountWriter{dest: &buf}

	for _, chunk := range []string{"local header", "", "entry data"} {
		_, err := io.WriteString(w, chunk)
		require.NoError(t, err)
	}
	assert.Equal(t, int64(len("local headerentry data")), w.bytesWritten)
	assert.Equal(t, "local headerentry data", buf.String())

	short := &byteCountWriter{dest: &shortWriter{limit: 4}}
	n, err := short.Write([]byte("central"))
	assert.ErrorIs(t, err, io.ErrShortWrite)
	assert.Equal(t, 4, n)
	assert.Equal(t, int64(4), short.bytesWritten, "only accepted bytes move the offset")
}

func TestTimeToMsDos(t *testing.T) {
	tests := []struct {
		name     string
		in       time.Time
		wantDate uint16
		wantTime uint16
	}{
		{"DOS epoch", time.Date(1980, 1, 1, 0, 0, 0, 0, time.UTC), 0x0021, 0x0000},
		{"odd seconds round down", time.Date(2023, 12, 15, 14, 30, 15, 0, time.UTC), 0x578F, 0x73C7},
		{"Unix epoch clamps to 1980", time.Unix(0, 0).UTC(), 0x0021, 0x0000},
		{"clamped date has no time of day", time.Date(1979, 12, 31, 23, 59, 58, 0, time.UTC), 0x0021, 0x0000},
		{"year capped at 2107", time.Date(2150, 6, 15, 10, 20, 30, 0, time.UTC), 0xFECF, 0x528F},
		{"last representable second", time.Date(2107, 12, 31, 23, 59, 58, 0, time.UTC), 0xFF9F, 0xBF7D},
		{"wall clock of the zone", time.Date(2023, 12, 15, 14, 30, 16, 0, time.FixedZone("MSK", 3*3600)), 0x578F, 0x73C8},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			date, tm := timeToMsDos(tt.in)
			assert.Equal(t, tt.wantDate, date, "date %#04x", date)
			assert.Equal(t, tt.wantTime, tm, "time %#04x", tm)
		})
	}
}

func TestMsDosToTime(t *testing.T) {
	tests := []struct {
		name string
		date uint16
		time uint16
		want time.Time
	}{
		{"DOS epoch", 0x0021, 0x0000, time.Date(1980, 1, 1, 0, 0, 0, 0, time.UTC)},
		{"two second resolution", 0x578F, 0x73C7, time.Date(2023, 12, 15, 14, 30, 14, 0, time.UTC)},
		{"zero date", 0x0000, 0x0000, time.Date(1980, 1, 1, 0, 0, 0, 0, time.UTC)},
		{"month 13", 0x01A1, 0x0000, time.Date(1980, 1, 1, 0, 0, 0, 0, time.UTC)},
		{"day 0 in March", 0x0060, 0x0000, time.Date(1980, 3, 1, 0, 0, 0, 0, time.UTC)},
		{"latest date", 0xFF9F, 0xBF7D, time.Date(2107, 12, 31, 23, 59, 58, 0, time.UTC)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := msDosToTime(tt.date, tt.time)
			assert.True(t, got.Equal(tt.want), "got %v, want %v", got, tt.want)
			assert.Equal(t, time.UTC, got.Location())
		})
	}
}

func TestMsDosRoundTrip(t *testing.T) {
	for _, in := range []time.Time{
		time.Date(1980, 1, 1, 0, 0, 2, 0, time.UTC),
		time.Date(1999, 12, 31, 23, 59, 59, 0, time.UTC),
		time.Date(2024, 2, 29, 12, 0, 1, 0, time.UTC),
		time.Date(2107, 12, 31, 23, 59, 59, 0, time.UTC),
	} {
		got := msDosToTime(timeToMsDos(in))
		assert.Equal(t, in.Truncate(2*time.Second), got, "from %v", in)
	}

	// Clamped values do not come back.
	before := time.Date(1975, 6, 1, 8, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(1980, 1, 1, 0, 0, 0, 0, time.UTC), msDosToTime(timeToMsDos(before)))
	after := time.Date(2300, 6, 1, 8, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2107, 6, 1, 8, 0, 0, 0, time.UTC), msDosToTime(timeToMsDos(after)))
}

func TestHasMeta(t *testing.T) {
	tests := []struct {
		pattern string
		want    bool
	}{
		{"docs/readme.md", false},
		{"src/", false},
		{"*.txt", true},
		{"docs/**", true},
		{"file?.go", true},
		{"[ab].c", true},
		{"{a,b}.c", true},
		{`a\*`, true},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, hasMeta(tt.pattern), "hasMeta(%q)", tt.pattern)
	}
}

func TestIsASCII(t *testing.T) {
	tests := map[string]bool{
		"":                true,
		"plain/name.txt":  true,
		"naïve.txt":       false,
		"данные/файл.txt": false,
		"\x7f":            true,
		"\x80":            false,
	}
	for s, want := range tests {
		assert.Equal(t, want, isASCII(s), "isASCII(%q)", s)
	}
}
