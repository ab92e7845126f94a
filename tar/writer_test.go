// Copyright 2025 Lemon4ksan. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tar

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeArchive writes (entry, content) pairs and returns the archive bytes.
func writeArchive(t *testing.T, entries []*Entry, contents []string, opts ...Option) []byte {
	t.Helper()
	var buf bytes.Buffer
	w, err := NewWriter(&buf, opts...)
	require.NoError(t, err)

	for i, e := range entries {
		require.NoError(t, w.PutNextEntry(e))
		if contents[i] != "" {
			_, err := io.WriteString(w, contents[i])
			require.NoError(t, err)
		}
		require.NoError(t, w.CloseEntry())
	}
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func fileEntry(name, content string) *Entry {
	e := NewEntry(name)
	e.Size = int64(len(content))
	return e
}

func TestWriter_FileAndDirectory(t *testing.T) {
	data := writeArchive(t,
		[]*Entry{fileEntry("a.txt", "hello"), NewEntry("dir/")},
		[]string{"hello", ""})

	// header, one content record, header, two end records
	assert.Len(t, data, 5*DefaultRecordSize)
	assert.Equal(t, "hello", string(data[512:517]))
	assert.True(t, bytes.Equal(data[3*512:], make([]byte, 2*512)))

	r, err := NewReader(bytes.NewReader(data))
	require.NoError(t, err)

	e, err := r.Next()
	require.NoError(t, err)
	assert.Equal(t, "a.txt", e.Name)
	assert.Equal(t, int64(5), e.Size)
	content, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(content))

	e, err = r.Next()
	require.NoError(t, err)
	assert.Equal(t, "dir/", e.Name)
	assert.Equal(t, int64(0), e.Size)
	assert.Equal(t, TypeDir, e.TypeFlag)
	assert.True(t, e.IsDirectory())

	_, err = r.Next()
	assert.ErrorIs(t, err, io.EOF)
	_, err = r.Next()
	assert.ErrorIs(t, err, io.EOF, "end of archive is sticky")
}

func TestWriter_RecordAssembly(t *testing.T) {
	content := strings.Repeat("0123456789", 150) // 1500 bytes
	var buf bytes.Buffer
	w, err := NewWriter(&buf)
	require.NoError(t, err)

	require.NoError(t, w.PutNextEntry(fileEntry("chunks.bin", content)))
	for _, chunk := range []string{content[:7], content[7:700], content[700:1024], content[1024:]} {
		n, err := io.WriteString(w, chunk)
		require.NoError(t, err)
		assert.Equal(t, len(chunk), n)
	}
	require.NoError(t, w.Close())

	// header, three content records, two end records
	assert.Equal(t, 6*DefaultRecordSize, buf.Len())
	assert.Equal(t, content, string(buf.Bytes()[512:512+1500]))
	assert.True(t, bytes.Equal(make([]byte, 36), buf.Bytes()[512+1500:2048]), "last record is zero padded")
}

func TestWriter_SizeChecks(t *testing.T) {
	w, err := NewWriter(io.Discard)
	require.NoError(t, err)

	require.NoError(t, w.PutNextEntry(fileEntry("two", "ab")))
	_, err = io.WriteString(w, "abc")
	assert.ErrorIs(t, err, ErrWriteTooLong)

	_, err = io.WriteString(w, "a")
	require.NoError(t, err)
	assert.ErrorIs(t, w.CloseEntry(), ErrShortWrite)

	assert.ErrorIs(t, w.CloseEntry(), ErrNoEntry)
	_, err = w.Write([]byte("x"))
	assert.ErrorIs(t, err, ErrNoEntry)
}

func TestWriter_Finish(t *testing.T) {
	var buf bytes.Buffer
	w, err := NewWriter(&buf)
	require.NoError(t, err)

	require.NoError(t, w.Finish())
	require.NoError(t, w.Finish())
	assert.ErrorIs(t, w.PutNextEntry(NewEntry("late")), ErrFinished)

	require.NoError(t, w.Close())
	assert.Equal(t, 2*DefaultRecordSize, buf.Len())
}

func TestWriter_CloseReportsOpenEntry(t *testing.T) {
	out := &closeCounter{}
	w, err := NewWriter(out)
	require.NoError(t, err)

	require.NoError(t, w.PutNextEntry(fileEntry("short", "abcdef")))
	_, err = io.WriteString(w, "abc")
	require.NoError(t, err)

	err = w.Close()
	assert.ErrorIs(t, err, ErrShortWrite)
	assert.Equal(t, 1, out.closes, "the stream is closed despite the error")
	assert.Equal(t, 4*DefaultRecordSize, out.Len())
}

func TestWriter_RecordSizeTooSmall(t *testing.T) {
	w, err := NewWriter(io.Discard, WithRecordSize(256), WithBlockSize(1024))
	require.NoError(t, err)
	assert.ErrorIs(t, w.PutNextEntry(NewEntry("a")), ErrBlocking)
}

func TestWriter_LongFileModes(t *testing.T) {
	exact := strings.Repeat("n", NameLen)
	long := strings.Repeat("n", NameLen+1)

	tests := []struct {
		name      string
		mode      LongFileMode
		entryName string
		wantErr   error
		wantName  string
		wantFirst byte // type flag of the first header record
	}{
		{"exact length", LongFileError, exact, nil, exact, TypeNormal},
		{"error", LongFileError, long, ErrNameTooLong, "", 0},
		{"truncate", LongFileTruncate, long, nil, exact, TypeNormal},
		{"gnu", LongFileGNU, long, nil, long, TypeGNULongName},
		{"posix", LongFilePOSIX, long, nil, long, TypeXHeader},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			w, err := NewWriter(&buf, WithLongFileMode(tt.mode))
			require.NoError(t, err)

			err = w.PutNextEntry(fileEntry(tt.entryName, "x"))
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			_, err = w.Write([]byte("x"))
			require.NoError(t, err)
			require.NoError(t, w.Close())

			data := buf.Bytes()
			assert.Equal(t, tt.wantFirst, data[typeFlagOff])

			r, err := NewReader(bytes.NewReader(data))
			require.NoError(t, err)
			e, err := r.Next()
			require.NoError(t, err)
			assert.Equal(t, tt.wantName, e.Name)
			content, err := io.ReadAll(r)
			require.NoError(t, err)
			assert.Equal(t, "x", string(content))

			_, err = r.Next()
			assert.ErrorIs(t, err, io.EOF)
		})
	}
}

func TestWriter_GNUMarker(t *testing.T) {
	long := strings.Repeat("d/", 60) + "file"
	data := writeArchive(t, []*Entry{NewEntry(long)}, []string{""}, WithLongFileMode(LongFileGNU))

	marker, err := ParseEntry(data[:HeaderSize])
	require.NoError(t, err)
	assert.Equal(t, GNULongLinkName, marker.Name)
	assert.Equal(t, MagicGNU, marker.Magic)
	assert.Equal(t, FormatGNU, marker.Format())
	assert.Equal(t, int64(len(long)+1), marker.Size)
	assert.Equal(t, long+"\x00", string(data[512:512+len(long)+1]))
}

func TestWriter_LongLinkName(t *testing.T) {
	target := strings.Repeat("t", 150)
	for _, mode := range []LongFileMode{LongFileGNU, LongFilePOSIX} {
		t.Run(mode.String(), func(t *testing.T) {
			link := NewEntryWithFlag("link", TypeSymlink)
			link.LinkName = target
			data := writeArchive(t, []*Entry{link}, []string{""}, WithLongFileMode(mode))

			r, err := NewReader(bytes.NewReader(data))
			require.NoError(t, err)
			e, err := r.Next()
			require.NoError(t, err)
			assert.Equal(t, "link", e.Name)
			assert.Equal(t, target, e.LinkName)
			assert.True(t, e.IsSymlink())
		})
	}
}

func TestWriter_PaxHeaderName(t *testing.T) {
	long := strings.Repeat("p", 200)
	data := writeArchive(t, []*Entry{NewEntry(long)}, []string{""}, WithLongFileMode(LongFilePOSIX))

	marker, err := ParseEntry(data[:HeaderSize])
	require.NoError(t, err)
	assert.True(t, marker.IsPaxHeader())
	assert.True(t, strings.HasPrefix(marker.Name, "./PaxHeaders.X/ppp"))
	assert.Less(t, len(marker.Name), NameLen)

	records, err := parsePaxRecords(data[512 : 512+marker.Size])
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"path": long}, records)
}

func TestWriter_BigNumberModes(t *testing.T) {
	big := func() *Entry {
		e := NewEntry("owner")
		e.UID = 1 << 22
		e.GID = 7
		return e
	}

	var buf bytes.Buffer
	w, err := NewWriter(&buf)
	require.NoError(t, err)
	assert.ErrorIs(t, w.PutNextEntry(big()), ErrFieldOverflow)

	for _, mode := range []BigNumberMode{BigNumberStar, BigNumberPOSIX} {
		data := writeArchive(t, []*Entry{big()}, []string{""}, WithBigNumberMode(mode))

		r, err := NewReader(bytes.NewReader(data))
		require.NoError(t, err)
		e, err := r.Next()
		require.NoError(t, err)
		assert.Equal(t, int64(1<<22), e.UID, "mode %d", mode)
		assert.Equal(t, int64(7), e.GID, "mode %d", mode)
	}
}

func TestWriter_AddFromFs(t *testing.T) {
	fsys := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fsys, "/data/a.txt", []byte("hello"), 0o644))
	require.NoError(t, fsys.MkdirAll("/data/sub", 0o755))

	var buf bytes.Buffer
	w, err := NewWriter(&buf)
	require.NoError(t, err)
	require.NoError(t, w.AddFromFs(fsys, "/data/sub", "sub"))
	require.NoError(t, w.AddFromFs(fsys, "/data/a.txt", "sub/a.txt"))
	require.NoError(t, w.Close())

	r, err := NewReader(&buf)
	require.NoError(t, err)

	e, err := r.Next()
	require.NoError(t, err)
	assert.Equal(t, "sub/", e.Name)
	assert.True(t, e.IsDirectory())

	e, err = r.Next()
	require.NoError(t, err)
	assert.Equal(t, "sub/a.txt", e.Name)
	assert.Equal(t, int64(0o100644), e.Mode)
	var out bytes.Buffer
	_, err = r.CopyEntryContents(&out)
	require.NoError(t, err)
	assert.Equal(t, "hello", out.String())
}
