// Copyright 2025 Lemon4ksan. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package zip

import (
	"bytes"
	"errors"
	"io"
	"io/fs"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFS_Conformance(t *testing.T) {
	var buf bytes.Buffer
	writeZip(t, &buf, []testFile{
		{name: "docs/guide/intro.md", content: "# intro", method: Deflated},
		{name: "readme.txt", content: "read me first", method: Stored},
		{name: "src/", method: Stored},
		{name: "src/main.go", content: "package main", method: Deflated},
	})
	r := newTestReader(t, buf.Bytes())

	err := fstest.TestFS(r.FS(), "readme.txt", "src/main.go", "docs/guide/intro.md", "docs/guide", "src")
	require.NoError(t, err)
}

func TestFS_ImplicitDirectories(t *testing.T) {
	var buf bytes.Buffer
	writeZip(t, &buf, []testFile{
		{name: "a/b/c.txt", content: "c", method: Stored},
		{name: "a/d.txt", content: "d", method: Stored},
	})
	fsys := newTestReader(t, buf.Bytes()).FS()

	info, err := fs.Stat(fsys, "a/b")
	require.NoError(t, err)
	assert.True(t, info.IsDir())
	assert.Equal(t, "b", info.Name())

	entries, err := fs.ReadDir(fsys, "a")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "b", entries[0].Name())
	assert.True(t, entries[0].IsDir())
	assert.Equal(t, "d.txt", entries[1].Name())

	data, err := fs.ReadFile(fsys, "a/b/c.txt")
	require.NoError(t, err)
	assert.Equal(t, "c", string(data))
}

func TestFS_Errors(t *testing.T) {
	var buf bytes.Buffer
	writeZip(t, &buf, []testFile{{name: "f.txt", content: "x", method: Stored}})
	fsys := newTestReader(t, buf.Bytes()).FS()

	_, err := fsys.Open("missing.txt")
	assert.ErrorIs(t, err, fs.ErrNotExist)

	_, err = fsys.Open("../escape")
	assert.ErrorIs(t, err, fs.ErrInvalid)

	_, err = fs.ReadDir(fsys, "f.txt")
	var perr *fs.PathError
	assert.True(t, errors.As(err, &perr))

	dir, err := fsys.Open(".")
	require.NoError(t, err)
	defer dir.Close()
	_, err = dir.Read(make([]byte, 1))
	assert.ErrorIs(t, err, fs.ErrInvalid)

	rd := dir.(fs.ReadDirFile)
	list, err := rd.ReadDir(1)
	require.NoError(t, err)
	assert.Len(t, list, 1)
	_, err = rd.ReadDir(1)
	assert.ErrorIs(t, err, io.EOF)
}
