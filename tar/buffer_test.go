// Copyright 2025 Lemon4ksan. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tar

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type closeCounter struct {
	bytes.Buffer
	closes int
}

func (c *closeCounter) Close() error {
	c.closes++
	return nil
}

func TestBuffer_InvalidBlocking(t *testing.T) {
	tests := []struct {
		name       string
		blockSize  int
		recordSize int
	}{
		{"not a multiple", 1000, 512},
		{"zero record", 1024, 0},
		{"negative block", -512, 512},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewReadBuffer(bytes.NewReader(nil), tt.blockSize, tt.recordSize)
			assert.ErrorIs(t, err, ErrBlocking)
			_, err = NewWriteBuffer(io.Discard, tt.blockSize, tt.recordSize)
			assert.ErrorIs(t, err, ErrBlocking)
		})
	}
}

func TestBuffer_WriteBlocks(t *testing.T) {
	var out bytes.Buffer
	b, err := NewWriteBuffer(&out, 1024, 512)
	require.NoError(t, err)

	require.NoError(t, b.WriteRecord(bytes.Repeat([]byte{'a'}, 512)))
	assert.Zero(t, out.Len())
	require.NoError(t, b.WriteRecord(bytes.Repeat([]byte{'b'}, 512)))
	assert.Equal(t, 1024, out.Len(), "a block is written once its last record is filled")

	require.NoError(t, b.WriteRecord(bytes.Repeat([]byte{'c'}, 512)))
	assert.Equal(t, 1024, out.Len())

	require.NoError(t, b.Flush())
	assert.Equal(t, 1536, out.Len(), "the final partial block is not padded")
	require.NoError(t, b.Flush())
	assert.Equal(t, 1536, out.Len())
	assert.Equal(t, byte('c'), out.Bytes()[1024])

	err = b.WriteRecord(make([]byte, 100))
	assert.ErrorIs(t, err, ErrRecordSize)

	_, err = b.ReadRecord()
	assert.ErrorIs(t, err, ErrBufferMode)
}

func TestBuffer_ReadShortBlock(t *testing.T) {
	data := bytes.Repeat([]byte{'x'}, 700)
	b, err := NewReadBuffer(bytes.NewReader(data), 1024, 512)
	require.NoError(t, err)

	rec, err := b.ReadRecord()
	require.NoError(t, err)
	assert.Equal(t, data[:512], rec)
	assert.Equal(t, 0, b.CurrentBlock())
	assert.Equal(t, 0, b.CurrentRecord())

	rec, err = b.ReadRecord()
	require.NoError(t, err)
	assert.Equal(t, data[512:], rec[:188])
	assert.True(t, b.IsEOFRecord(rec[188:]), "tail of a short block is zero filled")

	_, err = b.ReadRecord()
	assert.ErrorIs(t, err, io.EOF)
	_, err = b.ReadRecord()
	assert.ErrorIs(t, err, io.EOF)

	assert.ErrorIs(t, b.WriteRecord(rec), ErrBufferMode)
}

func TestBuffer_ReadAcrossBlocks(t *testing.T) {
	var data []byte
	for i := range 5 {
		data = append(data, bytes.Repeat([]byte{byte('0' + i)}, 512)...)
	}
	b, err := NewReadBuffer(bytes.NewReader(data), 1024, 512)
	require.NoError(t, err)

	for i := range 5 {
		rec, err := b.ReadRecord()
		require.NoError(t, err)
		assert.Equal(t, byte('0'+i), rec[0])
		assert.Equal(t, i/2, b.CurrentBlock())
	}
	assert.ErrorIs(t, b.SkipRecord(), io.EOF)
}

func TestBuffer_CloseOnce(t *testing.T) {
	out := &closeCounter{}
	b, err := NewWriteBuffer(out, DefaultBlockSize, DefaultRecordSize)
	require.NoError(t, err)

	require.NoError(t, b.WriteRecord(make([]byte, DefaultRecordSize)))
	require.NoError(t, b.Close())
	require.NoError(t, b.Close())

	assert.Equal(t, 1, out.closes)
	assert.Equal(t, DefaultRecordSize, out.Len())
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("disk full") }

func TestBuffer_WriteError(t *testing.T) {
	b, err := NewWriteBuffer(failingWriter{}, 512, 512)
	require.NoError(t, err)

	require.NoError(t, b.WriteRecord(make([]byte, 512)))
	err = b.WriteRecord(make([]byte, 512))
	assert.ErrorContains(t, err, "disk full")
}
