// Copyright 2025 Lemon4ksan. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package zip

import (
	"bytes"
	"fmt"
	"io"
	"sync"

	"github.com/klauspost/compress/flate"
)

// Method is the compression method of an entry.
type Method int

// Supported compression methods as numbered in APPNOTE
const (
	MethodUnset Method = -1 // Not chosen yet; the writer default applies
	Stored      Method = 0  // No compression - file stored as-is
	Deflated    Method = 8  // DEFLATE compression
)

// String representation of Method for debugging
func (m Method) String() string {
	switch m {
	case MethodUnset:
		return "unset"
	case Stored:
		return "stored"
	case Deflated:
		return "deflated"
	}
	return fmt.Sprintf("method(%d)", int(m))
}

// Compression levels for DEFLATE algorithm
const (
	DeflateNormal    = 6 // Default compression level (good balance between speed and ratio)
	DeflateMaximum   = 9 // Maximum compression (best ratio, slowest speed)
	DeflateFast      = 3 // Fast compression (lower ratio, faster speed)
	DeflateSuperFast = 1 // Super fast compression (lowest ratio, fastest speed)
)

// deflatePools holds one writer pool per compression level.
var deflatePools sync.Map // int -> *sync.Pool

func deflatePool(level int) *sync.Pool {
	if p, ok := deflatePools.Load(level); ok {
		return p.(*sync.Pool)
	}
	p, _ := deflatePools.LoadOrStore(level, &sync.Pool{
		New: func() interface{} {
			w, err := flate.NewWriter(io.Discard, level)
			if err != nil {
				return nil
			}
			return w
		},
	})
	return p.(*sync.Pool)
}

// getDeflater returns a pooled raw DEFLATE writer targeting dest.
func getDeflater(dest io.Writer, level int) (*flate.Writer, error) {
	v := deflatePool(level).Get()
	if v == nil {
		return nil, fmt.Errorf("zip: invalid compression level %d", level)
	}
	w := v.(*flate.Writer)
	w.Reset(dest)
	return w, nil
}

func putDeflater(w *flate.Writer, level int) {
	deflatePool(level).Put(w)
}

// newInflater wraps a bounded raw DEFLATE stream. A single zero byte is
// appended after the compressed data for decoders that read one byte past
// the logical end.
func newInflater(src io.Reader) io.ReadCloser {
	return flate.NewReader(io.MultiReader(src, bytes.NewReader([]byte{0})))
}
