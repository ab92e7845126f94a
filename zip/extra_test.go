// Copyright 2025 Lemon4ksan. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package zip

import (
	"bytes"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// block encodes one (id, length, payload) extra field block.
func block(id Short, payload string) []byte {
	b := append(id.Bytes(), Short(len(payload)).Bytes()...)
	return append(b, payload...)
}

// splitField keeps distinct local and central payloads.
type splitField struct {
	local, central []byte
}

const splitFieldID Short = 0x6666

func (s *splitField) HeaderID() Short               { return splitFieldID }
func (s *splitField) LocalFileDataLength() Short    { return Short(len(s.local)) }
func (s *splitField) LocalFileDataData() []byte     { return s.local }
func (s *splitField) CentralDirectoryLength() Short { return Short(len(s.central)) }
func (s *splitField) CentralDirectoryData() []byte  { return s.central }

func (s *splitField) ParseFromLocalFileData(data []byte) error {
	s.local = data
	return nil
}

func (s *splitField) ParseFromCentralDirectoryData(data []byte) error {
	s.central = data
	return nil
}

func TestExtraFieldRegistry_Register(t *testing.T) {
	tests := []struct {
		name    string
		id      Short
		factory func() ExtraField
		wantErr bool
	}{
		{"valid", splitFieldID, func() ExtraField { return &splitField{} }, false},
		{"nil factory", splitFieldID, nil, true},
		{"factory returns nil", splitFieldID, func() ExtraField { return nil }, true},
		{"header id mismatch", 0x1234, func() ExtraField { return &splitField{} }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewEmptyExtraFieldRegistry()
			err := r.Register(tt.id, tt.factory)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Register() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr && !errors.Is(err, ErrRegistration) {
				t.Errorf("Register() error = %v, want ErrRegistration", err)
			}
		})
	}
}

func TestExtraFieldRegistry_CreateExtraField(t *testing.T) {
	r := NewExtraFieldRegistry()

	assert.IsType(t, &AsiExtraField{}, r.CreateExtraField(AsiHeaderID))
	assert.IsType(t, JarMarker{}, r.CreateExtraField(JarMarkerHeaderID))
	assert.IsType(t, &UnicodePathExtraField{}, r.CreateExtraField(UnicodePathHeaderID))

	f := r.CreateExtraField(0x4242)
	require.IsType(t, &UnrecognizedExtraField{}, f)
	assert.Equal(t, Short(0x4242), f.HeaderID())

	empty := NewEmptyExtraFieldRegistry()
	assert.IsType(t, &UnrecognizedExtraField{}, empty.CreateExtraField(AsiHeaderID))
}

func TestExtraFieldRegistry_RegisterReplaces(t *testing.T) {
	r := NewExtraFieldRegistry()
	require.NoError(t, r.Register(AsiHeaderID, func() ExtraField {
		return &UnrecognizedExtraField{headerID: AsiHeaderID}
	}))
	assert.IsType(t, &UnrecognizedExtraField{}, r.CreateExtraField(AsiHeaderID))
}

func TestParse_TrailingData(t *testing.T) {
	overrun := []byte{0x22, 0x22, 0x09, 0x00, 'x'} // declares 9 bytes, has 1
	stub := []byte{0x01, 0x02}                    // too short for a header

	tests := []struct {
		name      string
		tail      []byte
		mode      UnparseableMode
		wantErr   bool
		wantCount int
	}{
		{"overrun throw", overrun, UnparseableThrow, true, 0},
		{"overrun skip", overrun, UnparseableSkip, false, 1},
		{"overrun read", overrun, UnparseableRead, false, 2},
		{"stub throw", stub, UnparseableThrow, true, 0},
		{"stub skip", stub, UnparseableSkip, false, 1},
		{"stub read", stub, UnparseableRead, false, 2},
	}

	r := NewExtraFieldRegistry()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := append(block(0x1111, "ab"), tt.tail...)
			fields, err := r.Parse(data, true, tt.mode)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrFormat)
				return
			}
			require.NoError(t, err)
			require.Len(t, fields, tt.wantCount)
			assert.Equal(t, []byte("ab"), fields[0].LocalFileDataData())

			if tt.mode == UnparseableRead {
				u, ok := fields[1].(*UnparseableExtraFieldData)
				require.True(t, ok, "last field is %T", fields[1])
				assert.Equal(t, tt.tail, u.LocalFileDataData())
				// the raw tail is written back unchanged
				assert.Equal(t, data, MergeLocalFileDataData(fields))
			}
		})
	}
}

func TestParseAll_Strict(t *testing.T) {
	r := NewExtraFieldRegistry()

	_, err := r.ParseAll([]byte{0x11, 0x11, 0x05, 0x00, 'a'})
	assert.ErrorIs(t, err, ErrFormat)

	fields, err := r.ParseAll(nil)
	require.NoError(t, err)
	assert.Empty(t, fields)
}

func TestParse_FieldError(t *testing.T) {
	r := NewExtraFieldRegistry()
	_, err := r.Parse(block(JarMarkerHeaderID, "x"), true, UnparseableRead)
	assert.ErrorIs(t, err, ErrFormat)
}

func TestMergeParse_RoundTrip(t *testing.T) {
	asi := NewAsiExtraField()
	asi.SetMode(0644)
	asi.SetUserID(1000)
	asi.SetGroupID(100)

	unknown := &UnrecognizedExtraField{}
	unknown.SetHeaderID(0x9999)
	unknown.SetLocalFileDataData([]byte("zz"))

	fields := []ExtraField{
		asi,
		unknown,
		NewUnicodePathExtraField("päth.txt", []byte("path.txt")),
		JarMarker{},
	}

	got, err := NewExtraFieldRegistry().ParseAll(MergeLocalFileDataData(fields))
	require.NoError(t, err)

	opts := cmp.AllowUnexported(AsiExtraField{}, UnrecognizedExtraField{}, UnicodePathExtraField{})
	if diff := cmp.Diff(fields, got, opts); diff != "" {
		t.Errorf("ParseAll(MergeLocalFileDataData()) mismatch (-want +got):\n%s", diff)
	}
}

func TestMergeCentralDirectoryData(t *testing.T) {
	unknown := &UnrecognizedExtraField{headerID: 0x7777}
	unknown.SetLocalFileDataData([]byte("local"))
	split := &splitField{local: []byte("L"), central: []byte("central")}

	got := MergeCentralDirectoryData([]ExtraField{unknown, split})
	want := append(block(0x7777, "local"), block(splitFieldID, "central")...)
	assert.Equal(t, want, got)

	unknown.SetCentralDirectoryData([]byte("cd"))
	got = MergeCentralDirectoryData([]ExtraField{unknown})
	assert.Equal(t, block(0x7777, "cd"), got)
}

func TestUnrecognizedExtraField_CentralFallsBackToLocal(t *testing.T) {
	u := &UnrecognizedExtraField{}
	require.NoError(t, u.ParseFromCentralDirectoryData([]byte("cd")))
	assert.Equal(t, []byte("cd"), u.LocalFileDataData(), "local data set from central")

	require.NoError(t, u.ParseFromLocalFileData([]byte("local")))
	assert.Equal(t, []byte("cd"), u.CentralDirectoryData())
	assert.Equal(t, Short(5), u.LocalFileDataLength())
	assert.Equal(t, Short(2), u.CentralDirectoryLength())
}

func TestParse_CopiesPayload(t *testing.T) {
	data := block(0x5555, "abc")
	fields, err := NewExtraFieldRegistry().ParseAll(data)
	require.NoError(t, err)

	data[4] = 'X'
	if !bytes.Equal(fields[0].LocalFileDataData(), []byte("abc")) {
		t.Errorf("parsed payload aliases input: %q", fields[0].LocalFileDataData())
	}
}
