// Copyright 2025 Lemon4ksan. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package zip

import (
	"fmt"
	"sync"
)

// extraHeaderLen is the size of the (id, length) prefix of an extra field block.
const extraHeaderLen = 4

// ExtraField is a typed block of a ZIP extra field. A field may encode
// different bytes in the local file header and in the central directory.
type ExtraField interface {
	HeaderID() Short
	LocalFileDataLength() Short
	LocalFileDataData() []byte
	CentralDirectoryLength() Short
	CentralDirectoryData() []byte
	// ParseFromLocalFileData fills the field from a local header payload.
	ParseFromLocalFileData(data []byte) error
}

// CentralDirectoryParser is implemented by fields whose central directory
// payload needs its own decoding.
type CentralDirectoryParser interface {
	ExtraField
	ParseFromCentralDirectoryData(data []byte) error
}

// UnparseableMode selects what Parse does with trailing bytes that do not
// form a complete (id, length, payload) block.
type UnparseableMode int

const (
	// UnparseableThrow fails with ErrFormat.
	UnparseableThrow UnparseableMode = iota
	// UnparseableSkip drops the trailing bytes.
	UnparseableSkip
	// UnparseableRead keeps them as UnparseableExtraFieldData.
	UnparseableRead
)

// ExtraFieldRegistry maps header ids to extra field implementations.
type ExtraFieldRegistry struct {
	mu        sync.RWMutex
	factories map[Short]func() ExtraField
}

// NewEmptyExtraFieldRegistry returns a registry that knows no fields.
func NewEmptyExtraFieldRegistry() *ExtraFieldRegistry {
	return &ExtraFieldRegistry{factories: make(map[Short]func() ExtraField)}
}

// NewExtraFieldRegistry returns a registry with the ASi Unix, JAR marker
// and Unicode path fields registered.
func NewExtraFieldRegistry() *ExtraFieldRegistry {
	r := NewEmptyExtraFieldRegistry()
	r.factories[AsiHeaderID] = func() ExtraField { return NewAsiExtraField() }
	r.factories[JarMarkerHeaderID] = func() ExtraField { return JarMarker{} }
	r.factories[UnicodePathHeaderID] = func() ExtraField { return &UnicodePathExtraField{} }
	return r
}

var defaultRegistry = NewExtraFieldRegistry()

// Register installs factory for id, replacing any earlier registration.
// The factory must produce a non-nil field reporting id as its header id.
func (r *ExtraFieldRegistry) Register(id Short, factory func() ExtraField) error {
	if factory == nil {
		return fmt.Errorf("%w: nil factory for %s", ErrRegistration, id)
	}
	sample := factory()
	if sample == nil {
		return fmt.Errorf("%w: factory for %s returned nil", ErrRegistration, id)
	}
	if got := sample.HeaderID(); got != id {
		return fmt.Errorf("%w: factory for %s produces header id %s", ErrRegistration, id, got)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[id] = factory
	return nil
}

// CreateExtraField returns a new instance of the field registered for id,
// or an UnrecognizedExtraField carrying id.
func (r *ExtraFieldRegistry) CreateExtraField(id Short) ExtraField {
	r.mu.RLock()
	factory, ok := r.factories[id]
	r.mu.RUnlock()
	if ok {
		return factory()
	}
	return &UnrecognizedExtraField{headerID: id}
}

// ParseAll strictly parses local extra field data.
func (r *ExtraFieldRegistry) ParseAll(data []byte) ([]ExtraField, error) {
	return r.Parse(data, true, UnparseableThrow)
}

// Parse splits data into extra fields. local selects which payload each
// field decodes; mode decides the fate of an incomplete trailing block.
func (r *ExtraFieldRegistry) Parse(data []byte, local bool, mode UnparseableMode) ([]ExtraField, error) {
	var fields []ExtraField
	start := 0
	for start < len(data) {
		var length int
		if start+extraHeaderLen <= len(data) {
			length = int(ShortFrom(data, start+2))
		}
		if start+extraHeaderLen > len(data) || start+extraHeaderLen+length > len(data) {
			switch mode {
			case UnparseableThrow:
				return nil, fmt.Errorf("%w: bad extra field starting at %d: %d bytes remain", ErrFormat, start, len(data)-start)
			case UnparseableRead:
				u := &UnparseableExtraFieldData{}
				tail := data[start:]
				if local {
					_ = u.ParseFromLocalFileData(tail)
				} else {
					_ = u.ParseFromCentralDirectoryData(tail)
				}
				fields = append(fields, u)
			}
			break
		}

		id := ShortFrom(data, start)
		payload := data[start+extraHeaderLen : start+extraHeaderLen+length]
		field := r.CreateExtraField(id)
		if err := parseField(field, payload, local); err != nil {
			return nil, fmt.Errorf("extra field %s: %w", id, err)
		}
		fields = append(fields, field)
		start += extraHeaderLen + length
	}
	return fields, nil
}

func parseField(f ExtraField, payload []byte, local bool) error {
	// fields decode from their own copy
	payload = append([]byte(nil), payload...)
	if cp, ok := f.(CentralDirectoryParser); ok && !local {
		return cp.ParseFromCentralDirectoryData(payload)
	}
	return f.ParseFromLocalFileData(payload)
}

// MergeLocalFileDataData encodes fields as local header extra data.
// A trailing UnparseableExtraFieldData is written out raw.
func MergeLocalFileDataData(fields []ExtraField) []byte {
	return merge(fields, ExtraField.LocalFileDataData)
}

// MergeCentralDirectoryData encodes fields as central directory extra data.
// A trailing UnparseableExtraFieldData is written out raw.
func MergeCentralDirectoryData(fields []ExtraField) []byte {
	return merge(fields, ExtraField.CentralDirectoryData)
}

func merge(fields []ExtraField, payload func(ExtraField) []byte) []byte {
	var out []byte
	for i, f := range fields {
		data := payload(f)
		if _, ok := f.(*UnparseableExtraFieldData); ok && i == len(fields)-1 {
			out = append(out, data...)
			continue
		}
		out = append(out, f.HeaderID().Bytes()...)
		out = append(out, Short(len(data)).Bytes()...)
		out = append(out, data...)
	}
	return out
}

// UnrecognizedExtraField keeps the payload of a field no implementation is
// registered for.
type UnrecognizedExtraField struct {
	headerID Short
	local    []byte
	central  []byte
}

func (u *UnrecognizedExtraField) HeaderID() Short      { return u.headerID }
func (u *UnrecognizedExtraField) SetHeaderID(id Short) { u.headerID = id }

func (u *UnrecognizedExtraField) LocalFileDataLength() Short { return Short(len(u.local)) }
func (u *UnrecognizedExtraField) LocalFileDataData() []byte  { return u.local }

// SetLocalFileDataData sets the local payload.
func (u *UnrecognizedExtraField) SetLocalFileDataData(data []byte) { u.local = data }

func (u *UnrecognizedExtraField) CentralDirectoryLength() Short {
	return Short(len(u.CentralDirectoryData()))
}

// CentralDirectoryData returns the central payload, falling back to the local one.
func (u *UnrecognizedExtraField) CentralDirectoryData() []byte {
	if u.central != nil {
		return u.central
	}
	return u.local
}

// SetCentralDirectoryData sets the central payload.
func (u *UnrecognizedExtraField) SetCentralDirectoryData(data []byte) { u.central = data }

func (u *UnrecognizedExtraField) ParseFromLocalFileData(data []byte) error {
	u.local = data
	return nil
}

func (u *UnrecognizedExtraField) ParseFromCentralDirectoryData(data []byte) error {
	u.central = data
	if u.local == nil {
		u.local = data
	}
	return nil
}

// UnparseableHeaderID is the placeholder id reported by UnparseableExtraFieldData.
const UnparseableHeaderID Short = 0xacc1

// UnparseableExtraFieldData holds trailing extra bytes that do not form a
// well-formed block. It is written back verbatim.
type UnparseableExtraFieldData struct {
	local   []byte
	central []byte
}

func (u *UnparseableExtraFieldData) HeaderID() Short { return UnparseableHeaderID }

func (u *UnparseableExtraFieldData) LocalFileDataLength() Short { return Short(len(u.local)) }
func (u *UnparseableExtraFieldData) LocalFileDataData() []byte  { return u.local }

func (u *UnparseableExtraFieldData) CentralDirectoryLength() Short {
	return Short(len(u.CentralDirectoryData()))
}

func (u *UnparseableExtraFieldData) CentralDirectoryData() []byte {
	if u.central != nil {
		return u.central
	}
	return u.local
}

func (u *UnparseableExtraFieldData) ParseFromLocalFileData(data []byte) error {
	u.local = append([]byte(nil), data...)
	return nil
}

func (u *UnparseableExtraFieldData) ParseFromCentralDirectoryData(data []byte) error {
	u.central = append([]byte(nil), data...)
	if u.local == nil {
		u.local = u.central
	}
	return nil
}
