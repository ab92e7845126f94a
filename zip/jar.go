// Copyright 2025 Lemon4ksan. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package zip

import "fmt"

// JarMarkerHeaderID marks the first entry of an executable JAR.
const JarMarkerHeaderID Short = 0xcafe

// JarMarker is an empty extra field that flags a JAR archive.
type JarMarker struct{}

func (JarMarker) HeaderID() Short               { return JarMarkerHeaderID }
func (JarMarker) LocalFileDataLength() Short    { return 0 }
func (JarMarker) LocalFileDataData() []byte     { return nil }
func (JarMarker) CentralDirectoryLength() Short { return 0 }
func (JarMarker) CentralDirectoryData() []byte  { return nil }

func (JarMarker) ParseFromLocalFileData(data []byte) error {
	if len(data) != 0 {
		return fmt.Errorf("%w: jar marker carries %d bytes of data", ErrFormat, len(data))
	}
	return nil
}
