// Copyright 2025 Lemon4ksan. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tar

import (
	"bytes"
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"
	"time"
)

// Pax record keywords understood by this package.
const (
	paxPath     = "path"
	paxLinkpath = "linkpath"
	paxSize     = "size"
	paxUID      = "uid"
	paxGID      = "gid"
	paxUname    = "uname"
	paxGname    = "gname"
	paxMtime    = "mtime"
	paxDevMajor = "SCHILY.devmajor"
	paxDevMinor = "SCHILY.devminor"
)

// maxSpecialFileSize bounds the content of long name and pax entries.
const maxSpecialFileSize = 1 << 20

// parsePaxRecords decodes "%d %s=%s\n" records.
func parsePaxRecords(data []byte) (map[string]string, error) {
	headers := make(map[string]string)
	data = bytes.TrimRight(data, "\x00")
	for len(data) > 0 {
		sp := bytes.IndexByte(data, ' ')
		if sp <= 0 {
			return nil, fmt.Errorf("%w: pax record without length", ErrFormat)
		}
		n, err := strconv.Atoi(string(data[:sp]))
		if err != nil || n <= sp+1 || n > len(data) {
			return nil, fmt.Errorf("%w: invalid pax record length %q", ErrFormat, data[:sp])
		}
		record := data[sp+1 : n]
		data = data[n:]

		if record[len(record)-1] != '\n' {
			return nil, fmt.Errorf("%w: pax record not terminated by newline", ErrFormat)
		}
		key, value, ok := strings.Cut(string(record[:len(record)-1]), "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("%w: malformed pax record %q", ErrFormat, record)
		}
		headers[key] = value
	}
	return headers, nil
}

// formatPaxRecord encodes a single record. The length prefix counts itself.
func formatPaxRecord(key, value string) string {
	size := len(key) + len(value) + 3
	size += len(strconv.Itoa(size))
	record := strconv.Itoa(size) + " " + key + "=" + value + "\n"
	if len(record) != size {
		size = len(record)
		record = strconv.Itoa(size) + " " + key + "=" + value + "\n"
	}
	return record
}

func formatPaxRecords(headers map[string]string) []byte {
	var buf bytes.Buffer
	for _, k := range slices.Sorted(maps.Keys(headers)) {
		buf.WriteString(formatPaxRecord(k, headers[k]))
	}
	return buf.Bytes()
}

// applyPaxHeaders overrides entry fields with pax values.
func applyPaxHeaders(e *Entry, headers map[string]string) error {
	for key, val := range headers {
		var err error
		switch key {
		case paxPath:
			e.Name = val
		case paxLinkpath:
			e.LinkName = val
		case paxUname:
			e.UserName = val
		case paxGname:
			e.GroupName = val
		case paxUID:
			e.UID, err = strconv.ParseInt(val, 10, 64)
		case paxGID:
			e.GID, err = strconv.ParseInt(val, 10, 64)
		case paxSize:
			e.Size, err = strconv.ParseInt(val, 10, 64)
			if err == nil && e.Size < 0 {
				err = fmt.Errorf("negative size")
			}
		case paxMtime:
			e.ModTime, err = parsePaxTime(val)
		case paxDevMajor:
			e.DevMajor, err = strconv.ParseInt(val, 10, 64)
		case paxDevMinor:
			e.DevMinor, err = strconv.ParseInt(val, 10, 64)
		}
		if err != nil {
			return fmt.Errorf("%w: pax %s=%q: %w", ErrFormat, key, val, err)
		}
	}
	return nil
}

// parsePaxTime parses decimal seconds with an optional fraction.
func parsePaxTime(s string) (time.Time, error) {
	secs, frac, _ := strings.Cut(s, ".")
	sec, err := strconv.ParseInt(secs, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	if frac == "" {
		return time.Unix(sec, 0), nil
	}
	if strings.Trim(frac, "0123456789") != "" {
		return time.Time{}, fmt.Errorf("invalid fraction %q", frac)
	}
	if len(frac) > 9 {
		frac = frac[:9]
	}
	frac += strings.Repeat("0", 9-len(frac))
	nsec, _ := strconv.ParseInt(frac, 10, 64)
	if strings.HasPrefix(secs, "-") {
		nsec = -nsec
	}
	return time.Unix(sec, nsec), nil
}
