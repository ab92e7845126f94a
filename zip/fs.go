package zip

import (
	"io"
	"io/fs"
	"sort"
	"strings"
	"time"
)

var (
	_ fs.FS        = (*zipFS)(nil)
	_ fs.StatFS    = (*zipFS)(nil)
	_ fs.ReadDirFS = (*zipFS)(nil)
)

// FS returns a read-only fs.FS view of the archive. Directories that only
// appear as path prefixes are synthesized.
func (r *Reader) FS() fs.FS { return &zipFS{r: r} }

type zipFS struct {
	r *Reader
}

// Open implements fs.FS.
func (zfs *zipFS) Open(name string) (fs.File, error) {
	entry, err := zfs.lookup(name)
	if err != nil {
		return nil, &fs.PathError{Op: "open", Path: name, Err: err}
	}

	if entry.IsDir() {
		return &fsDir{entry: entry, prefix: dirPrefix(name), z: zfs.r}, nil
	}

	rc, err := zfs.r.Open(entry)
	if err != nil {
		return nil, &fs.PathError{Op: "open", Path: name, Err: err}
	}
	return &fsFile{entry: entry, rc: rc}, nil
}

// Stat implements fs.StatFS.
func (zfs *zipFS) Stat(name string) (fs.FileInfo, error) {
	entry, err := zfs.lookup(name)
	if err != nil {
		return nil, &fs.PathError{Op: "stat", Path: name, Err: err}
	}
	return entry.FileInfo(), nil
}

// ReadDir implements fs.ReadDirFS.
func (zfs *zipFS) ReadDir(name string) ([]fs.DirEntry, error) {
	file, err := zfs.Open(name)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	dir, ok := file.(fs.ReadDirFile)
	if !ok {
		return nil, &fs.PathError{Op: "readdir", Path: name, Err: fs.ErrInvalid}
	}
	return dir.ReadDir(-1)
}

// lookup resolves the root, explicit entries and implicit directories.
func (zfs *zipFS) lookup(name string) (*Entry, error) {
	if !fs.ValidPath(name) {
		return nil, fs.ErrInvalid
	}
	if name == "." {
		return syntheticDir("./"), nil
	}
	if e := zfs.r.Entry(name); e != nil {
		return e, nil
	}
	if e := zfs.r.Entry(name + "/"); e != nil {
		return e, nil
	}

	prefix := name + "/"
	for _, e := range zfs.r.entries {
		if strings.HasPrefix(e.name, prefix) {
			return syntheticDir(prefix), nil
		}
	}
	return nil, fs.ErrNotExist
}

func syntheticDir(name string) *Entry {
	e := NewEntry(name)
	e.modTime = time.Unix(0, 0).UTC()
	e.SetUnixMode(0040755)
	return e
}

func dirPrefix(name string) string {
	if name == "." {
		return ""
	}
	return name + "/"
}

// fsFile wraps a regular file stream to satisfy fs.File
type fsFile struct {
	entry *Entry
	rc    io.ReadCloser
}

func (f *fsFile) Stat() (fs.FileInfo, error) { return f.entry.FileInfo(), nil }
func (f *fsFile) Read(b []byte) (int, error) { return f.rc.Read(b) }
func (f *fsFile) Close() error               { return f.rc.Close() }

// fsDir wraps a directory entry to satisfy fs.ReadDirFile
type fsDir struct {
	entry  *Entry
	prefix string
	z      *Reader
	list   []fs.DirEntry
	offset int
	listed bool
}

func (d *fsDir) Stat() (fs.FileInfo, error) { return d.entry.FileInfo(), nil }
func (d *fsDir) Close() error               { return nil }
func (d *fsDir) Read(b []byte) (int, error) {
	return 0, &fs.PathError{Op: "read", Path: d.entry.name, Err: fs.ErrInvalid}
}

// ReadDir lists the direct children of the directory.
func (d *fsDir) ReadDir(n int) ([]fs.DirEntry, error) {
	if !d.listed {
		d.list = d.children()
		d.listed = true
	}

	rest := d.list[d.offset:]
	if n <= 0 {
		d.offset = len(d.list)
		return rest, nil
	}
	if len(rest) == 0 {
		return nil, io.EOF
	}
	n = min(n, len(rest))
	d.offset += n
	return rest[:n], nil
}

func (d *fsDir) children() []fs.DirEntry {
	seen := make(map[string]bool)
	var entries []fs.DirEntry

	for _, e := range d.z.entries {
		if !strings.HasPrefix(e.name, d.prefix) {
			continue
		}
		rel := strings.TrimPrefix(e.name, d.prefix)
		if rel == "" {
			continue
		}

		parts := strings.SplitN(rel, "/", 2)
		childName := parts[0]
		if seen[childName] {
			continue
		}
		seen[childName] = true

		info := e.FileInfo()
		if len(parts) > 1 && parts[1] != "" {
			dir := d.z.Entry(d.prefix + childName + "/")
			if dir == nil {
				dir = syntheticDir(d.prefix + childName + "/")
			}
			info = dir.FileInfo()
		}
		entries = append(entries, fs.FileInfoToDirEntry(info))
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})
	return entries
}
