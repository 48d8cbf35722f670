package vpk

import (
	"fmt"
	"hash/crc32"
	"io"
	"io/fs"
	"slices"
	"strings"

	"github.com/meigma/vpk/internal/fileio"
	"github.com/meigma/vpk/internal/fsys"
	"github.com/meigma/vpk/internal/tree"
)

// File is an open archive entry returned by Archive.Open.
type File interface {
	fs.File
	io.ReaderAt
	io.Seeker
}

// Open implements fs.FS.
//
// Names are slash-separated with the " " placeholders for an empty path or
// extension removed (see EntryInfo.Name). Directories are synthesized from
// entry names; the format does not store them.
func (a *Archive) Open(name string) (fs.File, error) {
	if !fs.ValidPath(name) {
		return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrInvalid}
	}
	if h, ok := a.names[name]; ok {
		r, err := a.reader(h)
		if err != nil {
			return nil, &fs.PathError{Op: "open", Path: name, Err: err}
		}
		return &file{EntryReader: r, name: name}, nil
	}
	if a.isDir(name) {
		return &openDir{a: a, name: name}, nil
	}
	return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrNotExist}
}

// Stat implements fs.StatFS.
func (a *Archive) Stat(name string) (fs.FileInfo, error) {
	if !fs.ValidPath(name) {
		return nil, &fs.PathError{Op: "stat", Path: name, Err: fs.ErrInvalid}
	}
	if h, ok := a.names[name]; ok {
		return fsys.NewInfo(fsys.Base(name), int64(h.TotalSize())), nil //nolint:gosec // bounded by record widths
	}
	if a.isDir(name) {
		return fsys.NewDirInfo(fsys.Base(name)), nil
	}
	return nil, &fs.PathError{Op: "stat", Path: name, Err: fs.ErrNotExist}
}

// ReadFile implements fs.ReadFileFS.
//
// When CRC verification is enabled (the default) and the entry records a
// non-zero CRC, a mismatch returns a *ValidationError for SectionEntryCRC.
func (a *Archive) ReadFile(name string) ([]byte, error) {
	if !fs.ValidPath(name) {
		return nil, &fs.PathError{Op: "readfile", Path: name, Err: fs.ErrInvalid}
	}
	h, ok := a.names[name]
	if !ok {
		return nil, &fs.PathError{Op: "readfile", Path: name, Err: fs.ErrNotExist}
	}
	content, err := a.readAll(h)
	if err != nil {
		return nil, &fs.PathError{Op: "readfile", Path: name, Err: err}
	}
	return content, nil
}

// readAll reads an entry and checks its CRC.
func (a *Archive) readAll(h *tree.Handle) ([]byte, error) {
	r, err := a.reader(h)
	if err != nil {
		return nil, err
	}
	content := make([]byte, r.Size())
	if _, err := io.ReadFull(r, content); err != nil {
		return nil, err
	}
	if err := a.checkCRC(h, crc32.ChecksumIEEE(content)); err != nil {
		return nil, err
	}
	return content, nil
}

// copyEntry streams an entry to w, checking its CRC on the way.
func (a *Archive) copyEntry(w io.Writer, h *tree.Handle) (int64, error) {
	r, err := a.reader(h)
	if err != nil {
		return 0, err
	}
	sum := crc32.NewIEEE()
	n, err := io.Copy(w, fileio.NewHashingReader(r, sum))
	if err != nil {
		return n, err
	}
	return n, a.checkCRC(h, sum.Sum32())
}

func (a *Archive) checkCRC(h *tree.Handle, got uint32) error {
	if !a.verifyCRC || h.Entry.CRC == 0 || h.Entry.CRC == got {
		return nil
	}
	a.log().Debug("crc mismatch", "key", h.Key, "want", h.Entry.CRC, "got", got)
	return fmt.Errorf("%s: %w", h.Key, &ValidationError{Section: SectionEntryCRC})
}

// ReadDir implements fs.ReadDirFS.
//
// ReadDir returns the entries of the named directory sorted by name.
func (a *Archive) ReadDir(name string) ([]fs.DirEntry, error) {
	if !fs.ValidPath(name) {
		return nil, &fs.PathError{Op: "readdir", Path: name, Err: fs.ErrInvalid}
	}
	if _, ok := a.names[name]; ok {
		return nil, &fs.PathError{Op: "readdir", Path: name, Err: fs.ErrInvalid}
	}
	entries := a.children(name)
	if len(entries) == 0 && name != "." {
		return nil, &fs.PathError{Op: "readdir", Path: name, Err: fs.ErrNotExist}
	}
	return entries, nil
}

// children lists the immediate children of directory name.
func (a *Archive) children(name string) []fs.DirEntry {
	prefix := fsys.DirPrefix(name)
	start, _ := slices.BinarySearch(a.sorted, prefix)

	seen := make(map[string]bool)
	entries := make([]fs.DirEntry, 0)
	for _, full := range a.sorted[start:] {
		if !strings.HasPrefix(full, prefix) {
			break
		}
		child, isDir := fsys.Child(full, prefix)
		key := child
		if isDir {
			key += "/"
		}
		if seen[key] {
			continue
		}
		seen[key] = true
		if isDir {
			entries = append(entries, fsys.NewDirEntry(fsys.NewDirInfo(child)))
			continue
		}
		h := a.names[full]
		entries = append(entries, fsys.NewDirEntry(fsys.NewInfo(child, int64(h.TotalSize())))) //nolint:gosec // bounded by record widths
	}
	slices.SortStableFunc(entries, func(x, y fs.DirEntry) int {
		return strings.Compare(x.Name(), y.Name())
	})
	return entries
}

// isDir reports whether any entry lives under name.
func (a *Archive) isDir(name string) bool {
	if name == "." {
		return true
	}
	prefix := name + "/"
	i, _ := slices.BinarySearch(a.sorted, prefix)
	return i < len(a.sorted) && strings.HasPrefix(a.sorted[i], prefix)
}

// file implements File for one entry.
type file struct {
	*EntryReader
	name string
}

func (f *file) Stat() (fs.FileInfo, error) {
	return fsys.NewInfo(fsys.Base(f.name), f.Size()), nil
}

func (f *file) Close() error { return nil }

// openDir implements fs.ReadDirFile for synthetic directories.
type openDir struct {
	a       *Archive
	name    string
	entries []fs.DirEntry
	loaded  bool
}

func (d *openDir) Read(_ []byte) (int, error) {
	return 0, &fs.PathError{Op: "read", Path: d.name, Err: fs.ErrInvalid}
}

func (d *openDir) Stat() (fs.FileInfo, error) {
	return fsys.NewDirInfo(fsys.Base(d.name)), nil
}

func (d *openDir) Close() error { return nil }

func (d *openDir) ReadDir(n int) ([]fs.DirEntry, error) {
	if !d.loaded {
		d.entries = d.a.children(d.name)
		d.loaded = true
	}
	if n <= 0 {
		out := d.entries
		d.entries = nil
		return out, nil
	}
	if len(d.entries) == 0 {
		return nil, io.EOF
	}
	n = min(n, len(d.entries))
	out := d.entries[:n]
	d.entries = d.entries[n:]
	return out, nil
}
