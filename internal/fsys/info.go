// Package fsys provides the fs.FileInfo and fs.DirEntry values used by the
// archive's fs.FS view, plus slash-path helpers for synthesizing directories.
package fsys

import (
	"io/fs"
	"strings"
	"time"
)

// FileMode is reported for every archive entry; the format stores no modes.
const FileMode fs.FileMode = 0o644

// Info implements fs.FileInfo for archive entries.
type Info struct {
	name string
	size int64
}

// NewInfo creates an Info for an entry of the given size.
func NewInfo(name string, size int64) *Info {
	return &Info{name: name, size: size}
}

func (fi *Info) Name() string       { return fi.name }
func (fi *Info) Size() int64        { return fi.size }
func (fi *Info) Mode() fs.FileMode  { return FileMode }
func (fi *Info) ModTime() time.Time { return time.Time{} }
func (fi *Info) IsDir() bool        { return false }
func (fi *Info) Sys() any           { return nil }

// DirInfo implements fs.FileInfo for synthetic directories.
type DirInfo struct {
	name string
}

// NewDirInfo creates a DirInfo with the given name.
func NewDirInfo(name string) *DirInfo {
	return &DirInfo{name: name}
}

func (di *DirInfo) Name() string       { return di.name }
func (di *DirInfo) Size() int64        { return 0 }
func (di *DirInfo) Mode() fs.FileMode  { return fs.ModeDir | 0o755 }
func (di *DirInfo) ModTime() time.Time { return time.Time{} }
func (di *DirInfo) IsDir() bool        { return true }
func (di *DirInfo) Sys() any           { return nil }

// DirEntry implements fs.DirEntry by wrapping fs.FileInfo.
type DirEntry struct {
	info fs.FileInfo
}

// NewDirEntry creates a DirEntry wrapping info.
func NewDirEntry(info fs.FileInfo) *DirEntry {
	return &DirEntry{info: info}
}

func (de *DirEntry) Name() string               { return de.info.Name() }
func (de *DirEntry) IsDir() bool                { return de.info.IsDir() }
func (de *DirEntry) Type() fs.FileMode          { return de.info.Mode().Type() }
func (de *DirEntry) Info() (fs.FileInfo, error) { return de.info, nil }

// Base returns the last element of a slash-separated path, or "." for the root.
func Base(name string) string {
	if name == "" || name == "." {
		return "."
	}
	if i := strings.LastIndexByte(name, '/'); i >= 0 {
		return name[i+1:]
	}
	return name
}

// DirPrefix converts a directory name to the prefix shared by its children.
// The root "." maps to the empty prefix.
func DirPrefix(name string) string {
	if name == "." {
		return ""
	}
	return name + "/"
}

// Child extracts the immediate child of prefix from name and reports whether
// the child is a directory.
func Child(name, prefix string) (child string, isDir bool) {
	rel := strings.TrimPrefix(name, prefix)
	if i := strings.IndexByte(rel, '/'); i >= 0 {
		return rel[:i], true
	}
	return rel, false
}
