// Package tree reads and writes the VPK directory tree: null-terminated
// extension, path, and filename strings nested three deep, each filename
// followed by a fixed directory entry record and its preload bytes.
package tree

import (
	"bytes"
	"cmp"
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/meigma/vpk/internal/layout"
	"github.com/meigma/vpk/internal/vpktype"
)

// Handle is a decoded directory entry plus the absolute positions needed to
// read it. Handles are immutable and shared by every reader created for them.
type Handle struct {
	Key       string
	Path      string
	Filename  string
	Extension string

	Entry    layout.DirectoryEntry
	Location layout.Location

	// PreloadPosition is where the preload bytes begin in the index file.
	PreloadPosition uint64

	// EmbeddedDataStart is where the embedded data section begins in the
	// index file.
	EmbeddedDataStart uint64
}

// PreloadSize is the number of bytes stored inline in the tree.
func (h *Handle) PreloadSize() uint64 { return uint64(h.Entry.PreloadBytes) }

// TotalSize is the logical size of the entry's data.
func (h *Handle) TotalSize() uint64 { return h.Entry.TotalSize() }

// Directory is the decoded tree: handles in on-disk order plus a key index.
type Directory struct {
	Entries []*Handle
	Map     map[string]*Handle
}

// Lookup returns the handle stored under key.
func (d *Directory) Lookup(key string) (*Handle, bool) {
	h, ok := d.Map[key]
	return h, ok
}

// Key builds the lookup key "path/filename.extension".
func Key(path, filename, extension string) string {
	return path + "/" + filename + "." + extension
}

// SplitKey splits a lookup key at its last "/" and the last "." after it.
func SplitKey(key string) (path, filename, extension string, ok bool) {
	slash := strings.LastIndexByte(key, '/')
	if slash < 0 {
		return "", "", "", false
	}
	rest := key[slash+1:]
	dot := strings.LastIndexByte(rest, '.')
	if dot < 0 {
		return "", "", "", false
	}
	return key[:slash], rest[:dot], rest[dot+1:], true
}

// Decode parses tree bytes read from treeOffset in the index file.
// embeddedOffset is the absolute start of the embedded data section.
func Decode(b []byte, treeOffset, embeddedOffset uint64) (*Directory, error) {
	d := &Directory{Map: make(map[string]*Handle)}
	c := cursor{b: b}
	for {
		ext, err := c.string("extension")
		if err != nil {
			return nil, err
		}
		if ext == "" {
			return d, nil
		}
		for {
			path, err := c.string("path")
			if err != nil {
				return nil, err
			}
			if path == "" {
				break
			}
			for {
				name, err := c.string("filename")
				if err != nil {
					return nil, err
				}
				if name == "" {
					break
				}
				h, err := c.entry(path, name, ext, treeOffset, embeddedOffset)
				if err != nil {
					return nil, err
				}
				if _, dup := d.Map[h.Key]; dup {
					return nil, fmt.Errorf("%w: duplicate entry %q", vpktype.ErrMalformedData, h.Key)
				}
				d.Entries = append(d.Entries, h)
				d.Map[h.Key] = h
			}
		}
	}
}

type cursor struct {
	b   []byte
	pos int
}

func (c *cursor) string(what string) (string, error) {
	end := bytes.IndexByte(c.b[c.pos:], 0)
	if end < 0 {
		return "", fmt.Errorf("%w: unterminated %s at tree offset %d", vpktype.ErrMalformedData, what, c.pos)
	}
	s := string(c.b[c.pos : c.pos+end])
	c.pos += end + 1
	return s, nil
}

func (c *cursor) entry(path, name, ext string, treeOffset, embeddedOffset uint64) (*Handle, error) {
	key := Key(path, name, ext)
	if len(c.b)-c.pos < layout.DirectoryEntrySize {
		return nil, fmt.Errorf("%w: truncated entry record for %q", vpktype.ErrMalformedData, key)
	}
	e, err := layout.DecodeDirectoryEntry(c.b[c.pos : c.pos+layout.DirectoryEntrySize])
	if err != nil {
		return nil, fmt.Errorf("%s: %w", key, err)
	}
	c.pos += layout.DirectoryEntrySize

	h := &Handle{
		Key:               key,
		Path:              path,
		Filename:          name,
		Extension:         ext,
		Entry:             e,
		Location:          e.Location(),
		PreloadPosition:   treeOffset + uint64(c.pos),
		EmbeddedDataStart: embeddedOffset,
	}
	if len(c.b)-c.pos < int(e.PreloadBytes) {
		return nil, fmt.Errorf("%w: truncated preload bytes for %q", vpktype.ErrMalformedData, key)
	}
	c.pos += int(e.PreloadBytes)
	return h, nil
}

// Node is one entry to serialize. Source supplies the preload bytes: it is
// seeked to its start and Entry.PreloadBytes bytes are copied after the record.
type Node struct {
	Path      string
	Filename  string
	Extension string
	Entry     layout.DirectoryEntry
	Source    io.ReadSeeker
}

// Key returns the node's lookup key.
func (n *Node) Key() string { return Key(n.Path, n.Filename, n.Extension) }

// ValidateName checks that s can be stored as a tree string.
func ValidateName(what, s string) error {
	if s == "" {
		return fmt.Errorf("%w: empty %s", vpktype.ErrMalformedData, what)
	}
	for i := 0; i < len(s); i++ {
		if c := s[i]; c == 0 || c > 0x7F {
			return fmt.Errorf("%w: %s %q is not ASCII", vpktype.ErrMalformedData, what, s)
		}
	}
	return nil
}

// Sort validates node names and orders nodes by extension, path, and
// filename. It returns ErrAlreadyExists when two nodes share a key.
func Sort(nodes []*Node) error {
	for _, n := range nodes {
		if err := ValidateName("extension", n.Extension); err != nil {
			return err
		}
		if err := ValidateName("path", n.Path); err != nil {
			return err
		}
		if err := ValidateName("filename", n.Filename); err != nil {
			return err
		}
	}
	slices.SortStableFunc(nodes, compareNodes)
	for i := 1; i < len(nodes); i++ {
		if compareNodes(nodes[i-1], nodes[i]) == 0 {
			return fmt.Errorf("%w: %s", vpktype.ErrAlreadyExists, nodes[i].Key())
		}
	}
	return nil
}

func compareNodes(a, b *Node) int {
	return cmp.Or(
		cmp.Compare(a.Extension, b.Extension),
		cmp.Compare(a.Path, b.Path),
		cmp.Compare(a.Filename, b.Filename),
	)
}

// Encode sorts nodes and writes the tree to w.
func Encode(w io.Writer, nodes []*Node) error {
	if err := Sort(nodes); err != nil {
		return err
	}
	for i := 0; i < len(nodes); {
		ext := nodes[i].Extension
		if err := writeString(w, ext); err != nil {
			return err
		}
		for i < len(nodes) && nodes[i].Extension == ext {
			path := nodes[i].Path
			if err := writeString(w, path); err != nil {
				return err
			}
			for ; i < len(nodes) && nodes[i].Extension == ext && nodes[i].Path == path; i++ {
				if err := writeNode(w, nodes[i]); err != nil {
					return fmt.Errorf("%s: %w", nodes[i].Key(), err)
				}
			}
			if err := writeString(w, ""); err != nil {
				return err
			}
		}
		if err := writeString(w, ""); err != nil {
			return err
		}
	}
	return writeString(w, "")
}

func writeString(w io.Writer, s string) error {
	if _, err := io.WriteString(w, s); err != nil {
		return err
	}
	_, err := w.Write([]byte{0})
	return err
}

func writeNode(w io.Writer, n *Node) error {
	if err := writeString(w, n.Filename); err != nil {
		return err
	}
	if _, err := w.Write(n.Entry.Encode()); err != nil {
		return err
	}
	if n.Entry.PreloadBytes == 0 {
		return nil
	}
	if n.Source == nil {
		return fmt.Errorf("%w: no source for %d preload bytes", vpktype.ErrMalformedData, n.Entry.PreloadBytes)
	}
	if _, err := n.Source.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("seek preload: %w", err)
	}
	if _, err := io.CopyN(w, n.Source, int64(n.Entry.PreloadBytes)); err != nil {
		return fmt.Errorf("copy preload: %w", err)
	}
	return nil
}
