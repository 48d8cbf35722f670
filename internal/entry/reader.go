// Package entry implements the per-lookup reader over one directory entry.
//
// An entry's logical bytes are its preload bytes (inline in the index file
// tree) followed by its body, which lives either in the embedded data
// section of the index file or in a numbered data file. The reader hides
// that split behind io.Reader, io.Seeker, and io.ReaderAt.
package entry

import (
	"errors"
	"fmt"
	"io"

	"github.com/meigma/vpk/internal/layout"
	"github.com/meigma/vpk/internal/sizing"
	"github.com/meigma/vpk/internal/tree"
	"github.com/meigma/vpk/internal/vpktype"
)

// Reader streams one entry. Each Reader owns its cursor; many readers may
// share the same handle and streams.
type Reader struct {
	h     *tree.Handle
	index io.ReaderAt
	data  io.ReaderAt
	pos   uint64
}

// New returns a reader over h. index backs preload and embedded bytes; data
// backs the body of an external entry and may be nil for embedded entries.
//
// New panics if h is external and data is nil.
func New(h *tree.Handle, index, data io.ReaderAt) *Reader {
	if _, ok := h.Location.(layout.External); ok && data == nil && !h.Entry.PreloadOnly() {
		panic(fmt.Sprintf("entry: %s is stored in a data file but no data stream was given", h.Key))
	}
	return &Reader{h: h, index: index, data: data}
}

// Handle returns the directory handle the reader was built from.
func (r *Reader) Handle() *tree.Handle { return r.h }

// Size returns the entry's logical size.
func (r *Reader) Size() int64 {
	// TotalSize is at most 0xFFFF + 0xFFFFFFFF.
	return int64(r.h.TotalSize()) //nolint:gosec // bounded by the record widths
}

// Read reads from the current position. It returns io.EOF at the end of the
// entry.
func (r *Reader) Read(p []byte) (int, error) {
	if r.pos >= r.h.TotalSize() {
		return 0, io.EOF
	}
	n, err := r.readAt(p, r.pos)
	r.pos += uint64(n) //nolint:gosec // n is non-negative
	return n, err
}

// ReadAt reads len(p) bytes at logical offset off without moving the cursor.
func (r *Reader) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, fmt.Errorf("entry %s: negative offset %d", r.h.Key, off)
	}
	uoff := uint64(off)
	if uoff >= r.h.TotalSize() {
		return 0, io.EOF
	}
	n, err := r.readAt(p, uoff)
	if err == nil && n < len(p) {
		err = io.EOF
	}
	return n, err
}

// Seek moves the cursor and clamps the result to [0, Size()].
// io.SeekEnd offsets count backwards from the end when negative.
func (r *Reader) Seek(offset int64, whence int) (int64, error) {
	total := r.Size()
	var pos int64
	switch whence {
	case io.SeekStart:
		pos = offset
	case io.SeekEnd:
		pos = total + offset
	case io.SeekCurrent:
		pos = int64(r.pos) + offset //nolint:gosec // pos never exceeds Size()
	default:
		return 0, fmt.Errorf("entry %s: invalid whence %d", r.h.Key, whence)
	}
	pos = min(max(pos, 0), total)
	r.pos = uint64(pos)
	return pos, nil
}

// readAt fills as much of p as the entry holds from off, splitting the read
// at the end of the preload bytes. off must be below TotalSize.
func (r *Reader) readAt(p []byte, off uint64) (int, error) {
	total := r.h.TotalSize()
	if remain := total - off; uint64(len(p)) > remain {
		p = p[:remain]
	}
	preloadEnd := r.h.PreloadSize()

	n := 0
	if off < preloadEnd {
		k := min(uint64(len(p)), preloadEnd-off)
		m, err := readFull(r.index, p[:k], r.h.PreloadPosition+off)
		n += m
		if err != nil {
			return n, fmt.Errorf("entry %s: read preload: %w", r.h.Key, err)
		}
		off += k
	}
	if n == len(p) {
		return n, nil
	}

	rel := off - preloadEnd
	var (
		src io.ReaderAt
		at  uint64
	)
	switch loc := r.h.Location.(type) {
	case layout.Embedded:
		src = r.index
		at = r.h.EmbeddedDataStart + uint64(loc.Offset) + rel
	case layout.External:
		src = r.data
		at = uint64(loc.Offset) + rel
	}
	m, err := readFull(src, p[n:], at)
	n += m
	if err != nil {
		return n, fmt.Errorf("entry %s: read body: %w", r.h.Key, err)
	}
	return n, nil
}

// readFull reads exactly len(p) bytes at off. A short underlying read means
// the archive file is truncated and is reported as io.ErrUnexpectedEOF.
func readFull(src io.ReaderAt, p []byte, off uint64) (int, error) {
	ioff, err := sizing.ToInt64(off, vpktype.ErrSizeOverflow)
	if err != nil {
		return 0, err
	}
	n, err := src.ReadAt(p, ioff)
	if n == len(p) {
		return n, nil
	}
	if err == nil || errors.Is(err, io.EOF) {
		err = io.ErrUnexpectedEOF
	}
	return n, err
}
