// Package fileio holds small io wrappers shared by the builder and readers.
package fileio

import (
	"errors"
	"hash"
	"io"
)

// ErrOverflow indicates a counter exceeded its maximum value.
var ErrOverflow = errors.New("counter overflow")

// CountingWriter wraps a writer and counts bytes written. N is the position
// of the next byte written to a file opened for writing at offset zero.
type CountingWriter struct {
	W io.Writer
	N uint64
}

// Write implements io.Writer.
func (cw *CountingWriter) Write(p []byte) (int, error) {
	n, err := cw.W.Write(p)
	if n > 0 {
		//nolint:gosec // n is guaranteed non-negative by io.Writer contract
		if cw.N > ^uint64(0)-uint64(n) {
			return n, ErrOverflow
		}
		cw.N += uint64(n) //nolint:gosec // overflow checked above
	}
	return n, err
}

// HashingReader wraps an io.Reader and feeds every byte read into one or
// more hashes.
type HashingReader struct {
	r io.Reader
	w io.Writer
}

// NewHashingReader creates a reader that updates each hash while reading.
func NewHashingReader(r io.Reader, hashes ...hash.Hash) *HashingReader {
	ws := make([]io.Writer, len(hashes))
	for i, h := range hashes {
		ws[i] = h
	}
	return &HashingReader{r: r, w: io.MultiWriter(ws...)}
}

// Read implements io.Reader.
func (hr *HashingReader) Read(p []byte) (int, error) {
	n, err := hr.r.Read(p)
	if n > 0 {
		_, _ = hr.w.Write(p[:n]) //nolint:errcheck // hash writes never fail
	}
	return n, err
}
