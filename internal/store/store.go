// Package store manages the index file and numbered data files backing a VPK
// archive. Each file is a Stream: one shared seekable handle whose seek and
// read happen under a per-stream lock, so any number of entry readers can
// share a few descriptors.
package store

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"sync"

	"github.com/meigma/vpk/internal/layout"
	"github.com/meigma/vpk/internal/vpktype"
)

// Stream is a shared seekable handle. ReadAt is safe for concurrent use.
type Stream struct {
	name string

	mu     sync.Mutex
	rs     io.ReadSeeker
	size   int64
	closer io.Closer
	closed bool
}

// NewStream wraps rs. If rs implements io.Closer, Close closes it.
// The stream size is measured once by seeking to the end.
func NewStream(name string, rs io.ReadSeeker) (*Stream, error) {
	size, err := rs.Seek(0, io.SeekEnd)
	if err != nil {
		return nil, fmt.Errorf("measure %s: %w", name, err)
	}
	if _, err := rs.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("rewind %s: %w", name, err)
	}
	s := &Stream{name: name, rs: rs, size: size}
	if c, ok := rs.(io.Closer); ok {
		s.closer = c
	}
	return s, nil
}

// Name identifies the stream in errors and logs.
func (s *Stream) Name() string { return s.name }

// Size returns the stream length measured at construction.
func (s *Stream) Size() int64 { return s.size }

// ReadAt seeks to off and fills p as one critical section.
func (s *Stream) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, fmt.Errorf("%s: negative offset %d", s.name, off)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, fmt.Errorf("%s: %w", s.name, fs.ErrClosed)
	}
	if _, err := s.rs.Seek(off, io.SeekStart); err != nil {
		return 0, fmt.Errorf("seek %s: %w", s.name, err)
	}
	n, err := io.ReadFull(s.rs, p)
	if errors.Is(err, io.ErrUnexpectedEOF) {
		err = io.EOF
	}
	return n, err
}

// Close releases the underlying handle. Closing twice is a no-op.
func (s *Stream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if s.closer != nil {
		return s.closer.Close()
	}
	return nil
}

// Store is the handle table for one archive: the index stream plus data
// streams addressed by archive index.
type Store struct {
	index *Stream
	data  []*Stream
}

// New builds a store from already-open streams. data[i] backs archive index i.
func New(index *Stream, data ...*Stream) *Store {
	return &Store{index: index, data: data}
}

// OpenPath opens the index file at indexPath and every data file next to it,
// probing _000.vpk, _001.vpk, ... until the first missing one.
func OpenPath(indexPath string) (*Store, error) {
	prefix, err := Prefix(indexPath)
	if err != nil {
		return nil, err
	}
	index, err := openFile(indexPath)
	if err != nil {
		return nil, err
	}
	s := &Store{index: index}
	for i := 0; i < int(layout.EmbeddedArchiveIndex); i++ {
		st, err := openFile(DataPath(prefix, i))
		if errors.Is(err, fs.ErrNotExist) {
			break
		}
		if err != nil {
			_ = s.Close()
			return nil, err
		}
		s.data = append(s.data, st)
	}
	return s, nil
}

func openFile(path string) (*Stream, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	st, err := NewStream(path, f)
	if err != nil {
		f.Close()
		return nil, err
	}
	return st, nil
}

// Index returns the index file stream.
func (s *Store) Index() *Stream { return s.index }

// NumData returns the number of data streams.
func (s *Store) NumData() int { return len(s.data) }

// Data returns the stream for archive index i.
func (s *Store) Data(i uint16) (*Stream, error) {
	if int(i) >= len(s.data) {
		return nil, fmt.Errorf("%w: data file %03d", vpktype.ErrDoesNotExist, i)
	}
	return s.data[i], nil
}

// Close closes every stream once and joins their errors.
func (s *Store) Close() error {
	var errs []error
	if s.index != nil {
		errs = append(errs, s.index.Close())
	}
	for _, d := range s.data {
		errs = append(errs, d.Close())
	}
	return errors.Join(errs...)
}
