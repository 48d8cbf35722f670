package store

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/meigma/vpk/internal/fileio"
	"github.com/meigma/vpk/internal/layout"
	"github.com/meigma/vpk/internal/vpktype"
)

// Writer creates the files of a new archive. Data files are opened lazily:
// the first DataFile call after construction or Rotate creates the next
// numbered file. Every file it creates is removed by Abort.
type Writer struct {
	dir  string
	base string

	next    int
	curIdx  int
	cur     *os.File
	buf     *bufio.Writer
	cw      *fileio.CountingWriter
	created []string
}

// NewWriter returns a writer for base inside dir. No file is created yet.
func NewWriter(dir, base string) *Writer {
	return &Writer{dir: dir, base: base, curIdx: -1}
}

// DataFile returns the archive index, current write position, and a writer
// for the open data file, creating the next data file if none is open.
func (w *Writer) DataFile() (uint16, uint64, io.Writer, error) {
	if w.cur == nil {
		if w.next >= int(layout.EmbeddedArchiveIndex) {
			return 0, 0, nil, fmt.Errorf("%w: data file index %d", vpktype.ErrSizeOverflow, w.next)
		}
		f, err := w.create(DataName(w.base, w.next))
		if err != nil {
			return 0, 0, nil, err
		}
		w.cur = f
		w.curIdx = w.next
		w.next++
		w.buf = bufio.NewWriter(f)
		w.cw = &fileio.CountingWriter{W: w.buf}
	}
	return uint16(w.curIdx), w.cw.N, w.cw, nil //nolint:gosec // bounded by EmbeddedArchiveIndex above
}

// Rotate closes the current data file. The next DataFile call opens a new one.
func (w *Writer) Rotate() error {
	if w.cur == nil {
		return nil
	}
	return w.closeCurrent()
}

// NumData is the number of data files created so far.
func (w *Writer) NumData() int { return w.next }

// WriteIndex creates the index file and fills it with write.
func (w *Writer) WriteIndex(write func(io.Writer) error) (err error) {
	f, err := w.create(DirName(w.base))
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil && cerr != nil {
			err = fmt.Errorf("close index file: %w", cerr)
		}
	}()
	bw := bufio.NewWriter(f)
	if err := write(bw); err != nil {
		return err
	}
	return bw.Flush()
}

// Close flushes and closes the open data file, if any.
func (w *Writer) Close() error {
	if w.cur == nil {
		return nil
	}
	return w.closeCurrent()
}

// Abort closes any open file and removes every file this writer created.
func (w *Writer) Abort() error {
	errs := []error{w.Close()}
	for _, path := range w.created {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	w.created = nil
	return errors.Join(errs...)
}

func (w *Writer) create(name string) (*os.File, error) {
	path := filepath.Join(w.dir, name)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", name, err)
	}
	w.created = append(w.created, path)
	return f, nil
}

func (w *Writer) closeCurrent() error {
	ferr := w.buf.Flush()
	cerr := w.cur.Close()
	w.cur, w.buf, w.cw = nil, nil, nil
	if ferr != nil {
		return fmt.Errorf("flush data file %03d: %w", w.curIdx, ferr)
	}
	if cerr != nil {
		return fmt.Errorf("close data file %03d: %w", w.curIdx, cerr)
	}
	return nil
}
