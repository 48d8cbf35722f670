// Package testutil holds fixtures shared by the vpk package tests.
package testutil

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
)

// Fixture contents used by the four-entry creation scenario. PreloadOnly is
// exactly 26 bytes so a 26-byte preload holds all of it; PreloadAndArchive is
// longer than its 21-byte preload.
var (
	PreloadOnly        = []byte("preload only: 26 bytes!!\r\n")
	ArchiveOnly        = []byte("This entry lives entirely in the numbered data file.\n")
	EmbeddedOnly       = []byte("This entry lives after the tree in the index file.\n")
	PreloadAndArchive  = []byte("first 21 are preload|and the remainder goes to the data file.\n")
	ScenarioDir        = "testing-folder"
	ScenarioPreloadLen = 21
)

// MockByteSource implements io.ReaderAt over a byte slice and counts reads.
type MockByteSource struct {
	data  []byte
	reads atomic.Int64
}

// NewMockByteSource returns a byte source backed by the provided data.
func NewMockByteSource(data []byte) *MockByteSource {
	return &MockByteSource{data: data}
}

// ReadAt implements io.ReaderAt semantics over the backing slice.
func (m *MockByteSource) ReadAt(p []byte, off int64) (int, error) {
	m.reads.Add(1)
	if off >= int64(len(m.data)) {
		return 0, io.EOF
	}
	n := copy(p, m.data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// Size returns the total size of the backing data.
func (m *MockByteSource) Size() int64 {
	return int64(len(m.data))
}

// Reads returns how many ReadAt calls the source has served.
func (m *MockByteSource) Reads() int64 {
	return m.reads.Load()
}

// Reader returns a fresh io.ReadSeeker over data.
func Reader(data []byte) io.ReadSeeker {
	return bytes.NewReader(data)
}

// Pattern returns n bytes of a repeating, position-dependent pattern so a
// misplaced read shows up as a content mismatch.
func Pattern(n int, seed byte) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(i*7) + seed
	}
	return b
}

// WriteFiles creates each slash-separated name under dir with its content.
func WriteFiles(tb testing.TB, dir string, files map[string][]byte) {
	tb.Helper()
	for name, content := range files {
		path := filepath.Join(dir, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			tb.Fatalf("mkdir %s: %v", name, err)
		}
		if err := os.WriteFile(path, content, 0o644); err != nil {
			tb.Fatalf("write %s: %v", name, err)
		}
	}
}

// FlipByte inverts every bit of the byte at off in the file at path.
func FlipByte(tb testing.TB, path string, off int64) {
	tb.Helper()
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		tb.Fatalf("open %s: %v", path, err)
	}
	defer f.Close()
	b := make([]byte, 1)
	if _, err := f.ReadAt(b, off); err != nil {
		tb.Fatalf("read %s at %d: %v", path, off, err)
	}
	b[0] = ^b[0]
	if _, err := f.WriteAt(b, off); err != nil {
		tb.Fatalf("write %s at %d: %v", path, off, err)
	}
}

// ListDir returns the names of the entries in dir, sorted.
func ListDir(tb testing.TB, dir string) []string {
	tb.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		tb.Fatalf("read dir %s: %v", dir, err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}
