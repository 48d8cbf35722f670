package store

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meigma/vpk/internal/vpktype"
)

func TestPrefix(t *testing.T) {
	t.Parallel()

	tests := []struct {
		path    string
		want    string
		wantErr bool
	}{
		{"pak01_dir.vpk", "pak01_", false},
		{"/games/tf/pak01_dir.vpk", "/games/tf/pak01_", false},
		{"pak01_007.vpk", "pak01_", false},
		{"pak01.vpk", "", true},
		{"pak01_dir.zip", "", true},
		{"pak01_0a1.vpk", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			got, err := Prefix(tt.path)
			if tt.wantErr {
				require.ErrorIs(t, err, vpktype.ErrMalformedData)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNames(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "pak01_dir.vpk", DirName("pak01"))
	assert.Equal(t, "pak01_000.vpk", DataName("pak01", 0))
	assert.Equal(t, "pak01_012.vpk", DataName("pak01", 12))
	assert.Equal(t, "x/pak01_003.vpk", DataPath("x/pak01_", 3))
}

func TestStream_ReadAt(t *testing.T) {
	t.Parallel()

	s, err := NewStream("mem", bytes.NewReader([]byte("0123456789")))
	require.NoError(t, err)
	assert.Equal(t, int64(10), s.Size())

	p := make([]byte, 4)
	n, err := s.ReadAt(p, 3)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, "3456", string(p))

	n, err = s.ReadAt(p, 8)
	assert.Equal(t, 2, n)
	require.ErrorIs(t, err, io.EOF)

	_, err = s.ReadAt(p, -1)
	require.Error(t, err)

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	_, err = s.ReadAt(p, 0)
	require.ErrorIs(t, err, os.ErrClosed)
}

func TestStream_ConcurrentReadAt(t *testing.T) {
	t.Parallel()

	data := make([]byte, 4096)
	for i := range data {
		data[i] = byte(i)
	}
	s, err := NewStream("mem", bytes.NewReader(data))
	require.NoError(t, err)

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			p := make([]byte, 16)
			for i := 0; i < 200; i++ {
				off := int64((g*331 + i*17) % (len(data) - len(p)))
				if _, err := s.ReadAt(p, off); err != nil {
					t.Error(err)
					return
				}
				if !bytes.Equal(p, data[off:off+16]) {
					t.Errorf("offset %d: interleaved read", off)
					return
				}
			}
		}(g)
	}
	wg.Wait()
}

func TestOpenPath_ProbesDataFiles(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "pak_dir.vpk"), []byte("index"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "pak_000.vpk"), []byte("zero"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "pak_001.vpk"), []byte("one"), 0o644))
	// A gap ends the sequence.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "pak_003.vpk"), []byte("three"), 0o644))

	s, err := OpenPath(filepath.Join(dir, "pak_dir.vpk"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	assert.Equal(t, 2, s.NumData())
	assert.Equal(t, int64(5), s.Index().Size())

	d1, err := s.Data(1)
	require.NoError(t, err)
	assert.Equal(t, int64(3), d1.Size())

	_, err = s.Data(2)
	require.ErrorIs(t, err, vpktype.ErrDoesNotExist)
}

func TestOpenPath_Missing(t *testing.T) {
	t.Parallel()

	_, err := OpenPath(filepath.Join(t.TempDir(), "none_dir.vpk"))
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestWriter_LazyDataFiles(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	w := NewWriter(dir, "pak")

	// Rotating before anything is open creates nothing.
	require.NoError(t, w.Rotate())
	assert.Equal(t, 0, w.NumData())

	idx, pos, out, err := w.DataFile()
	require.NoError(t, err)
	assert.Equal(t, uint16(0), idx)
	assert.Equal(t, uint64(0), pos)
	_, err = io.WriteString(out, "hello")
	require.NoError(t, err)

	idx, pos, _, err = w.DataFile()
	require.NoError(t, err)
	assert.Equal(t, uint16(0), idx)
	assert.Equal(t, uint64(5), pos)

	require.NoError(t, w.Rotate())
	idx, pos, out, err = w.DataFile()
	require.NoError(t, err)
	assert.Equal(t, uint16(1), idx)
	assert.Equal(t, uint64(0), pos)
	_, err = io.WriteString(out, "world!")
	require.NoError(t, err)

	require.NoError(t, w.WriteIndex(func(iw io.Writer) error {
		_, err := io.WriteString(iw, "idx")
		return err
	}))
	require.NoError(t, w.Close())
	assert.Equal(t, 2, w.NumData())

	got, err := os.ReadFile(filepath.Join(dir, "pak_000.vpk"))
	require.NoError(t, err)
	assert.Equal(t, "hello", string(got))
	got, err = os.ReadFile(filepath.Join(dir, "pak_001.vpk"))
	require.NoError(t, err)
	assert.Equal(t, "world!", string(got))
	got, err = os.ReadFile(filepath.Join(dir, "pak_dir.vpk"))
	require.NoError(t, err)
	assert.Equal(t, "idx", string(got))
}

func TestWriter_Abort(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	w := NewWriter(dir, "pak")
	_, _, out, err := w.DataFile()
	require.NoError(t, err)
	_, err = io.WriteString(out, "partial")
	require.NoError(t, err)

	require.NoError(t, w.Abort())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}
