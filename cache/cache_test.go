package cache

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meigma/vpk/internal/testutil"
)

func TestReaderReadAt(t *testing.T) {
	t.Parallel()

	data := testutil.Pattern(100, 3)
	tests := []struct {
		name    string
		off     int64
		n       int
		want    []byte
		wantErr error
	}{
		{name: "within block", off: 2, n: 4, want: data[2:6]},
		{name: "across blocks", off: 14, n: 10, want: data[14:24]},
		{name: "last block", off: 96, n: 4, want: data[96:]},
		{name: "past end", off: 98, n: 4, want: data[98:], wantErr: io.EOF},
		{name: "at end", off: 100, n: 4, want: []byte{}, wantErr: io.EOF},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c, err := New(t.TempDir())
			require.NoError(t, err)
			r, err := c.Wrap(testutil.NewMockByteSource(data), "src", WithBlockSize(16))
			require.NoError(t, err)

			buf := make([]byte, tt.n)
			n, err := r.ReadAt(buf, tt.off)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tt.want, buf[:n])
		})
	}
}

func TestReaderReusesBlocks(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	c, err := New(dir)
	require.NoError(t, err)
	src := testutil.NewMockByteSource([]byte("abcdefghijklmnopqrstuvwxyz"))
	r, err := c.Wrap(src, "letters", WithBlockSize(8))
	require.NoError(t, err)

	buf := make([]byte, 4)
	_, err = r.ReadAt(buf, 2)
	require.NoError(t, err)
	assert.Equal(t, "cdef", string(buf))
	assert.Equal(t, int64(1), src.Reads())

	buf = make([]byte, 3)
	_, err = r.ReadAt(buf, 5)
	require.NoError(t, err)
	assert.Equal(t, "fgh", string(buf))
	assert.Equal(t, int64(1), src.Reads(), "second read should hit the cache")
	assert.Equal(t, int64(8), c.SizeBytes())

	// A new cache over the same directory sees the stored block.
	reopened, err := New(dir)
	require.NoError(t, err)
	assert.Equal(t, int64(8), reopened.SizeBytes())
	r2, err := reopened.Wrap(src, "letters", WithBlockSize(8))
	require.NoError(t, err)
	_, err = r2.ReadAt(buf, 0)
	require.NoError(t, err)
	assert.Equal(t, "abc", string(buf))
	assert.Equal(t, int64(1), src.Reads())
}

func TestReaderBypassesLargeReads(t *testing.T) {
	t.Parallel()

	c, err := New(t.TempDir())
	require.NoError(t, err)
	src := testutil.NewMockByteSource(testutil.Pattern(64, 1))
	r, err := c.Wrap(src, "big", WithBlockSize(8), WithMaxBlocksPerRead(2))
	require.NoError(t, err)

	buf := make([]byte, 32)
	_, err = r.ReadAt(buf, 0)
	require.NoError(t, err)
	assert.Zero(t, c.SizeBytes())
	assert.Equal(t, int64(1), src.Reads())
}

func TestReaderSharesConcurrentFetches(t *testing.T) {
	t.Parallel()

	c, err := New(t.TempDir())
	require.NoError(t, err)
	data := testutil.Pattern(4096, 9)
	src := testutil.NewMockByteSource(data)
	r, err := c.Wrap(src, "shared", WithBlockSize(1024))
	require.NoError(t, err)

	var wg sync.WaitGroup
	for range 16 {
		wg.Go(func() {
			buf := make([]byte, 100)
			n, err := r.ReadAt(buf, 1500)
			assert.NoError(t, err)
			assert.Equal(t, data[1500:1600], buf[:n])
		})
	}
	wg.Wait()
	assert.LessOrEqual(t, src.Reads(), int64(16))
	assert.Equal(t, int64(1024), c.SizeBytes())
}

func TestMaxBytesPrunesOldest(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	c, err := New(dir, WithMaxBytes(16), WithShardPrefixLen(0))
	require.NoError(t, err)
	r, err := c.Wrap(testutil.NewMockByteSource(testutil.Pattern(32, 2)), "pruned", WithBlockSize(8))
	require.NoError(t, err)

	buf := make([]byte, 1)
	for off := int64(0); off < 32; off += 8 {
		_, err := r.ReadAt(buf, off)
		require.NoError(t, err)
		// Distinct mtimes keep the eviction order deterministic.
		entries, err := os.ReadDir(dir)
		require.NoError(t, err)
		past := time.Now().Add(-time.Hour)
		for i, e := range entries {
			require.NoError(t, os.Chtimes(filepath.Join(dir, e.Name()), past, past.Add(time.Duration(i)*time.Second)))
		}
	}
	assert.LessOrEqual(t, c.SizeBytes(), int64(16))

	freed, err := c.Prune(0)
	require.NoError(t, err)
	assert.Positive(t, freed)
	assert.Zero(t, c.SizeBytes())
}

func TestWrapErrors(t *testing.T) {
	t.Parallel()

	_, err := New("")
	require.Error(t, err)
	_, err = New(t.TempDir(), WithMaxBytes(-1))
	require.Error(t, err)

	c, err := New(t.TempDir())
	require.NoError(t, err)
	src := testutil.NewMockByteSource([]byte("x"))
	_, err = c.Wrap(nil, "id")
	require.Error(t, err)
	_, err = c.Wrap(src, "")
	require.Error(t, err)
	_, err = c.Wrap(src, "id", WithBlockSize(0))
	require.Error(t, err)
}

type failingSource struct{}

func (failingSource) ReadAt([]byte, int64) (int, error) { return 0, errors.New("boom") }
func (failingSource) Size() int64                       { return 10 }

func TestReaderSourceError(t *testing.T) {
	t.Parallel()

	c, err := New(t.TempDir())
	require.NoError(t, err)
	r, err := c.Wrap(failingSource{}, "broken")
	require.NoError(t, err)
	_, err = r.ReadAt(make([]byte, 4), 0)
	require.EqualError(t, err, "boom")
	assert.Zero(t, c.SizeBytes())
}
