package platform

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenRegular(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("hello"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub"), 0o755))

	root, err := os.OpenRoot(dir)
	require.NoError(t, err)
	t.Cleanup(func() { root.Close() })

	f, info, err := OpenRegular(root, "a.txt")
	require.NoError(t, err)
	assert.Equal(t, int64(5), info.Size())
	require.NoError(t, f.Close())

	_, _, err = OpenRegular(root, "sub")
	require.ErrorIs(t, err, ErrNotRegular)

	_, _, err = OpenRegular(root, "missing.txt")
	require.ErrorIs(t, err, os.ErrNotExist)

	if err := os.Symlink("a.txt", filepath.Join(dir, "link.txt")); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}
	_, _, err = OpenRegular(root, "link.txt")
	require.ErrorIs(t, err, ErrSymlink)
}
