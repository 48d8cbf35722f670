package vpk

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meigma/vpk/internal/testutil"
)

func TestCopyDir(t *testing.T) {
	t.Parallel()

	a := fsFixture(t)

	tests := []struct {
		name   string
		prefix string
		want   []string
	}{
		{name: "all", prefix: "", want: []string{"README", "gameinfo.txt", "materials/brick/wall.vmt", "materials/brick/wall.vtf", "sound/empty.wav"}},
		{name: "dot", prefix: ".", want: []string{"README", "gameinfo.txt", "materials/brick/wall.vmt", "materials/brick/wall.vtf", "sound/empty.wav"}},
		{name: "subtree", prefix: "/materials/", want: []string{"materials/brick/wall.vmt", "materials/brick/wall.vtf"}},
		{name: "single file", prefix: "gameinfo.txt", want: []string{"gameinfo.txt"}},
		{name: "no match", prefix: "models", want: nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			dest := t.TempDir()
			stats, err := a.CopyDir(context.Background(), dest, tt.prefix, CopyWithWorkers(2))
			require.NoError(t, err)
			assert.Equal(t, len(tt.want), stats.FileCount)

			for _, name := range tt.want {
				want, err := a.ReadFile(name)
				require.NoError(t, err)
				got, err := os.ReadFile(filepath.Join(dest, filepath.FromSlash(name)))
				require.NoError(t, err, name)
				assert.Equal(t, want, got, name)
			}
		})
	}
}

func TestCopyDir_SkipsExisting(t *testing.T) {
	t.Parallel()

	a := fsFixture(t)
	dest := t.TempDir()
	testutil.WriteFiles(t, dest, map[string][]byte{"gameinfo.txt": []byte("local edit")})

	stats, err := a.CopyDir(context.Background(), dest, ".")
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Skipped)
	assert.Equal(t, 4, stats.FileCount)
	got, err := os.ReadFile(filepath.Join(dest, "gameinfo.txt"))
	require.NoError(t, err)
	assert.Equal(t, "local edit", string(got))

	stats, err = a.CopyDir(context.Background(), dest, ".", CopyWithOverwrite(true), CopyWithWorkers(-1))
	require.NoError(t, err)
	assert.Zero(t, stats.Skipped)
	assert.Equal(t, 5, stats.FileCount)
	got, err = os.ReadFile(filepath.Join(dest, "gameinfo.txt"))
	require.NoError(t, err)
	assert.Equal(t, "\"GameInfo\" {}", string(got))
}

func TestCopyTo(t *testing.T) {
	t.Parallel()

	a := fsFixture(t)
	dest := t.TempDir()

	var (
		mu     sync.Mutex
		events []ProgressEvent
	)
	stats, err := a.CopyTo(context.Background(), dest,
		[]string{"materials/brick/wall.vtf", " /README. "},
		CopyWithProgress(func(ev ProgressEvent) {
			mu.Lock()
			events = append(events, ev)
			mu.Unlock()
		}))
	require.NoError(t, err)
	assert.Equal(t, 2, stats.FileCount)
	assert.Equal(t, uint64(2048+len("top-level, no extension")), stats.TotalBytes)
	assert.Len(t, events, 2)
	for _, ev := range events {
		assert.Equal(t, StageExtracting, ev.Stage)
		assert.Equal(t, 2, ev.FilesTotal)
	}
	assert.ElementsMatch(t, []string{"README", "materials"}, testutil.ListDir(t, dest))

	_, err = a.CopyTo(context.Background(), dest, []string{"nope/missing.txt"})
	require.ErrorIs(t, err, ErrDoesNotExist)
}

func TestCopyTo_RejectsEscapingNames(t *testing.T) {
	t.Parallel()

	a := openArchive(t, createArchive(t, []*EntryPrototype{
		proto(false, 0, "..", "escape", "txt", []byte("pwned")),
	}))
	_, ok := a.Entry("../escape.txt")
	require.True(t, ok)

	dest := t.TempDir()
	_, err := a.CopyTo(context.Background(), dest, []string{"../escape.txt"})
	require.ErrorIs(t, err, os.ErrInvalid)
	_, err = os.Stat(filepath.Join(filepath.Dir(dest), "escape.txt"))
	assert.True(t, os.IsNotExist(err))

	stats, err := a.CopyDir(context.Background(), dest, ".")
	require.NoError(t, err)
	assert.Zero(t, stats.FileCount, "names outside the fs view are not extracted")
}
