package vpk

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/opencontainers/go-digest"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meigma/vpk/internal/testutil"
)

func TestInspect(t *testing.T) {
	t.Parallel()

	indexPath := createArchive(t, []*EntryPrototype{
		proto(false, 0, "a", "ext", "bin", testutil.Pattern(100, 1)),
		proto(true, 0, "a", "emb", "bin", testutil.Pattern(40, 2)),
		proto(false, 5, "a", "pre", "bin", testutil.Pattern(5, 3)),
		proto(false, 10, "a", "both", "bin", testutil.Pattern(30, 4)),
	})
	a := openArchive(t, indexPath)

	r, err := a.Inspect(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 4, r.Entries)
	assert.Equal(t, 1, r.PreloadOnly)
	assert.Equal(t, uint64(15), r.PreloadBytes)
	assert.Equal(t, uint64(40), r.EmbeddedBytes)
	assert.Equal(t, uint64(120), r.ExternalBytes)
	assert.Equal(t, uint64(175), r.TotalBytes())
	assert.Equal(t, 2, r.Checksums)
	assert.False(t, r.Signed)

	index, err := os.ReadFile(indexPath)
	require.NoError(t, err)
	assert.Equal(t, "pak01_dir.vpk", r.Index.Annotations[ocispec.AnnotationTitle])
	assert.Equal(t, MediaTypeIndex, r.Index.MediaType)
	assert.Equal(t, int64(len(index)), r.Index.Size)
	assert.Equal(t, digest.FromBytes(index), r.Index.Digest)

	require.Len(t, r.Data, 1)
	data, err := os.ReadFile(filepath.Join(filepath.Dir(indexPath), "pak01_000.vpk"))
	require.NoError(t, err)
	assert.Equal(t, "pak01_000.vpk", r.Data[0].Annotations[ocispec.AnnotationTitle])
	assert.Equal(t, MediaTypeData, r.Data[0].MediaType)
	assert.Equal(t, int64(120), r.Data[0].Size)
	assert.Equal(t, digest.FromBytes(data), r.Data[0].Digest)
}
