package vpk

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meigma/vpk/internal/testutil"
)

func validateFixture(t *testing.T) string {
	t.Helper()
	return createArchive(t, []*EntryPrototype{
		proto(false, 0, "models", "one", "mdl", testutil.Pattern(500, 1)),
		proto(false, 8, "models", "two", "mdl", testutil.Pattern(700, 2)),
		proto(true, 0, "models", "three", "mdl", testutil.Pattern(300, 3)),
		proto(false, 0, "sound", "four", "wav", testutil.Pattern(200, 4)),
	}, CreateWithSplitThreshold(600))
}

func TestValidateArchive_Clean(t *testing.T) {
	t.Parallel()

	a := openArchive(t, validateFixture(t))
	require.Equal(t, 2, a.NumDataFiles())
	mismatches, err := a.ValidateArchive(context.Background())
	require.NoError(t, err)
	assert.Empty(t, mismatches)
	require.NoError(t, a.ValidateOther())
}

func TestValidateArchive_FlagsOnlyCorruptedRecord(t *testing.T) {
	t.Parallel()

	indexPath := validateFixture(t)
	a := openArchive(t, indexPath)
	info, ok := a.Entry("models/two.mdl")
	require.True(t, ok)
	loc, ok := info.Location.(External)
	require.True(t, ok)
	require.NoError(t, a.Close())

	dataPath := filepath.Join(filepath.Dir(indexPath), "pak01_000.vpk")
	testutil.FlipByte(t, dataPath, int64(loc.Offset)+10)

	a = openArchive(t, indexPath)
	mismatches, err := a.ValidateArchive(context.Background())
	require.NoError(t, err)
	require.Len(t, mismatches, 1)
	assert.Equal(t, uint32(loc.ArchiveIndex), mismatches[0].ArchiveIndex)
	assert.Equal(t, loc.Offset, mismatches[0].StartingOffset)
	assert.Equal(t, uint32(700-8), mismatches[0].Count)

	require.NoError(t, a.ValidateOther(), "data file corruption does not touch the index")

	_, err = a.ReadFile("models/two.mdl")
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, SectionEntryCRC, verr.Section)
}

func TestValidateArchive_MissingDataFile(t *testing.T) {
	t.Parallel()

	indexPath := validateFixture(t)
	require.NoError(t, os.Remove(filepath.Join(filepath.Dir(indexPath), "pak01_001.vpk")))

	a := openArchive(t, indexPath)
	require.Equal(t, 1, a.NumDataFiles())
	_, err := a.ValidateArchive(context.Background())
	require.ErrorIs(t, err, ErrDoesNotExist)
}

func TestValidateOther_TreeCorruption(t *testing.T) {
	t.Parallel()

	indexPath := validateFixture(t)
	index, err := os.ReadFile(indexPath)
	require.NoError(t, err)

	// The CRC field directly follows the filename; flipping it keeps the
	// tree decodable.
	crcAt := bytes.Index(index, []byte("one\x00")) + len("one\x00")
	require.Greater(t, crcAt, 28)
	testutil.FlipByte(t, indexPath, int64(crcAt))

	a := openArchive(t, indexPath)
	err = a.ValidateOther()
	require.ErrorIs(t, err, ErrValidationFailed)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, SectionTree, verr.Section)
}

func TestValidateOther_ArchiveMD5Corruption(t *testing.T) {
	t.Parallel()

	indexPath := validateFixture(t)
	a := openArchive(t, indexPath)
	h := a.Header()
	require.NoError(t, a.Close())

	// Last byte of the first record's MD5.
	testutil.FlipByte(t, indexPath, int64(h.ArchiveMD5Start())+27)

	a = openArchive(t, indexPath)
	err := a.ValidateOther()
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, SectionArchiveMD5, verr.Section)

	mismatches, err := a.ValidateArchive(context.Background())
	require.NoError(t, err)
	assert.Len(t, mismatches, 1)
}

func TestValidateArchive_Canceled(t *testing.T) {
	t.Parallel()

	a := openArchive(t, validateFixture(t))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := a.ValidateArchive(ctx)
	require.ErrorIs(t, err, context.Canceled)
}
