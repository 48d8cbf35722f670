package vpk

import (
	"bytes"
	"context"
	"crypto/md5" //nolint:gosec // the format's checksums are MD5
	"fmt"
	"io"

	"golang.org/x/sync/errgroup"

	"github.com/meigma/vpk/internal/fileio"
	"github.com/meigma/vpk/internal/layout"
	"github.com/meigma/vpk/internal/sizing"
)

// ValidateArchive re-hashes every range recorded in the archive MD5 section
// and returns the records whose stored MD5 does not match, in section order.
// An empty result means every declared range is intact; bytes outside the
// declared ranges are not checked.
//
// Records are grouped by data file and the groups are checked concurrently.
// A missing data file or a read error stops validation and is returned.
func (a *Archive) ValidateArchive(ctx context.Context) ([]ArchiveChecksum, error) {
	byFile := make(map[uint32][]int)
	for i, rec := range a.checksums {
		byFile[rec.ArchiveIndex] = append(byFile[rec.ArchiveIndex], i)
	}

	failed := make([]bool, len(a.checksums))
	g, ctx := errgroup.WithContext(ctx)
	for archiveIndex, records := range byFile {
		g.Go(func() error {
			return a.validateDataFile(ctx, archiveIndex, records, failed)
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var mismatches []ArchiveChecksum
	for i, bad := range failed {
		if bad {
			mismatches = append(mismatches, a.checksums[i])
		}
	}
	a.log().Debug("validated archive md5 section",
		"records", len(a.checksums), "mismatches", len(mismatches))
	return mismatches, nil
}

// validateDataFile checks the records at the given section positions, all of
// which name archiveIndex. Each goroutine writes disjoint failed slots.
func (a *Archive) validateDataFile(ctx context.Context, archiveIndex uint32, records []int, failed []bool) error {
	idx, err := sizing.ToUint16(uint64(archiveIndex), ErrSizeOverflow)
	if err != nil || idx >= layout.EmbeddedArchiveIndex {
		return fmt.Errorf("%w: archive md5 record names data file %d", ErrMalformedData, archiveIndex)
	}
	data, err := a.store.Data(idx)
	if err != nil {
		return fmt.Errorf("validate data file %03d: %w", archiveIndex, err)
	}
	for _, i := range records {
		if err := ctx.Err(); err != nil {
			return err
		}
		rec := a.checksums[i]
		sum := md5.New() //nolint:gosec // the format's checksums are MD5
		section := io.NewSectionReader(data, int64(rec.StartingOffset), int64(rec.Count))
		n, err := io.Copy(io.Discard, fileio.NewHashingReader(section, sum))
		if err != nil {
			return fmt.Errorf("validate data file %03d at %d: %w", archiveIndex, rec.StartingOffset, err)
		}
		if n != int64(rec.Count) {
			return fmt.Errorf("validate data file %03d at %d: %w", archiveIndex, rec.StartingOffset, io.ErrUnexpectedEOF)
		}
		if !bytes.Equal(sum.Sum(nil), rec.MD5[:]) {
			failed[i] = true
			a.log().Debug("archive md5 mismatch",
				"archive", archiveIndex, "offset", rec.StartingOffset, "count", rec.Count)
		}
	}
	return nil
}

// ValidateOther re-hashes the tree and the archive MD5 section as they are
// stored in the index file and compares them with the other MD5 section.
// A mismatch returns a *ValidationError naming the first failing section,
// SectionTree or SectionArchiveMD5.
func (a *Archive) ValidateOther() error {
	h := a.header
	index := a.store.Index()

	checks := []struct {
		section string
		start   uint64
		size    uint32
		want    [16]byte
	}{
		{SectionTree, h.TreeStart(), h.TreeSize, a.other.TreeChecksum},
		{SectionArchiveMD5, h.ArchiveMD5Start(), h.ArchiveMD5SectionSize, a.other.ArchiveMD5SectionChecksum},
	}
	for _, c := range checks {
		b, err := readSection(index, c.start, uint64(c.size))
		if err != nil {
			return fmt.Errorf("validate %s: %w", c.section, err)
		}
		if md5.Sum(b) != c.want { //nolint:gosec // the format's checksums are MD5
			a.log().Debug("other md5 mismatch", "section", c.section)
			return &ValidationError{Section: c.section}
		}
	}
	return nil
}
