package vpk

import (
	"context"
	_ "crypto/sha256" // registers digest.SHA256
	"fmt"
	"io"
	"path/filepath"

	"github.com/opencontainers/go-digest"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"

	"github.com/meigma/vpk/internal/layout"
	"github.com/meigma/vpk/internal/store"
)

// Media types reported in Inspect descriptors.
const (
	MediaTypeIndex = "application/vnd.valve.vpk.dir.v2"
	MediaTypeData  = "application/vnd.valve.vpk.data"
)

// FileDescriptor describes one file backing the archive. The file's base
// name, for example "pak01_dir.vpk", is the ocispec.AnnotationTitle
// annotation.
type FileDescriptor = ocispec.Descriptor

// InspectResult summarizes an archive's layout.
type InspectResult struct {
	Header  Header
	Entries int

	// Entries whose content is entirely preload data.
	PreloadOnly int

	PreloadBytes  uint64
	EmbeddedBytes uint64
	ExternalBytes uint64

	Checksums int
	Signed    bool

	// Index describes the index file; Data[i] describes data file i.
	Index FileDescriptor
	Data  []FileDescriptor
}

// TotalBytes returns the sum of all logical entry sizes.
func (r *InspectResult) TotalBytes() uint64 {
	return r.PreloadBytes + r.EmbeddedBytes + r.ExternalBytes
}

// Inspect tallies the archive's entries and computes a SHA-256 digest of the
// index file and every data file. Digests are read through the archive's
// streams, so Inspect reads every byte the archive holds.
func (a *Archive) Inspect(ctx context.Context) (*InspectResult, error) {
	r := &InspectResult{
		Header:    a.header,
		Entries:   len(a.dir.Entries),
		Checksums: len(a.checksums),
		Signed:    a.header.SignatureSectionSize != 0,
	}
	for _, h := range a.dir.Entries {
		r.PreloadBytes += h.PreloadSize()
		length := uint64(h.Entry.DataLength)
		switch {
		case h.Entry.PreloadOnly():
			r.PreloadOnly++
		case h.Entry.ArchiveIndex == layout.EmbeddedArchiveIndex:
			r.EmbeddedBytes += length
		default:
			r.ExternalBytes += length
		}
	}

	var err error
	if r.Index, err = describe(ctx, a.store.Index(), MediaTypeIndex); err != nil {
		return nil, err
	}
	r.Data = make([]FileDescriptor, a.store.NumData())
	for i := range r.Data {
		st, err := a.store.Data(uint16(i)) //nolint:gosec // NumData is below the embedded archive index
		if err != nil {
			return nil, err
		}
		if r.Data[i], err = describe(ctx, st, MediaTypeData); err != nil {
			return nil, err
		}
	}
	a.log().Debug("inspected archive", "entries", r.Entries, "data_files", len(r.Data))
	return r, nil
}

func describe(ctx context.Context, st *store.Stream, mediaType string) (FileDescriptor, error) {
	if err := ctx.Err(); err != nil {
		return FileDescriptor{}, err
	}
	d, err := digest.SHA256.FromReader(io.NewSectionReader(st, 0, st.Size()))
	if err != nil {
		return FileDescriptor{}, fmt.Errorf("digest %s: %w", st.Name(), err)
	}
	return FileDescriptor{
		MediaType:   mediaType,
		Digest:      d,
		Size:        st.Size(),
		Annotations: map[string]string{ocispec.AnnotationTitle: filepath.Base(st.Name())},
	}, nil
}
