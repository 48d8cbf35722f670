package vpk

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/containerd/stargz-snapshotter/estargz"
	"github.com/opencontainers/go-digest"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"

	"github.com/meigma/vpk/internal/fileio"
)

// StargzOption configures WriteStargz.
type StargzOption func(*stargzConfig)

type stargzConfig struct {
	prioritized      []string
	compressionLevel int
	chunkSize        int
}

// StargzWithPrioritizedFiles lists fs names to place first in the layer so
// a lazy puller fetches them before anything else.
func StargzWithPrioritizedFiles(names ...string) StargzOption {
	return func(c *stargzConfig) {
		c.prioritized = append(c.prioritized, names...)
	}
}

// StargzWithCompressionLevel sets the gzip level (default: gzip's best speed
// as chosen by estargz).
func StargzWithCompressionLevel(level int) StargzOption {
	return func(c *stargzConfig) {
		c.compressionLevel = level
	}
}

// StargzWithChunkSize sets the size at which large entries are split into
// independently fetchable chunks.
func StargzWithChunkSize(n int) StargzOption {
	return func(c *stargzConfig) {
		c.chunkSize = n
	}
}

// StargzResult describes the layer written by WriteStargz.
type StargzResult struct {
	// Layer is the gzip layer descriptor, annotated with the TOC digest.
	Layer ocispec.Descriptor
	// DiffID is the digest of the uncompressed layer tar.
	DiffID digest.Digest
}

// WriteStargz writes every entry visible through fs.FS to w as an eStargz
// layer: a gzip tar with a table of contents that lets registries serve
// single files by range. The tar is staged in a temporary file.
func (a *Archive) WriteStargz(ctx context.Context, w io.Writer, opts ...StargzOption) (*StargzResult, error) {
	cfg := stargzConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}

	tmp, err := os.CreateTemp("", "vpk-stargz-*.tar")
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name()) //nolint:errcheck // best-effort cleanup
	}()
	tarSize := &fileio.CountingWriter{W: tmp}
	if err := a.WriteTar(ctx, tarSize); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var buildOpts []estargz.Option
	if len(cfg.prioritized) > 0 {
		buildOpts = append(buildOpts, estargz.WithPrioritizedFiles(cfg.prioritized))
	}
	if cfg.compressionLevel != 0 {
		buildOpts = append(buildOpts, estargz.WithCompressionLevel(cfg.compressionLevel))
	}
	if cfg.chunkSize > 0 {
		buildOpts = append(buildOpts, estargz.WithChunkSize(cfg.chunkSize))
	}
	layer, err := estargz.Build(io.NewSectionReader(tmp, 0, int64(tarSize.N)), buildOpts...) //nolint:gosec // tar size fits in int64
	if err != nil {
		return nil, fmt.Errorf("build stargz: %w", err)
	}
	defer layer.Close()

	dgst := digest.Canonical.Digester()
	out := &fileio.CountingWriter{W: w}
	if _, err := io.Copy(out, fileio.NewHashingReader(layer, dgst.Hash())); err != nil {
		return nil, fmt.Errorf("write stargz: %w", err)
	}

	res := &StargzResult{
		Layer: ocispec.Descriptor{
			MediaType: ocispec.MediaTypeImageLayerGzip,
			Digest:    dgst.Digest(),
			Size:      int64(out.N), //nolint:gosec // layer size fits in int64
			Annotations: map[string]string{
				estargz.TOCJSONDigestAnnotation: layer.TOCDigest().String(),
			},
		},
		DiffID: layer.DiffID(),
	}
	a.log().Debug("exported stargz", "digest", res.Layer.Digest, "size", res.Layer.Size, "toc", layer.TOCDigest())
	return res, nil
}
