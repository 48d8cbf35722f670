package vpk

import (
	"archive/tar"
	"context"
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"

	"github.com/meigma/vpk/internal/fsys"
)

// ExportOption configures WriteTar.
type ExportOption func(*exportConfig)

type exportConfig struct {
	compression Compression
	progress    ProgressFunc
}

// ExportWithCompression compresses the tar stream. CompressionZstd wraps
// the output in a zstd frame; CompressionNone (the default) writes a plain
// tar stream.
func ExportWithCompression(c Compression) ExportOption {
	return func(cfg *exportConfig) {
		cfg.compression = c
	}
}

// ExportWithProgress sets a callback that receives a StageExtracting event
// after each entry is written.
func ExportWithProgress(fn ProgressFunc) ExportOption {
	return func(cfg *exportConfig) {
		cfg.progress = fn
	}
}

// WriteTar writes every entry visible through fs.FS to w as a tar stream,
// in name order. Entry CRCs are checked as they are streamed.
func (a *Archive) WriteTar(ctx context.Context, w io.Writer, opts ...ExportOption) (err error) {
	cfg := exportConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}

	out := w
	switch cfg.compression {
	case CompressionNone:
	case CompressionZstd:
		enc, encErr := zstd.NewWriter(w, zstd.WithEncoderConcurrency(1))
		if encErr != nil {
			return fmt.Errorf("create zstd encoder: %w", encErr)
		}
		defer func() {
			if closeErr := enc.Close(); err == nil && closeErr != nil {
				err = fmt.Errorf("close zstd encoder: %w", closeErr)
			}
		}()
		out = enc
	default:
		return fmt.Errorf("export: unknown compression %d", cfg.compression)
	}

	tw := tar.NewWriter(out)
	var written uint64
	for i, name := range a.sorted {
		if err := ctx.Err(); err != nil {
			return err
		}
		h := a.names[name]
		hdr := &tar.Header{
			Typeflag: tar.TypeReg,
			Name:     name,
			Mode:     int64(fsys.FileMode.Perm()),
			Size:     int64(h.TotalSize()), //nolint:gosec // bounded by record widths
			Format:   tar.FormatPAX,
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return fmt.Errorf("write tar header %s: %w", name, err)
		}
		n, err := a.copyEntry(tw, h)
		if err != nil {
			return fmt.Errorf("export %s: %w", name, err)
		}
		written += uint64(n) //nolint:gosec // n is non-negative
		if cfg.progress != nil {
			cfg.progress(ProgressEvent{
				Stage:      StageExtracting,
				Path:       name,
				BytesDone:  written,
				FilesDone:  i + 1,
				FilesTotal: len(a.sorted),
			})
		}
	}
	if err := tw.Close(); err != nil {
		return fmt.Errorf("close tar writer: %w", err)
	}
	a.log().Debug("exported tar", "entries", len(a.sorted), "bytes", written, "compression", cfg.compression)
	return nil
}
