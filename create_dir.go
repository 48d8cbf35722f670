package vpk

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/meigma/vpk/internal/platform"
)

// CreateFromDir writes an archive named base into destDir holding every
// regular file under srcDir.
//
// A file at "a/b/c.txt" becomes path "a/b", filename "c", extension "txt".
// Files in srcDir itself get the path " " and files without an extension
// get the extension " ", so each entry's EntryInfo.Name equals its path
// relative to srcDir. Symbolic links are skipped. Bodies go to data files
// unless CreateWithEmbed says otherwise; CreateWithPreload sets preload
// sizes.
//
// Source files are opened on demand while the archive is written, so the
// number of open descriptors stays small.
func CreateFromDir(ctx context.Context, srcDir, destDir, base string, opts ...CreateOption) error {
	cfg := createConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}

	root, err := os.OpenRoot(srcDir)
	if err != nil {
		return err
	}
	defer root.Close()

	b := &builder{cfg: cfg, logger: cfg.logger}
	b.reportProgress(StageEnumerating, "", 0, 0, 0)

	var sources []*fileSource
	defer func() {
		for _, s := range sources {
			s.Close()
		}
	}()
	var prototypes []*EntryPrototype //nolint:prealloc // size unknown until the walk ends

	err = fs.WalkDir(root.FS(), ".", func(name string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if d.Type()&fs.ModeSymlink != 0 {
			b.log().Debug("skipped symlink", "path", name)
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		if !info.Mode().IsRegular() {
			b.log().Debug("skipped irregular file", "path", name, "mode", info.Mode().String())
			return nil
		}

		src := &fileSource{root: root, name: name, size: info.Size()}
		sources = append(sources, src)
		path, filename, extension := splitName(name)
		p := NewEntryPrototype(false, 0, path, filename, extension, src)
		if cfg.embed != nil {
			p.Embed = cfg.embed(name, info.Size())
		}
		if cfg.preload != nil {
			preload := int64(cfg.preload(name, info.Size()))
			p.PreloadSize = uint16(min(preload, info.Size())) //nolint:gosec // bounded by the uint16 result above
		}
		prototypes = append(prototypes, p)
		b.reportProgress(StageEnumerating, name, 0, len(prototypes), 0)
		return nil
	})
	if err != nil {
		return err
	}
	return Create(ctx, destDir, base, prototypes, opts...)
}

// fileSource is an io.ReadSeeker over a file under root that opens the file
// on the first Read and closes it once the last byte has been read.
type fileSource struct {
	root *os.Root
	name string
	size int64

	pos int64
	f   *os.File
}

func (s *fileSource) Seek(offset int64, whence int) (int64, error) {
	var pos int64
	switch whence {
	case io.SeekStart:
		pos = offset
	case io.SeekCurrent:
		pos = s.pos + offset
	case io.SeekEnd:
		pos = s.size + offset
	default:
		return 0, fmt.Errorf("seek %s: invalid whence %d", s.name, whence)
	}
	if pos < 0 {
		return 0, fmt.Errorf("seek %s: negative position %d", s.name, pos)
	}
	s.pos = pos
	return pos, nil
}

func (s *fileSource) Read(p []byte) (int, error) {
	if s.pos >= s.size {
		s.Close()
		return 0, io.EOF
	}
	if s.f == nil {
		f, _, err := platform.OpenRegular(s.root, filepath.FromSlash(s.name))
		if err != nil {
			return 0, fmt.Errorf("open %s: %w", s.name, err)
		}
		s.f = f
	}
	if remain := s.size - s.pos; int64(len(p)) > remain {
		p = p[:remain]
	}
	n, err := s.f.ReadAt(p, s.pos)
	s.pos += int64(n)
	if errors.Is(err, io.EOF) {
		if n < len(p) {
			return n, fmt.Errorf("read %s: %w", s.name, io.ErrUnexpectedEOF)
		}
		err = nil
	}
	if s.pos >= s.size {
		s.Close()
	}
	return n, err
}

// Close releases the open descriptor, if any. The source can still be read;
// the file is reopened on demand.
func (s *fileSource) Close() {
	if s.f != nil {
		s.f.Close()
		s.f = nil
	}
}
