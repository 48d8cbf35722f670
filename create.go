package vpk

import (
	"bytes"
	"context"
	"crypto/md5" //nolint:gosec // the format's checksums are MD5
	"fmt"
	"hash/crc32"
	"io"
	"log/slog"
	"math"
	"os"
	"slices"

	"github.com/meigma/vpk/internal/fileio"
	"github.com/meigma/vpk/internal/layout"
	"github.com/meigma/vpk/internal/sizing"
	"github.com/meigma/vpk/internal/store"
	"github.com/meigma/vpk/internal/tree"
)

// EntryPrototype describes one entry to write with Create.
//
// Data supplies the entry's full content: PreloadSize bytes stored inline in
// the tree, followed by the body. Create seeks Data freely and does not
// close it.
type EntryPrototype struct {
	Path      string
	Filename  string
	Extension string

	PreloadSize uint16

	// Embed stores the body in the index file instead of a data file.
	Embed bool

	Data io.ReadSeeker
}

// NewEntryPrototype returns a prototype for path/filename.extension.
func NewEntryPrototype(embed bool, preloadSize uint16, path, filename, extension string, data io.ReadSeeker) *EntryPrototype {
	return &EntryPrototype{
		Path:        path,
		Filename:    filename,
		Extension:   extension,
		PreloadSize: preloadSize,
		Embed:       embed,
		Data:        data,
	}
}

// Key returns the lookup key the entry will have in the archive.
func (p *EntryPrototype) Key() string {
	return tree.Key(p.Path, p.Filename, p.Extension)
}

// Create writes a new archive named base into dir: the index file
// "<base>_dir.vpk" and as many "<base>_NNN.vpk" data files as the external
// entries need.
//
// Prototypes are placed in order. Embedded bodies are appended to the index
// file's data section. External bodies are appended to the current data
// file; once an entry's source has been read past the split threshold, the
// next external entry starts a new data file. Entries whose content fits in
// their preload bytes are written only into the tree.
//
// Names are checked before anything is written: empty, non-ASCII, or NUL
// names fail with ErrMalformedData and a repeated key fails with
// ErrAlreadyExists. On any error every file Create made is removed.
func Create(ctx context.Context, dir, base string, prototypes []*EntryPrototype, opts ...CreateOption) error {
	cfg := createConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.splitThreshold == 0 {
		cfg.splitThreshold = DefaultSplitThreshold
	}
	b := &builder{cfg: cfg, logger: cfg.logger}
	b.log().Info("creating archive", "dir", dir, "base", base, "entries", len(prototypes))

	nodes, err := b.prepare(prototypes)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("create destination directory: %w", err)
	}

	w := store.NewWriter(dir, base)
	if err := b.build(ctx, w, prototypes, nodes); err != nil {
		if abortErr := w.Abort(); abortErr != nil {
			b.log().Warn("cleanup after failed create", "error", abortErr)
		}
		return err
	}
	b.log().Info("archive created",
		"index", store.DirName(base),
		"data_files", w.NumData(),
		"embedded_bytes", b.embedded.Len(),
		"checksums", len(b.checksums))
	return nil
}

// AppendEntries would add prototypes to an existing archive without
// rewriting it. In-place append is not supported; it always returns
// ErrNotImplemented.
func AppendEntries(_ context.Context, indexPath string, _ []*EntryPrototype, _ ...CreateOption) error {
	return fmt.Errorf("append to %s: %w", indexPath, ErrNotImplemented)
}

// builder holds state for one Create call.
type builder struct {
	cfg    createConfig
	logger *slog.Logger

	embedded  bytes.Buffer
	checksums []layout.ArchiveMD5Entry
}

// log returns the logger, falling back to a discard logger if nil.
func (b *builder) log() *slog.Logger {
	if b.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return b.logger
}

// reportProgress sends a progress event if a callback is configured.
func (b *builder) reportProgress(stage ProgressStage, key string, bytesDone uint64, filesDone, filesTotal int) {
	if b.cfg.progress == nil {
		return
	}
	b.cfg.progress(ProgressEvent{
		Stage:      stage,
		Path:       key,
		BytesDone:  bytesDone,
		FilesDone:  filesDone,
		FilesTotal: filesTotal,
	})
}

// prepare measures every source and checks names, duplicates, and sizes.
// It writes nothing. nodes[i] belongs to prototypes[i].
func (b *builder) prepare(prototypes []*EntryPrototype) ([]*tree.Node, error) {
	nodes := make([]*tree.Node, len(prototypes))
	var embeddedTotal uint64
	for i, p := range prototypes {
		if p == nil || p.Data == nil {
			return nil, fmt.Errorf("%w: prototype %d has no data source", ErrMalformedData, i)
		}
		size, err := p.Data.Seek(0, io.SeekEnd)
		if err != nil {
			return nil, fmt.Errorf("measure %s: %w", p.Key(), err)
		}
		if size < int64(p.PreloadSize) {
			return nil, fmt.Errorf("%w: %s: preload size %d exceeds content length %d",
				ErrMalformedData, p.Key(), p.PreloadSize, size)
		}
		length, err := sizing.ToUint32(uint64(size)-uint64(p.PreloadSize), ErrSizeOverflow)
		if err != nil {
			return nil, fmt.Errorf("%s: body of %d bytes: %w", p.Key(), size, err)
		}
		if p.Embed {
			embeddedTotal += uint64(length)
		}
		nodes[i] = &tree.Node{
			Path:      p.Path,
			Filename:  p.Filename,
			Extension: p.Extension,
			Entry: layout.DirectoryEntry{
				PreloadBytes: p.PreloadSize,
				DataLength:   length,
				Terminator:   layout.EntryTerminator,
			},
			Source: p.Data,
		}
	}
	if embeddedTotal > math.MaxUint32 {
		return nil, fmt.Errorf("%w: %d embedded bytes", ErrSizeOverflow, embeddedTotal)
	}
	if err := tree.Sort(slices.Clone(nodes)); err != nil {
		return nil, err
	}
	return nodes, nil
}

// build places every body, then writes the index file.
func (b *builder) build(ctx context.Context, w *store.Writer, prototypes []*EntryPrototype, nodes []*tree.Node) error {
	var written uint64
	for i, p := range prototypes {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := b.place(w, p, nodes[i])
		if err != nil {
			return fmt.Errorf("write %s: %w", p.Key(), err)
		}
		written += n
		b.reportProgress(StageWritingData, p.Key(), written, i+1, len(prototypes))
	}
	if err := w.Close(); err != nil {
		return err
	}

	b.reportProgress(StageWritingIndex, "", written, len(prototypes), len(prototypes))
	var treeBuf bytes.Buffer
	if err := tree.Encode(&treeBuf, nodes); err != nil {
		return err
	}
	return w.WriteIndex(func(iw io.Writer) error {
		return b.writeIndex(iw, treeBuf.Bytes())
	})
}

// place writes one prototype's body and fills in its record's location and
// CRC. It returns the number of body bytes written.
func (b *builder) place(w *store.Writer, p *EntryPrototype, n *tree.Node) (uint64, error) {
	if _, err := p.Data.Seek(0, io.SeekStart); err != nil {
		return 0, fmt.Errorf("seek source: %w", err)
	}
	crc := crc32.NewIEEE()
	src := fileio.NewHashingReader(p.Data, crc)
	if _, err := io.CopyN(io.Discard, src, int64(p.PreloadSize)); err != nil {
		return 0, fmt.Errorf("read preload: %w", err)
	}

	length := n.Entry.DataLength
	switch {
	case length == 0:
		n.Entry.SetLocation(layout.Embedded{Offset: 0})
	case p.Embed:
		off, err := sizing.ToUint32(uint64(b.embedded.Len()), ErrSizeOverflow)
		if err != nil {
			return 0, err
		}
		if _, err := io.CopyN(&b.embedded, src, int64(length)); err != nil {
			return 0, fmt.Errorf("read body: %w", err)
		}
		n.Entry.SetLocation(layout.Embedded{Offset: off})
		b.log().Debug("embedded entry", "key", p.Key(), "offset", off, "length", length)
	default:
		if err := b.writeExternal(w, p, n, src); err != nil {
			return 0, err
		}
	}
	n.Entry.CRC = crc.Sum32()
	return uint64(length), nil
}

// writeExternal appends a body to the current data file, records its MD5,
// and rotates the data file once the source position passes the threshold.
func (b *builder) writeExternal(w *store.Writer, p *EntryPrototype, n *tree.Node, src io.Reader) error {
	idx, pos, out, err := w.DataFile()
	if err != nil {
		return err
	}
	off, err := sizing.ToUint32(pos, ErrSizeOverflow)
	if err != nil {
		return fmt.Errorf("data file %03d offset %d: %w", idx, pos, err)
	}
	length := n.Entry.DataLength
	sum := md5.New() //nolint:gosec // the format's checksums are MD5
	if _, err := io.CopyN(out, fileio.NewHashingReader(src, sum), int64(length)); err != nil {
		return fmt.Errorf("copy body: %w", err)
	}
	n.Entry.SetLocation(layout.External{ArchiveIndex: idx, Offset: off})

	rec := layout.ArchiveMD5Entry{ArchiveIndex: uint32(idx), StartingOffset: off, Count: length}
	copy(rec.MD5[:], sum.Sum(nil))
	b.checksums = append(b.checksums, rec)
	b.log().Debug("wrote entry", "key", p.Key(), "archive", idx, "offset", off, "length", length)

	srcPos, err := p.Data.Seek(0, io.SeekCurrent)
	if err != nil {
		return fmt.Errorf("source position: %w", err)
	}
	if uint64(srcPos) > b.cfg.splitThreshold { //nolint:gosec // positions are non-negative
		b.log().Debug("data file split", "archive", idx, "source_position", srcPos)
		return w.Rotate()
	}
	return nil
}

// writeIndex writes the header, tree, embedded data, and both MD5 sections.
func (b *builder) writeIndex(w io.Writer, treeBytes []byte) error {
	md5Section := layout.EncodeArchiveMD5Section(b.checksums)

	h := layout.NewHeader()
	var err error
	if h.TreeSize, err = sizing.ToUint32(uint64(len(treeBytes)), ErrSizeOverflow); err != nil {
		return fmt.Errorf("tree size: %w", err)
	}
	if h.FileDataSectionSize, err = sizing.ToUint32(uint64(b.embedded.Len()), ErrSizeOverflow); err != nil {
		return fmt.Errorf("embedded data size: %w", err)
	}
	if h.ArchiveMD5SectionSize, err = sizing.ToUint32(uint64(len(md5Section)), ErrSizeOverflow); err != nil {
		return fmt.Errorf("archive md5 section size: %w", err)
	}
	other := layout.OtherMD5Section{
		TreeChecksum:              md5.Sum(treeBytes),  //nolint:gosec // the format's checksums are MD5
		ArchiveMD5SectionChecksum: md5.Sum(md5Section), //nolint:gosec // the format's checksums are MD5
	}

	for _, part := range [][]byte{h.Encode(), treeBytes, b.embedded.Bytes(), md5Section, other.Encode()} {
		if _, err := w.Write(part); err != nil {
			return fmt.Errorf("write index: %w", err)
		}
	}
	return nil
}
