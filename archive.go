package vpk

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"iter"
	"log/slog"
	"slices"

	"github.com/meigma/vpk/cache"
	vpkhttp "github.com/meigma/vpk/http"
	"github.com/meigma/vpk/internal/entry"
	"github.com/meigma/vpk/internal/layout"
	"github.com/meigma/vpk/internal/sizing"
	"github.com/meigma/vpk/internal/store"
	"github.com/meigma/vpk/internal/tree"
	"github.com/meigma/vpk/internal/vpktype"
)

// Re-export types from internal packages for the public API.
type (
	// Header is the decoded index file header.
	Header = layout.Header

	// ArchiveChecksum is one record of the archive MD5 section: the MD5 of
	// Count bytes at StartingOffset in data file ArchiveIndex.
	ArchiveChecksum = layout.ArchiveMD5Entry

	// OtherChecksums is the other MD5 section of the index file.
	OtherChecksums = layout.OtherMD5Section

	// Location is where an entry's body lives: Embedded or External.
	Location = layout.Location

	// Embedded body bytes follow the tree in the index file.
	Embedded = layout.Embedded

	// External body bytes live in a numbered data file.
	External = layout.External

	// EntryReader streams one entry. It implements io.Reader, io.Seeker,
	// and io.ReaderAt; seeks clamp to [0, Size()].
	EntryReader = entry.Reader

	// Compression identifies the compression applied to an export stream.
	Compression = vpktype.Compression

	// ProgressEvent represents a progress update during operations.
	ProgressEvent = vpktype.ProgressEvent

	// ProgressStage identifies the current phase of an operation.
	ProgressStage = vpktype.ProgressStage

	// ProgressFunc receives progress updates during operations.
	ProgressFunc = vpktype.ProgressFunc
)

// Re-export compression constants.
const (
	CompressionNone = vpktype.CompressionNone
	CompressionZstd = vpktype.CompressionZstd
)

// Re-export progress stage constants.
const (
	StageEnumerating  = vpktype.StageEnumerating
	StageWritingData  = vpktype.StageWritingData
	StageWritingIndex = vpktype.StageWritingIndex
	StageExtracting   = vpktype.StageExtracting
)

// EmbeddedArchiveIndex is the archive index stored for entries whose body
// lives in the index file.
const EmbeddedArchiveIndex = layout.EmbeddedArchiveIndex

// Interface compliance.
var (
	_ fs.FS         = (*Archive)(nil)
	_ fs.StatFS     = (*Archive)(nil)
	_ fs.ReadFileFS = (*Archive)(nil)
	_ fs.ReadDirFS  = (*Archive)(nil)
	_ Format        = (*Archive)(nil)
)

// EntryInfo describes one directory entry.
type EntryInfo struct {
	// Key is the lookup key "path/filename.extension".
	Key       string
	Path      string
	Filename  string
	Extension string

	// Name is the entry's fs.FS name: Key without the " " placeholders
	// Valve tools store for an empty path or extension.
	Name string

	CRC         uint32
	PreloadSize uint16

	// Size is the logical size: preload bytes plus body.
	Size uint64

	Location Location
}

func newEntryInfo(h *tree.Handle) EntryInfo {
	return EntryInfo{
		Key:         h.Key,
		Path:        h.Path,
		Filename:    h.Filename,
		Extension:   h.Extension,
		Name:        fsName(h.Path, h.Filename, h.Extension),
		CRC:         h.Entry.CRC,
		PreloadSize: h.Entry.PreloadBytes,
		Size:        h.TotalSize(),
		Location:    h.Location,
	}
}

// Archive is an opened VPK v2 archive.
//
// Archive implements fs.FS, fs.StatFS, fs.ReadFileFS, and fs.ReadDirFS.
// It is safe for concurrent use; every reader it returns has its own cursor
// and reads through the shared per-file locks of the backing store.
type Archive struct {
	store     *store.Store
	header    layout.Header
	dir       *tree.Directory
	checksums []layout.ArchiveMD5Entry
	other     layout.OtherMD5Section

	// names maps fs names to handles; sorted holds the same names in order.
	names  map[string]*tree.Handle
	sorted []string

	verifyCRC bool
	logger    *slog.Logger
	httpOpts  []vpkhttp.Option
	cache     *cache.BlockCache
	cacheOpts []cache.WrapOption
}

// log returns the logger, falling back to a discard logger if nil.
func (a *Archive) log() *slog.Logger {
	if a.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return a.logger
}

// Open opens the archive whose index file is indexPath, which must end in
// "_dir.vpk". Data files next to it are opened until the first gap in the
// numbering.
func Open(indexPath string, opts ...Option) (*Archive, error) {
	s, err := store.OpenPath(indexPath)
	if err != nil {
		return nil, err
	}
	a, err := newArchive(s, opts...)
	if err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("open %s: %w", indexPath, err)
	}
	return a, nil
}

// New opens an archive over caller-supplied streams. data[i] backs archive
// index i. Streams that implement io.Closer are closed by Archive.Close; if
// New fails the caller keeps ownership of every stream.
func New(index io.ReadSeeker, data []io.ReadSeeker, opts ...Option) (*Archive, error) {
	idx, err := store.NewStream("index", index)
	if err != nil {
		return nil, err
	}
	streams := make([]*store.Stream, len(data))
	for i, rs := range data {
		streams[i], err = store.NewStream(store.DataName("data", i), rs)
		if err != nil {
			return nil, err
		}
	}
	return newArchive(store.New(idx, streams...), opts...)
}

// newArchive reads the index held by s. On error the caller still owns s.
func newArchive(s *store.Store, opts ...Option) (*Archive, error) {
	a := &Archive{store: s, verifyCRC: true}
	for _, opt := range opts {
		opt(a)
	}

	index := s.Index()
	hb := make([]byte, layout.HeaderSize)
	if _, err := index.ReadAt(hb, 0); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: index file is %d bytes", ErrInvalidHeader, index.Size())
		}
		return nil, fmt.Errorf("read header: %w", err)
	}
	h, err := layout.DecodeHeader(hb)
	if err != nil {
		return nil, err
	}
	if err := h.IsValid(); err != nil {
		return nil, err
	}
	if err := h.CheckFits(index.Size()); err != nil {
		return nil, err
	}
	a.header = h

	treeBytes, err := readSection(index, h.TreeStart(), uint64(h.TreeSize))
	if err != nil {
		return nil, fmt.Errorf("read tree: %w", err)
	}
	a.dir, err = tree.Decode(treeBytes, h.TreeStart(), h.DataStart())
	if err != nil {
		return nil, err
	}

	md5Bytes, err := readSection(index, h.ArchiveMD5Start(), uint64(h.ArchiveMD5SectionSize))
	if err != nil {
		return nil, fmt.Errorf("read archive md5 section: %w", err)
	}
	a.checksums, err = layout.DecodeArchiveMD5Section(md5Bytes)
	if err != nil {
		return nil, err
	}

	otherBytes, err := readSection(index, h.OtherMD5Start(), uint64(h.OtherMD5SectionSize))
	if err != nil {
		return nil, fmt.Errorf("read other md5 section: %w", err)
	}
	a.other, err = layout.DecodeOtherMD5Section(otherBytes)
	if err != nil {
		return nil, err
	}

	a.indexNames()
	a.log().Info("opened archive",
		"index", index.Name(),
		"entries", len(a.dir.Entries),
		"data_files", s.NumData(),
		"signed", h.SignatureSectionSize != 0)
	return a, nil
}

func readSection(r io.ReaderAt, start, size uint64) ([]byte, error) {
	n, err := sizing.ToInt(size, ErrSizeOverflow)
	if err != nil {
		return nil, err
	}
	off, err := sizing.ToInt64(start, ErrSizeOverflow)
	if err != nil {
		return nil, err
	}
	b := make([]byte, n)
	if n == 0 {
		return b, nil
	}
	if _, err := r.ReadAt(b, off); err != nil {
		return nil, err
	}
	return b, nil
}

// indexNames builds the fs name table. Entries whose names are not valid
// fs paths, or collide with an earlier entry, stay reachable through Lookup.
func (a *Archive) indexNames() {
	a.names = make(map[string]*tree.Handle, len(a.dir.Entries))
	a.sorted = make([]string, 0, len(a.dir.Entries))
	for _, h := range a.dir.Entries {
		name := fsName(h.Path, h.Filename, h.Extension)
		if !fs.ValidPath(name) || name == "." {
			a.log().Debug("entry not visible through fs.FS", "key", h.Key, "name", name)
			continue
		}
		if _, dup := a.names[name]; dup {
			a.log().Debug("fs name collision", "key", h.Key, "name", name)
			continue
		}
		a.names[name] = h
		a.sorted = append(a.sorted, name)
	}
	slices.Sort(a.sorted)
}

// Lookup returns a reader over the entry stored under key
// ("path/filename.extension"). It returns ErrDoesNotExist if the key is absent.
func (a *Archive) Lookup(key string) (*EntryReader, error) {
	h, ok := a.dir.Lookup(key)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrDoesNotExist, key)
	}
	return a.reader(h)
}

// reader builds an entry reader, resolving the data stream for external entries.
func (a *Archive) reader(h *tree.Handle) (*EntryReader, error) {
	var data io.ReaderAt
	if ext, ok := h.Location.(layout.External); ok && !h.Entry.PreloadOnly() {
		st, err := a.store.Data(ext.ArchiveIndex)
		if err != nil {
			return nil, fmt.Errorf("%w: %s references missing data file %03d",
				ErrMalformedData, h.Key, ext.ArchiveIndex)
		}
		data = st
	}
	return entry.New(h, a.store.Index(), data), nil
}

// Entry returns information about the entry stored under key.
func (a *Archive) Entry(key string) (EntryInfo, bool) {
	h, ok := a.dir.Lookup(key)
	if !ok {
		return EntryInfo{}, false
	}
	return newEntryInfo(h), true
}

// Entries returns an iterator over all entries in on-disk order.
func (a *Archive) Entries() iter.Seq[EntryInfo] {
	return func(yield func(EntryInfo) bool) {
		for _, h := range a.dir.Entries {
			if !yield(newEntryInfo(h)) {
				return
			}
		}
	}
}

// Len returns the number of entries in the archive.
func (a *Archive) Len() int {
	return len(a.dir.Entries)
}

// Header returns the decoded index header.
func (a *Archive) Header() Header {
	return a.header
}

// ArchiveChecksums returns a copy of the archive MD5 section records.
func (a *Archive) ArchiveChecksums() []ArchiveChecksum {
	return slices.Clone(a.checksums)
}

// OtherChecksums returns the other MD5 section.
func (a *Archive) OtherChecksums() OtherChecksums {
	return a.other
}

// NumDataFiles returns the number of data files backing the archive.
func (a *Archive) NumDataFiles() int {
	return a.store.NumData()
}

// Close closes every file handle held by the archive. Readers created from
// the archive must not be used afterwards.
func (a *Archive) Close() error {
	return a.store.Close()
}
