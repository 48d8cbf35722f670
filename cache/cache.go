// Package cache provides a disk-backed block cache for remote archive reads.
//
// Entry reads against an archive opened with OpenURL turn into small range
// requests. Wrapping each data file in a BlockCache keeps the fetched blocks
// on disk so repeated lookups, directory walks, and later processes reuse
// them instead of going back to the server.
package cache

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/singleflight"
)

const (
	// DefaultBlockSize is the size of each cached block.
	DefaultBlockSize int64 = 64 << 10

	// DefaultMaxBlocksPerRead caps how many blocks one ReadAt may cache.
	// Larger reads, like full extraction, go straight to the source.
	DefaultMaxBlocksPerRead = 4

	defaultShardPrefixLen = 2
	defaultDirPerm        = 0o700
)

// Source is a sized random-access byte source.
type Source interface {
	io.ReaderAt
	Size() int64
}

// BlockCache stores fixed-size blocks of Sources as files under a
// directory, optionally sharded by key prefix. It is safe for concurrent use.
type BlockCache struct {
	dir            string
	shardPrefixLen int
	dirPerm        os.FileMode
	maxBytes       int64
	bytes          atomic.Int64
	fetchGroup     singleflight.Group
	pruneMu        sync.Mutex
}

// Option configures a BlockCache.
type Option func(*BlockCache)

// WithMaxBytes bounds the cache size. The oldest blocks are pruned to make
// room. Zero disables the limit.
func WithMaxBytes(n int64) Option {
	return func(c *BlockCache) {
		c.maxBytes = n
	}
}

// WithShardPrefixLen sets how many hex characters of the block key name the
// subdirectory a block lives in. Zero stores every block at the top level.
func WithShardPrefixLen(n int) Option {
	return func(c *BlockCache) {
		c.shardPrefixLen = n
	}
}

// WithDirPerm sets the permissions of created directories.
func WithDirPerm(mode os.FileMode) Option {
	return func(c *BlockCache) {
		c.dirPerm = mode
	}
}

// New creates a block cache rooted at dir, creating it if needed. Blocks
// already present from an earlier process count toward the size limit.
func New(dir string, opts ...Option) (*BlockCache, error) {
	if dir == "" {
		return nil, errors.New("block cache dir is empty")
	}
	c := &BlockCache{
		dir:            dir,
		shardPrefixLen: defaultShardPrefixLen,
		dirPerm:        defaultDirPerm,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.shardPrefixLen < 0 {
		return nil, errors.New("block cache shard prefix length must be >= 0")
	}
	if c.maxBytes < 0 {
		return nil, errors.New("block cache max bytes must be >= 0")
	}
	if err := os.MkdirAll(dir, c.dirPerm); err != nil {
		return nil, err
	}
	size, err := dirSize(dir)
	if err != nil {
		return nil, err
	}
	c.bytes.Store(size)
	return c, nil
}

// Dir returns the cache root.
func (c *BlockCache) Dir() string { return c.dir }

// MaxBytes returns the size limit (0 = unlimited).
func (c *BlockCache) MaxBytes() int64 { return c.maxBytes }

// SizeBytes returns the bytes currently stored.
func (c *BlockCache) SizeBytes() int64 { return c.bytes.Load() }

// Prune removes the oldest blocks until the cache holds at most
// targetBytes, returning the bytes freed.
func (c *BlockCache) Prune(targetBytes int64) (int64, error) {
	targetBytes = max(targetBytes, 0)
	c.pruneMu.Lock()
	defer c.pruneMu.Unlock()

	freed, remaining, err := pruneDir(c.dir, targetBytes)
	if err != nil {
		return 0, err
	}
	c.bytes.Store(remaining)
	return freed, nil
}

// WrapConfig controls how a wrapped Source is cached.
type WrapConfig struct {
	BlockSize        int64
	MaxBlocksPerRead int
}

// WrapOption configures Wrap.
type WrapOption func(*WrapConfig)

// WithBlockSize sets the block size.
func WithBlockSize(n int64) WrapOption {
	return func(cfg *WrapConfig) {
		cfg.BlockSize = n
	}
}

// WithMaxBlocksPerRead bypasses the cache for reads spanning more than n
// blocks. Values <= 0 cache every read.
func WithMaxBlocksPerRead(n int) WrapOption {
	return func(cfg *WrapConfig) {
		cfg.MaxBlocksPerRead = n
	}
}

// Wrap returns a Source that serves reads of src through the cache. id must
// identify the exact bytes of src: the same id with different content
// returns stale blocks.
func (c *BlockCache) Wrap(src Source, id string, opts ...WrapOption) (*Reader, error) {
	if src == nil {
		return nil, errors.New("block cache: source is nil")
	}
	if id == "" {
		return nil, errors.New("block cache: source id is empty")
	}
	cfg := WrapConfig{BlockSize: DefaultBlockSize, MaxBlocksPerRead: DefaultMaxBlocksPerRead}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.BlockSize <= 0 || cfg.BlockSize > math.MaxInt32 {
		return nil, fmt.Errorf("block cache: block size %d out of range", cfg.BlockSize)
	}
	return &Reader{
		src:              src,
		cache:            c,
		id:               id,
		blockSize:        cfg.BlockSize,
		maxBlocksPerRead: cfg.MaxBlocksPerRead,
	}, nil
}

// Reader is a cached view of a Source.
type Reader struct {
	src              Source
	cache            *BlockCache
	id               string
	blockSize        int64
	maxBlocksPerRead int
}

// Size returns the size of the underlying source.
func (r *Reader) Size() int64 { return r.src.Size() }

// ReadAt implements io.ReaderAt.
func (r *Reader) ReadAt(p []byte, off int64) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	if off < 0 {
		return 0, fmt.Errorf("read at %d: negative offset", off)
	}
	size := r.src.Size()
	if off >= size {
		return 0, io.EOF
	}
	want := min(int64(len(p)), size-off)

	first := off / r.blockSize
	last := (off + want - 1) / r.blockSize
	if r.maxBlocksPerRead > 0 && last-first+1 > int64(r.maxBlocksPerRead) {
		return r.src.ReadAt(p, off)
	}

	var n int64
	for block := first; block <= last; block++ {
		start := block * r.blockSize
		end := min(start+r.blockSize, size)

		data, err := r.cache.block(r.id, r.blockSize, block, end-start, func() ([]byte, error) {
			return r.fetch(start, end-start)
		})
		if err != nil {
			return int(n), err
		}

		from := max(off, start)
		to := min(off+want, end)
		n += int64(copy(p[from-off:to-off], data[from-start:to-start]))
	}
	if want < int64(len(p)) {
		return int(n), io.EOF
	}
	return int(n), nil
}

func (r *Reader) fetch(off, length int64) ([]byte, error) {
	buf := make([]byte, length)
	n, err := r.src.ReadAt(buf, off)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	if int64(n) != length {
		return nil, io.ErrUnexpectedEOF
	}
	return buf, nil
}

// block returns one block, reading it from disk or fetching and storing it.
// Concurrent requests for the same block share one fetch.
func (c *BlockCache) block(id string, blockSize, index, length int64, fetch func() ([]byte, error)) ([]byte, error) {
	key := blockKey(id, blockSize, index)
	v, err, _ := c.fetchGroup.Do(key, func() (any, error) {
		path := c.path(key)
		data, err := os.ReadFile(path) //nolint:gosec // path is derived from a hash
		switch {
		case err == nil && int64(len(data)) == length:
			return data, nil
		case err == nil:
			c.bytes.Add(-int64(len(data)))
			_ = os.Remove(path)
		case !errors.Is(err, os.ErrNotExist):
			return nil, err
		}

		data, err = fetch()
		if err != nil {
			return nil, err
		}
		_ = c.store(path, data) //nolint:errcheck // caching is best-effort; the read still succeeds
		return data, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil //nolint:errcheck,forcetypeassert // always []byte
}

func (c *BlockCache) store(path string, data []byte) error {
	if len(data) == 0 {
		return nil
	}
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	if ok, err := c.ensureCapacity(int64(len(data))); err != nil || !ok {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, c.dirPerm); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, "block-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		_ = os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		if _, statErr := os.Stat(path); statErr == nil {
			return nil
		}
		return err
	}
	c.bytes.Add(int64(len(data)))
	return nil
}

func (c *BlockCache) ensureCapacity(need int64) (bool, error) {
	if c.maxBytes <= 0 {
		return true, nil
	}
	if need > c.maxBytes {
		return false, nil
	}
	if c.SizeBytes()+need <= c.maxBytes {
		return true, nil
	}
	if _, err := c.Prune(c.maxBytes - need); err != nil {
		return false, err
	}
	return c.SizeBytes()+need <= c.maxBytes, nil
}

func (c *BlockCache) path(key string) string {
	if c.shardPrefixLen <= 0 {
		return filepath.Join(c.dir, key)
	}
	return filepath.Join(c.dir, key[:min(c.shardPrefixLen, len(key))], key)
}

func blockKey(id string, blockSize, index int64) string {
	h := sha256.New()
	h.Write([]byte(id))
	var buf [16]byte
	binary.BigEndian.PutUint64(buf[:8], uint64(blockSize)) //nolint:gosec // validated positive
	binary.BigEndian.PutUint64(buf[8:], uint64(index))     //nolint:gosec // never negative
	h.Write(buf[:])
	return hex.EncodeToString(h.Sum(nil))
}
