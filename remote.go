package vpk

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/meigma/vpk/cache"
	vpkhttp "github.com/meigma/vpk/http"
	"github.com/meigma/vpk/internal/layout"
	"github.com/meigma/vpk/internal/store"
)

// WithHTTPOptions configures the range-request sources OpenURL creates.
// Other constructors ignore it.
func WithHTTPOptions(opts ...vpkhttp.Option) Option {
	return func(a *Archive) {
		a.httpOpts = append(a.httpOpts, opts...)
	}
}

// WithBlockCache keeps blocks fetched by OpenURL in c, so repeated reads of
// the same archive skip the network. Blocks are keyed by URL, size, and the
// server's ETag or Last-Modified value. Other constructors ignore it.
func WithBlockCache(c *cache.BlockCache, opts ...cache.WrapOption) Option {
	return func(a *Archive) {
		a.cache = c
		a.cacheOpts = opts
	}
}

// OpenURL opens an archive served over HTTP. indexURL must end in
// "_dir.vpk"; data files are probed at "_000.vpk", "_001.vpk", ... until
// the server answers 404. The server must support range requests. Entry
// reads fetch only the bytes they need.
func OpenURL(ctx context.Context, indexURL string, opts ...Option) (*Archive, error) {
	cfg := &Archive{}
	for _, opt := range opts {
		opt(cfg)
	}

	prefix, err := store.Prefix(indexURL)
	if err != nil {
		return nil, err
	}
	index, err := cfg.remoteStream(ctx, indexURL)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", indexURL, err)
	}
	var data []*store.Stream
	for i := 0; i < int(layout.EmbeddedArchiveIndex); i++ {
		url := store.DataPath(prefix, i)
		st, err := cfg.remoteStream(ctx, url)
		if errors.Is(err, vpkhttp.ErrNotFound) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", url, err)
		}
		data = append(data, st)
	}

	a, err := newArchive(store.New(index, data...), opts...)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", indexURL, err)
	}
	return a, nil
}

func (a *Archive) remoteStream(ctx context.Context, url string) (*store.Stream, error) {
	src, err := vpkhttp.NewSource(ctx, url, a.httpOpts...)
	if err != nil {
		return nil, err
	}
	var r cache.Source = src
	if a.cache != nil {
		id := fmt.Sprintf("%s\x00%d\x00%s", url, src.Size(), src.Validator())
		if r, err = a.cache.Wrap(src, id, a.cacheOpts...); err != nil {
			return nil, err
		}
	}
	return store.NewStream(url, io.NewSectionReader(r, 0, r.Size()))
}
