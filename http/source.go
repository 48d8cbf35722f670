// Package http reads archive files over HTTP range requests.
package http //nolint:revive // intentional naming for domain clarity

import (
	"context"
	"errors"
	"fmt"
	"io"
	nethttp "net/http"
	"strconv"
	"strings"
)

// ErrNotFound is returned by NewSource when the server answers 404.
var ErrNotFound = errors.New("http: remote file not found")

// ErrRangeUnsupported is returned when the server ignores Range headers.
var ErrRangeUnsupported = errors.New("http: range requests not supported")

// Source implements io.ReaderAt over one remote file using HTTP range
// requests. It is safe for concurrent use.
type Source struct {
	ctx     context.Context //nolint:containedctx // ReadAt has no context parameter
	url     string
	client  *nethttp.Client
	headers nethttp.Header

	size         int64
	etag         string
	lastModified string

	useConditionalHeaders bool
}

// Option configures a Source.
type Option func(*Source)

// WithClient sets the HTTP client used for requests.
func WithClient(client *nethttp.Client) Option {
	return func(s *Source) {
		s.client = client
	}
}

// WithHeaders sets additional headers on each request.
func WithHeaders(headers nethttp.Header) Option {
	return func(s *Source) {
		if headers == nil {
			return
		}
		s.headers = headers.Clone()
	}
}

// WithHeader sets a single header on each request.
func WithHeader(key, value string) Option {
	return func(s *Source) {
		if s.headers == nil {
			s.headers = make(nethttp.Header)
		}
		s.headers.Set(key, value)
	}
}

// WithConditionalHeaders sends If-Match or If-Unmodified-Since with every
// range read, so a file replaced on the server fails instead of mixing
// bytes from two versions. A 412 answer is retried once without them.
func WithConditionalHeaders() Option {
	return func(s *Source) {
		s.useConditionalHeaders = true
	}
}

// NewSource probes url and returns a Source for it. ctx bounds the probe
// and every later ReadAt.
func NewSource(ctx context.Context, url string, opts ...Option) (*Source, error) {
	s := &Source{
		ctx:    ctx,
		url:    url,
		client: nethttp.DefaultClient,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.client == nil {
		s.client = nethttp.DefaultClient
	}
	if err := s.probe(); err != nil {
		return nil, fmt.Errorf("%s: %w", url, err)
	}
	return s, nil
}

// URL returns the remote file's URL.
func (s *Source) URL() string { return s.url }

// Size returns the total size of the remote file.
func (s *Source) Size() int64 { return s.size }

// Validator returns the ETag the server reported, or its Last-Modified
// time when there is no ETag. It is empty if the server sent neither.
func (s *Source) Validator() string {
	if s.etag != "" {
		return s.etag
	}
	return s.lastModified
}

// ReadAt implements io.ReaderAt. A read that reaches the end of the file
// returns the bytes read along with io.EOF.
func (s *Source) ReadAt(p []byte, off int64) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	if off < 0 {
		return 0, fmt.Errorf("read at %d: negative offset", off)
	}
	if off >= s.size {
		return 0, io.EOF
	}
	want := min(int64(len(p)), s.size-off)
	end := off + want - 1

	resp, err := s.rangeRequest(off, end, true)
	if err != nil {
		return 0, err
	}
	if resp.StatusCode == nethttp.StatusPreconditionFailed && s.hasConditionalHeaders() {
		drain(resp)
		if resp, err = s.rangeRequest(off, end, false); err != nil {
			return 0, err
		}
	}
	defer drain(resp)

	switch resp.StatusCode {
	case nethttp.StatusPartialContent:
	case nethttp.StatusRequestedRangeNotSatisfiable:
		return 0, io.EOF
	case nethttp.StatusOK:
		return 0, ErrRangeUnsupported
	default:
		return 0, fmt.Errorf("range request failed: %s", resp.Status)
	}

	n, err := io.ReadFull(resp.Body, p[:want])
	if err != nil {
		return n, err
	}
	if int(want) < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// probe learns the size from a one-byte range read, cross-checked with the
// Content-Length of a HEAD request when the server answers one.
func (s *Source) probe() error {
	headSize := int64(-1)
	if req, err := s.newRequest(nethttp.MethodHead, false); err == nil {
		if resp, err := s.client.Do(req); err == nil {
			if resp.StatusCode == nethttp.StatusNotFound {
				drain(resp)
				return ErrNotFound
			}
			if resp.StatusCode == nethttp.StatusOK {
				headSize = resp.ContentLength
				s.etag = resp.Header.Get("ETag")
				s.lastModified = resp.Header.Get("Last-Modified")
			}
			drain(resp)
		}
	}

	req, err := s.newRequest(nethttp.MethodGet, false)
	if err != nil {
		return err
	}
	req.Header.Set("Range", "bytes=0-0")
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer drain(resp)

	switch resp.StatusCode {
	case nethttp.StatusPartialContent:
		size, err := parseContentRange(resp.Header.Get("Content-Range"))
		if err != nil {
			return err
		}
		s.size = size
	case nethttp.StatusRequestedRangeNotSatisfiable:
		// Zero-length file: no byte 0 to return.
		s.size = 0
	case nethttp.StatusNotFound:
		return ErrNotFound
	case nethttp.StatusOK:
		return ErrRangeUnsupported
	default:
		return fmt.Errorf("range probe failed: %s", resp.Status)
	}
	if headSize > 0 && headSize != s.size {
		return fmt.Errorf("content size mismatch: head=%d range=%d", headSize, s.size)
	}
	if s.etag == "" {
		s.etag = resp.Header.Get("ETag")
	}
	if s.lastModified == "" {
		s.lastModified = resp.Header.Get("Last-Modified")
	}
	return nil
}

func (s *Source) newRequest(method string, withConditions bool) (*nethttp.Request, error) {
	req, err := nethttp.NewRequestWithContext(s.ctx, method, s.url, nethttp.NoBody)
	if err != nil {
		return nil, err
	}
	for key, values := range s.headers {
		for _, value := range values {
			req.Header.Add(key, value)
		}
	}
	if req.Header.Get("Accept-Encoding") == "" {
		req.Header.Set("Accept-Encoding", "identity")
	}
	if method == nethttp.MethodGet && withConditions && s.useConditionalHeaders {
		if s.etag != "" && req.Header.Get("If-Match") == "" {
			req.Header.Set("If-Match", s.etag)
		}
		if s.lastModified != "" && req.Header.Get("If-Unmodified-Since") == "" {
			req.Header.Set("If-Unmodified-Since", s.lastModified)
		}
	}
	return req, nil
}

func (s *Source) rangeRequest(off, end int64, withConditions bool) (*nethttp.Response, error) {
	req, err := s.newRequest(nethttp.MethodGet, withConditions)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Range", fmt.Sprintf("bytes=%d-%d", off, end))
	return s.client.Do(req)
}

func (s *Source) hasConditionalHeaders() bool {
	return s.useConditionalHeaders && (s.etag != "" || s.lastModified != "")
}

// drain empties and closes a response body so the connection can be reused.
func drain(resp *nethttp.Response) {
	_, _ = io.Copy(io.Discard, resp.Body) //nolint:errcheck // best-effort drain for connection reuse
	_ = resp.Body.Close()
}

// parseContentRange returns the total size from "bytes start-end/size".
func parseContentRange(value string) (int64, error) {
	value = strings.TrimSpace(value)
	rest, ok := strings.CutPrefix(value, "bytes ")
	if !ok {
		return 0, fmt.Errorf("invalid Content-Range %q", value)
	}
	_, total, ok := strings.Cut(rest, "/")
	if !ok || total == "*" {
		return 0, fmt.Errorf("invalid Content-Range %q", value)
	}
	size, err := strconv.ParseInt(total, 10, 64)
	if err != nil || size < 0 {
		return 0, fmt.Errorf("invalid Content-Range %q", value)
	}
	return size, nil
}
