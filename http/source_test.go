package http_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	nethttp "net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	vpkhttp "github.com/meigma/vpk/http"
)

func serveBytes(t *testing.T, data []byte) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		nethttp.ServeContent(w, r, "data", time.Time{}, bytes.NewReader(data))
	}))
	t.Cleanup(server.Close)
	return server
}

func TestSource_ReadAt(t *testing.T) {
	t.Parallel()

	data := []byte("hello world")
	server := serveBytes(t, data)

	src, err := vpkhttp.NewSource(context.Background(), server.URL, vpkhttp.WithConditionalHeaders())
	if err != nil {
		t.Fatalf("NewSource() error = %v", err)
	}
	if src.Size() != int64(len(data)) {
		t.Fatalf("Size() = %d, want %d", src.Size(), len(data))
	}

	tests := []struct {
		name    string
		bufSize int
		offset  int64
		wantN   int
		wantErr error
		want    string
	}{
		{name: "read from middle", bufSize: 5, offset: 6, wantN: 5, want: "world"},
		{name: "read past end returns EOF", bufSize: 10, offset: int64(len(data) - 3), wantN: 3, wantErr: io.EOF, want: "rld"},
		{name: "offset at end", bufSize: 4, offset: int64(len(data)), wantN: 0, wantErr: io.EOF, want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			buf := make([]byte, tt.bufSize)
			n, err := src.ReadAt(buf, tt.offset)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("ReadAt() error = %v, want %v", err, tt.wantErr)
			}
			if n != tt.wantN {
				t.Fatalf("ReadAt() n = %d, want %d", n, tt.wantN)
			}
			if got := string(buf[:n]); got != tt.want {
				t.Fatalf("ReadAt() got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSource_SectionReader(t *testing.T) {
	t.Parallel()

	data := bytes.Repeat([]byte("0123456789"), 100)
	server := serveBytes(t, data)

	src, err := vpkhttp.NewSource(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("NewSource() error = %v", err)
	}
	got, err := io.ReadAll(io.NewSectionReader(src, 0, src.Size()))
	if err != nil {
		t.Fatalf("ReadAll() error = %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Fatalf("ReadAll() returned %d bytes, want %d", len(got), len(data))
	}
}

func TestNewSource_Empty(t *testing.T) {
	t.Parallel()

	server := serveBytes(t, nil)
	src, err := vpkhttp.NewSource(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("NewSource() error = %v", err)
	}
	if src.Size() != 0 {
		t.Fatalf("Size() = %d, want 0", src.Size())
	}
}

func TestNewSource_NotFound(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(nethttp.NotFoundHandler())
	t.Cleanup(server.Close)

	_, err := vpkhttp.NewSource(context.Background(), server.URL)
	if !errors.Is(err, vpkhttp.ErrNotFound) {
		t.Fatalf("NewSource() error = %v, want ErrNotFound", err)
	}
}

func TestNewSource_RangeUnsupported(t *testing.T) {
	t.Parallel()

	data := []byte("range unsupported")
	server := httptest.NewServer(nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		if r.Method == nethttp.MethodHead {
			w.Header().Set("Content-Length", strconv.Itoa(len(data)))
			return
		}
		_, _ = w.Write(data)
	}))
	t.Cleanup(server.Close)

	_, err := vpkhttp.NewSource(context.Background(), server.URL)
	if !errors.Is(err, vpkhttp.ErrRangeUnsupported) {
		t.Fatalf("NewSource() error = %v, want ErrRangeUnsupported", err)
	}
}

func TestSource_ReadAt_RetriesWithoutIfMatchOn412(t *testing.T) {
	t.Parallel()

	data := []byte("hello world")
	etag := `"retry-test"`
	var withIfMatch, withoutIfMatch atomic.Int32

	server := httptest.NewServer(nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		if r.Method == nethttp.MethodGet && r.Header.Get("Range") == "bytes=6-10" {
			if r.Header.Get("If-Match") != "" {
				withIfMatch.Add(1)
				w.WriteHeader(nethttp.StatusPreconditionFailed)
				return
			}
			withoutIfMatch.Add(1)
		}
		w.Header().Set("ETag", etag)
		nethttp.ServeContent(w, r, "data", time.Time{}, bytes.NewReader(data))
	}))
	t.Cleanup(server.Close)

	src, err := vpkhttp.NewSource(context.Background(), server.URL, vpkhttp.WithConditionalHeaders())
	if err != nil {
		t.Fatalf("NewSource() error = %v", err)
	}

	buf := make([]byte, 5)
	n, err := src.ReadAt(buf, 6)
	if err != nil {
		t.Fatalf("ReadAt() error = %v", err)
	}
	if got := string(buf[:n]); got != "world" {
		t.Fatalf("ReadAt() got %q, want %q", got, "world")
	}
	if withIfMatch.Load() != 1 || withoutIfMatch.Load() != 1 {
		t.Fatalf("requests with If-Match = %d, without = %d; want 1 and 1", withIfMatch.Load(), withoutIfMatch.Load())
	}
}
