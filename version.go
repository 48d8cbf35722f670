package vpk

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/meigma/vpk/internal/layout"
)

// Version identifies the format of an index file.
type Version uint32

const (
	// VersionNotVPK means the file does not start with the VPK signature.
	VersionNotVPK Version = iota
	// Version1 archives have an older header without the MD5 sections.
	Version1
	// Version2 archives are read and written by this package.
	Version2
	// VersionUnknown means the signature matched but the version did not.
	VersionUnknown
)

func (v Version) String() string {
	switch v {
	case VersionNotVPK:
		return "not vpk"
	case Version1:
		return "v1"
	case Version2:
		return "v2"
	default:
		return "unknown"
	}
}

// Format is the capability set every archive version provides.
type Format interface {
	Lookup(key string) (*EntryReader, error)
	ValidateArchive(ctx context.Context) ([]ArchiveChecksum, error)
	ValidateOther() error
	Close() error
}

// DetectVersion reads the first 8 bytes of the index file at path.
// A file shorter than that is VersionNotVPK.
func DetectVersion(path string) (Version, error) {
	f, err := os.Open(path)
	if err != nil {
		return VersionNotVPK, err
	}
	defer f.Close()
	return detectVersion(f)
}

func detectVersion(r io.Reader) (Version, error) {
	b := make([]byte, layout.CommonHeaderSize)
	if _, err := io.ReadFull(r, b); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return VersionNotVPK, nil
		}
		return VersionNotVPK, err
	}
	h, err := layout.DecodeCommonHeader(b)
	if err != nil {
		return VersionNotVPK, err
	}
	switch {
	case h.Signature != layout.Signature:
		return VersionNotVPK, nil
	case h.Version == 1:
		return Version1, nil
	case h.Version == layout.Version2:
		return Version2, nil
	default:
		return VersionUnknown, nil
	}
}

// OpenAny sniffs the index file at path and opens it with the matching
// reader. Version 1 archives return ErrNotImplemented, unknown versions
// ErrUnsupportedVersion, and files without the signature ErrInvalidHeader.
func OpenAny(path string, opts ...Option) (Format, error) {
	v, err := DetectVersion(path)
	if err != nil {
		return nil, err
	}
	switch v {
	case Version2:
		a, err := Open(path, opts...)
		if err != nil {
			return nil, err
		}
		return a, nil
	case Version1:
		return nil, fmt.Errorf("open %s: version 1: %w", path, ErrNotImplemented)
	case VersionUnknown:
		return nil, fmt.Errorf("open %s: %w", path, ErrUnsupportedVersion)
	default:
		return nil, fmt.Errorf("open %s: %w: missing signature", path, ErrInvalidHeader)
	}
}
