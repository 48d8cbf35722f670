package vpktype

import "errors"

// Sentinel errors for vpk operations.
var (
	// ErrInvalidHeader is returned when the index header has a bad signature,
	// version, or fixed section size, or declares more bytes than the file holds.
	ErrInvalidHeader = errors.New("vpk: invalid header")

	// ErrMalformedData is returned when a structural violation is found while
	// decoding or encoding: bad terminator, non-ASCII name, truncated buffer.
	ErrMalformedData = errors.New("vpk: malformed data")

	// ErrDoesNotExist is returned when a lookup key is not in the directory.
	ErrDoesNotExist = errors.New("vpk: entry does not exist")

	// ErrAlreadyExists is returned when two prototypes resolve to the same key.
	ErrAlreadyExists = errors.New("vpk: entry already exists")

	// ErrValidationFailed is returned when a stored checksum does not match.
	ErrValidationFailed = errors.New("vpk: validation failed")

	// ErrSizeOverflow is returned when a value does not fit its on-disk width.
	ErrSizeOverflow = errors.New("vpk: size overflow")

	// ErrNotImplemented is returned by operations the format defines but this
	// package does not support.
	ErrNotImplemented = errors.New("vpk: not implemented")

	// ErrUnsupportedVersion is returned when the index header carries a
	// version with no reader.
	ErrUnsupportedVersion = errors.New("vpk: unsupported version")
)

// Checksum section names reported by ValidationError.
const (
	SectionTree       = "tree_checksum"
	SectionArchiveMD5 = "archive_md5_section_checksum"
	SectionEntryCRC   = "entry_crc"
)

// ValidationError names the section whose checksum did not match.
type ValidationError struct {
	Section string
}

func (e *ValidationError) Error() string {
	return "vpk: validation failed: " + e.Section
}

// Unwrap lets errors.Is match ErrValidationFailed.
func (e *ValidationError) Unwrap() error { return ErrValidationFailed }
