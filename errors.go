package vpk

import "github.com/meigma/vpk/internal/vpktype"

// Sentinel errors re-exported from internal/vpktype.
var (
	// ErrInvalidHeader is returned when the index header fails validation.
	ErrInvalidHeader = vpktype.ErrInvalidHeader

	// ErrMalformedData is returned when archive structures cannot be decoded
	// or prototypes cannot be encoded.
	ErrMalformedData = vpktype.ErrMalformedData

	// ErrDoesNotExist is returned when a lookup key is not in the archive.
	ErrDoesNotExist = vpktype.ErrDoesNotExist

	// ErrAlreadyExists is returned when two prototypes share a key.
	ErrAlreadyExists = vpktype.ErrAlreadyExists

	// ErrValidationFailed is returned when a checksum does not match.
	// The concrete error is a *ValidationError naming the section.
	ErrValidationFailed = vpktype.ErrValidationFailed

	// ErrSizeOverflow is returned when a size or offset does not fit its
	// on-disk field.
	ErrSizeOverflow = vpktype.ErrSizeOverflow

	// ErrNotImplemented is returned by AppendEntries and by OpenAny for
	// version 1 archives.
	ErrNotImplemented = vpktype.ErrNotImplemented

	// ErrUnsupportedVersion is returned by OpenAny for unknown versions.
	ErrUnsupportedVersion = vpktype.ErrUnsupportedVersion
)

// ValidationError names the checksum section that failed.
type ValidationError = vpktype.ValidationError

// Section names carried by ValidationError.
const (
	SectionTree       = vpktype.SectionTree
	SectionArchiveMD5 = vpktype.SectionArchiveMD5
	SectionEntryCRC   = vpktype.SectionEntryCRC
)
