// Package vpktype defines shared types used across the vpk package and its
// internal packages. This avoids circular imports between vpk and internal/entry.
package vpktype

// Compression identifies the compression applied to an export stream.
type Compression uint8

const (
	CompressionNone Compression = iota
	CompressionZstd
)

func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionZstd:
		return "zstd"
	default:
		return "unknown"
	}
}
