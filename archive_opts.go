package vpk

import "log/slog"

// Option configures an Archive.
type Option func(*Archive)

// WithLogger sets the logger used for open and validation events.
// A nil logger discards output.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Archive) {
		a.logger = logger
	}
}

// WithVerifyCRC controls whether ReadFile and the copy helpers check an
// entry's stored CRC32 after reading it (default: true). Entries with a zero
// CRC are never checked, since some tools leave the field unset.
func WithVerifyCRC(enabled bool) Option {
	return func(a *Archive) {
		a.verifyCRC = enabled
	}
}
