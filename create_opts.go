package vpk

import "log/slog"

// DefaultSplitThreshold is the source read position past which Create
// starts a new data file for the next external entry.
const DefaultSplitThreshold = 100_000_000

// createConfig holds configuration for archive creation.
type createConfig struct {
	splitThreshold uint64
	progress       ProgressFunc
	logger         *slog.Logger

	// CreateFromDir only.
	embed   EmbedFunc
	preload PreloadFunc
}

// CreateOption configures archive creation.
type CreateOption func(*createConfig)

// EmbedFunc reports whether the file at the slash-separated name should be
// stored in the index file rather than a data file.
type EmbedFunc func(name string, size int64) bool

// PreloadFunc returns how many leading bytes of the file at name to store
// inline in the tree. Values larger than the file are clamped to its size.
type PreloadFunc func(name string, size int64) uint16

// CreateWithSplitThreshold overrides DefaultSplitThreshold. Zero restores
// the default.
func CreateWithSplitThreshold(n uint64) CreateOption {
	return func(cfg *createConfig) {
		cfg.splitThreshold = n
	}
}

// CreateWithProgress sets a callback to receive progress updates.
func CreateWithProgress(fn ProgressFunc) CreateOption {
	return func(cfg *createConfig) {
		cfg.progress = fn
	}
}

// CreateWithLogger sets the logger for archive creation.
func CreateWithLogger(logger *slog.Logger) CreateOption {
	return func(cfg *createConfig) {
		cfg.logger = logger
	}
}

// CreateWithEmbed chooses, per file, whether CreateFromDir embeds the body
// in the index file. By default every body goes to a data file.
func CreateWithEmbed(fn EmbedFunc) CreateOption {
	return func(cfg *createConfig) {
		cfg.embed = fn
	}
}

// CreateWithPreload chooses, per file, how many bytes CreateFromDir stores
// as preload data. By default nothing is preloaded.
func CreateWithPreload(fn PreloadFunc) CreateOption {
	return func(cfg *createConfig) {
		cfg.preload = fn
	}
}
