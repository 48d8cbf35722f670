package vpktype

// ProgressEvent represents a progress update during create, validate, or
// extraction operations.
type ProgressEvent struct {
	// Stage identifies the current phase of the operation.
	Stage ProgressStage

	// Path is the entry key currently being processed, if applicable.
	Path string

	// BytesDone is the number of bytes completed in the current operation.
	BytesDone uint64

	// FilesDone is the number of entries completed.
	FilesDone int

	// FilesTotal is the total number of entries.
	// Zero indicates the total is unknown (e.g., during enumeration).
	FilesTotal int
}

// ProgressStage identifies the current phase of an operation.
type ProgressStage uint8

const (
	// StageEnumerating indicates the source directory is being walked.
	StageEnumerating ProgressStage = iota

	// StageWritingData indicates entry bodies are being written to data files
	// or the embedded buffer.
	StageWritingData

	// StageWritingIndex indicates the directory file is being written.
	StageWritingIndex

	// StageExtracting indicates entries are being extracted.
	StageExtracting
)

func (s ProgressStage) String() string {
	switch s {
	case StageEnumerating:
		return "enumerating"
	case StageWritingData:
		return "writing data"
	case StageWritingIndex:
		return "writing index"
	case StageExtracting:
		return "extracting"
	default:
		return "unknown"
	}
}

// ProgressFunc receives progress updates during operations.
// Implementations must be safe for concurrent calls.
type ProgressFunc func(ProgressEvent)
