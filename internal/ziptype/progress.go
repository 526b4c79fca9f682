package ziptype

// ProgressEvent represents a progress update during an index build.
type ProgressEvent struct {
	// Stage identifies the current phase of the build.
	Stage ProgressStage

	// BytesDone is the number of archive bytes consumed so far.
	BytesDone uint64

	// EntriesDone is the number of entries emitted so far.
	EntriesDone uint64
}

// ProgressStage identifies the current phase of an index build.
type ProgressStage uint8

const (
	// StageScanning indicates archive bytes are being scanned for records.
	StageScanning ProgressStage = iota

	// StageFlushing indicates a batch of entries is being persisted.
	StageFlushing

	// StageFinalizing indicates the directory is being finalized.
	StageFinalizing
)

// String returns the string representation of the stage.
func (s ProgressStage) String() string {
	switch s {
	case StageScanning:
		return "scanning"
	case StageFlushing:
		return "flushing"
	case StageFinalizing:
		return "finalizing"
	default:
		return "unknown"
	}
}

// ProgressFunc receives progress updates during an index build.
// Implementations must be safe for concurrent calls.
type ProgressFunc func(ProgressEvent)
