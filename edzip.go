package edzip

import "github.com/edzip/edzip/internal/ziptype"

// Re-export types from internal/ziptype for the public API.
type (
	// Entry is the persisted replacement for one central directory record.
	Entry = ziptype.Entry

	// Method identifies the compression method of an archive member.
	Method = ziptype.Method

	// Meta describes a completed index build.
	Meta = ziptype.Meta

	// ByteSource provides random access to archive bytes.
	ByteSource = ziptype.ByteSource

	// ProgressEvent represents a progress update during an index build.
	ProgressEvent = ziptype.ProgressEvent

	// ProgressStage identifies the current phase of an index build.
	ProgressStage = ziptype.ProgressStage

	// ProgressFunc receives progress updates during an index build.
	ProgressFunc = ziptype.ProgressFunc
)

// Re-export compression method constants.
const (
	MethodStore   = ziptype.MethodStore
	MethodDeflate = ziptype.MethodDeflate
	MethodZstd    = ziptype.MethodZstd
)

// Re-export progress stage constants.
const (
	StageScanning   = ziptype.StageScanning
	StageFlushing   = ziptype.StageFlushing
	StageFinalizing = ziptype.StageFinalizing
)

// FormatVersion is the current directory format version.
const FormatVersion = ziptype.FormatVersion
