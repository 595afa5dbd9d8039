package arcvfs

// ProgressEvent represents a progress update during a rewrite or extraction.
type ProgressEvent struct {
	// Stage identifies the current phase of the operation.
	Stage ProgressStage

	// Path is the member currently being processed, if applicable.
	Path string

	// BytesDone is the number of bytes completed for Path.
	BytesDone int64

	// BytesTotal is the total bytes for Path.
	// Zero indicates the total is unknown.
	BytesTotal int64

	// FilesDone is the number of members completed.
	FilesDone int

	// FilesTotal is the total number of members.
	// Zero indicates the total is unknown.
	FilesTotal int
}

// ProgressStage identifies the current phase of an operation.
type ProgressStage uint8

// Progress stages.
const (
	// StageScanning indicates the container's member list is being read.
	StageScanning ProgressStage = iota

	// StageCopying indicates existing members are streamed into the new container.
	StageCopying

	// StageAppending indicates new members are written into the new container.
	StageAppending

	// StageCommitting indicates the new container is replacing the original.
	StageCommitting

	// StageExtracting indicates members are being extracted to disk.
	StageExtracting
)

// String returns the string representation of the stage.
func (s ProgressStage) String() string {
	switch s {
	case StageScanning:
		return "scanning"
	case StageCopying:
		return "copying"
	case StageAppending:
		return "appending"
	case StageCommitting:
		return "committing"
	case StageExtracting:
		return "extracting"
	default:
		return "unknown"
	}
}

// ProgressFunc receives progress updates during operations.
type ProgressFunc func(ProgressEvent)

// Report calls fn with ev when fn is non-nil.
func (fn ProgressFunc) Report(ev ProgressEvent) {
	if fn != nil {
		fn(ev)
	}
}
