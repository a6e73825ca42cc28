package eval

import "time"

// Stage describes a high-level phase of producing package pieces.
type Stage string

const (
	// StageLoad covers reading and validating evaluation input.
	StageLoad Stage = "load"
	// StageEvaluate covers driving a build file builder.
	StageEvaluate Stage = "evaluate"
	// StageExpand covers driving a macro piece builder.
	StageExpand Stage = "expand"
	// StageFinalize covers sealing builders into pieces.
	StageFinalize Stage = "finalize"
	// StageCache covers piece cache reads and writes.
	StageCache Stage = "cache"
)

// Status captures progress state within a stage.
type Status string

const (
	// StatusQueued indicates the piece is waiting for a worker.
	StatusQueued Status = "queued"
	// StatusWorking indicates the piece is currently being produced.
	StatusWorking Status = "working"
	// StatusDone indicates the piece was finalized.
	StatusDone Status = "done"
	// StatusError indicates evaluation failed.
	StatusError Status = "error"
	// StatusCached indicates the piece came out of the cache.
	StatusCached Status = "cached"
)

// Event reports progress for one piece (or for the overall run when
// Piece is empty). Piece carries the canonical piece name.
type Event struct {
	Piece   string
	Stage   Stage
	Status  Status
	Err     error
	Elapsed time.Duration
}

// ProgressSink consumes progress events. Implementations must tolerate
// concurrent OnEvent calls: the driver emits from worker goroutines.
type ProgressSink interface {
	OnEvent(Event)
}

// ChannelSink forwards events into a channel.
type ChannelSink struct {
	Ch chan<- Event
}

func (s ChannelSink) OnEvent(evt Event) {
	if s.Ch == nil {
		return
	}
	s.Ch <- evt
}
