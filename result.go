package facetrack

import (
	"time"

	"facetrack/tracking"
)

// StageTimings breaks one frame's processing time down by pipeline stage
type StageTimings struct {
	Normalize time.Duration
	Detect    time.Duration
	Estimate  time.Duration
	Associate time.Duration
	Total     time.Duration
}

// Result is the outcome of processing one frame. Faces holds a snapshot of
// every tracked face observed in this frame, ordered by ascending id; a
// track missing its detection this frame is withheld until it re-associates
// or is evicted. Err,
// when non-nil, is a recoverable processing error reported alongside the
// partial results for the frame, never instead of them.
type Result struct {
	// FrameIndex counts frames the session accepted, starting at 0
	FrameIndex uint64
	// Timestamp is the frame's capture timestamp
	Timestamp time.Time
	Faces     []tracking.Snapshot
	Err       error
	Timings   StageTimings
}
