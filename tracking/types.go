package tracking

import (
	"image"
	"time"

	"facetrack/detection"
	"facetrack/landmark"
)

// Observation is everything the upstream stages produced for one detection
// in the current frame. Landmarks, Pose and Gaze are nil when the feature
// is disabled or its estimation failed for this detection.
type Observation struct {
	Detection detection.Detection
	Landmarks *landmark.Set
	Pose      *landmark.HeadPose
	Gaze      *landmark.EyeGaze
}

// TrackedFace is one face with a stable identity across frames. Owned
// exclusively by the tracker; consumers receive Snapshot copies.
type TrackedFace struct {
	// ID is allocated monotonically and never reused after eviction within
	// a tracker's lifetime.
	ID uint64

	Box        image.Rectangle
	Confidence float64
	Landmarks  *landmark.Set
	Pose       *landmark.HeadPose
	Gaze       *landmark.EyeGaze

	FirstSeen time.Time
	LastSeen  time.Time
	// MatchedFrames counts frames this face was re-associated
	MatchedFrames int
	// MissedFrames counts consecutive frames without a match; the face is
	// evicted when it reaches the tracker's staleness threshold.
	MissedFrames int

	filter *KalmanFilter
}

// Snapshot is an immutable per-frame view of a tracked face, returned by
// value so the consumer can never mutate tracker state.
type Snapshot struct {
	ID            uint64
	Box           image.Rectangle
	Confidence    float64
	Landmarks     *landmark.Set
	Pose          *landmark.HeadPose
	Gaze          *landmark.EyeGaze
	FirstSeen     time.Time
	LastSeen      time.Time
	MatchedFrames int
	MissedFrames  int
}

// snapshot copies the face's current state. Landmark, pose and gaze values
// are deep-copied; slices of points never alias tracker-owned memory.
func (f *TrackedFace) snapshot() Snapshot {
	s := Snapshot{
		ID:            f.ID,
		Box:           f.Box,
		Confidence:    f.Confidence,
		FirstSeen:     f.FirstSeen,
		LastSeen:      f.LastSeen,
		MatchedFrames: f.MatchedFrames,
		MissedFrames:  f.MissedFrames,
	}
	if f.Landmarks != nil {
		lm := *f.Landmarks
		s.Landmarks = &lm
	}
	if f.Pose != nil {
		p := *f.Pose
		s.Pose = &p
	}
	if f.Gaze != nil {
		g := *f.Gaze
		s.Gaze = &g
	}
	return s
}
