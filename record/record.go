// Package record persists per-frame tracking results as a msgpack stream:
// one header followed by one record per processed frame. Writes go through
// a bounded queue and a single writer goroutine so recording never stalls
// the pipeline; when the queue is full the frame is skipped and counted.
package record

import (
	"time"

	"facetrack/tracking"
)

// Header opens every recording file
type Header struct {
	SessionID string    `msgpack:"session_id"`
	CreatedAt time.Time `msgpack:"created_at"`

	// Configuration snapshot the results were produced under
	ConfidenceThreshold float64 `msgpack:"confidence_threshold"`
	MaxFaces            int     `msgpack:"max_faces"`
	Landmarks           bool    `msgpack:"landmarks"`
	Pose                bool    `msgpack:"pose"`
	Gaze                bool    `msgpack:"gaze"`
}

// FaceRecord is one tracked face in one frame
type FaceRecord struct {
	ID         uint64  `msgpack:"id"`
	X          int     `msgpack:"x"`
	Y          int     `msgpack:"y"`
	W          int     `msgpack:"w"`
	H          int     `msgpack:"h"`
	Confidence float64 `msgpack:"c"`

	// Landmarks are flattened x,y pairs in image pixels, empty when the
	// feature was disabled or estimation failed for this face.
	Landmarks []float64 `msgpack:"l,omitempty"`

	HasPose bool    `msgpack:"hp,omitempty"`
	Pitch   float64 `msgpack:"pt,omitempty"`
	Yaw     float64 `msgpack:"yw,omitempty"`
	Roll    float64 `msgpack:"rl,omitempty"`

	HasGaze bool    `msgpack:"hg,omitempty"`
	GazeX   float64 `msgpack:"gx,omitempty"`
	GazeY   float64 `msgpack:"gy,omitempty"`
	GazeZ   float64 `msgpack:"gz,omitempty"`
}

// FrameRecord is the result of one processed frame
type FrameRecord struct {
	Index       uint64       `msgpack:"i"`
	TimestampMS int64        `msgpack:"t"`
	Faces       []FaceRecord `msgpack:"f"`
	// Error carries a recoverable per-frame processing error, already
	// classified upstream; it is stored for replay diagnostics only.
	Error string `msgpack:"e,omitempty"`
}

// FromSnapshots converts a frame's tracked-face snapshots into a record
func FromSnapshots(index uint64, ts time.Time, faces []tracking.Snapshot, procErr error) FrameRecord {
	rec := FrameRecord{
		Index:       index,
		TimestampMS: ts.UnixMilli(),
		Faces:       make([]FaceRecord, 0, len(faces)),
	}
	if procErr != nil {
		rec.Error = procErr.Error()
	}
	for _, face := range faces {
		fr := FaceRecord{
			ID:         face.ID,
			X:          face.Box.Min.X,
			Y:          face.Box.Min.Y,
			W:          face.Box.Dx(),
			H:          face.Box.Dy(),
			Confidence: face.Confidence,
		}
		if face.Landmarks != nil {
			fr.Landmarks = make([]float64, 0, len(face.Landmarks.Points)*2)
			for _, p := range face.Landmarks.Points {
				fr.Landmarks = append(fr.Landmarks, p.X, p.Y)
			}
		}
		if face.Pose != nil {
			fr.HasPose = true
			fr.Pitch = face.Pose.Pitch
			fr.Yaw = face.Pose.Yaw
			fr.Roll = face.Pose.Roll
		}
		if face.Gaze != nil {
			fr.HasGaze = true
			fr.GazeX = face.Gaze.Combined.X
			fr.GazeY = face.Gaze.Combined.Y
			fr.GazeZ = face.Gaze.Combined.Z
		}
		rec.Faces = append(rec.Faces, fr)
	}
	return rec
}
