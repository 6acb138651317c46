package tracking

import (
	"fmt"
	"image"
	"math"
	"sort"
	"sync"
	"time"

	"facetrack/debuglog"
	"facetrack/detection"
)

// matchIoUCutoff is the minimum predicted-vs-detected IoU for a track and a
// detection to be considered the same face.
const matchIoUCutoff = 0.25

// Tracker associates per-frame observations with stable face identities.
// Each frame it predicts every track's box forward, greedily matches tracks
// to detections by lowest 1-IoU cost, ages unmatched tracks toward eviction
// and spawns tracks for unmatched detections up to the face limit.
type Tracker struct {
	mu sync.Mutex

	faces  map[uint64]*TrackedFace
	nextID uint64

	maxFaces   int
	evictAfter int
}

// NewTracker creates a tracker. maxFaces caps concurrent identities;
// evictAfter is the number of consecutive unmatched frames before a track
// is dropped.
func NewTracker(maxFaces, evictAfter int) *Tracker {
	return &Tracker{
		faces:      make(map[uint64]*TrackedFace),
		nextID:     1,
		maxFaces:   maxFaces,
		evictAfter: evictAfter,
	}
}

// Update runs one association round. now stamps matched tracks; dt is the
// seconds since the previous frame, used for motion prediction. Returned
// snapshots are ordered by ascending id and cover only tracks observed this
// frame: an unmatched track is withheld from results while it ages toward
// eviction, and reappears with its id intact if a detection re-associates
// first.
func (t *Tracker) Update(observations []Observation, now time.Time, dt float64) []Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	matchedTracks := make(map[uint64]bool)
	matchedObs := make(map[int]bool)

	t.matchGreedy(observations, matchedTracks, matchedObs, now, dt)
	t.ageAndEvict(matchedTracks)
	t.spawnNew(observations, matchedObs, matchedTracks, now)

	return t.snapshotObserved(matchedTracks)
}

// matchGreedy repeatedly takes the globally cheapest remaining
// track/detection pair under the IoU cutoff.
func (t *Tracker) matchGreedy(observations []Observation, matchedTracks map[uint64]bool, matchedObs map[int]bool, now time.Time, dt float64) {
	type pair struct {
		trackID uint64
		obsIdx  int
		cost    float64
	}

	var pairs []pair
	for id, face := range t.faces {
		predicted := face.predictedBox(dt)
		for i, obs := range observations {
			iou := detection.IoU(predicted, obs.Detection.Box)
			if iou < matchIoUCutoff {
				continue
			}
			pairs = append(pairs, pair{trackID: id, obsIdx: i, cost: 1 - iou})
		}
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].cost != pairs[j].cost {
			return pairs[i].cost < pairs[j].cost
		}
		// Deterministic tie-break on ids
		if pairs[i].trackID != pairs[j].trackID {
			return pairs[i].trackID < pairs[j].trackID
		}
		return pairs[i].obsIdx < pairs[j].obsIdx
	})

	for _, p := range pairs {
		if matchedTracks[p.trackID] || matchedObs[p.obsIdx] {
			continue
		}
		matchedTracks[p.trackID] = true
		matchedObs[p.obsIdx] = true
		t.faces[p.trackID].update(observations[p.obsIdx], now, dt)
	}
}

// ageAndEvict increments staleness on unmatched tracks and drops the ones
// past the threshold. Evicted ids are never reallocated.
func (t *Tracker) ageAndEvict(matchedTracks map[uint64]bool) {
	for id, face := range t.faces {
		if matchedTracks[id] {
			continue
		}
		face.MissedFrames++
		if face.MissedFrames >= t.evictAfter {
			debuglog.Msg("TRACKER", fmt.Sprintf("evicting face %d after %d unmatched frames", id, face.MissedFrames))
			delete(t.faces, id)
		}
	}
}

// spawnNew creates tracks for unmatched detections, highest confidence
// first, while the active count stays at or below the face limit. Excess
// detections are dropped lowest-confidence first. Spawned tracks count as
// observed this frame.
func (t *Tracker) spawnNew(observations []Observation, matchedObs map[int]bool, matchedTracks map[uint64]bool, now time.Time) {
	var unmatched []int
	for i := range observations {
		if !matchedObs[i] {
			unmatched = append(unmatched, i)
		}
	}
	sort.SliceStable(unmatched, func(a, b int) bool {
		return observations[unmatched[a]].Detection.Confidence > observations[unmatched[b]].Detection.Confidence
	})

	for _, i := range unmatched {
		if len(t.faces) >= t.maxFaces {
			debuglog.Verbosef("TRACKER", "dropping detection at %.2f confidence, %d faces active",
				observations[i].Detection.Confidence, len(t.faces))
			continue
		}
		face := newTrackedFace(t.nextID, observations[i], now)
		t.nextID++
		t.faces[face.ID] = face
		matchedTracks[face.ID] = true
		debuglog.Msg("TRACKER", fmt.Sprintf("new face %d at %v confidence %.2f", face.ID, face.Box, face.Confidence))
	}
}

// snapshotObserved returns copies of the tracks observed this frame ordered
// by ascending id. Tracks that went unmatched stay in the internal map but
// do not appear in results.
func (t *Tracker) snapshotObserved(observed map[uint64]bool) []Snapshot {
	out := make([]Snapshot, 0, len(observed))
	for id := range observed {
		if face, ok := t.faces[id]; ok {
			out = append(out, face.snapshot())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Count returns the number of live tracks
func (t *Tracker) Count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.faces)
}

// Reset drops every track. Id allocation continues from where it was, so
// identities stay unique across a reset within one tracker lifetime.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.faces = make(map[uint64]*TrackedFace)
}

// newTrackedFace spawns a track from its first observation
func newTrackedFace(id uint64, obs Observation, now time.Time) *TrackedFace {
	face := &TrackedFace{
		ID:            id,
		Box:           obs.Detection.Box,
		Confidence:    obs.Detection.Confidence,
		Landmarks:     obs.Landmarks,
		Pose:          obs.Pose,
		Gaze:          obs.Gaze,
		FirstSeen:     now,
		LastSeen:      now,
		MatchedFrames: 1,
		filter:        NewKalmanFilter(),
	}
	cx, cy := boxCenter(obs.Detection.Box)
	face.filter.Update(cx, cy, 0)
	return face
}

// update refreshes a matched track with the frame's observation
func (f *TrackedFace) update(obs Observation, now time.Time, dt float64) {
	f.Box = obs.Detection.Box
	f.Confidence = obs.Detection.Confidence
	f.Landmarks = obs.Landmarks
	f.Pose = obs.Pose
	f.Gaze = obs.Gaze
	f.LastSeen = now
	f.MatchedFrames++
	f.MissedFrames = 0

	cx, cy := boxCenter(obs.Detection.Box)
	f.filter.Update(cx, cy, dt)
}

// predictedBox extrapolates the track's box dt seconds forward, keeping its
// last known size.
func (f *TrackedFace) predictedBox(dt float64) image.Rectangle {
	cx, cy := f.filter.Predict(dt)
	halfW := float64(f.Box.Dx()) / 2
	halfH := float64(f.Box.Dy()) / 2
	return image.Rect(
		int(math.Round(cx-halfW)), int(math.Round(cy-halfH)),
		int(math.Round(cx+halfW)), int(math.Round(cy+halfH)),
	)
}

func boxCenter(r image.Rectangle) (float64, float64) {
	return float64(r.Min.X) + float64(r.Dx())/2, float64(r.Min.Y) + float64(r.Dy())/2
}
