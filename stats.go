package facetrack

import (
	"sync"
	"time"
)

// Stats is a point-in-time snapshot of a session's processing statistics
type Stats struct {
	FramesProcessed uint64
	// FacesDetected is the cumulative count of accepted detections
	FacesDetected uint64
	// ActiveFaces is the number of faces observed in the last frame
	ActiveFaces int
	// AverageConfidence is the mean confidence of the last frame's faces
	AverageConfidence float64
	// AverageFPS is measured over the recent processing window
	AverageFPS float64
	// DroppedResults counts streaming results discarded because the
	// consumer lagged behind the bounded result buffer.
	DroppedResults uint64

	// Mean per-stage processing times
	AvgNormalize time.Duration
	AvgDetect    time.Duration
	AvgEstimate  time.Duration
	AvgAssociate time.Duration
	AvgTotal     time.Duration
}

// statsCollector accumulates pipeline metrics across frames
type statsCollector struct {
	mu sync.Mutex

	framesProcessed uint64
	facesDetected   uint64
	activeFaces     int
	avgConfidence   float64
	droppedResults  uint64

	normalizeTotal time.Duration
	detectTotal    time.Duration
	estimateTotal  time.Duration
	associateTotal time.Duration
	totalTotal     time.Duration

	// FPS over a sliding one-second window
	fpsWindowStart time.Time
	fpsWindowCount int
	lastFPS        float64
}

func newStatsCollector() *statsCollector {
	return &statsCollector{fpsWindowStart: time.Now()}
}

// recordFrame folds one processed frame into the running totals
func (sc *statsCollector) recordFrame(faces int, avgConfidence float64, timings StageTimings) {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	sc.framesProcessed++
	sc.facesDetected += uint64(faces)
	sc.activeFaces = faces
	sc.avgConfidence = avgConfidence

	sc.normalizeTotal += timings.Normalize
	sc.detectTotal += timings.Detect
	sc.estimateTotal += timings.Estimate
	sc.associateTotal += timings.Associate
	sc.totalTotal += timings.Total

	now := time.Now()
	sc.fpsWindowCount++
	if elapsed := now.Sub(sc.fpsWindowStart); elapsed >= time.Second {
		sc.lastFPS = float64(sc.fpsWindowCount) / elapsed.Seconds()
		sc.fpsWindowCount = 0
		sc.fpsWindowStart = now
	}
}

// recordDrop counts one result dropped under backpressure
func (sc *statsCollector) recordDrop() {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.droppedResults++
}

// snapshot returns current statistics
func (sc *statsCollector) snapshot() Stats {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	s := Stats{
		FramesProcessed:   sc.framesProcessed,
		FacesDetected:     sc.facesDetected,
		ActiveFaces:       sc.activeFaces,
		AverageConfidence: sc.avgConfidence,
		AverageFPS:        sc.lastFPS,
		DroppedResults:    sc.droppedResults,
	}
	if sc.framesProcessed > 0 {
		n := time.Duration(sc.framesProcessed)
		s.AvgNormalize = sc.normalizeTotal / n
		s.AvgDetect = sc.detectTotal / n
		s.AvgEstimate = sc.estimateTotal / n
		s.AvgAssociate = sc.associateTotal / n
		s.AvgTotal = sc.totalTotal / n
	}
	return s
}
