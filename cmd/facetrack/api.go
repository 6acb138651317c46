package main

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"

	"facetrack"
	"facetrack/debuglog"
	"facetrack/tracking"
)

// statusServer exposes the running session over a small JSON API
type statusServer struct {
	session *facetrack.Session
	server  *http.Server

	mu     sync.RWMutex
	latest facetrack.Result
}

func newStatusServer(session *facetrack.Session, addr string) *statusServer {
	s := &statusServer{session: session}

	r := mux.NewRouter()
	r.HandleFunc("/status", s.handleStatus).Methods("GET")
	r.HandleFunc("/stats", s.handleStats).Methods("GET")
	r.HandleFunc("/faces", s.handleFaces).Methods("GET")

	s.server = &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}
	return s
}

// Start serves the API in the background
func (s *statusServer) Start() {
	go func() {
		debuglog.Msgf("API", "status server listening on %s", s.server.Addr)
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			debuglog.Msgf("API", "status server error: %v", err)
		}
	}()
}

// Shutdown stops the API server, waiting briefly for in-flight requests
func (s *statusServer) Shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	s.server.Shutdown(ctx)
}

// Update records the most recent frame result for the /faces endpoint
func (s *statusServer) Update(res facetrack.Result) {
	s.mu.Lock()
	s.latest = res
	s.mu.Unlock()
}

func (s *statusServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.session.Status())
}

func (s *statusServer) handleStats(w http.ResponseWriter, r *http.Request) {
	stats := s.session.Stats()
	writeJSON(w, map[string]interface{}{
		"frames_processed":   stats.FramesProcessed,
		"faces_detected":     stats.FacesDetected,
		"active_faces":       stats.ActiveFaces,
		"average_confidence": stats.AverageConfidence,
		"average_fps":        stats.AverageFPS,
		"dropped_results":    stats.DroppedResults,
		"avg_normalize_ms":   stats.AvgNormalize.Seconds() * 1000,
		"avg_detect_ms":      stats.AvgDetect.Seconds() * 1000,
		"avg_estimate_ms":    stats.AvgEstimate.Seconds() * 1000,
		"avg_associate_ms":   stats.AvgAssociate.Seconds() * 1000,
		"avg_total_ms":       stats.AvgTotal.Seconds() * 1000,
	})
}

func (s *statusServer) handleFaces(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	res := s.latest
	s.mu.RUnlock()

	faces := make([]map[string]interface{}, 0, len(res.Faces))
	for _, f := range res.Faces {
		faces = append(faces, faceJSON(f))
	}
	writeJSON(w, map[string]interface{}{
		"frame_index": res.FrameIndex,
		"timestamp":   res.Timestamp.UnixMilli(),
		"faces":       faces,
	})
}

func faceJSON(f tracking.Snapshot) map[string]interface{} {
	m := map[string]interface{}{
		"id":         f.ID,
		"x":          f.Box.Min.X,
		"y":          f.Box.Min.Y,
		"w":          f.Box.Dx(),
		"h":          f.Box.Dy(),
		"confidence": f.Confidence,
		"matched":    f.MatchedFrames,
		"missed":     f.MissedFrames,
	}
	if f.Pose != nil {
		m["pose"] = map[string]float64{
			"pitch": f.Pose.Pitch,
			"yaw":   f.Pose.Yaw,
			"roll":  f.Pose.Roll,
		}
	}
	if f.Gaze != nil {
		m["gaze"] = map[string]float64{
			"x": f.Gaze.Combined.X,
			"y": f.Gaze.Combined.Y,
			"z": f.Gaze.Combined.Z,
		}
	}
	return m
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
