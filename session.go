// Package facetrack is a real-time face-tracking engine: a frame-driven
// pipeline of ingestion, detection, landmark/pose/gaze estimation and
// cross-frame identity tracking, owned by a single Session with an explicit
// lifecycle.
package facetrack

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"facetrack/debuglog"
	"facetrack/detection"
	"facetrack/frame"
	"facetrack/landmark"
	"facetrack/tracking"
)

// State is the session lifecycle state
type State int

const (
	StateUninitialized State = iota
	StateReady
	StateStreaming
	StateDisposed
)

// String returns the state name
func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateReady:
		return "ready"
	case StateStreaming:
		return "streaming"
	case StateDisposed:
		return "disposed"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Session owns the loaded models, the tracked-face set and the lifecycle
// state for one tracker instance. All frame processing is serialized: at
// most one ProcessFrame or streaming iteration runs at a time, and Dispose
// waits for an in-flight frame before releasing model resources.
type Session struct {
	// mu serializes lifecycle transitions and frame processing
	mu sync.Mutex

	id       uuid.UUID
	state    State
	cfg      Config
	provider detection.Provider
	lmModel  landmark.Model

	estimator *landmark.Estimator
	tracker   *tracking.Tracker
	stats     *statsCollector

	lastTimestamp time.Time
	frameIndex    uint64

	run *streamRun
}

// Option customizes session construction, mainly to swap inference
// backends in tests.
type Option func(*Session)

// WithDetectionProvider replaces the default auto-selected DNN detection
// backend.
func WithDetectionProvider(p detection.Provider) Option {
	return func(s *Session) { s.provider = p }
}

// WithLandmarkModel replaces the default ONNX landmark model
func WithLandmarkModel(m landmark.Model) Option {
	return func(s *Session) { s.lmModel = m }
}

// NewSession creates an uninitialized session
func NewSession(opts ...Option) *Session {
	s := &Session{
		id:    uuid.New(),
		state: StateUninitialized,
		stats: newStatsCollector(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.provider == nil {
		s.provider = detection.NewManager()
	}
	if s.lmModel == nil {
		s.lmModel = landmark.NewDNNModel()
	}
	return s
}

// ID returns the session's unique identity
func (s *Session) ID() uuid.UUID {
	return s.id
}

// Initialize validates the configuration and loads the models. On success
// the session becomes Ready; on any failure it stays Uninitialized with no
// partial state retained. Valid only from Uninitialized.
func (s *Session) Initialize(cfg Config) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case StateDisposed:
		return ErrDisposed
	case StateReady, StateStreaming:
		return ErrAlreadyInitialized
	}

	// Configuration fails fast, before any model load
	if err := cfg.Validate(); err != nil {
		return err
	}

	if err := s.provider.Initialize(cfg.DetectorModelPath); err != nil {
		return err
	}
	if cfg.EnableLandmarks {
		if err := s.lmModel.Initialize(cfg.LandmarkModelPath); err != nil {
			// No partial state: unload the detector that did come up
			if cerr := s.provider.Close(); cerr != nil {
				debuglog.Msgf("SESSION", "detector close during failed init: %v", cerr)
			}
			return err
		}
		s.estimator = landmark.NewEstimator(s.lmModel)
	}

	s.cfg = cfg
	s.tracker = tracking.NewTracker(cfg.MaxFaces, cfg.StaleEvictAfter)
	s.lastTimestamp = time.Time{}
	s.frameIndex = 0
	s.state = StateReady
	debuglog.Msgf("SESSION", "session %s ready: threshold=%.2f maxFaces=%d landmarks=%t pose=%t gaze=%t",
		s.id, cfg.ConfidenceThreshold, cfg.MaxFaces, cfg.EnableLandmarks, cfg.EnablePose, cfg.EnableGaze)
	return nil
}

// ProcessFrame pushes one frame through the pipeline and returns the
// frame's result. Valid only in Ready; during streaming, frames come from
// the streaming source instead. Input errors reject the frame without
// touching session state; recoverable processing errors come back inside
// the Result next to any partial output.
func (s *Session) ProcessFrame(f frame.Frame) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case StateUninitialized:
		return Result{}, ErrNotInitialized
	case StateDisposed:
		return Result{}, ErrDisposed
	case StateStreaming:
		return Result{}, fmt.Errorf("%w: push frames through the streaming source", ErrStreaming)
	}
	return s.processLocked(f)
}

// processLocked runs the four pipeline stages for one frame. Caller holds
// s.mu and has verified the session is usable.
func (s *Session) processLocked(f frame.Frame) (Result, error) {
	start := time.Now()
	var timings StageTimings
	var procErr error

	stageStart := time.Now()
	img, err := frame.Normalize(f)
	if err != nil {
		return Result{}, err
	}
	timings.Normalize = time.Since(stageStart)

	ts := f.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	dt := ts.Sub(s.lastTimestamp).Seconds()
	if s.lastTimestamp.IsZero() || dt <= 0 {
		dt = 1.0 / float64(s.cfg.TargetFPS)
	}

	stageStart = time.Now()
	var accepted []detection.Detection
	candidates, derr := s.provider.Detect(img)
	timings.Detect = time.Since(stageStart)
	switch {
	case errors.Is(derr, detection.ErrModelNotLoaded):
		return Result{}, derr
	case derr != nil:
		// Recoverable: the frame yields zero detections and keeps flowing,
		// so staleness counters still advance.
		procErr = derr
	default:
		accepted = detection.Suppress(candidates, s.cfg.ConfidenceThreshold, s.cfg.MaxFaces)
	}

	stageStart = time.Now()
	feats := landmark.Features{
		Landmarks: s.cfg.EnableLandmarks,
		Pose:      s.cfg.EnablePose,
		Gaze:      s.cfg.EnableGaze,
	}
	observations := make([]tracking.Observation, 0, len(accepted))
	for _, det := range accepted {
		obs := tracking.Observation{Detection: det}
		if s.estimator != nil && feats.Landmarks {
			lms, pose, gaze, eerr := s.estimator.Estimate(img, det, feats)
			if eerr != nil {
				// Per-detection and non-fatal: the box and confidence still
				// reach the tracker with the downstream fields absent.
				procErr = errors.Join(procErr, eerr)
			} else {
				obs.Landmarks, obs.Pose, obs.Gaze = lms, pose, gaze
			}
		}
		observations = append(observations, obs)
	}
	timings.Estimate = time.Since(stageStart)

	stageStart = time.Now()
	faces := s.tracker.Update(observations, ts, dt)
	timings.Associate = time.Since(stageStart)
	timings.Total = time.Since(start)

	s.lastTimestamp = ts
	index := s.frameIndex
	s.frameIndex++

	var avgConf float64
	for _, face := range faces {
		avgConf += face.Confidence
	}
	if len(faces) > 0 {
		avgConf /= float64(len(faces))
	}
	s.stats.recordFrame(len(faces), avgConf, timings)

	return Result{
		FrameIndex: index,
		Timestamp:  ts,
		Faces:      faces,
		Err:        procErr,
		Timings:    timings,
	}, nil
}

// State returns the current lifecycle state
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Config returns the active configuration snapshot. Zero value before
// Initialize.
func (s *Session) Config() Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

// Stats returns a snapshot of the session's processing statistics
func (s *Session) Stats() Stats {
	return s.stats.snapshot()
}

// Status summarizes the session for monitoring surfaces
type Status struct {
	ID              string  `json:"id"`
	State           string  `json:"state"`
	FramesProcessed uint64  `json:"frames_processed"`
	ActiveFaces     int     `json:"active_faces"`
	AverageFPS      float64 `json:"average_fps"`
}

// Status reports identity, lifecycle state and headline statistics
func (s *Session) Status() Status {
	stats := s.stats.snapshot()
	return Status{
		ID:              s.id.String(),
		State:           s.State().String(),
		FramesProcessed: stats.FramesProcessed,
		ActiveFaces:     stats.ActiveFaces,
		AverageFPS:      stats.AverageFPS,
	}
}

// Dispose releases model resources and clears all tracked faces. If a
// frame is in flight its pipeline finishes first. Cleanup is best effort:
// intermediate failures are logged, never propagated. Idempotent; after
// Dispose only further Dispose calls are valid.
func (s *Session) Dispose() error {
	s.mu.Lock()
	if s.state == StateDisposed {
		s.mu.Unlock()
		return nil
	}
	if s.state == StateStreaming {
		run := s.run
		s.mu.Unlock()
		run.requestStop()
		<-run.done
		s.mu.Lock()
	}

	if err := s.provider.Close(); err != nil {
		debuglog.Msgf("SESSION", "detector close failed: %v", err)
	}
	if s.estimator != nil {
		if err := s.estimator.Close(); err != nil {
			debuglog.Msgf("SESSION", "landmark model close failed: %v", err)
		}
		s.estimator = nil
	}
	if s.tracker != nil {
		s.tracker.Reset()
	}
	s.state = StateDisposed
	s.mu.Unlock()
	debuglog.Msgf("SESSION", "session %s disposed", s.id)
	return nil
}
