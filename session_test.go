package facetrack

import (
	"errors"
	"image"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"facetrack/detection"
	"facetrack/frame"
	"facetrack/landmark"
)

// stubProvider is a scripted detection backend. Each Detect call pops the
// next queued detection slice; an exhausted script returns no detections.
type stubProvider struct {
	script  [][]detection.Detection
	call    int
	initErr error
	detErr  error
	closed  bool
}

func (p *stubProvider) Initialize(modelPath string) error { return p.initErr }

func (p *stubProvider) Detect(img *frame.NormalizedImage) ([]detection.Detection, error) {
	if p.detErr != nil {
		return nil, p.detErr
	}
	if p.call >= len(p.script) {
		return nil, nil
	}
	dets := p.script[p.call]
	p.call++
	return dets, nil
}

func (p *stubProvider) Close() error {
	p.closed = true
	return nil
}

func (p *stubProvider) Info() detection.ProviderInfo {
	return detection.ProviderInfo{Backend: "stub"}
}

// stubLandmarks returns the same spread-out point set for every crop
type stubLandmarks struct {
	initErr error
	predErr error
	closed  bool
}

func (m *stubLandmarks) Initialize(modelPath string) error { return m.initErr }

func (m *stubLandmarks) Predict(crop *frame.NormalizedImage) ([landmark.Count]landmark.Point, float64, error) {
	var pts [landmark.Count]landmark.Point
	if m.predErr != nil {
		return pts, 0, m.predErr
	}
	for i := range pts {
		pts[i] = landmark.Point{X: float64(5 + i), Y: float64(5 + (i*3)%50)}
	}
	return pts, 0.9, nil
}

func (m *stubLandmarks) Close() error {
	m.closed = true
	return nil
}

func newTestSession(provider *stubProvider) *Session {
	return NewSession(
		WithDetectionProvider(provider),
		WithLandmarkModel(&stubLandmarks{}),
	)
}

func testFrame(w, h int) frame.Frame {
	return frame.Frame{
		Width:     w,
		Height:    h,
		Format:    frame.FormatRGB24,
		Data:      make([]byte, w*h*3),
		Timestamp: time.Now(),
	}
}

func det(x, y, w, h int, conf float64) detection.Detection {
	return detection.Detection{Box: image.Rect(x, y, x+w, y+h), Confidence: conf}
}

func TestSessionLifecycle(t *testing.T) {
	s := newTestSession(&stubProvider{})
	assert.Equal(t, StateUninitialized, s.State())

	require.NoError(t, s.Initialize(validConfig()))
	assert.Equal(t, StateReady, s.State())

	require.NoError(t, s.Dispose())
	assert.Equal(t, StateDisposed, s.State())
}

func TestSessionProcessBeforeInitialize(t *testing.T) {
	s := newTestSession(&stubProvider{})
	_, err := s.ProcessFrame(testFrame(64, 64))
	assert.ErrorIs(t, err, ErrNotInitialized)
	assert.Equal(t, KindState, Classify(err))
}

func TestSessionInitializeTwice(t *testing.T) {
	s := newTestSession(&stubProvider{})
	require.NoError(t, s.Initialize(validConfig()))
	assert.ErrorIs(t, s.Initialize(validConfig()), ErrAlreadyInitialized)
}

func TestSessionInitializeInvalidConfigFailsFast(t *testing.T) {
	provider := &stubProvider{}
	s := newTestSession(provider)

	cfg := validConfig()
	cfg.MaxFaces = 0
	err := s.Initialize(cfg)
	assert.ErrorIs(t, err, ErrInvalidConfig)
	assert.Equal(t, StateUninitialized, s.State())

	// A valid retry on the same session succeeds
	require.NoError(t, s.Initialize(validConfig()))
}

func TestSessionInitializeLandmarkFailureUnloadsDetector(t *testing.T) {
	provider := &stubProvider{}
	s := NewSession(
		WithDetectionProvider(provider),
		WithLandmarkModel(&stubLandmarks{initErr: landmark.ErrModelNotLoaded}),
	)

	err := s.Initialize(validConfig())
	assert.ErrorIs(t, err, landmark.ErrModelNotLoaded)
	assert.Equal(t, KindResource, Classify(err))
	assert.Equal(t, StateUninitialized, s.State())
	assert.True(t, provider.closed)
}

func TestSessionDisposedIsTerminal(t *testing.T) {
	s := newTestSession(&stubProvider{})
	require.NoError(t, s.Initialize(validConfig()))
	require.NoError(t, s.Dispose())

	assert.ErrorIs(t, s.Initialize(validConfig()), ErrDisposed)
	_, err := s.ProcessFrame(testFrame(64, 64))
	assert.ErrorIs(t, err, ErrDisposed)
	_, err = s.StartStreaming(make(chan frame.Frame))
	assert.ErrorIs(t, err, ErrDisposed)
	assert.ErrorIs(t, s.StopTracking(), ErrDisposed)

	// Dispose stays an idempotent no-op
	assert.NoError(t, s.Dispose())
}

func TestSessionDisposeReleasesBackends(t *testing.T) {
	provider := &stubProvider{}
	model := &stubLandmarks{}
	s := NewSession(WithDetectionProvider(provider), WithLandmarkModel(model))
	require.NoError(t, s.Initialize(validConfig()))
	require.NoError(t, s.Dispose())
	assert.True(t, provider.closed)
	assert.True(t, model.closed)
}

func TestProcessFrameTracksFace(t *testing.T) {
	provider := &stubProvider{script: [][]detection.Detection{
		{det(100, 100, 80, 80, 0.95)},
		{det(104, 101, 80, 80, 0.93)},
	}}
	s := newTestSession(provider)
	require.NoError(t, s.Initialize(validConfig()))

	res, err := s.ProcessFrame(testFrame(320, 240))
	require.NoError(t, err)
	assert.Equal(t, uint64(0), res.FrameIndex)
	require.Len(t, res.Faces, 1)
	assert.Equal(t, uint64(1), res.Faces[0].ID)
	assert.NotNil(t, res.Faces[0].Landmarks)
	assert.NotNil(t, res.Faces[0].Pose)
	assert.Nil(t, res.Faces[0].Gaze)

	res, err = s.ProcessFrame(testFrame(320, 240))
	require.NoError(t, err)
	assert.Equal(t, uint64(1), res.FrameIndex)
	require.Len(t, res.Faces, 1)
	assert.Equal(t, uint64(1), res.Faces[0].ID)
	assert.Equal(t, 2, res.Faces[0].MatchedFrames)
}

func TestProcessFrameAppliesThreshold(t *testing.T) {
	provider := &stubProvider{script: [][]detection.Detection{
		{det(0, 0, 50, 50, 0.79), det(200, 0, 50, 50, 0.81)},
	}}
	s := newTestSession(provider)
	require.NoError(t, s.Initialize(validConfig()))

	res, err := s.ProcessFrame(testFrame(320, 240))
	require.NoError(t, err)
	require.Len(t, res.Faces, 1)
	assert.Equal(t, 0.81, res.Faces[0].Confidence)
}

func TestProcessFrameEvictionAfterStaleness(t *testing.T) {
	cfg := validConfig()
	cfg.MaxFaces = 1
	cfg.StaleEvictAfter = 3

	provider := &stubProvider{script: [][]detection.Detection{
		{det(100, 100, 80, 80, 0.95)},
		nil, nil, nil,
		{det(100, 100, 80, 80, 0.95)},
	}}
	s := newTestSession(provider)
	require.NoError(t, s.Initialize(cfg))

	res, err := s.ProcessFrame(testFrame(320, 240))
	require.NoError(t, err)
	require.Len(t, res.Faces, 1)
	assert.Equal(t, uint64(1), res.Faces[0].ID)

	// Blank frames report zero faces while the track ages toward eviction
	for i := 1; i <= cfg.StaleEvictAfter; i++ {
		res, err = s.ProcessFrame(testFrame(320, 240))
		require.NoError(t, err)
		assert.Empty(t, res.Faces, "blank frame %d", i)
	}

	// The staleness threshold passed, so the returning detection is a new
	// identity rather than a revival of the evicted one.
	res, err = s.ProcessFrame(testFrame(320, 240))
	require.NoError(t, err)
	require.Len(t, res.Faces, 1)
	assert.Equal(t, uint64(2), res.Faces[0].ID)
}

func TestProcessFrameBriefOcclusionKeepsIdentity(t *testing.T) {
	provider := &stubProvider{script: [][]detection.Detection{
		{det(100, 100, 80, 80, 0.95)},
		nil,
		{det(103, 101, 80, 80, 0.94)},
	}}
	s := newTestSession(provider)
	require.NoError(t, s.Initialize(validConfig()))

	res, err := s.ProcessFrame(testFrame(320, 240))
	require.NoError(t, err)
	require.Len(t, res.Faces, 1)

	// The occluded frame yields no faces at all
	res, err = s.ProcessFrame(testFrame(320, 240))
	require.NoError(t, err)
	assert.Empty(t, res.Faces)

	// The face returns under its original identity once re-detected
	res, err = s.ProcessFrame(testFrame(320, 240))
	require.NoError(t, err)
	require.Len(t, res.Faces, 1)
	assert.Equal(t, uint64(1), res.Faces[0].ID)
	assert.Equal(t, 2, res.Faces[0].MatchedFrames)
	assert.Equal(t, 0, res.Faces[0].MissedFrames)
}

func TestProcessFrameDisabledFeaturesStayAbsent(t *testing.T) {
	cfg := validConfig()
	cfg.EnableLandmarks = false
	cfg.EnablePose = false
	cfg.LandmarkModelPath = ""

	provider := &stubProvider{script: [][]detection.Detection{
		{det(100, 100, 80, 80, 0.95)},
		{det(100, 100, 80, 80, 0.95)},
		{det(100, 100, 80, 80, 0.95)},
	}}
	s := newTestSession(provider)
	require.NoError(t, s.Initialize(cfg))

	for i := 0; i < 3; i++ {
		res, err := s.ProcessFrame(testFrame(320, 240))
		require.NoError(t, err)
		require.Len(t, res.Faces, 1)
		assert.Nil(t, res.Faces[0].Landmarks)
		assert.Nil(t, res.Faces[0].Pose)
		assert.Nil(t, res.Faces[0].Gaze)
	}
}

func TestProcessFrameInputErrorLeavesStateAlone(t *testing.T) {
	provider := &stubProvider{script: [][]detection.Detection{
		{det(100, 100, 80, 80, 0.95)},
	}}
	s := newTestSession(provider)
	require.NoError(t, s.Initialize(validConfig()))

	bad := testFrame(320, 240)
	bad.Data = bad.Data[:10]
	_, err := s.ProcessFrame(bad)
	require.Error(t, err)
	assert.Equal(t, KindInput, Classify(err))
	assert.Equal(t, StateReady, s.State())
	assert.Zero(t, s.Stats().FramesProcessed)

	// The next well-formed frame is frame 0 and still finds the detection
	res, err := s.ProcessFrame(testFrame(320, 240))
	require.NoError(t, err)
	assert.Equal(t, uint64(0), res.FrameIndex)
	assert.Len(t, res.Faces, 1)
}

func TestProcessFrameModelNotLoadedIsFatal(t *testing.T) {
	provider := &stubProvider{}
	s := newTestSession(provider)
	require.NoError(t, s.Initialize(validConfig()))

	provider.detErr = detection.ErrModelNotLoaded
	_, err := s.ProcessFrame(testFrame(64, 64))
	assert.ErrorIs(t, err, detection.ErrModelNotLoaded)
	assert.Equal(t, KindResource, Classify(err))
}

func TestProcessFrameInferenceErrorIsRecoverable(t *testing.T) {
	provider := &stubProvider{script: [][]detection.Detection{
		{det(100, 100, 80, 80, 0.95)},
		{det(102, 100, 80, 80, 0.95)},
	}}
	s := newTestSession(provider)
	cfg := validConfig()
	cfg.StaleEvictAfter = 2
	require.NoError(t, s.Initialize(cfg))

	res, err := s.ProcessFrame(testFrame(320, 240))
	require.NoError(t, err)
	require.Len(t, res.Faces, 1)

	// A failing inference behaves like a blank frame: no faces reported,
	// the error rides inside the result and the session keeps running.
	provider.detErr = errors.Join(detection.ErrInference, errors.New("backend glitch"))
	res, err = s.ProcessFrame(testFrame(320, 240))
	require.NoError(t, err)
	require.Error(t, res.Err)
	assert.Equal(t, KindProcessing, Classify(res.Err))
	assert.Empty(t, res.Faces)

	// The track survived the bad frame and re-associates once inference
	// recovers.
	provider.detErr = nil
	res, err = s.ProcessFrame(testFrame(320, 240))
	require.NoError(t, err)
	require.Len(t, res.Faces, 1)
	assert.Equal(t, uint64(1), res.Faces[0].ID)
}

func TestProcessFrameEstimationFailureKeepsBox(t *testing.T) {
	provider := &stubProvider{script: [][]detection.Detection{
		{det(100, 100, 80, 80, 0.95)},
	}}
	s := NewSession(
		WithDetectionProvider(provider),
		WithLandmarkModel(&stubLandmarks{predErr: landmark.ErrEstimation}),
	)
	require.NoError(t, s.Initialize(validConfig()))

	res, err := s.ProcessFrame(testFrame(320, 240))
	require.NoError(t, err)
	require.Error(t, res.Err)
	assert.ErrorIs(t, res.Err, landmark.ErrEstimation)

	// The box and confidence survive without the downstream features
	require.Len(t, res.Faces, 1)
	assert.Equal(t, 0.95, res.Faces[0].Confidence)
	assert.Nil(t, res.Faces[0].Landmarks)
	assert.Nil(t, res.Faces[0].Pose)
}

func TestSessionStats(t *testing.T) {
	provider := &stubProvider{script: [][]detection.Detection{
		{det(100, 100, 80, 80, 0.9)},
		{det(100, 100, 80, 80, 0.9)},
	}}
	s := newTestSession(provider)
	require.NoError(t, s.Initialize(validConfig()))

	_, err := s.ProcessFrame(testFrame(320, 240))
	require.NoError(t, err)
	_, err = s.ProcessFrame(testFrame(320, 240))
	require.NoError(t, err)

	stats := s.Stats()
	assert.Equal(t, uint64(2), stats.FramesProcessed)
	assert.Equal(t, uint64(2), stats.FacesDetected)
	assert.Equal(t, 1, stats.ActiveFaces)
	assert.InDelta(t, 0.9, stats.AverageConfidence, 1e-9)
	assert.Greater(t, stats.AvgTotal, time.Duration(0))
}

func TestSessionStatus(t *testing.T) {
	s := newTestSession(&stubProvider{})
	require.NoError(t, s.Initialize(validConfig()))

	st := s.Status()
	assert.Equal(t, s.ID().String(), st.ID)
	assert.Equal(t, "ready", st.State)
	assert.Zero(t, st.FramesProcessed)
}
