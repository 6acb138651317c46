package landmark

import (
	"errors"
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"facetrack/detection"
	"facetrack/frame"
)

// stubModel returns fixed crop-relative points and records the crop it saw
type stubModel struct {
	points   [Count]Point
	conf     float64
	err      error
	lastCrop *frame.NormalizedImage
	closed   bool
}

func (m *stubModel) Initialize(modelPath string) error { return nil }

func (m *stubModel) Predict(crop *frame.NormalizedImage) ([Count]Point, float64, error) {
	m.lastCrop = crop
	return m.points, m.conf, m.err
}

func (m *stubModel) Close() error {
	m.closed = true
	return nil
}

func TestEstimateMapsPointsToImageSpace(t *testing.T) {
	model := &stubModel{conf: 0.9}
	model.points[0] = Point{X: 5, Y: 7}
	est := NewEstimator(model)

	img := whiteImage(200, 200)
	det := detection.Detection{Box: image.Rect(80, 80, 120, 120), Confidence: 0.9}

	set, pose, gaze, err := est.Estimate(img, det, Features{Landmarks: true})
	require.NoError(t, err)
	require.NotNil(t, set)
	assert.Nil(t, pose)
	assert.Nil(t, gaze)
	assert.Equal(t, 0.9, set.Confidence)

	// The 40px box grows by 25 percent per side, so the crop starts at 70
	// and the crop-relative point maps back by that offset.
	assert.Equal(t, Point{X: 75, Y: 77}, set.Points[0])
	require.NotNil(t, model.lastCrop)
	assert.Equal(t, 60, model.lastCrop.Width)
	assert.Equal(t, 60, model.lastCrop.Height)
}

func TestEstimateDisabledLandmarksSkipsEverything(t *testing.T) {
	model := &stubModel{conf: 0.9}
	est := NewEstimator(model)
	img := whiteImage(100, 100)
	det := detection.Detection{Box: image.Rect(10, 10, 50, 50)}

	set, pose, gaze, err := est.Estimate(img, det, Features{})
	require.NoError(t, err)
	assert.Nil(t, set)
	assert.Nil(t, pose)
	assert.Nil(t, gaze)
	assert.Nil(t, model.lastCrop)
}

func TestEstimateComputesPoseAndGazeWhenEnabled(t *testing.T) {
	model := &stubModel{conf: 0.9}
	// Spread the points enough that pose and gaze have geometry to work with
	for i := 0; i < Count; i++ {
		model.points[i] = Point{X: float64(10 + i), Y: float64(10 + (i*7)%40)}
	}
	est := NewEstimator(model)
	img := whiteImage(200, 200)
	det := detection.Detection{Box: image.Rect(50, 50, 150, 150)}

	set, pose, gaze, err := est.Estimate(img, det, Features{Landmarks: true, Pose: true, Gaze: true})
	require.NoError(t, err)
	require.NotNil(t, set)
	assert.NotNil(t, pose)
	assert.NotNil(t, gaze)
}

func TestEstimatePropagatesModelError(t *testing.T) {
	model := &stubModel{err: ErrEstimation}
	est := NewEstimator(model)
	img := whiteImage(100, 100)
	det := detection.Detection{Box: image.Rect(10, 10, 50, 50)}

	set, _, _, err := est.Estimate(img, det, Features{Landmarks: true})
	assert.Nil(t, set)
	assert.ErrorIs(t, err, ErrEstimation)
}

func TestEstimateEmptyCropRegion(t *testing.T) {
	model := &stubModel{}
	est := NewEstimator(model)
	img := whiteImage(100, 100)
	// Box entirely outside the image clamps to an empty region
	det := detection.Detection{Box: image.Rect(200, 200, 250, 250)}

	_, _, _, err := est.Estimate(img, det, Features{Landmarks: true})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrEstimation))
}

func TestEstimatorCloseReleasesModel(t *testing.T) {
	model := &stubModel{}
	est := NewEstimator(model)
	require.NoError(t, est.Close())
	assert.True(t, model.closed)
}

func TestRegionAccessors(t *testing.T) {
	set := &Set{}
	for i := range set.Points {
		set.Points[i] = Point{X: float64(i)}
	}
	assert.Len(t, set.Jaw(), 17)
	assert.Len(t, set.RightBrow(), 5)
	assert.Len(t, set.LeftBrow(), 5)
	assert.Len(t, set.Nose(), 9)
	assert.Len(t, set.RightEye(), 6)
	assert.Len(t, set.LeftEye(), 6)
	assert.Len(t, set.Mouth(), 20)

	assert.Equal(t, 0.0, set.Jaw()[0].X)
	assert.Equal(t, 36.0, set.RightEye()[0].X)
	assert.Equal(t, 42.0, set.LeftEye()[0].X)
	assert.Equal(t, 48.0, set.Mouth()[0].X)
}
