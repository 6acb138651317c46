package landmark

import (
	"errors"
	"fmt"
	"image"
	"os"
	"sync"

	"gocv.io/x/gocv"

	"facetrack/frame"
)

var (
	// ErrModelNotLoaded means the landmark model is missing or was never
	// initialized. Fatal to session initialization.
	ErrModelNotLoaded = errors.New("landmark: model not loaded")
	// ErrEstimation is a per-detection estimation failure. Recoverable: the
	// detection still reaches the tracker with its box and confidence.
	ErrEstimation = errors.New("landmark: estimation failed")
)

// modelInputSize is the square crop resolution the landmark network expects
const modelInputSize = 112

// Model runs landmark inference on a face crop. Points come back in crop
// coordinates; the estimator maps them into the original image space.
type Model interface {
	Initialize(modelPath string) error
	Predict(crop *frame.NormalizedImage) ([Count]Point, float64, error)
	Close() error
}

// dnnModel implements Model with an ONNX 68-point regressor loaded through
// OpenCV. The network takes a 112x112 RGB crop and emits 136 coordinates
// normalized to [0, 1] in crop space.
type dnnModel struct {
	net    gocv.Net
	loaded bool
	mu     sync.Mutex
}

// NewDNNModel returns an uninitialized ONNX landmark model
func NewDNNModel() Model {
	return &dnnModel{}
}

// Initialize loads the ONNX network on the CPU backend
func (m *dnnModel) Initialize(modelPath string) error {
	if _, err := os.Stat(modelPath); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrModelNotLoaded, modelPath, err)
	}

	m.net = gocv.ReadNetFromONNX(modelPath)
	if m.net.Empty() {
		return fmt.Errorf("%w: failed to read network from %s", ErrModelNotLoaded, modelPath)
	}
	m.net.SetPreferableBackend(gocv.NetBackendDefault)
	m.net.SetPreferableTarget(gocv.NetTargetCPU)
	m.loaded = true
	return nil
}

// Predict runs one landmark inference pass over a crop
func (m *dnnModel) Predict(crop *frame.NormalizedImage) ([Count]Point, float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var points [Count]Point
	if !m.loaded {
		return points, 0, ErrModelNotLoaded
	}

	rgb, err := gocv.NewMatFromBytes(crop.Height, crop.Width, gocv.MatTypeCV8UC3, crop.Pix)
	if err != nil {
		return points, 0, fmt.Errorf("%w: %v", ErrEstimation, err)
	}
	defer rgb.Close()

	blob := gocv.BlobFromImage(rgb, 1.0/255.0, image.Pt(modelInputSize, modelInputSize),
		gocv.NewScalar(0, 0, 0, 0), false, false)
	defer blob.Close()

	m.net.SetInput(blob, "")
	output := m.net.Forward("")
	defer output.Close()

	flat := output.Reshape(1, 1)
	defer flat.Close()
	if flat.Cols() < Count*2 {
		return points, 0, fmt.Errorf("%w: unexpected output size %d", ErrEstimation, flat.Cols())
	}

	for i := 0; i < Count; i++ {
		points[i] = Point{
			X: float64(flat.GetFloatAt(0, i*2)) * float64(crop.Width),
			Y: float64(flat.GetFloatAt(0, i*2+1)) * float64(crop.Height),
		}
	}

	// The regressor has no per-point score output; confidence comes from how
	// tightly the predicted shape stays inside the crop.
	conf := 1.0
	for i := 0; i < Count; i++ {
		if points[i].X < 0 || points[i].Y < 0 ||
			points[i].X > float64(crop.Width) || points[i].Y > float64(crop.Height) {
			conf -= 1.0 / Count
		}
	}
	return points, conf, nil
}

// Close releases the network
func (m *dnnModel) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.loaded {
		m.net.Close()
		m.loaded = false
	}
	return nil
}
