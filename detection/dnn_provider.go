package detection

import (
	"fmt"
	"image"
	"os"
	"sync"

	"gocv.io/x/gocv"

	"facetrack/frame"
)

// yuNetColumns is the width of one FaceDetectorYN output row:
// box x, y, w, h; five landmark x,y pairs; face score.
const yuNetColumns = 15

// backendParams selects the DNN compute backend for a provider instance
type backendParams struct {
	name    string
	backend gocv.NetBackendType
	target  gocv.NetTargetType
}

func cudaBackend() backendParams {
	return backendParams{name: "CUDA", backend: gocv.NetBackendCUDA, target: gocv.NetTargetCUDA}
}

func cpuBackend() backendParams {
	return backendParams{name: "CPU", backend: gocv.NetBackendDefault, target: gocv.NetTargetCPU}
}

// dnnProvider implements Provider with OpenCV's FaceDetectorYN (YuNet ONNX).
// The provider reports every candidate the network scores above a floor of
// 0.1; real confidence filtering and NMS happen in Suppress so thresholds
// stay configuration-driven rather than baked into the loaded model.
type dnnProvider struct {
	params   backendParams
	detector gocv.FaceDetectorYN
	loaded   bool
	mu       sync.Mutex // serializes inference; net state is not reentrant
}

func newDNNProvider(params backendParams) *dnnProvider {
	return &dnnProvider{params: params}
}

// Initialize loads the ONNX model and configures the backend
func (p *dnnProvider) Initialize(modelPath string) error {
	if _, err := os.Stat(modelPath); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrModelNotLoaded, modelPath, err)
	}

	p.detector = gocv.NewFaceDetectorYNWithParams(
		modelPath,
		"", // ONNX needs no separate config file
		image.Pt(320, 320),
		0.1,  // score floor; engine-level threshold applied later
		0.45, // in-network NMS, same overlap policy as Suppress
		5000,
		int(p.params.backend),
		int(p.params.target),
	)
	p.loaded = true
	return nil
}

// Detect runs one inference pass and returns raw pixel-space candidates
// ordered as the network emitted them.
func (p *dnnProvider) Detect(img *frame.NormalizedImage) ([]Detection, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.loaded {
		return nil, ErrModelNotLoaded
	}

	mat, err := matFromNormalized(img)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInference, err)
	}
	defer mat.Close()

	p.detector.SetInputSize(image.Pt(img.Width, img.Height))

	faces := gocv.NewMat()
	defer faces.Close()
	p.detector.Detect(mat, &faces)

	if !faces.Empty() && faces.Cols() < yuNetColumns {
		return nil, fmt.Errorf("%w: unexpected output shape %dx%d", ErrInference, faces.Rows(), faces.Cols())
	}

	var detections []Detection
	for r := 0; r < faces.Rows(); r++ {
		x := int(faces.GetFloatAt(r, 0))
		y := int(faces.GetFloatAt(r, 1))
		w := int(faces.GetFloatAt(r, 2))
		h := int(faces.GetFloatAt(r, 3))
		score := float64(faces.GetFloatAt(r, 14))

		detections = append(detections, Detection{
			Box:        image.Rect(x, y, x+w, y+h),
			Confidence: score,
		})
	}
	return detections, nil
}

// Close releases the detector resources
func (p *dnnProvider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.loaded {
		p.detector.Close()
		p.loaded = false
	}
	return nil
}

// Info returns information about this backend
func (p *dnnProvider) Info() ProviderInfo {
	return ProviderInfo{Backend: p.params.name, Device: p.params.name}
}

// matFromNormalized wraps canonical RGB pixels into the BGR Mat OpenCV wants
func matFromNormalized(img *frame.NormalizedImage) (gocv.Mat, error) {
	rgb, err := gocv.NewMatFromBytes(img.Height, img.Width, gocv.MatTypeCV8UC3, img.Pix)
	if err != nil {
		return gocv.Mat{}, err
	}
	defer rgb.Close()

	bgr := gocv.NewMat()
	gocv.CvtColor(rgb, &bgr, gocv.ColorRGBToBGR)
	return bgr, nil
}
