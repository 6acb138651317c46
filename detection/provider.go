package detection

import (
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"time"

	"facetrack/debuglog"
	"facetrack/frame"
)

var (
	// ErrModelNotLoaded means the detection model is missing or was never
	// initialized. Fatal: the owning session is unusable until reinitialized.
	ErrModelNotLoaded = errors.New("detection: model not loaded")
	// ErrInference is a per-frame inference failure. Recoverable: the frame
	// yields zero detections and the session keeps running.
	ErrInference = errors.New("detection: inference failed")
)

// Provider runs the raw face-detection model on a normalized image and
// returns unfiltered candidates. Confidence filtering and NMS happen above
// the provider so every backend behaves identically.
type Provider interface {
	Initialize(modelPath string) error
	Detect(img *frame.NormalizedImage) ([]Detection, error)
	Close() error
	Info() ProviderInfo
}

// ProviderInfo describes the active inference backend
type ProviderInfo struct {
	Backend  string // "CUDA" or "CPU"
	Device   string
	InitTime time.Duration
}

// Manager selects and owns the best available inference backend, trying GPU
// first and falling back to CPU when CUDA is absent or fails a test pass.
type Manager struct {
	provider Provider
	info     ProviderInfo
}

// NewManager creates an empty manager; Initialize picks the backend.
func NewManager() *Manager {
	return &Manager{}
}

// Initialize auto-detects the best available provider for the given model
func (m *Manager) Initialize(modelPath string) error {
	if hasGPUCapability() {
		debuglog.Msg("PROVIDER", "GPU capability detected, attempting CUDA initialization")
		gpu := newDNNProvider(cudaBackend())

		start := time.Now()
		if err := gpu.Initialize(modelPath); err == nil {
			if testProvider(gpu) {
				m.provider = gpu
				m.info = gpu.Info()
				m.info.InitTime = time.Since(start)
				debuglog.Msg("PROVIDER", fmt.Sprintf("CUDA provider initialized (%v)", m.info.InitTime))
				return nil
			}
			debuglog.Msg("PROVIDER", "CUDA test inference failed, falling back to CPU")
			gpu.Close()
		} else {
			debuglog.Msg("PROVIDER", fmt.Sprintf("CUDA initialization failed: %v, falling back to CPU", err))
		}
	}

	cpu := newDNNProvider(cpuBackend())
	start := time.Now()
	if err := cpu.Initialize(modelPath); err != nil {
		return err
	}
	m.provider = cpu
	m.info = cpu.Info()
	m.info.InitTime = time.Since(start)
	debuglog.Msg("PROVIDER", fmt.Sprintf("CPU provider initialized (%v)", m.info.InitTime))
	return nil
}

// Detect forwards to the active provider
func (m *Manager) Detect(img *frame.NormalizedImage) ([]Detection, error) {
	if m.provider == nil {
		return nil, ErrModelNotLoaded
	}
	return m.provider.Detect(img)
}

// Info returns information about the active provider
func (m *Manager) Info() ProviderInfo {
	return m.info
}

// Close releases the active provider
func (m *Manager) Close() error {
	if m.provider == nil {
		return nil
	}
	err := m.provider.Close()
	m.provider = nil
	return err
}

// hasGPUCapability checks whether CUDA inference is worth attempting
func hasGPUCapability() bool {
	if err := exec.Command("nvidia-smi", "--query-gpu=name", "--format=csv,noheader").Run(); err != nil {
		return false
	}
	matches, _ := filepath.Glob("/dev/nvidia*")
	return len(matches) > 0
}

// testProvider runs one inference over a small blank image to verify the
// backend actually works before committing to it.
func testProvider(p Provider) bool {
	img := &frame.NormalizedImage{
		Width:  320,
		Height: 320,
		Pix:    make([]byte, 320*320*frame.CanonicalBytesPerPixel),
	}
	_, err := p.Detect(img)
	return err == nil
}
