package facetrack

import "fmt"

// maxTargetFPS bounds the configurable capture rate. No camera in scope
// delivers more, so higher values are a configuration mistake rather than
// an aspiration.
const maxTargetFPS = 240

// Config is an immutable configuration snapshot for one session. It is
// validated at Initialize; invalid values fail fast before any model load
// and are never silently clamped. Changing configuration requires disposing
// and re-initializing.
type Config struct {
	// DetectorModelPath is the face-detection ONNX model file
	DetectorModelPath string `json:"detector_model_path"`
	// LandmarkModelPath is the 68-point landmark ONNX model file, required
	// when landmarks are enabled.
	LandmarkModelPath string `json:"landmark_model_path"`

	// ConfidenceThreshold drops detections scoring below it, in [0, 1]
	ConfidenceThreshold float64 `json:"confidence_threshold"`
	// MaxFaces caps concurrently tracked identities, > 0
	MaxFaces int `json:"max_faces"`

	EnableLandmarks bool `json:"enable_landmarks"`
	EnablePose      bool `json:"enable_pose"`
	EnableGaze      bool `json:"enable_gaze"`

	// TargetFPS is the nominal capture rate. It seeds the frame-to-frame
	// time step for motion prediction when frame timestamps are missing or
	// non-monotonic; the pipeline itself processes frames as fast as the
	// source delivers them.
	TargetFPS int `json:"target_fps"`

	// StaleEvictAfter is the number of consecutive unmatched frames before
	// a tracked face is evicted.
	StaleEvictAfter int `json:"stale_evict_after"`
	// ResultBuffer is the streaming result channel capacity; when the
	// consumer lags, the oldest unread result is dropped.
	ResultBuffer int `json:"result_buffer"`
}

// DefaultConfig returns the stock configuration: landmarks and pose on,
// gaze off, 0.8 threshold, four faces, 30 FPS.
func DefaultConfig() Config {
	return Config{
		ConfidenceThreshold: 0.8,
		MaxFaces:            4,
		EnableLandmarks:     true,
		EnablePose:          true,
		EnableGaze:          false,
		TargetFPS:           30,
		StaleEvictAfter:     5,
		ResultBuffer:        8,
	}
}

// Validate rejects invalid configuration. All violations are KindConfig.
func (c Config) Validate() error {
	if c.ConfidenceThreshold < 0 || c.ConfidenceThreshold > 1 {
		return fmt.Errorf("%w: confidence threshold %.3f outside [0, 1]", ErrInvalidConfig, c.ConfidenceThreshold)
	}
	if c.MaxFaces <= 0 {
		return fmt.Errorf("%w: max faces must be positive, got %d", ErrInvalidConfig, c.MaxFaces)
	}
	if c.TargetFPS <= 0 || c.TargetFPS > maxTargetFPS {
		return fmt.Errorf("%w: target FPS %d outside [1, %d]", ErrInvalidConfig, c.TargetFPS, maxTargetFPS)
	}
	if c.StaleEvictAfter <= 0 {
		return fmt.Errorf("%w: stale eviction threshold must be positive, got %d", ErrInvalidConfig, c.StaleEvictAfter)
	}
	if c.ResultBuffer <= 0 {
		return fmt.Errorf("%w: result buffer must be positive, got %d", ErrInvalidConfig, c.ResultBuffer)
	}
	if c.DetectorModelPath == "" {
		return fmt.Errorf("%w: detector model path is required", ErrInvalidConfig)
	}
	if c.EnableLandmarks && c.LandmarkModelPath == "" {
		return fmt.Errorf("%w: landmark model path is required when landmarks are enabled", ErrInvalidConfig)
	}
	if c.EnablePose && !c.EnableLandmarks {
		return fmt.Errorf("%w: pose estimation requires landmarks", ErrInvalidConfig)
	}
	if c.EnableGaze && !c.EnableLandmarks {
		return fmt.Errorf("%w: gaze estimation requires landmarks", ErrInvalidConfig)
	}
	return nil
}
