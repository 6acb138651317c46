// Package landmark computes per-face 2D landmarks, 3D head pose and eye
// gaze from a detection's cropped region of the normalized image.
package landmark

// Point is a 2D landmark position in pixels
type Point struct {
	X float64
	Y float64
}

// Vector3 is a 3D direction or translation
type Vector3 struct {
	X float64
	Y float64
	Z float64
}

// Count is the fixed number of landmark points. The topology is the
// 68-point iBUG scheme; point indices are positionally meaningful and map
// to facial regions via the ranges below.
const Count = 68

// Region index ranges of the 68-point scheme
const (
	jawStart       = 0
	jawEnd         = 17
	rightBrowStart = 17
	rightBrowEnd   = 22
	leftBrowStart  = 22
	leftBrowEnd    = 27
	noseStart      = 27
	noseEnd        = 36
	rightEyeStart  = 36
	rightEyeEnd    = 42
	leftEyeStart   = 42
	leftEyeEnd     = 48
	mouthStart     = 48
	mouthEnd       = 68
)

// Set is an ordered, fixed-count landmark set in original-image pixel
// coordinates, with one overall confidence.
type Set struct {
	Points     [Count]Point
	Confidence float64
}

// Jaw returns the jaw line points (0-16)
func (s *Set) Jaw() []Point { return s.Points[jawStart:jawEnd] }

// RightBrow returns the right eyebrow points (17-21)
func (s *Set) RightBrow() []Point { return s.Points[rightBrowStart:rightBrowEnd] }

// LeftBrow returns the left eyebrow points (22-26)
func (s *Set) LeftBrow() []Point { return s.Points[leftBrowStart:leftBrowEnd] }

// Nose returns the nose points (27-35)
func (s *Set) Nose() []Point { return s.Points[noseStart:noseEnd] }

// RightEye returns the right eye contour points (36-41)
func (s *Set) RightEye() []Point { return s.Points[rightEyeStart:rightEyeEnd] }

// LeftEye returns the left eye contour points (42-47)
func (s *Set) LeftEye() []Point { return s.Points[leftEyeStart:leftEyeEnd] }

// Mouth returns the mouth points (48-67)
func (s *Set) Mouth() []Point { return s.Points[mouthStart:mouthEnd] }

// centroid of a point slice
func centroid(pts []Point) Point {
	var c Point
	for _, p := range pts {
		c.X += p.X
		c.Y += p.Y
	}
	n := float64(len(pts))
	c.X /= n
	c.Y /= n
	return c
}

// HeadPose is the solved 3D head orientation. Angles are radians in a
// right-handed camera frame with +Z pointing from the camera toward the
// subject: pitch rotates about +X, yaw about +Y, roll about +Z. Translation
// is in units of the 3D reference face model. Confidence reflects residual
// fit error of the landmark solve, not any model score.
type HeadPose struct {
	Pitch       float64
	Yaw         float64
	Roll        float64
	Translation Vector3
	Confidence  float64
}

// EyeGaze is a per-eye and combined gaze direction estimate. Directions are
// unit vectors in the camera frame described on HeadPose.
type EyeGaze struct {
	Left       Vector3
	Right      Vector3
	Combined   Vector3
	Confidence float64
}

// Features selects which optional outputs the estimator computes. A
// disabled feature is skipped entirely, not computed and discarded.
type Features struct {
	Landmarks bool
	Pose      bool
	Gaze      bool
}
