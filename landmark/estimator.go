package landmark

import (
	"fmt"
	"image"

	"facetrack/detection"
	"facetrack/frame"
)

// cropMargin expands the detection box before landmark inference so chin and
// brow points near the box edge stay inside the crop.
const cropMargin = 0.25

// Estimator turns accepted detections into landmarks, head pose and gaze
type Estimator struct {
	model Model
}

// NewEstimator creates an estimator over a loaded landmark model
func NewEstimator(model Model) *Estimator {
	return &Estimator{model: model}
}

// Estimate computes the enabled optional features for one detection.
// Landmark coordinates are returned in the original image space. A nil
// result with a non-nil error is a per-detection failure; the caller keeps
// the detection's box and confidence and moves on.
func (e *Estimator) Estimate(img *frame.NormalizedImage, det detection.Detection, feats Features) (*Set, *HeadPose, *EyeGaze, error) {
	if !feats.Landmarks {
		return nil, nil, nil, nil
	}

	region := expandBox(det.Box, img.Width, img.Height)
	if region.Empty() {
		return nil, nil, nil, fmt.Errorf("%w: empty crop region for box %v", ErrEstimation, det.Box)
	}
	crop := cropImage(img, region)

	points, conf, err := e.model.Predict(crop)
	if err != nil {
		return nil, nil, nil, err
	}

	set := &Set{Confidence: conf}
	for i := range points {
		set.Points[i] = Point{
			X: points[i].X + float64(region.Min.X),
			Y: points[i].Y + float64(region.Min.Y),
		}
	}

	var pose *HeadPose
	if feats.Pose {
		pose = SolvePose(set)
	}
	var gaze *EyeGaze
	if feats.Gaze {
		gaze = EstimateGaze(img, set)
	}
	return set, pose, gaze, nil
}

// Close releases the underlying model
func (e *Estimator) Close() error {
	return e.model.Close()
}

// expandBox grows a detection box by cropMargin on every side and clamps it
// to the image bounds.
func expandBox(box image.Rectangle, width, height int) image.Rectangle {
	mx := int(float64(box.Dx()) * cropMargin)
	my := int(float64(box.Dy()) * cropMargin)
	grown := image.Rect(box.Min.X-mx, box.Min.Y-my, box.Max.X+mx, box.Max.Y+my)
	return grown.Intersect(image.Rect(0, 0, width, height))
}

// cropImage copies a rectangular region into a new NormalizedImage
func cropImage(img *frame.NormalizedImage, region image.Rectangle) *frame.NormalizedImage {
	w, h := region.Dx(), region.Dy()
	pix := make([]byte, w*h*frame.CanonicalBytesPerPixel)
	rowLen := w * frame.CanonicalBytesPerPixel
	for y := 0; y < h; y++ {
		srcOff := ((region.Min.Y+y)*img.Width + region.Min.X) * frame.CanonicalBytesPerPixel
		copy(pix[y*rowLen:(y+1)*rowLen], img.Pix[srcOff:srcOff+rowLen])
	}
	return &frame.NormalizedImage{Width: w, Height: h, Pix: pix, Timestamp: img.Timestamp}
}
