package landmark

import (
	"image"
	"math"

	"facetrack/frame"
)

// Gaze is estimated per eye from the eye-contour landmarks plus the pixels
// of the eye crop: the pupil is located as the centroid of the darkest
// pixels inside the eye region, and its offset from the eye center maps to
// a direction vector. An eye whose aspect ratio says it is closed falls
// back to the other eye; with both closed the combined direction is
// straight ahead at zero confidence.

const (
	// closedEyeRatio is the eye aspect ratio below which an eye is treated
	// as closed and excluded from the combined direction.
	closedEyeRatio = 0.15
	// gazeGain converts a normalized pupil offset into direction components
	gazeGain = 1.5
	// pupilDarkness is the fraction of mean eye luminance below which a
	// pixel counts as pupil.
	pupilDarkness = 0.65
)

// EstimateGaze computes per-eye and combined gaze directions
func EstimateGaze(img *frame.NormalizedImage, set *Set) *EyeGaze {
	left, leftOK := eyeDirection(img, set.LeftEye())
	right, rightOK := eyeDirection(img, set.RightEye())

	gaze := &EyeGaze{Left: left, Right: right}
	switch {
	case leftOK && rightOK:
		gaze.Combined = normalize(Vector3{
			X: (left.X + right.X) / 2,
			Y: (left.Y + right.Y) / 2,
			Z: (left.Z + right.Z) / 2,
		})
		gaze.Confidence = 1.0
	case leftOK:
		gaze.Combined = left
		gaze.Confidence = 0.5
	case rightOK:
		gaze.Combined = right
		gaze.Confidence = 0.5
	default:
		gaze.Combined = Vector3{Z: 1}
		gaze.Confidence = 0
	}
	return gaze
}

// eyeDirection estimates one eye's gaze direction. ok is false when the eye
// appears closed or no pupil pixels were found.
func eyeDirection(img *frame.NormalizedImage, eye []Point) (Vector3, bool) {
	if aspectRatio(eye) < closedEyeRatio {
		return Vector3{Z: 1}, false
	}

	region := eyeBounds(eye, img.Width, img.Height)
	if region.Empty() {
		return Vector3{Z: 1}, false
	}

	px, py, found := pupilCentroid(img, region)
	if !found {
		return Vector3{Z: 1}, false
	}

	center := centroid(eye)
	w := float64(region.Dx())
	h := float64(region.Dy())
	offX := (px - center.X) / (w / 2)
	offY := (py - center.Y) / (h / 2)

	return normalize(Vector3{X: offX * gazeGain, Y: offY * gazeGain, Z: 1}), true
}

// aspectRatio is the eye-openness measure over the 6-point eye contour:
// mean vertical lid distance over horizontal corner distance.
func aspectRatio(eye []Point) float64 {
	horizontal := dist(eye[0], eye[3])
	if horizontal <= 0 {
		return 0
	}
	vertical := dist(eye[1], eye[5]) + dist(eye[2], eye[4])
	return vertical / (2 * horizontal)
}

// eyeBounds is the clamped pixel bounding box of the eye contour
func eyeBounds(eye []Point, width, height int) image.Rectangle {
	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	for _, p := range eye {
		minX = math.Min(minX, p.X)
		minY = math.Min(minY, p.Y)
		maxX = math.Max(maxX, p.X)
		maxY = math.Max(maxY, p.Y)
	}
	r := image.Rect(int(minX), int(minY), int(math.Ceil(maxX)), int(math.Ceil(maxY)))
	return r.Intersect(image.Rect(0, 0, width, height))
}

// pupilCentroid finds the centroid of the darkest pixels inside the region
func pupilCentroid(img *frame.NormalizedImage, region image.Rectangle) (float64, float64, bool) {
	var meanLum float64
	count := 0
	for y := region.Min.Y; y < region.Max.Y; y++ {
		for x := region.Min.X; x < region.Max.X; x++ {
			meanLum += luminance(img.RGBAt(x, y))
			count++
		}
	}
	if count == 0 {
		return 0, 0, false
	}
	meanLum /= float64(count)
	threshold := meanLum * pupilDarkness

	var sumX, sumY float64
	dark := 0
	for y := region.Min.Y; y < region.Max.Y; y++ {
		for x := region.Min.X; x < region.Max.X; x++ {
			if luminance(img.RGBAt(x, y)) <= threshold {
				sumX += float64(x)
				sumY += float64(y)
				dark++
			}
		}
	}
	if dark == 0 {
		return 0, 0, false
	}
	return sumX / float64(dark), sumY / float64(dark), true
}

// luminance is the BT.601 luma of an RGB pixel
func luminance(r, g, b uint8) float64 {
	return 0.299*float64(r) + 0.587*float64(g) + 0.114*float64(b)
}

// normalize scales a vector to unit length
func normalize(v Vector3) Vector3 {
	n := math.Sqrt(v.X*v.X + v.Y*v.Y + v.Z*v.Z)
	if n == 0 {
		return Vector3{Z: 1}
	}
	return Vector3{X: v.X / n, Y: v.Y / n, Z: v.Z / n}
}
