package detection

import (
	"image"
	"sort"
)

// Detection is one candidate face box produced by a single frame's inference.
// Coordinates are pixels in the normalized image's coordinate space. The
// detection carries no identity; association to a stable id happens in the
// tracker.
type Detection struct {
	Box        image.Rectangle
	Confidence float64
}

// IoU returns the intersection-over-union of two boxes in [0, 1]
func IoU(a, b image.Rectangle) float64 {
	inter := a.Intersect(b)
	if inter.Empty() {
		return 0
	}
	interArea := float64(inter.Dx() * inter.Dy())
	unionArea := float64(a.Dx()*a.Dy()+b.Dx()*b.Dy()) - interArea
	if unionArea <= 0 {
		return 0
	}
	return interArea / unionArea
}

// NMSOverlapThreshold is the fixed IoU above which a lower-confidence
// candidate is considered a duplicate of a kept one.
const NMSOverlapThreshold = 0.45

// Suppress filters candidates below minConfidence and applies greedy
// non-maximum suppression: candidates are sorted by descending confidence,
// each survivor suppresses any remaining candidate overlapping it by more
// than NMSOverlapThreshold IoU. At most maxFaces survivors are kept. The
// result is ordered by descending confidence and the input slice is not
// modified.
func Suppress(candidates []Detection, minConfidence float64, maxFaces int) []Detection {
	sorted := make([]Detection, 0, len(candidates))
	for _, c := range candidates {
		if c.Confidence >= minConfidence {
			sorted = append(sorted, c)
		}
	}
	// Stable sort keeps equal-confidence candidates in input order, so the
	// whole pass is deterministic for identical model output.
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Confidence > sorted[j].Confidence
	})

	var kept []Detection
	for _, cand := range sorted {
		if maxFaces > 0 && len(kept) >= maxFaces {
			break
		}
		duplicate := false
		for _, k := range kept {
			if IoU(cand.Box, k.Box) > NMSOverlapThreshold {
				duplicate = true
				break
			}
		}
		if !duplicate {
			kept = append(kept, cand)
		}
	}
	return kept
}
