package landmark

import "math"

// Head pose is solved by fitting a fixed 3D reference face to a sparse
// subset of the 2D landmarks under a weak-perspective camera. The fit runs
// Gauss-Newton over six parameters (pitch, yaw, roll, scale, tx, ty); the
// reported confidence comes from the remaining reprojection residual, not
// from any model score.

// poseIndices are the landmark indices used for the solve: nose tip, chin,
// right eye outer corner, left eye outer corner, right and left mouth
// corners.
var poseIndices = [6]int{30, 8, 36, 45, 48, 54}

// referenceFace holds the matching 3D reference points in model units.
// Axes follow the camera frame documented on HeadPose: +X right, +Y down in
// the image, +Z from camera toward subject.
var referenceFace = [6]Vector3{
	{X: 0, Y: 0, Z: 0},          // nose tip
	{X: 0, Y: 330, Z: -65},      // chin
	{X: -225, Y: -170, Z: -135}, // right eye outer corner
	{X: 225, Y: -170, Z: -135},  // left eye outer corner
	{X: -150, Y: 150, Z: -125},  // right mouth corner
	{X: 150, Y: 150, Z: -125},   // left mouth corner
}

const (
	poseIterations = 20
	poseDamping    = 1e-6
	poseParamEps   = 1e-9
)

// SolvePose fits the reference face to the landmark set and returns the
// recovered head orientation. It always returns a pose; a poor fit shows up
// as low confidence rather than an error, because a box with a weak pose is
// still more useful to the tracker than no pose at all.
func SolvePose(set *Set) *HeadPose {
	var observed [6]Point
	for i, idx := range poseIndices {
		observed[i] = set.Points[idx]
	}

	// Interocular distance anchors the initial scale and normalizes the
	// residual so confidence is resolution independent.
	iod := dist(observed[2], observed[3])
	refIOD := dist3(referenceFace[2], referenceFace[3])
	if iod < 1 {
		iod = 1
	}

	// Parameters: pitch, yaw, roll, scale, tx, ty
	params := [6]float64{0, 0, 0, iod / refIOD, observed[0].X, observed[0].Y}

	for iter := 0; iter < poseIterations; iter++ {
		res := residuals(params, observed)

		// Numeric Jacobian, forward differences
		var jac [12][6]float64
		for p := 0; p < 6; p++ {
			step := 1e-5 * math.Max(math.Abs(params[p]), 1e-3)
			bumped := params
			bumped[p] += step
			resB := residuals(bumped, observed)
			for r := 0; r < 12; r++ {
				jac[r][p] = (resB[r] - res[r]) / step
			}
		}

		// Normal equations: (J'J + damping) delta = -J'r
		var jtj [6][6]float64
		var jtr [6]float64
		for i := 0; i < 6; i++ {
			for j := 0; j < 6; j++ {
				for r := 0; r < 12; r++ {
					jtj[i][j] += jac[r][i] * jac[r][j]
				}
			}
			for r := 0; r < 12; r++ {
				jtr[i] += jac[r][i] * res[r]
			}
			jtj[i][i] += poseDamping
		}

		delta, ok := solve6(jtj, jtr)
		if !ok {
			break
		}

		var change float64
		for i := 0; i < 6; i++ {
			params[i] -= delta[i]
			change += delta[i] * delta[i]
		}
		if change < poseParamEps {
			break
		}
	}

	// Residual fit error drives confidence
	res := residuals(params, observed)
	var sum float64
	for _, r := range res {
		sum += r * r
	}
	rms := math.Sqrt(sum / float64(len(res)))
	conf := 1.0 - rms/iod
	if conf < 0 {
		conf = 0
	}

	scale := params[3]
	tz := 0.0
	if scale > 0 {
		// Weak perspective: apparent scale falls off with depth, so inverse
		// scale stands in for distance in model units.
		tz = refIOD / (scale * refIOD)
	}

	return &HeadPose{
		Pitch:       normalizeAngle(params[0]),
		Yaw:         normalizeAngle(params[1]),
		Roll:        normalizeAngle(params[2]),
		Translation: Vector3{X: params[4], Y: params[5], Z: tz},
		Confidence:  conf,
	}
}

// residuals computes the 12 reprojection residuals for the current params
func residuals(params [6]float64, observed [6]Point) [12]float64 {
	var out [12]float64
	scale := params[3]
	for i := 0; i < 6; i++ {
		p := rotatePoint(referenceFace[i], params[0], params[1], params[2])
		u := scale*p.X + params[4]
		v := scale*p.Y + params[5]
		out[i*2] = u - observed[i].X
		out[i*2+1] = v - observed[i].Y
	}
	return out
}

// rotatePoint applies R = Rz(roll) * Ry(yaw) * Rx(pitch) to a point
func rotatePoint(p Vector3, pitch, yaw, roll float64) Vector3 {
	// Rx(pitch)
	y := p.Y*math.Cos(pitch) - p.Z*math.Sin(pitch)
	z := p.Y*math.Sin(pitch) + p.Z*math.Cos(pitch)
	x := p.X
	// Ry(yaw)
	x2 := x*math.Cos(yaw) + z*math.Sin(yaw)
	z2 := -x*math.Sin(yaw) + z*math.Cos(yaw)
	// Rz(roll)
	x3 := x2*math.Cos(roll) - y*math.Sin(roll)
	y3 := x2*math.Sin(roll) + y*math.Cos(roll)
	return Vector3{X: x3, Y: y3, Z: z2}
}

// solve6 solves a 6x6 linear system by Gaussian elimination with partial
// pivoting. Returns false on a singular system.
func solve6(a [6][6]float64, b [6]float64) ([6]float64, bool) {
	var x [6]float64
	for col := 0; col < 6; col++ {
		pivot := col
		for r := col + 1; r < 6; r++ {
			if math.Abs(a[r][col]) > math.Abs(a[pivot][col]) {
				pivot = r
			}
		}
		if math.Abs(a[pivot][col]) < 1e-12 {
			return x, false
		}
		a[col], a[pivot] = a[pivot], a[col]
		b[col], b[pivot] = b[pivot], b[col]

		for r := col + 1; r < 6; r++ {
			f := a[r][col] / a[col][col]
			for c := col; c < 6; c++ {
				a[r][c] -= f * a[col][c]
			}
			b[r] -= f * b[col]
		}
	}
	for r := 5; r >= 0; r-- {
		sum := b[r]
		for c := r + 1; c < 6; c++ {
			sum -= a[r][c] * x[c]
		}
		x[r] = sum / a[r][r]
	}
	return x, true
}

// normalizeAngle wraps an angle into (-pi, pi]
func normalizeAngle(a float64) float64 {
	for a > math.Pi {
		a -= 2 * math.Pi
	}
	for a <= -math.Pi {
		a += 2 * math.Pi
	}
	return a
}

func dist(a, b Point) float64 {
	return math.Hypot(a.X-b.X, a.Y-b.Y)
}

func dist3(a, b Vector3) float64 {
	dx, dy, dz := a.X-b.X, a.Y-b.Y, a.Z-b.Z
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}
