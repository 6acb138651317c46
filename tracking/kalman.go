package tracking

// KalmanFilter is a constant-velocity 2D filter over a face's box center.
// State vector is [x, y, vx, vy]. Time steps are passed explicitly so the
// filter is deterministic for a given frame sequence regardless of wall
// clock.
type KalmanFilter struct {
	state [4]float64
	// Covariance matrix
	P [4][4]float64
	// Process noise scale
	q float64
	// Measurement noise
	R           [2][2]float64
	initialized bool
}

// NewKalmanFilter creates a filter with high initial uncertainty
func NewKalmanFilter() *KalmanFilter {
	kf := &KalmanFilter{q: 0.1}
	for i := 0; i < 4; i++ {
		kf.P[i][i] = 1000.0
	}
	kf.R = [2][2]float64{
		{10.0, 0},
		{0, 10.0},
	}
	return kf
}

// processNoise builds Q for the given time step
func (kf *KalmanFilter) processNoise(dt float64) [4][4]float64 {
	q := kf.q
	return [4][4]float64{
		{q * dt * dt * dt * dt / 4, 0, q * dt * dt * dt / 2, 0},
		{0, q * dt * dt * dt * dt / 4, 0, q * dt * dt * dt / 2},
		{q * dt * dt * dt / 2, 0, q * dt * dt, 0},
		{0, q * dt * dt * dt / 2, 0, q * dt * dt},
	}
}

// Update feeds a new center measurement taken dt seconds after the previous
// one and returns the corrected position and velocity.
func (kf *KalmanFilter) Update(x, y, dt float64) (float64, float64, float64, float64) {
	if !kf.initialized {
		kf.state = [4]float64{x, y, 0, 0}
		kf.initialized = true
		return x, y, 0, 0
	}
	if dt < 0.001 {
		dt = 0.001
	}

	// Predict step
	F := [4][4]float64{
		{1, 0, dt, 0},
		{0, 1, 0, dt},
		{0, 0, 1, 0},
		{0, 0, 0, 1},
	}
	predicted := [4]float64{
		kf.state[0] + kf.state[2]*dt,
		kf.state[1] + kf.state[3]*dt,
		kf.state[2],
		kf.state[3],
	}
	P := kf.predictCovariance(F, dt)

	// Update step
	H := [2][4]float64{
		{1, 0, 0, 0},
		{0, 1, 0, 0},
	}
	innovation := [2]float64{
		x - predicted[0],
		y - predicted[1],
	}
	S := innovationCovariance(H, P, kf.R)
	K := kalmanGain(H, P, S)

	for i := 0; i < 4; i++ {
		kf.state[i] = predicted[i] + K[0][i]*innovation[0] + K[1][i]*innovation[1]
	}
	kf.updateCovariance(K, H, P)

	return kf.state[0], kf.state[1], kf.state[2], kf.state[3]
}

// Predict extrapolates the center dt seconds ahead without mutating state
func (kf *KalmanFilter) Predict(dt float64) (float64, float64) {
	if !kf.initialized {
		return 0, 0
	}
	return kf.state[0] + kf.state[2]*dt, kf.state[1] + kf.state[3]*dt
}

// Position returns the current position estimate
func (kf *KalmanFilter) Position() (float64, float64) {
	return kf.state[0], kf.state[1]
}

// Velocity returns the current velocity estimate
func (kf *KalmanFilter) Velocity() (float64, float64) {
	return kf.state[2], kf.state[3]
}

// predictCovariance computes P = F * P * F' + Q
func (kf *KalmanFilter) predictCovariance(F [4][4]float64, dt float64) [4][4]float64 {
	Q := kf.processNoise(dt)
	var out [4][4]float64
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			sum := 0.0
			for k := 0; k < 4; k++ {
				for l := 0; l < 4; l++ {
					sum += F[i][k] * kf.P[k][l] * F[j][l]
				}
			}
			out[i][j] = sum + Q[i][j]
		}
	}
	return out
}

// innovationCovariance computes S = H * P * H' + R
func innovationCovariance(H [2][4]float64, P [4][4]float64, R [2][2]float64) [2][2]float64 {
	var S [2][2]float64
	for i := 0; i < 2; i++ {
		for j := 0; j < 2; j++ {
			sum := 0.0
			for k := 0; k < 4; k++ {
				for l := 0; l < 4; l++ {
					sum += H[i][k] * P[k][l] * H[j][l]
				}
			}
			S[i][j] = sum + R[i][j]
		}
	}
	return S
}

// kalmanGain computes K = P * H' * inv(S)
func kalmanGain(H [2][4]float64, P [4][4]float64, S [2][2]float64) [2][4]float64 {
	var K [2][4]float64
	for i := 0; i < 2; i++ {
		for j := 0; j < 4; j++ {
			sum := 0.0
			for k := 0; k < 4; k++ {
				for l := 0; l < 2; l++ {
					sum += P[j][k] * H[l][k] * (1.0 / S[i][i])
				}
			}
			K[i][j] = sum
		}
	}
	return K
}

// updateCovariance computes P = (I - K*H) * P
func (kf *KalmanFilter) updateCovariance(K [2][4]float64, H [2][4]float64, P [4][4]float64) {
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			sum := 0.0
			for k := 0; k < 2; k++ {
				for l := 0; l < 4; l++ {
					sum += K[k][i] * H[k][l] * P[l][j]
				}
			}
			kf.P[i][j] = P[i][j] - sum
		}
	}
}
