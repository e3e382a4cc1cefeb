package colorblind

// Matrix is a 3x3 projection applied to normalized [R,G,B] column vectors.
// Row i holds the weights of output channel i.
type Matrix [3][3]float64

// CorrectionScale is the fraction of the lost channel error re-injected
// into the retained channels.
const CorrectionScale = 0.7

var matrices = [...]Matrix{
	Protanopia: {
		{0.567, 0.433, 0.0},
		{0.558, 0.442, 0.0},
		{0.0, 0.242, 0.758},
	},
	Deuteranopia: {
		{0.625, 0.375, 0.0},
		{0.7, 0.3, 0.0},
		{0.0, 0.3, 0.7},
	},
	Tritanopia: {
		{0.95, 0.05, 0.0},
		{0.0, 0.433, 0.567},
		{0.0, 0.475, 0.525},
	},
}

// MatrixFor returns the projection for a deficiency mode. None has no
// projection and is rejected along with undeclared modes.
func MatrixFor(mode Mode) (Matrix, error) {
	if mode == None || !mode.Valid() {
		return Matrix{}, &ContractError{Op: "matrix lookup", Mode: mode, Err: ErrUnknownMode}
	}
	return matrices[mode], nil
}

// mulVec computes m * [r g b]^T left to right per row. The explicit
// float64 conversions keep the compiler from fusing multiply-adds so the
// truncation boundaries are identical on every architecture.
func (m *Matrix) mulVec(r, g, b float64) (float64, float64, float64) {
	return float64(m[0][0]*r) + float64(m[0][1]*g) + float64(m[0][2]*b),
		float64(m[1][0]*r) + float64(m[1][1]*g) + float64(m[1][2]*b),
		float64(m[2][0]*r) + float64(m[2][1]*g) + float64(m[2][2]*b)
}
