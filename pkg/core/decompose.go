package core

import (
	"math"

	"github.com/pkg/errors"
)

// ErrDegenerate is returned when a matrix cannot be split into
// translation, rotation and scale.
var ErrDegenerate = errors.New("degenerate matrix")

const (
	// TranslationTolerance is the smallest translation worth emitting
	TranslationTolerance = 1e-6
	// ScaleTolerance is the smallest deviation from unit scale worth emitting
	ScaleTolerance = 1e-6
	// RotationTolerance bounds how far the quaternion scalar part may sit
	// below 1 before the rotation is considered real
	RotationTolerance = 1e-12

	degenerateScale = 1e-12
	exactTolerance  = 1e-6
)

// Decomposition holds the parts of M = T * R * S
type Decomposition struct {
	Translation Vec3
	Rotation    Quat
	Scale       Vec3
	// Exact is false when the matrix contains shear and T*R*S only
	// approximates it.
	Exact bool
}

// HasTranslation reports whether the translation is non-zero
func (d Decomposition) HasTranslation() bool {
	return !d.Translation.ApproxEqual(Vec3{}, TranslationTolerance)
}

// HasRotation reports whether the rotation differs from identity
func (d Decomposition) HasRotation() bool {
	return math.Abs(d.Rotation.W) < 1-RotationTolerance
}

// HasScale reports whether the scale differs from one
func (d Decomposition) HasScale() bool {
	return !d.Scale.ApproxEqual(Vec3{1, 1, 1}, ScaleTolerance)
}

// Matrix recomposes T * R * S
func (d Decomposition) Matrix() Mat4 {
	return Translate(d.Translation).Mul(d.Rotation.Matrix()).Mul(Scale(d.Scale))
}

// Decompose splits an affine matrix into translation, rotation and scale.
// A negative determinant is folded into the X scale.
func Decompose(m Mat4) (Decomposition, error) {
	if math.Abs(m[3][0]) > exactTolerance || math.Abs(m[3][1]) > exactTolerance ||
		math.Abs(m[3][2]) > exactTolerance || math.Abs(m[3][3]-1) > exactTolerance {
		return Decomposition{}, errors.Wrap(ErrDegenerate, "projective matrix")
	}

	cols := [3]Vec3{
		{m[0][0], m[1][0], m[2][0]},
		{m[0][1], m[1][1], m[2][1]},
		{m[0][2], m[1][2], m[2][2]},
	}
	scale := Vec3{cols[0].Length(), cols[1].Length(), cols[2].Length()}
	if scale.X < degenerateScale || scale.Y < degenerateScale || scale.Z < degenerateScale {
		return Decomposition{}, errors.Wrap(ErrDegenerate, "zero scale")
	}
	if cols[0].Cross(cols[1]).Dot(cols[2]) < 0 {
		scale.X = -scale.X
	}

	rot := Identity()
	for c, col := range cols {
		n := col.Multiply(1 / scale.Component(c))
		rot[0][c] = n.X
		rot[1][c] = n.Y
		rot[2][c] = n.Z
	}

	d := Decomposition{
		Translation: m.Translation(),
		Rotation:    QuatFromRotation(rot),
		Scale:       scale,
	}
	d.Exact = d.Matrix().ApproxEqual(m, exactTolerance*math.Max(1, maxAbs(m)))
	return d, nil
}

func maxAbs(m Mat4) float64 {
	big := 0.0
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			big = math.Max(big, math.Abs(m[i][j]))
		}
	}
	return big
}
