package core

import (
	"math"

	"github.com/pkg/errors"
)

// ErrSingular is returned when a matrix has no inverse
var ErrSingular = errors.New("singular matrix")

// Mat4 is a row-major 4x4 matrix. Points are column vectors, so M.Mul(N)
// applies N first.
type Mat4 [4][4]float64

// Identity returns the identity matrix
func Identity() Mat4 {
	return Mat4{
		{1, 0, 0, 0},
		{0, 1, 0, 0},
		{0, 0, 1, 0},
		{0, 0, 0, 1},
	}
}

// Translate returns a translation matrix
func Translate(d Vec3) Mat4 {
	return Mat4{
		{1, 0, 0, d.X},
		{0, 1, 0, d.Y},
		{0, 0, 1, d.Z},
		{0, 0, 0, 1},
	}
}

// Scale returns a non-uniform scale matrix
func Scale(s Vec3) Mat4 {
	return Mat4{
		{s.X, 0, 0, 0},
		{0, s.Y, 0, 0},
		{0, 0, s.Z, 0},
		{0, 0, 0, 1},
	}
}

// Rotate returns a rotation of theta degrees about axis
func Rotate(theta float64, axis Vec3) Mat4 {
	a := axis.Normalize()
	sinTheta, cosTheta := math.Sincos(theta * math.Pi / 180)
	m := Identity()

	m[0][0] = a.X*a.X + (1-a.X*a.X)*cosTheta
	m[0][1] = a.X*a.Y*(1-cosTheta) - a.Z*sinTheta
	m[0][2] = a.X*a.Z*(1-cosTheta) + a.Y*sinTheta

	m[1][0] = a.X*a.Y*(1-cosTheta) + a.Z*sinTheta
	m[1][1] = a.Y*a.Y + (1-a.Y*a.Y)*cosTheta
	m[1][2] = a.Y*a.Z*(1-cosTheta) - a.X*sinTheta

	m[2][0] = a.X*a.Z*(1-cosTheta) - a.Y*sinTheta
	m[2][1] = a.Y*a.Z*(1-cosTheta) + a.X*sinTheta
	m[2][2] = a.Z*a.Z + (1-a.Z*a.Z)*cosTheta
	return m
}

// LookAt returns the world-to-camera matrix for a camera at eye looking at
// look. Camera space is left-handed with +Z forward.
func LookAt(eye, look, up Vec3) (Mat4, error) {
	dir := look.Subtract(eye).Normalize()
	if dir.LengthSquared() == 0 {
		return Identity(), errors.New("eye and look points coincide")
	}
	right := up.Normalize().Cross(dir)
	if right.Length() == 0 {
		return Identity(), errors.New("up vector and viewing direction are parallel")
	}
	right = right.Normalize()
	newUp := dir.Cross(right)

	cameraToWorld := Mat4{
		{right.X, newUp.X, dir.X, eye.X},
		{right.Y, newUp.Y, dir.Y, eye.Y},
		{right.Z, newUp.Z, dir.Z, eye.Z},
		{0, 0, 0, 1},
	}
	return cameraToWorld.Inverse()
}

// FromColumnMajor builds a matrix from 16 values in pbrt's Transform order,
// where values 12..14 hold the translation.
func FromColumnMajor(v [16]float64) Mat4 {
	var m Mat4
	for c := 0; c < 4; c++ {
		for r := 0; r < 4; r++ {
			m[r][c] = v[c*4+r]
		}
	}
	return m
}

// ColumnMajor returns the 16 values in pbrt's Transform order
func (m Mat4) ColumnMajor() [16]float64 {
	var v [16]float64
	for c := 0; c < 4; c++ {
		for r := 0; r < 4; r++ {
			v[c*4+r] = m[r][c]
		}
	}
	return v
}

// Mul returns m * o
func (m Mat4) Mul(o Mat4) Mat4 {
	var r Mat4
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			r[i][j] = m[i][0]*o[0][j] + m[i][1]*o[1][j] + m[i][2]*o[2][j] + m[i][3]*o[3][j]
		}
	}
	return r
}

// Transpose returns the transposed matrix
func (m Mat4) Transpose() Mat4 {
	var r Mat4
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			r[i][j] = m[j][i]
		}
	}
	return r
}

// Determinant of the full 4x4 matrix
func (m Mat4) Determinant() float64 {
	s0 := m[0][0]*m[1][1] - m[1][0]*m[0][1]
	s1 := m[0][0]*m[1][2] - m[1][0]*m[0][2]
	s2 := m[0][0]*m[1][3] - m[1][0]*m[0][3]
	s3 := m[0][1]*m[1][2] - m[1][1]*m[0][2]
	s4 := m[0][1]*m[1][3] - m[1][1]*m[0][3]
	s5 := m[0][2]*m[1][3] - m[1][2]*m[0][3]

	c5 := m[2][2]*m[3][3] - m[3][2]*m[2][3]
	c4 := m[2][1]*m[3][3] - m[3][1]*m[2][3]
	c3 := m[2][1]*m[3][2] - m[3][1]*m[2][2]
	c2 := m[2][0]*m[3][3] - m[3][0]*m[2][3]
	c1 := m[2][0]*m[3][2] - m[3][0]*m[2][2]
	c0 := m[2][0]*m[3][1] - m[3][0]*m[2][1]

	return s0*c5 - s1*c4 + s2*c3 + s3*c2 - s4*c1 + s5*c0
}

// Inverse computes the inverse with Gauss-Jordan elimination and full pivoting.
// It returns ErrSingular when the matrix cannot be inverted.
func (m Mat4) Inverse() (Mat4, error) {
	var indxc, indxr [4]int
	var ipiv [4]int
	minv := m

	for i := 0; i < 4; i++ {
		irow, icol := 0, 0
		big := 0.0
		for j := 0; j < 4; j++ {
			if ipiv[j] == 1 {
				continue
			}
			for k := 0; k < 4; k++ {
				if ipiv[k] == 0 {
					if a := math.Abs(minv[j][k]); a >= big {
						big = a
						irow = j
						icol = k
					}
				} else if ipiv[k] > 1 {
					return Mat4{}, ErrSingular
				}
			}
		}
		ipiv[icol]++
		if irow != icol {
			minv[irow], minv[icol] = minv[icol], minv[irow]
		}
		indxr[i] = irow
		indxc[i] = icol
		if minv[icol][icol] == 0 {
			return Mat4{}, ErrSingular
		}

		pivinv := 1 / minv[icol][icol]
		minv[icol][icol] = 1
		for j := 0; j < 4; j++ {
			minv[icol][j] *= pivinv
		}

		for j := 0; j < 4; j++ {
			if j == icol {
				continue
			}
			save := minv[j][icol]
			minv[j][icol] = 0
			for k := 0; k < 4; k++ {
				minv[j][k] -= minv[icol][k] * save
			}
		}
	}

	for j := 3; j >= 0; j-- {
		if indxr[j] != indxc[j] {
			for k := 0; k < 4; k++ {
				minv[k][indxr[j]], minv[k][indxc[j]] = minv[k][indxc[j]], minv[k][indxr[j]]
			}
		}
	}
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			if math.IsNaN(minv[i][j]) || math.IsInf(minv[i][j], 0) {
				return Mat4{}, ErrSingular
			}
		}
	}
	return minv, nil
}

// TransformPoint applies the matrix to a point (w = 1)
func (m Mat4) TransformPoint(p Vec3) Vec3 {
	x := m[0][0]*p.X + m[0][1]*p.Y + m[0][2]*p.Z + m[0][3]
	y := m[1][0]*p.X + m[1][1]*p.Y + m[1][2]*p.Z + m[1][3]
	z := m[2][0]*p.X + m[2][1]*p.Y + m[2][2]*p.Z + m[2][3]
	w := m[3][0]*p.X + m[3][1]*p.Y + m[3][2]*p.Z + m[3][3]
	if w == 1 || w == 0 {
		return Vec3{x, y, z}
	}
	return Vec3{x / w, y / w, z / w}
}

// TransformVector applies the upper 3x3 part of the matrix to a direction
func (m Mat4) TransformVector(v Vec3) Vec3 {
	return Vec3{
		m[0][0]*v.X + m[0][1]*v.Y + m[0][2]*v.Z,
		m[1][0]*v.X + m[1][1]*v.Y + m[1][2]*v.Z,
		m[2][0]*v.X + m[2][1]*v.Y + m[2][2]*v.Z,
	}
}

// Translation returns the translation column
func (m Mat4) Translation() Vec3 {
	return Vec3{m[0][3], m[1][3], m[2][3]}
}

// ApproxEqual reports whether all elements differ by at most tol
func (m Mat4) ApproxEqual(o Mat4, tol float64) bool {
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			if math.Abs(m[i][j]-o[i][j]) > tol {
				return false
			}
		}
	}
	return true
}

// IsIdentity reports whether m is the identity within tol
func (m Mat4) IsIdentity(tol float64) bool {
	return m.ApproxEqual(Identity(), tol)
}
