package core

import "math"

// Quat is a rotation quaternion with scalar part W
type Quat struct {
	X, Y, Z, W float64
}

// QuatIdentity returns the identity rotation
func QuatIdentity() Quat {
	return Quat{W: 1}
}

// QuatFromRotation builds a quaternion from the pure rotation held in the
// upper 3x3 part of m.
func QuatFromRotation(m Mat4) Quat {
	m11, m12, m13 := m[0][0], m[0][1], m[0][2]
	m21, m22, m23 := m[1][0], m[1][1], m[1][2]
	m31, m32, m33 := m[2][0], m[2][1], m[2][2]
	trace := m11 + m22 + m33

	var q Quat
	switch {
	case trace > 0:
		s := 0.5 / math.Sqrt(trace+1)
		q.W = 0.25 / s
		q.X = (m32 - m23) * s
		q.Y = (m13 - m31) * s
		q.Z = (m21 - m12) * s
	case m11 > m22 && m11 > m33:
		s := 2 * math.Sqrt(1+m11-m22-m33)
		q.W = (m32 - m23) / s
		q.X = 0.25 * s
		q.Y = (m12 + m21) / s
		q.Z = (m13 + m31) / s
	case m22 > m33:
		s := 2 * math.Sqrt(1+m22-m11-m33)
		q.W = (m13 - m31) / s
		q.X = (m12 + m21) / s
		q.Y = 0.25 * s
		q.Z = (m23 + m32) / s
	default:
		s := 2 * math.Sqrt(1+m33-m11-m22)
		q.W = (m21 - m12) / s
		q.X = (m13 + m31) / s
		q.Y = (m23 + m32) / s
		q.Z = 0.25 * s
	}
	return q.Normalize()
}

// Length of the quaternion
func (q Quat) Length() float64 {
	return math.Sqrt(q.X*q.X + q.Y*q.Y + q.Z*q.Z + q.W*q.W)
}

// Normalize returns a unit quaternion
func (q Quat) Normalize() Quat {
	l := q.Length()
	if l == 0 {
		return QuatIdentity()
	}
	return Quat{q.X / l, q.Y / l, q.Z / l, q.W / l}
}

// AxisAngle returns the rotation axis and the angle in degrees. The angle is
// kept in [0, 180] by flipping the axis when needed.
func (q Quat) AxisAngle() (Vec3, float64) {
	q = q.Normalize()
	if q.W < 0 {
		q = Quat{-q.X, -q.Y, -q.Z, -q.W}
	}
	s := math.Sqrt(q.X*q.X + q.Y*q.Y + q.Z*q.Z)
	if s < 1e-15 {
		return Vec3{1, 0, 0}, 0
	}
	angle := 2 * math.Atan2(s, q.W)
	return Vec3{q.X / s, q.Y / s, q.Z / s}, angle * 180 / math.Pi
}

// Matrix returns the rotation matrix for q
func (q Quat) Matrix() Mat4 {
	axis, angle := q.AxisAngle()
	if angle == 0 {
		return Identity()
	}
	return Rotate(angle, axis)
}
