package core

// TransformSet pairs a matrix with its inverse so both stay in sync as
// directives compose onto it.
type TransformSet struct {
	M   Mat4
	Inv Mat4
}

// IdentityTransform returns the identity pair
func IdentityTransform() TransformSet {
	return TransformSet{M: Identity(), Inv: Identity()}
}

// NewTransformSet computes the inverse of m. The error is ErrSingular.
func NewTransformSet(m Mat4) (TransformSet, error) {
	inv, err := m.Inverse()
	if err != nil {
		return TransformSet{}, err
	}
	return TransformSet{M: m, Inv: inv}, nil
}

// Compose right-multiplies by a matrix whose inverse is already known
func (t TransformSet) Compose(m, inv Mat4) TransformSet {
	return TransformSet{M: t.M.Mul(m), Inv: inv.Mul(t.Inv)}
}

// Inverted swaps the matrix and its inverse
func (t TransformSet) Inverted() TransformSet {
	return TransformSet{M: t.Inv, Inv: t.M}
}

// Translate appends a translation
func (t TransformSet) Translate(d Vec3) TransformSet {
	return t.Compose(Translate(d), Translate(d.Negate()))
}

// Scale appends a scale. Zero components leave the inverse singular, so
// the caller must reject them first.
func (t TransformSet) Scale(s Vec3) TransformSet {
	return t.Compose(Scale(s), Scale(Vec3{1 / s.X, 1 / s.Y, 1 / s.Z}))
}

// Rotate appends a rotation of theta degrees about axis
func (t TransformSet) Rotate(theta float64, axis Vec3) TransformSet {
	r := Rotate(theta, axis)
	return t.Compose(r, r.Transpose())
}
