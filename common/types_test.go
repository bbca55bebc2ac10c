package common

import (
	"testing"

	"github.com/chewxy/math32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const eps = 1e-5

func assertVec3(t *testing.T, want, got [3]float32) {
	t.Helper()
	for i := range want {
		assert.InDelta(t, want[i], got[i], eps, "component %d", i)
	}
}

func TestQuatRotate(t *testing.T) {
	q := QuatFromAxisAngle([3]float32{0, 0, 1}, math32.Pi/2)
	assertVec3(t, [3]float32{0, 1, 0}, QuatRotate(q, [3]float32{1, 0, 0}))
	assertVec3(t, [3]float32{-1, 0, 0}, QuatRotate(q, [3]float32{0, 1, 0}))
	assertVec3(t, [3]float32{0, 0, 1}, QuatRotate(q, [3]float32{0, 0, 1}))
}

func TestQuatMulOrder(t *testing.T) {
	rz := QuatFromAxisAngle([3]float32{0, 0, 1}, math32.Pi/2)
	rx := QuatFromAxisAngle([3]float32{1, 0, 0}, math32.Pi/2)

	// rx * rz applies rz first
	v := QuatRotate(QuatMul(rx, rz), [3]float32{1, 0, 0})
	assertVec3(t, QuatRotate(rx, QuatRotate(rz, [3]float32{1, 0, 0})), v)
	assertVec3(t, [3]float32{0, 0, 1}, v)
}

func TestTransformMulIdentity(t *testing.T) {
	local := Transform{
		Translation: [3]float32{1, 2, 3},
		Rotation:    QuatFromAxisAngle([3]float32{0, 1, 0}, 0.3),
		Scale:       [3]float32{1, 1, 1},
	}
	got := local.Mul(IdentityTransform())
	assert.True(t, got.Equals(local, eps))
}

func TestTransformMulAppliesLocalThenParent(t *testing.T) {
	parent := Transform{
		Translation: [3]float32{0, 0, 5},
		Rotation:    QuatFromAxisAngle([3]float32{0, 0, 1}, math32.Pi/2),
		Scale:       [3]float32{2, 2, 2},
	}
	local := IdentityTransform()
	local.Translation = [3]float32{1, 0, 0}

	cs := local.Mul(parent)
	assertVec3(t, [3]float32{0, 2, 5}, cs.Translation)
	assertVec3(t, [3]float32{2, 2, 2}, cs.Scale)

	p := [3]float32{0.5, 0.25, -1}
	assertVec3(t, parent.TransformPosition(local.TransformPosition(p)), cs.TransformPosition(p))
}

func TestTransformToMatrixMatchesTransformPosition(t *testing.T) {
	tr := Transform{
		Translation: [3]float32{3, -1, 2},
		Rotation:    QuatNormalize([4]float32{0.2, 0.4, -0.1, 0.9}),
		Scale:       [3]float32{1.5, 0.5, 2},
	}
	m := make([]float32, 16)
	tr.ToMatrix(m)
	p := [3]float32{1, 2, 3}
	assertVec3(t, tr.TransformPosition(p), TransformPoint(m, p))

	inv := make([]float32, 16)
	require.True(t, Invert4(inv, m))
	assertVec3(t, p, TransformPoint(inv, TransformPoint(m, p)))
}

func TestTransformBlend(t *testing.T) {
	a := IdentityTransform()
	b := Transform{
		Translation: [3]float32{2, 0, 0},
		Rotation:    QuatFromAxisAngle([3]float32{0, 0, 1}, math32.Pi/2),
		Scale:       [3]float32{3, 3, 3},
	}
	assert.True(t, a.Blend(b, 0).Equals(a, eps))
	assert.True(t, a.Blend(b, 1).Equals(b, eps))

	mid := a.Blend(b, 0.5)
	assertVec3(t, [3]float32{1, 0, 0}, mid.Translation)
	assertVec3(t, [3]float32{2, 2, 2}, mid.Scale)
	want := QuatFromAxisAngle([3]float32{0, 0, 1}, math32.Pi/4)
	assert.True(t, Transform{Rotation: want}.Equals(Transform{Rotation: mid.Rotation}, 1e-4))
}

func TestQuatSlerpEndpoints(t *testing.T) {
	a := QuatFromAxisAngle([3]float32{1, 0, 0}, 0.1)
	b := QuatFromAxisAngle([3]float32{1, 0, 0}, 1.4)
	mid := QuatSlerp(a, b, 0.5)
	want := QuatFromAxisAngle([3]float32{1, 0, 0}, 0.75)
	for i := range want {
		assert.InDelta(t, want[i], mid[i], 1e-4)
	}
}
