// package common contains common types that are used throughout this engine. They are not interface-wrapped structs, just plain structs that express
// commonly used data-types.
package common

import "github.com/chewxy/math32"

// Transform is a translation/rotation/scale triple describing a bone or mesh placement.
// Rotation is a unit quaternion in [x, y, z, w] order.
type Transform struct {
	// Translation is the position offset.
	Translation [3]float32
	// Rotation is the orientation as a unit quaternion [x, y, z, w].
	Rotation [4]float32
	// Scale is the per-axis scale factor.
	Scale [3]float32
}

// IdentityTransform returns a transform with no translation, no rotation and unit scale.
func IdentityTransform() Transform {
	return Transform{
		Rotation: QuatIdentity(),
		Scale:    [3]float32{1, 1, 1},
	}
}

// Mul returns the transform that applies t first and then parent.
// For bone hierarchies this is local ∘ parentComponentSpace.
//
// Parameters:
//   - parent: the transform applied after t
//
// Returns:
//   - Transform: the composed transform
func (t Transform) Mul(parent Transform) Transform {
	return Transform{
		Translation: Add3(QuatRotate(parent.Rotation, Mul3(parent.Scale, t.Translation)), parent.Translation),
		Rotation:    QuatNormalize(QuatMul(parent.Rotation, t.Rotation)),
		Scale:       Mul3(parent.Scale, t.Scale),
	}
}

// TransformPosition applies the transform to a point.
func (t Transform) TransformPosition(p [3]float32) [3]float32 {
	return Add3(QuatRotate(t.Rotation, Mul3(t.Scale, p)), t.Translation)
}

// Blend interpolates from t toward target by alpha. Translation and scale are lerped,
// rotation is normalized-lerped along the shortest arc.
//
// Parameters:
//   - target: the transform at alpha = 1
//   - alpha: blend factor in [0, 1]
//
// Returns:
//   - Transform: the blended transform
func (t Transform) Blend(target Transform, alpha float32) Transform {
	return Transform{
		Translation: Lerp3(t.Translation, target.Translation, alpha),
		Rotation:    QuatNlerp(t.Rotation, target.Rotation, alpha),
		Scale:       Lerp3(t.Scale, target.Scale, alpha),
	}
}

// Equals reports whether two transforms match within tolerance. Rotations q and -q compare equal.
func (t Transform) Equals(o Transform, tolerance float32) bool {
	for i := 0; i < 3; i++ {
		if math32.Abs(t.Translation[i]-o.Translation[i]) > tolerance || math32.Abs(t.Scale[i]-o.Scale[i]) > tolerance {
			return false
		}
	}
	dot := t.Rotation[0]*o.Rotation[0] + t.Rotation[1]*o.Rotation[1] + t.Rotation[2]*o.Rotation[2] + t.Rotation[3]*o.Rotation[3]
	return math32.Abs(math32.Abs(dot)-1) <= tolerance
}

// ToMatrix writes the column-major 4x4 matrix equivalent of the transform into out.
//
// Parameters:
//   - out: destination slice (must be at least 16 elements)
func (t Transform) ToMatrix(out []float32) {
	x, y, z, w := t.Rotation[0], t.Rotation[1], t.Rotation[2], t.Rotation[3]
	xx, yy, zz := x*x, y*y, z*z
	xy, xz, yz := x*y, x*z, y*z
	wx, wy, wz := w*x, w*y, w*z
	sx, sy, sz := t.Scale[0], t.Scale[1], t.Scale[2]

	out[0] = (1 - 2*(yy+zz)) * sx
	out[1] = 2 * (xy + wz) * sx
	out[2] = 2 * (xz - wy) * sx
	out[3] = 0

	out[4] = 2 * (xy - wz) * sy
	out[5] = (1 - 2*(xx+zz)) * sy
	out[6] = 2 * (yz + wx) * sy
	out[7] = 0

	out[8] = 2 * (xz + wy) * sz
	out[9] = 2 * (yz - wx) * sz
	out[10] = (1 - 2*(xx+yy)) * sz
	out[11] = 0

	out[12] = t.Translation[0]
	out[13] = t.Translation[1]
	out[14] = t.Translation[2]
	out[15] = 1
}
