package model

import (
	"fmt"

	"github.com/Carmen-Shannon/oxy-anim/common"
	"github.com/chewxy/math32"
)

// BuildChainSkeleton creates a single-root chain of count bones named "<prefix>_<i>",
// each offset from its parent by step in the reference pose.
//
// Parameters:
//   - prefix: bone name prefix
//   - count: number of bones (must be > 0)
//   - step: local translation of every non-root bone
//
// Returns:
//   - *Skeleton: the chain skeleton
//   - error: an error if count is not positive
func BuildChainSkeleton(prefix string, count int, step [3]float32) (*Skeleton, error) {
	if count <= 0 {
		return nil, fmt.Errorf("chain skeleton needs at least one bone, got %d", count)
	}
	bones := make([]Bone, count)
	for i := range bones {
		local := common.IdentityTransform()
		parent := int32(i - 1)
		if i > 0 {
			local.Translation = step
		}
		bones[i] = Bone{
			Name:           fmt.Sprintf("%s_%d", prefix, i),
			ParentIndex:    parent,
			LocalTransform: local,
		}
	}
	return NewSkeleton(bones)
}

// BuildTubeLOD skins a tube of rings around a skeleton's reference pose. Rings sit at every
// bone and halfway between a bone and its parent; halfway rings split their weight between both.
// The resulting LOD has one render section covering every vertex with an identity bone map.
//
// Parameters:
//   - skel: the skeleton to wrap
//   - segments: vertices per ring (minimum 3)
//   - radius: tube radius
//
// Returns:
//   - LODInfo: the generated LOD with all bones required
func BuildTubeLOD(skel *Skeleton, segments int, radius float32) LODInfo {
	segments = max(segments, 3)
	refCS := skel.ComponentSpaceReferencePose()

	type ring struct {
		center  [3]float32
		bones   [2]uint32
		weights [2]float32
	}
	var rings []ring
	for i, b := range skel.Bones {
		if b.ParentIndex >= 0 {
			p := refCS[b.ParentIndex].Translation
			rings = append(rings, ring{
				center:  common.Lerp3(p, refCS[i].Translation, 0.5),
				bones:   [2]uint32{uint32(b.ParentIndex), uint32(i)},
				weights: [2]float32{0.5, 0.5},
			})
		}
		rings = append(rings, ring{
			center:  refCS[i].Translation,
			bones:   [2]uint32{uint32(i), 0},
			weights: [2]float32{1, 0},
		})
	}

	vertices := make([]GPUSkinnedVertex, 0, len(rings)*segments)
	for r, rg := range rings {
		for s := 0; s < segments; s++ {
			angle := 2 * math32.Pi * float32(s) / float32(segments)
			sin, cos := math32.Sincos(angle)
			normal := [3]float32{cos, 0, sin}
			v := GPUSkinnedVertex{
				GPUVertex: GPUVertex{
					Position: common.Add3(rg.center, common.Scale3(normal, radius)),
					Normal:   normal,
					TexCoord: [2]float32{float32(s) / float32(segments), float32(r) / float32(max(len(rings)-1, 1))},
					Color:    [4]float32{1, 1, 1, 1},
					Tangent:  [4]float32{-sin, 0, cos, 1},
				},
				BoneIndices: [4]uint32{rg.bones[0], rg.bones[1]},
				BoneWeights: [4]float32{rg.weights[0], rg.weights[1]},
			}
			vertices = append(vertices, v)
		}
	}

	var indices []uint32
	for r := 0; r+1 < len(rings); r++ {
		for s := 0; s < segments; s++ {
			a := uint32(r*segments + s)
			b := uint32(r*segments + (s+1)%segments)
			c := a + uint32(segments)
			d := b + uint32(segments)
			indices = append(indices, a, c, b, b, c, d)
		}
	}

	boneMap := make([]int32, len(skel.Bones))
	required := make([]int32, len(skel.Bones))
	for i := range boneMap {
		boneMap[i] = int32(i)
		required[i] = int32(i)
	}

	return LODInfo{
		RequiredBones: required,
		Vertices:      vertices,
		Sections: []RenderSection{{
			NumVertices:       uint32(len(vertices)),
			Indices:           indices,
			BoneMap:           boneMap,
			MaxBoneInfluences: 4,
		}},
	}
}

// BuildSwayClip creates a looping clip that rotates every non-root bone of a chain back and forth
// around axis, plus a "sway" curve that follows the motion.
//
// Parameters:
//   - name: clip name
//   - skel: the skeleton to animate
//   - axis: rotation axis for every bone
//   - amplitude: peak rotation in radians
//   - duration: clip length in seconds
//
// Returns:
//   - *AnimationClip: the generated clip
func BuildSwayClip(name string, skel *Skeleton, axis [3]float32, amplitude, duration float32) *AnimationClip {
	const samples = 8
	clip := &AnimationClip{Name: name, Duration: duration}
	curve := CurveChannel{Name: "sway"}
	for k := 0; k <= samples; k++ {
		t := duration * float32(k) / samples
		curve.Keys = append(curve.Keys, ScalarKeyframe{Time: t, Value: math32.Sin(2 * math32.Pi * float32(k) / samples)})
	}
	clip.Curves = append(clip.Curves, curve)

	for i, b := range skel.Bones {
		if b.ParentIndex < 0 {
			continue
		}
		ch := AnimationChannel{BoneIndex: int32(i)}
		for k := 0; k <= samples; k++ {
			t := duration * float32(k) / samples
			angle := amplitude * math32.Sin(2*math32.Pi*float32(k)/samples)
			ch.RotationKeys = append(ch.RotationKeys, QuaternionKeyframe{Time: t, Value: common.QuatFromAxisAngle(axis, angle)})
		}
		ch.PositionKeys = []VectorKeyframe{{Time: 0, Value: b.LocalTransform.Translation}}
		clip.Channels = append(clip.Channels, ch)
	}
	return clip
}
