package model

import (
	"strings"

	"github.com/Carmen-Shannon/oxy-anim/common"
	"github.com/agnivade/levenshtein"
	"github.com/pkg/errors"
)

// ErrInvalidSkeleton is returned when a bone hierarchy violates the parent-before-child ordering.
var ErrInvalidSkeleton = errors.New("invalid skeleton")

// --- Skeleton Types ---

// Bone represents a single bone in a skeleton hierarchy.
type Bone struct {
	// Name is the bone's identifier (for debugging and animation targeting).
	Name string

	// ParentIndex is the index of the parent bone (-1 for root bones).
	// A parent always has a lower index than its children.
	ParentIndex int32

	// InverseBindMatrix transforms from model space to bone space at bind pose.
	InverseBindMatrix [16]float32

	// LocalTransform is the bone's reference pose relative to its parent.
	LocalTransform common.Transform
}

// Skeleton represents an immutable bone hierarchy shared by every instance of an asset.
type Skeleton struct {
	// Bones is the array of all bones in the skeleton, parents first.
	Bones []Bone

	// RootBoneIndices are indices of bones with no parent.
	RootBoneIndices []int32

	// BoneNameToIndex maps bone names to their indices for quick lookup.
	BoneNameToIndex map[string]int32
}

// NewSkeleton builds a Skeleton from an ordered bone list, filling the root and name lookups.
// If a bone's InverseBindMatrix is all zero it is derived from the reference pose.
//
// Parameters:
//   - bones: the bones, ordered so that every parent precedes its children
//
// Returns:
//   - *Skeleton: the constructed skeleton
//   - error: ErrInvalidSkeleton if the ordering or parent indices are invalid
func NewSkeleton(bones []Bone) (*Skeleton, error) {
	s := &Skeleton{
		Bones:           bones,
		BoneNameToIndex: make(map[string]int32, len(bones)),
	}
	for i, b := range bones {
		if b.ParentIndex < 0 {
			s.RootBoneIndices = append(s.RootBoneIndices, int32(i))
		}
		if b.Name != "" {
			s.BoneNameToIndex[b.Name] = int32(i)
		}
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}

	refPose := s.ComponentSpaceReferencePose()
	mat := make([]float32, 16)
	for i := range s.Bones {
		if s.Bones[i].InverseBindMatrix != ([16]float32{}) {
			continue
		}
		refPose[i].ToMatrix(mat)
		var inv [16]float32
		if !common.Invert4(inv[:], mat) {
			common.Identity(inv[:])
		}
		s.Bones[i].InverseBindMatrix = inv
	}
	return s, nil
}

// Validate checks that every parent index is in range and precedes its child.
func (s *Skeleton) Validate() error {
	for i, b := range s.Bones {
		if b.ParentIndex >= int32(i) || b.ParentIndex < -1 {
			return errors.Wrapf(ErrInvalidSkeleton, "bone %d (%q) has parent %d", i, b.Name, b.ParentIndex)
		}
	}
	return nil
}

// BoneCount returns the number of bones in the skeleton.
func (s *Skeleton) BoneCount() int {
	return len(s.Bones)
}

// ParentIndex returns the parent of bone, or -1 for roots and out-of-range indices.
func (s *Skeleton) ParentIndex(bone int32) int32 {
	if bone < 0 || int(bone) >= len(s.Bones) {
		return -1
	}
	return s.Bones[bone].ParentIndex
}

// FindBone returns the index of the named bone, or -1 if it does not exist.
func (s *Skeleton) FindBone(name string) int32 {
	if idx, ok := s.BoneNameToIndex[name]; ok {
		return idx
	}
	return -1
}

// IsDescendantOf reports whether bone sits below ancestor in the hierarchy.
func (s *Skeleton) IsDescendantOf(bone, ancestor int32) bool {
	for p := s.ParentIndex(bone); p >= 0; p = s.ParentIndex(p) {
		if p == ancestor {
			return true
		}
	}
	return false
}

// SuggestBone returns the bone name closest to name by edit distance.
// Used to produce useful diagnostics when sockets or follower maps reference missing bones.
//
// Parameters:
//   - name: the requested bone name
//
// Returns:
//   - string: the closest existing bone name, or "" if the skeleton is empty
func (s *Skeleton) SuggestBone(name string) string {
	best, bestDist := "", -1
	lower := strings.ToLower(name)
	for _, b := range s.Bones {
		d := levenshtein.ComputeDistance(lower, strings.ToLower(b.Name))
		if bestDist < 0 || d < bestDist {
			best, bestDist = b.Name, d
		}
	}
	return best
}

// ReferencePose returns a copy of every bone's local reference transform.
func (s *Skeleton) ReferencePose() []common.Transform {
	out := make([]common.Transform, len(s.Bones))
	for i, b := range s.Bones {
		out[i] = b.LocalTransform
	}
	return out
}

// ComponentSpaceReferencePose composes the reference pose down the hierarchy.
func (s *Skeleton) ComponentSpaceReferencePose() []common.Transform {
	out := make([]common.Transform, len(s.Bones))
	for i, b := range s.Bones {
		if b.ParentIndex < 0 {
			out[i] = b.LocalTransform
			continue
		}
		out[i] = b.LocalTransform.Mul(out[b.ParentIndex])
	}
	return out
}

// IsCompatible reports whether poses produced for other can drive s.
// Skeletons are compatible when they share bone count, names and parent layout.
func (s *Skeleton) IsCompatible(other *Skeleton) bool {
	if s == other {
		return true
	}
	if other == nil || len(s.Bones) != len(other.Bones) {
		return false
	}
	for i := range s.Bones {
		if s.Bones[i].Name != other.Bones[i].Name || s.Bones[i].ParentIndex != other.Bones[i].ParentIndex {
			return false
		}
	}
	return true
}

// --- Animation Types ---

// AnimationClip represents a single animation (walk, run, attack, etc.).
type AnimationClip struct {
	// Name is the animation identifier.
	Name string

	// Duration is the total length of the animation in seconds.
	Duration float32

	// Channels contains animation data for each animated bone.
	Channels []AnimationChannel

	// Curves are named scalar tracks (material parameters, morph weights).
	Curves []CurveChannel
}

// AnimationChannel contains keyframe data for a single bone.
type AnimationChannel struct {
	// BoneIndex is the index of the bone this channel animates.
	BoneIndex int32

	// PositionKeys are keyframes for translation.
	PositionKeys []VectorKeyframe

	// RotationKeys are keyframes for rotation (quaternion).
	RotationKeys []QuaternionKeyframe

	// ScaleKeys are keyframes for scale.
	ScaleKeys []VectorKeyframe
}

// CurveChannel is a named scalar track sampled alongside the bone channels.
type CurveChannel struct {
	// Name is the curve identifier. Morph target curves share the morph target's name.
	Name string

	// Keys are the scalar keyframes, sorted by time.
	Keys []ScalarKeyframe
}

// VectorKeyframe stores a 3D vector value at a specific time.
type VectorKeyframe struct {
	Time  float32
	Value [3]float32
}

// QuaternionKeyframe stores a quaternion rotation at a specific time.
type QuaternionKeyframe struct {
	Time  float32
	Value [4]float32
}

// ScalarKeyframe stores a scalar value at a specific time.
type ScalarKeyframe struct {
	Time  float32
	Value float32
}

// --- Mesh Asset Types ---

// Socket attaches a named point to a bone. Sockets keep their bone alive in the required set.
type Socket struct {
	Name     string
	BoneName string
	Offset   common.Transform
}

// MorphDelta offsets a single vertex for a morph target at full weight.
type MorphDelta struct {
	VertexIndex   uint32
	PositionDelta [3]float32
	NormalDelta   [3]float32
}

// MorphTarget is a named set of per-vertex deltas driven by the curve of the same name.
type MorphTarget struct {
	Name   string
	Deltas []MorphDelta
}

// RenderSection is a contiguous vertex range of a LOD drawn with one material.
type RenderSection struct {
	// BaseVertexIndex is the first vertex of the section inside the LOD vertex buffer.
	BaseVertexIndex uint32

	// NumVertices is the number of vertices in the section.
	NumVertices uint32

	// Indices are triangle indices relative to BaseVertexIndex.
	Indices []uint32

	// BoneMap maps section-local influence indices to skeleton bone indices.
	BoneMap []int32

	// MaxBoneInfluences is 4 for regular sections and up to 8 when ExtraInfluences is populated.
	MaxBoneInfluences int

	// RecomputeTangents requests the tangent recompute pass after skinning.
	RecomputeTangents bool

	// Cloth marks the section as blended with simulated cloth positions after skinning.
	Cloth bool
}

// LODInfo holds the renderable data and required bones of one level of detail.
type LODInfo struct {
	// RequiredBones lists the bones this LOD needs, ascending and parent closed.
	RequiredBones []int32

	// Vertices is the LOD's skinned vertex buffer shared by its sections.
	Vertices []GPUSkinnedVertex

	// ExtraInfluences holds influences 5..8 per vertex for sections with MaxBoneInfluences > 4.
	ExtraInfluences []GPUExtraInfluence

	// Sections are the render sections of the LOD.
	Sections []RenderSection

	// MorphTargets are the LOD's morph targets.
	MorphTargets []MorphTarget

	// ScreenSize is the screen-size threshold at which the LOD is selected.
	ScreenSize float32
}
