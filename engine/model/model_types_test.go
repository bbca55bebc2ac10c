package model

import (
	"testing"

	"github.com/Carmen-Shannon/oxy-anim/common"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func humanoidBones() []Bone {
	id := common.IdentityTransform()
	return []Bone{
		{Name: "pelvis", ParentIndex: -1, LocalTransform: id},
		{Name: "spine", ParentIndex: 0, LocalTransform: id},
		{Name: "head", ParentIndex: 1, LocalTransform: id},
		{Name: "arm_l", ParentIndex: 1, LocalTransform: id},
		{Name: "arm_r", ParentIndex: 1, LocalTransform: id},
	}
}

func TestNewSkeleton(t *testing.T) {
	s, err := NewSkeleton(humanoidBones())
	require.NoError(t, err)

	assert.Equal(t, 5, s.BoneCount())
	assert.Equal(t, []int32{0}, s.RootBoneIndices)
	assert.Equal(t, int32(3), s.FindBone("arm_l"))
	assert.Equal(t, int32(-1), s.FindBone("tail"))
	assert.Equal(t, int32(1), s.ParentIndex(4))
	assert.Equal(t, int32(-1), s.ParentIndex(0))
	assert.Equal(t, int32(-1), s.ParentIndex(99))
	assert.True(t, s.IsDescendantOf(2, 0))
	assert.False(t, s.IsDescendantOf(3, 2))
}

func TestNewSkeletonRejectsChildBeforeParent(t *testing.T) {
	bones := humanoidBones()
	bones[1].ParentIndex = 3
	_, err := NewSkeleton(bones)
	assert.True(t, errors.Is(err, ErrInvalidSkeleton))
}

func TestSkeletonInverseBindFromReferencePose(t *testing.T) {
	s, err := BuildChainSkeleton("b", 3, [3]float32{0, 1, 0})
	require.NoError(t, err)

	cs := s.ComponentSpaceReferencePose()
	assert.InDelta(t, 2, cs[2].Translation[1], 1e-6)

	mat := make([]float32, 16)
	cs[2].ToMatrix(mat)
	out := make([]float32, 16)
	common.Mul4(out, mat, s.Bones[2].InverseBindMatrix[:])
	ident := make([]float32, 16)
	common.Identity(ident)
	assert.InDeltaSlice(t, ident, out, 1e-5)
}

func TestSkeletonCompatibility(t *testing.T) {
	a, err := NewSkeleton(humanoidBones())
	require.NoError(t, err)
	b, err := NewSkeleton(humanoidBones())
	require.NoError(t, err)
	assert.True(t, a.IsCompatible(b))

	renamed := humanoidBones()
	renamed[2].Name = "skull"
	c, err := NewSkeleton(renamed)
	require.NoError(t, err)
	assert.False(t, a.IsCompatible(c))
	assert.False(t, a.IsCompatible(nil))
}

func TestSuggestBone(t *testing.T) {
	s, err := NewSkeleton(humanoidBones())
	require.NoError(t, err)
	assert.Equal(t, "arm_l", s.SuggestBone("Arm_L1"))
	assert.Equal(t, "head", s.SuggestBone("haed"))
}

func TestModelSocketBones(t *testing.T) {
	s, err := NewSkeleton(humanoidBones())
	require.NoError(t, err)
	m := NewModel(
		WithSkeleton(s),
		WithSockets(
			Socket{Name: "weapon", BoneName: "arm_r"},
			Socket{Name: "hat", BoneName: "head"},
			Socket{Name: "shield", BoneName: "arm_r"},
			Socket{Name: "tail_tip", BoneName: "tail"},
		),
	)
	bones, missing := m.SocketBones()
	assert.Equal(t, []int32{2, 4}, bones)
	assert.Equal(t, []string{"tail_tip"}, missing)
}

func TestModelLODClamp(t *testing.T) {
	s, err := BuildChainSkeleton("b", 4, [3]float32{0, 1, 0})
	require.NoError(t, err)
	lod := BuildTubeLOD(s, 6, 0.25)
	m := NewModel(WithSkeleton(s), WithLOD(lod))

	assert.Equal(t, 1, m.LODCount())
	assert.Same(t, m.LOD(0), m.LOD(5))
	assert.Greater(t, m.BoundingRadius(), float32(3))
	assert.Len(t, m.LOD(0).Vertices, (4+3)*6)
}

func TestSkinnedVertexMarshalLayout(t *testing.T) {
	v := GPUSkinnedVertex{BoneIndices: [4]uint32{7, 0, 0, 0}}
	v.Position = [3]float32{1, 0, 0}
	buf := v.Marshal()
	require.Len(t, buf, v.Size())
	assert.Equal(t, byte(7), buf[64])
	assert.Equal(t, []byte{0, 0, 0x80, 0x3f}, buf[0:4])
}
