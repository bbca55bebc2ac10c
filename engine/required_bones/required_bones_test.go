package required_bones

import (
	"math/rand"
	"slices"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// parents is a Hierarchy backed by a plain parent list.
type parents []int32

func (p parents) BoneCount() int { return len(p) }

func (p parents) ParentIndex(bone int32) int32 {
	if bone < 0 || int(bone) >= len(p) {
		return -1
	}
	return p[bone]
}

// 0 root, 1 spine, 2 neck, 3 head, 4 clavicle_l, 5 arm_l, 6 hand_l, 7 clavicle_r, 8 arm_r, 9 hand_r
var body = parents{-1, 0, 1, 2, 1, 4, 5, 1, 7, 8}

func TestMergeSorted(t *testing.T) {
	tests := []struct {
		name         string
		base, insert []int32
		want         []int32
	}{
		{"empty insert", []int32{1, 4, 9}, nil, []int32{1, 4, 9}},
		{"empty base", nil, []int32{2, 3}, []int32{2, 3}},
		{"interleaved", []int32{1, 4, 9}, []int32{0, 4, 5, 12}, []int32{0, 1, 4, 5, 9, 12}},
		{"identical", []int32{3, 6}, []int32{3, 6}, []int32{3, 6}},
		{"insert after", []int32{1, 2}, []int32{7, 8}, []int32{1, 2, 7, 8}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MergeSorted(tt.base, tt.insert))
		})
	}
}

func TestMergeSortedEmptyInsertReturnsBase(t *testing.T) {
	base := []int32{1, 2, 3}
	got := MergeSorted(base, []int32{})
	assert.Equal(t, &base[0], &got[0])
}

func TestEnsureParentsPresent(t *testing.T) {
	got := EnsureParentsPresent([]int32{6, 3}, body)
	assert.Equal(t, []int32{0, 1, 2, 3, 4, 5, 6}, got)
	require.NoError(t, Validate(got, body))

	assert.Equal(t, []int32{0}, EnsureParentsPresent([]int32{0}, body))
	assert.Empty(t, EnsureParentsPresent(nil, body))
	assert.Equal(t, []int32{0, 1, 7}, EnsureParentsPresent([]int32{7, 42, -3}, body))
}

func TestValidate(t *testing.T) {
	assert.NoError(t, Validate([]int32{0, 1, 4, 5}, body))
	assert.True(t, errors.Is(Validate([]int32{0, 1, 5}, body), ErrInvalidSet))
	assert.True(t, errors.Is(Validate([]int32{1, 0}, body), ErrInvalidSet))
	assert.True(t, errors.Is(Validate([]int32{0, 0}, body), ErrInvalidSet))
	assert.True(t, errors.Is(Validate([]int32{0, 10}, body), ErrInvalidSet))
}

func randomSubset(r *rand.Rand, n int) []int32 {
	var out []int32
	for i := 0; i < n; i++ {
		if r.Intn(3) == 0 {
			out = append(out, int32(i))
		}
	}
	return out
}

func TestMergeThenCloseIsOrderIndependent(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	for iter := 0; iter < 200; iter++ {
		lists := [][]int32{
			randomSubset(r, len(body)),
			randomSubset(r, len(body)),
			randomSubset(r, len(body)),
		}

		var forward []int32
		for _, l := range lists {
			forward = MergeSorted(forward, l)
		}
		var backward []int32
		for i := len(lists) - 1; i >= 0; i-- {
			backward = MergeSorted(backward, lists[i])
		}

		a := EnsureParentsPresent(forward, body)
		b := EnsureParentsPresent(backward, body)
		require.Equal(t, a, b)
		require.NoError(t, Validate(a, body))
		require.True(t, slices.IsSorted(a))
		for _, l := range lists {
			for _, bone := range l {
				require.True(t, Set(a).Contains(bone))
			}
		}
	}
}

func TestCompute(t *testing.T) {
	mirror := []int32{-1, -1, -1, -1, 7, 8, 9, 4, 5, 6}

	t.Run("lod only", func(t *testing.T) {
		got := Compute(body, Inputs{LOD: []int32{0, 1, 2, 3}})
		assert.Equal(t, Set{0, 1, 2, 3}, got)
	})

	t.Run("physics gated", func(t *testing.T) {
		in := Inputs{LOD: []int32{0, 1}, PhysicsBones: []int32{6}}
		assert.Equal(t, Set{0, 1}, Compute(body, in))
		in.IncludePhysics = true
		assert.Equal(t, Set{0, 1, 4, 5, 6}, Compute(body, in))
	})

	t.Run("mirror partners", func(t *testing.T) {
		got := Compute(body, Inputs{LOD: []int32{0, 1, 4, 5}, MirrorTable: mirror})
		assert.Equal(t, Set{0, 1, 4, 5, 7, 8}, got)
	})

	t.Run("sockets and shadows", func(t *testing.T) {
		in := Inputs{LOD: []int32{0}, SocketBones: []int32{9}, ShadowBones: []int32{3}}
		assert.Equal(t, Set{0, 1, 7, 8, 9}, Compute(body, in))
		in.CastShadow = true
		assert.Equal(t, Set{0, 1, 2, 3, 7, 8, 9}, Compute(body, in))
	})
}
