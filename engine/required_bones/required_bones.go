// Package required_bones maintains the minimal, parent-closed set of bone indices a mesh
// instance must evaluate at its current level of detail.
package required_bones

import (
	"github.com/pkg/errors"
)

// ErrInvalidSet is returned by Validate when a set is unsorted, out of range or not parent closed.
var ErrInvalidSet = errors.New("invalid required bone set")

// Hierarchy is the read-only view of a skeleton needed to close a set over its parents.
// *model.Skeleton implements it.
type Hierarchy interface {
	// BoneCount returns the number of bones.
	BoneCount() int

	// ParentIndex returns the parent of bone, or -1 for roots.
	ParentIndex(bone int32) int32
}

// Set is a strictly increasing list of bone indices.
type Set []int32

// Contains reports whether bone is a member of the set.
func (s Set) Contains(bone int32) bool {
	lo, hi := 0, len(s)
	for lo < hi {
		mid := int(uint(lo+hi) >> 1)
		switch {
		case s[mid] == bone:
			return true
		case s[mid] < bone:
			lo = mid + 1
		default:
			hi = mid
		}
	}
	return false
}

// MergeSorted returns the union of two strictly increasing index lists, keeping the result
// strictly increasing. An empty insert returns base unchanged.
//
// Parameters:
//   - base: strictly increasing indices
//   - insert: strictly increasing indices to fold in
//
// Returns:
//   - []int32: the sorted union
func MergeSorted(base, insert []int32) []int32 {
	if len(insert) == 0 {
		return base
	}
	out := make([]int32, 0, len(base)+len(insert))
	i, j := 0, 0
	for i < len(base) && j < len(insert) {
		switch {
		case base[i] < insert[j]:
			out = append(out, base[i])
			i++
		case base[i] > insert[j]:
			out = append(out, insert[j])
			j++
		default:
			out = append(out, base[i])
			i++
			j++
		}
	}
	out = append(out, base[i:]...)
	out = append(out, insert[j:]...)
	return out
}

// EnsureParentsPresent inserts every missing ancestor of every member so the set is closed
// under "parent of". Members out of the hierarchy's range are dropped.
//
// Parameters:
//   - set: strictly increasing bone indices
//   - skel: the bone hierarchy
//
// Returns:
//   - []int32: the parent-closed, strictly increasing set
func EnsureParentsPresent(set []int32, skel Hierarchy) []int32 {
	n := skel.BoneCount()
	if n == 0 {
		return nil
	}
	member := make([]bool, n)
	for _, b := range set {
		if b < 0 || int(b) >= n {
			continue
		}
		for p := b; p >= 0 && !member[p]; p = skel.ParentIndex(p) {
			member[p] = true
		}
	}
	out := make([]int32, 0, len(set))
	for i, ok := range member {
		if ok {
			out = append(out, int32(i))
		}
	}
	return out
}

// Validate checks that set is strictly increasing, in range and parent closed.
//
// Parameters:
//   - set: the set to check
//   - skel: the bone hierarchy
//
// Returns:
//   - error: a wrapped ErrInvalidSet describing the first violation, or nil
func Validate(set []int32, skel Hierarchy) error {
	n := int32(skel.BoneCount())
	for i, b := range set {
		if b < 0 || b >= n {
			return errors.Wrapf(ErrInvalidSet, "bone %d out of range [0,%d)", b, n)
		}
		if i > 0 && set[i-1] >= b {
			return errors.Wrapf(ErrInvalidSet, "not strictly increasing at position %d (%d >= %d)", i, set[i-1], b)
		}
		if p := skel.ParentIndex(b); p >= 0 && !Set(set).Contains(p) {
			return errors.Wrapf(ErrInvalidSet, "bone %d is missing its parent %d", b, p)
		}
	}
	return nil
}
