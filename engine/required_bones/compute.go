package required_bones

import "slices"

// Inputs gathers every list that contributes to a mesh instance's required bones.
// All lists except MirrorTable must be strictly increasing.
type Inputs struct {
	// LOD is the required-bone list of the active level of detail.
	LOD []int32

	// PhysicsBones are bones carrying bodies; folded in when physics blending is active.
	PhysicsBones []int32

	// IncludePhysics enables PhysicsBones.
	IncludePhysics bool

	// MirrorTable maps a bone to its mirrored counterpart (-1 for none); nil disables mirroring.
	MirrorTable []int32

	// SocketBones are bones referenced by sockets with attachments.
	SocketBones []int32

	// ShadowBones are bones the shadow pass needs; folded in when the mesh casts shadows.
	ShadowBones []int32

	// CastShadow enables ShadowBones.
	CastShadow bool
}

// Compute folds all inputs into a single parent-closed set for skel.
// The order in which lists are folded does not affect the result.
//
// Parameters:
//   - skel: the bone hierarchy
//   - in: the contributing lists
//
// Returns:
//   - Set: the required bones
func Compute(skel Hierarchy, in Inputs) Set {
	set := slices.Clone(in.LOD)
	if in.IncludePhysics {
		set = MergeSorted(set, in.PhysicsBones)
	}
	set = MergeSorted(set, in.SocketBones)
	if in.CastShadow {
		set = MergeSorted(set, in.ShadowBones)
	}
	if len(in.MirrorTable) > 0 {
		set = MergeSorted(set, mirrorPartners(set, in.MirrorTable))
	}
	return EnsureParentsPresent(set, skel)
}

func mirrorPartners(set []int32, table []int32) []int32 {
	var partners []int32
	for _, b := range set {
		if int(b) >= len(table) {
			continue
		}
		if m := table[b]; m >= 0 && !Set(set).Contains(m) {
			partners = append(partners, m)
		}
	}
	slices.Sort(partners)
	return slices.Compact(partners)
}
