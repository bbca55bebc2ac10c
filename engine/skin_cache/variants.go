package skin_cache

import "github.com/Carmen-Shannon/oxy-anim/engine/model"

// Variant identifies the skinning input layout of a render section.
type Variant int

const (
	// VariantDefault skins with up to four influences per vertex.
	VariantDefault Variant = iota
	// VariantExtraInfluences skins with up to eight influences, reading 5..8 from a parallel stream.
	VariantExtraInfluences
	// VariantMorph applies weighted morph deltas before skinning and recomputes tangents.
	VariantMorph
	// VariantCloth blends simulated cloth positions in after skinning.
	VariantCloth

	variantCount
)

// Capabilities describe what a variant's skinning kernel does.
type Capabilities struct {
	Name          string
	MaxInfluences int
	Morph         bool
	Cloth         bool
	// TangentRecompute allows the per-triangle tangent pass for sections that request it.
	TangentRecompute bool
}

var capabilityTable = [variantCount]Capabilities{
	VariantDefault:         {Name: "default", MaxInfluences: 4, TangentRecompute: true},
	VariantExtraInfluences: {Name: "extra_influences", MaxInfluences: 8, TangentRecompute: true},
	VariantMorph:           {Name: "morph", MaxInfluences: 4, Morph: true, TangentRecompute: true},
	VariantCloth:           {Name: "cloth", MaxInfluences: 4, Cloth: true},
}

// Capabilities returns the capability row of v. Unknown variants use the default row.
func (v Variant) Capabilities() Capabilities {
	if v < 0 || v >= variantCount {
		return capabilityTable[VariantDefault]
	}
	return capabilityTable[v]
}

// String returns the variant name.
func (v Variant) String() string {
	return v.Capabilities().Name
}

// SelectVariant picks the variant for a render section.
//
// Parameters:
//   - section: the render section
//   - morphing: whether morph targets are active on the section this frame
//
// Returns:
//   - Variant: the chosen variant
func SelectVariant(section *model.RenderSection, morphing bool) Variant {
	switch {
	case section.Cloth:
		return VariantCloth
	case morphing:
		return VariantMorph
	case section.MaxBoneInfluences > 4:
		return VariantExtraInfluences
	default:
		return VariantDefault
	}
}
