package skeletal_mesh

import (
	"github.com/Carmen-Shannon/oxy-anim/common"
	"github.com/Carmen-Shannon/oxy-anim/engine/skin_cache"
)

// SectionRenderData is what a draw of one render section needs.
type SectionRenderData struct {
	// Section is the section index within the LOD.
	Section int

	// BoneMatrices holds one column-major skinning matrix (component space × inverse bind)
	// per entry of the section's bone map.
	BoneMatrices []float32

	// Cached is true when SlotKey addresses skinned vertices produced by the skin cache.
	Cached bool

	// SlotKey locates the section's skinned vertices; valid only when Cached is set.
	SlotKey skin_cache.SlotKey

	// Fallback is true when the skin cache was requested but could not serve the section,
	// so the draw must skin with BoneMatrices itself.
	Fallback bool
}

// RenderData is the per-frame hand-off from a mesh to the renderer.
type RenderData struct {
	// Frame is the frame the data was built for.
	Frame uint64

	// Generation is the transform buffer generation the data was copied from.
	Generation uint64

	// LOD is the level of detail the sections belong to.
	LOD int

	// World places the component in the world.
	World common.Transform

	// ComponentSpace is a copy of the visible component-space pose, one transform per bone.
	// It is reused by the next BuildRenderData call.
	ComponentSpace []common.Transform

	// Sections holds one entry per render section of the LOD.
	Sections []SectionRenderData
}

// CachedSections returns the number of sections served by the skin cache.
func (r *RenderData) CachedSections() int {
	n := 0
	for i := range r.Sections {
		if r.Sections[i].Cached {
			n++
		}
	}
	return n
}

// FallbackSections returns the number of sections that fell back to per-draw skinning.
func (r *RenderData) FallbackSections() int {
	n := 0
	for i := range r.Sections {
		if r.Sections[i].Fallback {
			n++
		}
	}
	return n
}
