package renderer

import (
	_ "embed"

	"github.com/Carmen-Shannon/oxy-anim/engine/renderer/shader"
)

const (
	// KernelSkin skins one section into a frame slot.
	KernelSkin = "skin"
	// KernelTangentAccumulate accumulates per-triangle normals and tangents.
	KernelTangentAccumulate = "tangent_accumulate"
	// KernelTangentNormalize folds the accumulation back into the slot.
	KernelTangentNormalize = "tangent_normalize"
)

var (
	//go:embed kernels/skin.wgsl
	skinSource string
	//go:embed kernels/tangent_accumulate.wgsl
	tangentAccumulateSource string
	//go:embed kernels/tangent_normalize.wgsl
	tangentNormalizeSource string
)

// skinningKernels parses the embedded skinning kernels.
func skinningKernels() ([]shader.Shader, error) {
	sources := []struct{ key, source string }{
		{KernelSkin, skinSource},
		{KernelTangentAccumulate, tangentAccumulateSource},
		{KernelTangentNormalize, tangentNormalizeSource},
	}
	out := make([]shader.Shader, 0, len(sources))
	for _, s := range sources {
		k, err := shader.NewShader(s.key, s.source)
		if err != nil {
			return nil, err
		}
		out = append(out, k)
	}
	return out, nil
}

// skinParams mirrors SkinParams in skin.wgsl.
type skinParams struct {
	VertexCount   uint32
	BaseVertex    uint32
	StreamOffset  uint32
	MaxInfluences uint32
	Morph         uint32
	Cloth         uint32
	ClothBlend    float32
	BoneCount     uint32
}

// tangentParams mirrors TangentParams in the tangent kernels.
type tangentParams struct {
	VertexCount   uint32
	BaseVertex    uint32
	StreamOffset  uint32
	TriangleCount uint32
}

func boolU32(b bool) uint32 {
	if b {
		return 1
	}
	return 0
}
