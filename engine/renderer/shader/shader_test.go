package shader

import (
	"testing"

	"github.com/cogentcore/webgpu/wgpu"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const kernel = `
struct Params {
    count: u32,
}

// @group(3) @binding(0) var<uniform> commented: Params;
@group(0) @binding(0) var<uniform> params: Params;
@group(0) @binding(2) var<storage, read_write> out_values: array<f32>;
@group(0) @binding(1) var<storage, read> in_values: array<f32>;

/* @compute fn decoy() {} */
@compute @workgroup_size(64)
fn double_main(@builtin(global_invocation_id) id: vec3<u32>) {
    if (id.x >= params.count) { return; }
    out_values[id.x] = in_values[id.x] * 2.0;
}
`

func TestNewShaderParsesKernel(t *testing.T) {
	s, err := NewShader("double", kernel)
	require.NoError(t, err)

	assert.Equal(t, "double_main", s.EntryPoint())
	assert.Equal(t, [3]uint32{64, 1, 1}, s.WorkgroupSize())
	assert.Equal(t, uint32(2), s.Workgroups(65))
	assert.Equal(t, uint32(0), s.Workgroups(0))

	require.Len(t, s.BindGroupLayoutDescriptors(), 1)
	entries := s.BindGroupLayoutDescriptor(0).Entries
	require.Len(t, entries, 3)
	assert.Equal(t, wgpu.BufferBindingTypeUniform, entries[0].Buffer.Type)
	assert.Equal(t, wgpu.BufferBindingTypeReadOnlyStorage, entries[1].Buffer.Type)
	assert.Equal(t, wgpu.BufferBindingTypeStorage, entries[2].Buffer.Type)
	for _, e := range entries {
		assert.Equal(t, wgpu.ShaderStageCompute, e.Visibility)
	}

	assert.Equal(t, "in_values", s.BindGroupVarName(0, 1))
	b, ok := s.BindGroupFromVarName(0, "out_values")
	assert.True(t, ok)
	assert.Equal(t, 2, b)
	_, ok = s.BindGroupFromVarName(0, "commented")
	assert.False(t, ok)
	assert.Equal(t, "double", s.Module().Label)
}

func TestWorkgroupSizeDefaults(t *testing.T) {
	assert.Equal(t, [3]uint32{1, 1, 1}, parseWorkgroupSize("@compute fn main() {}"))
	assert.Equal(t, [3]uint32{8, 4, 1}, parseWorkgroupSize("@compute @workgroup_size(8, 4) fn main() {}"))
}

func TestNewShaderRejectsNonKernels(t *testing.T) {
	_, err := NewShader("vertex", "@vertex fn main() {}")
	assert.True(t, errors.Is(err, ErrNoEntryPoint))

	_, err = NewShader("texture", `
@group(0) @binding(0) var tex: texture_2d<f32>;
@compute @workgroup_size(1) fn main() {}
`)
	var be *BindingError
	require.True(t, errors.As(err, &be))
	assert.Equal(t, "tex", be.Name)
}
