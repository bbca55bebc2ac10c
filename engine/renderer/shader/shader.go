package shader

import (
	"fmt"

	"github.com/cogentcore/webgpu/wgpu"
	"github.com/pkg/errors"
)

// ErrNoEntryPoint is returned when WGSL source declares no @compute function.
var ErrNoEntryPoint = errors.New("no @compute entry point")

// BindingError reports a binding that a compute kernel cannot use.
type BindingError struct {
	Group   int
	Binding int
	Name    string
}

func (e *BindingError) Error() string {
	return fmt.Sprintf("binding %s (@group(%d) @binding(%d)) is not a buffer", e.Name, e.Group, e.Binding)
}

// shader is the implementation of the Shader interface.
// It holds the parsed data of one compute kernel required for pipeline creation.
type shader struct {
	key                        string
	source                     string
	bindGroupLayoutDescriptors map[int]wgpu.BindGroupLayoutDescriptor
	bindingVarNames            map[int]map[int]string
	workGroupSize              [3]uint32
	entryPoint                 string
	module                     *wgpu.ShaderModuleDescriptor
}

// Shader defines the interface for a loaded and parsed WGSL compute kernel. It exposes the
// kernel's key, source, entry point, workgroup size and the bind group layouts the skinning
// backend needs to create pipelines and bind groups.
type Shader interface {
	// Key retrieves the unique identifier for this shader, used for caching and lookups.
	//
	// Returns:
	//   - string: the shader's unique key
	Key() string

	// Source retrieves the WGSL shader source code.
	//
	// Returns:
	//   - string: the WGSL source code of the shader
	Source() string

	// EntryPoint returns the @compute function name.
	//
	// Returns:
	//   - string: the entry point name
	EntryPoint() string

	// WorkgroupSize returns the @workgroup_size dimensions, [1, 1, 1] when unspecified.
	//
	// Returns:
	//   - [3]uint32: the workgroup size as [x, y, z]
	WorkgroupSize() [3]uint32

	// Workgroups returns the number of workgroups along x needed to cover n invocations.
	//
	// Parameters:
	//   - n: the invocation count
	//
	// Returns:
	//   - uint32: ceil(n / WorkgroupSize()[0])
	Workgroups(n uint32) uint32

	// BindGroupLayoutDescriptor retrieves the layout descriptor of one bind group.
	//
	// Parameters:
	//   - group: the group index
	//
	// Returns:
	//   - wgpu.BindGroupLayoutDescriptor: the descriptor, or an empty descriptor if the group is unused
	BindGroupLayoutDescriptor(group int) wgpu.BindGroupLayoutDescriptor

	// BindGroupLayoutDescriptors retrieves all parsed bind group layout descriptors keyed by group index.
	//
	// Returns:
	//   - map[int]wgpu.BindGroupLayoutDescriptor: descriptors keyed by group index
	BindGroupLayoutDescriptors() map[int]wgpu.BindGroupLayoutDescriptor

	// BindGroupVarName retrieves the variable name declared at a group and binding.
	//
	// Parameters:
	//   - group: the bind group index
	//   - binding: the binding index within the group
	//
	// Returns:
	//   - string: the variable name, or "" if not found
	BindGroupVarName(group, binding int) string

	// BindGroupFromVarName retrieves the binding index of a variable within a group.
	//
	// Parameters:
	//   - group: the bind group index
	//   - varName: the variable name
	//
	// Returns:
	//   - int: the binding index, or -1 if not found
	//   - bool: true if the variable was found
	BindGroupFromVarName(group int, varName string) (int, bool)

	// Module returns the shader module descriptor built from the source.
	//
	// Returns:
	//   - *wgpu.ShaderModuleDescriptor: the descriptor containing the WGSL code and label
	Module() *wgpu.ShaderModuleDescriptor
}

var _ Shader = &shader{}

// NewShader parses a WGSL compute kernel.
//
// Parameters:
//   - key: a unique identifier for the shader, used for caching and lookups
//   - source: the WGSL source
//
// Returns:
//   - Shader: the parsed shader
//   - error: ErrNoEntryPoint or a *BindingError if the source cannot be used as a kernel
func NewShader(key, source string) (Shader, error) {
	entry := parseEntryPoint(source)
	if entry == "" {
		return nil, errors.Wrapf(ErrNoEntryPoint, "shader %s", key)
	}
	layouts, names, err := parseBindGroupLayouts(source)
	if err != nil {
		return nil, errors.Wrapf(err, "shader %s", key)
	}
	return &shader{
		key:                        key,
		source:                     source,
		bindGroupLayoutDescriptors: layouts,
		bindingVarNames:            names,
		workGroupSize:              parseWorkgroupSize(source),
		entryPoint:                 entry,
		module: &wgpu.ShaderModuleDescriptor{
			Label:          key,
			WGSLDescriptor: &wgpu.ShaderModuleWGSLDescriptor{Code: source},
		},
	}, nil
}

func (s *shader) Key() string {
	return s.key
}

func (s *shader) Source() string {
	return s.source
}

func (s *shader) EntryPoint() string {
	return s.entryPoint
}

func (s *shader) WorkgroupSize() [3]uint32 {
	return s.workGroupSize
}

func (s *shader) Workgroups(n uint32) uint32 {
	size := s.workGroupSize[0]
	if size == 0 {
		size = 1
	}
	return (n + size - 1) / size
}

func (s *shader) BindGroupLayoutDescriptor(group int) wgpu.BindGroupLayoutDescriptor {
	return s.bindGroupLayoutDescriptors[group]
}

func (s *shader) BindGroupLayoutDescriptors() map[int]wgpu.BindGroupLayoutDescriptor {
	return s.bindGroupLayoutDescriptors
}

func (s *shader) BindGroupVarName(group, binding int) string {
	if names, ok := s.bindingVarNames[group]; ok {
		return names[binding]
	}
	return ""
}

func (s *shader) BindGroupFromVarName(group int, varName string) (int, bool) {
	for binding, name := range s.bindingVarNames[group] {
		if name == varName {
			return binding, true
		}
	}
	return -1, false
}

func (s *shader) Module() *wgpu.ShaderModuleDescriptor {
	return s.module
}
