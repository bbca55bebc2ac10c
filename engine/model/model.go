package model

import "slices"

// model is the implementation of the Model interface.
type model struct {
	name           string
	skeleton       *Skeleton
	animations     []*AnimationClip
	lods           []LODInfo
	sockets        []Socket
	shadowBones    []int32
	mirrorTable    []int32
	physicsBones   []int32
	boundingRadius float32
}

// Model defines the interface for a skeletal mesh asset.
// A Model is immutable once built and is shared by every component instance that renders it:
// skeleton hierarchy, reference pose, per-LOD render data and required-bone lists, sockets,
// shadow-caster bones, the mirror table and the bones carrying physics bodies.
type Model interface {
	// Name retrieves the model identifier.
	//
	// Returns:
	//   - string: the model name
	Name() string

	// Skeleton retrieves the bone hierarchy for this model.
	//
	// Returns:
	//   - *Skeleton: the skeleton or nil
	Skeleton() *Skeleton

	// Animations retrieves all animation clips bundled with this model.
	//
	// Returns:
	//   - []*AnimationClip: the animation clips
	Animations() []*AnimationClip

	// AnimationNames returns the names of all animation clips.
	//
	// Returns:
	//   - []string: the animation clip names
	AnimationNames() []string

	// GetAnimationIndex returns the index of an animation by name, or -1 if not found.
	//
	// Parameters:
	//   - name: the animation clip name to search for
	//
	// Returns:
	//   - int: the animation index, or -1 if not found
	GetAnimationIndex(name string) int

	// LODCount returns the number of levels of detail.
	//
	// Returns:
	//   - int: the LOD count
	LODCount() int

	// LOD returns the render data of a level of detail, clamping lod to the valid range.
	// Returns nil if the model has no LODs.
	//
	// Parameters:
	//   - lod: the requested level of detail
	//
	// Returns:
	//   - *LODInfo: the LOD data or nil
	LOD(lod int) *LODInfo

	// Sockets returns the sockets declared on the mesh.
	//
	// Returns:
	//   - []Socket: the sockets
	Sockets() []Socket

	// SocketBones resolves socket bone names to indices, skipping sockets whose bone is missing.
	//
	// Returns:
	//   - []int32: bone indices, ascending and unique
	//   - []string: names of sockets whose bone could not be found
	SocketBones() ([]int32, []string)

	// ShadowBones returns bones that must be evaluated when the mesh casts shadows.
	//
	// Returns:
	//   - []int32: bone indices, ascending
	ShadowBones() []int32

	// MirrorTable maps each bone to its mirrored counterpart, or -1 when it has none.
	//
	// Returns:
	//   - []int32: one entry per bone, or nil if the mesh has no mirror table
	MirrorTable() []int32

	// PhysicsBones returns bones that carry physics bodies.
	//
	// Returns:
	//   - []int32: bone indices, ascending
	PhysicsBones() []int32

	// BoundingRadius returns the bounding sphere radius measured from the LOD 0 vertices.
	//
	// Returns:
	//   - float32: the bounding radius
	BoundingRadius() float32
}

var _ Model = &model{}

// NewModel creates a new Model instance with the specified options applied.
//
// Parameters:
//   - options: a variadic list of ModelBuilderOption functions to configure the Model
//
// Returns:
//   - Model: a new instance of Model configured with the provided options
func NewModel(options ...ModelBuilderOption) Model {
	m := &model{}
	for _, opt := range options {
		opt(m)
	}
	if m.boundingRadius == 0 && len(m.lods) > 0 {
		m.boundingRadius = ComputeBoundingRadius(m.lods[0].Vertices)
	}
	return m
}

func (m *model) Name() string {
	return m.name
}

func (m *model) Skeleton() *Skeleton {
	return m.skeleton
}

func (m *model) Animations() []*AnimationClip {
	return m.animations
}

func (m *model) AnimationNames() []string {
	names := make([]string, len(m.animations))
	for i, anim := range m.animations {
		names[i] = anim.Name
	}
	return names
}

func (m *model) GetAnimationIndex(name string) int {
	for i, anim := range m.animations {
		if anim.Name == name {
			return i
		}
	}
	return -1
}

func (m *model) LODCount() int {
	return len(m.lods)
}

func (m *model) LOD(lod int) *LODInfo {
	if len(m.lods) == 0 {
		return nil
	}
	lod = max(0, min(lod, len(m.lods)-1))
	return &m.lods[lod]
}

func (m *model) Sockets() []Socket {
	return m.sockets
}

func (m *model) SocketBones() ([]int32, []string) {
	if m.skeleton == nil {
		return nil, nil
	}
	seen := make(map[int32]struct{}, len(m.sockets))
	var bones []int32
	var missing []string
	for _, s := range m.sockets {
		idx := m.skeleton.FindBone(s.BoneName)
		if idx < 0 {
			missing = append(missing, s.Name)
			continue
		}
		if _, ok := seen[idx]; ok {
			continue
		}
		seen[idx] = struct{}{}
		bones = append(bones, idx)
	}
	slices.Sort(bones)
	return bones, missing
}

func (m *model) ShadowBones() []int32 {
	return m.shadowBones
}

func (m *model) MirrorTable() []int32 {
	return m.mirrorTable
}

func (m *model) PhysicsBones() []int32 {
	return m.physicsBones
}

func (m *model) BoundingRadius() float32 {
	return m.boundingRadius
}
