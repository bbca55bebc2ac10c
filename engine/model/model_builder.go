package model

// ModelBuilderOption is a functional option for configuring a Model via NewModel.
type ModelBuilderOption func(*model)

// WithName is an option builder that sets the name of the Model.
//
// Parameters:
//   - name: the model identifier
//
// Returns:
//   - ModelBuilderOption: a function that applies the name option to a model
func WithName(name string) ModelBuilderOption {
	return func(m *model) {
		m.name = name
	}
}

// WithSkeleton is an option builder that sets the bone hierarchy of the Model.
//
// Parameters:
//   - skeleton: the skeleton to set
//
// Returns:
//   - ModelBuilderOption: a function that applies the skeleton option to a model
func WithSkeleton(skeleton *Skeleton) ModelBuilderOption {
	return func(m *model) {
		m.skeleton = skeleton
	}
}

// WithAnimations is an option builder that sets the animation clips of the Model.
//
// Parameters:
//   - animations: the animation clips to set
//
// Returns:
//   - ModelBuilderOption: a function that applies the animations option to a model
func WithAnimations(animations ...*AnimationClip) ModelBuilderOption {
	return func(m *model) {
		m.animations = append(m.animations, animations...)
	}
}

// WithLOD is an option builder that appends a level of detail. LODs are ordered from most to least detailed.
//
// Parameters:
//   - lod: the LOD data to append
//
// Returns:
//   - ModelBuilderOption: a function that appends the LOD to a model
func WithLOD(lod LODInfo) ModelBuilderOption {
	return func(m *model) {
		m.lods = append(m.lods, lod)
	}
}

// WithSockets is an option builder that sets the sockets of the Model.
//
// Parameters:
//   - sockets: the sockets to set
//
// Returns:
//   - ModelBuilderOption: a function that applies the sockets option to a model
func WithSockets(sockets ...Socket) ModelBuilderOption {
	return func(m *model) {
		m.sockets = append(m.sockets, sockets...)
	}
}

// WithShadowBones is an option builder that sets the bones required for shadow casting.
//
// Parameters:
//   - bones: ascending bone indices
//
// Returns:
//   - ModelBuilderOption: a function that applies the shadow bones option to a model
func WithShadowBones(bones ...int32) ModelBuilderOption {
	return func(m *model) {
		m.shadowBones = bones
	}
}

// WithMirrorTable is an option builder that sets the mirror table (one entry per bone, -1 for none).
//
// Parameters:
//   - table: the mirror table
//
// Returns:
//   - ModelBuilderOption: a function that applies the mirror table option to a model
func WithMirrorTable(table []int32) ModelBuilderOption {
	return func(m *model) {
		m.mirrorTable = table
	}
}

// WithPhysicsBones is an option builder that sets the bones carrying physics bodies.
//
// Parameters:
//   - bones: ascending bone indices
//
// Returns:
//   - ModelBuilderOption: a function that applies the physics bones option to a model
func WithPhysicsBones(bones ...int32) ModelBuilderOption {
	return func(m *model) {
		m.physicsBones = bones
	}
}

// WithBoundingRadius is an option builder that manually sets the bounding sphere radius.
// Use this to override the value computed from the LOD 0 vertices.
//
// Parameters:
//   - radius: the bounding radius to set
//
// Returns:
//   - ModelBuilderOption: a function that applies the bounding radius option to a model
func WithBoundingRadius(radius float32) ModelBuilderOption {
	return func(m *model) {
		m.boundingRadius = radius
	}
}
