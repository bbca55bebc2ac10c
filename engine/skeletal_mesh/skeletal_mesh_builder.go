package skeletal_mesh

import (
	"github.com/Carmen-Shannon/oxy-anim/common"
	"github.com/Carmen-Shannon/oxy-anim/engine/animator"
	"github.com/Carmen-Shannon/oxy-anim/engine/logging"
	"github.com/Carmen-Shannon/oxy-anim/engine/model"
	"github.com/Carmen-Shannon/oxy-anim/engine/pose"
	"github.com/google/uuid"
)

// SkeletalMeshBuilderOption is a functional option for configuring a SkeletalMesh during construction.
type SkeletalMeshBuilderOption func(*skeletalMesh)

// WithID sets the ID of the SkeletalMesh.
//
// Parameters:
//   - id: unique identifier for the mesh
//
// Returns:
//   - SkeletalMeshBuilderOption: functional option to set the ID
func WithID(id uuid.UUID) SkeletalMeshBuilderOption {
	return func(m *skeletalMesh) {
		m.id = id
	}
}

// WithOwner sets the owning entity. Meshes without an owner form a group of their own.
//
// Parameters:
//   - owner: the owner ID
//
// Returns:
//   - SkeletalMeshBuilderOption: functional option to set the owner
func WithOwner(owner uuid.UUID) SkeletalMeshBuilderOption {
	return func(m *skeletalMesh) {
		m.owner = owner
	}
}

// WithModel sets the model the coordinator is bound to.
//
// Parameters:
//   - mdl: the model
//
// Returns:
//   - SkeletalMeshBuilderOption: functional option to set the model
func WithModel(mdl model.Model) SkeletalMeshBuilderOption {
	return func(m *skeletalMesh) {
		m.mdl = mdl
	}
}

// WithAnimator sets the animation graph driving the mesh.
//
// Parameters:
//   - anim: the animator; its skeleton must be compatible with the model's
//
// Returns:
//   - SkeletalMeshBuilderOption: functional option to set the animator
func WithAnimator(anim animator.Animator) SkeletalMeshBuilderOption {
	return func(m *skeletalMesh) {
		m.anim = anim
	}
}

// WithCoordinatorOptions passes options through to the mesh's pose coordinator, typically the
// world's task runner and completion queue.
//
// Parameters:
//   - options: coordinator options applied after the mesh's own
//
// Returns:
//   - SkeletalMeshBuilderOption: functional option to configure the coordinator
func WithCoordinatorOptions(options ...pose.CoordinatorBuilderOption) SkeletalMeshBuilderOption {
	return func(m *skeletalMesh) {
		m.coordOpts = append(m.coordOpts, options...)
	}
}

// WithSkinCache selects whether render data is skinned through the skin cache. Defaults to true.
//
// Parameters:
//   - enabled: whether to use the skin cache
//
// Returns:
//   - SkeletalMeshBuilderOption: functional option to set skin cache use
func WithSkinCache(enabled bool) SkeletalMeshBuilderOption {
	return func(m *skeletalMesh) {
		m.useSkinCache = enabled
	}
}

// WithCastShadow sets whether the mesh casts shadows, which adds the model's shadow bones to the
// required set. Defaults to true.
//
// Parameters:
//   - cast: whether the mesh casts shadows
//
// Returns:
//   - SkeletalMeshBuilderOption: functional option to set shadow casting
func WithCastShadow(cast bool) SkeletalMeshBuilderOption {
	return func(m *skeletalMesh) {
		m.castShadow = cast
	}
}

// WithLogger sets the logger.
//
// Parameters:
//   - logger: the logger
//
// Returns:
//   - SkeletalMeshBuilderOption: functional option to set the logger
func WithLogger(logger logging.Logger) SkeletalMeshBuilderOption {
	return func(m *skeletalMesh) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithTransform sets the initial world transform.
//
// Parameters:
//   - t: the world transform
//
// Returns:
//   - SkeletalMeshBuilderOption: functional option to set the transform
func WithTransform(t common.Transform) SkeletalMeshBuilderOption {
	return func(m *skeletalMesh) {
		m.world = t
	}
}

// WithHumanControlled marks the owner as player driven.
//
// Parameters:
//   - human: whether the owner is human controlled
//
// Returns:
//   - SkeletalMeshBuilderOption: functional option to set human control
func WithHumanControlled(human bool) SkeletalMeshBuilderOption {
	return func(m *skeletalMesh) {
		m.humanControlled = human
	}
}

// WithNeedsValidRootMotion marks the owner as consuming root motion every frame.
//
// Parameters:
//   - needs: whether root motion must be valid each frame
//
// Returns:
//   - SkeletalMeshBuilderOption: functional option to set the root motion requirement
func WithNeedsValidRootMotion(needs bool) SkeletalMeshBuilderOption {
	return func(m *skeletalMesh) {
		m.needsRootMotion = needs
	}
}

// WithRootMotionFromEverything marks the owner's root motion as sourced from every playing
// animation, which switches skipped frames to look-ahead accounting.
//
// Parameters:
//   - all: whether root motion comes from every animation source
//
// Returns:
//   - SkeletalMeshBuilderOption: functional option to set the root motion source
func WithRootMotionFromEverything(all bool) SkeletalMeshBuilderOption {
	return func(m *skeletalMesh) {
		m.rootMotionAll = all
	}
}

// WithEnabled sets whether the mesh ticks. Defaults to true.
//
// Parameters:
//   - enabled: whether the mesh ticks
//
// Returns:
//   - SkeletalMeshBuilderOption: functional option to set the enabled state
func WithEnabled(enabled bool) SkeletalMeshBuilderOption {
	return func(m *skeletalMesh) {
		m.enabled.Store(enabled)
	}
}
