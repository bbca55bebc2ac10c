package pose

import (
	"github.com/Carmen-Shannon/oxy-anim/common"
	"github.com/Carmen-Shannon/oxy-anim/engine/model"
)

// Pose is the output of one graph evaluation.
type Pose struct {
	// Local holds one bone-space transform per skeleton bone. Evaluation writes only the
	// required bones; the rest keep their previous values.
	Local []common.Transform

	// Curves holds named scalar curve values sampled during evaluation.
	Curves map[string]float32
}

func (p *Pose) resetCurves() {
	if p.Curves == nil {
		p.Curves = make(map[string]float32)
		return
	}
	clear(p.Curves)
}

// AnimationGraph produces local poses for a skeleton. Update and Evaluate are called from a
// worker goroutine while an evaluation is in flight, never concurrently with each other.
type AnimationGraph interface {
	// Skeleton returns the skeleton the graph was authored for.
	//
	// Returns:
	//   - *model.Skeleton: the target skeleton
	Skeleton() *model.Skeleton

	// NeedsUpdate reports whether UpdateAnimation has any work to do.
	//
	// Returns:
	//   - bool: true if the graph should be advanced this frame
	NeedsUpdate() bool

	// CanEvaluate reports whether the graph can produce a pose right now.
	//
	// Returns:
	//   - bool: false makes the coordinator fall back to the reference pose
	CanEvaluate() bool

	// UpdateAnimation advances graph time and state.
	//
	// Parameters:
	//   - deltaTime: seconds to advance, including repaid skipped time
	UpdateAnimation(deltaTime float32)

	// EvaluateAnimation writes local transforms for the required bones into out.Local and
	// curve values into out.Curves.
	//
	// Parameters:
	//   - required: ascending, parent-closed bone indices
	//   - out: destination pose sized to the skeleton
	//
	// Returns:
	//   - error: an error if evaluation failed; the reference pose is used instead
	EvaluateAnimation(required []int32, out *Pose) error
}

// RootMotionSource is implemented by graphs that extract root motion during UpdateAnimation.
type RootMotionSource interface {
	// ConsumeRootMotion returns the root motion accumulated since the last call and resets it.
	//
	// Returns:
	//   - common.Transform: the accumulated delta
	//   - bool: false if no root motion was extracted
	ConsumeRootMotion() (common.Transform, bool)
}

// PhysicsBlender overlays simulated bone transforms onto the animated pose.
type PhysicsBlender interface {
	// SimulatedBones returns the ascending bones driven by simulation.
	SimulatedBones() []int32

	// BlendWeight returns the overlay weight in [0, 1]; 0 disables blending.
	BlendWeight() float32

	// SimulatedTransform returns the component-space transform of a simulated bone.
	SimulatedTransform(bone int32) (common.Transform, bool)

	// UpdateKinematicBodies receives the finalized component-space pose after each flip.
	UpdateKinematicBodies(componentSpace []common.Transform)
}

// CurveSink receives curve values after each completed evaluation.
type CurveSink interface {
	ApplyCurves(curves map[string]float32)
}

// RootMotionSink receives extracted root motion on the owning thread.
type RootMotionSink interface {
	ApplyRootMotion(delta common.Transform)
}

// Follower is notified when a leader publishes a new pose.
type Follower interface {
	OnLeaderPoseUpdated(generation uint64)
}
