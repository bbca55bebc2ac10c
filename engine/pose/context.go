package pose

import (
	"github.com/Carmen-Shannon/oxy-anim/common"
	"github.com/Carmen-Shannon/oxy-anim/engine/model"
)

// EvaluationContext carries one tick attempt from dispatch to completion.
// Fields written by the task body are read by the owner only after the task's Handle is done
// or its completion has been posted.
type EvaluationContext struct {
	Serial     uint64
	Frame      uint64
	Generation uint64

	DoUpdate      bool
	DoEvaluate    bool
	DoInterpolate bool

	DeltaTime          float32
	InterpolationAlpha float32
	RootMotionAlpha    float32

	Required []int32

	// Pose is the scratch bone-space pose written by evaluation.
	Pose Pose
	// ComponentSpace is the back buffer the task fills when componentSpaceInTask is set.
	ComponentSpace []common.Transform

	RootMotion    common.Transform
	HasRootMotion bool

	graph                AnimationGraph
	skeleton             *model.Skeleton
	componentSpaceInTask bool
	componentSpaceFilled bool
	usedReferencePose    bool
	err                  error
}

// reset clears per-tick state while keeping allocated buffers.
func (c *EvaluationContext) reset() {
	c.DoUpdate, c.DoEvaluate, c.DoInterpolate = false, false, false
	c.DeltaTime, c.InterpolationAlpha, c.RootMotionAlpha = 0, 0, 0
	c.Required = nil
	c.ComponentSpace = nil
	c.RootMotion = common.IdentityTransform()
	c.HasRootMotion = false
	c.graph = nil
	c.componentSpaceInTask = false
	c.componentSpaceFilled = false
	c.usedReferencePose = false
	c.err = nil
	c.Pose.resetCurves()
}

// Err returns the evaluation error recorded by the task body, if any.
func (c *EvaluationContext) Err() error {
	return c.err
}

// FillComponentSpace composes local transforms down the hierarchy for the given bones:
// CS[root] = BS[root] and CS[i] = BS[i] ∘ CS[parent(i)]. required must be parent closed and
// ascending so every parent is written before its children.
//
// Parameters:
//   - skel: the skeleton
//   - required: ascending, parent-closed bone indices
//   - local: bone-space transforms, one per bone
//   - out: component-space transforms, one per bone
func FillComponentSpace(skel *model.Skeleton, required []int32, local, out []common.Transform) {
	for _, b := range required {
		p := skel.Bones[b].ParentIndex
		if p < 0 {
			out[b] = local[b]
			continue
		}
		out[b] = local[b].Mul(out[p])
	}
}

// fillComponentSpaceWithPhysics composes like FillComponentSpace and blends simulated bones toward
// their physics transforms; descendants of blended bones follow the blended result.
func fillComponentSpaceWithPhysics(skel *model.Skeleton, required []int32, local, out []common.Transform, physics PhysicsBlender) {
	weight := physics.BlendWeight()
	simulated := physics.SimulatedBones()
	si := 0
	for _, b := range required {
		p := skel.Bones[b].ParentIndex
		if p < 0 {
			out[b] = local[b]
		} else {
			out[b] = local[b].Mul(out[p])
		}
		for si < len(simulated) && simulated[si] < b {
			si++
		}
		if si < len(simulated) && simulated[si] == b {
			if sim, ok := physics.SimulatedTransform(b); ok {
				out[b] = out[b].Blend(sim, weight)
			}
		}
	}
}
