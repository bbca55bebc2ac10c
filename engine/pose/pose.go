// Package pose coordinates per-instance skeletal pose evaluation: dispatching graph evaluation to
// worker goroutines, completing it on the owning thread, and publishing double-buffered
// component-space transforms.
package pose

import (
	"maps"
	"slices"
	"sync/atomic"

	"github.com/Carmen-Shannon/oxy-anim/common"
	"github.com/Carmen-Shannon/oxy-anim/engine/logging"
	"github.com/Carmen-Shannon/oxy-anim/engine/model"
	"github.com/Carmen-Shannon/oxy-anim/engine/required_bones"
	"github.com/Carmen-Shannon/oxy-anim/engine/update_rate"
	"github.com/pkg/errors"
)

// State is the evaluation state of a coordinator.
type State int32

const (
	// StateIdle means no evaluation is pending.
	StateIdle State = iota
	// StateDispatched means an evaluation task has been handed to a runner.
	StateDispatched
	// StateCompleting means the owning thread is folding the results in.
	StateCompleting
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateDispatched:
		return "dispatched"
	case StateCompleting:
		return "completing"
	default:
		return "unknown"
	}
}

// Phase tells the coordinator where in the frame a tick happens.
type Phase int

const (
	// PhaseUpdate is the world's animation phase; evaluation may run on workers.
	PhaseUpdate Phase = iota
	// PhaseImmediate forces inline evaluation (re-initialization, teardown, editor-style refresh).
	PhaseImmediate
)

// TickArgs are the per-frame inputs of Coordinator.Tick.
type TickArgs struct {
	Frame    uint64
	Decision update_rate.Decision
	Phase    Phase
}

// Stats are cumulative counters of a coordinator.
type Stats struct {
	Dispatched             uint64
	Evaluations            uint64
	Interpolations         uint64
	Flips                  uint64
	Discarded              uint64
	InFlightSkips          uint64
	ReferencePoseFallbacks uint64
	FollowerCopies         uint64
}

type pendingEvaluation struct {
	serial uint64
	ctx    *EvaluationContext
	handle *Handle
}

// coordinator is the implementation of the Coordinator interface.
type coordinator struct {
	logger          logging.Logger
	runner          TaskRunner
	queue           CompletionQueue
	parallel        bool
	blockOnInFlight bool

	state      atomic.Int32
	generation uint64
	serial     uint64

	mesh     model.Model
	skeleton *model.Skeleton
	refPose  []common.Transform
	allBones []int32
	graph    AnimationGraph

	lod           int
	castShadow    bool
	mirroring     bool
	required      required_bones.Set
	requiredDirty bool
	fullRefresh   bool

	boneSpace   []common.Transform
	cachedLocal []common.Transform
	cacheValid  bool
	hidden      []bool
	hiddenMask  []bool
	buffers     *TransformBuffers

	ctx     *EvaluationContext
	pending *pendingEvaluation
	curves  map[string]float32

	physics        PhysicsBlender
	curveSink      CurveSink
	rootMotionSink RootMotionSink

	followers   []Follower
	leader      Coordinator
	leaderMap   []int32
	leaderDirty bool

	stats Stats
}

// Coordinator owns the pose of one skeletal mesh instance and drives its evaluation.
//
// All methods must be called from the owning (main) thread. Evaluation task bodies run on a
// TaskRunner; their results are folded in by a completion that runs on the owning thread,
// either through the CompletionQueue or the next Tick / WaitForCompletion.
type Coordinator interface {
	// Bind attaches a mesh asset, allocating transform buffers initialized to the reference pose.
	// Any pending evaluation is completed first.
	//
	// Parameters:
	//   - mesh: the skeletal mesh asset
	//
	// Returns:
	//   - error: ErrMissingAsset if the mesh or its skeleton is missing
	Bind(mesh model.Model) error

	// Unbind detaches the mesh and frees its buffers without waiting. An in-flight evaluation
	// is discarded when it completes.
	Unbind()

	// IsBound reports whether a mesh is attached.
	//
	// Returns:
	//   - bool: true if bound
	IsBound() bool

	// Mesh returns the bound mesh asset or nil.
	//
	// Returns:
	//   - model.Model: the bound mesh
	Mesh() model.Model

	// SetAnimationGraph attaches the graph that produces poses. A graph authored for an
	// incompatible skeleton is rejected and the reference pose is used.
	//
	// Parameters:
	//   - graph: the graph, or nil to detach
	//
	// Returns:
	//   - error: ErrIncompatibleSkeleton if the graph was rejected
	SetAnimationGraph(graph AnimationGraph) error

	// AnimationGraph returns the attached graph or nil.
	//
	// Returns:
	//   - AnimationGraph: the graph
	AnimationGraph() AnimationGraph

	// SetLOD selects the level of detail whose required bones are evaluated.
	//
	// Parameters:
	//   - lod: the level of detail
	SetLOD(lod int)

	// LOD returns the selected level of detail.
	//
	// Returns:
	//   - int: the level of detail
	LOD() int

	// SetCastShadow toggles inclusion of the mesh's shadow bones in the required set.
	//
	// Parameters:
	//   - cast: whether the mesh casts shadows
	SetCastShadow(cast bool)

	// SetMirroring toggles inclusion of mirror-table partners in the required set.
	//
	// Parameters:
	//   - mirror: whether mirrored poses are evaluated
	SetMirroring(mirror bool)

	// SetBoneHidden hides or shows a bone. Hidden bones and their descendants are zero scaled.
	//
	// Parameters:
	//   - bone: the bone index
	//   - hidden: the new visibility
	SetBoneHidden(bone int32, hidden bool)

	// IsBoneHidden reports whether a bone is hidden, directly or through an ancestor.
	//
	// Parameters:
	//   - bone: the bone index
	//
	// Returns:
	//   - bool: true if hidden
	IsBoneHidden(bone int32) bool

	// MarkRequiredBonesDirty forces the required bone set to be recomputed on the next tick.
	MarkRequiredBonesDirty()

	// RequiredBones returns the current required bone set, recomputing it if dirty.
	//
	// Returns:
	//   - required_bones.Set: ascending, parent-closed bone indices
	RequiredBones() required_bones.Set

	// SetPhysicsBlender attaches the physics overlay, or detaches it when nil.
	//
	// Parameters:
	//   - physics: the blender
	SetPhysicsBlender(physics PhysicsBlender)

	// SetCurveSink sets the receiver of curve values.
	//
	// Parameters:
	//   - sink: the receiver, or nil
	SetCurveSink(sink CurveSink)

	// SetRootMotionSink sets the receiver of extracted root motion.
	//
	// Parameters:
	//   - sink: the receiver, or nil
	SetRootMotionSink(sink RootMotionSink)

	// SetLeader makes this coordinator copy its pose from leader instead of evaluating.
	// Bones are matched by name; unmatched bones keep their reference pose.
	//
	// Parameters:
	//   - leader: the leader, or nil to evaluate independently again
	//
	// Returns:
	//   - error: an error if leader is this coordinator
	SetLeader(leader Coordinator) error

	// Leader returns the coordinator this one copies its pose from.
	//
	// Returns:
	//   - Coordinator: the leader, or nil when evaluating independently
	Leader() Coordinator

	// AddFollower registers f to be notified after every flip.
	//
	// Parameters:
	//   - f: the follower
	AddFollower(f Follower)

	// RemoveFollower unregisters f.
	//
	// Parameters:
	//   - f: the follower
	RemoveFollower(f Follower)

	// OnLeaderPoseUpdated marks the follower pose for refresh on the next tick.
	//
	// Parameters:
	//   - generation: the leader's new buffer generation
	OnLeaderPoseUpdated(generation uint64)

	// Tick runs one frame: completes the previous evaluation, recomputes required bones if
	// needed and dispatches (or runs inline) a new evaluation according to the decision.
	//
	// Parameters:
	//   - args: frame number, update-rate decision and phase
	//
	// Returns:
	//   - error: ErrTaskInFlight if the previous task is still running and blocking is disabled
	Tick(args TickArgs) error

	// WaitForCompletion blocks until the pending evaluation (if any) has finished, then
	// completes it on the calling thread.
	WaitForCompletion()

	// InvalidatePending makes any in-flight evaluation stale; its results will be discarded and
	// the last published transforms stay visible.
	InvalidatePending()

	// State returns the evaluation state.
	//
	// Returns:
	//   - State: the current state
	State() State

	// Buffers returns the double-buffered component-space transforms, or nil when unbound.
	//
	// Returns:
	//   - *TransformBuffers: the buffer pair
	Buffers() *TransformBuffers

	// BoneSpaceTransforms returns the visible bone-space pose. The slice must not be modified.
	//
	// Returns:
	//   - []common.Transform: one transform per bone
	BoneSpaceTransforms() []common.Transform

	// Curves returns the curve values of the last completed evaluation.
	//
	// Returns:
	//   - map[string]float32: curve values by name
	Curves() map[string]float32

	// Stats returns cumulative counters.
	//
	// Returns:
	//   - Stats: the counters
	Stats() Stats
}

var _ Coordinator = &coordinator{}
var _ Follower = &coordinator{}

// NewCoordinator creates a new Coordinator with the specified options applied.
// Without a TaskRunner every evaluation runs inline.
//
// Parameters:
//   - options: a variadic list of CoordinatorBuilderOption functions
//
// Returns:
//   - Coordinator: a new, unbound coordinator
func NewCoordinator(options ...CoordinatorBuilderOption) Coordinator {
	c := &coordinator{
		logger:          logging.NoOpLogger{},
		parallel:        true,
		blockOnInFlight: true,
	}
	for _, opt := range options {
		opt(c)
	}
	c.logger = logging.WithComponent(c.logger, "pose")
	return c
}

func (c *coordinator) Bind(mesh model.Model) error {
	c.WaitForCompletion()
	c.generation++

	if mesh == nil || mesh.Skeleton() == nil || mesh.Skeleton().BoneCount() == 0 {
		c.release()
		return errors.Wrap(ErrMissingAsset, "bind")
	}

	skel := mesh.Skeleton()
	n := skel.BoneCount()
	c.mesh = mesh
	c.skeleton = skel
	c.refPose = skel.ReferencePose()
	c.allBones = make([]int32, n)
	for i := range c.allBones {
		c.allBones[i] = int32(i)
	}
	c.boneSpace = slices.Clone(c.refPose)
	c.cachedLocal = make([]common.Transform, n)
	c.cacheValid = false
	c.hidden = make([]bool, n)
	c.hiddenMask = make([]bool, n)
	c.buffers = NewTransformBuffers(skel.ComponentSpaceReferencePose())
	c.ctx = &EvaluationContext{Pose: Pose{Local: make([]common.Transform, n), Curves: make(map[string]float32)}}
	c.curves = make(map[string]float32)
	c.requiredDirty = true

	if c.graph != nil && !skel.IsCompatible(c.graph.Skeleton()) {
		c.logger.Warn("detaching animation graph with incompatible skeleton", "mesh", mesh.Name())
		c.graph = nil
	}
	if c.leader != nil {
		c.buildLeaderMap()
	}
	return nil
}

func (c *coordinator) Unbind() {
	c.generation++
	c.release()
}

func (c *coordinator) release() {
	c.mesh = nil
	c.skeleton = nil
	c.refPose = nil
	c.allBones = nil
	c.boneSpace = nil
	c.cachedLocal = nil
	c.cacheValid = false
	c.hidden = nil
	c.hiddenMask = nil
	c.buffers = nil
	c.ctx = nil
	c.required = nil
	c.leaderMap = nil
}

func (c *coordinator) IsBound() bool {
	return c.mesh != nil
}

func (c *coordinator) Mesh() model.Model {
	return c.mesh
}

func (c *coordinator) SetAnimationGraph(graph AnimationGraph) error {
	c.WaitForCompletion()
	c.cacheValid = false
	if graph != nil && c.skeleton != nil && !c.skeleton.IsCompatible(graph.Skeleton()) {
		c.graph = nil
		c.logger.Warn("rejecting animation graph with incompatible skeleton", "mesh", c.mesh.Name())
		return errors.Wrapf(ErrIncompatibleSkeleton, "mesh %q", c.mesh.Name())
	}
	c.graph = graph
	return nil
}

func (c *coordinator) AnimationGraph() AnimationGraph {
	return c.graph
}

func (c *coordinator) SetLOD(lod int) {
	if lod == c.lod {
		return
	}
	c.lod = lod
	c.requiredDirty = true
}

func (c *coordinator) LOD() int {
	return c.lod
}

func (c *coordinator) SetCastShadow(cast bool) {
	if cast != c.castShadow {
		c.castShadow = cast
		c.requiredDirty = true
	}
}

func (c *coordinator) SetMirroring(mirror bool) {
	if mirror != c.mirroring {
		c.mirroring = mirror
		c.requiredDirty = true
	}
}

func (c *coordinator) SetBoneHidden(bone int32, hidden bool) {
	if bone < 0 || int(bone) >= len(c.hidden) || c.hidden[bone] == hidden {
		return
	}
	c.hidden[bone] = hidden
	for i, b := range c.skeleton.Bones {
		c.hiddenMask[i] = c.hidden[i] || (b.ParentIndex >= 0 && c.hiddenMask[b.ParentIndex])
	}
	c.requiredDirty = true
	c.fullRefresh = true
}

func (c *coordinator) IsBoneHidden(bone int32) bool {
	if bone < 0 || int(bone) >= len(c.hiddenMask) {
		return false
	}
	return c.hiddenMask[bone]
}

func (c *coordinator) MarkRequiredBonesDirty() {
	c.requiredDirty = true
}

func (c *coordinator) RequiredBones() required_bones.Set {
	if c.requiredDirty && c.IsBound() {
		c.recomputeRequiredBones()
	}
	return c.required
}

func (c *coordinator) recomputeRequiredBones() {
	in := required_bones.Inputs{
		LOD:         c.allBones,
		ShadowBones: c.mesh.ShadowBones(),
		CastShadow:  c.castShadow,
	}
	if lod := c.mesh.LOD(c.lod); lod != nil && len(lod.RequiredBones) > 0 {
		in.LOD = lod.RequiredBones
	}
	if c.physics != nil {
		in.IncludePhysics = true
		in.PhysicsBones = required_bones.MergeSorted(c.mesh.PhysicsBones(), c.physics.SimulatedBones())
	}
	if c.mirroring {
		in.MirrorTable = c.mesh.MirrorTable()
	}
	sockets, missing := c.mesh.SocketBones()
	in.SocketBones = sockets
	if len(missing) > 0 {
		for _, s := range c.mesh.Sockets() {
			if slices.Contains(missing, s.Name) {
				c.logger.Warn("socket references unknown bone", "socket", s.Name, "bone", s.BoneName, "suggestion", c.skeleton.SuggestBone(s.BoneName))
			}
		}
	}

	c.required = required_bones.Compute(c.skeleton, in)
	c.requiredDirty = false
	c.cacheValid = false
}

func (c *coordinator) SetPhysicsBlender(physics PhysicsBlender) {
	c.WaitForCompletion()
	c.physics = physics
	c.requiredDirty = true
}

func (c *coordinator) SetCurveSink(sink CurveSink) {
	c.curveSink = sink
}

func (c *coordinator) SetRootMotionSink(sink RootMotionSink) {
	c.rootMotionSink = sink
}

func (c *coordinator) SetLeader(leader Coordinator) error {
	if leader == Coordinator(c) {
		return errors.New("a coordinator cannot follow itself")
	}
	if c.leader != nil {
		c.leader.RemoveFollower(c)
	}
	c.leader = leader
	c.leaderMap = nil
	if leader == nil {
		return nil
	}
	leader.AddFollower(c)
	c.leaderDirty = true
	if c.IsBound() {
		c.buildLeaderMap()
	}
	return nil
}

func (c *coordinator) Leader() Coordinator {
	return c.leader
}

func (c *coordinator) buildLeaderMap() {
	c.leaderMap = make([]int32, c.skeleton.BoneCount())
	var leaderSkel *model.Skeleton
	if m := c.leader.Mesh(); m != nil {
		leaderSkel = m.Skeleton()
	}
	for i, b := range c.skeleton.Bones {
		c.leaderMap[i] = -1
		if leaderSkel == nil {
			continue
		}
		if idx := leaderSkel.FindBone(b.Name); idx >= 0 {
			c.leaderMap[i] = idx
		} else {
			c.logger.Debug("follower bone missing on leader", "bone", b.Name, "suggestion", leaderSkel.SuggestBone(b.Name))
		}
	}
	c.leaderDirty = true
}

func (c *coordinator) AddFollower(f Follower) {
	if f == nil || slices.Contains(c.followers, f) {
		return
	}
	c.followers = append(c.followers, f)
}

func (c *coordinator) RemoveFollower(f Follower) {
	c.followers = slices.DeleteFunc(c.followers, func(o Follower) bool { return o == f })
}

func (c *coordinator) OnLeaderPoseUpdated(uint64) {
	c.leaderDirty = true
}

func (c *coordinator) Tick(args TickArgs) error {
	if !c.IsBound() {
		return nil
	}
	if err := c.resolvePending(); err != nil {
		return err
	}
	if c.leader != nil {
		c.copyFromLeader()
		return nil
	}
	if c.requiredDirty {
		c.recomputeRequiredBones()
	}

	ctx := c.buildContext(args)
	if ctx == nil {
		return nil
	}
	parallel := c.parallel && c.runner != nil && args.Phase == PhaseUpdate
	c.dispatch(ctx, parallel)
	return nil
}

func (c *coordinator) resolvePending() error {
	p := c.pending
	if p == nil {
		return nil
	}
	if !p.handle.IsDone() {
		if !c.blockOnInFlight {
			c.stats.InFlightSkips++
			return errors.Wrapf(ErrTaskInFlight, "evaluation %d", p.serial)
		}
		p.handle.Wait()
	}
	c.complete(p.serial)
	return nil
}

func (c *coordinator) buildContext(args TickArgs) *EvaluationContext {
	d := args.Decision
	ctx := c.ctx
	ctx.reset()

	ctx.DoUpdate = !d.SkipUpdate && c.graph != nil && c.graph.NeedsUpdate()
	ctx.DoEvaluate = !d.SkipEvaluation || c.fullRefresh
	ctx.DoInterpolate = d.Interpolate
	if ctx.DoInterpolate && !c.cacheValid {
		ctx.DoEvaluate = true
	}
	if !ctx.DoUpdate && !ctx.DoEvaluate && !ctx.DoInterpolate {
		return nil
	}

	c.serial++
	ctx.Serial = c.serial
	ctx.Frame = args.Frame
	ctx.Generation = c.generation
	ctx.DeltaTime = d.DeltaTime
	ctx.InterpolationAlpha = d.InterpolationAlpha
	ctx.RootMotionAlpha = d.RootMotionAlpha
	ctx.Required = c.required
	ctx.graph = c.graph
	ctx.skeleton = c.skeleton
	if ctx.DoEvaluate {
		copy(ctx.Pose.Local, c.boneSpace)
	}

	c.buffers.PrepareBack()
	physicsActive := c.physics != nil && c.physics.BlendWeight() > 0
	ctx.componentSpaceInTask = ctx.DoEvaluate && !ctx.DoInterpolate && !physicsActive && !c.fullRefresh
	if ctx.componentSpaceInTask {
		ctx.ComponentSpace = c.buffers.Back()
	}
	return ctx
}

func (c *coordinator) dispatch(ctx *EvaluationContext, parallel bool) {
	h := newHandle()
	serial := ctx.Serial
	refPose := c.refPose
	c.pending = &pendingEvaluation{serial: serial, ctx: ctx, handle: h}
	c.state.Store(int32(StateDispatched))
	c.stats.Dispatched++

	if parallel {
		queue := c.queue
		err := c.runner.Submit(func() {
			evaluate(ctx, refPose)
			if queue != nil {
				queue.Post(func() { c.complete(serial) })
			}
			h.finish()
		})
		if err == nil {
			return
		}
		c.logger.Warn("parallel dispatch failed, evaluating inline", "error", err)
	}

	evaluate(ctx, refPose)
	h.finish()
	c.complete(serial)
}

// evaluate is the task body. It touches only ctx and immutable asset data.
func evaluate(ctx *EvaluationContext, refPose []common.Transform) {
	defer func() {
		if r := recover(); r != nil {
			ctx.err = errors.Errorf("pose evaluation panicked: %v", r)
			ctx.componentSpaceFilled = false
			if ctx.DoEvaluate {
				fillReferencePose(ctx, refPose)
			}
		}
	}()

	if ctx.DoUpdate {
		ctx.graph.UpdateAnimation(ctx.DeltaTime)
		if src, ok := ctx.graph.(RootMotionSource); ok {
			ctx.RootMotion, ctx.HasRootMotion = src.ConsumeRootMotion()
		}
	}
	if !ctx.DoEvaluate {
		return
	}

	g := ctx.graph
	switch {
	case g == nil || !g.CanEvaluate():
		fillReferencePose(ctx, refPose)
	default:
		if err := g.EvaluateAnimation(ctx.Required, &ctx.Pose); err != nil {
			ctx.err = err
			fillReferencePose(ctx, refPose)
		}
	}

	if ctx.componentSpaceInTask {
		FillComponentSpace(ctx.skeleton, ctx.Required, ctx.Pose.Local, ctx.ComponentSpace)
		ctx.componentSpaceFilled = true
	}
}

func fillReferencePose(ctx *EvaluationContext, refPose []common.Transform) {
	for _, b := range ctx.Required {
		ctx.Pose.Local[b] = refPose[b]
	}
	ctx.usedReferencePose = true
}

func (c *coordinator) complete(serial uint64) {
	p := c.pending
	if p == nil || p.serial != serial {
		return
	}
	if !c.state.CompareAndSwap(int32(StateDispatched), int32(StateCompleting)) {
		return
	}
	defer func() {
		c.pending = nil
		c.state.Store(int32(StateIdle))
	}()

	ctx := p.ctx
	if ctx.Generation != c.generation || !c.IsBound() {
		c.stats.Discarded++
		c.logger.Debug("discarding stale pose evaluation", "serial", serial, "frame", ctx.Frame)
		return
	}
	c.finalize(ctx)
}

func (c *coordinator) finalize(ctx *EvaluationContext) {
	if ctx.err != nil {
		c.logger.Warn("pose evaluation failed, using reference pose", "frame", ctx.Frame, "error", ctx.err)
	}
	if ctx.usedReferencePose {
		c.stats.ReferencePoseFallbacks++
	}

	flip := false
	if ctx.DoEvaluate {
		c.stats.Evaluations++
		if ctx.DoInterpolate {
			copy(c.cachedLocal, ctx.Pose.Local)
			if !c.cacheValid {
				copy(c.boneSpace, ctx.Pose.Local)
				c.cacheValid = true
			}
		} else {
			copy(c.boneSpace, ctx.Pose.Local)
			c.cacheValid = false
		}
		c.publishCurves(ctx.Pose.Curves)
		flip = true
	}
	if ctx.DoInterpolate && c.cacheValid {
		for _, b := range ctx.Required {
			c.boneSpace[b] = c.boneSpace[b].Blend(c.cachedLocal[b], ctx.InterpolationAlpha)
		}
		c.stats.Interpolations++
		flip = true
	}

	if flip {
		back := c.buffers.Back()
		bones := ctx.Required
		if c.fullRefresh {
			bones = c.allBones
		}
		physicsActive := c.physics != nil && c.physics.BlendWeight() > 0
		switch {
		case physicsActive:
			fillComponentSpaceWithPhysics(c.skeleton, bones, c.boneSpace, back, c.physics)
		case !ctx.componentSpaceFilled || c.fullRefresh:
			FillComponentSpace(c.skeleton, bones, c.boneSpace, back)
		}
		c.fullRefresh = false
		c.applyHiddenBones(back)
		c.publish()
	}

	if ctx.HasRootMotion && c.rootMotionSink != nil {
		c.rootMotionSink.ApplyRootMotion(common.IdentityTransform().Blend(ctx.RootMotion, ctx.RootMotionAlpha))
	}
}

func (c *coordinator) publishCurves(curves map[string]float32) {
	clear(c.curves)
	maps.Copy(c.curves, curves)
	if c.curveSink != nil && len(c.curves) > 0 {
		c.curveSink.ApplyCurves(c.curves)
	}
}

func (c *coordinator) applyHiddenBones(cs []common.Transform) {
	for i, hidden := range c.hiddenMask {
		if hidden {
			cs[i].Scale = [3]float32{}
		}
	}
}

// publish flips the buffers and notifies dependents.
func (c *coordinator) publish() {
	gen := c.buffers.Flip()
	c.stats.Flips++
	if c.physics != nil {
		c.physics.UpdateKinematicBodies(c.buffers.Front())
	}
	for _, f := range c.followers {
		f.OnLeaderPoseUpdated(gen)
	}
}

func (c *coordinator) copyFromLeader() {
	if !c.leaderDirty || c.leaderMap == nil {
		return
	}
	lb := c.leader.Buffers()
	if lb == nil {
		return
	}
	src := lb.Front()
	c.buffers.PrepareBack()
	back := c.buffers.Back()
	for i, b := range c.skeleton.Bones {
		if m := c.leaderMap[i]; m >= 0 && int(m) < len(src) {
			back[i] = src[m]
			continue
		}
		if b.ParentIndex < 0 {
			back[i] = c.refPose[i]
		} else {
			back[i] = c.refPose[i].Mul(back[b.ParentIndex])
		}
	}
	c.applyHiddenBones(back)
	c.leaderDirty = false
	c.stats.FollowerCopies++
	c.publish()
}

func (c *coordinator) WaitForCompletion() {
	p := c.pending
	if p == nil {
		return
	}
	p.handle.Wait()
	c.complete(p.serial)
}

func (c *coordinator) InvalidatePending() {
	c.generation++
}

func (c *coordinator) State() State {
	return State(c.state.Load())
}

func (c *coordinator) Buffers() *TransformBuffers {
	return c.buffers
}

func (c *coordinator) BoneSpaceTransforms() []common.Transform {
	return c.boneSpace
}

func (c *coordinator) Curves() map[string]float32 {
	return c.curves
}

func (c *coordinator) Stats() Stats {
	return c.stats
}
