package skeletal_mesh

import (
	"sync/atomic"

	"github.com/Carmen-Shannon/oxy-anim/common"
	"github.com/Carmen-Shannon/oxy-anim/engine/animator"
	"github.com/Carmen-Shannon/oxy-anim/engine/logging"
	"github.com/Carmen-Shannon/oxy-anim/engine/model"
	"github.com/Carmen-Shannon/oxy-anim/engine/pose"
	"github.com/Carmen-Shannon/oxy-anim/engine/skin_cache"
	"github.com/Carmen-Shannon/oxy-anim/engine/update_rate"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// renderedWindow is how many frames after its last draw a mesh still counts as recently rendered.
const renderedWindow = 2

var (
	// ErrUnknownBone is returned when a bone name does not exist on the mesh's skeleton.
	ErrUnknownBone = errors.New("unknown bone")

	// ErrNotBound is returned by operations that need a bound model.
	ErrNotBound = errors.New("skeletal mesh has no model")
)

type clothState struct {
	positions [][3]float32
	blend     float32
}

type skeletalMesh struct {
	id      uuid.UUID
	owner   uuid.UUID
	enabled atomic.Bool
	visible atomic.Bool
	logger  logging.Logger

	mdl        model.Model
	coord      pose.Coordinator
	anim       animator.Animator
	coordOpts  []pose.CoordinatorBuilderOption
	castShadow bool

	params          *update_rate.Params
	lastDecision    update_rate.Decision
	rendered        bool
	lastRenderFrame uint64
	distanceFactor  float32
	humanControlled bool
	needsRootMotion bool
	rootMotionAll   bool

	useSkinCache bool
	cloth        map[int]clothState
	world        common.Transform
}

// SkeletalMesh is a world component that draws a skinned model. It owns the pose coordinator
// evaluating the model's skeleton, forwards the owner group's update-rate decision to it each
// frame, and turns the published pose into skinning input for the renderer or the skin cache.
//
// A SkeletalMesh is driven from a single thread; only pose evaluation runs on workers.
type SkeletalMesh interface {
	pose.RootMotionSink

	// ID returns the mesh's unique identifier.
	//
	// Returns:
	//   - uuid.UUID: the mesh ID
	ID() uuid.UUID

	// Owner returns the identity of the entity the mesh belongs to. Meshes of the same owner
	// share one update-rate group.
	//
	// Returns:
	//   - uuid.UUID: the owner ID
	Owner() uuid.UUID

	// Enabled returns whether the mesh ticks.
	//
	// Returns:
	//   - bool: true if enabled
	Enabled() bool

	// SetEnabled toggles ticking. A disabled mesh keeps its last published pose.
	//
	// Parameters:
	//   - enabled: whether the mesh ticks
	SetEnabled(enabled bool)

	// Visible returns whether the mesh is drawn this frame.
	//
	// Returns:
	//   - bool: true if visible
	Visible() bool

	// SetVisible toggles drawing. Invisible meshes stop producing render data and fall back to the
	// non-rendered update rate once renderedWindow frames have passed.
	//
	// Parameters:
	//   - visible: whether the mesh is drawn
	SetVisible(visible bool)

	// Model returns the bound model.
	//
	// Returns:
	//   - model.Model: the model, or nil
	Model() model.Model

	// Coordinator returns the mesh's pose coordinator.
	//
	// Returns:
	//   - pose.Coordinator: the coordinator
	Coordinator() pose.Coordinator

	// Animator returns the animation graph driving the mesh.
	//
	// Returns:
	//   - animator.Animator: the animator, or nil
	Animator() animator.Animator

	// SetLOD switches the level of detail. The required bone set is recomputed on the next tick.
	//
	// Parameters:
	//   - lod: the LOD index
	SetLOD(lod int)

	// LOD returns the current level of detail.
	//
	// Returns:
	//   - int: the LOD index
	LOD() int

	// SetDistanceFactor sets the screen-size factor fed to the update-rate policy.
	//
	// Parameters:
	//   - factor: the factor; larger means closer to the camera
	SetDistanceFactor(factor float32)

	// SetHumanControlled marks the owner as player driven, which pins the update rate to 1.
	//
	// Parameters:
	//   - human: whether the owner is human controlled
	SetHumanControlled(human bool)

	// SetNeedsValidRootMotion marks the owner as consuming root motion every frame.
	//
	// Parameters:
	//   - needs: whether root motion must be valid each frame
	SetNeedsValidRootMotion(needs bool)

	// HideBone hides a bone and its descendants by name.
	//
	// Parameters:
	//   - name: the bone name
	//
	// Returns:
	//   - error: ErrUnknownBone with the closest name as a hint, or ErrNotBound
	HideBone(name string) error

	// UnhideBone reverses HideBone.
	//
	// Parameters:
	//   - name: the bone name
	//
	// Returns:
	//   - error: ErrUnknownBone with the closest name as a hint, or ErrNotBound
	UnhideBone(name string) error

	// IsBoneHidden reports whether a bone is hidden, directly or through an ancestor.
	//
	// Parameters:
	//   - name: the bone name
	//
	// Returns:
	//   - bool: true if hidden
	//   - error: ErrUnknownBone with the closest name as a hint, or ErrNotBound
	IsBoneHidden(name string) (bool, error)

	// SetSkinCacheEnabled selects whether BuildRenderData skins through the cache.
	//
	// Parameters:
	//   - enabled: whether to use the skin cache
	SetSkinCacheEnabled(enabled bool)

	// SetClothPositions provides simulated positions for a cloth section of the current LOD.
	//
	// Parameters:
	//   - section: the section index
	//   - positions: one position per section vertex; nil clears the section
	//   - blend: weight of the simulated positions in [0, 1]
	SetClothPositions(section int, positions [][3]float32, blend float32)

	// SetLeader makes the mesh copy its pose from another mesh, matching bones by name.
	//
	// Parameters:
	//   - leader: the leader mesh, or nil to evaluate independently again
	//
	// Returns:
	//   - error: an error if the mesh would follow itself
	SetLeader(leader SkeletalMesh) error

	// AttachUpdateRate assigns the owner group's shared update-rate state.
	//
	// Parameters:
	//   - params: the group state, or nil to tick every frame
	AttachUpdateRate(params *update_rate.Params)

	// UpdateRateParams returns the attached group state.
	//
	// Returns:
	//   - *update_rate.Params: the group state, or nil
	UpdateRateParams() *update_rate.Params

	// UpdateRateInput reports the mesh's per-frame facts for the update-rate policy.
	//
	// Parameters:
	//   - frame: the world frame
	//   - deltaTime: the frame delta in seconds
	//
	// Returns:
	//   - update_rate.Input: the facts of this mesh alone
	UpdateRateInput(frame uint64, deltaTime float32) update_rate.Input

	// Tick forwards a frame to the pose coordinator. When decision is nil the attached group is
	// ticked with this mesh's input alone; without a group the mesh evaluates every frame.
	//
	// Parameters:
	//   - frame: the world frame
	//   - deltaTime: the frame delta in seconds
	//   - decision: the owner group's decision, or nil to compute one
	//   - phase: where in the frame the tick happens
	//
	// Returns:
	//   - error: pose.ErrTaskInFlight if the previous evaluation is still running
	Tick(frame uint64, deltaTime float32, decision *update_rate.Decision, phase pose.Phase) error

	// LastDecision returns the decision used by the last Tick.
	//
	// Returns:
	//   - update_rate.Decision: the decision
	LastDecision() update_rate.Decision

	// BuildRenderData snapshots the visible pose and prepares skinning input for each section of
	// the current LOD. Sections the skin cache cannot serve are flagged for per-draw skinning.
	// Building render data marks the mesh as rendered this frame.
	//
	// Parameters:
	//   - frame: the world frame
	//   - cache: the skin cache in its BeginFrame/EndFrame bracket, or nil
	//   - out: render data to refill; nil allocates
	//
	// Returns:
	//   - *RenderData: the filled render data
	//   - error: ErrNotBound if no model is bound
	BuildRenderData(frame uint64, cache skin_cache.SkinCache, out *RenderData) (*RenderData, error)

	// WorldTransform returns the component's world transform, moved by applied root motion.
	//
	// Returns:
	//   - common.Transform: the world transform
	WorldTransform() common.Transform

	// SetWorldTransform places the component.
	//
	// Parameters:
	//   - t: the world transform
	SetWorldTransform(t common.Transform)

	// Release unbinds the coordinator and detaches from any leader.
	Release()
}

var _ SkeletalMesh = &skeletalMesh{}

// NewSkeletalMesh creates a SkeletalMesh with the specified options applied. When a model is
// given the coordinator is bound to it; when an animator is given it becomes the coordinator's
// animation graph and the mesh becomes its root motion sink.
//
// Parameters:
//   - options: a variadic list of SkeletalMeshBuilderOption functions to configure the mesh
//
// Returns:
//   - SkeletalMesh: the new mesh
//   - error: pose.ErrMissingAsset or pose.ErrIncompatibleSkeleton from binding
func NewSkeletalMesh(options ...SkeletalMeshBuilderOption) (SkeletalMesh, error) {
	m := &skeletalMesh{
		id:           uuid.New(),
		logger:       logging.NoOpLogger{},
		useSkinCache: true,
		castShadow:   true,
		world:        common.IdentityTransform(),
		cloth:        make(map[int]clothState),
	}
	m.enabled.Store(true)
	m.visible.Store(true)
	for _, opt := range options {
		opt(m)
	}
	if m.owner == uuid.Nil {
		m.owner = m.id
	}
	m.logger = logging.WithComponent(m.logger, "skeletal_mesh")

	opts := append([]pose.CoordinatorBuilderOption{pose.WithLogger(m.logger), pose.WithRootMotionSink(m)}, m.coordOpts...)
	m.coord = pose.NewCoordinator(opts...)
	m.coord.SetCastShadow(m.castShadow)

	if m.mdl != nil {
		if err := m.coord.Bind(m.mdl); err != nil {
			return nil, errors.Wrapf(err, "mesh %s", m.id)
		}
	}
	if m.anim != nil {
		if err := m.coord.SetAnimationGraph(m.anim); err != nil {
			return nil, errors.Wrapf(err, "mesh %s", m.id)
		}
	}
	return m, nil
}

func (m *skeletalMesh) ID() uuid.UUID {
	return m.id
}

func (m *skeletalMesh) Owner() uuid.UUID {
	return m.owner
}

func (m *skeletalMesh) Enabled() bool {
	return m.enabled.Load()
}

func (m *skeletalMesh) SetEnabled(enabled bool) {
	m.enabled.Store(enabled)
}

func (m *skeletalMesh) Visible() bool {
	return m.visible.Load()
}

func (m *skeletalMesh) SetVisible(visible bool) {
	m.visible.Store(visible)
}

func (m *skeletalMesh) Model() model.Model {
	return m.mdl
}

func (m *skeletalMesh) Coordinator() pose.Coordinator {
	return m.coord
}

func (m *skeletalMesh) Animator() animator.Animator {
	return m.anim
}

func (m *skeletalMesh) SetLOD(lod int) {
	m.coord.SetLOD(lod)
}

func (m *skeletalMesh) LOD() int {
	return m.coord.LOD()
}

func (m *skeletalMesh) SetDistanceFactor(factor float32) {
	m.distanceFactor = factor
}

func (m *skeletalMesh) SetHumanControlled(human bool) {
	m.humanControlled = human
}

func (m *skeletalMesh) SetNeedsValidRootMotion(needs bool) {
	m.needsRootMotion = needs
}

func (m *skeletalMesh) findBone(name string) (int32, error) {
	if m.mdl == nil || m.mdl.Skeleton() == nil {
		return -1, ErrNotBound
	}
	skel := m.mdl.Skeleton()
	idx := skel.FindBone(name)
	if idx < 0 {
		return -1, errors.Wrapf(ErrUnknownBone, "%q (did you mean %q?)", name, skel.SuggestBone(name))
	}
	return idx, nil
}

func (m *skeletalMesh) HideBone(name string) error {
	idx, err := m.findBone(name)
	if err != nil {
		return err
	}
	m.coord.SetBoneHidden(idx, true)
	return nil
}

func (m *skeletalMesh) UnhideBone(name string) error {
	idx, err := m.findBone(name)
	if err != nil {
		return err
	}
	m.coord.SetBoneHidden(idx, false)
	return nil
}

func (m *skeletalMesh) IsBoneHidden(name string) (bool, error) {
	idx, err := m.findBone(name)
	if err != nil {
		return false, err
	}
	return m.coord.IsBoneHidden(idx), nil
}

func (m *skeletalMesh) SetSkinCacheEnabled(enabled bool) {
	m.useSkinCache = enabled
}

func (m *skeletalMesh) SetClothPositions(section int, positions [][3]float32, blend float32) {
	if positions == nil {
		delete(m.cloth, section)
		return
	}
	m.cloth[section] = clothState{positions: positions, blend: blend}
}

func (m *skeletalMesh) SetLeader(leader SkeletalMesh) error {
	if leader == nil {
		return m.coord.SetLeader(nil)
	}
	return m.coord.SetLeader(leader.Coordinator())
}

func (m *skeletalMesh) AttachUpdateRate(params *update_rate.Params) {
	m.params = params
}

func (m *skeletalMesh) UpdateRateParams() *update_rate.Params {
	return m.params
}

func (m *skeletalMesh) recentlyRendered(frame uint64) bool {
	if !m.rendered {
		return false
	}
	return frame <= m.lastRenderFrame+renderedWindow
}

func (m *skeletalMesh) UpdateRateInput(frame uint64, deltaTime float32) update_rate.Input {
	return update_rate.Input{
		Frame:                    frame,
		DeltaTime:                deltaTime,
		RecentlyRendered:         m.recentlyRendered(frame),
		MaxDistanceFactor:        m.distanceFactor,
		LOD:                      m.coord.LOD(),
		HumanControlled:          m.humanControlled,
		NeedsValidRootMotion:     m.needsRootMotion,
		RootMotionFromEverything: m.rootMotionAll,
	}
}

func (m *skeletalMesh) Tick(frame uint64, deltaTime float32, decision *update_rate.Decision, phase pose.Phase) error {
	if !m.Enabled() {
		return nil
	}
	var d update_rate.Decision
	switch {
	case decision != nil:
		d = *decision
	case m.params != nil:
		d = m.params.Tick(m.UpdateRateInput(frame, deltaTime))
	default:
		d = update_rate.Decision{DeltaTime: deltaTime, RootMotionAlpha: 1, UpdateRate: 1, EvaluationRate: 1}
	}
	m.lastDecision = d
	return m.coord.Tick(pose.TickArgs{Frame: frame, Decision: d, Phase: phase})
}

func (m *skeletalMesh) LastDecision() update_rate.Decision {
	return m.lastDecision
}

func (m *skeletalMesh) ApplyRootMotion(delta common.Transform) {
	m.world = delta.Mul(m.world)
}

func (m *skeletalMesh) WorldTransform() common.Transform {
	return m.world
}

func (m *skeletalMesh) SetWorldTransform(t common.Transform) {
	m.world = t
}

func (m *skeletalMesh) BuildRenderData(frame uint64, cache skin_cache.SkinCache, out *RenderData) (*RenderData, error) {
	buffers := m.coord.Buffers()
	if m.mdl == nil || buffers == nil {
		return nil, ErrNotBound
	}
	if out == nil {
		out = &RenderData{}
	}
	m.rendered = true
	m.lastRenderFrame = frame

	cs, gen := buffers.Snapshot(out.ComponentSpace)
	out.ComponentSpace = cs
	out.Frame = frame
	out.Generation = gen
	out.World = m.world
	out.Sections = out.Sections[:0]

	out.LOD = max(0, min(m.coord.LOD(), m.mdl.LODCount()-1))
	lod := m.mdl.LOD(out.LOD)
	if lod == nil {
		return out, nil
	}
	skel := m.mdl.Skeleton()
	curves := m.coord.Curves()

	var morphWeights []float32
	if len(lod.MorphTargets) > 0 {
		morphWeights = make([]float32, len(lod.MorphTargets))
		for i, t := range lod.MorphTargets {
			morphWeights[i] = curves[t.Name]
		}
	}

	var csMat [16]float32
	for si := range lod.Sections {
		sec := &lod.Sections[si]
		sd := SectionRenderData{Section: si, BoneMatrices: make([]float32, 16*len(sec.BoneMap))}
		for i, bone := range sec.BoneMap {
			dst := sd.BoneMatrices[i*16 : i*16+16]
			if bone < 0 || int(bone) >= len(cs) {
				common.Identity(dst)
				continue
			}
			cs[bone].ToMatrix(csMat[:])
			ibm := skel.Bones[bone].InverseBindMatrix
			common.Mul4(dst, csMat[:], ibm[:])
		}

		if m.useSkinCache && cache != nil {
			m.cacheSection(frame, cache, out.LOD, lod, si, morphWeights, &sd)
		}
		out.Sections = append(out.Sections, sd)
	}
	return out, nil
}

func (m *skeletalMesh) cacheSection(frame uint64, cache skin_cache.SkinCache, lodIndex int, lod *model.LODInfo, si int, morphWeights []float32, sd *SectionRenderData) {
	sec := &lod.Sections[si]
	morphing := false
	for _, w := range morphWeights {
		if w != 0 {
			morphing = true
			break
		}
	}
	geom := &skin_cache.GeometryDescriptor{
		Variant:           skin_cache.SelectVariant(sec, morphing),
		Vertices:          lod.Vertices,
		ExtraInfluences:   lod.ExtraInfluences,
		BaseVertex:        sec.BaseVertexIndex,
		VertexCount:       sec.NumVertices,
		Indices:           sec.Indices,
		BoneMatrices:      sd.BoneMatrices,
		RecomputeTangents: sec.RecomputeTangents,
	}
	if morphing {
		geom.MorphTargets = lod.MorphTargets
		geom.MorphWeights = morphWeights
	}
	if c, ok := m.cloth[si]; ok {
		geom.ClothPositions = c.positions
		geom.ClothBlend = c.blend
	}

	key := skin_cache.SectionKey{Owner: m.id, LOD: lodIndex, Section: si}
	slot, err := cache.StartCacheMesh(key, frame, geom)
	if err != nil {
		sd.Fallback = true
		m.logger.Debug("skin cache unavailable, skinning per draw", "mesh", m.id, "section", si, "error", err)
		return
	}
	sd.Cached = true
	sd.SlotKey = slot
}

func (m *skeletalMesh) Release() {
	_ = m.coord.SetLeader(nil)
	m.coord.Unbind()
}
