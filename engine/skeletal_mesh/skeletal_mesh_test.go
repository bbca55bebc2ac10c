package skeletal_mesh

import (
	"testing"

	"github.com/Carmen-Shannon/oxy-anim/common"
	"github.com/Carmen-Shannon/oxy-anim/engine/animator"
	"github.com/Carmen-Shannon/oxy-anim/engine/model"
	"github.com/Carmen-Shannon/oxy-anim/engine/pose"
	"github.com/Carmen-Shannon/oxy-anim/engine/skin_cache"
	"github.com/Carmen-Shannon/oxy-anim/engine/update_rate"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const tol = 1e-4

func chainModel(t *testing.T, clips ...*model.AnimationClip) model.Model {
	t.Helper()
	skel, err := model.BuildChainSkeleton("bone", 3, [3]float32{0, 1, 0})
	require.NoError(t, err)
	lod := model.BuildTubeLOD(skel, 4, 0.1)
	lod.MorphTargets = []model.MorphTarget{{
		Name:   "sway",
		Deltas: []model.MorphDelta{{VertexIndex: 0, PositionDelta: [3]float32{0, 0, 1}}},
	}}
	if len(clips) == 0 {
		clips = append(clips, model.BuildSwayClip("sway", skel, [3]float32{0, 0, 1}, 0.5, 1))
	}
	return model.NewModel(model.WithName("chain"), model.WithSkeleton(skel), model.WithAnimations(clips...), model.WithLOD(lod))
}

func newCPUCache(t *testing.T, mutate func(*skin_cache.Settings)) skin_cache.SkinCache {
	t.Helper()
	s := skin_cache.DefaultSettings()
	s.SlotBudgetFloats = 1 << 14
	if mutate != nil {
		mutate(&s)
	}
	c, err := skin_cache.NewSkinCache(skin_cache.WithSettings(s), skin_cache.WithBackend(skin_cache.NewCPUBackend()))
	require.NoError(t, err)
	return c
}

func immediateTick(t *testing.T, m SkeletalMesh, frame uint64, dt float32) {
	t.Helper()
	require.NoError(t, m.Tick(frame, dt, nil, pose.PhaseImmediate))
}

func TestReferencePoseSkinningMatricesAreIdentity(t *testing.T) {
	mdl := chainModel(t)
	m, err := NewSkeletalMesh(WithModel(mdl))
	require.NoError(t, err)
	immediateTick(t, m, 1, 1.0/60)

	rd, err := m.BuildRenderData(1, nil, nil)
	require.NoError(t, err)
	require.Len(t, rd.Sections, 1)
	require.Len(t, rd.ComponentSpace, 3)

	var id [16]float32
	common.Identity(id[:])
	mats := rd.Sections[0].BoneMatrices
	require.Len(t, mats, 3*16)
	for b := 0; b < 3; b++ {
		for j := 0; j < 16; j++ {
			assert.InDelta(t, id[j], mats[b*16+j], tol, "bone %d element %d", b, j)
		}
	}
	assert.False(t, rd.Sections[0].Cached)
	assert.False(t, rd.Sections[0].Fallback)
}

func TestBoneVisibilityByName(t *testing.T) {
	mdl := chainModel(t)
	m, err := NewSkeletalMesh(WithModel(mdl))
	require.NoError(t, err)

	err = m.HideBone("bone_9")
	assert.True(t, errors.Is(err, ErrUnknownBone))
	assert.Contains(t, err.Error(), "bone_")

	require.NoError(t, m.HideBone("bone_1"))
	hidden, err := m.IsBoneHidden("bone_2")
	require.NoError(t, err)
	assert.True(t, hidden)
	hidden, err = m.IsBoneHidden("bone_0")
	require.NoError(t, err)
	assert.False(t, hidden)

	immediateTick(t, m, 1, 1.0/60)
	rd, err := m.BuildRenderData(1, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, [3]float32{}, rd.ComponentSpace[2].Scale)

	require.NoError(t, m.UnhideBone("bone_1"))
	hidden, err = m.IsBoneHidden("bone_2")
	require.NoError(t, err)
	assert.False(t, hidden)
}

func TestUnboundMesh(t *testing.T) {
	m, err := NewSkeletalMesh()
	require.NoError(t, err)
	assert.True(t, errors.Is(m.HideBone("bone_0"), ErrNotBound))
	_, err = m.BuildRenderData(1, nil, nil)
	assert.True(t, errors.Is(err, ErrNotBound))
	assert.NoError(t, m.Tick(1, 1.0/60, nil, pose.PhaseUpdate))
}

func TestRootMotionMovesWorldTransform(t *testing.T) {
	walk := &model.AnimationClip{Name: "walk", Duration: 1, Channels: []model.AnimationChannel{{
		BoneIndex: 0,
		PositionKeys: []model.VectorKeyframe{
			{Time: 0, Value: [3]float32{0, 0, 0}},
			{Time: 1, Value: [3]float32{2, 0, 0}},
		},
	}}}
	mdl := chainModel(t, walk)

	anim := animator.NewAnimator(animator.WithModel(mdl), animator.WithRootMotionExtraction(true), animator.WithAutoPlay(0, true))
	m, err := NewSkeletalMesh(WithModel(mdl), WithAnimator(anim))
	require.NoError(t, err)

	immediateTick(t, m, 1, 0.5)
	world := m.WorldTransform()
	assert.InDelta(t, 1, world.Translation[0], tol)
	assert.InDelta(t, 0, world.Translation[1], tol)

	// the extracted translation stays out of the pose
	rd, err := m.BuildRenderData(1, nil, nil)
	require.NoError(t, err)
	assert.InDelta(t, 0, rd.ComponentSpace[0].Translation[0], tol)
	assert.InDelta(t, 1, rd.World.Translation[0], tol)
}

func TestBuildRenderDataSkinsThroughCache(t *testing.T) {
	mdl := chainModel(t)
	m, err := NewSkeletalMesh(WithModel(mdl))
	require.NoError(t, err)
	cache := newCPUCache(t, nil)

	immediateTick(t, m, 1, 1.0/60)
	require.NoError(t, cache.BeginFrame(1))
	rd, err := m.BuildRenderData(1, cache, nil)
	require.NoError(t, err)
	require.NoError(t, cache.EndFrame())

	require.Len(t, rd.Sections, 1)
	sec := rd.Sections[0]
	require.True(t, sec.Cached)
	assert.Equal(t, 1, rd.CachedSections())
	assert.Equal(t, 0, rd.FallbackSections())

	r, err := cache.Resolve(sec.SlotKey)
	require.NoError(t, err)
	buf := r.Buffer.(*skin_cache.CPUSlotBuffer)
	lod := mdl.LOD(0)
	for i, v := range lod.Vertices {
		out := skin_cache.LoadOutputVertex(buf.Data, int(r.StreamOffset)+i*skin_cache.OutputStrideFloats)
		for k := 0; k < 3; k++ {
			assert.InDelta(t, v.Position[k], out.Position[k], tol, "vertex %d", i)
		}
	}

	_, ok := cache.Entry(skin_cache.SectionKey{Owner: m.ID(), LOD: 0, Section: 0})
	assert.True(t, ok)
}

func TestMorphWeightsFollowCurves(t *testing.T) {
	mdl := chainModel(t)
	anim := animator.NewAnimator(animator.WithModel(mdl), animator.WithAutoPlay(0, true))
	m, err := NewSkeletalMesh(WithModel(mdl), WithAnimator(anim))
	require.NoError(t, err)
	cache := newCPUCache(t, nil)

	// the sway curve peaks at a quarter of the clip
	immediateTick(t, m, 1, 0.25)
	assert.InDelta(t, 1, m.Coordinator().Curves()["sway"], tol)

	require.NoError(t, cache.BeginFrame(1))
	rd, err := m.BuildRenderData(1, cache, nil)
	require.NoError(t, err)
	require.NoError(t, cache.EndFrame())
	require.True(t, rd.Sections[0].Cached)

	r, err := cache.Resolve(rd.Sections[0].SlotKey)
	require.NoError(t, err)
	buf := r.Buffer.(*skin_cache.CPUSlotBuffer)
	src := mdl.LOD(0).Vertices[0].Position
	out := skin_cache.LoadOutputVertex(buf.Data, int(r.StreamOffset)).Position
	assert.InDelta(t, src[0], out[0], tol)
	assert.InDelta(t, src[2]+1, out[2], tol)
}

func TestSkinCacheOverflowFallsBack(t *testing.T) {
	mdl := chainModel(t)
	m, err := NewSkeletalMesh(WithModel(mdl))
	require.NoError(t, err)
	cache := newCPUCache(t, func(s *skin_cache.Settings) { s.SlotBudgetFloats = skin_cache.OutputStrideFloats })

	immediateTick(t, m, 1, 1.0/60)
	require.NoError(t, cache.BeginFrame(1))
	rd, err := m.BuildRenderData(1, cache, nil)
	require.NoError(t, err)
	require.NoError(t, cache.EndFrame())

	assert.True(t, rd.Sections[0].Fallback)
	assert.False(t, rd.Sections[0].Cached)
	assert.Len(t, rd.Sections[0].BoneMatrices, 3*16)
	assert.Equal(t, 1, rd.FallbackSections())

	// opting out of the cache skips it entirely
	m.SetSkinCacheEnabled(false)
	require.NoError(t, cache.BeginFrame(2))
	rd, err = m.BuildRenderData(2, cache, rd)
	require.NoError(t, err)
	require.NoError(t, cache.EndFrame())
	assert.False(t, rd.Sections[0].Fallback)
	assert.Equal(t, uint64(2), rd.Frame)
}

func TestRecentlyRenderedWindow(t *testing.T) {
	mdl := chainModel(t)
	m, err := NewSkeletalMesh(WithModel(mdl), WithOwner(uuid.New()))
	require.NoError(t, err)
	assert.NotEqual(t, m.ID(), m.Owner())

	assert.False(t, m.UpdateRateInput(1, 1.0/60).RecentlyRendered)
	_, err = m.BuildRenderData(5, nil, nil)
	require.NoError(t, err)
	assert.True(t, m.UpdateRateInput(7, 1.0/60).RecentlyRendered)
	assert.False(t, m.UpdateRateInput(8, 1.0/60).RecentlyRendered)

	m.SetDistanceFactor(0.3)
	m.SetLOD(2)
	m.SetHumanControlled(true)
	in := m.UpdateRateInput(8, 1.0/60)
	assert.Equal(t, float32(0.3), in.MaxDistanceFactor)
	assert.Equal(t, 2, in.LOD)
	assert.True(t, in.HumanControlled)
}

func TestAttachedGroupThrottlesEvaluation(t *testing.T) {
	mdl := chainModel(t)
	m, err := NewSkeletalMesh(WithModel(mdl))
	require.NoError(t, err)
	settings := update_rate.DefaultSettings()
	m.AttachUpdateRate(update_rate.NewParams(&settings, 0))

	// never rendered: evaluation runs at the non-rendered rate of 4
	for f := uint64(0); f < 8; f++ {
		require.NoError(t, m.Tick(f, 1.0/60, nil, pose.PhaseUpdate))
	}
	assert.Equal(t, uint64(2), m.Coordinator().Stats().Evaluations)
	assert.Equal(t, 4, m.LastDecision().EvaluationRate)

	m.SetEnabled(false)
	require.NoError(t, m.Tick(8, 1.0/60, nil, pose.PhaseUpdate))
	assert.Equal(t, uint64(2), m.Coordinator().Stats().Evaluations)
}

func TestExplicitDecisionOverridesGroup(t *testing.T) {
	mdl := chainModel(t)
	m, err := NewSkeletalMesh(WithModel(mdl))
	require.NoError(t, err)

	skip := update_rate.Decision{SkipUpdate: true, SkipEvaluation: true, UpdateRate: 2, EvaluationRate: 2}
	require.NoError(t, m.Tick(1, 1.0/60, &skip, pose.PhaseUpdate))
	assert.Equal(t, uint64(0), m.Coordinator().Stats().Evaluations)
	assert.Equal(t, 2, m.LastDecision().UpdateRate)
}

func TestFollowerCopiesLeaderPose(t *testing.T) {
	mdl := chainModel(t)
	anim := animator.NewAnimator(animator.WithModel(mdl), animator.WithAutoPlay(0, true))
	leader, err := NewSkeletalMesh(WithModel(mdl), WithAnimator(anim))
	require.NoError(t, err)
	follower, err := NewSkeletalMesh(WithModel(mdl))
	require.NoError(t, err)

	require.NoError(t, follower.SetLeader(leader))
	immediateTick(t, leader, 1, 0.25)
	immediateTick(t, follower, 1, 0.25)

	lrd, err := leader.BuildRenderData(1, nil, nil)
	require.NoError(t, err)
	frd, err := follower.BuildRenderData(1, nil, nil)
	require.NoError(t, err)
	for b := range lrd.ComponentSpace {
		assert.True(t, lrd.ComponentSpace[b].Equals(frd.ComponentSpace[b], tol), "bone %d", b)
	}

	follower.Release()
	assert.False(t, follower.Coordinator().IsBound())
}

func TestClothPositionsBlendIntoCache(t *testing.T) {
	skel, err := model.BuildChainSkeleton("bone", 2, [3]float32{0, 1, 0})
	require.NoError(t, err)
	lod := model.BuildTubeLOD(skel, 3, 0.1)
	lod.Sections[0].Cloth = true
	mdl := model.NewModel(model.WithSkeleton(skel), model.WithLOD(lod))

	m, err := NewSkeletalMesh(WithModel(mdl))
	require.NoError(t, err)
	n := int(lod.Sections[0].NumVertices)
	cloth := make([][3]float32, n)
	for i := range cloth {
		cloth[i] = [3]float32{0, 10, 0}
	}
	m.SetClothPositions(0, cloth, 1)
	cache := newCPUCache(t, nil)

	immediateTick(t, m, 1, 1.0/60)
	require.NoError(t, cache.BeginFrame(1))
	rd, err := m.BuildRenderData(1, cache, nil)
	require.NoError(t, err)
	require.NoError(t, cache.EndFrame())

	r, err := cache.Resolve(rd.Sections[0].SlotKey)
	require.NoError(t, err)
	buf := r.Buffer.(*skin_cache.CPUSlotBuffer)
	out := skin_cache.LoadOutputVertex(buf.Data, int(r.StreamOffset)).Position
	assert.InDelta(t, 10, out[1], tol)
}
