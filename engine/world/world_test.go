package world

import (
	"context"
	"testing"
	"time"

	"github.com/Carmen-Shannon/oxy-anim/engine/animator"
	"github.com/Carmen-Shannon/oxy-anim/engine/config"
	"github.com/Carmen-Shannon/oxy-anim/engine/model"
	"github.com/Carmen-Shannon/oxy-anim/engine/skeletal_mesh"
	"github.com/Carmen-Shannon/oxy-anim/engine/skin_cache"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const dt = float32(1.0 / 60)

func chainModel(t *testing.T) model.Model {
	t.Helper()
	skel, err := model.BuildChainSkeleton("bone", 3, [3]float32{0, 1, 0})
	require.NoError(t, err)
	clip := model.BuildSwayClip("sway", skel, [3]float32{0, 0, 1}, 0.5, 1)
	return model.NewModel(model.WithName("chain"), model.WithSkeleton(skel), model.WithAnimations(clip), model.WithLOD(model.BuildTubeLOD(skel, 4, 0.1)))
}

func cpuCache(t *testing.T) skin_cache.SkinCache {
	t.Helper()
	s := skin_cache.DefaultSettings()
	s.SlotBudgetFloats = 1 << 14
	c, err := skin_cache.NewSkinCache(skin_cache.WithSettings(s), skin_cache.WithBackend(skin_cache.NewCPUBackend()))
	require.NoError(t, err)
	return c
}

func animatedMesh(t *testing.T, w World, mdl model.Model, opts ...skeletal_mesh.SkeletalMeshBuilderOption) skeletal_mesh.SkeletalMesh {
	t.Helper()
	anim := animator.NewAnimator(animator.WithModel(mdl), animator.WithAutoPlay(0, true))
	m, err := w.NewMesh(append([]skeletal_mesh.SkeletalMeshBuilderOption{
		skeletal_mesh.WithModel(mdl),
		skeletal_mesh.WithAnimator(anim),
	}, opts...)...)
	require.NoError(t, err)
	return m
}

func TestOwnerGroupSharesOneDecision(t *testing.T) {
	w := NewWorld(WithParallelEvaluation(false))
	defer w.Close()
	mdl := chainModel(t)
	owner := uuid.New()

	body := animatedMesh(t, w, mdl, skeletal_mesh.WithOwner(owner))
	head := animatedMesh(t, w, mdl, skeletal_mesh.WithOwner(owner), skeletal_mesh.WithHumanControlled(true))
	assert.Equal(t, 1, w.Registry().Len())

	for i := 0; i < 4; i++ {
		require.NoError(t, w.Tick(dt))
	}
	// one human-controlled mesh pins the whole group to full rate
	assert.Equal(t, 1, body.LastDecision().EvaluationRate)
	assert.Equal(t, body.LastDecision(), head.LastDecision())
	assert.Equal(t, uint64(4), body.Coordinator().Stats().Evaluations)
	assert.Equal(t, uint64(4), head.Coordinator().Stats().Evaluations)
}

func TestHiddenMeshesEvaluateAtNonRenderedRate(t *testing.T) {
	w := NewWorld(WithParallelEvaluation(false))
	defer w.Close()
	m := animatedMesh(t, w, chainModel(t))
	m.SetVisible(false)

	for i := 0; i < 8; i++ {
		require.NoError(t, w.Tick(dt))
	}
	assert.Equal(t, uint64(2), m.Coordinator().Stats().Evaluations)
	assert.Equal(t, 4, m.LastDecision().EvaluationRate)
	assert.Empty(t, w.RenderData())
	assert.Equal(t, 1, w.LastFrameStats().Meshes)
}

func TestTickBuildsRenderDataThroughCache(t *testing.T) {
	cache := cpuCache(t)
	var frames []uint64
	w := NewWorld(
		WithParallelEvaluation(false),
		WithSkinCache(cache),
		WithRenderCallback(func(frame uint64, data []*skeletal_mesh.RenderData) {
			frames = append(frames, frame)
			assert.Len(t, data, 2)
		}),
	)
	defer w.Close()
	mdl := chainModel(t)
	a := animatedMesh(t, w, mdl)
	animatedMesh(t, w, mdl, skeletal_mesh.WithSkinCache(false))

	require.NoError(t, w.Tick(dt))
	require.NoError(t, w.Tick(dt))
	assert.Equal(t, []uint64{1, 2}, frames)
	assert.Equal(t, uint64(2), w.Frame())

	data := w.RenderData()
	require.Len(t, data, 2)
	assert.Equal(t, 1, data[0].CachedSections())
	assert.Equal(t, 0, data[1].CachedSections())
	assert.Equal(t, 1, w.LastFrameStats().CachedSections)
	assert.Equal(t, 0, w.LastFrameStats().FallbackSections)

	_, ok := cache.Entry(skin_cache.SectionKey{Owner: a.ID(), LOD: 0, Section: 0})
	assert.True(t, ok)
	assert.Equal(t, 1, cache.Len())
}

func TestRenderCallbackCanUseWorld(t *testing.T) {
	w := NewWorld(WithParallelEvaluation(false))
	defer w.Close()
	mdl := chainModel(t)
	a := animatedMesh(t, w, mdl)
	b := animatedMesh(t, w, mdl)

	var lens []int
	w.SetRenderCallback(func(frame uint64, data []*skeletal_mesh.RenderData) {
		lens = append(lens, w.Len())
		assert.NotNil(t, w.Mesh(a.ID()))
		if frame == 2 {
			assert.True(t, w.Remove(b.ID()))
		}
	})

	done := make(chan error, 1)
	go func() {
		var err error
		for i := 0; i < 3 && err == nil; i++ {
			err = w.Tick(dt)
		}
		done <- err
	}()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Tick did not return")
	}
	assert.Equal(t, []int{2, 2, 1}, lens)
	assert.Len(t, w.RenderData(), 1)
}

func TestRemoveReleasesGroupAndCacheEntries(t *testing.T) {
	cache := cpuCache(t)
	w := NewWorld(WithParallelEvaluation(false), WithSkinCache(cache))
	defer w.Close()
	mdl := chainModel(t)
	a := animatedMesh(t, w, mdl)
	b := animatedMesh(t, w, mdl)
	require.NoError(t, b.SetLeader(a))
	require.NoError(t, w.Tick(dt))
	assert.Equal(t, 2, w.Registry().Len())
	assert.Equal(t, 2, cache.Len())

	assert.True(t, w.Remove(a.ID()))
	assert.False(t, w.Remove(a.ID()))
	assert.Nil(t, w.Mesh(a.ID()))
	assert.Equal(t, 1, w.Len())
	assert.Equal(t, 1, w.Registry().Len())
	assert.Nil(t, b.Coordinator().Leader())
	assert.False(t, a.Coordinator().IsBound())

	_, ok := cache.Entry(skin_cache.SectionKey{Owner: a.ID(), LOD: 0, Section: 0})
	assert.False(t, ok)
	require.NoError(t, w.Tick(dt))
}

func TestAddRejectsDuplicates(t *testing.T) {
	w := NewWorld(WithParallelEvaluation(false))
	defer w.Close()
	m := animatedMesh(t, w, chainModel(t))
	assert.True(t, errors.Is(w.Add(m), ErrDuplicateMesh))
	assert.Len(t, w.Meshes(), 1)
}

func TestParallelEvaluationCompletesEachFrame(t *testing.T) {
	w := NewWorld(WithWorkers(2, 16, time.Minute))
	defer w.Close()
	mdl := chainModel(t)
	var meshes []skeletal_mesh.SkeletalMesh
	for i := 0; i < 3; i++ {
		meshes = append(meshes, animatedMesh(t, w, mdl, skeletal_mesh.WithHumanControlled(true)))
	}

	for i := 0; i < 5; i++ {
		require.NoError(t, w.Tick(dt))
		assert.Equal(t, 3, w.LastFrameStats().Evaluated)
	}
	for _, m := range meshes {
		stats := m.Coordinator().Stats()
		assert.Equal(t, uint64(5), stats.Dispatched)
		assert.Equal(t, uint64(5), stats.Evaluations)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	w := NewWorld(WithParallelEvaluation(false), WithTickRate(500))
	defer w.Close()
	animatedMesh(t, w, chainModel(t))
	ticks := 0
	w.SetTickCallback(func(float32) { ticks++ })

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	err := w.Run(ctx)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.Positive(t, ticks)
	assert.Equal(t, uint64(ticks), w.Frame())
}

func TestProfilerReportsFrames(t *testing.T) {
	w := NewWorld(WithParallelEvaluation(false), WithProfiling(time.Nanosecond))
	defer w.Close()
	animatedMesh(t, w, chainModel(t))

	require.NoError(t, w.Tick(dt))
	time.Sleep(time.Millisecond)
	require.NoError(t, w.Tick(dt))
	r := w.Profiler().LastReport()
	assert.Positive(t, r.Frames)
	assert.Equal(t, 1, r.Totals.Meshes)
}

func TestClosedWorldRejectsWork(t *testing.T) {
	w := NewWorld(WithSkinCache(cpuCache(t)))
	animatedMesh(t, w, chainModel(t))
	w.Close()
	w.Close()
	assert.Equal(t, 0, w.Len())
	assert.True(t, errors.Is(w.Tick(dt), ErrClosed))
	_, err := w.NewMesh(skeletal_mesh.WithModel(chainModel(t)))
	assert.True(t, errors.Is(err, ErrClosed))
}

func TestConfigOptions(t *testing.T) {
	cfg := config.Default()
	cfg.Animation.ParallelEvaluation = false
	cfg.UpdateRate.BaseNonRenderedUpdateRate = 2
	opts, err := ConfigOptions(cfg)
	require.NoError(t, err)

	w := NewWorld(opts...)
	defer w.Close()
	assert.Equal(t, 2, w.Registry().Settings().BaseNonRenderedUpdateRate)

	cfg.UpdateRate.LODToFrameSkip = map[string]int{"near": 1}
	_, err = ConfigOptions(cfg)
	assert.Error(t, err)
}
