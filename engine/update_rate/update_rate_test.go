package update_rate

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const dt = float32(1.0 / 60.0)

func newParams(t *testing.T, mutate func(*Settings), shift uint8) *Params {
	t.Helper()
	s := DefaultSettings()
	if mutate != nil {
		mutate(&s)
	}
	return NewParams(&s, shift)
}

func run(p *Params, frames int, in Input) []Decision {
	out := make([]Decision, frames)
	for f := 0; f < frames; f++ {
		in.Frame = uint64(f)
		in.DeltaTime = dt
		out[f] = p.Tick(in)
	}
	return out
}

func TestRateOneNeverSkips(t *testing.T) {
	inputs := map[string]Input{
		"close and visible": {RecentlyRendered: true, MaxDistanceFactor: 1},
		"human controlled":  {RecentlyRendered: true, MaxDistanceFactor: 0.01, HumanControlled: true},
		"root motion":       {RecentlyRendered: true, MaxDistanceFactor: 0.01, NeedsValidRootMotion: true},
	}
	for name, in := range inputs {
		t.Run(name, func(t *testing.T) {
			for _, d := range run(newParams(t, nil, 5), 50, in) {
				require.False(t, d.SkipUpdate)
				require.False(t, d.SkipEvaluation)
				require.Equal(t, 1, d.EvaluationRate)
				require.InDelta(t, dt, d.DeltaTime, 1e-7)
			}
		})
	}
}

func TestDisabledNeverSkips(t *testing.T) {
	p := newParams(t, func(s *Settings) { s.Enabled = false }, 0)
	for _, d := range run(p, 20, Input{}) {
		assert.False(t, d.SkipEvaluation)
	}
}

func TestTrailModeEvaluatesOncePerWindow(t *testing.T) {
	for _, tc := range []struct {
		factor float32
		rate   int
	}{{0.3, 2}, {0.1, 3}} {
		for shift := uint8(0); shift < 4; shift++ {
			p := newParams(t, nil, shift)
			decisions := run(p, 60, Input{RecentlyRendered: true, MaxDistanceFactor: tc.factor})
			for start := 0; start+tc.rate <= len(decisions); start++ {
				evaluated := 0
				for _, d := range decisions[start : start+tc.rate] {
					require.Equal(t, tc.rate, d.EvaluationRate)
					require.Equal(t, ModeTrail, d.Mode)
					if !d.SkipEvaluation {
						evaluated++
						require.False(t, d.SkipUpdate)
					}
				}
				require.Equal(t, 1, evaluated, "rate %d shift %d window at %d", tc.rate, shift, start)
			}
		}
	}
}

func TestNonRenderedSkipsThreeOfFour(t *testing.T) {
	p := newParams(t, nil, 1)
	decisions := run(p, 40, Input{RecentlyRendered: false, MaxDistanceFactor: 1})
	for start := 0; start+4 <= len(decisions); start += 4 {
		skipped := 0
		for _, d := range decisions[start : start+4] {
			if d.SkipEvaluation {
				skipped++
			}
		}
		assert.Equal(t, 3, skipped)
	}
	assert.False(t, decisions[0].Interpolate)
}

func TestNonRenderedRootMotionStillUpdatesEveryFrame(t *testing.T) {
	p := newParams(t, nil, 0)
	decisions := run(p, 8, Input{NeedsValidRootMotion: true})
	evaluated := 0
	for _, d := range decisions {
		assert.False(t, d.SkipUpdate)
		if !d.SkipEvaluation {
			evaluated++
		}
	}
	assert.Equal(t, 2, evaluated)
}

func TestTimeDebtIsRepaid(t *testing.T) {
	p := newParams(t, nil, 3)
	decisions := run(p, 37, Input{RecentlyRendered: true, MaxDistanceFactor: 0.1})

	var animTime, worldTime, lastSync float32
	for i, d := range decisions {
		worldTime += dt
		animTime += d.DeltaTime
		if !d.SkipUpdate {
			assert.InDelta(t, worldTime, animTime, 1e-5, "frame %d", i)
			lastSync = worldTime
		} else {
			assert.Zero(t, d.DeltaTime)
		}
	}
	assert.Greater(t, lastSync, float32(0))
}

func TestTickIsIdempotentPerFrame(t *testing.T) {
	p := newParams(t, nil, 1)
	in := Input{Frame: 10, DeltaTime: dt, RecentlyRendered: true, MaxDistanceFactor: 0.1}
	first := p.Tick(in)
	for i := 0; i < 3; i++ {
		assert.Equal(t, first, p.Tick(in))
	}
	assert.Equal(t, first, p.Decision())
}

func TestLODMapAndForceRate(t *testing.T) {
	p := newParams(t, func(s *Settings) {
		s.UseLODMap = true
		s.LODToFrameSkip = map[int]int{0: 0, 1: 1, 2: 3}
	}, 0)
	assert.Equal(t, 4, p.Tick(Input{Frame: 1, RecentlyRendered: true, LOD: 2}).EvaluationRate)
	assert.Equal(t, 2, p.Tick(Input{Frame: 2, RecentlyRendered: true, LOD: 1}).EvaluationRate)
	assert.Equal(t, 1, p.Tick(Input{Frame: 3, RecentlyRendered: true, LOD: 7}).EvaluationRate)

	forced := newParams(t, func(s *Settings) { s.ForceRate = 5 }, 0)
	assert.Equal(t, 5, forced.Tick(Input{Frame: 1, RecentlyRendered: true, MaxDistanceFactor: 1}).EvaluationRate)
}

func TestForceRateKeepsFullRateBranches(t *testing.T) {
	force := func(s *Settings) { s.ForceRate = 4 }
	for name, in := range map[string]Input{
		"human controlled": {RecentlyRendered: true, HumanControlled: true},
		"root motion":      {RecentlyRendered: true, NeedsValidRootMotion: true},
	} {
		t.Run(name, func(t *testing.T) {
			for _, d := range run(newParams(t, force, 0), 8, in) {
				require.False(t, d.SkipUpdate)
				require.False(t, d.SkipEvaluation)
				require.Equal(t, 1, d.EvaluationRate)
			}
		})
	}

	// hidden meshes keep the non-rendered rate
	hidden := run(newParams(t, force, 0), 8, Input{})
	assert.Equal(t, DefaultSettings().BaseNonRenderedUpdateRate, hidden[0].EvaluationRate)
}

func TestInterpolationAlpha(t *testing.T) {
	p := newParams(t, nil, 0)
	d := p.Tick(Input{Frame: 1, DeltaTime: dt, RecentlyRendered: true, MaxDistanceFactor: 0.3})
	assert.True(t, d.Interpolate)
	assert.InDelta(t, 0.5, d.InterpolationAlpha, 1e-6)

	d = p.Tick(Input{Frame: 2, DeltaTime: dt, RecentlyRendered: true, MaxDistanceFactor: 0.1})
	assert.InDelta(t, 0.25+1.0/6.0, d.InterpolationAlpha, 1e-6)

	// rate 4 reaches MaxEvalRateForInterpolation and stops interpolating
	q := newParams(t, func(s *Settings) { s.VisibleDistanceFactorThresholds = []float32{0.4, 0.3, 0.2} }, 0)
	d = q.Tick(Input{Frame: 1, DeltaTime: dt, RecentlyRendered: true, MaxDistanceFactor: 0.1})
	assert.Equal(t, 4, d.EvaluationRate)
	assert.False(t, d.Interpolate)
}

func TestLookAheadKeepsAnimationAhead(t *testing.T) {
	p := newParams(t, nil, 0)
	in := Input{RecentlyRendered: true, MaxDistanceFactor: 0.1, RootMotionFromEverything: true}

	var animTime, worldTime float32
	updates := 0
	for f := 0; f < 30; f++ {
		in.Frame = uint64(f)
		in.DeltaTime = dt
		d := p.Tick(in)
		require.Equal(t, ModeLookAhead, d.Mode)
		require.True(t, d.Interpolate)
		worldTime += dt
		animTime += d.DeltaTime
		require.GreaterOrEqual(t, animTime+1e-5, worldTime)
		require.GreaterOrEqual(t, d.RootMotionAlpha, float32(0))
		require.LessOrEqual(t, d.RootMotionAlpha, float32(1))
		if !d.SkipUpdate {
			updates++
		}
	}
	assert.Less(t, updates, 30)
	assert.Greater(t, updates, 0)
}

func TestRegistry(t *testing.T) {
	r := NewRegistry(WithInitialShift(10))
	a, b := uuid.New(), uuid.New()

	pa := r.Acquire(a)
	assert.Same(t, pa, r.Acquire(a))
	pb := r.Acquire(b)
	assert.NotEqual(t, pa.Shift(), pb.Shift())
	assert.Equal(t, uint8(10), pa.Shift())
	assert.Equal(t, 2, r.Len())

	r.Release(a)
	_, ok := r.Lookup(a)
	assert.True(t, ok)
	r.Release(a)
	_, ok = r.Lookup(a)
	assert.False(t, ok)
	assert.Equal(t, 1, r.Len())

	r.Release(uuid.New())
	assert.Equal(t, 1, r.Len())
}

func TestInputMergeCombinesGroupFacts(t *testing.T) {
	a := Input{Frame: 3, DeltaTime: dt, MaxDistanceFactor: 0.1, LOD: 2}
	b := Input{Frame: 3, DeltaTime: dt, RecentlyRendered: true, MaxDistanceFactor: 0.5, LOD: 1, NeedsValidRootMotion: true}

	m := a.Merge(b)
	assert.True(t, m.RecentlyRendered)
	assert.Equal(t, float32(0.5), m.MaxDistanceFactor)
	assert.Equal(t, 1, m.LOD)
	assert.True(t, m.NeedsValidRootMotion)
	assert.False(t, m.HumanControlled)
	assert.Equal(t, m, b.Merge(a))
}
