// Package update_rate throttles how often a group of meshes updates and evaluates its animation,
// based on visibility, screen size and root-motion needs.
package update_rate

import (
	"sync"
)

// OptimizeMode selects how skipped time is accounted for.
type OptimizeMode int

const (
	// ModeTrail lets the animation lag behind and pays the time debt back on the next update.
	ModeTrail OptimizeMode = iota
	// ModeLookAhead evaluates ahead of time and interpolates toward the future pose.
	ModeLookAhead
)

// String returns the mode name.
func (m OptimizeMode) String() string {
	switch m {
	case ModeTrail:
		return "trail"
	case ModeLookAhead:
		return "look_ahead"
	default:
		return "unknown"
	}
}

// Settings holds the policy knobs shared by every group of a registry.
type Settings struct {
	// Enabled turns throttling on. When false every group updates and evaluates every frame.
	Enabled bool
	// BaseNonRenderedUpdateRate is the rate used for groups that were not recently rendered.
	BaseNonRenderedUpdateRate int
	// MaxEvalRateForInterpolation is the exclusive upper evaluation rate that still interpolates skipped frames.
	MaxEvalRateForInterpolation int
	// VisibleDistanceFactorThresholds are descending screen-size factors; each one the factor
	// does not exceed adds one frame to the evaluation rate.
	VisibleDistanceFactorThresholds []float32
	// LODToFrameSkip maps a LOD to the number of frames to skip between evaluations.
	LODToFrameSkip map[int]int
	// UseLODMap selects LODToFrameSkip instead of the distance thresholds.
	UseLODMap bool
	// ForceRate overrides the visible-mesh rate derived from LOD or distance when positive.
	ForceRate int
	// ForceInterpolation interpolates skipped frames regardless of rate.
	ForceInterpolation bool
	// LookAheadFrameTime is the time per rate step pre-fetched in look-ahead mode.
	LookAheadFrameTime float32
}

// DefaultSettings returns the stock policy.
func DefaultSettings() Settings {
	return Settings{
		Enabled:                         true,
		BaseNonRenderedUpdateRate:       4,
		MaxEvalRateForInterpolation:     4,
		VisibleDistanceFactorThresholds: []float32{0.4, 0.2},
		LookAheadFrameTime:              1.0 / 30.0,
	}
}

// Input carries the per-frame facts a group's decision depends on.
type Input struct {
	// Frame is the world frame counter.
	Frame uint64
	// DeltaTime is the world frame delta in seconds.
	DeltaTime float32
	// RecentlyRendered reports whether any mesh of the group was drawn recently.
	RecentlyRendered bool
	// MaxDistanceFactor is the largest screen-size factor of the group's meshes.
	MaxDistanceFactor float32
	// LOD is the most detailed LOD among the group's meshes.
	LOD int
	// HumanControlled marks player-driven owners.
	HumanControlled bool
	// NeedsValidRootMotion marks owners that consume root motion each frame.
	NeedsValidRootMotion bool
	// RootMotionFromEverything marks owners whose root motion comes from every animation source.
	RootMotionFromEverything bool
}

// Merge folds the facts of another mesh of the same owner into in. The group is rendered if any
// mesh was, uses the largest distance factor and the most detailed LOD, and inherits every
// root-motion and control flag.
//
// Parameters:
//   - other: the facts of one more mesh, for the same frame
//
// Returns:
//   - Input: the combined facts
func (in Input) Merge(other Input) Input {
	in.RecentlyRendered = in.RecentlyRendered || other.RecentlyRendered
	in.MaxDistanceFactor = max(in.MaxDistanceFactor, other.MaxDistanceFactor)
	in.LOD = min(in.LOD, other.LOD)
	in.HumanControlled = in.HumanControlled || other.HumanControlled
	in.NeedsValidRootMotion = in.NeedsValidRootMotion || other.NeedsValidRootMotion
	in.RootMotionFromEverything = in.RootMotionFromEverything || other.RootMotionFromEverything
	return in
}

// Decision is the outcome of a group tick.
type Decision struct {
	// SkipUpdate is true when the animation graph should not advance this frame.
	SkipUpdate bool
	// SkipEvaluation is true when no new pose should be produced this frame.
	SkipEvaluation bool
	// Interpolate is true when skipped frames blend toward the last evaluated pose.
	Interpolate bool
	// DeltaTime is the time to advance the graph by, including any repaid time debt.
	DeltaTime float32
	// InterpolationAlpha is the blend factor toward the cached pose.
	InterpolationAlpha float32
	// RootMotionAlpha is the fraction of extracted root motion to apply this frame.
	RootMotionAlpha float32
	// UpdateRate and EvaluationRate are the rates in effect.
	UpdateRate, EvaluationRate int
	// Mode is the accounting mode in effect.
	Mode OptimizeMode
}

// Params is the update-rate state of one owner group. It is shared by every mesh of the owner
// and ticks at most once per frame; later calls in the same frame return the cached decision.
type Params struct {
	mu       *sync.Mutex
	settings *Settings

	shift            uint8
	ticked           bool
	lastFrame        uint64
	decision         Decision
	mode             OptimizeMode
	updateRate       int
	evaluationRate   int
	interpolate      bool
	skipUpdate       bool
	skipEvaluation   bool
	skippedUpdates   int
	skippedEvals     int
	tickedPoseOffset float32
	additionalTime   float32
	thisTickDelta    float32
}

// NewParams creates a standalone group state with the given settings and stagger shift.
//
// Parameters:
//   - settings: the policy; must outlive the Params
//   - shift: stagger phase added to the frame counter
//
// Returns:
//   - *Params: the group state
func NewParams(settings *Settings, shift uint8) *Params {
	return &Params{
		mu:             &sync.Mutex{},
		settings:       settings,
		shift:          shift,
		updateRate:     1,
		evaluationRate: 1,
	}
}

// Shift returns the stagger phase of the group.
func (p *Params) Shift() uint8 {
	return p.shift
}

// Tick computes the group's decision for in.Frame. Repeated calls for the same frame return
// the first result without advancing any state.
//
// Parameters:
//   - in: the frame facts
//
// Returns:
//   - Decision: what the group's meshes should do this frame
func (p *Params) Tick(in Input) Decision {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.ticked && p.lastFrame == in.Frame {
		return p.decision
	}
	p.ticked = true
	p.lastFrame = in.Frame

	s := p.settings
	switch {
	case !s.Enabled:
		p.setTrailMode(in, 1, 1, false)
	case in.HumanControlled:
		p.setTrailMode(in, 1, 1, false)
	case !in.RecentlyRendered:
		nonRendered := max(s.BaseNonRenderedUpdateRate, 1)
		switch {
		case in.RootMotionFromEverything:
			p.setLookAheadMode(in, s.LookAheadFrameTime*float32(nonRendered))
		case in.NeedsValidRootMotion:
			p.setTrailMode(in, 1, nonRendered, false)
		default:
			p.setTrailMode(in, nonRendered, nonRendered, false)
		}
	case in.NeedsValidRootMotion && !in.RootMotionFromEverything:
		p.setTrailMode(in, 1, 1, false)
	default:
		rate := p.desiredEvaluationRate(in)
		if rate > 1 && in.RootMotionFromEverything && s.ForceRate <= 0 {
			p.setLookAheadMode(in, s.LookAheadFrameTime*float32(rate))
		} else {
			p.setTrailMode(in, rate, rate, true)
		}
	}

	p.decision = p.buildDecision()
	return p.decision
}

// Decision returns the last computed decision.
func (p *Params) Decision() Decision {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.decision
}

func (p *Params) desiredEvaluationRate(in Input) int {
	s := p.settings
	if s.ForceRate > 0 {
		return s.ForceRate
	}
	if s.UseLODMap {
		if skip, ok := s.LODToFrameSkip[in.LOD]; ok {
			return max(skip, 0) + 1
		}
		return 1
	}
	rate := 1
	for _, threshold := range s.VisibleDistanceFactorThresholds {
		if in.MaxDistanceFactor > threshold {
			break
		}
		rate++
	}
	return rate
}

func (p *Params) setTrailMode(in Input, updateRate, evalRate int, interpolate bool) {
	s := p.settings
	if p.mode == ModeLookAhead {
		p.tickedPoseOffset = 0
	}
	p.mode = ModeTrail
	p.thisTickDelta = in.DeltaTime

	updateRate = max(updateRate, 1)
	evalRate = max(evalRate, 1)

	p.interpolate = (interpolate && evalRate < s.MaxEvalRateForInterpolation) || (s.Enabled && s.ForceInterpolation)
	p.updateRate = updateRate
	p.evaluationRate = max(evalRate/updateRate, 1) * updateRate

	counter := in.Frame + uint64(p.shift)
	p.skipUpdate = counter%uint64(p.updateRate) != 0
	p.skipEvaluation = counter%uint64(p.evaluationRate) != 0

	if p.skipUpdate {
		p.skippedUpdates++
	} else {
		p.skippedUpdates = 0
	}
	if p.skipEvaluation {
		p.skippedEvals++
	} else {
		p.skippedEvals = 0
	}
	if p.skippedUpdates >= p.updateRate || p.skippedEvals >= p.evaluationRate {
		p.skipUpdate, p.skipEvaluation = false, false
		p.skippedUpdates, p.skippedEvals = 0, 0
	}

	p.additionalTime = 0
	if p.skipUpdate {
		p.tickedPoseOffset -= in.DeltaTime
	} else if p.tickedPoseOffset < 0 {
		p.additionalTime = -p.tickedPoseOffset
		p.tickedPoseOffset = 0
	}
}

func (p *Params) setLookAheadMode(in Input, lookAhead float32) {
	if p.mode == ModeTrail {
		p.tickedPoseOffset = 0
	}
	p.mode = ModeLookAhead
	p.thisTickDelta = in.DeltaTime
	p.interpolate = true
	p.updateRate = 1
	p.evaluationRate = 1
	p.skippedUpdates, p.skippedEvals = 0, 0

	p.tickedPoseOffset -= in.DeltaTime
	if p.tickedPoseOffset < 0 {
		lookAhead = max(-p.tickedPoseOffset, lookAhead)
		p.additionalTime = lookAhead
		p.tickedPoseOffset += lookAhead
		p.skipUpdate, p.skipEvaluation = false, false
		return
	}
	p.additionalTime = 0
	p.skipUpdate, p.skipEvaluation = true, true
}

func (p *Params) buildDecision() Decision {
	d := Decision{
		SkipUpdate:     p.skipUpdate,
		SkipEvaluation: p.skipEvaluation,
		Interpolate:    p.interpolate,
		UpdateRate:     p.updateRate,
		EvaluationRate: p.evaluationRate,
		Mode:           p.mode,
	}
	switch p.mode {
	case ModeLookAhead:
		if !p.skipUpdate {
			d.DeltaTime = p.additionalTime
		}
		d.RootMotionAlpha = clamp01(p.thisTickDelta / (p.tickedPoseOffset + p.thisTickDelta))
		d.InterpolationAlpha = d.RootMotionAlpha
	default:
		if !p.skipUpdate {
			d.DeltaTime = p.thisTickDelta + p.additionalTime
		}
		d.RootMotionAlpha = 1
		d.InterpolationAlpha = trailInterpolationAlpha(p.evaluationRate)
	}
	if p.evaluationRate <= 1 && p.mode == ModeTrail {
		d.Interpolate = d.Interpolate && p.settings.ForceInterpolation
	}
	return d
}

// trailInterpolationAlpha is tuned empirically: roughly half a rate step plus a fixed bias.
func trailInterpolationAlpha(evaluationRate int) float32 {
	return 0.25 + 1/float32(max(evaluationRate, 2)*2)
}

func clamp01(v float32) float32 {
	if v != v || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
