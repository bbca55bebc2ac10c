// Package animator is a clip-playing animation graph: it samples keyframed clips on the CPU,
// cross-fades between them and optionally extracts root motion.
package animator

import (
	"sync"

	"github.com/Carmen-Shannon/oxy-anim/common"
	"github.com/Carmen-Shannon/oxy-anim/engine/model"
	"github.com/Carmen-Shannon/oxy-anim/engine/pose"
	"github.com/pkg/errors"
)

// ErrUnknownClip is returned when a clip index or name does not exist on the model.
var ErrUnknownClip = errors.New("unknown animation clip")

// playbackState is the per-instance playback state advanced by UpdateAnimation.
type playbackState struct {
	clipIndex int
	playing   bool

	time, speed                 float32
	loop, blending              bool
	blendTo                     int
	blendToTime                 float32
	blendDuration, blendElapsed float32
}

// animator is the implementation of the Animator interface.
type animator struct {
	mu *sync.Mutex

	model    model.Model
	skeleton *model.Skeleton
	refPose  []common.Transform
	tracks   []clipTrack

	state playbackState

	extractRootMotion bool
	rootBone          int32
	rootMotion        common.Transform
	hasRootMotion     bool
}

// Animator plays animation clips of one model instance. It is the animation graph driven by a
// pose.Coordinator: UpdateAnimation and EvaluateAnimation may run on a worker goroutine while
// playback is controlled from the owning thread.
type Animator interface {
	pose.AnimationGraph
	pose.RootMotionSource

	// Model returns the model whose clips are played.
	//
	// Returns:
	//   - model.Model: the model, or nil if not set
	Model() model.Model

	// SetModel assigns the model and indexes its clips by bone. Playback is stopped.
	//
	// Parameters:
	//   - m: the model
	SetModel(m model.Model)

	// PlayAnimation starts a clip from time zero at normal speed, cancelling any blend.
	//
	// Parameters:
	//   - clipIndex: index into the model's animations
	//   - loop: whether playback wraps at the clip's end
	//
	// Returns:
	//   - error: ErrUnknownClip if the index is out of range
	PlayAnimation(clipIndex int, loop bool) error

	// PlayAnimationByName starts a clip by name.
	//
	// Parameters:
	//   - name: the clip name
	//   - loop: whether playback wraps at the clip's end
	//
	// Returns:
	//   - error: ErrUnknownClip if no clip has that name
	PlayAnimationByName(name string, loop bool) error

	// BlendToAnimation cross-fades from the current clip to the target clip. When the blend
	// completes the target becomes the current clip.
	//
	// Parameters:
	//   - targetClipIndex: the clip to blend to
	//   - blendDuration: the transition time in seconds
	//
	// Returns:
	//   - error: ErrUnknownClip if the index is out of range
	BlendToAnimation(targetClipIndex int, blendDuration float32) error

	// Stop halts playback; the graph then reports it cannot evaluate.
	Stop()

	// SetAnimationTime sets the playback position of the current clip.
	//
	// Parameters:
	//   - time: the playback time in seconds
	SetAnimationTime(time float32)

	// AnimationTime returns the playback position of the current clip.
	//
	// Returns:
	//   - float32: the playback time in seconds
	AnimationTime() float32

	// SetAnimationSpeed sets the playback speed multiplier.
	//
	// Parameters:
	//   - speed: the multiplier (1.0 = normal, 0.5 = half speed)
	SetAnimationSpeed(speed float32)

	// CurrentClip returns the index of the playing clip, or -1 when stopped.
	//
	// Returns:
	//   - int: the clip index
	CurrentClip() int

	// IsBlending reports whether a cross-fade is in progress.
	//
	// Returns:
	//   - bool: true if blending
	IsBlending() bool

	// BlendProgress returns the cross-fade progress.
	//
	// Returns:
	//   - float32: from 0.0 (start) to 1.0 (complete); 0 when not blending
	BlendProgress() float32

	// CancelBlend stops an in-progress blend and keeps the current clip.
	CancelBlend()

	// SetRootMotionExtraction toggles root motion extraction. When enabled the root bone's
	// animated translation is removed from the pose and reported through ConsumeRootMotion.
	//
	// Parameters:
	//   - enabled: whether root motion is extracted
	SetRootMotionExtraction(enabled bool)
}

var _ Animator = &animator{}

// NewAnimator creates a new Animator with the specified options applied.
//
// Parameters:
//   - options: variadic list of AnimatorBuilderOption functions to configure the Animator
//
// Returns:
//   - Animator: a new, stopped Animator
func NewAnimator(options ...AnimatorBuilderOption) Animator {
	a := &animator{
		mu:         &sync.Mutex{},
		state:      playbackState{clipIndex: -1, speed: 1},
		rootMotion: common.IdentityTransform(),
	}
	for _, opt := range options {
		opt(a)
	}
	return a
}

func (a *animator) Model() model.Model {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.model
}

func (a *animator) SetModel(m model.Model) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.model = m
	a.skeleton = nil
	a.refPose = nil
	a.tracks = nil
	a.state = playbackState{clipIndex: -1, speed: 1}
	if m == nil || m.Skeleton() == nil {
		return
	}

	a.skeleton = m.Skeleton()
	a.refPose = a.skeleton.ReferencePose()
	a.rootBone = 0
	if len(a.skeleton.RootBoneIndices) > 0 {
		a.rootBone = a.skeleton.RootBoneIndices[0]
	}
	for _, clip := range m.Animations() {
		a.tracks = append(a.tracks, newClipTrack(clip, a.skeleton.BoneCount()))
	}
}

func (a *animator) Skeleton() *model.Skeleton {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.skeleton
}

func (a *animator) NeedsUpdate() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state.playing && (a.state.speed != 0 || a.state.blending)
}

func (a *animator) CanEvaluate() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state.playing && a.validClip(a.state.clipIndex)
}

func (a *animator) validClip(i int) bool {
	return i >= 0 && i < len(a.tracks)
}

func (a *animator) UpdateAnimation(deltaTime float32) {
	a.mu.Lock()
	defer a.mu.Unlock()
	st := &a.state
	if !st.playing || !a.validClip(st.clipIndex) {
		return
	}

	track := &a.tracks[st.clipIndex]
	prevTime := st.time
	newTime, wrapped := advance(st.time, deltaTime*st.speed, track.duration(), st.loop)
	if a.extractRootMotion {
		a.accumulateRootMotion(track, prevTime, newTime, wrapped)
	}
	st.time = newTime

	if !st.blending {
		return
	}
	st.blendElapsed += deltaTime
	st.blendToTime, _ = advance(st.blendToTime, deltaTime*st.speed, a.tracks[st.blendTo].duration(), st.loop)
	if st.blendDuration <= 0 || st.blendElapsed >= st.blendDuration {
		st.clipIndex = st.blendTo
		st.time = st.blendToTime
		st.blending = false
		st.blendElapsed = 0
	}
}

// accumulateRootMotion adds the root bone's translation change over [from, to] of the clip.
func (a *animator) accumulateRootMotion(track *clipTrack, from, to float32, wrapped bool) {
	ref := a.refPose[a.rootBone]
	at := func(t float32) [3]float32 { return track.sampleBone(a.rootBone, t, ref).Translation }

	var delta [3]float32
	if wrapped && to < from {
		delta = common.Add3(common.Sub3(at(track.duration()), at(from)), common.Sub3(at(to), at(0)))
	} else if wrapped {
		delta = common.Add3(common.Sub3(at(0), at(from)), common.Sub3(at(to), at(track.duration())))
	} else {
		delta = common.Sub3(at(to), at(from))
	}
	a.rootMotion.Translation = common.Add3(a.rootMotion.Translation, delta)
	a.hasRootMotion = true
}

func (a *animator) ConsumeRootMotion() (common.Transform, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	out, ok := a.rootMotion, a.hasRootMotion
	a.rootMotion = common.IdentityTransform()
	a.hasRootMotion = false
	return out, ok
}

func (a *animator) EvaluateAnimation(required []int32, out *pose.Pose) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	st := a.state
	if !st.playing || !a.validClip(st.clipIndex) {
		return errors.Wrapf(ErrUnknownClip, "clip %d", st.clipIndex)
	}
	if len(out.Local) < len(a.refPose) {
		return errors.Errorf("pose has %d transforms, skeleton has %d bones", len(out.Local), len(a.refPose))
	}

	primary := &a.tracks[st.clipIndex]
	var target *clipTrack
	var weight float32
	if st.blending {
		target = &a.tracks[st.blendTo]
		weight = 1
		if st.blendDuration > 0 {
			weight = min(st.blendElapsed/st.blendDuration, 1)
		}
	}

	for _, b := range required {
		tr := primary.sampleBone(b, st.time, a.refPose[b])
		if target != nil {
			tr = tr.Blend(target.sampleBone(b, st.blendToTime, a.refPose[b]), weight)
		}
		if a.extractRootMotion && b == a.rootBone {
			tr.Translation = a.refPose[b].Translation
		}
		out.Local[b] = tr
	}

	if out.Curves == nil {
		out.Curves = make(map[string]float32)
	}
	for _, c := range primary.clip.Curves {
		out.Curves[c.Name] = sampleScalar(c.Keys, st.time) * (1 - weight)
	}
	if target != nil {
		for _, c := range target.clip.Curves {
			out.Curves[c.Name] += sampleScalar(c.Keys, st.blendToTime) * weight
		}
	}
	return nil
}

func (a *animator) PlayAnimation(clipIndex int, loop bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.validClip(clipIndex) {
		return errors.Wrapf(ErrUnknownClip, "clip %d", clipIndex)
	}
	st := &a.state
	st.clipIndex = clipIndex
	st.playing = true
	st.time = 0
	st.speed = 1.0
	st.loop = loop
	st.blending = false
	st.blendElapsed = 0
	return nil
}

func (a *animator) PlayAnimationByName(name string, loop bool) error {
	m := a.Model()
	if m == nil {
		return errors.Wrapf(ErrUnknownClip, "%q (no model)", name)
	}
	idx := m.GetAnimationIndex(name)
	if idx < 0 {
		return errors.Wrapf(ErrUnknownClip, "%q", name)
	}
	return a.PlayAnimation(idx, loop)
}

func (a *animator) BlendToAnimation(targetClipIndex int, blendDuration float32) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.validClip(targetClipIndex) {
		return errors.Wrapf(ErrUnknownClip, "clip %d", targetClipIndex)
	}
	st := &a.state
	if !st.playing {
		st.clipIndex = targetClipIndex
		st.playing = true
		st.time = 0
		return nil
	}
	st.blending = true
	st.blendTo = targetClipIndex
	st.blendToTime = 0
	st.blendDuration = blendDuration
	st.blendElapsed = 0
	return nil
}

func (a *animator) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.state.playing = false
	a.state.blending = false
	a.state.clipIndex = -1
}

func (a *animator) SetAnimationTime(time float32) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.state.time = time
}

func (a *animator) AnimationTime() float32 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state.time
}

func (a *animator) SetAnimationSpeed(speed float32) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.state.speed = speed
}

func (a *animator) CurrentClip() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.state.playing {
		return -1
	}
	return a.state.clipIndex
}

func (a *animator) IsBlending() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state.blending
}

func (a *animator) BlendProgress() float32 {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.state.blending || a.state.blendDuration <= 0 {
		return 0
	}
	return a.state.blendElapsed / a.state.blendDuration
}

func (a *animator) CancelBlend() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.state.blending = false
	a.state.blendElapsed = 0
}

func (a *animator) SetRootMotionExtraction(enabled bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.extractRootMotion = enabled
}
