package animator

import (
	"sort"

	"github.com/Carmen-Shannon/oxy-anim/common"
	"github.com/Carmen-Shannon/oxy-anim/engine/model"
	"github.com/chewxy/math32"
)

// clipTrack is a clip with its channels indexed by bone for constant-time lookup during sampling.
type clipTrack struct {
	clip          *model.AnimationClip
	channelByBone []int32
}

func newClipTrack(clip *model.AnimationClip, boneCount int) clipTrack {
	ct := clipTrack{clip: clip, channelByBone: make([]int32, boneCount)}
	for i := range ct.channelByBone {
		ct.channelByBone[i] = -1
	}
	for i, ch := range clip.Channels {
		if ch.BoneIndex >= 0 && int(ch.BoneIndex) < boneCount {
			ct.channelByBone[ch.BoneIndex] = int32(i)
		}
	}
	return ct
}

// sampleBone returns the local transform of bone at time t, falling back to ref for
// components the clip does not animate.
func (ct *clipTrack) sampleBone(bone int32, t float32, ref common.Transform) common.Transform {
	ci := ct.channelByBone[bone]
	if ci < 0 {
		return ref
	}
	ch := &ct.clip.Channels[ci]
	return common.Transform{
		Translation: sampleVector(ch.PositionKeys, t, ref.Translation),
		Rotation:    sampleQuaternion(ch.RotationKeys, t, ref.Rotation),
		Scale:       sampleVector(ch.ScaleKeys, t, ref.Scale),
	}
}

func (ct *clipTrack) duration() float32 {
	return ct.clip.Duration
}

// keySpan finds the keys surrounding t and the interpolation factor between them.
func keySpan(n int, timeAt func(int) float32, t float32) (int, int, float32) {
	next := sort.Search(n, func(i int) bool { return timeAt(i) > t })
	switch {
	case next == 0:
		return 0, 0, 0
	case next >= n:
		return n - 1, n - 1, 0
	}
	prev := next - 1
	span := timeAt(next) - timeAt(prev)
	if span <= 0 {
		return prev, prev, 0
	}
	return prev, next, (t - timeAt(prev)) / span
}

func sampleVector(keys []model.VectorKeyframe, t float32, fallback [3]float32) [3]float32 {
	if len(keys) == 0 {
		return fallback
	}
	a, b, f := keySpan(len(keys), func(i int) float32 { return keys[i].Time }, t)
	return common.Lerp3(keys[a].Value, keys[b].Value, f)
}

func sampleQuaternion(keys []model.QuaternionKeyframe, t float32, fallback [4]float32) [4]float32 {
	if len(keys) == 0 {
		return fallback
	}
	a, b, f := keySpan(len(keys), func(i int) float32 { return keys[i].Time }, t)
	return common.QuatSlerp(keys[a].Value, keys[b].Value, f)
}

func sampleScalar(keys []model.ScalarKeyframe, t float32) float32 {
	if len(keys) == 0 {
		return 0
	}
	a, b, f := keySpan(len(keys), func(i int) float32 { return keys[i].Time }, t)
	return keys[a].Value + (keys[b].Value-keys[a].Value)*f
}

// advance moves time forward by delta and wraps it into the clip when looping.
// It returns the new time and whether the clip wrapped.
func advance(time, delta, duration float32, loop bool) (float32, bool) {
	time += delta
	if duration <= 0 {
		return time, false
	}
	if loop {
		if time > duration || time < 0 {
			wrapped := math32.Mod(time, duration)
			if wrapped < 0 {
				wrapped += duration
			}
			return wrapped, true
		}
		return time, false
	}
	return max(0, min(time, duration)), false
}
