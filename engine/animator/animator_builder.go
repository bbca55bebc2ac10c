package animator

import (
	"github.com/Carmen-Shannon/oxy-anim/engine/model"
)

// AnimatorBuilderOption is a functional option for configuring an Animator during construction.
type AnimatorBuilderOption func(*animator)

// WithModel is an option builder that assigns a Model to the Animator during construction.
// This calls SetModel internally, which indexes every clip's channels by bone.
//
// Parameters:
//   - m: the Model to associate with this animator
//
// Returns:
//   - AnimatorBuilderOption: a function that applies the model option to an animator
func WithModel(m model.Model) AnimatorBuilderOption {
	return func(a *animator) {
		a.SetModel(m)
	}
}

// WithRootMotionExtraction is an option builder that enables root motion extraction.
//
// Parameters:
//   - enabled: whether the root bone's translation is extracted
//
// Returns:
//   - AnimatorBuilderOption: a function that applies the root motion option to an animator
func WithRootMotionExtraction(enabled bool) AnimatorBuilderOption {
	return func(a *animator) {
		a.extractRootMotion = enabled
	}
}

// WithAutoPlay is an option builder that starts a clip immediately. Apply it after WithModel.
// Unknown clips are ignored.
//
// Parameters:
//   - clipIndex: the clip to play
//   - loop: whether playback wraps at the clip's end
//
// Returns:
//   - AnimatorBuilderOption: a function that applies the playback option to an animator
func WithAutoPlay(clipIndex int, loop bool) AnimatorBuilderOption {
	return func(a *animator) {
		_ = a.PlayAnimation(clipIndex, loop)
	}
}
