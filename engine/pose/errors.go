package pose

import "github.com/pkg/errors"

var (
	// ErrMissingAsset is returned when a coordinator is bound to a mesh without a skeleton.
	ErrMissingAsset = errors.New("skeletal mesh asset missing")

	// ErrIncompatibleSkeleton is returned when an animation graph targets a different skeleton.
	// The graph is detached and the reference pose is used instead.
	ErrIncompatibleSkeleton = errors.New("animation graph skeleton is incompatible with mesh")

	// ErrTaskInFlight is returned by Tick when the previous evaluation is still running and the
	// coordinator is not allowed to block. The previous frame's results stay visible.
	ErrTaskInFlight = errors.New("pose evaluation already in flight")
)
