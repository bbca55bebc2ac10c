package skin_cache

import "github.com/pkg/errors"

var (
	// ErrCacheExhausted means the request could not be cached; the caller should skin per draw.
	// Every capacity failure wraps it.
	ErrCacheExhausted = errors.New("skin cache exhausted")

	// ErrDispatchQuota means the per-frame dispatch quota has been spent.
	ErrDispatchQuota = errors.Wrap(ErrCacheExhausted, "per-frame dispatch quota spent")

	// ErrSlotOverflow means the current frame slot's linear allocator is out of space.
	ErrSlotOverflow = errors.Wrap(ErrCacheExhausted, "frame slot overflow")

	// ErrNotReadable means a slot was read before its end-of-frame transition.
	ErrNotReadable = errors.New("skin cache slot is not readable")

	// ErrStaleSlot means the slot a key points to has been reused by a later frame.
	ErrStaleSlot = errors.New("skin cache slot has been reused")

	// ErrNotInFrame means StartCacheMesh was called outside BeginFrame/EndFrame or for another frame.
	ErrNotInFrame = errors.New("skin cache is not recording this frame")

	// ErrInvalidGeometry means a geometry descriptor does not describe a valid vertex range.
	ErrInvalidGeometry = errors.New("invalid skin cache geometry")
)
