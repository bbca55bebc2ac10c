package pose

import (
	"sync/atomic"

	"github.com/Carmen-Shannon/oxy-anim/common"
)

// TransformBuffers is the double-buffered component-space pose of a mesh instance.
// Two slots are tagged by generation; the slot of the current generation is the front
// (readable) buffer and the other is the back buffer written by evaluation. Flip publishes
// the back buffer by advancing the generation with a single atomic store.
type TransformBuffers struct {
	slots   [2][]common.Transform
	current atomic.Uint64
}

// NewTransformBuffers creates a buffer pair with both slots initialized to initial.
//
// Parameters:
//   - initial: the starting pose, copied into both slots
//
// Returns:
//   - *TransformBuffers: the buffer pair at generation 0
func NewTransformBuffers(initial []common.Transform) *TransformBuffers {
	b := &TransformBuffers{}
	for i := range b.slots {
		b.slots[i] = make([]common.Transform, len(initial))
		copy(b.slots[i], initial)
	}
	return b
}

// Len returns the number of transforms per slot.
func (b *TransformBuffers) Len() int {
	return len(b.slots[0])
}

// Generation returns the generation of the front buffer.
func (b *TransformBuffers) Generation() uint64 {
	return b.current.Load()
}

// Front returns the readable buffer. The slice must not be modified.
func (b *TransformBuffers) Front() []common.Transform {
	return b.slots[b.current.Load()&1]
}

// Back returns the writable buffer. Only the owning thread or its in-flight task may write it.
func (b *TransformBuffers) Back() []common.Transform {
	return b.slots[(b.current.Load()+1)&1]
}

// PrepareBack copies the front buffer into the back buffer so bones outside the evaluated
// set carry over unchanged.
func (b *TransformBuffers) PrepareBack() {
	g := b.current.Load()
	copy(b.slots[(g+1)&1], b.slots[g&1])
}

// Flip publishes the back buffer and returns the new generation.
func (b *TransformBuffers) Flip() uint64 {
	g := b.current.Load() + 1
	b.current.Store(g)
	return g
}

// Snapshot copies the front buffer into dst, growing it as needed.
//
// Parameters:
//   - dst: destination slice (may be nil)
//
// Returns:
//   - []common.Transform: the filled destination
//   - uint64: the generation that was copied
func (b *TransformBuffers) Snapshot(dst []common.Transform) ([]common.Transform, uint64) {
	g := b.current.Load()
	src := b.slots[g&1]
	if cap(dst) < len(src) {
		dst = make([]common.Transform, len(src))
	}
	dst = dst[:len(src)]
	copy(dst, src)
	return dst, g
}
