package skin_cache

import (
	"github.com/Carmen-Shannon/oxy-anim/engine/model"
	"github.com/google/uuid"
)

// SlotState is the resource state of a frame slot buffer.
type SlotState int

const (
	// SlotStateIdle is a slot that has not been used yet.
	SlotStateIdle SlotState = iota
	// SlotStateWritable is a slot being recorded into during its frame.
	SlotStateWritable
	// SlotStateReadable is a slot whose compute work is recorded and may be read by draws.
	SlotStateReadable
)

// String returns the state name.
func (s SlotState) String() string {
	switch s {
	case SlotStateWritable:
		return "writable"
	case SlotStateReadable:
		return "readable"
	default:
		return "idle"
	}
}

// SectionKey identifies one render section of one mesh instance.
type SectionKey struct {
	Owner   uuid.UUID
	LOD     int
	Section int
}

// GeometryDescriptor is the skinning input of one render section for one frame.
type GeometryDescriptor struct {
	Variant Variant

	// Vertices is the LOD's whole source vertex stream; the section is
	// [BaseVertex, BaseVertex+VertexCount).
	Vertices        []model.GPUSkinnedVertex
	ExtraInfluences []model.GPUExtraInfluence
	BaseVertex      uint32
	VertexCount     uint32

	// Indices are triangle indices relative to BaseVertex, used by the tangent pass.
	Indices []uint32

	// BoneMatrices holds 16 column-major floats per section-local bone.
	BoneMatrices []float32

	MorphTargets []model.MorphTarget
	MorphWeights []float32

	// ClothPositions holds one simulated position per section vertex.
	ClothPositions [][3]float32
	ClothBlend     float32

	RecomputeTangents bool
}

func (g *GeometryDescriptor) validate() bool {
	if g == nil || g.VertexCount == 0 {
		return false
	}
	if uint64(g.BaseVertex)+uint64(g.VertexCount) > uint64(len(g.Vertices)) {
		return false
	}
	caps := g.Variant.Capabilities()
	if caps.MaxInfluences > 4 && len(g.ExtraInfluences) < int(g.BaseVertex+g.VertexCount) {
		return false
	}
	if caps.Cloth && len(g.ClothPositions) > 0 && len(g.ClothPositions) < int(g.VertexCount) {
		return false
	}
	return len(g.BoneMatrices)%16 == 0
}

// SlotBuffer is a backend-owned buffer holding the skinned output of one frame slot.
type SlotBuffer interface {
	// Floats returns the capacity of the buffer in float32 values.
	Floats() uint32
}

// DispatchJob is one recorded compute dispatch.
type DispatchJob struct {
	// Owner is the mesh instance the section belongs to.
	Owner  uuid.UUID
	Buffer SlotBuffer
	// Offset is the float offset of the allocated range.
	Offset uint32
	// StreamOffset is the float offset of source vertex 0; vertex v is written at
	// StreamOffset + v*OutputStrideFloats.
	StreamOffset uint32
	Geometry     *GeometryDescriptor
	Capabilities Capabilities
}

// SkinningBackend performs skinning work for the cache. Implementations may execute
// immediately (CPU) or record GPU commands executed in submission order.
type SkinningBackend interface {
	// CreateSlotBuffer allocates the buffer of one frame slot.
	//
	// Parameters:
	//   - slot: the slot index
	//   - floats: capacity in float32 values
	//
	// Returns:
	//   - SlotBuffer: the buffer
	//   - error: an error if allocation failed
	CreateSlotBuffer(slot int, floats uint32) (SlotBuffer, error)

	// Dispatch skins the job's vertex range into its slot buffer.
	//
	// Parameters:
	//   - job: the dispatch
	//
	// Returns:
	//   - error: an error if the dispatch could not be recorded
	Dispatch(job DispatchJob) error

	// DispatchRecomputeTangents runs the per-triangle tangent accumulation and the
	// normalization pass over an already skinned range.
	//
	// Parameters:
	//   - job: the dispatch that produced the range
	//
	// Returns:
	//   - error: an error if the passes could not be recorded
	DispatchRecomputeTangents(job DispatchJob) error

	// Transition moves a slot buffer into a new resource state. Moving to SlotStateReadable
	// is the barrier after which draws may read the buffer.
	//
	// Parameters:
	//   - buf: the slot buffer
	//   - state: the new state
	//
	// Returns:
	//   - error: an error if the transition failed
	Transition(buf SlotBuffer, state SlotState) error

	// Release frees every buffer created by the backend.
	Release()
}

// OwnerReleaser is implemented by backends that keep resources per mesh instance, such as
// uploaded source streams. The cache forwards ReleaseOwner to it.
type OwnerReleaser interface {
	// ReleaseOwner frees the resources only the owner still uses.
	//
	// Parameters:
	//   - owner: the mesh instance
	ReleaseOwner(owner uuid.UUID)
}
