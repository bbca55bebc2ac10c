package model

import (
	"encoding/binary"
	"math"
	"unsafe"
)

// GPUVertex is the GPU-aligned representation of a single unskinned mesh vertex.
// Size: 64 bytes (std430 aligned, no padding required).
type GPUVertex struct {
	Position [3]float32 // offset  0: vertex position in model space (12 bytes)
	Normal   [3]float32 // offset 12: vertex normal (12 bytes)
	TexCoord [2]float32 // offset 24: UV texture coordinate (8 bytes)
	Color    [4]float32 // offset 32: per-vertex RGBA color (16 bytes)
	Tangent  [4]float32 // offset 48: tangent (xyz) + bitangent sign (w) (16 bytes)
}

// Size returns the size of the GPUVertex struct in bytes.
//
// Returns:
//   - int: the size of the struct in bytes.
func (g *GPUVertex) Size() int {
	return int(unsafe.Sizeof(*g))
}

// Marshal serializes the GPUVertex struct into a byte buffer suitable for GPU upload.
//
// Returns:
//   - []byte: 64-byte buffer ready for GPU upload.
func (g *GPUVertex) Marshal() []byte {
	buf := make([]byte, 64)
	g.marshalInto(buf)
	return buf
}

func (g *GPUVertex) marshalInto(buf []byte) {
	off := putFloats(buf, 0, g.Position[:])
	off = putFloats(buf, off, g.Normal[:])
	off = putFloats(buf, off, g.TexCoord[:])
	off = putFloats(buf, off, g.Color[:])
	putFloats(buf, off, g.Tangent[:])
}

// GPUSkinnedVertex extends GPUVertex with up to four bone influences.
// BoneIndices are section-local and resolved through RenderSection.BoneMap.
// Size: 96 bytes (64 base vertex + 32 skinning data, std430 aligned).
type GPUSkinnedVertex struct {
	GPUVertex              // offset  0: base vertex data (64 bytes)
	BoneIndices [4]uint32  // offset 64: section-local bone indices (16 bytes)
	BoneWeights [4]float32 // offset 80: blend weights, summing to 1.0 with any extra influences (16 bytes)
}

// Size returns the size of the GPUSkinnedVertex struct in bytes.
//
// Returns:
//   - int: the size of the struct in bytes.
func (g *GPUSkinnedVertex) Size() int {
	return int(unsafe.Sizeof(*g))
}

// Marshal serializes the GPUSkinnedVertex struct into a byte buffer suitable for GPU upload.
//
// Returns:
//   - []byte: 96-byte buffer ready for GPU upload.
func (g *GPUSkinnedVertex) Marshal() []byte {
	buf := make([]byte, 96)
	g.GPUVertex.marshalInto(buf)
	for i := 0; i < 4; i++ {
		binary.LittleEndian.PutUint32(buf[64+i*4:], g.BoneIndices[i])
	}
	putFloats(buf, 80, g.BoneWeights[:])
	return buf
}

// GPUExtraInfluence carries bone influences 5..8 of a vertex in a parallel stream.
// Size: 32 bytes.
type GPUExtraInfluence struct {
	BoneIndices [4]uint32
	BoneWeights [4]float32
}

// Size returns the size of the GPUExtraInfluence struct in bytes.
func (g *GPUExtraInfluence) Size() int {
	return int(unsafe.Sizeof(*g))
}

// MarshalSkinnedVertices packs a vertex slice into one contiguous upload buffer.
//
// Parameters:
//   - vertices: the vertices to pack
//
// Returns:
//   - []byte: len(vertices)*96 bytes
func MarshalSkinnedVertices(vertices []GPUSkinnedVertex) []byte {
	out := make([]byte, 0, len(vertices)*96)
	for i := range vertices {
		out = append(out, vertices[i].Marshal()...)
	}
	return out
}

// ComputeBoundingRadius calculates the bounding sphere radius from a slice of
// GPUSkinnedVertex positions. The radius is the maximum distance from the origin.
//
// Parameters:
//   - vertices: the vertex data to compute the bounding radius from
//
// Returns:
//   - float32: the maximum distance from the origin
func ComputeBoundingRadius(vertices []GPUSkinnedVertex) float32 {
	var maxDistSq float32
	for _, v := range vertices {
		p := v.Position
		distSq := p[0]*p[0] + p[1]*p[1] + p[2]*p[2]
		if distSq > maxDistSq {
			maxDistSq = distSq
		}
	}
	return float32(math.Sqrt(float64(maxDistSq)))
}

func putFloats(buf []byte, off int, values []float32) int {
	for _, v := range values {
		binary.LittleEndian.PutUint32(buf[off:off+4], math.Float32bits(v))
		off += 4
	}
	return off
}
