package skin_cache

import (
	"encoding/binary"
	"math"
	"unsafe"
)

// OutputStrideFloats is the number of float32 values per skinned output vertex.
const OutputStrideFloats = 12

// OutputVertex is the GPU-aligned layout of one skinned vertex in a frame slot.
// Size: 48 bytes (std430 aligned).
type OutputVertex struct {
	Position [3]float32 // offset  0: skinned position (12 bytes)
	_        float32    // offset 12: padding (4 bytes)
	Normal   [4]float32 // offset 16: skinned normal, w unused (16 bytes)
	Tangent  [4]float32 // offset 32: skinned tangent (xyz) + bitangent sign (w) (16 bytes)
}

// Size returns the size of the OutputVertex struct in bytes.
//
// Returns:
//   - int: the size of the struct in bytes.
func (o *OutputVertex) Size() int {
	return int(unsafe.Sizeof(*o))
}

// Marshal serializes the OutputVertex struct into a byte buffer matching the slot layout.
//
// Returns:
//   - []byte: 48-byte buffer.
func (o *OutputVertex) Marshal() []byte {
	buf := make([]byte, OutputStrideFloats*4)
	vals := o.floats()
	for i, v := range vals {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

func (o *OutputVertex) floats() [OutputStrideFloats]float32 {
	return [OutputStrideFloats]float32{
		o.Position[0], o.Position[1], o.Position[2], 0,
		o.Normal[0], o.Normal[1], o.Normal[2], o.Normal[3],
		o.Tangent[0], o.Tangent[1], o.Tangent[2], o.Tangent[3],
	}
}

// store writes o into dst at the given float offset.
func (o *OutputVertex) store(dst []float32, off int) {
	vals := o.floats()
	copy(dst[off:off+OutputStrideFloats], vals[:])
}

// LoadOutputVertex decodes the vertex at float offset off of a slot's float data.
//
// Parameters:
//   - src: slot data
//   - off: float offset of the vertex
//
// Returns:
//   - OutputVertex: the decoded vertex
func LoadOutputVertex(src []float32, off int) OutputVertex {
	s := src[off : off+OutputStrideFloats]
	return OutputVertex{
		Position: [3]float32{s[0], s[1], s[2]},
		Normal:   [4]float32{s[4], s[5], s[6], s[7]},
		Tangent:  [4]float32{s[8], s[9], s[10], s[11]},
	}
}

// DecodeOutputVertices decodes a little-endian byte range read back from a GPU slot.
//
// Parameters:
//   - data: the raw bytes, a multiple of 48
//
// Returns:
//   - []OutputVertex: the decoded vertices
func DecodeOutputVertices(data []byte) []OutputVertex {
	const size = OutputStrideFloats * 4
	out := make([]OutputVertex, len(data)/size)
	vals := make([]float32, OutputStrideFloats)
	for i := range out {
		for j := range vals {
			vals[j] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*size+j*4:]))
		}
		out[i] = LoadOutputVertex(vals, 0)
	}
	return out
}
