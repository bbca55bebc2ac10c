package skin_cache

import (
	"github.com/Carmen-Shannon/oxy-anim/common"
	"github.com/pkg/errors"
)

// CPUSlotBuffer is a frame slot held in host memory.
type CPUSlotBuffer struct {
	Data  []float32
	State SlotState
}

// Floats returns the capacity of the buffer in float32 values.
func (b *CPUSlotBuffer) Floats() uint32 {
	return uint32(len(b.Data))
}

// CPUBackend skins on the calling goroutine with linear blend skinning. It is the fallback
// when no compute device is available and the reference the compute kernels are tested against.
type CPUBackend struct {
	buffers []*CPUSlotBuffer
}

var _ SkinningBackend = &CPUBackend{}

// NewCPUBackend creates a CPU skinning backend.
//
// Returns:
//   - *CPUBackend: the backend
func NewCPUBackend() *CPUBackend {
	return &CPUBackend{}
}

func (c *CPUBackend) CreateSlotBuffer(slot int, floats uint32) (SlotBuffer, error) {
	buf := &CPUSlotBuffer{Data: make([]float32, floats)}
	c.buffers = append(c.buffers, buf)
	return buf, nil
}

func (c *CPUBackend) writable(b SlotBuffer) (*CPUSlotBuffer, error) {
	buf, ok := b.(*CPUSlotBuffer)
	if !ok || buf == nil {
		return nil, errors.Errorf("cpu backend cannot write %T", b)
	}
	if buf.State != SlotStateWritable {
		return nil, errors.Errorf("slot buffer is %s", buf.State)
	}
	return buf, nil
}

func (c *CPUBackend) Dispatch(job DispatchJob) error {
	buf, err := c.writable(job.Buffer)
	if err != nil {
		return err
	}
	g := job.Geometry
	caps := job.Capabilities

	var morphPos, morphNrm [][3]float32
	if caps.Morph {
		morphPos, morphNrm = AccumulateMorphs(g)
	}

	var m [16]float32
	for i := uint32(0); i < g.VertexCount; i++ {
		v := g.BaseVertex + i
		src := &g.Vertices[v]
		pos, nrm := src.Position, src.Normal
		if morphPos != nil {
			pos = common.Add3(pos, morphPos[i])
			nrm = common.Add3(nrm, morphNrm[i])
		}

		m = [16]float32{}
		total := accumulateInfluences(&m, g.BoneMatrices, src.BoneIndices, src.BoneWeights)
		if caps.MaxInfluences > 4 {
			ex := &g.ExtraInfluences[v]
			total += accumulateInfluences(&m, g.BoneMatrices, ex.BoneIndices, ex.BoneWeights)
		}
		if total == 0 {
			common.Identity(m[:])
		}

		out := OutputVertex{Position: common.TransformPoint(m[:], pos)}
		n := common.Normalize3(common.TransformDirection(m[:], nrm))
		out.Normal = [4]float32{n[0], n[1], n[2], 0}
		t := common.Normalize3(common.TransformDirection(m[:], [3]float32{src.Tangent[0], src.Tangent[1], src.Tangent[2]}))
		out.Tangent = [4]float32{t[0], t[1], t[2], src.Tangent[3]}

		if caps.Cloth && len(g.ClothPositions) > 0 {
			out.Position = common.Lerp3(out.Position, g.ClothPositions[i], g.ClothBlend)
		}
		out.store(buf.Data, int(job.StreamOffset+v*OutputStrideFloats))
	}
	return nil
}

// accumulateInfluences adds the weighted bone matrices into m and returns the weight used.
func accumulateInfluences(m *[16]float32, mats []float32, indices [4]uint32, weights [4]float32) float32 {
	var total float32
	for k := 0; k < 4; k++ {
		w := weights[k]
		if w == 0 {
			continue
		}
		base := int(indices[k]) * 16
		if base+16 > len(mats) {
			continue
		}
		for j := 0; j < 16; j++ {
			m[j] += w * mats[base+j]
		}
		total += w
	}
	return total
}

// AccumulateMorphs sums the weighted morph deltas of a section per section vertex.
//
// Parameters:
//   - g: the section geometry
//
// Returns:
//   - [][3]float32: position deltas, one per section vertex
//   - [][3]float32: normal deltas, one per section vertex
func AccumulateMorphs(g *GeometryDescriptor) ([][3]float32, [][3]float32) {
	pos := make([][3]float32, g.VertexCount)
	nrm := make([][3]float32, g.VertexCount)
	for t, target := range g.MorphTargets {
		if t >= len(g.MorphWeights) || g.MorphWeights[t] == 0 {
			continue
		}
		w := g.MorphWeights[t]
		for _, d := range target.Deltas {
			if d.VertexIndex < g.BaseVertex || d.VertexIndex >= g.BaseVertex+g.VertexCount {
				continue
			}
			i := d.VertexIndex - g.BaseVertex
			pos[i] = common.Add3(pos[i], common.Scale3(d.PositionDelta, w))
			nrm[i] = common.Add3(nrm[i], common.Scale3(d.NormalDelta, w))
		}
	}
	return pos, nrm
}

func (c *CPUBackend) DispatchRecomputeTangents(job DispatchJob) error {
	buf, err := c.writable(job.Buffer)
	if err != nil {
		return err
	}
	g := job.Geometry
	n := g.VertexCount
	at := func(i uint32) int { return int(job.StreamOffset + (g.BaseVertex+i)*OutputStrideFloats) }

	// accumulation pass: one contribution per triangle
	accN := make([][3]float32, n)
	accT := make([][3]float32, n)
	for tri := 0; tri+2 < len(g.Indices); tri += 3 {
		i0, i1, i2 := g.Indices[tri], g.Indices[tri+1], g.Indices[tri+2]
		if i0 >= n || i1 >= n || i2 >= n {
			continue
		}
		p0 := LoadOutputVertex(buf.Data, at(i0)).Position
		p1 := LoadOutputVertex(buf.Data, at(i1)).Position
		p2 := LoadOutputVertex(buf.Data, at(i2)).Position
		faceN, faceT := triangleFrame(p0, p1, p2,
			g.Vertices[g.BaseVertex+i0].TexCoord,
			g.Vertices[g.BaseVertex+i1].TexCoord,
			g.Vertices[g.BaseVertex+i2].TexCoord)
		for _, i := range [3]uint32{i0, i1, i2} {
			accN[i] = common.Add3(accN[i], faceN)
			accT[i] = common.Add3(accT[i], faceT)
		}
	}

	// normalization pass
	for i := uint32(0); i < n; i++ {
		off := at(i)
		ov := LoadOutputVertex(buf.Data, off)
		ov.Normal, ov.Tangent = orthonormalize(accN[i], accT[i], ov.Normal, ov.Tangent)
		ov.store(buf.Data, off)
	}
	return nil
}

// triangleFrame returns the area-weighted face normal and the UV-aligned tangent of a triangle.
func triangleFrame(p0, p1, p2 [3]float32, uv0, uv1, uv2 [2]float32) ([3]float32, [3]float32) {
	e1 := common.Sub3(p1, p0)
	e2 := common.Sub3(p2, p0)
	faceN := common.Cross3(e1, e2)

	du1, dv1 := uv1[0]-uv0[0], uv1[1]-uv0[1]
	du2, dv2 := uv2[0]-uv0[0], uv2[1]-uv0[1]
	det := du1*dv2 - du2*dv1
	if det == 0 {
		return faceN, [3]float32{}
	}
	r := 1 / det
	faceT := common.Scale3(common.Sub3(common.Scale3(e1, dv2), common.Scale3(e2, dv1)), r)
	return faceN, faceT
}

// orthonormalize folds accumulated normal and tangent into unit vectors, keeping the skinned
// values where the accumulation is degenerate. The bitangent sign is preserved.
func orthonormalize(accN, accT [3]float32, skinnedN, skinnedT [4]float32) ([4]float32, [4]float32) {
	n := common.Normalize3(accN)
	if n == ([3]float32{}) {
		n = [3]float32{skinnedN[0], skinnedN[1], skinnedN[2]}
	}
	t := common.Normalize3(common.Sub3(accT, common.Scale3(n, common.Dot3(n, accT))))
	if t == ([3]float32{}) {
		t = [3]float32{skinnedT[0], skinnedT[1], skinnedT[2]}
	}
	return [4]float32{n[0], n[1], n[2], 0}, [4]float32{t[0], t[1], t[2], skinnedT[3]}
}

func (c *CPUBackend) Transition(buf SlotBuffer, state SlotState) error {
	b, ok := buf.(*CPUSlotBuffer)
	if !ok || b == nil {
		return errors.Errorf("cpu backend cannot transition %T", buf)
	}
	b.State = state
	return nil
}

func (c *CPUBackend) Release() {
	for _, b := range c.buffers {
		b.Data = nil
		b.State = SlotStateIdle
	}
	c.buffers = nil
}
