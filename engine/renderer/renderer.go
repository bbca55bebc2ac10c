package renderer

import (
	"sync"

	"github.com/Carmen-Shannon/oxy-anim/engine/logging"
	"github.com/Carmen-Shannon/oxy-anim/engine/model"
	"github.com/Carmen-Shannon/oxy-anim/engine/renderer/bind_group_provider"
	"github.com/Carmen-Shannon/oxy-anim/engine/renderer/shader"
	"github.com/Carmen-Shannon/oxy-anim/engine/skin_cache"
	"github.com/cogentcore/webgpu/wgpu"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

var (
	// ErrNoAdapter is returned when no GPU adapter is available.
	ErrNoAdapter = errors.New("no compute adapter available")
	// ErrUnknownKernel is returned when a kernel key was never registered.
	ErrUnknownKernel = errors.New("unknown compute kernel")
)

const (
	slotUsage   = wgpu.BufferUsageStorage | wgpu.BufferUsageCopySrc | wgpu.BufferUsageCopyDst
	streamUsage = wgpu.BufferUsageStorage | wgpu.BufferUsageCopyDst
)

// GPUSlotBuffer is a frame slot held in a GPU storage buffer.
type GPUSlotBuffer struct {
	slot   int
	floats uint32
	buffer *wgpu.Buffer
	state  skin_cache.SlotState
}

// Floats returns the capacity of the buffer in float32 values.
func (b *GPUSlotBuffer) Floats() uint32 {
	return b.floats
}

// Buffer returns the storage buffer draws bind to read skinned vertices.
func (b *GPUSlotBuffer) Buffer() *wgpu.Buffer {
	return b.buffer
}

// State returns the resource state last set through Transition.
func (b *GPUSlotBuffer) State() skin_cache.SlotState {
	return b.state
}

// Stats counts the GPU work recorded by a Renderer.
type Stats struct {
	Dispatches        uint64
	TangentDispatches uint64
	StreamUploads     uint64
	// LiveStreams is the number of source stream buffers currently held.
	LiveStreams int
}

// streamKey identifies an immutable source stream by its first element and length.
type streamKey[T any] struct {
	first *T
	n     int
}

func keyOf[T any](s []T) streamKey[T] {
	if len(s) == 0 {
		return streamKey[T]{}
	}
	return streamKey[T]{first: &s[0], n: len(s)}
}

// streamCache holds uploaded source streams and the mesh instances using each. A stream is
// released when its last user is released.
type streamCache[T any] struct {
	label   string
	buffers map[streamKey[T]]*wgpu.Buffer
	users   map[streamKey[T]]map[uuid.UUID]struct{}
	owners  map[uuid.UUID][]streamKey[T]
}

func newStreamCache[T any](label string) *streamCache[T] {
	return &streamCache[T]{
		label:   label,
		buffers: make(map[streamKey[T]]*wgpu.Buffer),
		users:   make(map[streamKey[T]]map[uuid.UUID]struct{}),
		owners:  make(map[uuid.UUID][]streamKey[T]),
	}
}

// upload returns the GPU copy of data for owner, uploading it on first use.
func (c *streamCache[T]) upload(r *renderer, owner uuid.UUID, data []T) (*wgpu.Buffer, error) {
	if len(data) == 0 {
		return r.empty, nil
	}
	key := keyOf(data)
	buf, ok := c.buffers[key]
	if !ok {
		var err error
		buf, err = r.backend.UploadBuffer(c.label, wgpu.ToBytes(data), streamUsage)
		if err != nil {
			return nil, errors.Wrapf(err, "upload %s", c.label)
		}
		c.buffers[key] = buf
		c.users[key] = make(map[uuid.UUID]struct{})
		r.stats.StreamUploads++
	}
	if _, ok := c.users[key][owner]; !ok {
		c.users[key][owner] = struct{}{}
		c.owners[owner] = append(c.owners[owner], key)
	}
	return buf, nil
}

// releaseOwner drops owner from its streams and frees the ones left without users.
func (c *streamCache[T]) releaseOwner(owner uuid.UUID) int {
	freed := 0
	for _, key := range c.owners[owner] {
		users := c.users[key]
		delete(users, owner)
		if len(users) > 0 {
			continue
		}
		c.buffers[key].Release()
		delete(c.buffers, key)
		delete(c.users, key)
		freed++
	}
	delete(c.owners, owner)
	return freed
}

func (c *streamCache[T]) release() {
	for _, buf := range c.buffers {
		buf.Release()
	}
	clear(c.buffers)
	clear(c.users)
	clear(c.owners)
}

// renderer is the implementation of the Renderer interface.
type renderer struct {
	mu *sync.Mutex

	backendType RendererBackendType
	backend     RendererBackend
	logger      logging.Logger

	kernels map[string]shader.Shader
	slots   []*GPUSlotBuffer
	empty   *wgpu.Buffer

	// Source streams are uploaded once and shared until every mesh using them is released.
	vertexStreams *streamCache[model.GPUSkinnedVertex]
	extraStreams  *streamCache[model.GPUExtraInfluence]
	indexStreams  *streamCache[uint32]

	stats Stats

	// Pre-creation config collected from builder options
	forceFallbackAdapter bool
}

// Renderer runs GPU skinning for the skin cache on a headless WebGPU compute device.
// It implements skin_cache.SkinningBackend with three kernels: a linear blend skinning pass
// per section, and a per-triangle tangent accumulation followed by a per-vertex normalization.
// Each dispatch is submitted in recording order, so moving a slot to SlotStateReadable needs
// no extra synchronization before draws that are submitted later.
type Renderer interface {
	skin_cache.SkinningBackend

	// Backend returns the underlying GPU backend.
	//
	// Returns:
	//   - RendererBackend: the backend
	Backend() RendererBackend

	// Kernel returns a registered compute kernel by key.
	//
	// Parameters:
	//   - key: one of KernelSkin, KernelTangentAccumulate, KernelTangentNormalize
	//
	// Returns:
	//   - shader.Shader: the kernel or nil
	Kernel(key string) shader.Shader

	// ReadVertices copies skinned vertices out of a slot buffer, blocking until the GPU is done.
	//
	// Parameters:
	//   - buf: a slot buffer created by this renderer
	//   - offset: float offset of the first vertex
	//   - count: number of vertices
	//
	// Returns:
	//   - []skin_cache.OutputVertex: the decoded vertices
	//   - error: an error if the buffer is foreign or the readback failed
	ReadVertices(buf skin_cache.SlotBuffer, offset, count uint32) ([]skin_cache.OutputVertex, error)

	// ReleaseOwner frees the source streams no other mesh instance still uses.
	//
	// Parameters:
	//   - owner: the mesh instance
	ReleaseOwner(owner uuid.UUID)

	// Stats returns the dispatch counters.
	//
	// Returns:
	//   - Stats: the counters
	Stats() Stats
}

var (
	_ Renderer                 = &renderer{}
	_ skin_cache.OwnerReleaser = &renderer{}
)

// NewRenderer creates a headless compute device and registers the skinning kernels.
//
// Parameters:
//   - options: a variadic list of RendererBuilderOption functions to configure the renderer
//
// Returns:
//   - Renderer: the renderer
//   - error: ErrNoAdapter when no GPU is available, or a kernel compilation error
func NewRenderer(options ...RendererBuilderOption) (Renderer, error) {
	r := &renderer{
		mu:            &sync.Mutex{},
		backendType:   BackendTypeWGPU,
		logger:        logging.NoOpLogger{},
		kernels:       make(map[string]shader.Shader),
		vertexStreams: newStreamCache[model.GPUSkinnedVertex]("Source Vertices"),
		extraStreams:  newStreamCache[model.GPUExtraInfluence]("Extra Influences"),
		indexStreams:  newStreamCache[uint32]("Section Indices"),
	}
	for _, opt := range options {
		opt(r)
	}
	r.logger = logging.WithComponent(r.logger, "renderer")

	backend, err := newWGPURendererBackend(r.forceFallbackAdapter)
	if err != nil {
		return nil, err
	}
	r.backend = backend

	kernels, err := skinningKernels()
	if err != nil {
		r.backend.Release()
		return nil, err
	}
	for _, k := range kernels {
		if err := r.backend.RegisterComputePipeline(k); err != nil {
			r.backend.Release()
			return nil, err
		}
		r.kernels[k.Key()] = k
	}

	r.empty, err = r.backend.CreateBuffer("Empty Stream", minBufferSize, streamUsage)
	if err != nil {
		r.backend.Release()
		return nil, err
	}
	r.logger.Info("compute device ready", "kernels", len(r.kernels), "fallback", r.forceFallbackAdapter)
	return r, nil
}

func (r *renderer) Backend() RendererBackend {
	return r.backend
}

func (r *renderer) Kernel(key string) shader.Shader {
	return r.kernels[key]
}

func (r *renderer) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	st := r.stats
	st.LiveStreams = len(r.vertexStreams.buffers) + len(r.extraStreams.buffers) + len(r.indexStreams.buffers)
	return st
}

func (r *renderer) ReleaseOwner(owner uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	freed := r.vertexStreams.releaseOwner(owner) + r.extraStreams.releaseOwner(owner) + r.indexStreams.releaseOwner(owner)
	if freed > 0 {
		r.logger.Debug("released source streams", "owner", owner, "streams", freed)
	}
}

func (r *renderer) CreateSlotBuffer(slot int, floats uint32) (skin_cache.SlotBuffer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	buf, err := r.backend.CreateBuffer("Skin Cache Slot", uint64(floats)*4, slotUsage)
	if err != nil {
		return nil, errors.Wrapf(err, "slot %d", slot)
	}
	sb := &GPUSlotBuffer{slot: slot, floats: floats, buffer: buf}
	r.slots = append(r.slots, sb)
	return sb, nil
}

func (r *renderer) Transition(buf skin_cache.SlotBuffer, state skin_cache.SlotState) error {
	sb, ok := buf.(*GPUSlotBuffer)
	if !ok || sb == nil {
		return errors.Errorf("renderer cannot transition %T", buf)
	}
	sb.state = state
	return nil
}

func (r *renderer) writable(buf skin_cache.SlotBuffer) (*GPUSlotBuffer, error) {
	sb, ok := buf.(*GPUSlotBuffer)
	if !ok || sb == nil {
		return nil, errors.Errorf("renderer cannot write %T", buf)
	}
	if sb.state != skin_cache.SlotStateWritable {
		return nil, errors.Errorf("slot buffer is %s", sb.state)
	}
	return sb, nil
}

func (r *renderer) Dispatch(job skin_cache.DispatchJob) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	sb, err := r.writable(job.Buffer)
	if err != nil {
		return err
	}
	g := job.Geometry
	caps := job.Capabilities

	vertices, err := r.vertexStreams.upload(r, job.Owner, g.Vertices)
	if err != nil {
		return err
	}
	extra := r.empty
	if caps.MaxInfluences > 4 {
		if extra, err = r.extraStreams.upload(r, job.Owner, g.ExtraInfluences); err != nil {
			return err
		}
	}

	params := skinParams{
		VertexCount:   g.VertexCount,
		BaseVertex:    g.BaseVertex,
		StreamOffset:  job.StreamOffset,
		MaxInfluences: uint32(caps.MaxInfluences),
		BoneCount:     uint32(len(g.BoneMatrices) / 16),
	}

	provider := bind_group_provider.NewBindGroupProvider("Skin",
		bind_group_provider.WithBuffer(1, vertices),
		bind_group_provider.WithBuffer(2, extra),
		bind_group_provider.WithBuffer(4, r.empty),
		bind_group_provider.WithBuffer(5, r.empty),
		bind_group_provider.WithBuffer(6, sb.buffer),
	)
	defer provider.Release()

	bones, err := r.backend.UploadBuffer("Bone Matrices", wgpu.ToBytes(g.BoneMatrices), streamUsage)
	if err != nil {
		return err
	}
	provider.SetOwnedBuffer(3, bones)

	if caps.Morph && len(g.MorphTargets) > 0 {
		pos, nrm := skin_cache.AccumulateMorphs(g)
		packed := make([]float32, 0, len(pos)*8)
		for i := range pos {
			packed = append(packed, pos[i][0], pos[i][1], pos[i][2], 0, nrm[i][0], nrm[i][1], nrm[i][2], 0)
		}
		morphs, err := r.backend.UploadBuffer("Morph Deltas", wgpu.ToBytes(packed), streamUsage)
		if err != nil {
			return err
		}
		provider.SetOwnedBuffer(4, morphs)
		params.Morph = 1
	}
	if caps.Cloth && len(g.ClothPositions) > 0 {
		packed := make([]float32, 0, len(g.ClothPositions)*4)
		for _, p := range g.ClothPositions {
			packed = append(packed, p[0], p[1], p[2], 1)
		}
		cloth, err := r.backend.UploadBuffer("Cloth Positions", wgpu.ToBytes(packed), streamUsage)
		if err != nil {
			return err
		}
		provider.SetOwnedBuffer(5, cloth)
		params.Cloth = 1
		params.ClothBlend = g.ClothBlend
	}

	uniform, err := r.backend.UploadBuffer("Skin Params", wgpu.ToBytes([]skinParams{params}), wgpu.BufferUsageUniform|wgpu.BufferUsageCopyDst)
	if err != nil {
		return err
	}
	provider.SetOwnedBuffer(0, uniform)

	if err := r.submit(KernelSkin, provider, g.VertexCount); err != nil {
		return err
	}
	r.stats.Dispatches++
	return nil
}

func (r *renderer) DispatchRecomputeTangents(job skin_cache.DispatchJob) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	sb, err := r.writable(job.Buffer)
	if err != nil {
		return err
	}
	g := job.Geometry
	triangles := uint32(len(g.Indices) / 3)
	if triangles == 0 {
		return nil
	}

	vertices, err := r.vertexStreams.upload(r, job.Owner, g.Vertices)
	if err != nil {
		return err
	}
	indices, err := r.indexStreams.upload(r, job.Owner, g.Indices)
	if err != nil {
		return err
	}

	params := tangentParams{
		VertexCount:   g.VertexCount,
		BaseVertex:    g.BaseVertex,
		StreamOffset:  job.StreamOffset,
		TriangleCount: triangles,
	}
	uniform, err := r.backend.UploadBuffer("Tangent Params", wgpu.ToBytes([]tangentParams{params}), wgpu.BufferUsageUniform|wgpu.BufferUsageCopyDst)
	if err != nil {
		return err
	}
	defer uniform.Release()
	accum, err := r.backend.CreateBuffer("Tangent Accumulation", uint64(g.VertexCount)*6*4, wgpu.BufferUsageStorage)
	if err != nil {
		return err
	}
	defer accum.Release()

	accumulate := bind_group_provider.NewBindGroupProvider("Tangent Accumulate",
		bind_group_provider.WithBuffer(0, uniform),
		bind_group_provider.WithBuffer(1, indices),
		bind_group_provider.WithBuffer(2, vertices),
		bind_group_provider.WithBuffer(3, sb.buffer),
		bind_group_provider.WithBuffer(4, accum),
	)
	defer accumulate.Release()
	if err := r.submit(KernelTangentAccumulate, accumulate, triangles); err != nil {
		return err
	}

	normalize := bind_group_provider.NewBindGroupProvider("Tangent Normalize",
		bind_group_provider.WithBuffer(0, uniform),
		bind_group_provider.WithBuffer(1, accum),
		bind_group_provider.WithBuffer(2, sb.buffer),
	)
	defer normalize.Release()
	if err := r.submit(KernelTangentNormalize, normalize, g.VertexCount); err != nil {
		return err
	}
	r.stats.TangentDispatches++
	return nil
}

// submit binds a provider to a kernel and records one dispatch covering n invocations.
func (r *renderer) submit(kernel string, provider bind_group_provider.BindGroupProvider, n uint32) error {
	k := r.kernels[kernel]
	if k == nil {
		return errors.Wrap(ErrUnknownKernel, kernel)
	}
	if err := r.backend.InitBindGroup(kernel, provider); err != nil {
		return err
	}
	if err := r.backend.BeginComputeFrame(); err != nil {
		return err
	}
	if err := r.backend.DispatchCompute(kernel, provider, [3]uint32{k.Workgroups(n), 1, 1}); err != nil {
		r.backend.EndComputeFrame()
		return err
	}
	return r.backend.EndComputeFrame()
}

func (r *renderer) ReadVertices(buf skin_cache.SlotBuffer, offset, count uint32) ([]skin_cache.OutputVertex, error) {
	sb, ok := buf.(*GPUSlotBuffer)
	if !ok || sb == nil {
		return nil, errors.Errorf("renderer cannot read %T", buf)
	}
	if uint64(offset)+uint64(count)*skin_cache.OutputStrideFloats > uint64(sb.floats) {
		return nil, errors.Errorf("read of %d vertices at %d exceeds slot of %d floats", count, offset, sb.floats)
	}
	data, err := r.backend.ReadBuffer(sb.buffer, uint64(offset)*4, uint64(count)*skin_cache.OutputStrideFloats*4)
	if err != nil {
		return nil, err
	}
	return skin_cache.DecodeOutputVertices(data), nil
}

func (r *renderer) Release() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.vertexStreams.release()
	r.extraStreams.release()
	r.indexStreams.release()
	for _, sb := range r.slots {
		if sb.buffer != nil {
			sb.buffer.Release()
			sb.buffer = nil
		}
		sb.state = skin_cache.SlotStateIdle
	}
	r.slots = nil
	if r.empty != nil {
		r.empty.Release()
		r.empty = nil
	}
	if r.backend != nil {
		r.backend.Release()
	}
}
