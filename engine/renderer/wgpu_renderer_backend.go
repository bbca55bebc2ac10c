package renderer

import (
	"sync"

	"github.com/Carmen-Shannon/oxy-anim/engine/renderer/bind_group_provider"
	"github.com/Carmen-Shannon/oxy-anim/engine/renderer/shader"
	"github.com/cogentcore/webgpu/wgpu"
	"github.com/pkg/errors"
)

// minBufferSize is the smallest buffer created; bindings may not be zero sized.
const minBufferSize = 16

// computeKernel holds the GPU objects created for one registered shader.
type computeKernel struct {
	shader   shader.Shader
	module   *wgpu.ShaderModule
	layouts  []*wgpu.BindGroupLayout
	layout   *wgpu.PipelineLayout
	pipeline *wgpu.ComputePipeline
}

func (k *computeKernel) release() {
	if k.pipeline != nil {
		k.pipeline.Release()
	}
	if k.layout != nil {
		k.layout.Release()
	}
	for _, l := range k.layouts {
		if l != nil {
			l.Release()
		}
	}
	if k.module != nil {
		k.module.Release()
	}
}

type wgpuRendererBackendImpl struct {
	mu     *sync.Mutex
	device *wgpu.Device
	queue  *wgpu.Queue

	instance *wgpu.Instance
	adapter  *wgpu.Adapter

	kernels map[string]*computeKernel

	// Compute frame state for batching dispatches into a single GPU submission
	computeFrameEncoder *wgpu.CommandEncoder
}

type wgpuRendererBackend interface {
	Device() *wgpu.Device
	Queue() *wgpu.Queue
	Instance() *wgpu.Instance
	Adapter() *wgpu.Adapter

	// RegisterComputePipeline creates the shader module, bind group layouts, pipeline layout and
	// compute pipeline of a kernel and caches them under the shader's key.
	//
	// Parameters:
	//   - s: the parsed compute shader
	//
	// Returns:
	//   - error: an error if any GPU object could not be created
	RegisterComputePipeline(s shader.Shader) error

	// CreateBuffer creates an uninitialized GPU buffer. WebGPU zero-fills new buffers.
	//
	// Parameters:
	//   - label: the debug label
	//   - size: the size in bytes, raised to the minimum binding size
	//   - usage: the buffer usage flags
	//
	// Returns:
	//   - *wgpu.Buffer: the buffer
	//   - error: an error if creation failed
	CreateBuffer(label string, size uint64, usage wgpu.BufferUsage) (*wgpu.Buffer, error)

	// UploadBuffer creates a GPU buffer initialized with data.
	//
	// Parameters:
	//   - label: the debug label
	//   - data: the initial contents; padded to a multiple of four bytes and the minimum size
	//   - usage: the buffer usage flags
	//
	// Returns:
	//   - *wgpu.Buffer: the buffer
	//   - error: an error if creation failed
	UploadBuffer(label string, data []byte, usage wgpu.BufferUsage) (*wgpu.Buffer, error)

	// WriteBuffers writes all staged buffer writes to the GPU queue.
	//
	// Parameters:
	//   - writes: a slice of BufferWrite structs describing the data to write
	WriteBuffers(writes []bind_group_provider.BufferWrite)

	// InitBindGroup creates the group 0 bind group of a registered kernel from the buffers on a provider.
	//
	// Parameters:
	//   - kernel: the kernel key
	//   - provider: the provider holding one buffer per declared binding
	//
	// Returns:
	//   - error: an error if the kernel is unknown, a binding has no buffer, or creation failed
	InitBindGroup(kernel string, provider bind_group_provider.BindGroupProvider) error

	// BeginComputeFrame creates a single command encoder for batching compute dispatches
	// into one GPU submission. Must be paired with EndComputeFrame.
	//
	// Returns:
	//   - error: an error if a frame is already open or the encoder could not be created
	BeginComputeFrame() error

	// DispatchCompute encodes a compute pass within the current compute frame.
	//
	// Parameters:
	//   - kernel: the registered kernel key
	//   - provider: the provider whose bind group is set at group 0
	//   - workGroupCount: the number of workgroups in x, y and z
	//
	// Returns:
	//   - error: an error if no frame is open or the kernel is unknown
	DispatchCompute(kernel string, provider bind_group_provider.BindGroupProvider, workGroupCount [3]uint32) error

	// EndComputeFrame finishes the batched encoder and submits it to the queue.
	//
	// Returns:
	//   - error: an error if the command buffer could not be finished
	EndComputeFrame() error

	// ReadBuffer copies a byte range of a buffer into host memory, blocking until the GPU is done.
	//
	// Parameters:
	//   - buf: a buffer created with BufferUsageCopySrc
	//   - offset: the byte offset, a multiple of four
	//   - size: the byte count, a multiple of four
	//
	// Returns:
	//   - []byte: the copied bytes
	//   - error: an error if the copy or the mapping failed
	ReadBuffer(buf *wgpu.Buffer, offset, size uint64) ([]byte, error)

	// Release frees the registered kernels, the device and the instance.
	Release()
}

var _ RendererBackend = &wgpuRendererBackendImpl{}

// newWGPURendererBackend creates a headless compute device.
func newWGPURendererBackend(forceFallbackAdapter bool) (wgpuRendererBackend, error) {
	w := &wgpuRendererBackendImpl{
		mu:       &sync.Mutex{},
		instance: wgpu.CreateInstance(nil),
		kernels:  make(map[string]*computeKernel),
	}

	a, err := w.instance.RequestAdapter(&wgpu.RequestAdapterOptions{
		ForceFallbackAdapter: forceFallbackAdapter,
	})
	if err != nil {
		w.instance.Release()
		return nil, errors.Wrap(ErrNoAdapter, err.Error())
	}
	w.adapter = a

	limits := wgpu.DefaultLimits()
	d, err := a.RequestDevice(&wgpu.DeviceDescriptor{
		Label: "Skinning Device",
		RequiredLimits: &wgpu.RequiredLimits{
			Limits: limits,
		},
	})
	if err != nil {
		a.Release()
		w.instance.Release()
		return nil, errors.Wrap(err, "request device")
	}
	w.device = d
	w.queue = d.GetQueue()
	return w, nil
}

func (b *wgpuRendererBackendImpl) Device() *wgpu.Device {
	return b.device
}

func (b *wgpuRendererBackendImpl) Queue() *wgpu.Queue {
	return b.queue
}

func (b *wgpuRendererBackendImpl) Instance() *wgpu.Instance {
	return b.instance
}

func (b *wgpuRendererBackendImpl) Adapter() *wgpu.Adapter {
	return b.adapter
}

func (b *wgpuRendererBackendImpl) RegisterComputePipeline(s shader.Shader) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.kernels[s.Key()]; ok {
		return nil
	}

	k := &computeKernel{shader: s}
	module, err := b.device.CreateShaderModule(s.Module())
	if err != nil {
		return errors.Wrapf(err, "shader module %s", s.Key())
	}
	k.module = module

	descriptors := s.BindGroupLayoutDescriptors()
	maxGroup := -1
	for g := range descriptors {
		if g > maxGroup {
			maxGroup = g
		}
	}
	k.layouts = make([]*wgpu.BindGroupLayout, maxGroup+1)
	for g := 0; g <= maxGroup; g++ {
		desc := descriptors[g]
		desc.Label = s.Key()
		bgl, bglErr := b.device.CreateBindGroupLayout(&desc)
		if bglErr != nil {
			k.release()
			return errors.Wrapf(bglErr, "bind group layout %d of %s", g, s.Key())
		}
		k.layouts[g] = bgl
	}

	k.layout, err = b.device.CreatePipelineLayout(&wgpu.PipelineLayoutDescriptor{
		Label:            s.Key(),
		BindGroupLayouts: k.layouts,
	})
	if err != nil {
		k.release()
		return errors.Wrapf(err, "pipeline layout %s", s.Key())
	}

	k.pipeline, err = b.device.CreateComputePipeline(&wgpu.ComputePipelineDescriptor{
		Label:  s.Key() + " Compute Pipeline",
		Layout: k.layout,
		Compute: wgpu.ProgrammableStageDescriptor{
			Module:     k.module,
			EntryPoint: s.EntryPoint(),
		},
	})
	if err != nil {
		k.release()
		return errors.Wrapf(err, "compute pipeline %s", s.Key())
	}

	b.kernels[s.Key()] = k
	return nil
}

func (b *wgpuRendererBackendImpl) CreateBuffer(label string, size uint64, usage wgpu.BufferUsage) (*wgpu.Buffer, error) {
	if size < minBufferSize {
		size = minBufferSize
	}
	return b.device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: label,
		Size:  (size + 3) &^ 3,
		Usage: usage,
	})
}

func (b *wgpuRendererBackendImpl) UploadBuffer(label string, data []byte, usage wgpu.BufferUsage) (*wgpu.Buffer, error) {
	size := (len(data) + 3) &^ 3
	if size < minBufferSize {
		size = minBufferSize
	}
	if size != len(data) {
		padded := make([]byte, size)
		copy(padded, data)
		data = padded
	}
	return b.device.CreateBufferInit(&wgpu.BufferInitDescriptor{
		Label:    label,
		Contents: data,
		Usage:    usage,
	})
}

func (b *wgpuRendererBackendImpl) WriteBuffers(writes []bind_group_provider.BufferWrite) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, w := range writes {
		buf := w.Provider.Buffer(w.Binding)
		if buf == nil {
			continue
		}
		b.queue.WriteBuffer(buf, w.Offset, w.Data)
	}
}

func (b *wgpuRendererBackendImpl) InitBindGroup(kernel string, provider bind_group_provider.BindGroupProvider) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	k, ok := b.kernels[kernel]
	if !ok || len(k.layouts) == 0 {
		return errors.Wrap(ErrUnknownKernel, kernel)
	}

	desc := k.shader.BindGroupLayoutDescriptor(0)
	entries := make([]wgpu.BindGroupEntry, len(desc.Entries))
	for i, entry := range desc.Entries {
		buf := provider.Buffer(int(entry.Binding))
		if buf == nil {
			return errors.Errorf("%s: binding %d (%s) has no buffer", kernel, entry.Binding, k.shader.BindGroupVarName(0, int(entry.Binding)))
		}
		entries[i] = wgpu.BindGroupEntry{
			Binding: entry.Binding,
			Buffer:  buf,
			Offset:  0,
			Size:    wgpu.WholeSize,
		}
	}

	bindGroup, err := b.device.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Label:   provider.Label() + " Bind Group",
		Layout:  k.layouts[0],
		Entries: entries,
	})
	if err != nil {
		return errors.Wrapf(err, "bind group %s", provider.Label())
	}
	provider.SetBindGroup(bindGroup)
	return nil
}

func (b *wgpuRendererBackendImpl) BeginComputeFrame() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.computeFrameEncoder != nil {
		return errors.New("compute frame already open")
	}
	encoder, err := b.device.CreateCommandEncoder(nil)
	if err != nil {
		return err
	}
	b.computeFrameEncoder = encoder
	return nil
}

func (b *wgpuRendererBackendImpl) DispatchCompute(
	kernel string,
	provider bind_group_provider.BindGroupProvider,
	workGroupCount [3]uint32,
) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.computeFrameEncoder == nil {
		return errors.New("no compute frame open")
	}
	k, ok := b.kernels[kernel]
	if !ok {
		return errors.Wrap(ErrUnknownKernel, kernel)
	}
	if workGroupCount[0] == 0 || workGroupCount[1] == 0 || workGroupCount[2] == 0 {
		return nil
	}

	pass := b.computeFrameEncoder.BeginComputePass(nil)
	pass.SetPipeline(k.pipeline)
	pass.SetBindGroup(0, provider.BindGroup(), nil)
	pass.DispatchWorkgroups(workGroupCount[0], workGroupCount[1], workGroupCount[2])
	pass.End()
	pass.Release()
	return nil
}

func (b *wgpuRendererBackendImpl) EndComputeFrame() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.computeFrameEncoder == nil {
		return nil
	}
	encoder := b.computeFrameEncoder
	b.computeFrameEncoder = nil
	defer encoder.Release()

	commandBuffer, err := encoder.Finish(nil)
	if err != nil {
		return errors.Wrap(err, "finish compute frame")
	}
	b.queue.Submit(commandBuffer)
	commandBuffer.Release()
	return nil
}

func (b *wgpuRendererBackendImpl) ReadBuffer(buf *wgpu.Buffer, offset, size uint64) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if size == 0 {
		return nil, nil
	}
	staging, err := b.device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: "Readback Buffer",
		Size:  size,
		Usage: wgpu.BufferUsageMapRead | wgpu.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, err
	}
	defer staging.Release()

	encoder, err := b.device.CreateCommandEncoder(nil)
	if err != nil {
		return nil, err
	}
	defer encoder.Release()
	encoder.CopyBufferToBuffer(buf, offset, staging, 0, size)
	commandBuffer, err := encoder.Finish(nil)
	if err != nil {
		return nil, err
	}
	b.queue.Submit(commandBuffer)
	commandBuffer.Release()

	status := wgpu.BufferMapAsyncStatusSuccess
	mapped := false
	staging.MapAsync(wgpu.MapModeRead, 0, size, func(s wgpu.BufferMapAsyncStatus) {
		status = s
		mapped = true
	})
	b.device.Poll(true, nil)
	if !mapped || status != wgpu.BufferMapAsyncStatusSuccess {
		return nil, errors.Errorf("map readback buffer: status %v", status)
	}
	out := make([]byte, size)
	copy(out, staging.GetMappedRange(0, uint(size)))
	staging.Unmap()
	return out, nil
}

func (b *wgpuRendererBackendImpl) Release() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for key, k := range b.kernels {
		k.release()
		delete(b.kernels, key)
	}
	if b.queue != nil {
		b.queue.Release()
		b.queue = nil
	}
	if b.device != nil {
		b.device.Release()
		b.device = nil
	}
	if b.adapter != nil {
		b.adapter.Release()
		b.adapter = nil
	}
	if b.instance != nil {
		b.instance.Release()
		b.instance = nil
	}
}
