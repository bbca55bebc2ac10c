package renderer

// RendererBackendType identifies the compute API a Renderer dispatches skinning kernels on.
type RendererBackendType int

const (
	// BackendTypeWGPU selects a headless WebGPU device.
	BackendTypeWGPU RendererBackendType = iota
)

// RendererBackend is the device-facing half of the Renderer: buffer allocation, pipeline
// registration and compute submission for the selected API.
type RendererBackend interface {
	wgpuRendererBackend
}
