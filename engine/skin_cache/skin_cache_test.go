package skin_cache

import (
	"testing"

	"github.com/Carmen-Shannon/oxy-anim/common"
	"github.com/Carmen-Shannon/oxy-anim/engine/model"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const tol = 1e-4

// countingBackend wraps the CPU backend and counts dispatches. A non-nil failDispatch is
// returned from Dispatch instead.
type countingBackend struct {
	*CPUBackend
	dispatches, tangents int
	failDispatch         error
	owners               []uuid.UUID
	released             []uuid.UUID
}

func (b *countingBackend) Dispatch(job DispatchJob) error {
	b.dispatches++
	b.owners = append(b.owners, job.Owner)
	if b.failDispatch != nil {
		return b.failDispatch
	}
	return b.CPUBackend.Dispatch(job)
}

func (b *countingBackend) DispatchRecomputeTangents(job DispatchJob) error {
	b.tangents++
	return b.CPUBackend.DispatchRecomputeTangents(job)
}

func (b *countingBackend) ReleaseOwner(owner uuid.UUID) {
	b.released = append(b.released, owner)
}

func identityMatrices(n int) []float32 {
	out := make([]float32, 16*n)
	for i := 0; i < n; i++ {
		common.Identity(out[i*16 : i*16+16])
	}
	return out
}

func quadVertices(n int) []model.GPUSkinnedVertex {
	verts := make([]model.GPUSkinnedVertex, n)
	for i := range verts {
		verts[i].Position = [3]float32{float32(i), 0, 0}
		verts[i].Normal = [3]float32{0, 0, 1}
		verts[i].Tangent = [4]float32{1, 0, 0, 1}
		verts[i].BoneWeights = [4]float32{1, 0, 0, 0}
	}
	return verts
}

func geometry(base, count uint32) *GeometryDescriptor {
	return &GeometryDescriptor{
		Vertices:     quadVertices(int(base + count)),
		BaseVertex:   base,
		VertexCount:  count,
		BoneMatrices: identityMatrices(1),
	}
}

func newCache(t *testing.T, settings Settings) (SkinCache, *countingBackend) {
	t.Helper()
	b := &countingBackend{CPUBackend: NewCPUBackend()}
	c, err := NewSkinCache(WithSettings(settings), WithBackend(b))
	require.NoError(t, err)
	return c, b
}

func smallSettings() Settings {
	s := DefaultSettings()
	s.SlotBudgetFloats = 4096
	s.MaxEntries = 4
	return s
}

func section(owner uuid.UUID, i int) SectionKey {
	return SectionKey{Owner: owner, Section: i}
}

func TestSameFrameReturnsSameKey(t *testing.T) {
	c, b := newCache(t, smallSettings())
	key := section(uuid.New(), 0)

	require.NoError(t, c.BeginFrame(1))
	first, err := c.StartCacheMesh(key, 1, geometry(0, 4))
	require.NoError(t, err)
	second, err := c.StartCacheMesh(key, 1, geometry(0, 4))
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, b.dispatches)
	assert.Equal(t, uint64(1), c.Stats().Hits)
}

func TestFullTableEvictsOnlyIdleEntry(t *testing.T) {
	s := smallSettings()
	s.MaxEntries = 2
	s.EvictionSafetyFrames = 10
	c, _ := newCache(t, s)
	owner := uuid.New()

	require.NoError(t, c.BeginFrame(1))
	_, err := c.StartCacheMesh(section(owner, 0), 1, geometry(0, 2))
	require.NoError(t, err)
	require.NoError(t, c.EndFrame())

	require.NoError(t, c.BeginFrame(5))
	_, err = c.StartCacheMesh(section(owner, 1), 5, geometry(0, 2))
	require.NoError(t, err)
	require.NoError(t, c.EndFrame())

	// section 0 is 10 frames old: not yet past the safety margin
	require.NoError(t, c.BeginFrame(11))
	_, err = c.StartCacheMesh(section(owner, 2), 11, geometry(0, 2))
	assert.True(t, errors.Is(err, ErrCacheExhausted))
	assert.Equal(t, 2, c.Len())
	require.NoError(t, c.EndFrame())

	require.NoError(t, c.BeginFrame(12))
	_, err = c.StartCacheMesh(section(owner, 2), 12, geometry(0, 2))
	require.NoError(t, err)

	_, ok := c.Entry(section(owner, 0))
	assert.False(t, ok)
	_, ok = c.Entry(section(owner, 1))
	assert.True(t, ok)
	assert.Equal(t, uint64(1), c.Stats().Evictions)
	assert.Equal(t, 2, c.Len())
}

func TestFailedDispatchKeepsEvictionVictim(t *testing.T) {
	s := smallSettings()
	s.MaxEntries = 1
	s.EvictionSafetyFrames = 2
	c, b := newCache(t, s)
	owner := uuid.New()

	require.NoError(t, c.BeginFrame(1))
	_, err := c.StartCacheMesh(section(owner, 0), 1, geometry(0, 2))
	require.NoError(t, err)
	require.NoError(t, c.EndFrame())

	errGPU := errors.New("device lost")
	b.failDispatch = errGPU
	require.NoError(t, c.BeginFrame(10))
	_, err = c.StartCacheMesh(section(owner, 1), 10, geometry(0, 2))
	assert.True(t, errors.Is(err, errGPU))
	_, ok := c.Entry(section(owner, 0))
	assert.True(t, ok)
	_, ok = c.Entry(section(owner, 1))
	assert.False(t, ok)
	assert.Equal(t, uint64(0), c.Stats().Evictions)

	b.failDispatch = nil
	_, err = c.StartCacheMesh(section(owner, 1), 10, geometry(0, 2))
	require.NoError(t, err)
	_, ok = c.Entry(section(owner, 0))
	assert.False(t, ok)
	assert.Equal(t, uint64(1), c.Stats().Evictions)
	assert.Equal(t, 1, c.Len())
}

func TestDispatchQuota(t *testing.T) {
	s := smallSettings()
	s.MaxDispatchesPerFrame = 2
	c, _ := newCache(t, s)
	owner := uuid.New()

	require.NoError(t, c.BeginFrame(1))
	for i := 0; i < 2; i++ {
		_, err := c.StartCacheMesh(section(owner, i), 1, geometry(0, 2))
		require.NoError(t, err)
	}
	_, err := c.StartCacheMesh(section(owner, 2), 1, geometry(0, 2))
	assert.True(t, errors.Is(err, ErrDispatchQuota))
	assert.True(t, errors.Is(err, ErrCacheExhausted))

	// a repeat of an already cached section costs nothing
	_, err = c.StartCacheMesh(section(owner, 0), 1, geometry(0, 2))
	assert.NoError(t, err)

	require.NoError(t, c.BeginFrame(2))
	_, err = c.StartCacheMesh(section(owner, 2), 2, geometry(0, 2))
	assert.NoError(t, err)
	assert.Equal(t, uint64(1), c.Stats().QuotaFailures)
}

func TestSlotOverflow(t *testing.T) {
	s := smallSettings()
	s.SlotBudgetFloats = 10 * OutputStrideFloats
	c, _ := newCache(t, s)
	owner := uuid.New()

	require.NoError(t, c.BeginFrame(1))
	_, err := c.StartCacheMesh(section(owner, 0), 1, geometry(0, 8))
	require.NoError(t, err)
	_, err = c.StartCacheMesh(section(owner, 1), 1, geometry(0, 4))
	assert.True(t, errors.Is(err, ErrSlotOverflow))
	assert.True(t, errors.Is(err, ErrCacheExhausted))
	_, ok := c.Entry(section(owner, 1))
	assert.False(t, ok)
}

func TestOffsetPaddingAlignsBaseVertex(t *testing.T) {
	c, _ := newCache(t, smallSettings())
	owner := uuid.New()
	require.NoError(t, c.BeginFrame(1))

	a, err := c.StartCacheMesh(section(owner, 0), 1, geometry(0, 3))
	require.NoError(t, err)
	assert.Equal(t, uint32(0), a.Offset)

	// base vertex 10 forces the allocation to start at 10*stride
	b, err := c.StartCacheMesh(section(owner, 1), 1, geometry(10, 2))
	require.NoError(t, err)
	assert.Equal(t, uint32(10*OutputStrideFloats), b.Offset)
	assert.Equal(t, uint32(0), b.StreamOffset)

	// base vertex 2 lands after b's range with a positive stream offset
	d, err := c.StartCacheMesh(section(owner, 2), 1, geometry(2, 2))
	require.NoError(t, err)
	assert.Equal(t, uint32(12*OutputStrideFloats), d.Offset)
	assert.Equal(t, d.Offset-2*OutputStrideFloats, d.StreamOffset)
}

func TestResolveRequiresTransition(t *testing.T) {
	c, _ := newCache(t, smallSettings())
	key := section(uuid.New(), 0)

	require.NoError(t, c.BeginFrame(1))
	sk, err := c.StartCacheMesh(key, 1, geometry(0, 2))
	require.NoError(t, err)

	_, err = c.Resolve(sk)
	assert.True(t, errors.Is(err, ErrNotReadable))

	require.NoError(t, c.EndFrame())
	r, err := c.Resolve(sk)
	require.NoError(t, err)
	assert.Equal(t, uint32(2*OutputStrideFloats), r.Floats)

	// slots are reused after N frames
	for f := uint64(2); f <= 4; f++ {
		require.NoError(t, c.BeginFrame(f))
		require.NoError(t, c.EndFrame())
	}
	_, err = c.Resolve(sk)
	assert.True(t, errors.Is(err, ErrStaleSlot))
}

func TestPreviousFrameTracking(t *testing.T) {
	c, _ := newCache(t, smallSettings())
	key := section(uuid.New(), 0)

	require.NoError(t, c.BeginFrame(1))
	first, err := c.StartCacheMesh(key, 1, geometry(0, 2))
	require.NoError(t, err)
	require.NoError(t, c.EndFrame())

	_, ok := c.ResolvePrevious(key)
	assert.False(t, ok)

	require.NoError(t, c.BeginFrame(2))
	second, err := c.StartCacheMesh(key, 2, geometry(0, 2))
	require.NoError(t, err)
	require.NoError(t, c.EndFrame())

	e, ok := c.Entry(key)
	require.True(t, ok)
	assert.True(t, e.HasPrevious)
	assert.Equal(t, uint64(1), e.PreviousFrame)
	assert.Equal(t, first, e.Previous)
	assert.Equal(t, second, e.Current)
	assert.NotEqual(t, first.Slot, second.Slot)

	prev, ok := c.ResolvePrevious(key)
	require.True(t, ok)
	assert.Equal(t, first.Offset, prev.Offset)
}

func TestNotInFrame(t *testing.T) {
	c, _ := newCache(t, smallSettings())
	_, err := c.StartCacheMesh(section(uuid.New(), 0), 1, geometry(0, 2))
	assert.True(t, errors.Is(err, ErrNotInFrame))

	require.NoError(t, c.BeginFrame(3))
	_, err = c.StartCacheMesh(section(uuid.New(), 0), 4, geometry(0, 2))
	assert.True(t, errors.Is(err, ErrNotInFrame))

	_, err = c.StartCacheMesh(section(uuid.New(), 0), 3, &GeometryDescriptor{Vertices: quadVertices(2), VertexCount: 5})
	assert.True(t, errors.Is(err, ErrInvalidGeometry))
}

func TestReleaseOwner(t *testing.T) {
	c, bk := newCache(t, smallSettings())
	a, b := uuid.New(), uuid.New()
	require.NoError(t, c.BeginFrame(1))
	for i := 0; i < 2; i++ {
		_, err := c.StartCacheMesh(section(a, i), 1, geometry(0, 1))
		require.NoError(t, err)
	}
	_, err := c.StartCacheMesh(section(b, 0), 1, geometry(0, 1))
	require.NoError(t, err)

	c.ReleaseOwner(a)
	assert.Equal(t, 1, c.Len())
	assert.Equal(t, []uuid.UUID{a, a, b}, bk.owners)
	assert.Equal(t, []uuid.UUID{a}, bk.released)
	c.Release(section(b, 0))
	assert.Equal(t, 0, c.Stats().Entries)
}

func TestInvalidSettings(t *testing.T) {
	s := DefaultSettings()
	s.FrameSlots = 1
	_, err := NewSkinCache(WithSettings(s))
	assert.Error(t, err)
}

func TestVariantCapabilities(t *testing.T) {
	assert.Equal(t, 4, VariantDefault.Capabilities().MaxInfluences)
	assert.Equal(t, 8, VariantExtraInfluences.Capabilities().MaxInfluences)
	assert.True(t, VariantMorph.Capabilities().Morph)
	assert.True(t, VariantCloth.Capabilities().Cloth)
	assert.False(t, VariantCloth.Capabilities().TangentRecompute)
	assert.Equal(t, "default", Variant(42).String())

	assert.Equal(t, VariantCloth, SelectVariant(&model.RenderSection{Cloth: true, MaxBoneInfluences: 8}, true))
	assert.Equal(t, VariantMorph, SelectVariant(&model.RenderSection{MaxBoneInfluences: 8}, true))
	assert.Equal(t, VariantExtraInfluences, SelectVariant(&model.RenderSection{MaxBoneInfluences: 8}, false))
	assert.Equal(t, VariantDefault, SelectVariant(&model.RenderSection{MaxBoneInfluences: 4}, false))
}
