// Package skin_cache keeps pre-skinned vertex data for render sections in a ring of per-frame
// slot buffers, so draws read skinned vertices instead of skinning per draw.
package skin_cache

import (
	"github.com/Carmen-Shannon/oxy-anim/engine/logging"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// Settings configure the capacity of a SkinCache.
type Settings struct {
	// FrameSlots is the ring size N. At least 2 so the previous frame stays readable.
	FrameSlots int
	// SlotBudgetFloats is the linear allocator budget of each slot in float32 values.
	SlotBudgetFloats uint32
	// MaxEntries is the number K of concurrently tracked sections.
	MaxEntries int
	// EvictionSafetyFrames is how many frames an entry must be idle before it can be evicted.
	EvictionSafetyFrames uint64
	// MaxDispatchesPerFrame bounds the number of skinning dispatches per frame.
	MaxDispatchesPerFrame int
	// RecomputeTangents enables the tangent pass for sections that request it.
	RecomputeTangents bool
}

// DefaultSettings returns the default cache settings.
func DefaultSettings() Settings {
	return Settings{
		FrameSlots:            3,
		SlotBudgetFloats:      4 << 20,
		MaxEntries:            1024,
		EvictionSafetyFrames:  10,
		MaxDispatchesPerFrame: 512,
		RecomputeTangents:     true,
	}
}

// Validate checks that the settings describe a usable cache.
func (s Settings) Validate() error {
	switch {
	case s.FrameSlots < 2:
		return errors.Errorf("skin cache needs at least 2 frame slots, got %d", s.FrameSlots)
	case s.SlotBudgetFloats == 0:
		return errors.New("skin cache slot budget must be positive")
	case s.MaxEntries <= 0:
		return errors.Errorf("skin cache max entries must be positive, got %d", s.MaxEntries)
	case s.MaxDispatchesPerFrame <= 0:
		return errors.Errorf("skin cache dispatch quota must be positive, got %d", s.MaxDispatchesPerFrame)
	}
	return nil
}

// SlotKey locates a cached section inside a frame slot.
type SlotKey struct {
	Slot  int
	Frame uint64
	// Offset is the float offset of the allocated range.
	Offset uint32
	// StreamOffset is the float offset of source vertex 0; section vertices start at
	// StreamOffset + BaseVertex*OutputStrideFloats == Offset.
	StreamOffset uint32
	BaseVertex   uint32
	VertexCount  uint32
}

// Floats returns the length of the cached range in float32 values.
func (k SlotKey) Floats() uint32 {
	return k.VertexCount * OutputStrideFloats
}

// Entry is the tracking record of one cached section.
type Entry struct {
	Key          SectionKey
	Variant      Variant
	CurrentFrame uint64
	Current      SlotKey
	// PreviousFrame and Previous describe the last frame before CurrentFrame the section was
	// skinned, used by velocity consumers. HasPrevious is false for a new entry.
	PreviousFrame uint64
	Previous      SlotKey
	HasPrevious   bool
	VertexCount   uint32
	// SourceVertices is the length of the source vertex stream the entry was skinned from.
	SourceVertices int
}

// Range is a readable span of a slot buffer.
type Range struct {
	Buffer       SlotBuffer
	Offset       uint32
	StreamOffset uint32
	Floats       uint32
}

// Stats are cumulative cache counters.
type Stats struct {
	Entries           int
	Hits              uint64
	Dispatches        uint64
	TangentDispatches uint64
	Evictions         uint64
	QuotaFailures     uint64
	OverflowFailures  uint64
	ExhaustedFailures uint64
}

type frameSlot struct {
	frame  uint64
	used   uint32
	state  SlotState
	buffer SlotBuffer
}

// skinCache is the implementation of the SkinCache interface.
type skinCache struct {
	settings Settings
	backend  SkinningBackend
	logger   logging.Logger

	slots   []frameSlot
	entries map[SectionKey]*Entry

	frame      uint64
	recording  bool
	dispatches int

	stats Stats
}

// SkinCache is a bounded cache of skinned section vertices. It is owned by the render thread;
// frames are bracketed by BeginFrame and EndFrame.
type SkinCache interface {
	// BeginFrame starts recording a frame: the slot frame%N is reset and made writable and
	// the dispatch quota is refilled. An unfinished previous frame is ended first.
	//
	// Parameters:
	//   - frame: the frame number
	//
	// Returns:
	//   - error: an error if the slot could not be transitioned
	BeginFrame(frame uint64) error

	// StartCacheMesh skins a section into the current slot, or returns the key recorded earlier
	// in the same frame.
	//
	// Parameters:
	//   - key: the section
	//   - frame: the current frame number
	//   - geom: the skinning input
	//
	// Returns:
	//   - SlotKey: where the skinned vertices will be readable after EndFrame
	//   - error: ErrCacheExhausted (possibly as ErrDispatchQuota or ErrSlotOverflow) when the
	//     caller must skin per draw; ErrNotInFrame or ErrInvalidGeometry on misuse
	StartCacheMesh(key SectionKey, frame uint64, geom *GeometryDescriptor) (SlotKey, error)

	// EndFrame transitions the current slot from writable to readable.
	//
	// Returns:
	//   - error: an error if the transition failed
	EndFrame() error

	// Resolve returns the readable range of a slot key.
	//
	// Parameters:
	//   - key: a key returned by StartCacheMesh
	//
	// Returns:
	//   - Range: the readable range
	//   - error: ErrNotReadable before EndFrame, ErrStaleSlot once the slot was reused
	Resolve(key SlotKey) (Range, error)

	// ResolvePrevious returns the previous frame's range of a section, for velocity consumers.
	//
	// Parameters:
	//   - key: the section
	//
	// Returns:
	//   - Range: the readable range
	//   - bool: false if there is no previous frame or its slot has been reused
	ResolvePrevious(key SectionKey) (Range, bool)

	// Entry returns a copy of the tracking record of a section.
	//
	// Parameters:
	//   - key: the section
	//
	// Returns:
	//   - Entry: the record
	//   - bool: false if the section is not tracked
	Entry(key SectionKey) (Entry, bool)

	// Release stops tracking a section.
	//
	// Parameters:
	//   - key: the section
	Release(key SectionKey)

	// ReleaseOwner stops tracking every section of an owner and lets the backend free the
	// owner's resources when it implements OwnerReleaser.
	//
	// Parameters:
	//   - owner: the owning mesh instance
	ReleaseOwner(owner uuid.UUID)

	// Len returns the number of tracked sections.
	//
	// Returns:
	//   - int: the entry count
	Len() int

	// Settings returns the cache settings.
	//
	// Returns:
	//   - Settings: the settings
	Settings() Settings

	// Stats returns cumulative counters.
	//
	// Returns:
	//   - Stats: the counters
	Stats() Stats

	// Close releases every backend buffer.
	Close()
}

var _ SkinCache = &skinCache{}

// NewSkinCache creates a SkinCache and allocates its slot buffers on the backend.
// Without WithBackend the CPU backend is used.
//
// Parameters:
//   - options: variadic list of SkinCacheBuilderOption functions
//
// Returns:
//   - SkinCache: the cache
//   - error: an error if the settings are invalid or a slot buffer could not be created
func NewSkinCache(options ...SkinCacheBuilderOption) (SkinCache, error) {
	c := &skinCache{
		settings: DefaultSettings(),
		logger:   logging.NoOpLogger{},
		entries:  make(map[SectionKey]*Entry),
	}
	for _, opt := range options {
		opt(c)
	}
	if err := c.settings.Validate(); err != nil {
		return nil, err
	}
	if c.backend == nil {
		c.backend = NewCPUBackend()
	}
	c.logger = logging.WithComponent(c.logger, "skin_cache")

	c.slots = make([]frameSlot, c.settings.FrameSlots)
	for i := range c.slots {
		buf, err := c.backend.CreateSlotBuffer(i, c.settings.SlotBudgetFloats)
		if err != nil {
			c.backend.Release()
			return nil, errors.Wrapf(err, "create slot buffer %d", i)
		}
		c.slots[i].buffer = buf
	}
	return c, nil
}

func (c *skinCache) BeginFrame(frame uint64) error {
	if c.recording {
		if err := c.EndFrame(); err != nil {
			return err
		}
	}
	slot := &c.slots[frame%uint64(len(c.slots))]
	if err := c.backend.Transition(slot.buffer, SlotStateWritable); err != nil {
		return errors.Wrapf(err, "begin frame %d", frame)
	}
	slot.frame = frame
	slot.used = 0
	slot.state = SlotStateWritable

	c.frame = frame
	c.recording = true
	c.dispatches = 0
	return nil
}

func (c *skinCache) EndFrame() error {
	if !c.recording {
		return nil
	}
	slot := &c.slots[c.frame%uint64(len(c.slots))]
	if err := c.backend.Transition(slot.buffer, SlotStateReadable); err != nil {
		return errors.Wrapf(err, "end frame %d", c.frame)
	}
	slot.state = SlotStateReadable
	c.recording = false
	return nil
}

func (c *skinCache) StartCacheMesh(key SectionKey, frame uint64, geom *GeometryDescriptor) (SlotKey, error) {
	if !c.recording || frame != c.frame {
		return SlotKey{}, errors.Wrapf(ErrNotInFrame, "frame %d", frame)
	}
	entry := c.entries[key]
	if entry != nil && entry.CurrentFrame == frame {
		c.stats.Hits++
		return entry.Current, nil
	}
	if !geom.validate() {
		return SlotKey{}, errors.Wrapf(ErrInvalidGeometry, "section %v", key)
	}

	if c.dispatches >= c.settings.MaxDispatchesPerFrame {
		c.stats.QuotaFailures++
		return SlotKey{}, errors.Wrapf(ErrDispatchQuota, "section %v", key)
	}

	slotIndex := int(frame % uint64(len(c.slots)))
	slot := &c.slots[slotIndex]
	stride := uint32(OutputStrideFloats)
	start := max(slot.used, geom.BaseVertex*stride)
	end := uint64(start) + uint64(geom.VertexCount)*uint64(stride)
	if end > uint64(c.settings.SlotBudgetFloats) {
		c.stats.OverflowFailures++
		return SlotKey{}, errors.Wrapf(ErrSlotOverflow, "section %v needs %d floats, slot has %d", key, end-uint64(slot.used), c.settings.SlotBudgetFloats-slot.used)
	}

	var victim *Entry
	if entry == nil && len(c.entries) >= c.settings.MaxEntries {
		if victim = c.evictionVictim(frame); victim == nil {
			c.stats.ExhaustedFailures++
			return SlotKey{}, errors.Wrapf(ErrCacheExhausted, "section %v: %d entries, none idle for more than %d frames", key, len(c.entries), c.settings.EvictionSafetyFrames)
		}
	}

	sk := SlotKey{
		Slot:         slotIndex,
		Frame:        frame,
		Offset:       start,
		StreamOffset: start - geom.BaseVertex*stride,
		BaseVertex:   geom.BaseVertex,
		VertexCount:  geom.VertexCount,
	}
	caps := geom.Variant.Capabilities()
	job := DispatchJob{Owner: key.Owner, Buffer: slot.buffer, Offset: sk.Offset, StreamOffset: sk.StreamOffset, Geometry: geom, Capabilities: caps}
	if err := c.backend.Dispatch(job); err != nil {
		return SlotKey{}, errors.Wrapf(err, "dispatch section %v", key)
	}
	if geom.RecomputeTangents && caps.TangentRecompute && c.settings.RecomputeTangents && len(geom.Indices) >= 3 {
		if err := c.backend.DispatchRecomputeTangents(job); err != nil {
			return SlotKey{}, errors.Wrapf(err, "recompute tangents of section %v", key)
		}
		c.stats.TangentDispatches++
	}

	if victim != nil {
		c.evict(victim, frame)
	}
	slot.used = uint32(end)
	c.dispatches++
	c.stats.Dispatches++

	if entry == nil {
		entry = &Entry{Key: key}
		c.entries[key] = entry
	} else {
		entry.PreviousFrame = entry.CurrentFrame
		entry.Previous = entry.Current
		entry.HasPrevious = true
	}
	entry.Variant = geom.Variant
	entry.CurrentFrame = frame
	entry.Current = sk
	entry.VertexCount = geom.VertexCount
	entry.SourceVertices = len(geom.Vertices)
	return sk, nil
}

// evictionVictim returns the least recently updated entry if it has been idle longer than the
// safety margin.
func (c *skinCache) evictionVictim(frame uint64) *Entry {
	var oldest *Entry
	for _, e := range c.entries {
		if oldest == nil || e.CurrentFrame < oldest.CurrentFrame {
			oldest = e
		}
	}
	if oldest == nil || frame < oldest.CurrentFrame || frame-oldest.CurrentFrame <= c.settings.EvictionSafetyFrames {
		return nil
	}
	return oldest
}

func (c *skinCache) evict(e *Entry, frame uint64) {
	delete(c.entries, e.Key)
	c.stats.Evictions++
	c.logger.Debug("evicted skin cache entry", "owner", e.Key.Owner, "lod", e.Key.LOD, "section", e.Key.Section, "idle_frames", frame-e.CurrentFrame)
}

func (c *skinCache) Resolve(key SlotKey) (Range, error) {
	if key.Slot < 0 || key.Slot >= len(c.slots) {
		return Range{}, errors.Wrapf(ErrStaleSlot, "slot %d", key.Slot)
	}
	slot := &c.slots[key.Slot]
	if slot.frame != key.Frame {
		return Range{}, errors.Wrapf(ErrStaleSlot, "slot %d holds frame %d, key is for frame %d", key.Slot, slot.frame, key.Frame)
	}
	if slot.state != SlotStateReadable {
		return Range{}, errors.Wrapf(ErrNotReadable, "slot %d is %s", key.Slot, slot.state)
	}
	return Range{Buffer: slot.buffer, Offset: key.Offset, StreamOffset: key.StreamOffset, Floats: key.Floats()}, nil
}

func (c *skinCache) ResolvePrevious(key SectionKey) (Range, bool) {
	e := c.entries[key]
	if e == nil || !e.HasPrevious {
		return Range{}, false
	}
	r, err := c.Resolve(e.Previous)
	return r, err == nil
}

func (c *skinCache) Entry(key SectionKey) (Entry, bool) {
	e := c.entries[key]
	if e == nil {
		return Entry{}, false
	}
	return *e, true
}

func (c *skinCache) Release(key SectionKey) {
	delete(c.entries, key)
}

func (c *skinCache) ReleaseOwner(owner uuid.UUID) {
	for k := range c.entries {
		if k.Owner == owner {
			delete(c.entries, k)
		}
	}
	if r, ok := c.backend.(OwnerReleaser); ok {
		r.ReleaseOwner(owner)
	}
}

func (c *skinCache) Len() int {
	return len(c.entries)
}

func (c *skinCache) Settings() Settings {
	return c.settings
}

func (c *skinCache) Stats() Stats {
	s := c.stats
	s.Entries = len(c.entries)
	return s
}

func (c *skinCache) Close() {
	c.entries = make(map[SectionKey]*Entry)
	c.backend.Release()
	c.recording = false
}
