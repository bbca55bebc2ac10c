package world

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/Carmen-Shannon/automation/tools/worker"
	"github.com/Carmen-Shannon/oxy-anim/engine/logging"
	"github.com/Carmen-Shannon/oxy-anim/engine/pose"
	"github.com/Carmen-Shannon/oxy-anim/engine/profiler"
	"github.com/Carmen-Shannon/oxy-anim/engine/skeletal_mesh"
	"github.com/Carmen-Shannon/oxy-anim/engine/skin_cache"
	"github.com/Carmen-Shannon/oxy-anim/engine/update_rate"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

var (
	// ErrDuplicateMesh is returned by Add when a mesh with the same ID is already registered.
	ErrDuplicateMesh = errors.New("mesh already registered")

	// ErrClosed is returned by operations on a closed world.
	ErrClosed = errors.New("world is closed")
)

// groupFrame is the per-frame scratch of one owner group.
type groupFrame struct {
	params   *update_rate.Params
	input    update_rate.Input
	decision update_rate.Decision
	seen     bool
}

// world implements the World interface.
// Owns the update-rate registry, the evaluation worker pool and the completion queue.
type world struct {
	mu         *sync.Mutex
	logger     logging.Logger
	baseLogger logging.Logger
	closed     bool

	registry       update_rate.Registry
	updateSettings *update_rate.Settings

	pool            worker.DynamicWorkerPool
	ownsPool        bool
	workers         int
	workerQueue     int
	workerIdle      time.Duration
	runner          pose.TaskRunner
	queue           *pose.MainThreadQueue
	queueSize       int
	parallel        bool
	blockOnInFlight bool

	cache skin_cache.SkinCache

	profiler         *profiler.Profiler
	profilingEnabled bool
	profileInterval  time.Duration

	tickRate        time.Duration
	tickRateChannel chan time.Duration
	tickCallback    func(deltaTime float32)
	renderCallback  func(frame uint64, data []*skeletal_mesh.RenderData)

	frame      uint64
	meshes     []skeletal_mesh.SkeletalMesh
	byID       map[uuid.UUID]skeletal_mesh.SkeletalMesh
	groups     map[uuid.UUID]*groupFrame
	renderData map[uuid.UUID]*skeletal_mesh.RenderData
	visible    []*skeletal_mesh.RenderData
	last       profiler.FrameSample
}

// World drives every skeletal mesh of a scene through one frame at a time: it merges each owner
// group's update-rate facts, ticks the group once, forwards the decision to the group's meshes,
// waits for in-flight pose evaluations at the end of the frame and builds render data inside a
// skin cache frame bracket.
//
// Tick, Add, Remove and Close must be called from the thread that owns the world.
type World interface {
	// Registry returns the update-rate registry shared by all owner groups.
	//
	// Returns:
	//   - update_rate.Registry: the registry
	Registry() update_rate.Registry

	// SkinCache returns the skin cache, or nil when meshes skin per draw.
	//
	// Returns:
	//   - skin_cache.SkinCache: the cache or nil
	SkinCache() skin_cache.SkinCache

	// Frame returns the number of the last ticked frame.
	//
	// Returns:
	//   - uint64: the frame number, 0 before the first Tick
	Frame() uint64

	// CoordinatorOptions returns the pose coordinator options meshes of this world are built
	// with: the world's task runner, completion queue and evaluation policy.
	//
	// Returns:
	//   - []pose.CoordinatorBuilderOption: the options
	CoordinatorOptions() []pose.CoordinatorBuilderOption

	// NewMesh creates a mesh wired to the world's scheduler and registers it.
	//
	// Parameters:
	//   - options: mesh options; the world's coordinator options and logger are prepended
	//
	// Returns:
	//   - skeletal_mesh.SkeletalMesh: the registered mesh
	//   - error: an error if the mesh cannot be created or registered
	NewMesh(options ...skeletal_mesh.SkeletalMeshBuilderOption) (skeletal_mesh.SkeletalMesh, error)

	// Add registers a mesh and attaches it to its owner's update-rate group.
	//
	// Parameters:
	//   - mesh: the mesh
	//
	// Returns:
	//   - error: ErrDuplicateMesh or ErrClosed
	Add(mesh skeletal_mesh.SkeletalMesh) error

	// Remove unregisters a mesh, waits for its in-flight evaluation, releases its coordinator,
	// its group reference and its skin cache entries.
	//
	// Parameters:
	//   - id: the mesh ID
	//
	// Returns:
	//   - bool: false if no mesh had that ID
	Remove(id uuid.UUID) bool

	// Mesh returns a registered mesh.
	//
	// Parameters:
	//   - id: the mesh ID
	//
	// Returns:
	//   - skeletal_mesh.SkeletalMesh: the mesh, or nil
	Mesh(id uuid.UUID) skeletal_mesh.SkeletalMesh

	// Meshes returns the registered meshes in registration order.
	//
	// Returns:
	//   - []skeletal_mesh.SkeletalMesh: a copy of the mesh list
	Meshes() []skeletal_mesh.SkeletalMesh

	// Len returns the number of registered meshes.
	//
	// Returns:
	//   - int: the mesh count
	Len() int

	// Tick advances the world by one frame.
	//
	// Parameters:
	//   - deltaTime: the frame delta in seconds
	//
	// Returns:
	//   - error: an error if the skin cache frame bracket failed; mesh errors are logged
	Tick(deltaTime float32) error

	// RenderData returns the render data built by the last Tick for visible meshes.
	//
	// Returns:
	//   - []*skeletal_mesh.RenderData: render data valid until the next Tick
	RenderData() []*skeletal_mesh.RenderData

	// LastFrameStats returns the counters of the last Tick.
	//
	// Returns:
	//   - profiler.FrameSample: the counters
	LastFrameStats() profiler.FrameSample

	// EnableProfiler enables periodic frame statistics through the logger.
	EnableProfiler()

	// DisableProfiler disables periodic frame statistics.
	DisableProfiler()

	// Profiler returns the world's profiler.
	//
	// Returns:
	//   - *profiler.Profiler: the profiler
	Profiler() *profiler.Profiler

	// SetTickRate sets the Run loop tick rate in frames per second.
	// If Run is active, the change takes effect on the next tick.
	//
	// Parameters:
	//   - fps: target ticks per second (defaults to 60 if <= 0)
	SetTickRate(fps float64)

	// SetTickCallback registers a function called before each Run tick, for game logic that
	// moves meshes, changes visibility or plays clips.
	//
	// Parameters:
	//   - callback: function receiving the delta time in seconds
	SetTickCallback(callback func(deltaTime float32))

	// SetRenderCallback registers a function called at the end of each Tick with the frame's
	// render data. The world lock is released first, so the callback may use the world.
	//
	// Parameters:
	//   - callback: function receiving the frame number and render data
	SetRenderCallback(callback func(frame uint64, data []*skeletal_mesh.RenderData))

	// Run ticks the world at the configured rate until ctx is done.
	//
	// Parameters:
	//   - ctx: cancels the loop
	//
	// Returns:
	//   - error: the first Tick error, or ctx.Err() on cancellation
	Run(ctx context.Context) error

	// Close removes every mesh, stops an owned worker pool and closes the skin cache.
	Close()
}

var _ World = &world{}

// NewWorld creates a new World with the specified options applied. Unless a task runner is
// supplied, the world starts its own worker pool for parallel pose evaluation.
//
// Parameters:
//   - options: a variadic list of WorldBuilderOption functions to configure the world
//
// Returns:
//   - World: the new world
func NewWorld(options ...WorldBuilderOption) World {
	settings := update_rate.DefaultSettings()
	w := &world{
		mu:              &sync.Mutex{},
		logger:          logging.NoOpLogger{},
		updateSettings:  &settings,
		workers:         4,
		workerQueue:     1024,
		workerIdle:      5 * time.Second,
		queueSize:       4096,
		parallel:        true,
		blockOnInFlight: true,
		profileInterval: time.Second,
		tickRate:        time.Second / 60,
		tickRateChannel: make(chan time.Duration, 1),
		byID:            make(map[uuid.UUID]skeletal_mesh.SkeletalMesh),
		groups:          make(map[uuid.UUID]*groupFrame),
		renderData:      make(map[uuid.UUID]*skeletal_mesh.RenderData),
	}
	for _, opt := range options {
		opt(w)
	}
	w.baseLogger = w.logger
	w.logger = logging.WithComponent(w.baseLogger, "world")

	if w.registry == nil {
		w.registry = update_rate.NewRegistry(update_rate.WithSettings(*w.updateSettings))
	}
	if w.runner == nil && w.parallel {
		w.pool = worker.NewDynamicWorkerPool(w.workers, w.workerQueue, w.workerIdle)
		w.ownsPool = true
		w.runner = pose.NewPoolRunner(w.pool)
	}
	w.queue = pose.NewMainThreadQueue(w.queueSize)
	w.profiler = profiler.NewProfiler(w.baseLogger, w.profileInterval)
	return w
}

func (w *world) Registry() update_rate.Registry {
	return w.registry
}

func (w *world) SkinCache() skin_cache.SkinCache {
	return w.cache
}

func (w *world) Frame() uint64 {
	return w.frame
}

func (w *world) CoordinatorOptions() []pose.CoordinatorBuilderOption {
	opts := []pose.CoordinatorBuilderOption{
		pose.WithCompletionQueue(w.queue),
		pose.WithParallelEvaluation(w.parallel && w.runner != nil),
		pose.WithBlockOnInFlight(w.blockOnInFlight),
	}
	if w.runner != nil {
		opts = append(opts, pose.WithTaskRunner(w.runner))
	}
	return opts
}

func (w *world) NewMesh(options ...skeletal_mesh.SkeletalMeshBuilderOption) (skeletal_mesh.SkeletalMesh, error) {
	opts := append([]skeletal_mesh.SkeletalMeshBuilderOption{
		skeletal_mesh.WithLogger(w.baseLogger),
		skeletal_mesh.WithCoordinatorOptions(w.CoordinatorOptions()...),
	}, options...)
	m, err := skeletal_mesh.NewSkeletalMesh(opts...)
	if err != nil {
		return nil, err
	}
	if err := w.Add(m); err != nil {
		m.Release()
		return nil, err
	}
	return m, nil
}

func (w *world) Add(mesh skeletal_mesh.SkeletalMesh) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrClosed
	}
	if _, ok := w.byID[mesh.ID()]; ok {
		return errors.Wrapf(ErrDuplicateMesh, "mesh %s", mesh.ID())
	}
	mesh.AttachUpdateRate(w.registry.Acquire(mesh.Owner()))
	w.byID[mesh.ID()] = mesh
	w.meshes = append(w.meshes, mesh)
	return nil
}

func (w *world) Remove(id uuid.UUID) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.removeLocked(id)
}

func (w *world) removeLocked(id uuid.UUID) bool {
	mesh, ok := w.byID[id]
	if !ok {
		return false
	}
	delete(w.byID, id)
	delete(w.renderData, id)
	w.meshes = slices.DeleteFunc(w.meshes, func(m skeletal_mesh.SkeletalMesh) bool { return m.ID() == id })

	// followers of the removed mesh evaluate on their own again
	for _, m := range w.meshes {
		if m.Coordinator().Leader() == mesh.Coordinator() {
			_ = m.SetLeader(nil)
		}
	}

	mesh.Coordinator().WaitForCompletion()
	mesh.Release()
	mesh.AttachUpdateRate(nil)
	w.registry.Release(mesh.Owner())
	if w.cache != nil {
		w.cache.ReleaseOwner(id)
	}
	return true
}

func (w *world) Mesh(id uuid.UUID) skeletal_mesh.SkeletalMesh {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.byID[id]
}

func (w *world) Meshes() []skeletal_mesh.SkeletalMesh {
	w.mu.Lock()
	defer w.mu.Unlock()
	return slices.Clone(w.meshes)
}

func (w *world) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.meshes)
}

func (w *world) Tick(deltaTime float32) error {
	w.mu.Lock()
	frame, err := w.tick(deltaTime)
	cb, data := w.renderCallback, w.visible
	w.mu.Unlock()
	if err != nil {
		return err
	}

	// the callback may call back into the world
	if cb != nil {
		cb(frame, data)
	}
	return nil
}

func (w *world) tick(deltaTime float32) (uint64, error) {
	if w.closed {
		return 0, ErrClosed
	}
	w.frame++
	frame := w.frame
	sample := profiler.FrameSample{}

	// Phase 1: one decision per owner group from the merged facts of its meshes.
	for _, g := range w.groups {
		g.seen = false
	}
	for _, m := range w.meshes {
		if !m.Enabled() || m.UpdateRateParams() == nil {
			continue
		}
		in := m.UpdateRateInput(frame, deltaTime)
		g := w.groups[m.Owner()]
		if g == nil {
			g = &groupFrame{}
			w.groups[m.Owner()] = g
		}
		if !g.seen {
			g.params = m.UpdateRateParams()
			g.input = in
			g.seen = true
			continue
		}
		g.input = g.input.Merge(in)
	}
	for owner, g := range w.groups {
		if !g.seen {
			delete(w.groups, owner)
			continue
		}
		g.decision = g.params.Tick(g.input)
	}

	// Phase 2: dispatch pose evaluation.
	for _, m := range w.meshes {
		if !m.Enabled() {
			continue
		}
		var d *update_rate.Decision
		if g := w.groups[m.Owner()]; g != nil && g.seen {
			d = &g.decision
		}
		err := m.Tick(frame, deltaTime, d, pose.PhaseUpdate)
		sample.Meshes++
		switch {
		case errors.Is(err, pose.ErrTaskInFlight):
			sample.InFlight++
			continue
		case err != nil:
			w.logger.Warn("mesh tick failed", "mesh", m.ID(), "frame", frame, "error", err)
			continue
		}
		dec := m.LastDecision()
		switch {
		case !dec.SkipEvaluation:
			sample.Evaluated++
		case dec.Interpolate:
			sample.Interpolated++
		default:
			sample.Skipped++
		}
	}
	w.queue.Pump()

	// Phase 3: end-of-frame sync so every published pose belongs to this frame.
	for _, m := range w.meshes {
		m.Coordinator().WaitForCompletion()
	}
	w.queue.Pump()

	// Phase 4: render data inside the skin cache bracket.
	if err := w.buildRenderData(frame, &sample); err != nil {
		return frame, err
	}

	w.last = sample
	if w.profilingEnabled {
		w.profiler.Record(sample)
		w.profiler.Tick()
	}
	return frame, nil
}

func (w *world) buildRenderData(frame uint64, sample *profiler.FrameSample) error {
	if w.cache != nil {
		if err := w.cache.BeginFrame(frame); err != nil {
			return errors.Wrapf(err, "begin skin cache frame %d", frame)
		}
	}
	w.visible = w.visible[:0]
	for _, m := range w.meshes {
		if !m.Visible() || m.Model() == nil {
			continue
		}
		rd, err := m.BuildRenderData(frame, w.cache, w.renderData[m.ID()])
		if err != nil {
			w.logger.Debug("no render data", "mesh", m.ID(), "error", err)
			continue
		}
		w.renderData[m.ID()] = rd
		w.visible = append(w.visible, rd)
		sample.CachedSections += rd.CachedSections()
		sample.FallbackSections += rd.FallbackSections()
	}
	if w.cache != nil {
		if err := w.cache.EndFrame(); err != nil {
			return errors.Wrapf(err, "end skin cache frame %d", frame)
		}
	}
	return nil
}

func (w *world) RenderData() []*skeletal_mesh.RenderData {
	return w.visible
}

func (w *world) LastFrameStats() profiler.FrameSample {
	return w.last
}

func (w *world) EnableProfiler() {
	w.profilingEnabled = true
}

func (w *world) DisableProfiler() {
	w.profilingEnabled = false
}

func (w *world) Profiler() *profiler.Profiler {
	return w.profiler
}

func (w *world) SetTickRate(fps float64) {
	if fps <= 0 {
		fps = 60
	}
	newRate := time.Duration(float64(time.Second) / fps)
	// replace any pending update so the newest rate wins
	select {
	case w.tickRateChannel <- newRate:
	default:
		select {
		case <-w.tickRateChannel:
		default:
		}
		w.tickRateChannel <- newRate
	}
}

func (w *world) SetTickCallback(callback func(deltaTime float32)) {
	w.tickCallback = callback
}

func (w *world) SetRenderCallback(callback func(frame uint64, data []*skeletal_mesh.RenderData)) {
	w.renderCallback = callback
}

func (w *world) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.tickRate)
	defer ticker.Stop()

	lastTick := time.Now()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case newRate := <-w.tickRateChannel:
			ticker.Reset(newRate)
			w.tickRate = newRate
		case <-ticker.C:
			now := time.Now()
			dt := float32(now.Sub(lastTick).Seconds())
			lastTick = now

			if w.tickCallback != nil {
				w.tickCallback(dt)
			}
			if err := w.Tick(dt); err != nil {
				return err
			}
		}
	}
}

func (w *world) Close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	for len(w.meshes) > 0 {
		w.removeLocked(w.meshes[len(w.meshes)-1].ID())
	}
	w.queue.Pump()
	if w.ownsPool {
		w.pool.Stop()
	}
	if w.cache != nil {
		w.cache.Close()
	}
	w.closed = true
}
