package main

import (
	"context"
	"flag"
	"fmt"
	"math"
	"math/rand/v2"
	"os"
	"time"

	"github.com/Carmen-Shannon/oxy-anim/common"
	"github.com/Carmen-Shannon/oxy-anim/engine/animator"
	"github.com/Carmen-Shannon/oxy-anim/engine/config"
	"github.com/Carmen-Shannon/oxy-anim/engine/logging"
	"github.com/Carmen-Shannon/oxy-anim/engine/model"
	"github.com/Carmen-Shannon/oxy-anim/engine/renderer"
	"github.com/Carmen-Shannon/oxy-anim/engine/skeletal_mesh"
	"github.com/Carmen-Shannon/oxy-anim/engine/skin_cache"
	"github.com/Carmen-Shannon/oxy-anim/engine/world"
	"github.com/google/uuid"
	"github.com/gopxl/mainthread/v2"
	"github.com/pkg/errors"
)

// ── Benchmark Configuration ────────────────────────────────────────
const (
	// crowdInitialCount is the number of characters in the first ramp step.
	crowdInitialCount = 50
	// crowdRampInterval is how long each ramp step runs before ramping.
	crowdRampInterval = 5 * time.Second
	// crowdFPSThreshold is the FPS floor; the benchmark stops ramping below it.
	crowdFPSThreshold = 30.0
	// crowdRampFactor is the multiplier applied each step (1.5 = +50%).
	crowdRampFactor = 1.5
	// crowdMaxStep caps the number of characters added per ramp step.
	crowdMaxStep = 1000
	// crowdSpacing is the distance between characters on the XZ grid.
	crowdSpacing = 2.0
	// crowdMaxSide is the number of characters per grid row.
	crowdMaxSide = 40
	// crowdBones is the bone count of the procedural spine.
	crowdBones = 24
	// crowdOffscreenEvery marks every Nth character as off screen.
	crowdOffscreenEvery = 5
	// crowdAttachmentEvery gives every Nth character a follower attachment mesh.
	crowdAttachmentEvery = 2
)

func main() {
	configPath := flag.String("config", "", "TOML config file (overrides $"+config.ConfigEnv+")")
	duration := flag.Duration("duration", time.Minute, "maximum run time")
	flag.Parse()

	if *configPath != "" {
		os.Setenv(config.ConfigEnv, *configPath)
	}
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "oxy-anim-bench: %v\n", err)
		os.Exit(1)
	}
	logger := cfg.Log.Logger(os.Stderr)

	exitCode := 0
	mainthread.Run(func() {
		if err := run(cfg, logger, *duration); err != nil && !errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, context.Canceled) {
			logger.Error("bench failed", "error", err)
			exitCode = 1
		}
	})
	os.Exit(exitCode)
}

// run builds the world and drives it on the OS main thread until the FPS floor or the deadline.
func run(cfg config.Config, logger logging.Logger, duration time.Duration) error {
	opts, err := world.ConfigOptions(cfg)
	if err != nil {
		return err
	}

	var (
		w     world.World
		setup error
	)
	mainthread.Call(func() {
		cache, err := newSkinCache(cfg, logger)
		if err != nil {
			setup = err
			return
		}
		w = world.NewWorld(append(opts,
			world.WithLogger(logger),
			world.WithSkinCache(cache),
			world.WithProfiling(time.Second),
		)...)
	})
	if setup != nil {
		return setup
	}
	defer mainthread.Call(w.Close)

	crowd, err := newCrowdModel()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), duration)
	defer cancel()

	b := &bench{world: w, model: crowd, logger: logger, rng: rand.New(rand.NewPCG(1, 2)), stop: cancel}
	if err := b.spawn(crowdInitialCount); err != nil {
		return err
	}
	b.count = crowdInitialCount
	b.rampStart = time.Now()
	w.SetTickCallback(b.onTick)

	logger.Info("bench starting",
		"characters", b.count,
		"bones", crowdBones,
		"skin_cache", cfg.SkinCache.Enabled,
		"backend", cfg.SkinCache.Backend,
		"parallel", cfg.Animation.ParallelEvaluation,
	)

	var runErr error
	mainthread.Call(func() {
		runErr = w.Run(ctx)
	})

	r := w.Profiler().LastReport()
	logger.Info("bench result",
		"best_count", b.bestCount,
		"best_fps", b.bestFPS,
		"final_count", b.count,
		"last_fps", r.FPS,
		"heap_mb", r.HeapMB,
	)
	return runErr
}

// newSkinCache creates the configured skin cache. A wgpu backend with no adapter falls back to
// CPU skinning.
func newSkinCache(cfg config.Config, logger logging.Logger) (skin_cache.SkinCache, error) {
	if !cfg.SkinCache.Enabled {
		return nil, nil
	}
	var backend skin_cache.SkinningBackend = skin_cache.NewCPUBackend()
	if cfg.SkinCache.Backend == config.BackendWGPU {
		r, err := renderer.NewRenderer(
			renderer.WithForceSoftwareRenderer(cfg.SkinCache.ForceSoftwareAdapter),
			renderer.WithLogger(logger),
		)
		switch {
		case errors.Is(err, renderer.ErrNoAdapter):
			logger.Warn("no compute adapter, skinning on the CPU")
		case err != nil:
			return nil, errors.Wrap(err, "create compute renderer")
		default:
			backend = r
		}
	}
	return skin_cache.NewSkinCache(
		skin_cache.WithSettings(cfg.SkinCache.Settings()),
		skin_cache.WithBackend(backend),
		skin_cache.WithLogger(logger),
	)
}

// newCrowdModel builds the shared procedural character: a spine chain with a tube skin and two
// sway clips.
func newCrowdModel() (model.Model, error) {
	skel, err := model.BuildChainSkeleton("spine", crowdBones, [3]float32{0, 0.1, 0})
	if err != nil {
		return nil, err
	}
	return model.NewModel(
		model.WithName("crowd"),
		model.WithSkeleton(skel),
		model.WithLOD(model.BuildTubeLOD(skel, 8, 0.05)),
		model.WithAnimations(
			model.BuildSwayClip("sway_x", skel, [3]float32{1, 0, 0}, 0.2, 1.5),
			model.BuildSwayClip("sway_z", skel, [3]float32{0, 0, 1}, 0.3, 2),
		),
		model.WithBoundingRadius(crowdBones*0.1),
	), nil
}

type bench struct {
	world  world.World
	model  model.Model
	logger logging.Logger
	rng    *rand.Rand
	stop   context.CancelFunc

	count      int
	rampStart  time.Time
	frameCount int
	bestCount  int
	bestFPS    float64
	stopped    bool
}

// spawn adds count characters on a stable grid. Each character is one owner group: a body mesh
// and, for some, an attachment that follows the body's pose.
func (b *bench) spawn(count int) error {
	clips := len(b.model.Animations())
	for i := 0; i < count; i++ {
		idx := b.count + i
		col := idx % crowdMaxSide
		row := idx / crowdMaxSide
		x := (float32(col) - float32(crowdMaxSide-1)/2) * crowdSpacing
		z := float32(row) * crowdSpacing
		place := common.IdentityTransform()
		place.Translation = [3]float32{x, 0, z}

		owner := uuid.New()
		anim := animator.NewAnimator(animator.WithModel(b.model), animator.WithAutoPlay(b.rng.IntN(clips), true))
		anim.SetAnimationTime(b.rng.Float32())
		body, err := b.world.NewMesh(
			skeletal_mesh.WithModel(b.model),
			skeletal_mesh.WithAnimator(anim),
			skeletal_mesh.WithOwner(owner),
			skeletal_mesh.WithTransform(place),
		)
		if err != nil {
			return errors.Wrapf(err, "spawn character %d", idx)
		}
		// screen size falls off with distance from the origin camera
		dist := float32(math.Hypot(float64(x), float64(z)))
		body.SetDistanceFactor(1 / (1 + dist/(4*crowdSpacing)))
		if idx%crowdOffscreenEvery == 0 {
			body.SetVisible(false)
		}

		if idx%crowdAttachmentEvery != 0 {
			continue
		}
		attachment, err := b.world.NewMesh(
			skeletal_mesh.WithModel(b.model),
			skeletal_mesh.WithOwner(owner),
			skeletal_mesh.WithTransform(place),
			skeletal_mesh.WithCastShadow(false),
		)
		if err != nil {
			return errors.Wrapf(err, "spawn attachment %d", idx)
		}
		if err := attachment.SetLeader(body); err != nil {
			return err
		}
		attachment.SetVisible(body.Visible())
	}
	return nil
}

// onTick samples the frame rate and ramps the crowd each interval.
func (b *bench) onTick(_ float32) {
	b.frameCount++
	if b.stopped {
		return
	}
	elapsed := time.Since(b.rampStart)
	if elapsed < crowdRampInterval {
		return
	}

	fps := float64(b.frameCount) / elapsed.Seconds()
	stats := b.world.LastFrameStats()
	b.logger.Info("ramp step",
		"characters", b.count,
		"meshes", stats.Meshes,
		"fps", fps,
		"ms_per_frame", 1000/fps,
	)
	if fps > b.bestFPS {
		b.bestFPS = fps
		b.bestCount = b.count
	}
	if fps < crowdFPSThreshold {
		b.logger.Info("below fps threshold", "characters", b.count, "fps", fps, "threshold", crowdFPSThreshold)
		b.stopped = true
		b.stop()
		return
	}

	next := int(math.Ceil(float64(b.count) * crowdRampFactor))
	delta := min(next-b.count, crowdMaxStep)
	spawnStart := time.Now()
	if err := b.spawn(delta); err != nil {
		b.logger.Error("spawn failed", "error", err)
		b.stopped = true
		b.stop()
		return
	}
	b.count += delta
	b.logger.Info("ramping", "characters", b.count, "added", delta, "spawn_time", time.Since(spawnStart).Round(time.Millisecond))

	// reset after spawning so spawn cost doesn't eat into the measurement
	b.rampStart = time.Now()
	b.frameCount = 0
}
