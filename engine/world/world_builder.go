package world

import (
	"time"

	"github.com/Carmen-Shannon/oxy-anim/engine/config"
	"github.com/Carmen-Shannon/oxy-anim/engine/logging"
	"github.com/Carmen-Shannon/oxy-anim/engine/pose"
	"github.com/Carmen-Shannon/oxy-anim/engine/skeletal_mesh"
	"github.com/Carmen-Shannon/oxy-anim/engine/skin_cache"
	"github.com/Carmen-Shannon/oxy-anim/engine/update_rate"
)

// WorldBuilderOption is a functional option for configuring a World during construction.
type WorldBuilderOption func(*world)

// WithLogger sets the logger used by the world and the meshes it creates.
//
// Parameters:
//   - logger: the logger
//
// Returns:
//   - WorldBuilderOption: a function that applies the logger option to a world
func WithLogger(logger logging.Logger) WorldBuilderOption {
	return func(w *world) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// WithUpdateRateSettings sets the policy of the world's update-rate registry.
//
// Parameters:
//   - settings: the update-rate policy
//
// Returns:
//   - WorldBuilderOption: a function that applies the settings option to a world
func WithUpdateRateSettings(settings update_rate.Settings) WorldBuilderOption {
	return func(w *world) {
		w.updateSettings = &settings
	}
}

// WithRegistry supplies an existing update-rate registry, for sharing groups between worlds.
//
// Parameters:
//   - registry: the registry
//
// Returns:
//   - WorldBuilderOption: a function that applies the registry option to a world
func WithRegistry(registry update_rate.Registry) WorldBuilderOption {
	return func(w *world) {
		w.registry = registry
	}
}

// WithSkinCache sets the skin cache render data is built through. The world closes it on Close.
//
// Parameters:
//   - cache: the skin cache, or nil to skin per draw
//
// Returns:
//   - WorldBuilderOption: a function that applies the cache option to a world
func WithSkinCache(cache skin_cache.SkinCache) WorldBuilderOption {
	return func(w *world) {
		w.cache = cache
	}
}

// WithWorkers sets the shape of the world's evaluation worker pool.
// Workers exit after idle, so idle should comfortably exceed the frame time.
//
// Parameters:
//   - workers: maximum concurrent evaluations (defaults to 4 if <= 0)
//   - queue: task queue capacity (defaults to 1024 if <= 0)
//   - idle: worker idle timeout (defaults to 5 seconds if <= 0)
//
// Returns:
//   - WorldBuilderOption: a function that applies the worker option to a world
func WithWorkers(workers, queue int, idle time.Duration) WorldBuilderOption {
	return func(w *world) {
		if workers > 0 {
			w.workers = workers
		}
		if queue > 0 {
			w.workerQueue = queue
		}
		if idle > 0 {
			w.workerIdle = idle
		}
	}
}

// WithTaskRunner supplies the runner for parallel evaluation instead of an owned worker pool.
//
// Parameters:
//   - runner: the task runner
//
// Returns:
//   - WorldBuilderOption: a function that applies the runner option to a world
func WithTaskRunner(runner pose.TaskRunner) WorldBuilderOption {
	return func(w *world) {
		w.runner = runner
	}
}

// WithParallelEvaluation sets whether pose evaluation runs on workers. Defaults to true.
//
// Parameters:
//   - parallel: whether to evaluate off the main thread
//
// Returns:
//   - WorldBuilderOption: a function that applies the parallel option to a world
func WithParallelEvaluation(parallel bool) WorldBuilderOption {
	return func(w *world) {
		w.parallel = parallel
	}
}

// WithBlockOnInFlight sets whether a tick that finds the previous evaluation still running
// waits for it or keeps last frame's pose. Defaults to true.
//
// Parameters:
//   - block: whether to wait on in-flight evaluations
//
// Returns:
//   - WorldBuilderOption: a function that applies the option to a world
func WithBlockOnInFlight(block bool) WorldBuilderOption {
	return func(w *world) {
		w.blockOnInFlight = block
	}
}

// WithCompletionQueueSize sets the capacity of the main-thread completion queue.
//
// Parameters:
//   - size: queue capacity (defaults to 4096 if <= 0)
//
// Returns:
//   - WorldBuilderOption: a function that applies the size option to a world
func WithCompletionQueueSize(size int) WorldBuilderOption {
	return func(w *world) {
		if size > 0 {
			w.queueSize = size
		}
	}
}

// WithTickRate sets the Run loop tick rate in frames per second.
//
// Parameters:
//   - fps: target ticks per second (defaults to 60 if <= 0)
//
// Returns:
//   - WorldBuilderOption: a function that applies the tick rate option to a world
func WithTickRate(fps float64) WorldBuilderOption {
	return func(w *world) {
		if fps <= 0 {
			fps = 60
		}
		w.tickRate = time.Duration(float64(time.Second) / fps)
	}
}

// WithProfiling enables periodic frame statistics through the logger.
//
// Parameters:
//   - interval: reporting interval (defaults to 1 second if <= 0)
//
// Returns:
//   - WorldBuilderOption: a function that applies the profiling option to a world
func WithProfiling(interval time.Duration) WorldBuilderOption {
	return func(w *world) {
		w.profilingEnabled = true
		if interval > 0 {
			w.profileInterval = interval
		}
	}
}

// WithRenderCallback registers a function called at the end of each Tick.
//
// Parameters:
//   - callback: function receiving the frame number and render data
//
// Returns:
//   - WorldBuilderOption: a function that applies the callback option to a world
func WithRenderCallback(callback func(frame uint64, data []*skeletal_mesh.RenderData)) WorldBuilderOption {
	return func(w *world) {
		w.renderCallback = callback
	}
}

// ConfigOptions translates the animation and update-rate sections of a configuration into
// world options. The skin cache backend is not created here.
//
// Parameters:
//   - cfg: the configuration
//
// Returns:
//   - []WorldBuilderOption: the options
//   - error: an error if the update-rate section is invalid
func ConfigOptions(cfg config.Config) ([]WorldBuilderOption, error) {
	settings, err := cfg.UpdateRate.Settings()
	if err != nil {
		return nil, err
	}
	a := cfg.Animation
	return []WorldBuilderOption{
		WithUpdateRateSettings(settings),
		WithParallelEvaluation(a.ParallelEvaluation),
		WithBlockOnInFlight(a.BlockOnInFlight),
		WithWorkers(a.Workers, a.WorkerQueue, time.Duration(a.WorkerIdleSeconds)*time.Second),
		WithCompletionQueueSize(a.CompletionQueueSize),
		WithTickRate(float64(a.TickRate)),
	}, nil
}
