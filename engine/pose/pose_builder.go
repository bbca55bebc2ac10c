package pose

import (
	"github.com/Carmen-Shannon/oxy-anim/engine/logging"
)

// CoordinatorBuilderOption is a functional option for configuring a Coordinator during construction.
type CoordinatorBuilderOption func(*coordinator)

// WithLogger sets the logger used for warnings about rejected graphs, missing sockets and
// failed evaluations.
//
// Parameters:
//   - logger: the logger
//
// Returns:
//   - CoordinatorBuilderOption: a function that applies the logger option to a coordinator
func WithLogger(logger logging.Logger) CoordinatorBuilderOption {
	return func(c *coordinator) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithTaskRunner sets the runner evaluation tasks are submitted to during PhaseUpdate ticks.
//
// Parameters:
//   - runner: the task runner
//
// Returns:
//   - CoordinatorBuilderOption: a function that applies the runner option to a coordinator
func WithTaskRunner(runner TaskRunner) CoordinatorBuilderOption {
	return func(c *coordinator) {
		c.runner = runner
	}
}

// WithCompletionQueue sets the queue completions are posted to once a task body finishes.
// Without a queue, completion happens on the next Tick or WaitForCompletion.
//
// Parameters:
//   - queue: the completion queue
//
// Returns:
//   - CoordinatorBuilderOption: a function that applies the queue option to a coordinator
func WithCompletionQueue(queue CompletionQueue) CoordinatorBuilderOption {
	return func(c *coordinator) {
		c.queue = queue
	}
}

// WithParallelEvaluation toggles evaluation on the task runner.
//
// Parameters:
//   - enabled: false forces inline evaluation
//
// Returns:
//   - CoordinatorBuilderOption: a function that applies the parallel option to a coordinator
func WithParallelEvaluation(enabled bool) CoordinatorBuilderOption {
	return func(c *coordinator) {
		c.parallel = enabled
	}
}

// WithBlockOnInFlight controls whether Tick waits for a still running task (true) or returns
// ErrTaskInFlight and leaves the previous pose visible (false).
//
// Parameters:
//   - block: whether Tick blocks
//
// Returns:
//   - CoordinatorBuilderOption: a function that applies the blocking option to a coordinator
func WithBlockOnInFlight(block bool) CoordinatorBuilderOption {
	return func(c *coordinator) {
		c.blockOnInFlight = block
	}
}

// WithPhysicsBlender attaches a physics overlay.
//
// Parameters:
//   - physics: the blender
//
// Returns:
//   - CoordinatorBuilderOption: a function that applies the physics option to a coordinator
func WithPhysicsBlender(physics PhysicsBlender) CoordinatorBuilderOption {
	return func(c *coordinator) {
		c.physics = physics
	}
}

// WithCurveSink sets the receiver of curve values.
//
// Parameters:
//   - sink: the receiver
//
// Returns:
//   - CoordinatorBuilderOption: a function that applies the curve sink option to a coordinator
func WithCurveSink(sink CurveSink) CoordinatorBuilderOption {
	return func(c *coordinator) {
		c.curveSink = sink
	}
}

// WithRootMotionSink sets the receiver of extracted root motion.
//
// Parameters:
//   - sink: the receiver
//
// Returns:
//   - CoordinatorBuilderOption: a function that applies the root motion sink option to a coordinator
func WithRootMotionSink(sink RootMotionSink) CoordinatorBuilderOption {
	return func(c *coordinator) {
		c.rootMotionSink = sink
	}
}
