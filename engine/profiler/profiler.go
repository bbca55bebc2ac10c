package profiler

import (
	"runtime"
	"time"

	"github.com/Carmen-Shannon/oxy-anim/engine/logging"
)

// FrameSample is what one world frame contributes to the profiler.
type FrameSample struct {
	// Meshes is the number of meshes ticked.
	Meshes int
	// Evaluated is the number of meshes that produced a new pose.
	Evaluated int
	// Skipped is the number of meshes whose evaluation was skipped by the update-rate policy.
	Skipped int
	// Interpolated is the number of meshes that blended toward a cached pose.
	Interpolated int
	// InFlight is the number of meshes that kept last frame's pose because evaluation was still running.
	InFlight int
	// CachedSections is the number of sections served by the skin cache.
	CachedSections int
	// FallbackSections is the number of sections that fell back to per-draw skinning.
	FallbackSections int
}

func (s *FrameSample) add(o FrameSample) {
	s.Meshes += o.Meshes
	s.Evaluated += o.Evaluated
	s.Skipped += o.Skipped
	s.Interpolated += o.Interpolated
	s.InFlight += o.InFlight
	s.CachedSections += o.CachedSections
	s.FallbackSections += o.FallbackSections
}

// Report summarizes one profiling interval.
type Report struct {
	FPS         float64
	Frames      int
	Totals      FrameSample
	HeapMB      float64
	AllocRateMB float64
	GCCount     uint32
	MaxPauseUs  uint64
}

// Profiler tracks frame rate, animation work and memory statistics.
// Outputs a report through the logger at a configurable interval.
type Profiler struct {
	logger         logging.Logger
	now            func() time.Time
	frameCount     int
	totals         FrameSample
	lastTime       time.Time
	updateInterval time.Duration
	memStats       runtime.MemStats
	lastGCCount    uint32
	lastTotalAlloc uint64
	last           Report
}

// NewProfiler creates a new Profiler.
//
// Parameters:
//   - logger: destination of the periodic report; nil disables output
//   - interval: reporting interval; values <= 0 default to 1 second
//
// Returns:
//   - *Profiler: the newly created profiler instance
func NewProfiler(logger logging.Logger, interval time.Duration) *Profiler {
	if interval <= 0 {
		interval = time.Second
	}
	return &Profiler{
		logger:         logging.WithComponent(logger, "profiler"),
		now:            time.Now,
		lastTime:       time.Now(),
		updateInterval: interval,
	}
}

// Record adds a frame's counters to the current interval.
//
// Parameters:
//   - sample: the frame's counters
func (p *Profiler) Record(sample FrameSample) {
	p.totals.add(sample)
}

// Tick should be called once per frame to track frame timing.
// Logs a report when the update interval has elapsed.
//
// Returns:
//   - bool: true if a report was produced this tick, false otherwise
func (p *Profiler) Tick() bool {
	p.frameCount++
	currentTime := p.now()
	elapsed := currentTime.Sub(p.lastTime)
	if elapsed < p.updateInterval {
		return false
	}

	runtime.ReadMemStats(&p.memStats)
	r := Report{
		FPS:     float64(p.frameCount) / elapsed.Seconds(),
		Frames:  p.frameCount,
		Totals:  p.totals,
		HeapMB:  float64(p.memStats.Alloc) / 1024 / 1024,
		GCCount: p.memStats.NumGC,
	}
	r.AllocRateMB = float64(p.memStats.TotalAlloc-p.lastTotalAlloc) / 1024 / 1024 / elapsed.Seconds()

	// PauseNs is a circular buffer of the last 256 pauses
	start := p.lastGCCount
	if r.GCCount-start > 256 {
		start = r.GCCount - 256
	}
	for i := start; i < r.GCCount; i++ {
		r.MaxPauseUs = max(r.MaxPauseUs, p.memStats.PauseNs[i%256]/1000)
	}

	p.logger.Info("frame stats",
		"fps", r.FPS,
		"meshes", r.Totals.Meshes,
		"evaluated", r.Totals.Evaluated,
		"skipped", r.Totals.Skipped,
		"interpolated", r.Totals.Interpolated,
		"in_flight", r.Totals.InFlight,
		"cached_sections", r.Totals.CachedSections,
		"fallback_sections", r.Totals.FallbackSections,
		"heap_mb", r.HeapMB,
		"alloc_rate_mb", r.AllocRateMB,
		"gc", r.GCCount,
		"max_pause_us", r.MaxPauseUs,
	)

	p.last = r
	p.frameCount = 0
	p.totals = FrameSample{}
	p.lastTime = currentTime
	p.lastGCCount = r.GCCount
	p.lastTotalAlloc = p.memStats.TotalAlloc
	return true
}

// LastReport returns the most recent report.
//
// Returns:
//   - Report: the last report, zero before the first interval elapses
func (p *Profiler) LastReport() Report {
	return p.last
}
