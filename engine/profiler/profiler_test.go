package profiler

import (
	"bytes"
	"testing"
	"time"

	"github.com/Carmen-Shannon/oxy-anim/engine/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReportsOncePerInterval(t *testing.T) {
	var buf bytes.Buffer
	p := NewProfiler(logging.New(logging.Config{Level: logging.LogLevelInfo, Output: &buf}), time.Second)
	clock := time.Unix(100, 0)
	p.lastTime = clock
	p.now = func() time.Time { return clock }

	for i := 0; i < 9; i++ {
		clock = clock.Add(100 * time.Millisecond)
		p.Record(FrameSample{Meshes: 2, Evaluated: 1, Skipped: 1, CachedSections: 2})
		assert.False(t, p.Tick())
	}
	assert.Zero(t, buf.Len())

	clock = clock.Add(100 * time.Millisecond)
	p.Record(FrameSample{Meshes: 2, Evaluated: 2, FallbackSections: 1})
	require.True(t, p.Tick())

	r := p.LastReport()
	assert.Equal(t, 10, r.Frames)
	assert.InDelta(t, 10, r.FPS, 1e-9)
	assert.Equal(t, 20, r.Totals.Meshes)
	assert.Equal(t, 11, r.Totals.Evaluated)
	assert.Equal(t, 9, r.Totals.Skipped)
	assert.Equal(t, 18, r.Totals.CachedSections)
	assert.Equal(t, 1, r.Totals.FallbackSections)
	assert.Contains(t, buf.String(), "component=profiler")
	assert.Contains(t, buf.String(), "evaluated=11")

	// counters restart with the next interval
	clock = clock.Add(time.Second)
	require.True(t, p.Tick())
	assert.Equal(t, 0, p.LastReport().Totals.Meshes)
}

func TestNilLoggerIsSilent(t *testing.T) {
	p := NewProfiler(nil, 0)
	assert.Equal(t, time.Second, p.updateInterval)
	p.now = func() time.Time { return p.lastTime.Add(2 * time.Second) }
	assert.True(t, p.Tick())
}
