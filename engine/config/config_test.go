package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/Carmen-Shannon/oxy-anim/engine/skin_cache"
	"github.com/Carmen-Shannon/oxy-anim/engine/update_rate"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func isolate(t *testing.T) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	t.Setenv(ConfigEnv, "")
}

func TestDefaultsMatchComponentDefaults(t *testing.T) {
	isolate(t)
	c, err := Load()
	require.NoError(t, err)

	assert.Equal(t, Default(), c)
	assert.Equal(t, BackendCPU, c.SkinCache.Backend)
	assert.Equal(t, skin_cache.DefaultSettings(), c.SkinCache.Settings())

	ur, err := c.UpdateRate.Settings()
	require.NoError(t, err)
	def := update_rate.DefaultSettings()
	assert.Equal(t, def.BaseNonRenderedUpdateRate, ur.BaseNonRenderedUpdateRate)
	assert.Equal(t, def.VisibleDistanceFactorThresholds, ur.VisibleDistanceFactorThresholds)
	assert.InDelta(t, def.LookAheadFrameTime, ur.LookAheadFrameTime, 1e-6)
	assert.Nil(t, ur.LODToFrameSkip)
}

func TestEnvOverrides(t *testing.T) {
	isolate(t)
	t.Setenv("OXYANIM_SKIN_CACHE_MAX_ENTRIES", "64")
	t.Setenv("OXYANIM_ANIMATION_TICK_RATE", "30")
	t.Setenv("OXYANIM_SKIN_CACHE_BACKEND", "wgpu")

	c, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 64, c.SkinCache.MaxEntries)
	assert.Equal(t, 30, c.Animation.TickRate)
	assert.Equal(t, BackendWGPU, c.SkinCache.Backend)
}

func TestExplicitConfigFile(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), "anim.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[update_rate]
force_rate = 2
use_lod_map = true
distance_factor_thresholds = [0.5, 0.25, 0.1]

[update_rate.lod_to_frame_skip]
"1" = 1
"2" = 3

[log]
level = "debug"
`), 0o644))
	t.Setenv(ConfigEnv, path)

	c, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "debug", c.Log.Level)

	ur, err := c.UpdateRate.Settings()
	require.NoError(t, err)
	assert.Equal(t, 2, ur.ForceRate)
	assert.True(t, ur.UseLODMap)
	assert.Equal(t, map[int]int{1: 1, 2: 3}, ur.LODToFrameSkip)
	assert.Equal(t, []float32{0.5, 0.25, 0.1}, ur.VisibleDistanceFactorThresholds)
}

func TestMissingExplicitFileFails(t *testing.T) {
	isolate(t)
	t.Setenv(ConfigEnv, filepath.Join(t.TempDir(), "missing.toml"))
	_, err := Load()
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"no workers", func(c *Config) { c.Animation.Workers = 0 }},
		{"no tick rate", func(c *Config) { c.Animation.TickRate = -1 }},
		{"zero non-rendered rate", func(c *Config) { c.UpdateRate.BaseNonRenderedUpdateRate = 0 }},
		{"negative force rate", func(c *Config) { c.UpdateRate.ForceRate = -2 }},
		{"unknown backend", func(c *Config) { c.SkinCache.Backend = "metal" }},
		{"one frame slot", func(c *Config) { c.SkinCache.FrameSlots = 1 }},
		{"bad lod key", func(c *Config) { c.UpdateRate.LODToFrameSkip = map[string]int{"near": 1} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Default()
			require.NoError(t, c.Validate())
			tt.mutate(&c)
			assert.True(t, errors.Is(c.Validate(), ErrInvalidConfig))
		})
	}
}

func TestLogConfigBuildsLogger(t *testing.T) {
	var buf bytes.Buffer
	l := LogConfig{Level: "warn", Format: "json"}.Logger(&buf)
	l.Info("hidden")
	l.Warn("shown", "k", 1)
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"msg":"shown"`)
}
