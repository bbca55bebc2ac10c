// Package config loads engine configuration from defaults, an optional config file and
// OXYANIM_ environment overrides.
package config

import (
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/Carmen-Shannon/oxy-anim/engine/logging"
	"github.com/Carmen-Shannon/oxy-anim/engine/skin_cache"
	"github.com/Carmen-Shannon/oxy-anim/engine/update_rate"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of every environment override, e.g. OXYANIM_SKIN_CACHE_MAX_ENTRIES.
const EnvPrefix = "OXYANIM"

// ConfigEnv names the environment variable holding an explicit config file path.
const ConfigEnv = EnvPrefix + "_CONFIG"

// ErrInvalidConfig is returned by Validate for impossible values.
var ErrInvalidConfig = errors.New("invalid configuration")

// Skin cache backends.
const (
	BackendCPU  = "cpu"
	BackendWGPU = "wgpu"
)

// Config holds engine configuration.
type Config struct {
	Animation  AnimationConfig  `mapstructure:"animation"`
	UpdateRate UpdateRateConfig `mapstructure:"update_rate"`
	SkinCache  SkinCacheConfig  `mapstructure:"skin_cache"`
	Log        LogConfig        `mapstructure:"log"`
}

// AnimationConfig holds pose evaluation and world loop settings.
type AnimationConfig struct {
	ParallelEvaluation  bool `mapstructure:"parallel_evaluation"`
	Workers             int  `mapstructure:"workers"`
	WorkerQueue         int  `mapstructure:"worker_queue"`
	WorkerIdleSeconds   int  `mapstructure:"worker_idle_seconds"`
	BlockOnInFlight     bool `mapstructure:"block_on_in_flight"`
	TickRate            int  `mapstructure:"tick_rate"`
	CompletionQueueSize int  `mapstructure:"completion_queue_size"`
}

// UpdateRateConfig mirrors update_rate.Settings. LOD skip keys are LOD indices as strings.
type UpdateRateConfig struct {
	Enabled                     bool           `mapstructure:"enabled"`
	BaseNonRenderedUpdateRate   int            `mapstructure:"base_non_rendered_update_rate"`
	MaxEvalRateForInterpolation int            `mapstructure:"max_eval_rate_for_interpolation"`
	DistanceFactorThresholds    []float32      `mapstructure:"distance_factor_thresholds"`
	LODToFrameSkip              map[string]int `mapstructure:"lod_to_frame_skip"`
	UseLODMap                   bool           `mapstructure:"use_lod_map"`
	ForceRate                   int            `mapstructure:"force_rate"`
	ForceInterpolation          bool           `mapstructure:"force_interpolation"`
	LookAheadFrameTime          float32        `mapstructure:"look_ahead_frame_time"`
}

// SkinCacheConfig mirrors skin_cache.Settings plus backend selection.
type SkinCacheConfig struct {
	Enabled               bool   `mapstructure:"enabled"`
	Backend               string `mapstructure:"backend"`
	ForceSoftwareAdapter  bool   `mapstructure:"force_software_adapter"`
	FrameSlots            int    `mapstructure:"frame_slots"`
	SlotBudgetFloats      uint32 `mapstructure:"slot_budget_floats"`
	MaxEntries            int    `mapstructure:"max_entries"`
	EvictionSafetyFrames  uint64 `mapstructure:"eviction_safety_frames"`
	MaxDispatchesPerFrame int    `mapstructure:"max_dispatches_per_frame"`
	RecomputeTangents     bool   `mapstructure:"recompute_tangents"`
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

func setDefaults(v *viper.Viper) {
	ur := update_rate.DefaultSettings()
	sc := skin_cache.DefaultSettings()

	v.SetDefault("animation.parallel_evaluation", true)
	v.SetDefault("animation.workers", 4)
	v.SetDefault("animation.worker_queue", 1024)
	v.SetDefault("animation.worker_idle_seconds", 5)
	v.SetDefault("animation.block_on_in_flight", true)
	v.SetDefault("animation.tick_rate", 60)
	v.SetDefault("animation.completion_queue_size", 4096)

	v.SetDefault("update_rate.enabled", ur.Enabled)
	v.SetDefault("update_rate.base_non_rendered_update_rate", ur.BaseNonRenderedUpdateRate)
	v.SetDefault("update_rate.max_eval_rate_for_interpolation", ur.MaxEvalRateForInterpolation)
	v.SetDefault("update_rate.distance_factor_thresholds", ur.VisibleDistanceFactorThresholds)
	v.SetDefault("update_rate.lod_to_frame_skip", map[string]int{})
	v.SetDefault("update_rate.use_lod_map", ur.UseLODMap)
	v.SetDefault("update_rate.force_rate", ur.ForceRate)
	v.SetDefault("update_rate.force_interpolation", ur.ForceInterpolation)
	v.SetDefault("update_rate.look_ahead_frame_time", ur.LookAheadFrameTime)

	v.SetDefault("skin_cache.enabled", true)
	v.SetDefault("skin_cache.backend", BackendCPU)
	v.SetDefault("skin_cache.force_software_adapter", false)
	v.SetDefault("skin_cache.frame_slots", sc.FrameSlots)
	v.SetDefault("skin_cache.slot_budget_floats", sc.SlotBudgetFloats)
	v.SetDefault("skin_cache.max_entries", sc.MaxEntries)
	v.SetDefault("skin_cache.eviction_safety_frames", sc.EvictionSafetyFrames)
	v.SetDefault("skin_cache.max_dispatches_per_frame", sc.MaxDispatchesPerFrame)
	v.SetDefault("skin_cache.recompute_tangents", sc.RecomputeTangents)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

// Default returns the configuration produced by defaults alone.
//
// Returns:
//   - Config: the default configuration
func Default() Config {
	v := viper.New()
	setDefaults(v)
	var c Config
	// defaults always decode
	_ = v.Unmarshal(&c)
	return c
}

// Load reads configuration from file and env. The file is $OXYANIM_CONFIG when set (and must
// exist), otherwise $HOME/.config/oxy-anim/config.toml if present. Env overrides use prefix
// OXYANIM_ with dots replaced by underscores.
//
// Returns:
//   - Config: the loaded, validated configuration
//   - error: an error if the file cannot be read or a value is invalid
func Load() (Config, error) {
	v := viper.New()
	setDefaults(v)

	explicit := os.Getenv(ConfigEnv)
	if explicit != "" {
		v.SetConfigFile(explicit)
	} else {
		v.SetConfigType("toml")
		v.AddConfigPath(filepath.Join(os.Getenv("HOME"), ".config", "oxy-anim"))
		v.SetConfigName("config")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if explicit != "" || !errors.As(err, &notFound) {
			return Config{}, errors.Wrap(err, "read config")
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, errors.Wrap(err, "unmarshal config")
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate checks for values no component can run with.
//
// Returns:
//   - error: ErrInvalidConfig wrapped with the offending key, or nil
func (c Config) Validate() error {
	switch {
	case c.Animation.Workers <= 0:
		return errors.Wrapf(ErrInvalidConfig, "animation.workers must be positive, got %d", c.Animation.Workers)
	case c.Animation.WorkerQueue <= 0:
		return errors.Wrapf(ErrInvalidConfig, "animation.worker_queue must be positive, got %d", c.Animation.WorkerQueue)
	case c.Animation.TickRate <= 0:
		return errors.Wrapf(ErrInvalidConfig, "animation.tick_rate must be positive, got %d", c.Animation.TickRate)
	case c.Animation.CompletionQueueSize <= 0:
		return errors.Wrapf(ErrInvalidConfig, "animation.completion_queue_size must be positive, got %d", c.Animation.CompletionQueueSize)
	case c.UpdateRate.BaseNonRenderedUpdateRate <= 0:
		return errors.Wrapf(ErrInvalidConfig, "update_rate.base_non_rendered_update_rate must be positive, got %d", c.UpdateRate.BaseNonRenderedUpdateRate)
	case c.UpdateRate.ForceRate < 0:
		return errors.Wrapf(ErrInvalidConfig, "update_rate.force_rate must not be negative, got %d", c.UpdateRate.ForceRate)
	case c.UpdateRate.LookAheadFrameTime < 0:
		return errors.Wrapf(ErrInvalidConfig, "update_rate.look_ahead_frame_time must not be negative, got %g", c.UpdateRate.LookAheadFrameTime)
	case c.SkinCache.Backend != BackendCPU && c.SkinCache.Backend != BackendWGPU:
		return errors.Wrapf(ErrInvalidConfig, "skin_cache.backend must be %q or %q, got %q", BackendCPU, BackendWGPU, c.SkinCache.Backend)
	}
	if _, err := c.UpdateRate.Settings(); err != nil {
		return err
	}
	if err := c.SkinCache.Settings().Validate(); err != nil {
		return errors.Wrapf(ErrInvalidConfig, "skin_cache: %v", err)
	}
	return nil
}

// Settings converts the section into update-rate settings.
//
// Returns:
//   - update_rate.Settings: the policy
//   - error: ErrInvalidConfig if a LOD skip key is not an integer
func (c UpdateRateConfig) Settings() (update_rate.Settings, error) {
	s := update_rate.Settings{
		Enabled:                         c.Enabled,
		BaseNonRenderedUpdateRate:       c.BaseNonRenderedUpdateRate,
		MaxEvalRateForInterpolation:     c.MaxEvalRateForInterpolation,
		VisibleDistanceFactorThresholds: c.DistanceFactorThresholds,
		UseLODMap:                       c.UseLODMap,
		ForceRate:                       c.ForceRate,
		ForceInterpolation:              c.ForceInterpolation,
		LookAheadFrameTime:              c.LookAheadFrameTime,
	}
	if len(c.LODToFrameSkip) > 0 {
		s.LODToFrameSkip = make(map[int]int, len(c.LODToFrameSkip))
		for k, skip := range c.LODToFrameSkip {
			lod, err := strconv.Atoi(k)
			if err != nil {
				return update_rate.Settings{}, errors.Wrapf(ErrInvalidConfig, "update_rate.lod_to_frame_skip key %q is not a LOD index", k)
			}
			s.LODToFrameSkip[lod] = skip
		}
	}
	return s, nil
}

// Settings converts the section into skin cache settings.
//
// Returns:
//   - skin_cache.Settings: the cache settings
func (c SkinCacheConfig) Settings() skin_cache.Settings {
	return skin_cache.Settings{
		FrameSlots:            c.FrameSlots,
		SlotBudgetFloats:      c.SlotBudgetFloats,
		MaxEntries:            c.MaxEntries,
		EvictionSafetyFrames:  c.EvictionSafetyFrames,
		MaxDispatchesPerFrame: c.MaxDispatchesPerFrame,
		RecomputeTangents:     c.RecomputeTangents,
	}
}

// Logger builds the configured logger.
//
// Parameters:
//   - out: destination; nil writes to stderr
//
// Returns:
//   - logging.Logger: the logger
func (c LogConfig) Logger(out io.Writer) logging.Logger {
	return logging.New(logging.Config{Level: logging.ParseLevel(c.Level), Format: c.Format, Output: out})
}
