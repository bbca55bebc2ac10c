package logging

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, LogLevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, LogLevelWarn, ParseLevel(" warning "))
	assert.Equal(t, LogLevelError, ParseLevel("error"))
	assert.Equal(t, LogLevelInfo, ParseLevel("nonsense"))
	assert.Equal(t, "WARN", LogLevelWarn.String())
}

func TestNewRespectsLevelAndComponent(t *testing.T) {
	var buf bytes.Buffer
	logger := WithComponent(New(Config{Level: LogLevelWarn, Format: "json", Output: &buf}), "skin_cache")

	logger.Info("dropped")
	assert.Empty(t, buf.String())

	logger.Warn("cache exhausted", "entries", 3)
	out := buf.String()
	assert.Contains(t, out, `"component":"skin_cache"`)
	assert.Contains(t, out, `"entries":3`)
	assert.Contains(t, out, "cache exhausted")
}

func TestWithComponentOnNil(t *testing.T) {
	l := WithComponent(nil, "pose")
	assert.IsType(t, NoOpLogger{}, l)
	l.Error("ignored")
}
