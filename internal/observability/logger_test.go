// File: internal/observability/logger_test.go
package observability

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xkilldash9x/selfheal/internal/config"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// initToBuffer initializes the global logger against an in-memory writer.
func initToBuffer(t *testing.T, cfg config.LoggerConfig) *bytes.Buffer {
	t.Helper()
	ResetForTest()
	t.Cleanup(ResetForTest)
	var buf bytes.Buffer
	Initialize(cfg, zapcore.AddSync(&buf))
	return &buf
}

func TestInitialize(t *testing.T) {
	t.Run("console output is colorized and names the component", func(t *testing.T) {
		buf := initToBuffer(t, config.LoggerConfig{
			Level:       "debug",
			Format:      "console",
			ServiceName: "selfheal",
			Colors:      config.ColorConfig{Info: "green"},
		})

		GetLogger().Named("healer").Info("attempt started")

		out := buf.String()
		assert.Contains(t, out, levelColors["green"]+"INFO"+colorReset)
		assert.Contains(t, out, "selfheal.healer.")
		assert.Contains(t, out, "attempt started")
	})

	t.Run("unknown color names fall back to plain labels", func(t *testing.T) {
		buf := initToBuffer(t, config.LoggerConfig{
			Level:  "info",
			Format: "console",
			Colors: config.ColorConfig{Warn: "chartreuse"},
		})

		GetLogger().Warn("plain")
		assert.Contains(t, buf.String(), "\tWARN\t")
	})

	t.Run("json output is structured", func(t *testing.T) {
		buf := initToBuffer(t, config.LoggerConfig{
			Level:       "info",
			Format:      "json",
			ServiceName: "JSONTest",
		})

		GetLogger().Warn("probe failed", zap.String("selector", "button#go"))

		var entry map[string]interface{}
		require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
		assert.Equal(t, "warn", entry["level"])
		assert.Equal(t, "JSONTest", entry["logger"])
		assert.Equal(t, "probe failed", entry["msg"])
		assert.Equal(t, "button#go", entry["selector"])
	})

	t.Run("level filtering applies", func(t *testing.T) {
		buf := initToBuffer(t, config.LoggerConfig{Level: "warn", Format: "json"})

		GetLogger().Info("hidden")
		assert.Empty(t, buf.String())
	})

	t.Run("writes to a log file when configured", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "nested", "selfheal.log")
		initToBuffer(t, config.LoggerConfig{
			Level:   "debug",
			Format:  "json",
			LogFile: path,
			MaxSize: 1,
		})

		GetLogger().Error("This should go to the file.")
		Sync()

		content, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Contains(t, string(content), "This should go to the file.")
	})

	t.Run("only the first call takes effect", func(t *testing.T) {
		buf := initToBuffer(t, config.LoggerConfig{Level: "info", Format: "json", ServiceName: "First"})
		first := GetLogger()

		Initialize(config.LoggerConfig{Level: "debug", ServiceName: "Second"}, zapcore.AddSync(&bytes.Buffer{}))
		second := GetLogger()

		assert.Same(t, first, second)
		second.Info("test")
		assert.Contains(t, buf.String(), "First")
		assert.NotContains(t, buf.String(), "Second")
	})
}

func TestGetLogger(t *testing.T) {
	t.Run("falls back before initialization", func(t *testing.T) {
		ResetForTest()
		require.NotNil(t, GetLogger())
		assert.Nil(t, globalLogger.Load(), "fallback must not be stored globally")
	})

	t.Run("returns the stored logger after initialization", func(t *testing.T) {
		initToBuffer(t, config.LoggerConfig{Level: "info"})
		assert.Same(t, globalLogger.Load(), GetLogger())
	})
}
