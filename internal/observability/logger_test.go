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
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/shoptalk-labs/shoptalk/internal/config"
)

func TestInitialize(t *testing.T) {
	t.Run("console format", func(t *testing.T) {
		ResetForTest()
		var buf bytes.Buffer

		Initialize(config.LoggerConfig{
			Level:       "debug",
			Format:      "console",
			ServiceName: "shoptalk-test",
		}, zapcore.AddSync(&buf))

		GetLogger().Info("console probe")
		Sync()

		output := buf.String()
		assert.Contains(t, output, "INFO")
		assert.Contains(t, output, "console probe")
		assert.Contains(t, output, "shoptalk-test")
	})

	t.Run("json format", func(t *testing.T) {
		ResetForTest()
		var buf bytes.Buffer

		Initialize(config.LoggerConfig{
			Level:       "info",
			Format:      "json",
			ServiceName: "json-test",
		}, zapcore.AddSync(&buf))

		GetLogger().Warn("json probe", zap.String("key", "value"))
		Sync()

		var entry map[string]any
		require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
		assert.Equal(t, "warn", entry["level"])
		assert.Equal(t, "json-test", entry["logger"])
		assert.Equal(t, "json probe", entry["msg"])
		assert.Equal(t, "value", entry["key"])
	})

	t.Run("level filtering", func(t *testing.T) {
		ResetForTest()
		var buf bytes.Buffer

		Initialize(config.LoggerConfig{Level: "warn", Format: "json"}, zapcore.AddSync(&buf))
		GetLogger().Info("should be dropped")
		GetLogger().Warn("should appear")
		Sync()

		assert.NotContains(t, buf.String(), "should be dropped")
		assert.Contains(t, buf.String(), "should appear")
	})

	t.Run("writes to log file when configured", func(t *testing.T) {
		ResetForTest()
		logFile := filepath.Join(t.TempDir(), "test.log")

		Initialize(config.LoggerConfig{
			Level:   "debug",
			Format:  "json",
			LogFile: logFile,
			MaxSize: 1,
		}, zapcore.AddSync(&bytes.Buffer{}))

		GetLogger().Error("file probe")
		Sync()

		content, err := os.ReadFile(logFile)
		require.NoError(t, err)
		assert.Contains(t, string(content), "file probe")
	})

	t.Run("initializes only once", func(t *testing.T) {
		ResetForTest()
		var buf bytes.Buffer

		Initialize(config.LoggerConfig{Level: "info", ServiceName: "first"}, zapcore.AddSync(&buf))
		first := GetLogger()

		Initialize(config.LoggerConfig{Level: "debug", ServiceName: "second"}, zapcore.AddSync(&bytes.Buffer{}))
		assert.Same(t, first, GetLogger())

		GetLogger().Info("probe")
		Sync()
		assert.Contains(t, buf.String(), "first")
		assert.NotContains(t, buf.String(), "second")
	})
}

func TestGetLoggerFallback(t *testing.T) {
	ResetForTest()
	logger := GetLogger()
	require.NotNil(t, logger)

	ResetForTest()
	Initialize(config.LoggerConfig{Level: "info"}, zapcore.AddSync(&bytes.Buffer{}))
	assert.Same(t, globalLogger.Load(), GetLogger())
}
