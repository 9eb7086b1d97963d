// internal/observability/logger_test.go
package observability

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xkilldash9x/autopilot-cli/internal/config"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// syncBuffer is a goroutine-safe buffer usable as a zapcore.WriteSyncer.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (s *syncBuffer) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.Write(p)
}

func (s *syncBuffer) Sync() error { return nil }

func (s *syncBuffer) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.String()
}

func (s *syncBuffer) Bytes() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]byte(nil), s.buf.Bytes()...)
}

var _ zapcore.WriteSyncer = (*syncBuffer)(nil)

func TestInitialize(t *testing.T) {
	t.Cleanup(ResetForTest)

	t.Run("console logger with colors", func(t *testing.T) {
		ResetForTest()
		buf := &syncBuffer{}
		Initialize(config.LoggerConfig{
			Level:       "debug",
			Format:      "console",
			ServiceName: "TestService",
			Colors:      config.ColorConfig{Info: "green"},
		}, buf)

		GetLogger().Info("This is a test message.")
		Sync()

		output := buf.String()
		assert.Contains(t, output, "INFO")
		assert.Contains(t, output, "This is a test message.")
		assert.Contains(t, output, colorGreen)
		assert.Contains(t, output, colorReset)
		assert.Contains(t, output, "TestService.")
	})

	t.Run("json logger", func(t *testing.T) {
		ResetForTest()
		buf := &syncBuffer{}
		Initialize(config.LoggerConfig{Level: "info", Format: "json", ServiceName: "JSONTest"}, buf)

		GetLogger().Warn("This is a JSON message.", zap.String("key", "value"))
		Sync()

		var entry map[string]interface{}
		require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
		assert.Equal(t, "warn", entry["level"])
		assert.Equal(t, "JSONTest", entry["logger"])
		assert.Equal(t, "This is a JSON message.", entry["msg"])
		assert.Equal(t, "value", entry["key"])
	})

	t.Run("file sink", func(t *testing.T) {
		ResetForTest()
		logFile := filepath.Join(t.TempDir(), "nested", "autopilot.log")
		Initialize(config.LoggerConfig{Level: "debug", Format: "console", LogFile: logFile, MaxSize: 1}, &syncBuffer{})

		Named("controller").Error("This should go to the file.")
		Sync()

		content, err := os.ReadFile(logFile)
		require.NoError(t, err)
		assert.Contains(t, string(content), "This should go to the file.")
		assert.Contains(t, string(content), `"logger":"controller"`)
		// The console format does not leak into the file; `logs --level` reads lowercase JSON levels.
		assert.Contains(t, string(content), `"level":"error"`)
		assert.NotContains(t, string(content), colorReset)
	})

	t.Run("level filtering", func(t *testing.T) {
		ResetForTest()
		buf := &syncBuffer{}
		Initialize(config.LoggerConfig{Level: "warn", Format: "json"}, buf)

		GetLogger().Info("hidden")
		GetLogger().Warn("shown")
		Sync()

		assert.NotContains(t, buf.String(), "hidden")
		assert.Contains(t, buf.String(), "shown")
	})

	t.Run("initializes only once", func(t *testing.T) {
		ResetForTest()
		first := &syncBuffer{}
		second := &syncBuffer{}
		Initialize(config.LoggerConfig{Level: "info", Format: "json", ServiceName: "First"}, first)
		logger1 := GetLogger()
		Initialize(config.LoggerConfig{Level: "debug", Format: "json", ServiceName: "Second"}, second)
		logger2 := GetLogger()

		assert.Same(t, logger1, logger2)
		logger2.Info("test")
		Sync()
		assert.Contains(t, first.String(), "First")
		assert.Empty(t, second.String())
	})
}

func TestGetLogger_Fallback(t *testing.T) {
	ResetForTest()
	t.Cleanup(ResetForTest)

	logger := GetLogger()
	require.NotNil(t, logger)
}
