// File: cmd/main_test.go
package cmd

import (
	"bytes"
	"context"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/xkilldash9x/autopilot-cli/api/schemas"
	"github.com/xkilldash9x/autopilot-cli/internal/config"
	"github.com/xkilldash9x/autopilot-cli/internal/llmclient"
	"github.com/xkilldash9x/autopilot-cli/internal/observability"
)

// resetForTest provides the single source of truth for resetting test state.
func resetForTest(t *testing.T) {
	t.Helper()

	// 1. Reset package-level variables.
	cfgFile = ""
	newLLMClient = llmclient.NewClient
	newTokenCounter = func(string, *zap.Logger) schemas.TokenCounter { return llmclient.HeuristicCounter{} }
	signalNotify = signal.Notify
	signalStop = signal.Stop

	// 2. Keep secrets and database URLs from the environment out of the tests.
	for _, key := range []string{"DATABASE_URL", "AUTOPILOT_AUDIT_DATABASE_URL", "GEMINI_API_KEY", "AUTOPILOT_LLM_API_KEY"} {
		t.Setenv(key, "")
	}

	// 3. Silence the logger. The root command's own initialization is then a no-op.
	observability.ResetForTest()
	observability.Initialize(config.LoggerConfig{Level: "fatal", Format: "console", ServiceName: "test"}, zapcore.AddSync(io.Discard))

	t.Cleanup(func() {
		cfgFile = ""
		newLLMClient = llmclient.NewClient
		newTokenCounter = llmclient.NewTokenCounter
		observability.ResetForTest()
	})
}

// executeCommand runs a fresh command tree with stdin and returns everything
// written to stdout and stderr.
func executeCommand(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	rootCmd := NewRootCommand()
	buf := new(bytes.Buffer)
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs(args)
	err := rootCmd.ExecuteContext(context.Background())
	return buf.String(), err
}

// testEnv is a temporary directory holding a config file and everything it points to.
type testEnv struct {
	dir        string
	configPath string
	workspace  string
	auditDir   string
	aiSettings string
	logFile    string
}

func newTestEnv(t *testing.T, extra string) testEnv {
	t.Helper()
	dir := t.TempDir()
	env := testEnv{
		dir:        dir,
		configPath: filepath.Join(dir, "config.yaml"),
		workspace:  filepath.Join(dir, "workspace"),
		auditDir:   filepath.Join(dir, "cycles"),
		aiSettings: filepath.Join(dir, "ai_settings.yaml"),
		logFile:    filepath.Join(dir, "autopilot.log"),
	}
	content := `
logger:
  level: fatal
  log_file: "` + env.logFile + `"
agent:
  ai_settings_file: "` + env.aiSettings + `"
  prompt_settings_file: "` + filepath.Join(dir, "prompt_settings.yaml") + `"
llm:
  requests_per_minute: 0
workspace:
  path: "` + env.workspace + `"
audit:
  enabled: true
  dir: "` + env.auditDir + `"
` + extra
	require.NoError(t, os.WriteFile(env.configPath, []byte(content), 0o644))
	return env
}

// scriptedLLM answers each request with the next scripted reply, repeating the last one.
type scriptedLLM struct {
	mu       sync.Mutex
	replies  []string
	requests []schemas.GenerationRequest
	closed   bool
}

func (s *scriptedLLM) Generate(ctx context.Context, req schemas.GenerationRequest) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, req)
	i := len(s.requests) - 1
	if i >= len(s.replies) {
		i = len(s.replies) - 1
	}
	return s.replies[i], nil
}

func (s *scriptedLLM) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func useScriptedLLM(replies ...string) *scriptedLLM {
	llm := &scriptedLLM{replies: replies}
	newLLMClient = func(context.Context, config.LLMConfig, *zap.Logger) (schemas.LLMClient, error) {
		return llm, nil
	}
	return llm
}
