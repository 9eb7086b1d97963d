package agent

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/autopilot-cli/api/schemas"
	"github.com/xkilldash9x/autopilot-cli/internal/commands"
	"github.com/xkilldash9x/autopilot-cli/internal/config"
	"github.com/xkilldash9x/autopilot-cli/internal/history"
	"github.com/xkilldash9x/autopilot-cli/internal/observability"
	"github.com/xkilldash9x/autopilot-cli/internal/plugins"
	"github.com/xkilldash9x/autopilot-cli/internal/workspace"
)

type harnessOptions struct {
	loop          config.LoopConfig
	budget        Budget
	timeout       time.Duration
	plugins       []plugins.Plugin
	operator      []string
	contextWindow int
}

// harness wires a controller to fakes and a small set of test commands.
type harness struct {
	t          *testing.T
	llm        *MockLLMClient
	op         *fakeOperator
	sink       *recordingSink
	token      *InterruptToken
	sandbox    *workspace.Sandbox
	registry   *commands.Registry
	gate       *Gate
	dispatcher *Dispatcher
	ctrl       *Controller

	mu       sync.Mutex
	executed []string
	touched  []string
}

func newHarness(t *testing.T, o harnessOptions) *harness {
	t.Helper()
	logger := observability.Named("test")

	sandbox, err := workspace.New(t.TempDir())
	require.NoError(t, err)

	h := &harness{
		t:       t,
		llm:     new(MockLLMClient),
		op:      &fakeOperator{replies: o.operator},
		sink:    &recordingSink{},
		token:   NewInterruptToken(),
		sandbox: sandbox,
	}

	h.registry = commands.NewRegistry(logger)
	require.NoError(t, h.registry.Register(h.testCommands()...))

	bus := plugins.NewBus(logger)
	require.NoError(t, bus.Register(o.plugins...))

	h.dispatcher, err = NewDispatcher(DispatcherConfig{
		Registry: h.registry,
		Bus:      bus,
		Sandbox:  sandbox,
		Counter:  wordCounter{},
		Budget:   o.budget,
		Timeout:  o.timeout,
	}, logger)
	require.NoError(t, err)

	h.gate = NewGate(GateConfig{
		Keys:       KeysFromConfig(o.loop),
		Continuous: o.loop.ContinuousMode,
		AIName:     "Scribe",
	}, h.op, h.token, logger)

	h.ctrl, err = NewController(Options{
		AI: config.AISettings{
			AIName:  "Scribe",
			AIRole:  "an assistant that keeps tidy notes",
			AIGoals: []string{"write a note"},
		},
		Loop:         o.loop,
		LLM:          config.LLMConfig{MaxTokens: 50, ContextWindow: o.contextWindow},
		SystemPrompt: "You are Scribe.",
		RunID:        "run-1",
	}, Dependencies{
		LLM:        h.llm,
		Counter:    wordCounter{},
		Dispatcher: h.dispatcher,
		Gate:       h.gate,
		Bus:        bus,
		Sandbox:    sandbox,
		History:    history.New(0),
		Audit:      h.sink,
		Operator:   h.op,
	}, logger)
	require.NoError(t, err)
	return h
}

func (h *harness) note(name string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.executed = append(h.executed, name)
}

func (h *harness) executedCommands() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.executed...)
}

func (h *harness) testCommands() []commands.Descriptor {
	text := []commands.Param{{Name: "text", Type: commands.ParamString, Required: true}}
	return []commands.Descriptor{
		{
			Name: "echo", Description: "Echo text", Params: text,
			Handler: func(_ context.Context, _ commands.Env, args commands.Args) (string, error) {
				h.note("echo")
				return args.String("text"), nil
			},
		},
		{
			Name: "touch", Description: "Create an empty file",
			Params: []commands.Param{{Name: "filename", Type: commands.ParamString, Required: true}},
			Handler: func(_ context.Context, _ commands.Env, args commands.Args) (string, error) {
				h.note("touch")
				path := args.String("filename")
				h.mu.Lock()
				h.touched = append(h.touched, path)
				h.mu.Unlock()
				if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
					return "", err
				}
				if err := os.WriteFile(path, nil, 0o644); err != nil {
					return "", err
				}
				return "created", nil
			},
		},
		{
			Name: "big", Description: "Produce a lot of output",
			Handler: func(context.Context, commands.Env, commands.Args) (string, error) {
				h.note("big")
				return strings.Repeat("word ", 500), nil
			},
		},
		{
			Name: "fail", Description: "Always fails",
			Handler: func(context.Context, commands.Env, commands.Args) (string, error) {
				h.note("fail")
				return "", errors.New("boom")
			},
		},
		{
			Name: "explode", Description: "Panics",
			Handler: func(context.Context, commands.Env, commands.Args) (string, error) {
				h.note("explode")
				panic("kaboom")
			},
		},
		{
			Name: "slow", Description: "Waits for cancellation",
			Handler: func(ctx context.Context, _ commands.Env, _ commands.Args) (string, error) {
				h.note("slow")
				<-ctx.Done()
				return "", ctx.Err()
			},
		},
		{
			Name: "interrupt", Description: "Raises an interrupt as if the operator pressed Ctrl+C",
			Handler: func(context.Context, commands.Env, commands.Args) (string, error) {
				h.note("interrupt")
				h.token.Signal()
				return "signalled", nil
			},
		},
	}
}

// expectFast queues one reply for the next cycle's model call.
func (h *harness) expectFast(reply string) {
	h.llm.On("Generate", mockAnyContext, onTier(schemas.TierFast)).Return(reply, nil).Once()
}

func (h *harness) expectFastError(err error) {
	h.llm.On("Generate", mockAnyContext, onTier(schemas.TierFast)).Return("", err).Once()
}

func (h *harness) run() (RunSummary, error) {
	h.t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return h.ctrl.Run(ctx)
}

func (h *harness) systemResults() []string {
	var out []string
	for _, m := range h.ctrl.History().Messages() {
		if m.Role == schemas.RoleSystem && m.Kind == schemas.KindActionResult {
			out = append(out, m.Content)
		}
	}
	return out
}

// reply renders a well-formed model reply proposing name with args.
func modelReply(name string, args map[string]any) string {
	if args == nil {
		args = map[string]any{}
	}
	b, err := json.Marshal(map[string]any{
		"thoughts": map[string]any{
			"text":      "I should " + name,
			"reasoning": "it moves the goal forward",
			"plan":      "- " + name + "\n- review",
			"criticism": "none yet",
			"speak":     "running " + name,
		},
		"command": map[string]any{"name": name, "args": args},
	})
	if err != nil {
		panic(err)
	}
	return string(b)
}
