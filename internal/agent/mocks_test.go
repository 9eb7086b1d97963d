package agent

import (
	"context"
	"io"
	"strings"
	"sync"

	"github.com/stretchr/testify/mock"

	"github.com/xkilldash9x/autopilot-cli/api/schemas"
	"github.com/xkilldash9x/autopilot-cli/internal/plugins"
)

// -- LLM Client Mock --

// MockLLMClient mocks the schemas.LLMClient interface used by the controller.
type MockLLMClient struct {
	mock.Mock
}

// Generate mocks the LLM generation call.
func (m *MockLLMClient) Generate(ctx context.Context, req schemas.GenerationRequest) (string, error) {
	args := m.Called(ctx, req)
	return args.String(0), args.Error(1)
}

// Close mocks the client shutdown.
func (m *MockLLMClient) Close() error {
	args := m.Called()
	return args.Error(0)
}

func onTier(tier schemas.ModelTier) interface{} {
	return mock.MatchedBy(func(req schemas.GenerationRequest) bool { return req.Tier == tier })
}

// -- Operator Fake --

// fakeOperator answers prompts from a script. Once the script is exhausted it
// reports EOF, unless onPrompt is set, in which case it calls onPrompt and
// waits for its context like a real terminal would.
type fakeOperator struct {
	mu       sync.Mutex
	replies  []string
	said     []string
	prompts  int
	onPrompt func()
}

func (f *fakeOperator) ReadLine(ctx context.Context, prompt string) (string, error) {
	f.mu.Lock()
	f.prompts++
	if len(f.replies) > 0 {
		r := f.replies[0]
		f.replies = f.replies[1:]
		f.mu.Unlock()
		return r, nil
	}
	hook := f.onPrompt
	f.mu.Unlock()

	if hook == nil {
		return "", io.EOF
	}
	hook()
	<-ctx.Done()
	return "", ctx.Err()
}

func (f *fakeOperator) Say(text string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.said = append(f.said, text)
}

func (f *fakeOperator) promptCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.prompts
}

func (f *fakeOperator) saidContaining(sub string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, s := range f.said {
		if strings.Contains(s, sub) {
			out = append(out, s)
		}
	}
	return out
}

// -- Audit Sink Fake --

type recordingSink struct {
	mu      sync.Mutex
	records []schemas.AuditRecord
	// panicOn makes Append panic for the given channel, once.
	panicOn schemas.AuditChannel
}

func (s *recordingSink) Append(_ context.Context, rec schemas.AuditRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.panicOn != "" && rec.Channel == s.panicOn {
		s.panicOn = ""
		panic("audit sink exploded")
	}
	s.records = append(s.records, rec)
	return nil
}

func (s *recordingSink) Close() error { return nil }

func (s *recordingSink) channel(ch schemas.AuditChannel) []schemas.AuditRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []schemas.AuditRecord
	for _, r := range s.records {
		if r.Channel == ch {
			out = append(out, r)
		}
	}
	return out
}

// -- Token Counter Fake --

// wordCounter counts whitespace-separated words, which keeps budget
// arithmetic in tests easy to follow.
type wordCounter struct{}

func (wordCounter) Count(text string) int { return len(strings.Fields(text)) }

// -- Plugin Fake --

// tracePlugin appends "<name>.<hook>" to a shared trace for every hook it
// handles, and tags post_command results with "[name]".
type tracePlugin struct {
	plugins.Base
	name    string
	trace   *[]string
	failOn  string
	rewrite func(name string, args map[string]any) (string, map[string]any)
}

func (p *tracePlugin) Name() string                { return p.name }
func (p *tracePlugin) CanHandlePostPlanning() bool { return true }
func (p *tracePlugin) CanHandlePreCommand() bool   { return true }
func (p *tracePlugin) CanHandlePostCommand() bool  { return true }

func (p *tracePlugin) PostPlanning(action map[string]any) (map[string]any, error) {
	*p.trace = append(*p.trace, p.name+"."+plugins.HookPostPlanning)
	if p.failOn == plugins.HookPostPlanning {
		return nil, io.ErrUnexpectedEOF
	}
	return action, nil
}

func (p *tracePlugin) PreCommand(name string, args map[string]any) (string, map[string]any, error) {
	*p.trace = append(*p.trace, p.name+"."+plugins.HookPreCommand)
	if p.failOn == plugins.HookPreCommand {
		return "", nil, io.ErrUnexpectedEOF
	}
	if p.rewrite != nil {
		name, args = p.rewrite(name, args)
	}
	return name, args, nil
}

func (p *tracePlugin) PostCommand(name, result string) (string, error) {
	*p.trace = append(*p.trace, p.name+"."+plugins.HookPostCommand)
	if p.failOn == plugins.HookPostCommand {
		return "", io.ErrUnexpectedEOF
	}
	return result + "[" + p.name + "]", nil
}

var mockAnyContext = mock.Anything
