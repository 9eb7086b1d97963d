package agent

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/autopilot-cli/internal/config"
)

func newTestGate(t *testing.T, continuous bool, replies ...string) (*Gate, *fakeOperator, *InterruptToken) {
	t.Helper()
	op := &fakeOperator{replies: replies}
	token := NewInterruptToken()
	g := NewGate(GateConfig{Keys: KeysFromConfig(config.LoopConfig{}), Continuous: continuous, AIName: "Scribe"}, op, token, zaptest.NewLogger(t))
	return g, op, token
}

func TestKeysFromConfig(t *testing.T) {
	assert.Equal(t, Keys{Authorise: "y", Exit: "n", SelfFeedback: "s"}, KeysFromConfig(config.LoopConfig{}))
	assert.Equal(t, Keys{Authorise: "go", Exit: "quit", SelfFeedback: "s"},
		KeysFromConfig(config.LoopConfig{AuthoriseKey: " GO ", ExitKey: "Quit"}))
}

func TestParseReply(t *testing.T) {
	k := KeysFromConfig(config.LoopConfig{})
	tests := []struct {
		in   string
		want reply
	}{
		{"", reply{kind: replyEmpty}},
		{"   ", reply{kind: replyEmpty}},
		{"y", reply{kind: replyAuthorise}},
		{" Y ", reply{kind: replyAuthorise}},
		{"y -3", reply{kind: replyBatch, count: 3}},
		{"Y -12", reply{kind: replyBatch, count: 12}},
		{"y -0", reply{kind: replyBadBatch}},
		{"y --2", reply{kind: replyBadBatch}},
		{"y -x", reply{kind: replyBadBatch}},
		{"n", reply{kind: replyExit}},
		{"N", reply{kind: replyExit}},
		{"no thanks", reply{kind: replyFeedback, text: "no thanks"}},
		{"s", reply{kind: replySelfFeedback}},
		{"yes please", reply{kind: replyFeedback, text: "yes please"}},
		{" Read the README first ", reply{kind: replyFeedback, text: "Read the README first"}},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, parseReply(tt.in, k))
		})
	}
}

func TestGate_ContinuousNeverPrompts(t *testing.T) {
	g, op, _ := newTestGate(t, true)
	for i := 0; i < 3; i++ {
		d, err := g.Authorize(context.Background())
		require.NoError(t, err)
		assert.Equal(t, DecideExecute, d.Kind)
	}
	assert.Zero(t, op.promptCount())
	assert.Equal(t, ModeContinuous, g.Mode())
}

func TestGate_RepromptsOnInvalidInput(t *testing.T) {
	g, op, _ := newTestGate(t, false, "", "y -0", "y -abc", "y")
	d, err := g.Authorize(context.Background())
	require.NoError(t, err)

	assert.Equal(t, DecideExecute, d.Kind)
	assert.Equal(t, 4, op.promptCount())
	assert.Len(t, op.saidContaining("Invalid input format."), 3)
	assert.Len(t, op.saidContaining("'y -n'"), 2)
	assert.Equal(t, ModeManual, g.Mode())
}

func TestGate_BatchCountsTheCurrentCommand(t *testing.T) {
	g, op, _ := newTestGate(t, false, "y -3")
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		d, err := g.Authorize(ctx)
		require.NoError(t, err)
		require.Equal(t, DecideExecute, d.Kind)
		g.Consume()
	}
	assert.Equal(t, 1, op.promptCount())
	assert.Zero(t, g.BatchRemaining())
	assert.Equal(t, ModeManual, g.Mode())

	// The script is exhausted, so the fourth prompt sees EOF.
	_, err := g.Authorize(ctx)
	assert.ErrorIs(t, err, ErrUserExit)
}

func TestGate_ExitAndEOF(t *testing.T) {
	g, op, _ := newTestGate(t, false, " N ")
	_, err := g.Authorize(context.Background())
	assert.ErrorIs(t, err, ErrUserExit)
	assert.Len(t, op.saidContaining("Exiting..."), 1)

	g, _, _ = newTestGate(t, false)
	_, err = g.Authorize(context.Background())
	assert.ErrorIs(t, err, ErrUserExit)
}

func TestGate_PollInterrupt(t *testing.T) {
	g, op, token := newTestGate(t, false, "y -4")
	_, err := g.Authorize(context.Background())
	require.NoError(t, err)
	require.Equal(t, 4, g.BatchRemaining())

	assert.NoError(t, g.PollInterrupt(), "nothing pending")

	token.Signal()
	token.Signal()
	assert.NoError(t, g.PollInterrupt(), "a pending batch downgrades instead of aborting")
	assert.Zero(t, g.BatchRemaining())
	assert.Len(t, op.saidContaining(interruptNotice), 1)

	token.Signal()
	assert.ErrorIs(t, g.PollInterrupt(), ErrInterrupted)
}

func TestGate_InterruptWhileWaiting(t *testing.T) {
	g, op, token := newTestGate(t, false)
	op.onPrompt = token.Signal

	_, err := g.Authorize(context.Background())
	assert.ErrorIs(t, err, ErrInterrupted)
	assert.False(t, token.Take(), "the wait consumes the interrupt")
}

func TestGate_ContextCancelledWhileWaiting(t *testing.T) {
	g, op, _ := newTestGate(t, false)
	ctx, cancel := context.WithCancel(context.Background())
	op.onPrompt = cancel

	_, err := g.Authorize(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMode_String(t *testing.T) {
	assert.Equal(t, "manual", ModeManual.String())
	assert.Equal(t, "batch", ModeBatch.String())
	assert.Equal(t, "continuous", ModeContinuous.String())
	assert.Equal(t, "Mode(9)", Mode(9).String())
}
