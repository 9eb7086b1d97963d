// internal/agent/gate.go
package agent

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/autopilot-cli/internal/config"
)

const interruptNotice = "Interrupt signal received. Stopping continuous command execution."

// Keys are the operator replies the gate recognizes. They are compared after
// trimming and lower-casing.
type Keys struct {
	Authorise    string
	Exit         string
	SelfFeedback string
}

// KeysFromConfig normalizes the configured keys, falling back to y, n and s.
func KeysFromConfig(cfg config.LoopConfig) Keys {
	norm := func(v, def string) string {
		v = strings.ToLower(strings.TrimSpace(v))
		if v == "" {
			return def
		}
		return v
	}
	return Keys{
		Authorise:    norm(cfg.AuthoriseKey, "y"),
		Exit:         norm(cfg.ExitKey, "n"),
		SelfFeedback: norm(cfg.SelfFeedbackKey, "s"),
	}
}

// Mode is the gate's current authorization policy.
type Mode int

const (
	ModeManual Mode = iota
	ModeBatch
	ModeContinuous
)

func (m Mode) String() string {
	switch m {
	case ModeManual:
		return "manual"
	case ModeBatch:
		return "batch"
	case ModeContinuous:
		return "continuous"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// DecisionKind is what the controller should do with the proposed action.
type DecisionKind int

const (
	DecideExecute DecisionKind = iota
	DecideHumanFeedback
	DecideSelfFeedback
)

// Decision is the gate's answer for one cycle.
type Decision struct {
	Kind     DecisionKind
	Feedback string
}

// GateConfig configures a Gate.
type GateConfig struct {
	Keys       Keys
	Continuous bool
	// AIName is used in the operator hint.
	AIName string
}

// Gate decides whether a proposed command may run. It owns the batch count.
// Gate is used from the controller goroutine only; the interrupt token is the
// one input that arrives from elsewhere.
type Gate struct {
	cfg      GateConfig
	batch    int
	operator Operator
	token    *InterruptToken
	logger   *zap.Logger
}

func NewGate(cfg GateConfig, operator Operator, token *InterruptToken, logger *zap.Logger) *Gate {
	if logger == nil {
		logger = zap.NewNop()
	}
	if token == nil {
		token = NewInterruptToken()
	}
	if cfg.Keys == (Keys{}) {
		cfg.Keys = KeysFromConfig(config.LoopConfig{})
	}
	return &Gate{cfg: cfg, operator: operator, token: token, logger: logger.Named("gate")}
}

// Mode reports the current policy.
func (g *Gate) Mode() Mode {
	switch {
	case g.cfg.Continuous:
		return ModeContinuous
	case g.batch > 0:
		return ModeBatch
	default:
		return ModeManual
	}
}

// BatchRemaining reports how many commands are still pre-authorized.
func (g *Gate) BatchRemaining() int { return g.batch }

// Consume is called after every registry dispatch.
func (g *Gate) Consume() {
	if g.batch > 0 {
		g.batch--
		g.logger.Debug("Batch authorization consumed.", zap.Int("remaining", g.batch))
	}
}

// PollInterrupt consumes a pending interrupt. With a batch pending the batch
// is cancelled and the run continues in manual mode; otherwise the run ends
// with ErrInterrupted.
func (g *Gate) PollInterrupt() error {
	if !g.token.Take() {
		return nil
	}
	if g.batch > 0 {
		g.logger.Info("Interrupt cancelled pending batch.", zap.Int("cancelled", g.batch))
		g.batch = 0
		g.operator.Say(interruptNotice)
		return nil
	}
	g.logger.Info("Interrupt received with nothing pending; stopping.")
	return ErrInterrupted
}

// Authorize returns the decision for the current cycle, prompting the
// operator in manual mode. It returns ErrUserExit, ErrInterrupted or the
// context error when the run should stop.
func (g *Gate) Authorize(ctx context.Context) (Decision, error) {
	if err := g.PollInterrupt(); err != nil {
		return Decision{}, err
	}
	switch g.Mode() {
	case ModeContinuous:
		return Decision{Kind: DecideExecute}, nil
	case ModeBatch:
		g.operator.Say(fmt.Sprintf("AUTHORISED COMMANDS LEFT: %d", g.batch))
		return Decision{Kind: DecideExecute}, nil
	}

	k := g.cfg.Keys
	g.operator.Say(fmt.Sprintf("Enter '%s' to authorise command, '%s -N' to run N continuous commands, "+
		"'%s' to run self-feedback commands, '%s' to exit program, or enter feedback for %s...",
		k.Authorise, k.Authorise, k.SelfFeedback, k.Exit, g.cfg.AIName))

	for {
		line, err := g.wait(ctx, "Input: ")
		if err != nil {
			return Decision{}, err
		}
		r := parseReply(line, k)
		switch r.kind {
		case replyEmpty:
			g.operator.Say("Invalid input format.")
		case replyBadBatch:
			g.operator.Say(fmt.Sprintf("Invalid input format. Please enter '%s -n' where n is the number of continuous tasks.", k.Authorise))
		case replyAuthorise:
			return Decision{Kind: DecideExecute}, nil
		case replyBatch:
			g.batch = r.count
			g.logger.Info("Batch authorized.", zap.Int("count", r.count))
			return Decision{Kind: DecideExecute}, nil
		case replyExit:
			g.operator.Say("Exiting...")
			return Decision{}, ErrUserExit
		case replySelfFeedback:
			return Decision{Kind: DecideSelfFeedback}, nil
		default:
			return Decision{Kind: DecideHumanFeedback, Feedback: r.text}, nil
		}
	}
}

// wait reads one operator line, giving up on interrupt or cancellation. The
// reader is always joined before returning.
func (g *Gate) wait(ctx context.Context, prompt string) (string, error) {
	readCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	type read struct {
		line string
		err  error
	}
	done := make(chan read, 1)
	go func() {
		line, err := g.operator.ReadLine(readCtx, prompt)
		done <- read{line: line, err: err}
	}()

	select {
	case r := <-done:
		if errors.Is(r.err, io.EOF) {
			return "", ErrUserExit
		}
		return r.line, r.err
	case <-g.token.C():
		cancel()
		<-done
		g.logger.Info("Interrupt received while awaiting authorization.")
		return "", ErrInterrupted
	case <-ctx.Done():
		<-done
		return "", ctx.Err()
	}
}

type replyKind int

const (
	replyEmpty replyKind = iota
	replyAuthorise
	replyBatch
	replyBadBatch
	replyExit
	replySelfFeedback
	replyFeedback
)

type reply struct {
	kind  replyKind
	count int
	text  string
}

func parseReply(line string, k Keys) reply {
	text := strings.TrimSpace(line)
	norm := strings.ToLower(text)
	switch {
	case norm == "":
		return reply{kind: replyEmpty}
	case norm == k.Authorise:
		return reply{kind: replyAuthorise}
	case strings.HasPrefix(norm, k.Authorise+" -"):
		n, err := strconv.Atoi(strings.TrimSpace(norm[len(k.Authorise)+2:]))
		if err != nil || n <= 0 {
			return reply{kind: replyBadBatch}
		}
		return reply{kind: replyBatch, count: n}
	case norm == k.Exit:
		return reply{kind: replyExit}
	case norm == k.SelfFeedback:
		return reply{kind: replySelfFeedback}
	default:
		return reply{kind: replyFeedback, text: text}
	}
}
