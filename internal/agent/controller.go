// internal/agent/controller.go
package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/autopilot-cli/api/schemas"
	"github.com/xkilldash9x/autopilot-cli/internal/auditlog"
	"github.com/xkilldash9x/autopilot-cli/internal/config"
	"github.com/xkilldash9x/autopilot-cli/internal/history"
	"github.com/xkilldash9x/autopilot-cli/internal/llmutil"
	"github.com/xkilldash9x/autopilot-cli/internal/plugins"
	"github.com/xkilldash9x/autopilot-cli/internal/prompt"
	"github.com/xkilldash9x/autopilot-cli/internal/workspace"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// State is the controller's position within a cycle.
type State string

const (
	StateAwaitingModel State = "AWAITING_MODEL"
	StateParsing       State = "PARSING"
	StateAuthorizing   State = "AUTHORIZING"
	StateExecuting     State = "EXECUTING"
	StateRecording     State = "RECORDING"
	StateStopped       State = "STOPPED"
)

// StopReason says why Run returned.
type StopReason string

const (
	StopContinuousLimit StopReason = "continuous_limit"
	StopUserExit        StopReason = "user_exit"
	StopInterrupted     StopReason = "interrupted"
	StopCanceled        StopReason = "context_canceled"
	StopOperatorFailure StopReason = "operator_failure"
)

// RunSummary describes a finished run.
type RunSummary struct {
	RunID      string
	Cycles     int
	Dispatched int
	Reason     StopReason
}

// Options is the per-run configuration of a Controller.
type Options struct {
	AI               config.AISettings
	Loop             config.LoopConfig
	LLM              config.LLMConfig
	SystemPrompt     string
	TriggeringPrompt string
	// RunID identifies the run in audit records. A random one is used when empty.
	RunID string
}

// Dependencies are the collaborators a Controller drives. LLM, Counter,
// Dispatcher, Gate and Operator are required.
type Dependencies struct {
	LLM        schemas.LLMClient
	Counter    schemas.TokenCounter
	Dispatcher *Dispatcher
	Gate       *Gate
	Bus        *plugins.Bus
	Sandbox    *workspace.Sandbox
	History    *history.History
	Audit      schemas.AuditSink
	Operator   Operator
}

// Controller runs the cycle loop: ask the model, repair its reply, authorize,
// execute and record, until a stop condition is met.
type Controller struct {
	opts     Options
	deps     Dependencies
	repairer *llmutil.Repairer
	window   *ContextBuilder
	logger   *zap.Logger

	state      State
	cycle      int
	completed  int
	dispatched int
	started    time.Time
	// pending holds system messages raised during a cycle, recorded after the reply.
	pending []schemas.Message
}

func NewController(opts Options, deps Dependencies, logger *zap.Logger) (*Controller, error) {
	switch {
	case deps.LLM == nil:
		return nil, fmt.Errorf("controller requires an LLM client")
	case deps.Counter == nil:
		return nil, fmt.Errorf("controller requires a token counter")
	case deps.Dispatcher == nil:
		return nil, fmt.Errorf("controller requires a dispatcher")
	case deps.Gate == nil:
		return nil, fmt.Errorf("controller requires an authorization gate")
	case deps.Operator == nil:
		return nil, fmt.Errorf("controller requires an operator")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if deps.Bus == nil {
		deps.Bus = plugins.NewBus(logger)
	}
	if deps.History == nil {
		deps.History = history.New(0)
	}
	if deps.Audit == nil {
		deps.Audit = auditlog.Nop{}
	}
	if opts.RunID == "" {
		opts.RunID = uuid.NewString()
	}
	opts.TriggeringPrompt = prompt.TriggeringPrompt(opts.TriggeringPrompt)

	return &Controller{
		opts:     opts,
		deps:     deps,
		repairer: llmutil.NewRepairer(logger),
		window:   NewContextBuilder(deps.Counter, opts.LLM.ContextWindow, opts.LLM.MaxTokens),
		logger:   logger.Named("controller").With(zap.String("run_id", opts.RunID)),
		state:    StateStopped,
	}, nil
}

// RunID returns the identifier used in audit records.
func (c *Controller) RunID() string { return c.opts.RunID }

// State returns the current cycle state.
func (c *Controller) State() State { return c.state }

// History returns the conversation log the controller writes to.
func (c *Controller) History() *history.History { return c.deps.History }

func (c *Controller) setState(s State) {
	if s == c.state {
		return
	}
	c.logger.Debug("Cycle state transition.",
		zap.Int("cycle", c.cycle),
		zap.String("from", string(c.state)),
		zap.String("to", string(s)))
	c.state = s
}

// Run loops until the continuous limit, an operator exit, an interrupt with
// nothing pending, or ctx cancellation. Limit and exit return a nil error.
func (c *Controller) Run(ctx context.Context) (RunSummary, error) {
	c.started = time.Now().UTC()
	c.logger.Info("Starting agent run.",
		zap.String("ai_name", c.opts.AI.AIName),
		zap.Stringer("mode", c.deps.Gate.Mode()),
		zap.Int("continuous_limit", c.opts.Loop.ContinuousLimit))

	for {
		if err := ctx.Err(); err != nil {
			return c.stop(StopCanceled), err
		}
		reason, err := c.safeCycle(ctx)
		if reason == "" {
			continue
		}
		summary := c.stop(reason)
		switch reason {
		case StopContinuousLimit, StopUserExit:
			return summary, nil
		default:
			return summary, err
		}
	}
}

func (c *Controller) stop(reason StopReason) RunSummary {
	c.setState(StateStopped)
	c.logger.Info("Agent run stopped.",
		zap.String("reason", string(reason)),
		zap.Int("cycles", c.completed),
		zap.Int("dispatched", c.dispatched))
	return RunSummary{RunID: c.opts.RunID, Cycles: c.completed, Dispatched: c.dispatched, Reason: reason}
}

// safeCycle runs one cycle, turning a panic into a recorded system message.
func (c *Controller) safeCycle(ctx context.Context) (reason StopReason, err error) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("Cycle panicked; recording and continuing.",
				zap.Int("cycle", c.cycle),
				zap.Any("panic_value", r),
				zap.Stack("stack"))
			c.flushPending()
			c.deps.History.Add(schemas.RoleSystem, fmt.Sprintf("Cycle %d failed unexpectedly: %v", c.cycle, r), schemas.KindActionResult)
			c.completed++
			reason, err = "", nil
		}
	}()
	return c.runCycle(ctx)
}

// proposal is the parsed outcome of the PARSING state.
type proposal struct {
	action  llmutil.Action
	ok      bool
	invalid string
	payload map[string]any
}

func (c *Controller) runCycle(ctx context.Context) (StopReason, error) {
	c.cycle++
	c.setState(StateAwaitingModel)

	if err := c.deps.Gate.PollInterrupt(); err != nil {
		return StopInterrupted, err
	}
	if limit := c.opts.Loop.ContinuousLimit; c.opts.Loop.ContinuousMode && limit > 0 && c.cycle > limit {
		c.deps.Operator.Say(fmt.Sprintf("Continuous Limit Reached: %d", limit))
		return StopContinuousLimit, nil
	}

	c.audit(ctx, schemas.ChannelFullHistory, c.deps.History.Messages())

	raw := c.think(ctx)
	if err := ctx.Err(); err != nil {
		return StopCanceled, err
	}

	c.setState(StateParsing)
	p := c.parse(raw)
	c.audit(ctx, schemas.ChannelNextAction, p.payload)
	c.show(p)

	c.setState(StateAuthorizing)
	decision, err := c.deps.Gate.Authorize(ctx)
	switch {
	case err == nil:
	case errors.Is(err, ErrUserExit):
		return StopUserExit, err
	case errors.Is(err, ErrInterrupted):
		return StopInterrupted, err
	case ctx.Err() != nil:
		return StopCanceled, err
	default:
		c.logger.Error("Operator input failed.", zap.Error(err))
		return StopOperatorFailure, fmt.Errorf("failed to read operator input: %w", err)
	}

	c.setState(StateExecuting)
	result := c.act(ctx, decision, p)

	c.setState(StateRecording)
	if raw != "" {
		c.deps.History.Add(schemas.RoleAssistant, raw, schemas.KindAIResponse)
	}
	c.flushPending()
	c.deps.History.Add(schemas.RoleSystem, result, schemas.KindActionResult)
	c.deps.Operator.Say("SYSTEM: " + result)
	c.completed++
	return "", nil
}

// think makes the cycle's one model call. A failed call is recorded and
// yields an empty reply.
func (c *Controller) think(ctx context.Context) string {
	msgs := c.window.Build(c.opts.SystemPrompt, c.opts.TriggeringPrompt, c.deps.History)
	raw, err := c.deps.LLM.Generate(ctx, schemas.GenerationRequest{
		Messages:  msgs,
		Tier:      schemas.TierFast,
		MaxTokens: c.opts.LLM.MaxTokens,
		Options: schemas.GenerationOptions{
			Temperature:     float64(c.opts.LLM.Temperature),
			ForceJSONFormat: true,
		},
	})
	if err != nil {
		if ctx.Err() == nil {
			c.logger.Error("Model call failed.", zap.Int("cycle", c.cycle), zap.Error(err))
			c.pending = append(c.pending, schemas.Message{
				Role:    schemas.RoleSystem,
				Content: fmt.Sprintf("Model call failed: %v", err),
			})
		}
		return ""
	}
	return raw
}

func (c *Controller) parse(raw string) proposal {
	if strings.TrimSpace(raw) == "" {
		return proposal{payload: map[string]any{}}
	}
	res := c.repairer.Inspect(raw)
	if !res.Valid() {
		return proposal{payload: res.Action}
	}
	c.logger.Debug("Model reply recovered.", zap.String("technique", string(res.Technique)))

	mapped, faults := c.deps.Bus.PostPlanning(res.Action)
	c.recordFaults(faults)

	action, err := llmutil.DecodeAction(mapped)
	if err != nil {
		// A plugin rewrote the action into something unusable.
		return proposal{payload: mapped, invalid: err.Error()}
	}
	if c.deps.Sandbox != nil {
		args, err := c.deps.Sandbox.NormalizeArguments(action.Command.Args)
		if err != nil {
			return proposal{action: action, payload: action.ToMap(), invalid: err.Error()}
		}
		action.Command.Args = args
	}
	return proposal{action: action, ok: true, payload: action.ToMap()}
}

func (c *Controller) show(p proposal) {
	op := c.deps.Operator
	t := p.action.Thoughts
	name := strings.ToUpper(c.opts.AI.AIName)
	if t.Text != "" {
		op.Say(fmt.Sprintf("%s THOUGHTS: %s", name, t.Text))
	}
	if t.Reasoning != "" {
		op.Say("REASONING: " + t.Reasoning)
	}
	if len(t.Plan) > 0 {
		op.Say("PLAN:")
		for _, step := range t.Plan {
			op.Say("-  " + step)
		}
	}
	if t.Criticism != "" {
		op.Say("CRITICISM: " + t.Criticism)
	}

	if !p.ok {
		if p.invalid != "" {
			op.Say("NEXT ACTION: invalid (" + p.invalid + ")")
		} else {
			op.Say("NEXT ACTION: none")
		}
		return
	}
	args, err := json.Marshal(p.action.Command.Args)
	if err != nil {
		args = []byte(fmt.Sprint(p.action.Command.Args))
	}
	op.Say(fmt.Sprintf("NEXT ACTION: COMMAND = %s ARGUMENTS = %s", p.action.Command.Name, args))
}

// act carries out the gate's decision and returns the text to record.
func (c *Controller) act(ctx context.Context, d Decision, p proposal) string {
	switch d.Kind {
	case DecideHumanFeedback:
		c.audit(ctx, schemas.ChannelUserInput, d.Feedback)
		return "Human feedback: " + d.Feedback
	case DecideSelfFeedback:
		return "Self feedback: " + c.selfFeedback(ctx, p.action.Thoughts)
	}

	switch {
	case p.invalid != "":
		return "Unable to execute command: " + p.invalid
	case !p.ok:
		return "Unable to execute command"
	}

	out, faults := c.deps.Dispatcher.Dispatch(ctx, p.action.Command.Name, p.action.Command.Args, c.deps.History.Summary())
	c.deps.Gate.Consume()
	c.dispatched++
	c.recordFaults(faults)
	if out.Kind != Executed {
		c.logger.Info("Command did not execute cleanly.",
			zap.String("command", out.Command),
			zap.Stringer("outcome", out.Kind),
			zap.String("code", string(out.Code)),
			zap.Error(out.Err))
	}
	if out.Text == "" {
		return "Unable to execute command"
	}
	return out.Text
}

// selfFeedback asks the powerful tier to critique the proposed thoughts. It
// never reaches the registry or the batch count.
func (c *Controller) selfFeedback(ctx context.Context, t llmutil.Thoughts) string {
	request := prompt.SelfFeedback(c.opts.AI.AIRole, t)
	c.audit(ctx, schemas.ChannelSelfFeedbackPrompt, request)
	c.deps.Operator.Say("-=-=-=-=-=-=-= THOUGHTS, REASONING, PLAN AND CRITICISM WILL NOW BE VERIFIED BY AGENT -=-=-=-=-=-=-=")

	reply, err := c.deps.LLM.Generate(ctx, schemas.GenerationRequest{
		Messages:  []schemas.Message{{Role: schemas.RoleUser, Content: request}},
		Tier:      schemas.TierPowerful,
		MaxTokens: c.opts.LLM.MaxTokens,
		Options:   schemas.GenerationOptions{Temperature: float64(c.opts.LLM.Temperature)},
	})
	if err != nil {
		c.logger.Warn("Self-feedback call failed.", zap.Error(err))
		reply = fmt.Sprintf("unavailable (%v)", err)
	}
	c.audit(ctx, schemas.ChannelSelfFeedback, reply)
	c.deps.Operator.Say("SELF FEEDBACK: " + reply)
	return reply
}

func (c *Controller) recordFaults(faults []plugins.HookFault) {
	for _, f := range faults {
		c.logger.Warn("Plugin hook failed.", zap.String("plugin", f.Plugin), zap.String("hook", f.Hook), zap.Error(f.Err))
		c.pending = append(c.pending, schemas.Message{Role: schemas.RoleSystem, Content: f.Error(), Kind: schemas.KindPluginFault})
	}
}

func (c *Controller) flushPending() {
	for _, m := range c.pending {
		c.deps.History.Append(m)
	}
	c.pending = nil
}

// audit records payload on channel. Sink failures are logged and otherwise ignored.
func (c *Controller) audit(ctx context.Context, channel schemas.AuditChannel, payload interface{}) {
	rec := schemas.AuditRecord{
		RunID:      c.opts.RunID,
		AIName:     c.opts.AI.AIName,
		RunStarted: c.started,
		Cycle:      c.cycle,
		Channel:    channel,
		Payload:    payload,
		RecordedAt: time.Now().UTC(),
	}
	if err := c.deps.Audit.Append(ctx, rec); err != nil {
		c.logger.Warn("Failed to write audit record.", zap.String("channel", string(channel)), zap.Error(err))
	}
}
