// internal/agent/dispatcher.go
package agent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/autopilot-cli/api/schemas"
	"github.com/xkilldash9x/autopilot-cli/internal/commands"
	"github.com/xkilldash9x/autopilot-cli/internal/plugins"
	"github.com/xkilldash9x/autopilot-cli/internal/workspace"
)

// Budget bounds how many tokens a recorded result may take. A non-positive
// Ceiling disables the check.
type Budget struct {
	Ceiling  int
	Reserved int
}

// Dispatcher runs one approved command through the plugin hooks, the sandbox
// and the registry, and turns whatever happens into an Outcome. At most one
// handler runs at a time, including handlers abandoned after a timeout.
type Dispatcher struct {
	registry *commands.Registry
	bus      *plugins.Bus
	sandbox  *workspace.Sandbox
	counter  schemas.TokenCounter
	budget   Budget
	timeout  time.Duration
	logger   *zap.Logger
	// slot is held by the running handler until it returns.
	slot chan struct{}
}

// DispatcherConfig holds the dispatcher's collaborators.
type DispatcherConfig struct {
	Registry *commands.Registry
	Bus      *plugins.Bus
	Sandbox  *workspace.Sandbox
	Counter  schemas.TokenCounter
	Budget   Budget
	// Timeout bounds each handler. Zero means no bound beyond the caller's context.
	Timeout time.Duration
}

func NewDispatcher(cfg DispatcherConfig, logger *zap.Logger) (*Dispatcher, error) {
	if cfg.Registry == nil {
		return nil, fmt.Errorf("dispatcher requires a command registry")
	}
	if cfg.Sandbox == nil {
		return nil, fmt.Errorf("dispatcher requires a workspace sandbox")
	}
	if cfg.Counter == nil {
		return nil, fmt.Errorf("dispatcher requires a token counter")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Bus == nil {
		cfg.Bus = plugins.NewBus(logger)
	}
	return &Dispatcher{
		registry: cfg.Registry,
		bus:      cfg.Bus,
		sandbox:  cfg.Sandbox,
		counter:  cfg.Counter,
		budget:   cfg.Budget,
		timeout:  cfg.Timeout,
		logger:   logger.Named("dispatcher"),
		slot:     make(chan struct{}, 1),
	}, nil
}

// Dispatch runs name with args. summary is the current history summary, which
// counts against the budget alongside the result. Plugin faults are returned
// for the caller to record; they never change the outcome kind.
func (d *Dispatcher) Dispatch(ctx context.Context, name string, args map[string]any, summary string) (Outcome, []plugins.HookFault) {
	var faults []plugins.HookFault

	name, args, pre := d.bus.PreCommand(name, args)
	faults = append(faults, pre...)

	var out Outcome
	normalized, err := d.sandbox.NormalizeArguments(args)
	if err != nil {
		out = faultedOutcome(name, ErrCodeSandboxViolation, err)
	} else {
		out = d.execute(ctx, name, normalized)
	}

	var text string
	if out.Kind == Faulted {
		text = fmt.Sprintf("Command %s failed: %v", name, out.Err)
	} else {
		text = fmt.Sprintf("Command %s returned: %s", name, out.Text)
	}

	text, post := d.bus.PostCommand(name, text)
	faults = append(faults, post...)

	if d.exceeds(text, summary) {
		d.logger.Warn("Command output exceeds the token budget.",
			zap.String("command", name),
			zap.Int("ceiling", d.budget.Ceiling))
		return refusedOutcome(name, ErrCodeOutputTooLarge), faults
	}
	out.Text = text

	d.logger.Debug("Command dispatched.",
		zap.String("command", name),
		zap.Stringer("outcome", out.Kind),
		zap.String("code", string(out.Code)))
	return out, faults
}

func (d *Dispatcher) exceeds(text, summary string) bool {
	if d.budget.Ceiling <= 0 {
		return false
	}
	return d.counter.Count(text)+d.counter.Count(summary)+d.budget.Reserved > d.budget.Ceiling
}

type handlerResult struct {
	text     string
	err      error
	panicked bool
}

// execute runs the handler on its own goroutine so a timeout can abandon it.
// An abandoned handler keeps the slot until it returns, and the next command
// waits for it within its own deadline.
func (d *Dispatcher) execute(ctx context.Context, name string, args map[string]any) Outcome {
	runCtx, cancel := ctx, context.CancelFunc(func() {})
	if d.timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, d.timeout)
	}
	defer cancel()

	select {
	case d.slot <- struct{}{}:
	case <-runCtx.Done():
		d.logger.Warn("Previous command still running.", zap.String("command", name))
		return d.expired(ctx, name, " waiting for the previous command to finish")
	}

	done := make(chan handlerResult, 1)
	go func() {
		defer func() { <-d.slot }()
		defer func() {
			if r := recover(); r != nil {
				d.logger.Error("Command handler panicked.",
					zap.String("command", name),
					zap.Any("panic_value", r),
					zap.Stack("stack"))
				done <- handlerResult{err: fmt.Errorf("command panicked: %v", r), panicked: true}
			}
		}()
		text, err := d.registry.Execute(runCtx, name, args, commands.Env{Workspace: d.sandbox, Logger: d.logger})
		done <- handlerResult{text: text, err: err}
	}()

	select {
	case r := <-done:
		if r.panicked {
			return faultedOutcome(name, ErrCodeExecutorPanic, r.err)
		}
		if r.err != nil {
			return faultedOutcome(name, classify(r.err), r.err)
		}
		return executedOutcome(name, r.text)
	case <-runCtx.Done():
		return d.expired(ctx, name, "")
	}
}

// expired reports a deadline or a cancelled parent for name.
func (d *Dispatcher) expired(ctx context.Context, name, detail string) Outcome {
	if ctx.Err() == nil {
		d.logger.Warn("Command timed out.", zap.String("command", name), zap.Duration("timeout", d.timeout))
		return faultedOutcome(name, ErrCodeTimeoutError, fmt.Errorf("timed out after %s%s", d.timeout, detail))
	}
	return faultedOutcome(name, ErrCodeExecutionFailure, ctx.Err())
}

func classify(err error) ErrorCode {
	switch {
	case errors.Is(err, commands.ErrUnknownCommand):
		return ErrCodeUnknownCommand
	case errors.Is(err, commands.ErrInvalidArguments):
		return ErrCodeInvalidParameters
	case errors.Is(err, workspace.ErrOutsideWorkspace):
		return ErrCodeSandboxViolation
	case errors.Is(err, context.DeadlineExceeded):
		return ErrCodeTimeoutError
	default:
		return ErrCodeExecutionFailure
	}
}
