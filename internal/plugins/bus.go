// File: internal/plugins/bus.go
package plugins

import (
	"fmt"

	"go.uber.org/zap"
)

// Hook names used in faults and logs.
const (
	HookPostPlanning = "post_planning"
	HookPreCommand   = "pre_command"
	HookPostCommand  = "post_command"
)

// HookFault records a plugin hook that returned an error or panicked. The value
// it was handed passes through unchanged.
type HookFault struct {
	Plugin string
	Hook   string
	Err    error
}

func (f HookFault) Error() string {
	return fmt.Sprintf("plugin %s failed during %s: %v", f.Plugin, f.Hook, f.Err)
}

type registered struct {
	plugin Plugin
	caps   Capabilities
}

// Bus holds plugins in registration order for the lifetime of a run.
type Bus struct {
	logger  *zap.Logger
	entries []registered
}

// NewBus creates an empty bus.
func NewBus(logger *zap.Logger) *Bus {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bus{logger: logger.Named("plugins")}
}

// Register appends plugins, evaluating each one's capability predicates once.
func (b *Bus) Register(plugins ...Plugin) error {
	for _, p := range plugins {
		if p == nil {
			return fmt.Errorf("cannot register a nil plugin")
		}
		for _, e := range b.entries {
			if e.plugin.Name() == p.Name() {
				return fmt.Errorf("plugin %q is already registered", p.Name())
			}
		}
		caps := Capabilities{
			PostPlanning: p.CanHandlePostPlanning(),
			PreCommand:   p.CanHandlePreCommand(),
			PostCommand:  p.CanHandlePostCommand(),
		}
		b.entries = append(b.entries, registered{plugin: p, caps: caps})
		b.logger.Info("Registered plugin.",
			zap.String("plugin", p.Name()),
			zap.Bool(HookPostPlanning, caps.PostPlanning),
			zap.Bool(HookPreCommand, caps.PreCommand),
			zap.Bool(HookPostCommand, caps.PostCommand))
	}
	return nil
}

// Names returns plugin names in registration order.
func (b *Bus) Names() []string {
	names := make([]string, len(b.entries))
	for i, e := range b.entries {
		names[i] = e.plugin.Name()
	}
	return names
}

// Capabilities returns the recorded capabilities for a plugin.
func (b *Bus) Capabilities(name string) (Capabilities, bool) {
	for _, e := range b.entries {
		if e.plugin.Name() == name {
			return e.caps, true
		}
	}
	return Capabilities{}, false
}

// PostPlanning threads the action through every post_planning plugin in order.
func (b *Bus) PostPlanning(action map[string]any) (map[string]any, []HookFault) {
	var faults []HookFault
	for _, e := range b.entries {
		if !e.caps.PostPlanning {
			continue
		}
		p := e.plugin
		err := b.guard(p.Name(), HookPostPlanning, func() error {
			next, err := p.PostPlanning(cloneMap(action))
			if err != nil {
				return err
			}
			if next != nil {
				action = cloneMap(next)
			}
			return nil
		})
		if err != nil {
			faults = append(faults, *err)
		}
	}
	return action, faults
}

// PreCommand threads (name, args) through every pre_command plugin in order.
// Each plugin sees the previous plugin's committed edits, never those of a
// plugin that failed.
func (b *Bus) PreCommand(name string, args map[string]any) (string, map[string]any, []HookFault) {
	var faults []HookFault
	for _, e := range b.entries {
		if !e.caps.PreCommand {
			continue
		}
		p := e.plugin
		err := b.guard(p.Name(), HookPreCommand, func() error {
			nextName, nextArgs, err := p.PreCommand(name, cloneMap(args))
			if err != nil {
				return err
			}
			name = nextName
			if nextArgs != nil {
				args = cloneMap(nextArgs)
			}
			return nil
		})
		if err != nil {
			faults = append(faults, *err)
		}
	}
	return name, args, faults
}

// PostCommand threads the result text through every post_command plugin in order.
func (b *Bus) PostCommand(name, result string) (string, []HookFault) {
	var faults []HookFault
	for _, e := range b.entries {
		if !e.caps.PostCommand {
			continue
		}
		p := e.plugin
		err := b.guard(p.Name(), HookPostCommand, func() error {
			next, err := p.PostCommand(name, result)
			if err != nil {
				return err
			}
			result = next
			return nil
		})
		if err != nil {
			faults = append(faults, *err)
		}
	}
	return result, faults
}

// guard runs fn, converting an error or a panic into a HookFault. fn only
// commits its output on success.
func (b *Bus) guard(plugin, hook string, fn func() error) (fault *HookFault) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("Plugin hook panicked.",
				zap.String("plugin", plugin),
				zap.String("hook", hook),
				zap.Any("panic_value", r),
				zap.Stack("stack"))
			fault = &HookFault{Plugin: plugin, Hook: hook, Err: fmt.Errorf("panic: %v", r)}
		}
	}()
	if err := fn(); err != nil {
		b.logger.Warn("Plugin hook failed.", zap.String("plugin", plugin), zap.String("hook", hook), zap.Error(err))
		return &HookFault{Plugin: plugin, Hook: hook, Err: err}
	}
	return nil
}

// cloneMap deep-copies the JSON-shaped values a hook may edit in place.
func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return cloneMap(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = cloneValue(e)
		}
		return out
	case []string:
		return append([]string(nil), t...)
	default:
		return v
	}
}
