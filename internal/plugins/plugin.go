// File: internal/plugins/plugin.go
package plugins

// Plugin extends the cycle at three points. A plugin reports once, at
// registration, which hooks it handles; only those transforms are ever called.
type Plugin interface {
	Name() string

	CanHandlePostPlanning() bool
	CanHandlePreCommand() bool
	CanHandlePostCommand() bool

	// PostPlanning may rewrite the action the model proposed.
	PostPlanning(action map[string]any) (map[string]any, error)
	// PreCommand may rewrite the command name and arguments before dispatch.
	PreCommand(name string, args map[string]any) (string, map[string]any, error)
	// PostCommand may rewrite the result text of a dispatched command.
	PostCommand(name, result string) (string, error)
}

// Base handles nothing. Embed it and override the hooks a plugin needs.
type Base struct{}

func (Base) CanHandlePostPlanning() bool { return false }
func (Base) CanHandlePreCommand() bool   { return false }
func (Base) CanHandlePostCommand() bool  { return false }

func (Base) PostPlanning(action map[string]any) (map[string]any, error) { return action, nil }

func (Base) PreCommand(name string, args map[string]any) (string, map[string]any, error) {
	return name, args, nil
}

func (Base) PostCommand(name, result string) (string, error) { return result, nil }

// Capabilities is the set of hooks a plugin declared at registration.
type Capabilities struct {
	PostPlanning bool
	PreCommand   bool
	PostCommand  bool
}
