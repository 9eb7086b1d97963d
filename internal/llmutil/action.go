// internal/llmutil/action.go
package llmutil

import (
	"fmt"
	"strings"
)

// Thoughts is the model's declared reasoning for its proposed command.
type Thoughts struct {
	Text      string   `json:"text,omitempty"`
	Reasoning string   `json:"reasoning"`
	Plan      []string `json:"plan"`
	Criticism string   `json:"criticism"`
	Speak     string   `json:"speak,omitempty"`
}

// CommandCall is the command the model chose and its raw arguments.
type CommandCall struct {
	Name string         `json:"name"`
	Args map[string]any `json:"args"`
}

// Action is the typed view of a validated reply.
type Action struct {
	Thoughts Thoughts    `json:"thoughts"`
	Command  CommandCall `json:"command"`
}

// DecodeAction converts a mapping into an Action. The mapping must pass Validate.
func DecodeAction(m map[string]any) (Action, error) {
	if res := Validate(m); !res.Valid {
		return Action{}, fmt.Errorf("invalid action: %w", res)
	}
	thoughts := m["thoughts"].(map[string]any)
	command := m["command"].(map[string]any)
	args, _ := commandArgs(command)

	action := Action{
		Thoughts: Thoughts{
			Text:      stringField(thoughts, "text"),
			Reasoning: stringField(thoughts, "reasoning"),
			Plan:      planSteps(thoughts["plan"]),
			Criticism: stringField(thoughts, "criticism"),
			Speak:     stringField(thoughts, "speak"),
		},
		Command: CommandCall{
			Name: strings.TrimSpace(command["name"].(string)),
			Args: make(map[string]any, len(args)),
		},
	}
	for k, v := range args {
		action.Command.Args[k] = v
	}
	return action, nil
}

// ToMap renders the action back into its wire mapping, for plugins and audit.
func (a Action) ToMap() map[string]any {
	plan := make([]any, len(a.Thoughts.Plan))
	for i, step := range a.Thoughts.Plan {
		plan[i] = step
	}
	args := make(map[string]any, len(a.Command.Args))
	for k, v := range a.Command.Args {
		args[k] = v
	}
	thoughts := map[string]any{
		"reasoning": a.Thoughts.Reasoning,
		"plan":      plan,
		"criticism": a.Thoughts.Criticism,
	}
	if a.Thoughts.Text != "" {
		thoughts["text"] = a.Thoughts.Text
	}
	if a.Thoughts.Speak != "" {
		thoughts["speak"] = a.Thoughts.Speak
	}
	return map[string]any{
		"thoughts": thoughts,
		"command":  map[string]any{"name": a.Command.Name, "args": args},
	}
}

func stringField(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}

// planSteps accepts a list of steps or a bulleted string, one step per line.
func planSteps(v any) []string {
	var steps []string
	switch plan := v.(type) {
	case []any:
		for _, step := range plan {
			if s, ok := step.(string); ok && strings.TrimSpace(s) != "" {
				steps = append(steps, strings.TrimSpace(s))
			}
		}
	case string:
		for _, line := range strings.Split(plan, "\n") {
			line = strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(line), "-*"))
			if line != "" {
				steps = append(steps, line)
			}
		}
	}
	return steps
}
