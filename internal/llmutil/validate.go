// internal/llmutil/validate.go
package llmutil

import (
	"fmt"
	"strings"
)

// ValidationResult reports whether a mapping has the shape of an agent action.
type ValidationResult struct {
	Valid    bool
	Problems []string
}

func (r ValidationResult) Error() string {
	return strings.Join(r.Problems, "; ")
}

// Validate checks a decoded reply against the action schema:
//
//	{
//	  "thoughts": {"text"?: string, "reasoning": string, "plan": string|[string],
//	               "criticism": string, "speak"?: string},
//	  "command":  {"name": string, "args": object}
//	}
//
// "arguments" is accepted as an alias of "args". Validate never panics.
func Validate(m map[string]any) ValidationResult {
	var problems []string
	add := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	thoughts, ok := m["thoughts"].(map[string]any)
	if !ok {
		add("thoughts must be an object")
	} else {
		for _, field := range []string{"reasoning", "criticism"} {
			if _, isString := thoughts[field].(string); !isString {
				add("thoughts.%s must be a string", field)
			}
		}
		if !isPlan(thoughts["plan"]) {
			add("thoughts.plan must be a string or a list of strings")
		}
		for _, field := range []string{"text", "speak"} {
			if v, present := thoughts[field]; present && v != nil {
				if _, isString := v.(string); !isString {
					add("thoughts.%s must be a string when present", field)
				}
			}
		}
	}

	command, ok := m["command"].(map[string]any)
	if !ok {
		add("command must be an object")
	} else {
		name, isString := command["name"].(string)
		if !isString || strings.TrimSpace(name) == "" {
			add("command.name must be a non-empty string")
		}
		if _, found := commandArgs(command); !found {
			add("command.args must be an object")
		}
	}

	return ValidationResult{Valid: len(problems) == 0, Problems: problems}
}

func isPlan(v any) bool {
	switch plan := v.(type) {
	case string:
		return true
	case []any:
		for _, step := range plan {
			if _, ok := step.(string); !ok {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// commandArgs returns the argument object under "args" or "arguments".
func commandArgs(command map[string]any) (map[string]any, bool) {
	for _, key := range []string{"args", "arguments"} {
		if raw, present := command[key]; present {
			args, ok := raw.(map[string]any)
			return args, ok
		}
	}
	return nil, false
}
