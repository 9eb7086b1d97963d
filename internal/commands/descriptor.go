// File: internal/commands/descriptor.go
package commands

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/autopilot-cli/internal/workspace"
)

// ParamType is the declared type of a command parameter.
type ParamType string

const (
	ParamString     ParamType = "string"
	ParamInt        ParamType = "integer"
	ParamBool       ParamType = "boolean"
	ParamStringList ParamType = "string_list"
)

// Param declares one named parameter of a command.
type Param struct {
	Name        string
	Type        ParamType
	Required    bool
	Description string
}

// Env is what a handler may touch besides its arguments.
type Env struct {
	Workspace *workspace.Sandbox
	Logger    *zap.Logger
}

// Handler runs a command with already-validated arguments. It must honor ctx.
type Handler func(ctx context.Context, env Env, args Args) (string, error)

// Descriptor is a registered command: its name, parameters and handler.
type Descriptor struct {
	Name        string
	Description string
	Params      []Param
	Handler     Handler
}

// Signature renders the descriptor the way the system prompt lists commands:
// name: description, args: "p1": "<type>", "p2": "<type>"
func (d Descriptor) Signature() string {
	parts := make([]string, 0, len(d.Params))
	for _, p := range d.Params {
		label := string(p.Type)
		if !p.Required {
			label += ", optional"
		}
		parts = append(parts, fmt.Sprintf("%q: \"<%s>\"", p.Name, label))
	}
	return fmt.Sprintf("%s: %s, args: %s", d.Name, d.Description, strings.Join(parts, ", "))
}

// Bind converts a raw argument mapping into typed Args. It rejects unknown
// parameters, missing required ones and values that cannot be converted to the
// declared type. A null value counts as absent.
func (d Descriptor) Bind(raw map[string]any) (Args, error) {
	known := make(map[string]Param, len(d.Params))
	for _, p := range d.Params {
		known[p.Name] = p
	}

	var unknown []string
	for name := range raw {
		if _, ok := known[name]; !ok {
			unknown = append(unknown, name)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return Args{}, fmt.Errorf("unknown argument(s) %s", strings.Join(unknown, ", "))
	}

	values := make(map[string]any, len(d.Params))
	for _, p := range d.Params {
		v, present := raw[p.Name]
		if !present || v == nil {
			if p.Required {
				return Args{}, fmt.Errorf("missing required argument %q", p.Name)
			}
			continue
		}
		converted, err := convert(p.Type, v)
		if err != nil {
			return Args{}, fmt.Errorf("argument %q: %w", p.Name, err)
		}
		values[p.Name] = converted
	}
	return Args{values: values}, nil
}

func convert(t ParamType, v any) (any, error) {
	switch t {
	case ParamString:
		switch s := v.(type) {
		case string:
			return s, nil
		case float64, int, int64, bool:
			return fmt.Sprint(s), nil
		}
	case ParamInt:
		switch n := v.(type) {
		case int:
			return n, nil
		case int64:
			return int(n), nil
		case float64:
			if n == math.Trunc(n) && !math.IsInf(n, 0) && math.Abs(n) < math.MaxInt32 {
				return int(n), nil
			}
		case string:
			if i, err := strconv.Atoi(strings.TrimSpace(n)); err == nil {
				return i, nil
			}
		}
	case ParamBool:
		switch b := v.(type) {
		case bool:
			return b, nil
		case string:
			if parsed, err := strconv.ParseBool(strings.TrimSpace(b)); err == nil {
				return parsed, nil
			}
		}
	case ParamStringList:
		switch list := v.(type) {
		case []string:
			return append([]string(nil), list...), nil
		case string:
			return []string{list}, nil
		case []any:
			out := make([]string, 0, len(list))
			for _, item := range list {
				s, ok := item.(string)
				if !ok {
					return nil, fmt.Errorf("expected a list of strings, found element %T", item)
				}
				out = append(out, s)
			}
			return out, nil
		}
	default:
		return nil, fmt.Errorf("unsupported parameter type %q", t)
	}
	return nil, fmt.Errorf("expected %s, got %T", t, v)
}

// Args holds bound, typed argument values. Accessors return the zero value for
// absent optional parameters.
type Args struct {
	values map[string]any
}

// NewArgs builds Args directly, mainly for tests of handlers.
func NewArgs(values map[string]any) Args {
	copied := make(map[string]any, len(values))
	for k, v := range values {
		copied[k] = v
	}
	return Args{values: copied}
}

func (a Args) Has(name string) bool {
	_, ok := a.values[name]
	return ok
}

func (a Args) String(name string) string {
	s, _ := a.values[name].(string)
	return s
}

func (a Args) Int(name string) int {
	n, _ := a.values[name].(int)
	return n
}

func (a Args) Bool(name string) bool {
	b, _ := a.values[name].(bool)
	return b
}

func (a Args) Strings(name string) []string {
	l, _ := a.values[name].([]string)
	return l
}
