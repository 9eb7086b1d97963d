// File: internal/commands/registry.go
package commands

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"
)

var (
	// ErrUnknownCommand is returned when no descriptor is registered under a name.
	ErrUnknownCommand = errors.New("unknown command")
	// ErrInvalidArguments wraps argument binding failures.
	ErrInvalidArguments = errors.New("invalid arguments")
)

// Registry maps command names to descriptors.
type Registry struct {
	logger      *zap.Logger
	mu          sync.RWMutex
	descriptors map[string]Descriptor
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		logger:      logger.Named("command_registry"),
		descriptors: make(map[string]Descriptor),
	}
}

// Register adds one or more descriptors. Names must be unique and every
// descriptor needs a handler.
func (r *Registry) Register(descs ...Descriptor) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, d := range descs {
		if d.Name == "" {
			return fmt.Errorf("command descriptor has no name")
		}
		if d.Handler == nil {
			return fmt.Errorf("command %q has no handler", d.Name)
		}
		if _, exists := r.descriptors[d.Name]; exists {
			return fmt.Errorf("command %q is already registered", d.Name)
		}
		seen := make(map[string]struct{}, len(d.Params))
		for _, p := range d.Params {
			if _, dup := seen[p.Name]; dup {
				return fmt.Errorf("command %q declares parameter %q twice", d.Name, p.Name)
			}
			seen[p.Name] = struct{}{}
		}
		r.descriptors[d.Name] = d
		r.logger.Debug("Registered command.", zap.String("command", d.Name), zap.Int("params", len(d.Params)))
	}
	return nil
}

// Unregister removes a command if present.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.descriptors, name)
}

// Get looks up a descriptor by name.
func (r *Registry) Get(name string) (Descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.descriptors[name]
	return d, ok
}

// Descriptors returns every registered descriptor sorted by name.
func (r *Registry) Descriptors() []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Descriptor, 0, len(r.descriptors))
	for _, d := range r.descriptors {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Execute looks up name, binds raw into typed arguments and runs the handler.
// Lookup and binding failures wrap ErrUnknownCommand and ErrInvalidArguments.
func (r *Registry) Execute(ctx context.Context, name string, raw map[string]any, env Env) (string, error) {
	d, ok := r.Get(name)
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownCommand, name)
	}
	args, err := d.Bind(raw)
	if err != nil {
		return "", fmt.Errorf("%w for %s: %v", ErrInvalidArguments, name, err)
	}
	if env.Logger == nil {
		env.Logger = r.logger
	}
	return d.Handler(ctx, env, args)
}
