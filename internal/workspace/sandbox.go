// File: internal/workspace/sandbox.go
package workspace

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	securejoin "github.com/cyphar/filepath-securejoin"
)

// ErrOutsideWorkspace is returned when a path cannot be confined to the root.
var ErrOutsideWorkspace = errors.New("path resolves outside the workspace")

// PathArguments are the command argument names rewritten into the sandbox.
var PathArguments = []string{"filename", "directory", "clone_path"}

// Sandbox confines file system paths to a single root directory. Every path is
// resolved as if the root were "/": parent segments and symlinks cannot climb out.
type Sandbox struct {
	root string
}

// New creates the root directory if needed and returns a Sandbox for it.
func New(root string) (*Sandbox, error) {
	if strings.TrimSpace(root) == "" {
		return nil, fmt.Errorf("workspace root must not be empty")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve workspace root %q: %w", root, err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create workspace root %q: %w", abs, err)
	}
	// Resolve symlinks in the root itself so containment checks compare like with like.
	real, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve workspace root %q: %w", abs, err)
	}
	return &Sandbox{root: real}, nil
}

// Root returns the absolute workspace root.
func (s *Sandbox) Root() string { return s.root }

// Resolve maps path to an absolute path inside the root. Absolute paths that
// already point inside the root are kept, so resolving twice is a no-op.
func (s *Sandbox) Resolve(path string) (string, error) {
	if path == "" {
		return s.root, nil
	}
	if filepath.IsAbs(path) {
		if rel, err := filepath.Rel(s.root, filepath.Clean(path)); err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			path = rel
		}
	}

	joined, err := securejoin.SecureJoin(s.root, path)
	if err != nil {
		return "", fmt.Errorf("failed to resolve %q inside workspace: %w", path, err)
	}
	if !s.contains(joined) {
		return "", fmt.Errorf("%w: %q", ErrOutsideWorkspace, path)
	}
	return joined, nil
}

// Relative returns path relative to the root, for display to the model.
func (s *Sandbox) Relative(path string) string {
	rel, err := filepath.Rel(s.root, path)
	if err != nil {
		return path
	}
	return rel
}

// NormalizeArguments returns a copy of args with every path-like argument
// rewritten into the sandbox. A "directory" of "" or "/" means the root.
// Non-string values are left for the command's parameter check to reject.
func (s *Sandbox) NormalizeArguments(args map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(args))
	for k, v := range args {
		out[k] = v
	}
	for _, key := range PathArguments {
		raw, present := out[key]
		if !present {
			continue
		}
		value, ok := raw.(string)
		if !ok {
			continue
		}
		if key == "directory" && (value == "" || value == "/") {
			out[key] = s.root
			continue
		}
		resolved, err := s.Resolve(value)
		if err != nil {
			return nil, fmt.Errorf("argument %q: %w", key, err)
		}
		out[key] = resolved
	}
	return out, nil
}

func (s *Sandbox) contains(path string) bool {
	if path == s.root {
		return true
	}
	return strings.HasPrefix(path, s.root+string(filepath.Separator))
}
