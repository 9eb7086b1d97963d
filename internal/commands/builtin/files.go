// File: internal/commands/builtin/files.go
package builtin

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/autopilot-cli/internal/commands"
)

// FileCommands returns the workspace file operations.
func FileCommands() []commands.Descriptor {
	filename := commands.Param{Name: "filename", Type: commands.ParamString, Required: true}
	text := commands.Param{Name: "text", Type: commands.ParamString, Required: true}

	return []commands.Descriptor{
		{
			Name:        "read_file",
			Description: "Read a file",
			Params:      []commands.Param{filename},
			Handler:     readFile,
		},
		{
			Name:        "write_to_file",
			Description: "Write to file",
			Params:      []commands.Param{filename, text},
			Handler:     writeFile,
		},
		{
			Name:        "append_to_file",
			Description: "Append to file",
			Params:      []commands.Param{filename, text},
			Handler:     appendFile,
		},
		{
			Name:        "delete_file",
			Description: "Delete file",
			Params:      []commands.Param{filename},
			Handler:     deleteFile,
		},
		{
			Name:        "list_files",
			Description: "List Files in Directory",
			Params:      []commands.Param{{Name: "directory", Type: commands.ParamString, Required: true}},
			Handler:     listFiles,
		},
	}
}

func resolve(env commands.Env, path string) (string, error) {
	if env.Workspace == nil {
		return "", errors.New("no workspace configured")
	}
	return env.Workspace.Resolve(path)
}

func readFile(ctx context.Context, env commands.Env, args commands.Args) (string, error) {
	path, err := resolve(env, args.String("filename"))
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", args.String("filename"), err)
	}
	return string(data), nil
}

func writeFile(ctx context.Context, env commands.Env, args commands.Args) (string, error) {
	path, err := resolve(env, args.String("filename"))
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("failed to create parent directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(args.String("text")), 0o644); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", args.String("filename"), err)
	}
	env.Logger.Debug("Wrote file.", zap.String("path", path))
	return "File written to successfully.", nil
}

func appendFile(ctx context.Context, env commands.Env, args commands.Args) (string, error) {
	path, err := resolve(env, args.String("filename"))
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("failed to create parent directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return "", fmt.Errorf("failed to open %s: %w", args.String("filename"), err)
	}
	defer f.Close()
	if _, err := f.WriteString(args.String("text")); err != nil {
		return "", fmt.Errorf("failed to append to %s: %w", args.String("filename"), err)
	}
	return "Text appended successfully.", nil
}

func deleteFile(ctx context.Context, env commands.Env, args commands.Args) (string, error) {
	path, err := resolve(env, args.String("filename"))
	if err != nil {
		return "", err
	}
	if path == env.Workspace.Root() {
		return "", errors.New("refusing to delete the workspace root")
	}
	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("failed to delete %s: %w", args.String("filename"), err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("%s is a directory", args.String("filename"))
	}
	if err := os.Remove(path); err != nil {
		return "", fmt.Errorf("failed to delete %s: %w", args.String("filename"), err)
	}
	return "File deleted successfully.", nil
}

// listFiles walks the directory recursively, skipping hidden entries, and
// returns workspace-relative paths one per line.
func listFiles(ctx context.Context, env commands.Env, args commands.Args) (string, error) {
	root, err := resolve(env, args.String("directory"))
	if err != nil {
		return "", err
	}
	var found []string
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if path != root && strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.IsDir() {
			found = append(found, env.Workspace.Relative(path))
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("failed to list %s: %w", args.String("directory"), err)
	}
	if len(found) == 0 {
		return "No files found.", nil
	}
	sort.Strings(found)
	return strings.Join(found, "\n"), nil
}
