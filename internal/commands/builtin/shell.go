// File: internal/commands/builtin/shell.go
package builtin

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"runtime"

	"go.uber.org/zap"

	"github.com/xkilldash9x/autopilot-cli/internal/commands"
)

// ExecuteShell runs a command line inside the workspace directory.
func ExecuteShell() commands.Descriptor {
	return commands.Descriptor{
		Name:        "execute_shell",
		Description: "Execute Shell Command, non-interactive commands only",
		Params: []commands.Param{
			{Name: "command_line", Type: commands.ParamString, Required: true},
		},
		Handler: executeShell,
	}
}

func executeShell(ctx context.Context, env commands.Env, args commands.Args) (string, error) {
	if env.Workspace == nil {
		return "", errors.New("no workspace configured")
	}
	line := args.String("command_line")

	var cmd *exec.Cmd
	if runtime.GOOS == "windows" {
		cmd = exec.CommandContext(ctx, "cmd", "/C", line)
	} else {
		cmd = exec.CommandContext(ctx, "sh", "-c", line)
	}
	cmd.Dir = env.Workspace.Root()

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	env.Logger.Info("Executing shell command.", zap.String("command_line", line), zap.String("dir", cmd.Dir))
	runErr := cmd.Run()

	out := fmt.Sprintf("STDOUT:\n%s\nSTDERR:\n%s", stdout.String(), stderr.String())
	var exitErr *exec.ExitError
	if errors.As(runErr, &exitErr) {
		// A non-zero exit is a normal result the model should see.
		return fmt.Sprintf("Exit status %d\n%s", exitErr.ExitCode(), out), nil
	}
	if runErr != nil {
		return "", fmt.Errorf("failed to run shell command: %w", runErr)
	}
	return out, nil
}
