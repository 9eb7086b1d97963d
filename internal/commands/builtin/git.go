// File: internal/commands/builtin/git.go
package builtin

import (
	"context"
	"fmt"

	"github.com/go-git/go-git/v5"
	"go.uber.org/zap"

	"github.com/xkilldash9x/autopilot-cli/internal/commands"
)

// CloneRepository clones a remote repository into the workspace. The clone is
// shallow; the model only needs the working tree.
func CloneRepository() commands.Descriptor {
	return commands.Descriptor{
		Name:        "clone_repository",
		Description: "Clone Repository",
		Params: []commands.Param{
			{Name: "url", Type: commands.ParamString, Required: true},
			{Name: "clone_path", Type: commands.ParamString, Required: true},
		},
		Handler: cloneRepository,
	}
}

func cloneRepository(ctx context.Context, env commands.Env, args commands.Args) (string, error) {
	target, err := resolve(env, args.String("clone_path"))
	if err != nil {
		return "", err
	}
	url := args.String("url")
	env.Logger.Info("Cloning repository.", zap.String("url", url), zap.String("path", target))

	_, err = git.PlainCloneContext(ctx, target, false, &git.CloneOptions{
		URL:   url,
		Depth: 1,
	})
	if err != nil {
		return "", fmt.Errorf("failed to clone %s: %w", url, err)
	}
	return fmt.Sprintf("Cloned %s to %s", url, env.Workspace.Relative(target)), nil
}
