// File: internal/commands/builtin/builtin.go
package builtin

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/autopilot-cli/internal/commands"
	"github.com/xkilldash9x/autopilot-cli/internal/config"
)

// Register adds the built-in command set to the registry, skipping any name
// listed in cfg.Disabled. execute_shell is only offered when cfg.AllowShell is set.
func Register(registry *commands.Registry, cfg config.CommandsConfig, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	disabled := make(map[string]struct{}, len(cfg.Disabled))
	for _, name := range cfg.Disabled {
		disabled[name] = struct{}{}
	}

	all := append(FileCommands(), CloneRepository(), BrowseWebsite(NewWebFetcher(cfg.WebUserAgent, cfg.WebMaxBytes)))
	if cfg.AllowShell {
		all = append(all, ExecuteShell())
	}

	for _, d := range all {
		if _, skip := disabled[d.Name]; skip {
			logger.Info("Built-in command disabled by configuration.", zap.String("command", d.Name))
			continue
		}
		if err := registry.Register(d); err != nil {
			return fmt.Errorf("failed to register built-in command %s: %w", d.Name, err)
		}
	}
	return nil
}
