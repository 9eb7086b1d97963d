// File: internal/plugins/builtin.go
package plugins

import (
	"fmt"

	"github.com/xkilldash9x/autopilot-cli/internal/config"
)

// FromConfig instantiates the built-in plugins named in cfg.Enabled, in order.
func FromConfig(cfg config.PluginsConfig) ([]Plugin, error) {
	out := make([]Plugin, 0, len(cfg.Enabled))
	for _, name := range cfg.Enabled {
		switch name {
		case "output_clipper":
			out = append(out, NewOutputClipper(cfg.ClipMaxChars))
		default:
			return nil, fmt.Errorf("unknown plugin %q", name)
		}
	}
	return out, nil
}
