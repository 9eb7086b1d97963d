// File: internal/config/ai_settings.go
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// AISettings describes the agent's identity and what it is trying to achieve.
type AISettings struct {
	AIName    string   `yaml:"ai_name"`
	AIRole    string   `yaml:"ai_role"`
	AIGoals   []string `yaml:"ai_goals"`
	APIBudget float64  `yaml:"api_budget"`
}

// Validate checks that the agent has a name, a role and at least one goal.
func (a *AISettings) Validate() error {
	if strings.TrimSpace(a.AIName) == "" {
		return fmt.Errorf("ai_name is required")
	}
	if strings.TrimSpace(a.AIRole) == "" {
		return fmt.Errorf("ai_role is required")
	}
	if len(a.AIGoals) == 0 {
		return fmt.Errorf("at least one goal is required")
	}
	if a.APIBudget < 0 {
		return fmt.Errorf("api_budget must not be negative")
	}
	return nil
}

// PromptSettings are the fixed lists rendered into the system prompt.
type PromptSettings struct {
	Constraints            []string `yaml:"constraints"`
	Resources              []string `yaml:"resources"`
	PerformanceEvaluations []string `yaml:"performance_evaluations"`
}

// DefaultPromptSettings returns the lists used when no prompt settings file exists.
func DefaultPromptSettings() PromptSettings {
	return PromptSettings{
		Constraints: []string{
			"~4000 word limit for short term memory. Your short term memory is short, so immediately save important information to files.",
			"If you are unsure how you previously did something or want to recall past events, thinking about similar events will help you remember.",
			"No user assistance",
			"Exclusively use the commands listed below e.g. command_name",
		},
		Resources: []string{
			"Internet access for searches and information gathering.",
			"File output.",
			"Version control access for cloning repositories into the workspace.",
		},
		PerformanceEvaluations: []string{
			"Continuously review and analyze your actions to ensure you are performing to the best of your abilities.",
			"Constructively self-criticize your big-picture behavior constantly.",
			"Reflect on past decisions and strategies to refine your approach.",
			"Every command has a cost, so be smart and efficient. Aim to complete tasks in the least number of steps.",
			"Write all code to a file.",
		},
	}
}

// LoadAISettings reads the agent identity from a YAML file. A missing file is
// reported with an error wrapping fs.ErrNotExist so callers can fall back to flags.
func LoadAISettings(path string) (AISettings, error) {
	var settings AISettings
	data, err := os.ReadFile(path)
	if err != nil {
		return settings, fmt.Errorf("failed to read ai settings %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &settings); err != nil {
		return settings, fmt.Errorf("failed to parse ai settings %s: %w", path, err)
	}
	return settings, nil
}

// SaveAISettings writes the agent identity so the next run can reuse it.
func SaveAISettings(path string, settings AISettings) error {
	data, err := yaml.Marshal(&settings)
	if err != nil {
		return fmt.Errorf("failed to encode ai settings: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create directory for ai settings: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write ai settings %s: %w", path, err)
	}
	return nil
}

// LoadPromptSettings reads prompt lists from a YAML file, falling back to the
// defaults when the file does not exist. Lists absent from the file keep their defaults.
func LoadPromptSettings(path string) (PromptSettings, error) {
	settings := DefaultPromptSettings()
	if path == "" {
		return settings, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return settings, nil
	}
	if err != nil {
		return settings, fmt.Errorf("failed to read prompt settings %s: %w", path, err)
	}

	var fromFile PromptSettings
	if err := yaml.Unmarshal(data, &fromFile); err != nil {
		return settings, fmt.Errorf("failed to parse prompt settings %s: %w", path, err)
	}
	if len(fromFile.Constraints) > 0 {
		settings.Constraints = fromFile.Constraints
	}
	if len(fromFile.Resources) > 0 {
		settings.Resources = fromFile.Resources
	}
	if len(fromFile.PerformanceEvaluations) > 0 {
		settings.PerformanceEvaluations = fromFile.PerformanceEvaluations
	}
	return settings, nil
}
