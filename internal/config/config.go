// File: internal/config/config.go
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// Interface defines the contract for accessing application configuration.
// This allows for dependency injection and mocking in tests.
type Interface interface {
	Logger() LoggerConfig
	Agent() AgentConfig
	Loop() LoopConfig
	LLM() LLMConfig
	Budget() BudgetConfig
	Workspace() WorkspaceConfig
	Commands() CommandsConfig
	Plugins() PluginsConfig
	Audit() AuditConfig

	// Loop setters, driven by CLI flags.
	SetContinuousMode(bool)
	SetContinuousLimit(int)
	SetWorkspacePath(string)
}

// Config holds the entire application configuration.
type Config struct {
	LoggerCfg    LoggerConfig    `mapstructure:"logger" yaml:"logger"`
	AgentCfg     AgentConfig     `mapstructure:"agent" yaml:"agent"`
	LoopCfg      LoopConfig      `mapstructure:"loop" yaml:"loop"`
	LLMCfg       LLMConfig       `mapstructure:"llm" yaml:"llm"`
	BudgetCfg    BudgetConfig    `mapstructure:"budget" yaml:"budget"`
	WorkspaceCfg WorkspaceConfig `mapstructure:"workspace" yaml:"workspace"`
	CommandsCfg  CommandsConfig  `mapstructure:"commands" yaml:"commands"`
	PluginsCfg   PluginsConfig   `mapstructure:"plugins" yaml:"plugins"`
	AuditCfg     AuditConfig     `mapstructure:"audit" yaml:"audit"`
}

// --- Interface Method Implementations (Getters) ---

func (c *Config) Logger() LoggerConfig       { return c.LoggerCfg }
func (c *Config) Agent() AgentConfig         { return c.AgentCfg }
func (c *Config) Loop() LoopConfig           { return c.LoopCfg }
func (c *Config) LLM() LLMConfig             { return c.LLMCfg }
func (c *Config) Budget() BudgetConfig       { return c.BudgetCfg }
func (c *Config) Workspace() WorkspaceConfig { return c.WorkspaceCfg }
func (c *Config) Commands() CommandsConfig   { return c.CommandsCfg }
func (c *Config) Plugins() PluginsConfig     { return c.PluginsCfg }
func (c *Config) Audit() AuditConfig         { return c.AuditCfg }

// --- Interface Method Implementations (Setters) ---

func (c *Config) SetContinuousMode(b bool)  { c.LoopCfg.ContinuousMode = b }
func (c *Config) SetContinuousLimit(n int)  { c.LoopCfg.ContinuousLimit = n }
func (c *Config) SetWorkspacePath(p string) { c.WorkspaceCfg.Path = p }

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig defines the color codes for different log levels.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// AgentConfig points at the files describing who the agent is and how it is prompted.
type AgentConfig struct {
	AISettingsFile     string `mapstructure:"ai_settings_file" yaml:"ai_settings_file"`
	PromptSettingsFile string `mapstructure:"prompt_settings_file" yaml:"prompt_settings_file"`
	TriggeringPrompt   string `mapstructure:"triggering_prompt" yaml:"triggering_prompt"`
}

// LoopConfig controls authorization policy for the cycle loop.
type LoopConfig struct {
	ContinuousMode  bool   `mapstructure:"continuous_mode" yaml:"continuous_mode"`
	ContinuousLimit int    `mapstructure:"continuous_limit" yaml:"continuous_limit"`
	AuthoriseKey    string `mapstructure:"authorise_key" yaml:"authorise_key"`
	ExitKey         string `mapstructure:"exit_key" yaml:"exit_key"`
	SelfFeedbackKey string `mapstructure:"self_feedback_key" yaml:"self_feedback_key"`
}

// LLMProvider defines the supported LLM providers.
type LLMProvider string

const (
	ProviderGemini    LLMProvider = "gemini"
	ProviderOpenAI    LLMProvider = "openai"
	ProviderAnthropic LLMProvider = "anthropic"
	ProviderOllama    LLMProvider = "ollama"
)

// LLMConfig defines the model used by the loop.
type LLMConfig struct {
	Provider          LLMProvider   `mapstructure:"provider" yaml:"provider"`
	Model             string        `mapstructure:"model" yaml:"model"`
	SelfFeedbackModel string        `mapstructure:"self_feedback_model" yaml:"self_feedback_model"`
	APIKey            string        `mapstructure:"api_key" yaml:"api_key"`
	Endpoint          string        `mapstructure:"endpoint" yaml:"endpoint"`
	APITimeout        time.Duration `mapstructure:"api_timeout" yaml:"api_timeout"`
	Temperature       float32       `mapstructure:"temperature" yaml:"temperature"`
	MaxTokens         int           `mapstructure:"max_tokens" yaml:"max_tokens"`
	ContextWindow     int           `mapstructure:"context_window" yaml:"context_window"`
	RequestsPerMinute float64       `mapstructure:"requests_per_minute" yaml:"requests_per_minute"`
}

// BudgetConfig bounds how much of the context window a single result may use.
type BudgetConfig struct {
	ReservedTokens  int `mapstructure:"reserved_tokens" yaml:"reserved_tokens"`
	SummaryMaxChars int `mapstructure:"summary_max_chars" yaml:"summary_max_chars"`
}

// WorkspaceConfig names the sandbox root.
type WorkspaceConfig struct {
	Path string `mapstructure:"path" yaml:"path"`
}

// CommandsConfig configures the built-in command set.
type CommandsConfig struct {
	Timeout      time.Duration `mapstructure:"timeout" yaml:"timeout"`
	Disabled     []string      `mapstructure:"disabled" yaml:"disabled"`
	AllowShell   bool          `mapstructure:"allow_shell" yaml:"allow_shell"`
	WebUserAgent string        `mapstructure:"web_user_agent" yaml:"web_user_agent"`
	WebMaxBytes  int64         `mapstructure:"web_max_bytes" yaml:"web_max_bytes"`
}

// PluginsConfig lists built-in plugins to enable, in registration order.
type PluginsConfig struct {
	Enabled      []string `mapstructure:"enabled" yaml:"enabled"`
	ClipMaxChars int      `mapstructure:"clip_max_chars" yaml:"clip_max_chars"`
}

// AuditConfig configures the per-cycle audit trail.
type AuditConfig struct {
	Enabled     bool   `mapstructure:"enabled" yaml:"enabled"`
	Dir         string `mapstructure:"dir" yaml:"dir"`
	DatabaseURL string `mapstructure:"database_url" yaml:"database_url"`
}

// NewDefaultConfig creates a new configuration struct populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults initializes default values for various configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "autopilot")
	v.SetDefault("logger.log_file", "logs/autopilot.log")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")
	v.SetDefault("logger.colors.dpanic", "magenta")
	v.SetDefault("logger.colors.panic", "magenta")
	v.SetDefault("logger.colors.fatal", "magenta")

	// -- Agent --
	v.SetDefault("agent.ai_settings_file", "ai_settings.yaml")
	v.SetDefault("agent.prompt_settings_file", "prompt_settings.yaml")
	v.SetDefault("agent.triggering_prompt", "")

	// -- Loop --
	v.SetDefault("loop.continuous_mode", false)
	v.SetDefault("loop.continuous_limit", 0)
	v.SetDefault("loop.authorise_key", "y")
	v.SetDefault("loop.exit_key", "n")
	v.SetDefault("loop.self_feedback_key", "s")

	// -- LLM --
	v.SetDefault("llm.provider", string(ProviderGemini))
	v.SetDefault("llm.model", "gemini-2.5-flash")
	v.SetDefault("llm.self_feedback_model", "")
	v.SetDefault("llm.api_timeout", "2m")
	v.SetDefault("llm.temperature", 0.0)
	v.SetDefault("llm.max_tokens", 1000)
	v.SetDefault("llm.context_window", 32768)
	v.SetDefault("llm.requests_per_minute", 30.0)

	// -- Budget --
	v.SetDefault("budget.reserved_tokens", 600)
	v.SetDefault("budget.summary_max_chars", 4000)

	// -- Workspace --
	v.SetDefault("workspace.path", "auto_gpt_workspace")

	// -- Commands --
	v.SetDefault("commands.timeout", "2m")
	v.SetDefault("commands.disabled", []string{})
	v.SetDefault("commands.allow_shell", false)
	v.SetDefault("commands.web_user_agent", "autopilot/1.0 (+https://github.com/xkilldash9x/autopilot-cli)")
	v.SetDefault("commands.web_max_bytes", 2<<20)

	// -- Plugins --
	v.SetDefault("plugins.enabled", []string{})
	v.SetDefault("plugins.clip_max_chars", 8000)

	// -- Audit --
	v.SetDefault("audit.enabled", true)
	v.SetDefault("audit.dir", "logs/cycles")
	v.SetDefault("audit.database_url", "")
}

// NewConfigFromViper creates a new configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config

	// Secrets are usually supplied through the environment.
	_ = v.BindEnv("llm.api_key", "AUTOPILOT_LLM_API_KEY", "GEMINI_API_KEY")
	_ = v.BindEnv("audit.database_url", "AUTOPILOT_AUDIT_DATABASE_URL", "DATABASE_URL")

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := cfg.expandPaths(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// expandPaths resolves a leading "~" in every path-valued setting.
func (c *Config) expandPaths() error {
	targets := []*string{
		&c.LoggerCfg.LogFile,
		&c.AgentCfg.AISettingsFile,
		&c.AgentCfg.PromptSettingsFile,
		&c.WorkspaceCfg.Path,
		&c.AuditCfg.Dir,
	}
	for _, p := range targets {
		if *p == "" {
			continue
		}
		expanded, err := homedir.Expand(*p)
		if err != nil {
			return fmt.Errorf("failed to expand path %q: %w", *p, err)
		}
		*p = expanded
	}
	return nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if err := c.LoopCfg.Validate(); err != nil {
		return fmt.Errorf("loop configuration invalid: %w", err)
	}
	if err := c.LLMCfg.Validate(); err != nil {
		return fmt.Errorf("llm configuration invalid: %w", err)
	}
	if c.BudgetCfg.ReservedTokens < 0 {
		return fmt.Errorf("budget.reserved_tokens must not be negative")
	}
	if c.BudgetCfg.ReservedTokens >= c.LLMCfg.ContextWindow {
		return fmt.Errorf("budget.reserved_tokens must be smaller than llm.context_window")
	}
	if c.WorkspaceCfg.Path == "" {
		return fmt.Errorf("workspace.path is a required configuration field")
	}
	if c.CommandsCfg.Timeout <= 0 {
		return fmt.Errorf("commands.timeout must be a positive duration")
	}
	if c.AuditCfg.Enabled && c.AuditCfg.Dir == "" && c.AuditCfg.DatabaseURL == "" {
		return fmt.Errorf("audit is enabled but neither audit.dir nor audit.database_url is set")
	}
	return nil
}

// Validate checks the loop keys. The batch form "<authorise_key> -N" must stay
// distinguishable from the other keys, so all three have to be distinct and non-empty.
func (l *LoopConfig) Validate() error {
	if l.ContinuousLimit < 0 {
		return fmt.Errorf("continuous_limit must not be negative")
	}
	keys := map[string]string{
		"authorise_key":     l.AuthoriseKey,
		"exit_key":          l.ExitKey,
		"self_feedback_key": l.SelfFeedbackKey,
	}
	seen := make(map[string]string, len(keys))
	for name, key := range keys {
		normalized := strings.ToLower(strings.TrimSpace(key))
		if normalized == "" {
			return fmt.Errorf("%s must not be empty", name)
		}
		if other, ok := seen[normalized]; ok {
			return fmt.Errorf("%s and %s must differ", other, name)
		}
		seen[normalized] = name
	}
	return nil
}

// Validate checks the LLM settings.
func (l *LLMConfig) Validate() error {
	switch l.Provider {
	case ProviderGemini, ProviderOpenAI, ProviderAnthropic, ProviderOllama:
	default:
		return fmt.Errorf("unsupported provider %q", l.Provider)
	}
	if l.Model == "" {
		return fmt.Errorf("model is required")
	}
	if l.MaxTokens <= 0 {
		return fmt.Errorf("max_tokens must be a positive integer")
	}
	if l.ContextWindow <= l.MaxTokens {
		return fmt.Errorf("context_window must be larger than max_tokens")
	}
	if l.RequestsPerMinute < 0 {
		return fmt.Errorf("requests_per_minute must not be negative")
	}
	return nil
}
