// File: cmd/run.go
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/signal"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/autopilot-cli/api/schemas"
	"github.com/xkilldash9x/autopilot-cli/internal/agent"
	"github.com/xkilldash9x/autopilot-cli/internal/auditlog"
	"github.com/xkilldash9x/autopilot-cli/internal/commands"
	"github.com/xkilldash9x/autopilot-cli/internal/commands/builtin"
	"github.com/xkilldash9x/autopilot-cli/internal/config"
	"github.com/xkilldash9x/autopilot-cli/internal/history"
	"github.com/xkilldash9x/autopilot-cli/internal/llmclient"
	"github.com/xkilldash9x/autopilot-cli/internal/observability"
	"github.com/xkilldash9x/autopilot-cli/internal/plugins"
	"github.com/xkilldash9x/autopilot-cli/internal/prompt"
	"github.com/xkilldash9x/autopilot-cli/internal/store"
	"github.com/xkilldash9x/autopilot-cli/internal/workspace"
)

// Define function variables for dependency injection/mocking in tests.
var (
	newLLMClient    = llmclient.NewClient
	newTokenCounter = llmclient.NewTokenCounter
	signalNotify    = signal.Notify
	signalStop      = signal.Stop
)

type runFlags struct {
	aiName    string
	aiRole    string
	goals     []string
	apiBudget float64
}

// newRunCmd creates and configures the `run` command.
func newRunCmd() *cobra.Command {
	var flags runFlags

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Start the agent loop",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()

			// 1. Configuration Finalization
			cfg, err := getConfig(cmd)
			if err != nil {
				return err
			}
			if err := applyRunOverrides(cmd, cfg); err != nil {
				return err
			}

			ai, err := resolveAISettings(cfg.Agent().AISettingsFile, flags, logger)
			if err != nil {
				return err
			}
			ps, err := config.LoadPromptSettings(cfg.Agent().PromptSettingsFile)
			if err != nil {
				return err
			}

			// 2. Initialize Core Components
			token := agent.NewInterruptToken()
			components, err := initializeRunComponents(ctx, cfg, ai, ps, token, cmd.InOrStdin(), cmd.OutOrStdout(), logger)
			if err != nil {
				if components != nil {
					components.Shutdown()
				}
				return fmt.Errorf("failed to initialize agent components: %w", err)
			}
			defer components.Shutdown()

			stopInterrupts := forwardInterrupts(ctx, token)
			defer stopInterrupts()

			// 3. Execute the loop
			summary, err := components.Controller.Run(ctx)
			fmt.Fprintf(cmd.OutOrStdout(), "\nRun %s stopped (%s) after %d cycles, %d commands dispatched.\n",
				summary.RunID, summary.Reason, summary.Cycles, summary.Dispatched)
			return err
		},
	}

	runCmd.Flags().Bool("continuous", false, "Run without asking for authorization. (Overrides config/env)")
	runCmd.Flags().Int("continuous-limit", 0, "Stop continuous mode after this many cycles; 0 means no limit.")
	runCmd.Flags().String("workspace", "", "Directory the agent's file commands are confined to.")
	runCmd.Flags().String("ai-settings", "", "YAML file with ai_name, ai_role and ai_goals.")
	runCmd.Flags().String("prompt-settings", "", "YAML file with constraints, resources and performance evaluations.")
	runCmd.Flags().StringVar(&flags.aiName, "ai-name", "", "Agent name; overrides the settings file.")
	runCmd.Flags().StringVar(&flags.aiRole, "ai-role", "", "Agent role; overrides the settings file.")
	runCmd.Flags().StringArrayVar(&flags.goals, "goal", nil, "Agent goal; repeat for several. Overrides the settings file.")
	runCmd.Flags().Float64Var(&flags.apiBudget, "api-budget", 0, "API budget shown to the agent, in dollars.")

	return runCmd
}

// applyRunOverrides copies explicitly set flags into cfg and revalidates it.
func applyRunOverrides(cmd *cobra.Command, cfg *config.Config) error {
	f := cmd.Flags()
	if f.Changed("continuous") {
		v, _ := f.GetBool("continuous")
		cfg.SetContinuousMode(v)
	}
	if f.Changed("continuous-limit") {
		v, _ := f.GetInt("continuous-limit")
		cfg.SetContinuousLimit(v)
	}
	if f.Changed("workspace") {
		v, _ := f.GetString("workspace")
		cfg.SetWorkspacePath(v)
	}
	if f.Changed("ai-settings") {
		cfg.AgentCfg.AISettingsFile, _ = f.GetString("ai-settings")
	}
	if f.Changed("prompt-settings") {
		cfg.AgentCfg.PromptSettingsFile, _ = f.GetString("prompt-settings")
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// resolveAISettings loads the agent identity from path and applies flag
// overrides. Settings assembled purely from flags are saved to path for the
// next run.
func resolveAISettings(path string, flags runFlags, logger *zap.Logger) (config.AISettings, error) {
	ai, err := config.LoadAISettings(path)
	loaded := err == nil
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return ai, err
	}

	if flags.aiName != "" {
		ai.AIName = flags.aiName
	}
	if flags.aiRole != "" {
		ai.AIRole = flags.aiRole
	}
	if len(flags.goals) > 0 {
		ai.AIGoals = flags.goals
	}
	if flags.apiBudget > 0 {
		ai.APIBudget = flags.apiBudget
	}

	if err := ai.Validate(); err != nil {
		return ai, fmt.Errorf("agent settings incomplete (%s): %w; provide --ai-settings or --ai-name, --ai-role and --goal", path, err)
	}
	if !loaded && path != "" {
		if err := config.SaveAISettings(path, ai); err != nil {
			logger.Warn("Failed to save agent settings.", zap.String("path", path), zap.Error(err))
		} else {
			logger.Info("Saved agent settings for the next run.", zap.String("path", path))
		}
	}
	return ai, nil
}

// forwardInterrupts routes SIGINT to token until the returned stop is called.
func forwardInterrupts(ctx context.Context, token *agent.InterruptToken) (stop func()) {
	sigCh := make(chan os.Signal, 1)
	signalNotify(sigCh, os.Interrupt)
	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-sigCh:
				token.Signal()
			case <-done:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
	return func() {
		signalStop(sigCh)
		close(done)
	}
}

// runComponents holds initialized services.
type runComponents struct {
	LLM        schemas.LLMClient
	Audit      schemas.AuditSink
	DBPool     *pgxpool.Pool
	Controller *agent.Controller
}

// Shutdown closes all components.
func (rc *runComponents) Shutdown() {
	logger := observability.GetLogger()
	if rc.Audit != nil {
		if err := rc.Audit.Close(); err != nil {
			logger.Warn("Error closing audit sinks", zap.Error(err))
		}
	}
	if rc.LLM != nil {
		if err := rc.LLM.Close(); err != nil {
			logger.Warn("Error closing LLM client", zap.Error(err))
		}
	}
	if rc.DBPool != nil {
		rc.DBPool.Close()
	}
}

// initializeRunComponents handles dependency injection.
func initializeRunComponents(
	ctx context.Context,
	cfg config.Interface,
	ai config.AISettings,
	ps config.PromptSettings,
	token *agent.InterruptToken,
	in io.Reader,
	out io.Writer,
	logger *zap.Logger,
) (*runComponents, error) {
	components := &runComponents{}

	// 1. Workspace and commands
	sandbox, err := workspace.New(cfg.Workspace().Path)
	if err != nil {
		return nil, err
	}
	registry := commands.NewRegistry(logger)
	if err := builtin.Register(registry, cfg.Commands(), logger); err != nil {
		return nil, err
	}

	// 2. Plugins
	bus := plugins.NewBus(logger)
	enabled, err := plugins.FromConfig(cfg.Plugins())
	if err != nil {
		return nil, fmt.Errorf("failed to load plugins: %w", err)
	}
	if err := bus.Register(enabled...); err != nil {
		return nil, fmt.Errorf("failed to register plugins: %w", err)
	}

	// 3. Model client, routed per tier
	llmCfg := cfg.LLM()
	client, err := newLLMClient(ctx, llmCfg, logger)
	if err != nil {
		return nil, err
	}
	router, err := llmclient.NewLLMRouter(logger, client, llmCfg.Model, llmCfg.SelfFeedbackModel, llmCfg.RequestsPerMinute)
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	components.LLM = router
	counter := newTokenCounter(llmCfg.Model, logger)

	// 4. Audit trail
	sinks, err := openAuditSinks(ctx, cfg.Audit(), components, logger)
	if err != nil {
		return components, err
	}
	components.Audit = auditlog.NewMulti(logger, sinks...)

	// 5. Loop
	operator := agent.NewConsoleOperator(in, out)
	loop := cfg.Loop()
	gate := agent.NewGate(agent.GateConfig{
		Keys:       agent.KeysFromConfig(loop),
		Continuous: loop.ContinuousMode,
		AIName:     ai.AIName,
	}, operator, token, logger)

	dispatcher, err := agent.NewDispatcher(agent.DispatcherConfig{
		Registry: registry,
		Bus:      bus,
		Sandbox:  sandbox,
		Counter:  counter,
		Budget:   agent.Budget{Ceiling: llmCfg.ContextWindow, Reserved: cfg.Budget().ReservedTokens},
		Timeout:  cfg.Commands().Timeout,
	}, logger)
	if err != nil {
		return components, err
	}

	controller, err := agent.NewController(agent.Options{
		AI:               ai,
		Loop:             loop,
		LLM:              llmCfg,
		SystemPrompt:     prompt.SystemPrompt(ai, ps, registry.Descriptors()),
		TriggeringPrompt: cfg.Agent().TriggeringPrompt,
	}, agent.Dependencies{
		LLM:        components.LLM,
		Counter:    counter,
		Dispatcher: dispatcher,
		Gate:       gate,
		Bus:        bus,
		Sandbox:    sandbox,
		History:    history.New(cfg.Budget().SummaryMaxChars),
		Audit:      components.Audit,
		Operator:   operator,
	}, logger)
	if err != nil {
		return components, err
	}
	components.Controller = controller

	logger.Info("Agent ready.",
		zap.String("run_id", controller.RunID()),
		zap.String("workspace", sandbox.Root()),
		zap.Int("commands", len(registry.Descriptors())),
		zap.Strings("plugins", bus.Names()))
	return components, nil
}

// openAuditSinks opens the file and database sinks the configuration asks for.
func openAuditSinks(ctx context.Context, cfg config.AuditConfig, components *runComponents, logger *zap.Logger) ([]schemas.AuditSink, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	var sinks []schemas.AuditSink
	if cfg.Dir != "" {
		fileSink, err := auditlog.NewFileSink(cfg.Dir)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize audit directory: %w", err)
		}
		sinks = append(sinks, fileSink)
	}
	if cfg.DatabaseURL != "" {
		connectCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
		defer cancel()
		dbPool, err := pgxpool.New(connectCtx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		components.DBPool = dbPool

		dbStore, err := store.New(connectCtx, dbPool, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize database store: %w", err)
		}
		if err := dbStore.EnsureSchema(connectCtx); err != nil {
			return nil, err
		}
		sinks = append(sinks, dbStore)
	}
	return sinks, nil
}
