// internal/llmclient/factory.go
package llmclient

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/autopilot-cli/api/schemas"
	"github.com/xkilldash9x/autopilot-cli/internal/config"
)

// NewClient creates the provider client named by cfg.Provider and wraps it in a
// router that maps tiers to cfg.Model and cfg.SelfFeedbackModel.
func NewClient(ctx context.Context, cfg config.LLMConfig, logger *zap.Logger) (schemas.LLMClient, error) {
	var (
		base schemas.LLMClient
		err  error
	)
	switch cfg.Provider {
	case config.ProviderGemini:
		base, err = NewGoogleClient(ctx, cfg, logger)
	case config.ProviderOpenAI, config.ProviderAnthropic, config.ProviderOllama:
		base, err = NewGollmClient(cfg, logger)
	default:
		return nil, fmt.Errorf("unknown or unsupported LLM provider configured: '%s'. Supported: [%s, %s, %s, %s]",
			cfg.Provider, config.ProviderGemini, config.ProviderOpenAI, config.ProviderAnthropic, config.ProviderOllama)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to initialize %s client: %w", cfg.Provider, err)
	}

	router, err := NewLLMRouter(logger, base, cfg.Model, cfg.SelfFeedbackModel, cfg.RequestsPerMinute)
	if err != nil {
		_ = base.Close()
		return nil, err
	}
	return router, nil
}
