// internal/llmclient/router.go
package llmclient

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/xkilldash9x/autopilot-cli/api/schemas"
)

// LLMRouter resolves a request's tier to a concrete model and paces calls to
// the provider before handing the request to the underlying client.
type LLMRouter struct {
	logger  *zap.Logger
	client  schemas.LLMClient
	models  map[schemas.ModelTier]string
	limiter *rate.Limiter
}

// NewLLMRouter wraps client. requestsPerMinute <= 0 disables pacing.
func NewLLMRouter(logger *zap.Logger, client schemas.LLMClient, fastModel, powerfulModel string, requestsPerMinute float64) (*LLMRouter, error) {
	if client == nil {
		return nil, fmt.Errorf("an underlying LLM client must be provided")
	}
	if fastModel == "" {
		return nil, fmt.Errorf("configuration error: a model for the fast tier is required")
	}
	if powerfulModel == "" {
		powerfulModel = fastModel
	}

	var limiter *rate.Limiter
	if requestsPerMinute > 0 {
		limiter = rate.NewLimiter(rate.Limit(requestsPerMinute/60), 1)
	}

	return &LLMRouter{
		logger: logger.Named("llm_router"),
		client: client,
		models: map[schemas.ModelTier]string{
			schemas.TierFast:     fastModel,
			schemas.TierPowerful: powerfulModel,
		},
		limiter: limiter,
	}, nil
}

// Generate fills in the model for the request's tier, waits for the limiter and
// delegates. An explicit req.Model is left as is.
func (r *LLMRouter) Generate(ctx context.Context, req schemas.GenerationRequest) (string, error) {
	tier := req.Tier
	if tier == "" {
		tier = schemas.TierFast
	}
	if req.Model == "" {
		model, ok := r.models[tier]
		if !ok {
			return "", fmt.Errorf("no model configured for tier: %s", tier)
		}
		req.Model = model
	}

	if r.limiter != nil {
		if err := r.limiter.Wait(ctx); err != nil {
			return "", fmt.Errorf("rate limiter wait aborted: %w", err)
		}
	}

	r.logger.Debug("Routing LLM request", zap.String("tier", string(tier)), zap.String("model", req.Model))
	return r.client.Generate(ctx, req)
}

// Close closes the underlying client.
func (r *LLMRouter) Close() error {
	return r.client.Close()
}
