// internal/llmclient/gollm_client.go
package llmclient

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/teilomillet/gollm"
	"go.uber.org/zap"

	"github.com/xkilldash9x/autopilot-cli/api/schemas"
	"github.com/xkilldash9x/autopilot-cli/internal/config"
)

// GollmClient serves the OpenAI, Anthropic and Ollama providers through gollm.
type GollmClient struct {
	provider config.LLMProvider
	config   config.LLMConfig
	logger   *zap.Logger

	// gollm options are set on the shared LLM, so requests are serialized.
	mu  sync.Mutex
	llm gollm.LLM
}

// NewGollmClient builds a gollm LLM for cfg.Provider. gollm's own retries are
// disabled; a call is a single attempt.
func NewGollmClient(cfg config.LLMConfig, logger *zap.Logger) (*GollmClient, error) {
	opts := []gollm.ConfigOption{
		gollm.SetProvider(string(cfg.Provider)),
		gollm.SetModel(cfg.Model),
		gollm.SetMaxTokens(cfg.MaxTokens),
		gollm.SetTemperature(float64(cfg.Temperature)),
		gollm.SetMaxRetries(0),
		gollm.SetLogLevel(gollm.LogLevelWarn),
	}
	if cfg.APIKey != "" {
		opts = append(opts, gollm.SetAPIKey(cfg.APIKey))
	}

	llm, err := gollm.NewLLM(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create gollm LLM for provider %s: %w", cfg.Provider, err)
	}
	return &GollmClient{
		provider: cfg.Provider,
		config:   cfg,
		llm:      llm,
		logger:   logger.Named("llm_client." + string(cfg.Provider)),
	}, nil
}

// Generate flattens the conversation into one gollm prompt and sends it.
func (c *GollmClient) Generate(ctx context.Context, req schemas.GenerationRequest) (string, error) {
	model := req.Model
	if model == "" {
		model = c.config.Model
	}
	system, text := flattenConversation(req.Messages)

	promptOpts := []gollm.PromptOption{}
	if system != "" {
		promptOpts = append(promptOpts, gollm.WithSystemPrompt(system, gollm.CacheTypeEphemeral))
	}
	prompt := gollm.NewPrompt(text, promptOpts...)

	c.mu.Lock()
	defer c.mu.Unlock()

	c.llm.SetOption("model", model)
	if req.MaxTokens > 0 {
		c.llm.SetOption("max_tokens", req.MaxTokens)
	}
	if req.Options.Temperature > 0 {
		c.llm.SetOption("temperature", req.Options.Temperature)
	}

	if c.config.APITimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.config.APITimeout)
		defer cancel()
	}

	startTime := time.Now()
	out, err := c.llm.Generate(ctx, prompt)
	if err != nil {
		c.logger.Warn("gollm request failed.", zap.String("model", model), zap.Error(err))
		return "", fmt.Errorf("%s API error: %w", c.provider, err)
	}
	c.logger.Info("LLM generation complete",
		zap.String("provider", string(c.provider)),
		zap.String("model", model),
		zap.Duration("duration", time.Since(startTime)))
	return out, nil
}

// flattenConversation splits messages into a system prompt and a single prompt
// body. Assistant turns are labelled so the model can tell them apart.
func flattenConversation(messages []schemas.Message) (system, body string) {
	var sys, parts []string
	for _, m := range messages {
		switch m.Role {
		case schemas.RoleSystem:
			if len(parts) == 0 {
				sys = append(sys, m.Content)
			} else {
				parts = append(parts, "[System]: "+m.Content)
			}
		case schemas.RoleAssistant:
			parts = append(parts, "[Assistant]: "+m.Content)
		default:
			parts = append(parts, m.Content)
		}
	}
	body = strings.Join(parts, "\n")
	if body == "" {
		body = "Hello"
	}
	return strings.TrimSpace(strings.Join(sys, "\n\n")), body
}

func (c *GollmClient) Close() error { return nil }
