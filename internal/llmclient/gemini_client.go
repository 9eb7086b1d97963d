// internal/llmclient/gemini_client.go
package llmclient

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/xkilldash9x/autopilot-cli/api/schemas"
	"github.com/xkilldash9x/autopilot-cli/internal/config"
)

// contentGenerator is the slice of the genai SDK the client uses.
type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, cfg *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// GoogleClient implements schemas.LLMClient on top of the Gemini API.
type GoogleClient struct {
	client contentGenerator
	config config.LLMConfig
	logger *zap.Logger
}

// NewGoogleClient initializes the SDK client. Endpoint, when set, overrides the
// API base URL.
func NewGoogleClient(ctx context.Context, cfg config.LLMConfig, logger *zap.Logger) (*GoogleClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("Gemini API Key is required")
	}

	clientCfg := &genai.ClientConfig{
		APIKey:     cfg.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: &http.Client{Timeout: cfg.APITimeout},
	}
	if cfg.Endpoint != "" {
		clientCfg.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.Endpoint}
	}

	sdk, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &GoogleClient{
		client: sdk.Models,
		config: cfg,
		logger: logger.Named("llm_client.gemini"),
	}, nil
}

// Generate sends the conversation in a single attempt.
func (c *GoogleClient) Generate(ctx context.Context, req schemas.GenerationRequest) (string, error) {
	model := req.Model
	if model == "" {
		model = c.config.Model
	}
	contents, genCfg := c.buildRequest(req)

	startTime := time.Now()
	resp, err := c.client.GenerateContent(ctx, model, contents, genCfg)
	duration := time.Since(startTime)
	if err != nil {
		c.logger.Warn("Gemini request failed.", zap.String("model", model), zap.Duration("duration", duration), zap.Error(err))
		return "", fmt.Errorf("gemini API error: %w", err)
	}

	if resp == nil || len(resp.Candidates) == 0 {
		return "", fmt.Errorf("gemini API returned no candidates")
	}

	text := resp.Text()
	if text == "" {
		reason := resp.Candidates[0].FinishReason
		if reason == genai.FinishReasonSafety || reason == genai.FinishReasonBlocklist {
			return "", fmt.Errorf("gemini API blocked the request (Reason: %s)", reason)
		}
		return "", fmt.Errorf("gemini API returned empty content (Reason: %s)", reason)
	}

	fields := []zap.Field{zap.String("model", model), zap.Duration("duration", duration)}
	if u := resp.UsageMetadata; u != nil {
		fields = append(fields,
			zap.Int32("prompt_tokens", u.PromptTokenCount),
			zap.Int32("completion_tokens", u.CandidatesTokenCount),
			zap.Int32("total_tokens", u.TotalTokenCount))
	}
	c.logger.Info("LLM generation complete (Gemini)", fields...)
	return text, nil
}

// buildRequest maps the conversation onto Gemini contents. Leading system
// messages become the system instruction; later ones are sent as user turns
// because the API only knows user and model roles.
func (c *GoogleClient) buildRequest(req schemas.GenerationRequest) ([]*genai.Content, *genai.GenerateContentConfig) {
	var system []string
	contents := make([]*genai.Content, 0, len(req.Messages))
	leading := true
	for _, m := range req.Messages {
		switch {
		case m.Role == schemas.RoleSystem && leading:
			system = append(system, m.Content)
		case m.Role == schemas.RoleAssistant:
			leading = false
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleModel))
		default:
			leading = false
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleUser))
		}
	}

	temperature := float32(req.Options.Temperature)
	if temperature == 0 {
		temperature = c.config.Temperature
	}
	genCfg := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(temperature),
	}
	if req.MaxTokens > 0 {
		genCfg.MaxOutputTokens = int32(req.MaxTokens)
	}
	if req.Options.ForceJSONFormat {
		genCfg.ResponseMIMEType = "application/json"
	}
	if len(system) > 0 {
		genCfg.SystemInstruction = genai.NewContentFromText(strings.Join(system, "\n\n"), genai.RoleUser)
	}
	return contents, genCfg
}

// Close is a no-op; the SDK holds no resources beyond its HTTP client.
func (c *GoogleClient) Close() error { return nil }
