package llmclient

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"github.com/xkilldash9x/autopilot-cli/api/schemas"
)

type fakeGenerator struct {
	model    string
	contents []*genai.Content
	cfg      *genai.GenerateContentConfig
	resp     *genai.GenerateContentResponse
	err      error
}

func (f *fakeGenerator) GenerateContent(ctx context.Context, model string, contents []*genai.Content, cfg *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	f.model, f.contents, f.cfg = model, contents, cfg
	return f.resp, f.err
}

func textResponse(text string, reason genai.FinishReason) *genai.GenerateContentResponse {
	var parts []*genai.Part
	if text != "" {
		parts = []*genai.Part{{Text: text}}
	}
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content:      &genai.Content{Role: genai.RoleModel, Parts: parts},
			FinishReason: reason,
		}},
		UsageMetadata: &genai.GenerateContentResponseUsageMetadata{
			PromptTokenCount:     12,
			CandidatesTokenCount: 3,
			TotalTokenCount:      15,
		},
	}
}

func setupGoogleClient(t *testing.T, gen *fakeGenerator) *GoogleClient {
	t.Helper()
	logger, _ := setupTestLogger(t)
	return &GoogleClient{client: gen, config: getValidLLMConfig(), logger: logger}
}

func TestNewGoogleClient(t *testing.T) {
	logger, _ := setupTestLogger(t)

	client, err := NewGoogleClient(context.Background(), getValidLLMConfig(), logger)
	require.NoError(t, err)
	assert.NotNil(t, client.client, "SDK client should be initialized")

	cfg := getValidLLMConfig()
	cfg.APIKey = ""
	_, err = NewGoogleClient(context.Background(), cfg, logger)
	assert.EqualError(t, err, "Gemini API Key is required")
}

func TestGoogleClient_BuildRequest(t *testing.T) {
	client := setupGoogleClient(t, &fakeGenerator{})
	req := schemas.GenerationRequest{
		Messages: []schemas.Message{
			{Role: schemas.RoleSystem, Content: "You are Bot"},
			{Role: schemas.RoleSystem, Content: "The current time is now"},
			{Role: schemas.RoleUser, Content: "Determine a command"},
			{Role: schemas.RoleAssistant, Content: "{}"},
			{Role: schemas.RoleSystem, Content: "Command returned: ok"},
		},
		MaxTokens: 500,
		Options:   schemas.GenerationOptions{ForceJSONFormat: true},
	}

	contents, cfg := client.buildRequest(req)

	require.NotNil(t, cfg.SystemInstruction)
	require.Len(t, cfg.SystemInstruction.Parts, 1)
	assert.Equal(t, "You are Bot\n\nThe current time is now", cfg.SystemInstruction.Parts[0].Text)
	assert.Equal(t, int32(500), cfg.MaxOutputTokens)
	assert.Equal(t, "application/json", cfg.ResponseMIMEType)
	require.NotNil(t, cfg.Temperature)
	assert.InDelta(t, 0.7, *cfg.Temperature, 1e-6, "falls back to configured temperature")

	require.Len(t, contents, 3)
	assert.Equal(t, genai.RoleUser, contents[0].Role)
	assert.Equal(t, genai.RoleModel, contents[1].Role)
	assert.Equal(t, genai.RoleUser, contents[2].Role, "later system messages travel as user turns")
	assert.Equal(t, "Command returned: ok", contents[2].Parts[0].Text)
}

func TestGoogleClient_Generate(t *testing.T) {
	t.Run("success uses request model", func(t *testing.T) {
		gen := &fakeGenerator{resp: textResponse(`{"thoughts":{}}`, genai.FinishReasonStop)}
		client := setupGoogleClient(t, gen)

		out, err := client.Generate(context.Background(), schemas.GenerationRequest{
			Messages: []schemas.Message{{Role: schemas.RoleUser, Content: "go"}},
			Model:    "override-model",
		})
		require.NoError(t, err)
		assert.Equal(t, `{"thoughts":{}}`, out)
		assert.Equal(t, "override-model", gen.model)
	})

	t.Run("default model", func(t *testing.T) {
		gen := &fakeGenerator{resp: textResponse("ok", genai.FinishReasonStop)}
		client := setupGoogleClient(t, gen)
		_, err := client.Generate(context.Background(), schemas.GenerationRequest{})
		require.NoError(t, err)
		assert.Equal(t, "test-model", gen.model)
	})

	tests := []struct {
		name    string
		gen     *fakeGenerator
		wantErr string
	}{
		{name: "transport error", gen: &fakeGenerator{err: errors.New("503 unavailable")}, wantErr: "gemini API error: 503 unavailable"},
		{name: "no candidates", gen: &fakeGenerator{resp: &genai.GenerateContentResponse{}}, wantErr: "no candidates"},
		{name: "safety block", gen: &fakeGenerator{resp: textResponse("", genai.FinishReasonSafety)}, wantErr: "blocked the request"},
		{name: "empty content", gen: &fakeGenerator{resp: textResponse("", genai.FinishReasonMaxTokens)}, wantErr: "empty content"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := setupGoogleClient(t, tt.gen)
			_, err := client.Generate(context.Background(), schemas.GenerationRequest{})
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
