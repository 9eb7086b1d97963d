package schemas

import (
	"context"
)

// -- LLM Schemas & Interface --

// ModelTier allows for selecting a large language model based on a preference
// for speed versus advanced capabilities.
type ModelTier string

const (
	TierFast     ModelTier = "fast"     // The model that drives every cycle.
	TierPowerful ModelTier = "powerful" // Used for reflective sub-calls such as self-feedback.
)

// GenerationOptions provides detailed parameters to control the text generation
// process of the LLM.
type GenerationOptions struct {
	Temperature     float64 `json:"temperature"`
	ForceJSONFormat bool    `json:"force_json_format"`
}

// GenerationRequest is a complete conversation handed to the model in one call.
// Model overrides the tier's default model when set.
type GenerationRequest struct {
	Messages  []Message         `json:"messages"`
	Tier      ModelTier         `json:"tier"`
	Model     string            `json:"model,omitempty"`
	MaxTokens int               `json:"max_tokens"`
	Options   GenerationOptions `json:"options"`
}

// LLMClient defines a standard interface for interacting with a Large Language
// Model, abstracting the specifics of the underlying provider. A call is a single
// attempt; failures are returned to the caller without retry.
type LLMClient interface {
	Generate(ctx context.Context, req GenerationRequest) (string, error)
	// Close cleans up any resources held by the client.
	Close() error
}

// TokenCounter measures text in model tokens.
type TokenCounter interface {
	Count(text string) int
}

// -- Audit Interface --

// AuditSink receives per-cycle audit records. Implementations must tolerate
// being called from the loop; the caller treats errors as non-fatal.
type AuditSink interface {
	Append(ctx context.Context, record AuditRecord) error
	Close() error
}
