package llmclient

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/autopilot-cli/api/schemas"
)

func TestNewLLMRouter_Validation(t *testing.T) {
	logger, _ := setupTestLogger(t)

	_, err := NewLLMRouter(logger, nil, "fast", "pro", 0)
	assert.ErrorContains(t, err, "underlying LLM client")

	_, err = NewLLMRouter(logger, new(MockLLMClient), "", "pro", 0)
	assert.ErrorContains(t, err, "fast tier")

	r, err := NewLLMRouter(logger, new(MockLLMClient), "fast", "", 0)
	require.NoError(t, err)
	assert.Equal(t, "fast", r.models[schemas.TierPowerful], "powerful tier falls back to the fast model")
	assert.Nil(t, r.limiter)
}

func TestLLMRouter_ResolvesTierModel(t *testing.T) {
	logger, _ := setupTestLogger(t)
	base := new(MockLLMClient)
	r, err := NewLLMRouter(logger, base, "fast-model", "pro-model", 0)
	require.NoError(t, err)
	ctx := context.Background()

	base.On("Generate", ctx, mock.MatchedBy(func(req schemas.GenerationRequest) bool {
		return req.Model == "fast-model" && req.Tier == ""
	})).Return("fast", nil).Once()
	base.On("Generate", ctx, mock.MatchedBy(func(req schemas.GenerationRequest) bool {
		return req.Model == "pro-model"
	})).Return("pro", nil).Once()
	base.On("Generate", ctx, mock.MatchedBy(func(req schemas.GenerationRequest) bool {
		return req.Model == "explicit"
	})).Return("explicit", nil).Once()

	out, err := r.Generate(ctx, schemas.GenerationRequest{})
	require.NoError(t, err)
	assert.Equal(t, "fast", out)

	out, err = r.Generate(ctx, schemas.GenerationRequest{Tier: schemas.TierPowerful})
	require.NoError(t, err)
	assert.Equal(t, "pro", out)

	out, err = r.Generate(ctx, schemas.GenerationRequest{Tier: schemas.TierPowerful, Model: "explicit"})
	require.NoError(t, err)
	assert.Equal(t, "explicit", out)

	_, err = r.Generate(ctx, schemas.GenerationRequest{Tier: "bogus"})
	assert.ErrorContains(t, err, "no model configured for tier: bogus")

	base.AssertExpectations(t)
}

func TestLLMRouter_PropagatesErrors(t *testing.T) {
	logger, _ := setupTestLogger(t)
	base := new(MockLLMClient)
	boom := errors.New("provider down")
	base.On("Generate", mock.Anything, mock.Anything).Return("", boom)
	base.On("Close").Return(nil)

	r, err := NewLLMRouter(logger, base, "m", "m", 0)
	require.NoError(t, err)
	_, err = r.Generate(context.Background(), schemas.GenerationRequest{})
	assert.ErrorIs(t, err, boom)
	assert.NoError(t, r.Close())
	base.AssertCalled(t, "Close")
}

func TestLLMRouter_RateLimitHonorsContext(t *testing.T) {
	logger, _ := setupTestLogger(t)
	base := new(MockLLMClient)
	base.On("Generate", mock.Anything, mock.Anything).Return("ok", nil)

	// One request per minute: the burst token is spent by the first call.
	r, err := NewLLMRouter(logger, base, "m", "m", 1)
	require.NoError(t, err)

	_, err = r.Generate(context.Background(), schemas.GenerationRequest{})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = r.Generate(ctx, schemas.GenerationRequest{})
	assert.ErrorContains(t, err, "rate limiter wait aborted")
	base.AssertNumberOfCalls(t, "Generate", 1)
}
