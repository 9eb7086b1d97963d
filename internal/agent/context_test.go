package agent

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/autopilot-cli/api/schemas"
	"github.com/xkilldash9x/autopilot-cli/internal/history"
)

func fixedBuilder(window, maxTokens int) *ContextBuilder {
	b := NewContextBuilder(wordCounter{}, window, maxTokens)
	b.now = func() time.Time { return time.Date(2026, 5, 1, 9, 30, 0, 0, time.UTC) }
	return b
}

func TestContextBuilder_Layout(t *testing.T) {
	h := history.New(0)
	h.Add(schemas.RoleAssistant, "first reply", schemas.KindAIResponse)
	h.Add(schemas.RoleSystem, "first result", schemas.KindActionResult)

	msgs := fixedBuilder(1000, 100).Build("system prompt", "pick a command", h)
	require.Len(t, msgs, 6)

	assert.Equal(t, schemas.Message{Role: schemas.RoleSystem, Content: "system prompt"}, msgs[0])
	assert.Equal(t, "The current time and date is Fri May  1 09:30:00 2026", msgs[1].Content)
	assert.Equal(t, h.SummaryMessage(), msgs[2])
	assert.Equal(t, "first reply", msgs[3].Content)
	assert.Equal(t, "first result", msgs[4].Content)
	assert.Equal(t, schemas.Message{Role: schemas.RoleUser, Content: "pick a command"}, msgs[5])
	assert.Zero(t, h.Summarized())
}

func TestContextBuilder_FoldsWhatDoesNotFit(t *testing.T) {
	h := history.New(0)
	for i := 0; i < 10; i++ {
		h.Add(schemas.RoleSystem, fmt.Sprintf("result %d %s", i, strings.Repeat("x ", 20)), schemas.KindActionResult)
	}

	// 150 tokens of room, 42 of them fixed; each message costs 26.
	b := fixedBuilder(200, 50)
	msgs := b.Build("system prompt", "go", h)

	assert.Equal(t, 6, h.Summarized())
	kept := msgs[3 : len(msgs)-1]
	require.Len(t, kept, 4)
	assert.Equal(t, h.Unsummarized(), kept)
	assert.Contains(t, kept[len(kept)-1].Content, "result 9")
	assert.Contains(t, kept[0].Content, "result 6")
	assert.Equal(t, h.SummaryMessage(), msgs[2])
	assert.Contains(t, msgs[2].Content, "result 5", "folded messages reach the summary")
}

func TestContextBuilder_NonPositiveWindowKeepsEverything(t *testing.T) {
	h := history.New(0)
	for i := 0; i < 5; i++ {
		h.Add(schemas.RoleSystem, strings.Repeat("word ", 100), schemas.KindActionResult)
	}
	msgs := fixedBuilder(0, 0).Build("sys", "go", h)
	assert.Len(t, msgs, 5+4)
	assert.Zero(t, h.Summarized())
}
