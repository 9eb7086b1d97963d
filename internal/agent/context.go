// internal/agent/context.go
package agent

import (
	"time"

	"github.com/xkilldash9x/autopilot-cli/api/schemas"
	"github.com/xkilldash9x/autopilot-cli/internal/history"
)

// messageOverhead approximates the per-message framing tokens of chat formats.
const messageOverhead = 4

// ContextBuilder assembles the conversation sent to the model each cycle.
type ContextBuilder struct {
	counter schemas.TokenCounter
	limit   int
	now     func() time.Time
}

// NewContextBuilder returns a builder for a model with the given context window
// that reserves maxTokens for the reply.
func NewContextBuilder(counter schemas.TokenCounter, contextWindow, maxTokens int) *ContextBuilder {
	return &ContextBuilder{counter: counter, limit: contextWindow - maxTokens, now: time.Now}
}

func (b *ContextBuilder) cost(m schemas.Message) int {
	return b.counter.Count(m.Content) + messageOverhead
}

// Build returns system prompt, current time, summary, the most recent history
// that fits, then the triggering prompt. Unsummarized messages that do not fit
// are folded into the history's summary.
func (b *ContextBuilder) Build(systemPrompt, triggeringPrompt string, h *history.History) []schemas.Message {
	system := schemas.Message{Role: schemas.RoleSystem, Content: systemPrompt}
	clock := schemas.Message{Role: schemas.RoleSystem, Content: "The current time and date is " + b.now().Format(time.ANSIC)}
	trigger := schemas.Message{Role: schemas.RoleUser, Content: triggeringPrompt}

	pending := h.Unsummarized()
	if b.limit > 0 {
		room := b.limit - b.cost(system) - b.cost(clock) - b.cost(trigger) - b.cost(h.SummaryMessage())
		keep := 0
		for i := len(pending) - 1; i >= 0; i-- {
			c := b.cost(pending[i])
			if c > room {
				break
			}
			room -= c
			keep++
		}
		if drop := len(pending) - keep; drop > 0 {
			h.Fold(drop)
			pending = h.Unsummarized()
		}
	}

	msgs := make([]schemas.Message, 0, len(pending)+4)
	msgs = append(msgs, system, clock, h.SummaryMessage())
	msgs = append(msgs, pending...)
	return append(msgs, trigger)
}
