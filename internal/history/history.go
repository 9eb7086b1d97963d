// File: internal/history/history.go
package history

import (
	"fmt"
	"strings"

	"github.com/xkilldash9x/autopilot-cli/api/schemas"
)

const (
	summaryPrefix  = "This reminds you of these events from your past:"
	initialSummary = "I was created"
	// Each folded message contributes at most this many characters to the summary.
	foldedLineMax = 240
)

// History is the ordered, append-only conversation log of one agent run.
// Messages that no longer fit the context window are folded into a bounded
// running summary; they stay in the log.
//
// History is not safe for concurrent use. The cycle controller is its only writer.
type History struct {
	messages   []schemas.Message
	summarized int
	summary    []string
	maxChars   int
}

// New returns an empty history whose summary is capped at maxChars characters.
// A non-positive maxChars disables the cap.
func New(maxChars int) *History {
	return &History{maxChars: maxChars}
}

// Add appends a message built from its parts.
func (h *History) Add(role schemas.Role, content string, kind schemas.MessageKind) {
	h.Append(schemas.Message{Role: role, Content: content, Kind: kind})
}

// Append adds a message to the end of the log.
func (h *History) Append(msg schemas.Message) {
	h.messages = append(h.messages, msg)
}

// Len reports the number of messages in the log.
func (h *History) Len() int { return len(h.messages) }

// Messages returns a copy of the full log in insertion order.
func (h *History) Messages() []schemas.Message {
	out := make([]schemas.Message, len(h.messages))
	copy(out, h.messages)
	return out
}

// Unsummarized returns a copy of the messages not yet folded into the summary.
func (h *History) Unsummarized() []schemas.Message {
	out := make([]schemas.Message, len(h.messages)-h.summarized)
	copy(out, h.messages[h.summarized:])
	return out
}

// Summarized reports how many leading messages have been folded.
func (h *History) Summarized() int { return h.summarized }

// Fold moves the next n unsummarized messages into the running summary.
// n is clamped to the number of messages available.
func (h *History) Fold(n int) {
	if n <= 0 {
		return
	}
	end := h.summarized + n
	if end > len(h.messages) {
		end = len(h.messages)
	}
	for _, msg := range h.messages[h.summarized:end] {
		h.summary = append(h.summary, foldLine(msg))
	}
	h.summarized = end
	h.trimSummary()
}

// Summary returns the running summary text without its prefix.
func (h *History) Summary() string {
	if len(h.summary) == 0 {
		return initialSummary
	}
	return strings.Join(h.summary, "\n")
}

// SummaryMessage renders the running summary as a system message for the model.
func (h *History) SummaryMessage() schemas.Message {
	return schemas.Message{
		Role:    schemas.RoleSystem,
		Content: fmt.Sprintf("%s\n%s", summaryPrefix, h.Summary()),
	}
}

// trimSummary drops the oldest folded lines until the summary fits maxChars.
// The newest line is always kept, clipped if necessary.
func (h *History) trimSummary() {
	if h.maxChars <= 0 {
		return
	}
	total := 0
	start := len(h.summary)
	for i := len(h.summary) - 1; i >= 0; i-- {
		cost := len(h.summary[i]) + 1
		if total+cost > h.maxChars && i != len(h.summary)-1 {
			break
		}
		total += cost
		start = i
	}
	h.summary = h.summary[start:]
	if last := len(h.summary) - 1; last == 0 && len(h.summary[0]) > h.maxChars {
		h.summary[0] = clip(h.summary[0], h.maxChars)
	}
}

func foldLine(msg schemas.Message) string {
	label := string(msg.Role)
	if msg.Kind != schemas.KindNone {
		label = fmt.Sprintf("%s/%s", msg.Role, msg.Kind)
	}
	content := strings.Join(strings.Fields(msg.Content), " ")
	return fmt.Sprintf("- [%s] %s", label, clip(content, foldedLineMax))
}

// clip shortens s to at most max bytes on a rune boundary, marking the cut.
func clip(s string, max int) string {
	if len(s) <= max {
		return s
	}
	const marker = "..."
	if max <= len(marker) {
		return s[:max]
	}
	cut := max - len(marker)
	for cut > 0 && !isRuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + marker
}

func isRuneStart(b byte) bool { return b&0xC0 != 0x80 }
