package schemas

import "time"

// Role identifies the author of a conversation message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// MessageKind tags what a message represents in the cycle.
type MessageKind string

const (
	KindNone         MessageKind = ""
	KindAIResponse   MessageKind = "ai_response"
	KindActionResult MessageKind = "action_result"
	KindPluginFault  MessageKind = "plugin_fault"
)

// Message is one entry of the conversation sent to the model.
type Message struct {
	Role    Role        `json:"role"`
	Content string      `json:"content"`
	Kind    MessageKind `json:"kind,omitempty"`
}

// AuditChannel names one of the per-cycle audit streams.
type AuditChannel string

const (
	ChannelFullHistory        AuditChannel = "full_message_history"
	ChannelNextAction         AuditChannel = "next_action"
	ChannelUserInput          AuditChannel = "user_input"
	ChannelSelfFeedbackPrompt AuditChannel = "self_feedback_prompt"
	ChannelSelfFeedback       AuditChannel = "self_feedback"
)

// AuditRecord is a single payload written to an audit channel.
type AuditRecord struct {
	RunID      string       `json:"run_id"`
	AIName     string       `json:"ai_name"`
	RunStarted time.Time    `json:"run_started"`
	Cycle      int          `json:"cycle"`
	Channel    AuditChannel `json:"channel"`
	Payload    interface{}  `json:"payload"`
	RecordedAt time.Time    `json:"recorded_at"`
}
