package bridge

import (
	"strconv"
	"strings"

	"github.com/kazz187/chatbridge/internal/messaging"
)

// Lifecycle event types pushed by agent hooks or synthesized by the fallback
// poller. Unrecognized types are accepted as no-ops.
const (
	EventSessionStart        = "session.start"
	EventThinkingStart       = "thinking.start"
	EventThinkingStop        = "thinking.stop"
	EventToolActivity        = "tool.activity"
	EventSessionIdle         = "session.idle"
	EventSessionError        = "session.error"
	EventSessionNotification = "session.notification"
	EventSessionEnd          = "session.end"
)

// Notification sub-types and their leading icons.
const (
	NotificationPermissionPrompt = "permission_prompt"
	NotificationIdlePrompt       = "idle_prompt"
	NotificationAuthSuccess      = "auth_success"
	NotificationElicitation      = "elicitation_dialog"
)

// Usage is the token and cost summary an agent reports at turn end.
type Usage struct {
	InputTokens  int     `json:"inputTokens"`
	OutputTokens int     `json:"outputTokens"`
	TotalCostUSD float64 `json:"totalCostUsd"`
}

// Event is one agent lifecycle event as received over the hook transport.
type Event struct {
	ProjectName      string               `json:"projectName"`
	Type             string               `json:"type"`
	AgentType        string               `json:"agentType,omitempty"`
	InstanceID       string               `json:"instanceId,omitempty"`
	Text             string               `json:"text,omitempty"`
	Message          string               `json:"message,omitempty"`
	Thinking         string               `json:"thinking,omitempty"`
	IntermediateText string               `json:"intermediateText,omitempty"`
	PromptText       string               `json:"promptText,omitempty"`
	PromptQuestions  []messaging.Question `json:"promptQuestions,omitempty"`
	Usage            *Usage               `json:"usage,omitempty"`
	Source           string               `json:"source,omitempty"`
	Reason           string               `json:"reason,omitempty"`
	Model            string               `json:"model,omitempty"`
	NotificationType string               `json:"notificationType,omitempty"`
}

// Instance derives the tracking key component: explicit instance id when
// present, agent type otherwise.
func (e *Event) Instance() string {
	if e.InstanceID != "" {
		return e.InstanceID
	}
	return e.AgentType
}

// body returns the free-text payload, Text taking precedence over Message.
func (e *Event) body() string {
	if e.Text != "" {
		return e.Text
	}
	return e.Message
}

// usageHeader renders the finalize summary line, with total tokens
// thousands-separated and cost as $x.xx. Empty when no usage was reported.
func usageHeader(u *Usage) string {
	if u == nil {
		return ""
	}
	total := u.InputTokens + u.OutputTokens
	return "✅ Done (" + formatThousands(total) + " tokens, $" + strconv.FormatFloat(u.TotalCostUSD, 'f', 2, 64) + ")"
}

func formatThousands(n int) string {
	s := strconv.Itoa(n)
	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}
	var b strings.Builder
	lead := len(s) % 3
	if lead > 0 {
		b.WriteString(s[:lead])
	}
	for i := lead; i < len(s); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(s[i : i+3])
	}
	if neg {
		return "-" + b.String()
	}
	return b.String()
}

// wellFormedQuestions filters to items carrying a question and at least one
// option. Interactive delivery happens only when every entry survives.
func wellFormedQuestions(qs []messaging.Question) []messaging.Question {
	if len(qs) == 0 {
		return nil
	}
	for _, q := range qs {
		if strings.TrimSpace(q.Question) == "" || len(q.Options) == 0 {
			return nil
		}
	}
	return qs
}
