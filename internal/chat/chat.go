// Package chat holds the message vocabulary shared by the session store,
// the tag utilities and the pipelines.
package chat

// Roles of conversation messages.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// Message is a single conversation turn.
type Message struct {
	Role      string `json:"role"`
	Content   string `json:"content"`
	Timestamp string `json:"timestamp,omitempty"`
}

// Request is the outbound LLM payload the retrieval pipeline rewrites.
// Prompt is the new user turn, SystemPrompt the request-level instruction,
// Contexts the prior conversation history supplied by the host.
type Request struct {
	Prompt       string
	SystemPrompt string
	Contexts     []Message
}
