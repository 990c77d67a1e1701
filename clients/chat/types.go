package chat

import (
	"context"
	"strings"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Message is one entry of the conversation shown in the widget.
type Message struct {
	ID          string   `json:"id"`
	Role        Role     `json:"role"`
	Content     string   `json:"content"`
	Suggestions []string `json:"suggestions,omitempty"`
}

// Request is what the widget sends for every attempt. Lang and SessionID travel in the body
// so the backend can localize replies and group a conversation.
type Request struct {
	SessionID string    `json:"sessionId"`
	Lang      string    `json:"lang"`
	Messages  []Message `json:"messages"`
}

// Completion is the outcome of a successful stream.
type Completion struct {
	Text             string
	Suggestions      []string
	FinishReason     string
	PromptTokens     int
	CompletionTokens int
}

// Client streams one assistant reply. onDelta receives text as it arrives and may be nil.
// Failures are returned as errors the error_classifier package understands.
type Client interface {
	StreamChat(ctx context.Context, req Request, onDelta func(delta string)) (*Completion, error)
}

// UI message stream chunk types.
const (
	ChunkStart           = "start"
	ChunkTextStart       = "text-start"
	ChunkTextDelta       = "text-delta"
	ChunkTextEnd         = "text-end"
	ChunkFinish          = "finish"
	ChunkError           = "error"
	ChunkDataSuggestions = "data-suggestions"
	StreamDone           = "[DONE]"
)

// LastUserMessage returns the most recent user message text, or "" when there is none.
func LastUserMessage(messages []Message) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == RoleUser {
			return messages[i].Content
		}
	}
	return ""
}

// Transcript joins message contents, used for token estimates on transports without usage data.
func Transcript(messages []Message) string {
	var b strings.Builder
	for _, m := range messages {
		b.WriteString(string(m.Role))
		b.WriteString(": ")
		b.WriteString(m.Content)
		b.WriteString("\n")
	}
	return b.String()
}
