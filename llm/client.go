// Package llm adapts a chat-completion service for the research pipeline:
// plain completions for interview turns and schema-constrained structured
// output for analysts, recommendations, and search queries.
package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// Role identifies the author of a chat message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one turn of a conversation. Name distinguishes speakers when
// several personas share the same role, as in analyst interviews.
type Message struct {
	Role    Role   `json:"role"`
	Name    string `json:"name,omitempty"`
	Content string `json:"content"`
}

// CompletionRequest asks for the next assistant message.
type CompletionRequest struct {
	Model       string    `json:"model,omitempty"`
	Messages    []Message `json:"messages"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Temperature float32   `json:"temperature,omitempty"`
	// JSONOnly constrains the completion to a single JSON object; used by
	// Structured.
	JSONOnly bool `json:"-"`
}

// Completion is the model's reply.
type Completion struct {
	Content      string `json:"content"`
	Model        string `json:"model,omitempty"`
	InputTokens  int    `json:"input_tokens,omitempty"`
	OutputTokens int    `json:"output_tokens,omitempty"`
}

// Client is the completion-service surface the pipeline depends on.
type Client interface {
	Complete(ctx context.Context, req CompletionRequest) (*Completion, error)
}

// Structured runs a completion constrained to JSON and decodes it into T.
// A reply that does not decode is an error; callers decide whether to
// re-prompt or fail.
func Structured[T any](ctx context.Context, c Client, req CompletionRequest) (T, error) {
	var out T
	req.JSONOnly = true
	comp, err := c.Complete(ctx, req)
	if err != nil {
		return out, err
	}
	raw := extractJSON(comp.Content)
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return out, fmt.Errorf("structured output did not decode: %w (reply: %.200s)", err, comp.Content)
	}
	return out, nil
}

// extractJSON strips markdown code fences some models wrap JSON replies in.
func extractJSON(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		if i := strings.LastIndex(s, "```"); i >= 0 {
			s = s[:i]
		}
		s = strings.TrimSpace(s)
	}
	return s
}
