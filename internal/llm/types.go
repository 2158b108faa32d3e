package llm

import (
	"time"
)

// Message is a single role/content pair sent to the sidecar.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request is a formatted conversation ready for the sidecar's
// chat-completion endpoint: system prompt first, then the trimmed
// history, then the new user turn.
type Request struct {
	Messages    []Message
	Temperature float64
	MaxTokens   int
}

// Result is a successful completion. Empty marks a response that carried
// no completion choices; Content then holds a fallback notice rather
// than model output.
type Result struct {
	Content string
	Model   string
	Tokens  int
	Latency time.Duration
	Empty   bool
}

// Health is the outcome of a sidecar probe.
type Health struct {
	Healthy bool
	Models  []string
}

// Wire types for the sidecar's chat-completion surface. The sidecar
// speaks the OpenAI-compatible request shape but reports Ollama's native
// eval_count alongside the usual usage block.

type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature,omitempty"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Stream      bool      `json:"stream"`
}

type chatResponse struct {
	Model     string       `json:"model"`
	Choices   []chatChoice `json:"choices"`
	EvalCount int          `json:"eval_count"`
	Usage     chatUsage    `json:"usage"`
}

type chatChoice struct {
	Message Message `json:"message"`
}

type chatUsage struct {
	CompletionTokens int `json:"completion_tokens"`
}

type modelList struct {
	Data []modelEntry `json:"data"`
}

type modelEntry struct {
	ID string `json:"id"`
}
