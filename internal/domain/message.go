// Package domain contains core domain types for conversations and messages.
package domain

import (
	"time"
)

// Role identifies the author of a message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is a single entry in a conversation's history. Messages are
// immutable once appended; corrections happen by appending new messages.
type Message struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`

	// Model and Tokens are set only on assistant messages.
	Model  string `json:"model,omitempty"`
	Tokens int    `json:"tokens,omitempty"`

	// Error marks a fallback reply recorded after a failed inference call.
	Error bool `json:"error,omitempty"`
}
