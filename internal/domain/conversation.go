package domain

import (
	"time"
)

// Conversation is a named, ordered sequence of messages representing one
// chat thread. Insertion order is chronological order.
type Conversation struct {
	ID           string            `json:"id"`
	Title        string            `json:"title,omitempty"`
	Messages     []Message         `json:"messages"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
	LastActiveAt time.Time         `json:"last_active_at"`
}

// Append adds a message to the history, evicting the oldest messages once
// the count exceeds maxMessages. Eviction is a sliding window, not an
// error. A maxMessages of zero or below disables the cap.
func (c *Conversation) Append(msg Message, maxMessages int) {
	c.Messages = append(c.Messages, msg)
	if maxMessages > 0 && len(c.Messages) > maxMessages {
		overflow := len(c.Messages) - maxMessages
		c.Messages = append(c.Messages[:0], c.Messages[overflow:]...)
	}
}

// Window returns the last n messages in order. It returns the backing
// slice's tail; callers must not mutate the result.
func (c *Conversation) Window(n int) []Message {
	if n <= 0 || n >= len(c.Messages) {
		return c.Messages
	}
	return c.Messages[len(c.Messages)-n:]
}

// Clone returns a deep copy safe to hand outside the store.
func (c *Conversation) Clone() *Conversation {
	cp := *c
	cp.Messages = make([]Message, len(c.Messages))
	copy(cp.Messages, c.Messages)
	if c.Metadata != nil {
		cp.Metadata = make(map[string]string, len(c.Metadata))
		for k, v := range c.Metadata {
			cp.Metadata[k] = v
		}
	}
	return &cp
}

// IdleSince reports whether the conversation has seen no activity since
// the given cutoff.
func (c *Conversation) IdleSince(cutoff time.Time) bool {
	return c.LastActiveAt.Before(cutoff)
}
