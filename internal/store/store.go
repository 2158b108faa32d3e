// Package store owns conversation identity, bounded history, and the
// send-message workflow. It keeps everything in process memory; inference
// is delegated to the llm client through the Completer interface.
package store

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"chatrelay/internal/domain"
	"chatrelay/internal/llm"
)

const (
	// Apology is the stable user-facing reply recorded when inference
	// fails. The raw error never reaches the visible history.
	Apology = "I'm having trouble reaching the model right now. Please try again in a moment."

	defaultListLimit = 20
)

var (
	// ErrNotFound marks a reference to an absent conversation.
	ErrNotFound = errors.New("conversation not found")

	// ErrEmptyMessage marks an empty or whitespace-only user message.
	ErrEmptyMessage = errors.New("message is empty")
)

// Completer produces assistant replies. *llm.Client satisfies it; tests
// substitute fakes.
type Completer interface {
	Complete(ctx context.Context, req llm.Request) (*llm.Result, error)
}

// Config holds store configuration. Zero-value fields fall back to the
// documented defaults.
type Config struct {
	MaxMessages  int           // storage cap per conversation, default 200
	MaxHistory   int           // prompt window, default 10
	Retention    time.Duration // idle lifetime before the sweep, default 24h
	SystemPrompt string
	Temperature  float64
	MaxTokens    int
}

func (c *Config) applyDefaults() {
	if c.MaxMessages <= 0 {
		c.MaxMessages = 200
	}
	if c.MaxHistory <= 0 {
		c.MaxHistory = 10
	}
	if c.Retention <= 0 {
		c.Retention = 24 * time.Hour
	}
	if c.SystemPrompt == "" {
		c.SystemPrompt = "You are a helpful assistant. Answer clearly and concisely."
	}
	if c.Temperature <= 0 {
		c.Temperature = 0.7
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = 1024
	}
}

// conversation pairs the domain object with two locks. sendMu serializes
// the send workflow per conversation, so appends from concurrent sends to
// one id never interleave while distinct ids proceed in parallel. mu
// guards data with short-lived critical sections only; reads and sweeps
// never wait out an in-flight inference call.
type conversation struct {
	sendMu sync.Mutex
	mu     sync.Mutex
	data   domain.Conversation
}

// Store is the single per-process conversation registry. Safe for
// concurrent use.
type Store struct {
	mu            sync.RWMutex
	conversations map[string]*conversation

	completer Completer
	cfg       Config
	logger    *slog.Logger
}

// New creates an empty store.
func New(completer Completer, cfg Config, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	cfg.applyDefaults()
	return &Store{
		conversations: make(map[string]*conversation),
		completer:     completer,
		cfg:           cfg,
		logger:        logger,
	}
}

// SamplingOptions override the store defaults for a single send.
type SamplingOptions struct {
	Temperature float64 `json:"temperature,omitempty"`
	MaxTokens   int     `json:"max_tokens,omitempty"`
}

// SendResult is the outcome of a send-message workflow. Failure carries
// the classification for logging; the assistant message already reflects
// it as a recorded fallback reply.
type SendResult struct {
	UserMessage      domain.Message
	AssistantMessage domain.Message
	MessageCount     int
	Failure          error
}

// Summary is a conversation without its message history, for listings.
type Summary struct {
	ID           string    `json:"id"`
	Title        string    `json:"title,omitempty"`
	MessageCount int       `json:"message_count"`
	CreatedAt    time.Time `json:"created_at"`
	LastActiveAt time.Time `json:"last_active_at"`
}

// Create allocates a new conversation with an empty history. It always
// succeeds and returns a snapshot.
func (s *Store) Create(title string, metadata map[string]string) *domain.Conversation {
	now := time.Now()
	conv := &conversation{
		data: domain.Conversation{
			ID:           uuid.New().String(),
			Title:        title,
			Messages:     []domain.Message{},
			Metadata:     metadata,
			CreatedAt:    now,
			LastActiveAt: now,
		},
	}

	s.mu.Lock()
	s.conversations[conv.data.ID] = conv
	s.mu.Unlock()

	s.logger.Info("conversation created", "conversation_id", conv.data.ID)
	return conv.data.Clone()
}

// Get returns a snapshot of the conversation or ErrNotFound.
func (s *Store) Get(id string) (*domain.Conversation, error) {
	conv, err := s.lookup(id)
	if err != nil {
		return nil, err
	}
	conv.mu.Lock()
	defer conv.mu.Unlock()
	return conv.data.Clone(), nil
}

// List returns conversation summaries ordered most-recent-activity-first,
// bounded by limit (default 20), plus the total conversation count.
func (s *Store) List(limit int) ([]Summary, int) {
	if limit <= 0 {
		limit = defaultListLimit
	}

	s.mu.RLock()
	all := make([]*conversation, 0, len(s.conversations))
	for _, conv := range s.conversations {
		all = append(all, conv)
	}
	s.mu.RUnlock()

	summaries := make([]Summary, 0, len(all))
	for _, conv := range all {
		conv.mu.Lock()
		summaries = append(summaries, Summary{
			ID:           conv.data.ID,
			Title:        conv.data.Title,
			MessageCount: len(conv.data.Messages),
			CreatedAt:    conv.data.CreatedAt,
			LastActiveAt: conv.data.LastActiveAt,
		})
		conv.mu.Unlock()
	}

	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].LastActiveAt.After(summaries[j].LastActiveAt)
	})

	total := len(summaries)
	if len(summaries) > limit {
		summaries = summaries[:limit]
	}
	return summaries, total
}

// Delete removes the conversation. Deleting an absent id returns
// ErrNotFound; from the caller's perspective deletion is idempotent.
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.conversations[id]; !ok {
		return ErrNotFound
	}
	delete(s.conversations, id)
	s.logger.Info("conversation deleted", "conversation_id", id)
	return nil
}

// SendMessage runs the central workflow: append the user turn, assemble
// the bounded prompt, call the sidecar, and record the outcome. A failed
// inference call still appends an error-flagged fallback reply; the
// history always reflects that an attempt was made.
func (s *Store) SendMessage(ctx context.Context, id, text string, opts *SamplingOptions) (*SendResult, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyMessage
	}

	conv, err := s.lookup(id)
	if err != nil {
		return nil, err
	}

	// Held across the inference call: two concurrent sends to the same
	// conversation must not interleave their appends. Data reads take
	// conv.mu instead, so listing never stalls behind a slow sidecar.
	conv.sendMu.Lock()
	defer conv.sendMu.Unlock()

	userMsg := domain.Message{
		ID:        uuid.New().String(),
		Role:      domain.RoleUser,
		Content:   text,
		CreatedAt: time.Now(),
	}

	conv.mu.Lock()
	req := s.buildRequest(&conv.data, userMsg, opts)
	conv.data.Append(userMsg, s.cfg.MaxMessages)
	conv.mu.Unlock()

	// A caller that disconnects does not abort the exchange; the
	// per-attempt timeout inside the client still bounds it.
	result, inferErr := s.completer.Complete(context.WithoutCancel(ctx), req)

	assistantMsg := domain.Message{
		ID:        uuid.New().String(),
		Role:      domain.RoleAssistant,
		CreatedAt: time.Now(),
	}
	if inferErr != nil {
		assistantMsg.Content = Apology
		assistantMsg.Error = true
		s.logger.Warn("send degraded to fallback reply",
			"conversation_id", id,
			"error", inferErr)
	} else {
		assistantMsg.Content = result.Content
		assistantMsg.Model = result.Model
		assistantMsg.Tokens = result.Tokens
	}

	conv.mu.Lock()
	conv.data.Append(assistantMsg, s.cfg.MaxMessages)
	conv.data.LastActiveAt = time.Now()
	count := len(conv.data.Messages)
	conv.mu.Unlock()

	return &SendResult{
		UserMessage:      userMsg,
		AssistantMessage: assistantMsg,
		MessageCount:     count,
		Failure:          inferErr,
	}, nil
}

// buildRequest assembles the bounded prompt: system preamble, the last
// MaxHistory stored messages, then the new user turn. Never more than
// MaxHistory+2 entries regardless of stored length. Called before the
// new turn is appended, under the conversation's data lock.
func (s *Store) buildRequest(conv *domain.Conversation, userMsg domain.Message, opts *SamplingOptions) llm.Request {
	window := conv.Window(s.cfg.MaxHistory)

	messages := make([]llm.Message, 0, len(window)+2)
	messages = append(messages, llm.Message{Role: string(domain.RoleSystem), Content: s.cfg.SystemPrompt})
	for _, m := range window {
		messages = append(messages, llm.Message{Role: string(m.Role), Content: m.Content})
	}
	messages = append(messages, llm.Message{Role: string(userMsg.Role), Content: userMsg.Content})

	req := llm.Request{
		Messages:    messages,
		Temperature: s.cfg.Temperature,
		MaxTokens:   s.cfg.MaxTokens,
	}
	if opts != nil {
		if opts.Temperature > 0 {
			req.Temperature = opts.Temperature
		}
		if opts.MaxTokens > 0 {
			req.MaxTokens = opts.MaxTokens
		}
	}
	return req
}

func (s *Store) lookup(id string) (*conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	conv, ok := s.conversations[id]
	if !ok {
		return nil, ErrNotFound
	}
	return conv, nil
}
