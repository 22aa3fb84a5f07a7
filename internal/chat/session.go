// Package chat keeps a conversation with the remote SEO assistant.
package chat

import (
	"context"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/leadgen-cli/pkg/leadsapi"
)

const (
	// Greeting opens every conversation.
	Greeting = "Hi! I'm Steve, your SEO Expert. Need help? Just ask!"
	// Fallback is recorded as the assistant reply when a request fails.
	Fallback = "Sorry, I encountered an error. Please try again."
)

// Role is the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one turn of the conversation.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Asker sends one chat message.
type Asker interface {
	Ask(ctx context.Context, req leadsapi.ChatRequest) (*leadsapi.ChatResponse, error)
}

// Session is one conversation. The server keys its context by session id.
type Session struct {
	mu      sync.Mutex
	id      string
	api     Asker
	history []Message
}

// Option configures a Session.
type Option func(*Session)

// WithID resumes a conversation under an existing session id.
func WithID(id string) Option {
	return func(s *Session) {
		if id != "" {
			s.id = id
		}
	}
}

// NewSession starts a conversation with a random session id.
func NewSession(api Asker, opts ...Option) *Session {
	s := &Session{
		id:      uuid.New().String(),
		api:     api,
		history: []Message{{Role: RoleAssistant, Content: Greeting}},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ID returns the session id.
func (s *Session) ID() string {
	return s.id
}

// History returns a copy of the conversation so far.
func (s *Session) History() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Message, len(s.history))
	copy(out, s.history)
	return out
}

// Ask sends msg and returns the assistant's answer. A blank message is
// ignored. On failure the fallback reply is recorded and returned along
// with the error.
func (s *Session) Ask(ctx context.Context, msg string) (string, error) {
	if strings.TrimSpace(msg) == "" {
		return "", nil
	}
	s.append(RoleUser, msg)

	resp, err := s.api.Ask(ctx, leadsapi.ChatRequest{SessionID: s.id, Message: msg})
	if err != nil {
		zap.L().Warn("chat: ask failed", zap.String("session_id", s.id), zap.Error(err))
		s.append(RoleAssistant, Fallback)
		return Fallback, eris.Wrap(err, "chat: ask")
	}

	s.append(RoleAssistant, resp.Answer)
	return resp.Answer, nil
}

func (s *Session) append(role Role, content string) {
	s.mu.Lock()
	s.history = append(s.history, Message{Role: role, Content: content})
	s.mu.Unlock()
}
