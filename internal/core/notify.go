package core

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/JonMunkholm/simplestruct/internal/logging"
)

// MessageType classifies a user-visible notification.
type MessageType string

const (
	MessageStatus MessageType = "status"
	MessageError  MessageType = "error"
)

// Message is one user-visible notification.
type Message struct {
	Type     MessageType `json:"type"`
	Text     string      `json:"text"`
	TableKey string      `json:"tableKey,omitempty"`
	RunID    string      `json:"runId,omitempty"`
	Time     time.Time   `json:"time"`
}

// Notifier receives the single end-of-run notification.
type Notifier interface {
	Notify(ctx context.Context, msg Message)
}

// DefaultMessageLimit is how many messages a Messenger keeps.
const DefaultMessageLimit = 100

// Messenger keeps the most recent messages in memory so they can be read
// back over HTTP.
type Messenger struct {
	mu       sync.RWMutex
	messages []Message
	limit    int
}

// NewMessenger creates a Messenger holding at most limit messages.
func NewMessenger(limit int) *Messenger {
	if limit <= 0 {
		limit = DefaultMessageLimit
	}
	return &Messenger{limit: limit}
}

// Notify records msg, dropping the oldest message when full.
func (m *Messenger) Notify(_ context.Context, msg Message) {
	if msg.Time.IsZero() {
		msg.Time = time.Now()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, msg)
	if over := len(m.messages) - m.limit; over > 0 {
		m.messages = append(m.messages[:0:0], m.messages[over:]...)
	}
}

// All returns the stored messages, oldest first.
func (m *Messenger) All() []Message {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Message, len(m.messages))
	copy(out, m.messages)
	return out
}

// Drain returns the stored messages and clears them.
func (m *Messenger) Drain() []Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := m.messages
	m.messages = nil
	if out == nil {
		out = []Message{}
	}
	return out
}

// LogNotifier writes notifications to the request-scoped logger.
type LogNotifier struct{}

func (LogNotifier) Notify(ctx context.Context, msg Message) {
	level := slog.LevelInfo
	if msg.Type == MessageError {
		level = slog.LevelError
	}
	logging.FromContext(ctx).Log(ctx, level, msg.Text,
		"table", msg.TableKey,
		"run_id", msg.RunID,
	)
}

// MultiNotifier fans a notification out to several notifiers.
type MultiNotifier []Notifier

func (m MultiNotifier) Notify(ctx context.Context, msg Message) {
	for _, n := range m {
		n.Notify(ctx, msg)
	}
}
