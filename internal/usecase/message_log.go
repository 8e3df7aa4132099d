package usecase

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"havoice/internal/domain"
)

// MessageLog is the append-only, in-memory chat log of one session.
type MessageLog struct {
	mu       sync.RWMutex
	now      func() time.Time
	messages []domain.Message
}

func NewMessageLog(now func() time.Time) *MessageLog {
	if now == nil {
		now = time.Now
	}
	return &MessageLog{now: now}
}

// Append records a new message and returns it.
func (l *MessageLog) Append(sender domain.Sender, text string, announce string) domain.Message {
	msg := domain.Message{
		ID:           uuid.NewString(),
		Sender:       sender,
		Text:         text,
		AnnounceText: announce,
		CreatedAt:    l.now(),
	}

	l.mu.Lock()
	l.messages = append(l.messages, msg)
	l.mu.Unlock()
	return msg
}

// Snapshot returns a copy of the log in insertion order.
func (l *MessageLog) Snapshot() []domain.Message {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]domain.Message, len(l.messages))
	copy(out, l.messages)
	return out
}

func (l *MessageLog) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.messages)
}
