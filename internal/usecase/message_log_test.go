package usecase

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"havoice/internal/domain"
)

func TestMessageLogAppendAndSnapshot(t *testing.T) {
	at := time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC)
	log := NewMessageLog(func() time.Time { return at })

	first := log.Append(domain.SenderUser, "hey assistant", "")
	second := log.Append(domain.SenderAssistant, "Command executed: Success: true, Message: ok", "ok")

	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, at, first.CreatedAt)
	assert.Equal(t, "ok", second.AnnounceText)

	snapshot := log.Snapshot()
	require.Len(t, snapshot, 2)
	assert.Equal(t, first, snapshot[0])
	assert.Equal(t, second, snapshot[1])

	snapshot[0].Text = "mutated"
	assert.Equal(t, "hey assistant", log.Snapshot()[0].Text)
}

func TestMessageLogConcurrentAppends(t *testing.T) {
	log := NewMessageLog(nil)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 25; j++ {
				log.Append(domain.SenderUser, "hello", "")
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 200, log.Len())
	seen := make(map[string]struct{})
	for _, msg := range log.Snapshot() {
		seen[msg.ID] = struct{}{}
	}
	assert.Len(t, seen, 200)
}
