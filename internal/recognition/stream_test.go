package recognition

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"havoice/internal/domain"
)

func TestPumpCopiesChunks(t *testing.T) {
	t.Parallel()

	var got [][]byte
	err := Pump(bytes.NewReader(bytes.Repeat([]byte("a"), 600)), 256, func(chunk []byte) error {
		got = append(got, chunk)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Len(t, got[0], 256)
	assert.Len(t, got[2], 88)
}

func TestPumpReportsSendError(t *testing.T) {
	t.Parallel()

	sendErr := errors.New("send failed")
	err := Pump(strings.NewReader("abc"), 256, func([]byte) error { return sendErr })
	assert.ErrorIs(t, err, sendErr)
}

func TestPumpReportsReadError(t *testing.T) {
	t.Parallel()

	readErr := errors.New("read failed")
	err := Pump(errReader{err: readErr}, 256, func([]byte) error { return nil })
	assert.ErrorIs(t, err, readErr)
}

func TestStreamContextCancelAbortsQuietly(t *testing.T) {
	t.Parallel()

	conn := dialSilentServer(t)
	mic := newBlockingMic()
	ctx, cancel := context.WithCancel(context.Background())

	stream, err := NewStream(ctx, conn, textCodec{}, mic, StreamOptions{Continuous: true}, zerolog.Nop())
	require.NoError(t, err)

	cancel()
	select {
	case <-stream.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("stream did not stop after cancel")
	}
	assert.NoError(t, stream.Err())
	assert.True(t, mic.isStopped())
}

func TestStreamStopGraceClosesUnresponsiveEngine(t *testing.T) {
	t.Parallel()

	conn := dialSilentServer(t)
	stream, err := NewStream(context.Background(), conn, textCodec{}, newBlockingMic(), StreamOptions{StopGrace: 20 * time.Millisecond}, zerolog.Nop())
	require.NoError(t, err)

	start := time.Now()
	require.NoError(t, stream.Stop(context.Background()))
	assert.Less(t, time.Since(start), time.Second)

	_, open := <-stream.Events()
	assert.False(t, open)
}

// textCodec frames everything as text and never reports completion.
type textCodec struct{}

func (textCodec) Open(*websocket.Conn) error { return nil }

func (textCodec) AudioFrame(chunk []byte) (int, []byte) { return websocket.BinaryMessage, chunk }

func (textCodec) EndFrame() (int, []byte) { return websocket.TextMessage, []byte("end") }

func (textCodec) Decode(_ int, payload []byte) ([]domain.TranscriptEvent, bool, error) {
	return []domain.TranscriptEvent{{Kind: domain.TranscriptKindFinal, Text: string(payload)}}, false, nil
}

// dialSilentServer connects to a server that reads everything and never answers.
func dialSilentServer(t *testing.T) *websocket.Conn {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	return conn
}

type errReader struct {
	err error
}

func (r errReader) Read([]byte) (int, error) {
	return 0, r.err
}

type blockingMic struct {
	stopped chan struct{}
	once    sync.Once
}

func newBlockingMic() *blockingMic {
	return &blockingMic{stopped: make(chan struct{})}
}

func (m *blockingMic) Read([]byte) (int, error) {
	<-m.stopped
	return 0, io.EOF
}

func (m *blockingMic) Stop() error {
	m.once.Do(func() { close(m.stopped) })
	return nil
}

func (m *blockingMic) Close() error {
	return m.Stop()
}

func (m *blockingMic) isStopped() bool {
	select {
	case <-m.stopped:
		return true
	default:
		return false
	}
}
