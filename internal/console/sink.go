// Package console renders session events to a terminal.
package console

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"

	"havoice/internal/domain"
)

// Theme holds the colors used by the console sink.
type Theme struct {
	Primary   lipgloss.Color
	Assistant lipgloss.Color
	Dim       lipgloss.Color
	Error     lipgloss.Color
}

var DefaultTheme = Theme{
	Primary:   lipgloss.Color("#00ff9f"),
	Assistant: lipgloss.Color("#58a6ff"),
	Dim:       lipgloss.Color("#6e7681"),
	Error:     lipgloss.Color("#ff7b72"),
}

type styles struct {
	mode      lipgloss.Style
	user      lipgloss.Style
	assistant lipgloss.Style
	dim       lipgloss.Style
	err       lipgloss.Style
}

func newStyles(t Theme) styles {
	return styles{
		mode:      lipgloss.NewStyle().Bold(true).Foreground(t.Primary),
		user:      lipgloss.NewStyle().Bold(true),
		assistant: lipgloss.NewStyle().Foreground(t.Assistant),
		dim:       lipgloss.NewStyle().Foreground(t.Dim),
		err:       lipgloss.NewStyle().Bold(true).Foreground(t.Error),
	}
}

// Sink implements ports.EventSink by printing a chat transcript.
type Sink struct {
	mu       sync.Mutex
	out      io.Writer
	styles   styles
	partials bool
}

type Option func(*Sink)

// WithPartials also prints interim transcripts.
func WithPartials() Option {
	return func(s *Sink) { s.partials = true }
}

func WithTheme(t Theme) Option {
	return func(s *Sink) { s.styles = newStyles(t) }
}

func NewSink(out io.Writer, opts ...Option) *Sink {
	s := &Sink{out: out, styles: newStyles(DefaultTheme)}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Sink) ModeChanged(mode domain.SessionMode, reason domain.TransitionReason) {
	line := s.styles.mode.Render("● " + modeLabel(mode))
	if msg := reasonMessage(reason); msg != "" {
		line += " " + s.styles.dim.Render(msg)
	}
	s.println(line)
}

func (s *Sink) PartialTranscript(text string) {
	if !s.partials || strings.TrimSpace(text) == "" {
		return
	}
	s.println(s.styles.dim.Render("… " + text))
}

func (s *Sink) MessageAppended(msg domain.Message) {
	stamp := s.styles.dim.Render(msg.CreatedAt.Format("15:04:05"))
	switch msg.Sender {
	case domain.SenderUser:
		s.println(fmt.Sprintf("%s %s %s", stamp, s.styles.user.Render("you:"), msg.Text))
	default:
		s.println(fmt.Sprintf("%s %s %s", stamp, s.styles.assistant.Render("assistant:"), msg.Text))
	}
}

// CountdownTick prints every tenth second and the final five.
func (s *Sink) CountdownTick(remaining int) {
	if remaining > 5 && remaining%10 != 0 {
		return
	}
	s.println(s.styles.dim.Render(fmt.Sprintf("  listening for a command, %ds left", remaining)))
}

func (s *Sink) CountdownCleared() {}

func (s *Sink) SessionError(kind domain.ErrorKind, detail string) {
	s.println(s.styles.err.Render(errorTitle(kind)) + " " + detail)
}

func (s *Sink) println(line string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintln(s.out, line)
}

func modeLabel(mode domain.SessionMode) string {
	switch mode {
	case domain.ModeIdle:
		return "Idle"
	case domain.ModeWakeWordListening:
		return "Waiting for wake word"
	case domain.ModeCommandListening:
		return "Listening for a command"
	case domain.ModeProcessing:
		return "Processing"
	case domain.ModeAnnouncing:
		return "Speaking"
	default:
		return string(mode)
	}
}

func reasonMessage(reason domain.TransitionReason) string {
	switch reason {
	case domain.ReasonStarted:
		return "Speech recognition started"
	case domain.ReasonStopped:
		return "Speech recognition stopped"
	case domain.ReasonWakePhrase:
		return "Wake phrase heard"
	case domain.ReasonStopWord:
		return "Stop word heard"
	case domain.ReasonUtterance:
		return "Command received"
	case domain.ReasonCommand:
		return "Command executed"
	case domain.ReasonChat:
		return "Conversation is not supported yet"
	case domain.ReasonClassifyFailed:
		return "Could not classify the command"
	case domain.ReasonAnnounced:
		return "Reply spoken"
	case domain.ReasonAutoStop:
		return "No command heard"
	case domain.ReasonRecognitionError:
		return "Recognition failed"
	case domain.ReasonCredentials:
		return "Speech credentials missing"
	default:
		return ""
	}
}

func errorTitle(kind domain.ErrorKind) string {
	switch kind {
	case domain.ErrorConfiguration:
		return "Configuration error"
	case domain.ErrorRecognition:
		return "Recognition error"
	case domain.ErrorClassification:
		return "Classification error"
	case domain.ErrorExecution:
		return "Command failed"
	case domain.ErrorSynthesis:
		return "Speech output failed"
	default:
		return "Error"
	}
}
