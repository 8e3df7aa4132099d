package cloud

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"havoice/internal/domain"
)

const (
	pathConfig     = "speech.config"
	pathAudio      = "audio"
	pathHypothesis = "speech.hypothesis"
	pathFragment   = "speech.fragment"
	pathPhrase     = "speech.phrase"
	pathTurnEnd    = "turn.end"
)

// codec is used from the write loop and read loop of a single stream; the
// mutable fields are only touched by the write loop.
type codec struct {
	requestID  string
	sampleRate int
	now        func() time.Time

	sentRIFF bool
}

type speechConfig struct {
	Context struct {
		System struct {
			Version string `json:"version"`
		} `json:"system"`
		OS struct {
			Platform string `json:"platform"`
			Name     string `json:"name"`
		} `json:"os"`
		Audio struct {
			Source struct {
				Type          string `json:"type"`
				SampleRate    int    `json:"samplerate"`
				BitsPerSample int    `json:"bitspersample"`
				ChannelCount  int    `json:"channelcount"`
			} `json:"source"`
		} `json:"audio"`
	} `json:"context"`
}

type hypothesis struct {
	Text string `json:"Text"`
}

type phrase struct {
	RecognitionStatus string `json:"RecognitionStatus"`
	DisplayText       string `json:"DisplayText"`
}

func (c *codec) Open(conn *websocket.Conn) error {
	var cfg speechConfig
	cfg.Context.System.Version = "1.0.0"
	cfg.Context.OS.Platform = "Linux"
	cfg.Context.OS.Name = "havoice"
	cfg.Context.Audio.Source.Type = "Microphones"
	cfg.Context.Audio.Source.SampleRate = c.sampleRate
	cfg.Context.Audio.Source.BitsPerSample = 16
	cfg.Context.Audio.Source.ChannelCount = 1

	body, err := json.Marshal(cfg)
	if err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, c.textFrame(pathConfig, "application/json", body))
}

func (c *codec) AudioFrame(chunk []byte) (int, []byte) {
	if !c.sentRIFF {
		c.sentRIFF = true
		chunk = append(streamingWAVHeader(c.sampleRate), chunk...)
	}
	return websocket.BinaryMessage, c.binaryFrame(chunk)
}

// EndFrame is an audio message with an empty body.
func (c *codec) EndFrame() (int, []byte) {
	return websocket.BinaryMessage, c.binaryFrame(nil)
}

func (c *codec) Decode(kind int, payload []byte) ([]domain.TranscriptEvent, bool, error) {
	if kind != websocket.TextMessage {
		return nil, false, nil
	}
	headers, body := splitTextFrame(payload)

	switch strings.ToLower(headers["path"]) {
	case pathHypothesis, pathFragment:
		var h hypothesis
		if err := json.Unmarshal(body, &h); err != nil {
			return nil, false, nil
		}
		text := strings.TrimSpace(h.Text)
		if text == "" {
			return nil, false, nil
		}
		return []domain.TranscriptEvent{{Kind: domain.TranscriptKindPartial, Text: text}}, false, nil
	case pathPhrase:
		var p phrase
		if err := json.Unmarshal(body, &p); err != nil {
			return nil, false, nil
		}
		switch p.RecognitionStatus {
		case "Success":
			text := strings.TrimSpace(p.DisplayText)
			if text == "" {
				return nil, false, nil
			}
			return []domain.TranscriptEvent{{Kind: domain.TranscriptKindFinal, Text: text}}, false, nil
		case "Error", "BadRequest", "Forbidden", "TooManyRequests":
			return nil, false, fmt.Errorf("speech service returned %s", p.RecognitionStatus)
		default:
			return nil, false, nil
		}
	case pathTurnEnd:
		return nil, true, nil
	default:
		return nil, false, nil
	}
}

func (c *codec) headerBlock(path string, contentType string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Path: %s\r\n", path)
	fmt.Fprintf(&b, "X-RequestId: %s\r\n", c.requestID)
	fmt.Fprintf(&b, "X-Timestamp: %s\r\n", c.now().UTC().Format("2006-01-02T15:04:05.000Z"))
	if contentType != "" {
		fmt.Fprintf(&b, "Content-Type: %s\r\n", contentType)
	}
	return b.String()
}

func (c *codec) textFrame(path string, contentType string, body []byte) []byte {
	return append([]byte(c.headerBlock(path, contentType)+"\r\n"), body...)
}

// binaryFrame prefixes the header block with its big-endian uint16 length.
func (c *codec) binaryFrame(body []byte) []byte {
	header := c.headerBlock(pathAudio, "audio/x-wav")
	frame := make([]byte, 2, 2+len(header)+len(body))
	binary.BigEndian.PutUint16(frame, uint16(len(header)))
	frame = append(frame, header...)
	return append(frame, body...)
}

func splitTextFrame(payload []byte) (map[string]string, []byte) {
	head, body, found := bytes.Cut(payload, []byte("\r\n\r\n"))
	if !found {
		head, body = payload, nil
	}

	headers := make(map[string]string)
	for _, line := range strings.Split(string(head), "\r\n") {
		name, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		headers[strings.ToLower(strings.TrimSpace(name))] = strings.TrimSpace(value)
	}
	return headers, body
}

// streamingWAVHeader describes 16-bit mono PCM with unknown length.
func streamingWAVHeader(sampleRate int) []byte {
	var buf bytes.Buffer
	buf.WriteString("RIFF")
	_ = binary.Write(&buf, binary.LittleEndian, uint32(0))
	buf.WriteString("WAVEfmt ")
	_ = binary.Write(&buf, binary.LittleEndian, uint32(16))
	_ = binary.Write(&buf, binary.LittleEndian, uint16(1))
	_ = binary.Write(&buf, binary.LittleEndian, uint16(1))
	_ = binary.Write(&buf, binary.LittleEndian, uint32(sampleRate))
	_ = binary.Write(&buf, binary.LittleEndian, uint32(sampleRate*2))
	_ = binary.Write(&buf, binary.LittleEndian, uint16(2))
	_ = binary.Write(&buf, binary.LittleEndian, uint16(16))
	buf.WriteString("data")
	_ = binary.Write(&buf, binary.LittleEndian, uint32(0))
	return buf.Bytes()
}
