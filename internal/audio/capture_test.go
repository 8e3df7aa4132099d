package audio

import (
	"context"
	"encoding/binary"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"havoice/internal/ports"
)

func TestCaptureStartReadAndStop(t *testing.T) {
	t.Parallel()

	script := writeScript(t, "capture.sh", "#!/usr/bin/env bash\nprintf 'hello'\nsleep 2\n")
	capture := NewCapture(script, zerolog.Nop())

	session, err := capture.Start(context.Background(), ports.AudioConfig{})
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}

	buf := make([]byte, 8)
	n, readErr := session.Read(buf)
	if n <= 0 {
		t.Fatalf("expected audio bytes, got n=%d err=%v", n, readErr)
	}
	if !strings.Contains(string(buf[:n]), "hello") {
		t.Fatalf("unexpected bytes: %q", string(buf[:n]))
	}

	if err := session.Stop(); err != nil {
		t.Fatalf("stop failed: %v", err)
	}
	if err := session.Close(); err != nil {
		t.Fatalf("second stop should be a no-op, got %v", err)
	}
}

func TestCaptureStartEarlyExit(t *testing.T) {
	t.Parallel()

	script := writeScript(t, "fail.sh", "#!/usr/bin/env bash\necho 'no such device' 1>&2\nexit 1\n")
	capture := NewCapture(script, zerolog.Nop())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_, err := capture.Start(ctx, ports.AudioConfig{})
	if err == nil {
		t.Fatalf("expected early exit error")
	}
	if !strings.Contains(err.Error(), "exited before audio started") || !strings.Contains(err.Error(), "no such device") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestCaptureArgsApplyDefaults(t *testing.T) {
	t.Parallel()

	args := strings.Join(captureArgs(withAudioDefaults(ports.AudioConfig{})), " ")
	for _, want := range []string{"-f pulse", "-i default", "-ac 1", "-ar 16000", "-f s16le -"} {
		if !strings.Contains(args, want) {
			t.Fatalf("expected %q in %q", want, args)
		}
	}
}

func TestIgnoreExitStatus(t *testing.T) {
	t.Parallel()

	err := exec.Command("bash", "-c", "exit 1").Run()
	if err == nil {
		t.Fatalf("expected command to fail")
	}
	if got := ignoreExitStatus(err); got != nil {
		t.Fatalf("expected nil for exit error, got %v", got)
	}
}

func TestPlayerPipesAudioToCommand(t *testing.T) {
	t.Parallel()

	out := filepath.Join(t.TempDir(), "played.bin")
	script := writeScript(t, "play.sh", "#!/usr/bin/env bash\ncat > "+out+"\n")
	player := NewPlayer(script, zerolog.Nop())

	if err := player.Play(context.Background(), []byte("mp3-bytes")); err != nil {
		t.Fatalf("play failed: %v", err)
	}
	got, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	if string(got) != "mp3-bytes" {
		t.Fatalf("unexpected played bytes: %q", got)
	}
}

func TestPlayerReportsFailure(t *testing.T) {
	t.Parallel()

	script := writeScript(t, "broken.sh", "#!/usr/bin/env bash\ncat >/dev/null\necho 'bad codec' 1>&2\nexit 3\n")
	player := NewPlayer(script, zerolog.Nop())

	err := player.Play(context.Background(), []byte("x"))
	if err == nil || !strings.Contains(err.Error(), "bad codec") {
		t.Fatalf("expected playback error with stderr, got %v", err)
	}
}

func TestChimeIsValidWAV(t *testing.T) {
	t.Parallel()

	wav := Chime()
	if string(wav[0:4]) != "RIFF" || string(wav[8:12]) != "WAVE" {
		t.Fatalf("missing RIFF/WAVE header")
	}
	dataLen := binary.LittleEndian.Uint32(wav[40:44])
	if int(dataLen) != len(wav)-44 {
		t.Fatalf("data length %d does not match payload %d", dataLen, len(wav)-44)
	}
	if rate := binary.LittleEndian.Uint32(wav[24:28]); rate != chimeSampleRate {
		t.Fatalf("unexpected sample rate %d", rate)
	}
}

func writeScript(t *testing.T, name string, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(contents), 0o700); err != nil {
		t.Fatalf("failed to write script: %v", err)
	}
	return path
}
