package commands

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"havoice/internal/config"
)

func TestRenderConfigMasksSecrets(t *testing.T) {
	cfg := config.Config{}
	cfg.Speech.Key = "abcdef123456"
	cfg.HomeAssistant.Token = "long-lived-token-9876"
	cfg.Session.WakePhrases = []string{"hey assistant"}

	out, err := renderConfig(cfg)
	require.NoError(t, err)
	assert.NotContains(t, string(out), "abcdef123456")
	assert.NotContains(t, string(out), "long-lived-token-9876")
	assert.Contains(t, string(out), "3456")

	var decoded map[string]any
	require.NoError(t, yaml.Unmarshal(out, &decoded))
	assert.Contains(t, decoded, "session")
	assert.Contains(t, decoded, "home_assistant")
}

func TestConfigShowUsesConfigFlag(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	path := filepath.Join(t.TempDir(), "havoice.yaml")
	require.NoError(t, os.WriteFile(path, []byte("session:\n  wake_phrases: [\"computer\"]\n"), 0o600))

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"--config", path, "config", "show"})
	t.Cleanup(func() {
		cfgFile = ""
		rootCmd.SetArgs(nil)
		rootCmd.SetOut(nil)
	})

	require.NoError(t, rootCmd.Execute())
	assert.Contains(t, out.String(), "computer")
}

func TestSubcommandsRegistered(t *testing.T) {
	names := map[string]bool{}
	for _, cmd := range rootCmd.Commands() {
		names[cmd.Name()] = true
	}
	for _, want := range []string{"listen", "gateway", "say", "classify", "config"} {
		assert.True(t, names[want], want)
	}
}
