// Package config loads havoice settings from an optional YAML file, HAVOICE_
// environment variables and the engine-specific variables the tools around
// Azure Speech and Home Assistant already use.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"havoice/internal/logging"
)

// Config stores runtime configuration.
type Config struct {
	Session       SessionConfig       `mapstructure:"session" yaml:"session"`
	Recognition   RecognitionConfig   `mapstructure:"recognition" yaml:"recognition"`
	Audio         AudioConfig         `mapstructure:"audio" yaml:"audio"`
	Speech        SpeechConfig        `mapstructure:"speech" yaml:"speech"`
	Gateway       GatewayConfig       `mapstructure:"gateway" yaml:"gateway"`
	HomeAssistant HomeAssistantConfig `mapstructure:"home_assistant" yaml:"home_assistant"`
	OpenAI        OpenAIConfig        `mapstructure:"openai" yaml:"openai"`
	Rules         RulesConfig         `mapstructure:"rules" yaml:"rules"`
	Log           logging.Config      `mapstructure:"log" yaml:"log"`
}

type SessionConfig struct {
	WakePhrases       []string      `mapstructure:"wake_phrases" yaml:"wake_phrases"`
	StopWords         []string      `mapstructure:"stop_words" yaml:"stop_words"`
	Language          string        `mapstructure:"language" yaml:"language"`
	WakeBackend       string        `mapstructure:"wake_backend" yaml:"wake_backend"`
	CommandBackend    string        `mapstructure:"command_backend" yaml:"command_backend"`
	AutoStop          time.Duration `mapstructure:"auto_stop" yaml:"auto_stop"`
	CountdownInterval time.Duration `mapstructure:"countdown_interval" yaml:"countdown_interval"`
	FlushInterval     time.Duration `mapstructure:"flush_interval" yaml:"flush_interval"`
	TurnTimeout       time.Duration `mapstructure:"turn_timeout" yaml:"turn_timeout"`
	Chime             bool          `mapstructure:"chime" yaml:"chime"`
}

type RecognitionConfig struct {
	LocalURL      string        `mapstructure:"local_url" yaml:"local_url"`
	CloudEndpoint string        `mapstructure:"cloud_endpoint" yaml:"cloud_endpoint"`
	ChunkSize     int           `mapstructure:"chunk_size" yaml:"chunk_size"`
	StopGrace     time.Duration `mapstructure:"stop_grace" yaml:"stop_grace"`
	BackendStop   time.Duration `mapstructure:"backend_stop" yaml:"backend_stop"`
}

type AudioConfig struct {
	RecorderCommand string `mapstructure:"recorder_command" yaml:"recorder_command"`
	PlayerCommand   string `mapstructure:"player_command" yaml:"player_command"`
	InputFormat     string `mapstructure:"input_format" yaml:"input_format"`
	InputDevice     string `mapstructure:"input_device" yaml:"input_device"`
	SampleRate      int    `mapstructure:"sample_rate" yaml:"sample_rate"`
	Channels        int    `mapstructure:"channels" yaml:"channels"`
}

type SpeechConfig struct {
	Key          string `mapstructure:"key" yaml:"key"`
	Region       string `mapstructure:"region" yaml:"region"`
	Endpoint     string `mapstructure:"endpoint" yaml:"endpoint"`
	Voice        string `mapstructure:"voice" yaml:"voice"`
	Rate         string `mapstructure:"rate" yaml:"rate"`
	Pitch        string `mapstructure:"pitch" yaml:"pitch"`
	OutputFormat string `mapstructure:"output_format" yaml:"output_format"`
}

type GatewayConfig struct {
	URL      string        `mapstructure:"url" yaml:"url"`
	Listen   string        `mapstructure:"listen" yaml:"listen"`
	CacheDir string        `mapstructure:"cache_dir" yaml:"cache_dir"`
	CacheTTL time.Duration `mapstructure:"cache_ttl" yaml:"cache_ttl"`
	Timeout  time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

type HomeAssistantConfig struct {
	URL   string `mapstructure:"url" yaml:"url"`
	Token string `mapstructure:"token" yaml:"token"`
}

type OpenAIConfig struct {
	APIKey  string `mapstructure:"api_key" yaml:"api_key"`
	BaseURL string `mapstructure:"base_url" yaml:"base_url"`
	Model   string `mapstructure:"model" yaml:"model"`
}

type RulesConfig struct {
	Path           string `mapstructure:"path" yaml:"path"`
	IterationLimit int    `mapstructure:"iteration_limit" yaml:"iteration_limit"`
}

// fallbackEnv lists variables honored after the HAVOICE_ name.
var fallbackEnv = map[string][]string{
	"speech.key":           {"AZURE_SPEECH_KEY", "SPEECH_KEY"},
	"speech.region":        {"AZURE_SPEECH_REGION", "SPEECH_REGION"},
	"home_assistant.url":   {"HOME_ASSISTANT_URL"},
	"home_assistant.token": {"HOME_ASSISTANT_TOKEN"},
	"openai.api_key":       {"OPENAI_API_KEY"},
	"openai.base_url":      {"OPENAI_BASE_URL"},
	"audio.input_device":   {"PULSE_SOURCE"},
}

// Loader owns one viper instance so reloads see the same sources.
type Loader struct {
	v *viper.Viper
}

// NewLoader prepares a loader. An empty path searches the default
// locations and tolerates a missing file; an explicit path must exist.
func NewLoader(path string) (*Loader, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	if path = strings.TrimSpace(path); path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("havoice")
		if dir, err := configDir(); err == nil {
			v.AddConfigPath(dir)
		}
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("HAVOICE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := setDefaults(v); err != nil {
		return nil, err
	}
	for key, names := range fallbackEnv {
		envs := append([]string{"HAVOICE_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))}, names...)
		if err := v.BindEnv(append([]string{key}, envs...)...); err != nil {
			return nil, fmt.Errorf("bind %s: %w", key, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}
	return &Loader{v: v}, nil
}

// Load resolves configuration with the default search path.
func Load(path string) (Config, error) {
	loader, err := NewLoader(path)
	if err != nil {
		return Config{}, err
	}
	return loader.Config()
}

// ConfigFile returns the file in use, if any.
func (l *Loader) ConfigFile() string {
	return l.v.ConfigFileUsed()
}

// Config decodes the current settings.
func (l *Loader) Config() (Config, error) {
	var cfg Config
	if err := l.v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to decode config: %w", err)
	}
	cfg.sanitize()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Watch calls onChange after every write to the config file. It does
// nothing when no file was found.
func (l *Loader) Watch(onChange func(Config, error)) {
	if l.ConfigFile() == "" {
		return
	}
	l.v.OnConfigChange(func(fsnotify.Event) {
		onChange(l.Config())
	})
	l.v.WatchConfig()
}

// Validate rejects settings the controller cannot run with.
func (c Config) Validate() error {
	for name, kind := range map[string]string{
		"session.wake_backend":    c.Session.WakeBackend,
		"session.command_backend": c.Session.CommandBackend,
	} {
		if kind != "local" && kind != "cloud" {
			return fmt.Errorf("%s must be local or cloud, got %q", name, kind)
		}
	}
	if c.Session.CountdownInterval > c.Session.AutoStop {
		return fmt.Errorf("session.countdown_interval %s exceeds auto_stop %s", c.Session.CountdownInterval, c.Session.AutoStop)
	}
	return nil
}

// Redacted returns a copy safe to print.
func (c Config) Redacted() Config {
	c.Speech.Key = mask(c.Speech.Key)
	c.HomeAssistant.Token = mask(c.HomeAssistant.Token)
	c.OpenAI.APIKey = mask(c.OpenAI.APIKey)
	return c
}

func mask(secret string) string {
	if secret == "" {
		return ""
	}
	if len(secret) <= 4 {
		return "****"
	}
	return "****" + secret[len(secret)-4:]
}

func setDefaults(v *viper.Viper) error {
	dir, err := configDir()
	if err != nil {
		return err
	}
	cacheDir := filepath.Join(dir, "cache")
	if base, err := os.UserCacheDir(); err == nil {
		cacheDir = filepath.Join(base, "havoice")
	}

	defaults := map[string]any{
		"session.wake_phrases":       []string{"assistant", "hey assistant", "ok assistant"},
		"session.stop_words":         []string{"stop", "stop it"},
		"session.language":           "en-US",
		"session.wake_backend":       "local",
		"session.command_backend":    "cloud",
		"session.auto_stop":          30 * time.Second,
		"session.countdown_interval": time.Second,
		"session.flush_interval":     10 * time.Second,
		"session.turn_timeout":       time.Minute,
		"session.chime":              true,

		"recognition.local_url":      "ws://localhost:2700",
		"recognition.cloud_endpoint": "",
		"recognition.chunk_size":     4096,
		"recognition.stop_grace":     time.Second,
		"recognition.backend_stop":   8 * time.Second,

		"audio.recorder_command": "ffmpeg",
		"audio.player_command":   "ffplay",
		"audio.input_format":     "pulse",
		"audio.input_device":     "default",
		"audio.sample_rate":      16000,
		"audio.channels":         1,

		"speech.key":           "",
		"speech.region":        "",
		"speech.endpoint":      "",
		"speech.voice":         "en-US-AriaNeural",
		"speech.rate":          "0%",
		"speech.pitch":         "0%",
		"speech.output_format": "audio-16khz-128kbitrate-mono-mp3",

		"gateway.url":       "http://localhost:3005/api",
		"gateway.listen":    ":3005",
		"gateway.cache_dir": cacheDir,
		"gateway.cache_ttl": 5 * time.Minute,
		"gateway.timeout":   30 * time.Second,

		"home_assistant.url":   "http://homeassistant.local:8123",
		"home_assistant.token": "",

		"openai.api_key":  "",
		"openai.base_url": "",
		"openai.model":    "gpt-4o-mini",

		"rules.path":            firstExisting(filepath.Join(dir, "substitutions.rules")),
		"rules.iteration_limit": 30,

		"log.level":  "info",
		"log.format": "console",
	}
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	return nil
}

func (c *Config) sanitize() {
	c.Session.WakePhrases = trimAll(c.Session.WakePhrases)
	c.Session.StopWords = trimAll(c.Session.StopWords)
	c.Session.WakeBackend = strings.ToLower(strings.TrimSpace(c.Session.WakeBackend))
	c.Session.CommandBackend = strings.ToLower(strings.TrimSpace(c.Session.CommandBackend))
	if c.Audio.SampleRate <= 0 {
		c.Audio.SampleRate = 16000
	}
	if c.Audio.Channels <= 0 {
		c.Audio.Channels = 1
	}
	if c.Recognition.ChunkSize < 256 {
		c.Recognition.ChunkSize = 4096
	}
	if c.Rules.IterationLimit <= 0 {
		c.Rules.IterationLimit = 30
	}
	c.Speech.Key = strings.TrimSpace(c.Speech.Key)
	c.Speech.Region = strings.TrimSpace(c.Speech.Region)
	c.HomeAssistant.URL = strings.TrimRight(strings.TrimSpace(c.HomeAssistant.URL), "/")
}

func configDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", errors.New("could not determine home directory")
	}
	return filepath.Join(home, ".config", "havoice"), nil
}

func trimAll(values []string) []string {
	out := make([]string, 0, len(values))
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func firstExisting(paths ...string) string {
	for _, p := range paths {
		if p == "" {
			continue
		}
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	if len(paths) == 0 {
		return ""
	}
	return paths[0]
}
