package bootstrap

import (
	"net/http"

	"github.com/rs/zerolog"

	"havoice/internal/audio"
	"havoice/internal/command"
	"havoice/internal/config"
	"havoice/internal/credentials"
	"havoice/internal/domain"
	"havoice/internal/gateway"
	"havoice/internal/gatewayclient"
	"havoice/internal/homeassistant"
	"havoice/internal/intent"
	"havoice/internal/metrics"
	"havoice/internal/ports"
	"havoice/internal/recognition/cloud"
	"havoice/internal/recognition/local"
	"havoice/internal/rules"
	"havoice/internal/speech"
	"havoice/internal/timer"
	"havoice/internal/usecase"
)

// Services is the assembled voice session graph.
type Services struct {
	Controller  *usecase.SessionController
	Config      config.Config
	Metrics     *metrics.Metrics
	Corrections *rules.Corrections
	Classifier  *intent.Router
	Responder   *speech.Responder
}

// Build wires the voice session runtime from cfg.
func Build(cfg config.Config, eventSink ports.EventSink, log zerolog.Logger) (Services, error) {
	corrections, err := rules.Load(cfg.Rules.Path, cfg.Rules.IterationLimit)
	if err != nil {
		return Services{}, err
	}

	httpClient := &http.Client{Timeout: cfg.Gateway.Timeout}
	client := gatewayclient.New(cfg.Gateway.URL, httpClient, log)
	creds := credentialSource(cfg.Speech, client)

	audioCfg := ports.AudioConfig{
		SampleRate:  cfg.Audio.SampleRate,
		Channels:    cfg.Audio.Channels,
		InputFormat: cfg.Audio.InputFormat,
		InputDevice: cfg.Audio.InputDevice,
	}
	capture := audio.NewCapture(cfg.Audio.RecorderCommand, log)
	recognizers := map[domain.BackendKind]ports.Recognizer{
		domain.BackendLocal: local.NewRecognizer(local.Config{
			URL:        cfg.Recognition.LocalURL,
			SampleRate: cfg.Audio.SampleRate,
			ChunkSize:  cfg.Recognition.ChunkSize,
			StopGrace:  cfg.Recognition.StopGrace,
			Audio:      audioCfg,
		}, capture, log),
		domain.BackendCloud: cloud.NewRecognizer(cloud.Config{
			Endpoint:   cfg.Recognition.CloudEndpoint,
			Language:   cfg.Session.Language,
			SampleRate: cfg.Audio.SampleRate,
			ChunkSize:  cfg.Recognition.ChunkSize,
			StopGrace:  cfg.Recognition.StopGrace,
			Audio:      audioCfg,
		}, capture, log),
	}

	responder := speech.NewResponder(speech.Config{
		Endpoint:     cfg.Speech.Endpoint,
		Voice:        cfg.Speech.Voice,
		Rate:         cfg.Speech.Rate,
		Pitch:        cfg.Speech.Pitch,
		OutputFormat: cfg.Speech.OutputFormat,
	}, creds, audio.NewPlayer(cfg.Audio.PlayerCommand, log), nil, log)

	classifier := intent.NewRouter(client, log)
	m := metrics.New("")

	controller := usecase.NewSessionController(usecase.Dependencies{
		Recognizers: recognizers,
		Credentials: creds,
		Classifier:  classifier,
		Executor:    command.NewExecutor(client, log),
		Responder:   responder,
		Corrector:   corrections,
		Events:      eventSink,
		Timers:      timer.NewService(nil),
		Metrics:     m,
		Log:         log,
	}, ControllerConfig(cfg))

	return Services{
		Controller:  controller,
		Config:      cfg,
		Metrics:     m,
		Corrections: corrections,
		Classifier:  classifier,
		Responder:   responder,
	}, nil
}

// ControllerConfig maps the session settings onto the controller.
func ControllerConfig(cfg config.Config) usecase.Config {
	return usecase.Config{
		WakeBackend:       domain.BackendKind(cfg.Session.WakeBackend),
		CommandBackend:    domain.BackendKind(cfg.Session.CommandBackend),
		Language:          cfg.Session.Language,
		WakePhrases:       cfg.Session.WakePhrases,
		StopWords:         cfg.Session.StopWords,
		AutoStop:          cfg.Session.AutoStop,
		CountdownInterval: cfg.Session.CountdownInterval,
		FlushInterval:     cfg.Session.FlushInterval,
		BackendStop:       cfg.Recognition.BackendStop,
		TurnTimeout:       cfg.Session.TurnTimeout,
		Chime:             cfg.Session.Chime,
	}
}

// Locally configured keys win over the gateway.
func credentialSource(cfg config.SpeechConfig, client credentials.Getter) ports.CredentialSource {
	if cfg.Key != "" && cfg.Region != "" {
		return credentials.Static(domain.SpeechCredentials{Key: cfg.Key, Region: cfg.Region})
	}
	return credentials.NewGateway(client)
}

// Gateway is the assembled gateway server graph.
type Gateway struct {
	Server  *gateway.Server
	Metrics *metrics.Metrics
	cache   *gateway.Cache
}

// Close releases the response cache.
func (g Gateway) Close() error {
	if g.cache == nil {
		return nil
	}
	return g.cache.Close()
}

// BuildGateway wires the gateway server from cfg. A missing chat model key
// is fatal since neither classification nor command planning can run.
func BuildGateway(cfg config.Config, log zerolog.Logger) (Gateway, error) {
	model, err := gateway.NewOpenAIModel(gateway.ModelConfig{
		APIKey:     cfg.OpenAI.APIKey,
		BaseURL:    cfg.OpenAI.BaseURL,
		Model:      cfg.OpenAI.Model,
		Timeout:    cfg.Gateway.Timeout,
		MaxRetries: 2,
	}, log)
	if err != nil {
		return Gateway{}, err
	}

	cache, err := gateway.OpenCache(cfg.Gateway.CacheDir, cfg.Gateway.CacheTTL, log)
	if err != nil {
		return Gateway{}, err
	}

	home := homeassistant.New(cfg.HomeAssistant.URL, cfg.HomeAssistant.Token, &http.Client{Timeout: cfg.Gateway.Timeout}, log)
	m := metrics.New("")
	server := gateway.NewServer(gateway.Dependencies{
		Classifier:  gateway.NewIntentClassifier(model, cache, log),
		Planner:     gateway.NewPlanner(model, home, cache, log),
		Home:        home,
		Credentials: domain.SpeechCredentials{Key: cfg.Speech.Key, Region: cfg.Speech.Region},
		Metrics:     m,
		Log:         log,
	})
	return Gateway{Server: server, Metrics: m, cache: cache}, nil
}
