package commands

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"havoice/internal/bootstrap"
	"havoice/internal/config"
	"havoice/internal/console"
	"havoice/internal/logging"
)

var (
	listenPartials    bool
	listenMetricsAddr string
)

var listenCmd = &cobra.Command{
	Use:   "listen",
	Short: "Run the voice session until interrupted",
	Long: `Start wake-word listening and handle spoken commands until SIGINT.

Edits to the wake phrases in the config file apply without a restart.

Example:
  havoice listen --metrics-addr :9102`,
	Args: cobra.NoArgs,
	RunE: runListen,
}

func init() {
	listenCmd.Flags().BoolVar(&listenPartials, "partials", false, "print interim transcripts")
	listenCmd.Flags().StringVar(&listenMetricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
}

func runListen(cmd *cobra.Command, _ []string) error {
	loader, cfg, log, err := loadConfig()
	if err != nil {
		return err
	}

	var opts []console.Option
	if listenPartials {
		opts = append(opts, console.WithPartials())
	}
	services, err := bootstrap.Build(cfg, console.NewSink(cmd.OutOrStdout(), opts...), log)
	if err != nil {
		return err
	}
	defer services.Controller.Close()

	log = logging.Component(log, "listen")
	if services.Corrections.Len() > 0 {
		log.Info().Int("rules", services.Corrections.Len()).Msg("transcript corrections loaded")
	}

	ctx, stop := signalContext(cmd.Context())
	defer stop()

	loader.Watch(func(next config.Config, err error) {
		if err != nil {
			log.Warn().Err(err).Msg("config reload rejected")
			return
		}
		services.Controller.SetWakePhrases(next.Session.WakePhrases)
		log.Info().Strs("wake_phrases", next.Session.WakePhrases).Msg("wake phrases reloaded")
	})

	if listenMetricsAddr != "" {
		srv := &http.Server{Addr: listenMetricsAddr, Handler: services.Metrics.Handler(), ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error().Err(err).Msg("metrics server failed")
			}
		}()
		defer srv.Close()
	}

	if err := services.Controller.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()

	stopCtx, cancel := context.WithTimeout(context.Background(), cfg.Recognition.BackendStop+time.Second)
	defer cancel()
	return services.Controller.Stop(stopCtx)
}
