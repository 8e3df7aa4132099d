package commands

import (
	"github.com/spf13/cobra"

	"havoice/internal/bootstrap"
)

var gatewayAddr string

var gatewayCmd = &cobra.Command{
	Use:   "gateway",
	Short: "Serve the classification and Home Assistant gateway",
	Long: `Serve the HTTP API the voice session calls:

  POST /api/classifyIntent
  POST /api/postHACommand
  GET  /api/get-speech-credentials
  GET  /api/check-device-services/{entity_id}
  GET  /api/check-notify-services
  GET  /healthz
  GET  /metrics

Requires OPENAI_API_KEY and HOME_ASSISTANT_TOKEN.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		_, cfg, log, err := loadConfig()
		if err != nil {
			return err
		}
		gw, err := bootstrap.BuildGateway(cfg, log)
		if err != nil {
			return err
		}
		defer gw.Close()

		addr := cfg.Gateway.Listen
		if gatewayAddr != "" {
			addr = gatewayAddr
		}
		ctx, stop := signalContext(cmd.Context())
		defer stop()
		return gw.Server.ListenAndServe(ctx, addr)
	},
}

func init() {
	gatewayCmd.Flags().StringVar(&gatewayAddr, "addr", "", "listen address (default gateway.listen)")
}
