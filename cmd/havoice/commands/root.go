package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"havoice/internal/config"
	"havoice/internal/logging"
)

var (
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "havoice",
	Short: "Wake-word voice assistant for Home Assistant",
	Long: `havoice listens for a wake phrase, records one spoken command,
classifies it and sends it to Home Assistant through the gateway.

Configuration is read from ~/.config/havoice/havoice.yaml (or --config)
and HAVOICE_* environment variables, for example HAVOICE_GATEWAY_URL.
AZURE_SPEECH_KEY, AZURE_SPEECH_REGION, HOME_ASSISTANT_TOKEN and
OPENAI_API_KEY are honored as well.

Examples:
  havoice gateway
  havoice listen --partials
  havoice classify "turn off the kitchen lights"`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ~/.config/havoice/havoice.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")

	rootCmd.AddCommand(listenCmd)
	rootCmd.AddCommand(gatewayCmd)
	rootCmd.AddCommand(sayCmd)
	rootCmd.AddCommand(classifyCmd)
	rootCmd.AddCommand(configCmd)
}

// loadConfig resolves settings and the logger every command shares.
func loadConfig() (*config.Loader, config.Config, zerolog.Logger, error) {
	loader, err := config.NewLoader(cfgFile)
	if err != nil {
		return nil, config.Config{}, zerolog.Nop(), err
	}
	cfg, err := loader.Config()
	if err != nil {
		return nil, config.Config{}, zerolog.Nop(), err
	}
	if verbose {
		cfg.Log.Level = "debug"
	}
	log, err := logging.New(cfg.Log)
	if err != nil {
		return nil, config.Config{}, zerolog.Nop(), err
	}
	return loader, cfg, log, nil
}

func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
