package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"havoice/internal/bootstrap"
	"havoice/internal/usecase"
)

var sayOutput string

var sayCmd = &cobra.Command{
	Use:   "say <text>",
	Short: "Speak text through the configured voice",
	Long: `Synthesize text with the configured voice and play it.

Example:
  havoice say "The kitchen lights are off"
  havoice say -o reply.mp3 "Saved instead of played"`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		_, cfg, log, err := loadConfig()
		if err != nil {
			return err
		}
		services, err := bootstrap.Build(cfg, usecase.NopEvents{}, log)
		if err != nil {
			return err
		}
		defer services.Controller.Close()

		ctx, stop := signalContext(cmd.Context())
		defer stop()

		data, err := services.Responder.Synthesize(ctx, strings.Join(args, " "))
		if err != nil {
			return err
		}
		if sayOutput != "" {
			if err := writeFile(sayOutput, data); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %d bytes to %s\n", len(data), sayOutput)
			return nil
		}
		return services.Responder.Play(ctx, data)
	},
}

func init() {
	sayCmd.Flags().StringVarP(&sayOutput, "output", "o", "", "write audio to a file instead of playing it")
}
