package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"havoice/internal/bootstrap"
	"havoice/internal/domain"
	"havoice/internal/usecase"
)

var classifyCmd = &cobra.Command{
	Use:   "classify <text>",
	Short: "Classify one utterance through the gateway",
	Long: `Apply transcript corrections to text, then ask the gateway whether it is
a Home Assistant command or chat.

Example:
  havoice classify "turn off the kitchen lights"`,
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

		text := services.Corrections.Correct(domain.ModeCommandListening, strings.Join(args, " "))
		intent, err := services.Classifier.Classify(cmd.Context(), text)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", intent, text)
		return nil
	},
}
