package model

import (
	"github.com/spf13/cobra"

	"github.com/malonaz/wgpt/internal/cli"
)

// NewListCmd instantiates and returns the models command.
func NewListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "List the model catalog",
		Args:  cobra.ExactArgs(0),
		Run: func(cmd *cobra.Command, args []string) {
			cli.Title("MODELS")
			for _, model := range List() {
				cli.UserInput("%s (%s) - %s\n", model.ID, model.Alias, model.Description)
				cli.FileInfo("  input $%s/M tokens, output $%s/M tokens\n",
					model.InputPricing.String(), model.OutputPricing.String())
			}
		},
	}
}
