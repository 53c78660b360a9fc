package cli

import (
	"github.com/spf13/cobra"
)

type inspectOptions struct {
	model   string
	modelID string
	curve   bool
}

// NewInspectCmd creates the inspect command.
func NewInspectCmd() *cobra.Command {
	o := &inspectOptions{}

	cmd := &cobra.Command{
		Use:     "inspect",
		Short:   "Summarize a serialized model",
		Example: "  molbayes inspect --model model.bayesian --roc",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}
			model, err := readModel(cmd, cliCtx, o.model, o.modelID)
			if err != nil {
				return err
			}
			summary := newSummaryView(model, o.curve)
			summary.Path = o.model
			summary.ModelID = o.modelID
			return PrintResult(cmd, summary)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&o.model, "model", "m", "", "serialized model file")
	f.StringVar(&o.modelID, "model-id", "", "model id in the configured model store")
	f.BoolVar(&o.curve, "roc", false, "include ROC curve points")

	return cmd
}
