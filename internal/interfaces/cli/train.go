package cli

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/turtacn/molbayes/internal/application/modeling"
	"github.com/turtacn/molbayes/internal/intelligence/bayesian"
	"github.com/turtacn/molbayes/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/molbayes/pkg/errors"
)

type trainOptions struct {
	input      string
	out        string
	kind       string
	folding    int
	validation string
	title      string
	origin     string
	field      string
	comments   []string
	persist    bool
	curve      bool
}

// NewTrainCmd creates the train command.
func NewTrainCmd() *cobra.Command {
	o := &trainOptions{}

	cmd := &cobra.Command{
		Use:   "train",
		Short: "Train a Bayesian model from a JSON-lines dataset",
		Long: "Train reads labelled training records (one JSON object per line with\n" +
			"\"molecule\", \"active\" and optional precomputed \"hashes\"), builds the\n" +
			"model, optionally cross-validates it, and writes the serialized model.",
		Example: "  molbayes train -i actives.jsonl --out model.bayesian --kind ECFP6 --validate 5",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrain(cmd, o)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&o.input, "input", "i", "", "training records, JSON lines (\"-\" for stdin)")
	f.StringVar(&o.out, "out", "", "write the serialized model to this file")
	f.StringVar(&o.kind, "kind", "", "fingerprint kind: ECFP0|ECFP2|ECFP4|ECFP6 (default from config)")
	f.IntVar(&o.folding, "folding", 0, "fold hashes into this many bits; 0 keeps 32-bit hashes (default from config)")
	f.StringVar(&o.validation, "validate", "", "cross-validation: loo|3|5 (default from config)")
	f.StringVar(&o.title, "title", "", "model title note")
	f.StringVar(&o.origin, "origin", "", "model origin note")
	f.StringVar(&o.field, "field", "", "activity field note")
	f.StringArrayVar(&o.comments, "comment", nil, "comment note (repeatable)")
	f.BoolVar(&o.persist, "persist", false, "store the model in the configured model store")
	f.BoolVar(&o.curve, "roc", false, "include ROC curve points in the summary")
	_ = cmd.MarkFlagRequired("input")

	return cmd
}

func runTrain(cmd *cobra.Command, o *trainOptions) error {
	cliCtx, err := GetCLIContext(cmd)
	if err != nil {
		return err
	}
	if o.out == "" && !o.persist {
		return errors.InvalidParam("nothing to do: set --out and/or --persist")
	}

	kind, err := kindFlag(cmd, o.kind, cliCtx.Config.Model.Kind)
	if err != nil {
		return err
	}
	folding := o.folding
	if !cmd.Flags().Changed("folding") {
		folding = cliCtx.Config.Model.Folding
	}
	validation := o.validation
	if !cmd.Flags().Changed("validate") {
		validation = cliCtx.Config.Model.Validation
	}

	r, err := openInput(cmd, o.input)
	if err != nil {
		return err
	}
	records, err := modeling.ReadTrainingRecords(r)
	r.Close()
	if err != nil {
		return err
	}

	res, err := cliCtx.Service.Train(cmd.Context(), records, modeling.TrainOptions{
		Kind:       kind,
		Folding:    folding,
		Validation: validation,
		Notes: bayesian.Notes{
			Title:    o.title,
			Origin:   o.origin,
			Field:    o.field,
			Comments: o.comments,
		},
		Persist: o.persist,
	})
	if err != nil {
		return err
	}

	summary := newSummaryView(res.Model, o.curve)
	summary.ModelID = res.ModelID
	if res.Stored != nil {
		summary.ObjectKey = res.Stored.Key
	}
	if o.out != "" {
		if err := os.WriteFile(o.out, []byte(res.Model.Serialise()), 0o644); err != nil {
			return errors.Wrap(err, errors.ErrCodeStorageError, "cannot write model file").WithDetail(o.out)
		}
		summary.Path = o.out
		cliCtx.Logger.Info("model written", logging.String("path", o.out))
	}
	return PrintResult(cmd, summary)
}
