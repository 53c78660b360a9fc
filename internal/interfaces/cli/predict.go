package cli

import (
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/turtacn/molbayes/internal/application/modeling"
	mtypes "github.com/turtacn/molbayes/pkg/types/molecule"
)

type predictOptions struct {
	model   string
	modelID string
	input   string
	atoms   bool
}

// NewPredictCmd creates the predict command.
func NewPredictCmd() *cobra.Command {
	o := &predictOptions{}

	cmd := &cobra.Command{
		Use:   "predict",
		Short: "Score molecules against a trained model",
		Long: "Predict reads molecules (JSON, one per line) and reports the raw\n" +
			"Bayesian score, the calibrated score (about 0 inactive, 1 active), its\n" +
			"arctangent-bounded form and the fingerprint overlap with the model.",
		Example: "  molbayes predict --model model.bayesian -i candidates.jsonl --atoms",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPredict(cmd, o)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&o.model, "model", "m", "", "serialized model file")
	f.StringVar(&o.modelID, "model-id", "", "model id in the configured model store")
	f.StringVarP(&o.input, "input", "i", "", "molecules, JSON lines (\"-\" for stdin)")
	f.BoolVar(&o.atoms, "atoms", false, "include per-atom predictors")
	_ = cmd.MarkFlagRequired("input")

	return cmd
}

func runPredict(cmd *cobra.Command, o *predictOptions) error {
	cliCtx, err := GetCLIContext(cmd)
	if err != nil {
		return err
	}
	model, err := readModel(cmd, cliCtx, o.model, o.modelID)
	if err != nil {
		return err
	}

	r, err := openInput(cmd, o.input)
	if err != nil {
		return err
	}
	mols, err := modeling.ReadMolecules(r)
	r.Close()
	if err != nil {
		return err
	}

	preds, err := cliCtx.Service.Predict(cmd.Context(), model, mols, modeling.PredictOptions{Atoms: o.atoms})
	if err != nil {
		return err
	}
	return PrintResult(cmd, predictionTable(preds))
}

type predictionTable []mtypes.Prediction

func (p predictionTable) TableHeaders() []string {
	return []string{"#", "Name", "Raw", "Scaled", "ArcTan", "Overlap", "Atoms"}
}

func (p predictionTable) TableRows() [][]string {
	rows := make([][]string, len(p))
	for i, pr := range p {
		atoms := make([]string, len(pr.Atoms))
		for j, a := range pr.Atoms {
			atoms[j] = formatScore(a)
		}
		rows[i] = []string{
			strconv.Itoa(i + 1),
			pr.Name,
			formatScore(pr.Raw),
			colorScaled(pr.Scaled),
			formatScore(pr.ArcTan),
			formatScore(pr.Overlap),
			strings.Join(atoms, " "),
		}
	}
	return rows
}

func colorScaled(v float64) string {
	s := formatScore(v)
	switch {
	case v >= 0.5:
		return color.GreenString(s)
	case v >= 0:
		return color.YellowString(s)
	default:
		return s
	}
}
