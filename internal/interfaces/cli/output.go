package cli

import (
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/turtacn/molbayes/internal/application/modeling"
	"github.com/turtacn/molbayes/internal/domain/molecule"
	"github.com/turtacn/molbayes/internal/intelligence/bayesian"
	"github.com/turtacn/molbayes/pkg/errors"
	mtypes "github.com/turtacn/molbayes/pkg/types/molecule"
)

// openInput opens path for reading; "-" reads standard input.
func openInput(cmd *cobra.Command, path string) (io.ReadCloser, error) {
	if path == "-" {
		return io.NopCloser(cmd.InOrStdin()), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeInvalidParam, "cannot open input").WithDetail(path)
	}
	return f, nil
}

// readModel loads a model from a .bayesian file or, when id is set, from the
// configured model store.
func readModel(cmd *cobra.Command, cliCtx *CLIContext, path, id string) (*bayesian.Model, error) {
	switch {
	case path != "" && id != "":
		return nil, errors.InvalidParam("--model and --model-id are mutually exclusive")
	case id != "":
		return cliCtx.Service.Load(cmd.Context(), id)
	case path == "":
		return nil, errors.InvalidParam("either --model or --model-id must be provided")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeInvalidParam, "cannot read model file").WithDetail(path)
	}
	return bayesian.Deserialise(string(data),
		bayesian.WithLogger(cliCtx.Logger.Named("bayesian")),
		bayesian.WithParallelism(cliCtx.Config.Model.Parallelism))
}

// readMoleculeFile decodes a single JSON molecule.
func readMoleculeFile(cmd *cobra.Command, path string) (*mtypes.Molecule, error) {
	r, err := openInput(cmd, path)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	mols, err := modeling.ReadMolecules(r)
	if err != nil {
		return nil, err
	}
	if len(mols) != 1 {
		return nil, errors.InvalidParam("expected exactly one molecule").
			WithDetail(fmt.Sprintf("file=%s count=%d", path, len(mols)))
	}
	return &mols[0], nil
}

// kindFlag returns the --kind flag when set, otherwise the configured kind.
func kindFlag(cmd *cobra.Command, value, configured string) (molecule.Kind, error) {
	if !cmd.Flags().Changed("kind") {
		value = configured
	}
	return molecule.ParseKind(value)
}

// ─────────────────────────────────────────────────────────────────────────────
// Model summary
// ─────────────────────────────────────────────────────────────────────────────

// summaryView renders a model summary as a property table in text mode and
// as the flat summary object in JSON mode.
type summaryView struct {
	*modeling.ModelSummary
}

func newSummaryView(model *bayesian.Model, withCurve bool) summaryView {
	return summaryView{modeling.Summarize(model, withCurve)}
}

func (s summaryView) TableHeaders() []string { return []string{"Property", "Value"} }

func (s summaryView) TableRows() [][]string {
	rows := [][]string{}
	add := func(k, v string) {
		if v != "" {
			rows = append(rows, []string{k, v})
		}
	}
	add("Model ID", s.ModelID)
	add("Path", s.Path)
	add("Object", s.ObjectKey)
	add("Kind", s.Kind)
	add("Folding", strconv.Itoa(s.Folding))
	add("Training size", strconv.Itoa(s.TrainingSize))
	add("Actives", strconv.Itoa(s.TrainingActives))
	add("Contributions", strconv.Itoa(s.Contributions))
	add("Thresholds", formatScore(s.LowThreshold)+" .. "+formatScore(s.HighThreshold))
	add("Title", s.Title)
	add("Origin", s.Origin)
	add("Field", s.Field)
	for _, c := range s.Comments {
		add("Comment", c)
	}
	if s.ROC != nil {
		add("Validation", s.ROC.Type)
		add("AUC", colorAUC(s.ROC.AUC))
		for i := range s.ROC.X {
			add(fmt.Sprintf("ROC[%d]", i), formatScore(s.ROC.X[i])+", "+formatScore(s.ROC.Y[i]))
		}
	}
	if t := s.Truth; t != nil {
		add("TP/FP/TN/FN", fmt.Sprintf("%d/%d/%d/%d", t.TP, t.FP, t.TN, t.FN))
		add("Precision", formatOptional(t.Precision))
		add("Recall", formatOptional(t.Recall))
		add("Specificity", formatOptional(t.Specificity))
		add("F1", formatOptional(t.F1))
		add("Kappa", formatOptional(t.Kappa))
		add("MCC", formatOptional(t.MCC))
	}
	return rows
}

func formatOptional(v *float64) string {
	if v == nil {
		return "n/a"
	}
	return formatScore(*v)
}

func colorAUC(auc *float64) string {
	if auc == nil {
		return "n/a"
	}
	s := formatScore(*auc)
	switch {
	case *auc >= 0.8:
		return color.GreenString(s)
	case *auc >= 0.6:
		return color.YellowString(s)
	default:
		return color.RedString(s)
	}
}
