package cli

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

type similarityOptions struct {
	kind    string
	folding int
}

// SimilarityOutput is the Tanimoto comparison of two molecules.
type SimilarityOutput struct {
	Kind    string  `json:"kind"`
	Folding int     `json:"folding"`
	Score   float64 `json:"score"`
	Class   string  `json:"class"`
}

func (s *SimilarityOutput) String() string {
	return fmt.Sprintf("%s  %s (%s, folding %d)", formatScore(s.Score), colorClass(s.Class), s.Kind, s.Folding)
}

// NewSimilarityCmd creates the similarity command.
func NewSimilarityCmd() *cobra.Command {
	o := &similarityOptions{}

	cmd := &cobra.Command{
		Use:     "similarity <molecule-a.json> <molecule-b.json>",
		Short:   "Tanimoto similarity between the fingerprints of two molecules",
		Example: "  molbayes similarity ethanol.json propanol.json --kind ECFP4",
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}
			kind, err := kindFlag(cmd, o.kind, cliCtx.Config.Model.Kind)
			if err != nil {
				return err
			}
			folding := o.folding
			if !cmd.Flags().Changed("folding") {
				folding = cliCtx.Config.Model.Folding
			}

			a, err := readMoleculeFile(cmd, args[0])
			if err != nil {
				return err
			}
			b, err := readMoleculeFile(cmd, args[1])
			if err != nil {
				return err
			}

			res, err := cliCtx.Service.Similarity(a, b, kind, folding)
			if err != nil {
				return err
			}
			return PrintResult(cmd, &SimilarityOutput{
				Kind:    kind.String(),
				Folding: folding,
				Score:   res.Score,
				Class:   res.Class,
			})
		},
	}

	f := cmd.Flags()
	f.StringVar(&o.kind, "kind", "", "fingerprint kind: ECFP0|ECFP2|ECFP4|ECFP6 (default from config)")
	f.IntVar(&o.folding, "folding", 0, "fold hashes into this many bits (default from config)")

	return cmd
}

func colorClass(class string) string {
	switch class {
	case "identical", "high":
		return color.GreenString(class)
	case "moderate":
		return color.YellowString(class)
	default:
		return class
	}
}
