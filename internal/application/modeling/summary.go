package modeling

import (
	"math"

	"github.com/turtacn/molbayes/internal/intelligence/bayesian"
)

// TruthSummary is the confusion matrix and derived statistics.  Undefined
// statistics are omitted.
type TruthSummary struct {
	TP          int      `json:"tp"`
	FP          int      `json:"fp"`
	TN          int      `json:"tn"`
	FN          int      `json:"fn"`
	Precision   *float64 `json:"precision,omitempty"`
	Recall      *float64 `json:"recall,omitempty"`
	Specificity *float64 `json:"specificity,omitempty"`
	F1          *float64 `json:"f1,omitempty"`
	Kappa       *float64 `json:"kappa,omitempty"`
	MCC         *float64 `json:"mcc,omitempty"`
}

// ROCSummary is the stored curve of a validated model.
type ROCSummary struct {
	Type string    `json:"type,omitempty"`
	AUC  *float64  `json:"auc,omitempty"`
	X    []float64 `json:"x,omitempty"`
	Y    []float64 `json:"y,omitempty"`
}

// ModelSummary describes a trained or loaded model in a form that encodes
// as JSON: NaN statistics become absent fields.
type ModelSummary struct {
	ModelID         string        `json:"model_id,omitempty"`
	Path            string        `json:"path,omitempty"`
	ObjectKey       string        `json:"object_key,omitempty"`
	Kind            string        `json:"kind"`
	Folding         int           `json:"folding"`
	TrainingSize    int           `json:"training_size"`
	TrainingActives int           `json:"training_actives"`
	Contributions   int           `json:"contributions"`
	LowThreshold    float64       `json:"low_threshold"`
	HighThreshold   float64       `json:"high_threshold"`
	Title           string        `json:"title,omitempty"`
	Origin          string        `json:"origin,omitempty"`
	Field           string        `json:"field,omitempty"`
	Comments        []string      `json:"comments,omitempty"`
	ROC             *ROCSummary   `json:"roc,omitempty"`
	Truth           *TruthSummary `json:"truth,omitempty"`
}

// Summarize builds the summary of model; withCurve adds the ROC points.
func Summarize(model *bayesian.Model, withCurve bool) *ModelSummary {
	low, high := model.Thresholds()
	s := &ModelSummary{
		Kind:            model.Kind().String(),
		Folding:         model.Folding(),
		TrainingSize:    model.TrainingSize(),
		TrainingActives: model.TrainingActives(),
		Contributions:   len(model.Contributions()),
		LowThreshold:    low,
		HighThreshold:   high,
		Title:           model.Notes.Title,
		Origin:          model.Notes.Origin,
		Field:           model.Notes.Field,
		Comments:        model.Notes.Comments,
	}
	if roc := model.ROC(); roc != nil {
		s.ROC = &ROCSummary{AUC: finite(roc.AUC)}
		if roc.Type.IsValid() {
			s.ROC.Type = roc.Type.String()
		}
		if withCurve {
			s.ROC.X, s.ROC.Y = roc.X, roc.Y
		}
	}
	if t := model.Truth(); t != nil {
		s.Truth = &TruthSummary{
			TP: t.TP, FP: t.FP, TN: t.TN, FN: t.FN,
			Precision:   finite(t.Precision),
			Recall:      finite(t.Recall),
			Specificity: finite(t.Specificity),
			F1:          finite(t.F1),
			Kappa:       finite(t.Kappa),
			MCC:         finite(t.MCC),
		}
	}
	return s
}

func finite(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}
