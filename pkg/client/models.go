package client

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/turtacn/molbayes/pkg/errors"
	mtypes "github.com/turtacn/molbayes/pkg/types/molecule"
)

// ---------------------------------------------------------------------------
// DTOs
// ---------------------------------------------------------------------------

// TrainRequest trains a model from labelled molecules.  Unset fields take
// the server's configured defaults.
type TrainRequest struct {
	Records    []mtypes.TrainingRecord `json:"records"`
	Kind       string                  `json:"kind,omitempty"`
	Folding    *int                    `json:"folding,omitempty"`
	Validation *string                 `json:"validation,omitempty"`
	Title      string                  `json:"title,omitempty"`
	Origin     string                  `json:"origin,omitempty"`
	Field      string                  `json:"field,omitempty"`
	Comments   []string                `json:"comments,omitempty"`
	Persist    bool                    `json:"persist,omitempty"`
	ROC        bool                    `json:"roc,omitempty"`
}

// Truth is the confusion matrix of a validated model.  Statistics the server
// cannot define are nil.
type Truth struct {
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

// ROC is the cross-validation curve of a model.
type ROC struct {
	Type string    `json:"type"`
	AUC  *float64  `json:"auc,omitempty"`
	X    []float64 `json:"x,omitempty"`
	Y    []float64 `json:"y,omitempty"`
}

// ModelSummary describes a trained or stored model.
type ModelSummary struct {
	ModelID         string   `json:"model_id,omitempty"`
	ObjectKey       string   `json:"object_key,omitempty"`
	Kind            string   `json:"kind"`
	Folding         int      `json:"folding"`
	TrainingSize    int      `json:"training_size"`
	TrainingActives int      `json:"training_actives"`
	Contributions   int      `json:"contributions"`
	LowThreshold    float64  `json:"low_threshold"`
	HighThreshold   float64  `json:"high_threshold"`
	Title           string   `json:"title,omitempty"`
	Origin          string   `json:"origin,omitempty"`
	Field           string   `json:"field,omitempty"`
	Comments        []string `json:"comments,omitempty"`
	ROC             *ROC     `json:"roc,omitempty"`
	Truth           *Truth   `json:"truth,omitempty"`
}

// TrainResult is the summary of a new model.  Model holds the serialized
// text when the model was not persisted.
type TrainResult struct {
	ModelSummary
	Model string `json:"model,omitempty"`
}

// StoredModel describes one object in the server's model store.
type StoredModel struct {
	ID           string            `json:"id"`
	Key          string            `json:"key"`
	Size         int64             `json:"size"`
	ETag         string            `json:"etag,omitempty"`
	ContentType  string            `json:"content_type,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	LastModified time.Time         `json:"last_modified"`
}

type predictRequest struct {
	Model     string            `json:"model,omitempty"`
	Molecules []mtypes.Molecule `json:"molecules"`
	Atoms     bool              `json:"atoms,omitempty"`
}

// PredictResult holds one prediction per submitted molecule, in order.
type PredictResult struct {
	ModelID     string              `json:"model_id,omitempty"`
	Predictions []mtypes.Prediction `json:"predictions"`
}

// SimilarityRequest compares the fingerprints of two molecules.
type SimilarityRequest struct {
	A       *mtypes.Molecule `json:"a"`
	B       *mtypes.Molecule `json:"b"`
	Kind    string           `json:"kind,omitempty"`
	Folding *int             `json:"folding,omitempty"`
}

type SimilarityResult struct {
	Kind    string  `json:"kind"`
	Folding int     `json:"folding"`
	Score   float64 `json:"score"`
	Class   string  `json:"class"`
}

// ---------------------------------------------------------------------------
// ModelsClient
// ---------------------------------------------------------------------------

// ModelsClient trains, stores and applies models.
type ModelsClient struct {
	client *Client
}

func modelPath(id string) string {
	return "/api/v1/models/" + url.PathEscape(id)
}

func requireID(id string) error {
	if id == "" {
		return errors.InvalidParam("model id is required")
	}
	return nil
}

// Train builds a model on the server.
func (m *ModelsClient) Train(ctx context.Context, req *TrainRequest) (*TrainResult, error) {
	if req == nil || len(req.Records) == 0 {
		return nil, errors.New(errors.ErrCodeTrainingEmpty, "no training records")
	}
	var res TrainResult
	if err := m.client.post(ctx, "/api/v1/models", req, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// List returns the stored models, newest first.
func (m *ModelsClient) List(ctx context.Context) ([]StoredModel, error) {
	var res struct {
		Models []StoredModel `json:"models"`
	}
	if err := m.client.get(ctx, "/api/v1/models", &res); err != nil {
		return nil, err
	}
	return res.Models, nil
}

// Get returns the summary of a stored model; withROC adds the curve points.
func (m *ModelsClient) Get(ctx context.Context, id string, withROC bool) (*ModelSummary, error) {
	if err := requireID(id); err != nil {
		return nil, err
	}
	path := modelPath(id)
	if withROC {
		path += "?roc=true"
	}
	var res ModelSummary
	if err := m.client.get(ctx, path, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Raw returns the serialized text of a stored model.
func (m *ModelsClient) Raw(ctx context.Context, id string) (string, error) {
	if err := requireID(id); err != nil {
		return "", err
	}
	body, err := m.client.send(ctx, http.MethodGet, modelPath(id)+"/raw", nil)
	if err != nil {
		return "", err
	}
	return string(body), nil
}

func (m *ModelsClient) Delete(ctx context.Context, id string) error {
	if err := requireID(id); err != nil {
		return err
	}
	return m.client.delete(ctx, modelPath(id))
}

// Predict scores molecules against a stored model.
func (m *ModelsClient) Predict(ctx context.Context, id string, molecules []mtypes.Molecule, atoms bool) (*PredictResult, error) {
	if err := requireID(id); err != nil {
		return nil, err
	}
	var res PredictResult
	err := m.client.post(ctx, modelPath(id)+"/predict", predictRequest{Molecules: molecules, Atoms: atoms}, &res)
	if err != nil {
		return nil, err
	}
	return &res, nil
}

// PredictWith scores molecules against a serialized model sent inline.
func (m *ModelsClient) PredictWith(ctx context.Context, model string, molecules []mtypes.Molecule, atoms bool) (*PredictResult, error) {
	if model == "" {
		return nil, errors.FormatError("serialized model is empty")
	}
	var res PredictResult
	err := m.client.post(ctx, "/api/v1/predict", predictRequest{Model: model, Molecules: molecules, Atoms: atoms}, &res)
	if err != nil {
		return nil, err
	}
	return &res, nil
}

// Similarity returns the Tanimoto coefficient of two fingerprints.
func (m *ModelsClient) Similarity(ctx context.Context, req *SimilarityRequest) (*SimilarityResult, error) {
	if req == nil || req.A == nil || req.B == nil {
		return nil, errors.InvalidInput("two molecules are required")
	}
	var res SimilarityResult
	if err := m.client.post(ctx, "/api/v1/similarity", req, &res); err != nil {
		return nil, err
	}
	return &res, nil
}
