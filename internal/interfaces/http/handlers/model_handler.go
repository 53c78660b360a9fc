package handlers

import (
	"net/http"
	"sort"
	"strconv"
	"sync"

	"github.com/gin-gonic/gin"

	"github.com/turtacn/molbayes/internal/application/modeling"
	"github.com/turtacn/molbayes/internal/domain/molecule"
	"github.com/turtacn/molbayes/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/molbayes/internal/infrastructure/storage/minio"
	"github.com/turtacn/molbayes/internal/intelligence/bayesian"
	mtypes "github.com/turtacn/molbayes/pkg/types/molecule"
)

// ModelDefaults fill request fields the caller leaves out.
type ModelDefaults struct {
	Kind        molecule.Kind
	Folding     int
	Validation  string
	Parallelism int
}

// ModelHandler exposes training, prediction and the model store.
type ModelHandler struct {
	service modeling.Service
	logger  logging.Logger

	mu       sync.RWMutex
	defaults ModelDefaults
}

func NewModelHandler(service modeling.Service, defaults ModelDefaults, logger logging.Logger) *ModelHandler {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &ModelHandler{service: service, defaults: defaults, logger: logger}
}

// SetDefaults replaces the defaults for subsequent requests.
func (h *ModelHandler) SetDefaults(d ModelDefaults) {
	h.mu.Lock()
	h.defaults = d
	h.mu.Unlock()
}

// Defaults returns the defaults currently applied to requests.
func (h *ModelHandler) Defaults() ModelDefaults {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.defaults
}

// ─────────────────────────────────────────────────────────────────────────────
// Request / response bodies
// ─────────────────────────────────────────────────────────────────────────────

// TrainRequest is the body of POST /api/v1/models.  Folding and Validation
// are pointers so that an explicit 0 or "" overrides the server default.
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

// TrainResponse carries the summary and, for a model that was not
// persisted, its serialized text.
type TrainResponse struct {
	*modeling.ModelSummary
	Model string `json:"model,omitempty"`
}

// PredictRequest is the body of the predict endpoints.  Model holds the
// serialized text for POST /api/v1/predict and is ignored otherwise.
type PredictRequest struct {
	Model     string            `json:"model,omitempty"`
	Molecules []mtypes.Molecule `json:"molecules"`
	Atoms     bool              `json:"atoms,omitempty"`
}

type PredictResponse struct {
	ModelID     string              `json:"model_id,omitempty"`
	Predictions []mtypes.Prediction `json:"predictions"`
}

type SimilarityRequest struct {
	A       *mtypes.Molecule `json:"a"`
	B       *mtypes.Molecule `json:"b"`
	Kind    string           `json:"kind,omitempty"`
	Folding *int             `json:"folding,omitempty"`
}

type SimilarityResponse struct {
	Kind    string  `json:"kind"`
	Folding int     `json:"folding"`
	Score   float64 `json:"score"`
	Class   string  `json:"class"`
}

type ModelListResponse struct {
	Models []*minio.ModelObject `json:"models"`
}

// ─────────────────────────────────────────────────────────────────────────────
// Handlers
// ─────────────────────────────────────────────────────────────────────────────

// Train handles POST /api/v1/models.
func (h *ModelHandler) Train(c *gin.Context) {
	var req TrainRequest
	if !bindJSON(c, &req) {
		return
	}
	defaults := h.Defaults()
	kind, err := kindOrDefault(req.Kind, defaults.Kind)
	if err != nil {
		writeAppError(c, err)
		return
	}
	opts := modeling.TrainOptions{
		Kind:       kind,
		Folding:    defaults.Folding,
		Validation: defaults.Validation,
		Notes: bayesian.Notes{
			Title:    req.Title,
			Origin:   req.Origin,
			Field:    req.Field,
			Comments: req.Comments,
		},
		Persist: req.Persist,
	}
	if req.Folding != nil {
		opts.Folding = *req.Folding
	}
	if req.Validation != nil {
		opts.Validation = *req.Validation
	}

	res, err := h.service.Train(c.Request.Context(), req.Records, opts)
	if err != nil {
		writeAppError(c, err)
		return
	}

	resp := TrainResponse{ModelSummary: modeling.Summarize(res.Model, req.ROC)}
	resp.ModelID = res.ModelID
	if res.Stored != nil {
		resp.ObjectKey = res.Stored.Key
	} else {
		resp.Model = res.Model.Serialise()
	}
	c.JSON(http.StatusCreated, resp)
}

// List handles GET /api/v1/models, newest first.
func (h *ModelHandler) List(c *gin.Context) {
	objs, err := h.service.List(c.Request.Context())
	if err != nil {
		writeAppError(c, err)
		return
	}
	sort.Slice(objs, func(i, j int) bool { return objs[i].LastModified.After(objs[j].LastModified) })
	if objs == nil {
		objs = []*minio.ModelObject{}
	}
	c.JSON(http.StatusOK, ModelListResponse{Models: objs})
}

// Get handles GET /api/v1/models/:id; ?roc=true adds the curve.
func (h *ModelHandler) Get(c *gin.Context) {
	id := c.Param("id")
	model, err := h.service.Load(c.Request.Context(), id)
	if err != nil {
		writeAppError(c, err)
		return
	}
	curve, _ := strconv.ParseBool(c.Query("roc"))
	summary := modeling.Summarize(model, curve)
	summary.ModelID = id
	c.JSON(http.StatusOK, summary)
}

// Raw handles GET /api/v1/models/:id/raw with the serialized model text.
func (h *ModelHandler) Raw(c *gin.Context) {
	id := c.Param("id")
	model, err := h.service.Load(c.Request.Context(), id)
	if err != nil {
		writeAppError(c, err)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="`+id+bayesian.FileExtension+`"`)
	c.Data(http.StatusOK, bayesian.ContentType, []byte(model.Serialise()))
}

// Delete handles DELETE /api/v1/models/:id.
func (h *ModelHandler) Delete(c *gin.Context) {
	if err := h.service.Delete(c.Request.Context(), c.Param("id")); err != nil {
		writeAppError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// PredictStored handles POST /api/v1/models/:id/predict.
func (h *ModelHandler) PredictStored(c *gin.Context) {
	var req PredictRequest
	if !bindJSON(c, &req) {
		return
	}
	id := c.Param("id")
	model, err := h.service.Load(c.Request.Context(), id)
	if err != nil {
		writeAppError(c, err)
		return
	}
	h.predict(c, id, model, &req)
}

// PredictInline handles POST /api/v1/predict with the model in the body.
func (h *ModelHandler) PredictInline(c *gin.Context) {
	var req PredictRequest
	if !bindJSON(c, &req) {
		return
	}
	model, err := bayesian.Deserialise(req.Model,
		bayesian.WithLogger(h.logger.Named("bayesian")),
		bayesian.WithParallelism(h.Defaults().Parallelism))
	if err != nil {
		writeAppError(c, err)
		return
	}
	h.predict(c, "", model, &req)
}

func (h *ModelHandler) predict(c *gin.Context, id string, model *bayesian.Model, req *PredictRequest) {
	preds, err := h.service.Predict(c.Request.Context(), model, req.Molecules, modeling.PredictOptions{Atoms: req.Atoms})
	if err != nil {
		writeAppError(c, err)
		return
	}
	if preds == nil {
		preds = []mtypes.Prediction{}
	}
	c.JSON(http.StatusOK, PredictResponse{ModelID: id, Predictions: preds})
}

// Similarity handles POST /api/v1/similarity.
func (h *ModelHandler) Similarity(c *gin.Context) {
	var req SimilarityRequest
	if !bindJSON(c, &req) {
		return
	}
	defaults := h.Defaults()
	kind, err := kindOrDefault(req.Kind, defaults.Kind)
	if err != nil {
		writeAppError(c, err)
		return
	}
	folding := defaults.Folding
	if req.Folding != nil {
		folding = *req.Folding
	}
	res, err := h.service.Similarity(req.A, req.B, kind, folding)
	if err != nil {
		writeAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, SimilarityResponse{Kind: kind.String(), Folding: folding, Score: res.Score, Class: res.Class})
}

func kindOrDefault(name string, def molecule.Kind) (molecule.Kind, error) {
	if name == "" {
		return def, nil
	}
	return molecule.ParseKind(name)
}
