// Package modeling orchestrates the lifecycle of Bayesian activity models:
// training from labelled molecules, cross-validation, persistence through
// the object store and cache, event publication and prediction.
package modeling

import (
	"context"
	"fmt"
	"math"
	"runtime"
	"strconv"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/turtacn/molbayes/internal/domain/molecule"
	"github.com/turtacn/molbayes/internal/infrastructure/database/redis"
	"github.com/turtacn/molbayes/internal/infrastructure/messaging/kafka"
	"github.com/turtacn/molbayes/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/molbayes/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/molbayes/internal/infrastructure/storage/minio"
	"github.com/turtacn/molbayes/internal/intelligence/bayesian"
	"github.com/turtacn/molbayes/pkg/errors"
	mtypes "github.com/turtacn/molbayes/pkg/types/molecule"
)

// Service defines the model lifecycle operations.
type Service interface {
	Train(ctx context.Context, records []mtypes.TrainingRecord, opts TrainOptions) (*TrainResult, error)
	Predict(ctx context.Context, model *bayesian.Model, mols []mtypes.Molecule, opts PredictOptions) ([]mtypes.Prediction, error)
	Similarity(a, b *mtypes.Molecule, kind molecule.Kind, folding int) (*SimilarityResult, error)
	Save(ctx context.Context, id string, model *bayesian.Model) (*minio.ModelObject, error)
	Load(ctx context.Context, id string) (*bayesian.Model, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]*minio.ModelObject, error)
}

// TrainOptions controls a training run.
type TrainOptions struct {
	Kind    molecule.Kind
	Folding int
	// Validation is "", "loo", "3" or "5" (see bayesian.ParseValidationType).
	Validation string
	Notes      bayesian.Notes
	// Persist stores the model under the generated id; it requires a store.
	Persist bool
}

type TrainResult struct {
	ModelID string
	Model   *bayesian.Model
	Stored  *minio.ModelObject
}

type PredictOptions struct {
	// Atoms adds per-atom predictors to each prediction.
	Atoms bool
}

type SimilarityResult struct {
	Score float64
	Class string
}

type serviceImpl struct {
	store       minio.ModelStore
	cache       redis.ModelCache
	events      kafka.ModelEventPublisher
	metrics     *prometheus.ModelMetrics
	logger      logging.Logger
	parallelism int
}

type ServiceOption func(*serviceImpl)

func WithStore(store minio.ModelStore) ServiceOption {
	return func(s *serviceImpl) { s.store = store }
}

func WithCache(cache redis.ModelCache) ServiceOption {
	return func(s *serviceImpl) { s.cache = cache }
}

func WithEvents(events kafka.ModelEventPublisher) ServiceOption {
	return func(s *serviceImpl) { s.events = events }
}

func WithMetrics(m *prometheus.ModelMetrics) ServiceOption {
	return func(s *serviceImpl) { s.metrics = m }
}

func WithParallelism(n int) ServiceOption {
	return func(s *serviceImpl) { s.parallelism = n }
}

// NewService creates the modeling service. Store, cache and events are
// optional; without a store Save, Load, Delete and List fail.
func NewService(logger logging.Logger, opts ...ServiceOption) Service {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	s := &serviceImpl{logger: logger}
	for _, opt := range opts {
		opt(s)
	}
	if s.metrics == nil {
		s.metrics = prometheus.NewNopModelMetrics()
	}
	if s.parallelism < 1 {
		s.parallelism = runtime.NumCPU()
	}
	return s
}

var errNoStore = errors.InvalidState("model store is not configured")

func (s *serviceImpl) Train(ctx context.Context, records []mtypes.TrainingRecord, opts TrainOptions) (*TrainResult, error) {
	if opts.Persist && s.store == nil {
		return nil, errNoStore
	}
	timer := time.Now()
	model, err := s.build(records, opts)
	s.metrics.RecordTraining(opts.Kind.String(), len(records), time.Since(timer), err)
	if err != nil {
		s.metrics.RecordError("train", errors.GetCode(err).String())
		return nil, err
	}

	res := &TrainResult{ModelID: uuid.New().String(), Model: model}
	low, high := model.Thresholds()
	s.logger.Info("model trained",
		logging.String("model_id", res.ModelID),
		logging.String("kind", model.Kind().String()),
		logging.Int("folding", model.Folding()),
		logging.Int("examples", model.TrainingSize()),
		logging.Int("actives", model.TrainingActives()),
		logging.Int("contributions", len(model.Contributions())))
	s.publish(ctx, kafka.EventModelTrained, res.ModelID, kafka.ModelTrainedPayload{
		ModelID:         res.ModelID,
		Kind:            model.Kind().String(),
		Folding:         model.Folding(),
		TrainingSize:    model.TrainingSize(),
		TrainingActives: model.TrainingActives(),
		Contributions:   len(model.Contributions()),
		LowThreshold:    low,
		HighThreshold:   high,
		TrainedAt:       time.Now().UTC(),
	})

	if opts.Validation != "" {
		if err := s.validate(ctx, res.ModelID, model, opts.Validation); err != nil {
			return nil, err
		}
	}

	if opts.Persist {
		obj, err := s.Save(ctx, res.ModelID, model)
		if err != nil {
			return nil, err
		}
		res.Stored = obj
	}
	return res, nil
}

func (s *serviceImpl) build(records []mtypes.TrainingRecord, opts TrainOptions) (*bayesian.Model, error) {
	model, err := bayesian.NewModel(opts.Kind, opts.Folding,
		bayesian.WithLogger(s.logger.Named("bayesian")),
		bayesian.WithParallelism(s.parallelism))
	if err != nil {
		return nil, err
	}
	model.Notes = opts.Notes

	for i := range records {
		rec := &records[i]
		g, err := molecule.NewStructure(&rec.Molecule)
		if err != nil {
			return nil, errors.Wrap(err, errors.CodeUnknown, "invalid training record").WithDetail(fmt.Sprintf("record=%d", i))
		}
		if err := model.AddMolecule(g, rec.Active, rec.Hashes); err != nil {
			return nil, errors.Wrap(err, errors.CodeUnknown, "invalid training record").WithDetail(fmt.Sprintf("record=%d", i))
		}
	}
	if err := model.Build(); err != nil {
		return nil, err
	}
	return model, nil
}

func (s *serviceImpl) validate(ctx context.Context, id string, model *bayesian.Model, validation string) error {
	vt, err := bayesian.ParseValidationType(validation)
	if err != nil {
		return err
	}

	start := time.Now()
	err = model.Validate(ctx, vt)
	auc := math.NaN()
	if roc := model.ROC(); err == nil && roc != nil {
		auc = roc.AUC
	}
	s.metrics.RecordValidation(model.Kind().String(), vt.String(), time.Since(start), auc, err)
	if err != nil {
		s.metrics.RecordError("validate", errors.GetCode(err).String())
		return err
	}

	payload := kafka.ModelValidatedPayload{ModelID: id, Validation: vt.String(), ValidatedAt: time.Now().UTC()}
	if !math.IsNaN(auc) {
		payload.AUC = &auc
	}
	if t := model.Truth(); t != nil {
		payload.TP, payload.FP, payload.TN, payload.FN = t.TP, t.FP, t.TN, t.FN
	}
	s.logger.Info("model validated",
		logging.String("model_id", id),
		logging.String("validation", vt.String()),
		logging.Float64("auc", auc))
	s.publish(ctx, kafka.EventModelValidated, id, payload)
	return nil
}

// publish never fails the caller; a broken broker only costs the event.
func (s *serviceImpl) publish(ctx context.Context, eventType, id string, payload interface{}) {
	if s.events == nil {
		return
	}
	err := s.events.Publish(ctx, eventType, id, payload)
	s.metrics.RecordEvent(eventType, err)
	if err != nil {
		s.logger.Warn("model event not published",
			logging.String("event_type", eventType),
			logging.String("model_id", id),
			logging.Err(err))
	}
}

func (s *serviceImpl) Predict(ctx context.Context, model *bayesian.Model, mols []mtypes.Molecule, opts PredictOptions) ([]mtypes.Prediction, error) {
	if model == nil || !model.IsBuilt() {
		return nil, errors.New(errors.ErrCodeModelNotBuilt, "model has not been built")
	}

	out := make([]mtypes.Prediction, len(mols))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(s.parallelism)
	for i := range mols {
		i := i
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			p, err := predictOne(model, &mols[i], opts)
			if err != nil {
				return errors.Wrap(err, errors.CodeUnknown, "prediction failed").WithDetail(fmt.Sprintf("molecule=%d", i))
			}
			out[i] = *p
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	s.metrics.RecordPredictions(model.Kind().String(), len(mols))
	s.logger.Debug("molecules scored", logging.Int("count", len(mols)))
	return out, nil
}

func predictOne(model *bayesian.Model, dto *mtypes.Molecule, opts PredictOptions) (*mtypes.Prediction, error) {
	g, err := molecule.NewStructure(dto)
	if err != nil {
		return nil, err
	}
	if molecule.IsBlank(g) {
		return nil, errors.InvalidInput("molecule has no atoms")
	}
	hashes, err := model.Fingerprint(g)
	if err != nil {
		return nil, err
	}

	raw := model.PredictFP(hashes)
	scaled := model.ScalePredictor(raw)
	p := &mtypes.Prediction{
		Name:    dto.Name,
		Raw:     raw,
		Scaled:  scaled,
		ArcTan:  bayesian.ScaleArcTan(scaled),
		Overlap: model.CalculateOverlapFP(hashes),
	}
	if opts.Atoms {
		if p.Atoms, err = model.CalculateAtomPredictors(g); err != nil {
			return nil, err
		}
	}
	return p, nil
}

func (s *serviceImpl) Similarity(a, b *mtypes.Molecule, kind molecule.Kind, folding int) (*SimilarityResult, error) {
	fa, err := fingerprintDTO(a, kind, folding)
	if err != nil {
		return nil, err
	}
	fb, err := fingerprintDTO(b, kind, folding)
	if err != nil {
		return nil, err
	}
	score := molecule.Tanimoto(fa, fb)
	return &SimilarityResult{Score: score, Class: molecule.ClassifySimilarity(score)}, nil
}

func fingerprintDTO(dto *mtypes.Molecule, kind molecule.Kind, folding int) ([]uint32, error) {
	g, err := molecule.NewStructure(dto)
	if err != nil {
		return nil, err
	}
	if molecule.IsBlank(g) {
		return nil, errors.InvalidInput("molecule has no atoms")
	}
	return molecule.CalculateHashes(g, kind, folding)
}

func modelMetadata(model *bayesian.Model) map[string]string {
	meta := map[string]string{
		"kind":          model.Kind().String(),
		"folding":       strconv.Itoa(model.Folding()),
		"training-size": strconv.Itoa(model.TrainingSize()),
	}
	if roc := model.ROC(); roc != nil {
		if roc.Type.IsValid() {
			meta["validation"] = roc.Type.String()
		}
		meta["auc"] = strconv.FormatFloat(roc.AUC, 'g', -1, 64)
	}
	if model.Notes.Title != "" {
		meta["title"] = model.Notes.Title
	}
	return meta
}

// Save writes the model to the store under id, generating one when id is
// empty, and refreshes the cache entry.
func (s *serviceImpl) Save(ctx context.Context, id string, model *bayesian.Model) (*minio.ModelObject, error) {
	if s.store == nil {
		return nil, errNoStore
	}
	if model == nil || !model.IsBuilt() {
		return nil, errors.New(errors.ErrCodeModelNotBuilt, "model has not been built")
	}
	if id == "" {
		id = uuid.New().String()
	}

	text := model.Serialise()
	obj, err := s.store.Put(ctx, id, text, modelMetadata(model))
	s.metrics.RecordStoreOperation("put", err)
	if err != nil {
		s.metrics.RecordError("store", errors.GetCode(err).String())
		return nil, err
	}
	if s.cache != nil {
		if err := s.cache.Set(ctx, id, text); err != nil {
			s.logger.Warn("model cache not refreshed", logging.String("model_id", id), logging.Err(err))
		}
	}
	s.logger.Info("model saved", logging.String("model_id", id), logging.String("key", obj.Key))
	return obj, nil
}

func (s *serviceImpl) Load(ctx context.Context, id string) (*bayesian.Model, error) {
	if s.store == nil {
		return nil, errNoStore
	}
	loader := func(ctx context.Context) (string, error) {
		text, err := s.store.Get(ctx, id)
		s.metrics.RecordStoreOperation("get", err)
		return text, err
	}

	var (
		text string
		err  error
	)
	if s.cache != nil {
		loaded := false
		text, err = s.cache.GetOrLoad(ctx, id, func(ctx context.Context) (string, error) {
			loaded = true
			return loader(ctx)
		})
		s.metrics.RecordCacheAccess(!loaded)
	} else {
		text, err = loader(ctx)
	}
	if err != nil {
		return nil, err
	}

	model, err := bayesian.Deserialise(text,
		bayesian.WithLogger(s.logger.Named("bayesian")),
		bayesian.WithParallelism(s.parallelism))
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeUnknown, "stored model is malformed").WithDetail(id)
	}
	s.logger.Debug("model loaded", logging.String("model_id", id))
	return model, nil
}

func (s *serviceImpl) Delete(ctx context.Context, id string) error {
	if s.store == nil {
		return errNoStore
	}
	err := s.store.Delete(ctx, id)
	s.metrics.RecordStoreOperation("delete", err)
	if err != nil {
		return err
	}
	if s.cache != nil {
		if err := s.cache.Delete(ctx, id); err != nil {
			s.logger.Warn("model cache not evicted", logging.String("model_id", id), logging.Err(err))
		}
	}
	s.logger.Info("model deleted", logging.String("model_id", id))
	s.publish(ctx, kafka.EventModelDeleted, id, kafka.ModelDeletedPayload{ModelID: id, DeletedAt: time.Now().UTC()})
	return nil
}

func (s *serviceImpl) List(ctx context.Context) ([]*minio.ModelObject, error) {
	if s.store == nil {
		return nil, errNoStore
	}
	objs, err := s.store.List(ctx)
	s.metrics.RecordStoreOperation("list", err)
	return objs, err
}
