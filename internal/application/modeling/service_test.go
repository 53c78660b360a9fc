package modeling

import (
	"context"
	"strings"
	"testing"

	"github.com/google/uuid"
	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/molbayes/internal/domain/molecule"
	"github.com/turtacn/molbayes/internal/infrastructure/messaging/kafka"
	"github.com/turtacn/molbayes/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/molbayes/internal/infrastructure/storage/minio"
	"github.com/turtacn/molbayes/internal/intelligence/bayesian"
	"github.com/turtacn/molbayes/internal/testutil"
	"github.com/turtacn/molbayes/pkg/errors"
	mtypes "github.com/turtacn/molbayes/pkg/types/molecule"
)

// ---------------------------------------------------------------------------
// mocks
// ---------------------------------------------------------------------------

type MockModelStore struct {
	mock.Mock
}

func (m *MockModelStore) Put(ctx context.Context, id, text string, metadata map[string]string) (*minio.ModelObject, error) {
	args := m.Called(ctx, id, text, metadata)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*minio.ModelObject), args.Error(1)
}

func (m *MockModelStore) Get(ctx context.Context, id string) (string, error) {
	args := m.Called(ctx, id)
	return args.String(0), args.Error(1)
}

func (m *MockModelStore) Stat(ctx context.Context, id string) (*minio.ModelObject, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*minio.ModelObject), args.Error(1)
}

func (m *MockModelStore) Delete(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockModelStore) List(ctx context.Context) ([]*minio.ModelObject, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*minio.ModelObject), args.Error(1)
}

type MockModelCache struct {
	mock.Mock
}

func (m *MockModelCache) Get(ctx context.Context, id string) (string, error) {
	args := m.Called(ctx, id)
	return args.String(0), args.Error(1)
}

func (m *MockModelCache) Set(ctx context.Context, id, text string) error {
	return m.Called(ctx, id, text).Error(0)
}

func (m *MockModelCache) Delete(ctx context.Context, ids ...string) error {
	return m.Called(ctx, ids).Error(0)
}

// GetOrLoad returns the stubbed text, or runs the loader when the third
// stubbed value is true.
func (m *MockModelCache) GetOrLoad(ctx context.Context, id string, loader func(ctx context.Context) (string, error)) (string, error) {
	args := m.Called(ctx, id)
	if args.Bool(2) {
		return loader(ctx)
	}
	return args.String(0), args.Error(1)
}

type MockEventPublisher struct {
	mock.Mock
}

func (m *MockEventPublisher) Publish(ctx context.Context, eventType, modelID string, payload interface{}) error {
	return m.Called(ctx, eventType, modelID, payload).Error(0)
}

func (m *MockEventPublisher) Close() error {
	return m.Called().Error(0)
}

// ---------------------------------------------------------------------------
// helpers
// ---------------------------------------------------------------------------

var ecfp4 = TrainOptions{Kind: molecule.ECFP4}

func trainedModel(t *testing.T) *bayesian.Model {
	t.Helper()
	res, err := NewService(nil).Train(context.Background(), testutil.AlcoholRecords(), ecfp4)
	require.NoError(t, err)
	return res.Model
}

func newMetrics(t *testing.T) (*prometheus.ModelMetrics, prometheus.MetricsCollector) {
	t.Helper()
	c, err := prometheus.NewMetricsCollector(prometheus.CollectorConfig{Namespace: "molbayes"}, nil)
	require.NoError(t, err)
	return prometheus.NewModelMetrics(c), c
}

// ---------------------------------------------------------------------------
// Train
// ---------------------------------------------------------------------------

func TestTrain_BuildsModel(t *testing.T) {
	log := testutil.NewMockLogger()
	res, err := NewService(log).Train(context.Background(), testutil.AlcoholRecords(), TrainOptions{
		Kind:    molecule.ECFP6,
		Folding: 1024,
		Notes:   bayesian.Notes{Title: "alcohols"},
	})
	require.NoError(t, err)

	_, err = uuid.Parse(res.ModelID)
	assert.NoError(t, err)
	assert.Nil(t, res.Stored)
	assert.Equal(t, molecule.ECFP6, res.Model.Kind())
	assert.Equal(t, 1024, res.Model.Folding())
	assert.Equal(t, 6, res.Model.TrainingSize())
	assert.Equal(t, 3, res.Model.TrainingActives())
	assert.Equal(t, "alcohols", res.Model.Notes.Title)
	assert.Nil(t, res.Model.ROC())
	assert.True(t, log.HasMessage("info", "model trained"))
}

func TestTrain_PrecomputedHashes(t *testing.T) {
	records := []mtypes.TrainingRecord{
		{Hashes: []uint32{1, 2}, Active: true},
		{Hashes: []uint32{3}},
	}
	res, err := NewService(nil).Train(context.Background(), records, ecfp4)
	require.NoError(t, err)
	assert.Len(t, res.Model.Contributions(), 3)
}

func TestTrain_Errors(t *testing.T) {
	ctx := context.Background()
	svc := NewService(nil)

	_, err := svc.Train(ctx, nil, ecfp4)
	assert.True(t, errors.IsCode(err, errors.ErrCodeTrainingEmpty))

	_, err = svc.Train(ctx, testutil.AlcoholRecords(), TrainOptions{Kind: molecule.ECFP4, Folding: 100})
	assert.True(t, errors.IsCode(err, errors.ErrCodeFoldingInvalid))

	bad := testutil.AlcoholRecords()
	bad[2].Molecule.Atoms[0].Element = "Xx"
	_, err = svc.Train(ctx, bad, ecfp4)
	assert.True(t, errors.IsCode(err, errors.ErrCodeMoleculeInvalidFormat))
	assert.Contains(t, err.Error(), "record=2")

	blank := append(testutil.AlcoholRecords(), mtypes.TrainingRecord{Active: true})
	_, err = svc.Train(ctx, blank, ecfp4)
	assert.True(t, errors.IsCode(err, errors.ErrCodeInvalidInput))

	_, err = svc.Train(ctx, testutil.AlcoholRecords(), TrainOptions{Kind: molecule.ECFP4, Validation: "7"})
	assert.True(t, errors.IsCode(err, errors.CodeInvalidParam))
}

func TestTrain_ValidatesAndPublishes(t *testing.T) {
	events := new(MockEventPublisher)
	var validated kafka.ModelValidatedPayload
	events.On("Publish", mock.Anything, kafka.EventModelTrained, mock.Anything, mock.AnythingOfType("kafka.ModelTrainedPayload")).Return(nil).Once()
	events.On("Publish", mock.Anything, kafka.EventModelValidated, mock.Anything, mock.AnythingOfType("kafka.ModelValidatedPayload")).
		Run(func(args mock.Arguments) { validated = args.Get(3).(kafka.ModelValidatedPayload) }).
		Return(nil).Once()

	metrics, collector := newMetrics(t)
	svc := NewService(nil, WithEvents(events), WithMetrics(metrics), WithParallelism(2))
	res, err := svc.Train(context.Background(), testutil.AlcoholRecords(), TrainOptions{Kind: molecule.ECFP4, Validation: "loo"})
	require.NoError(t, err)
	events.AssertExpectations(t)

	roc := res.Model.ROC()
	require.NotNil(t, roc)
	assert.Equal(t, bayesian.LeaveOneOut, roc.Type)
	assert.Equal(t, res.ModelID, validated.ModelID)
	assert.Equal(t, "leave-one-out", validated.Validation)
	require.NotNil(t, validated.AUC)
	assert.Equal(t, roc.AUC, *validated.AUC)
	assert.Equal(t, 6, validated.TP+validated.FP+validated.TN+validated.FN)

	n, err := promtestutil.GatherAndCount(collector.Gatherer(), "molbayes_model_validation_auc", "molbayes_model_trainings_total")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestTrain_EventFailureIsNotFatal(t *testing.T) {
	events := new(MockEventPublisher)
	events.On("Publish", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(errors.New(errors.ErrCodeMessaging, "broker down"))
	log := testutil.NewMockLogger()

	res, err := NewService(log, WithEvents(events)).Train(context.Background(), testutil.AlcoholRecords(), ecfp4)
	require.NoError(t, err)
	assert.NotNil(t, res.Model)
	assert.True(t, log.HasMessage("warn", "model event not published"))
}

func TestTrain_RecordsFailureMetric(t *testing.T) {
	metrics, collector := newMetrics(t)
	_, err := NewService(nil, WithMetrics(metrics)).Train(context.Background(), nil, ecfp4)
	require.Error(t, err)

	expected := `
# HELP molbayes_model_trainings_total Models trained
# TYPE molbayes_model_trainings_total counter
molbayes_model_trainings_total{kind="ECFP4",status="failure"} 1
`
	assert.NoError(t, promtestutil.GatherAndCompare(collector.Gatherer(), strings.NewReader(expected), "molbayes_model_trainings_total"))
}

func TestTrain_Persists(t *testing.T) {
	store := new(MockModelStore)
	cache := new(MockModelCache)
	store.On("Put", mock.Anything, mock.Anything, mock.MatchedBy(func(text string) bool {
		return strings.HasPrefix(text, "Bayesian!(ECFP4,0,")
	}), mock.MatchedBy(func(meta map[string]string) bool {
		return meta["kind"] == "ECFP4" && meta["training-size"] == "6" && meta["validation"] == "five-fold"
	})).Return(&minio.ModelObject{Key: "k.bayesian"}, nil)
	cache.On("Set", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	svc := NewService(nil, WithStore(store), WithCache(cache))
	res, err := svc.Train(context.Background(), testutil.AlcoholRecords(), TrainOptions{Kind: molecule.ECFP4, Validation: "5", Persist: true})
	require.NoError(t, err)
	require.NotNil(t, res.Stored)

	store.AssertCalled(t, "Put", mock.Anything, res.ModelID, mock.Anything, mock.Anything)
	cache.AssertCalled(t, "Set", mock.Anything, res.ModelID, res.Model.Serialise())
}

// ---------------------------------------------------------------------------
// Predict & Similarity
// ---------------------------------------------------------------------------

func TestPredict(t *testing.T) {
	model := trainedModel(t)
	mols := []mtypes.Molecule{testutil.ChainDTO("methane", 1, false), *testutil.EthanolDTO(), testutil.ChainDTO("butanol", 4, true)}

	preds, err := NewService(nil, WithParallelism(2)).Predict(context.Background(), model, mols, PredictOptions{})
	require.NoError(t, err)
	require.Len(t, preds, 3)

	assert.Equal(t, "methane", preds[0].Name)
	assert.Equal(t, "ethanol", preds[1].Name)
	assert.Less(t, preds[0].Raw, preds[1].Raw)
	assert.Equal(t, 1.0, preds[1].Overlap)
	assert.Less(t, preds[2].Overlap, 1.0)
	for _, p := range preds {
		assert.InDelta(t, model.ScalePredictor(p.Raw), p.Scaled, 1e-12)
		assert.InDelta(t, bayesian.ScaleArcTan(p.Scaled), p.ArcTan, 1e-12)
		assert.Nil(t, p.Atoms)
	}
}

func TestPredict_AtomPredictors(t *testing.T) {
	model := trainedModel(t)
	preds, err := NewService(nil).Predict(context.Background(), model, []mtypes.Molecule{*testutil.EthanolDTO()}, PredictOptions{Atoms: true})
	require.NoError(t, err)
	assert.Len(t, preds[0].Atoms, 3)
}

func TestPredict_Errors(t *testing.T) {
	ctx := context.Background()
	svc := NewService(nil)

	_, err := svc.Predict(ctx, nil, nil, PredictOptions{})
	assert.True(t, errors.IsCode(err, errors.ErrCodeModelNotBuilt))

	unbuilt, err := bayesian.NewModel(molecule.ECFP4, 0)
	require.NoError(t, err)
	_, err = svc.Predict(ctx, unbuilt, nil, PredictOptions{})
	assert.True(t, errors.IsCode(err, errors.ErrCodeModelNotBuilt))

	_, err = svc.Predict(ctx, trainedModel(t), []mtypes.Molecule{*testutil.EthanolDTO(), {Name: "empty"}}, PredictOptions{})
	assert.True(t, errors.IsCode(err, errors.ErrCodeInvalidInput))
	assert.Contains(t, err.Error(), "molecule=1")
}

func TestPredict_Empty(t *testing.T) {
	preds, err := NewService(nil).Predict(context.Background(), trainedModel(t), nil, PredictOptions{})
	require.NoError(t, err)
	assert.Empty(t, preds)
}

func TestSimilarity(t *testing.T) {
	svc := NewService(nil)
	ethanol := testutil.EthanolDTO()

	res, err := svc.Similarity(ethanol, testutil.EthanolDTO(), molecule.ECFP4, 0)
	require.NoError(t, err)
	assert.Equal(t, 1.0, res.Score)
	assert.Equal(t, "identical", res.Class)

	propane := testutil.ChainDTO("propane", 3, false)
	res, err = svc.Similarity(ethanol, &propane, molecule.ECFP4, 0)
	require.NoError(t, err)
	assert.Less(t, res.Score, 0.5)
	assert.Equal(t, "dissimilar", res.Class)

	_, err = svc.Similarity(ethanol, &mtypes.Molecule{}, molecule.ECFP4, 0)
	assert.True(t, errors.IsCode(err, errors.ErrCodeInvalidInput))

	_, err = svc.Similarity(ethanol, ethanol, molecule.ECFP4, 12)
	assert.True(t, errors.IsCode(err, errors.ErrCodeFoldingInvalid))
}

// ---------------------------------------------------------------------------
// Persistence
// ---------------------------------------------------------------------------

func TestPersistence_WithoutStore(t *testing.T) {
	ctx := context.Background()
	svc := NewService(nil)

	_, err := svc.Train(ctx, testutil.AlcoholRecords(), TrainOptions{Kind: molecule.ECFP4, Persist: true})
	assert.True(t, errors.IsCode(err, errors.CodeConflict))
	_, err = svc.Save(ctx, "", trainedModel(t))
	assert.True(t, errors.IsCode(err, errors.CodeConflict))
	_, err = svc.Load(ctx, "m1")
	assert.True(t, errors.IsCode(err, errors.CodeConflict))
	assert.True(t, errors.IsCode(svc.Delete(ctx, "m1"), errors.CodeConflict))
	_, err = svc.List(ctx)
	assert.True(t, errors.IsCode(err, errors.CodeConflict))
}

func TestSave_GeneratesIDAndToleratesCacheFailure(t *testing.T) {
	store := new(MockModelStore)
	cache := new(MockModelCache)
	log := testutil.NewMockLogger()
	store.On("Put", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(&minio.ModelObject{Key: "x.bayesian"}, nil)
	cache.On("Set", mock.Anything, mock.Anything, mock.Anything).Return(errors.New(errors.ErrCodeCacheError, "down"))

	_, err := NewService(log, WithStore(store), WithCache(cache)).Save(context.Background(), "", trainedModel(t))
	require.NoError(t, err)

	id := store.Calls[0].Arguments.String(1)
	_, err = uuid.Parse(id)
	assert.NoError(t, err)
	assert.True(t, log.HasMessage("warn", "model cache not refreshed"))
}

func TestSave_Errors(t *testing.T) {
	store := new(MockModelStore)
	store.On("Put", mock.Anything, "m1", mock.Anything, mock.Anything).Return(nil, errors.New(errors.ErrCodeStorageError, "disk full"))
	svc := NewService(nil, WithStore(store))

	_, err := svc.Save(context.Background(), "m1", trainedModel(t))
	assert.True(t, errors.IsCode(err, errors.ErrCodeStorageError))

	unbuilt, _ := bayesian.NewModel(molecule.ECFP2, 0)
	_, err = svc.Save(context.Background(), "m1", unbuilt)
	assert.True(t, errors.IsCode(err, errors.ErrCodeModelNotBuilt))
}

func TestLoad_CacheHit(t *testing.T) {
	model := trainedModel(t)
	store := new(MockModelStore)
	cache := new(MockModelCache)
	cache.On("GetOrLoad", mock.Anything, "m1").Return(model.Serialise(), nil, false)
	metrics, collector := newMetrics(t)

	loaded, err := NewService(nil, WithStore(store), WithCache(cache), WithMetrics(metrics)).Load(context.Background(), "m1")
	require.NoError(t, err)
	assert.Equal(t, model.Contributions(), loaded.Contributions())
	store.AssertNotCalled(t, "Get", mock.Anything, mock.Anything)

	n, err := promtestutil.GatherAndCount(collector.Gatherer(), "molbayes_model_cache_hits_total")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestLoad_CacheMissFallsThroughToStore(t *testing.T) {
	model := trainedModel(t)
	store := new(MockModelStore)
	cache := new(MockModelCache)
	cache.On("GetOrLoad", mock.Anything, "m1").Return("", nil, true)
	store.On("Get", mock.Anything, "m1").Return(model.Serialise(), nil)

	loaded, err := NewService(nil, WithStore(store), WithCache(cache)).Load(context.Background(), "m1")
	require.NoError(t, err)
	assert.Equal(t, model.Serialise(), loaded.Serialise())
	store.AssertExpectations(t)
}

func TestLoad_Errors(t *testing.T) {
	store := new(MockModelStore)
	store.On("Get", mock.Anything, "gone").Return("", errors.New(errors.ErrCodeModelNotFound, "model not found"))
	store.On("Get", mock.Anything, "junk").Return("not a model", nil)
	svc := NewService(nil, WithStore(store))

	_, err := svc.Load(context.Background(), "gone")
	assert.True(t, errors.IsNotFound(err))

	_, err = svc.Load(context.Background(), "junk")
	assert.True(t, errors.IsCode(err, errors.ErrCodeModelFormat))
}

func TestDelete(t *testing.T) {
	store := new(MockModelStore)
	cache := new(MockModelCache)
	events := new(MockEventPublisher)
	store.On("Delete", mock.Anything, "m1").Return(nil)
	cache.On("Delete", mock.Anything, []string{"m1"}).Return(nil)
	events.On("Publish", mock.Anything, kafka.EventModelDeleted, "m1", mock.AnythingOfType("kafka.ModelDeletedPayload")).Return(nil)

	require.NoError(t, NewService(nil, WithStore(store), WithCache(cache), WithEvents(events)).Delete(context.Background(), "m1"))
	store.AssertExpectations(t)
	cache.AssertExpectations(t)
	events.AssertExpectations(t)
}

func TestDelete_StoreFailureSkipsEviction(t *testing.T) {
	store := new(MockModelStore)
	cache := new(MockModelCache)
	store.On("Delete", mock.Anything, "m1").Return(errors.New(errors.ErrCodeStorageError, "denied"))

	err := NewService(nil, WithStore(store), WithCache(cache)).Delete(context.Background(), "m1")
	assert.True(t, errors.IsCode(err, errors.ErrCodeStorageError))
	cache.AssertNotCalled(t, "Delete", mock.Anything, mock.Anything)
}

func TestList(t *testing.T) {
	store := new(MockModelStore)
	objs := []*minio.ModelObject{{ID: "a"}, {ID: "b"}}
	store.On("List", mock.Anything).Return(objs, nil)

	got, err := NewService(nil, WithStore(store)).List(context.Background())
	require.NoError(t, err)
	assert.Equal(t, objs, got)
}
