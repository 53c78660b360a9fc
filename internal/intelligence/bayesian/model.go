// Package bayesian implements the Laplace-corrected naive Bayesian activity
// model over circular fingerprints: training statistics, per-hash log-odds
// contributions, prediction and scaling, cross-validation with ROC analysis,
// and the textual "Bayesian!" persistence format.
package bayesian

import (
	"fmt"
	"math"
	"runtime"

	"github.com/google/btree"

	"github.com/turtacn/molbayes/internal/domain/molecule"
	"github.com/turtacn/molbayes/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/molbayes/pkg/errors"
)

// ---------------------------------------------------------------------------
// Training state
// ---------------------------------------------------------------------------

// hashStat is the running {active, total} count of one hash code.
type hashStat struct {
	hash   uint32
	active int
	total  int
}

func hashStatLess(a, b hashStat) bool { return a.hash < b.hash }

const statsDegree = 32

func newStats() *btree.BTreeG[hashStat] {
	return btree.NewG[hashStat](statsDegree, hashStatLess)
}

// trainingExample is a fingerprinted molecule retained for validation.
type trainingExample struct {
	hashes []uint32
	active bool
}

// Notes is free-form provenance carried with a model.
type Notes struct {
	Title    string
	Origin   string
	Field    string
	Comments []string
}

// ---------------------------------------------------------------------------
// Model
// ---------------------------------------------------------------------------

// Option configures a Model.
type Option func(*Model)

// WithLogger sets the logger used for build and validation summaries.
func WithLogger(l logging.Logger) Option {
	return func(m *Model) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithParallelism bounds the number of goroutines used by cross-validation.
// Values below 1 select runtime.NumCPU.
func WithParallelism(n int) Option {
	return func(m *Model) { m.parallelism = n }
}

// Model is a single-property, binary-activity Bayesian model.  Training
// statistics accumulate through AddMolecule until Build derives the
// contribution table; after that the table is read-only and only the
// validation-derived fields change.
type Model struct {
	kind     molecule.Kind
	folding  int
	foldMask uint32

	numActive int
	training  []trainingExample
	inHash    *btree.BTreeG[hashStat]

	contribs        map[uint32]float64
	lowThresh       float64
	highThresh      float64
	rangeThresh     float64
	invRange        float64
	trainingSize    int
	trainingActives int

	estimates []float64
	roc       *ROC
	truth     *TruthTable

	Notes Notes

	logger      logging.Logger
	parallelism int
}

// NewModel creates an empty model for the given fingerprint kind and
// folding (0 or a power of two).
func NewModel(kind molecule.Kind, folding int, opts ...Option) (*Model, error) {
	if !kind.IsValid() {
		return nil, errors.New(errors.ErrCodeFingerprintKindUnsupported, "unsupported fingerprint kind").
			WithDetail(kind.String())
	}
	if !molecule.ValidFolding(folding) {
		return nil, errors.New(errors.ErrCodeFoldingInvalid, "folding must be zero or a power of two").
			WithDetail(fmt.Sprintf("folding=%d", folding))
	}
	m := &Model{
		kind:     kind,
		folding:  folding,
		foldMask: molecule.FoldMask(folding),
		inHash:   newStats(),
		logger:   logging.NewNopLogger(),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.parallelism < 1 {
		m.parallelism = runtime.NumCPU()
	}
	return m, nil
}

func (m *Model) Kind() molecule.Kind { return m.kind }
func (m *Model) Folding() int        { return m.folding }

// TrainingSize and TrainingActives describe the set the model was built from.
func (m *Model) TrainingSize() int    { return m.trainingSize }
func (m *Model) TrainingActives() int { return m.trainingActives }

// Thresholds returns the current low and high calibration thresholds.
func (m *Model) Thresholds() (low, high float64) { return m.lowThresh, m.highThresh }

// Range returns highThresh-lowThresh as last computed.
func (m *Model) Range() float64 { return m.rangeThresh }

// IsBuilt reports whether a contribution table exists.
func (m *Model) IsBuilt() bool { return m.contribs != nil }

// PendingExamples is the number of retained training examples.
func (m *Model) PendingExamples() int { return len(m.training) }

// Contribution returns the log-odds contribution of hash.
func (m *Model) Contribution(hash uint32) (float64, bool) {
	c, ok := m.contribs[hash]
	return c, ok
}

// Contributions returns a copy of the contribution table.
func (m *Model) Contributions() map[uint32]float64 {
	out := make(map[uint32]float64, len(m.contribs))
	for h, c := range m.contribs {
		out[h] = c
	}
	return out
}

// Statistic returns the accumulated counts for hash.
func (m *Model) Statistic(hash uint32) (active, total int, ok bool) {
	st, ok := m.inHash.Get(hashStat{hash: hash})
	return st.active, st.total, ok
}

// Estimates returns the cross-validated estimate of every training example,
// aligned with training order, or nil before validation.
func (m *Model) Estimates() []float64 { return m.estimates }

// ROC returns the stored ROC analysis, nil before validation.
func (m *Model) ROC() *ROC { return m.roc }

// Truth returns the confusion-matrix statistics, nil before validation.
func (m *Model) Truth() *TruthTable { return m.truth }

// Fingerprint computes the model's folded unique hashes for mol.
func (m *Model) Fingerprint(mol molecule.Graph) ([]uint32, error) {
	return molecule.CalculateHashes(mol, m.kind, m.folding)
}

// AddMolecule records one training example.  When hashes is nil the
// fingerprint is computed from mol, which must then be non-blank.
func (m *Model) AddMolecule(mol molecule.Graph, active bool, hashes []uint32) error {
	var (
		set []uint32
		err error
	)
	if hashes != nil {
		set, err = molecule.FoldHashes(hashes, m.folding)
	} else {
		if molecule.IsBlank(mol) {
			return errors.InvalidInput("molecule is empty and no hashes were supplied")
		}
		set, err = m.Fingerprint(mol)
	}
	if err != nil {
		return err
	}

	if active {
		m.numActive++
	}
	m.training = append(m.training, trainingExample{hashes: set, active: active})
	for _, h := range set {
		st, _ := m.inHash.Get(hashStat{hash: h})
		st.hash = h
		st.total++
		if active {
			st.active++
		}
		m.inHash.ReplaceOrInsert(st)
	}
	return nil
}

// contribution is the Laplace-corrected log-odds of a hash seen in total
// molecules, active of them, against the base rate pAT.
func contribution(active, total int, pAT float64) float64 {
	return math.Log((float64(active) + 1) / (float64(total)*pAT + 1))
}

func contributionTable(stats *btree.BTreeG[hashStat], size, actives int) map[uint32]float64 {
	pAT := float64(actives) / float64(size)
	table := make(map[uint32]float64, stats.Len())
	stats.Ascend(func(st hashStat) bool {
		table[st.hash] = contribution(st.active, st.total, pAT)
		return true
	})
	return table
}

func sumContributions(table map[uint32]float64, hashes []uint32) float64 {
	sum := 0.0
	for _, h := range hashes {
		sum += table[h]
	}
	return sum
}

// Build derives the contribution table from the accumulated statistics and
// resets the thresholds to the extremes of the training predictions.  Any
// earlier validation results are discarded.
func (m *Model) Build() error {
	if len(m.training) == 0 {
		return errors.New(errors.ErrCodeTrainingEmpty, "no training examples")
	}
	m.trainingSize = len(m.training)
	m.trainingActives = m.numActive
	m.contribs = contributionTable(m.inHash, m.trainingSize, m.trainingActives)

	low, high := math.Inf(1), math.Inf(-1)
	for _, ex := range m.training {
		pred := sumContributions(m.contribs, ex.hashes)
		low = math.Min(low, pred)
		high = math.Max(high, pred)
	}
	m.setThresholds(low, high)
	m.estimates, m.roc, m.truth = nil, nil, nil

	m.logger.Debug("bayesian model built",
		logging.String("kind", m.kind.String()),
		logging.Int("folding", m.folding),
		logging.Int("training_size", m.trainingSize),
		logging.Int("training_actives", m.trainingActives),
		logging.Int("hashes", len(m.contribs)),
		logging.Float64("low", low),
		logging.Float64("high", high))
	return nil
}

func (m *Model) setThresholds(low, high float64) {
	m.lowThresh, m.highThresh = low, high
	m.rangeThresh = high - low
	m.invRange = 0
	if m.rangeThresh > 0 {
		m.invRange = 1 / m.rangeThresh
	}
}

// ClearTraining drops the retained examples and statistics.  The
// contribution table stays usable for prediction.
func (m *Model) ClearTraining() {
	m.training = nil
	m.numActive = 0
	m.inHash.Clear(false)
}

// ---------------------------------------------------------------------------
// Prediction
// ---------------------------------------------------------------------------

// PredictFP sums the contributions of the given hashes; hashes unknown to
// the model contribute nothing.
func (m *Model) PredictFP(hashes []uint32) float64 {
	return sumContributions(m.contribs, hashes)
}

// PredictMolecule fingerprints mol and returns its raw prediction.
func (m *Model) PredictMolecule(mol molecule.Graph) (float64, error) {
	if molecule.IsBlank(mol) {
		return 0, errors.InvalidInput("cannot predict an empty molecule")
	}
	hashes, err := m.Fingerprint(mol)
	if err != nil {
		return 0, err
	}
	return m.PredictFP(hashes), nil
}

// ScalePredictor maps a raw prediction onto the calibrated range, where
// lowThresh lands at 0 and highThresh at 1.  Values outside the training
// domain are not clamped.  A zero range degrades to a 0/1 step at
// highThresh.
func (m *Model) ScalePredictor(pred float64) float64 {
	if m.rangeThresh == 0 {
		if pred >= m.highThresh {
			return 1
		}
		return 0
	}
	return (pred - m.lowThresh) * m.invRange
}

// ScaleArcTan squashes a scaled prediction into the open interval (0,1),
// keeping 0.5 fixed.
func ScaleArcTan(scaled float64) float64 {
	return math.Atan(2*scaled-1)/math.Pi + 0.5
}

// CalculateOverlapFP is the fraction of hashes known to the model.
func (m *Model) CalculateOverlapFP(hashes []uint32) float64 {
	if len(hashes) == 0 {
		return 0
	}
	seen := 0
	for _, h := range hashes {
		if _, ok := m.contribs[h]; ok {
			seen++
		}
	}
	return float64(seen) / float64(len(hashes))
}

// CalculateOverlap fingerprints mol and returns its overlap with the model.
func (m *Model) CalculateOverlap(mol molecule.Graph) (float64, error) {
	if molecule.IsBlank(mol) {
		return 0, errors.InvalidInput("cannot measure overlap of an empty molecule")
	}
	hashes, err := m.Fingerprint(mol)
	if err != nil {
		return 0, err
	}
	return m.CalculateOverlapFP(hashes), nil
}
