package bayesian

import (
	"cmp"
	"context"
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/integrate"

	"github.com/turtacn/molbayes/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/molbayes/pkg/errors"
)

// ---------------------------------------------------------------------------
// Validation types
// ---------------------------------------------------------------------------

// ValidationType selects the cross-validation strategy.
type ValidationType int

const (
	LeaveOneOut ValidationType = iota + 1
	ThreeFold
	FiveFold
)

func (v ValidationType) String() string {
	switch v {
	case LeaveOneOut:
		return "leave-one-out"
	case ThreeFold:
		return "three-fold"
	case FiveFold:
		return "five-fold"
	default:
		return fmt.Sprintf("ValidationType(%d)", int(v))
	}
}

// IsValid reports whether v names one of the three strategies.
func (v ValidationType) IsValid() bool { return v >= LeaveOneOut && v <= FiveFold }

// Folds returns the partition count, 0 for leave-one-out.
func (v ValidationType) Folds() int {
	switch v {
	case ThreeFold:
		return 3
	case FiveFold:
		return 5
	default:
		return 0
	}
}

// ParseValidationType accepts the serialized names ("five-fold") and the
// short forms "loo", "3" and "5".
func ParseValidationType(s string) (ValidationType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "leave-one-out", "loo":
		return LeaveOneOut, nil
	case "three-fold", "3":
		return ThreeFold, nil
	case "five-fold", "5":
		return FiveFold, nil
	}
	return 0, errors.InvalidParam("unknown validation type").WithDetail("type=" + s)
}

// ROC is the stored receiver-operating-characteristic analysis.  X and Y
// hold the collapsed curve; AUC was integrated over the full curve.
// A parsed model may lack some of them: Type is then zero, X and Y nil, and
// AUC NaN.
type ROC struct {
	Type ValidationType
	AUC  float64
	X    []float64
	Y    []float64

	aucMissing bool
}

// TruthTable holds confusion-matrix counts against the calibrated midpoint
// and the statistics derived from them.  Zero denominators yield NaN or Inf.
type TruthTable struct {
	TP, FP, TN, FN int

	Precision   float64
	Recall      float64
	Specificity float64
	F1          float64
	Kappa       float64
	MCC         float64

	// lines absent from a parsed model
	missing truthField
}

type truthField uint16

const (
	truthTP truthField = 1 << iota
	truthFP
	truthTN
	truthFN
	truthPrecision
	truthRecall
	truthSpecificity
	truthF1
	truthKappa
	truthMCC

	truthAllFields = truthMCC<<1 - 1
)

// truthFields lists the truth: lines in serialization order.
var truthFields = []struct {
	key    string
	flag   truthField
	format func(t *TruthTable) string
}{
	{"TP", truthTP, func(t *TruthTable) string { return strconv.Itoa(t.TP) }},
	{"FP", truthFP, func(t *TruthTable) string { return strconv.Itoa(t.FP) }},
	{"TN", truthTN, func(t *TruthTable) string { return strconv.Itoa(t.TN) }},
	{"FN", truthFN, func(t *TruthTable) string { return strconv.Itoa(t.FN) }},
	{"precision", truthPrecision, func(t *TruthTable) string { return formatFloat(t.Precision) }},
	{"recall", truthRecall, func(t *TruthTable) string { return formatFloat(t.Recall) }},
	{"specificity", truthSpecificity, func(t *TruthTable) string { return formatFloat(t.Specificity) }},
	{"F1", truthF1, func(t *TruthTable) string { return formatFloat(t.F1) }},
	{"kappa", truthKappa, func(t *TruthTable) string { return formatFloat(t.Kappa) }},
	{"MCC", truthMCC, func(t *TruthTable) string { return formatFloat(t.MCC) }},
}

// Total is TP+FP+TN+FN.
func (t *TruthTable) Total() int { return t.TP + t.FP + t.TN + t.FN }

const (
	rocBracket          = 0.01
	rocCollapseDistance = 0.002
)

// ---------------------------------------------------------------------------
// Entry points
// ---------------------------------------------------------------------------

// ValidateLeaveOneOut runs leave-one-out cross-validation.
func (m *Model) ValidateLeaveOneOut(ctx context.Context) error {
	return m.Validate(ctx, LeaveOneOut)
}

// ValidateThreeFold runs stratified three-fold cross-validation.
func (m *Model) ValidateThreeFold(ctx context.Context) error {
	return m.Validate(ctx, ThreeFold)
}

// ValidateFiveFold runs stratified five-fold cross-validation.
func (m *Model) ValidateFiveFold(ctx context.Context) error {
	return m.Validate(ctx, FiveFold)
}

// Validate cross-validates the built model, then stores the ROC curve and
// AUC, recalibrates the thresholds and computes the truth table.  The
// contribution table itself is not modified.
func (m *Model) Validate(ctx context.Context, vt ValidationType) error {
	if err := m.checkValidatable(vt); err != nil {
		return err
	}
	start := time.Now()

	var (
		estimates []float64
		err       error
	)
	if vt == LeaveOneOut {
		estimates, err = m.leaveOneOutEstimates(ctx)
	} else {
		estimates, err = m.foldEstimates(ctx, vt.Folds())
	}
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeValidationFailed, "cross-validation aborted").
			WithDetail(vt.String())
	}

	m.applyValidation(vt, estimates)

	m.logger.Debug("bayesian model validated",
		logging.String("type", vt.String()),
		logging.Int("training_size", m.trainingSize),
		logging.Float64("auc", m.roc.AUC),
		logging.Float64("low", m.lowThresh),
		logging.Float64("high", m.highThresh),
		logging.Duration("elapsed", time.Since(start)))
	return nil
}

func (m *Model) checkValidatable(vt ValidationType) error {
	if vt != LeaveOneOut && vt.Folds() == 0 {
		return errors.InvalidParam("unknown validation type").WithDetail(vt.String())
	}
	if !m.IsBuilt() {
		return errors.New(errors.ErrCodeModelNotBuilt, "model has not been built")
	}
	if len(m.training) == 0 {
		return errors.New(errors.ErrCodeTrainingEmpty, "training examples were cleared")
	}
	if len(m.training) != m.trainingSize {
		return errors.New(errors.ErrCodeModelNotBuilt, "training set changed since build").
			WithDetail(fmt.Sprintf("built=%d pending=%d", m.trainingSize, len(m.training)))
	}
	if m.trainingSize < 2 {
		return errors.New(errors.ErrCodeValidationFailed, "cross-validation needs at least two examples")
	}
	return nil
}

func b2i(b bool) int {
	if b {
		return 1
	}
	return 0
}

// ---------------------------------------------------------------------------
// Estimates
// ---------------------------------------------------------------------------

// singleLeaveOneOut predicts example i from the statistics with its own
// counts removed.
func (m *Model) singleLeaveOneOut(i int) float64 {
	ex := m.training[i]
	self := b2i(ex.active)
	pAT := float64(m.trainingActives-self) / float64(m.trainingSize-1)
	sum := 0.0
	for _, h := range ex.hashes {
		st, _ := m.inHash.Get(hashStat{hash: h})
		sum += contribution(st.active-self, st.total-1, pAT)
	}
	return sum
}

func (m *Model) leaveOneOutEstimates(ctx context.Context) ([]float64, error) {
	estimates := make([]float64, len(m.training))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.parallelism)
	for i := range m.training {
		i := i
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			estimates[i] = m.singleLeaveOneOut(i)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return estimates, nil
}

// foldAssignment stratifies by activity (actives first, then inactives, each
// in training order) and deals indices round-robin into folds.
func (m *Model) foldAssignment(folds int) []int {
	order := make([]int, 0, len(m.training))
	for i, ex := range m.training {
		if ex.active {
			order = append(order, i)
		}
	}
	for i, ex := range m.training {
		if !ex.active {
			order = append(order, i)
		}
	}
	foldOf := make([]int, len(m.training))
	for j, idx := range order {
		foldOf[idx] = j % folds
	}
	return foldOf
}

func (m *Model) foldEstimates(ctx context.Context, folds int) ([]float64, error) {
	foldOf := m.foldAssignment(folds)
	estimates := make([]float64, len(m.training))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.parallelism)
	for k := 0; k < folds; k++ {
		k := k
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			stats := newStats()
			size, actives := 0, 0
			for i, ex := range m.training {
				if foldOf[i] == k {
					continue
				}
				size++
				actives += b2i(ex.active)
				for _, h := range ex.hashes {
					st, _ := stats.Get(hashStat{hash: h})
					st.hash = h
					st.total++
					st.active += b2i(ex.active)
					stats.ReplaceOrInsert(st)
				}
			}
			table := contributionTable(stats, size, actives)
			for i, ex := range m.training {
				if foldOf[i] == k {
					estimates[i] = sumContributions(table, ex.hashes)
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return estimates, nil
}

// ---------------------------------------------------------------------------
// ROC, calibration and truth table
// ---------------------------------------------------------------------------

func (m *Model) applyValidation(vt ValidationType, estimates []float64) {
	actives := make([]bool, len(m.training))
	for i, ex := range m.training {
		actives[i] = ex.active
	}

	curve := calculateROC(estimates, actives)
	auc := math.NaN()
	if !curve.degenerate() {
		auc = integrate.Trapezoidal(curve.x, curve.y)
		// a zero-width window would turn ScalePredictor into a step;
		// the built thresholds stay in that case
		if low, high := curve.calibrate(); high > low {
			m.setThresholds(low, high)
		}
	}

	cx, cy := collapseCurve(curve.x, curve.y)
	m.estimates = estimates
	m.roc = &ROC{Type: vt, AUC: auc, X: cx, Y: cy}
	m.truth = calculateTruth(estimates, actives, 0.5*(m.lowThresh+m.highThresh))
}

// rocCurve is the full-resolution curve in ascending order, each point
// paired with the threshold that produced it.
type rocCurve struct {
	x, y       []float64
	thresholds []float64
	pos, neg   int
}

func (c rocCurve) degenerate() bool { return c.pos == 0 || c.neg == 0 }

// calculateROC sweeps thresholds from below the lowest estimate to above the
// highest, one between each pair of distinct neighbouring estimates.  The
// outer thresholds sit 1% of the estimates' span beyond either end.  A
// point is (false positive rate, true positive rate) with "positive"
// meaning the estimate is not below the threshold.
func calculateROC(estimates []float64, actives []bool) rocCurve {
	n := len(estimates)
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	slices.SortStableFunc(order, func(a, b int) int {
		return cmp.Compare(estimates[a], estimates[b])
	})

	low, high := estimates[order[0]], estimates[order[n-1]]
	span := high - low
	if span == 0 {
		span = math.Max(math.Abs(low), 1)
	}
	thresholds := []float64{low - rocBracket*span}
	for j := 1; j < n; j++ {
		prev, cur := estimates[order[j-1]], estimates[order[j]]
		if cur != prev {
			thresholds = append(thresholds, 0.5*(prev+cur))
		}
	}
	thresholds = append(thresholds, high+rocBracket*span)

	var curve rocCurve
	for _, a := range actives {
		if a {
			curve.pos++
		} else {
			curve.neg++
		}
	}

	xs := make([]float64, len(thresholds))
	ys := make([]float64, len(thresholds))
	trueBelow, falseBelow, p := 0, 0, 0
	for k, th := range thresholds {
		for p < n && estimates[order[p]] < th {
			if actives[order[p]] {
				trueBelow++
			} else {
				falseBelow++
			}
			p++
		}
		xs[k] = float64(curve.neg-falseBelow) / float64(curve.neg)
		ys[k] = float64(curve.pos-trueBelow) / float64(curve.pos)
	}
	slices.Reverse(xs)
	slices.Reverse(ys)
	slices.Reverse(thresholds)

	for k := range xs {
		last := len(curve.x) - 1
		if last >= 0 && xs[k] == curve.x[last] && ys[k] == curve.y[last] {
			continue
		}
		curve.x = append(curve.x, xs[k])
		curve.y = append(curve.y, ys[k])
		curve.thresholds = append(curve.thresholds, thresholds[k])
	}
	return curve
}

// calibrate picks the point maximising Youden's J (first wins on ties) and
// returns a threshold window centred on it, as wide as the nearer of the
// first point with a false positive and the last point that still misses a
// true positive.
func (c rocCurve) calibrate() (low, high float64) {
	best, bestJ := 0, math.Inf(-1)
	for i := range c.x {
		if j := c.y[i] - c.x[i]; j > bestJ {
			best, bestJ = i, j
		}
	}
	idxX, idxY := best, best
	for i := range c.x {
		if c.x[i] > 0 {
			idxX = i
			break
		}
	}
	for i := len(c.y) - 1; i >= 0; i-- {
		if c.y[i] < 1 {
			idxY = i
			break
		}
	}
	mid := c.thresholds[best]
	delta := math.Min(math.Abs(mid-c.thresholds[idxX]), math.Abs(c.thresholds[idxY]-mid))
	return mid - delta, mid + delta
}

// collapseCurve drops points closer than rocCollapseDistance to the last
// kept point.  The end points always survive.
func collapseCurve(x, y []float64) ([]float64, []float64) {
	if len(x) < 3 {
		return slices.Clone(x), slices.Clone(y)
	}
	cx, cy := []float64{x[0]}, []float64{y[0]}
	for i := 1; i < len(x)-1; i++ {
		last := len(cx) - 1
		if math.Hypot(x[i]-cx[last], y[i]-cy[last]) >= rocCollapseDistance {
			cx = append(cx, x[i])
			cy = append(cy, y[i])
		}
	}
	cx = append(cx, x[len(x)-1])
	cy = append(cy, y[len(y)-1])
	return cx, cy
}

// calculateTruth classifies every estimate as active when it reaches mid.
func calculateTruth(estimates []float64, actives []bool, mid float64) *TruthTable {
	t := &TruthTable{}
	for i, est := range estimates {
		predicted := est >= mid
		switch {
		case predicted && actives[i]:
			t.TP++
		case predicted:
			t.FP++
		case actives[i]:
			t.FN++
		default:
			t.TN++
		}
	}
	t.derive()
	return t
}

func (t *TruthTable) derive() {
	tp, fp, tn, fn := float64(t.TP), float64(t.FP), float64(t.TN), float64(t.FN)
	t.Precision = tp / (tp + fp)
	t.Recall = tp / (tp + fn)
	t.Specificity = tn / (tn + fp)
	t.F1 = 2 * t.Precision * t.Recall / (t.Precision + t.Recall)

	total := tp + fp + tn + fn
	p0 := (tp + tn) / total
	pe := ((tp+fp)*(tp+fn) + (tn+fn)*(tn+fp)) / (total * total)
	t.Kappa = (p0 - pe) / (1 - pe)
	t.MCC = (tp*tn - fp*fn) / math.Sqrt((tp+fp)*(tp+fn)*(tn+fp)*(tn+fn))
}
