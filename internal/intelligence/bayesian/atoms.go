package bayesian

import (
	"math"
	"slices"

	"gonum.org/v1/gonum/stat"

	"github.com/turtacn/molbayes/internal/domain/molecule"
	"github.com/turtacn/molbayes/pkg/errors"
)

// atomPredictorSD is the standard deviation the per-atom vector is scaled to.
const atomPredictorSD = 0.25

// coverageObserver gathers, for every modelled hash, the union of atoms
// covered by any candidate record whose folded hash matches it.
type coverageObserver struct {
	mask     uint32
	contribs map[uint32]float64
	coverage map[uint32][]int
}

func (o *coverageObserver) note(rec molecule.FingerprintRecord) {
	h := rec.HashCode & o.mask
	if _, ok := o.contribs[h]; !ok {
		return
	}
	merged := append(o.coverage[h], rec.Atoms...)
	slices.Sort(merged)
	o.coverage[h] = slices.Compact(merged)
}

func (o *coverageObserver) ConsiderRecord(rec molecule.FingerprintRecord) { o.note(rec) }
func (o *coverageObserver) ApplyRecord(rec molecule.FingerprintRecord)    { o.note(rec) }

// CalculateAtomPredictors spreads each matched hash's contribution evenly
// over the atoms it covers.  The resulting vector is centred, scaled to a
// fixed spread and shifted onto the molecule's scaled prediction clamped to
// [-1,1].  Atoms outside the active mask are reported as 0.
func (m *Model) CalculateAtomPredictors(mol molecule.Graph) ([]float64, error) {
	if molecule.IsBlank(mol) {
		return nil, errors.InvalidInput("cannot explain an empty molecule")
	}
	obs := &coverageObserver{
		mask:     m.foldMask,
		contribs: m.contribs,
		coverage: make(map[uint32][]int),
	}
	circ, err := molecule.NewCircular(mol, m.kind, molecule.WithObserver(obs))
	if err != nil {
		return nil, err
	}
	circ.Calculate()
	hashes, err := circ.FoldedHashes(m.folding)
	if err != nil {
		return nil, err
	}

	na := mol.AtomCount()
	raw := make([]float64, na)
	for h, atoms := range obs.coverage {
		share := m.contribs[h] / float64(len(atoms))
		for _, a := range atoms {
			raw[a] += share
		}
	}

	active := activeAtoms(circ)
	values := make([]float64, 0, len(active))
	for _, a := range active {
		values = append(values, raw[a])
	}
	mean, sd := 0.0, 0.0
	if len(values) > 0 {
		mean = stat.Mean(values, nil)
	}
	if len(values) > 1 {
		_, sd = stat.MeanStdDev(values, nil)
	}
	scale := 0.0
	if sd > 0 && !math.IsNaN(sd) {
		scale = atomPredictorSD / sd
	}

	shift := math.Max(-1, math.Min(1, m.ScalePredictor(m.PredictFP(hashes))))
	out := make([]float64, na)
	for _, a := range active {
		out[a] = (raw[a]-mean)*scale + shift
	}
	return out, nil
}

// activeAtoms lists atoms that took part in the calculation; every active
// atom seeds exactly one iteration-0 record.
func activeAtoms(circ *molecule.Circular) []int {
	var atoms []int
	for _, rec := range circ.Records() {
		if rec.Iteration == 0 {
			atoms = append(atoms, rec.CentralAtom)
		}
	}
	slices.Sort(atoms)
	return atoms
}
