// Package molecule provides the molecular graph model and the circular
// (ECFP-style) fingerprint engine: per-atom invariant seeding, iterative
// neighbourhood hashing with record de-duplication, and extraction of
// unique/folded hash sets with Tanimoto similarity.
package molecule

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/turtacn/molbayes/pkg/errors"
	mtypes "github.com/turtacn/molbayes/pkg/types/molecule"
)

// elementNumbers maps element symbols to atomic numbers for the elements a
// drug-like structure is expected to contain; anything else must carry an
// explicit atomic number.
var elementNumbers = map[string]int{
	"H": 1, "He": 2, "Li": 3, "Be": 4, "B": 5, "C": 6, "N": 7, "O": 8, "F": 9, "Ne": 10,
	"Na": 11, "Mg": 12, "Al": 13, "Si": 14, "P": 15, "S": 16, "Cl": 17, "Ar": 18,
	"K": 19, "Ca": 20, "Fe": 26, "Co": 27, "Ni": 28, "Cu": 29, "Zn": 30,
	"Ge": 32, "As": 33, "Se": 34, "Br": 35, "Kr": 36, "Pd": 46, "Ag": 47, "Sn": 50,
	"Sb": 51, "Te": 52, "I": 53, "Xe": 54, "Pt": 78, "Au": 79, "Hg": 80, "Pb": 82,
}

// standardValences holds the default valence per atomic number.  Elements
// absent from the table have valence 0.
var standardValences = map[int]int{
	1: 1, 5: 3, 6: 4, 7: 3, 8: 2, 9: 1,
	14: 4, 15: 3, 16: 2, 17: 1,
	32: 4, 33: 3, 34: 2, 35: 1,
	50: 4, 51: 3, 52: 2, 53: 1,
}

// AtomicNumberForSymbol resolves an element symbol, returning 0 when unknown.
func AtomicNumberForSymbol(symbol string) int {
	return elementNumbers[strings.TrimSpace(symbol)]
}

// StandardValence returns the default valence of an element, 0 when the
// element has no conventional organic valence.
func StandardValence(atomicNumber int) int {
	return standardValences[atomicNumber]
}

type structureAtom struct {
	atomicNumber int
	charge       int
	implicitH    int
	ringBlock    int
	excluded     bool
}

type structureBond struct {
	from, to int
	order    int
	aromatic bool
}

// Structure is the concrete in-memory Graph implementation.  It is built
// incrementally with AddAtom/AddBond or from a DTO with NewStructure.
type Structure struct {
	Name string

	atoms    []structureAtom
	bonds    []structureBond
	adjAtoms [][]int
	adjBonds [][]int
	tetra    map[int][4]int
}

// NewStructure converts a wire-level molecule into a Structure, validating
// atom symbols and bond endpoints.
func NewStructure(dto *mtypes.Molecule) (*Structure, error) {
	if dto == nil {
		return nil, errors.InvalidInput("molecule is nil")
	}
	s := &Structure{Name: dto.Name}
	for i, a := range dto.Atoms {
		num := a.AtomicNumber
		if num == 0 {
			num = AtomicNumberForSymbol(a.Element)
		}
		if num <= 0 {
			return nil, errors.New(errors.ErrCodeMoleculeInvalidFormat, "unknown element").
				WithDetail(fmt.Sprintf("atom=%d element=%q", i, a.Element))
		}
		idx := s.AddAtom(num, a.Charge, a.ImplicitHydrogens, a.RingBlock)
		s.atoms[idx].excluded = a.Excluded
	}
	for i, b := range dto.Bonds {
		if err := s.AddBond(b.From, b.To, b.Order, b.Aromatic); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeMoleculeInvalidFormat, "invalid bond").
				WithDetail(fmt.Sprintf("bond=%d", i))
		}
	}
	for key, rubric := range dto.Tetrahedral {
		atom, err := strconv.Atoi(key)
		if err != nil || atom < 0 || atom >= len(s.atoms) {
			return nil, errors.New(errors.ErrCodeMoleculeInvalidFormat, "invalid tetrahedral centre").
				WithDetail("key=" + key)
		}
		s.SetTetrahedral(atom, rubric)
	}
	return s, nil
}

// AddAtom appends an atom and returns its index.
func (s *Structure) AddAtom(atomicNumber, charge, implicitH, ringBlock int) int {
	s.atoms = append(s.atoms, structureAtom{
		atomicNumber: atomicNumber,
		charge:       charge,
		implicitH:    implicitH,
		ringBlock:    ringBlock,
	})
	s.adjAtoms = append(s.adjAtoms, nil)
	s.adjBonds = append(s.adjBonds, nil)
	return len(s.atoms) - 1
}

// AddBond joins two existing atoms and returns an error for out-of-range or
// self-referencing endpoints.
func (s *Structure) AddBond(from, to, order int, aromatic bool) error {
	if from < 0 || from >= len(s.atoms) || to < 0 || to >= len(s.atoms) || from == to {
		return errors.InvalidParam("bond endpoints out of range").
			WithDetail(fmt.Sprintf("from=%d to=%d atoms=%d", from, to, len(s.atoms)))
	}
	idx := len(s.bonds)
	s.bonds = append(s.bonds, structureBond{from: from, to: to, order: order, aromatic: aromatic})
	s.adjAtoms[from] = append(s.adjAtoms[from], to)
	s.adjBonds[from] = append(s.adjBonds[from], idx)
	s.adjAtoms[to] = append(s.adjAtoms[to], from)
	s.adjBonds[to] = append(s.adjBonds[to], idx)
	return nil
}

// SetTetrahedral records the parity rubric of a stereocentre.
func (s *Structure) SetTetrahedral(atom int, rubric [4]int) {
	if s.tetra == nil {
		s.tetra = make(map[int][4]int)
	}
	s.tetra[atom] = rubric
}

// DefaultMask returns the active-atom mask used when the caller supplies
// none: every atom that is neither hydrogen nor flagged as excluded.
func (s *Structure) DefaultMask() []bool {
	mask := make([]bool, len(s.atoms))
	for i, a := range s.atoms {
		mask[i] = a.atomicNumber != 1 && !a.excluded
	}
	return mask
}

func (s *Structure) AtomCount() int            { return len(s.atoms) }
func (s *Structure) AtomicNumber(atom int) int { return s.atoms[atom].atomicNumber }
func (s *Structure) Charge(atom int) int       { return s.atoms[atom].charge }
func (s *Structure) RingBlock(atom int) int    { return s.atoms[atom].ringBlock }
func (s *Structure) BondOrder(bond int) int    { return s.bonds[bond].order }
func (s *Structure) BondAromatic(bond int) bool {
	return s.bonds[bond].aromatic
}

// Hydrogens counts implicit hydrogens plus neighbouring hydrogen atoms.
func (s *Structure) Hydrogens(atom int) int {
	h := s.atoms[atom].implicitH
	for _, nb := range s.adjAtoms[atom] {
		if s.atoms[nb].atomicNumber == 1 {
			h++
		}
	}
	return h
}

func (s *Structure) Neighbors(atom int) (atoms, bonds []int) {
	return s.adjAtoms[atom], s.adjBonds[atom]
}

func (s *Structure) Tetrahedral(atom int) ([4]int, bool) {
	rubric, ok := s.tetra[atom]
	return rubric, ok
}

// IsBlank reports whether g is nil or has no atoms.
func IsBlank(g Graph) bool {
	if g == nil {
		return true
	}
	if s, ok := g.(*Structure); ok && s == nil {
		return true
	}
	return g.AtomCount() == 0
}
