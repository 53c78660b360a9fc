package testutil

import (
	"github.com/turtacn/molbayes/internal/domain/molecule"
	mtypes "github.com/turtacn/molbayes/pkg/types/molecule"
)

// Hydrogen-suppressed structures used across packages.  Atom 0 is always the
// first heavy atom listed in the name.

// Methane returns CH4.
func Methane() *molecule.Structure {
	s := &molecule.Structure{Name: "methane"}
	s.AddAtom(6, 0, 4, 0)
	return s
}

// Ethane returns CH3-CH3.
func Ethane() *molecule.Structure {
	s := &molecule.Structure{Name: "ethane"}
	c1 := s.AddAtom(6, 0, 3, 0)
	c2 := s.AddAtom(6, 0, 3, 0)
	mustBond(s, c1, c2, 1, false)
	return s
}

// Methanol returns CH3-OH.
func Methanol() *molecule.Structure {
	s := &molecule.Structure{Name: "methanol"}
	c := s.AddAtom(6, 0, 3, 0)
	o := s.AddAtom(8, 0, 1, 0)
	mustBond(s, c, o, 1, false)
	return s
}

// Ethanol returns CH3-CH2-OH.
func Ethanol() *molecule.Structure {
	s := &molecule.Structure{Name: "ethanol"}
	c1 := s.AddAtom(6, 0, 3, 0)
	c2 := s.AddAtom(6, 0, 2, 0)
	o := s.AddAtom(8, 0, 1, 0)
	mustBond(s, c1, c2, 1, false)
	mustBond(s, c2, o, 1, false)
	return s
}

// Propane returns CH3-CH2-CH3.
func Propane() *molecule.Structure {
	s := &molecule.Structure{Name: "propane"}
	c1 := s.AddAtom(6, 0, 3, 0)
	c2 := s.AddAtom(6, 0, 2, 0)
	c3 := s.AddAtom(6, 0, 3, 0)
	mustBond(s, c1, c2, 1, false)
	mustBond(s, c2, c3, 1, false)
	return s
}

// Propanol returns CH3-CH2-CH2-OH.
func Propanol() *molecule.Structure {
	s := &molecule.Structure{Name: "propanol"}
	c1 := s.AddAtom(6, 0, 3, 0)
	c2 := s.AddAtom(6, 0, 2, 0)
	c3 := s.AddAtom(6, 0, 2, 0)
	o := s.AddAtom(8, 0, 1, 0)
	mustBond(s, c1, c2, 1, false)
	mustBond(s, c2, c3, 1, false)
	mustBond(s, c3, o, 1, false)
	return s
}

// Benzene returns an aromatic six-ring in ring block 1.
func Benzene() *molecule.Structure {
	s := &molecule.Structure{Name: "benzene"}
	for i := 0; i < 6; i++ {
		s.AddAtom(6, 0, 1, 1)
	}
	for i := 0; i < 6; i++ {
		mustBond(s, i, (i+1)%6, 1, true)
	}
	return s
}

// Phenol returns benzene carrying a hydroxyl on atom 0; the oxygen is atom 6.
func Phenol() *molecule.Structure {
	s := Benzene()
	s.Name = "phenol"
	o := s.AddAtom(8, 0, 1, 0)
	mustBond(s, 0, o, 1, false)
	return s
}

// BromoChloroFluoroMethane returns CHFClBr with a tetrahedral rubric on the
// carbon; invert swaps two substituents to give the other enantiomer.
func BromoChloroFluoroMethane(invert bool) *molecule.Structure {
	s := &molecule.Structure{Name: "bromochlorofluoromethane"}
	c := s.AddAtom(6, 0, 1, 0)
	f := s.AddAtom(9, 0, 0, 0)
	cl := s.AddAtom(17, 0, 0, 0)
	br := s.AddAtom(35, 0, 0, 0)
	mustBond(s, c, f, 1, false)
	mustBond(s, c, cl, 1, false)
	mustBond(s, c, br, 1, false)
	if invert {
		s.SetTetrahedral(c, [4]int{cl, f, br, -1})
	} else {
		s.SetTetrahedral(c, [4]int{f, cl, br, -1})
	}
	return s
}

// EthanolDTO returns ethanol in wire form.
func EthanolDTO() *mtypes.Molecule {
	return &mtypes.Molecule{
		Name: "ethanol",
		Atoms: []mtypes.Atom{
			{Element: "C", ImplicitHydrogens: 3},
			{Element: "C", ImplicitHydrogens: 2},
			{Element: "O", ImplicitHydrogens: 1},
		},
		Bonds: []mtypes.Bond{{From: 0, To: 1, Order: 1}, {From: 1, To: 2, Order: 1}},
	}
}

// AlcoholSeries returns a labelled set where hydroxylated molecules are
// active and hydrocarbons inactive.
func AlcoholSeries() ([]*molecule.Structure, []bool) {
	mols := []*molecule.Structure{
		Methane(), Ethane(), Propane(), Benzene(),
		Methanol(), Ethanol(), Propanol(), Phenol(),
	}
	active := []bool{false, false, false, false, true, true, true, true}
	return mols, active
}

// ChainDTO returns a linear saturated chain of carbons in wire form,
// terminated by a hydroxyl when alcohol is set.
func ChainDTO(name string, carbons int, alcohol bool) mtypes.Molecule {
	m := mtypes.Molecule{Name: name}
	for i := 0; i < carbons; i++ {
		h := 2
		if i == 0 || i == carbons-1 {
			h = 3
		}
		if carbons == 1 {
			h = 4
		}
		if alcohol && i == carbons-1 {
			h--
		}
		m.Atoms = append(m.Atoms, mtypes.Atom{Element: "C", ImplicitHydrogens: h})
		if i > 0 {
			m.Bonds = append(m.Bonds, mtypes.Bond{From: i - 1, To: i, Order: 1})
		}
	}
	if alcohol {
		m.Atoms = append(m.Atoms, mtypes.Atom{Element: "O", ImplicitHydrogens: 1})
		m.Bonds = append(m.Bonds, mtypes.Bond{From: carbons - 1, To: carbons, Order: 1})
	}
	return m
}

// AlcoholRecords labels C1-C3 alkanes inactive and the matching primary
// alcohols active.
func AlcoholRecords() []mtypes.TrainingRecord {
	return []mtypes.TrainingRecord{
		{Molecule: ChainDTO("methane", 1, false)},
		{Molecule: ChainDTO("ethane", 2, false)},
		{Molecule: ChainDTO("propane", 3, false)},
		{Molecule: ChainDTO("methanol", 1, true), Active: true},
		{Molecule: ChainDTO("ethanol", 2, true), Active: true},
		{Molecule: ChainDTO("propanol", 3, true), Active: true},
	}
}

func mustBond(s *molecule.Structure, from, to, order int, aromatic bool) {
	if err := s.AddBond(from, to, order, aromatic); err != nil {
		panic(err)
	}
}
