// Package molecule defines the wire-level Data Transfer Objects for molecular
// graphs and labelled training records.  No domain logic lives here, only
// plain data types that are safe to import from any layer.
//
// The molecule reader that produces these records (MOL/SDF parsing,
// abbreviation expansion, ring perception) lives outside molbayes; the DTOs
// carry exactly the accessors the fingerprint engine consumes.
package molecule

// Atom is a single atom of a molecular graph.
type Atom struct {
	// Element is the element symbol ("C", "O", "Cl", ...).  When AtomicNumber
	// is zero it is resolved from Element.
	Element string `json:"element"`

	// AtomicNumber overrides the symbol lookup when non-zero.
	AtomicNumber int `json:"atomic_number,omitempty"`

	// Charge is the formal charge.
	Charge int `json:"charge,omitempty"`

	// ImplicitHydrogens is the number of hydrogens not drawn as atoms.
	ImplicitHydrogens int `json:"implicit_hydrogens,omitempty"`

	// RingBlock is the ring-block identifier; 0 means the atom is in no ring.
	RingBlock int `json:"ring_block,omitempty"`

	// Excluded removes the atom from fingerprinting (metals, suppressed
	// hydrogens).  It is folded into the active-atom mask.
	Excluded bool `json:"excluded,omitempty"`
}

// Bond joins two atoms, addressed by zero-based index.
type Bond struct {
	From     int  `json:"from"`
	To       int  `json:"to"`
	Order    int  `json:"order"`
	Aromatic bool `json:"aromatic,omitempty"`
}

// Molecule is a molecular graph as supplied by an external reader.
type Molecule struct {
	Name  string `json:"name,omitempty"`
	Atoms []Atom `json:"atoms"`
	Bonds []Bond `json:"bonds,omitempty"`

	// Tetrahedral maps an atom index (decimal string key, as JSON requires)
	// to the four neighbour indices of its parity rubric.  A negative index
	// stands for an implicit hydrogen.
	Tetrahedral map[string][4]int `json:"tetrahedral,omitempty"`
}

// TrainingRecord is one line of a JSON-lines training dataset.
type TrainingRecord struct {
	Molecule Molecule `json:"molecule"`
	Active   bool     `json:"active"`

	// Hashes optionally carries a precomputed fingerprint; when present the
	// molecule may be left empty.
	Hashes []uint32 `json:"hashes,omitempty"`
}

// Prediction is the per-molecule output of a Bayesian model.
type Prediction struct {
	Name    string    `json:"name,omitempty"`
	Raw     float64   `json:"raw"`
	Scaled  float64   `json:"scaled"`
	ArcTan  float64   `json:"arctan"`
	Overlap float64   `json:"overlap"`
	Atoms   []float64 `json:"atoms,omitempty"`
}
