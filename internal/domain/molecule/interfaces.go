package molecule

// Graph is the minimal molecular-graph abstraction consumed by the
// fingerprint engine.  Atoms and bonds are addressed by zero-based index.
type Graph interface {
	AtomCount() int
	AtomicNumber(atom int) int
	Charge(atom int) int

	// Hydrogens returns the explicit plus implicit hydrogen count.
	Hydrogens(atom int) int

	// RingBlock returns the ring-block id, 0 when the atom is acyclic.
	RingBlock(atom int) int

	// Neighbors returns the adjacent atoms and the bonds leading to them,
	// index-aligned.
	Neighbors(atom int) (atoms, bonds []int)

	BondOrder(bond int) int
	BondAromatic(bond int) bool

	// Tetrahedral returns the four neighbour indices of the atom's parity
	// rubric; ok is false when the atom has no defined tetrahedral parity.
	// A negative index denotes an implicit hydrogen.
	Tetrahedral(atom int) (rubric [4]int, ok bool)
}

// RecordObserver intercepts fingerprint records while a circular calculation
// runs.  ConsiderRecord fires for every candidate before the keep/discard
// decision; ApplyRecord fires for every record that is kept.
type RecordObserver interface {
	ConsiderRecord(rec FingerprintRecord)
	ApplyRecord(rec FingerprintRecord)
}
