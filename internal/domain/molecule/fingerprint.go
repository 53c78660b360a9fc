package molecule

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/turtacn/molbayes/pkg/errors"
)

// ─────────────────────────────────────────────────────────────────────────────
// Fingerprint kind
// ─────────────────────────────────────────────────────────────────────────────

// Kind selects the number of circular expansion iterations: ECFP0 stops at
// the seeded atom invariants, ECFP6 expands three bonds out.
type Kind int

const (
	ECFP0 Kind = iota
	ECFP2
	ECFP4
	ECFP6
)

var kindNames = [...]string{"ECFP0", "ECFP2", "ECFP4", "ECFP6"}

// IsValid reports whether k is one of the four supported kinds.
func (k Kind) IsValid() bool {
	return k >= ECFP0 && k <= ECFP6
}

// Iterations is the number of expansion passes after seeding.
func (k Kind) Iterations() int {
	return int(k)
}

func (k Kind) String() string {
	if !k.IsValid() {
		return fmt.Sprintf("Kind(%d)", int(k))
	}
	return kindNames[k]
}

// ParseKind parses the textual token ("ECFP4"); matching is case-insensitive.
func ParseKind(s string) (Kind, error) {
	for i, name := range kindNames {
		if strings.EqualFold(strings.TrimSpace(s), name) {
			return Kind(i), nil
		}
	}
	return 0, errors.New(errors.ErrCodeFingerprintKindUnsupported, "unsupported fingerprint kind").
		WithDetail("kind=" + s)
}

// ─────────────────────────────────────────────────────────────────────────────
// Fingerprint records
// ─────────────────────────────────────────────────────────────────────────────

// FingerprintRecord is one circular substructure: the hash of the
// neighbourhood around CentralAtom after Iteration expansions, covering the
// sorted atom set Atoms.  A record is identified by its atom set.
type FingerprintRecord struct {
	HashCode    uint32
	Iteration   int
	Atoms       []int
	CentralAtom int
}

func atomsKey(atoms []int) string {
	buf := make([]byte, 0, len(atoms)*4)
	for i, a := range atoms {
		if i > 0 {
			buf = append(buf, ',')
		}
		buf = strconv.AppendInt(buf, int64(a), 10)
	}
	return string(buf)
}

// ─────────────────────────────────────────────────────────────────────────────
// Circular iterator
// ─────────────────────────────────────────────────────────────────────────────

// CircularOption customises a Circular calculation.
type CircularOption func(*Circular)

// WithMask supplies the active-atom mask; masked-out atoms are never seeded
// nor iterated and do not appear in any neighbourhood.
func WithMask(mask []bool) CircularOption {
	return func(c *Circular) { c.mask = mask }
}

// WithObserver installs hooks that see every candidate and kept record.
func WithObserver(o RecordObserver) CircularOption {
	return func(c *Circular) { c.observer = o }
}

// Circular computes ECFP-style fingerprints for a single molecule.  The
// records it holds live until the next Calculate call.
type Circular struct {
	graph    Graph
	kind     Kind
	mask     []bool
	observer RecordObserver

	adjAtoms       [][]int
	adjBonds       [][]int
	identity       []uint32
	resolvedChiral []bool
	atomGroup      [][]int

	records []FingerprintRecord
	byAtoms map[string]int
}

type defaultMasker interface {
	DefaultMask() []bool
}

// NewCircular prepares a calculation over g.  Without WithMask every
// non-hydrogen atom is active (or the graph's own DefaultMask, if it has one).
func NewCircular(g Graph, kind Kind, opts ...CircularOption) (*Circular, error) {
	if IsBlank(g) {
		return nil, errors.InvalidInput("molecule has no atoms")
	}
	if !kind.IsValid() {
		return nil, errors.New(errors.ErrCodeFingerprintKindUnsupported, "unsupported fingerprint kind").
			WithDetail(kind.String())
	}
	c := &Circular{graph: g, kind: kind}
	for _, opt := range opts {
		opt(c)
	}
	na := g.AtomCount()
	if c.mask == nil {
		if dm, ok := g.(defaultMasker); ok {
			c.mask = dm.DefaultMask()
		} else {
			c.mask = make([]bool, na)
			for n := 0; n < na; n++ {
				c.mask[n] = g.AtomicNumber(n) != 1
			}
		}
	}
	if len(c.mask) != na {
		return nil, errors.InvalidParam("atom mask length does not match atom count").
			WithDetail(fmt.Sprintf("mask=%d atoms=%d", len(c.mask), na))
	}
	return c, nil
}

// Kind returns the configured fingerprint kind.
func (c *Circular) Kind() Kind { return c.kind }

// Calculate runs seeding and all expansion iterations, replacing any records
// from a previous run.
func (c *Circular) Calculate() {
	na := c.graph.AtomCount()
	c.records = nil
	c.byAtoms = make(map[string]int)
	c.identity = make([]uint32, na)
	c.resolvedChiral = make([]bool, na)
	c.atomGroup = make([][]int, na)
	c.adjAtoms = make([][]int, na)
	c.adjBonds = make([][]int, na)

	for n := 0; n < na; n++ {
		if !c.mask[n] {
			continue
		}
		adj, bnd := c.graph.Neighbors(n)
		for i, nb := range adj {
			if c.mask[nb] {
				c.adjAtoms[n] = append(c.adjAtoms[n], nb)
				c.adjBonds[n] = append(c.adjBonds[n], bnd[i])
			}
		}
	}

	for n := 0; n < na; n++ {
		if !c.mask[n] {
			continue
		}
		c.identity[n] = AtomInvariant(c.graph, n)
		c.atomGroup[n] = []int{n}
		c.applyNewFP(FingerprintRecord{
			HashCode:    c.identity[n],
			Iteration:   0,
			Atoms:       c.atomGroup[n],
			CentralAtom: n,
		})
	}

	for iter := 1; iter <= c.kind.Iterations(); iter++ {
		next := make([]uint32, na)
		for n := 0; n < na; n++ {
			if c.mask[n] {
				next[n] = c.rehash(n, iter)
			}
		}
		c.identity = next
		c.atomGroup = c.growAtoms(c.atomGroup)

		for n := 0; n < na; n++ {
			if !c.mask[n] {
				continue
			}
			c.considerNewFP(FingerprintRecord{
				HashCode:    c.identity[n],
				Iteration:   iter,
				Atoms:       c.atomGroup[n],
				CentralAtom: n,
			})
		}
	}
}

// Records returns the de-duplicated records of the last Calculate call.
func (c *Circular) Records() []FingerprintRecord {
	return c.records
}

type neighbourCode struct {
	bond     uint32
	identity uint32
}

// rehash derives the next identity of atom n from the sequence
// [iteration, identity, (bondCode, neighbourIdentity)...], neighbours sorted
// by bond code then identity.  Aromatic bonds code as 15.
func (c *Circular) rehash(n, iter int) uint32 {
	adj, bnd := c.adjAtoms[n], c.adjBonds[n]
	nbrs := make([]neighbourCode, len(adj))
	for i, nb := range adj {
		code := uint32(c.graph.BondOrder(bnd[i]))
		if c.graph.BondAromatic(bnd[i]) {
			code = 0xF
		}
		nbrs[i] = neighbourCode{bond: code, identity: c.identity[nb]}
	}
	// insertion sort keeps equal pairs in adjacency order
	for i := 1; i < len(nbrs); i++ {
		for j := i; j > 0 && nbrs[j].less(nbrs[j-1]); j-- {
			nbrs[j], nbrs[j-1] = nbrs[j-1], nbrs[j]
		}
	}

	crc := newChecksum()
	crc.byte(iter)
	crc.byte(int(c.identity[n]))
	for _, nb := range nbrs {
		crc.word(nb.bond)
		crc.word(nb.identity)
	}

	if !c.resolvedChiral[n] {
		if rubric, ok := c.graph.Tetrahedral(n); ok {
			var par [4]uint32
			for i, a := range rubric {
				if a >= 0 && a < len(c.identity) {
					par[i] = c.identity[a]
				}
			}
			if pairwiseDistinct(par) {
				crc.byte(parityOrder(par) + 1)
				c.resolvedChiral[n] = true
			}
		}
	}
	return crc.sum()
}

func (a neighbourCode) less(b neighbourCode) bool {
	if a.bond != b.bond {
		return a.bond < b.bond
	}
	return a.identity < b.identity
}

func pairwiseDistinct(par [4]uint32) bool {
	for i := 0; i < 3; i++ {
		for j := i + 1; j < 4; j++ {
			if par[i] == par[j] {
				return false
			}
		}
	}
	return true
}

// parityOrder is the permutation parity (0 even, 1 odd) of par relative to
// ascending order.
func parityOrder(par [4]uint32) int {
	inversions := 0
	for i := 0; i < 3; i++ {
		for j := i + 1; j < 4; j++ {
			if par[i] > par[j] {
				inversions++
			}
		}
	}
	return inversions & 1
}

// growAtoms extends every atom's group by the active neighbours of each
// member, returning sorted unique index lists.
func (c *Circular) growAtoms(groups [][]int) [][]int {
	out := make([][]int, len(groups))
	for n, group := range groups {
		if !c.mask[n] {
			continue
		}
		grown := slices.Clone(group)
		for _, a := range group {
			grown = append(grown, c.adjAtoms[a]...)
		}
		slices.Sort(grown)
		out[n] = slices.Compact(grown)
	}
	return out
}

// applyNewFP appends unconditionally; only iteration 0 calls it directly.
func (c *Circular) applyNewFP(rec FingerprintRecord) {
	if c.observer != nil {
		c.observer.ApplyRecord(rec)
	}
	c.byAtoms[atomsKey(rec.Atoms)] = len(c.records)
	c.records = append(c.records, rec)
}

// considerNewFP keeps at most one record per atom set.  An existing record
// from an earlier iteration, or with a lower hash, wins; otherwise the
// newcomer replaces it.
func (c *Circular) considerNewFP(rec FingerprintRecord) {
	if c.observer != nil {
		c.observer.ConsiderRecord(rec)
	}
	idx, found := c.byAtoms[atomsKey(rec.Atoms)]
	if !found {
		c.applyNewFP(rec)
		return
	}
	existing := c.records[idx]
	if existing.Iteration < rec.Iteration || existing.HashCode < rec.HashCode {
		return
	}
	if c.observer != nil {
		c.observer.ApplyRecord(rec)
	}
	c.records[idx] = rec
}
