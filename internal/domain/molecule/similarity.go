package molecule

import (
	"fmt"
	"math/bits"
	"slices"

	"github.com/turtacn/molbayes/pkg/errors"
)

// UniqueHashes returns the distinct hash codes of all kept records, sorted
// ascending.
func (c *Circular) UniqueHashes() []uint32 {
	hashes := make([]uint32, len(c.records))
	for i, rec := range c.records {
		hashes[i] = rec.HashCode
	}
	slices.Sort(hashes)
	return slices.Compact(hashes)
}

// FoldedHashes is UniqueHashes with every hash masked to maxBits-1 first.
// maxBits must be zero (no folding) or a power of two.
func (c *Circular) FoldedHashes(maxBits int) ([]uint32, error) {
	return FoldHashes(c.UniqueHashes(), maxBits)
}

// ValidFolding reports whether maxBits is 0 or a power of two that fits a
// 32-bit hash space.
func ValidFolding(maxBits int) bool {
	if maxBits == 0 {
		return true
	}
	return maxBits > 0 && uint64(maxBits) <= 1<<32 && bits.OnesCount64(uint64(maxBits)) == 1
}

// FoldMask returns the bit mask applied to hashes for the given folding.
func FoldMask(maxBits int) uint32 {
	if maxBits == 0 {
		return 0xFFFFFFFF
	}
	return uint32(maxBits - 1)
}

// FoldHashes masks each hash and returns the distinct results, sorted.
func FoldHashes(hashes []uint32, maxBits int) ([]uint32, error) {
	if !ValidFolding(maxBits) {
		return nil, errors.New(errors.ErrCodeFoldingInvalid, "folding must be zero or a power of two").
			WithDetail(fmt.Sprintf("folding=%d", maxBits))
	}
	mask := FoldMask(maxBits)
	out := make([]uint32, len(hashes))
	for i, h := range hashes {
		out[i] = h & mask
	}
	slices.Sort(out)
	return slices.Compact(out), nil
}

// CalculateHashes runs a circular calculation and returns its folded unique
// hashes.
func CalculateHashes(g Graph, kind Kind, folding int, opts ...CircularOption) ([]uint32, error) {
	circ, err := NewCircular(g, kind, opts...)
	if err != nil {
		return nil, err
	}
	circ.Calculate()
	return circ.FoldedHashes(folding)
}

// Tanimoto computes |A∩B| / |A∪B| for two sorted, duplicate-free hash lists
// in a single merge pass.  Two empty sets score 0.
func Tanimoto(a, b []uint32) float64 {
	shared, total := 0, 0
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		switch {
		case a[i] == b[j]:
			shared++
			i++
			j++
		case a[i] < b[j]:
			i++
		default:
			j++
		}
		total++
	}
	total += len(a) - i + len(b) - j
	if total == 0 {
		return 0
	}
	return float64(shared) / float64(total)
}

// Similarity bands used when reporting Tanimoto scores.
const (
	ThresholdIdentical          = 0.99
	ThresholdHighSimilarity     = 0.85
	ThresholdModerateSimilarity = 0.70
	ThresholdLowSimilarity      = 0.50
)

// ClassifySimilarity returns a classification label for a Tanimoto score.
func ClassifySimilarity(score float64) string {
	switch {
	case score >= ThresholdIdentical:
		return "identical"
	case score >= ThresholdHighSimilarity:
		return "high"
	case score >= ThresholdModerateSimilarity:
		return "moderate"
	case score >= ThresholdLowSimilarity:
		return "low"
	default:
		return "dissimilar"
	}
}
