// Package preprocess converts observed reads into the log-likelihood
// matrix consumed by the EM engine. A read is a list of observed
// bases at 1-based reference positions ("3:A,5:T"); only positions
// retained by the tree filtering contribute to the likelihood.
package preprocess

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/mat"

	"github.com/alexhbnr/mixemt/phylotree"
)

// Read maps 0-based reference positions to the observed base.
type Read map[int]byte

// ParseObservations parses an observation string of the form
// "<1-based-pos>:<base>" pairs joined by commas.
func ParseObservations(s string) (Read, error) {
	read := make(Read)
	for _, item := range strings.Split(s, ",") {
		parts := strings.SplitN(item, ":", 2)
		if len(parts) != 2 || len(parts[1]) != 1 {
			return nil, fmt.Errorf("bad observation %q", item)
		}
		pos, err := strconv.Atoi(parts[0])
		if err != nil || pos < 1 {
			return nil, fmt.Errorf("bad observation position %q", item)
		}
		base := parts[1][0] &^ 0x20
		if base < 'A' || base > 'Z' {
			return nil, fmt.Errorf("bad observation base %q", item)
		}
		read[pos-1] = base
	}
	if len(read) == 0 {
		return nil, fmt.Errorf("empty observation string")
	}
	return read, nil
}

// ParseReads parses one observation string per input line.
func ParseReads(lines []string) ([]Read, error) {
	reads := make([]Read, len(lines))
	for i, line := range lines {
		read, err := ParseObservations(line)
		if err != nil {
			return nil, fmt.Errorf("read %d: %v", i+1, err)
		}
		reads[i] = read
	}
	return reads, nil
}

// signature is the canonical form of the read restricted to the kept
// positions. Reads with equal signatures are indistinguishable to the
// mixture model.
func (r Read) signature(keep map[int]bool) string {
	pos := make([]int, 0, len(r))
	for p := range r {
		if keep[p] {
			pos = append(pos, p)
		}
	}
	sort.Ints(pos)
	var b strings.Builder
	for _, p := range pos {
		fmt.Fprintf(&b, "%d:%c;", p, r[p])
	}
	return b.String()
}

// Collapse merges reads that are identical on the retained positions
// and returns the unique reads with their multiplicities, which serve
// as the EM weight vector. Order of first occurrence is kept.
func Collapse(reads []Read, positions []int) ([]Read, []float64) {
	keep := make(map[int]bool, len(positions))
	for _, p := range positions {
		keep[p] = true
	}
	index := make(map[string]int)
	unique := make([]Read, 0, len(reads))
	weights := make([]float64, 0, len(reads))
	for _, read := range reads {
		sig := read.signature(keep)
		if i, ok := index[sig]; ok {
			weights[i]++
			continue
		}
		index[sig] = len(unique)
		unique = append(unique, read)
		weights = append(weights, 1)
	}
	return unique, weights
}

// BuildMatrix builds the read × haplogroup matrix of
// log P(read|haplogroup). The expected base at a retained position is
// the haplogroup's derived allele if its lineage mutates the
// position, the reference base otherwise; every observed retained
// site contributes ln(1-miscall) on a match and ln(miscall/3) on a
// mismatch. Observations outside the retained positions are ignored.
func BuildMatrix(ref string, tree *phylotree.Tree, haps []*phylotree.Node, reads []Read, miscall float64) (*mat.Dense, error) {
	if len(reads) == 0 || len(haps) == 0 {
		return nil, fmt.Errorf("no reads or no haplogroups")
	}
	if miscall <= 0 || miscall >= 1 {
		return nil, fmt.Errorf("miscall rate %v outside (0,1)", miscall)
	}
	keep := make(map[int]bool)
	for _, p := range tree.VariantPos() {
		if p >= len(ref) {
			return nil, fmt.Errorf("variant position %d beyond the reference (%d bases)", p+1, len(ref))
		}
		keep[p] = true
	}

	derived := make([]map[int]byte, len(haps))
	for g, hap := range haps {
		derived[g] = make(map[int]byte)
		for _, v := range hap.AllVariants() {
			derived[g][v.Pos] = v.Der
		}
	}

	lnMatch := math.Log(1 - miscall)
	lnMismatch := math.Log(miscall / 3)

	lnMat := mat.NewDense(len(reads), len(haps), nil)
	for j, read := range reads {
		for pos, base := range read {
			if !keep[pos] {
				continue
			}
			for g := range haps {
				expected, ok := derived[g][pos]
				if !ok {
					expected = ref[pos] &^ 0x20
				}
				if base == expected {
					lnMat.Set(j, g, lnMat.At(j, g)+lnMatch)
				} else {
					lnMat.Set(j, g, lnMat.At(j, g)+lnMismatch)
				}
			}
		}
	}
	return lnMat, nil
}
