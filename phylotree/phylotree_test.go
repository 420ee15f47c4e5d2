package phylotree

import (
	"strings"
	"testing"
)

// phyCSV is a small haplogroup tree in the leveled comma-separated
// format. F's children are anonymous; E repeats B's unstable position
// without the annotation.
const phyCSV = `A,A1G C3T
,B,G2A (C4T)
,,C,T3C! A5T
,,,D,G6A
,,E,C4T
,F,A7G
,,,G8A A9T
,,,T10C A11G
`

func parseTestTree(tst *testing.T) *Tree {
	tree, err := Parse(strings.NewReader(phyCSV))
	if err != nil {
		tst.Fatal("Error: ", err)
	}
	return tree
}

func TestParse(tst *testing.T) {
	tree := parseTestTree(tst)
	if tree.NNodes() != 8 {
		tst.Error("Wrong number of nodes:", tree.NNodes())
	}
	if tree.HapID != "A" {
		tst.Error("Wrong root:", tree.HapID)
	}
	ids := make([]string, 0, tree.NNodes())
	for _, node := range tree.Nodes() {
		ids = append(ids, node.HapID)
	}
	expected := "A B C D E F F[1] F[2]"
	if strings.Join(ids, " ") != expected {
		tst.Errorf("Wrong node ids, expected %q, got %q", expected, strings.Join(ids, " "))
	}
	// parent wiring
	for _, node := range tree.Nodes() {
		if node.IsRoot() {
			continue
		}
		found := false
		for _, child := range node.Parent.ChildNodes() {
			if child == node {
				found = true
			}
		}
		if !found {
			tst.Error("Node not registered with its parent:", node.HapID)
		}
	}
}

func TestAnonNaming(tst *testing.T) {
	tree := parseTestTree(tst)
	nodes := tree.Nodes()
	f := nodes[5]
	if f.HapID != "F" {
		tst.Fatal("Unexpected node order")
	}
	children := f.ChildNodes()
	if len(children) != 2 {
		tst.Fatal("Wrong number of anonymous children:", len(children))
	}
	if children[0].HapID != "F[1]" || children[1].HapID != "F[2]" {
		tst.Error("Wrong anonymous names:", children[0].HapID, children[1].HapID)
	}
}

func TestTerminals(tst *testing.T) {
	leaves := make([]string, 0)
	for node := range parseTestTree(tst).Terminals() {
		leaves = append(leaves, node.HapID)
	}
	expected := "D E F[1] F[2]"
	if strings.Join(leaves, " ") != expected {
		tst.Errorf("Wrong leaves, expected %q, got %q", expected, strings.Join(leaves, " "))
	}
}

func TestAllVariants(tst *testing.T) {
	tree := parseTestTree(tst)
	d := tree.Nodes()[3]
	if d.HapID != "D" {
		tst.Fatal("Unexpected node order")
	}
	// C3T of the root is masked by the more recent T3C!.
	expected := "A1G G2A T3C! (C4T) A5T G6A"
	got := VariantsString(d.AllVariants())
	if got != expected {
		tst.Errorf("Wrong lineage variants, expected %q, got %q", expected, got)
	}

	// sorted and unique per position
	for _, node := range tree.Nodes() {
		vars := node.AllVariants()
		for i := 1; i < len(vars); i++ {
			if vars[i-1].Pos >= vars[i].Pos {
				tst.Error("Lineage variants not sorted for", node.HapID)
			}
		}
	}
}

func intsEqual(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestProcessVariantsNoFilter(tst *testing.T) {
	tree := parseTestTree(tst)
	before := make([]string, 0)
	for _, node := range tree.Nodes() {
		before = append(before, VariantsString(node.Variants))
	}
	tree.ProcessVariants(false, false)
	for i, node := range tree.Nodes() {
		if VariantsString(node.Variants) != before[i] {
			tst.Error("Variant list changed without filtering for", node.HapID)
		}
	}
	expected := []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	if !intsEqual(tree.VariantPos(), expected) {
		tst.Error("Wrong position set:", tree.VariantPos())
	}
}

func TestProcessVariantsUnstable(tst *testing.T) {
	tree := parseTestTree(tst)
	tree.ProcessVariants(true, false)
	expected := []int{0, 1, 2, 4, 5, 6, 7, 8, 9, 10}
	if !intsEqual(tree.VariantPos(), expected) {
		tst.Error("Wrong position set:", tree.VariantPos())
	}
	// E's occurrence at the position is not annotated, but the
	// position is excluded tree-wide.
	e := tree.Nodes()[4]
	if len(e.Variants) != 0 {
		tst.Error("Unstable position not removed from E:", VariantsString(e.Variants))
	}
	b := tree.Nodes()[1]
	if VariantsString(b.Variants) != "G2A" {
		tst.Error("Unstable position not removed from B:", VariantsString(b.Variants))
	}
}

func TestProcessVariantsBackMutation(tst *testing.T) {
	tree := parseTestTree(tst)
	tree.ProcessVariants(false, true)
	expected := []int{0, 1, 3, 4, 5, 6, 7, 8, 9, 10}
	if !intsEqual(tree.VariantPos(), expected) {
		tst.Error("Wrong position set:", tree.VariantPos())
	}
	// the stable root occurrence at position 2 goes away as well
	root := tree.Nodes()[0]
	if VariantsString(root.Variants) != "A1G" {
		tst.Error("Back-mutated position not removed from root:", VariantsString(root.Variants))
	}
}

func TestMutationCounts(tst *testing.T) {
	tree := parseTestTree(tst)
	// counts accumulate before filtering decisions apply
	tree.ProcessVariants(true, true)
	m := tree.Mutations(2)
	if m['T'] != 1 || m['C'] != 1 {
		tst.Error("Wrong derived allele counts at position 2:", m)
	}
	m = tree.Mutations(3)
	if m['T'] != 2 {
		tst.Error("Wrong derived allele counts at position 3:", m)
	}
}

func TestSmallTree(tst *testing.T) {
	tree, err := Parse(strings.NewReader("A,\n,B,A10G\n"))
	if err != nil {
		tst.Fatal("Error: ", err)
	}
	b := tree.Nodes()[1]
	if VariantsString(b.AllVariants()) != "A10G" {
		tst.Error("Wrong lineage variants:", VariantsString(b.AllVariants()))
	}
	tree.ProcessVariants(false, false)
	if !intsEqual(tree.VariantPos(), []int{9}) {
		tst.Error("Wrong position set:", tree.VariantPos())
	}
}

func TestIndelsDropped(tst *testing.T) {
	tree, err := Parse(strings.NewReader("A,A1G 522.1A A523d C5T\n"))
	if err != nil {
		tst.Fatal("Error: ", err)
	}
	if VariantsString(tree.Variants) != "A1G C5T" {
		tst.Error("Indels not dropped:", VariantsString(tree.Variants))
	}
}

func TestParseErrors(tst *testing.T) {
	bad := []string{
		"",
		"A,\n\n,B,A10G",
		"A,\nB,C5T",
		"A,A10G\n,B",
		"A,10G",
		"A B,C5T",
	}
	for _, in := range bad {
		if _, err := Parse(strings.NewReader(in)); err == nil {
			tst.Errorf("Expected parse error for %q", in)
		}
	}
}
