// Package phylotree implements a phylogenetic tree of haplogroups and
// the SNP variants defining each lineage. The tree is read from a
// leveled comma-separated description (phylotree.org table export),
// filtered by site annotation and queried for the accumulated variant
// set of every haplogroup.
package phylotree

import (
	"bufio"
	"fmt"
	"io"
	"sort"
	"strings"
)

// Node is a single haplogroup in the tree. A node owns its defining
// variants and its children; Parent is a non-owning back reference.
type Node struct {
	HapID      string
	Parent     *Node
	Variants   []Variant
	Id         int
	childNodes []*Node
}

// Tree is a haplogroup tree. It owns all nodes (in parse order), the
// globally filtered list of variant positions and the per-position
// derived-allele counts.
type Tree struct {
	*Node
	nodes      []*Node
	variantPos []int
	mutations  map[int]map[byte]int
	anonChild  map[*Node]int
}

func (tree *Tree) NNodes() int {
	return len(tree.nodes)
}

// Nodes returns all nodes in parse order.
func (tree *Tree) Nodes() []*Node {
	return tree.nodes
}

// VariantPos returns the sorted retained variant positions computed
// by the last ProcessVariants call.
func (tree *Tree) VariantPos() []int {
	return tree.variantPos
}

// Mutations returns the derived alleles observed at a position
// tree-wide with their occurrence counts.
func (tree *Tree) Mutations(pos int) map[byte]int {
	return tree.mutations[pos]
}

func (tree *Tree) Walker(filter func(*Node) bool) <-chan *Node {
	ch := make(chan *Node, len(tree.nodes))
	tree.Walk(ch, filter)
	close(ch)
	return ch
}

// Terminals returns a channel with all leaf haplogroups.
func (tree *Tree) Terminals() <-chan *Node {
	return tree.Walker(func(node *Node) bool {
		return node.IsTerminal()
	})
}

// addChild attaches node to parent, generating a name for anonymous
// nodes from the nearest named ancestor. The per-parent counters are
// owned by the tree, so construction is reentrant.
func (tree *Tree) addChild(parent, node *Node) {
	if node.HapID == "" {
		tree.anonChild[parent]++
		node.HapID = fmt.Sprintf("%s[%d]", parent.HapID, tree.anonChild[parent])
	}
	parent.AddChild(node)
}

func (node *Node) AddChild(subNode *Node) {
	subNode.Parent = node
	node.childNodes = append(node.childNodes, subNode)
}

func (node *Node) ChildNodes() []*Node {
	return node.childNodes
}

func (node *Node) IsRoot() bool {
	return node.Parent == nil
}

func (node *Node) IsTerminal() bool {
	return len(node.childNodes) == 0
}

func (node *Node) Walk(ch chan *Node, filter func(*Node) bool) {
	if filter == nil || filter(node) {
		ch <- node
	}
	for _, node := range node.childNodes {
		node.Walk(ch, filter)
	}
}

// AllVariants returns the variants defining the full lineage of the
// node, own and inherited. A mutation at a position masks every
// mutation at the same position farther up the tree, so a
// back-mutation is simply the closest mutation winning.
func (node *Node) AllVariants() []Variant {
	summed := make(map[int]Variant)
	for n := node; n != nil; n = n.Parent {
		for _, v := range n.Variants {
			if _, ok := summed[v.Pos]; !ok {
				summed[v.Pos] = v
			}
		}
	}
	pos := make([]int, 0, len(summed))
	for p := range summed {
		pos = append(pos, p)
	}
	sort.Ints(pos)
	vars := make([]Variant, len(pos))
	for i, p := range pos {
		vars[i] = summed[p]
	}
	return vars
}

func (node *Node) LongString() (s string) {
	s = "<"
	if node.Parent == nil {
		s += "root, "
	}
	s += fmt.Sprintf("hap=%s, Id=%v", node.HapID, node.Id)
	if len(node.Variants) > 0 {
		s += ", variants=" + VariantsString(node.Variants)
	}
	s += ">"
	return
}

func (node *Node) FullString() string {
	return strings.TrimSpace(node.prefixString(""))
}

func (node *Node) prefixString(prefix string) (s string) {
	s = prefix + node.LongString() + "\n"
	for _, node := range node.childNodes {
		s += node.prefixString(prefix + "    ")
	}
	return
}

// VariantsString formats a variant list in the source token format.
func VariantsString(vars []Variant) string {
	tokens := make([]string, len(vars))
	for i, v := range vars {
		tokens[i] = v.String()
	}
	return strings.Join(tokens, " ")
}

// Parse reads a tree description. Every line is one node: the number
// of leading empty fields is the indentation level, field[level] is
// the haplogroup id (empty for anonymous nodes) and field[level+1]
// holds the space-separated variant tokens. Ancestors always precede
// descendants, so a stack of the current lineage is enough to attach
// every node.
func Parse(rd io.Reader) (tree *Tree, err error) {
	tree = &Tree{
		anonChild: make(map[*Node]int),
		mutations: make(map[int]map[byte]int),
	}

	scanner := bufio.NewScanner(rd)
	stack := []*Node{nil}
	cur := -1
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		level, hapID, tokens, err := parseRecord(scanner.Text())
		if err != nil {
			return nil, fmt.Errorf("line %d: %v", lineNo, err)
		}
		variants := make([]Variant, 0, len(tokens))
		for _, token := range tokens {
			// indels never enter the SNP model
			if !IsSNP(token) {
				continue
			}
			v, err := ParseVariant(token)
			if err != nil {
				return nil, fmt.Errorf("line %d: %v", lineNo, err)
			}
			variants = append(variants, v)
		}

		for cur >= 0 && cur >= level {
			stack = stack[:len(stack)-1]
			cur--
		}
		node := &Node{HapID: hapID, Variants: variants, Id: len(tree.nodes)}
		parent := stack[len(stack)-1]
		if parent == nil {
			if tree.Node != nil {
				return nil, fmt.Errorf("line %d: multiple root records", lineNo)
			}
			tree.Node = node
		} else {
			tree.addChild(parent, node)
		}
		tree.nodes = append(tree.nodes, node)
		stack = append(stack, node)
		cur++
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if tree.Node == nil {
		return nil, fmt.Errorf("empty tree description")
	}
	return tree, nil
}

// parseRecord splits one line into indentation level, haplogroup id
// and raw variant tokens. An embedded space in the id field means the
// level was over-counted and the real id is one field to the left.
func parseRecord(line string) (level int, hapID string, tokens []string, err error) {
	items := strings.Split(strings.TrimRight(line, " \t\r"), ",")
	for level < len(items) && items[level] == "" {
		level++
	}
	if level >= len(items) {
		return 0, "", nil, fmt.Errorf("blank record")
	}
	hapID = items[level]
	for strings.Contains(hapID, " ") {
		level--
		if level < 0 {
			return 0, "", nil, fmt.Errorf("cannot locate haplogroup id field")
		}
		hapID = items[level]
	}
	if level+1 >= len(items) {
		return 0, "", nil, fmt.Errorf("missing variants field for %q", hapID)
	}
	return level, hapID, strings.Fields(items[level+1]), nil
}

// ProcessVariants computes the tree-wide set of variant positions,
// optionally excluding positions annotated as unstable or as
// back-mutations anywhere in the tree. Node variant lists are
// filtered in place. Derived-allele counts are accumulated for every
// variant seen, before any filtering applies.
func (tree *Tree) ProcessVariants(rmUnstable, rmBackmut bool) {
	varPos := make(map[int]bool)
	ignore := make(map[int]bool)
	tree.mutations = make(map[int]map[byte]int)
	for _, node := range tree.nodes {
		for _, v := range node.Variants {
			switch {
			case rmUnstable && v.Unstable:
				ignore[v.Pos] = true
			case rmBackmut && v.BackMut:
				ignore[v.Pos] = true
			default:
				varPos[v.Pos] = true
			}
			m := tree.mutations[v.Pos]
			if m == nil {
				m = make(map[byte]int)
				tree.mutations[v.Pos] = m
			}
			m[v.Der]++
		}
	}

	if rmUnstable || rmBackmut {
		for pos := range ignore {
			delete(varPos, pos)
		}
		for _, node := range tree.nodes {
			kept := node.Variants[:0]
			for _, v := range node.Variants {
				if !ignore[v.Pos] {
					kept = append(kept, v)
				}
			}
			node.Variants = kept
		}
	}

	tree.variantPos = make([]int, 0, len(varPos))
	for pos := range varPos {
		tree.variantPos = append(tree.variantPos, pos)
	}
	sort.Ints(tree.variantPos)
}
