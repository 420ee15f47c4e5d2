package phylotree

import (
	"fmt"
	"strconv"
	"strings"
)

// Variant is a single-nucleotide change at a tree position. Positions
// are stored 0-based; the source tokens are 1-based.
type Variant struct {
	Pos      int
	Anc      byte
	Der      byte
	Unstable bool
	BackMut  bool
}

// IsSNP returns true if the token describes a single-nucleotide
// variant. Tokens containing '.' or 'd' are insertions or deletions
// and are excluded from the SNP model.
func IsSNP(token string) bool {
	if strings.ContainsAny(token, ".d") {
		return false
	}
	return true
}

// ParseVariant parses a variant token, e.g. A10G, (C152T) for an
// unstable site or T16189C! for a back-mutation.
func ParseVariant(token string) (v Variant, err error) {
	s := token
	if strings.HasPrefix(s, "(") {
		if !strings.HasSuffix(s, ")") {
			return v, fmt.Errorf("variant %q: unbalanced parentheses", token)
		}
		v.Unstable = true
		s = s[1 : len(s)-1]
	}
	if strings.HasSuffix(s, "!") {
		v.BackMut = true
		s = strings.TrimRight(s, "!")
	}
	if len(s) < 3 {
		return v, fmt.Errorf("variant %q: too short", token)
	}
	pos, err := strconv.Atoi(s[1 : len(s)-1])
	if err != nil {
		return v, fmt.Errorf("variant %q: bad position: %v", token, err)
	}
	if pos < 1 {
		return v, fmt.Errorf("variant %q: position is 1-based", token)
	}
	v.Pos = pos - 1
	v.Anc = toUpper(s[0])
	v.Der = toUpper(s[len(s)-1])
	return v, nil
}

// String returns the variant in the source token format, annotations
// included.
func (v Variant) String() string {
	s := fmt.Sprintf("%c%d%c", v.Anc, v.Pos+1, v.Der)
	if v.BackMut {
		s += "!"
	}
	if v.Unstable {
		s = "(" + s + ")"
	}
	return s
}

func toUpper(b byte) byte {
	if b >= 'a' && b <= 'z' {
		return b - 'a' + 'A'
	}
	return b
}
