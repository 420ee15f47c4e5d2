// Package bio provides loading of the reference sequence and of the
// observed read files.
package bio

import (
	"bufio"
	"errors"
	"io"
	"strings"
)

// Sequence is a named nucleotide sequence.
type Sequence struct {
	Name     string
	Sequence string
}

// Sequences stores multiple sequences.
type Sequences []Sequence

// ParseFasta parses FASTA sequences from a reader.
func ParseFasta(rd io.Reader) (seqs Sequences, err error) {
	seqs = make(Sequences, 0, 1)
	scanner := bufio.NewScanner(rd)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line[0] == '>' {
			seq := Sequence{Name: line[1:]}
			seqs = append(seqs, seq)
		} else {
			if len(seqs) == 0 {
				return nil, errors.New("sequence w/o prefix")
			}
			line = strings.ToUpper(strings.Replace(line, " ", "", -1))
			seqs[len(seqs)-1].Sequence += line
		}
	}
	return seqs, scanner.Err()
}

// ReadReference reads a FASTA file holding exactly one reference
// sequence and returns it in capital letters.
func ReadReference(rd io.Reader) (string, error) {
	seqs, err := ParseFasta(rd)
	if err != nil {
		return "", err
	}
	if len(seqs) != 1 {
		return "", errors.New("expected a single reference sequence")
	}
	if len(seqs[0].Sequence) == 0 {
		return "", errors.New("empty reference sequence")
	}
	return seqs[0].Sequence, nil
}

// ReadLines returns all non-blank, whitespace-trimmed lines of a
// reader. Used for the one-observation-string-per-line reads files.
func ReadLines(rd io.Reader) (lines []string, err error) {
	scanner := bufio.NewScanner(rd)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		lines = append(lines, line)
	}
	return lines, scanner.Err()
}
