// Package insnseq holds the instructions of one member and answers
// ordered pattern queries over them.
//
// Instructions are opaque text. A pattern token matches an instruction when
// the instruction starts with the token, so operands can be left out:
// "add" matches "add w0, w0, w1".
package insnseq

import (
	"strconv"
	"strings"
)

// Sequence is an immutable, ordered list of instructions.
type Sequence struct {
	insns []string
}

// New builds a sequence from listing lines, trimming surrounding whitespace.
func New(lines []string) Sequence {
	insns := make([]string, len(lines))
	for i, l := range lines {
		insns[i] = strings.TrimSpace(l)
	}
	return Sequence{insns: insns}
}

// Len returns the number of instructions.
func (s Sequence) Len() int { return len(s.insns) }

// At returns the instruction at index i.
func (s Sequence) At(i int) string { return s.insns[i] }

// Instructions returns a copy of the instructions.
func (s Sequence) Instructions() []string {
	return append([]string(nil), s.insns...)
}

// IndexOf returns the lowest index >= from whose instruction starts with
// token, or -1.
func (s Sequence) IndexOf(token string, from int) int {
	if from < 0 {
		from = 0
	}
	for i := from; i < len(s.insns); i++ {
		if strings.HasPrefix(s.insns[i], token) {
			return i
		}
	}
	return -1
}

// MatchRequest is one pattern query.
type MatchRequest struct {
	Pattern []string
	Offset  int  // first index the match may start at
	Strict  bool // pattern elements must be contiguous
}

// Match reports whether req.Pattern occurs in order at or after req.Offset.
// Loose requests allow other instructions between matched elements; strict
// requests require the elements to be adjacent. An empty pattern always matches.
func (s Sequence) Match(req MatchRequest) bool {
	offset := req.Offset
	if offset < 0 {
		offset = 0
	}
	return s.match(req.Pattern, offset, req.Strict, true)
}

// MatchLoose is Match with gaps allowed between pattern elements.
func (s Sequence) MatchLoose(pattern []string, offset int) bool {
	return s.Match(MatchRequest{Pattern: pattern, Offset: offset})
}

// MatchStrict is Match with pattern elements required to be contiguous.
func (s Sequence) MatchStrict(pattern []string, offset int) bool {
	return s.Match(MatchRequest{Pattern: pattern, Offset: offset, Strict: true})
}

// match embeds pattern starting at offset. Every occurrence of the head is
// tried in turn, since an instruction may repeat and only a later occurrence
// may lead to a full match. In strict mode every element after the first
// must sit exactly at offset.
func (s Sequence) match(pattern []string, offset int, strict, first bool) bool {
	if len(pattern) == 0 {
		return true
	}
	for idx := s.IndexOf(pattern[0], offset); idx >= 0; idx = s.IndexOf(pattern[0], idx+1) {
		if strict && !first && idx != offset {
			return false
		}
		if s.match(pattern[1:], idx+1, strict, false) {
			return true
		}
	}
	return false
}

// String renders the instructions one per line.
func (s Sequence) String() string {
	return strings.Join(s.insns, "\n")
}

// Literal renders the instructions as a Go []string literal, ready to paste
// into a test as an expected pattern.
func (s Sequence) Literal() string {
	if len(s.insns) == 0 {
		return "[]string{}"
	}
	var b strings.Builder
	b.WriteString("[]string{\n")
	for _, in := range s.insns {
		b.WriteString("\t")
		b.WriteString(strconv.Quote(in))
		b.WriteString(",\n")
	}
	b.WriteString("}")
	return b.String()
}
