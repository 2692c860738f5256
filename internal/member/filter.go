// Package member isolates the lines of one member from a full listing.
package member

import (
	"bufio"
	"strings"

	"asmcheck/internal/disasm"
)

// DefaultMethod is selected when a Selector names neither a method nor a field.
const DefaultMethod = "run"

// Selector identifies the member to extract. Only one of Method and Field
// is meant to be set; Method wins when both are.
type Selector struct {
	Method string
	Field  string
}

// Normalize fills in DefaultMethod for an empty selector.
func (s Selector) Normalize() Selector {
	if s.Method == "" && s.Field == "" {
		s.Method = DefaultMethod
	}
	return s
}

// Selects reports whether a member with the given declared name and kind is
// the target. Names compare either verbatim or by short name, so every
// overload of a C++ method is selected.
func (s Selector) Selects(name string, kind disasm.Kind) bool {
	s = s.Normalize()
	target, want := s.Method, disasm.KindMethod
	if target == "" {
		target, want = s.Field, disasm.KindField
	}
	if kind != want {
		return false
	}
	return name == target || disasm.ShortName(name) == target
}

func (s Selector) String() string {
	s = s.Normalize()
	if s.Method != "" {
		return "method " + s.Method
	}
	return "field " + s.Field
}

// Visitor receives the structure of one member.
type Visitor interface {
	MemberStart(name string, kind disasm.Kind)
	InstructionLine(text string)
	MemberEnd()
}

// capture records instruction lines of selected members.
type capture struct {
	lines []string
}

func (c *capture) MemberStart(string, disasm.Kind) {}
func (c *capture) InstructionLine(text string)     { c.lines = append(c.lines, text) }
func (c *capture) MemberEnd()                      {}

// discard drops everything it is shown.
type discard struct{}

func (discard) MemberStart(string, disasm.Kind) {}
func (discard) InstructionLine(string)          {}
func (discard) MemberEnd()                      {}

// Filter returns the trimmed instruction lines of the member selected by sel,
// in listing order. Lines outside member blocks are ignored. The result is
// empty when no member matches.
func Filter(listing string, sel Selector) []string {
	c := &capture{}
	Walk(listing, func(name string, kind disasm.Kind) Visitor {
		if sel.Selects(name, kind) {
			return c
		}
		return discard{}
	})
	return c.lines
}

// Walk scans a listing and drives, for each member, the visitor returned by
// choose.
func Walk(listing string, choose func(name string, kind disasm.Kind) Visitor) {
	sc := bufio.NewScanner(strings.NewReader(listing))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var v Visitor
	for sc.Scan() {
		line := sc.Text()
		if v == nil {
			if h, ok := disasm.ParseHeader(line); ok {
				v = choose(h.Name, h.Kind)
				v.MemberStart(h.Name, h.Kind)
			}
			continue
		}
		if disasm.IsEnd(line) {
			v.MemberEnd()
			v = nil
			continue
		}
		if text := strings.TrimSpace(line); text != "" {
			v.InstructionLine(text)
		}
	}
	if v != nil {
		v.MemberEnd()
	}
}
