package disasm

import (
	"strings"

	"github.com/cockroachdb/errors"
)

// Assembly "disassembles" GNU assembler text, the output of a compiler
// stopped after its front-end, into the same listing format as ARM64.
// Members are the symbols declared with .type.
type Assembly struct {
	Source string
}

var _ Disassembler = Assembly{}

func (a Assembly) Disassemble(code []byte) (string, error) {
	source := a.Source
	if source == "" {
		source = "memory"
	}
	var b strings.Builder
	if err := WriteListing(&b, source, "asm", AssemblyMembers(string(code))); err != nil {
		return "", errors.Wrap(err, "write listing")
	}
	return b.String(), nil
}

var dataDirective = map[string]bool{
	".byte": true, ".short": true, ".hword": true, ".value": true,
	".long": true, ".word": true, ".int": true, ".quad": true,
	".xword": true, ".dword": true, ".zero": true, ".space": true,
	".string": true, ".ascii": true, ".asciz": true,
}

// sections tracks the current output section through .text, .data, .bss,
// .section, .pushsection, .popsection and .previous.
type sections struct {
	cur, prev string
	stack     []string
}

// apply updates the state for directive d with operands f and reports
// whether d was a section directive.
func (s *sections) apply(d string, f []string) bool {
	switch d {
	case ".text", ".data", ".bss":
		s.prev, s.cur = s.cur, d
	case ".section", ".pushsection":
		name := ""
		if len(f) > 1 {
			name = strings.TrimRight(f[1], ",")
		}
		if d == ".pushsection" {
			s.stack = append(s.stack, s.cur)
		}
		s.prev, s.cur = s.cur, name
	case ".popsection":
		if n := len(s.stack); n > 0 {
			s.prev, s.cur = s.cur, s.stack[n-1]
			s.stack = s.stack[:n-1]
		}
	case ".previous":
		s.prev, s.cur = s.cur, s.prev
	default:
		return false
	}
	return true
}

// stripComment cuts a "//" comment that is not inside a string literal.
func stripComment(line string) string {
	quoted := false
	for i := 0; i < len(line); i++ {
		switch c := line[i]; {
		case quoted && c == '\\':
			i++
		case c == '"':
			quoted = !quoted
		case !quoted && c == '/' && i+1 < len(line) && line[i+1] == '/':
			return line[:i]
		}
	}
	return line
}

// AssemblyMembers collects functions and objects from assembler text.
// Function bodies keep instructions and local labels; object bodies keep
// data directives. A member ends at its .size, at .cfi_endproc, at the next
// typed label or at the end of input. Lines emitted into another section
// while a member is open, such as jump tables, are skipped and the member
// resumes when its section is restored. Whitespace inside a line is
// collapsed to single spaces.
func AssemblyMembers(src string) []Member {
	lines := strings.Split(src, "\n")

	kinds := make(map[string]Kind)
	for _, raw := range lines {
		f := strings.Fields(strings.ReplaceAll(stripComment(raw), ",", " "))
		if len(f) < 3 || f[0] != ".type" {
			continue
		}
		switch strings.TrimLeft(f[2], "@%#") {
		case "function":
			kinds[f[1]] = KindMethod
		case "object":
			kinds[f[1]] = KindField
		}
	}

	var (
		members []Member
		cur     *Member
		curSym  string
		home    string
		sec     sections
	)
	flush := func() {
		if cur != nil {
			members = append(members, *cur)
			cur = nil
		}
	}

	for _, raw := range lines {
		raw = stripComment(raw)
		t := strings.Join(strings.Fields(raw), " ")
		if t == "" || t[0] == '#' || t[0] == '@' {
			continue
		}

		if t[0] == '.' && !strings.HasSuffix(t, ":") {
			f := strings.Fields(strings.ReplaceAll(t, ",", " , "))
			d := f[0]
			if sec.apply(d, f) {
				continue
			}
			if cur == nil {
				continue
			}
			switch {
			case d == ".cfi_endproc" && cur.Kind == KindMethod:
				flush()
			case d == ".size" && len(f) > 1 && f[1] == curSym:
				flush()
			case sec.cur == home && cur.Kind == KindField && dataDirective[d]:
				cur.Lines = append(cur.Lines, t)
			}
			continue
		}

		indented := raw[0] == ' ' || raw[0] == '\t'
		if !indented && strings.HasSuffix(t, ":") {
			name := strings.TrimSuffix(t, ":")
			if k, ok := kinds[name]; ok {
				flush()
				cur = &Member{Name: Demangle(name), Kind: k}
				curSym, home = name, sec.cur
				continue
			}
			if cur != nil && cur.Kind == KindMethod && sec.cur == home {
				cur.Lines = append(cur.Lines, t)
			}
			continue
		}
		if cur != nil && cur.Kind == KindMethod && sec.cur == home {
			cur.Lines = append(cur.Lines, t)
		}
	}
	flush()
	return members
}
