package disasm

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// EndMarker closes a member block in a listing.
const EndMarker = "end"

// WriteListing renders members in the asmcheck listing format:
//
//	; asmcheck <source> <machine>
//	method 0x0 16 run
//		mov w0, #0x1
//	end
//
// Header lines are "<kind> <addr> <size> <name>"; the name is last because
// demangled names may contain spaces.
func WriteListing(w io.Writer, source, machine string, members []Member) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "; asmcheck %s %s\n", source, machine)
	for _, m := range members {
		fmt.Fprintf(bw, "%s %#x %d %s\n", m.Kind, m.VA, m.Size, m.Name)
		for _, line := range m.Lines {
			bw.WriteString("\t")
			bw.WriteString(line)
			bw.WriteString("\n")
		}
		bw.WriteString(EndMarker)
		bw.WriteString("\n")
	}
	return bw.Flush()
}

// Header is a parsed member header line.
type Header struct {
	Kind Kind
	VA   uint64
	Size uint64
	Name string
}

// ParseHeader recognizes a member header line. Indented lines are never
// headers, so instruction text cannot be mistaken for one.
func ParseHeader(line string) (Header, bool) {
	if line == "" || line[0] == '\t' || line[0] == ' ' {
		return Header{}, false
	}
	parts := strings.SplitN(strings.TrimRight(line, "\r"), " ", 4)
	if len(parts) != 4 || parts[3] == "" {
		return Header{}, false
	}

	var h Header
	switch parts[0] {
	case KindMethod.String():
		h.Kind = KindMethod
	case KindField.String():
		h.Kind = KindField
	default:
		return Header{}, false
	}

	va, err := strconv.ParseUint(parts[1], 0, 64)
	if err != nil {
		return Header{}, false
	}
	size, err := strconv.ParseUint(parts[2], 10, 64)
	if err != nil {
		return Header{}, false
	}
	h.VA = va
	h.Size = size
	h.Name = parts[3]
	return h, true
}

// IsEnd reports whether line closes a member block.
func IsEnd(line string) bool {
	return strings.TrimSpace(line) == EndMarker && !strings.HasPrefix(line, "\t")
}
