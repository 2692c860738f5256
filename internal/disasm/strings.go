package disasm

import (
	"bytes"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// cString reports whether data is a single NUL-terminated run of printable
// UTF-8, the shape of a string-literal initializer.
func cString(data []byte) (string, bool) {
	if len(data) < 2 || data[len(data)-1] != 0 {
		return "", false
	}
	body := data[:len(data)-1]
	if bytes.IndexByte(body, 0) >= 0 || !utf8.Valid(body) {
		return "", false
	}
	for _, r := range string(body) {
		if !unicode.IsPrint(r) && r != '\n' && r != '\t' {
			return "", false
		}
	}
	return string(body), true
}

// EscapeString quotes s for an assembler string directive. Printable runes
// are kept; quotes, backslashes and control bytes are escaped.
func EscapeString(s string) string {
	var sb strings.Builder
	sb.WriteByte('"')
	b := []byte(s)
	for len(b) > 0 {
		r, size := utf8.DecodeRune(b)
		switch {
		case r == utf8.RuneError && size == 1:
			fmt.Fprintf(&sb, "\\x%02x", b[0])
		case r == '"' || r == '\\':
			sb.WriteByte('\\')
			sb.WriteRune(r)
		case r == '\n':
			sb.WriteString("\\n")
		case r == '\t':
			sb.WriteString("\\t")
		case unicode.IsPrint(r):
			sb.WriteRune(r)
		default:
			for _, c := range b[:size] {
				fmt.Fprintf(&sb, "\\x%02x", c)
			}
		}
		b = b[size:]
	}
	sb.WriteByte('"')
	return sb.String()
}
