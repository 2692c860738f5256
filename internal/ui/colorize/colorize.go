// Package colorize highlights disassembly listings for terminal output.
package colorize

import (
	"fmt"
	"os"
	"strings"

	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/formatters"
	"github.com/alecthomas/chroma/v2/lexers"
	"github.com/alecthomas/chroma/v2/styles"

	"asmcheck/internal/disasm"
)

// Enabled reports whether output should be colorized. ASMCHECK_NO_COLOR
// disables it.
func Enabled() bool {
	return os.Getenv("ASMCHECK_NO_COLOR") == ""
}

// getAssemblyLexer returns an appropriate assembly lexer with fallbacks
func getAssemblyLexer() chroma.Lexer {
	// ARM assembly first
	candidates := []string{"armasm", "gas", "GAS", "nasm"}
	for _, name := range candidates {
		if lexer := lexers.Get(name); lexer != nil {
			return lexer
		}
	}
	return nil
}

// getDisasmStyle returns the disassembly style with fallbacks
func getDisasmStyle() *chroma.Style {
	candidates := []string{"asmcheck-dark", "dracula", "monokai"}
	for _, name := range candidates {
		if style := styles.Get(name); style != nil {
			return style
		}
	}
	return styles.Fallback
}

// getTerminalFormatter returns an appropriate terminal formatter
func getTerminalFormatter() chroma.Formatter {
	candidates := []string{"terminal16m", "terminal256"}
	for _, name := range candidates {
		if formatter := formatters.Get(name); formatter != nil {
			return formatter
		}
	}
	return formatters.Fallback
}

// ColorizeAssembly applies syntax highlighting to assembly text.
func ColorizeAssembly(code string) (string, error) {
	if !Enabled() {
		return code, nil
	}

	lexer := getAssemblyLexer()
	if lexer == nil {
		return code, nil
	}

	iterator, err := lexer.Tokenise(nil, code)
	if err != nil {
		return code, err
	}

	var buf strings.Builder
	if err := getTerminalFormatter().Format(&buf, getDisasmStyle(), iterator); err != nil {
		return code, err
	}
	return buf.String(), nil
}

// ColorizeListing highlights instruction lines and renders member headers
// and end markers in gray, so the member structure stays readable.
func ColorizeListing(listing string) string {
	if !Enabled() {
		return listing
	}

	lines := strings.Split(listing, "\n")
	for i, line := range lines {
		switch {
		case line == "":
		case strings.HasPrefix(line, ";"), disasm.IsEnd(line):
			lines[i] = gray(line)
		default:
			if h, ok := disasm.ParseHeader(line); ok {
				lines[i] = fmt.Sprintf("%s %s", gray(fmt.Sprintf("%s %#x %d", h.Kind, h.VA, h.Size)), gold(h.Name))
				continue
			}
			if colored, err := ColorizeAssembly(line); err == nil {
				lines[i] = dropTrailingNewline(colored)
			}
		}
	}
	return strings.Join(lines, "\n")
}

// dropTrailingNewline removes the newline lexers append to unterminated
// input, which may be followed by reset sequences.
func dropTrailingNewline(s string) string {
	i := strings.LastIndexByte(s, '\n')
	if i < 0 || StripANSI(s[i+1:]) != "" {
		return s
	}
	return s[:i] + s[i+1:]
}

func gray(s string) string { return fmt.Sprintf("\033[38;2;79;79;79m%s\033[0m", s) }
func gold(s string) string { return fmt.Sprintf("\033[38;2;255;215;0m%s\033[0m", s) }

// StripANSI removes ANSI escape sequences.
func StripANSI(s string) string {
	var result strings.Builder
	inEscape := false

	for _, r := range s {
		if r == '\x1b' {
			inEscape = true
		} else if inEscape {
			if r == 'm' {
				inEscape = false
			}
		} else {
			result.WriteRune(r)
		}
	}

	return result.String()
}
