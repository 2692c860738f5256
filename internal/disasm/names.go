package disasm

import (
	"strings"
	"sync"

	"github.com/ianlancetaylor/demangle"
)

// nameCache memoizes demangled symbol names; artifacts are disassembled
// repeatedly by tests that share the same helper symbols.
type nameCache struct {
	mu        sync.RWMutex
	demangled map[string]string
	hits      int
}

var names = &nameCache{demangled: make(map[string]string)}

// Demangle returns the demangled form of a symbol name, or the name itself
// when it is not mangled.
func Demangle(mangled string) string {
	names.mu.RLock()
	if d, ok := names.demangled[mangled]; ok {
		names.mu.RUnlock()
		names.mu.Lock()
		names.hits++
		names.mu.Unlock()
		return d
	}
	names.mu.RUnlock()

	d := demangle.Filter(mangled, demangle.NoClones)

	names.mu.Lock()
	names.demangled[mangled] = d
	names.mu.Unlock()
	return d
}

// DemangleCacheStats reports how many names are cached and how many lookups hit.
func DemangleCacheStats() (entries, hits int) {
	names.mu.RLock()
	defer names.mu.RUnlock()
	return len(names.demangled), names.hits
}

// ShortName reduces a demangled name to its unqualified identifier:
// "ns::Foo::run(int) const" becomes "run", "int f<a::b>(int)" becomes "f",
// and a function-local static "run()::counter" becomes "counter". Only
// "::" outside template arguments and parameter lists separates scopes.
func ShortName(name string) string {
	depth := 0
	for i := 0; i < len(name); i++ {
		switch name[i] {
		case '<', '(':
			depth++
		case '>', ')':
			if depth > 0 {
				depth--
			}
		case ':':
			if depth == 0 && strings.HasPrefix(name[i:], "::") {
				name = name[i+2:]
				i = -1
			}
		}
	}

	// parameter list and trailing qualifiers
	depth = 0
	for i := 0; i < len(name); i++ {
		if c := name[i]; c == '<' {
			depth++
		} else if c == '>' && depth > 0 {
			depth--
		} else if c == '(' && depth == 0 {
			name = name[:i]
			break
		}
	}
	// return type
	depth = 0
	for i := len(name) - 1; i >= 0; i-- {
		if c := name[i]; c == '>' {
			depth++
		} else if c == '<' && depth > 0 {
			depth--
		} else if c == ' ' && depth == 0 {
			name = name[i+1:]
			break
		}
	}
	// template arguments
	if strings.HasSuffix(name, ">") {
		depth = 0
		for i := len(name) - 1; i > 0; i-- {
			if name[i] == '>' {
				depth++
			} else if name[i] == '<' {
				depth--
				if depth == 0 {
					return name[:i]
				}
			}
		}
	}
	return name
}
