// Package disasm defines the instruction representation and the textual
// listing format shared by disassemblers and the member filter.
package disasm

import "github.com/cockroachdb/errors"

// Inst is a simplified decoded instruction.
type Inst struct {
	VA   uint64  // virtual address of instruction
	Text string  // formatted disassembly string
	Op   string  // mnemonic in lowercase
	Raw  [4]byte // raw encoding

	target uint64 // local branch destination, valid when branch is set
	branch bool
}

// Stream is a linear sequence of instructions.
type Stream []Inst

// Kind is the kind of a listed member.
type Kind int

const (
	KindMethod Kind = iota
	KindField
)

func (k Kind) String() string {
	switch k {
	case KindMethod:
		return "method"
	case KindField:
		return "field"
	default:
		return "unknown"
	}
}

// Member is one top-level unit of a listing: a function with its decoded
// instructions, or a data object with its data directives.
type Member struct {
	Name  string
	Kind  Kind
	VA    uint64
	Size  uint64
	Lines []string
}

// Disassembler renders compiled bytes as a full textual listing of all members.
type Disassembler interface {
	Disassemble(code []byte) (string, error)
}

// ErrUnsupportedMachine is returned for artifacts built for another architecture.
var ErrUnsupportedMachine = errors.New("unsupported machine")
