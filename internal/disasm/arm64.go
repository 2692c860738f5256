package disasm

import (
	"debug/elf"
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/cockroachdb/errors"
	"golang.org/x/arch/arm64/arm64asm"

	"asmcheck/internal/elfx"
)

// ARM64 disassembles AArch64 ELF objects and executables.
type ARM64 struct {
	// Source names the artifact in the listing banner. Defaults to "memory".
	Source string
}

var _ Disassembler = ARM64{}

// Disassemble renders every function and data object of the artifact.
func (a ARM64) Disassemble(code []byte) (string, error) {
	members, err := a.Members(code)
	if err != nil {
		return "", err
	}
	source := a.Source
	if source == "" {
		source = "memory"
	}
	var b strings.Builder
	if err := WriteListing(&b, source, "aarch64", members); err != nil {
		return "", errors.Wrap(err, "write listing")
	}
	return b.String(), nil
}

// Members decodes the artifact into listing members: functions first, then
// data objects, each group in address order.
func (a ARM64) Members(code []byte) ([]Member, error) {
	img, err := elfx.OpenBytes(code)
	if err != nil {
		return nil, err
	}
	defer img.Close()

	if img.Machine() != elf.EM_AARCH64 {
		return nil, errors.Wrapf(ErrUnsupportedMachine, "%s", img.Machine())
	}

	var members []Member
	for _, sym := range img.Functions() {
		data, err := img.SymbolBytes(sym)
		if err != nil {
			return nil, errors.Wrapf(err, "read function %s", sym.Name)
		}
		members = append(members, Member{
			Name:  Demangle(sym.Name),
			Kind:  KindMethod,
			VA:    sym.Addr,
			Size:  sym.Size,
			Lines: renderStream(DecodeARM64(data, sym.Addr)),
		})
	}
	for _, sym := range img.Objects() {
		var lines []string
		if img.NoBits(sym) {
			lines = []string{fmt.Sprintf(".zero %d", sym.Size)}
		} else {
			data, err := img.SymbolBytes(sym)
			if err != nil {
				return nil, errors.Wrapf(err, "read object %s", sym.Name)
			}
			lines = dataDirectives(data)
		}
		members = append(members, Member{
			Name:  Demangle(sym.Name),
			Kind:  KindField,
			VA:    sym.Addr,
			Size:  sym.Size,
			Lines: lines,
		})
	}
	return members, nil
}

// DecodeARM64 decodes a little-endian AArch64 code blob starting at va.
// Words that do not decode are kept as ".inst" directives so the stream
// stays aligned with the bytes.
func DecodeARM64(data []byte, va uint64) Stream {
	stream := make(Stream, 0, len(data)/4)
	for i := 0; i+4 <= len(data); i += 4 {
		in := Inst{VA: va + uint64(i)}
		copy(in.Raw[:], data[i:i+4])

		inst, err := arm64asm.Decode(data[i : i+4])
		if err != nil {
			in.Op = ".inst"
			in.Text = fmt.Sprintf(".inst 0x%08x", binary.LittleEndian.Uint32(data[i:i+4]))
		} else {
			in.Op = strings.ToLower(inst.Op.String())
			in.Text = strings.ToLower(inst.String())
			if target, ok := branchTarget(inst, in.VA); ok {
				in.target = target
				in.branch = true
			}
		}
		stream = append(stream, in)
	}
	return stream
}

// branchTarget reports the destination of a local branch. Calls are not
// local control flow and get no label.
func branchTarget(inst arm64asm.Inst, pc uint64) (uint64, bool) {
	if inst.Op == arm64asm.BL {
		return 0, false
	}
	op := inst.Op.String()
	if !strings.HasPrefix(op, "B") && !strings.HasPrefix(op, "CB") && !strings.HasPrefix(op, "TB") {
		return 0, false
	}
	for i := len(inst.Args) - 1; i >= 0; i-- {
		if inst.Args[i] == nil {
			continue
		}
		if rel, ok := inst.Args[i].(arm64asm.PCRel); ok {
			return uint64(int64(pc) + int64(rel)), true
		}
		break
	}
	return 0, false
}

// renderStream formats a stream as listing lines, inserting "loc_<va>:"
// labels before instructions that are targets of branches within the stream.
func renderStream(s Stream) []string {
	if len(s) == 0 {
		return nil
	}
	start, end := s[0].VA, s[len(s)-1].VA+4

	labels := make(map[uint64]bool)
	for _, in := range s {
		if in.branch && in.target >= start && in.target < end {
			labels[in.target] = true
		}
	}

	lines := make([]string, 0, len(s)+len(labels))
	for _, in := range s {
		if labels[in.VA] {
			lines = append(lines, fmt.Sprintf("loc_%x:", in.VA))
		}
		lines = append(lines, in.Text)
	}
	return lines
}

// dataDirectives renders object storage as .word directives with a .byte
// tail, or as one .asciz directive for C string initializers.
func dataDirectives(data []byte) []string {
	if s, ok := cString(data); ok {
		return []string{".asciz " + EscapeString(s)}
	}
	var lines []string
	i := 0
	for ; i+4 <= len(data); i += 4 {
		lines = append(lines, fmt.Sprintf(".word 0x%08x", binary.LittleEndian.Uint32(data[i:i+4])))
	}
	for ; i < len(data); i++ {
		lines = append(lines, fmt.Sprintf(".byte 0x%02x", data[i]))
	}
	return lines
}
