// Package elfx provides helpers for opening ELF artifacts, enumerating their
// function and object symbols, and reading the bytes behind each symbol.
package elfx

import (
	"bytes"
	"debug/elf"
	"os"
	"sort"
	"syscall"

	"github.com/cockroachdb/errors"
)

// SymKind distinguishes code symbols from data symbols.
type SymKind int

const (
	SymFunc SymKind = iota
	SymObject
)

type Image struct {
	Path  string
	File  *elf.File
	All   []byte
	Loads []Seg
	Syms  []Sym

	mapped bool
	f      *os.File
}

type Seg struct {
	Vaddr, Off, Filesz uint64
	Flags              elf.ProgFlag
}

// Sym is a defined function or object symbol.
type Sym struct {
	Name    string
	Addr    uint64
	Size    uint64
	Kind    SymKind
	Section elf.SectionIndex
}

// Open maps the file at path read-only and parses it.
func Open(path string) (*Image, error) {
	of, err := os.OpenFile(path, os.O_RDONLY, 0)
	if err != nil {
		return nil, errors.Wrap(err, "open file")
	}

	fi, err := of.Stat()
	if err != nil {
		of.Close()
		return nil, errors.Wrap(err, "stat file")
	}
	if fi.Size() == 0 {
		of.Close()
		return nil, errors.Newf("open elf: %s is empty", path)
	}

	all, err := syscall.Mmap(int(of.Fd()), 0, int(fi.Size()), syscall.PROT_READ, syscall.MAP_SHARED)
	if err != nil {
		of.Close()
		return nil, errors.Wrap(err, "mmap file")
	}

	im, err := parse(all)
	if err != nil {
		syscall.Munmap(all)
		of.Close()
		return nil, err
	}
	im.Path = path
	im.mapped = true
	im.f = of
	return im, nil
}

// OpenBytes parses an in-memory artifact, such as compiler output.
func OpenBytes(data []byte) (*Image, error) {
	return parse(data)
}

func parse(all []byte) (*Image, error) {
	f, err := elf.NewFile(bytes.NewReader(all))
	if err != nil {
		return nil, errors.Wrap(err, "open elf")
	}

	im := &Image{File: f, All: all}
	for _, p := range f.Progs {
		if p.Type != elf.PT_LOAD {
			continue
		}
		im.Loads = append(im.Loads, Seg{
			Vaddr:  p.Vaddr,
			Off:    p.Off,
			Filesz: p.Filesz,
			Flags:  p.Flags,
		})
	}

	im.loadSymbols()
	return im, nil
}

// Close unmaps the memory and closes the underlying files.
func (im *Image) Close() error {
	var err1, err2 error
	if im.mapped && im.All != nil {
		err1 = syscall.Munmap(im.All)
	}
	im.All = nil
	if im.f != nil {
		err2 = im.f.Close()
		im.f = nil
	}
	if im.File != nil {
		err3 := im.File.Close()
		if err3 != nil && err2 == nil {
			err2 = err3
		}
		im.File = nil
	}
	if err1 != nil {
		return err1
	}
	return err2
}

// Machine reports the target architecture of the artifact.
func (im *Image) Machine() elf.Machine {
	return im.File.Machine
}

// VA2Off translates a virtual address into a file offset
// using PT_LOAD segments. It returns false if VA is unmapped.
func (im *Image) VA2Off(va uint64) (uint64, bool) {
	for _, l := range im.Loads {
		if va >= l.Vaddr && va < l.Vaddr+l.Filesz {
			return l.Off + (va - l.Vaddr), true
		}
	}
	return 0, false
}

// SliceVA returns a subslice of the file corresponding to the virtual address range [va, va+size).
// It returns (nil, false) if the VA is unmapped or the range is out of bounds.
func (im *Image) SliceVA(va uint64, size uint64) ([]byte, bool) {
	off, ok := im.VA2Off(va)
	if !ok {
		return nil, false
	}
	if size == 0 {
		return []byte{}, true
	}
	end := off + size
	if end > uint64(len(im.All)) {
		return nil, false
	}
	return im.All[off:end], true
}

// loadSymbols collects defined function and object symbols from .symtab,
// falling back to .dynsym for stripped shared objects.
func (im *Image) loadSymbols() {
	syms, err := im.File.Symbols()
	if err != nil || len(syms) == 0 {
		syms, err = im.File.DynamicSymbols()
		if err != nil {
			return
		}
	}

	for _, sym := range syms {
		if sym.Section == elf.SHN_UNDEF || sym.Name == "" {
			continue
		}

		var kind SymKind
		switch elf.ST_TYPE(sym.Info) {
		case elf.STT_FUNC:
			kind = SymFunc
		case elf.STT_OBJECT:
			kind = SymObject
		default:
			continue
		}

		im.Syms = append(im.Syms, Sym{
			Name:    sym.Name,
			Addr:    sym.Value,
			Size:    sym.Size,
			Kind:    kind,
			Section: sym.Section,
		})
	}

	sort.SliceStable(im.Syms, func(i, j int) bool {
		if im.Syms[i].Section != im.Syms[j].Section {
			return im.Syms[i].Section < im.Syms[j].Section
		}
		return im.Syms[i].Addr < im.Syms[j].Addr
	})
}

// Functions returns the function symbols in section and address order.
func (im *Image) Functions() []Sym {
	return im.filter(SymFunc)
}

// Objects returns the data symbols in section and address order.
func (im *Image) Objects() []Sym {
	return im.filter(SymObject)
}

func (im *Image) filter(kind SymKind) []Sym {
	var out []Sym
	for _, s := range im.Syms {
		if s.Kind == kind {
			out = append(out, s)
		}
	}
	return out
}

func (im *Image) section(sym Sym) *elf.Section {
	idx := int(sym.Section)
	if sym.Section >= elf.SHN_LORESERVE || idx <= 0 || idx >= len(im.File.Sections) {
		return nil
	}
	return im.File.Sections[idx]
}

// NoBits reports whether sym lives in storage with no file contents (.bss).
func (im *Image) NoBits(sym Sym) bool {
	s := im.section(sym)
	return s != nil && s.Type == elf.SHT_NOBITS
}

// SymbolBytes reads the bytes that back sym. Relocatable objects store
// section-relative symbol values; linked images store virtual addresses.
func (im *Image) SymbolBytes(sym Sym) ([]byte, error) {
	if sym.Size == 0 {
		return []byte{}, nil
	}

	s := im.section(sym)
	if s == nil {
		if b, ok := im.SliceVA(sym.Addr, sym.Size); ok {
			return b, nil
		}
		return nil, errors.Newf("symbol %s at %#x is unmapped", sym.Name, sym.Addr)
	}
	if s.Type == elf.SHT_NOBITS {
		return make([]byte, sym.Size), nil
	}

	start := sym.Addr
	if im.File.Type != elf.ET_REL {
		if sym.Addr < s.Addr {
			return nil, errors.Newf("symbol %s at %#x precedes section %s", sym.Name, sym.Addr, s.Name)
		}
		start = sym.Addr - s.Addr
	}
	if start+sym.Size > s.Size || s.Offset+start+sym.Size > uint64(len(im.All)) {
		return nil, errors.Newf("symbol %s overruns section %s", sym.Name, s.Name)
	}
	off := s.Offset + start
	return im.All[off : off+sym.Size], nil
}
