// Package elfxtest builds small relocatable ELF64 objects for tests, so
// disassembly and extraction can be exercised without a cross toolchain.
package elfxtest

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
)

// Func is a code symbol made of little-endian instruction words.
type Func struct {
	Name string
	Code []uint32
}

// Object is a data symbol. BSS objects carry only a size.
type Object struct {
	Name string
	Data []byte
	BSS  bool
	Size uint64
}

const (
	ehdrSize = 64
	shdrSize = 64
	symSize  = 24
)

// Section header indexes, in file order.
const (
	secNull = iota
	secText
	secData
	secBSS
	secSymtab
	secStrtab
	secShstrtab
	numSections
)

// Build writes an AArch64 ET_REL object containing funcs in .text and
// objs in .data or .bss.
func Build(funcs []Func, objs []Object) []byte {
	return BuildMachine(elf.EM_AARCH64, funcs, objs)
}

// BuildMachine is Build with an explicit e_machine.
func BuildMachine(machine elf.Machine, funcs []Func, objs []Object) []byte {
	le := binary.LittleEndian

	var text, data bytes.Buffer
	var bssSize uint64
	strtab := []byte{0}
	var syms bytes.Buffer
	syms.Write(make([]byte, symSize))

	addSym := func(name string, info byte, shndx uint16, value, size uint64) {
		nameOff := uint32(len(strtab))
		strtab = append(strtab, name...)
		strtab = append(strtab, 0)
		var ent [symSize]byte
		le.PutUint32(ent[0:], nameOff)
		ent[4] = info
		le.PutUint16(ent[6:], shndx)
		le.PutUint64(ent[8:], value)
		le.PutUint64(ent[16:], size)
		syms.Write(ent[:])
	}

	for _, fn := range funcs {
		off := uint64(text.Len())
		for _, w := range fn.Code {
			var b [4]byte
			le.PutUint32(b[:], w)
			text.Write(b[:])
		}
		addSym(fn.Name, byte(elf.STB_GLOBAL)<<4|byte(elf.STT_FUNC), secText, off, uint64(len(fn.Code)*4))
	}
	for _, ob := range objs {
		if ob.BSS {
			addSym(ob.Name, byte(elf.STB_GLOBAL)<<4|byte(elf.STT_OBJECT), secBSS, bssSize, ob.Size)
			bssSize += ob.Size
			continue
		}
		for data.Len()%8 != 0 {
			data.WriteByte(0)
		}
		off := uint64(data.Len())
		data.Write(ob.Data)
		addSym(ob.Name, byte(elf.STB_GLOBAL)<<4|byte(elf.STT_OBJECT), secData, off, uint64(len(ob.Data)))
	}

	shstrtab := []byte{0}
	names := make([]uint32, numSections)
	for i, n := range []string{"", ".text", ".data", ".bss", ".symtab", ".strtab", ".shstrtab"} {
		if n == "" {
			continue
		}
		names[i] = uint32(len(shstrtab))
		shstrtab = append(shstrtab, n...)
		shstrtab = append(shstrtab, 0)
	}

	var out bytes.Buffer
	out.Write(make([]byte, ehdrSize))
	pad := func(align int) {
		for out.Len()%align != 0 {
			out.WriteByte(0)
		}
	}

	type span struct{ off, size uint64 }
	var spans [numSections]span
	place := func(idx int, b []byte, align int) {
		pad(align)
		spans[idx] = span{uint64(out.Len()), uint64(len(b))}
		out.Write(b)
	}
	place(secText, text.Bytes(), 4)
	place(secData, data.Bytes(), 8)
	spans[secBSS] = span{uint64(out.Len()), bssSize}
	place(secSymtab, syms.Bytes(), 8)
	place(secStrtab, strtab, 1)
	place(secShstrtab, shstrtab, 1)
	pad(8)
	shoff := uint64(out.Len())

	type shdr struct {
		typ            elf.SectionType
		flags          elf.SectionFlag
		link, info     uint32
		align, entsize uint64
	}
	hdrs := [numSections]shdr{
		secNull:     {},
		secText:     {typ: elf.SHT_PROGBITS, flags: elf.SHF_ALLOC | elf.SHF_EXECINSTR, align: 4},
		secData:     {typ: elf.SHT_PROGBITS, flags: elf.SHF_ALLOC | elf.SHF_WRITE, align: 8},
		secBSS:      {typ: elf.SHT_NOBITS, flags: elf.SHF_ALLOC | elf.SHF_WRITE, align: 8},
		secSymtab:   {typ: elf.SHT_SYMTAB, link: secStrtab, info: 1, align: 8, entsize: symSize},
		secStrtab:   {typ: elf.SHT_STRTAB, align: 1},
		secShstrtab: {typ: elf.SHT_STRTAB, align: 1},
	}
	for i, h := range hdrs {
		var ent [shdrSize]byte
		le.PutUint32(ent[0:], names[i])
		le.PutUint32(ent[4:], uint32(h.typ))
		le.PutUint64(ent[8:], uint64(h.flags))
		le.PutUint64(ent[24:], spans[i].off)
		le.PutUint64(ent[32:], spans[i].size)
		le.PutUint32(ent[40:], h.link)
		le.PutUint32(ent[44:], h.info)
		le.PutUint64(ent[48:], h.align)
		le.PutUint64(ent[56:], h.entsize)
		out.Write(ent[:])
	}

	img := out.Bytes()
	copy(img[0:], []byte{0x7f, 'E', 'L', 'F', byte(elf.ELFCLASS64), byte(elf.ELFDATA2LSB), byte(elf.EV_CURRENT)})
	le.PutUint16(img[16:], uint16(elf.ET_REL))
	le.PutUint16(img[18:], uint16(machine))
	le.PutUint32(img[20:], uint32(elf.EV_CURRENT))
	le.PutUint64(img[40:], shoff)
	le.PutUint16(img[52:], ehdrSize)
	le.PutUint16(img[58:], shdrSize)
	le.PutUint16(img[60:], numSections)
	le.PutUint16(img[62:], secShstrtab)
	return img
}
