package elfx

import (
	"debug/elf"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"asmcheck/internal/elfx/elfxtest"
)

func sampleObject() []byte {
	return elfxtest.Build(
		[]elfxtest.Func{
			{Name: "run", Code: []uint32{0x52800020, 0xd65f03c0}},
			{Name: "helper", Code: []uint32{0xd65f03c0}},
		},
		[]elfxtest.Object{
			{Name: "answer", Data: []byte{0x2a, 0, 0, 0}},
			{Name: "buffer", BSS: true, Size: 16},
		},
	)
}

func TestOpenBytesSymbols(t *testing.T) {
	im, err := OpenBytes(sampleObject())
	require.NoError(t, err)
	defer im.Close()

	assert.Equal(t, elf.EM_AARCH64, im.Machine())

	funcs := im.Functions()
	require.Len(t, funcs, 2)
	assert.Equal(t, "run", funcs[0].Name)
	assert.Equal(t, uint64(0), funcs[0].Addr)
	assert.Equal(t, uint64(8), funcs[0].Size)
	assert.Equal(t, "helper", funcs[1].Name)
	assert.Equal(t, uint64(8), funcs[1].Addr)

	objs := im.Objects()
	require.Len(t, objs, 2)
	assert.Equal(t, "answer", objs[0].Name)
	assert.Equal(t, "buffer", objs[1].Name)
}

func TestSymbolBytes(t *testing.T) {
	im, err := OpenBytes(sampleObject())
	require.NoError(t, err)
	defer im.Close()

	tests := []struct {
		name   string
		want   []byte
		nobits bool
	}{
		{name: "run", want: []byte{0x20, 0x00, 0x80, 0x52, 0xc0, 0x03, 0x5f, 0xd6}},
		{name: "helper", want: []byte{0xc0, 0x03, 0x5f, 0xd6}},
		{name: "answer", want: []byte{0x2a, 0, 0, 0}},
		{name: "buffer", want: make([]byte, 16), nobits: true},
	}

	byName := make(map[string]Sym)
	for _, s := range im.Syms {
		byName[s.Name] = s
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sym, ok := byName[tt.name]
			require.True(t, ok)
			got, err := im.SymbolBytes(sym)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.nobits, im.NoBits(sym))
		})
	}
}

func TestSymbolBytesOverrun(t *testing.T) {
	im, err := OpenBytes(sampleObject())
	require.NoError(t, err)
	defer im.Close()

	sym := im.Functions()[0]
	sym.Size = 1 << 20
	_, err = im.SymbolBytes(sym)
	assert.Error(t, err)
}

func TestOpenFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sample.o")
	require.NoError(t, os.WriteFile(path, sampleObject(), 0o644))

	im, err := Open(path)
	require.NoError(t, err)
	assert.Equal(t, path, im.Path)
	assert.Len(t, im.Functions(), 2)
	assert.NoError(t, im.Close())
}

func TestOpenRejectsGarbage(t *testing.T) {
	_, err := OpenBytes([]byte("not an elf file at all"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "empty.o")
	require.NoError(t, os.WriteFile(path, nil, 0o644))
	_, err = Open(path)
	assert.Error(t, err)
}
