package insnseq

import (
	"math/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTrims(t *testing.T) {
	s := New([]string{"\tmov w0, #0x1  ", "  ret"})
	require.Equal(t, 2, s.Len())
	assert.Equal(t, "mov w0, #0x1", s.At(0))
	assert.Equal(t, []string{"mov w0, #0x1", "ret"}, s.Instructions())
}

func TestInstructionsIsACopy(t *testing.T) {
	s := New([]string{"nop"})
	got := s.Instructions()
	got[0] = "ret"
	assert.Equal(t, "nop", s.At(0))
}

func TestIndexOf(t *testing.T) {
	s := New([]string{"LOAD a", "STORELOAD", "LOAD b", "ADD"})
	tests := []struct {
		token string
		from  int
		want  int
	}{
		{token: "LOAD", from: 0, want: 0},
		{token: "LOAD", from: 1, want: 2},
		{token: "LOAD b", from: 0, want: 2},
		{token: "STORE", from: 0, want: 1},
		{token: "ADD", from: 4, want: -1},
		{token: "LOAD", from: -3, want: 0},
		{token: "MUL", from: 0, want: -1},
	}
	for _, tt := range tests {
		t.Run(tt.token, func(t *testing.T) {
			assert.Equal(t, tt.want, s.IndexOf(tt.token, tt.from))
		})
	}
}

func TestEmptyPatternAlwaysMatches(t *testing.T) {
	s := New([]string{"nop", "ret"})
	for _, offset := range []int{-1, 0, 1, 2, 10} {
		assert.True(t, s.MatchLoose(nil, offset))
		assert.True(t, s.MatchStrict([]string{}, offset))
	}
	assert.True(t, New(nil).MatchStrict(nil, 0))
}

func TestEmptySequenceMatchesNothing(t *testing.T) {
	s := New(nil)
	assert.False(t, s.MatchLoose([]string{"nop"}, 0))
	assert.False(t, s.MatchStrict([]string{"nop"}, 0))
}

func TestPrefixSemantics(t *testing.T) {
	s := New([]string{"LOAD a"})
	assert.True(t, s.MatchLoose([]string{"LOAD"}, 0))
	assert.True(t, s.MatchStrict([]string{"LOAD a"}, 0))
	assert.False(t, s.MatchLoose([]string{"LOAD a b"}, 0))

	s = New([]string{"STORELOAD"})
	assert.False(t, s.MatchLoose([]string{"LOAD"}, 0))
	assert.False(t, s.MatchStrict([]string{"LOAD"}, 0))
}

func TestLooseAndStrict(t *testing.T) {
	s := New([]string{"LOAD a", "LOAD b", "ADD", "LOAD a", "STORE c"})
	tests := []struct {
		name    string
		pattern []string
		offset  int
		loose   bool
		strict  bool
	}{
		{name: "contiguous run", pattern: []string{"LOAD b", "ADD"}, loose: true, strict: true},
		{name: "gap", pattern: []string{"LOAD a", "ADD"}, loose: true, strict: false},
		{name: "later head completes strict run", pattern: []string{"LOAD a", "STORE c"}, loose: true, strict: true},
		{name: "wrong order", pattern: []string{"ADD", "LOAD b"}, loose: false, strict: false},
		{name: "missing element", pattern: []string{"LOAD", "MUL"}, loose: false, strict: false},
		{name: "whole sequence", pattern: []string{"LOAD", "LOAD", "ADD", "LOAD", "STORE"}, loose: true, strict: true},
		{name: "longer than sequence", pattern: []string{"LOAD", "LOAD", "ADD", "LOAD", "STORE", "RET"}, loose: false, strict: false},
		{name: "offset skips first load", pattern: []string{"LOAD a", "ADD"}, offset: 1, loose: false, strict: false},
		{name: "offset lands on head", pattern: []string{"LOAD a", "STORE"}, offset: 3, loose: true, strict: true},
		{name: "offset past end", pattern: []string{"STORE"}, offset: 5, loose: false, strict: false},
		{name: "repeated token", pattern: []string{"LOAD", "LOAD"}, loose: true, strict: true},
		{name: "repeated token with gap only", pattern: []string{"LOAD b", "LOAD a"}, loose: true, strict: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.loose, s.MatchLoose(tt.pattern, tt.offset), "loose")
			assert.Equal(t, tt.strict, s.MatchStrict(tt.pattern, tt.offset), "strict")
			assert.Equal(t, tt.loose, s.Match(MatchRequest{Pattern: tt.pattern, Offset: tt.offset}))
			assert.Equal(t, tt.strict, s.Match(MatchRequest{Pattern: tt.pattern, Offset: tt.offset, Strict: true}))
		})
	}
}

func TestStrictBacktracksPastDeadEnds(t *testing.T) {
	// Each early "mov" is followed by something other than "add"; only the
	// last one starts the run.
	s := New([]string{
		"mov w0, #0x1", "ldr x1, [sp]",
		"mov w0, #0x2", "str w0, [sp]",
		"mov w0, #0x3", "add w0, w0, w1", "ret",
	})
	assert.True(t, s.MatchStrict([]string{"mov", "add", "ret"}, 0))
	assert.False(t, s.MatchStrict([]string{"mov", "add", "str"}, 0))
	assert.True(t, s.MatchLoose([]string{"mov", "add", "ret"}, 0))
}

func TestStrictBacktracksInsidePattern(t *testing.T) {
	// The second element repeats: "a" at 1 leads to a dead end, the run at 3..5 matches.
	s := New([]string{"x", "a", "q", "x", "a", "b"})
	assert.True(t, s.MatchStrict([]string{"x", "a", "b"}, 0))
	assert.False(t, s.MatchStrict([]string{"x", "a", "b"}, 4))
}

// referenceLoose is greedy leftmost embedding, which is exact for ordered
// subsequence tests with per-element predicates.
func referenceLoose(insns, pattern []string, offset int) bool {
	if offset < 0 {
		offset = 0
	}
	j := 0
	for i := offset; i < len(insns) && j < len(pattern); i++ {
		if strings.HasPrefix(insns[i], pattern[j]) {
			j++
		}
	}
	return j == len(pattern)
}

// referenceStrict checks every window at or after offset.
func referenceStrict(insns, pattern []string, offset int) bool {
	if len(pattern) == 0 {
		return true
	}
	if offset < 0 {
		offset = 0
	}
	for i := offset; i+len(pattern) <= len(insns); i++ {
		ok := true
		for j, tok := range pattern {
			if !strings.HasPrefix(insns[i+j], tok) {
				ok = false
				break
			}
		}
		if ok {
			return true
		}
	}
	return false
}

func TestMatchAgreesWithReference(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	insnAlphabet := []string{"ld x0", "ld x1", "ldr", "add", "b", "bl f", "ret"}
	tokenAlphabet := []string{"ld", "ld x1", "ldr", "add", "b", "bl", "ret", "mul"}

	for iter := 0; iter < 2000; iter++ {
		insns := make([]string, rng.Intn(12))
		for i := range insns {
			insns[i] = insnAlphabet[rng.Intn(len(insnAlphabet))]
		}

		var pattern []string
		if len(insns) > 0 && rng.Intn(2) == 0 {
			// Sample a real subsequence so positive cases are well represented.
			for i := range insns {
				if rng.Intn(3) == 0 {
					pattern = append(pattern, insns[i])
				}
			}
		} else {
			pattern = make([]string, rng.Intn(4))
			for i := range pattern {
				pattern[i] = tokenAlphabet[rng.Intn(len(tokenAlphabet))]
			}
		}
		offset := rng.Intn(len(insns)+3) - 1

		s := New(insns)
		loose := s.MatchLoose(pattern, offset)
		strict := s.MatchStrict(pattern, offset)

		require.Equal(t, referenceLoose(insns, pattern, offset), loose, "loose %q in %q at %d", pattern, insns, offset)
		require.Equal(t, referenceStrict(insns, pattern, offset), strict, "strict %q in %q at %d", pattern, insns, offset)
		if strict {
			require.True(t, loose, "strict implies loose: %q in %q at %d", pattern, insns, offset)
		}
	}
}

func TestSubsequencesAlwaysMatchLoose(t *testing.T) {
	insns := []string{"a", "b", "c", "a", "d", "b"}
	s := New(insns)
	for mask := 0; mask < 1<<len(insns); mask++ {
		var pattern []string
		for i, in := range insns {
			if mask&(1<<i) != 0 {
				pattern = append(pattern, in)
			}
		}
		assert.True(t, s.MatchLoose(pattern, 0), "%q", pattern)
	}
}

func TestString(t *testing.T) {
	assert.Equal(t, "mov w0, #0x1\nret", New([]string{"mov w0, #0x1", "ret"}).String())
	assert.Equal(t, "", New(nil).String())
}

func TestLiteral(t *testing.T) {
	got := New([]string{"mov w0, #0x1", `ldr x0, "q"`}).Literal()
	assert.Equal(t, "[]string{\n\t\"mov w0, #0x1\",\n\t\"ldr x0, \\\"q\\\"\",\n}", got)
	assert.Equal(t, "[]string{}", New(nil).Literal())
}
