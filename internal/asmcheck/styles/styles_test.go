package styles

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVerdictPlain(t *testing.T) {
	assert.Equal(t, "MATCH", Verdict(true, true))
	assert.Equal(t, "NO MATCH", Verdict(false, true))
}

func TestVerdictStyled(t *testing.T) {
	assert.Contains(t, Verdict(true, false), "MATCH")
	assert.Contains(t, Verdict(false, false), "NO MATCH")
}

func TestRenderMarkdown(t *testing.T) {
	out := RenderMarkdown("# Report\n\n- `mov`\n", 80)
	assert.Contains(t, out, "Report")
	assert.Contains(t, out, "mov")
}
