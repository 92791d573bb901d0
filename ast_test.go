package sabnf

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAstDownUpAndLength(t *testing.T) {
	a := NewAst()
	a.SetAstNode("rule1", nil)

	require.Equal(t, 0, a.Length())
	down := a.Down(0, "rule1")
	assert.Equal(t, 0, down)
	assert.Equal(t, 1, a.Length())

	up := a.Up(0, 3, StateMatch)
	assert.Equal(t, 1, up)
	assert.Equal(t, 2, a.Length())
	assert.Equal(t, up, a.Events[down].PairedIndex)
	assert.Equal(t, down, a.Events[up].PairedIndex)
	assert.Equal(t, StateMatch, a.Events[down].State)
}

func TestAstSetLengthRestoresWorkStack(t *testing.T) {
	a := NewAst()
	a.SetAstNode("r", nil)

	d1 := a.Down(0, "r")
	a.Down(1, "r") // nested, left open
	require.Equal(t, 2, a.Length())

	a.SetLength(1) // truncate back to just the first down event
	assert.Equal(t, 1, a.Length())

	// the work stack must be restored so Up() pairs with d1, not the
	// discarded nested event.
	up := a.Up(5, 2, StateMatch)
	assert.Equal(t, d1, a.Events[up].PairedIndex)
}

func TestAstTranslateSkipSubtree(t *testing.T) {
	a := NewAst()
	var visited []string
	a.SetAstNode("outer", func(phase AstPhase, _ *Input, _, _ int, _ any) AstDirective {
		visited = append(visited, "outer:"+phaseName(phase))
		if phase == AstPre {
			return AstSkipSubtree
		}
		return AstOk
	})
	a.SetAstNode("inner", func(phase AstPhase, _ *Input, _, _ int, _ any) AstDirective {
		visited = append(visited, "inner:"+phaseName(phase))
		return AstOk
	})

	a.Down(0, "outer")
	a.Down(1, "inner")
	a.Up(0, 1, StateMatch) // closes inner
	a.Up(0, 2, StateMatch) // closes outer

	a.Translate(NewInputFromString("ab"), nil)

	assert.Equal(t, []string{"outer:pre", "outer:post"}, visited, "skip-subtree must bypass inner's events entirely")
}

func phaseName(p AstPhase) string {
	if p == AstPre {
		return "pre"
	}
	return "post"
}

func TestAstPrettyString(t *testing.T) {
	a := NewAst()
	a.SetAstNode("r", nil)
	a.Down(0, "r")
	a.Up(0, 1, StateMatch)

	out := a.PrettyString(NewInputFromString("a"), false)
	assert.Contains(t, out, "r (0..1)")
}
