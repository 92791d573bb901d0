package sabnf

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// These tests exercise the concrete scenarios and universal properties
// spec.md §8 calls out by name, end-to-end through the Parser facade
// rather than by poking the evaluator's internals directly.

func TestScenarioRepetitionBounds(t *testing.T) {
	// Grammar `S = 2*3"a"`.
	g := NewGrammar([]Rule{newRule("S", rep(2, 3), tbs("a"))}, nil)
	p, err := NewParser(g)
	require.NoError(t, err)

	res, _, err := p.ParseString("S", "aa", nil, nil)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, 2, res.Matched)

	res, _, err = p.ParseString("S", "a", nil, nil)
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, 0, res.Matched)
	assert.Equal(t, 1, res.MaxMatched, "the failed single-a attempt still advances max-matched")
}

func TestScenarioAlternationTrace(t *testing.T) {
	// Grammar `S = "ab" / "ac"`, input [a,c].
	g := NewGrammar([]Rule{
		newRule("S", alt(1, 2), tbs("ab"), tbs("ac")),
	}, nil)
	p, err := NewParser(g)
	require.NoError(t, err)

	opts := &Options{TraceEnabled: true, TraceOperatorFilter: NewFilterAll()}
	res, sd, err := p.ParseString("S", "ac", opts, nil)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, 2, res.Matched)

	var sawFirstNoMatch, sawSecondMatch bool
	for _, r := range sd.Trace.Records() {
		if r.OpType == OpTbs && r.Dir == AstUp && r.State == StateNoMatch {
			sawFirstNoMatch = true
		}
		if r.OpType == OpTbs && r.Dir == AstUp && r.State == StateMatch {
			sawSecondMatch = true
		}
	}
	assert.True(t, sawFirstNoMatch, "the \"ab\" alternative must reach NOMATCH")
	assert.True(t, sawSecondMatch, "the \"ac\" alternative must reach MATCH")
}

func TestScenarioLookBehindGuardsLiteral(t *testing.T) {
	// Grammar `S = "abc" BKN("b") "def"`, a negative look-behind against a
	// single trailing "b" — matches unless the character immediately
	// before the anchor is 'b'. The BKN's own implicit child (index 3)
	// is a dedicated opcode slot, distinct from CAT's own explicit
	// children, per the implicit-child convention in spec.md §3.
	g := NewGrammar([]Rule{
		{
			Name:      "S",
			LowerName: "s",
			Opcodes: []Opcode{
				cat(1, 2, 4), // 0: CAT
				tbs("abc"),   // 1
				bkn(),        // 2: implicit child is opcode 3
				tbs("b"),     // 3: BKN's implicit child
				tbs("def"),   // 4: CAT's third explicit child
			},
		},
	}, nil)
	require.NoError(t, g.Validate())
	p, err := NewParser(g)
	require.NoError(t, err)

	res, _, err := p.ParseString("S", "abcdef", nil, nil)
	require.NoError(t, err)
	assert.True(t, res.Success, "the text preceding the anchor ends in 'c', not 'b'")
}

func TestScenarioParentVsUniversalBackReference(t *testing.T) {
	// S = A B bkr-parent(A); B = A "b" bkr-parent(A); A = "x" / "y"
	a := newRule("A", alt(1, 2), tbs("x"), tbs("y"))
	a.IsBackReferenced = true
	b := newRule("B", cat(1, 2, 3), rnm(0), tbs("b"), bkr(0, BkrModeParent))
	s := newRule("S", cat(1, 2, 3), rnm(0), rnm(1), bkr(0, BkrModeParent))

	g := NewGrammar([]Rule{a, b, s}, nil)
	require.NoError(t, g.Validate())
	p, err := NewParser(g)
	require.NoError(t, err)

	t.Run("parent mode matches xybyx", func(t *testing.T) {
		res, _, err := p.ParseString("S", "xybyx", nil, nil)
		require.NoError(t, err)
		assert.True(t, res.Success)
	})

	t.Run("parent mode rejects xybyy", func(t *testing.T) {
		res, _, err := p.ParseString("S", "xybyy", nil, nil)
		require.NoError(t, err)
		assert.False(t, res.Success)
	})

	su := newRule("S", cat(1, 2, 3), rnm(0), rnm(1), bkr(0, BkrModeUniversal))
	bu := newRule("B", cat(1, 2, 3), rnm(0), tbs("b"), bkr(0, BkrModeParent))
	gu := NewGrammar([]Rule{a, bu, su}, nil)
	require.NoError(t, gu.Validate())
	pu, err := NewParser(gu)
	require.NoError(t, err)

	t.Run("universal mode matches xybyy", func(t *testing.T) {
		res, _, err := pu.ParseString("S", "xybyy", nil, nil)
		require.NoError(t, err)
		assert.True(t, res.Success)
	})

	t.Run("universal mode rejects xybyx", func(t *testing.T) {
		res, _, err := pu.ParseString("S", "xybyx", nil, nil)
		require.NoError(t, err)
		assert.False(t, res.Success)
	})
}

func TestLookAheadDoesNotRecordBackReference(t *testing.T) {
	// S = &A bkr-parent(A); A = "x". The AND predicate inside S matches A
	// but must contribute nothing observable once it discards that match,
	// so the trailing bkr-parent(A) must see no prior capture of A at all.
	a := newRule("A", tbs("x"))
	a.IsBackReferenced = true
	s := newRule("S", cat(1, 3), and(), rnm(0), bkr(0, BkrModeParent))

	g := NewGrammar([]Rule{a, s}, nil)
	require.NoError(t, g.Validate())
	p, err := NewParser(g)
	require.NoError(t, err)

	res, _, err := p.ParseString("S", "x", nil, nil)
	require.NoError(t, err)
	assert.False(t, res.Success, "A's capture made inside the AND look-ahead must not leak into the back-reference frame")
}

func TestTLSCaseFoldSymmetry(t *testing.T) {
	// TLS's Bytes are already folded to lowercase by the grammar producer;
	// the evaluator folds only the input side.
	g := NewGrammar([]Rule{newRule("S", tls("abc"))}, nil)
	p, err := NewParser(g)
	require.NoError(t, err)

	for _, in := range []string{"abc", "ABC", "AbC", "aBc"} {
		res, _, err := p.ParseString("S", in, nil, nil)
		require.NoError(t, err)
		assert.True(t, res.Success, "TLS must match every ASCII case permutation of %q", in)
	}

	res, _, err := p.ParseString("S", "abd", nil, nil)
	require.NoError(t, err)
	assert.False(t, res.Success)
}

func TestTLSEmptyAlwaysMatchesEmpty(t *testing.T) {
	g := NewGrammar([]Rule{newRule("S", tls(""))}, nil)
	p, err := NewParser(g)
	require.NoError(t, err)
	res, _, err := p.ParseString("S", "", nil, nil)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, StateEmpty, res.State)
}

func TestTBSStrictness(t *testing.T) {
	// TBS([0x41]) ("A") must not match 0x61 ("a").
	g := NewGrammar([]Rule{newRule("S", tbs("A"))}, nil)
	p, err := NewParser(g)
	require.NoError(t, err)

	res, _, err := p.ParseString("S", "a", nil, nil)
	require.NoError(t, err)
	assert.False(t, res.Success, "TBS is case-sensitive")

	res, _, err = p.ParseString("S", "A", nil, nil)
	require.NoError(t, err)
	assert.True(t, res.Success)
}

func TestBackReferenceRoundTrip(t *testing.T) {
	// After RNM matches rule R capturing phrase P, a subsequent BKR(R)
	// must match exactly |P| characters equal to P byte-by-byte.
	r := newRule("R", tbs("foo"))
	r.IsBackReferenced = true
	s := newRule("S", cat(1, 2), rnm(0), bkr(0, BkrModeParent))

	g := NewGrammar([]Rule{r, s}, nil)
	require.NoError(t, g.Validate())
	p, err := NewParser(g)
	require.NoError(t, err)

	res, _, err := p.ParseString("S", "foofoo", nil, nil)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, 6, res.Matched)

	res, _, err = p.ParseString("S", "foobar", nil, nil)
	require.NoError(t, err)
	assert.False(t, res.Success)
}

func TestUDTCallback(t *testing.T) {
	// A UDT matching exactly one digit, declared non-empty.
	g := NewGrammar(
		[]Rule{newRule("S", udtOp(0))},
		[]UDT{{Name: "digit", LowerName: "digit", Empty: false}},
	)
	require.NoError(t, g.Validate())
	p, err := NewParser(g)
	require.NoError(t, err)

	require.NoError(t, p.SetUdtCallback("digit", func(v *CallbackView) {
		in := v.Input()
		idx := v.PhraseIndex()
		if idx < in.Len() && in.Codes[idx] >= '0' && in.Codes[idx] <= '9' {
			v.SetState(StateMatch)
			v.SetPhraseLength(1)
			return
		}
		v.SetState(StateNoMatch)
	}))

	res, _, err := p.ParseString("S", "7", nil, nil)
	require.NoError(t, err)
	assert.True(t, res.Success)

	res, _, err = p.ParseString("S", "x", nil, nil)
	require.NoError(t, err)
	assert.False(t, res.Success)
}

func TestUDTMissingCallbackIsSetupError(t *testing.T) {
	g := NewGrammar(
		[]Rule{newRule("S", udtOp(0))},
		[]UDT{{Name: "digit", LowerName: "digit"}},
	)
	p, err := NewParser(g)
	require.NoError(t, err)

	_, _, err = p.ParseString("S", "7", nil, nil)
	require.Error(t, err)
	assert.IsType(t, SetupError{}, err)
}

func TestUDTEmptyFalseRejectsEmptyReturn(t *testing.T) {
	g := NewGrammar(
		[]Rule{newRule("S", udtOp(0))},
		[]UDT{{Name: "thing", LowerName: "thing", Empty: false}},
	)
	p, err := NewParser(g)
	require.NoError(t, err)
	require.NoError(t, p.SetUdtCallback("thing", func(v *CallbackView) {
		v.SetState(StateEmpty)
	}))

	_, _, err = p.ParseString("S", "x", nil, nil)
	require.Error(t, err)
	var cbErr CallbackError
	require.ErrorAs(t, err, &cbErr)
}

func TestStatsCollectOutcomesAcrossOpcodesAndRules(t *testing.T) {
	g := NewGrammar([]Rule{
		newRule("S", alt(1, 2), tbs("a"), tbs("b")),
	}, nil)
	p, err := NewParser(g)
	require.NoError(t, err)

	_, sd, err := p.ParseString("S", "b", &Options{StatsEnabled: true}, nil)
	require.NoError(t, err)
	require.NotNil(t, sd.Stats)

	tbsOutcome := sd.Stats.ByOp[OpTbs]
	require.NotNil(t, tbsOutcome)
	assert.Equal(t, 2, tbsOutcome.Total, "both TBS branches of the ALT ran")
	assert.Equal(t, 1, tbsOutcome.NoMatch)
	assert.Equal(t, 1, tbsOutcome.Match)

	ruleOutcome := sd.Stats.ByRule["s"]
	require.NotNil(t, ruleOutcome)
	assert.Equal(t, 1, ruleOutcome.Match)
}

func TestUnknownFilterNameIsSetupError(t *testing.T) {
	g := NewGrammar([]Rule{newRule("S", tbs("a"))}, nil)
	p, err := NewParser(g)
	require.NoError(t, err)

	_, _, err = p.ParseString("S", "a", &Options{
		TraceEnabled:    true,
		TraceRuleFilter: NewFilterSet("nope"),
	}, nil)
	require.Error(t, err)
	assert.IsType(t, SetupError{}, err)
}

func TestDefaultTraceRuleFilterIsAllWhenOptionsLeftUnset(t *testing.T) {
	// A caller who sets TraceEnabled but never touches TraceRuleFilter
	// must still get the spec's default of <ALL> for rules, not <NONE>.
	g := NewGrammar([]Rule{newRule("S", rnm(1)), newRule("inner", tbs("a"))}, nil)
	p, err := NewParser(g)
	require.NoError(t, err)

	opts := &Options{TraceEnabled: true, TraceOperatorFilter: NewFilterAll()}
	_, sd, err := p.ParseString("S", "a", opts, nil)
	require.NoError(t, err)

	var sawInner bool
	for _, r := range sd.Trace.Records() {
		if r.Name == "inner" {
			sawInner = true
		}
	}
	assert.True(t, sawInner, "default rule filter must be <ALL>, so the inner rule's events are kept")
}
