package sabnf

// CallbackView is what a rule or UDT callback gets to see and mutate. It
// wraps SysData rather than exposing it wholesale, per spec.md §6's
// "sysdata-view exposes read/write state and phrase-length, read-only
// look-around-kind, and two advanced hooks".
type CallbackView struct {
	sd          *SysData
	ev          *Evaluator
	phraseIndex int
}

// State returns the callback's current state (ACTIVE on the first call
// into a callback).
func (v *CallbackView) State() State { return v.sd.State }

// SetState lets the callback report its outcome.
func (v *CallbackView) SetState(s State) { v.sd.State = s }

// PhraseLength returns the phrase length already set by the callback.
func (v *CallbackView) PhraseLength() int { return v.sd.PhraseLength }

// SetPhraseLength lets the callback report how much input it matched.
func (v *CallbackView) SetPhraseLength(n int) { v.sd.PhraseLength = n }

// LookAroundKind reports whether the callback is running inside a
// look-ahead or look-behind predicate (read-only: callbacks may not
// push/pop look-around frames themselves).
func (v *CallbackView) LookAroundKind() LookKind { return v.sd.lookKind() }

// PhraseIndex is the cursor position the rule/UDT was invoked at.
func (v *CallbackView) PhraseIndex() int { return v.phraseIndex }

// Input exposes the read-only input buffer so a callback can inspect
// characters without reaching into SysData directly.
func (v *CallbackView) Input() *Input { return v.sd.Input }

// UserData returns the opaque value passed into Parse/ParseSubstring.
func (v *CallbackView) UserData() any { return v.sd.UserData }

// EvaluateRule re-enters the evaluator for the named rule at the
// callback's phrase index, the "evaluate-rule" advanced hook from
// spec.md §6. It mutates State/PhraseLength on return exactly like a
// direct RNM evaluation would, and returns a fatal error if one occurs.
func (v *CallbackView) EvaluateRule(ruleIndex int) error {
	return v.ev.evaluateRuleDirect(ruleIndex, v.phraseIndex, v.sd)
}

// EvaluateUdt re-enters the evaluator for the named UDT, the
// "evaluate-udt" advanced hook from spec.md §6.
func (v *CallbackView) EvaluateUdt(udtIndex int) error {
	return v.ev.evaluateUdtDirect(udtIndex, v.phraseIndex, v.sd)
}
