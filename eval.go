package sabnf

// Evaluator is the recursive opcode evaluator: spec.md's C5, the core of
// this module. It carries no mutable state of its own — everything that
// changes during a parse lives on the SysData passed into Execute — so a
// single Evaluator can run many parses concurrently as long as each gets
// its own SysData (see spec.md §5).
type Evaluator struct {
	Grammar *Grammar
}

// NewEvaluator returns an Evaluator bound to a validated grammar.
func NewEvaluator(g *Grammar) *Evaluator {
	return &Evaluator{Grammar: g}
}

// Execute is the single entry point described in spec.md §4.1: dispatch
// on the opcode at opcodeIndex within sd.CurrentTable, run the matching
// handler, and perform the bookkeeping every opcode invocation shares
// (hit/depth caps, trace, max-matched, stats).
func (ev *Evaluator) Execute(opcodeIndex, phraseIndex int, sd *SysData) error {
	sd.NodeHits++
	if sd.Options.MaxNodeHits > 0 && sd.NodeHits > sd.Options.MaxNodeHits {
		return CapExceededError{Kind: CapNodeHits, Limit: sd.Options.MaxNodeHits, Pos: phraseIndex}
	}

	sd.TreeDepth++
	defer func() { sd.TreeDepth-- }()
	if sd.TreeDepth > sd.PeakTreeDepth {
		sd.PeakTreeDepth = sd.TreeDepth
	}
	if sd.Options.MaxTreeDepth > 0 && sd.TreeDepth > sd.Options.MaxTreeDepth {
		return CapExceededError{Kind: CapTreeDepth, Limit: sd.Options.MaxTreeDepth, Pos: phraseIndex}
	}

	op := sd.CurrentTable[opcodeIndex]
	name := ev.opName(op)
	lookKind := sd.lookKind()

	var tok traceToken
	if sd.Trace != nil {
		tok = sd.Trace.Down(op.Type, name, sd.TreeDepth, phraseIndex, lookKind, ev.lookAnchor(sd))
	}

	if err := ev.dispatch(op, opcodeIndex, phraseIndex, sd, lookKind); err != nil {
		return err
	}

	if lookKind == LookNone {
		if m := phraseIndex + sd.PhraseLength; m > sd.MaxMatched {
			sd.MaxMatched = m
		}
	}

	if sd.Trace != nil {
		sd.Trace.Up(tok, op.Type, name, sd.TreeDepth, phraseIndex, sd.PhraseLength, sd.State, lookKind, ev.lookAnchor(sd))
	}
	if sd.Stats != nil {
		sd.Stats.Record(op.Type, name, sd.State)
	}
	return nil
}

func (ev *Evaluator) lookAnchor(sd *SysData) int {
	if len(sd.look) == 0 {
		return -1
	}
	return sd.look[len(sd.look)-1].Anchor
}

func (ev *Evaluator) opName(op Opcode) string {
	switch op.Type {
	case OpRnm:
		return ev.Grammar.Rules[op.Index].LowerName
	case OpUdt:
		return ev.Grammar.Udts[op.Index].LowerName
	default:
		return ""
	}
}

// dispatch selects the direction-aware handler per spec.md §4.1:
// CAT/REP/TRG/TBS/TLS/BKR pick a behind variant when the look-around
// stack top is LookBehind; every other operator is direction-agnostic.
func (ev *Evaluator) dispatch(op Opcode, idx, phraseIndex int, sd *SysData, lookKind LookKind) error {
	behind := lookKind == LookBehind
	switch op.Type {
	case OpAlt:
		return ev.evalAlt(op, phraseIndex, sd)
	case OpCat:
		if behind {
			return ev.evalCatBehind(op, phraseIndex, sd)
		}
		return ev.evalCatForward(op, phraseIndex, sd)
	case OpRep:
		if behind {
			return ev.evalRepBehind(op, idx, phraseIndex, sd)
		}
		return ev.evalRepForward(op, idx, phraseIndex, sd)
	case OpRnm:
		return ev.evalRnm(op, phraseIndex, sd)
	case OpUdt:
		return ev.evalUdt(op, phraseIndex, sd)
	case OpAnd:
		return ev.evalAnd(idx, phraseIndex, sd)
	case OpNot:
		return ev.evalNot(idx, phraseIndex, sd)
	case OpTrg:
		return ev.evalTrg(op, phraseIndex, sd, behind)
	case OpTbs:
		return ev.evalTbs(op, phraseIndex, sd, behind)
	case OpTls:
		return ev.evalTls(op, phraseIndex, sd, behind)
	case OpBkr:
		return ev.evalBkr(op, phraseIndex, sd, behind)
	case OpBka:
		return ev.evalBka(idx, phraseIndex, sd)
	case OpBkn:
		return ev.evalBkn(idx, phraseIndex, sd)
	case OpAbg:
		return ev.evalAbg(phraseIndex, sd)
	case OpAen:
		return ev.evalAen(phraseIndex, sd)
	default:
		return SetupError{Message: "unknown opcode type"}
	}
}

// ---- ALT ----

func (ev *Evaluator) evalAlt(op Opcode, phraseIndex int, sd *SysData) error {
	for _, child := range op.Children {
		if err := ev.Execute(child, phraseIndex, sd); err != nil {
			return err
		}
		if sd.State != StateNoMatch {
			return nil
		}
	}
	sd.State = StateNoMatch
	sd.PhraseLength = 0
	return nil
}

// ---- CAT ----

func (ev *Evaluator) evalCatForward(op Opcode, phraseIndex int, sd *SysData) error {
	astLen := ev.astLen(sd)
	cursor := phraseIndex
	total := 0
	for _, child := range op.Children {
		if err := ev.Execute(child, cursor, sd); err != nil {
			return err
		}
		if sd.State == StateNoMatch {
			ev.truncateAst(sd, astLen)
			sd.PhraseLength = 0
			return nil
		}
		cursor += sd.PhraseLength
		total += sd.PhraseLength
	}
	sd.State = stateFor(total)
	sd.PhraseLength = total
	return nil
}

func (ev *Evaluator) evalCatBehind(op Opcode, phraseIndex int, sd *SysData) error {
	astLen := ev.astLen(sd)
	cursor := phraseIndex
	total := 0
	for i := len(op.Children) - 1; i >= 0; i-- {
		if err := ev.Execute(op.Children[i], cursor, sd); err != nil {
			return err
		}
		if sd.State == StateNoMatch {
			ev.truncateAst(sd, astLen)
			sd.PhraseLength = 0
			return nil
		}
		cursor -= sd.PhraseLength
		total += sd.PhraseLength
	}
	sd.State = stateFor(total)
	sd.PhraseLength = total
	return nil
}

// ---- REP ----

func (ev *Evaluator) evalRepForward(op Opcode, idx, phraseIndex int, sd *SysData) error {
	astLen := ev.astLen(sd)
	childIdx := idx + 1
	cursor := phraseIndex
	count := 0
	total := 0
	last := StateNoMatch

	for {
		if cursor >= sd.Window.End {
			break
		}
		if err := ev.Execute(childIdx, cursor, sd); err != nil {
			return err
		}
		last = sd.State
		if last == StateNoMatch || last == StateEmpty {
			break
		}
		count++
		total += sd.PhraseLength
		cursor += sd.PhraseLength
		if op.Max != RepMaxInfinite && count == op.Max {
			break
		}
	}

	switch {
	case last == StateEmpty:
		sd.State = stateFor(total)
		sd.PhraseLength = total
	case count >= op.Min:
		sd.State = stateFor(total)
		sd.PhraseLength = total
	default:
		ev.truncateAst(sd, astLen)
		sd.State = StateNoMatch
		sd.PhraseLength = 0
	}
	return nil
}

func (ev *Evaluator) evalRepBehind(op Opcode, idx, phraseIndex int, sd *SysData) error {
	astLen := ev.astLen(sd)
	childIdx := idx + 1
	cursor := phraseIndex
	count := 0
	total := 0
	last := StateNoMatch

	for {
		if cursor <= sd.Window.Begin {
			break
		}
		if err := ev.Execute(childIdx, cursor, sd); err != nil {
			return err
		}
		last = sd.State
		if last == StateNoMatch || last == StateEmpty {
			break
		}
		count++
		total += sd.PhraseLength
		cursor -= sd.PhraseLength
		if op.Max != RepMaxInfinite && count == op.Max {
			break
		}
	}

	switch {
	case last == StateEmpty:
		sd.State = stateFor(total)
		sd.PhraseLength = total
	case count >= op.Min:
		sd.State = stateFor(total)
		sd.PhraseLength = total
	default:
		ev.truncateAst(sd, astLen)
		sd.State = StateNoMatch
		sd.PhraseLength = 0
	}
	return nil
}

// ---- RNM ----

func (ev *Evaluator) evalRnm(op Opcode, phraseIndex int, sd *SysData) error {
	rule := &ev.Grammar.Rules[op.Index]
	return ev.runRule(rule, phraseIndex, sd)
}

// evaluateRuleDirect backs CallbackView.EvaluateRule: it runs a rule at
// the given phrase index exactly as RNM would, without going through an
// opcode slot (there is none — the callback invoked this directly).
func (ev *Evaluator) evaluateRuleDirect(ruleIndex, phraseIndex int, sd *SysData) error {
	return ev.runRule(&ev.Grammar.Rules[ruleIndex], phraseIndex, sd)
}

func (ev *Evaluator) runRule(rule *Rule, phraseIndex int, sd *SysData) error {
	savedTable := sd.CurrentTable
	sd.pushParentFrame()

	astRecorded := false
	astDownIdx := 0
	if sd.lookKind() == LookNone && sd.Ast != nil && sd.Ast.IsRetained(rule.LowerName) {
		astDownIdx = sd.Ast.Down(rule.Index, rule.LowerName)
		astRecorded = true
	}

	proceed := true
	var cb RuleCallback
	if rule.Index < len(sd.RuleCallbacks) {
		cb = sd.RuleCallbacks[rule.Index]
	}
	if cb != nil {
		view := &CallbackView{sd: sd, ev: ev, phraseIndex: phraseIndex}
		sd.State = StateActive
		sd.PhraseLength = 0
		cb(view)
		if err := validateCallbackResult(sd, phraseIndex, rule.Name, true); err != nil {
			sd.CurrentTable = savedTable
			sd.popParentFrame()
			return err
		}
		if sd.State != StateActive {
			proceed = false
		}
	}

	if proceed {
		sd.CurrentTable = rule.Opcodes
		if err := ev.Execute(0, phraseIndex, sd); err != nil {
			sd.CurrentTable = savedTable
			sd.popParentFrame()
			return err
		}
		sd.CurrentTable = savedTable
		if cb != nil {
			view := &CallbackView{sd: sd, ev: ev, phraseIndex: phraseIndex}
			cb(view)
			if err := validateCallbackResult(sd, phraseIndex, rule.Name, false); err != nil {
				sd.popParentFrame()
				return err
			}
		}
	} else {
		sd.CurrentTable = savedTable
	}

	sd.popParentFrame()

	if sd.lookKind() == LookNone && rule.IsBackReferenced && (sd.State == StateMatch || sd.State == StateEmpty) {
		sd.recordBackRef(rule.LowerName, phraseIndex, sd.PhraseLength)
	}

	if astRecorded {
		if sd.State == StateNoMatch {
			sd.Ast.SetLength(astDownIdx)
		} else {
			sd.Ast.Up(phraseIndex, sd.PhraseLength, sd.State)
		}
	}
	return nil
}

// ---- UDT ----

func (ev *Evaluator) evalUdt(op Opcode, phraseIndex int, sd *SysData) error {
	return ev.runUdt(&ev.Grammar.Udts[op.Index], phraseIndex, sd)
}

func (ev *Evaluator) evaluateUdtDirect(udtIndex, phraseIndex int, sd *SysData) error {
	return ev.runUdt(&ev.Grammar.Udts[udtIndex], phraseIndex, sd)
}

func (ev *Evaluator) runUdt(udt *UDT, phraseIndex int, sd *SysData) error {
	astRecorded := false
	astDownIdx := 0
	if sd.lookKind() == LookNone && sd.Ast != nil && sd.Ast.IsRetained(udt.LowerName) {
		astDownIdx = sd.Ast.Down(udt.Index, udt.LowerName)
		astRecorded = true
	}

	var cb UDTCallback
	if udt.Index < len(sd.UdtCallbacks) {
		cb = sd.UdtCallbacks[udt.Index]
	}
	if cb == nil {
		return SetupError{Message: "missing callback for UDT " + udt.Name}
	}

	view := &CallbackView{sd: sd, ev: ev, phraseIndex: phraseIndex}
	sd.State = StateActive
	sd.PhraseLength = 0
	cb(view)

	if sd.State == StateActive {
		return CallbackError{Name: udt.Name, Message: "UDT callback did not set a terminal state"}
	}
	if err := validateCallbackResult(sd, phraseIndex, udt.Name, false); err != nil {
		return err
	}
	if sd.State == StateEmpty && !udt.Empty {
		return CallbackError{Name: udt.Name, Message: "UDT declared non-empty returned EMPTY"}
	}

	if sd.lookKind() == LookNone && udt.IsBackReferenced && (sd.State == StateMatch || sd.State == StateEmpty) {
		sd.recordBackRef(udt.LowerName, phraseIndex, sd.PhraseLength)
	}

	if astRecorded {
		if sd.State == StateNoMatch {
			sd.Ast.SetLength(astDownIdx)
		} else {
			sd.Ast.Up(phraseIndex, sd.PhraseLength, sd.State)
		}
	}
	return nil
}

// validateCallbackResult enforces spec.md §4.1.2's callback contract.
func validateCallbackResult(sd *SysData, phraseIndex int, name string, allowActive bool) error {
	if sd.State == StateActive && !allowActive {
		return CallbackError{Name: name, Message: "callback returned ACTIVE in post phase"}
	}
	if sd.PhraseLength < 0 || phraseIndex+sd.PhraseLength > sd.Window.End {
		return CallbackError{Name: name, Message: "callback phrase length exceeds remaining window"}
	}
	if sd.State == StateMatch && sd.PhraseLength == 0 {
		sd.State = StateEmpty
	}
	switch sd.State {
	case StateActive, StateMatch, StateEmpty, StateNoMatch:
		return nil
	default:
		return CallbackError{Name: name, Message: "callback returned an unrecognized state"}
	}
}

func (ev *Evaluator) astLen(sd *SysData) int {
	if sd.Ast == nil {
		return 0
	}
	return sd.Ast.Length()
}

func (ev *Evaluator) truncateAst(sd *SysData, n int) {
	if sd.Ast == nil {
		return
	}
	sd.Ast.SetLength(n)
}

// ---- AND / NOT ----

func (ev *Evaluator) evalAnd(idx, phraseIndex int, sd *SysData) error {
	sd.pushLook(LookAhead, phraseIndex)
	sd.Window.End = sd.Input.Len()
	defer sd.popLook()

	if err := ev.Execute(idx+1, phraseIndex, sd); err != nil {
		return err
	}
	switch sd.State {
	case StateMatch, StateEmpty:
		sd.State = StateEmpty
	case StateNoMatch:
		sd.State = StateNoMatch
	}
	sd.PhraseLength = 0
	return nil
}

func (ev *Evaluator) evalNot(idx, phraseIndex int, sd *SysData) error {
	sd.pushLook(LookAhead, phraseIndex)
	sd.Window.End = sd.Input.Len()
	defer sd.popLook()

	if err := ev.Execute(idx+1, phraseIndex, sd); err != nil {
		return err
	}
	switch sd.State {
	case StateMatch, StateEmpty:
		sd.State = StateNoMatch
	case StateNoMatch:
		sd.State = StateEmpty
	}
	sd.PhraseLength = 0
	return nil
}

// ---- BKA / BKN ----

func (ev *Evaluator) evalBka(idx, phraseIndex int, sd *SysData) error {
	sd.pushLook(LookBehind, phraseIndex)
	defer sd.popLook()

	if err := ev.Execute(idx+1, phraseIndex, sd); err != nil {
		return err
	}
	switch sd.State {
	case StateMatch, StateEmpty:
		sd.State = StateEmpty
	case StateNoMatch:
		sd.State = StateNoMatch
	}
	sd.PhraseLength = 0
	return nil
}

func (ev *Evaluator) evalBkn(idx, phraseIndex int, sd *SysData) error {
	sd.pushLook(LookBehind, phraseIndex)
	defer sd.popLook()

	if err := ev.Execute(idx+1, phraseIndex, sd); err != nil {
		return err
	}
	switch sd.State {
	case StateMatch, StateEmpty:
		sd.State = StateNoMatch
	case StateNoMatch:
		sd.State = StateEmpty
	}
	sd.PhraseLength = 0
	return nil
}

// ---- TRG ----

func (ev *Evaluator) evalTrg(op Opcode, phraseIndex int, sd *SysData, behind bool) error {
	if behind {
		if phraseIndex-1 < sd.Window.Begin {
			sd.State = StateNoMatch
			sd.PhraseLength = 0
			return nil
		}
		c := sd.Input.Codes[phraseIndex-1]
		if c >= op.RangeMin && c <= op.RangeMax {
			sd.State = StateMatch
			sd.PhraseLength = 1
		} else {
			sd.State = StateNoMatch
			sd.PhraseLength = 0
		}
		return nil
	}
	if phraseIndex >= sd.Window.End {
		sd.State = StateNoMatch
		sd.PhraseLength = 0
		return nil
	}
	c := sd.Input.Codes[phraseIndex]
	if c >= op.RangeMin && c <= op.RangeMax {
		sd.State = StateMatch
		sd.PhraseLength = 1
	} else {
		sd.State = StateNoMatch
		sd.PhraseLength = 0
	}
	return nil
}

// ---- TBS ----

func (ev *Evaluator) evalTbs(op Opcode, phraseIndex int, sd *SysData, behind bool) error {
	n := len(op.Bytes)
	if behind {
		start := phraseIndex - n
		if start < sd.Window.Begin {
			sd.State = StateNoMatch
			sd.PhraseLength = 0
			return nil
		}
		if codesEqual(sd.Input.Codes[start:phraseIndex], op.Bytes) {
			sd.State = StateMatch
			sd.PhraseLength = n
		} else {
			sd.State = StateNoMatch
			sd.PhraseLength = 0
		}
		return nil
	}
	end := phraseIndex + n
	if end > sd.Window.End {
		sd.State = StateNoMatch
		sd.PhraseLength = 0
		return nil
	}
	if codesEqual(sd.Input.Codes[phraseIndex:end], op.Bytes) {
		sd.State = StateMatch
		sd.PhraseLength = n
	} else {
		sd.State = StateNoMatch
		sd.PhraseLength = 0
	}
	return nil
}

// ---- TLS ----

func (ev *Evaluator) evalTls(op Opcode, phraseIndex int, sd *SysData, behind bool) error {
	n := len(op.Bytes)
	if n == 0 {
		sd.State = StateEmpty
		sd.PhraseLength = 0
		return nil
	}
	if behind {
		start := phraseIndex - n
		if start < sd.Window.Begin {
			sd.State = StateNoMatch
			sd.PhraseLength = 0
			return nil
		}
		if codesEqualFold(sd.Input.Codes[start:phraseIndex], op.Bytes) {
			sd.State = StateMatch
			sd.PhraseLength = n
		} else {
			sd.State = StateNoMatch
			sd.PhraseLength = 0
		}
		return nil
	}
	end := phraseIndex + n
	if end > sd.Window.End {
		sd.State = StateNoMatch
		sd.PhraseLength = 0
		return nil
	}
	if codesEqualFold(sd.Input.Codes[phraseIndex:end], op.Bytes) {
		sd.State = StateMatch
		sd.PhraseLength = n
	} else {
		sd.State = StateNoMatch
		sd.PhraseLength = 0
	}
	return nil
}

// ---- BKR ----

func (ev *Evaluator) evalBkr(op Opcode, phraseIndex int, sd *SysData, behind bool) error {
	name := ev.bkrTargetName(op)
	entry, ok := sd.lookupBackRef(op.Mode, name)
	if !ok {
		sd.State = StateNoMatch
		sd.PhraseLength = 0
		return nil
	}
	if entry.Length == 0 {
		sd.State = StateEmpty
		sd.PhraseLength = 0
		return nil
	}

	saved := sd.Input.Codes[entry.Start : entry.Start+entry.Length]
	n := entry.Length

	if behind {
		start := phraseIndex - n
		if start < sd.Window.Begin {
			sd.State = StateNoMatch
			sd.PhraseLength = 0
			return nil
		}
		cur := sd.Input.Codes[start:phraseIndex]
		if bkrEqual(saved, cur, op.Case) {
			sd.State = StateMatch
			sd.PhraseLength = n
		} else {
			sd.State = StateNoMatch
			sd.PhraseLength = 0
		}
		return nil
	}

	end := phraseIndex + n
	if end > sd.Window.End {
		sd.State = StateNoMatch
		sd.PhraseLength = 0
		return nil
	}
	cur := sd.Input.Codes[phraseIndex:end]
	if bkrEqual(saved, cur, op.Case) {
		sd.State = StateMatch
		sd.PhraseLength = n
	} else {
		sd.State = StateNoMatch
		sd.PhraseLength = 0
	}
	return nil
}

func (ev *Evaluator) bkrTargetName(op Opcode) string {
	if op.BkrTargetUdt {
		return ev.Grammar.Udts[op.Index].LowerName
	}
	return ev.Grammar.Rules[op.Index].LowerName
}

// ---- ABG / AEN ----

func (ev *Evaluator) evalAbg(phraseIndex int, sd *SysData) error {
	if phraseIndex == sd.Window.Begin {
		sd.State = StateEmpty
	} else {
		sd.State = StateNoMatch
	}
	sd.PhraseLength = 0
	return nil
}

func (ev *Evaluator) evalAen(phraseIndex int, sd *SysData) error {
	if phraseIndex == sd.Window.End {
		sd.State = StateEmpty
	} else {
		sd.State = StateNoMatch
	}
	sd.PhraseLength = 0
	return nil
}

// ---- comparison helpers ----

func codesEqual(a, b []int32) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func foldASCII(c int32) int32 {
	if c >= 'A' && c <= 'Z' {
		return c + 32
	}
	return c
}

// codesEqualFold compares input bytes against a literal that is already
// folded to lowercase (TLS's Bytes invariant per spec.md §3), folding
// only the input side.
func codesEqualFold(input, lowered []int32) bool {
	if len(input) != len(lowered) {
		return false
	}
	for i := range input {
		if foldASCII(input[i]) != lowered[i] {
			return false
		}
	}
	return true
}

// bkrEqual compares a saved capture against a candidate slice under the
// requested case sensitivity; both sides are plain input text (unlike
// TLS's pre-folded literal), so both are folded for the insensitive case.
func bkrEqual(saved, cur []int32, c BkrCase) bool {
	if len(saved) != len(cur) {
		return false
	}
	if c == BkrCaseSensitive {
		return codesEqual(saved, cur)
	}
	for i := range saved {
		if foldASCII(saved[i]) != foldASCII(cur[i]) {
			return false
		}
	}
	return true
}
