package sabnf

import (
	"fmt"

	"sabnf/ascii"
)

// AstDir is the direction of a recorded AST event.
type AstDir int

const (
	AstDown AstDir = iota
	AstUp
)

// AstEvent is one entry of the AST's linear event log. Down events push
// their own index onto the work stack; the matching up event pops it and
// back-patches PairedIndex/PhraseIndex/PhraseLength/State onto it.
type AstEvent struct {
	Dir          AstDir
	NodeIndex    int // rule or UDT table index
	Name         string
	State        State
	PhraseIndex  int
	PhraseLength int
	StackDepth   int // work-stack depth immediately after this event
	PairedIndex  int // -1 until back-patched
}

// AstPhase is the phase a Translate callback is invoked in.
type AstPhase int

const (
	AstPre AstPhase = iota
	AstPost
)

// AstDirective is what a Translate callback returns to steer iteration.
type AstDirective int

const (
	AstOk AstDirective = iota
	AstSkipSubtree
)

// AstCallback is invoked once per retained node, in AstPre at the down
// event and in AstPost at the matching up event. Returning AstSkipSubtree
// from AstPre is only honored there; it jumps iteration to the matching
// up event, skipping everything in between.
type AstCallback func(phase AstPhase, input *Input, phraseIndex, phraseLength int, userData any) AstDirective

// Ast is the parser's AST builder (spec.md §4.2): a linear record of
// down/up node events, with truncate-on-backtrack and a post-parse
// Translate walk.
type Ast struct {
	Events    []AstEvent
	workStack []int

	retained  map[string]bool
	callbacks map[string]AstCallback
}

// NewAst returns an empty AST builder with no retained node names.
func NewAst() *Ast {
	return &Ast{retained: map[string]bool{}, callbacks: map[string]AstCallback{}}
}

// SetAstNode marks name as retained in the AST. cb may be nil to retain
// the node without a Translate-time action (spec.md §6:
// "set-ast-node(name, on|callback)").
func (a *Ast) SetAstNode(name string, cb AstCallback) {
	a.retained[name] = true
	if cb != nil {
		a.callbacks[name] = cb
	}
}

// IsRetained reports whether name should produce AST events.
func (a *Ast) IsRetained(name string) bool {
	return a.retained[name]
}

// Length returns the current number of recorded events.
func (a *Ast) Length() int { return len(a.Events) }

// SetLength truncates the event log back to n events, restoring the work
// stack to the depth recorded in event n-1 (or zero if n == 0), per
// spec.md §4.2.
func (a *Ast) SetLength(n int) {
	a.Events = a.Events[:n]
	if n == 0 {
		a.workStack = a.workStack[:0]
		return
	}
	a.workStack = a.workStack[:a.Events[n-1].StackDepth]
}

// Down records a down event for nodeIndex/name and returns its index in
// Events.
func (a *Ast) Down(nodeIndex int, name string) int {
	idx := len(a.Events)
	a.workStack = append(a.workStack, idx)
	a.Events = append(a.Events, AstEvent{
		Dir:         AstDown,
		NodeIndex:   nodeIndex,
		Name:        name,
		PairedIndex: -1,
		StackDepth:  len(a.workStack),
	})
	return idx
}

// Up pops the matching down event, back-patches it, and records the up
// event.
func (a *Ast) Up(phraseIndex, phraseLength int, state State) int {
	downIdx := a.workStack[len(a.workStack)-1]
	a.workStack = a.workStack[:len(a.workStack)-1]

	upIdx := len(a.Events)
	a.Events[downIdx].PairedIndex = upIdx
	a.Events[downIdx].PhraseIndex = phraseIndex
	a.Events[downIdx].PhraseLength = phraseLength
	a.Events[downIdx].State = state

	down := a.Events[downIdx]
	a.Events = append(a.Events, AstEvent{
		Dir:          AstUp,
		NodeIndex:    down.NodeIndex,
		Name:         down.Name,
		State:        state,
		PhraseIndex:  phraseIndex,
		PhraseLength: phraseLength,
		PairedIndex:  downIdx,
		StackDepth:   len(a.workStack),
	})
	return upIdx
}

// Translate walks the event log forward, invoking each retained node's
// callback at its down (AstPre) and up (AstPost) events. AstSkipSubtree
// from AstPre jumps straight to the matching up event, so the node's own
// AstPost callback still fires but nothing strictly between down and up
// is visited.
func (a *Ast) Translate(input *Input, userData any) {
	i := 0
	for i < len(a.Events) {
		ev := a.Events[i]
		cb, ok := a.callbacks[ev.Name]
		if !ok {
			i++
			continue
		}
		if ev.Dir == AstDown {
			dir := cb(AstPre, input, ev.PhraseIndex, ev.PhraseLength, userData)
			if dir == AstSkipSubtree {
				i = ev.PairedIndex
				continue
			}
			i++
			continue
		}
		cb(AstPost, input, ev.PhraseIndex, ev.PhraseLength, userData)
		i++
	}
}

// PrettyString renders the AST's down/up event log as an indented tree,
// reusing the teacher's treePrinter for the indent bookkeeping.
func (a *Ast) PrettyString(input *Input, colorize bool) string {
	format := func(_ string, ev AstEvent) string {
		label := ev.Name
		if colorize {
			label = ascii.Color(ascii.DefaultTheme.Label, "%s", label)
		}
		return fmt.Sprintf("%s (%d..%d) [%s]", label, ev.PhraseIndex, ev.PhraseIndex+ev.PhraseLength, ev.State)
	}
	tp := newTreePrinter[AstEvent](format)
	for _, ev := range a.Events {
		if ev.Dir == AstUp {
			tp.unindent()
			continue
		}
		tp.pwritel(tp.format("", ev))
		tp.indent("  ")
	}
	return tp.output.String()
}
