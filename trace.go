package sabnf

import (
	"fmt"

	"sabnf/ascii"
)

// FilterKind selects how a TraceRecorder filter matches names.
//
// FilterUnset is the zero value and is deliberately distinct from
// FilterNone: it means "the caller left this Options field untouched, use
// the recorder's own default", whereas FilterNone is an explicit request
// to record nothing. Options{} (no TraceRuleFilter set) must not be
// indistinguishable from an explicit opt-out of all rule tracing, since
// spec.md §4.3's default rule filter is <ALL>, not <NONE>.
type FilterKind int

const (
	FilterUnset FilterKind = iota
	FilterNone
	FilterAll
	FilterSet
)

// Filter is a trace operator/rule filter: spec.md §4.3's "<ALL>, <NONE>,
// or an explicit set".
type Filter struct {
	Kind  FilterKind
	Names map[string]struct{}
}

// NewFilterAll returns the filter that matches everything.
func NewFilterAll() Filter { return Filter{Kind: FilterAll} }

// NewFilterNone returns the filter that matches nothing.
func NewFilterNone() Filter { return Filter{Kind: FilterNone} }

// NewFilterSet returns a filter matching exactly the given names.
func NewFilterSet(names ...string) Filter {
	set := make(map[string]struct{}, len(names))
	for _, n := range names {
		set[n] = struct{}{}
	}
	return Filter{Kind: FilterSet, Names: set}
}

// Match reports whether name passes the filter.
func (f Filter) Match(name string) bool {
	switch f.Kind {
	case FilterAll:
		return true
	case FilterNone, FilterUnset:
		return false
	default:
		_, ok := f.Names[name]
		return ok
	}
}

const defaultTraceCapacity = 5000

// TraceRecord is one down or up event in the trace ring, per spec.md
// §4.3.
type TraceRecord struct {
	Dir          AstDir // reuses AstDown/AstUp; trace and AST share the same direction vocabulary
	TreeDepth    int
	ThisLine     int64
	PairedLine   int64 // down: -1 until its up record is written; up: always its down record's line, which may since have been evicted
	OpType       OpType
	Name         string // rule/UDT name, or "" for non-RNM/UDT opcodes
	State        State
	PhraseIndex  int
	PhraseLength int
	LookAnchor   int
	LookKind     LookKind
}

// TraceRecorder wraps a circular buffer of TraceRecord (spec.md's C4)
// with operator/rule filters. Defaults: operator filter <NONE>, rule
// filter <ALL>, capacity 5000, per spec.md §4.3.
type TraceRecorder struct {
	ring           *Ring[TraceRecord]
	operatorFilter Filter
	ruleFilter     Filter
}

// NewTraceRecorder returns a recorder with spec.md's stated defaults.
func NewTraceRecorder() *TraceRecorder {
	return &TraceRecorder{
		ring:           NewRing[TraceRecord](defaultTraceCapacity),
		operatorFilter: NewFilterNone(),
		ruleFilter:     NewFilterAll(),
	}
}

// SetMaxRecords resizes the ring's capacity.
func (t *TraceRecorder) SetMaxRecords(n int) {
	t.ring = NewRing[TraceRecord](n)
}

// SetOperatorFilter replaces the operator filter.
func (t *TraceRecorder) SetOperatorFilter(f Filter) { t.operatorFilter = f }

// SetRuleFilter replaces the rule/UDT filter.
func (t *TraceRecorder) SetRuleFilter(f Filter) { t.ruleFilter = f }

// shouldRecord reports whether an opcode invocation with the given type
// and rule/UDT name (empty for non-RNM/UDT opcodes) passes both filters.
func (t *TraceRecorder) shouldRecord(opType OpType, name string) bool {
	if !t.operatorFilter.Match(opType.String()) {
		return false
	}
	if name != "" && !t.ruleFilter.Match(name) {
		return false
	}
	return true
}

// traceToken is an opaque handle returned by Down and consumed by Up,
// carrying the down event's absolute line number across the evaluator's
// own recursive call (the recursion itself provides the "stack"; no
// explicit pairing stack is needed inside the recorder).
type traceToken struct {
	line  int64
	valid bool
}

// Down records a down event if it passes the configured filters.
func (t *TraceRecorder) Down(opType OpType, name string, treeDepth, phraseIndex int, lookKind LookKind, lookAnchor int) traceToken {
	if !t.shouldRecord(opType, name) {
		return traceToken{}
	}
	line := t.ring.Push(TraceRecord{
		Dir:         AstDown,
		TreeDepth:   treeDepth,
		ThisLine:    -1, // back-patched below; Push must assign the line first
		OpType:      opType,
		Name:        name,
		State:       StateActive,
		PhraseIndex: phraseIndex,
		LookAnchor:  lookAnchor,
		LookKind:    lookKind,
		PairedLine:  -1,
	})
	if rec, ok := t.ring.Get(line); ok {
		rec.ThisLine = line
		t.ring.set(line, rec)
	}
	return traceToken{line: line, valid: true}
}

// Up records the matching up event and, if the down record is still in
// the ring's window, back-patches its PairedLine. If the down record was
// evicted, back-patching is a no-op per spec.md §9.
func (t *TraceRecorder) Up(tok traceToken, opType OpType, name string, treeDepth, phraseIndex, phraseLength int, state State, lookKind LookKind, lookAnchor int) {
	if !tok.valid {
		return
	}
	upLine := t.ring.Push(TraceRecord{
		Dir:          AstUp,
		TreeDepth:    treeDepth,
		PairedLine:   tok.line,
		OpType:       opType,
		Name:         name,
		State:        state,
		PhraseIndex:  phraseIndex,
		PhraseLength: phraseLength,
		LookAnchor:   lookAnchor,
		LookKind:     lookKind,
	})
	if rec, ok := t.ring.Get(upLine); ok {
		rec.ThisLine = upLine
		t.ring.set(upLine, rec)
	}
	if down, ok := t.ring.Get(tok.line); ok {
		down.PairedLine = upLine
		down.PhraseIndex = phraseIndex
		down.PhraseLength = phraseLength
		down.State = state
		t.ring.set(tok.line, down)
	}
}

// Records returns the retained trace records in recording order, for
// callers wanting the structured form (spec.md §6's emit()).
func (t *TraceRecorder) Records() []TraceRecord {
	out := make([]TraceRecord, 0, t.ring.Len())
	t.ring.ForEach(func(_ int64, v TraceRecord) { out = append(out, v) })
	return out
}

// PrettyString renders the retained records as an indented, paired
// trace listing, reusing the teacher's treePrinter and ascii color theme.
// Indentation tracks TreeDepth directly rather than down/up transitions,
// since eviction can leave a down record's matching up record retained
// without its pair (or vice versa).
func (t *TraceRecorder) PrettyString(colorize bool) string {
	format := func(_ string, r TraceRecord) string {
		op := r.OpType.String()
		if colorize {
			op = ascii.Color(ascii.DefaultTheme.Operator, "%s", op)
		}
		name := r.Name
		if name == "" {
			name = "-"
		}
		return fmt.Sprintf("%s(%s) @ %d+%d %s", op, name, r.PhraseIndex, r.PhraseLength, r.State)
	}
	tp := newTreePrinter[TraceRecord](format)
	depth := 0
	t.ring.ForEach(func(line int64, r TraceRecord) {
		for depth > r.TreeDepth {
			tp.unindent()
			depth--
		}
		for depth < r.TreeDepth {
			tp.indent("  ")
			depth++
		}
		dirMark := "down"
		if r.Dir == AstUp {
			dirMark = "up"
		}
		tp.pwritel(fmt.Sprintf("[%d] %s %s", line, dirMark, tp.format("", r)))
	})
	return tp.output.String()
}
