package sabnf

import "fmt"

// OpType is the discriminant of an Opcode's tagged union.
//
// NOTE: changing the order of these values has no ABI implication (this
// module keeps no serialized bytecode) but existing callers may have
// constructed Opcode tables with a given OpType's integer value baked in,
// so keep additions at the end.
type OpType int

const (
	OpAlt OpType = iota
	OpCat
	OpRep
	OpRnm
	OpUdt
	OpAnd
	OpNot
	OpTrg
	OpTbs
	OpTls
	OpBkr
	OpBka
	OpBkn
	OpAbg
	OpAen
)

var opNames = map[OpType]string{
	OpAlt: "ALT",
	OpCat: "CAT",
	OpRep: "REP",
	OpRnm: "RNM",
	OpUdt: "UDT",
	OpAnd: "AND",
	OpNot: "NOT",
	OpTrg: "TRG",
	OpTbs: "TBS",
	OpTls: "TLS",
	OpBkr: "BKR",
	OpBka: "BKA",
	OpBkn: "BKN",
	OpAbg: "ABG",
	OpAen: "AEN",
}

// opNameSet is opNames's value set, used to validate an explicit trace
// operator filter against the names the filter's Match actually compares
// against (OpType.String()).
var opNameSet = func() map[string]struct{} {
	set := make(map[string]struct{}, len(opNames))
	for _, n := range opNames {
		set[n] = struct{}{}
	}
	return set
}()

func (t OpType) String() string {
	if n, ok := opNames[t]; ok {
		return n
	}
	return fmt.Sprintf("OpType(%d)", int(t))
}

// RepMaxInfinite is the sentinel REP.Max value meaning "no upper bound".
const RepMaxInfinite = -1

// BkrCase selects byte comparison semantics for a back-reference match.
type BkrCase int

const (
	BkrCaseSensitive BkrCase = iota
	BkrCaseInsensitive
)

// BkrMode selects which back-reference frame a BKR opcode reads from.
type BkrMode int

const (
	BkrModeUniversal BkrMode = iota
	BkrModeParent
)

// Opcode is one node of a pre-compiled grammar. Only the fields relevant
// to Type are meaningful; the rest are zero. ALT/CAT carry their children
// as opcode indices local to the current opcode table (see Rule.Opcodes);
// REP/AND/NOT/BKA/BKN have an implicit single child at the opcode
// immediately following them in that same table, per spec.
type Opcode struct {
	Type OpType

	// ALT, CAT
	Children []int

	// REP
	Min, Max int

	// RNM (rule index), UDT (udt index), BKR (rule-or-udt index)
	Index int

	// UDT
	Empty bool

	// TRG
	RangeMin, RangeMax int32

	// TBS (exact bytes), TLS (bytes already folded to lowercase)
	Bytes []int32

	// BKR
	Case         BkrCase
	Mode         BkrMode
	BkrTargetUdt bool
}

// String renders a single opcode for diagnostics, escaping TBS/TLS
// literal text the same way the teacher's AST printer escapes captured
// source text.
func (op Opcode) String() string {
	switch op.Type {
	case OpTbs, OpTls:
		return fmt.Sprintf("%s %q", op.Type, escapeLiteral(string(op.Bytes)))
	case OpTrg:
		return fmt.Sprintf("%s %d-%d", op.Type, op.RangeMin, op.RangeMax)
	case OpRep:
		max := "inf"
		if op.Max != RepMaxInfinite {
			max = fmt.Sprintf("%d", op.Max)
		}
		return fmt.Sprintf("%s %d*%s", op.Type, op.Min, max)
	default:
		return op.Type.String()
	}
}

// Rule is a named grammar production. Opcodes is a contiguous slice of
// the grammar's opcode table; evaluating the rule means re-entering the
// evaluator at Opcodes[0].
type Rule struct {
	Name             string
	LowerName        string
	Opcodes          []Opcode
	IsBackReferenced bool
	Index            int
}

// UDT is a user-defined terminal: a rule-like node with no opcodes of its
// own, driven entirely by a mandatory callback.
type UDT struct {
	Name             string
	LowerName        string
	Empty            bool
	IsBackReferenced bool
	Index            int
}

// Grammar is the immutable, read-only table a Parser evaluates against.
// It carries the "grammar-object" type tag spec.md §6 requires the
// facade to validate before use.
type Grammar struct {
	Kind  string
	Rules []Rule
	Udts  []UDT
}

// GrammarObjectKind is the only value Grammar.Kind may hold for a
// Grammar to be considered well-formed.
const GrammarObjectKind = "grammar-object"

// NewGrammar builds a Grammar from rule and UDT tables, stamping the
// type tag. It does not validate; call Validate before use.
func NewGrammar(rules []Rule, udts []UDT) *Grammar {
	for i := range rules {
		rules[i].Index = i
	}
	for i := range udts {
		udts[i].Index = i
	}
	return &Grammar{Kind: GrammarObjectKind, Rules: rules, Udts: udts}
}

// Validate checks grammar shape invariants the evaluator depends on:
// every RNM/BKR/UDT index resolves, every REP/AND/NOT/BKA/BKN has an
// implicit child in range, ALT/CAT children are in range, TRG ranges are
// not inverted, and TBS literals are non-empty per spec.md §3
// ("Zero-length TBS is disallowed by the compiler"); TLS literals are not
// checked. It
// collects every violation instead of stopping at the first, since a
// caller debugging a hand-built grammar object benefits from the full
// list.
func (g *Grammar) Validate() error {
	if g.Kind != GrammarObjectKind {
		return SetupError{Message: fmt.Sprintf("not a grammar object (kind=%q)", g.Kind)}
	}

	var problems []string
	addf := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	for ri := range g.Rules {
		r := &g.Rules[ri]
		for oi := range r.Opcodes {
			op := &r.Opcodes[oi]
			switch op.Type {
			case OpAlt, OpCat:
				if len(op.Children) == 0 {
					addf("rule %q opcode %d (%s): no children", r.Name, oi, op.Type)
				}
				for _, c := range op.Children {
					if c < 0 || c >= len(r.Opcodes) {
						addf("rule %q opcode %d (%s): child index %d out of range", r.Name, oi, op.Type, c)
					}
				}
			case OpRep, OpAnd, OpNot, OpBka, OpBkn:
				if oi+1 >= len(r.Opcodes) {
					addf("rule %q opcode %d (%s): missing implicit child", r.Name, oi, op.Type)
				}
			case OpRnm:
				if op.Index < 0 || op.Index >= len(g.Rules) {
					addf("rule %q opcode %d (RNM): rule index %d out of range", r.Name, oi, op.Index)
				}
			case OpUdt:
				if op.Index < 0 || op.Index >= len(g.Udts) {
					addf("rule %q opcode %d (UDT): udt index %d out of range", r.Name, oi, op.Index)
				}
			case OpBkr:
				if op.BkrTargetUdt {
					if op.Index < 0 || op.Index >= len(g.Udts) {
						addf("rule %q opcode %d (BKR): udt index %d out of range", r.Name, oi, op.Index)
					}
				} else if op.Index < 0 || op.Index >= len(g.Rules) {
					addf("rule %q opcode %d (BKR): rule index %d out of range", r.Name, oi, op.Index)
				}
			case OpTbs:
				if len(op.Bytes) == 0 {
					addf("rule %q opcode %d (TBS): empty literal is disallowed", r.Name, oi)
				}
			case OpTrg:
				if op.RangeMin > op.RangeMax {
					addf("rule %q opcode %d (TRG): min %d greater than max %d", r.Name, oi, op.RangeMin, op.RangeMax)
				}
			}
		}
	}

	if len(problems) > 0 {
		msg := "invalid grammar object:"
		for _, p := range problems {
			msg += "\n  - " + p
		}
		return SetupError{Message: msg}
	}
	return nil
}

// RuleByName resolves a rule by its case-sensitive name.
func (g *Grammar) RuleByName(name string) (int, bool) {
	for i := range g.Rules {
		if g.Rules[i].Name == name {
			return i, true
		}
	}
	return 0, false
}

// UdtByName resolves a UDT by its case-sensitive name.
func (g *Grammar) UdtByName(name string) (int, bool) {
	for i := range g.Udts {
		if g.Udts[i].Name == name {
			return i, true
		}
	}
	return 0, false
}
