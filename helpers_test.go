package sabnf

// Hand-built grammar helpers for tests, mirroring the teacher's own
// hand-built Program{code: []Instruction{...}} literals in vm_test.go —
// there is no SABNF source compiler in this module, so tests construct
// Opcode tables directly.

import "strings"

func codesOf(s string) []int32 {
	out := make([]int32, 0, len(s))
	for _, r := range s {
		out = append(out, r)
	}
	return out
}

func tbs(s string) Opcode { return Opcode{Type: OpTbs, Bytes: codesOf(s)} }

func tls(s string) Opcode { return Opcode{Type: OpTls, Bytes: codesOf(s)} }

func trg(min, max rune) Opcode {
	return Opcode{Type: OpTrg, RangeMin: int32(min), RangeMax: int32(max)}
}

func rep(min, max int) Opcode { return Opcode{Type: OpRep, Min: min, Max: max} }

func cat(children ...int) Opcode { return Opcode{Type: OpCat, Children: children} }

func alt(children ...int) Opcode { return Opcode{Type: OpAlt, Children: children} }

func rnm(ruleIndex int) Opcode { return Opcode{Type: OpRnm, Index: ruleIndex} }

func udtOp(udtIndex int) Opcode { return Opcode{Type: OpUdt, Index: udtIndex} }

func and() Opcode { return Opcode{Type: OpAnd} }

func not() Opcode { return Opcode{Type: OpNot} }

func bka() Opcode { return Opcode{Type: OpBka} }

func bkn() Opcode { return Opcode{Type: OpBkn} }

func abg() Opcode { return Opcode{Type: OpAbg} }

func aen() Opcode { return Opcode{Type: OpAen} }

func bkr(ruleIndex int, mode BkrMode) Opcode {
	return Opcode{Type: OpBkr, Index: ruleIndex, Mode: mode}
}

func newRule(name string, opcodes ...Opcode) Rule {
	return Rule{Name: name, LowerName: strings.ToLower(name), Opcodes: opcodes}
}
