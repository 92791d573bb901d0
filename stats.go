package sabnf

// Outcome tallies how many times an opcode or rule/UDT produced each
// terminal state, per spec.md §4.4.
type Outcome struct {
	Empty   int
	Match   int
	NoMatch int
	Total   int
}

func (o *Outcome) record(state State) {
	o.Total++
	switch state {
	case StateEmpty:
		o.Empty++
	case StateMatch:
		o.Match++
	case StateNoMatch:
		o.NoMatch++
	}
}

// Stats is the parser's statistics collector: per-opcode and
// per-rule/UDT counts, accumulated over every opcode executed including
// NOMATCH outcomes.
type Stats struct {
	ByOp   map[OpType]*Outcome
	ByRule map[string]*Outcome
}

// NewStats returns an empty collector.
func NewStats() *Stats {
	return &Stats{ByOp: map[OpType]*Outcome{}, ByRule: map[string]*Outcome{}}
}

// Record tallies one opcode evaluation. name is the rule/UDT lowercase
// name for RNM/UDT opcodes, or "" otherwise.
func (s *Stats) Record(opType OpType, name string, state State) {
	o, ok := s.ByOp[opType]
	if !ok {
		o = &Outcome{}
		s.ByOp[opType] = o
	}
	o.record(state)

	if name == "" {
		return
	}
	ro, ok := s.ByRule[name]
	if !ok {
		ro = &Outcome{}
		s.ByRule[name] = ro
	}
	ro.record(state)
}
