package sabnf

// Options configures a Parser's safety caps and diagnostic collection.
// Zero values mean "unbounded"/"disabled" except where noted.
type Options struct {
	// MaxNodeHits caps the total number of opcode invocations in a single
	// parse. Zero means unbounded.
	MaxNodeHits int
	// MaxTreeDepth caps the recursion depth of opcode invocations. Zero
	// means unbounded.
	MaxTreeDepth int

	TraceEnabled bool
	// TraceCapacity of zero keeps the recorder's default capacity (5000).
	TraceCapacity int
	// An unset (zero-value) filter keeps the recorder's default: <NONE>
	// for operators, <ALL> for rules.
	TraceOperatorFilter Filter
	TraceRuleFilter     Filter

	StatsEnabled bool
	AstEnabled   bool
}

// Result is the outcome of a single Parse/ParseSubstring/ParseString
// call: spec.md §6.'s "parser state snapshot" returned to the caller.
//
// Success requires both a non-NOMATCH state AND that the start rule
// consumed the entire active window (spec.md §4.5: "success = (state in
// {MATCH, EMPTY}) and (phrase-length == window-length)") — a start rule
// that only matches a leading prefix of the window is not a successful
// parse, even though the opcode evaluation itself terminated in MATCH.
type Result struct {
	Success bool
	State   State
	Length  int // window length
	Matched int // phrase-length actually consumed by the start rule

	MaxMatched   int
	MaxTreeDepth int
	NodeHits     int
	InputLength  int

	SubBegin  int
	SubEnd    int
	SubLength int
}

// Parser is the facade spec.md §6 describes: it owns a validated Grammar,
// the optional rule/UDT callbacks, and the AST node registrations, and
// turns those into a fresh SysData + Evaluator for every Parse call.
type Parser struct {
	grammar *Grammar
	eval    *Evaluator

	ruleCallbacks []RuleCallback
	udtCallbacks  []UDTCallback

	astNames map[string]AstCallback
}

// NewParser validates g and returns a Parser bound to it. Callback slots
// start out nil; ParseSubstring checks that every UDT has a registered
// callback before it starts evaluating (spec.md §4.5), so callbacks may
// still be registered any time between NewParser and the first Parse call.
func NewParser(g *Grammar) (*Parser, error) {
	if err := g.Validate(); err != nil {
		return nil, err
	}
	return &Parser{
		grammar:       g,
		eval:          NewEvaluator(g),
		ruleCallbacks: make([]RuleCallback, len(g.Rules)),
		udtCallbacks:  make([]UDTCallback, len(g.Udts)),
		astNames:      map[string]AstCallback{},
	}, nil
}

// SetRuleCallback registers cb as ruleName's optional hook. It returns a
// SetupError if ruleName does not name a rule in the bound grammar.
func (p *Parser) SetRuleCallback(ruleName string, cb RuleCallback) error {
	idx, ok := p.grammar.RuleByName(ruleName)
	if !ok {
		return SetupError{Message: "unknown rule name: " + ruleName}
	}
	p.ruleCallbacks[idx] = cb
	return nil
}

// SetUdtCallback registers cb as udtName's mandatory hook.
func (p *Parser) SetUdtCallback(udtName string, cb UDTCallback) error {
	idx, ok := p.grammar.UdtByName(udtName)
	if !ok {
		return SetupError{Message: "unknown UDT name: " + udtName}
	}
	p.udtCallbacks[idx] = cb
	return nil
}

// SetAstNode marks ruleOrUdtName as retained in the AST, with an optional
// Translate-time callback (nil to retain without a callback).
func (p *Parser) SetAstNode(ruleOrUdtName string, cb AstCallback) {
	p.astNames[ruleOrUdtName] = cb
}

// checkUdtCallbacks enforces spec.md §4.5's init-sequence requirement that
// "every UDT must have one" callback, as a setup-time error rather than
// waiting for evaluation to reach the first uncallbacked UDT.
func (p *Parser) checkUdtCallbacks() error {
	for i, udt := range p.grammar.Udts {
		if p.udtCallbacks[i] == nil {
			return SetupError{Message: "missing callback for UDT " + udt.Name}
		}
	}
	return nil
}

// ruleAndUdtNameSet returns the set of lowercase rule/UDT names a rule
// filter may legally name, per spec.md §4.3.
func (p *Parser) ruleAndUdtNameSet() map[string]struct{} {
	set := make(map[string]struct{}, len(p.grammar.Rules)+len(p.grammar.Udts))
	for _, r := range p.grammar.Rules {
		set[r.LowerName] = struct{}{}
	}
	for _, u := range p.grammar.Udts {
		set[u.LowerName] = struct{}{}
	}
	return set
}

// checkFilter rejects an explicit filter set naming anything outside
// known, per spec.md §6's "unknown operator name in filter, unknown rule
// name in filter" setup errors.
func (p *Parser) checkFilter(kind string, f Filter, known map[string]struct{}) error {
	if f.Kind != FilterSet {
		return nil
	}
	for name := range f.Names {
		if _, ok := known[name]; !ok {
			return SetupError{Message: "unknown " + kind + " name in filter: " + name}
		}
	}
	return nil
}

// buildStartOpcode synthesizes the single-child RNM wrapper spec.md §6
// describes Parse as evaluating: "as if the grammar had one extra rule,
// `$start = startRule`, and the parse evaluates that rule".
func (p *Parser) buildStartOpcode(startRule string) (Rule, error) {
	idx, ok := p.grammar.RuleByName(startRule)
	if !ok {
		return Rule{}, SetupError{Message: "unknown start rule: " + startRule}
	}
	return Rule{
		Name:      "$start",
		LowerName: "$start",
		Opcodes:   []Opcode{{Type: OpRnm, Index: idx}},
		Index:     -1,
	}, nil
}

// newSysDataFor builds a SysData wired up with this Parser's callbacks
// and whatever diagnostics Options asks for.
func (p *Parser) newSysDataFor(in *Input, win Window, opts *Options, userData any) *SysData {
	if opts == nil {
		opts = &Options{}
	}
	sd := newSysData(p.grammar, in, win, opts)
	sd.RuleCallbacks = p.ruleCallbacks
	sd.UdtCallbacks = p.udtCallbacks
	sd.UserData = userData

	if opts.StatsEnabled {
		sd.Stats = NewStats()
	}
	if opts.AstEnabled {
		ast := NewAst()
		for name, cb := range p.astNames {
			ast.SetAstNode(name, cb)
		}
		sd.Ast = ast
	}
	if opts.TraceEnabled {
		tr := NewTraceRecorder()
		if opts.TraceCapacity > 0 {
			tr.SetMaxRecords(opts.TraceCapacity)
		}
		if opts.TraceOperatorFilter.Kind != FilterUnset {
			tr.SetOperatorFilter(opts.TraceOperatorFilter)
		}
		if opts.TraceRuleFilter.Kind != FilterUnset {
			tr.SetRuleFilter(opts.TraceRuleFilter)
		}
		sd.Trace = tr
	}
	return sd
}

// Parse runs startRule over the whole of in, per spec.md §6's top-level
// entry point.
func (p *Parser) Parse(startRule string, in *Input, opts *Options, userData any) (*Result, *SysData, error) {
	return p.ParseSubstring(startRule, in, Window{Begin: 0, End: in.Len()}, opts, userData)
}

// ParseString is the string-convenience wrapper over Parse.
func (p *Parser) ParseString(startRule, s string, opts *Options, userData any) (*Result, *SysData, error) {
	return p.Parse(startRule, NewInputFromString(s), opts, userData)
}

// ParseSubstring runs startRule over the [win.Begin, win.End) sub-range
// of in, per spec.md §6's windowed entry point. It returns the parser's
// Result plus the SysData the run produced, so a caller that enabled
// Trace/Ast/Stats can retrieve them.
func (p *Parser) ParseSubstring(startRule string, in *Input, win Window, opts *Options, userData any) (*Result, *SysData, error) {
	if win.Begin < 0 || win.End > in.Len() || win.Begin > win.End {
		return nil, nil, SetupError{Message: "window out of bounds"}
	}

	start, err := p.buildStartOpcode(startRule)
	if err != nil {
		return nil, nil, err
	}

	if err := p.checkUdtCallbacks(); err != nil {
		return nil, nil, err
	}
	if opts != nil {
		if err := p.checkFilter("operator", opts.TraceOperatorFilter, opNameSet); err != nil {
			return nil, nil, err
		}
		if err := p.checkFilter("rule", opts.TraceRuleFilter, p.ruleAndUdtNameSet()); err != nil {
			return nil, nil, err
		}
	}

	sd := p.newSysDataFor(in, win, opts, userData)
	sd.CurrentTable = start.Opcodes

	if err := p.eval.Execute(0, win.Begin, sd); err != nil {
		return nil, sd, err
	}

	terminal := sd.State == StateMatch || sd.State == StateEmpty
	res := &Result{
		State:        sd.State,
		Success:      terminal && sd.PhraseLength == win.Length(),
		Length:       win.Length(),
		Matched:      sd.PhraseLength,
		MaxMatched:   sd.MaxMatched,
		MaxTreeDepth: sd.PeakTreeDepth,
		NodeHits:     sd.NodeHits,
		InputLength:  in.Len(),
		SubBegin:     win.Begin,
		SubEnd:       win.End,
		SubLength:    win.Length(),
	}

	if res.Success && sd.Ast != nil {
		sd.Ast.Translate(in, userData)
	}

	return res, sd, nil
}
