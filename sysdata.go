package sabnf

// State is the four-valued outcome of an opcode evaluation. ACTIVE is
// never a valid return value from Evaluator.Execute (see the "state
// totality" property in spec.md §8); it only appears transiently as the
// value a rule or UDT callback's pre-phase may set to mean "proceed with
// the rule's own opcodes".
type State int

const (
	StateActive State = iota
	StateMatch
	StateEmpty
	StateNoMatch
)

func (s State) String() string {
	switch s {
	case StateActive:
		return "ACTIVE"
	case StateMatch:
		return "MATCH"
	case StateEmpty:
		return "EMPTY"
	case StateNoMatch:
		return "NOMATCH"
	default:
		return "INVALID"
	}
}

// stateFor returns EMPTY for a zero-length match and MATCH otherwise.
func stateFor(length int) State {
	if length == 0 {
		return StateEmpty
	}
	return StateMatch
}

// LookKind identifies what a look-around stack frame is guarding.
type LookKind int

const (
	LookNone LookKind = iota
	LookAhead
	LookBehind
)

// LookFrame is a single entry of the look-around stack: it remembers
// enough to restore the window exactly and to report the anchor/kind to
// trace records.
type LookFrame struct {
	Kind       LookKind
	Anchor     int
	SavedWindow Window
}

// lookStack is an explicit push/pop stack of LookFrame, kept apart from
// Go's own call stack per spec.md §5 ("Look-around... state are stored on
// an explicit stack within sysdata, not on the native call stack
// independently of recursion").
type lookStack []LookFrame

func (s *lookStack) push(f LookFrame) { *s = append(*s, f) }

func (s *lookStack) pop() LookFrame {
	f := (*s)[len(*s)-1]
	*s = (*s)[:len(*s)-1]
	return f
}

func (s lookStack) top() LookKind {
	if len(s) == 0 {
		return LookNone
	}
	return s[len(s)-1].Kind
}

// FrameRef is a captured phrase a back-reference may later match
// against: the start cursor and length of the capture.
type FrameRef struct {
	Start  int
	Length int
}

// parentFrameStack is an explicit stack of per-rule-activation
// back-reference maps. A fresh map is pushed on RNM entry and popped on
// exit; BKR in parent mode always reads the current top.
type parentFrameStack []map[string]FrameRef

func (s *parentFrameStack) push() { *s = append(*s, map[string]FrameRef{}) }

func (s *parentFrameStack) pop() map[string]FrameRef {
	f := (*s)[len(*s)-1]
	*s = (*s)[:len(*s)-1]
	return f
}

func (s parentFrameStack) top() map[string]FrameRef {
	return s[len(s)-1]
}

// RuleCallback is a rule's optional hook, invoked once in the pre phase
// (before the rule's opcodes run) and, only if the pre phase left the
// state ACTIVE, once more in the post phase (after they run).
// The callback mutates State/PhraseLength on the view in place; see
// spec.md §4.1.2.
type RuleCallback func(view *CallbackView)

// UDTCallback is a UDT's mandatory hook; every UDT must have one.
type UDTCallback func(view *CallbackView)

// SysData is the single mutable record threaded through one parse call.
// A fresh SysData is built for every Parse/ParseSubstring invocation;
// Grammar and Input are shared read-only across parses.
type SysData struct {
	Grammar *Grammar
	Input   *Input
	Window  Window

	// CurrentTable is the opcode slice currently being evaluated: the
	// start rule's synthetic table, or whichever rule's Opcodes RNM most
	// recently switched to.
	CurrentTable []Opcode

	State        State
	PhraseLength int

	look          lookStack
	universal     map[string]FrameRef
	parentFrames  parentFrameStack

	NodeHits      int
	TreeDepth     int
	PeakTreeDepth int
	MaxMatched    int

	Options *Options

	Ast   *Ast
	Trace *TraceRecorder
	Stats *Stats

	RuleCallbacks []RuleCallback
	UdtCallbacks  []UDTCallback

	UserData any
}

// newSysData builds a fresh, correctly initialized SysData. A single
// root parent-back-reference frame is pre-pushed so BKR(parent-mode) and
// the RNM back-reference update always have a frame to write into, even
// for back-referenced rules invoked directly from the synthetic start
// opcode.
func newSysData(g *Grammar, in *Input, win Window, opts *Options) *SysData {
	sd := &SysData{
		Grammar:    g,
		Input:      in,
		Window:     win,
		State:      StateActive,
		Options:    opts,
		universal:  map[string]FrameRef{},
	}
	sd.parentFrames.push()
	return sd
}

func (sd *SysData) lookKind() LookKind {
	return sd.look.top()
}

func (sd *SysData) pushLook(kind LookKind, anchor int) {
	sd.look.push(LookFrame{Kind: kind, Anchor: anchor, SavedWindow: sd.Window})
}

// popLook restores the window exactly as it stood before the matching
// pushLook and returns the popped frame.
func (sd *SysData) popLook() LookFrame {
	f := sd.look.pop()
	sd.Window = f.SavedWindow
	return f
}

func (sd *SysData) pushParentFrame() { sd.parentFrames.push() }

func (sd *SysData) popParentFrame() map[string]FrameRef { return sd.parentFrames.pop() }

// recordBackRef updates both the universal frame (monotonic across the
// whole parse) and the currently active parent frame for name, per
// spec.md §4.1.1's RNM/UDT contracts and the "update both on every
// successful back-referenced match" resolution in SPEC_FULL.md.
func (sd *SysData) recordBackRef(name string, start, length int) {
	entry := FrameRef{Start: start, Length: length}
	sd.universal[name] = entry
	sd.parentFrames.top()[name] = entry
}

// lookupBackRef resolves a back-reference by mode.
func (sd *SysData) lookupBackRef(mode BkrMode, name string) (FrameRef, bool) {
	if mode == BkrModeUniversal {
		e, ok := sd.universal[name]
		return e, ok
	}
	e, ok := sd.parentFrames.top()[name]
	return e, ok
}
