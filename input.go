package sabnf

// Input is the immutable, read-only sequence of integer character codes
// a parse runs over. The engine performs no decoding of its own; Codes
// is expected to already be a sequence of Unicode scalar values (or any
// other integer alphabet the caller's grammar was compiled against).
type Input struct {
	Codes []int32
}

// NewInput wraps a pre-decoded code-point sequence.
func NewInput(codes []int32) *Input {
	return &Input{Codes: codes}
}

// NewInputFromString decodes a UTF-8 string into code points. This is
// the thin, facade-level convenience spec.md §6 allows ("input is a
// sequence of code points (or a string the facade converts)") — it is
// not a general string/codepoint conversion library.
func NewInputFromString(s string) *Input {
	codes := make([]int32, 0, len(s))
	for _, r := range s {
		codes = append(codes, r)
	}
	return &Input{Codes: codes}
}

// Len returns the total number of code points in the buffer, regardless
// of any active sub-window.
func (in *Input) Len() int {
	return len(in.Codes)
}

// Window is a half-open [Begin, End) sub-range of an Input buffer. AND
// and NOT temporarily widen End to the full input length; every other
// operator treats Window as fixed for the duration of its evaluation.
type Window struct {
	Begin int
	End   int
}

// Length returns the number of code points the window currently spans.
func (w Window) Length() int {
	return w.End - w.Begin
}
