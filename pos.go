package sabnf

import (
	"fmt"
	"sort"
)

// Location is a human-readable position: a 1-based line and column
// alongside the raw 0-based code-point cursor it was derived from.
type Location struct {
	Line   int32
	Column int32
	Cursor int
}

// Span is a half-open pair of locations for diagnostics. The core match
// algorithm and the trace and AST pretty-printers do not use it; they
// work with raw code-point offsets.
type Span struct {
	Start Location
	End   Location
}

func (s Span) String() string {
	startLine, startCol := s.Start.Line, s.Start.Column
	endLine, endCol := s.End.Line, s.End.Column
	if startLine == endLine && startLine == 1 {
		if startCol == endCol {
			return fmt.Sprintf("%d", startCol)
		}
		return fmt.Sprintf("%d..%d", startCol, endCol)
	}
	if startLine == endLine && startCol == endCol {
		return fmt.Sprintf("%d:%d", startLine, startCol)
	}
	return fmt.Sprintf("%d:%d..%d:%d", startLine, startCol, endLine, endCol)
}

// LineIndex allows fast conversion from code-point cursor offsets to
// line/column pairs.
//
// It stores the start cursor of each line (0-based). Given a cursor, it
// finds the line by binary searching line starts (O(log lines)) and
// computes the column as (code points since lineStart + 1).
//
// Construction is O(n) over the input and is intended to be cached per
// input buffer.
type LineIndex struct {
	codes     []int32
	lineStart []int
}

// NewLineIndex scans codes once, recording the cursor of every line
// start.
func NewLineIndex(codes []int32) *LineIndex {
	lineStart := make([]int, 1, 64)
	lineStart[0] = 0
	for i, c := range codes {
		if c == '\n' {
			lineStart = append(lineStart, i+1)
		}
	}
	return &LineIndex{codes: codes, lineStart: lineStart}
}

// LocationAt converts a 0-based code-point cursor into a Location.
func (li *LineIndex) LocationAt(cursor int) Location {
	if cursor < 0 {
		cursor = 0
	}
	if cursor > len(li.codes) {
		cursor = len(li.codes)
	}

	lineIdx := sort.Search(len(li.lineStart), func(i int) bool {
		return li.lineStart[i] > cursor
	}) - 1
	if lineIdx < 0 {
		lineIdx = 0
	}

	lineStart := li.lineStart[lineIdx]
	return Location{
		Line:   int32(lineIdx + 1),
		Column: int32(cursor-lineStart) + 1,
		Cursor: cursor,
	}
}

// Span converts a [start, end) pair of code-point cursors into a Span of
// Locations.
func (li *LineIndex) Span(start, end int) Span {
	return Span{Start: li.LocationAt(start), End: li.LocationAt(end)}
}
