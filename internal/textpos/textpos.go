// Package textpos converts between byte offsets and 1-based line/column
// positions in raw text.
package textpos

import (
	"strings"
	"unicode/utf8"
)

// LineColumn is a 1-based line and column. Columns count bytes.
type LineColumn struct {
	Line   int `json:"line"`
	Column int `json:"column"`
}

// Clamp bounds offset to [0, len(text)].
func Clamp(text string, offset int) int {
	if offset < 0 {
		return 0
	}
	if offset > len(text) {
		return len(text)
	}
	return offset
}

// At returns the line and column of offset, counting '\n' before it.
func At(text string, offset int) LineColumn {
	offset = Clamp(text, offset)
	before := text[:offset]
	line := strings.Count(before, "\n") + 1
	lineStart := strings.LastIndexByte(before, '\n') + 1
	return LineColumn{Line: line, Column: offset - lineStart + 1}
}

// LineBounds returns the start offset and the end offset (excluding the
// newline) of the given 1-based line. Lines past the end resolve to the last
// line; lines before the first resolve to the first.
func LineBounds(text string, line int) (start, end int) {
	if line < 1 {
		line = 1
	}
	start = 0
	for l := 1; l < line; l++ {
		nl := strings.IndexByte(text[start:], '\n')
		if nl < 0 {
			break
		}
		start += nl + 1
	}
	end = len(text)
	if nl := strings.IndexByte(text[start:], '\n'); nl >= 0 {
		end = start + nl
	}
	return start, end
}

// Offset resolves a line/column to an offset, clamping the column to the
// extent of its line.
func Offset(text string, lc LineColumn) int {
	start, end := LineBounds(text, lc.Line)
	col := lc.Column - 1
	if col < 0 {
		col = 0
	}
	if start+col > end {
		return end
	}
	return start + col
}

// SnapRune moves offset back to the start of the rune that contains it.
func SnapRune(text string, offset int) int {
	offset = Clamp(text, offset)
	for offset > 0 && offset < len(text) && !utf8.RuneStart(text[offset]) {
		offset--
	}
	return offset
}
