// Package jsonerr parses checklist text into a result value and maps parse
// error messages back to text offsets.
package jsonerr

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/rivo/uniseg"

	"github.com/starford/stepsheet/internal/textpos"
)

// Kind classifies a failed parse or render.
type Kind string

const (
	KindSyntax        Kind = "syntax"
	KindUnexpectedEnd Kind = "unexpected_end"
	// KindRuntime marks failures after a successful parse, e.g. a document
	// whose shape cannot be rendered as a checklist.
	KindRuntime Kind = "runtime"
)

// Result is the outcome of AttemptParse. When OK is false, Message and Kind
// describe the failure and Offset is the byte offset reported by the parser,
// or -1 when it reported none.
type Result struct {
	OK      bool   `json:"ok"`
	Value   any    `json:"value,omitempty"`
	Message string `json:"message,omitempty"`
	Kind    Kind   `json:"kind,omitempty"`
	Offset  int    `json:"offset"`
}

// errUnexpectedEnd matches the message encoding/json gives truncated input.
const errUnexpectedEnd = "unexpected end of JSON input"

// AttemptParse parses text as JSON. Numbers are kept as json.Number.
func AttemptParse(text string) Result {
	dec := json.NewDecoder(strings.NewReader(text))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return failure(err)
	}
	// Only whitespace may follow the top-level value.
	if pos, r, ok := trailing(text, int(dec.InputOffset())); ok {
		msg := fmt.Sprintf("invalid character %q after top-level value", r)
		return Result{
			Message: fmt.Sprintf("%s at position %d", msg, pos),
			Kind:    KindSyntax,
			Offset:  pos,
		}
	}
	return Result{OK: true, Value: v, Offset: -1}
}

func failure(err error) Result {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return Result{Message: errUnexpectedEnd, Kind: KindUnexpectedEnd, Offset: -1}
	}
	var se *json.SyntaxError
	if !errors.As(err, &se) {
		return Result{Message: err.Error(), Kind: KindSyntax, Offset: -1}
	}
	if strings.Contains(se.Error(), "unexpected end") {
		return Result{Message: se.Error(), Kind: KindUnexpectedEnd, Offset: -1}
	}
	// Offset counts the bytes read including the offending one.
	pos := max(0, int(se.Offset)-1)
	return Result{
		Message: fmt.Sprintf("%s at position %d", se.Error(), pos),
		Kind:    KindSyntax,
		Offset:  pos,
	}
}

// trailing returns the first non-whitespace rune at or after from.
func trailing(text string, from int) (int, rune, bool) {
	for i := from; i < len(text); i++ {
		switch text[i] {
		case ' ', '\t', '\n', '\r':
			continue
		}
		r, _ := utf8.DecodeRuneInString(text[i:])
		return i, r, true
	}
	return 0, 0, false
}

var (
	positionRe   = regexp.MustCompile(`at position (\d+)`)
	lineColumnRe = regexp.MustCompile(`line (\d+),? column (\d+)`)
)

// Locate maps a parser error message to an offset in text. It tries, in
// order: an "at position N" phrase, a "line L column C" phrase, an
// unexpected end of input, and a trailing comma before a closing bracket.
// The result is clamped to [0, len(text)-1]; empty text has no location.
func Locate(message, text string) (int, bool) {
	if text == "" {
		return 0, false
	}
	if m := positionRe.FindStringSubmatch(message); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil {
			return normalize(text, n), true
		}
	}
	if m := lineColumnRe.FindStringSubmatch(message); m != nil {
		line, err1 := strconv.Atoi(m[1])
		col, err2 := strconv.Atoi(m[2])
		if err1 == nil && err2 == nil {
			off := textpos.Offset(text, textpos.LineColumn{Line: line, Column: col})
			return normalize(text, off), true
		}
	}
	if strings.Contains(strings.ToLower(message), "unexpected end") {
		return len(text) - 1, true
	}
	if off, ok := TrailingComma(text); ok {
		return off, true
	}
	return 0, false
}

// Resolve returns the error offset for a failed parse, preferring the
// parser's own offset over message matching.
func Resolve(r Result, text string) (int, bool) {
	if r.OK || text == "" {
		return 0, false
	}
	if r.Offset >= 0 {
		return normalize(text, r.Offset), true
	}
	return Locate(r.Message, text)
}

// TrailingComma returns the offset of the first comma outside a string that
// is followed, after optional whitespace, by ']' or '}'.
func TrailingComma(text string) (int, bool) {
	inString, escaped := false, false
	for i := 0; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case ',':
			j := i + 1
			for j < len(text) && isSpace(text[j]) {
				j++
			}
			if j < len(text) && (text[j] == ']' || text[j] == '}') {
				return i, true
			}
		}
	}
	return 0, false
}

// Position is a human-facing location. Column counts grapheme clusters.
type Position struct {
	Line   int `json:"line"`
	Column int `json:"column"`
}

// PositionAt converts a byte offset to a line and grapheme column.
func PositionAt(text string, offset int) Position {
	offset = textpos.SnapRune(text, offset)
	lc := textpos.At(text, offset)
	lineStart := offset - (lc.Column - 1)
	return Position{
		Line:   lc.Line,
		Column: uniseg.GraphemeClusterCount(text[lineStart:offset]) + 1,
	}
}

// Snippet returns the line containing offset and a caret marker under it,
// for terminal output.
func Snippet(text string, offset int) string {
	offset = textpos.SnapRune(text, offset)
	lc := textpos.At(text, offset)
	start, end := textpos.LineBounds(text, lc.Line)
	line := text[start:end]
	width := uniseg.StringWidth(text[start:offset])
	var b bytes.Buffer
	b.WriteString(line)
	b.WriteByte('\n')
	b.WriteString(strings.Repeat(" ", width))
	b.WriteByte('^')
	return b.String()
}

func normalize(text string, off int) int {
	if off < 0 {
		return 0
	}
	if off > len(text)-1 {
		return len(text) - 1
	}
	return off
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}
