// Package caret encodes text positions into anchors that survive
// reformatting of the surrounding JSON text.
//
// An Anchor carries three redundant descriptors of one position: the number
// of meaningful characters before it, its line and column, and its raw byte
// offset. Decoding prefers the semantic index, which is stable across
// whitespace-only changes outside of string literals, and falls back to the
// other two.
package caret

import (
	"github.com/starford/stepsheet/internal/textpos"
)

// Anchor is a reformat-resilient encoding of one position in a text snapshot.
// SemanticIndex < 0 means the semantic descriptor is unavailable.
type Anchor struct {
	SemanticIndex  int                 `json:"semanticIndex"`
	LineColumn     *textpos.LineColumn `json:"lineColumn,omitempty"`
	AbsoluteOffset int                 `json:"absoluteOffset"`
}

// Encode captures offset (clamped into the text) as an Anchor.
func Encode(text string, offset int) Anchor {
	offset = textpos.Clamp(text, offset)
	lc := textpos.At(text, offset)
	return Anchor{
		SemanticIndex:  semanticIndex(text, offset),
		LineColumn:     &lc,
		AbsoluteOffset: offset,
	}
}

// Decode resolves a onto text. It never fails: when neither the semantic
// index nor the line/column is usable it returns the clamped raw offset.
//
// Several raw offsets can share one semantic index (a run of whitespace
// between two meaningful characters). Inside such a run the line/column and
// then the raw offset are used as tie-breakers, so decoding an anchor against
// the text it was captured from yields the original offset.
func Decode(text string, a Anchor) int {
	if a.SemanticIndex >= 0 {
		lo, hi, ok := semanticSpan(text, a.SemanticIndex)
		if !ok {
			return len(text)
		}
		if a.LineColumn != nil {
			if off := textpos.Offset(text, *a.LineColumn); off >= lo && off <= hi {
				return textpos.SnapRune(text, off)
			}
		}
		if a.AbsoluteOffset >= lo && a.AbsoluteOffset <= hi {
			return textpos.SnapRune(text, a.AbsoluteOffset)
		}
		return textpos.SnapRune(text, lo)
	}
	if a.LineColumn != nil {
		return textpos.SnapRune(text, textpos.Offset(text, *a.LineColumn))
	}
	return textpos.SnapRune(text, a.AbsoluteOffset)
}

// scanner walks JSON-ish text one byte at a time and reports whether each
// byte is meaningful: every byte of a string literal (quotes included) and
// every non-whitespace byte outside strings.
type scanner struct {
	inString bool
	escaped  bool
}

func (s *scanner) meaningful(c byte) bool {
	if s.inString {
		switch {
		case s.escaped:
			s.escaped = false
		case c == '\\':
			s.escaped = true
		case c == '"':
			s.inString = false
		}
		return true
	}
	if c == '"' {
		s.inString = true
		return true
	}
	return !isSpace(c)
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\f' || c == '\v'
}

func semanticIndex(text string, offset int) int {
	var s scanner
	n := 0
	for i := 0; i < offset; i++ {
		if s.meaningful(text[i]) {
			n++
		}
	}
	return n
}

// semanticSpan returns the range [lo, hi] of offsets whose semantic index is
// target. ok is false when the text holds fewer meaningful characters.
func semanticSpan(text string, target int) (lo, hi int, ok bool) {
	var s scanner
	n := 0
	lo = -1
	for i := 0; i < len(text); i++ {
		if n == target && lo < 0 {
			lo = i
		}
		if s.meaningful(text[i]) {
			if n == target {
				return lo, i, true
			}
			n++
		}
	}
	if n == target {
		if lo < 0 {
			lo = len(text)
		}
		return lo, len(text), true
	}
	return 0, 0, false
}
