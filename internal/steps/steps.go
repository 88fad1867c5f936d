// Package steps scans raw checklist text for the elements of its top-level
// "steps" array. The scanners never parse the whole document, so they work on
// text that is invalid outside the region they look at.
package steps

import (
	"encoding/json"
	"strings"
)

// Bounds is the half-open byte span [Start, End) of one step object.
type Bounds struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Edit replaces text[Start:End] with Text.
type Edit struct {
	Start int    `json:"start"`
	End   int    `json:"end"`
	Text  string `json:"text"`
}

// Apply returns text with the edit applied.
func (e Edit) Apply(text string) string {
	return text[:e.Start] + e.Text + text[e.End:]
}

const stepsKey = `"steps"`

// FindBounds returns the span of the n-th (0-based) object in the steps
// array. It reports false if the key, the array or the element is missing.
func FindBounds(text string, n int) (Bounds, bool) {
	if n < 0 {
		return Bounds{}, false
	}
	var found Bounds
	ok := false
	walkElements(text, func(idx int, b Bounds) bool {
		if idx == n {
			found, ok = b, true
			return false
		}
		return true
	})
	return found, ok
}

// Count returns the number of complete objects in the steps array.
func Count(text string) int {
	count := 0
	walkElements(text, func(int, Bounds) bool {
		count++
		return true
	})
	return count
}

// walkElements calls fn for each object at depth zero of the steps array,
// stopping when fn returns false, at the closing ']' or at the end of text.
func walkElements(text string, fn func(idx int, b Bounds) bool) {
	i, ok := arrayStart(text)
	if !ok {
		return
	}
	s := scanner{text: text, pos: i}
	depth, idx, start := 0, -1, -1
	for {
		c, ok := s.next()
		if !ok {
			return
		}
		switch c {
		case '{':
			if depth == 0 {
				idx++
				start = s.pos - 1
			}
			depth++
		case '[':
			depth++
		case '}':
			depth--
			if depth == 0 && start >= 0 {
				if !fn(idx, Bounds{Start: start, End: s.pos}) {
					return
				}
				start = -1
			}
			if depth < 0 {
				return
			}
		case ']':
			if depth == 0 {
				return
			}
			depth--
		}
	}
}

// arrayStart returns the offset just past the '[' that follows the first
// unquoted "steps" key.
func arrayStart(text string) (int, bool) {
	s := scanner{text: text}
	for s.pos < len(text) {
		if text[s.pos] == '"' && strings.HasPrefix(text[s.pos:], stepsKey) {
			j := skipSpace(text, s.pos+len(stepsKey))
			if j < len(text) && text[j] == ':' {
				j = skipSpace(text, j+1)
				if j < len(text) && text[j] == '[' {
					return j + 1, true
				}
			}
		}
		if _, ok := s.next(); !ok {
			break
		}
	}
	return 0, false
}

// scanner yields the bytes that lie outside JSON strings. A whole string,
// escapes included, is consumed in one call and reported as a 0 byte.
type scanner struct {
	text string
	pos  int
}

func (s *scanner) next() (byte, bool) {
	if s.pos >= len(s.text) {
		return 0, false
	}
	c := s.text[s.pos]
	s.pos++
	if c != '"' {
		return c, true
	}
	for s.pos < len(s.text) {
		switch s.text[s.pos] {
		case '\\':
			s.pos += 2
			continue
		case '"':
			s.pos++
			return 0, true
		}
		s.pos++
	}
	s.pos = len(s.text)
	return 0, true
}

func skipSpace(text string, i int) int {
	for i < len(text) && isSpace(text[i]) {
		i++
	}
	return i
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

// member is one key/value pair found directly inside an object.
type member struct {
	valueStart int
	valueEnd   int
}

// findMember looks up key among the members of the object spanning b.
// Only keys at the object's own depth are considered.
func findMember(text string, b Bounds, key string) (member, bool) {
	quoted := `"` + key + `"`
	s := scanner{text: text[:b.End], pos: b.Start + 1}
	depth := 1
	for s.pos < b.End {
		at := s.pos
		if depth == 1 && text[at] == '"' && strings.HasPrefix(text[at:b.End], quoted) {
			j := skipSpace(text, at+len(quoted))
			if j < b.End && text[j] == ':' {
				vs := skipSpace(text, j+1)
				return member{valueStart: vs, valueEnd: valueEnd(text[:b.End], vs)}, true
			}
		}
		c, ok := s.next()
		if !ok {
			break
		}
		switch c {
		case '{', '[':
			depth++
		case '}', ']':
			depth--
		}
	}
	return member{}, false
}

// valueEnd returns the end of the scalar or composite value starting at i.
func valueEnd(text string, i int) int {
	if i >= len(text) {
		return i
	}
	s := scanner{text: text, pos: i}
	switch text[i] {
	case '"':
		s.next()
		return s.pos
	case '{', '[':
		depth := 0
		for {
			c, ok := s.next()
			if !ok {
				return s.pos
			}
			switch c {
			case '{', '[':
				depth++
			case '}', ']':
				depth--
				if depth == 0 {
					return s.pos
				}
			}
		}
	}
	j := i
	for j < len(text) && !isSpace(text[j]) && text[j] != ',' && text[j] != '}' && text[j] != ']' {
		j++
	}
	return j
}

// Pass reports the literal value of the n-th step's "pass" key. A missing
// key or a non-true value reads as false. ok is false if the step is missing.
func Pass(text string, n int) (pass, ok bool) {
	b, found := FindBounds(text, n)
	if !found {
		return false, false
	}
	m, has := findMember(text, b, "pass")
	if !has {
		return false, true
	}
	return text[m.valueStart:m.valueEnd] == "true", true
}

// SetPass returns the edit that sets the n-th step's "pass" value, touching
// only that literal. When the key is absent it is appended to the object.
func SetPass(text string, n int, pass bool) (Edit, bool) {
	b, ok := FindBounds(text, n)
	if !ok {
		return Edit{}, false
	}
	lit := "false"
	if pass {
		lit = "true"
	}
	if m, has := findMember(text, b, "pass"); has {
		return Edit{Start: m.valueStart, End: m.valueEnd, Text: lit}, true
	}

	closing := b.End - 1
	last := closing - 1
	for last > b.Start && isSpace(text[last]) {
		last--
	}
	if last == b.Start {
		return Edit{Start: b.Start + 1, End: b.Start + 1, Text: `"pass": ` + lit}, true
	}
	return Edit{Start: last + 1, End: last + 1, Text: `, "pass": ` + lit}, true
}

// Title returns the top-level "title" string of the document.
func Title(text string) (string, bool) {
	start := skipSpace(text, 0)
	if start >= len(text) || text[start] != '{' {
		return "", false
	}
	end := len(text)
	if e := valueEnd(text, start); e > start {
		end = e
	}
	m, ok := findMember(text, Bounds{Start: start, End: end}, "title")
	if !ok || m.valueStart >= len(text) || text[m.valueStart] != '"' {
		return "", false
	}
	var title string
	if err := json.Unmarshal([]byte(text[m.valueStart:m.valueEnd]), &title); err != nil {
		return "", false
	}
	return title, true
}
