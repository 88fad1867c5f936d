// Package surface provides an in-memory editing surface: the server-side
// mirror of a client text area.
package surface

import (
	"github.com/starford/stepsheet/internal/caret"
	"github.com/starford/stepsheet/internal/textpos"
)

// Buffer holds a text value, one selection and a scroll position.
// It is not safe for concurrent use; callers serialise access.
type Buffer struct {
	value      string
	start, end int
	dir        caret.Direction
	scrollTop  int
	scrollLeft int
	focused    bool
}

var _ caret.Surface = (*Buffer)(nil)

// NewBuffer returns a Buffer holding text with the caret at offset 0.
func NewBuffer(text string) *Buffer {
	return &Buffer{value: text, dir: caret.DirectionNone}
}

// Value returns the current text.
func (b *Buffer) Value() string { return b.value }

// SetValue replaces the text and clamps the selection into it.
func (b *Buffer) SetValue(text string) {
	b.value = text
	b.start = textpos.SnapRune(text, b.start)
	b.end = textpos.SnapRune(text, b.end)
	if b.end < b.start {
		b.end = b.start
	}
}

// Selection returns the selection range and direction.
func (b *Buffer) Selection() (int, int, caret.Direction) { return b.start, b.end, b.dir }

// SetSelectionRange sets the selection, clamping both ends and ordering them.
func (b *Buffer) SetSelectionRange(start, end int, dir caret.Direction) {
	start = textpos.SnapRune(b.value, start)
	end = textpos.SnapRune(b.value, end)
	if end < start {
		start, end = end, start
	}
	if dir != caret.DirectionForward && dir != caret.DirectionBackward {
		dir = caret.DirectionNone
	}
	b.start, b.end, b.dir = start, end, dir
}

// Scroll returns the scroll offsets.
func (b *Buffer) Scroll() (int, int) { return b.scrollTop, b.scrollLeft }

// SetScroll sets the scroll offsets; negative values become zero.
func (b *Buffer) SetScroll(top, left int) {
	b.scrollTop, b.scrollLeft = max(top, 0), max(left, 0)
}

// Focus marks the surface as focused.
func (b *Buffer) Focus() { b.focused = true }

// Focused reports whether Focus has been called.
func (b *Buffer) Focused() bool { return b.focused }
