package surface

import (
	"testing"

	"github.com/starford/stepsheet/internal/caret"
)

func TestSetValueClampsSelection(t *testing.T) {
	b := NewBuffer("hello world")
	b.SetSelectionRange(6, 11, caret.DirectionForward)
	b.SetValue("hi")
	start, end, dir := b.Selection()
	if start != 2 || end != 2 || dir != caret.DirectionForward {
		t.Errorf("selection = %d,%d,%s", start, end, dir)
	}
}

func TestSetSelectionRangeOrdersEnds(t *testing.T) {
	b := NewBuffer("abcdef")
	b.SetSelectionRange(5, 1, "")
	start, end, dir := b.Selection()
	if start != 1 || end != 5 || dir != caret.DirectionNone {
		t.Errorf("selection = %d,%d,%s", start, end, dir)
	}
}

func TestSetSelectionRangeUnknownDirection(t *testing.T) {
	b := NewBuffer("abcdef")
	for _, d := range []caret.Direction{"sideways", "Forward", caret.DirectionBackward} {
		b.SetSelectionRange(1, 3, d)
		_, _, dir := b.Selection()
		want := caret.DirectionNone
		if d == caret.DirectionBackward {
			want = caret.DirectionBackward
		}
		if dir != want {
			t.Errorf("direction %q stored as %q, want %q", d, dir, want)
		}
	}
}

func TestSetScrollNonNegative(t *testing.T) {
	b := NewBuffer("")
	b.SetScroll(-3, 7)
	top, left := b.Scroll()
	if top != 0 || left != 7 {
		t.Errorf("scroll = %d,%d", top, left)
	}
}
