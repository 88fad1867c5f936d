package caret

// Direction is the selection direction reported by an editing surface.
type Direction string

const (
	DirectionNone     Direction = "none"
	DirectionForward  Direction = "forward"
	DirectionBackward Direction = "backward"
)

// Surface is the editing-surface capability set the engine consumes: a text
// value, one selection range, and a scroll position.
type Surface interface {
	Value() string
	Selection() (start, end int, dir Direction)
	SetSelectionRange(start, end int, dir Direction)
	Scroll() (top, left int)
	SetScroll(top, left int)
	Focus()
}

// Snapshot is a captured selection with its scroll position.
type Snapshot struct {
	Start      Anchor    `json:"start"`
	End        Anchor    `json:"end"`
	Direction  Direction `json:"direction"`
	ScrollTop  int       `json:"scrollTop"`
	ScrollLeft int       `json:"scrollLeft"`
}

// Capture encodes the current selection of s.
func Capture(s Surface) Snapshot {
	text := s.Value()
	start, end, dir := s.Selection()
	top, left := s.Scroll()
	return Snapshot{
		Start:      Encode(text, start),
		End:        Encode(text, end),
		Direction:  dir,
		ScrollTop:  top,
		ScrollLeft: left,
	}
}

// Apply decodes snap against the current text of s and restores the
// selection, scroll position and focus.
func Apply(s Surface, snap Snapshot) {
	text := s.Value()
	start := Decode(text, snap.Start)
	end := Decode(text, snap.End)
	if end < start {
		start, end = end, start
	}
	dir := snap.Direction
	if dir == "" {
		dir = DirectionNone
	}
	s.SetSelectionRange(start, end, dir)
	s.SetScroll(snap.ScrollTop, snap.ScrollLeft)
	s.Focus()
}

// SameSelection reports whether a and b describe the same selection range
// and direction in the text they were captured from.
func SameSelection(a, b Snapshot) bool {
	return a.Start.AbsoluteOffset == b.Start.AbsoluteOffset &&
		a.End.AbsoluteOffset == b.End.AbsoluteOffset &&
		a.Direction == b.Direction
}
