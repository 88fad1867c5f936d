package steps

import (
	"strings"
	"testing"
)

func span(t *testing.T, text, sub string) Bounds {
	t.Helper()
	i := strings.Index(text, sub)
	if i < 0 {
		t.Fatalf("%q not in %q", sub, text)
	}
	return Bounds{Start: i, End: i + len(sub)}
}

func TestFindBounds(t *testing.T) {
	tests := []struct {
		name string
		text string
		n    int
		want string
	}{
		{name: "second element", text: `{"steps":[{"a":1},{"b":2}]}`, n: 1, want: `{"b":2}`},
		{name: "first element", text: `{"steps":[{"a":1},{"b":2}]}`, n: 0, want: `{"a":1}`},
		{name: "braces in strings", text: `{"steps":[{"a":"}{"},{"b":"\"}"}]}`, n: 1, want: `{"b":"\"}"}`},
		{name: "nested arrays", text: `{"steps":[{"a":[{"x":1}]},{"b":2}]}`, n: 1, want: `{"b":2}`},
		{name: "whitespace around key", text: "{\n  \"steps\" :\n  [\n    {\"a\": 1}\n  ]\n}", n: 0, want: `{"a": 1}`},
		{name: "key quoted inside a value", text: `{"note":"\"steps\":[{}]","steps":[{"x":1}]}`, n: 0, want: `{"x":1}`},
		{name: "invalid after target", text: `{"steps":[{"a":1},{"b":2}, oops`, n: 1, want: `{"b":2}`},
		{name: "non-object elements skipped", text: `{"steps":[1,"s",{"a":1}]}`, n: 0, want: `{"a":1}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := FindBounds(tt.text, tt.n)
			if !ok {
				t.Fatal("FindBounds returned false")
			}
			if want := span(t, tt.text, tt.want); got != want {
				t.Errorf("FindBounds = %+v (%q), want %+v", got, tt.text[got.Start:got.End], want)
			}
		})
	}
}

func TestFindBounds_NotFound(t *testing.T) {
	tests := []struct {
		name string
		text string
		n    int
	}{
		{name: "no key", text: `{"items":[{"a":1}]}`, n: 0},
		{name: "no array", text: `{"steps":{"a":1}}`, n: 0},
		{name: "index past end", text: `{"steps":[{"a":1}]}`, n: 1},
		{name: "negative index", text: `{"steps":[{"a":1}]}`, n: -1},
		{name: "truncated element", text: `{"steps":[{"a":1},{"b":`, n: 1},
		{name: "stops at closing bracket", text: `{"steps":[{"a":1}],"other":[{"z":1}]}`, n: 1},
		{name: "empty", text: "", n: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if b, ok := FindBounds(tt.text, tt.n); ok {
				t.Errorf("FindBounds = %+v, want not found", b)
			}
		})
	}
}

func TestCount(t *testing.T) {
	if got := Count(`{"steps":[{"a":1},{"b":{"c":2}},{}]}`); got != 3 {
		t.Errorf("Count = %d, want 3", got)
	}
	if got := Count(`{"steps":[]}`); got != 0 {
		t.Errorf("Count(empty) = %d, want 0", got)
	}
}

func TestSetPass(t *testing.T) {
	tests := []struct {
		name string
		text string
		n    int
		pass bool
		want string
	}{
		{
			name: "flip existing value",
			text: `{"steps":[{"name":"s","pass": false}]}`,
			pass: true,
			want: `{"steps":[{"name":"s","pass": true}]}`,
		},
		{
			name: "second step only",
			text: `{"steps":[{"pass":true},{"pass":true}]}`,
			n:    1,
			want: `{"steps":[{"pass":true},{"pass":false}]}`,
		},
		{
			name: "append when absent",
			text: `{"steps":[{"a":1 }]}`,
			pass: true,
			want: `{"steps":[{"a":1, "pass": true }]}`,
		},
		{
			name: "empty object",
			text: `{"steps":[{}]}`,
			pass: true,
			want: `{"steps":[{"pass": true}]}`,
		},
		{
			name: "nested pass key is not the step's",
			text: `{"steps":[{"meta":{"pass":false}}]}`,
			pass: true,
			want: `{"steps":[{"meta":{"pass":false}, "pass": true}]}`,
		},
		{
			name: "pass as a string value is not a key",
			text: `{"steps":[{"label":"pass","pass":null}]}`,
			pass: true,
			want: `{"steps":[{"label":"pass","pass":true}]}`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			edit, ok := SetPass(tt.text, tt.n, tt.pass)
			if !ok {
				t.Fatal("SetPass returned false")
			}
			if got := edit.Apply(tt.text); got != tt.want {
				t.Errorf("got  %s\nwant %s", got, tt.want)
			}
		})
	}
}

func TestPass(t *testing.T) {
	text := `{"steps":[{"pass":true},{"pass":false},{}]}`
	for i, want := range []bool{true, false, false} {
		got, ok := Pass(text, i)
		if !ok || got != want {
			t.Errorf("Pass(%d) = %v, %v; want %v", i, got, ok, want)
		}
	}
	if _, ok := Pass(text, 3); ok {
		t.Error("Pass on a missing step should report false")
	}
}

func TestTitle(t *testing.T) {
	tests := []struct {
		text   string
		want   string
		wantOK bool
	}{
		{text: `{"steps":[{"title":"inner"}],"title":"Login A"}`, want: "Login A", wantOK: true},
		{text: `{"title": "Checkout", "steps": [`, want: "Checkout", wantOK: true},
		{text: `{"title": 3}`, wantOK: false},
		{text: `[{"title":"x"}]`, wantOK: false},
		{text: ``, wantOK: false},
	}
	for _, tt := range tests {
		got, ok := Title(tt.text)
		if ok != tt.wantOK || got != tt.want {
			t.Errorf("Title(%q) = %q, %v; want %q, %v", tt.text, got, ok, tt.want, tt.wantOK)
		}
	}
}
