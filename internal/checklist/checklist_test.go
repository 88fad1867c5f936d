package checklist

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"

	"github.com/starford/stepsheet/internal/jsonerr"
)

func TestEvaluate_Valid(t *testing.T) {
	text := `{
  "title": "Login",
  "requiredFields": ["action", "expected"],
  "steps": [
    {"action": "open page", "expected": "form shown", "pass": true},
    {"action": "submit", "pass": false}
  ]
}`
	st := Evaluate(text, nil)
	if !st.Valid || st.Checklist == nil {
		t.Fatalf("status = %+v", st)
	}
	cl := st.Checklist
	if cl.Title != "Login" || len(cl.Steps) != 2 {
		t.Fatalf("checklist = %+v", cl)
	}
	if !cl.Steps[0].Pass || cl.Steps[1].Pass {
		t.Errorf("pass flags = %v, %v", cl.Steps[0].Pass, cl.Steps[1].Pass)
	}
	if _, ok := cl.Steps[0].Fields["pass"]; ok {
		t.Error("pass should not be kept among fields")
	}
	if len(cl.Steps[1].Missing) != 1 || cl.Steps[1].Missing[0] != "expected" {
		t.Errorf("missing = %v", cl.Steps[1].Missing)
	}
	cols := cl.Columns()
	if strings.Join(cols, ",") != "action,expected" {
		t.Errorf("columns = %v", cols)
	}
}

func TestEvaluate_SyntaxErrorLocated(t *testing.T) {
	text := "{\n  \"a\": 1,\n}"
	st := Evaluate(text, nil)
	if st.Valid || st.Kind != jsonerr.KindSyntax {
		t.Fatalf("status = %+v", st)
	}
	if st.Offset == nil || st.Position == nil {
		t.Fatal("expected a location")
	}
	if st.Position.Line != 3 || st.Position.Column != 1 {
		t.Errorf("position = %+v, want 3:1", *st.Position)
	}
}

func TestEvaluate_RuntimeErrorIsLogged(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	st := Evaluate(`{"steps":[{"a":1}, 2]}`, logger)
	if st.Valid || st.Kind != jsonerr.KindRuntime {
		t.Fatalf("status = %+v", st)
	}
	if !strings.Contains(st.Message, "step 1 must be an object") {
		t.Errorf("message = %q", st.Message)
	}
	if !strings.Contains(buf.String(), "render failed") {
		t.Errorf("log output = %q", buf.String())
	}
}

func TestBuild_ShapeErrors(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
	}{
		{name: "root array", text: `[]`, want: "document must be an object"},
		{name: "title number", text: `{"title":1}`, want: "title must be a string"},
		{name: "steps object", text: `{"steps":{}}`, want: "steps must be an array"},
		{name: "pass string", text: `{"steps":[{"pass":"yes"}]}`, want: "pass must be a boolean"},
		{name: "required fields", text: `{"requiredFields":[1]}`, want: "requiredFields must be an array of strings"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := jsonerr.AttemptParse(tt.text)
			if !res.OK {
				t.Fatalf("parse failed: %s", res.Message)
			}
			_, err := Build(res.Value)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Build error = %v, want %q", err, tt.want)
			}
		})
	}
}

func TestBuild_NoSteps(t *testing.T) {
	cl, err := Build(map[string]any{"title": "t"})
	if err != nil {
		t.Fatal(err)
	}
	if cl.Steps == nil || len(cl.Steps) != 0 {
		t.Errorf("steps = %#v, want empty slice", cl.Steps)
	}
}
