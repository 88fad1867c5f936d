// Package checklist derives the tabular checklist view from document text.
package checklist

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/starford/stepsheet/internal/jsonerr"
)

// Step is one row of the checklist. Fields holds every key of the step
// object except "pass".
type Step struct {
	Index   int            `json:"index"`
	Fields  map[string]any `json:"fields"`
	Pass    bool           `json:"pass"`
	Missing []string       `json:"missing,omitempty"`
}

// Checklist is the rendered form of a valid document.
type Checklist struct {
	Title          string   `json:"title"`
	RequiredFields []string `json:"requiredFields,omitempty"`
	CustomFields   []string `json:"customFields,omitempty"`
	Steps          []Step   `json:"steps"`
}

// Status is the result of evaluating a document: either a checklist, a
// parse error with an optional location, or a runtime (shape) error.
type Status struct {
	Valid     bool              `json:"valid"`
	Kind      jsonerr.Kind      `json:"kind,omitempty"`
	Message   string            `json:"message,omitempty"`
	Offset    *int              `json:"offset,omitempty"`
	Position  *jsonerr.Position `json:"position,omitempty"`
	Checklist *Checklist        `json:"checklist,omitempty"`
}

// Evaluate parses text and builds the checklist. Runtime errors are logged.
func Evaluate(text string, logger *slog.Logger) Status {
	if logger == nil {
		logger = slog.Default()
	}
	res := jsonerr.AttemptParse(text)
	if !res.OK {
		st := Status{Kind: res.Kind, Message: res.Message}
		if off, ok := jsonerr.Resolve(res, text); ok {
			pos := jsonerr.PositionAt(text, off)
			st.Offset, st.Position = &off, &pos
		}
		return st
	}
	cl, err := Build(res.Value)
	if err != nil {
		logger.Warn("checklist: render failed", slog.String("error", err.Error()))
		return Status{Kind: jsonerr.KindRuntime, Message: err.Error()}
	}
	return Status{Valid: true, Checklist: &cl}
}

// Build converts a parsed document into a checklist.
func Build(value any) (Checklist, error) {
	root, ok := value.(map[string]any)
	if !ok {
		return Checklist{}, fmt.Errorf("document must be an object, got %s", typeName(value))
	}
	var cl Checklist
	if v, ok := root["title"]; ok {
		s, ok := v.(string)
		if !ok {
			return Checklist{}, fmt.Errorf("title must be a string, got %s", typeName(v))
		}
		cl.Title = s
	}
	var err error
	if cl.RequiredFields, err = stringList(root, "requiredFields"); err != nil {
		return Checklist{}, err
	}
	if cl.CustomFields, err = stringList(root, "customFields"); err != nil {
		return Checklist{}, err
	}

	raw, ok := root["steps"]
	if !ok {
		cl.Steps = []Step{}
		return cl, nil
	}
	items, ok := raw.([]any)
	if !ok {
		return Checklist{}, fmt.Errorf("steps must be an array, got %s", typeName(raw))
	}
	cl.Steps = make([]Step, 0, len(items))
	for i, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			return Checklist{}, fmt.Errorf("step %d must be an object, got %s", i, typeName(item))
		}
		step := Step{Index: i, Fields: make(map[string]any, len(obj))}
		for k, v := range obj {
			if k == "pass" {
				b, ok := v.(bool)
				if v != nil && !ok {
					return Checklist{}, fmt.Errorf("step %d: pass must be a boolean, got %s", i, typeName(v))
				}
				step.Pass = b
				continue
			}
			step.Fields[k] = v
		}
		for _, f := range cl.RequiredFields {
			if v, ok := step.Fields[f]; !ok || v == nil || v == "" {
				step.Missing = append(step.Missing, f)
			}
		}
		cl.Steps = append(cl.Steps, step)
	}
	return cl, nil
}

// Columns returns the field names shown as table columns: required fields
// first, then custom fields, then any other keys in sorted order.
func (c Checklist) Columns() []string {
	seen := make(map[string]bool)
	var cols []string
	add := func(name string) {
		if !seen[name] {
			seen[name] = true
			cols = append(cols, name)
		}
	}
	for _, f := range c.RequiredFields {
		add(f)
	}
	for _, f := range c.CustomFields {
		add(f)
	}
	var rest []string
	for _, s := range c.Steps {
		for k := range s.Fields {
			if !seen[k] {
				rest = append(rest, k)
				seen[k] = true
			}
		}
	}
	sort.Strings(rest)
	return append(cols, rest...)
}

func stringList(root map[string]any, key string) ([]string, error) {
	raw, ok := root[key]
	if !ok || raw == nil {
		return nil, nil
	}
	items, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("%s must be an array of strings", key)
	}
	out := make([]string, 0, len(items))
	for _, it := range items {
		s, ok := it.(string)
		if !ok {
			return nil, fmt.Errorf("%s must be an array of strings", key)
		}
		out = append(out, s)
	}
	return out, nil
}

func typeName(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case bool:
		return "boolean"
	case string:
		return "string"
	case []any:
		return "array"
	case map[string]any:
		return "object"
	default:
		return "number"
	}
}
