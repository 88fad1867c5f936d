// Package exchange exports workspace files as a portable package and imports
// such packages back, all or nothing.
package exchange

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	jsonschema "github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/starford/stepsheet/internal/apperr"
	"github.com/starford/stepsheet/internal/jsonerr"
	"github.com/starford/stepsheet/internal/workspace"
)

// Package format identifiers.
const (
	Format  = "stepsheet-package"
	Version = 1
)

// DefaultFolder receives imported files that name no folder.
const DefaultFolder = "Imported"

// Mode selects what Export includes.
type Mode string

const (
	ModeWorkspace Mode = "workspace"
	ModeFolder    Mode = "folder"
	ModeFile      Mode = "file"
)

// Package is the export envelope.
type Package struct {
	Format         string        `json:"format"`
	Version        int           `json:"version"`
	ExportedAt     time.Time     `json:"exportedAt"`
	ExportMode     Mode          `json:"exportMode"`
	RequiredFields []string      `json:"requiredFields"`
	CustomFields   []string      `json:"customFields"`
	Files          []PackageFile `json:"files"`
}

// PackageFile carries one document. Parseable documents travel as Data,
// anything else verbatim as RawContent.
type PackageFile struct {
	Name       string          `json:"name"`
	Folder     string          `json:"folder"`
	Data       json.RawMessage `json:"data,omitempty"`
	RawContent *string         `json:"rawContent,omitempty"`
}

// Validate checks the semantic rules the schema cannot express.
func (p *Package) Validate() error {
	return validation.ValidateStruct(p,
		validation.Field(&p.Format, validation.Required, validation.In(Format).Error("unsupported package format")),
		validation.Field(&p.Version, validation.Required, validation.Min(1), validation.Max(Version)),
		validation.Field(&p.ExportMode, validation.In(ModeWorkspace, ModeFolder, ModeFile)),
		validation.Field(&p.Files, validation.Required),
	)
}

// Validate checks one file entry.
func (f PackageFile) Validate() error {
	return validation.ValidateStruct(&f,
		validation.Field(&f.Name, validation.Required, validation.Length(1, 255)),
		validation.Field(&f.Data, validation.When(f.RawContent == nil,
			validation.Required.Error("data or rawContent is required"))),
	)
}

// Export builds a package from ws. For ModeFolder and ModeFile, id names the
// folder or file.
func Export(ws workspace.Workspace, mode Mode, id string, now time.Time) (Package, error) {
	var files []workspace.File
	switch mode {
	case ModeWorkspace, "":
		mode = ModeWorkspace
		files = ws.Files
	case ModeFolder:
		if _, ok := ws.Folder(id); !ok {
			return Package{}, fmt.Errorf("exchange: folder %s: %w", id, apperr.ErrNotFound)
		}
		files = ws.FilesIn(id)
	case ModeFile:
		f, ok := ws.File(id)
		if !ok {
			return Package{}, fmt.Errorf("exchange: file %s: %w", id, apperr.ErrNotFound)
		}
		files = []workspace.File{f}
	default:
		return Package{}, fmt.Errorf("exchange: unknown mode %q: %w", mode, apperr.ErrInvalidInput)
	}

	pkg := Package{
		Format:     Format,
		Version:    Version,
		ExportedAt: now.UTC(),
		ExportMode: mode,
		Files:      make([]PackageFile, 0, len(files)),
	}
	required, custom := fieldSet{}, fieldSet{}
	for _, f := range files {
		folder, _ := ws.Folder(f.FolderID)
		pf := PackageFile{Name: f.Name, Folder: folder.Name}
		res := jsonerr.AttemptParse(f.Content)
		var compact bytes.Buffer
		if res.OK && json.Compact(&compact, []byte(f.Content)) == nil {
			pf.Data = json.RawMessage(compact.Bytes())
			if root, ok := res.Value.(map[string]any); ok {
				required.addAll(root["requiredFields"])
				custom.addAll(root["customFields"])
			}
		} else {
			raw := f.Content
			pf.RawContent = &raw
		}
		pkg.Files = append(pkg.Files, pf)
	}
	pkg.RequiredFields = required.sorted()
	pkg.CustomFields = custom.sorted()
	return pkg, nil
}

//go:embed package.schema.json
var schemaJSON string

var compileSchema = sync.OnceValues(func() (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("package.schema.json", strings.NewReader(schemaJSON)); err != nil {
		return nil, err
	}
	return compiler.Compile("package.schema.json")
})

// Problem is one reason a payload was rejected.
type Problem struct {
	Path    string `json:"path"`
	Message string `json:"message"`
}

// InvalidError lists why a payload was rejected. It matches
// apperr.ErrInvalidImport.
type InvalidError struct {
	Problems []Problem
}

func (e *InvalidError) Error() string {
	parts := make([]string, 0, len(e.Problems))
	for _, p := range e.Problems {
		if p.Path == "" {
			parts = append(parts, p.Message)
			continue
		}
		parts = append(parts, p.Path+": "+p.Message)
	}
	return "invalid import: " + strings.Join(parts, "; ")
}

func (e *InvalidError) Unwrap() error { return apperr.ErrInvalidImport }

func invalid(path, format string, args ...any) *InvalidError {
	return &InvalidError{Problems: []Problem{{Path: path, Message: fmt.Sprintf(format, args...)}}}
}

// Decode parses and validates an import payload.
func Decode(payload []byte) (Package, error) {
	res := jsonerr.AttemptParse(string(payload))
	if !res.OK {
		return Package{}, invalid("", "payload is not valid JSON: %s", res.Message)
	}
	schema, err := compileSchema()
	if err != nil {
		return Package{}, fmt.Errorf("exchange: compile schema: %w", err)
	}
	if err := schema.Validate(res.Value); err != nil {
		return Package{}, schemaProblems(err)
	}

	var pkg Package
	if err := json.Unmarshal(payload, &pkg); err != nil {
		return Package{}, invalid("", "%s", err.Error())
	}
	for i := range pkg.Files {
		if string(pkg.Files[i].Data) == "null" {
			pkg.Files[i].Data = nil
		}
	}
	if err := pkg.Validate(); err != nil {
		return Package{}, ruleProblems(err)
	}
	return pkg, nil
}

// Import decodes payload and adds its files to the workspace. Nothing is
// applied when any part of the payload is rejected.
func Import(tr *workspace.Tracker, payload []byte) ([]workspace.File, error) {
	pkg, err := Decode(payload)
	if err != nil {
		return nil, err
	}
	var groups []workspace.ImportGroup
	index := make(map[string]int)
	for _, pf := range pkg.Files {
		folder := strings.TrimSpace(pf.Folder)
		if folder == "" {
			folder = DefaultFolder
		}
		content, err := fileContent(pf)
		if err != nil {
			return nil, invalid(pf.Name, "%s", err.Error())
		}
		i, ok := index[folder]
		if !ok {
			i = len(groups)
			index[folder] = i
			groups = append(groups, workspace.ImportGroup{Folder: folder})
		}
		groups[i].Files = append(groups[i].Files, workspace.NewFile{Name: pf.Name, Content: content})
	}
	files, err := tr.ImportFiles(groups...)
	if err != nil {
		if errors.Is(err, apperr.ErrAlreadyExists) || errors.Is(err, apperr.ErrInvalidInput) {
			return nil, invalid("", "%s", err.Error())
		}
		return nil, fmt.Errorf("exchange: import: %w", err)
	}
	return files, nil
}

func fileContent(pf PackageFile) (string, error) {
	if len(pf.Data) == 0 {
		return *pf.RawContent, nil
	}
	var out bytes.Buffer
	if err := json.Indent(&out, pf.Data, "", "  "); err != nil {
		return "", err
	}
	return out.String(), nil
}

func schemaProblems(err error) *InvalidError {
	var ve *jsonschema.ValidationError
	if !errors.As(err, &ve) {
		return invalid("", "%s", err.Error())
	}
	out := &InvalidError{}
	collectSchemaProblems(out, ve)
	if len(out.Problems) == 0 {
		out.Problems = append(out.Problems, Problem{Message: ve.Message})
	}
	return out
}

func collectSchemaProblems(out *InvalidError, ve *jsonschema.ValidationError) {
	if len(ve.Causes) == 0 {
		out.Problems = append(out.Problems, Problem{
			Path:    pointerToPath(ve.InstanceLocation),
			Message: ve.Message,
		})
		return
	}
	for _, cause := range ve.Causes {
		collectSchemaProblems(out, cause)
	}
}

// pointerToPath turns "/files/0/name" into "files[0].name".
func pointerToPath(ptr string) string {
	ptr = strings.TrimPrefix(strings.TrimPrefix(ptr, "#"), "/")
	if ptr == "" {
		return ""
	}
	var b strings.Builder
	for i, seg := range strings.Split(ptr, "/") {
		if seg != "" && strings.Trim(seg, "0123456789") == "" {
			b.WriteString("[" + seg + "]")
			continue
		}
		if i > 0 {
			b.WriteByte('.')
		}
		b.WriteString(seg)
	}
	return b.String()
}

func ruleProblems(err error) *InvalidError {
	out := &InvalidError{}
	flattenRules(out, "", err)
	return out
}

func flattenRules(out *InvalidError, prefix string, err error) {
	var errs validation.Errors
	if !errors.As(err, &errs) {
		out.Problems = append(out.Problems, Problem{Path: prefix, Message: err.Error()})
		return
	}
	keys := make([]string, 0, len(errs))
	for k := range errs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		path := k
		switch {
		case prefix == "":
		case strings.Trim(k, "0123456789") == "":
			path = prefix + "[" + k + "]"
		default:
			path = prefix + "." + k
		}
		flattenRules(out, path, errs[k])
	}
}

type fieldSet map[string]bool

func (s fieldSet) addAll(v any) {
	items, _ := v.([]any)
	for _, it := range items {
		if name, ok := it.(string); ok {
			s[name] = true
		}
	}
}

func (s fieldSet) sorted() []string {
	out := make([]string, 0, len(s))
	for k := range s {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
