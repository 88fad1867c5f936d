package mcpserver

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/starford/stepsheet/internal/docservice"
	"github.com/starford/stepsheet/internal/testutil"
)

const doc = `{"title":"Login","steps":[{"action":"open page","pass":false},{"action":"submit","pass":false}]}`

func testServer(t *testing.T) (*Server, *docservice.Service) {
	t.Helper()

	tr, mgr, _ := testutil.TestSessions(t, nil)
	svc := docservice.NewService(tr, mgr, nil)
	return New(svc, "test"), svc
}

func callTool(t *testing.T, srv *Server, name string, args map[string]interface{}) *mcp.CallToolResult {
	t.Helper()
	ctx := context.Background()
	req := mcp.CallToolRequest{}
	req.Method = "tools/call"
	req.Params.Name = name
	req.Params.Arguments = args

	handlers := map[string]func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error){
		"list_files":             srv.listFiles,
		"read_file":              srv.readFile,
		"create_file":            srv.createFile,
		"update_file":            srv.updateFile,
		"locate_json_error":      srv.locateJSONError,
		"find_step":              srv.findStep,
		"toggle_pass":            srv.togglePass,
		"search_files":           srv.searchFiles,
		"replace_all":            srv.replaceAll,
		"export_workspace":       srv.exportWorkspace,
		"import_package":         srv.importPackage,
		"get_checklist_contract": srv.getChecklistContract,
	}
	h, ok := handlers[name]
	if !ok {
		t.Fatalf("unknown tool: %s", name)
	}
	result, err := h(ctx, req)
	if err != nil {
		t.Fatalf("tool %s error: %v", name, err)
	}
	return result
}

func resultText(r *mcp.CallToolResult) string {
	if len(r.Content) > 0 {
		if tc, ok := r.Content[0].(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

func createDoc(t *testing.T, srv *Server) string {
	t.Helper()
	r := callTool(t, srv, "create_file", map[string]interface{}{
		"folder":  "Smoke",
		"name":    "login.json",
		"content": doc,
	})
	if r.IsError {
		t.Fatalf("create: %s", resultText(r))
	}
	id, ok := strings.CutPrefix(resultText(r), "created: ")
	if !ok {
		t.Fatalf("create result = %q", resultText(r))
	}
	return id
}

func TestCreateAndReadFile(t *testing.T) {
	srv, _ := testServer(t)
	id := createDoc(t, srv)

	r := callTool(t, srv, "read_file", map[string]interface{}{"id": id})
	if text := resultText(r); text != doc {
		t.Errorf("read result = %q", text)
	}

	r = callTool(t, srv, "create_file", map[string]interface{}{
		"folder":  "Smoke",
		"name":    "login.json",
		"content": "{}",
	})
	if !r.IsError {
		t.Error("expected error for duplicate name")
	}
}

func TestListFiles(t *testing.T) {
	srv, _ := testServer(t)

	r := callTool(t, srv, "list_files", map[string]interface{}{})
	if text := resultText(r); text != "no files" {
		t.Errorf("empty list = %q", text)
	}

	id := createDoc(t, srv)
	r = callTool(t, srv, "list_files", map[string]interface{}{})
	text := resultText(r)
	if !strings.HasPrefix(text, id+"\tSmoke/login.json\tLogin\t") {
		t.Errorf("list = %q", text)
	}
}

func TestReadFileMissing(t *testing.T) {
	srv, _ := testServer(t)
	r := callTool(t, srv, "read_file", map[string]interface{}{"id": "nope"})
	if !r.IsError {
		t.Error("expected error for missing file")
	}
	r = callTool(t, srv, "read_file", map[string]interface{}{})
	if !r.IsError {
		t.Error("expected error for missing id argument")
	}
}

func TestUpdateFile_IfMatch(t *testing.T) {
	srv, svc := testServer(t)
	id := createDoc(t, srv)

	r := callTool(t, srv, "update_file", map[string]interface{}{
		"id":       id,
		"content":  "{}",
		"if_match": "stale",
	})
	if !r.IsError {
		t.Error("expected checksum mismatch")
	}

	r = callTool(t, srv, "update_file", map[string]interface{}{"id": id, "content": "{}"})
	if r.IsError {
		t.Fatalf("update: %s", resultText(r))
	}
	f, err := svc.GetFile(context.Background(), id)
	if err != nil {
		t.Fatal(err)
	}
	if f.Content != "{}" {
		t.Errorf("content = %q", f.Content)
	}
}

func TestLocateJSONError(t *testing.T) {
	srv, _ := testServer(t)

	r := callTool(t, srv, "locate_json_error", map[string]interface{}{"text": "{\n  \"a\": 1,\n}"})
	var got locateResult
	if err := json.Unmarshal([]byte(resultText(r)), &got); err != nil {
		t.Fatalf("decode: %v (%s)", err, resultText(r))
	}
	if got.Valid || got.Offset == nil {
		t.Fatalf("result = %+v", got)
	}
	if got.Snippet == "" || !strings.Contains(got.Snippet, "^") {
		t.Errorf("snippet = %q", got.Snippet)
	}

	r = callTool(t, srv, "locate_json_error", map[string]interface{}{"text": doc})
	if !strings.Contains(resultText(r), `"valid": true`) {
		t.Errorf("valid result = %s", resultText(r))
	}
}

func TestFindStepAndTogglePass(t *testing.T) {
	srv, svc := testServer(t)
	id := createDoc(t, srv)

	r := callTool(t, srv, "find_step", map[string]interface{}{"id": id, "index": float64(1)})
	if !strings.Contains(resultText(r), `"text": "{\"action\":\"submit\",\"pass\":false}"`) {
		t.Errorf("find_step = %s", resultText(r))
	}

	r = callTool(t, srv, "find_step", map[string]interface{}{"id": id, "index": float64(5)})
	if !r.IsError {
		t.Error("expected error for out-of-range step")
	}

	r = callTool(t, srv, "toggle_pass", map[string]interface{}{"id": id, "index": float64(0)})
	if text := resultText(r); text != "step 0 pass: true" {
		t.Errorf("toggle = %q", text)
	}
	st, err := svc.Status(context.Background(), id)
	if err != nil {
		t.Fatal(err)
	}
	if !st.Checklist.Steps[0].Pass {
		t.Error("step 0 should pass")
	}
}

func TestSearchAndReplaceAll(t *testing.T) {
	srv, _ := testServer(t)
	id := createDoc(t, srv)

	r := callTool(t, srv, "search_files", map[string]interface{}{"query": "nothing here"})
	if text := resultText(r); text != "no matches" {
		t.Errorf("search = %q", text)
	}
	r = callTool(t, srv, "search_files", map[string]interface{}{"query": "submit"})
	if !strings.Contains(resultText(r), id) {
		t.Errorf("search = %s", resultText(r))
	}

	r = callTool(t, srv, "replace_all", map[string]interface{}{
		"id":          id,
		"query":       "false",
		"replacement": "true",
	})
	if text := resultText(r); text != "replaced: 2" {
		t.Errorf("replace_all = %q", text)
	}
}

func TestExportImport(t *testing.T) {
	srv, _ := testServer(t)
	createDoc(t, srv)

	r := callTool(t, srv, "export_workspace", map[string]interface{}{})
	if r.IsError {
		t.Fatalf("export: %s", resultText(r))
	}
	pkg := resultText(r)

	r = callTool(t, srv, "import_package", map[string]interface{}{"package": pkg})
	if !r.IsError {
		t.Error("expected conflict importing into the same folder")
	}

	r = callTool(t, srv, "import_package", map[string]interface{}{"package": "[]"})
	if !r.IsError {
		t.Error("expected error for invalid package")
	}

	r = callTool(t, srv, "export_workspace", map[string]interface{}{"mode": "file"})
	if !r.IsError {
		t.Error("expected error for file mode without id")
	}
}

func TestGetChecklistContract(t *testing.T) {
	srv, _ := testServer(t)
	r := callTool(t, srv, "get_checklist_contract", map[string]interface{}{})
	if resultText(r) != ChecklistFormatContract {
		t.Error("contract text mismatch")
	}

	res, err := srv.readContractResource(context.Background(), mcp.ReadResourceRequest{})
	if err != nil {
		t.Fatal(err)
	}
	tc, ok := res[0].(mcp.TextResourceContents)
	if !ok || tc.URI != ContractURI {
		t.Errorf("resource = %+v", res)
	}
}
