// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes stepsheet tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/stepsheet/internal/checklist"
	"github.com/starford/stepsheet/internal/docservice"
	"github.com/starford/stepsheet/internal/exchange"
	"github.com/starford/stepsheet/internal/jsonerr"
	"github.com/starford/stepsheet/internal/workspace"
)

// ContractURI is the resource URI of the checklist format contract.
const ContractURI = "stepsheet://checklist-format"

// Server wraps the MCP server with stepsheet tools.
type Server struct {
	mcp *server.MCPServer
	svc *docservice.Service
}

// New creates a new MCP server with all stepsheet tools registered.
func New(svc *docservice.Service, version string) *Server {
	s := &Server{svc: svc}

	s.mcp = server.NewMCPServer(
		"stepsheet",
		version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("list_files",
		mcp.WithDescription("List checklist files as id, folder/name and title, one per line."),
		mcp.WithString("folder_id", mcp.Description("Optional folder id to list (empty for all)")),
	), s.listFiles)

	s.mcp.AddTool(mcp.NewTool("read_file",
		mcp.WithDescription("Read the raw JSON text of a checklist file."),
		mcp.WithString("id", mcp.Required(), mcp.Description("File id")),
	), s.readFile)

	s.mcp.AddTool(mcp.NewTool("create_file",
		mcp.WithDescription("Create a checklist file in a folder, creating the folder when needed. "+
			"Content MUST follow the checklist format contract. Read it first via "+
			"the get_checklist_contract tool or the "+ContractURI+" resource."),
		mcp.WithString("folder", mcp.Required(), mcp.Description("Folder name")),
		mcp.WithString("name", mcp.Required(), mcp.Description("File name, e.g. login.json")),
		mcp.WithString("content", mcp.Required(), mcp.Description("Checklist JSON")),
	), s.createFile)

	s.mcp.AddTool(mcp.NewTool("update_file",
		mcp.WithDescription("Replace the content of a checklist file."),
		mcp.WithString("id", mcp.Required(), mcp.Description("File id")),
		mcp.WithString("content", mcp.Required(), mcp.Description("New checklist JSON")),
		mcp.WithString("if_match", mcp.Description("Checksum from list_files; the update fails if the file changed since")),
	), s.updateFile)

	s.mcp.AddTool(mcp.NewTool("locate_json_error",
		mcp.WithDescription("Parse JSON text and report the checklist it describes or the location of its syntax error."),
		mcp.WithString("text", mcp.Required(), mcp.Description("JSON text to check")),
	), s.locateJSONError)

	s.mcp.AddTool(mcp.NewTool("find_step",
		mcp.WithDescription("Return the exact text and byte span of one step of a checklist file."),
		mcp.WithString("id", mcp.Required(), mcp.Description("File id")),
		mcp.WithNumber("index", mcp.Required(), mcp.Description("Zero-based step index")),
	), s.findStep)

	s.mcp.AddTool(mcp.NewTool("toggle_pass",
		mcp.WithDescription("Flip the pass flag of one step without reformatting the file."),
		mcp.WithString("id", mcp.Required(), mcp.Description("File id")),
		mcp.WithNumber("index", mcp.Required(), mcp.Description("Zero-based step index")),
	), s.togglePass)

	s.mcp.AddTool(mcp.NewTool("search_files",
		mcp.WithDescription("Find a literal, case-sensitive string across all files."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Text to find")),
	), s.searchFiles)

	s.mcp.AddTool(mcp.NewTool("replace_all",
		mcp.WithDescription("Replace every occurrence of a literal string in one file."),
		mcp.WithString("id", mcp.Required(), mcp.Description("File id")),
		mcp.WithString("query", mcp.Required(), mcp.Description("Text to find")),
		mcp.WithString("replacement", mcp.Description("Replacement text (empty deletes)")),
	), s.replaceAll)

	s.mcp.AddTool(mcp.NewTool("export_workspace",
		mcp.WithDescription("Export the workspace, a folder or a file as a stepsheet package."),
		mcp.WithString("mode", mcp.Description("workspace (default), folder or file")),
		mcp.WithString("id", mcp.Description("Folder or file id for folder and file modes")),
	), s.exportWorkspace)

	s.mcp.AddTool(mcp.NewTool("import_package",
		mcp.WithDescription("Import a stepsheet package. Nothing is imported when any entry is rejected."),
		mcp.WithString("package", mcp.Required(), mcp.Description("Package JSON as produced by export_workspace")),
	), s.importPackage)

	s.mcp.AddTool(mcp.NewTool("get_checklist_contract",
		mcp.WithDescription("Returns the checklist JSON format contract. "+
			"Call this before creating or updating files to ensure correct structure."),
	), s.getChecklistContract)

	// Resource: checklist format contract.
	s.mcp.AddResource(
		mcp.NewResource(ContractURI, "Checklist Format Contract",
			mcp.WithResourceDescription("JSON format every checklist document follows."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readContractResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) listFiles(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	items, err := s.svc.ListFiles(ctx, req.GetString("folder_id", ""))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(items) == 0 {
		return mcp.NewToolResultText("no files"), nil
	}
	ws := s.svc.Workspace(ctx)
	lines := make([]string, 0, len(items))
	for _, it := range items {
		folder, _ := ws.Folder(it.FolderID)
		lines = append(lines, fmt.Sprintf("%s\t%s/%s\t%s\t%s", it.ID, folder.Name, it.Name, it.Title, it.Checksum))
	}
	return mcp.NewToolResultText(strings.Join(lines, "\n")), nil
}

func (s *Server) readFile(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	f, err := s.svc.GetFile(ctx, id)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("not found: %s", id)), nil
	}
	return mcp.NewToolResultText(f.Content), nil
}

func (s *Server) createFile(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	folder, err := req.RequireString("folder")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	name, err := req.RequireString("name")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	content, err := req.RequireString("content")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	files, err := s.svc.Tracker().ImportFiles(workspace.ImportGroup{
		Folder: folder,
		Files:  []workspace.NewFile{{Name: name, Content: content}},
	})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("created: %s", files[0].ID)), nil
}

func (s *Server) updateFile(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	content, err := req.RequireString("content")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	f, err := s.svc.UpdateFile(ctx, id, content, req.GetString("if_match", ""))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("updated: %s checksum %s", f.ID, f.Checksum)), nil
}

type locateResult struct {
	checklist.Status
	Snippet string `json:"snippet,omitempty"`
}

func (s *Server) locateJSONError(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	text, err := req.RequireString("text")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	res := locateResult{Status: checklist.Evaluate(text, nil)}
	if res.Offset != nil {
		res.Snippet = jsonerr.Snippet(text, *res.Offset)
	}
	return jsonResult(res)
}

func (s *Server) findStep(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	n, err := req.RequireInt("index")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	text, b, err := s.svc.Step(ctx, id, n)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(map[string]any{"index": n, "start": b.Start, "end": b.End, "text": text})
}

func (s *Server) togglePass(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	n, err := req.RequireInt("index")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	sess, err := s.svc.Sessions().Open(id)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	pass, err := sess.TogglePass(n)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("step %d pass: %t", n, pass)), nil
}

func (s *Server) searchFiles(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	results := s.svc.Search(ctx, query, 20)
	if len(results) == 0 {
		return mcp.NewToolResultText("no matches"), nil
	}
	return jsonResult(results)
}

func (s *Server) replaceAll(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	n, err := s.svc.ReplaceAll(ctx, id, query, req.GetString("replacement", ""))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("replaced: %d", n)), nil
}

func (s *Server) exportWorkspace(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	mode := exchange.Mode(req.GetString("mode", string(exchange.ModeWorkspace)))
	pkg, err := s.svc.Export(ctx, mode, req.GetString("id", ""))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(pkg)
}

func (s *Server) importPackage(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	payload, err := req.RequireString("package")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	files, err := s.svc.Import(ctx, []byte(payload))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	ids := make([]string, len(files))
	for i, f := range files {
		ids[i] = f.ID
	}
	return mcp.NewToolResultText(fmt.Sprintf("imported %d: %s", len(files), strings.Join(ids, ", "))), nil
}

func (s *Server) getChecklistContract(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(ChecklistFormatContract), nil
}

func (s *Server) readContractResource(_ context.Context, _ mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      ContractURI,
			MIMEType: "text/markdown",
			Text:     ChecklistFormatContract,
		},
	}, nil
}
