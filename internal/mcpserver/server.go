// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes raido project tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/raido/internal/projectservice"
	"github.com/starford/raido/internal/reload"
)

// ContractURI is the resource URI of the project format contract.
const ContractURI = "raido://project-format"

// Server wraps the MCP server with raido tools.
type Server struct {
	mcp *server.MCPServer
	svc *projectservice.Service
}

// New creates a new MCP server with all raido tools registered.
func New(svc *projectservice.Service) *Server {
	s := &Server{svc: svc}

	s.mcp = server.NewMCPServer(
		"Raido",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("list_projects",
		mcp.WithDescription("List open project definitions with their dirty flag and last published generation."),
	), s.listProjects)

	s.mcp.AddTool(mcp.NewTool("read_project",
		mcp.WithDescription("Read the live content of a project definition, including unsaved edits."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Workspace-relative project path (e.g. app/app.proj)")),
	), s.readProject)

	s.mcp.AddTool(mcp.NewTool("get_evaluation",
		mcp.WithDescription("Return the last published evaluation of a project: final property values and item lists."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Workspace-relative project path")),
	), s.getEvaluation)

	s.mcp.AddTool(mcp.NewTool("search_properties",
		mcp.WithDescription("Search published properties of all projects by name or value."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Substring to look for")),
	), s.searchProperties)

	s.mcp.AddTool(mcp.NewTool("set_property",
		mcp.WithDescription("Set a property in the live project document. The change is not written to disk "+
			"until save_project is called, and it blocks in-place reloads until then."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Workspace-relative project path")),
		mcp.WithString("name", mcp.Required(), mcp.Description("Property name")),
		mcp.WithString("value", mcp.Required(), mcp.Description("New property value")),
	), s.setProperty)

	s.mcp.AddTool(mcp.NewTool("save_project",
		mcp.WithDescription("Write the live project document back to disk."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Workspace-relative project path")),
	), s.saveProject)

	s.mcp.AddTool(mcp.NewTool("reload_project",
		mcp.WithDescription("Reload a project from disk in place. Returns completed, failed_project_dirty "+
			"(unsaved edits, nothing changed) or failed (file unreadable or malformed, nothing changed)."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Workspace-relative project path")),
	), s.reloadProject)

	s.mcp.AddTool(mcp.NewTool("get_project_contract",
		mcp.WithDescription("Returns the project definition format contract. "+
			"Call this before editing project files on disk."),
	), s.getProjectContract)

	s.mcp.AddResource(
		mcp.NewResource(ContractURI, "Project Format Contract",
			mcp.WithResourceDescription("Structure of XML and YAML project definitions."),
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

func jsonResult(v any) *mcp.CallToolResult {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error())
	}
	return mcp.NewToolResultText(string(out))
}

func (s *Server) listProjects(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	items, err := s.svc.List(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(items) == 0 {
		return mcp.NewToolResultText("no open projects"), nil
	}
	lines := make([]string, len(items))
	for i, it := range items {
		state := "clean"
		if it.Dirty {
			state = "dirty"
		}
		lines[i] = fmt.Sprintf("%s\t%s\tgeneration=%d", it.Path, state, it.Generation)
	}
	return mcp.NewToolResultText(strings.Join(lines, "\n")), nil
}

func (s *Server) readProject(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	d, err := s.svc.Tree(ctx, path)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("not found: %s", path)), nil
	}
	return mcp.NewToolResultText(d.Content), nil
}

func (s *Server) getEvaluation(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	res, err := s.svc.Evaluation(ctx, path)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("no evaluation for %s: %v", path, err)), nil
	}
	return jsonResult(res), nil
}

func (s *Server) searchProperties(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	hits, err := s.svc.SearchProperties(ctx, query, 50)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(hits), nil
}

func (s *Server) setProperty(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	name, err := req.RequireString("name")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	value, err := req.RequireString("value")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if _, err := s.svc.SetProperty(ctx, path, name, value, ""); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("set %s=%s in %s (unsaved)", name, value, path)), nil
}

func (s *Server) saveProject(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if _, err := s.svc.Save(ctx, path); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("saved: %s", path)), nil
}

func (s *Server) reloadProject(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	outcome, err := s.svc.Reload(ctx, path)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	text := outcome.String()
	if outcome != reload.Completed {
		return mcp.NewToolResultError(text), nil
	}
	return mcp.NewToolResultText(text), nil
}

func (s *Server) getProjectContract(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(ProjectFormatContract), nil
}

func (s *Server) readContractResource(context.Context, mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      ContractURI,
			MIMEType: "text/markdown",
			Text:     ProjectFormatContract,
		},
	}, nil
}
