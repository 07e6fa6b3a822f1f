// Package mcpserver exposes code execution as a Model Context Protocol
// tool over stdio, using the mark3labs/mcp-go library for the protocol
// details.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kapsel-run/kapsel/internal/worker"
	"github.com/kapsel-run/kapsel/protocol"
)

// Executor runs one parsed request end to end.
type Executor interface {
	Execute(ctx context.Context, req *protocol.Request) protocol.Response
}

// Server wraps an MCP server with a single run_code tool.
type Server struct {
	logger   *slog.Logger
	executor Executor
	mcp      *server.MCPServer
}

var _ Executor = (*worker.Worker)(nil)

// New builds the MCP server and registers its tools.
func New(executor Executor, logger *slog.Logger) *Server {
	s := &Server{
		logger:   logger,
		executor: executor,
	}

	s.mcp = server.NewMCPServer("kapsel", "Sandboxed code execution for untrusted python and bash")
	s.registerRunCodeTool()

	return s
}

func (s *Server) registerRunCodeTool() {
	tool := mcp.Tool{
		Name:        "run_code",
		Description: "Execute untrusted code in an isolated sandbox and return its output",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				"code": map[string]any{
					"type":        "string",
					"description": "Source code to execute",
				},
				"language": map[string]any{
					"type":        "string",
					"description": "Execution language, defaults to python",
					"enum":        []string{"python", "bash"},
				},
				"packages": map[string]any{
					"type":        "array",
					"description": "Extra pip packages to install before running (python only)",
					"items":       map[string]any{"type": "string"},
				},
			},
			Required: []string{"code"},
		},
	}

	s.mcp.AddTool(tool, s.handleRunCode)
}

func (s *Server) handleRunCode(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	code, err := request.RequireString("code")
	if err != nil {
		return nil, fmt.Errorf("code parameter is required: %w", err)
	}

	req := &protocol.Request{
		ID:       "mcp",
		Code:     code,
		Language: protocol.Language(request.GetString("language", string(protocol.LanguagePython))),
		Packages: request.GetStringSlice("packages", nil),
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	s.logger.Info("mcp execution requested", "language", req.Lang(), "code_len", len(code))

	resp := s.executor.Execute(ctx, req)

	data, err := json.Marshal(resp)
	if err != nil {
		return nil, fmt.Errorf("marshal response: %w", err)
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: string(data)},
		},
		IsError: !resp.Success,
	}, nil
}

// ServeStdio blocks serving MCP requests over stdin/stdout.
func (s *Server) ServeStdio() error {
	s.logger.Info("mcp server listening on stdio")
	return server.ServeStdio(s.mcp)
}
