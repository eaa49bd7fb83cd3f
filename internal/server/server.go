// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package server

import (
	"github.com/mark3labs/mcp-go/server"
	"github.com/tejzpr/clipgraph/internal/graph"
	"github.com/tejzpr/clipgraph/internal/importer"
	"github.com/tejzpr/clipgraph/internal/tools"
)

// MCPServer wraps the mcp-go server with the graph tools
type MCPServer struct {
	mcpServer *server.MCPServer
	toolCtx   *tools.ToolContext
}

// NewMCPServer creates an MCP server acting for ownerID
func NewMCPServer(svc *graph.Service, imp *importer.Importer, ownerID string) *MCPServer {
	mcpServer := server.NewMCPServer(
		"ClipGraph",
		"1.0.0",
		server.WithToolCapabilities(true),
	)

	srv := &MCPServer{
		mcpServer: mcpServer,
		toolCtx:   tools.NewToolContext(svc, imp, ownerID),
	}
	srv.registerTools()
	return srv
}

func (s *MCPServer) registerTools() {
	tc := s.toolCtx

	// Graph lifecycle
	s.mcpServer.AddTool(tools.NewCreateGraphTool(), tools.CreateGraphHandler(tc))
	s.mcpServer.AddTool(tools.NewListGraphsTool(), tools.ListGraphsHandler(tc))
	s.mcpServer.AddTool(tools.NewRenameGraphTool(), tools.RenameGraphHandler(tc))
	s.mcpServer.AddTool(tools.NewDeleteGraphTool(), tools.DeleteGraphHandler(tc))

	// Items
	s.mcpServer.AddTool(tools.NewAddItemTool(), tools.AddItemHandler(tc))
	s.mcpServer.AddTool(tools.NewGraphDataTool(), tools.GraphDataHandler(tc))
	s.mcpServer.AddTool(tools.NewDeleteItemTool(), tools.DeleteItemHandler(tc))
	s.mcpServer.AddTool(tools.NewRelatedItemsTool(), tools.RelatedItemsHandler(tc))
	s.mcpServer.AddTool(tools.NewImportItemsTool(), tools.ImportItemsHandler(tc))

	// Edge maintenance
	s.mcpServer.AddTool(tools.NewRecalculateTool(), tools.RecalculateHandler(tc))
	s.mcpServer.AddTool(tools.NewAnalyzeTool(), tools.AnalyzeHandler(tc))
}

// GetMCPServer returns the underlying MCP server
func (s *MCPServer) GetMCPServer() *server.MCPServer {
	return s.mcpServer
}

// ServeStdio serves MCP over stdin/stdout until the client disconnects
func (s *MCPServer) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}
