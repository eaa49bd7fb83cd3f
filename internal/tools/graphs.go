// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package tools

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/tejzpr/clipgraph/internal/graph"
)

// NewCreateGraphTool creates the create_graph tool definition
func NewCreateGraphTool() mcp.Tool {
	return mcp.NewTool(toolPrefix+"create_graph",
		mcp.WithDescription("Create a new, empty memory graph. Items added to a graph are only ever connected to items in the same graph."),
		mcp.WithString("name",
			mcp.Required(),
			mcp.Description("Display name for the graph"),
		),
	)
}

// CreateGraphHandler handles the create_graph tool
func CreateGraphHandler(tc *ToolContext) func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		name, err := request.RequireString("name")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		g, err := tc.Service.CreateGraph(ctx, tc.OwnerID, name)
		if err != nil {
			return errorResult("create graph", err), nil
		}

		return mcp.NewToolResultText(fmt.Sprintf("✓ Created graph **%s** (`%s`)", g.Name, g.ID)), nil
	}
}

// NewListGraphsTool creates the list_graphs tool definition
func NewListGraphsTool() mcp.Tool {
	return mcp.NewTool(toolPrefix+"list_graphs",
		mcp.WithDescription("List your memory graphs, newest first. A default graph is created on first use."),
	)
}

// ListGraphsHandler handles the list_graphs tool
func ListGraphsHandler(tc *ToolContext) func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		graphs, err := tc.Service.ListGraphs(ctx, tc.OwnerID)
		if err != nil {
			return errorResult("list graphs", err), nil
		}

		var sb strings.Builder
		sb.WriteString(fmt.Sprintf("Found %d graphs:\n\n", len(graphs)))
		for i, g := range graphs {
			sb.WriteString(fmt.Sprintf("%d. **%s** (`%s`)", i+1, g.Name, g.ID))
			if g.IsDefault {
				sb.WriteString(" [default]")
			}
			if stats, err := tc.Service.Stats(ctx, tc.OwnerID, g.ID); err == nil {
				sb.WriteString(fmt.Sprintf(" %d items, %d connections,", stats.Items, stats.Edges))
			}
			sb.WriteString(fmt.Sprintf(" created %s\n", g.CreatedAt.Format("2006-01-02 15:04")))
		}
		return mcp.NewToolResultText(sb.String()), nil
	}
}

// NewRenameGraphTool creates the rename_graph tool definition
func NewRenameGraphTool() mcp.Tool {
	return mcp.NewTool(toolPrefix+"rename_graph",
		mcp.WithDescription("Rename a memory graph"),
		mcp.WithString("graph_id",
			mcp.Required(),
			mcp.Description("ID of the graph to rename"),
		),
		mcp.WithString("name",
			mcp.Required(),
			mcp.Description("New display name"),
		),
	)
}

// RenameGraphHandler handles the rename_graph tool
func RenameGraphHandler(tc *ToolContext) func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		graphID, err := request.RequireString("graph_id")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		name, err := request.RequireString("name")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		if _, err := tc.Service.GetGraph(ctx, tc.OwnerID, graphID); err != nil {
			return errorResult("rename graph", err), nil
		}

		g, err := tc.Service.RenameGraph(ctx, graphID, name)
		if err != nil {
			return errorResult("rename graph", err), nil
		}

		return mcp.NewToolResultText(fmt.Sprintf("✓ Renamed `%s` to **%s**", g.ID, g.Name)), nil
	}
}

// NewDeleteGraphTool creates the delete_graph tool definition
func NewDeleteGraphTool() mcp.Tool {
	return mcp.NewTool(toolPrefix+"delete_graph",
		mcp.WithDescription("Delete a graph together with all of its items and connections. The default graph cannot be deleted."),
		mcp.WithString("graph_id",
			mcp.Required(),
			mcp.Description("ID of the graph to delete"),
		),
	)
}

// DeleteGraphHandler handles the delete_graph tool
func DeleteGraphHandler(tc *ToolContext) func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		graphID, err := request.RequireString("graph_id")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		missing := mcp.NewToolResultText(fmt.Sprintf("Graph `%s` does not exist; nothing deleted.", graphID))
		if _, err := tc.Service.GetGraph(ctx, tc.OwnerID, graphID); errors.Is(err, graph.ErrGraphNotFound) {
			return missing, nil
		} else if err != nil {
			return errorResult("delete graph", err), nil
		}

		deleted, err := tc.Service.DeleteGraph(ctx, graphID)
		if err != nil {
			return errorResult("delete graph", err), nil
		}
		if !deleted {
			return missing, nil
		}

		return mcp.NewToolResultText(fmt.Sprintf("✓ Deleted graph `%s` with its items and connections", graphID)), nil
	}
}
