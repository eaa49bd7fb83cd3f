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

// NewAddItemTool creates the add_item tool definition
func NewAddItemTool() mcp.Tool {
	return mcp.NewTool(toolPrefix+"add_item",
		mcp.WithDescription("Save a clipped passage as a memory item. It is embedded and connected to similar items in the same graph. Adding the same text from the same source twice returns the existing item."),
		mcp.WithString("text",
			mcp.Required(),
			mcp.Description("The passage to remember"),
		),
		mcp.WithString("source_doc_id",
			mcp.Required(),
			mcp.Description("ID of the document the passage came from"),
		),
		mcp.WithString("source_label",
			mcp.Description("Human readable source name, e.g. a title or URL"),
		),
		mcp.WithString("graph_id",
			mcp.Description("Target graph. Defaults to your default graph."),
		),
		mcp.WithNumber("threshold",
			mcp.Description("Minimum similarity for a connection, exclusive. Must be between 0 and 1; values outside that range are rejected. Default 0.5."),
			mcp.Min(0),
			mcp.Max(1),
		),
	)
}

// AddItemHandler handles the add_item tool
func AddItemHandler(tc *ToolContext) func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		text, err := request.RequireString("text")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		sourceDocID, err := request.RequireString("source_doc_id")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		result, err := tc.Service.AddItem(ctx, graph.AddItemRequest{
			OwnerID:     tc.OwnerID,
			SourceDocID: sourceDocID,
			Text:        text,
			SourceLabel: request.GetString("source_label", ""),
			GraphID:     request.GetString("graph_id", ""),
			Threshold:   optionalFloat(request, "threshold"),
		})
		if err != nil {
			return errorResult("add item", err), nil
		}

		if result.Duplicate {
			return mcp.NewToolResultText(fmt.Sprintf("Already saved as `%s` in graph `%s`; nothing added.", result.Item.ID, result.Item.GraphID)), nil
		}

		var sb strings.Builder
		sb.WriteString(fmt.Sprintf("✓ Saved `%s` in graph `%s`\n", result.Item.ID, result.Item.GraphID))
		if !result.HasEmbedding {
			sb.WriteString("⚠️ Embedding unavailable; the item was saved without connections. Run recalculate later to connect it.\n")
		}
		sb.WriteString(fmt.Sprintf("Connections: %d\n", len(result.EdgesCreated)))
		for _, e := range result.EdgesCreated {
			other := e.Target
			if other == result.Item.ID {
				other = e.Source
			}
			sb.WriteString(fmt.Sprintf("- `%s` (%.3f)\n", other, e.Weight))
		}
		return mcp.NewToolResultText(sb.String()), nil
	}
}

// NewGraphDataTool creates the graph_data tool definition
func NewGraphDataTool() mcp.Tool {
	return mcp.NewTool(toolPrefix+"graph_data",
		mcp.WithDescription("Return every item of a graph and the connections among them as JSON"),
		mcp.WithString("graph_id",
			mcp.Description("Graph to read. Defaults to your default graph."),
		),
	)
}

// GraphDataHandler handles the graph_data tool
func GraphDataHandler(tc *ToolContext) func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		data, err := tc.Service.ListGraphData(ctx, tc.OwnerID, request.GetString("graph_id", ""))
		if err != nil {
			return errorResult("load graph", err), nil
		}

		block, err := jsonBlock(data)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText(fmt.Sprintf("%d items, %d connections\n\n%s", len(data.Items), len(data.Edges), block)), nil
	}
}

// NewDeleteItemTool creates the delete_item tool definition
func NewDeleteItemTool() mcp.Tool {
	return mcp.NewTool(toolPrefix+"delete_item",
		mcp.WithDescription("Delete a memory item and every connection touching it"),
		mcp.WithString("item_id",
			mcp.Required(),
			mcp.Description("ID of the item to delete"),
		),
	)
}

// DeleteItemHandler handles the delete_item tool
func DeleteItemHandler(tc *ToolContext) func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		itemID, err := request.RequireString("item_id")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		if _, err := tc.Service.GetItem(ctx, tc.OwnerID, itemID); err != nil {
			if errors.Is(err, graph.ErrItemNotFound) {
				return mcp.NewToolResultText(fmt.Sprintf("Item `%s` does not exist; nothing deleted.", itemID)), nil
			}
			return errorResult("delete item", err), nil
		}

		deleted, err := tc.Service.DeleteItem(ctx, itemID)
		if err != nil {
			return errorResult("delete item", err), nil
		}
		if !deleted {
			return mcp.NewToolResultText(fmt.Sprintf("Item `%s` does not exist; nothing deleted.", itemID)), nil
		}
		return mcp.NewToolResultText(fmt.Sprintf("✓ Deleted item `%s`", itemID)), nil
	}
}

// NewRelatedItemsTool creates the related_items tool definition
func NewRelatedItemsTool() mcp.Tool {
	return mcp.NewTool(toolPrefix+"related_items",
		mcp.WithDescription("Walk similarity connections outward from an item"),
		mcp.WithString("item_id",
			mcp.Required(),
			mcp.Description("Item to start from"),
		),
		mcp.WithNumber("depth",
			mcp.Description("How many hops to follow (1-5). Default 2."),
		),
		mcp.WithNumber("min_weight",
			mcp.Description("Ignore connections weaker than this. Default 0."),
		),
	)
}

// RelatedItemsHandler handles the related_items tool
func RelatedItemsHandler(tc *ToolContext) func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		itemID, err := request.RequireString("item_id")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		depth := int(request.GetFloat("depth", 2))
		minWeight := request.GetFloat("min_weight", 0)

		if _, err := tc.Service.GetItem(ctx, tc.OwnerID, itemID); err != nil {
			return errorResult("traverse graph", err), nil
		}

		n, err := tc.Service.Related(ctx, itemID, depth, minWeight)
		if err != nil {
			return errorResult("traverse graph", err), nil
		}

		var sb strings.Builder
		sb.WriteString(fmt.Sprintf("Found %d related items:\n\n", len(n.Nodes)-1))
		for _, node := range n.Nodes[1:] {
			sb.WriteString(fmt.Sprintf("- `%s` (depth %d): %s\n", node.Item.ID, node.Depth, preview(node.Item.Text)))
		}
		return mcp.NewToolResultText(sb.String()), nil
	}
}

func preview(text string) string {
	r := []rune(strings.Join(strings.Fields(text), " "))
	if len(r) > 100 {
		return string(r[:100]) + "…"
	}
	return string(r)
}
