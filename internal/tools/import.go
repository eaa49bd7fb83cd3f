// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package tools

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/tejzpr/clipgraph/internal/importer"
)

// NewImportItemsTool creates the import_items tool definition
func NewImportItemsTool() mcp.Tool {
	return mcp.NewTool(toolPrefix+"import_items",
		mcp.WithDescription("Bulk-save generated passages (summaries, extracted notes) from one source document. Items are connected with a lower default threshold of 0.3."),
		mcp.WithString("source_doc_id",
			mcp.Required(),
			mcp.Description("ID of the document the passages came from"),
		),
		mcp.WithArray("clips",
			mcp.Required(),
			mcp.Description("Passages to save"),
			mcp.WithStringItems(),
		),
		mcp.WithString("source_label",
			mcp.Description("Human readable source name"),
		),
		mcp.WithString("graph_id",
			mcp.Description("Target graph. Defaults to your default graph."),
		),
		mcp.WithNumber("threshold",
			mcp.Description("Minimum similarity for a connection, exclusive. Must be between 0 and 1; values outside that range are rejected. Default 0.3."),
			mcp.Min(0),
			mcp.Max(1),
		),
	)
}

// ImportItemsHandler handles the import_items tool
func ImportItemsHandler(tc *ToolContext) func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		sourceDocID, err := request.RequireString("source_doc_id")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		clips := request.GetStringSlice("clips", nil)
		if len(clips) == 0 {
			return mcp.NewToolResultError("clips must contain at least one passage"), nil
		}

		summary, err := tc.Importer.Import(ctx, tc.OwnerID, request.GetString("graph_id", ""), []importer.Document{{
			SourceDocID: sourceDocID,
			SourceLabel: importer.SanitizeLabel(request.GetString("source_label", "")),
			Threshold:   optionalFloat(request, "threshold"),
			Clips:       clips,
		}})
		if err != nil {
			return errorResult("import items", err), nil
		}

		return mcp.NewToolResultText(fmt.Sprintf(
			"✓ Imported %d items (%d duplicates, %d blank, %d without embedding), %d connections",
			summary.Items, summary.Duplicates, summary.Skipped, summary.WithoutEmbedding, summary.EdgesCreated)), nil
	}
}
