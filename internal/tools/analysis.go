// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
)

// maxReportedPairs bounds the pairs listed in analyze output
const maxReportedPairs = 20

// NewRecalculateTool creates the recalculate tool definition
func NewRecalculateTool() mcp.Tool {
	return mcp.NewTool(toolPrefix+"recalculate",
		mcp.WithDescription("Rebuild all connections of a graph from scratch with a new similarity threshold"),
		mcp.WithString("graph_id",
			mcp.Required(),
			mcp.Description("Graph to recalculate"),
		),
		mcp.WithNumber("threshold",
			mcp.Description("Minimum similarity for a connection, exclusive. Must be between 0 and 1; values outside that range are rejected. Default 0.5."),
			mcp.Min(0),
			mcp.Max(1),
		),
	)
}

// RecalculateHandler handles the recalculate tool
func RecalculateHandler(tc *ToolContext) func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		graphID, err := request.RequireString("graph_id")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		if _, err := tc.Service.GetGraph(ctx, tc.OwnerID, graphID); err != nil {
			return errorResult("recalculate", err), nil
		}

		result, err := tc.Service.Recalculate(ctx, graphID, optionalFloat(request, "threshold"))
		if err != nil {
			return errorResult("recalculate", err), nil
		}

		return mcp.NewToolResultText(fmt.Sprintf(
			"✓ Recalculated `%s`: %d connections among %d embedded items (threshold %.2f, took %s)",
			graphID, result.EdgesCreated, result.ItemsCompared, result.Threshold, result.Duration)), nil
	}
}

// NewAnalyzeTool creates the analyze tool definition
func NewAnalyzeTool() mcp.Tool {
	return mcp.NewTool(toolPrefix+"analyze",
		mcp.WithDescription("Report pairwise similarities in a graph without changing anything. Useful for choosing a threshold."),
		mcp.WithString("graph_id",
			mcp.Description("Graph to analyze. Defaults to your default graph."),
		),
		mcp.WithNumber("threshold",
			mcp.Description("Threshold to evaluate. Must be between 0 and 1; values outside that range are rejected. Default 0.5."),
			mcp.Min(0),
			mcp.Max(1),
		),
	)
}

// AnalyzeHandler handles the analyze tool
func AnalyzeHandler(tc *ToolContext) func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		report, err := tc.Service.Analyze(ctx, tc.OwnerID, request.GetString("graph_id", ""), optionalFloat(request, "threshold"))
		if err != nil {
			return errorResult("analyze graph", err), nil
		}

		s := report.Summary
		var sb strings.Builder
		sb.WriteString(fmt.Sprintf("## Similarity analysis for `%s`\n\n", report.GraphID))
		sb.WriteString(fmt.Sprintf("Items: %d (%d with embeddings)\n", s.TotalItems, s.ItemsWithEmbeddings))
		sb.WriteString(fmt.Sprintf("Pairs: %d, %d above threshold %.2f\n", s.TotalPairs, s.ConnectedPairs, s.Threshold))
		if s.SkippedPairs > 0 {
			sb.WriteString(fmt.Sprintf("Skipped pairs (dimension mismatch): %d\n", s.SkippedPairs))
		}
		if s.TotalPairs > 0 {
			sb.WriteString(fmt.Sprintf("Similarity range: %.3f to %.3f\n", s.LowestSimilarity, s.HighestSimilarity))
		}

		pairs := report.Pairs
		if len(pairs) > maxReportedPairs {
			pairs = pairs[:maxReportedPairs]
		}
		if len(pairs) > 0 {
			sb.WriteString("\n")
		}
		for _, p := range pairs {
			mark := " "
			if p.Connected {
				mark = "✓"
			}
			sb.WriteString(fmt.Sprintf("%s %.3f  %s  ↔  %s\n", mark, p.Similarity, p.ItemA.Preview, p.ItemB.Preview))
		}
		if len(report.Pairs) > len(pairs) {
			sb.WriteString(fmt.Sprintf("\n... %d more pairs\n", len(report.Pairs)-len(pairs)))
		}
		return mcp.NewToolResultText(sb.String()), nil
	}
}
