// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package tools

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/tejzpr/clipgraph/internal/graph"
	"github.com/tejzpr/clipgraph/internal/importer"
)

// Tool name prefix
const toolPrefix = "clipgraph_"

// ToolContext holds shared dependencies for all tools.
// An MCP session acts for a single owner.
type ToolContext struct {
	Service  *graph.Service
	Importer *importer.Importer
	OwnerID  string
}

// NewToolContext creates a new tool context
func NewToolContext(svc *graph.Service, imp *importer.Importer, ownerID string) *ToolContext {
	return &ToolContext{
		Service:  svc,
		Importer: imp,
		OwnerID:  ownerID,
	}
}

// optionalFloat returns the named argument, or nil when the caller omitted it
func optionalFloat(request mcp.CallToolRequest, name string) *float64 {
	if _, ok := request.GetArguments()[name]; !ok {
		return nil
	}
	v := request.GetFloat(name, 0)
	return &v
}

// errorResult converts a service error into a tool error message
func errorResult(action string, err error) *mcp.CallToolResult {
	switch {
	case graph.IsValidationError(err):
		return mcp.NewToolResultError(err.Error())
	case errors.Is(err, graph.ErrGraphNotFound), errors.Is(err, graph.ErrItemNotFound), errors.Is(err, graph.ErrCannotDeleteDefault):
		return mcp.NewToolResultError(err.Error())
	default:
		return mcp.NewToolResultError(fmt.Sprintf("failed to %s: %v", action, err))
	}
}

// jsonBlock renders v as a fenced JSON block
func jsonBlock(v interface{}) (string, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode result: %w", err)
	}
	return "```json\n" + string(data) + "\n```", nil
}
