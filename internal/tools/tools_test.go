// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tejzpr/clipgraph/internal/database"
	"github.com/tejzpr/clipgraph/internal/embeddings"
	"github.com/tejzpr/clipgraph/internal/graph"
	"github.com/tejzpr/clipgraph/internal/importer"
	"github.com/tejzpr/clipgraph/internal/locking"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm/logger"
)

var testVectors = map[string][]float32{
	"Attention is all you need":        {1, 0},
	"Self-attention relates positions": {1, 0},
	"Convolutions are local":           {0, 1},
}

func setupToolContext(t *testing.T, owner string) *ToolContext {
	t.Helper()

	db, err := database.Connect(&database.Config{
		Type:       "sqlite",
		SQLitePath: filepath.Join(t.TempDir(), "tools.db"),
		LogLevel:   logger.Silent,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close(db) })
	require.NoError(t, database.Migrate(db))

	client := &embeddings.MockClient{
		EmbedFunc: func(_ context.Context, text string) ([]float32, error) {
			if v, ok := testVectors[text]; ok {
				return v, nil
			}
			return nil, fmt.Errorf("provider unavailable")
		},
	}
	log := zaptest.NewLogger(t)
	embedder := embeddings.NewService(nil, client, embeddings.Options{}, log)
	store := graph.NewStore(db).WithDefaultProtection(true)
	svc := graph.NewService(store, embedder, locking.NewKeyedMutex(), graph.DefaultOptions(), log)
	return NewToolContext(svc, importer.New(svc, log), owner)
}

func call(t *testing.T, handler func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error), args map[string]interface{}) *mcp.CallToolResult {
	t.Helper()
	request := mcp.CallToolRequest{}
	request.Params.Arguments = args
	result, err := handler(context.Background(), request)
	require.NoError(t, err)
	require.NotNil(t, result)
	return result
}

func getResultText(result *mcp.CallToolResult) string {
	if len(result.Content) == 0 {
		return ""
	}
	if textContent, ok := result.Content[0].(mcp.TextContent); ok {
		return textContent.Text
	}
	return ""
}

func decodeJSONBlock(t *testing.T, text string, v interface{}) {
	t.Helper()
	start := strings.Index(text, "```json\n")
	end := strings.LastIndex(text, "\n```")
	require.True(t, start >= 0 && end > start, "no JSON block in %q", text)
	require.NoError(t, json.Unmarshal([]byte(text[start+len("```json\n"):end]), v))
}

func TestToolDefinitions(t *testing.T) {
	defs := []mcp.Tool{
		NewCreateGraphTool(), NewListGraphsTool(), NewRenameGraphTool(), NewDeleteGraphTool(),
		NewAddItemTool(), NewGraphDataTool(), NewDeleteItemTool(), NewRelatedItemsTool(),
		NewRecalculateTool(), NewAnalyzeTool(), NewImportItemsTool(),
	}

	seen := make(map[string]bool)
	for _, d := range defs {
		assert.True(t, strings.HasPrefix(d.Name, toolPrefix), d.Name)
		assert.NotEmpty(t, d.Description)
		assert.False(t, seen[d.Name], "duplicate tool %s", d.Name)
		seen[d.Name] = true
	}
	assert.Contains(t, NewAddItemTool().InputSchema.Required, "text")
	assert.Contains(t, NewAddItemTool().InputSchema.Required, "source_doc_id")
}

func TestToolDefinitions_ThresholdRange(t *testing.T) {
	for _, d := range []mcp.Tool{NewAddItemTool(), NewRecalculateTool(), NewAnalyzeTool(), NewImportItemsTool()} {
		prop, ok := d.InputSchema.Properties["threshold"].(map[string]any)
		require.True(t, ok, d.Name)
		assert.Equal(t, float64(0), prop["minimum"], d.Name)
		assert.Equal(t, float64(1), prop["maximum"], d.Name)
		assert.Contains(t, prop["description"], "between 0 and 1", d.Name)
	}
}

func TestGraphTools_Lifecycle(t *testing.T) {
	tc := setupToolContext(t, "alice")

	result := call(t, ListGraphsHandler(tc), nil)
	require.False(t, result.IsError, getResultText(result))
	assert.Contains(t, getResultText(result), "Default Graph")
	assert.Contains(t, getResultText(result), "[default]")
	assert.Contains(t, getResultText(result), "0 items, 0 connections")

	result = call(t, CreateGraphHandler(tc), map[string]interface{}{"name": "Papers"})
	require.False(t, result.IsError, getResultText(result))
	assert.Contains(t, getResultText(result), "Papers")

	graphs, err := tc.Service.ListGraphs(context.Background(), "alice")
	require.NoError(t, err)
	require.Len(t, graphs, 2)
	var papers, def database.MemoryGraph
	for _, g := range graphs {
		if g.IsDefault {
			def = g
		} else {
			papers = g
		}
	}
	require.Equal(t, "Papers", papers.Name)

	result = call(t, RenameGraphHandler(tc), map[string]interface{}{"graph_id": papers.ID, "name": "Reading"})
	require.False(t, result.IsError, getResultText(result))
	assert.Contains(t, getResultText(result), "Reading")

	result = call(t, DeleteGraphHandler(tc), map[string]interface{}{"graph_id": papers.ID})
	require.False(t, result.IsError, getResultText(result))
	assert.Contains(t, getResultText(result), "Deleted graph")

	result = call(t, DeleteGraphHandler(tc), map[string]interface{}{"graph_id": papers.ID})
	require.False(t, result.IsError)
	assert.Contains(t, getResultText(result), "nothing deleted")

	result = call(t, DeleteGraphHandler(tc), map[string]interface{}{"graph_id": def.ID})
	assert.True(t, result.IsError)
	assert.Contains(t, getResultText(result), "default")
}

func TestGraphTools_Errors(t *testing.T) {
	tc := setupToolContext(t, "alice")

	result := call(t, CreateGraphHandler(tc), map[string]interface{}{})
	assert.True(t, result.IsError)

	result = call(t, CreateGraphHandler(tc), map[string]interface{}{"name": "   "})
	assert.True(t, result.IsError)
	assert.Contains(t, getResultText(result), "invalid name")

	result = call(t, RenameGraphHandler(tc), map[string]interface{}{"graph_id": "graph-missing", "name": "x"})
	assert.True(t, result.IsError)
	assert.Contains(t, getResultText(result), "graph not found")
}

func TestGraphTools_OtherOwnersGraph(t *testing.T) {
	alice := setupToolContext(t, "alice")
	g, err := alice.Service.CreateGraph(context.Background(), "alice", "Private")
	require.NoError(t, err)

	mallory := NewToolContext(alice.Service, alice.Importer, "mallory")

	result := call(t, RenameGraphHandler(mallory), map[string]interface{}{"graph_id": g.ID, "name": "Mine"})
	assert.True(t, result.IsError)

	result = call(t, DeleteGraphHandler(mallory), map[string]interface{}{"graph_id": g.ID})
	assert.False(t, result.IsError)
	assert.Contains(t, getResultText(result), "nothing deleted")

	_, err = alice.Service.Store().GetGraph(context.Background(), g.ID)
	assert.NoError(t, err)
}

func TestItemTools_OtherOwnersItem(t *testing.T) {
	alice := setupToolContext(t, "alice")
	added, err := alice.Service.AddItem(context.Background(), graph.AddItemRequest{
		OwnerID:     "alice",
		SourceDocID: "paper-1",
		Text:        "Attention is all you need",
	})
	require.NoError(t, err)

	mallory := NewToolContext(alice.Service, alice.Importer, "mallory")

	result := call(t, RelatedItemsHandler(mallory), map[string]interface{}{"item_id": added.Item.ID})
	assert.True(t, result.IsError)
	assert.NotContains(t, getResultText(result), "alice")

	result = call(t, DeleteItemHandler(mallory), map[string]interface{}{"item_id": added.Item.ID})
	assert.False(t, result.IsError)
	assert.Contains(t, getResultText(result), "nothing deleted")

	item, err := alice.Service.GetItem(context.Background(), "alice", added.Item.ID)
	require.NoError(t, err)
	assert.Equal(t, added.Item.ID, item.ID)
}

func TestItemTools(t *testing.T) {
	tc := setupToolContext(t, "alice")

	result := call(t, AddItemHandler(tc), map[string]interface{}{
		"text":          "Attention is all you need",
		"source_doc_id": "paper-1",
		"source_label":  "Vaswani et al.",
	})
	require.False(t, result.IsError, getResultText(result))
	assert.Contains(t, getResultText(result), "Connections: 0")

	result = call(t, AddItemHandler(tc), map[string]interface{}{
		"text":          "Self-attention relates positions",
		"source_doc_id": "paper-1",
	})
	require.False(t, result.IsError, getResultText(result))
	assert.Contains(t, getResultText(result), "Connections: 1")
	assert.Contains(t, getResultText(result), "(1.000)")

	result = call(t, AddItemHandler(tc), map[string]interface{}{
		"text":          "Attention is all you need",
		"source_doc_id": "paper-1",
	})
	require.False(t, result.IsError)
	assert.Contains(t, getResultText(result), "Already saved")

	result = call(t, AddItemHandler(tc), map[string]interface{}{
		"text":          "the provider cannot embed this",
		"source_doc_id": "paper-2",
	})
	require.False(t, result.IsError)
	assert.Contains(t, getResultText(result), "Embedding unavailable")

	result = call(t, GraphDataHandler(tc), nil)
	require.False(t, result.IsError, getResultText(result))
	var data graph.GraphData
	decodeJSONBlock(t, getResultText(result), &data)
	assert.Len(t, data.Items, 3)
	require.Len(t, data.Edges, 1)

	result = call(t, RelatedItemsHandler(tc), map[string]interface{}{"item_id": data.Edges[0].Source})
	require.False(t, result.IsError, getResultText(result))
	assert.Contains(t, getResultText(result), "Found 1 related items")

	result = call(t, DeleteItemHandler(tc), map[string]interface{}{"item_id": data.Edges[0].Source})
	require.False(t, result.IsError)
	assert.Contains(t, getResultText(result), "Deleted item")

	result = call(t, DeleteItemHandler(tc), map[string]interface{}{"item_id": data.Edges[0].Source})
	require.False(t, result.IsError)
	assert.Contains(t, getResultText(result), "nothing deleted")

	result = call(t, AddItemHandler(tc), map[string]interface{}{"text": "   ", "source_doc_id": "d"})
	assert.True(t, result.IsError)

	result = call(t, AddItemHandler(tc), map[string]interface{}{"text": "x", "source_doc_id": "d", "threshold": 1.5})
	assert.True(t, result.IsError)
	assert.Contains(t, getResultText(result), "threshold")

	result = call(t, RelatedItemsHandler(tc), map[string]interface{}{"item_id": "memory-missing"})
	assert.True(t, result.IsError)
}

func TestAnalysisTools(t *testing.T) {
	tc := setupToolContext(t, "alice")
	ctx := context.Background()

	g, err := tc.Service.CreateGraph(ctx, "alice", "G")
	require.NoError(t, err)
	for text := range testVectors {
		_, err := tc.Service.AddItem(ctx, graph.AddItemRequest{
			OwnerID: "alice", GraphID: g.ID, SourceDocID: "d", Text: text, Threshold: ptr(0.99),
		})
		require.NoError(t, err)
	}

	result := call(t, AnalyzeHandler(tc), map[string]interface{}{"graph_id": g.ID})
	require.False(t, result.IsError, getResultText(result))
	text := getResultText(result)
	assert.Contains(t, text, "Items: 3 (3 with embeddings)")
	assert.Contains(t, text, "Pairs: 3, 1 above threshold 0.50")

	result = call(t, RecalculateHandler(tc), map[string]interface{}{"graph_id": g.ID, "threshold": 0.5})
	require.False(t, result.IsError, getResultText(result))
	assert.Contains(t, getResultText(result), "1 connections among 3 embedded items")

	result = call(t, RecalculateHandler(tc), map[string]interface{}{"graph_id": "graph-missing"})
	assert.True(t, result.IsError)

	result = call(t, RecalculateHandler(tc), map[string]interface{}{})
	assert.True(t, result.IsError)
}

func TestImportItemsTool(t *testing.T) {
	tc := setupToolContext(t, "alice")

	result := call(t, ImportItemsHandler(tc), map[string]interface{}{
		"source_doc_id": "paper-1",
		"clips":         []interface{}{"Attention is all you need", "Self-attention relates positions", " "},
	})
	require.False(t, result.IsError, getResultText(result))
	assert.Contains(t, getResultText(result), "Imported 2 items")
	assert.Contains(t, getResultText(result), "1 blank")
	assert.Contains(t, getResultText(result), "1 connections")

	result = call(t, ImportItemsHandler(tc), map[string]interface{}{"source_doc_id": "paper-1"})
	assert.True(t, result.IsError)
}

func ptr(f float64) *float64 {
	return &f
}
