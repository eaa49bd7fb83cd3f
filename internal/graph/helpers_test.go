// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package graph

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tejzpr/clipgraph/internal/database"
	"github.com/tejzpr/clipgraph/internal/embeddings"
	"github.com/tejzpr/clipgraph/internal/locking"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := database.Connect(&database.Config{
		Type:       "sqlite",
		SQLitePath: filepath.Join(t.TempDir(), "graph.db"),
		LogLevel:   logger.Silent,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close(db) })

	require.NoError(t, database.Migrate(db))
	return db
}

func setupTestStore(t *testing.T) *Store {
	return NewStore(setupTestDB(t))
}

// lookupClient embeds known texts from a table and fails on anything else
func lookupClient(vectors map[string][]float32) *embeddings.MockClient {
	return &embeddings.MockClient{
		EmbedFunc: func(_ context.Context, text string) ([]float32, error) {
			if v, ok := vectors[text]; ok {
				return v, nil
			}
			return nil, fmt.Errorf("no vector for %q", text)
		},
	}
}

func newTestService(t *testing.T, client embeddings.Client, opts ...embeddings.Options) *Service {
	t.Helper()
	var embedOpts embeddings.Options
	if len(opts) > 0 {
		embedOpts = opts[0]
	}
	store := setupTestStore(t).WithDefaultProtection(true)

	var embedder Embedder
	if client != nil {
		embedder = embeddings.NewService(nil, client, embedOpts, zaptest.NewLogger(t))
	}
	return NewService(store, embedder, locking.NewKeyedMutex(), DefaultOptions(), zaptest.NewLogger(t))
}

func mustGraph(t *testing.T, s *Store, owner, name string) *database.MemoryGraph {
	t.Helper()
	g, err := s.CreateGraph(context.Background(), owner, name, false)
	require.NoError(t, err)
	return g
}

func mustItem(t *testing.T, s *Store, g *database.MemoryGraph, text string, vector []float32) *database.MemoryItem {
	t.Helper()
	item, dup, err := s.CreateItem(context.Background(), ItemInput{
		OwnerID:     g.OwnerID,
		GraphID:     g.ID,
		SourceDocID: "doc-1",
		Text:        text,
		Embedding:   vector,
	})
	require.NoError(t, err)
	require.False(t, dup)
	return item
}

func ptr(f float64) *float64 {
	return &f
}

// edgeSet reduces edges to id → weight for order-independent comparison
func edgeSet(edges []database.GraphEdge) map[string]float64 {
	out := make(map[string]float64, len(edges))
	for _, e := range edges {
		out[e.ID] = e.Weight
	}
	return out
}

func itemIDs(items []database.MemoryItem) []string {
	ids := make([]string, len(items))
	for i, item := range items {
		ids[i] = item.ID
	}
	sort.Strings(ids)
	return ids
}
