// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package graph

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_Related(t *testing.T) {
	ctx := context.Background()
	s := setupTestStore(t)
	g := mustGraph(t, s, "alice", "G")

	a := mustItem(t, s, g, "a", nil)
	b := mustItem(t, s, g, "b", nil)
	c := mustItem(t, s, g, "c", nil)
	d := mustItem(t, s, g, "d", nil)
	_, err := s.UpsertEdge(ctx, a.ID, b.ID, 0.9, g.ID)
	require.NoError(t, err)
	_, err = s.UpsertEdge(ctx, b.ID, c.ID, 0.8, g.ID)
	require.NoError(t, err)
	_, err = s.UpsertEdge(ctx, c.ID, d.ID, 0.55, g.ID)
	require.NoError(t, err)

	depths := func(n *Neighborhood) map[string]int {
		out := make(map[string]int, len(n.Nodes))
		for _, node := range n.Nodes {
			out[node.Item.ID] = node.Depth
		}
		return out
	}

	oneHop, err := s.Related(ctx, a.ID, 1, 0)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{a.ID: 0, b.ID: 1}, depths(oneHop))
	assert.Len(t, oneHop.Edges, 1)

	all, err := s.Related(ctx, a.ID, 5, 0)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{a.ID: 0, b.ID: 1, c.ID: 2, d.ID: 3}, depths(all))
	assert.Len(t, all.Edges, 3)

	strong, err := s.Related(ctx, a.ID, 5, 0.6)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{a.ID: 0, b.ID: 1, c.ID: 2}, depths(strong))

	_, err = s.Related(ctx, "memory-missing", 2, 0)
	assert.ErrorIs(t, err, ErrItemNotFound)
}

func TestStore_Related_ClampsHops(t *testing.T) {
	ctx := context.Background()
	s := setupTestStore(t)
	g := mustGraph(t, s, "alice", "G")

	items := make([]string, MaxTraversalHops+3)
	for i := range items {
		items[i] = mustItem(t, s, g, string(rune('a'+i)), nil).ID
	}
	for i := 1; i < len(items); i++ {
		_, err := s.UpsertEdge(ctx, items[i-1], items[i], 0.9, g.ID)
		require.NoError(t, err)
	}

	n, err := s.Related(ctx, items[0], 100, 0)
	require.NoError(t, err)
	assert.Len(t, n.Nodes, MaxTraversalHops+1)

	n, err = s.Related(ctx, items[0], 0, 0)
	require.NoError(t, err)
	assert.Len(t, n.Nodes, 2)
}
