// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package graph

import (
	"context"

	"github.com/tejzpr/clipgraph/internal/database"
)

// MaxTraversalHops caps how far Related walks from the start item
const MaxTraversalHops = 5

// RelatedNode is an item reached during traversal
type RelatedNode struct {
	Item  database.MemoryItem `json:"item"`
	Depth int                 `json:"depth"`
}

// Neighborhood is the subgraph reachable from a start item
type Neighborhood struct {
	Start string               `json:"start"`
	Nodes []RelatedNode        `json:"nodes"`
	Edges []database.GraphEdge `json:"edges"`
}

// Related walks similarity edges breadth-first from itemID up to maxHops,
// following only edges with weight >= minWeight.
func (s *Store) Related(ctx context.Context, itemID string, maxHops int, minWeight float64) (*Neighborhood, error) {
	if maxHops < 1 {
		maxHops = 1
	}
	if maxHops > MaxTraversalHops {
		maxHops = MaxTraversalHops
	}

	start, err := s.GetItem(ctx, itemID)
	if err != nil {
		return nil, err
	}

	result := &Neighborhood{
		Start: itemID,
		Nodes: []RelatedNode{{Item: *start, Depth: 0}},
		Edges: []database.GraphEdge{},
	}

	type queueItem struct {
		itemID string
		depth  int
	}

	queue := []queueItem{{itemID, 0}}
	visited := map[string]bool{itemID: true}
	seenEdges := make(map[string]bool)

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		if current.depth >= maxHops {
			continue
		}

		edges, err := s.EdgesForItem(ctx, current.itemID)
		if err != nil {
			return nil, err
		}

		for _, edge := range edges {
			if edge.Weight < minWeight {
				continue
			}
			if !seenEdges[edge.ID] {
				seenEdges[edge.ID] = true
				result.Edges = append(result.Edges, edge)
			}

			neighborID := edge.Target
			if neighborID == current.itemID {
				neighborID = edge.Source
			}
			if visited[neighborID] {
				continue
			}
			visited[neighborID] = true

			neighbor, err := s.GetItem(ctx, neighborID)
			if err != nil {
				// edge outlived its item; cascades make this transient
				continue
			}
			result.Nodes = append(result.Nodes, RelatedNode{Item: *neighbor, Depth: current.depth + 1})
			queue = append(queue, queueItem{neighborID, current.depth + 1})
		}
	}

	return result, nil
}
