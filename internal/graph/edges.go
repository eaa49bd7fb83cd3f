// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package graph

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tejzpr/clipgraph/internal/database"
	"github.com/tejzpr/clipgraph/internal/similarity"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// EdgeBuilder connects a newly inserted item to similar items in its graph
type EdgeBuilder struct {
	store  *Store
	logger *zap.Logger
}

// NewEdgeBuilder creates an incremental edge builder
func NewEdgeBuilder(store *Store, logger *zap.Logger) *EdgeBuilder {
	return &EdgeBuilder{store: store, logger: logger}
}

// BuildForNewItem upserts an edge to every same-graph, same-owner item whose
// similarity to item is strictly above threshold, and returns the edges written.
// An item without an embedding gets no edges and no error.
func (b *EdgeBuilder) BuildForNewItem(ctx context.Context, item *database.MemoryItem, threshold float64) ([]database.GraphEdge, error) {
	created := make([]database.GraphEdge, 0)

	vector := item.Vector()
	if len(vector) == 0 {
		return created, nil
	}

	candidates, err := embeddedItems(b.store.db.WithContext(ctx), item.GraphID, item.OwnerID)
	if err != nil {
		return created, err
	}

	for i := range candidates {
		candidate := &candidates[i]
		if candidate.ID == item.ID {
			continue
		}

		sim, err := similarity.Cosine(vector, candidate.Vector())
		if err != nil {
			b.logger.Debug("skipping candidate",
				zap.String("item_id", item.ID),
				zap.String("candidate_id", candidate.ID),
				zap.Error(err))
			continue
		}
		if sim <= threshold {
			continue
		}

		edge, err := b.store.UpsertEdge(ctx, item.ID, candidate.ID, sim, item.GraphID)
		if errors.Is(err, ErrItemNotFound) {
			continue
		}
		if err != nil {
			return created, err
		}
		created = append(created, *edge)
	}

	return created, nil
}

// RecalcResult summarizes a batch recalculation
type RecalcResult struct {
	GraphID         string     `json:"graphId,omitempty"`
	EdgesCreated    int        `json:"edgesCreated"`
	GraphsProcessed int        `json:"graphsProcessed"`
	ItemsCompared   int        `json:"itemsCompared"`
	SkippedPairs    int        `json:"skippedPairs,omitempty"`
	Threshold       float64    `json:"threshold"`
	Duration        string     `json:"duration"`
	GraphData       *GraphData `json:"graphData,omitempty"`
}

// Recalculator rebuilds a graph's edge set from scratch.
// Cost is O(n²) in the graph's item count.
type Recalculator struct {
	store  *Store
	logger *zap.Logger
}

// NewRecalculator creates a batch recalculator
func NewRecalculator(store *Store, logger *zap.Logger) *Recalculator {
	return &Recalculator{store: store, logger: logger}
}

// Recalculate clears graphID's edges and re-creates one for every pair of
// embedded items with similarity strictly above threshold, in one transaction.
// The caller must hold the graph's exclusive lock.
func (r *Recalculator) Recalculate(ctx context.Context, graphID string, threshold float64) (*RecalcResult, error) {
	start := time.Now()
	result := &RecalcResult{GraphID: graphID, GraphsProcessed: 1, Threshold: threshold}

	err := r.store.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := getGraph(tx, graphID); err != nil {
			return err
		}

		items, err := embeddedItems(tx, graphID, "")
		if err != nil {
			return err
		}
		vectors := decodeVectors(items)
		result.ItemsCompared = len(vectors)

		if err := clearEdges(tx, graphID); err != nil {
			return err
		}

		now := time.Now()
		var edges []database.GraphEdge
		result.SkippedPairs = forEachPair(vectors, r.logger, func(a, b *database.MemoryItem, sim float64) {
			if sim > threshold {
				edges = append(edges, database.GraphEdge{
					ID:        EdgeID(a.ID, b.ID),
					GraphID:   graphID,
					Source:    a.ID,
					Target:    b.ID,
					Weight:    sim,
					CreatedAt: now,
				})
			}
		})

		if err := saveEdges(tx, edges); err != nil {
			return err
		}
		result.EdgesCreated = len(edges)
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrGraphNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to recalculate graph %s: %w", graphID, err)
	}

	result.Duration = time.Since(start).String()
	r.logger.Info("graph recalculated",
		zap.String("graph_id", graphID),
		zap.Int("items", result.ItemsCompared),
		zap.Int("edges", result.EdgesCreated),
		zap.Float64("threshold", threshold),
		zap.Duration("took", time.Since(start)))

	return result, nil
}
