// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package graph

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/tejzpr/clipgraph/internal/database"
	"github.com/tejzpr/clipgraph/internal/embeddings"
	"github.com/tejzpr/clipgraph/internal/locking"
	"go.uber.org/zap"
)

// Embedder produces embeddings for item text
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedAll(ctx context.Context, texts []string) ([][]float32, error)
	ModelName() string
}

// Options holds thresholds used when a caller supplies none
type Options struct {
	ConnectThreshold     float64
	RecalculateThreshold float64
	AnalyzeThreshold     float64
	GeneratedThreshold   float64
}

// DefaultOptions returns the standard thresholds
func DefaultOptions() Options {
	return Options{
		ConnectThreshold:     0.5,
		RecalculateThreshold: 0.5,
		AnalyzeThreshold:     0.5,
		GeneratedThreshold:   0.3,
	}
}

// Service is the graph engine's operation surface. Writes to a graph are
// serialized through the graph's lock; default-graph bootstrap through the owner's.
type Service struct {
	store    *Store
	builder  *EdgeBuilder
	recalc   *Recalculator
	analyzer *Analyzer
	embedder Embedder
	locker   locking.Locker
	opts     Options
	logger   *zap.Logger
}

// NewService wires a Service. embedder may be nil; items are then stored without embeddings.
func NewService(store *Store, embedder Embedder, locker locking.Locker, opts Options, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if locker == nil {
		locker = locking.NewKeyedMutex()
	}
	return &Service{
		store:    store,
		builder:  NewEdgeBuilder(store, logger),
		recalc:   NewRecalculator(store, logger),
		analyzer: NewAnalyzer(store, logger),
		embedder: embedder,
		locker:   locker,
		opts:     opts,
		logger:   logger,
	}
}

// Store returns the underlying store
func (s *Service) Store() *Store {
	return s.store
}

func (s *Service) withLock(ctx context.Context, key string, fn func() error) error {
	unlock, err := s.locker.Lock(ctx, key)
	if err != nil {
		return fmt.Errorf("failed to lock %s: %w", key, err)
	}
	defer unlock()
	return fn()
}

// EnsureDefaultGraph returns the owner's default graph, creating it on first use
func (s *Service) EnsureDefaultGraph(ctx context.Context, ownerID string) (*database.MemoryGraph, error) {
	if strings.TrimSpace(ownerID) == "" {
		return nil, validationError("ownerId", "must not be empty")
	}

	g, err := s.store.FindDefaultGraph(ctx, ownerID)
	if err != nil || g != nil {
		return g, err
	}

	err = s.withLock(ctx, locking.OwnerKey(ownerID), func() error {
		var err error
		g, err = s.store.GetOrCreateDefaultGraph(ctx, ownerID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return g, nil
}

// resolveGraph returns graphID's graph if it belongs to ownerID, or the owner's default when graphID is empty
func (s *Service) resolveGraph(ctx context.Context, ownerID, graphID string) (*database.MemoryGraph, error) {
	if graphID == "" {
		return s.EnsureDefaultGraph(ctx, ownerID)
	}
	g, err := s.store.GetGraph(ctx, graphID)
	if err != nil {
		return nil, err
	}
	if ownerID != "" && g.OwnerID != ownerID {
		return nil, ErrGraphNotFound
	}
	return g, nil
}

// GetGraph returns graphID if ownerID owns it; empty graphID means the owner's default graph
func (s *Service) GetGraph(ctx context.Context, ownerID, graphID string) (*database.MemoryGraph, error) {
	return s.resolveGraph(ctx, ownerID, graphID)
}

// GetItem returns itemID if ownerID owns it; another owner's item is reported as ErrItemNotFound
func (s *Service) GetItem(ctx context.Context, ownerID, itemID string) (*database.MemoryItem, error) {
	item, err := s.store.GetItem(ctx, itemID)
	if err != nil {
		return nil, err
	}
	if item.OwnerID != ownerID {
		return nil, ErrItemNotFound
	}
	return item, nil
}

// GraphStats summarizes a graph's size
type GraphStats struct {
	GraphID   string  `json:"graphId"`
	Items     int64   `json:"items"`
	Edges     int     `json:"edges"`
	MaxWeight float64 `json:"maxWeight"`
}

// Stats counts a graph's items and edges; empty graphID means the owner's default graph
func (s *Service) Stats(ctx context.Context, ownerID, graphID string) (*GraphStats, error) {
	g, err := s.resolveGraph(ctx, ownerID, graphID)
	if err != nil {
		return nil, err
	}

	items, err := s.store.CountItems(ctx, g.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to count items: %w", err)
	}
	edges, err := s.store.ListEdges(ctx, g.ID)
	if err != nil {
		return nil, err
	}

	stats := &GraphStats{GraphID: g.ID, Items: items, Edges: len(edges)}
	if len(edges) > 0 {
		stats.MaxWeight = edges[0].Weight
	}
	return stats, nil
}

// CreateGraph creates a new, non-default graph
func (s *Service) CreateGraph(ctx context.Context, ownerID, name string) (*database.MemoryGraph, error) {
	g, err := s.store.CreateGraph(ctx, ownerID, name, false)
	if err != nil {
		return nil, err
	}
	s.logger.Info("graph created", zap.String("graph_id", g.ID), zap.String("owner_id", ownerID))
	return g, nil
}

// ListGraphs returns the owner's graphs newest first, bootstrapping the default graph
func (s *Service) ListGraphs(ctx context.Context, ownerID string) ([]database.MemoryGraph, error) {
	if _, err := s.EnsureDefaultGraph(ctx, ownerID); err != nil {
		return nil, err
	}
	return s.store.ListGraphs(ctx, ownerID)
}

// RenameGraph renames a graph
func (s *Service) RenameGraph(ctx context.Context, graphID, name string) (*database.MemoryGraph, error) {
	var g *database.MemoryGraph
	err := s.withLock(ctx, locking.GraphKey(graphID), func() error {
		var err error
		g, err = s.store.RenameGraph(ctx, graphID, name)
		return err
	})
	return g, err
}

// DeleteGraph deletes a graph with all its items and edges
func (s *Service) DeleteGraph(ctx context.Context, graphID string) (bool, error) {
	var deleted bool
	err := s.withLock(ctx, locking.GraphKey(graphID), func() error {
		var err error
		deleted, err = s.store.DeleteGraph(ctx, graphID)
		return err
	})
	if err == nil && deleted {
		s.logger.Info("graph deleted", zap.String("graph_id", graphID))
	}
	return deleted, err
}

// AddItemRequest is the input of AddItem
type AddItemRequest struct {
	OwnerID     string
	SourceDocID string
	Text        string
	SourceLabel string
	GraphID     string   // Empty resolves to the owner's default graph
	Threshold   *float64 // Nil uses the configured connect threshold
}

// AddItemResult reports what AddItem stored
type AddItemResult struct {
	Item         *database.MemoryItem `json:"item"`
	EdgesCreated []database.GraphEdge `json:"edgesCreated"`
	Duplicate    bool                 `json:"duplicate"`
	HasEmbedding bool                 `json:"hasEmbedding"`
}

// AddItem stores text as an item and connects it to similar items.
// Embedding failures never fail the call: the item is kept without edges.
func (s *Service) AddItem(ctx context.Context, req AddItemRequest) (*AddItemResult, error) {
	if strings.TrimSpace(req.OwnerID) == "" {
		return nil, validationError("ownerId", "must not be empty")
	}
	if strings.TrimSpace(req.SourceDocID) == "" {
		return nil, validationError("sourceDocId", "must not be empty")
	}
	if strings.TrimSpace(req.Text) == "" {
		return nil, validationError("text", "must not be empty")
	}
	threshold, err := s.threshold(req.Threshold, s.opts.ConnectThreshold)
	if err != nil {
		return nil, err
	}

	g, err := s.resolveGraph(ctx, req.OwnerID, req.GraphID)
	if err != nil {
		return nil, err
	}

	// Skip the embedding call for known duplicates
	dup, err := s.store.FindDuplicate(ctx, g.ID, req.SourceDocID, req.Text)
	if err != nil {
		return nil, err
	}
	if dup != nil {
		return duplicateResult(dup), nil
	}

	vector := s.embed(ctx, req.Text)

	// The item is persisted even if the caller's deadline ran out while embedding
	ctx = context.WithoutCancel(ctx)

	var result *AddItemResult
	err = s.withLock(ctx, locking.GraphKey(g.ID), func() error {
		item, duplicate, err := s.store.CreateItem(ctx, ItemInput{
			OwnerID:        req.OwnerID,
			GraphID:        g.ID,
			SourceDocID:    req.SourceDocID,
			Text:           req.Text,
			SourceLabel:    req.SourceLabel,
			Origin:         database.OriginManualClip,
			Embedding:      vector,
			EmbeddingModel: s.modelName(),
		})
		if err != nil {
			return err
		}
		if duplicate {
			result = duplicateResult(item)
			return nil
		}

		edges, err := s.builder.BuildForNewItem(ctx, item, threshold)
		if err != nil {
			s.logger.Error("failed to build edges for new item",
				zap.String("item_id", item.ID), zap.Int("edges_written", len(edges)), zap.Error(err))
		}
		result = &AddItemResult{
			Item:         item,
			EdgesCreated: edges,
			HasEmbedding: item.HasEmbedding,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Debug("item added",
		zap.String("item_id", result.Item.ID),
		zap.String("graph_id", g.ID),
		zap.Bool("duplicate", result.Duplicate),
		zap.Bool("has_embedding", result.HasEmbedding),
		zap.Int("edges", len(result.EdgesCreated)))
	return result, nil
}

func duplicateResult(item *database.MemoryItem) *AddItemResult {
	return &AddItemResult{
		Item:         item,
		EdgesCreated: []database.GraphEdge{},
		Duplicate:    true,
		HasEmbedding: item.HasEmbedding,
	}
}

// embed returns text's embedding or nil, logging provider failures
func (s *Service) embed(ctx context.Context, text string) []float32 {
	if s.embedder == nil {
		return nil
	}
	vector, err := s.embedder.Embed(ctx, text)
	if errors.Is(err, embeddings.ErrDisabled) {
		return nil
	}
	if err != nil {
		s.logger.Warn("embedding unavailable, storing item without connections", zap.Error(err))
		return nil
	}
	return vector
}

func (s *Service) modelName() string {
	if s.embedder == nil {
		return ""
	}
	return s.embedder.ModelName()
}

func (s *Service) threshold(requested *float64, fallback float64) (float64, error) {
	if requested == nil {
		return fallback, nil
	}
	if *requested < 0 || *requested > 1 {
		return 0, validationError("threshold", "must be between 0 and 1")
	}
	return *requested, nil
}

// ListGraphData returns a graph's items and edges; empty graphID means the owner's default graph
func (s *Service) ListGraphData(ctx context.Context, ownerID, graphID string) (*GraphData, error) {
	g, err := s.resolveGraph(ctx, ownerID, graphID)
	if err != nil {
		return nil, err
	}
	return s.store.GetGraphData(ctx, ItemFilter{OwnerID: ownerID, GraphID: g.ID})
}

// DeleteItem deletes an item and its edges. Other edges are left as they are.
func (s *Service) DeleteItem(ctx context.Context, itemID string) (bool, error) {
	item, err := s.store.GetItem(ctx, itemID)
	if errors.Is(err, ErrItemNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	var deleted bool
	err = s.withLock(ctx, locking.GraphKey(item.GraphID), func() error {
		var err error
		deleted, err = s.store.DeleteItem(ctx, itemID)
		return err
	})
	return deleted, err
}

// Recalculate rebuilds graphID's edges under its exclusive lock.
// An empty graphID runs the deprecated global mode.
func (s *Service) Recalculate(ctx context.Context, graphID string, threshold *float64) (*RecalcResult, error) {
	t, err := s.threshold(threshold, s.opts.RecalculateThreshold)
	if err != nil {
		return nil, err
	}
	if graphID == "" {
		return s.recalculateAll(ctx, t)
	}

	var result *RecalcResult
	err = s.withLock(ctx, locking.GraphKey(graphID), func() error {
		var err error
		result, err = s.recalc.Recalculate(ctx, graphID, t)
		return err
	})
	if err != nil {
		return nil, err
	}

	result.GraphData, err = s.store.GetGraphData(ctx, ItemFilter{GraphID: graphID})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// recalculateAll recalculates every graph independently; no edge ever crosses graphs.
//
// Deprecated: callers should recalculate one graph at a time.
func (s *Service) recalculateAll(ctx context.Context, threshold float64) (*RecalcResult, error) {
	s.logger.Warn("global recalculation is deprecated; recalculating each graph separately")

	ids, err := s.store.ListGraphIDs(ctx)
	if err != nil {
		return nil, err
	}

	total := &RecalcResult{Threshold: threshold}
	for _, id := range ids {
		err := s.withLock(ctx, locking.GraphKey(id), func() error {
			r, err := s.recalc.Recalculate(ctx, id, threshold)
			if errors.Is(err, ErrGraphNotFound) {
				return nil
			}
			if err != nil {
				return err
			}
			total.EdgesCreated += r.EdgesCreated
			total.ItemsCompared += r.ItemsCompared
			total.SkippedPairs += r.SkippedPairs
			total.GraphsProcessed++
			return nil
		})
		if err != nil {
			return nil, err
		}
	}

	total.GraphData, err = s.store.GetGraphData(ctx, ItemFilter{})
	if err != nil {
		return nil, err
	}
	return total, nil
}

// Analyze reports pairwise similarities; empty graphID means the owner's default graph
func (s *Service) Analyze(ctx context.Context, ownerID, graphID string, threshold *float64) (*AnalysisReport, error) {
	t, err := s.threshold(threshold, s.opts.AnalyzeThreshold)
	if err != nil {
		return nil, err
	}
	g, err := s.resolveGraph(ctx, ownerID, graphID)
	if err != nil {
		return nil, err
	}
	return s.analyzer.Analyze(ctx, g.ID, t)
}

// Related returns the neighborhood of an item
func (s *Service) Related(ctx context.Context, itemID string, maxHops int, minWeight float64) (*Neighborhood, error) {
	return s.store.Related(ctx, itemID, maxHops, minWeight)
}
