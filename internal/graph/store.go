// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package graph

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tejzpr/clipgraph/internal/database"
	"github.com/tejzpr/clipgraph/internal/embeddings"
	"github.com/tejzpr/clipgraph/internal/locking"
	"golang.org/x/text/cases"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// edgeBatchSize bounds rows per INSERT when saving many edges
const edgeBatchSize = 100

// Store persists graphs, items and edges and applies cascade rules
type Store struct {
	db             *gorm.DB
	protectDefault bool
}

// NewStore creates a new graph store
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// WithDefaultProtection makes DeleteGraph refuse default graphs
func (s *Store) WithDefaultProtection(enabled bool) *Store {
	s.protectDefault = enabled
	return s
}

// DB returns the underlying database handle
func (s *Store) DB() *gorm.DB {
	return s.db
}

// ItemFilter selects items. Empty fields are absent: no fields means every item,
// one field filters by it, both intersect.
type ItemFilter struct {
	OwnerID string
	GraphID string
}

// ItemInput holds the fields of a new item
type ItemInput struct {
	OwnerID        string
	GraphID        string
	SourceDocID    string
	Text           string
	SourceLabel    string
	Origin         string
	Embedding      []float32
	EmbeddingModel string
}

// GraphData is a set of items and the edges among them
type GraphData struct {
	Items []database.MemoryItem `json:"items"`
	Edges []database.GraphEdge  `json:"edges"`
}

// NormalizeText trims and case-folds text for duplicate detection
func NormalizeText(text string) string {
	return cases.Fold().String(strings.TrimSpace(text))
}

// DedupHash is the stored fingerprint of normalized text
func DedupHash(text string) string {
	return embeddings.CalculateContentHash(NormalizeText(text))
}

// EdgeID returns the direction-free id of the edge between a and b
func EdgeID(a, b string) string {
	if a > b {
		a, b = b, a
	}
	return a + "~" + b
}

func newGraphID() string {
	return "graph-" + uuid.NewString()
}

func newItemID() string {
	return "memory-" + uuid.NewString()
}

// CreateGraph creates a graph for owner
func (s *Store) CreateGraph(ctx context.Context, ownerID, name string, isDefault bool) (*database.MemoryGraph, error) {
	if strings.TrimSpace(ownerID) == "" {
		return nil, validationError("ownerId", "must not be empty")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, validationError("name", "must not be empty")
	}

	g := &database.MemoryGraph{
		ID:        newGraphID(),
		OwnerID:   ownerID,
		Name:      name,
		IsDefault: isDefault,
		Version:   1,
		CreatedAt: time.Now(),
	}
	if err := s.db.WithContext(ctx).Create(g).Error; err != nil {
		return nil, fmt.Errorf("failed to create graph: %w", err)
	}
	return g, nil
}

// ListGraphs returns the owner's graphs, newest first
func (s *Store) ListGraphs(ctx context.Context, ownerID string) ([]database.MemoryGraph, error) {
	graphs := make([]database.MemoryGraph, 0)
	err := s.db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("created_at DESC, id DESC").
		Find(&graphs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list graphs: %w", err)
	}
	return graphs, nil
}

// ListGraphIDs returns every graph id in the store
func (s *Store) ListGraphIDs(ctx context.Context) ([]string, error) {
	var ids []string
	if err := s.db.WithContext(ctx).Model(&database.MemoryGraph{}).Order("id").Pluck("id", &ids).Error; err != nil {
		return nil, fmt.Errorf("failed to list graph ids: %w", err)
	}
	return ids, nil
}

// GetGraph returns a graph by id
func (s *Store) GetGraph(ctx context.Context, id string) (*database.MemoryGraph, error) {
	return getGraph(s.db.WithContext(ctx), id)
}

func getGraph(db *gorm.DB, id string) (*database.MemoryGraph, error) {
	var g database.MemoryGraph
	err := db.Where("id = ?", id).First(&g).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrGraphNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get graph: %w", err)
	}
	return &g, nil
}

// FindDefaultGraph returns the owner's default graph, or nil when there is none
func (s *Store) FindDefaultGraph(ctx context.Context, ownerID string) (*database.MemoryGraph, error) {
	var graphs []database.MemoryGraph
	err := s.db.WithContext(ctx).
		Where("owner_id = ? AND is_default = ?", ownerID, true).
		Limit(1).Find(&graphs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to find default graph: %w", err)
	}
	if len(graphs) == 0 {
		return nil, nil
	}
	return &graphs[0], nil
}

// GetOrCreateDefaultGraph returns the owner's default graph, creating it if needed.
// Callers serialize per owner; the unique index settles races between processes.
func (s *Store) GetOrCreateDefaultGraph(ctx context.Context, ownerID string) (*database.MemoryGraph, error) {
	g, err := s.FindDefaultGraph(ctx, ownerID)
	if err != nil || g != nil {
		return g, err
	}

	g, createErr := s.CreateGraph(ctx, ownerID, database.DefaultGraphName, true)
	if createErr == nil {
		return g, nil
	}

	// Lost a race with another process
	g, err = s.FindDefaultGraph(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	if g == nil {
		return nil, createErr
	}
	return g, nil
}

// RenameGraph renames a graph using an optimistic version check
func (s *Store) RenameGraph(ctx context.Context, id, newName string) (*database.MemoryGraph, error) {
	newName = strings.TrimSpace(newName)
	if newName == "" {
		return nil, validationError("name", "must not be empty")
	}

	db := s.db.WithContext(ctx)
	err := locking.RetryWithBackoff(locking.MaxRetries, locking.RetryDelay, func() error {
		g, err := getGraph(db, id)
		if err != nil {
			return err
		}
		return locking.UpdateWithVersion(db, database.MemoryGraph{}.TableName(), id, g.Version, map[string]interface{}{
			"name":       newName,
			"updated_at": time.Now(),
		})
	})
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrGraphNotFound
	}
	if err != nil {
		return nil, err
	}

	return getGraph(db, id)
}

// DeleteGraph removes a graph with its items and edges.
// Returns false when the graph does not exist.
func (s *Store) DeleteGraph(ctx context.Context, id string) (bool, error) {
	deleted := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		g, err := getGraph(tx, id)
		if errors.Is(err, ErrGraphNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if g.IsDefault && s.protectDefault {
			return ErrCannotDeleteDefault
		}

		if err := tx.Where("graph_id = ?", id).Delete(&database.GraphEdge{}).Error; err != nil {
			return fmt.Errorf("failed to delete graph edges: %w", err)
		}
		if err := tx.Where("graph_id = ?", id).Delete(&database.MemoryItem{}).Error; err != nil {
			return fmt.Errorf("failed to delete graph items: %w", err)
		}
		if err := tx.Where("id = ?", id).Delete(&database.MemoryGraph{}).Error; err != nil {
			return fmt.Errorf("failed to delete graph: %w", err)
		}
		deleted = true
		return nil
	})
	return deleted, err
}

// CreateItem stores a new item unless the graph already holds the same
// (sourceDocId, normalized text); then the existing item is returned with duplicate=true.
func (s *Store) CreateItem(ctx context.Context, in ItemInput) (*database.MemoryItem, bool, error) {
	if err := validateItemInput(&in); err != nil {
		return nil, false, err
	}

	item := &database.MemoryItem{
		ID:          newItemID(),
		OwnerID:     in.OwnerID,
		GraphID:     in.GraphID,
		SourceDocID: in.SourceDocID,
		Text:        in.Text,
		DedupHash:   DedupHash(in.Text),
		SourceLabel: strings.TrimSpace(in.SourceLabel),
		Origin:      in.Origin,
		CreatedAt:   time.Now(),
	}
	item.SetVector(in.Embedding, in.EmbeddingModel)

	var existing *database.MemoryItem
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		g, err := getGraph(tx, in.GraphID)
		if err != nil {
			return err
		}
		if g.OwnerID != in.OwnerID {
			return ErrGraphNotFound
		}

		existing, err = findDuplicate(tx, in.GraphID, in.SourceDocID, item.DedupHash)
		if err != nil || existing != nil {
			return err
		}

		if err := tx.Create(item).Error; err != nil {
			return fmt.Errorf("failed to create item: %w", err)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrGraphNotFound) {
			return nil, false, err
		}
		// The unique index may have caught a concurrent insert from another process
		if dup, findErr := s.FindDuplicate(ctx, in.GraphID, in.SourceDocID, in.Text); findErr == nil && dup != nil {
			return dup, true, nil
		}
		return nil, false, err
	}
	if existing != nil {
		return existing, true, nil
	}
	return item, false, nil
}

func validateItemInput(in *ItemInput) error {
	if strings.TrimSpace(in.OwnerID) == "" {
		return validationError("ownerId", "must not be empty")
	}
	if strings.TrimSpace(in.GraphID) == "" {
		return validationError("graphId", "must not be empty")
	}
	if strings.TrimSpace(in.SourceDocID) == "" {
		return validationError("sourceDocId", "must not be empty")
	}
	if strings.TrimSpace(in.Text) == "" {
		return validationError("text", "must not be empty")
	}
	switch in.Origin {
	case "":
		in.Origin = database.OriginManualClip
	case database.OriginManualClip, database.OriginGenerated:
	default:
		return validationError("origin", fmt.Sprintf("unknown origin %q", in.Origin))
	}
	return nil
}

// FindDuplicate returns the item in graphID with the same source and normalized text, or nil
func (s *Store) FindDuplicate(ctx context.Context, graphID, sourceDocID, text string) (*database.MemoryItem, error) {
	return findDuplicate(s.db.WithContext(ctx), graphID, sourceDocID, DedupHash(text))
}

func findDuplicate(db *gorm.DB, graphID, sourceDocID, hash string) (*database.MemoryItem, error) {
	var items []database.MemoryItem
	err := db.Where("graph_id = ? AND source_doc_id = ? AND dedup_hash = ?", graphID, sourceDocID, hash).
		Limit(1).Find(&items).Error
	if err != nil {
		return nil, fmt.Errorf("failed to check duplicate: %w", err)
	}
	if len(items) == 0 {
		return nil, nil
	}
	return &items[0], nil
}

// GetItem returns an item by id
func (s *Store) GetItem(ctx context.Context, id string) (*database.MemoryItem, error) {
	var item database.MemoryItem
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrItemNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get item: %w", err)
	}
	return &item, nil
}

// ListItems returns items matching filter, newest first
func (s *Store) ListItems(ctx context.Context, filter ItemFilter) ([]database.MemoryItem, error) {
	return listItems(s.db.WithContext(ctx), filter)
}

func listItems(db *gorm.DB, filter ItemFilter) ([]database.MemoryItem, error) {
	q := db.Model(&database.MemoryItem{})
	if filter.OwnerID != "" {
		q = q.Where("owner_id = ?", filter.OwnerID)
	}
	if filter.GraphID != "" {
		q = q.Where("graph_id = ?", filter.GraphID)
	}

	items := make([]database.MemoryItem, 0)
	if err := q.Order("created_at DESC, id DESC").Find(&items).Error; err != nil {
		return nil, fmt.Errorf("failed to list items: %w", err)
	}
	return items, nil
}

// embeddedItems returns items of one graph (and owner, when given) that carry an embedding, ordered by id
func embeddedItems(db *gorm.DB, graphID, ownerID string) ([]database.MemoryItem, error) {
	q := db.Where("graph_id = ? AND has_embedding = ?", graphID, true)
	if ownerID != "" {
		q = q.Where("owner_id = ?", ownerID)
	}

	var items []database.MemoryItem
	if err := q.Order("id").Find(&items).Error; err != nil {
		return nil, fmt.Errorf("failed to load embedded items: %w", err)
	}
	return items, nil
}

// DeleteItem removes an item and every edge touching it.
// Returns false when the item does not exist.
func (s *Store) DeleteItem(ctx context.Context, id string) (bool, error) {
	deleted := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("source_id = ? OR target_id = ?", id, id).Delete(&database.GraphEdge{}).Error; err != nil {
			return fmt.Errorf("failed to delete item edges: %w", err)
		}
		result := tx.Where("id = ?", id).Delete(&database.MemoryItem{})
		if result.Error != nil {
			return fmt.Errorf("failed to delete item: %w", result.Error)
		}
		deleted = result.RowsAffected > 0
		return nil
	})
	return deleted, err
}

// UpsertEdge creates or overwrites the undirected edge between source and target
func (s *Store) UpsertEdge(ctx context.Context, source, target string, weight float64, graphID string) (*database.GraphEdge, error) {
	if source == target {
		return nil, ErrSelfEdge
	}

	edge := &database.GraphEdge{
		ID:        EdgeID(source, target),
		GraphID:   graphID,
		Source:    source,
		Target:    target,
		Weight:    weight,
		CreatedAt: time.Now(),
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var endpoints []database.MemoryItem
		if err := tx.Select("id", "graph_id").Where("id IN ?", []string{source, target}).Find(&endpoints).Error; err != nil {
			return fmt.Errorf("failed to load edge endpoints: %w", err)
		}
		if len(endpoints) != 2 {
			return ErrItemNotFound
		}
		for _, e := range endpoints {
			if e.GraphID != graphID {
				return ErrCrossGraphEdge
			}
		}
		return saveEdges(tx, []database.GraphEdge{*edge})
	})
	if err != nil {
		return nil, err
	}
	return edge, nil
}

// saveEdges upserts edges whose endpoints were already validated
func saveEdges(db *gorm.DB, edges []database.GraphEdge) error {
	if len(edges) == 0 {
		return nil
	}
	err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"source_id", "target_id", "weight", "created_at"}),
	}).CreateInBatches(&edges, edgeBatchSize).Error
	if err != nil {
		return fmt.Errorf("failed to save edges: %w", err)
	}
	return nil
}

// clearEdges deletes every edge of a graph
func clearEdges(db *gorm.DB, graphID string) error {
	if err := db.Where("graph_id = ?", graphID).Delete(&database.GraphEdge{}).Error; err != nil {
		return fmt.Errorf("failed to clear edges: %w", err)
	}
	return nil
}

// ListEdges returns the edges of one graph, strongest first
func (s *Store) ListEdges(ctx context.Context, graphID string) ([]database.GraphEdge, error) {
	edges := make([]database.GraphEdge, 0)
	err := s.db.WithContext(ctx).Where("graph_id = ?", graphID).Order("weight DESC, id").Find(&edges).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list edges: %w", err)
	}
	return edges, nil
}

// EdgesForItem returns every edge touching an item
func (s *Store) EdgesForItem(ctx context.Context, itemID string) ([]database.GraphEdge, error) {
	var edges []database.GraphEdge
	err := s.db.WithContext(ctx).
		Where("source_id = ? OR target_id = ?", itemID, itemID).
		Order("weight DESC, id").
		Find(&edges).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get item edges: %w", err)
	}
	return edges, nil
}

// GetGraphData returns the items matching filter and the edges among them
func (s *Store) GetGraphData(ctx context.Context, filter ItemFilter) (*GraphData, error) {
	db := s.db.WithContext(ctx)

	items, err := listItems(db, filter)
	if err != nil {
		return nil, err
	}

	present := make(map[string]struct{}, len(items))
	for _, item := range items {
		present[item.ID] = struct{}{}
	}

	q := db.Model(&database.GraphEdge{})
	switch {
	case filter.GraphID != "":
		q = q.Where("graph_id = ?", filter.GraphID)
	case filter.OwnerID != "":
		q = q.Where("graph_id IN (?)", db.Model(&database.MemoryGraph{}).Select("id").Where("owner_id = ?", filter.OwnerID))
	}

	var candidates []database.GraphEdge
	if err := q.Order("created_at, id").Find(&candidates).Error; err != nil {
		return nil, fmt.Errorf("failed to list edges: %w", err)
	}

	edges := make([]database.GraphEdge, 0, len(candidates))
	for _, e := range candidates {
		_, srcOK := present[e.Source]
		_, dstOK := present[e.Target]
		if srcOK && dstOK {
			edges = append(edges, e)
		}
	}

	return &GraphData{Items: items, Edges: edges}, nil
}

// CountItems returns the number of items in a graph
func (s *Store) CountItems(ctx context.Context, graphID string) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&database.MemoryItem{}).Where("graph_id = ?", graphID).Count(&count).Error
	return count, err
}
