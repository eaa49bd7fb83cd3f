// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package graph

import (
	"context"
	"strings"

	"github.com/tejzpr/clipgraph/internal/database"
	"github.com/tejzpr/clipgraph/internal/locking"
	"go.uber.org/zap"
)

// ImportRequest is a bulk insert of generated passages from one source
type ImportRequest struct {
	OwnerID     string
	GraphID     string // Empty resolves to the owner's default graph
	SourceDocID string
	SourceLabel string
	Texts       []string
	Threshold   *float64 // Nil uses the configured generated threshold
}

// ImportResult reports the outcome of ImportGenerated
type ImportResult struct {
	GraphID          string                `json:"graphId"`
	Items            []database.MemoryItem `json:"items"`
	Duplicates       int                   `json:"duplicates"`
	Skipped          int                   `json:"skipped"`
	WithoutEmbedding int                   `json:"withoutEmbedding"`
	EdgesCreated     int                   `json:"edgesCreated"`
}

// ImportGenerated stores texts as items with origin "generated" and connects each
// one as it is inserted. Blank texts are skipped; duplicates are counted, not stored.
func (s *Service) ImportGenerated(ctx context.Context, req ImportRequest) (*ImportResult, error) {
	if strings.TrimSpace(req.OwnerID) == "" {
		return nil, validationError("ownerId", "must not be empty")
	}
	if strings.TrimSpace(req.SourceDocID) == "" {
		return nil, validationError("sourceDocId", "must not be empty")
	}
	threshold, err := s.threshold(req.Threshold, s.opts.GeneratedThreshold)
	if err != nil {
		return nil, err
	}

	g, err := s.resolveGraph(ctx, req.OwnerID, req.GraphID)
	if err != nil {
		return nil, err
	}

	result := &ImportResult{GraphID: g.ID, Items: make([]database.MemoryItem, 0, len(req.Texts))}

	texts := make([]string, 0, len(req.Texts))
	for _, text := range req.Texts {
		if strings.TrimSpace(text) == "" {
			result.Skipped++
			continue
		}
		texts = append(texts, text)
	}
	if len(texts) == 0 {
		return result, nil
	}

	vectors := make([][]float32, len(texts))
	if s.embedder != nil {
		if vectors, err = s.embedder.EmbedAll(ctx, texts); err != nil {
			return nil, err
		}
	}

	err = s.withLock(ctx, locking.GraphKey(g.ID), func() error {
		for i, text := range texts {
			item, duplicate, err := s.store.CreateItem(ctx, ItemInput{
				OwnerID:        req.OwnerID,
				GraphID:        g.ID,
				SourceDocID:    req.SourceDocID,
				Text:           text,
				SourceLabel:    req.SourceLabel,
				Origin:         database.OriginGenerated,
				Embedding:      vectors[i],
				EmbeddingModel: s.modelName(),
			})
			if err != nil {
				return err
			}
			if duplicate {
				result.Duplicates++
				continue
			}
			if !item.HasEmbedding {
				result.WithoutEmbedding++
			}

			edges, err := s.builder.BuildForNewItem(ctx, item, threshold)
			if err != nil {
				s.logger.Error("failed to build edges for imported item", zap.String("item_id", item.ID), zap.Error(err))
			}
			result.EdgesCreated += len(edges)
			result.Items = append(result.Items, *item)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("generated items imported",
		zap.String("graph_id", g.ID),
		zap.Int("items", len(result.Items)),
		zap.Int("duplicates", result.Duplicates),
		zap.Int("edges", result.EdgesCreated))
	return result, nil
}
