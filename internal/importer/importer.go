// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package importer

import (
	"context"
	"fmt"

	"github.com/tejzpr/clipgraph/internal/graph"
	"go.uber.org/zap"
)

// Importer feeds clip documents into the graph engine as generated items
type Importer struct {
	svc    *graph.Service
	logger *zap.Logger
}

// New creates an importer
func New(svc *graph.Service, logger *zap.Logger) *Importer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Importer{svc: svc, logger: logger}
}

// Import stores every document for ownerID. graphID, when set, overrides
// the documents' own graph; otherwise documents without one go to the default graph.
func (im *Importer) Import(ctx context.Context, ownerID, graphID string, docs []Document) (*Summary, error) {
	summary := &Summary{}
	for _, doc := range docs {
		target := doc.GraphID
		if graphID != "" {
			target = graphID
		}

		result, err := im.svc.ImportGenerated(ctx, graph.ImportRequest{
			OwnerID:     ownerID,
			GraphID:     target,
			SourceDocID: doc.SourceDocID,
			SourceLabel: doc.SourceLabel,
			Texts:       doc.Clips,
			Threshold:   doc.Threshold,
		})
		if err != nil {
			return summary, fmt.Errorf("failed to import %s: %w", doc.SourceDocID, err)
		}

		summary.Documents++
		summary.Items += len(result.Items)
		summary.Duplicates += result.Duplicates
		summary.Skipped += result.Skipped
		summary.WithoutEmbedding += result.WithoutEmbedding
		summary.EdgesCreated += result.EdgesCreated

		im.logger.Debug("document imported",
			zap.String("source_doc_id", doc.SourceDocID),
			zap.String("graph_id", result.GraphID),
			zap.Int("items", len(result.Items)))
	}
	return summary, nil
}

// ImportFile loads path and imports its documents
func (im *Importer) ImportFile(ctx context.Context, ownerID, graphID, path string) (*Summary, error) {
	docs, err := LoadFile(path)
	if err != nil {
		return nil, err
	}
	return im.Import(ctx, ownerID, graphID, docs)
}
