// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package graph

import (
	"context"
	"sort"

	"github.com/tejzpr/clipgraph/internal/database"
	"go.uber.org/zap"
)

// previewRunes is the length of item text previews in analysis reports
const previewRunes = 80

// PairItem identifies one side of an analyzed pair
type PairItem struct {
	ID          string `json:"id"`
	Preview     string `json:"preview"`
	SourceLabel string `json:"sourceLabel,omitempty"`
}

// PairAnalysis is the similarity of one unordered item pair
type PairAnalysis struct {
	ItemA      PairItem `json:"itemA"`
	ItemB      PairItem `json:"itemB"`
	Similarity float64  `json:"similarity"`
	Connected  bool     `json:"connected"`
}

// AnalysisSummary aggregates an analysis report
type AnalysisSummary struct {
	TotalItems          int     `json:"totalItems"`
	ItemsWithEmbeddings int     `json:"itemsWithEmbeddings"`
	TotalPairs          int     `json:"totalPairs"`
	ConnectedPairs      int     `json:"connectedPairs"`
	SkippedPairs        int     `json:"skippedPairs"`
	Threshold           float64 `json:"threshold"`
	HighestSimilarity   float64 `json:"highestSimilarity"`
	LowestSimilarity    float64 `json:"lowestSimilarity"`
}

// AnalysisReport lists every pairwise similarity in a graph
type AnalysisReport struct {
	GraphID string          `json:"graphId"`
	Pairs   []PairAnalysis  `json:"pairs"`
	Summary AnalysisSummary `json:"summary"`
}

// Analyzer reports pairwise similarities without writing anything
type Analyzer struct {
	store  *Store
	logger *zap.Logger
}

// NewAnalyzer creates a similarity analyzer
func NewAnalyzer(store *Store, logger *zap.Logger) *Analyzer {
	return &Analyzer{store: store, logger: logger}
}

// Analyze scores every pair of embedded items in graphID, most similar first.
// A pair is marked connected when its similarity is strictly above threshold.
func (a *Analyzer) Analyze(ctx context.Context, graphID string, threshold float64) (*AnalysisReport, error) {
	if threshold < 0 || threshold > 1 {
		return nil, validationError("threshold", "must be between 0 and 1")
	}
	if _, err := a.store.GetGraph(ctx, graphID); err != nil {
		return nil, err
	}

	items, err := a.store.ListItems(ctx, ItemFilter{GraphID: graphID})
	if err != nil {
		return nil, err
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	vectors := decodeVectors(items)

	report := &AnalysisReport{
		GraphID: graphID,
		Pairs:   make([]PairAnalysis, 0),
		Summary: AnalysisSummary{
			TotalItems:          len(items),
			ItemsWithEmbeddings: len(vectors),
			Threshold:           threshold,
		},
	}

	report.Summary.SkippedPairs = forEachPair(vectors, a.logger, func(x, y *database.MemoryItem, sim float64) {
		report.Pairs = append(report.Pairs, PairAnalysis{
			ItemA:      pairItem(x),
			ItemB:      pairItem(y),
			Similarity: sim,
			Connected:  sim > threshold,
		})
	})

	sort.SliceStable(report.Pairs, func(i, j int) bool {
		return report.Pairs[i].Similarity > report.Pairs[j].Similarity
	})

	report.Summary.TotalPairs = len(report.Pairs)
	for _, p := range report.Pairs {
		if p.Connected {
			report.Summary.ConnectedPairs++
		}
	}
	if n := len(report.Pairs); n > 0 {
		report.Summary.HighestSimilarity = report.Pairs[0].Similarity
		report.Summary.LowestSimilarity = report.Pairs[n-1].Similarity
	}

	return report, nil
}

func pairItem(item *database.MemoryItem) PairItem {
	preview := []rune(item.Text)
	if len(preview) > previewRunes {
		preview = append(preview[:previewRunes], '…')
	}
	return PairItem{
		ID:          item.ID,
		Preview:     string(preview),
		SourceLabel: item.SourceLabel,
	}
}
