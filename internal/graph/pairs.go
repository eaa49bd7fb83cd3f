// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package graph

import (
	"errors"

	"github.com/tejzpr/clipgraph/internal/database"
	"github.com/tejzpr/clipgraph/internal/similarity"
	"go.uber.org/zap"
)

// vectorItem pairs an item with its decoded embedding
type vectorItem struct {
	item   *database.MemoryItem
	vector []float32
}

func decodeVectors(items []database.MemoryItem) []vectorItem {
	out := make([]vectorItem, 0, len(items))
	for i := range items {
		if v := items[i].Vector(); len(v) > 0 {
			out = append(out, vectorItem{item: &items[i], vector: v})
		}
	}
	return out
}

// forEachPair scores every unordered pair of embedded items in slice order.
// Pairs with mismatched dimensions are skipped and counted.
func forEachPair(items []vectorItem, logger *zap.Logger, fn func(a, b *database.MemoryItem, sim float64)) (skipped int) {
	for i := 0; i < len(items); i++ {
		for j := i + 1; j < len(items); j++ {
			sim, err := similarity.Cosine(items[i].vector, items[j].vector)
			if err != nil {
				if errors.Is(err, similarity.ErrDimensionMismatch) {
					logger.Debug("skipping pair with mismatched dimensions",
						zap.String("item_a", items[i].item.ID),
						zap.String("item_b", items[j].item.ID),
						zap.Error(err))
				}
				skipped++
				continue
			}
			fn(items[i].item, items[j].item, sim)
		}
	}
	return skipped
}
