// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package graph

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestAnalyzer_Analyze(t *testing.T) {
	ctx := context.Background()
	s := setupTestStore(t)
	a := NewAnalyzer(s, zaptest.NewLogger(t))
	g := mustGraph(t, s, "alice", "G")

	mustItem(t, s, g, "a", []float32{1, 0})
	mustItem(t, s, g, "b", []float32{1, 0})
	mustItem(t, s, g, "c", []float32{0, 1})
	mustItem(t, s, g, "unembedded", nil)

	report, err := a.Analyze(ctx, g.ID, 0.5)
	require.NoError(t, err)

	assert.Equal(t, g.ID, report.GraphID)
	assert.Equal(t, 4, report.Summary.TotalItems)
	assert.Equal(t, 3, report.Summary.ItemsWithEmbeddings)
	assert.Equal(t, 3, report.Summary.TotalPairs)
	assert.Equal(t, 1, report.Summary.ConnectedPairs)
	assert.InDelta(t, 1.0, report.Summary.HighestSimilarity, 1e-9)
	assert.InDelta(t, 0.0, report.Summary.LowestSimilarity, 1e-9)

	require.Len(t, report.Pairs, 3)
	for i := 1; i < len(report.Pairs); i++ {
		assert.GreaterOrEqual(t, report.Pairs[i-1].Similarity, report.Pairs[i].Similarity)
	}
	assert.True(t, report.Pairs[0].Connected)
	assert.False(t, report.Pairs[2].Connected)

	edges, err := s.ListEdges(ctx, g.ID)
	require.NoError(t, err)
	assert.Empty(t, edges, "analysis writes nothing")
}

func TestAnalyzer_FewerThanTwoItems(t *testing.T) {
	s := setupTestStore(t)
	a := NewAnalyzer(s, zaptest.NewLogger(t))
	g := mustGraph(t, s, "alice", "G")
	mustItem(t, s, g, "lonely", []float32{1, 0})

	report, err := a.Analyze(context.Background(), g.ID, 0.5)
	require.NoError(t, err)
	assert.NotNil(t, report.Pairs)
	assert.Empty(t, report.Pairs)
	assert.Zero(t, report.Summary.HighestSimilarity)
	assert.Zero(t, report.Summary.LowestSimilarity)
}

func TestAnalyzer_Errors(t *testing.T) {
	s := setupTestStore(t)
	a := NewAnalyzer(s, zaptest.NewLogger(t))
	g := mustGraph(t, s, "alice", "G")

	_, err := a.Analyze(context.Background(), g.ID, 1.5)
	assert.True(t, IsValidationError(err))

	_, err = a.Analyze(context.Background(), "graph-missing", 0.5)
	assert.ErrorIs(t, err, ErrGraphNotFound)
}

func TestPairItem_Preview(t *testing.T) {
	s := setupTestStore(t)
	g := mustGraph(t, s, "alice", "G")
	long := mustItem(t, s, g, strings.Repeat("é", 100), nil)

	p := pairItem(long)
	assert.Equal(t, previewRunes+1, len([]rune(p.Preview)))
	assert.True(t, strings.HasSuffix(p.Preview, "…"))

	short := mustItem(t, s, g, "short", nil)
	assert.Equal(t, "short", pairItem(short).Preview)
}
