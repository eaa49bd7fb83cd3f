// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package embeddings

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupTestDB(t *testing.T) *gorm.DB {
	dbPath := filepath.Join(t.TempDir(), "test.db")

	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, MigrateCache(db))
	return db
}

func lengthVector(_ context.Context, text string) ([]float32, error) {
	return []float32{float32(len(text)), 1}, nil
}

func TestService_GenerateAndCache(t *testing.T) {
	db := setupTestDB(t)
	mock := &MockClient{EmbedFunc: lengthVector}
	svc := NewService(db, mock, Options{}, nil)

	vec1, err := svc.Embed(context.Background(), "test content")
	require.NoError(t, err)
	assert.Equal(t, []float32{12, 1}, vec1)
	assert.Equal(t, 1, mock.CallCount())

	vec2, err := svc.Embed(context.Background(), "test content")
	require.NoError(t, err)
	assert.Equal(t, 1, mock.CallCount(), "second call must come from cache")
	assert.Equal(t, vec1, vec2)

	count, err := svc.CountCached(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestService_CacheIsPerModel(t *testing.T) {
	db := setupTestDB(t)

	first := &MockClient{EmbedFunc: lengthVector, ModelInfo: ModelInfo{Name: "model-a", Version: "v1"}}
	_, err := NewService(db, first, Options{}, nil).Embed(context.Background(), "same text")
	require.NoError(t, err)

	second := &MockClient{EmbedFunc: lengthVector, ModelInfo: ModelInfo{Name: "model-b", Version: "v1"}}
	_, err = NewService(db, second, Options{}, nil).Embed(context.Background(), "same text")
	require.NoError(t, err)

	assert.Equal(t, 1, second.CallCount(), "a different model must not reuse cached vectors")
}

func TestService_WithoutCache(t *testing.T) {
	mock := &MockClient{EmbedFunc: lengthVector}
	svc := NewService(nil, mock, Options{}, nil)

	_, err := svc.Embed(context.Background(), "abc")
	require.NoError(t, err)
	_, err = svc.Embed(context.Background(), "abc")
	require.NoError(t, err)
	assert.Equal(t, 2, mock.CallCount())
}

func TestService_Disabled(t *testing.T) {
	mock := &MockClient{}
	svc := NewService(nil, mock, Options{}, nil)
	svc.SetEnabled(false)

	_, err := svc.Embed(context.Background(), "abc")
	assert.ErrorIs(t, err, ErrDisabled)
	assert.Equal(t, 0, mock.CallCount())
	assert.False(t, svc.IsEnabled())

	vectors, err := svc.EmbedAll(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{nil, nil}, vectors)
}

func TestService_NilClientIsDisabled(t *testing.T) {
	svc := NewService(nil, nil, Options{}, nil)
	svc.SetEnabled(true)
	assert.False(t, svc.IsEnabled())
}

func TestService_Timeout(t *testing.T) {
	mock := &MockClient{
		EmbedFunc: func(ctx context.Context, text string) ([]float32, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
	}
	svc := NewService(nil, mock, Options{Timeout: 20 * time.Millisecond}, nil)

	start := time.Now()
	_, err := svc.Embed(context.Background(), "slow")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestService_ProviderError(t *testing.T) {
	mock := &MockClient{
		EmbedFunc: func(context.Context, string) ([]float32, error) {
			return nil, errors.New("rate limited")
		},
	}
	svc := NewService(nil, mock, Options{}, nil)

	_, err := svc.Embed(context.Background(), "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limited")
}

func TestService_EmbedAll_UsesBatchesAndCache(t *testing.T) {
	db := setupTestDB(t)
	var batchSizes []int
	mock := &MockClient{
		EmbedBatchFunc: func(_ context.Context, texts []string) ([][]float32, error) {
			batchSizes = append(batchSizes, len(texts))
			out := make([][]float32, len(texts))
			for i, text := range texts {
				out[i] = []float32{float32(len(text)), 1}
			}
			return out, nil
		},
	}
	svc := NewService(db, mock, Options{BatchSize: 2}, nil)

	texts := []string{"a", "bb", "ccc", "dddd", "eeeee"}
	vectors, err := svc.EmbedAll(context.Background(), texts)
	require.NoError(t, err)
	require.Len(t, vectors, 5)
	for i, text := range texts {
		assert.Equal(t, []float32{float32(len(text)), 1}, vectors[i])
	}
	assert.Equal(t, []int{2, 2, 1}, batchSizes)

	// All cached now
	_, err = svc.EmbedAll(context.Background(), texts)
	require.NoError(t, err)
	assert.Equal(t, 3, mock.CallCount())
}

func TestService_EmbedAll_FallsBackToSingleCalls(t *testing.T) {
	mock := &MockClient{
		EmbedBatchFunc: func(context.Context, []string) ([][]float32, error) {
			return nil, errors.New("batch endpoint unavailable")
		},
		EmbedFunc: func(_ context.Context, text string) ([]float32, error) {
			if strings.HasPrefix(text, "bad") {
				return nil, errors.New("rejected")
			}
			return []float32{1, 2}, nil
		},
	}
	svc := NewService(nil, mock, Options{Concurrency: 2}, nil)

	vectors, err := svc.EmbedAll(context.Background(), []string{"good one", "bad one", "good two"})
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 2}, vectors[0])
	assert.Nil(t, vectors[1])
	assert.Equal(t, []float32{1, 2}, vectors[2])
}

func TestService_PruneCache(t *testing.T) {
	db := setupTestDB(t)
	svc := NewService(db, &MockClient{EmbedFunc: lengthVector}, Options{}, nil)

	_, err := svc.Embed(context.Background(), "old")
	require.NoError(t, err)
	require.NoError(t, db.Model(&CachedEmbedding{}).Where("1 = 1").
		Update("created_at", time.Now().Add(-48*time.Hour)).Error)
	_, err = svc.Embed(context.Background(), "fresh")
	require.NoError(t, err)

	removed, err := svc.PruneCache(context.Background(), 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)
}

func TestCalculateContentHash(t *testing.T) {
	h1 := CalculateContentHash("hello")
	assert.Len(t, h1, 32)
	assert.Equal(t, h1, CalculateContentHash("hello"))
	assert.NotEqual(t, h1, CalculateContentHash("Hello"))
}

func TestVectorConversion(t *testing.T) {
	original := []float32{0.1, -0.2, 0.3, 1e-7, 42}
	assert.Equal(t, original, BlobToFloat32Slice(Float32SliceToBlob(original)))
	assert.Nil(t, BlobToFloat32Slice([]byte{1, 2, 3}))
}
