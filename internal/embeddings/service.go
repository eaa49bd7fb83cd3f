// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package embeddings

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrDisabled is returned when embedding generation is switched off
var ErrDisabled = errors.New("embeddings disabled")

// DefaultTimeout bounds a single provider call when none is configured
const DefaultTimeout = 15 * time.Second

// Options tune a Service
type Options struct {
	Timeout     time.Duration // Per provider call
	BatchSize   int           // Texts per EmbedBatch request
	Concurrency int           // Parallel single calls when a batch fails
}

// Service wraps a provider Client with a timeout and a content-hash cache
type Service struct {
	db      *gorm.DB
	client  Client
	model   ModelInfo
	opts    Options
	enabled bool
	logger  *zap.Logger
}

// NewService creates a new embedding service. db may be nil to skip caching.
func NewService(db *gorm.DB, client Client, opts Options, logger *zap.Logger) *Service {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 64
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Service{
		db:      db,
		client:  client,
		opts:    opts,
		enabled: client != nil,
		logger:  logger,
	}
	if client != nil {
		s.model = client.GetModelInfo()
	}
	return s
}

// SetEnabled enables or disables the embedding service
func (s *Service) SetEnabled(enabled bool) {
	s.enabled = enabled && s.client != nil
}

// IsEnabled returns whether the service is enabled
func (s *Service) IsEnabled() bool {
	return s.enabled
}

// ModelName returns the provider model name
func (s *Service) ModelName() string {
	return s.model.Name
}

// Embed returns the embedding for text, from cache when possible.
// The provider call is bounded by the configured timeout and ctx.
func (s *Service) Embed(ctx context.Context, text string) ([]float32, error) {
	if !s.enabled {
		return nil, ErrDisabled
	}

	hash := CalculateContentHash(text)
	if v := s.lookup(ctx, hash); v != nil {
		return v, nil
	}

	callCtx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()

	vector, err := s.client.Embed(callCtx, text)
	if err != nil {
		return nil, fmt.Errorf("failed to generate embedding: %w", err)
	}
	if len(vector) == 0 {
		return nil, ErrEmptyResponse
	}

	s.store(ctx, hash, vector)
	return vector, nil
}

// EmbedAll embeds texts in order. Failed entries are nil; the result never errors
// except when ctx itself is done.
func (s *Service) EmbedAll(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	if !s.enabled {
		return out, nil
	}

	var missing []int
	for i, text := range texts {
		if v := s.lookup(ctx, CalculateContentHash(text)); v != nil {
			out[i] = v
			continue
		}
		missing = append(missing, i)
	}

	for start := 0; start < len(missing); start += s.opts.BatchSize {
		end := start + s.opts.BatchSize
		if end > len(missing) {
			end = len(missing)
		}
		chunk := missing[start:end]

		if err := s.embedChunk(ctx, texts, chunk, out); err != nil {
			return out, err
		}
	}

	return out, nil
}

// embedChunk tries one batch request and falls back to bounded parallel single calls
func (s *Service) embedChunk(ctx context.Context, texts []string, idx []int, out [][]float32) error {
	batch := make([]string, len(idx))
	for i, j := range idx {
		batch[i] = texts[j]
	}

	callCtx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	vectors, err := s.client.EmbedBatch(callCtx, batch)
	cancel()
	if err == nil && len(vectors) == len(batch) {
		for i, j := range idx {
			if len(vectors[i]) == 0 {
				continue
			}
			out[j] = vectors[i]
			s.store(ctx, CalculateContentHash(texts[j]), vectors[i])
		}
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}

	s.logger.Warn("batch embedding failed, falling back to single calls",
		zap.Int("batch_size", len(batch)), zap.Error(err))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.Concurrency)
	for _, j := range idx {
		j := j
		g.Go(func() error {
			v, err := s.Embed(gctx, texts[j])
			if err != nil {
				s.logger.Warn("embedding failed", zap.Int("index", j), zap.Error(err))
				return nil
			}
			out[j] = v
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

func (s *Service) lookup(ctx context.Context, hash string) []float32 {
	if s.db == nil {
		return nil
	}

	var cached CachedEmbedding
	err := s.db.WithContext(ctx).
		Where("content_hash = ? AND model_name = ? AND model_version = ?", hash, s.model.Name, s.model.Version).
		Limit(1).Find(&cached).Error
	if err != nil || cached.ContentHash == "" {
		return nil
	}
	return BlobToFloat32Slice(cached.Vector)
}

func (s *Service) store(ctx context.Context, hash string, vector []float32) {
	if s.db == nil {
		return
	}

	entry := CachedEmbedding{
		ContentHash:  hash,
		ModelName:    s.model.Name,
		ModelVersion: s.model.Version,
		Dimensions:   len(vector),
		Vector:       Float32SliceToBlob(vector),
		CreatedAt:    time.Now(),
	}

	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "content_hash"}, {Name: "model_name"}},
		DoUpdates: clause.AssignmentColumns([]string{"model_version", "dimensions", "vector", "created_at"}),
	}).Create(&entry).Error
	if err != nil {
		// best effort
		s.logger.Warn("failed to cache embedding", zap.Error(err))
	}
}

// CountCached returns the number of cached embeddings
func (s *Service) CountCached(ctx context.Context) (int64, error) {
	if s.db == nil {
		return 0, nil
	}
	var count int64
	err := s.db.WithContext(ctx).Model(&CachedEmbedding{}).Count(&count).Error
	return count, err
}

// PruneCache deletes cache entries older than maxAge
func (s *Service) PruneCache(ctx context.Context, maxAge time.Duration) (int64, error) {
	if s.db == nil {
		return 0, nil
	}
	result := s.db.WithContext(ctx).Where("created_at < ?", time.Now().Add(-maxAge)).Delete(&CachedEmbedding{})
	return result.RowsAffected, result.Error
}

// CalculateContentHash computes a SHA256 hash of the content
func CalculateContentHash(content string) string {
	hash := sha256.Sum256([]byte(content))
	return fmt.Sprintf("%x", hash[:16])
}
