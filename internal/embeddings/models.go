// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package embeddings

import (
	"encoding/binary"
	"fmt"
	"math"
	"time"

	"gorm.io/gorm"
)

// CachedEmbedding stores a provider vector keyed by content hash and model
type CachedEmbedding struct {
	ContentHash  string    `gorm:"primaryKey;size:64" json:"content_hash"`
	ModelName    string    `gorm:"primaryKey;size:128" json:"model_name"`
	ModelVersion string    `gorm:"not null" json:"model_version"`
	Dimensions   int       `gorm:"not null" json:"dimensions"`
	Vector       []byte    `gorm:"not null" json:"-"`
	CreatedAt    time.Time `gorm:"not null;index" json:"created_at"`
}

// TableName specifies the table name for CachedEmbedding
func (CachedEmbedding) TableName() string {
	return "embedding_cache"
}

// MigrateCache runs migrations for the embedding cache table
func MigrateCache(db *gorm.DB) error {
	if err := db.AutoMigrate(&CachedEmbedding{}); err != nil {
		return fmt.Errorf("failed to migrate embedding cache: %w", err)
	}
	return nil
}

// Float32SliceToBlob encodes a vector as little-endian float32 bytes
func Float32SliceToBlob(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// BlobToFloat32Slice decodes bytes written by Float32SliceToBlob
func BlobToFloat32Slice(b []byte) []float32 {
	if len(b)%4 != 0 {
		return nil
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v
}
