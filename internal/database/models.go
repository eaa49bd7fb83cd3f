// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package database

import (
	"time"

	"github.com/tejzpr/clipgraph/internal/embeddings"
)

// Item origins
const (
	OriginManualClip = "manual-clip"
	OriginGenerated  = "generated"
)

// DefaultGraphName is the name given to lazily created default graphs
const DefaultGraphName = "Default Graph"

// MemoryGraph is an isolated namespace of items and their similarity edges
type MemoryGraph struct {
	ID        string    `gorm:"primaryKey;size:64" json:"id"`
	OwnerID   string    `gorm:"index;not null;size:191" json:"ownerId"`
	Name      string    `gorm:"not null" json:"name"`
	IsDefault bool      `gorm:"not null" json:"isDefault"`
	Version   int64     `gorm:"not null" json:"-"` // Optimistic concurrency for renames
	CreatedAt time.Time `gorm:"index" json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// TableName specifies the table name for MemoryGraph
func (MemoryGraph) TableName() string {
	return "memory_graphs"
}

// MemoryItem is a clipped or generated piece of text bound to one graph
type MemoryItem struct {
	ID             string    `gorm:"primaryKey;size:64" json:"id"`
	OwnerID        string    `gorm:"index;not null;size:191" json:"ownerId"`
	GraphID        string    `gorm:"index;not null;size:64" json:"graphId"`
	SourceDocID    string    `gorm:"not null;size:191" json:"sourceDocId"`
	Text           string    `gorm:"type:text;not null" json:"text"`
	DedupHash      string    `gorm:"not null;size:64" json:"-"` // Hash of trimmed, case-folded text
	SourceLabel    string    `json:"sourceLabel,omitempty"`
	Origin         string    `gorm:"not null;size:32" json:"origin"`
	Embedding      []byte    `json:"-"`
	Dimensions     int       `json:"dimensions,omitempty"`
	HasEmbedding   bool      `gorm:"not null" json:"hasEmbedding"`
	EmbeddingModel string    `json:"embeddingModel,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
}

// TableName specifies the table name for MemoryItem
func (MemoryItem) TableName() string {
	return "memory_items"
}

// Vector decodes the stored embedding, nil when absent
func (m *MemoryItem) Vector() []float32 {
	if !m.HasEmbedding || len(m.Embedding) == 0 {
		return nil
	}
	return embeddings.BlobToFloat32Slice(m.Embedding)
}

// SetVector stores an embedding on the item; an empty vector clears it
func (m *MemoryItem) SetVector(v []float32, model string) {
	if len(v) == 0 {
		m.Embedding = nil
		m.Dimensions = 0
		m.HasEmbedding = false
		m.EmbeddingModel = ""
		return
	}
	m.Embedding = embeddings.Float32SliceToBlob(v)
	m.Dimensions = len(v)
	m.HasEmbedding = true
	m.EmbeddingModel = model
}

// GraphEdge is an undirected similarity relation between two items of one graph
type GraphEdge struct {
	ID        string    `gorm:"primaryKey;size:160" json:"id"`
	GraphID   string    `gorm:"index;not null;size:64" json:"graphId"`
	Source    string    `gorm:"column:source_id;index;not null;size:64" json:"source"`
	Target    string    `gorm:"column:target_id;index;not null;size:64" json:"target"`
	Weight    float64   `gorm:"not null" json:"weight"`
	CreatedAt time.Time `json:"createdAt"`
}

// TableName specifies the table name for GraphEdge
func (GraphEdge) TableName() string {
	return "graph_edges"
}
