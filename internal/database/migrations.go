// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package database

import (
	"fmt"
	"strings"

	"gorm.io/gorm"
)

// AllModels returns all graph models for migration
func AllModels() []interface{} {
	return []interface{}{
		&MemoryGraph{},
		&MemoryItem{},
		&GraphEdge{},
	}
}

// Migrate runs database migrations for all models and creates indexes
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(AllModels()...); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	if err := CreateIndexes(db); err != nil {
		return err
	}
	return nil
}

// CreateIndexes creates composite and unique indexes that gorm tags cannot express
func CreateIndexes(db *gorm.DB) error {
	indexes := []struct {
		table   string
		columns []string
		name    string
		unique  bool
		where   string
	}{
		{
			table:   "memory_graphs",
			columns: []string{"owner_id", "created_at"},
			name:    "idx_graphs_owner_created",
		},
		{
			// At most one default graph per owner
			table:   "memory_graphs",
			columns: []string{"owner_id"},
			name:    "idx_graphs_owner_default",
			unique:  true,
			where:   "is_default",
		},
		{
			table:   "memory_items",
			columns: []string{"graph_id", "created_at"},
			name:    "idx_items_graph_created",
		},
		{
			// Duplicate-text invariant within a graph
			table:   "memory_items",
			columns: []string{"graph_id", "source_doc_id", "dedup_hash"},
			name:    "idx_items_graph_doc_dedup",
			unique:  true,
		},
		{
			table:   "graph_edges",
			columns: []string{"graph_id", "source_id"},
			name:    "idx_edges_graph_source",
		},
		{
			table:   "graph_edges",
			columns: []string{"graph_id", "target_id"},
			name:    "idx_edges_graph_target",
		},
	}

	for _, idx := range indexes {
		if db.Migrator().HasIndex(idx.table, idx.name) {
			continue
		}

		kind := "INDEX"
		if idx.unique {
			kind = "UNIQUE INDEX"
		}
		sql := fmt.Sprintf("CREATE %s IF NOT EXISTS %s ON %s (%s)",
			kind, idx.name, idx.table, strings.Join(idx.columns, ", "))
		if idx.where != "" {
			sql += " WHERE " + idx.where
		}

		if err := db.Exec(sql).Error; err != nil {
			return fmt.Errorf("failed to create index %s: %w", idx.name, err)
		}
	}

	return nil
}
