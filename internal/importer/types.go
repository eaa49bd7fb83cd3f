// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package importer

// Document is a batch of generated passages from one source document
type Document struct {
	SourceDocID string   `yaml:"source_doc_id" json:"sourceDocId"`
	SourceLabel string   `yaml:"source_label,omitempty" json:"sourceLabel,omitempty"`
	GraphID     string   `yaml:"graph_id,omitempty" json:"graphId,omitempty"`
	Threshold   *float64 `yaml:"threshold,omitempty" json:"threshold,omitempty"`
	Clips       []string `yaml:"clips" json:"clips"`
}

// ClipFile is the on-disk import format. A file holds either a single
// document at the top level or a list under "documents"; top-level
// graph_id and threshold apply to documents that set neither.
type ClipFile struct {
	GraphID   string     `yaml:"graph_id,omitempty"`
	Threshold *float64   `yaml:"threshold,omitempty"`
	Documents []Document `yaml:"documents,omitempty"`

	// Single-document form
	SourceDocID string   `yaml:"source_doc_id,omitempty"`
	SourceLabel string   `yaml:"source_label,omitempty"`
	Clips       []string `yaml:"clips,omitempty"`
}

// Summary aggregates the results of importing a clip file
type Summary struct {
	Documents        int `json:"documents"`
	Items            int `json:"items"`
	Duplicates       int `json:"duplicates"`
	Skipped          int `json:"skipped"`
	WithoutEmbedding int `json:"withoutEmbedding"`
	EdgesCreated     int `json:"edgesCreated"`
}
