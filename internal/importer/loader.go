// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package importer

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// LoadFile reads a clip file. YAML files (.yaml, .yml) may hold several
// documents; markdown files (.md, .markdown) hold one, whose source id
// defaults to the file name.
func LoadFile(path string) ([]Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read clip file: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return ParseYAML(data)
	case ".md", ".markdown":
		doc, err := ParseMarkdown(string(data))
		if err != nil {
			return nil, err
		}
		if doc.SourceDocID == "" {
			doc.SourceDocID = SourceIDFromPath(path)
		}
		if err := validateDocument(doc); err != nil {
			return nil, err
		}
		return []Document{*doc}, nil
	default:
		return nil, fmt.Errorf("unsupported clip file type: %s", filepath.Ext(path))
	}
}

// ParseYAML parses a YAML clip file into its documents
func ParseYAML(data []byte) ([]Document, error) {
	var file ClipFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse clip file: %w", err)
	}

	docs := file.Documents
	if file.SourceDocID != "" || len(file.Clips) > 0 {
		docs = append([]Document{{
			SourceDocID: file.SourceDocID,
			SourceLabel: file.SourceLabel,
			Clips:       file.Clips,
		}}, docs...)
	}
	if len(docs) == 0 {
		return nil, fmt.Errorf("clip file contains no documents")
	}

	for i := range docs {
		if docs[i].GraphID == "" {
			docs[i].GraphID = file.GraphID
		}
		if docs[i].Threshold == nil {
			docs[i].Threshold = file.Threshold
		}
		if err := validateDocument(&docs[i]); err != nil {
			return nil, fmt.Errorf("document %d: %w", i+1, err)
		}
	}
	return docs, nil
}

func validateDocument(doc *Document) error {
	if err := ValidateSourceID(doc.SourceDocID); err != nil {
		return err
	}
	doc.SourceLabel = SanitizeLabel(doc.SourceLabel)
	if doc.Threshold != nil && (*doc.Threshold < 0 || *doc.Threshold > 1) {
		return fmt.Errorf("threshold must be between 0 and 1")
	}
	return nil
}
