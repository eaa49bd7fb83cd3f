// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package importer

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
)

var (
	// slugRegex matches characters that should be dropped from source ids
	slugRegex = regexp.MustCompile(`[^a-z0-9\s_-]`)
	// multiSpaceRegex matches runs of spaces/dashes/underscores
	multiSpaceRegex = regexp.MustCompile(`[\s_-]+`)
	// controlRegex matches control characters
	controlRegex = regexp.MustCompile(`[\x00-\x1F\x7F]`)
)

// SourceIDFromPath derives a source document id from a file name
func SourceIDFromPath(path string) string {
	base := filepath.Base(path)
	return GenerateSlug(strings.TrimSuffix(base, filepath.Ext(base)))
}

// GenerateSlug creates a lowercase, dash-separated id from a title
func GenerateSlug(title string) string {
	slug := strings.ToLower(title)
	slug = slugRegex.ReplaceAllString(slug, "")
	slug = multiSpaceRegex.ReplaceAllString(slug, "-")
	return strings.Trim(slug, "-")
}

// ValidateSourceID checks a source document id
func ValidateSourceID(id string) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("source_doc_id cannot be empty")
	}
	if len(id) > 200 {
		return fmt.Errorf("source_doc_id cannot exceed 200 characters")
	}
	if controlRegex.MatchString(id) {
		return fmt.Errorf("source_doc_id cannot contain control characters")
	}
	return nil
}

// SanitizeLabel trims a label and removes control characters
func SanitizeLabel(label string) string {
	return controlRegex.ReplaceAllString(strings.TrimSpace(label), "")
}
