// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package importer

import (
	"fmt"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// paragraphBreak separates clips in a markdown body
var paragraphBreak = regexp.MustCompile(`\n\s*\n`)

// ParseMarkdown parses a markdown document with YAML frontmatter.
// Each blank-line separated paragraph of the body becomes one clip.
func ParseMarkdown(content string) (*Document, error) {
	frontmatter, body, err := splitFrontmatter(content)
	if err != nil {
		return nil, fmt.Errorf("failed to split frontmatter: %w", err)
	}

	var doc Document
	if frontmatter != "" {
		if err := yaml.Unmarshal([]byte(frontmatter), &doc); err != nil {
			return nil, fmt.Errorf("failed to parse frontmatter: %w", err)
		}
	}

	doc.Clips = append(doc.Clips, splitParagraphs(body)...)
	return &doc, nil
}

func splitParagraphs(body string) []string {
	body = strings.ReplaceAll(body, "\r\n", "\n")

	var clips []string
	for _, p := range paragraphBreak.Split(body, -1) {
		p = strings.TrimSpace(p)
		if p == "" || (strings.HasPrefix(p, "#") && !strings.Contains(p, "\n")) {
			// headings alone are not clips
			continue
		}
		clips = append(clips, p)
	}
	return clips
}

// splitFrontmatter splits markdown content into frontmatter and body
func splitFrontmatter(content string) (string, string, error) {
	content = strings.TrimSpace(content)

	if !strings.HasPrefix(content, "---") {
		return "", content, nil
	}

	lines := strings.Split(content, "\n")
	if len(lines) < 2 {
		return "", content, nil
	}

	closingIndex := -1
	for i := 1; i < len(lines); i++ {
		if strings.TrimSpace(lines[i]) == "---" {
			closingIndex = i
			break
		}
	}
	if closingIndex == -1 {
		return "", content, fmt.Errorf("frontmatter not properly closed")
	}

	frontmatter := strings.Join(lines[1:closingIndex], "\n")

	body := ""
	if closingIndex+1 < len(lines) {
		body = strings.Join(lines[closingIndex+1:], "\n")
	}

	return frontmatter, body, nil
}
