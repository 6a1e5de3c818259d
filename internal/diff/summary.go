package diff

import (
	"bytes"
	"fmt"
	"slices"
	"strings"

	"github.com/adrg/frontmatter"
)

type header struct {
	Title    string   `yaml:"title"`
	Date     string   `yaml:"date"`
	Tags     []string `yaml:"tags"`
	Category string   `yaml:"category"`
}

// ChangedFields lists which header fields and whether the body changed
// between the committed content and the next content. It is used for
// logging only.
func ChangedFields(existing, next string, contentIDs []string) ([]string, error) {
	var prevHeader, nextHeader header

	prevBody, err := frontmatter.Parse(strings.NewReader(existing), &prevHeader)
	if err != nil {
		return nil, fmt.Errorf("failed to parse committed header: %w", err)
	}
	nextBody, err := frontmatter.Parse(strings.NewReader(next), &nextHeader)
	if err != nil {
		return nil, fmt.Errorf("failed to parse new header: %w", err)
	}

	var changed []string
	if prevHeader.Title != nextHeader.Title {
		changed = append(changed, "title")
	}
	if prevHeader.Date != nextHeader.Date {
		changed = append(changed, "date")
	}
	if !slices.Equal(prevHeader.Tags, nextHeader.Tags) {
		changed = append(changed, "tags")
	}
	if prevHeader.Category != nextHeader.Category {
		changed = append(changed, "category")
	}

	prevStripped := StripImageLines(string(bytes.TrimSpace(prevBody)), contentIDs)
	nextStripped := StripImageLines(string(bytes.TrimSpace(nextBody)), contentIDs)
	if prevStripped != nextStripped {
		changed = append(changed, "body")
	}

	return changed, nil
}
