// Package diff decides whether a normalized post differs meaningfully from the
// committed file.
package diff

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/schaermu/notion2blog/internal/post"
)

const imageMarker = "!["

var lineBreak = regexp.MustCompile(`\r?\n`)

// HasDiff reports whether next differs from existing once image lines that
// refer to one of the current content identifiers are removed from both
// sides. A nil existing means there is no committed file, which is always a
// diff.
func HasDiff(next string, existing *string, contentIDs []string) bool {
	if existing == nil {
		return true
	}
	return StripImageLines(next, contentIDs) != StripImageLines(*existing, contentIDs)
}

// HasFileDiff is HasDiff against the file at path; a missing file is a diff.
func HasFileDiff(path string, doc post.NormalizedDocument) (bool, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read existing post: %w", err)
	}
	existing := string(data)
	return HasDiff(doc.Markdown, &existing, doc.ContentIDs()), nil
}

// StripImageLines removes every line that, once trimmed, starts with the
// image marker and contains one of contentIDs. Line endings are normalized
// to "\n". Empty identifiers never match.
func StripImageLines(md string, contentIDs []string) string {
	lines := lineBreak.Split(md, -1)
	kept := lines[:0]
	for _, line := range lines {
		if isVolatileImageLine(line, contentIDs) {
			continue
		}
		kept = append(kept, line)
	}
	return strings.Join(kept, "\n")
}

func isVolatileImageLine(line string, contentIDs []string) bool {
	if !strings.HasPrefix(strings.TrimSpace(line), imageMarker) {
		return false
	}
	for _, id := range contentIDs {
		if id != "" && strings.Contains(line, id) {
			return true
		}
	}
	return false
}
