// Package post holds the blog post model shared by the source adapter, the
// normalizer and the publish workflow, together with the rules mapping a post
// onto paths inside the blog repository.
package post

import (
	"fmt"
	"path"
	"strings"
	"time"
	"unicode"
)

const (
	// ImageDir is the repository-relative directory holding downloaded images.
	ImageDir = "images/notion"
	// ImageDirPrefix is ImageDir as used inside rewritten image links.
	ImageDirPrefix = ImageDir + "/"

	// DateLayout is the layout of PageRecord.Date.
	DateLayout = "2006-01-02"
)

// PageRecord is a normalized document fetched from the document database.
type PageRecord struct {
	ID        string
	Title     string
	Category  string
	Permalink string
	Date      string
	Tags      []string
}

// RelPath returns the slash-separated, repository-relative path of the
// committed markdown file: <postRoot>/<yyyy>/<MM>/<permalink>.md
func (p PageRecord) RelPath(postRoot string) (string, error) {
	d, err := time.Parse(DateLayout, p.Date)
	if err != nil {
		return "", fmt.Errorf("invalid date %q for %s: %w", p.Date, p.Permalink, err)
	}
	return path.Join(postRoot, d.Format("2006"), d.Format("01"), p.Permalink+".md"), nil
}

// ImageRelPath returns the repository-relative path of a downloaded image.
func ImageRelPath(ref ImageReference) string {
	return ImageDirPrefix + ref.FileName
}

// ValidatePermalink reports whether permalink can be used both as a git
// branch name suffix and as a file name stem.
func ValidatePermalink(permalink string) error {
	if permalink == "" {
		return fmt.Errorf("permalink is empty")
	}
	if strings.HasPrefix(permalink, "-") || strings.HasPrefix(permalink, ".") {
		return fmt.Errorf("permalink %q must not start with '-' or '.'", permalink)
	}
	if strings.HasSuffix(permalink, ".") || strings.HasSuffix(permalink, ".lock") {
		return fmt.Errorf("permalink %q must not end with '.' or '.lock'", permalink)
	}
	if strings.Contains(permalink, "..") || strings.Contains(permalink, "@{") {
		return fmt.Errorf("permalink %q contains a forbidden sequence", permalink)
	}
	for _, r := range permalink {
		if unicode.IsSpace(r) || unicode.IsControl(r) || strings.ContainsRune(`/\~^:?*[`, r) {
			return fmt.Errorf("permalink %q contains forbidden character %q", permalink, r)
		}
	}
	return nil
}
