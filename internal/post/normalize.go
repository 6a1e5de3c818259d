package post

import (
	"iter"
	"net/url"
	"path"
	"regexp"
	"strings"
)

// imageEmbed matches the bare-alt image syntax emitted for uncaptioned images.
// The destination ends at the first ')' or whitespace, so several embeds on
// one line are matched separately.
var imageEmbed = regexp.MustCompile(`!\[\]\(([^\s)]+)\)`)

// ImageReference is a remote image found in a document and the local file
// name it is stored under.
type ImageReference struct {
	URL      string
	FileName string
}

// NormalizedDocument is the final markdown of a post and the images it refers to.
type NormalizedDocument struct {
	Markdown string
	Body     string
	Images   []ImageReference
}

// ContentIDs returns the content identifiers of the document's images in
// encounter order.
func (d NormalizedDocument) ContentIDs() []string {
	ids := make([]string, 0, len(d.Images))
	for _, img := range d.Images {
		ids = append(ids, ContentID(img.URL))
	}
	return ids
}

// Normalizer turns converted markdown into the committed file content.
type Normalizer struct {
	// AssetDir is prepended to ImageDirPrefix in rewritten links.
	AssetDir string
}

// Normalize rewrites image links to local asset paths and prepends the header.
// It is a pure function of its inputs.
func (n Normalizer) Normalize(page PageRecord, raw string) NormalizedDocument {
	var images []ImageReference
	for ref := range Images(raw) {
		images = append(images, ref)
	}

	body := raw
	for _, img := range images {
		body = strings.Replace(body,
			"![]("+img.URL+")",
			"!["+img.FileName+"]("+n.AssetDir+ImageDirPrefix+img.FileName+")",
			1)
	}

	return NormalizedDocument{
		Markdown: Header(page) + body,
		Body:     body,
		Images:   images,
	}
}

// Images yields the bare-alt image embeds of md in document order. Duplicate
// URLs are yielded once per occurrence; destinations that are not parseable
// URLs are skipped.
func Images(md string) iter.Seq[ImageReference] {
	return func(yield func(ImageReference) bool) {
		rest := md
		for {
			loc := imageEmbed.FindStringSubmatchIndex(rest)
			if loc == nil {
				return
			}
			raw := rest[loc[2]:loc[3]]
			rest = rest[loc[1]:]

			ref, ok := DeriveImageReference(raw)
			if !ok {
				continue
			}
			if !yield(ref) {
				return
			}
		}
	}
}

// DeriveImageReference computes the local file name for an image URL:
// <content-id>.<ext>. ok is false when rawURL cannot be parsed.
func DeriveImageReference(rawURL string) (ImageReference, bool) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ImageReference{}, false
	}

	return ImageReference{URL: rawURL, FileName: contentID(u.Path) + path.Ext(u.Path)}, true
}

// ContentID returns the content identifier embedded in an image URL, the
// second-to-last path segment. It is empty for short or unparseable paths.
func ContentID(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return contentID(u.Path)
}

func contentID(p string) string {
	segments := strings.Split(p, "/")
	if len(segments) < 3 {
		return ""
	}
	return segments[len(segments)-2]
}

// Header renders the metadata block placed above the post body.
func Header(page PageRecord) string {
	rows := make([]string, 0, len(page.Tags))
	for _, tag := range page.Tags {
		rows = append(rows, " - "+tag)
	}

	var b strings.Builder
	b.WriteString("---\n")
	b.WriteString("title: " + page.Title + "\n")
	b.WriteString("date: " + page.Date + "\n")
	b.WriteString("tags:\n")
	b.WriteString(strings.Join(rows, "\n") + "\n")
	b.WriteString("published: true\n")
	b.WriteString("category: " + page.Category + "\n")
	b.WriteString("---\n")
	return b.String()
}
