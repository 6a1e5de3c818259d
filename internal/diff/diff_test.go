package diff

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/schaermu/notion2blog/internal/post"
)

const (
	imgA = "https://secure.notion-static.com/ed17c715-4171-442d-aa50-26d18a587bae/Untitled.png"
	imgB = "https://secure.notion-static.com/89848567-a281-40f9-9b99-2d2b63a1586a/Untitled.png"
	imgC = "https://secure.notion-static.com/067df6af-831d-4ec3-af9e-bccd7c9857d9/Untitled.png"
	imgD = "https://secure.notion-static.com/063bbb33-40dd-40f5-9987-99b0f4746d86/Untitled.png"

	committedHeader = "---\ntitle: Title\ndate: 2021-01-01\ntags:\n - tagA\n - tagB\npublished: true\ncategory: category\n---\n"
)

func page(title string) post.PageRecord {
	return post.PageRecord{
		ID:        "page_id",
		Title:     title,
		Category:  "category",
		Permalink: "my-test-page",
		Date:      "2021-01-01",
		Tags:      []string{"tagA", "tagB"},
	}
}

func ptr(s string) *string { return &s }

func TestHasDiff(t *testing.T) {
	article := "# Title\ntest article\nhere is an image\n![](" + imgA + ")\n\n## list\n- item1\n- item2\n- item3"

	tests := []struct {
		name     string
		title    string
		raw      string
		existing string
		want     bool
	}{
		{
			name:     "no changes",
			title:    "Title",
			raw:      article,
			existing: committedHeader + article,
			want:     false,
		},
		{
			name:     "some text has changed",
			title:    "Title",
			raw:      article + "\n- item4",
			existing: committedHeader + article,
			want:     true,
		},
		{
			name:     "some images have changed",
			title:    "Title",
			raw:      "# Title\n![](" + imgA + ")\n![](" + imgB + ")\n![](" + imgC + ")",
			existing: committedHeader + "# Title\n![](" + imgA + ")\n![](" + imgD + ")\n![](" + imgC + ")",
			want:     true,
		},
		{
			name:     "the title has changed",
			title:    "Title-modified",
			raw:      "# Title\ntest article",
			existing: committedHeader + "# Title\ntest article",
			want:     true,
		},
		{
			name:     "image removed from the document",
			title:    "Title",
			raw:      "# Title\ntext",
			existing: committedHeader + "# Title\n![ed17c715-4171-442d-aa50-26d18a587bae.png](images/notion/ed17c715-4171-442d-aa50-26d18a587bae.png)\ntext",
			want:     true,
		},
		{
			name:     "only the rendering of known images differs",
			title:    "Title",
			raw:      "# Title\n![](" + imgA + ")\ntext\n![](" + imgB + ")",
			existing: committedHeader + "# Title\ntext\n  ![old-name](" + imgB + ")\n![x](" + imgA + ")",
			want:     false,
		},
		{
			name:     "windows line endings in the committed file",
			title:    "Title",
			raw:      "# Title\ntext",
			existing: strings.ReplaceAll(committedHeader+"# Title\ntext", "\n", "\r\n"),
			want:     false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := post.Normalizer{}.Normalize(page(tt.title), tt.raw)
			got := HasDiff(doc.Markdown, ptr(tt.existing), doc.ContentIDs())
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestHasDiff_NoExistingFile(t *testing.T) {
	assert.True(t, HasDiff("", nil, nil))
	assert.True(t, HasDiff("anything", nil, []string{"id"}))
}

func TestStripImageLines(t *testing.T) {
	md := "a\n![](x/id-1/f.png)\n![](x/id-1/f.png)\n  ![alt](id-2)\nnot an image id-1\n![](x/other/f.png)"

	got := StripImageLines(md, []string{"id-1", "id-2"})

	assert.Equal(t, "a\nnot an image id-1\n![](x/other/f.png)", got, "adjacent matching lines are all removed")
}

func TestStripImageLines_EmptyIDNeverMatches(t *testing.T) {
	md := "![](https://example.com/pic.png)"
	assert.Equal(t, md, StripImageLines(md, []string{""}))
}

func TestHasFileDiff(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "2021", "01", "my-test-page.md")
	doc := post.Normalizer{}.Normalize(page("Title"), "body\n![]("+imgA+")")

	changed, err := HasFileDiff(path, doc)
	require.NoError(t, err)
	assert.True(t, changed, "missing file is a diff")

	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(doc.Markdown), 0644))

	changed, err = HasFileDiff(path, doc)
	require.NoError(t, err)
	assert.False(t, changed)
}

func TestHasFileDiff_ReadError(t *testing.T) {
	dir := t.TempDir()
	doc := post.Normalizer{}.Normalize(page("Title"), "body")

	_, err := HasFileDiff(dir, doc)
	assert.Error(t, err, "a directory cannot be read as a post")
}
