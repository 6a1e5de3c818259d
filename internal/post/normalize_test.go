package post

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	imgA = "https://secure.notion-static.com/ed17c715-4171-442d-aa50-26d18a587bae/Untitled.png"
	imgB = "https://secure.notion-static.com/89848567-a281-40f9-9b99-2d2b63a1586a/Untitled.png"
)

func testPage() PageRecord {
	return PageRecord{
		ID:        "page_id",
		Title:     "Title",
		Category:  "category",
		Permalink: "my-test-page",
		Date:      "2021-01-01",
		Tags:      []string{"tagA", "tagB"},
	}
}

func TestNormalize(t *testing.T) {
	raw := "# Title\ntest article\nhere is an image\n![](" + imgA + ")\n\n## list\n- item1\n- item2\n- item3"

	want := `---
title: Title
date: 2021-01-01
tags:
 - tagA
 - tagB
published: true
category: category
---
# Title
test article
here is an image
![ed17c715-4171-442d-aa50-26d18a587bae.png](images/notion/ed17c715-4171-442d-aa50-26d18a587bae.png)

## list
- item1
- item2
- item3`

	doc := Normalizer{}.Normalize(testPage(), raw)

	assert.Equal(t, want, doc.Markdown)
	require.Len(t, doc.Images, 1)
	assert.Equal(t, ImageReference{URL: imgA, FileName: "ed17c715-4171-442d-aa50-26d18a587bae.png"}, doc.Images[0])
	assert.Equal(t, []string{"ed17c715-4171-442d-aa50-26d18a587bae"}, doc.ContentIDs())
}

func TestNormalize_Idempotent(t *testing.T) {
	raw := "intro\n![](" + imgA + ")\n![](" + imgB + ")\n"
	n := Normalizer{AssetDir: "../src/assets/"}

	first := n.Normalize(testPage(), raw)
	second := n.Normalize(testPage(), raw)

	assert.Equal(t, first, second)
}

func TestNormalize_AssetDirAndDuplicates(t *testing.T) {
	raw := "![](" + imgA + ")\ntext\n![](" + imgA + ")"

	doc := Normalizer{AssetDir: "/assets/"}.Normalize(testPage(), raw)

	require.Len(t, doc.Images, 2, "each occurrence yields its own reference")
	assert.Equal(t, doc.Images[0], doc.Images[1])
	link := "![ed17c715-4171-442d-aa50-26d18a587bae.png](/assets/images/notion/ed17c715-4171-442d-aa50-26d18a587bae.png)"
	assert.Equal(t, link+"\ntext\n"+link, doc.Body)
}

func TestNormalize_CaptionedImagesAreLeftAlone(t *testing.T) {
	raw := "![a caption](" + imgA + ")"

	doc := Normalizer{}.Normalize(testPage(), raw)

	assert.Empty(t, doc.Images)
	assert.Equal(t, raw, doc.Body)
}

func TestHeader_NoTags(t *testing.T) {
	page := testPage()
	page.Tags = nil

	want := "---\ntitle: Title\ndate: 2021-01-01\ntags:\n\npublished: true\ncategory: category\n---\n"
	assert.Equal(t, want, Header(page))
}

func TestDeriveImageReference(t *testing.T) {
	tests := []struct {
		name     string
		url      string
		wantName string
	}{
		{name: "uuid layout", url: imgA, wantName: "ed17c715-4171-442d-aa50-26d18a587bae.png"},
		{name: "file name does not matter", url: "https://secure.notion-static.com/ed17c715-4171-442d-aa50-26d18a587bae/Photo%20final.jpeg", wantName: "ed17c715-4171-442d-aa50-26d18a587bae.jpeg"},
		{name: "query string ignored", url: "https://s3.us-west-2.amazonaws.com/secure.notion-static.com/3b1c/diagram.gif?X-Amz-Expires=3600", wantName: "3b1c.gif"},
		{name: "short path has empty id", url: "https://example.com/image.png", wantName: ".png"},
		{name: "no extension", url: "https://example.com/abc/image", wantName: "abc"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ref, ok := DeriveImageReference(tt.url)
			require.True(t, ok)
			assert.Equal(t, tt.url, ref.URL)
			assert.Equal(t, tt.wantName, ref.FileName)
		})
	}
}

func TestImages_EarlyStop(t *testing.T) {
	raw := "![](" + imgA + ")\n![](" + imgB + ")"

	var got []ImageReference
	for ref := range Images(raw) {
		got = append(got, ref)
		break
	}

	require.Len(t, got, 1)
	assert.Equal(t, imgA, got[0].URL)
}

func TestImages_SkipsUnparseable(t *testing.T) {
	raw := "![](http://[::1]:namedport/x/y.png)\n![](" + imgB + ")"

	var got []string
	for ref := range Images(raw) {
		got = append(got, ref.URL)
	}

	assert.Equal(t, []string{imgB}, got)
}

func TestImages_TwoEmbedsOnOneLine(t *testing.T) {
	raw := "side by side: ![](" + imgA + ") and ![](" + imgB + ") done"

	var got []ImageReference
	for ref := range Images(raw) {
		got = append(got, ref)
	}

	require.Len(t, got, 2)
	assert.Equal(t, imgA, got[0].URL)
	assert.Equal(t, "ed17c715-4171-442d-aa50-26d18a587bae.png", got[0].FileName)
	assert.Equal(t, imgB, got[1].URL)
	assert.Equal(t, "89848567-a281-40f9-9b99-2d2b63a1586a.png", got[1].FileName)
}

func TestNormalize_TwoEmbedsOnOneLine(t *testing.T) {
	raw := "![](" + imgA + ")![](" + imgB + ")"

	doc := Normalizer{AssetDir: "/"}.Normalize(testPage(), raw)

	assert.Equal(t,
		"![ed17c715-4171-442d-aa50-26d18a587bae.png](/images/notion/ed17c715-4171-442d-aa50-26d18a587bae.png)"+
			"![89848567-a281-40f9-9b99-2d2b63a1586a.png](/images/notion/89848567-a281-40f9-9b99-2d2b63a1586a.png)",
		doc.Body)
	assert.Equal(t, []string{"ed17c715-4171-442d-aa50-26d18a587bae", "89848567-a281-40f9-9b99-2d2b63a1586a"}, doc.ContentIDs())
}
