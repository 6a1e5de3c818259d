package post

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLint_CleanDocument(t *testing.T) {
	doc := Normalizer{}.Normalize(testPage(), "text\n![]("+imgA+")\n")
	assert.Empty(t, Lint(doc))
}

func TestLint_RemoteAndDegenerateImages(t *testing.T) {
	raw := "![caption](" + imgB + ")\n\n![](https://example.com/pic.png)\n\n![](https://example.com/abc/pic.png)"
	doc := Normalizer{}.Normalize(testPage(), raw)

	findings := Lint(doc)
	require.Len(t, findings, 3)

	assert.Equal(t, FindingRemoteImage, findings[0].Kind)
	assert.Equal(t, imgB, findings[0].Subject)
	assert.Equal(t, FindingEmptyContentID, findings[1].Kind)
	assert.Equal(t, FindingUnstableContent, findings[2].Kind)
	assert.Contains(t, findings[2].String(), "not a uuid")
}
