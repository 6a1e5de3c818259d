package post

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// Finding is a non-fatal problem noticed in a normalized document.
type Finding struct {
	Kind    string
	Subject string
	Message string
}

func (f Finding) String() string {
	return fmt.Sprintf("%s: %s (%s)", f.Kind, f.Message, f.Subject)
}

const (
	FindingRemoteImage     = "remote-image"
	FindingEmptyContentID  = "empty-content-id"
	FindingUnstableContent = "non-uuid-content-id"
)

// Lint inspects a normalized document. Images the normalizer could not
// localize (for example captioned images) still point at the remote host,
// whose URLs usually expire; images without a uuid content identifier may
// not map to a stable local file.
func Lint(doc NormalizedDocument) []Finding {
	var findings []Finding

	for _, dest := range imageDestinations(doc.Body) {
		if strings.HasPrefix(dest, "http://") || strings.HasPrefix(dest, "https://") {
			findings = append(findings, Finding{
				Kind:    FindingRemoteImage,
				Subject: dest,
				Message: "image still references a remote url",
			})
		}
	}

	for _, img := range doc.Images {
		id := ContentID(img.URL)
		switch {
		case id == "":
			findings = append(findings, Finding{
				Kind:    FindingEmptyContentID,
				Subject: img.URL,
				Message: "image url has no content identifier segment",
			})
		case uuid.Validate(id) != nil:
			findings = append(findings, Finding{
				Kind:    FindingUnstableContent,
				Subject: img.URL,
				Message: "content identifier is not a uuid",
			})
		}
	}

	return findings
}

func imageDestinations(md string) []string {
	src := []byte(md)
	doc := goldmark.DefaultParser().Parse(text.NewReader(src))

	var dests []string
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		if img, ok := n.(*ast.Image); ok {
			dests = append(dests, string(img.Destination))
		}
		return ast.WalkContinue, nil
	})
	return dests
}
