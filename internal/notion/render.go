package notion

import (
	"context"
	"fmt"
	"strings"

	"github.com/jomei/notionapi"
)

// childPageSize is the largest page of block children the API returns.
const childPageSize = 100

// BlockLister fetches one page of block children. notionapi.BlockService
// satisfies it.
type BlockLister interface {
	GetChildren(ctx context.Context, id notionapi.BlockID, pagination *notionapi.Pagination) (*notionapi.GetChildrenResponse, error)
}

// Node is a block with its fetched children.
type Node struct {
	Block    notionapi.Block
	Children []Node
}

// Renderer converts page content to markdown.
type Renderer struct {
	blocks BlockLister
}

// NewRenderer creates a Renderer reading blocks from blocks.
func NewRenderer(blocks BlockLister) *Renderer {
	return &Renderer{blocks: blocks}
}

// PageMarkdown fetches the content of a page and renders it as markdown.
func (r *Renderer) PageMarkdown(ctx context.Context, pageID string) (string, error) {
	nodes, err := r.children(ctx, pageID)
	if err != nil {
		return "", fmt.Errorf("failed to fetch content of page %s: %w", pageID, err)
	}
	return RenderBlocks(nodes), nil
}

func (r *Renderer) children(ctx context.Context, blockID string) ([]Node, error) {
	var nodes []Node
	page := &notionapi.Pagination{PageSize: childPageSize}
	for {
		res, err := r.blocks.GetChildren(ctx, notionapi.BlockID(blockID), page)
		if err != nil {
			return nil, err
		}
		for _, b := range res.Results {
			nodes = append(nodes, Node{Block: b})
		}
		if !res.HasMore || res.NextCursor == "" {
			break
		}
		page = &notionapi.Pagination{StartCursor: notionapi.Cursor(res.NextCursor), PageSize: childPageSize}
	}

	for i := range nodes {
		b := nodes[i].Block
		// child pages are separate documents
		if _, isPage := b.(*notionapi.ChildPageBlock); isPage || !b.GetHasChildren() {
			continue
		}
		children, err := r.children(ctx, string(b.GetID()))
		if err != nil {
			return nil, err
		}
		nodes[i].Children = children
	}
	return nodes, nil
}

// RenderBlocks renders a block tree. Blocks are separated by a blank line,
// consecutive list items by a single newline. Unsupported blocks are skipped.
func RenderBlocks(nodes []Node) string {
	var b strings.Builder
	prevList := false
	for _, node := range nodes {
		out := renderBlock(node)
		if out == "" {
			continue
		}
		list := isListItem(node.Block)
		if b.Len() > 0 {
			if list && prevList {
				b.WriteString("\n")
			} else {
				b.WriteString("\n\n")
			}
		}
		b.WriteString(out)
		prevList = list
	}
	return b.String()
}

func isListItem(b notionapi.Block) bool {
	switch b.(type) {
	case *notionapi.BulletedListItemBlock, *notionapi.NumberedListItemBlock, *notionapi.ToDoBlock:
		return true
	}
	return false
}

func renderBlock(node Node) string {
	var line string
	nested := false

	switch b := node.Block.(type) {
	case *notionapi.ParagraphBlock:
		line = renderRichText(b.Paragraph.RichText)
	case *notionapi.Heading1Block:
		line = "# " + renderRichText(b.Heading1.RichText)
	case *notionapi.Heading2Block:
		line = "## " + renderRichText(b.Heading2.RichText)
	case *notionapi.Heading3Block:
		line = "### " + renderRichText(b.Heading3.RichText)
	case *notionapi.BulletedListItemBlock:
		line, nested = "- "+renderRichText(b.BulletedListItem.RichText), true
	case *notionapi.NumberedListItemBlock:
		line, nested = "1. "+renderRichText(b.NumberedListItem.RichText), true
	case *notionapi.ToDoBlock:
		box := "- [ ] "
		if b.ToDo.Checked {
			box = "- [x] "
		}
		line, nested = box+renderRichText(b.ToDo.RichText), true
	case *notionapi.ToggleBlock:
		line, nested = renderRichText(b.Toggle.RichText), true
	case *notionapi.QuoteBlock:
		line = prefixLines(renderRichText(b.Quote.RichText), "> ")
	case *notionapi.CalloutBlock:
		text := renderRichText(b.Callout.RichText)
		if icon := b.Callout.Icon; icon != nil && icon.Emoji != nil && *icon.Emoji != "" {
			text = string(*icon.Emoji) + " " + text
		}
		line = prefixLines(text, "> ")
	case *notionapi.CodeBlock:
		line = "```" + b.Code.Language + "\n" + plainText(b.Code.RichText) + "\n```"
	case *notionapi.DividerBlock:
		line = "---"
	case *notionapi.EquationBlock:
		line = "$$\n" + b.Equation.Expression + "\n$$"
	case *notionapi.ImageBlock:
		line = "![" + plainText(b.Image.Caption) + "](" + imageURL(b.Image) + ")"
	case *notionapi.BookmarkBlock:
		line = renderLink(b.Bookmark.URL, b.Bookmark.Caption)
	case *notionapi.EmbedBlock:
		line = renderLink(b.Embed.URL, b.Embed.Caption)
	case *notionapi.LinkPreviewBlock:
		line = renderLink(b.LinkPreview.URL, nil)
	case *notionapi.ChildPageBlock:
		line = "# " + b.ChildPage.Title
	default:
		return ""
	}

	if len(node.Children) == 0 {
		return line
	}
	children := RenderBlocks(node.Children)
	if children == "" {
		return line
	}
	if nested {
		return line + "\n" + prefixLines(children, "  ")
	}
	return line + "\n\n" + children
}

// imageURL returns the URL of a hosted or external image.
func imageURL(img notionapi.Image) string {
	switch {
	case img.File != nil:
		return img.File.URL
	case img.External != nil:
		return img.External.URL
	}
	return ""
}

func renderLink(url string, caption []notionapi.RichText) string {
	text := plainText(caption)
	if text == "" {
		text = url
	}
	return "[" + text + "](" + url + ")"
}

func renderRichText(runs []notionapi.RichText) string {
	var b strings.Builder
	for _, rt := range runs {
		b.WriteString(annotate(rt))
	}
	return b.String()
}

func annotate(rt notionapi.RichText) string {
	text := rt.PlainText
	if strings.TrimSpace(text) == "" {
		return text
	}
	if rt.Type == "equation" || rt.Equation != nil {
		text = "$" + text + "$"
	}
	if a := rt.Annotations; a != nil {
		if a.Code {
			text = "`" + text + "`"
		}
		if a.Bold {
			text = "**" + text + "**"
		}
		if a.Italic {
			text = "_" + text + "_"
		}
		if a.Strikethrough {
			text = "~~" + text + "~~"
		}
	}
	if rt.Href != "" {
		text = "[" + text + "](" + rt.Href + ")"
	}
	return text
}

func plainText(runs []notionapi.RichText) string {
	var b strings.Builder
	for _, rt := range runs {
		b.WriteString(rt.PlainText)
	}
	return b.String()
}

func prefixLines(s, prefix string) string {
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		if l == "" {
			continue
		}
		lines[i] = prefix + l
	}
	return strings.Join(lines, "\n")
}
