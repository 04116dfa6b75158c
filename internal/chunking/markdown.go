package chunking

import (
	"bytes"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"

	"memory-core/pkg/types"
)

// ParseBlocks extracts structured content blocks from markdown source using
// the goldmark AST. Top-level headings, paragraphs, lists, code blocks,
// quotes, and thematic breaks map to their block types; list items become
// child blocks.
func ParseBlocks(source string) []types.Block {
	src := []byte(source)
	md := goldmark.New()
	doc := md.Parser().Parse(text.NewReader(src))

	var blocks []types.Block
	for child := doc.FirstChild(); child != nil; child = child.NextSibling() {
		if block, ok := blockFor(child, src); ok {
			blocks = append(blocks, block)
		}
	}
	return blocks
}

func blockFor(n ast.Node, src []byte) (types.Block, bool) {
	switch node := n.(type) {
	case *ast.Heading:
		block := types.NewBlock(types.BlockHeading, string(n.Text(src)))
		block.Level = node.Level
		return block, true
	case *ast.Paragraph:
		return types.NewBlock(types.BlockParagraph, string(n.Text(src))), true
	case *ast.FencedCodeBlock, *ast.CodeBlock:
		return types.NewBlock(types.BlockCode, linesText(n, src)), true
	case *ast.Blockquote:
		return types.NewBlock(types.BlockQuote, string(n.Text(src))), true
	case *ast.ThematicBreak:
		return types.NewBlock(types.BlockDivider, ""), true
	case *ast.List:
		list := types.NewBlock(types.BlockList, "")
		for item := n.FirstChild(); item != nil; item = item.NextSibling() {
			list.Children = append(list.Children,
				types.NewBlock(types.BlockListItem, string(item.Text(src))))
		}
		return list, true
	default:
		return types.Block{}, false
	}
}

func linesText(n ast.Node, src []byte) string {
	var buf bytes.Buffer
	lines := n.Lines()
	for i := 0; i < lines.Len(); i++ {
		segment := lines.At(i)
		buf.Write(segment.Value(src))
	}
	return string(bytes.TrimRight(buf.Bytes(), "\n"))
}

// HeadingBoundaries returns, for each top-level heading in markdown source,
// the byte offset where the heading's text begins. Chunker.Chunk does not use
// these offsets; it splits on sentence boundaries only.
func HeadingBoundaries(source string) []int {
	src := []byte(source)
	md := goldmark.New()
	doc := md.Parser().Parse(text.NewReader(src))

	var offsets []int
	for child := doc.FirstChild(); child != nil; child = child.NextSibling() {
		heading, ok := child.(*ast.Heading)
		if !ok {
			continue
		}
		lines := heading.Lines()
		if lines.Len() == 0 {
			continue
		}
		offsets = append(offsets, lines.At(0).Start)
	}
	return offsets
}
