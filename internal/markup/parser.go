// Package markup converts the markdown-lite text of a page into slide HTML.
//
// Parsing happens in two stages. Segmentation splits the text into heading,
// table and paragraph blocks. Each block's text then has its inline spans
// rendered. Nothing in this package returns an error: malformed
// input degrades to escaped plain text.
package markup

import (
	"html"
	"regexp"
	"strconv"
	"strings"

	"github.com/spherical/slide-deck/internal/domain"
)

// BlockKind identifies a segmented block.
type BlockKind int

const (
	BlockParagraph BlockKind = iota
	BlockHeading
	BlockTable
)

// Block is one segment of the input, already rendered.
type Block struct {
	Kind  BlockKind
	Level int          // heading level 1-3
	Lines []string     // rendered inline lines (heading, paragraph)
	Table domain.Table // raw cells (table)
}

// Result is the parsed form of a text body.
type Result struct {
	Blocks []Block
	Tables []domain.Table // tables in input order
	HTML   string
}

var headingRe = regexp.MustCompile(`^(#{1,3})[ \t]+(.+?)\s*$`)

// span is one inline construct. Spans are matched in slice order: the text
// between matches of a span is handed to the spans after it, and the text
// inside a match only to its inner spans. Every tag is therefore closed
// before the text of a later span starts, so tags never cross.
type span struct {
	re    *regexp.Regexp
	open  string
	close string
	inner []*span
}

var (
	italicSpan = &span{re: regexp.MustCompile(`\*([^*\n]+?)\*`), open: "<em>", close: "</em>"}

	boldSpan = &span{re: regexp.MustCompile(`\*\*(.+?)\*\*`), open: "<strong>", close: "</strong>", inner: []*span{italicSpan}}

	// "***x***" is bold italic rather than bold around a stray "*"
	boldItalicSpan = &span{re: regexp.MustCompile(`\*\*\*([^*\n]+?)\*\*\*`), open: "<strong><em>", close: "</em></strong>"}

	// formula bodies are literal: "*" inside "$a*b$" is not emphasis
	formulaSpan = &span{re: regexp.MustCompile(`\$([^$\n]+?)\$`), open: `<span class="formula">`, close: "</span>"}
)

var inlineSpans = []*span{formulaSpan, boldItalicSpan, boldSpan, italicSpan}

// Inline escapes s and renders its inline spans.
func Inline(s string) string {
	var b strings.Builder
	renderSpans(&b, html.EscapeString(s), inlineSpans)
	return b.String()
}

func renderSpans(b *strings.Builder, text string, spans []*span) {
	if len(spans) == 0 || text == "" {
		b.WriteString(text)
		return
	}
	sp, rest := spans[0], spans[1:]

	last := 0
	for _, m := range sp.re.FindAllStringSubmatchIndex(text, -1) {
		renderSpans(b, text[last:m[0]], rest)
		b.WriteString(sp.open)
		renderSpans(b, text[m[2]:m[3]], sp.inner)
		b.WriteString(sp.close)
		last = m[1]
	}
	renderSpans(b, text[last:], rest)
}

// Parse segments text and renders it.
func Parse(text string) Result {
	blocks := segment(text)

	var res Result
	res.Blocks = blocks

	var b strings.Builder
	for _, blk := range blocks {
		switch blk.Kind {
		case BlockHeading:
			tag := "h" + strconv.Itoa(blk.Level)
			b.WriteString("<" + tag + ">" + strings.Join(blk.Lines, " ") + "</" + tag + ">")
		case BlockTable:
			res.Tables = append(res.Tables, blk.Table)
			b.WriteString(RenderTable(blk.Table))
		default:
			b.WriteString("<p>" + strings.Join(blk.Lines, "<br />") + "</p>")
		}
	}
	res.HTML = b.String()
	return res
}

// ToHTML is Parse(text).HTML.
func ToHTML(text string) string {
	return Parse(text).HTML
}

// segment splits text into blocks. Headings and table rows end a running
// paragraph; a blank line ends any block.
func segment(text string) []Block {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	lines := strings.Split(text, "\n")

	var blocks []Block
	var para []string
	var rows []string

	flushPara := func() {
		if len(para) > 0 {
			blocks = append(blocks, Block{Kind: BlockParagraph, Lines: para})
			para = nil
		}
	}
	flushTable := func() {
		if len(rows) > 0 {
			blocks = append(blocks, Block{Kind: BlockTable, Table: parsePipeTable(rows)})
			rows = nil
		}
	}

	for _, line := range lines {
		trimmed := strings.TrimSpace(line)

		switch {
		case trimmed == "":
			flushPara()
			flushTable()
		case isTableRow(trimmed):
			flushPara()
			rows = append(rows, trimmed)
		case headingRe.MatchString(trimmed):
			flushPara()
			flushTable()
			m := headingRe.FindStringSubmatch(trimmed)
			blocks = append(blocks, Block{Kind: BlockHeading, Level: len(m[1]), Lines: []string{Inline(m[2])}})
		default:
			flushTable()
			para = append(para, Inline(strings.TrimRight(line, " \t")))
		}
	}
	flushPara()
	flushTable()

	return blocks
}

func isTableRow(trimmed string) bool {
	return len(trimmed) >= 2 && strings.HasPrefix(trimmed, "|") && strings.HasSuffix(trimmed, "|")
}
