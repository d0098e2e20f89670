package markup

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spherical/slide-deck/internal/domain"
)

func TestParse_PlainTextIsOneParagraph(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "simple", input: "Quarterly revenue grew in every region", want: "<p>Quarterly revenue grew in every region</p>"},
		{name: "special chars escaped", input: "R&D < cost > 5", want: "<p>R&amp;D &lt; cost &gt; 5</p>"},
		{name: "four hashes is text", input: "#### not a heading", want: "<p>#### not a heading</p>"},
		{name: "hash without space is text", input: "#hashtag", want: "<p>#hashtag</p>"},
		{name: "single pipe is text", input: "|", want: "<p>|</p>"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Parse(tt.input)
			require.Len(t, res.Blocks, 1)
			assert.Equal(t, BlockParagraph, res.Blocks[0].Kind)
			assert.Equal(t, tt.want, res.HTML)
		})
	}
}

func TestParse_Headings(t *testing.T) {
	res := Parse("# Title\n## Section\n### Detail")

	require.Len(t, res.Blocks, 3)
	for i, blk := range res.Blocks {
		assert.Equal(t, BlockHeading, blk.Kind)
		assert.Equal(t, i+1, blk.Level)
	}
	assert.Equal(t, "<h1>Title</h1><h2>Section</h2><h3>Detail</h3>", res.HTML)
}

func TestParse_HeadingEndsParagraph(t *testing.T) {
	res := Parse("intro line\n## Next\nbody")
	assert.Equal(t, "<p>intro line</p><h2>Next</h2><p>body</p>", res.HTML)
}

func TestInline_Precedence(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "bold", input: "**strong**", want: "<strong>strong</strong>"},
		{name: "italic", input: "*soft*", want: "<em>soft</em>"},
		{name: "bold before italic", input: "**a** and *b*", want: "<strong>a</strong> and <em>b</em>"},
		{name: "italic inside bold", input: "**very *much* so**", want: "<strong>very <em>much</em> so</strong>"},
		{name: "formula", input: "area is $pi r^2$", want: `area is <span class="formula">pi r^2</span>`},
		{name: "formula is escaped", input: "$a<b$", want: `<span class="formula">a&lt;b</span>`},
		{name: "unbalanced markers pass through", input: "5 * 3 costs $4", want: "5 * 3 costs $4"},
		{name: "unclosed bold", input: "**open", want: "**open"},
		{name: "bold italic nests", input: "***x***", want: "<strong><em>x</em></strong>"},
		{name: "formula body is literal", input: "$a*b$ and $c*d$", want: `<span class="formula">a*b</span> and <span class="formula">c*d</span>`},
		{name: "emphasis beside formula", input: "*see* $x*y$ **now**", want: `<em>see</em> <span class="formula">x*y</span> <strong>now</strong>`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Inline(tt.input))
		})
	}
}

func TestParse_Paragraphs(t *testing.T) {
	res := Parse("first line\nsecond line\n\nnext paragraph\n\n\n")

	require.Len(t, res.Blocks, 2)
	assert.Equal(t, "<p>first line<br />second line</p><p>next paragraph</p>", res.HTML)
}

func TestParse_CRLF(t *testing.T) {
	assert.Equal(t, "<p>a<br />b</p><p>c</p>", ToHTML("a\r\nb\r\n\r\nc"))
}

func TestParse_PipeTable(t *testing.T) {
	input := strings.Join([]string{
		"Results:",
		"| Region | Q1 | Q2 |",
		"|:-------|---:|:--:|",
		"| North | 10 | 12 |",
		"| South | 8 | 9 |",
		"",
		"Done.",
	}, "\n")

	res := Parse(input)

	require.Len(t, res.Tables, 1)
	table := res.Tables[0]
	assert.Equal(t, []string{"Region", "Q1", "Q2"}, table.Headers)
	assert.Equal(t, [][]string{{"North", "10", "12"}, {"South", "8", "9"}}, table.Rows)

	require.Len(t, res.Blocks, 3)
	assert.Equal(t, BlockParagraph, res.Blocks[0].Kind)
	assert.Equal(t, BlockTable, res.Blocks[1].Kind)
	assert.Equal(t, BlockParagraph, res.Blocks[2].Kind)

	thead := between(res.HTML, "<thead>", "</thead>")
	tbody := between(res.HTML, "<tbody>", "</tbody>")
	assert.Equal(t, 1, strings.Count(thead, "<tr>"))
	assert.Equal(t, 2, strings.Count(tbody, "<tr>"))
	assert.NotContains(t, res.HTML, "---")
}

func TestParse_TableWithoutAlignmentRow(t *testing.T) {
	res := Parse("| a | b |\n| 1 | 2 |")

	require.Len(t, res.Tables, 1)
	assert.Equal(t, [][]string{{"1", "2"}}, res.Tables[0].Rows)
}

func TestParse_MalformedTableRows(t *testing.T) {
	res := Parse("| a | b | c |\n|---|---|---|\n| 1 |\n| 1 | 2 | 3 | 4 |")

	require.Len(t, res.Tables, 1)
	html := res.HTML
	assert.Equal(t, 4, strings.Count(between(html, "<thead>", "</thead>"), "<th>"), "widened to the longest row")
	assert.Contains(t, html, "<tr><td>1</td><td></td><td></td><td></td></tr>")
	assert.Contains(t, html, "<tr><td>1</td><td>2</td><td>3</td><td>4</td></tr>")
}

func TestParse_TableCellsGetInlineFormatting(t *testing.T) {
	html := ToHTML("| **Name** | Value |\n| x | $y$ |")
	assert.Contains(t, html, "<th><strong>Name</strong></th>")
	assert.Contains(t, html, `<td><span class="formula">y</span></td>`)
}

func TestParse_NeverPanics(t *testing.T) {
	inputs := []string{"", "\n\n", "||", "| |", "# ", "**", "$$", "|---|", "*\n*", strings.Repeat("|", 50)}
	for _, in := range inputs {
		assert.NotPanics(t, func() { Parse(in) }, "input %q", in)
	}
}

func TestRenderTable(t *testing.T) {
	t.Run("empty table renders nothing", func(t *testing.T) {
		assert.Empty(t, RenderTable(domain.Table{}))
	})

	t.Run("rows without headers", func(t *testing.T) {
		html := RenderTable(domain.Table{Rows: [][]string{{"a", "b"}}})
		assert.NotContains(t, html, "<thead>")
		assert.Contains(t, html, "<tbody><tr><td>a</td><td>b</td></tr></tbody>")
	})

	t.Run("cells are escaped", func(t *testing.T) {
		html := RenderTable(domain.Table{Headers: []string{"<script>"}})
		assert.Contains(t, html, "&lt;script&gt;")
	})
}

func TestDecodeTable(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  domain.Table
	}{
		{
			name:  "object form",
			input: `{"headers":["Item","Qty"],"rows":[["Bolts",12],["Nuts",1.5],["Washers",null]]}`,
			want:  domain.Table{Headers: []string{"Item", "Qty"}, Rows: [][]string{{"Bolts", "12"}, {"Nuts", "1.5"}, {"Washers", ""}}},
		},
		{
			name:  "grid form",
			input: `[["a","b"],[true,"x"]]`,
			want:  domain.Table{Headers: []string{"a", "b"}, Rows: [][]string{{"true", "x"}}},
		},
		{
			name:  "garbage",
			input: `{{{`,
			want:  domain.Table{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DecodeTable([]byte(tt.input)))
		})
	}
}

func TestDecodeTable_RendersLikePipeTable(t *testing.T) {
	fromJSON := RenderTable(DecodeTable([]byte(`{"headers":["a","b"],"rows":[["1","2"]]}`)))
	fromPipes := ToHTML("| a | b |\n|---|---|\n| 1 | 2 |")
	assert.Equal(t, fromPipes, fromJSON)
}

func between(s, start, end string) string {
	i := strings.Index(s, start)
	j := strings.Index(s, end)
	if i < 0 || j < i {
		return ""
	}
	return s[i+len(start) : j]
}
