package markup

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/spherical/slide-deck/internal/domain"
)

var alignCellRe = regexp.MustCompile(`^:?-+:?$`)

// parsePipeTable turns a run of pipe rows into a table. Row 0 is the header;
// row 1 is dropped when it only holds alignment markers.
func parsePipeTable(rows []string) domain.Table {
	cells := make([][]string, 0, len(rows))
	for _, row := range rows {
		cells = append(cells, splitRow(row))
	}

	table := domain.Table{Headers: cells[0]}
	body := cells[1:]
	if len(body) > 0 && isAlignmentRow(body[0]) {
		body = body[1:]
	}
	table.Rows = body
	return table
}

func splitRow(row string) []string {
	inner := strings.TrimSuffix(strings.TrimPrefix(row, "|"), "|")
	parts := strings.Split(inner, "|")
	for i, p := range parts {
		parts[i] = strings.TrimSpace(p)
	}
	return parts
}

func isAlignmentRow(cells []string) bool {
	for _, c := range cells {
		if !alignCellRe.MatchString(c) {
			return false
		}
	}
	return len(cells) > 0
}

// Width is the widest row of t, header included.
func Width(t domain.Table) int {
	w := len(t.Headers)
	for _, r := range t.Rows {
		if len(r) > w {
			w = len(r)
		}
	}
	return w
}

// RenderTable renders t positionally. Short rows are padded with empty cells
// and long rows widen the table.
func RenderTable(t domain.Table) string {
	width := Width(t)
	if width == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString(`<table class="slide-table">`)
	if len(t.Headers) > 0 {
		b.WriteString("<thead>")
		writeRow(&b, "th", t.Headers, width)
		b.WriteString("</thead>")
	}
	if len(t.Rows) > 0 {
		b.WriteString("<tbody>")
		for _, r := range t.Rows {
			writeRow(&b, "td", r, width)
		}
		b.WriteString("</tbody>")
	}
	b.WriteString("</table>")
	return b.String()
}

func writeRow(b *strings.Builder, tag string, cells []string, width int) {
	b.WriteString("<tr>")
	for i := 0; i < width; i++ {
		cell := ""
		if i < len(cells) {
			cell = Inline(cells[i])
		}
		b.WriteString("<" + tag + ">" + cell + "</" + tag + ">")
	}
	b.WriteString("</tr>")
}

// DecodeTable reads a JSON table, either {"headers": [...], "rows": [[...]]}
// or a bare array of rows whose first row is the header. Cells of any scalar
// type are stringified. Undecodable input yields an empty table.
func DecodeTable(data []byte) domain.Table {
	var obj struct {
		Headers []any   `json:"headers"`
		Rows    [][]any `json:"rows"`
	}
	if err := json.Unmarshal(data, &obj); err == nil {
		return domain.Table{Headers: stringify(obj.Headers), Rows: stringifyRows(obj.Rows)}
	}

	var grid [][]any
	if err := json.Unmarshal(data, &grid); err == nil && len(grid) > 0 {
		return domain.Table{Headers: stringify(grid[0]), Rows: stringifyRows(grid[1:])}
	}

	return domain.Table{}
}

func stringifyRows(rows [][]any) [][]string {
	out := make([][]string, 0, len(rows))
	for _, r := range rows {
		out = append(out, stringify(r))
	}
	return out
}

func stringify(cells []any) []string {
	out := make([]string, len(cells))
	for i, c := range cells {
		switch v := c.(type) {
		case nil:
			out[i] = ""
		case string:
			out[i] = v
		case float64:
			out[i] = strconv.FormatFloat(v, 'f', -1, 64)
		default:
			out[i] = fmt.Sprint(v)
		}
	}
	return out
}
