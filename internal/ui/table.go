package ui

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

var ansiPattern = regexp.MustCompile(`\x1b\[[0-9;]*m`)

// StripANSI removes ANSI colour escapes.
func StripANSI(s string) string {
	return ansiPattern.ReplaceAllString(s, "")
}

// width is the printed width of s, ignoring colour escapes.
func width(s string) int {
	return utf8.RuneCountInString(StripANSI(s))
}

func pad(s string, w int) string {
	if n := w - width(s); n > 0 {
		return s + strings.Repeat(" ", n)
	}
	return s
}

// Table collects rows and prints them as aligned columns.
type Table struct {
	out     *Output
	headers []string
	rows    [][]string
}

// NewTable creates a table with the given column headers.
func NewTable(out *Output, headers ...string) *Table {
	return &Table{out: out, headers: headers}
}

// AddRow appends a row. Cells past the last header are ignored.
func (t *Table) AddRow(cells ...string) {
	t.rows = append(t.rows, cells)
}

// Len returns the number of rows.
func (t *Table) Len() int { return len(t.rows) }

func (t *Table) columnWidths() []int {
	widths := make([]int, len(t.headers))
	for _, row := range append([][]string{t.headers}, t.rows...) {
		for i := 0; i < len(row) && i < len(widths); i++ {
			widths[i] = max(widths[i], width(row[i]))
		}
	}
	return widths
}

// Render prints the header, a rule and every row.
func (t *Table) Render() {
	if len(t.headers) == 0 {
		return
	}
	widths := t.columnWidths()

	rule := make([]string, len(widths))
	for i, w := range widths {
		rule[i] = strings.Repeat("─", w)
	}
	t.out.Println(t.line(t.headers, widths, t.out.BoldText))
	t.out.Println(t.out.DimText(strings.Join(rule, "──")))
	for _, row := range t.rows {
		t.out.Println(t.line(row, widths, nil))
	}
}

func (t *Table) line(cells []string, widths []int, style func(string) string) string {
	var b strings.Builder
	for i := 0; i < len(cells) && i < len(widths); i++ {
		if i > 0 {
			b.WriteString("  ")
		}
		cell := pad(cells[i], widths[i])
		if style != nil {
			cell = style(cell)
		}
		b.WriteString(cell)
	}
	return strings.TrimRight(b.String(), " ")
}

// Box prints content inside a titled frame.
func (o *Output) Box(title string, content []string) {
	inner := width(title)
	for _, line := range content {
		inner = max(inner, width(line))
	}
	edge := strings.Repeat("─", inner+2)
	bar := o.DimText("│")
	row := func(s string) {
		o.Printf("%s %s %s\n", bar, pad(s, inner), bar)
	}

	o.Println(o.DimText("┌" + edge + "┐"))
	row(o.BoldText(title))
	o.Println(o.DimText("├" + edge + "┤"))
	for _, line := range content {
		row(line)
	}
	o.Println(o.DimText("└" + edge + "┘"))
}
