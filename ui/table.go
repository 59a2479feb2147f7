// Package ui renders snapshots, reports, and drift summaries to the terminal:
// plain aligned tables for one-shot output, a carriage-return progress bar for
// long fetches, and a tview dashboard for monitor mode.
package ui

import (
	"fmt"
	"io"
	"strings"
)

// Table is a minimal column-aligned text table with an optional header title
// and footer line.
type Table struct {
	title   string
	columns []string
	rows    [][]string
	footer  string
}

// NewTable creates a table with the given title and column headers.
func NewTable(title string, columns ...string) *Table {
	return &Table{title: title, columns: columns}
}

// AddRow appends a row; missing cells render empty, extras are dropped.
func (t *Table) AddRow(cells ...string) {
	row := make([]string, len(t.columns))
	for i := range row {
		if i < len(cells) {
			row[i] = cells[i]
		}
	}
	t.rows = append(t.rows, row)
}

// SetFooter sets the footer line rendered below the rows.
func (t *Table) SetFooter(footer string) {
	t.footer = footer
}

// Render writes the table.
func (t *Table) Render(w io.Writer) {
	widths := make([]int, len(t.columns))
	for i, col := range t.columns {
		widths[i] = len(col)
	}
	for _, row := range t.rows {
		for i, cell := range row {
			if len(cell) > widths[i] {
				widths[i] = len(cell)
			}
		}
	}

	total := len(widths) - 1 // separators
	for _, width := range widths {
		total += width + 2
	}
	rule := strings.Repeat("-", total+2)

	if t.title != "" {
		fmt.Fprintln(w, rule)
		fmt.Fprintf(w, "| %-*s |\n", total-2, t.title)
	}
	fmt.Fprintln(w, rule)
	fmt.Fprintln(w, t.formatRow(t.columns, widths))
	fmt.Fprintln(w, rule)
	for _, row := range t.rows {
		fmt.Fprintln(w, t.formatRow(row, widths))
	}
	fmt.Fprintln(w, rule)
	if t.footer != "" {
		fmt.Fprintf(w, "| %-*s |\n", total-2, t.footer)
		fmt.Fprintln(w, rule)
	}
}

func (t *Table) formatRow(cells []string, widths []int) string {
	var b strings.Builder
	b.WriteByte('|')
	for i, width := range widths {
		cell := ""
		if i < len(cells) {
			cell = cells[i]
		}
		fmt.Fprintf(&b, " %-*s |", width, cell)
	}
	return b.String()
}
