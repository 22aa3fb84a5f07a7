package csvtable

import (
	"strings"

	"golang.org/x/text/cases"
)

// NotAvailable is the placeholder the enrichment service writes for
// missing values.
const NotAvailable = "N/A"

// Category names a column of interest by a header substring.
type Category struct {
	Name      string `json:"name"`
	Substring string `json:"substring"`
}

// DefaultCategories are the contact channels summarised for lead tables.
var DefaultCategories = []Category{
	{Name: "emails", Substring: "email"},
	{Name: "phones", Substring: "phone"},
	{Name: "facebook", Substring: "facebook"},
	{Name: "instagram", Substring: "instagram"},
	{Name: "twitter", Substring: "twitter"},
	{Name: "linkedin", Substring: "linkedin"},
}

// Stat is the number of rows holding a value in a category's column.
// Column is -1 when no header matched.
type Stat struct {
	Name   string `json:"name"`
	Column int    `json:"column"`
	Count  int    `json:"count"`
}

// Fold returns s case-folded for case-insensitive comparison.
func Fold(s string) string {
	return cases.Fold().String(s)
}

// HasValue reports whether a cell holds real data: non-blank and not the
// "N/A" placeholder, ignoring surrounding whitespace and case.
func HasValue(cell string) bool {
	v := strings.TrimSpace(cell)
	return v != "" && !strings.EqualFold(v, NotAvailable)
}

// CellHasValue is HasValue for row[idx], false when idx is out of range.
func CellHasValue(row []string, idx int) bool {
	return idx >= 0 && idx < len(row) && HasValue(row[idx])
}

// ColumnIndex returns the index of the first header containing substr
// (case-insensitive), or -1.
func ColumnIndex(headers []string, substr string) int {
	needle := Fold(substr)
	for i, h := range headers {
		if strings.Contains(Fold(h), needle) {
			return i
		}
	}
	return -1
}

// Stats counts, per category, the rows whose matching column holds a value.
func Stats(headers []string, rows [][]string, categories []Category) []Stat {
	out := make([]Stat, len(categories))
	for i, c := range categories {
		out[i] = Stat{Name: c.Name, Column: ColumnIndex(headers, c.Substring)}
	}
	for _, row := range rows {
		for i := range out {
			if CellHasValue(row, out[i].Column) {
				out[i].Count++
			}
		}
	}
	return out
}
