// Package csvtable parses downloaded job results into a header/rows table,
// derives new CSV bodies from row subsets, and computes column statistics.
package csvtable

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/rotisserie/eris"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// Row is one data row. ID is its 0-based position among the data rows of
// the table it was parsed into and is only meaningful for that table.
type Row struct {
	ID   int      `json:"id"`
	Data []string `json:"data"`
}

// Table is a parsed CSV body with the header row separated out.
type Table struct {
	Headers []string `json:"headers"`
	Rows    []Row    `json:"rows"`
}

// ParseError reports a syntactically invalid CSV body.
type ParseError struct {
	Line   int
	Column int
	Err    error
}

func (e *ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("csvtable: invalid csv at line %d, column %d: %v", e.Line, e.Column, e.Err)
	}
	return fmt.Sprintf("csvtable: invalid csv: %v", e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// Parse reads a CSV body into a Table. Records with fewer than two cells
// or with only empty cells are discarded; the first remaining record is
// the header. An empty body yields an empty table. A leading UTF-8 byte
// order mark is dropped.
func Parse(r io.Reader) (*Table, error) {
	reader := csv.NewReader(transform.NewReader(r, unicode.BOMOverride(unicode.UTF8.NewDecoder())))
	reader.FieldsPerRecord = -1 // allow variable fields

	t := &Table{Headers: []string{}, Rows: []Row{}}
	haveHeader := false
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			var csvErr *csv.ParseError
			if errors.As(err, &csvErr) {
				return nil, &ParseError{Line: csvErr.Line, Column: csvErr.Column, Err: csvErr.Err}
			}
			return nil, &ParseError{Err: err}
		}

		if isNoise(record) {
			continue
		}
		if !haveHeader {
			t.Headers = record
			haveHeader = true
			continue
		}
		t.Rows = append(t.Rows, Row{ID: len(t.Rows), Data: record})
	}
	return t, nil
}

// ParseString is Parse over an in-memory body.
func ParseString(body string) (*Table, error) {
	return Parse(strings.NewReader(body))
}

// ParseBytes is Parse over an in-memory body.
func ParseBytes(body []byte) (*Table, error) {
	return Parse(bytes.NewReader(body))
}

func isNoise(record []string) bool {
	if len(record) < 2 {
		return true
	}
	for _, cell := range record {
		if cell != "" {
			return false
		}
	}
	return true
}

// Len returns the number of data rows.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Rows)
}

// Has reports whether id names a row of t.
func (t *Table) Has(id int) bool {
	return t != nil && id >= 0 && id < len(t.Rows)
}

// Subset returns the data of the rows whose ids are in ids, in table order.
func (t *Table) Subset(ids map[int]struct{}) [][]string {
	if t == nil {
		return nil
	}
	out := make([][]string, 0, len(ids))
	for _, row := range t.Rows {
		if _, ok := ids[row.ID]; ok {
			out = append(out, row.Data)
		}
	}
	return out
}

// Data returns the data of every row in table order.
func (t *Table) Data() [][]string {
	if t == nil {
		return nil
	}
	out := make([][]string, len(t.Rows))
	for i, row := range t.Rows {
		out[i] = row.Data
	}
	return out
}

// ColumnIndex returns the index of the first header containing substr
// (case-insensitive), or -1.
func (t *Table) ColumnIndex(substr string) int {
	if t == nil {
		return -1
	}
	return ColumnIndex(t.Headers, substr)
}

// Serialize writes headers and rows as RFC 4180 CSV, header first. Fields
// containing commas, quotes, or newlines are quoted with inner quotes
// doubled. CRLF inside a field is written as LF, which is what Parse
// returns for it anyway.
func Serialize(w io.Writer, headers []string, rows [][]string) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(normalizeEOL(headers)); err != nil {
		return eris.Wrap(err, "csvtable: write header")
	}
	for i, row := range rows {
		if err := cw.Write(normalizeEOL(row)); err != nil {
			return eris.Wrapf(err, "csvtable: write row %d", i)
		}
	}
	cw.Flush()
	return eris.Wrap(cw.Error(), "csvtable: flush")
}

func normalizeEOL(record []string) []string {
	var out []string
	for i, f := range record {
		if !strings.Contains(f, "\r\n") {
			continue
		}
		if out == nil {
			out = slices.Clone(record)
		}
		out[i] = strings.ReplaceAll(f, "\r\n", "\n")
	}
	if out == nil {
		return record
	}
	return out
}

// Derive returns the CSV body for headers and rows.
func Derive(headers []string, rows [][]string) (string, error) {
	var buf strings.Builder
	if err := Serialize(&buf, headers, rows); err != nil {
		return "", err
	}
	return buf.String(), nil
}
