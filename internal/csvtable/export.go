package csvtable

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
)

// ExportKind selects the file name pattern of an exported table.
type ExportKind int

const (
	ExportAll ExportKind = iota
	ExportSelected
	ExportSelectedEnrich
	ExportRanked
)

// Format is the on-disk encoding of an export.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

// ParseFormat maps a flag value to a Format.
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case "", FormatCSV:
		return FormatCSV, nil
	case FormatXLSX:
		return FormatXLSX, nil
	default:
		return "", eris.Errorf("csvtable: unsupported export format %q", s)
	}
}

// ExportName returns the file name for an export created at now:
// leads_export_<ms>, selected_leads_<ms>, selected_leads_enrich_<ms>, or
// ranked_<yyyy-mm-dd>.
func ExportName(kind ExportKind, now time.Time, format Format) string {
	if format == "" {
		format = FormatCSV
	}
	ms := now.UnixMilli()
	switch kind {
	case ExportSelected:
		return fmt.Sprintf("selected_leads_%d.%s", ms, format)
	case ExportSelectedEnrich:
		return fmt.Sprintf("selected_leads_enrich_%d.%s", ms, format)
	case ExportRanked:
		return fmt.Sprintf("ranked_%s.%s", now.Format(time.DateOnly), format)
	default:
		return fmt.Sprintf("leads_export_%d.%s", ms, format)
	}
}

// WriteFile writes headers and rows to path in the given format.
func WriteFile(path string, format Format, headers []string, rows [][]string) error {
	switch format {
	case FormatXLSX:
		return WriteXLSX(path, headers, rows)
	case FormatCSV, "":
		return writeCSVFile(path, headers, rows)
	default:
		return eris.Errorf("csvtable: unsupported export format %q", format)
	}
}

func writeCSVFile(path string, headers []string, rows [][]string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return eris.Wrapf(err, "csvtable: create dir for %s", path)
	}
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "csvtable: create %s", path)
	}
	if err := Serialize(f, headers, rows); err != nil {
		f.Close() //nolint:errcheck
		return err
	}
	return eris.Wrapf(f.Close(), "csvtable: close %s", path)
}

// WriteXLSX writes headers and rows to a single-sheet workbook.
func WriteXLSX(path string, headers []string, rows [][]string) error {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("Leads")
	if err != nil {
		return eris.Wrap(err, "xlsx: add sheet")
	}

	addRow(sheet, headers)
	for _, r := range rows {
		addRow(sheet, r)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return eris.Wrapf(err, "xlsx: create dir for %s", path)
	}
	if err := f.Save(path); err != nil {
		return eris.Wrapf(err, "xlsx: save %s", path)
	}
	return nil
}

func addRow(sheet *xlsx.Sheet, values []string) {
	row := sheet.AddRow()
	for _, v := range values {
		row.AddCell().SetString(v)
	}
}

// ReadXLSX reads the first sheet of a workbook back into a Table.
func ReadXLSX(path string) (*Table, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "xlsx: open file")
	}
	if len(f.Sheets) == 0 {
		return &Table{Headers: []string{}, Rows: []Row{}}, nil
	}

	t := &Table{Headers: []string{}, Rows: []Row{}}
	for i, row := range f.Sheets[0].Rows {
		cells := make([]string, len(row.Cells))
		for j, cell := range row.Cells {
			cells[j] = cell.String()
		}
		if i == 0 {
			t.Headers = cells
			continue
		}
		t.Rows = append(t.Rows, Row{ID: len(t.Rows), Data: cells})
	}
	return t, nil
}
