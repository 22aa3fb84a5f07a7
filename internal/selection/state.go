// Package selection holds the filter and row-selection state over a
// loaded result table.
package selection

import (
	"slices"
	"strings"

	"github.com/sells-group/leadgen-cli/internal/csvtable"
)

// State is the selection and filter state for one result table. The
// visible row set is derived on demand from the table and the two filters.
// State is not safe for concurrent use.
type State struct {
	table    *csvtable.Table
	selected map[int]struct{}
	search   string
	columns  map[int]struct{}
}

// Snapshot is the persisted form of a State, without the table.
type Snapshot struct {
	Selected []int  `json:"selected_ids"`
	Search   string `json:"filter_text"`
	Columns  []int  `json:"active_column_filters"`
}

// New returns an empty State with no table loaded.
func New() *State {
	return &State{
		table:    &csvtable.Table{Headers: []string{}, Rows: []csvtable.Row{}},
		selected: make(map[int]struct{}),
		columns:  make(map[int]struct{}),
	}
}

// Load replaces the table. The selection is cleared; filters are kept.
func (s *State) Load(t *csvtable.Table) {
	if t == nil {
		t = &csvtable.Table{Headers: []string{}, Rows: []csvtable.Row{}}
	}
	s.table = t
	s.selected = make(map[int]struct{})
}

// Table returns the loaded table.
func (s *State) Table() *csvtable.Table {
	return s.table
}

// ToggleRow flips the selection of row id. Unknown ids are ignored.
func (s *State) ToggleRow(id int) {
	if !s.table.Has(id) {
		return
	}
	if _, ok := s.selected[id]; ok {
		delete(s.selected, id)
		return
	}
	s.selected[id] = struct{}{}
}

// ToggleSelectAllVisible deselects every visible row if all are selected,
// otherwise selects all of them. Hidden rows are left alone.
func (s *State) ToggleSelectAllVisible() {
	visible := s.Visible()
	if len(visible) == 0 {
		return
	}
	if s.AllVisibleSelected() {
		for _, r := range visible {
			delete(s.selected, r.ID)
		}
		return
	}
	for _, r := range visible {
		s.selected[r.ID] = struct{}{}
	}
}

// SetFreeTextFilter sets the substring search. Empty clears it.
func (s *State) SetFreeTextFilter(text string) {
	s.search = text
}

// FreeTextFilter returns the current search text.
func (s *State) FreeTextFilter() string {
	return s.search
}

// ToggleColumnFilter adds or removes column idx from the presence filter.
func (s *State) ToggleColumnFilter(idx int) {
	if _, ok := s.columns[idx]; ok {
		delete(s.columns, idx)
		return
	}
	s.columns[idx] = struct{}{}
}

// ColumnFilters returns the active column filter indices in ascending order.
func (s *State) ColumnFilters() []int {
	return sortedKeys(s.columns)
}

// ClearFilters removes the search text and every column filter.
func (s *State) ClearFilters() {
	s.search = ""
	s.columns = make(map[int]struct{})
}

// Visible returns the rows passing both the search and the column filters,
// in table order.
func (s *State) Visible() []csvtable.Row {
	query := csvtable.Fold(s.search)
	cols := sortedKeys(s.columns)

	out := make([]csvtable.Row, 0, len(s.table.Rows))
	for _, r := range s.table.Rows {
		if matchesSearch(r.Data, query) && passesColumns(r.Data, cols) {
			out = append(out, r)
		}
	}
	return out
}

func matchesSearch(data []string, query string) bool {
	if query == "" {
		return true
	}
	for _, cell := range data {
		if strings.Contains(csvtable.Fold(cell), query) {
			return true
		}
	}
	return false
}

func passesColumns(data []string, cols []int) bool {
	for _, idx := range cols {
		if !csvtable.CellHasValue(data, idx) {
			return false
		}
	}
	return true
}

// IsSelected reports whether row id is selected.
func (s *State) IsSelected(id int) bool {
	_, ok := s.selected[id]
	return ok
}

// Selected returns the selected row ids in ascending order.
func (s *State) Selected() []int {
	return sortedKeys(s.selected)
}

// SelectedData returns the data of the selected rows in table order,
// including rows hidden by the current filters.
func (s *State) SelectedData() [][]string {
	return s.table.Subset(s.selected)
}

// AllVisibleSelected reports whether there is at least one visible row and
// every visible row is selected.
func (s *State) AllVisibleSelected() bool {
	visible := s.Visible()
	if len(visible) == 0 {
		return false
	}
	for _, r := range visible {
		if !s.IsSelected(r.ID) {
			return false
		}
	}
	return true
}

// SomeVisibleSelected reports whether some, but not all, visible rows are
// selected.
func (s *State) SomeVisibleSelected() bool {
	n := 0
	visible := s.Visible()
	for _, r := range visible {
		if s.IsSelected(r.ID) {
			n++
		}
	}
	return n > 0 && n < len(visible)
}

// Stats computes the per-category counts over the visible rows.
func (s *State) Stats(categories []csvtable.Category) []csvtable.Stat {
	visible := s.Visible()
	data := make([][]string, len(visible))
	for i, r := range visible {
		data[i] = r.Data
	}
	return csvtable.Stats(s.table.Headers, data, categories)
}

// Snapshot captures selection and filters.
func (s *State) Snapshot() Snapshot {
	return Snapshot{
		Selected: s.Selected(),
		Search:   s.search,
		Columns:  s.ColumnFilters(),
	}
}

// Restore applies a snapshot to the loaded table. Ids that do not name a
// row of the table are dropped.
func (s *State) Restore(snap Snapshot) {
	s.selected = make(map[int]struct{}, len(snap.Selected))
	for _, id := range snap.Selected {
		if s.table.Has(id) {
			s.selected[id] = struct{}{}
		}
	}
	s.search = snap.Search
	s.columns = make(map[int]struct{}, len(snap.Columns))
	for _, idx := range snap.Columns {
		s.columns[idx] = struct{}{}
	}
}

func sortedKeys(m map[int]struct{}) []int {
	out := make([]int, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}
