// Package rank handles PainScore-ranked lead results: ranking an audited
// CSV through the API, decoding ranked tables, and writing them back out.
package rank

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/jszwec/csvutil"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/leadgen-cli/internal/csvtable"
	"github.com/sells-group/leadgen-cli/pkg/leadsapi"
)

// Ranking columns added by the API, in display order.
const (
	ColSEORank      = "SEO_Rank"
	ColPainScore    = "PainScore"
	ColMobileScore  = "Mobile_Score"
	ColDesktopScore = "Desktop_Score"
)

var leadingColumns = []string{ColSEORank, ColPainScore, ColMobileScore, ColDesktopScore}

// Lead is the typed view of one ranked row. A higher PainScore means a
// weaker site; SEO_Rank 1 is the weakest.
type Lead struct {
	BusinessName string  `csv:"Business Name"`
	Website      string  `csv:"Website URL"`
	SEORank      int     `csv:"SEO_Rank"`
	PainScore    float64 `csv:"PainScore"`
	MobileScore  float64 `csv:"Mobile_Score"`
	DesktopScore float64 `csv:"Desktop_Score"`
}

// Row is one ranked record as returned by the API.
type Row map[string]any

// Result is a ranked upload.
type Result struct {
	Columns []string
	Rows    []Row
	Total   int
}

// Ranker uploads a CSV for ranking.
type Ranker interface {
	RankCSVFile(ctx context.Context, filename string, body io.Reader) (*leadsapi.RankResponse, error)
}

// RankFile uploads the audited CSV at path and returns its rows sorted by
// PainScore, highest first.
func RankFile(ctx context.Context, api Ranker, path string) (*Result, error) {
	if !strings.HasSuffix(strings.ToLower(path), ".csv") {
		return nil, eris.New("Only CSV files are allowed")
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "rank: open %s", path)
	}
	defer f.Close() //nolint:errcheck

	resp, err := api.RankCSVFile(ctx, filepath.Base(path), f)
	if err != nil {
		return nil, eris.Wrap(err, "rank: rank csv file")
	}

	rows := make([]Row, len(resp.Data))
	for i, d := range resp.Data {
		rows[i] = Row(d)
	}
	Sort(rows)

	zap.L().Info("rank: ranked file",
		zap.String("file", filepath.Base(path)),
		zap.Int("total_ranked", resp.TotalRanked),
	)
	return &Result{Columns: Columns(rows), Rows: rows, Total: resp.TotalRanked}, nil
}

// Sort orders rows by PainScore descending, then SEO_Rank ascending.
func Sort(rows []Row) {
	slices.SortStableFunc(rows, func(a, b Row) int {
		pa, pb := Number(a[ColPainScore]), Number(b[ColPainScore])
		switch {
		case pa > pb:
			return -1
		case pa < pb:
			return 1
		}
		ra, rb := Number(a[ColSEORank]), Number(b[ColSEORank])
		switch {
		case ra < rb:
			return -1
		case ra > rb:
			return 1
		}
		return 0
	})
}

// Number converts a JSON or CSV cell to a float. Blank, "N/A" and
// unparseable values are 0.
func Number(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	case json.Number:
		f, _ := n.Float64()
		return f
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0
		}
		return f
	default:
		return 0
	}
}

// Columns returns the column order for rows: the ranking columns first,
// then every other key sorted.
func Columns(rows []Row) []string {
	seen := map[string]bool{}
	for _, c := range leadingColumns {
		seen[c] = true
	}
	var rest []string
	for _, r := range rows {
		for k := range r {
			if !seen[k] {
				seen[k] = true
				rest = append(rest, k)
			}
		}
	}
	slices.Sort(rest)
	return append(slices.Clone(leadingColumns), rest...)
}

// WriteCSV writes rows in Columns order.
func WriteCSV(w io.Writer, rows []Row) error {
	cols := Columns(rows)
	data := make([][]string, len(rows))
	for i, r := range rows {
		rec := make([]string, len(cols))
		for j, c := range cols {
			rec[j] = format(r[c])
		}
		data[i] = rec
	}
	return csvtable.Serialize(w, cols, data)
}

func format(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	case json.Number:
		return x.String()
	default:
		b, err := json.Marshal(x)
		if err != nil {
			return ""
		}
		return string(b)
	}
}

// Decode reads the typed lead view of a ranked table. Numeric cells that
// are blank or "N/A" decode as 0.
func Decode(t *csvtable.Table) ([]Lead, error) {
	data := t.Data()
	for i, rec := range data {
		if len(rec) != len(t.Headers) {
			fixed := make([]string, len(t.Headers))
			copy(fixed, rec)
			data[i] = fixed
		}
	}

	var buf strings.Builder
	if err := csvtable.Serialize(&buf, t.Headers, data); err != nil {
		return nil, err
	}

	dec, err := csvutil.NewDecoder(csv.NewReader(strings.NewReader(buf.String())))
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "rank: read header")
	}
	dec.Map = func(field, _ string, v any) string {
		switch v.(type) {
		case int, float64:
			if !csvtable.HasValue(field) {
				return "0"
			}
			return strings.TrimSpace(field)
		}
		return field
	}

	var leads []Lead
	for {
		var l Lead
		if err := dec.Decode(&l); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, eris.Wrap(err, "rank: decode lead")
		}
		leads = append(leads, l)
	}
	return leads, nil
}

// Top returns the n leads with the highest PainScore.
func Top(leads []Lead, n int) []Lead {
	out := slices.Clone(leads)
	slices.SortStableFunc(out, func(a, b Lead) int {
		switch {
		case a.PainScore > b.PainScore:
			return -1
		case a.PainScore < b.PainScore:
			return 1
		}
		return a.SEORank - b.SEORank
	})
	if n >= 0 && n < len(out) {
		out = out[:n]
	}
	return out
}
