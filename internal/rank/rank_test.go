package rank

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/leadgen-cli/internal/csvtable"
	"github.com/sells-group/leadgen-cli/pkg/leadsapi"
	"github.com/sells-group/leadgen-cli/pkg/leadsapi/mocks"
)

func TestSort(t *testing.T) {
	rows := []Row{
		{"Business Name": "low", ColPainScore: 10.5, ColSEORank: 3.0},
		{"Business Name": "tie-b", ColPainScore: 40.0, ColSEORank: 2.0},
		{"Business Name": "high", ColPainScore: "55.25", ColSEORank: 1.0},
		{"Business Name": "tie-a", ColPainScore: 40.0, ColSEORank: 1.0},
		{"Business Name": "none", ColPainScore: nil},
	}

	Sort(rows)

	var names []string
	for _, r := range rows {
		names = append(names, r["Business Name"].(string))
	}
	assert.Equal(t, []string{"high", "tie-a", "tie-b", "low", "none"}, names)
}

func TestNumber(t *testing.T) {
	assert.Equal(t, 12.5, Number(12.5))
	assert.Equal(t, 3.0, Number(3))
	assert.Equal(t, 7.25, Number(" 7.25 "))
	assert.Zero(t, Number("N/A"))
	assert.Zero(t, Number(nil))
}

func TestColumns(t *testing.T) {
	rows := []Row{
		{"Website URL": "a.com", ColPainScore: 1.0, "Business Name": "A"},
		{"Ranking_Timestamp": "2026-01-01 00:00:00"},
	}
	assert.Equal(t, []string{
		ColSEORank, ColPainScore, ColMobileScore, ColDesktopScore,
		"Business Name", "Ranking_Timestamp", "Website URL",
	}, Columns(rows))
}

func TestWriteCSV(t *testing.T) {
	rows := []Row{
		{ColSEORank: 1.0, ColPainScore: 61.07, ColMobileScore: 42.0, ColDesktopScore: 80.0, "Business Name": "Acme, Inc."},
		{ColSEORank: 2.0, ColPainScore: 12.0, ColMobileScore: nil, ColDesktopScore: "N/A", "Business Name": "Beta"},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, rows))

	want := "SEO_Rank,PainScore,Mobile_Score,Desktop_Score,Business Name\n" +
		"1,61.07,42,80,\"Acme, Inc.\"\n" +
		"2,12,,N/A,Beta\n"
	assert.Equal(t, want, buf.String())
}

func TestDecode(t *testing.T) {
	body := "Business Name,Website URL,Mobile_Score,Desktop_Score,PainScore,SEO_Rank,Extra\n" +
		"Acme,acme.com,42,80,61.07,1,x\n" +
		"Beta,beta.io,N/A,,,\n" +
		"Gamma,gamma.dev,90,95,5.5,3,y\n"
	tbl, err := csvtable.ParseString(body)
	require.NoError(t, err)

	leads, err := Decode(tbl)
	require.NoError(t, err)
	require.Len(t, leads, 3)
	assert.Equal(t, Lead{
		BusinessName: "Acme", Website: "acme.com",
		SEORank: 1, PainScore: 61.07, MobileScore: 42, DesktopScore: 80,
	}, leads[0])
	assert.Equal(t, Lead{BusinessName: "Beta", Website: "beta.io"}, leads[1])

	top := Top(leads, 2)
	require.Len(t, top, 2)
	assert.Equal(t, "Acme", top[0].BusinessName)
	assert.Equal(t, "Gamma", top[1].BusinessName)
	assert.Len(t, Top(leads, -1), 3)
}

func TestDecode_EmptyTable(t *testing.T) {
	leads, err := Decode(&csvtable.Table{})
	require.NoError(t, err)
	assert.Empty(t, leads)
}

func TestRankFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audited.csv")
	require.NoError(t, os.WriteFile(path, []byte("Business Name,Mobile_Score\nA,10\nB,90\n"), 0o644))

	api := mocks.NewMockClient(t)
	api.On("RankCSVFile", mock.Anything, "audited.csv", mock.MatchedBy(func(r io.Reader) bool { return r != nil })).
		Return(&leadsapi.RankResponse{
			Success: true,
			Data: []map[string]any{
				{"Business Name": "B", ColPainScore: 8.0, ColSEORank: 2.0},
				{"Business Name": "A", ColPainScore: 70.0, ColSEORank: 1.0},
			},
			TotalRanked: 2,
		}, nil)

	res, err := RankFile(context.Background(), api, path)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Total)
	require.Len(t, res.Rows, 2)
	assert.Equal(t, "A", res.Rows[0]["Business Name"])
	assert.Equal(t, ColSEORank, res.Columns[0])
}

func TestRankFile_RejectsNonCSV(t *testing.T) {
	api := mocks.NewMockClient(t)
	_, err := RankFile(context.Background(), api, "leads.xlsx")
	assert.EqualError(t, err, "Only CSV files are allowed")
}

func TestRankFile_APIError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audited.csv")
	require.NoError(t, os.WriteFile(path, []byte("a,b\n1,2\n"), 0o644))

	api := mocks.NewMockClient(t)
	api.On("RankCSVFile", mock.Anything, "audited.csv", mock.Anything).
		Return(nil, &leadsapi.APIError{StatusCode: 400, Detail: "Missing required columns: Mobile_Score"})

	_, err := RankFile(context.Background(), api, path)
	require.Error(t, err)
	assert.Equal(t, "Missing required columns: Mobile_Score", leadsapi.Message(err))
}
