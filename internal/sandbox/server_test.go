package sandbox

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/leadgen-cli/internal/csvtable"
	"github.com/sells-group/leadgen-cli/internal/model"
	"github.com/sells-group/leadgen-cli/pkg/leadsapi"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type bearer struct {
	mu  sync.Mutex
	tok string
}

func (b *bearer) Bearer() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.tok
}

func (b *bearer) set(tok string) {
	b.mu.Lock()
	b.tok = tok
	b.mu.Unlock()
}

type fixture struct {
	srv    *Server
	api    leadsapi.Client
	clock  *clock
	bearer *bearer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	c := &clock{now: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)}
	s := New(Config{ExtractSteps: 2, RowsPerPage: 3, Now: c.Now})

	hs := httptest.NewServer(s.Handler())
	t.Cleanup(hs.Close)

	b := &bearer{}
	return &fixture{
		srv:    s,
		api:    leadsapi.NewClient(leadsapi.WithBaseURL(hs.URL+"/api"), leadsapi.WithTokenSource(b)),
		clock:  c,
		bearer: b,
	}
}

func pollUntilTerminal(t *testing.T, get func() (*model.Job, error)) []*model.Job {
	t.Helper()
	var seen []*model.Job
	for range 20 {
		j, err := get()
		require.NoError(t, err)
		seen = append(seen, j)
		if j.Status.IsTerminal() {
			return seen
		}
	}
	t.Fatal("job never reached a terminal status")
	return nil
}

const leadsCSV = "Business Name,Website URL\nAcme,https://acme.com\nBeta,https://beta.io/about\n"

func TestHealth(t *testing.T) {
	s := New(Config{})
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"healthy"}`, rec.Body.String())

	h, err := newFixture(t).api.Health(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "healthy", h.Status)
}

func TestExtractLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	started, err := f.api.ExtractURLs(ctx, leadsapi.ExtractRequest{BusinessType: "plumber", Location: "Austin, TX", NumPages: 2})
	require.NoError(t, err)
	require.NotEmpty(t, started.JobID)
	assert.Equal(t, "pending", started.Status)

	jobs := pollUntilTerminal(t, func() (*model.Job, error) { return f.api.GetJob(ctx, started.JobID) })
	require.Len(t, jobs, 3)
	assert.Equal(t, model.JobStatusProcessing, jobs[0].Status)
	assert.Nil(t, jobs[0].ResultFile)
	assert.Zero(t, jobs[1].TotalItems)

	done := jobs[2]
	assert.Equal(t, model.JobStatusCompleted, done.Status)
	assert.Equal(t, "plumber_in_Austin_TX_20260102_030405.csv", done.ResultFileName())

	body, err := f.api.Download(ctx, started.JobID)
	require.NoError(t, err)
	tbl, err := csvtable.ParseBytes(body)
	require.NoError(t, err)
	assert.Equal(t, []string{"Business Name", "Website URL"}, tbl.Headers)
	assert.Equal(t, 6, tbl.Len())

	files, err := f.api.ListFiles(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, files.Count)
	assert.Equal(t, done.ResultFileName(), files.Files[0].Filename)
	assert.Equal(t, int64(len(body)), files.Files[0].Size)
}

func TestExtractFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	started, err := f.api.ExtractURLs(ctx, leadsapi.ExtractRequest{BusinessType: "fail", Location: "Nowhere", NumPages: 1})
	require.NoError(t, err)

	jobs := pollUntilTerminal(t, func() (*model.Job, error) { return f.api.GetJob(ctx, started.JobID) })
	last := jobs[len(jobs)-1]
	assert.Equal(t, model.JobStatusFailed, last.Status)
	assert.Equal(t, "No results to save", last.ErrorMessage())

	_, err = f.api.Download(ctx, started.JobID)
	require.Error(t, err)
	assert.Equal(t, "Job is not completed yet. Current status: failed", leadsapi.Detail(err))
}

func TestUnknownJob(t *testing.T) {
	f := newFixture(t)

	_, err := f.api.GetJob(context.Background(), "nope")
	var apiErr *leadsapi.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
	assert.Equal(t, "Job 'nope' not found", apiErr.Detail)
}

func TestEnrich(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.api.EnrichContacts(ctx, "missing.csv")
	assert.Equal(t, "Input file 'missing.csv' not found", leadsapi.Detail(err))

	f.srv.PutFile("leads.csv", []byte(leadsCSV))
	started, err := f.api.EnrichContacts(ctx, "leads.csv")
	require.NoError(t, err)

	jobs := pollUntilTerminal(t, func() (*model.Job, error) { return f.api.GetJob(ctx, started.JobID) })
	require.Len(t, jobs, 3)
	assert.Equal(t, 2, jobs[0].TotalItems)
	assert.Equal(t, 0, jobs[0].ProcessedItems)
	assert.Equal(t, 1, jobs[1].ProcessedItems)
	assert.Equal(t, 2, jobs[2].ProcessedItems)
	assert.Equal(t, "enriched_leads.csv", jobs[2].ResultFileName())

	body, err := f.api.Download(ctx, started.JobID)
	require.NoError(t, err)
	tbl, err := csvtable.ParseBytes(body)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"Business Name", "Website URL", "Email", "Phone Number",
		"Facebook", "Twitter", "LinkedIn", "Instagram", "Enrichment Status",
	}, tbl.Headers)
	assert.Equal(t, "info@acme.com", tbl.Rows[0].Data[2])
	assert.Equal(t, "info@beta.io", tbl.Rows[1].Data[2])
	assert.Equal(t, csvtable.NotAvailable, tbl.Rows[1].Data[3])
}

func TestRankSEO(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.srv.PutFile("leads.csv", []byte(leadsCSV))
	started, err := f.api.RankSEO(ctx, "leads.csv")
	require.NoError(t, err)

	jobs := pollUntilTerminal(t, func() (*model.Job, error) { return f.api.GetJob(ctx, started.JobID) })
	assert.Equal(t, "ranked_leads.csv", jobs[len(jobs)-1].ResultFileName())

	body, err := f.api.Download(ctx, started.JobID)
	require.NoError(t, err)
	tbl, err := csvtable.ParseBytes(body)
	require.NoError(t, err)
	rank := tbl.ColumnIndex("seo_rank")
	require.GreaterOrEqual(t, rank, 0)
	assert.Equal(t, "1", tbl.Rows[0].Data[rank])
	assert.Equal(t, "2", tbl.Rows[1].Data[rank])
}

func TestAuditFlow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.api.UploadAuditFile(ctx, "leads.txt", strings.NewReader(leadsCSV))
	assert.Equal(t, "Only CSV files are allowed", leadsapi.Detail(err))

	up, err := f.api.UploadAuditFile(ctx, "leads.csv", strings.NewReader(leadsCSV))
	require.NoError(t, err)
	assert.Equal(t, "upload_20260102_030405_leads.csv", up.Filename)
	assert.Equal(t, "File uploaded successfully", up.Message)

	started, err := f.api.RunAudit(ctx, up.Filename, 1)
	require.NoError(t, err)

	jobs := pollUntilTerminal(t, func() (*model.Job, error) { return f.api.GetAuditJob(ctx, started.JobID) })
	last := jobs[len(jobs)-1]
	assert.Equal(t, model.JobStatusCompleted, last.Status)
	assert.Equal(t, 1, last.TotalItems)
	assert.Equal(t, "audited_"+up.Filename, last.ResultFileName())

	body, err := f.api.DownloadAudit(ctx, started.JobID)
	require.NoError(t, err)
	tbl, err := csvtable.ParseBytes(body)
	require.NoError(t, err)
	status := tbl.ColumnIndex("audit_status")
	require.GreaterOrEqual(t, status, 0)
	assert.Equal(t, "SUCCESS", tbl.Rows[0].Data[status])
	assert.Empty(t, tbl.Rows[1].Data[status])
}

func TestAuditRun_MissingColumns(t *testing.T) {
	f := newFixture(t)
	f.srv.PutFile("bad.csv", []byte("foo,bar\n1,2\n"))

	_, err := f.api.RunAudit(context.Background(), "bad.csv", 0)
	var apiErr *leadsapi.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Contains(t, apiErr.Detail, "business_name")
}

func TestRankCSVFile(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	body := "Business Name,Mobile_Score,Desktop_Score\nFast,95,99\nSlow,20,40\nMid,60,70\n"
	resp, err := f.api.RankCSVFile(ctx, "audited.csv", strings.NewReader(body))
	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.Equal(t, 3, resp.TotalRanked)

	var names []string
	for i, row := range resp.Data {
		names = append(names, row["Business Name"].(string))
		assert.InDelta(t, float64(i+1), row["SEO_Rank"], 0)
	}
	assert.Equal(t, []string{"Slow", "Mid", "Fast"}, names)
	assert.InDelta(t, 72.0, resp.Data[0]["PainScore"], 0.001)

	_, err = f.api.RankCSVFile(ctx, "audited.csv", strings.NewReader("Business Name\nA\n"))
	assert.Equal(t, "Missing required columns: Mobile_Score, Desktop_Score", leadsapi.Detail(err))
}

func TestAuth(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	u, err := f.api.Register(ctx, leadsapi.RegisterRequest{Email: "Ann@Example.com", Username: "ann", Password: "Secret123"})
	require.NoError(t, err)
	assert.Equal(t, "ann@example.com", u.Email)
	assert.True(t, u.IsActive)

	_, err = f.api.Register(ctx, leadsapi.RegisterRequest{Email: "ann@example.com", Username: "ann2", Password: "Secret123"})
	assert.Equal(t, "Email already registered", leadsapi.Detail(err))

	_, err = f.api.Login(ctx, "ann@example.com", "wrong")
	assert.True(t, leadsapi.IsUnauthorized(err))
	assert.Equal(t, "Incorrect email or password", leadsapi.Detail(err))

	pair, err := f.api.Login(ctx, "ann@example.com", "Secret123")
	require.NoError(t, err)
	assert.Equal(t, "bearer", pair.TokenType)

	_, err = f.api.Me(ctx)
	assert.Equal(t, "Not authenticated", leadsapi.Detail(err))

	f.bearer.set(pair.AccessToken)
	me, err := f.api.Me(ctx)
	require.NoError(t, err)
	assert.Equal(t, "ann", me.Username)

	_, err = f.api.Refresh(ctx, pair.AccessToken)
	assert.Equal(t, "Invalid refresh token", leadsapi.Detail(err))

	f.bearer.set(pair.RefreshToken)
	_, err = f.api.Me(ctx)
	assert.Equal(t, "Could not validate credentials", leadsapi.Detail(err))

	f.clock.Advance(31 * time.Minute)
	f.bearer.set(pair.AccessToken)
	_, err = f.api.Me(ctx)
	assert.True(t, leadsapi.IsUnauthorized(err))

	fresh, err := f.api.Refresh(ctx, pair.RefreshToken)
	require.NoError(t, err)
	f.bearer.set(fresh.AccessToken)
	_, err = f.api.Me(ctx)
	require.NoError(t, err)
}

func TestToken(t *testing.T) {
	s := New(Config{})
	_, err := s.Token("nobody@example.com", tokenAccess)
	assert.Error(t, err)
}

func TestAsk(t *testing.T) {
	f := newFixture(t)

	resp, err := f.api.Ask(context.Background(), leadsapi.ChatRequest{SessionID: "s", Message: "What is PainScore?"})
	require.NoError(t, err)
	assert.Contains(t, resp.Answer, "PainScore")

	_, err = f.api.Ask(context.Background(), leadsapi.ChatRequest{SessionID: "s", Message: "  "})
	assert.Equal(t, "Message is required", leadsapi.Detail(err))
}
