// Package wizard drives the lead workflow: extract, enrich, audit, rank.
// Each step starts a server job, polls it to a terminal state and loads
// the resulting CSV into a selection.State for preview and filtering.
package wizard

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/leadgen-cli/internal/csvtable"
	"github.com/sells-group/leadgen-cli/internal/model"
	"github.com/sells-group/leadgen-cli/internal/poller"
	"github.com/sells-group/leadgen-cli/internal/selection"
	"github.com/sells-group/leadgen-cli/internal/store"
	"github.com/sells-group/leadgen-cli/pkg/leadsapi"
)

var (
	// ErrMissingInput is returned by Extract when keyword or location is blank.
	ErrMissingInput = eris.New("wizard: keyword and location are required")
	// ErrNoResults is returned by steps that need a completed result file.
	ErrNoResults = eris.New("wizard: no results yet, run extract first")
	// ErrNothingToExport is returned when the export would be empty.
	ErrNothingToExport = eris.New("wizard: no rows to export")
)

// StartError reports that the server refused to start a step's job.
type StartError struct {
	Step Step
	Err  error
}

func (e *StartError) Error() string {
	return fmt.Sprintf("wizard: start %s: %v", e.Step, e.Err)
}

func (e *StartError) Unwrap() error {
	return e.Err
}

// Reporter receives displayed progress for the running step.
type Reporter func(step Step, pct int)

// Option configures a Flow.
type Option func(*Flow)

// WithIntervals sets the poll intervals for lead/enrich/rank jobs and for
// audit jobs.
func WithIntervals(lead, audit time.Duration) Option {
	return func(f *Flow) {
		if lead > 0 {
			f.leadInterval = lead
		}
		if audit > 0 {
			f.auditInterval = audit
		}
	}
}

// WithClock sets the poller clock.
func WithClock(c poller.Clock) Option {
	return func(f *Flow) { f.clock = c }
}

// WithReporter sets the progress reporter.
func WithReporter(r Reporter) Option {
	return func(f *Flow) { f.report = r }
}

// WithNow sets the clock used for export and upload file names.
func WithNow(now func() time.Time) Option {
	return func(f *Flow) { f.now = now }
}

// WithPages sets the number of search result pages per extraction.
func WithPages(n int) Option {
	return func(f *Flow) {
		if n > 0 {
			f.pages = n
		}
	}
}

// Flow is the wizard. It is not safe for concurrent use.
type Flow struct {
	api   leadsapi.Client
	store store.Store
	sel   *selection.State
	state State

	leadInterval  time.Duration
	auditInterval time.Duration
	pages         int
	clock         poller.Clock
	report        Reporter
	now           func() time.Time
}

// New returns a Flow with empty state. Call Resume to pick up saved state.
func New(api leadsapi.Client, st store.Store, opts ...Option) *Flow {
	f := &Flow{
		api:           api,
		store:         st,
		sel:           selection.New(),
		leadInterval:  poller.DefaultInterval,
		auditInterval: poller.AuditInterval,
		pages:         1,
		clock:         poller.RealClock{},
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// State returns the current wizard state including selection and filters.
func (f *Flow) State() State {
	s := f.state
	s.Snapshot = f.sel.Snapshot()
	return s
}

// Selection exposes the preview table with its selection and filters.
func (f *Flow) Selection() *selection.State {
	return f.sel
}

// Extract starts a lead search for keyword in location, waits for it and
// loads the result preview. Previous results, selection and the enriched
// flag are cleared first.
func (f *Flow) Extract(ctx context.Context, keyword, location string) (*model.Job, error) {
	keyword, location = strings.TrimSpace(keyword), strings.TrimSpace(location)
	if keyword == "" || location == "" {
		return nil, ErrMissingInput
	}

	f.state = State{Keyword: keyword, Location: location}
	f.sel.Load(nil)
	if err := f.save(ctx); err != nil {
		return nil, err
	}

	started, err := f.api.ExtractURLs(ctx, leadsapi.ExtractRequest{
		BusinessType: keyword,
		Location:     location,
		NumPages:     f.pages,
	})
	if err != nil {
		return nil, &StartError{Step: StepExtract, Err: err}
	}

	job, err := f.poll(ctx, StepExtract, started.JobID, f.api.GetJob, poller.LeadPolicy, f.leadInterval)
	if err != nil {
		return job, err
	}

	f.state.LeadJobID = job.ID
	if err := f.complete(ctx, StepExtract, job); err != nil {
		return job, err
	}
	return job, nil
}

// Enrich enriches the current results. When rows are selected only those
// rows are uploaded and enriched.
func (f *Flow) Enrich(ctx context.Context) (*model.Job, error) {
	if !f.state.HasResults() {
		return nil, ErrNoResults
	}

	input, err := f.inputFile(ctx, csvtable.ExportSelectedEnrich)
	if err != nil {
		return nil, err
	}

	started, err := f.api.EnrichContacts(ctx, input)
	if err != nil {
		return nil, &StartError{Step: StepEnrich, Err: err}
	}

	job, err := f.poll(ctx, StepEnrich, started.JobID, f.api.GetJob, poller.EnrichPolicy, f.leadInterval)
	if err != nil {
		return job, err
	}

	f.state.Enriched = true
	if err := f.complete(ctx, StepEnrich, job); err != nil {
		return job, err
	}
	return job, nil
}

// Audit runs the SEO audit over the selected rows, or over the whole
// result file when nothing is selected. limit caps the audited rows; 0
// audits all of them.
func (f *Flow) Audit(ctx context.Context, limit int) (*model.Job, error) {
	if !f.state.HasResults() {
		return nil, ErrNoResults
	}

	input, err := f.inputFile(ctx, csvtable.ExportSelected)
	if err != nil {
		return nil, err
	}

	started, err := f.api.RunAudit(ctx, input, limit)
	if err != nil {
		return nil, &StartError{Step: StepAudit, Err: err}
	}

	job, err := f.poll(ctx, StepAudit, started.JobID, f.api.GetAuditJob, poller.AuditPolicy, f.auditInterval)
	if err != nil {
		return job, err
	}

	f.state.AuditJobID = job.ID
	if err := f.complete(ctx, StepAudit, job); err != nil {
		return job, err
	}
	return job, nil
}

// Rank runs SEO ranking over the current result file.
func (f *Flow) Rank(ctx context.Context) (*model.Job, error) {
	if !f.state.HasResults() {
		return nil, ErrNoResults
	}

	started, err := f.api.RankSEO(ctx, f.state.ResultFile)
	if err != nil {
		return nil, &StartError{Step: StepRank, Err: err}
	}

	job, err := f.poll(ctx, StepRank, started.JobID, f.api.GetJob, poller.RankPolicy, f.leadInterval)
	if err != nil {
		return job, err
	}

	f.state.RankJobID = job.ID
	if err := f.complete(ctx, StepRank, job); err != nil {
		return job, err
	}
	return job, nil
}

// ExportOptions selects what Export writes.
type ExportOptions struct {
	// SelectedOnly exports only selected rows.
	SelectedOnly bool
	// Limit exports the first N rows; 0 means all. Ignored with SelectedOnly.
	Limit  int
	Format csvtable.Format
}

// Export writes the previewed table into dir and returns the file path.
func (f *Flow) Export(dir string, opts ExportOptions) (string, error) {
	t := f.sel.Table()
	kind := csvtable.ExportAll

	var rows [][]string
	switch {
	case opts.SelectedOnly:
		kind = csvtable.ExportSelected
		rows = f.sel.SelectedData()
	case opts.Limit > 0 && opts.Limit < t.Len():
		rows = t.Data()[:opts.Limit]
	default:
		rows = t.Data()
	}
	if len(rows) == 0 {
		return "", ErrNothingToExport
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", eris.Wrapf(err, "wizard: create export dir %s", dir)
	}
	path := filepath.Join(dir, csvtable.ExportName(kind, f.now(), opts.Format))
	if err := csvtable.WriteFile(path, opts.Format, t.Headers, rows); err != nil {
		return "", eris.Wrap(err, "wizard: export")
	}

	zap.L().Info("wizard: exported",
		zap.String("path", path),
		zap.Int("rows", len(rows)),
	)
	return path, nil
}

// ToggleRows flips the selection of each id and saves.
func (f *Flow) ToggleRows(ctx context.Context, ids ...int) error {
	for _, id := range ids {
		f.sel.ToggleRow(id)
	}
	return f.save(ctx)
}

// ToggleSelectAllVisible selects every visible row, or clears them when
// all are already selected, and saves.
func (f *Flow) ToggleSelectAllVisible(ctx context.Context) error {
	f.sel.ToggleSelectAllVisible()
	return f.save(ctx)
}

// SetFilter sets the free-text filter and saves.
func (f *Flow) SetFilter(ctx context.Context, text string) error {
	f.sel.SetFreeTextFilter(text)
	return f.save(ctx)
}

// ToggleColumnFilter toggles the "has value" filter on column idx and saves.
func (f *Flow) ToggleColumnFilter(ctx context.Context, idx int) error {
	f.sel.ToggleColumnFilter(idx)
	return f.save(ctx)
}

// ClearFilters drops the free-text and column filters and saves.
func (f *Flow) ClearFilters(ctx context.Context) error {
	f.sel.ClearFilters()
	return f.save(ctx)
}

// Resume loads the saved state and downloads the preview of its job
// again. It reports false when nothing was saved. A failed download keeps
// the state and leaves the preview empty.
func (f *Flow) Resume(ctx context.Context) (bool, error) {
	s, ok, err := loadState(ctx, f.store)
	if err != nil || !ok {
		return false, err
	}
	f.state = s
	f.sel.Load(nil)
	f.sel.Restore(selection.Snapshot{Search: s.Search, Columns: s.Columns})

	if s.JobID == "" {
		return true, nil
	}
	if err := f.loadPreview(ctx, s.Step, s.JobID); err != nil {
		zap.L().Warn("wizard: restore preview failed", zap.String("job_id", s.JobID), zap.Error(err))
		return true, err
	}
	f.sel.Restore(s.Snapshot)
	return true, nil
}

// Reset drops the saved state and the in-memory preview.
func (f *Flow) Reset(ctx context.Context) error {
	f.state = State{}
	f.sel = selection.New()
	return eris.Wrap(f.store.Delete(ctx, store.NamespaceWizard, stateKey), "wizard: reset")
}

func (f *Flow) save(ctx context.Context) error {
	s := f.State()
	s.UpdatedAt = f.now().UTC()
	return saveState(ctx, f.store, s)
}

// inputFile returns the server file name to feed into the next step,
// uploading the selected rows first when there is a selection.
func (f *Flow) inputFile(ctx context.Context, kind csvtable.ExportKind) (string, error) {
	if len(f.sel.Selected()) == 0 {
		return f.state.ResultFile, nil
	}

	body, err := csvtable.Derive(f.sel.Table().Headers, f.sel.SelectedData())
	if err != nil {
		return "", eris.Wrap(err, "wizard: build selected csv")
	}
	name := csvtable.ExportName(kind, f.now(), csvtable.FormatCSV)
	up, err := f.api.UploadAuditFile(ctx, name, strings.NewReader(body))
	if err != nil {
		return "", eris.Wrap(err, "wizard: upload selected leads")
	}

	zap.L().Info("wizard: uploaded selection",
		zap.String("file", up.Filename),
		zap.Int("rows", len(f.sel.Selected())),
	)
	return up.Filename, nil
}

func (f *Flow) poll(ctx context.Context, step Step, id string, status poller.StatusFunc, policy poller.ProgressPolicy, interval time.Duration) (*model.Job, error) {
	opts := []poller.Option{
		poller.WithPolicy(policy),
		poller.WithInterval(interval),
		poller.WithClock(f.clock),
	}
	if f.report != nil {
		opts = append(opts, poller.OnProgress(func(pct int) { f.report(step, pct) }))
	}

	job, err := poller.New(status, opts...).Run(ctx, id)
	if err != nil {
		return job, eris.Wrapf(err, "wizard: %s", step)
	}
	return job, nil
}

// complete records a finished job as the current result and loads its
// preview. A preview failure leaves the job recorded.
func (f *Flow) complete(ctx context.Context, step Step, job *model.Job) error {
	f.state.Step = step
	f.state.JobID = job.ID
	f.state.ResultFile = job.ResultFileName()

	loadErr := f.loadPreview(ctx, step, job.ID)
	if err := f.save(ctx); err != nil {
		return err
	}
	return loadErr
}

func (f *Flow) loadPreview(ctx context.Context, step Step, jobID string) error {
	download := f.api.Download
	if step == StepAudit {
		download = f.api.DownloadAudit
	}

	body, err := download(ctx, jobID)
	if err != nil {
		return eris.Wrap(err, "wizard: download preview")
	}
	t, err := csvtable.Parse(bytes.NewReader(body))
	if err != nil {
		return eris.Wrap(err, "wizard: parse preview")
	}
	f.sel.Load(t)
	return nil
}
