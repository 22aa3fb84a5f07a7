package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/rotisserie/eris"

	"github.com/sells-group/leadgen-cli/internal/csvtable"
	"github.com/sells-group/leadgen-cli/internal/model"
	"github.com/sells-group/leadgen-cli/internal/poller"
	"github.com/sells-group/leadgen-cli/internal/rank"
	"github.com/sells-group/leadgen-cli/internal/selection"
	"github.com/sells-group/leadgen-cli/pkg/leadsapi"
)

const maxCellWidth = 40

// errorBanner renders err the way the dashboard shows it: the server's
// detail when present, else the error text, behind a step prefix.
func errorBanner(prefix string, err error) error {
	return eris.Errorf("%s: %s", prefix, leadsapi.Message(err))
}

// pollFailure turns a poller error into the user-facing banner.
func pollFailure(kind string, err error) error {
	var statusErr *poller.StatusError
	if errors.As(err, &statusErr) {
		return eris.New("Error checking status")
	}
	var failed *poller.FailedError
	if errors.As(err, &failed) {
		return eris.Errorf("%s failed: %s", kind, failed.Message)
	}
	return err
}

// progressPrinter writes a single updating progress line to out.
func progressPrinter(out io.Writer, label string) func(pct int) {
	return func(pct int) {
		_, _ = fmt.Fprintf(out, "\r%s %3d%%", label, pct)
		if pct >= 100 {
			_, _ = fmt.Fprintln(out)
		}
	}
}

// watchJob polls job id until it is terminal, printing progress to stderr.
func watchJob(ctx context.Context, status poller.StatusFunc, id, label string, policy poller.ProgressPolicy) (*model.Job, error) {
	interval := cfg.Poll.LeadInterval
	if policy.Name == poller.AuditPolicy.Name {
		interval = cfg.Poll.AuditInterval
	}
	p := poller.New(status,
		poller.WithPolicy(policy),
		poller.WithInterval(interval),
		poller.OnProgress(progressPrinter(os.Stderr, label)),
	)
	job, err := p.Run(ctx, id)
	if err != nil {
		_, _ = fmt.Fprintln(os.Stderr)
	}
	return job, err
}

// formatJob writes a job summary to out.
func formatJob(out io.Writer, job *model.Job) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Job:\t%s\n", job.ID)
	if job.Type != "" {
		_, _ = fmt.Fprintf(w, "Type:\t%s\n", job.Type)
	}
	_, _ = fmt.Fprintf(w, "Status:\t%s\n", job.Status)
	if job.TotalItems > 0 {
		_, _ = fmt.Fprintf(w, "Items:\t%d/%d\n", job.ProcessedItems, job.TotalItems)
	}
	if f := job.ResultFileName(); f != "" {
		_, _ = fmt.Fprintf(w, "Result file:\t%s\n", f)
	}
	if e := job.ErrorMessage(); e != "" {
		_, _ = fmt.Fprintf(w, "Error:\t%s\n", e)
	}
	_ = w.Flush()
}

// formatJobs writes one line per job to out.
func formatJobs(out io.Writer, jobs []*model.Job) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "JOB\tSTATUS\tITEMS\tRESULT\tERROR")
	_, _ = fmt.Fprintln(w, "---\t------\t-----\t------\t-----")
	for _, j := range jobs {
		items := "-"
		if j.TotalItems > 0 {
			items = fmt.Sprintf("%d/%d", j.ProcessedItems, j.TotalItems)
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			j.ID, j.Status, items, j.ResultFileName(), j.ErrorMessage())
	}
	_ = w.Flush()
}

// formatFiles writes the server's output files to out.
func formatFiles(out io.Writer, files []leadsapi.FileInfo) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "FILE\tSIZE\tCREATED")
	_, _ = fmt.Fprintln(w, "----\t----\t-------")
	for _, f := range files {
		_, _ = fmt.Fprintf(w, "%s\t%d\t%s\n", f.Filename, f.Size, f.Created)
	}
	_ = w.Flush()
}

// formatPreview writes the visible rows of sel to out, marking selected
// rows, followed by a "Showing X of Y rows." footer. limit <= 0 shows all.
func formatPreview(out io.Writer, sel *selection.State, limit int) {
	t := sel.Table()
	visible := sel.Visible()

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	header := append([]string{"", "#"}, t.Headers...)
	_, _ = fmt.Fprintln(w, strings.Join(header, "\t"))
	for i, row := range visible {
		if limit > 0 && i >= limit {
			break
		}
		mark := " "
		if sel.IsSelected(row.ID) {
			mark = "*"
		}
		cells := make([]string, len(t.Headers))
		for c := range cells {
			if c < len(row.Data) {
				cells[c] = truncate(row.Data[c], maxCellWidth)
			}
		}
		_, _ = fmt.Fprintf(w, "%s\t%d\t%s\n", mark, row.ID, strings.Join(cells, "\t"))
	}
	_ = w.Flush()

	_, _ = fmt.Fprintf(out, "Showing %d of %d rows.", len(visible), t.Len())
	if n := len(sel.Selected()); n > 0 {
		_, _ = fmt.Fprintf(out, " %d selected.", n)
	}
	_, _ = fmt.Fprintln(out)
}

// formatStats writes the contact category counts to out. Categories with
// no matching column are skipped.
func formatStats(out io.Writer, stats []csvtable.Stat) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	for _, s := range stats {
		if s.Column < 0 {
			continue
		}
		_, _ = fmt.Fprintf(w, "%s:\t%d\n", s.Name, s.Count)
	}
	_ = w.Flush()
}

// formatLeads writes ranked leads to out.
func formatLeads(out io.Writer, leads []rank.Lead) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "RANK\tPAIN\tMOBILE\tDESKTOP\tBUSINESS\tWEBSITE")
	_, _ = fmt.Fprintln(w, "----\t----\t------\t-------\t--------\t-------")
	for _, l := range leads {
		_, _ = fmt.Fprintf(w, "%d\t%.2f\t%.0f\t%.0f\t%s\t%s\n",
			l.SEORank, l.PainScore, l.MobileScore, l.DesktopScore,
			truncate(l.BusinessName, maxCellWidth), l.Website)
	}
	_ = w.Flush()
}

// formatRanked writes ranked rows in column order to out.
func formatRanked(out io.Writer, res *rank.Result, limit int) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, strings.Join(res.Columns, "\t"))
	for i, r := range res.Rows {
		if limit > 0 && i >= limit {
			break
		}
		cells := make([]string, len(res.Columns))
		for c, col := range res.Columns {
			cells[c] = truncate(fmt.Sprint(valueOrEmpty(r[col])), maxCellWidth)
		}
		_, _ = fmt.Fprintln(w, strings.Join(cells, "\t"))
	}
	_ = w.Flush()
	_, _ = fmt.Fprintf(out, "Ranked %d leads.\n", res.Total)
}

func valueOrEmpty(v any) any {
	if v == nil {
		return ""
	}
	return v
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
