package poller

import (
	"math"

	"github.com/sells-group/leadgen-cli/internal/model"
)

// ProgressPolicy describes how displayed progress advances while a job is
// pending or processing. Simulated progress is a UX approximation: it
// moves by Step per tick and stops at Cap so that the bar never implies
// completion before the server reports it.
type ProgressPolicy struct {
	Name string
	// Start is the value shown as soon as polling begins.
	Start int
	// Step is added per tick when the job carries no item counters.
	Step int
	// Cap bounds simulated progress.
	Cap int
	// CountedCap bounds progress computed from processed/total counters.
	CountedCap int
}

// Policies used by the lead, enrichment, audit and ranking flows.
var (
	LeadPolicy   = ProgressPolicy{Name: "lead", Start: 50, Step: 5, Cap: 90, CountedCap: 95}
	EnrichPolicy = ProgressPolicy{Name: "enrich", Start: 5, Step: 2, Cap: 95, CountedCap: 95}
	AuditPolicy  = ProgressPolicy{Name: "audit", Start: 5, Step: 2, Cap: 95, CountedCap: 95}
	RankPolicy   = ProgressPolicy{Name: "rank", Start: 5, Step: 2, Cap: 95, CountedCap: 95}
)

// Next returns the progress to display after observing job, given the
// previously displayed value. The result is never lower than prev.
func (p ProgressPolicy) Next(prev int, job *model.Job) int {
	var next int
	if job != nil && job.TotalItems > 0 {
		pct := float64(job.ProcessedItems) / float64(job.TotalItems) * 100
		next = int(math.Round(math.Min(pct, float64(p.CountedCap))))
	} else {
		next = min(prev+p.Step, p.Cap)
	}
	return max(prev, next)
}
