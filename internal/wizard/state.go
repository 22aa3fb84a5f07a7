package wizard

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/leadgen-cli/internal/selection"
	"github.com/sells-group/leadgen-cli/internal/store"
)

const stateKey = "leadGenState"

// Step names a wizard stage.
type Step string

const (
	StepExtract Step = "extract"
	StepEnrich  Step = "enrich"
	StepAudit   Step = "audit"
	StepRank    Step = "rank"
)

// State is the persisted wizard progress. The table itself is never
// saved; Resume downloads it again from JobID.
type State struct {
	Keyword  string `json:"keyword"`
	Location string `json:"location"`

	// JobID is the job whose result is currently previewed.
	JobID string `json:"job_id,omitempty"`
	// Step is the stage that produced JobID.
	Step       Step   `json:"step,omitempty"`
	ResultFile string `json:"result_file,omitempty"`
	Enriched   bool   `json:"is_enriched"`

	LeadJobID  string `json:"lead_job_id,omitempty"`
	AuditJobID string `json:"audit_job_id,omitempty"`
	RankJobID  string `json:"rank_job_id,omitempty"`

	selection.Snapshot

	UpdatedAt time.Time `json:"updated_at"`
}

// HasResults reports whether a completed job result is available.
func (s State) HasResults() bool {
	return s.JobID != "" && s.ResultFile != ""
}

// LoadSaved returns the saved wizard state without touching the API.
func LoadSaved(ctx context.Context, st store.Store) (State, bool, error) {
	return loadState(ctx, st)
}

func loadState(ctx context.Context, st store.Store) (State, bool, error) {
	var s State
	ok, err := st.Get(ctx, store.NamespaceWizard, stateKey, &s)
	if err != nil {
		return State{}, false, eris.Wrap(err, "wizard: load state")
	}
	return s, ok, nil
}

func saveState(ctx context.Context, st store.Store, s State) error {
	return eris.Wrap(st.Put(ctx, store.NamespaceWizard, stateKey, s), "wizard: save state")
}
