// Package monitoring checks the local client's health: API reachability,
// the saved auth session and the age of saved wizard results.
package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/leadgen-cli/internal/auth"
	"github.com/sells-group/leadgen-cli/internal/store"
	"github.com/sells-group/leadgen-cli/internal/wizard"
	"github.com/sells-group/leadgen-cli/pkg/leadsapi"
)

// Snapshot holds a point-in-time view of client health.
type Snapshot struct {
	// API.
	APIReachable bool          `json:"api_reachable"`
	APIStatus    string        `json:"api_status,omitempty"`
	APIError     string        `json:"api_error,omitempty"`
	APILatency   time.Duration `json:"api_latency"`

	// Auth session.
	AuthState       string     `json:"auth_state"`
	TokenExpiresAt  *time.Time `json:"token_expires_at,omitempty"`
	HasRefreshToken bool       `json:"has_refresh_token"`

	// Saved wizard state.
	WizardSaved     bool        `json:"wizard_saved"`
	WizardStep      wizard.Step `json:"wizard_step,omitempty"`
	WizardJobID     string      `json:"wizard_job_id,omitempty"`
	WizardUpdatedAt time.Time   `json:"wizard_updated_at,omitempty"`

	CollectedAt time.Time `json:"collected_at"`
}

// HealthChecker pings the API.
type HealthChecker interface {
	Health(ctx context.Context) (*leadsapi.HealthStatus, error)
}

// SessionInfo is the read side of auth.Session.
type SessionInfo interface {
	State() auth.State
	Tokens() auth.Tokens
	TokenExpiry() (time.Time, bool, error)
}

// Collector gathers a Snapshot from the API, the session and the store.
type Collector struct {
	api   HealthChecker
	sess  SessionInfo
	store store.Store
	now   func() time.Time
}

// NewCollector creates a collector. sess and st may be nil.
func NewCollector(api HealthChecker, sess SessionInfo, st store.Store) *Collector {
	return &Collector{api: api, sess: sess, store: st, now: time.Now}
}

// Collect gathers a snapshot. An unreachable API is recorded in the
// snapshot; only store failures are returned as errors.
func (c *Collector) Collect(ctx context.Context) (*Snapshot, error) {
	snap := &Snapshot{
		CollectedAt: c.now().UTC(),
		AuthState:   auth.Anonymous.String(),
	}

	start := c.now()
	h, err := c.api.Health(ctx)
	snap.APILatency = c.now().Sub(start)
	if err != nil {
		snap.APIError = leadsapi.Message(err)
	} else {
		snap.APIReachable = true
		snap.APIStatus = h.Status
	}

	if c.sess != nil {
		snap.AuthState = c.sess.State().String()
		snap.HasRefreshToken = c.sess.Tokens().RefreshToken != ""
		if exp, ok, err := c.sess.TokenExpiry(); err == nil && ok {
			snap.TokenExpiresAt = &exp
		}
	}

	if c.store != nil {
		s, ok, err := wizard.LoadSaved(ctx, c.store)
		if err != nil {
			return nil, eris.Wrap(err, "monitoring: load wizard state")
		}
		if ok {
			snap.WizardSaved = true
			snap.WizardStep = s.Step
			snap.WizardJobID = s.JobID
			snap.WizardUpdatedAt = s.UpdatedAt
		}
	}

	return snap, nil
}
