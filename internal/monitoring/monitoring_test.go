package monitoring

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/leadgen-cli/internal/auth"
	"github.com/sells-group/leadgen-cli/internal/config"
	"github.com/sells-group/leadgen-cli/internal/store"
	"github.com/sells-group/leadgen-cli/internal/wizard"
	"github.com/sells-group/leadgen-cli/pkg/leadsapi"
)

var now = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

type fakeAPI struct{ err error }

func (f fakeAPI) Health(context.Context) (*leadsapi.HealthStatus, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &leadsapi.HealthStatus{Status: "healthy"}, nil
}

type fakeSession struct {
	state  auth.State
	tokens auth.Tokens
	exp    time.Time
}

func (f fakeSession) State() auth.State   { return f.state }
func (f fakeSession) Tokens() auth.Tokens { return f.tokens }
func (f fakeSession) TokenExpiry() (time.Time, bool, error) {
	if f.exp.IsZero() {
		return time.Time{}, false, auth.ErrNotAuthenticated
	}
	return f.exp, true, nil
}

func newStore(t *testing.T) store.Store {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "monitoring.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func newCollector(api HealthChecker, sess SessionInfo, st store.Store) *Collector {
	c := NewCollector(api, sess, st)
	c.now = func() time.Time { return now }
	return c
}

func TestCollect(t *testing.T) {
	ctx := context.Background()
	st := newStore(t)
	saved := wizard.State{Keyword: "plumber", Step: wizard.StepAudit, JobID: "job-9", UpdatedAt: now.Add(-time.Hour)}
	require.NoError(t, st.Put(ctx, store.NamespaceWizard, "leadGenState", saved))

	exp := now.Add(30 * time.Minute)
	sess := fakeSession{state: auth.Authenticated, tokens: auth.Tokens{AccessToken: "a", RefreshToken: "r"}, exp: exp}

	snap, err := newCollector(fakeAPI{}, sess, st).Collect(ctx)
	require.NoError(t, err)

	assert.True(t, snap.APIReachable)
	assert.Equal(t, "healthy", snap.APIStatus)
	assert.Equal(t, "authenticated", snap.AuthState)
	assert.True(t, snap.HasRefreshToken)
	require.NotNil(t, snap.TokenExpiresAt)
	assert.Equal(t, exp, *snap.TokenExpiresAt)
	assert.True(t, snap.WizardSaved)
	assert.Equal(t, wizard.StepAudit, snap.WizardStep)
	assert.Equal(t, "job-9", snap.WizardJobID)
	assert.Equal(t, now, snap.CollectedAt)
}

func TestCollect_Unreachable(t *testing.T) {
	snap, err := newCollector(fakeAPI{err: errors.New("connection refused")}, nil, nil).Collect(context.Background())
	require.NoError(t, err)
	assert.False(t, snap.APIReachable)
	assert.Equal(t, "connection refused", snap.APIError)
	assert.Equal(t, "anonymous", snap.AuthState)
	assert.False(t, snap.WizardSaved)
}

func TestAlerter_Evaluate(t *testing.T) {
	cfg := config.MonitoringConfig{ExpiryWarningMins: 5, StaleWizardHours: 24}
	soon := now.Add(2 * time.Minute)
	later := now.Add(time.Hour)
	past := now.Add(-time.Minute)

	tests := []struct {
		name string
		snap Snapshot
		want []AlertType
	}{
		{
			name: "healthy",
			snap: Snapshot{APIReachable: true, AuthState: "authenticated", TokenExpiresAt: &later},
		},
		{
			name: "unreachable and anonymous",
			snap: Snapshot{APIError: "boom", AuthState: "anonymous"},
			want: []AlertType{AlertAPIUnreachable, AlertNotAuthenticated},
		},
		{
			name: "expiring without refresh token",
			snap: Snapshot{APIReachable: true, AuthState: "authenticated", TokenExpiresAt: &soon},
			want: []AlertType{AlertTokenExpiring},
		},
		{
			name: "expiring with refresh token",
			snap: Snapshot{APIReachable: true, AuthState: "authenticated", TokenExpiresAt: &soon, HasRefreshToken: true},
		},
		{
			name: "expired",
			snap: Snapshot{APIReachable: true, AuthState: "authenticated", TokenExpiresAt: &past},
			want: []AlertType{AlertTokenExpired},
		},
		{
			name: "stale wizard",
			snap: Snapshot{
				APIReachable: true, AuthState: "authenticated", TokenExpiresAt: &later,
				WizardSaved: true, WizardJobID: "job-1", WizardUpdatedAt: now.Add(-48 * time.Hour),
			},
			want: []AlertType{AlertStaleWizard},
		},
	}

	a := NewAlerter(cfg)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.snap.CollectedAt = now
			var got []AlertType
			for _, al := range a.Evaluate(&tt.snap) {
				got = append(got, al.Type)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestAlerter_SendAlerts(t *testing.T) {
	var received atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var a Alert
		require.NoError(t, json.NewDecoder(r.Body).Decode(&a))
		assert.Equal(t, AlertAPIUnreachable, a.Type)
		received.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	a := NewAlerter(config.MonitoringConfig{WebhookURL: srv.URL})
	sent := a.SendAlerts(context.Background(), []Alert{{Type: AlertAPIUnreachable, Severity: "high"}})
	assert.Equal(t, 1, sent)
	assert.Equal(t, int32(1), received.Load())
}

func TestAlerter_SendAlerts_NoWebhook(t *testing.T) {
	a := NewAlerter(config.MonitoringConfig{})
	assert.Zero(t, a.SendAlerts(context.Background(), []Alert{{Type: AlertAPIUnreachable}}))
}

func TestAlerter_SendAlerts_WebhookError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	a := NewAlerter(config.MonitoringConfig{WebhookURL: srv.URL})
	assert.Zero(t, a.SendAlerts(context.Background(), []Alert{{Type: AlertAPIUnreachable}}))
}

func TestChecker_Check(t *testing.T) {
	c := NewChecker(newCollector(fakeAPI{err: errors.New("down")}, nil, nil), NewAlerter(config.MonitoringConfig{}), config.MonitoringConfig{})
	snap, alerts, err := c.Check(context.Background())
	require.NoError(t, err)
	assert.False(t, snap.APIReachable)
	require.Len(t, alerts, 2)
	assert.Equal(t, AlertAPIUnreachable, alerts[0].Type)
}

func TestChecker_RunStopsOnCancel(t *testing.T) {
	c := NewChecker(newCollector(fakeAPI{}, nil, nil), NewAlerter(config.MonitoringConfig{}), config.MonitoringConfig{CheckIntervalSecs: 1})

	ctx, cancel := context.WithCancel(context.Background())
	reports := make(chan struct{}, 10)
	done := make(chan struct{})
	go func() {
		c.Run(ctx, func(*Snapshot, []Alert) { reports <- struct{}{} })
		close(done)
	}()

	select {
	case <-reports:
	case <-time.After(2 * time.Second):
		t.Fatal("no report from first check")
	}
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
