package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/leadgen-cli/internal/auth"
	"github.com/sells-group/leadgen-cli/internal/config"
)

// AlertType identifies the kind of alert.
type AlertType string

const (
	AlertAPIUnreachable   AlertType = "api_unreachable"
	AlertNotAuthenticated AlertType = "not_authenticated"
	AlertTokenExpiring    AlertType = "token_expiring"
	AlertTokenExpired     AlertType = "token_expired"
	AlertStaleWizard      AlertType = "stale_wizard"
)

// Alert represents a single finding.
type Alert struct {
	Type      AlertType      `json:"type"`
	Severity  string         `json:"severity"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Alerter evaluates a Snapshot against configured thresholds and sends
// alerts via webhook.
type Alerter struct {
	cfg    config.MonitoringConfig
	client *http.Client
}

// NewAlerter creates a new Alerter with the given monitoring config.
func NewAlerter(cfg config.MonitoringConfig) *Alerter {
	return &Alerter{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// Evaluate checks the snapshot and returns any alerts, most severe first.
func (a *Alerter) Evaluate(snap *Snapshot) []Alert {
	var alerts []Alert
	now := snap.CollectedAt

	if !snap.APIReachable {
		alerts = append(alerts, Alert{
			Type:      AlertAPIUnreachable,
			Severity:  "high",
			Message:   fmt.Sprintf("API is unreachable: %s", snap.APIError),
			Timestamp: now,
		})
	}

	switch {
	case snap.AuthState != auth.Authenticated.String():
		alerts = append(alerts, Alert{
			Type:      AlertNotAuthenticated,
			Severity:  "low",
			Message:   "Not logged in. Run: leadgen auth login",
			Timestamp: now,
		})
	case snap.TokenExpiresAt != nil && !snap.HasRefreshToken:
		left := snap.TokenExpiresAt.Sub(now)
		warn := time.Duration(a.cfg.ExpiryWarningMins) * time.Minute
		details := map[string]any{"expires_at": snap.TokenExpiresAt.UTC()}
		if left <= 0 {
			alerts = append(alerts, Alert{
				Type:      AlertTokenExpired,
				Severity:  "medium",
				Message:   "Access token has expired and cannot be refreshed. Log in again.",
				Details:   details,
				Timestamp: now,
			})
		} else if left <= warn {
			alerts = append(alerts, Alert{
				Type:      AlertTokenExpiring,
				Severity:  "low",
				Message:   fmt.Sprintf("Access token expires in %s and cannot be refreshed", left.Round(time.Second)),
				Details:   details,
				Timestamp: now,
			})
		}
	}

	if snap.WizardSaved && a.cfg.StaleWizardHours > 0 && !snap.WizardUpdatedAt.IsZero() {
		age := now.Sub(snap.WizardUpdatedAt)
		if age > time.Duration(a.cfg.StaleWizardHours)*time.Hour {
			alerts = append(alerts, Alert{
				Type:     AlertStaleWizard,
				Severity: "low",
				Message: fmt.Sprintf("Saved wizard results are %dh old; the server may have discarded job %s",
					int(age.Hours()), snap.WizardJobID),
				Details: map[string]any{
					"step":   snap.WizardStep,
					"job_id": snap.WizardJobID,
				},
				Timestamp: now,
			})
		}
	}

	return alerts
}

// SendAlerts delivers alerts to the configured webhook URL.
// Returns the number of alerts successfully sent.
func (a *Alerter) SendAlerts(ctx context.Context, alerts []Alert) int {
	if a.cfg.WebhookURL == "" || len(alerts) == 0 {
		return 0
	}

	sent := 0
	for _, alert := range alerts {
		if err := a.sendWebhook(ctx, alert); err != nil {
			zap.L().Error("monitoring: failed to send alert",
				zap.String("type", string(alert.Type)),
				zap.Error(err),
			)
			continue
		}
		sent++
	}
	return sent
}

func (a *Alerter) sendWebhook(ctx context.Context, alert Alert) error {
	payload, err := json.Marshal(alert)
	if err != nil {
		return eris.Wrap(err, "monitoring: marshal alert")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.WebhookURL, bytes.NewReader(payload))
	if err != nil {
		return eris.Wrap(err, "monitoring: create webhook request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return eris.Wrap(err, "monitoring: webhook request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode >= 400 {
		return eris.Errorf("monitoring: webhook returned status %d", resp.StatusCode)
	}
	return nil
}
