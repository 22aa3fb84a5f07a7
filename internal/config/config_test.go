package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	// Change to temp dir so no config.yaml is found
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) }) //nolint:errcheck
	return dir
}

func TestLoadDefaults(t *testing.T) {
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:8000/api", cfg.API.BaseURL)
	assert.Equal(t, 60*time.Second, cfg.API.Timeout())
	assert.Zero(t, cfg.API.RateLimit)
	assert.Equal(t, 2*time.Second, cfg.Poll.LeadInterval)
	assert.Equal(t, 3*time.Second, cfg.Poll.AuditInterval)
	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "leadgen.db", cfg.Store.DatabaseURL)
	assert.Empty(t, cfg.Validation.SynonymsFile)
	assert.Equal(t, "csv", cfg.Export.Format)
	assert.Equal(t, 1, cfg.Wizard.Pages)
	assert.Equal(t, 8000, cfg.Sandbox.Port)
	assert.Equal(t, 3, cfg.Sandbox.ExtractSteps)
	assert.Equal(t, 300, cfg.Monitoring.CheckIntervalSecs)
	assert.Equal(t, 5, cfg.Monitoring.ExpiryWarningMins)
	assert.Empty(t, cfg.Monitoring.WebhookURL)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
}

func TestLoadFromYAML(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
api:
  base_url: https://leads.example.com/api
  rate_limit: 2.5
poll:
  audit_interval: 500ms
store:
  driver: postgres
  database_url: postgres://localhost/leadgen
log:
  level: debug
  format: json
validation:
  synonyms_file: synonyms.yaml
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "https://leads.example.com/api", cfg.API.BaseURL)
	assert.InDelta(t, 2.5, cfg.API.RateLimit, 0.001)
	assert.Equal(t, 500*time.Millisecond, cfg.Poll.AuditInterval)
	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "postgres://localhost/leadgen", cfg.Store.DatabaseURL)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, "synonyms.yaml", cfg.Validation.SynonymsFile)
	// Defaults still apply for unset values
	assert.Equal(t, 2*time.Second, cfg.Poll.LeadInterval)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: postgres
log:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	t.Setenv("LEADGEN_STORE_DRIVER", "sqlite")
	t.Setenv("LEADGEN_LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)

	// Env overrides file
	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadEnvOverridesDefaults(t *testing.T) {
	chdirTemp(t)

	t.Setenv("LEADGEN_API_BASE_URL", "http://127.0.0.1:9000/api")
	t.Setenv("LEADGEN_SANDBOX_PORT", "9000")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "http://127.0.0.1:9000/api", cfg.API.BaseURL)
	assert.Equal(t, 9000, cfg.Sandbox.Port)
}

func TestLoadInvalidYAML(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("api: [unclosed"), 0644))

	_, err := Load()
	assert.Error(t, err)
}

func TestInitLoggerConsole(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerJSON(t *testing.T) {
	err := InitLogger(LogConfig{Level: "info", Format: "json"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerInvalidLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "invalid", Format: "json"})
	assert.Error(t, err)
}

// validDefaults returns a Config with all defaults populated for validation tests.
func validDefaults() *Config {
	cfg := &Config{}
	cfg.API.BaseURL = "http://localhost:8000/api"
	cfg.Poll.LeadInterval = 2 * time.Second
	cfg.Poll.AuditInterval = 3 * time.Second
	cfg.Store.Driver = "sqlite"
	cfg.Store.DatabaseURL = "leadgen.db"
	cfg.Export.Format = "csv"
	cfg.Sandbox.Port = 8000
	return cfg
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mode    string
		mutate  func(*Config)
		wantErr []string
	}{
		{name: "client defaults", mode: "client"},
		{name: "sandbox defaults", mode: "sandbox"},
		{
			name:    "missing base url",
			mode:    "client",
			mutate:  func(c *Config) { c.API.BaseURL = "" },
			wantErr: []string{"api.base_url is required"},
		},
		{
			name: "bad intervals",
			mode: "client",
			mutate: func(c *Config) {
				c.Poll.LeadInterval = 0
				c.Poll.AuditInterval = -time.Second
			},
			wantErr: []string{"poll.lead_interval must be > 0", "poll.audit_interval must be > 0"},
		},
		{
			name:    "bad export format",
			mode:    "client",
			mutate:  func(c *Config) { c.Export.Format = "pdf" },
			wantErr: []string{`export.format "pdf" must be csv or xlsx`},
		},
		{
			name:    "bad store driver",
			mode:    "sandbox",
			mutate:  func(c *Config) { c.Store.Driver = "mysql" },
			wantErr: []string{`store.driver "mysql" must be sqlite or postgres`},
		},
		{
			name:    "bad sandbox port",
			mode:    "sandbox",
			mutate:  func(c *Config) { c.Sandbox.Port = 0 },
			wantErr: []string{"sandbox.port must be > 0"},
		},
		{
			name:    "unknown mode",
			mode:    "serve",
			wantErr: []string{"unknown mode"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validDefaults()
			if tt.mutate != nil {
				tt.mutate(cfg)
			}
			err := cfg.Validate(tt.mode)
			if len(tt.wantErr) == 0 {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			for _, want := range tt.wantErr {
				assert.Contains(t, err.Error(), want)
			}
		})
	}
}

func TestLoadFrom_ExplicitPath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "leadgen.yaml")
	require.NoError(t, os.WriteFile(path, []byte("api:\n  base_url: http://sandbox:9000/api\n"), 0o644))

	cfg, err := LoadFrom(path)
	require.NoError(t, err)
	assert.Equal(t, "http://sandbox:9000/api", cfg.API.BaseURL)
	assert.Equal(t, "sqlite", cfg.Store.Driver)
}

func TestLoadFrom_MissingPath(t *testing.T) {
	_, err := LoadFrom(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
