package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	API        APIConfig        `yaml:"api" mapstructure:"api"`
	Poll       PollConfig       `yaml:"poll" mapstructure:"poll"`
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Validation ValidationConfig `yaml:"validation" mapstructure:"validation"`
	Export     ExportConfig     `yaml:"export" mapstructure:"export"`
	Wizard     WizardConfig     `yaml:"wizard" mapstructure:"wizard"`
	Sandbox    SandboxConfig    `yaml:"sandbox" mapstructure:"sandbox"`
	Monitoring MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// APIConfig configures the lead generation API client.
type APIConfig struct {
	BaseURL     string  `yaml:"base_url" mapstructure:"base_url"`
	TimeoutSecs int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	RateLimit   float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
	RateBurst   int     `yaml:"rate_burst" mapstructure:"rate_burst"`
}

// Timeout returns the HTTP client timeout.
func (c APIConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSecs) * time.Second
}

// PollConfig sets job status polling intervals.
type PollConfig struct {
	LeadInterval  time.Duration `yaml:"lead_interval" mapstructure:"lead_interval"`
	AuditInterval time.Duration `yaml:"audit_interval" mapstructure:"audit_interval"`
}

// StoreConfig configures the session and wizard state backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// ValidationConfig configures CSV header validation.
type ValidationConfig struct {
	SynonymsFile string `yaml:"synonyms_file" mapstructure:"synonyms_file"`
}

// ExportConfig configures local exports.
type ExportConfig struct {
	Dir    string `yaml:"dir" mapstructure:"dir"`
	Format string `yaml:"format" mapstructure:"format"`
}

// WizardConfig configures the wizard flow.
type WizardConfig struct {
	Pages int `yaml:"pages" mapstructure:"pages"`
}

// SandboxConfig configures the offline sandbox API.
type SandboxConfig struct {
	Port         int    `yaml:"port" mapstructure:"port"`
	Secret       string `yaml:"secret" mapstructure:"secret"`
	ExtractSteps int    `yaml:"extract_steps" mapstructure:"extract_steps"`
	RowsPerPage  int    `yaml:"rows_per_page" mapstructure:"rows_per_page"`
}

// MonitoringConfig configures the doctor health checks and alerts.
type MonitoringConfig struct {
	CheckIntervalSecs int    `yaml:"check_interval_secs" mapstructure:"check_interval_secs"`
	WebhookURL        string `yaml:"webhook_url" mapstructure:"webhook_url"`
	// ExpiryWarningMins warns when the access token expires this soon and
	// cannot be refreshed.
	ExpiryWarningMins int `yaml:"expiry_warning_mins" mapstructure:"expiry_warning_mins"`
	// StaleWizardHours warns when saved wizard results are older than this.
	StaleWizardHours int `yaml:"stale_wizard_hours" mapstructure:"stale_wizard_hours"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from ./config.yaml (optional) and environment.
func Load() (*Config, error) {
	return LoadFrom("")
}

// LoadFrom reads configuration from path, or from ./config.yaml when path
// is empty. An explicit path must exist.
func LoadFrom(path string) (*Config, error) {
	v := viper.New()

	// Config file
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	// Environment
	v.SetEnvPrefix("LEADGEN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("api.base_url", "http://localhost:8000/api")
	v.SetDefault("api.timeout_secs", 60)
	v.SetDefault("api.rate_limit", 0)
	v.SetDefault("api.rate_burst", 1)
	v.SetDefault("poll.lead_interval", "2s")
	v.SetDefault("poll.audit_interval", "3s")
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "leadgen.db")
	v.SetDefault("validation.synonyms_file", "")
	v.SetDefault("export.dir", ".")
	v.SetDefault("export.format", "csv")
	v.SetDefault("wizard.pages", 1)
	v.SetDefault("sandbox.port", 8000)
	v.SetDefault("sandbox.secret", "")
	v.SetDefault("sandbox.extract_steps", 3)
	v.SetDefault("sandbox.rows_per_page", 10)
	v.SetDefault("monitoring.check_interval_secs", 300)
	v.SetDefault("monitoring.webhook_url", "")
	v.SetDefault("monitoring.expiry_warning_mins", 5)
	v.SetDefault("monitoring.stale_wizard_hours", 24)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || path != "" {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the settings a command mode depends on. Modes are
// "client" for commands that call the API and "sandbox" for the local
// server.
func (c *Config) Validate(mode string) error {
	var errs []string

	switch mode {
	case "client":
		if c.API.BaseURL == "" {
			errs = append(errs, "api.base_url is required")
		}
		if c.API.RateLimit < 0 {
			errs = append(errs, "api.rate_limit must be >= 0")
		}
		if c.Poll.LeadInterval <= 0 {
			errs = append(errs, "poll.lead_interval must be > 0")
		}
		if c.Poll.AuditInterval <= 0 {
			errs = append(errs, "poll.audit_interval must be > 0")
		}
		switch c.Export.Format {
		case "csv", "xlsx":
		default:
			errs = append(errs, fmt.Sprintf("export.format %q must be csv or xlsx", c.Export.Format))
		}
	case "sandbox":
		if c.Sandbox.Port <= 0 || c.Sandbox.Port > 65535 {
			errs = append(errs, "sandbox.port must be > 0")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	switch c.Store.Driver {
	case "sqlite", "postgres":
	default:
		errs = append(errs, fmt.Sprintf("store.driver %q must be sqlite or postgres", c.Store.Driver))
	}
	if c.Store.DatabaseURL == "" {
		errs = append(errs, "store.database_url is required")
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
