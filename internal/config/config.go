package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap/zapcore"
)

// Role policies for contacts whose role is missing from the payload.
const (
	RolePolicyProcess = "process"
	RolePolicySkip    = "skip"
)

const (
	defaultCustomAttr    = "Custom"
	defaultPurchaseAttr  = "Purchase email"
	defaultAPIURL        = "https://api.intercom.io"
	defaultAPIVersion    = "2.11"
	defaultNoteText      = "Email found in allow-list: contact marked as matched."
	defaultPort          = 8080
	defaultEnvironment   = "development"
	defaultServiceName   = "intercom-email-relay"
	defaultOutboundLimit = 5 * time.Second
	defaultWorkerLimit   = 30 * time.Second
	defaultShutdownLimit = 10 * time.Second
)

// Config contains runtime configuration required by the service.
type Config struct {
	IntercomToken     string        `mapstructure:"intercom_token"`
	ListURL           string        `mapstructure:"list_url"`
	CustomAttrName    string        `mapstructure:"custom_attr_name"`
	PurchaseEmailAttr string        `mapstructure:"purchase_email_attr"`
	AdminID           string        `mapstructure:"intercom_admin_id"`
	APIURL            string        `mapstructure:"intercom_api_url"`
	APIVersion        string        `mapstructure:"intercom_api_version"`
	NoteText          string        `mapstructure:"note_text"`
	Port              int           `mapstructure:"port"`
	Environment       string        `mapstructure:"service_environment"`
	ServiceName       string        `mapstructure:"service_name"`
	LogLevel          string        `mapstructure:"log_level"`
	OutboundTimeout   time.Duration `mapstructure:"outbound_timeout"`
	WorkerTimeout     time.Duration `mapstructure:"worker_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout"`
	ResetOnMismatch   bool          `mapstructure:"reset_on_mismatch"`
	UnknownRolePolicy string        `mapstructure:"unknown_role_policy"`
}

// NotesEnabled reports whether conversation notes can be posted.
func (c Config) NotesEnabled() bool {
	return c.AdminID != ""
}

// Addr is the listen address for the HTTP server.
func (c Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

// keys lists every variable Load reads; viper only resolves env values for
// keys it knows about when unmarshalling.
var keys = []string{
	"intercom_token",
	"list_url",
	"custom_attr_name",
	"purchase_email_attr",
	"intercom_admin_id",
	"intercom_api_url",
	"intercom_api_version",
	"note_text",
	"port",
	"service_environment",
	"service_name",
	"log_level",
	"outbound_timeout",
	"worker_timeout",
	"shutdown_timeout",
	"reset_on_mismatch",
	"unknown_role_policy",
}

// Load reads values from environment variables.
// INTERCOM_TOKEN and LIST_URL are required, everything else has a default.
func Load() (Config, error) {
	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("custom_attr_name", defaultCustomAttr)
	v.SetDefault("purchase_email_attr", defaultPurchaseAttr)
	v.SetDefault("intercom_api_url", defaultAPIURL)
	v.SetDefault("intercom_api_version", defaultAPIVersion)
	v.SetDefault("note_text", defaultNoteText)
	v.SetDefault("port", defaultPort)
	v.SetDefault("service_environment", defaultEnvironment)
	v.SetDefault("service_name", defaultServiceName)
	v.SetDefault("outbound_timeout", defaultOutboundLimit)
	v.SetDefault("worker_timeout", defaultWorkerLimit)
	v.SetDefault("shutdown_timeout", defaultShutdownLimit)
	v.SetDefault("reset_on_mismatch", true)
	v.SetDefault("unknown_role_policy", RolePolicyProcess)

	for _, k := range keys {
		if err := v.BindEnv(k); err != nil {
			return Config{}, fmt.Errorf("bind %s: %w", k, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to process config: %w", err)
	}

	cfg.IntercomToken = strings.TrimSpace(cfg.IntercomToken)
	cfg.ListURL = strings.TrimSpace(cfg.ListURL)
	cfg.AdminID = strings.TrimSpace(cfg.AdminID)
	cfg.APIURL = strings.TrimRight(strings.TrimSpace(cfg.APIURL), "/")
	cfg.UnknownRolePolicy = strings.ToLower(strings.TrimSpace(cfg.UnknownRolePolicy))
	cfg.ServiceName = strings.TrimSpace(cfg.ServiceName)
	cfg.LogLevel = strings.ToLower(strings.TrimSpace(cfg.LogLevel))

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.IntercomToken == "" {
		return errors.New("INTERCOM_TOKEN required")
	}
	if c.ListURL == "" {
		return errors.New("LIST_URL required")
	}
	if c.CustomAttrName == "" {
		return errors.New("CUSTOM_ATTR_NAME must not be empty")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid PORT: %d", c.Port)
	}
	if c.OutboundTimeout <= 0 || c.WorkerTimeout <= 0 || c.ShutdownTimeout <= 0 {
		return errors.New("timeouts must be positive")
	}
	if c.LogLevel != "" {
		if _, err := zapcore.ParseLevel(c.LogLevel); err != nil {
			return fmt.Errorf("invalid LOG_LEVEL: %w", err)
		}
	}
	switch c.UnknownRolePolicy {
	case RolePolicyProcess, RolePolicySkip:
	default:
		return fmt.Errorf(`UNKNOWN_ROLE_POLICY must be "process" or "skip", got %q`, c.UnknownRolePolicy)
	}
	return nil
}
