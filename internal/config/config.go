// Package config provides environment-variable-first configuration loading
// with optional YAML file fallback for the quote intake service.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Provider names accepted in PROVIDER.
const (
	ProviderSMTP   = "smtp"
	ProviderSES    = "ses"
	ProviderGraph  = "graph"
	ProviderGmail  = "gmail"
	ProviderStdout = "stdout"
)

const (
	defaultMaxUploadBytes = 250 << 20
	defaultSMTPPort       = 465
)

// Config holds the complete application configuration.
type Config struct {
	Provider string        `yaml:"provider"`
	SMTP     SMTPConfig    `yaml:"smtp"`
	Mail     MailConfig    `yaml:"mail"`
	SES      SESConfig     `yaml:"ses"`
	Graph    GraphConfig   `yaml:"graph"`
	Gmail    GmailConfig   `yaml:"gmail"`
	Meta     MetaConfig    `yaml:"meta"`
	HTTP     HTTPConfig    `yaml:"http"`
	Upload   UploadConfig  `yaml:"upload"`
	TLS      TLSConfig     `yaml:"tls"`
	Logging  LoggingConfig `yaml:"logging"`
}

// SMTPConfig holds the outbound relay settings.
type SMTPConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	// Secure selects implicit TLS; false means STARTTLS when offered.
	Secure bool `yaml:"secure"`
}

// MailConfig holds addressing and branding of the two notifications.
type MailConfig struct {
	From           string `yaml:"from"`
	OwnerEmail     string `yaml:"owner_email"`
	BrandName      string `yaml:"brand_name"`
	BrandSignature string `yaml:"brand_signature"`
	TimeoutSec     int    `yaml:"timeout_sec"`
}

// SESConfig holds AWS SES settings.
type SESConfig struct {
	Region           string `yaml:"region"`
	AccessKeyID      string `yaml:"access_key_id"`
	SecretAccessKey  string `yaml:"secret_access_key"`
	ConfigurationSet string `yaml:"configuration_set"`
}

// GraphConfig holds Microsoft Graph API configuration.
type GraphConfig struct {
	TenantID     string `yaml:"tenant_id"`
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	Sender       string `yaml:"sender"`
}

// GmailConfig points at the OAuth client secret and stored token.
type GmailConfig struct {
	CredentialsFile string `yaml:"credentials_file"`
	TokenFile       string `yaml:"token_file"`
}

// MetaConfig holds Conversions API settings.
type MetaConfig struct {
	AccessToken    string `yaml:"access_token"`
	PixelID        string `yaml:"pixel_id"`
	APIVersion     string `yaml:"api_version"`
	TestEventCode  string `yaml:"test_event_code"`
	EventSourceURL string `yaml:"event_source_url"`
	TimeoutSec     int    `yaml:"timeout_sec"`
}

// HTTPConfig holds the listener settings.
type HTTPConfig struct {
	Listen         string   `yaml:"listen"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// UploadConfig holds the server-side attachment policy.
type UploadConfig struct {
	MaxBytes          int64    `yaml:"max_bytes"`
	AllowedExtensions []string `yaml:"allowed_extensions"`
}

// TLSConfig holds TLS certificate file paths for the HTTP listener.
type TLSConfig struct {
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// LoadDotEnv loads variables from a dotenv file without overriding variables
// already set in the environment. A missing file is not an error.
func LoadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// Load loads configuration from environment variables with sensible defaults.
func Load() (*Config, error) {
	cfg := &Config{}
	cfg.applyDefaults()
	cfg.applyEnvVars()
	cfg.resolve()
	return cfg, nil
}

// LoadFromFile loads configuration from a YAML file as the base layer,
// then overrides with environment variables.
func LoadFromFile(path string) (*Config, error) {
	cfg := &Config{}
	cfg.applyDefaults()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.applyEnvVars()
	cfg.resolve()
	return cfg, nil
}

// SMTPConfigured reports whether a relay host and its credentials are set.
func (c *Config) SMTPConfigured() bool {
	return c.SMTP.Host != "" && c.SMTP.Username != "" && c.SMTP.Password != ""
}

// SESConfigured reports whether an SES region is set.
func (c *Config) SESConfigured() bool {
	return c.SES.Region != ""
}

// GraphConfigured returns true if all four Graph API settings are present.
func (c *Config) GraphConfigured() bool {
	return c.Graph.TenantID != "" &&
		c.Graph.ClientID != "" &&
		c.Graph.ClientSecret != "" &&
		c.Graph.Sender != ""
}

// GmailConfigured reports whether both Gmail files are configured.
func (c *Config) GmailConfigured() bool {
	return c.Gmail.CredentialsFile != "" && c.Gmail.TokenFile != ""
}

// ConversionsConfigured reports whether conversion events will be sent.
func (c *Config) ConversionsConfigured() bool {
	return c.Meta.AccessToken != "" && c.Meta.PixelID != ""
}

// EffectiveProvider returns the explicit PROVIDER, or the first configured
// channel in the order smtp, ses, graph, gmail. It returns "" when no channel
// is configured; stdout is only used when PROVIDER=stdout.
func (c *Config) EffectiveProvider() string {
	if c.Provider != "" {
		return c.Provider
	}
	switch {
	case c.SMTPConfigured():
		return ProviderSMTP
	case c.SESConfigured():
		return ProviderSES
	case c.GraphConfigured():
		return ProviderGraph
	case c.GmailConfigured():
		return ProviderGmail
	default:
		return ""
	}
}

// MailTimeout bounds each notification send.
func (c *Config) MailTimeout() time.Duration {
	return time.Duration(c.Mail.TimeoutSec) * time.Second
}

// ConversionTimeout bounds the conversion API call.
func (c *Config) ConversionTimeout() time.Duration {
	return time.Duration(c.Meta.TimeoutSec) * time.Second
}

// Validate reports settings that make delivery impossible.
func (c *Config) Validate() error {
	var errs []error
	if c.Mail.OwnerEmail == "" {
		errs = append(errs, errors.New("OWNER_EMAIL is required"))
	}
	if c.Mail.From == "" {
		errs = append(errs, errors.New("MAIL_FROM (or SMTP_USER) is required"))
	}
	if c.Upload.MaxBytes <= 0 {
		errs = append(errs, errors.New("MAX_UPLOAD_BYTES must be positive"))
	}

	switch p := c.EffectiveProvider(); p {
	case "":
		errs = append(errs, errors.New("no mail channel configured: set SMTP_HOST, SMTP_USER and SMTP_PASS (or PROVIDER with its credentials)"))
	case ProviderSMTP:
		if !c.SMTPConfigured() {
			errs = append(errs, errors.New("smtp provider selected but SMTP_HOST, SMTP_USER and SMTP_PASS are required"))
		}
		if c.SMTP.Port <= 0 || c.SMTP.Port > 65535 {
			errs = append(errs, fmt.Errorf("SMTP_PORT %d is out of range", c.SMTP.Port))
		}
	case ProviderSES:
		if !c.SESConfigured() {
			errs = append(errs, errors.New("ses provider selected but SES_REGION is not set"))
		}
	case ProviderGraph:
		if !c.GraphConfigured() {
			errs = append(errs, errors.New("graph provider selected but GRAPH_TENANT_ID, GRAPH_CLIENT_ID, GRAPH_CLIENT_SECRET and a sender are required"))
		}
	case ProviderGmail:
		if !c.GmailConfigured() {
			errs = append(errs, errors.New("gmail provider selected but GMAIL_CREDENTIALS and GMAIL_TOKEN are required"))
		}
	case ProviderStdout:
	default:
		errs = append(errs, fmt.Errorf("unknown provider %q", p))
	}

	if (c.TLS.CertFile == "") != (c.TLS.KeyFile == "") {
		errs = append(errs, errors.New("TLS_CERT_FILE and TLS_KEY_FILE must be set together"))
	}
	return errors.Join(errs...)
}

func (c *Config) applyDefaults() {
	c.SMTP.Port = defaultSMTPPort
	c.SMTP.Secure = true
	c.Mail.BrandName = "FormeHaus"
	c.Mail.BrandSignature = "Kobi Walsh"
	c.Mail.TimeoutSec = 30
	c.Meta.APIVersion = "v21.0"
	c.Meta.EventSourceURL = "https://formehaus.com"
	c.Meta.TimeoutSec = 10
	c.HTTP.Listen = ":8080"
	c.Upload.MaxBytes = defaultMaxUploadBytes
	c.Upload.AllowedExtensions = []string{".stl", ".obj"}
	c.Logging.Level = "info"
}

// applyEnvVars overrides configuration with environment variable values.
// Only non-empty environment variables override existing values.
func (c *Config) applyEnvVars() {
	if v := os.Getenv("PROVIDER"); v != "" {
		c.Provider = strings.ToLower(v)
	}

	setString(&c.SMTP.Host, "SMTP_HOST")
	setInt(&c.SMTP.Port, "SMTP_PORT")
	setString(&c.SMTP.Username, "SMTP_USER")
	setString(&c.SMTP.Password, "SMTP_PASS")
	setBool(&c.SMTP.Secure, "SMTP_SECURE")

	setString(&c.Mail.From, "MAIL_FROM")
	setString(&c.Mail.OwnerEmail, "OWNER_EMAIL")
	setString(&c.Mail.BrandName, "BRAND_NAME")
	setString(&c.Mail.BrandSignature, "BRAND_SIGNATURE")
	setInt(&c.Mail.TimeoutSec, "MAIL_TIMEOUT_SEC")

	setString(&c.SES.Region, "SES_REGION")
	setString(&c.SES.AccessKeyID, "SES_ACCESS_KEY_ID")
	setString(&c.SES.SecretAccessKey, "SES_SECRET_ACCESS_KEY")
	setString(&c.SES.ConfigurationSet, "SES_CONFIGURATION_SET")

	setString(&c.Graph.TenantID, "GRAPH_TENANT_ID")
	setString(&c.Graph.ClientID, "GRAPH_CLIENT_ID")
	setString(&c.Graph.ClientSecret, "GRAPH_CLIENT_SECRET")
	setString(&c.Graph.Sender, "GRAPH_SENDER")

	setString(&c.Gmail.CredentialsFile, "GMAIL_CREDENTIALS")
	setString(&c.Gmail.TokenFile, "GMAIL_TOKEN")

	setString(&c.Meta.AccessToken, "META_ACCESS_TOKEN")
	setString(&c.Meta.PixelID, "META_PIXEL_ID")
	setString(&c.Meta.APIVersion, "META_API_VERSION")
	setString(&c.Meta.TestEventCode, "META_TEST_EVENT_CODE")
	setString(&c.Meta.EventSourceURL, "EVENT_SOURCE_URL")
	setInt(&c.Meta.TimeoutSec, "CONVERSION_TIMEOUT_SEC")

	setString(&c.HTTP.Listen, "HTTP_LISTEN")
	if v := os.Getenv("HTTP_ALLOWED_ORIGINS"); v != "" {
		c.HTTP.AllowedOrigins = splitList(v)
	}

	if v := os.Getenv("MAX_UPLOAD_BYTES"); v != "" {
		if size, err := strconv.ParseInt(v, 10, 64); err == nil {
			c.Upload.MaxBytes = size
		}
	}
	if v := os.Getenv("ALLOWED_EXTENSIONS"); v != "" {
		c.Upload.AllowedExtensions = splitList(v)
	}

	setString(&c.TLS.CertFile, "TLS_CERT_FILE")
	setString(&c.TLS.KeyFile, "TLS_KEY_FILE")

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Logging.Level = strings.ToLower(v)
	}
}

// resolve fills values derived from other settings.
func (c *Config) resolve() {
	if c.Mail.From == "" {
		c.Mail.From = c.SMTP.Username
	}
	if c.Graph.Sender == "" {
		c.Graph.Sender = c.Mail.From
	}
	for i, ext := range c.Upload.AllowedExtensions {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext != "" && !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		c.Upload.AllowedExtensions[i] = ext
	}
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func splitList(v string) []string {
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
