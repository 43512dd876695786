// Package config contains code to set the default values and read
// config files to be used throughout the whole application
package config

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/spf13/pflag"
	v "github.com/spf13/viper"
)

var (
	validLogLevels = []string{"debug", "info", "warn", "error", "fatal"}
	validDrivers   = []string{"sqlite", "postgres"}

	ErrMissingSecret = errors.New("missing secret")
)

// Config is built once at startup and passed to everything that needs it.
// Nothing reads viper after Load returns.
type Config struct {
	App      App      `mapstructure:"app"`
	Host     Host     `mapstructure:"host"`
	Security Security `mapstructure:"security"`
	Session  Session  `mapstructure:"session"`
	Tokens   Tokens   `mapstructure:"tokens"`
	DB       DB       `mapstructure:"db"`
	Mail     Mail     `mapstructure:"mail"`
	Consent  Consent  `mapstructure:"consent"`
}

type App struct {
	LogLevel  string `mapstructure:"log_level"`
	PublicURL string `mapstructure:"public_url"`
}

// Host configures the listener. Client IPs are only taken from forwarding
// headers sent by TrustedProxies.
type Host struct {
	Port           int      `mapstructure:"port"`
	CORS           []string `mapstructure:"cors"`
	TrustedProxies []string `mapstructure:"trusted_proxies"`
	SSL            SSL      `mapstructure:"ssl"`
}

type SSL struct {
	Enabled            bool   `mapstructure:"enabled"`
	CertificatePath    string `mapstructure:"certificate_path"`
	CertificateKeyPath string `mapstructure:"certificate_key_path"`
}

type Security struct {
	JWTSecret     string `mapstructure:"jwt_secret"`
	EncryptionKey string `mapstructure:"encryption_key"`
}

// Session configures the session cookie and which path prefixes require it.
// ProtectedPages redirect to LoginPath, ProtectedAPI answer 401.
type Session struct {
	CookieName     string        `mapstructure:"cookie_name"`
	TTL            time.Duration `mapstructure:"ttl"`
	LoginPath      string        `mapstructure:"login_path"`
	ProtectedPages []string      `mapstructure:"protected_pages"`
	ProtectedAPI   []string      `mapstructure:"protected_api"`
}

// Tokens configures one-time tokens. Rows expired or used longer than
// Retention ago are purged every CleanupInterval.
type Tokens struct {
	VerifyTTL       time.Duration `mapstructure:"verify_ttl"`
	ResetTTL        time.Duration `mapstructure:"reset_ttl"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`
	Retention       time.Duration `mapstructure:"retention"`
}

type DB struct {
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
}

type Mail struct {
	Enabled       bool   `mapstructure:"enabled"`
	Host          string `mapstructure:"host"`
	Port          int    `mapstructure:"port"`
	SenderAddress string `mapstructure:"sender_address"`
	Password      string `mapstructure:"password"`
}

type Consent struct {
	LegalVersion string `mapstructure:"legal_version"`
}

// keys bound to environment variables, app.log_level -> APP_LOG_LEVEL
var envKeys = []string{
	"app.log_level",
	"app.public_url",

	"host.port",
	"host.cors",
	"host.trusted_proxies",
	"host.ssl.enabled",
	"host.ssl.certificate_path",
	"host.ssl.certificate_key_path",

	"security.jwt_secret",
	"security.encryption_key",

	"session.cookie_name",
	"session.ttl",
	"session.login_path",
	"session.protected_pages",
	"session.protected_api",

	"tokens.verify_ttl",
	"tokens.reset_ttl",
	"tokens.cleanup_interval",
	"tokens.retention",

	"db.driver",
	"db.dsn",

	"mail.enabled",
	"mail.host",
	"mail.port",
	"mail.sender_address",
	"mail.password",

	"consent.legal_version",
}

func genSecret(n int) string {
	b := make([]byte, n)
	rand.Read(b)
	return hex.EncodeToString(b)
}

// Setup loads the configuration from the process arguments and environment
func Setup() (*Config, error) {
	return Load(os.Args[1:])
}

// Load reads defaults, then config.toml (or the file given with --config),
// then environment variables and flags. It returns an error if something is
// critically wrong and the application can't run because of that.
func Load(args []string) (*Config, error) {
	vp := v.New()

	fs := pflag.NewFlagSet("auth-api", pflag.ContinueOnError)
	configPath := fs.String("config", "", "Path to a TOML config file")
	fs.String("log-level", "", "Overrides app.log_level")
	fs.Int("port", 0, "Overrides host.port")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if f := fs.Lookup("log-level"); f.Changed {
		vp.BindPFlag("app.log_level", f)
	}
	if f := fs.Lookup("port"); f.Changed {
		vp.BindPFlag("host.port", f)
	}

	for _, k := range envKeys {
		vp.BindEnv(k, strings.ToUpper(strings.ReplaceAll(k, ".", "_")))
	}

	//
	// Defaults
	//
	vp.SetDefault("app.log_level", "info")
	vp.SetDefault("app.public_url", "http://localhost:3000")

	vp.SetDefault("host.port", 8080)
	vp.SetDefault("host.cors", []string{"http://localhost:3000"})
	vp.SetDefault("host.ssl.enabled", false)

	vp.SetDefault("session.cookie_name", "arc_session")
	vp.SetDefault("session.ttl", 7*24*time.Hour)
	vp.SetDefault("session.login_path", "/login")
	vp.SetDefault("session.protected_pages", []string{"/account", "/privacy", "/settings"})
	vp.SetDefault("session.protected_api", []string{"/api/auth/me", "/api/user", "/api/privacy", "/api/consent"})

	vp.SetDefault("tokens.verify_ttl", 24*time.Hour)
	vp.SetDefault("tokens.reset_ttl", time.Hour)
	vp.SetDefault("tokens.cleanup_interval", 24*time.Hour)
	vp.SetDefault("tokens.retention", 30*24*time.Hour)

	vp.SetDefault("db.driver", "sqlite")
	vp.SetDefault("db.dsn", "database.db")

	vp.SetDefault("mail.enabled", false)
	vp.SetDefault("mail.port", 587)
	vp.SetDefault("mail.sender_address", "no-reply@thearc.com")

	vp.SetDefault("consent.legal_version", "2025-01")

	vp.SetConfigType("toml")
	if *configPath != "" {
		vp.SetConfigFile(*configPath)
	} else {
		vp.SetConfigName("config")
		vp.AddConfigPath(".")
	}

	if err := vp.ReadInConfig(); err != nil {
		var notFound v.ConfigFileNotFoundError
		if !errors.As(err, &notFound) || *configPath != "" {
			return nil, fmt.Errorf("failed to read config file, %w", err)
		}
	}

	var c Config
	if err := vp.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("failed to decode config, %w", err)
	}

	if err := c.validate(); err != nil {
		return nil, err
	}

	return &c, nil
}

func (c *Config) validate() error {
	if !slices.Contains(validLogLevels, c.App.LogLevel) {
		return errors.New("invalid log level provided")
	}

	if c.Host.Port <= 0 {
		return errors.New("invalid port provided")
	}

	if c.Host.SSL.Enabled {
		if c.Host.SSL.CertificatePath == "" {
			return errors.New("no ssl certificate path provided")
		}

		if c.Host.SSL.CertificateKeyPath == "" {
			return errors.New("no ssl certificate key path provided")
		}
	}

	if c.Security.JWTSecret == "" {
		return fmt.Errorf("%w: set SECURITY_JWT_SECRET, for example %s", ErrMissingSecret, genSecret(64))
	}

	if c.Security.EncryptionKey == "" {
		return fmt.Errorf("%w: set SECURITY_ENCRYPTION_KEY to 64 hex characters, for example %s", ErrMissingSecret, genSecret(32))
	}

	if len(c.Security.EncryptionKey) != 64 {
		return errors.New("security.encryption_key must be exactly 64 hex characters")
	}

	if c.Session.CookieName == "" {
		return errors.New("session.cookie_name can't be empty")
	}

	if c.Session.TTL <= 0 {
		return errors.New("session.ttl must be bigger than 0")
	}

	if !strings.HasPrefix(c.Session.LoginPath, "/") {
		return errors.New("session.login_path must be an absolute path")
	}

	for _, p := range append(slices.Clone(c.Session.ProtectedPages), c.Session.ProtectedAPI...) {
		if !strings.HasPrefix(p, "/") {
			return fmt.Errorf("protected prefix %q must start with /", p)
		}
	}

	if c.Tokens.VerifyTTL <= 0 || c.Tokens.ResetTTL <= 0 {
		return errors.New("token ttls must be bigger than 0")
	}

	if c.Tokens.CleanupInterval <= 0 || c.Tokens.Retention <= 0 {
		return errors.New("token cleanup interval and retention must be bigger than 0")
	}

	if !slices.Contains(validDrivers, c.DB.Driver) {
		return errors.New("invalid database driver provided")
	}

	if c.DB.DSN == "" {
		return errors.New("db.dsn can't be empty")
	}

	if c.Mail.Enabled {
		if c.Mail.Host == "" {
			return errors.New("mail.host can't be empty")
		}

		if c.Mail.Port <= 0 {
			return errors.New("invalid mail port provided")
		}

		if c.Mail.SenderAddress == "" {
			return errors.New("mail.sender_address can't be empty")
		}
	}

	if c.Consent.LegalVersion == "" {
		return errors.New("consent.legal_version can't be empty")
	}

	return nil
}
