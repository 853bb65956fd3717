// Package config loads service settings from defaults, an optional YAML
// file, the environment and command-line flags, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

const (
	StoragePostgres = "postgres"
	StorageMemory   = "memory"
)

// Config holds every setting the service reads at startup.
type Config struct {
	Addr                 string `yaml:"addr"`
	DatabaseURL          string `yaml:"database_url"`
	Storage              string `yaml:"storage"`
	RejectReregistration bool   `yaml:"reject_reregistration"`
	TrustForwardAuth     bool   `yaml:"trust_forward_auth"`
	LogLevel             string `yaml:"log_level"`
	LogFormat            string `yaml:"log_format"`
	OIDC                 OIDC   `yaml:"oidc"`

	// Set from flags only.
	Init          bool   `yaml:"-"`
	AdminUser     string `yaml:"-"`
	AdminPassword string `yaml:"-"`
}

// OIDC configures single sign-on. It is enabled when Issuer is set.
type OIDC struct {
	Issuer       string `yaml:"issuer"`
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	RedirectURL  string `yaml:"redirect_url"`
}

// Enabled reports whether single sign-on is configured.
func (o OIDC) Enabled() bool {
	return o.Issuer != ""
}

// Default returns the built-in settings.
func Default() *Config {
	return &Config{
		Addr:      ":8080",
		Storage:   StoragePostgres,
		LogLevel:  "info",
		LogFormat: "json",
	}
}

// Load builds a Config from args (without the program name) and the
// environment lookup function.
func Load(args []string, getenv func(string) string) (*Config, error) {
	fs := pflag.NewFlagSet("bodyregistry", pflag.ContinueOnError)
	configPath := fs.String("config", "", "path to a YAML config file")
	addr := fs.String("addr", "", "listen address")
	databaseURL := fs.String("database-url", "", "PostgreSQL connection string")
	storage := fs.String("storage", "", "account storage: postgres or memory")
	reject := fs.Bool("reject-reregistration", false, "fail registration when the caller already has a record")
	trustForward := fs.Bool("trust-forward-auth", false, "accept the Remote-User header from a forward-auth proxy")
	logLevel := fs.String("log-level", "", "debug, info, warn or error")
	logFormat := fs.String("log-format", "", "json or text")
	initFlag := fs.Bool("init", false, "initialize an empty registry and exit")
	adminUser := fs.String("admin-user", "", "create this user on startup if no users exist")
	adminPassword := fs.String("admin-password", "", "password for --admin-user")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	cfg := Default()
	if *configPath != "" {
		if err := cfg.loadFile(*configPath); err != nil {
			return nil, err
		}
	}
	if err := cfg.applyEnv(getenv); err != nil {
		return nil, err
	}

	if fs.Changed("addr") {
		cfg.Addr = *addr
	}
	if fs.Changed("database-url") {
		cfg.DatabaseURL = *databaseURL
	}
	if fs.Changed("storage") {
		cfg.Storage = *storage
	}
	if fs.Changed("reject-reregistration") {
		cfg.RejectReregistration = *reject
	}
	if fs.Changed("trust-forward-auth") {
		cfg.TrustForwardAuth = *trustForward
	}
	if fs.Changed("log-level") {
		cfg.LogLevel = *logLevel
	}
	if fs.Changed("log-format") {
		cfg.LogFormat = *logFormat
	}
	cfg.Init = *initFlag
	cfg.AdminUser = *adminUser
	cfg.AdminPassword = *adminPassword

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return NewReadError(path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return NewParseError(path, err)
	}
	return nil
}

func (c *Config) applyEnv(getenv func(string) string) error {
	str := func(key string, dst *string) {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}
	boolean := func(key string, dst *bool) error {
		v := getenv(key)
		if v == "" {
			return nil
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		*dst = b
		return nil
	}

	str("ADDR", &c.Addr)
	str("DATABASE_URL", &c.DatabaseURL)
	str("STORAGE", &c.Storage)
	str("LOG_LEVEL", &c.LogLevel)
	str("LOG_FORMAT", &c.LogFormat)
	str("OIDC_ISSUER", &c.OIDC.Issuer)
	str("OIDC_CLIENT_ID", &c.OIDC.ClientID)
	str("OIDC_CLIENT_SECRET", &c.OIDC.ClientSecret)
	str("OIDC_REDIRECT_URL", &c.OIDC.RedirectURL)
	return errors.Join(
		boolean("REJECT_REREGISTRATION", &c.RejectReregistration),
		boolean("TRUST_FORWARD_AUTH", &c.TrustForwardAuth),
	)
}

// Validate reports settings that cannot work together.
func (c *Config) Validate() error {
	var errs []error
	switch c.Storage {
	case StoragePostgres:
		if c.DatabaseURL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required for postgres storage"))
		}
	case StorageMemory:
	default:
		errs = append(errs, fmt.Errorf("unknown storage %q", c.Storage))
	}
	if _, err := c.SlogLevel(); err != nil {
		errs = append(errs, err)
	}
	if c.LogFormat != "json" && c.LogFormat != "text" {
		errs = append(errs, fmt.Errorf("unknown log format %q", c.LogFormat))
	}
	if c.OIDC.Enabled() && (c.OIDC.ClientID == "" || c.OIDC.RedirectURL == "") {
		errs = append(errs, errors.New("oidc: client_id and redirect_url are required with issuer"))
	}
	if (c.AdminUser == "") != (c.AdminPassword == "") {
		errs = append(errs, errors.New("--admin-user and --admin-password must be given together"))
	}
	return errors.Join(errs...)
}

// SlogLevel parses LogLevel.
func (c *Config) SlogLevel() (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.ToUpper(c.LogLevel))); err != nil {
		return 0, fmt.Errorf("unknown log level %q", c.LogLevel)
	}
	return l, nil
}

// Logger builds the process logger described by LogLevel and LogFormat.
func (c *Config) Logger() *slog.Logger {
	level, _ := c.SlogLevel()
	opts := &slog.HandlerOptions{Level: level}
	if c.LogFormat == "text" {
		return slog.New(slog.NewTextHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, opts))
}
