package redirector

import (
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"
)

const (
	envPort        = "PORT"
	envAdminSecret = "REDIRECTOR_ADMIN_SECRET"
	envSentryDSN   = "SENTRY_DSN"
)

type ServerConfig struct {
	Port        string `toml:"port"`
	SiteDir     string `toml:"site_dir"`
	Upstream    string `toml:"upstream"`
	AdminSecret string `toml:"admin_secret"`
	LogLevel    string `toml:"log_level"`
	SentryDSN   string `toml:"sentry_dsn"`
}

// RedirectConfig mirrors the knobs an operator sets for the redirect itself.
// Durations are expressed in days, as on the platform.
type RedirectConfig struct {
	CacheAge       int      `toml:"cache_age"`
	FileAge        int      `toml:"file_age"`
	Environments   []string `toml:"environments"`
	HSTS           bool     `toml:"hsts"`
	PlatformSuffix string   `toml:"platform_suffix"`
	APIURL         string   `toml:"api_url"`
	ClientCert     string   `toml:"client_cert"`
	ClientKey      string   `toml:"client_key"`
	FetchTimeout   string   `toml:"fetch_timeout"`
	RetryInterval  string   `toml:"retry_interval"`
	MemoSize       int      `toml:"memo_size"`
}

type Config struct {
	ServerConfig
	RedirectConfig
}

func DefaultConfig() *Config {
	return &Config{
		ServerConfig: ServerConfig{
			Port:     "8080",
			LogLevel: "info",
		},
		RedirectConfig: RedirectConfig{
			CacheAge:       180,
			FileAge:        14,
			Environments:   []string{"live"},
			HSTS:           true,
			PlatformSuffix: "pantheonsite.io",
			APIURL:         "https://api.live.getpantheon.com:8443",
			FetchTimeout:   "30s",
			RetryInterval:  "1m",
			MemoSize:       8,
		},
	}
}

// LoadConfig decodes the TOML file at path over the defaults, then applies
// environment overrides.
func LoadConfig(path string, getenv func(string) string) (*Config, error) {
	conf := DefaultConfig()
	if _, err := toml.DecodeFile(path, conf); err != nil {
		return nil, errors.Wrapf(err, "bad config file %s", path)
	}

	if port := getenv(envPort); port != "" {
		conf.Port = port
	}
	if secret := getenv(envAdminSecret); secret != "" {
		conf.AdminSecret = secret
	}
	if dsn := getenv(envSentryDSN); dsn != "" {
		conf.SentryDSN = dsn
	}

	if err := conf.Validate(); err != nil {
		return nil, err
	}
	return conf, nil
}

// LoadConfigFromEnv is LoadConfig reading the process environment.
func LoadConfigFromEnv(path string) (*Config, error) {
	return LoadConfig(path, os.Getenv)
}

type ConfigErr struct {
	errs []string
}

func (ce *ConfigErr) Add(s string) {
	ce.errs = append(ce.errs, s)
}

func (ce *ConfigErr) Error() string {
	return "config err: " + strings.Join(ce.errs, ", ")
}

func (ce *ConfigErr) IsError() bool {
	return len(ce.errs) > 0
}

func (c *Config) Validate() error {
	var ce ConfigErr
	if c.Port == "" {
		ce.Add("port cannot be empty")
	}
	if c.CacheAge < 0 {
		ce.Add("cache_age cannot be negative")
	}
	if len(c.Environments) == 0 {
		ce.Add("environments cannot be empty")
	}
	if c.PlatformSuffix == "" {
		ce.Add("platform_suffix cannot be empty")
	}
	if c.APIURL == "" {
		ce.Add("api_url cannot be empty")
	}
	if (c.ClientCert == "") != (c.ClientKey == "") {
		ce.Add("client_cert and client_key must be set together")
	}
	if c.SiteDir != "" && c.Upstream != "" {
		ce.Add("only one of site_dir and upstream can be set")
	}
	if d, err := time.ParseDuration(c.FetchTimeout); err != nil || d <= 0 {
		ce.Add("fetch_timeout must be a positive duration")
	}
	if d, err := time.ParseDuration(c.RetryInterval); err != nil || d <= 0 {
		ce.Add("retry_interval must be a positive duration")
	}
	if c.MemoSize <= 0 {
		ce.Add("memo_size must be positive")
	}
	if ce.IsError() {
		return &ce
	}
	return nil
}

// CacheMaxAge is the Cache-Control max-age sent with a redirect.
func (c *RedirectConfig) CacheMaxAge() time.Duration {
	return time.Duration(c.CacheAge) * 24 * time.Hour
}

// Timeout bounds a single hostnames API call.
func (c *RedirectConfig) Timeout() time.Duration {
	d, err := time.ParseDuration(c.FetchTimeout)
	if err != nil || d <= 0 {
		return 30 * time.Second
	}
	return d
}

// RetryWait is the first hold-off after a failed refresh of an expired
// domain file.
func (c *RedirectConfig) RetryWait() time.Duration {
	d, err := time.ParseDuration(c.RetryInterval)
	if err != nil || d <= 0 {
		return defaultRetryInterval
	}
	return d
}

// fallbackFileTTL is used when file_age is unset: an average month.
const fallbackFileTTL = 2629746 * time.Second

// FileTTL is the age beyond which the domain cache file is refetched.
func (c *RedirectConfig) FileTTL() time.Duration {
	if c.FileAge <= 0 {
		return fallbackFileTTL
	}
	return time.Duration(c.FileAge) * 24 * time.Hour
}

func (c *RedirectConfig) RedirectsEnvironment(env string) bool {
	for _, e := range c.Environments {
		if e == env {
			return true
		}
	}
	return false
}
