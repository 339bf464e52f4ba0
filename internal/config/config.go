// Package config loads the BFF configuration from defaults, an optional YAML
// file and the environment, in that order of precedence (last wins).
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// ConfigPathEnv names the variable holding the YAML config path.
const ConfigPathEnv = "HIVE_BFF_CONFIG"

// DefaultBypassHeader is the deployment-protection header the backend expects.
const DefaultBypassHeader = "x-vercel-protection-bypass"

// Config holds all BFF settings.
type Config struct {
	Addr string `yaml:"addr" env:"HIVE_BFF_ADDR"`

	APIBaseURL      string        `yaml:"apiBaseUrl" env:"API_BASE_URL"`
	BypassSecret    string        `yaml:"bypassSecret" env:"API_BYPASS_SECRET"`
	BypassHeader    string        `yaml:"bypassHeader" env:"API_BYPASS_HEADER"`
	ServiceToken    string        `yaml:"serviceToken" env:"API_SERVICE_TOKEN"`
	UpstreamTimeout time.Duration `yaml:"upstreamTimeout" env:"HIVE_BFF_UPSTREAM_TIMEOUT"`

	MasterKeyHex  string `yaml:"masterKeyHex" env:"MASTER_KEY_HEX"`
	MasterKeyFile string `yaml:"masterKeyFile" env:"MASTER_KEY_FILE"`

	CookieName   string        `yaml:"cookieName" env:"HIVE_BFF_COOKIE_NAME"`
	CookieSecure bool          `yaml:"cookieSecure" env:"HIVE_BFF_COOKIE_SECURE"`
	TokenSkew    time.Duration `yaml:"tokenSkew" env:"HIVE_BFF_TOKEN_SKEW"`

	CacheDriver string        `yaml:"cacheDriver" env:"HIVE_BFF_CACHE_DRIVER"`
	CachePath   string        `yaml:"cachePath" env:"HIVE_BFF_CACHE_PATH"`
	CacheTTL    time.Duration `yaml:"cacheTtl" env:"HIVE_BFF_CACHE_TTL"`

	TLSCertFile string `yaml:"tlsCert" env:"HIVE_BFF_TLS_CERT"`
	TLSKeyFile  string `yaml:"tlsKey" env:"HIVE_BFF_TLS_KEY"`

	LogLevel  string `yaml:"logLevel" env:"HIVE_BFF_LOG_LEVEL"`
	LogFormat string `yaml:"logFormat" env:"HIVE_BFF_LOG_FORMAT"`
	LogFile   string `yaml:"logFile" env:"HIVE_BFF_LOG_FILE"`

	OTelEndpoint string `yaml:"otelEndpoint" env:"HIVE_BFF_OTEL_ENDPOINT"`
}

// Default returns the configuration used when nothing overrides it.
func Default() Config {
	return Config{
		Addr:            ":8080",
		BypassHeader:    DefaultBypassHeader,
		UpstreamTimeout: 10 * time.Second,
		MasterKeyFile:   "master.key",
		CookieName:      "hive_session",
		TokenSkew:       30 * time.Second,
		CacheDriver:     "memory",
		CachePath:       "data/cache.db",
		CacheTTL:        60 * time.Second,
		LogLevel:        "info",
		LogFormat:       "json",
	}
}

// Load reads the config file at path (when non-empty and present) and then
// the process environment.
func Load(path string) (Config, error) {
	return LoadFrom(path, envMap(os.Environ()))
}

// LoadFrom is Load with an explicit environment.
func LoadFrom(path string, environ map[string]string) (Config, error) {
	cfg := Default()

	if path == "" {
		path = environ[ConfigPathEnv]
	}
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
			// missing file keeps defaults
		case err != nil:
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return Config{}, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}

	if err := env.ParseWithOptions(&cfg, env.Options{Environment: environ}); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}

	cfg.APIBaseURL = strings.TrimRight(strings.TrimSpace(cfg.APIBaseURL), "/")
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects configurations the server cannot start with.
func (c Config) Validate() error {
	if c.APIBaseURL == "" {
		return errors.New("API_BASE_URL is required")
	}
	u, err := url.Parse(c.APIBaseURL)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("API_BASE_URL %q must be an absolute http(s) URL", c.APIBaseURL)
	}
	if c.UpstreamTimeout <= 0 {
		return errors.New("upstream timeout must be positive")
	}
	if c.CacheTTL < 0 {
		return errors.New("cache ttl must not be negative")
	}
	switch c.CacheDriver {
	case "memory":
	case "sqlite":
		if strings.TrimSpace(c.CachePath) == "" {
			return errors.New("cache path is required for the sqlite cache")
		}
	default:
		return fmt.Errorf("unknown cache driver %q", c.CacheDriver)
	}
	if (c.TLSCertFile == "") != (c.TLSKeyFile == "") {
		return errors.New("tls cert and key must be set together")
	}
	if strings.TrimSpace(c.CookieName) == "" {
		return errors.New("cookie name is required")
	}
	return nil
}

// TLSEnabled reports whether the server should serve HTTPS.
func (c Config) TLSEnabled() bool {
	return c.TLSCertFile != "" && c.TLSKeyFile != ""
}

func envMap(environ []string) map[string]string {
	m := make(map[string]string, len(environ))
	for _, kv := range environ {
		k, v, ok := strings.Cut(kv, "=")
		if ok {
			m[k] = v
		}
	}
	return m
}
