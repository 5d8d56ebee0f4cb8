package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	App struct {
		// dev | staging | prod
		Env string `yaml:"env"`
	} `yaml:"app"`

	Server struct {
		Addr               string   `yaml:"addr"`
		CORSAllowedOrigins []string `yaml:"cors_allowed_origins"`
	} `yaml:"server"`

	Storage struct {
		DSN      string `yaml:"dsn"`
		Postgres struct {
			MaxConns        int    `yaml:"max_conns"`
			ConnMaxLifetime string `yaml:"conn_max_lifetime"`
		} `yaml:"postgres"`
	} `yaml:"storage"`

	Session struct {
		// memory | redis
		Backend    string `yaml:"backend"`
		CookieName string `yaml:"cookie_name"`
		Domain     string `yaml:"domain"`
		SameSite   string `yaml:"samesite"`
		Secure     bool   `yaml:"secure"`
		TTL        string `yaml:"ttl"`
		Redis      struct {
			Addr   string `yaml:"addr"`
			DB     int    `yaml:"db"`
			Prefix string `yaml:"prefix"`
		} `yaml:"redis"`
	} `yaml:"session"`

	// SSO holds the EVE Online single sign-on endpoints and client credentials.
	SSO struct {
		ClientID     string `yaml:"client_id"`
		ClientSecret string `yaml:"client_secret"`
		CallbackURL  string `yaml:"callback_url"`
		AuthorizeURL string `yaml:"authorize_url"`
		TokenURL     string `yaml:"token_url"`
		JWKSURL      string `yaml:"jwks_url"`
		Issuer       string `yaml:"issuer"`
		Audience     string `yaml:"audience"`
		// Scopes requested for the default and alt login variants.
		Scopes string `yaml:"scopes"`
	} `yaml:"sso"`

	ESI struct {
		BaseURL string `yaml:"base_url"`
		Timeout string `yaml:"timeout"`
	} `yaml:"esi"`

	Mail struct {
		Host string `yaml:"host"`
		Port int    `yaml:"port"`
		User string `yaml:"user"`
		Pass string `yaml:"pass"`
		From string `yaml:"from"`
		// AdminTo receives a copy of operational notices. Optional.
		AdminTo string `yaml:"admin_to"`
	} `yaml:"mail"`

	Groups struct {
		// SyncMaxPasses caps the constraint fixed-point iteration.
		SyncMaxPasses int `yaml:"sync_max_passes"`
	} `yaml:"groups"`
}

// Load reads the YAML file at path, applies defaults and environment
// overrides, and validates the result.
func Load(path string) (*Config, error) {
	var c Config
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(b, &c); err != nil {
			return nil, err
		}
	}

	// sane defaults
	if c.App.Env == "" {
		c.App.Env = "dev"
	}
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Session.Backend == "" {
		c.Session.Backend = "memory"
	}
	if c.Session.CookieName == "" {
		c.Session.CookieName = "evecore"
	}
	if c.Session.SameSite == "" {
		c.Session.SameSite = "Lax"
	}
	if c.Session.TTL == "" {
		c.Session.TTL = "12h"
	}
	if c.Session.Redis.Prefix == "" {
		c.Session.Redis.Prefix = "evecore:sess:"
	}
	if c.Storage.Postgres.MaxConns == 0 {
		c.Storage.Postgres.MaxConns = 10
	}
	if c.SSO.AuthorizeURL == "" {
		c.SSO.AuthorizeURL = "https://login.eveonline.com/v2/oauth/authorize"
	}
	if c.SSO.TokenURL == "" {
		c.SSO.TokenURL = "https://login.eveonline.com/v2/oauth/token"
	}
	if c.SSO.JWKSURL == "" {
		c.SSO.JWKSURL = "https://login.eveonline.com/oauth/jwks"
	}
	if c.SSO.Issuer == "" {
		c.SSO.Issuer = "https://login.eveonline.com"
	}
	if c.SSO.Audience == "" {
		c.SSO.Audience = "EVE Online"
	}
	if c.ESI.BaseURL == "" {
		c.ESI.BaseURL = "https://esi.evetech.net"
	}
	if c.ESI.Timeout == "" {
		c.ESI.Timeout = "10s"
	}
	if c.Groups.SyncMaxPasses == 0 {
		c.Groups.SyncMaxPasses = 5
	}

	c.applyEnvOverrides()

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// SessionTTL parses the session TTL string, falling back to 12h.
func (c *Config) SessionTTL() time.Duration {
	if d, err := time.ParseDuration(c.Session.TTL); err == nil {
		return d
	}
	return 12 * time.Hour
}

// ESITimeout parses the ESI client timeout, falling back to 10s.
func (c *Config) ESITimeout() time.Duration {
	if d, err := time.ParseDuration(c.ESI.Timeout); err == nil {
		return d
	}
	return 10 * time.Second
}

func getEnvStr(key string) (string, bool) {
	v := os.Getenv(key)
	return v, v != ""
}

func getEnvInt(key string) (int, bool) {
	if s, ok := getEnvStr(key); ok {
		if i, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
			return i, true
		}
	}
	return 0, false
}

func getEnvBool(key string) (bool, bool) {
	if s, ok := getEnvStr(key); ok {
		if b, err := strconv.ParseBool(strings.TrimSpace(s)); err == nil {
			return b, true
		}
	}
	return false, false
}

// applyEnvOverrides lets environment variables win over config.yaml.
func (c *Config) applyEnvOverrides() {
	if v, ok := getEnvStr("APP_ENV"); ok {
		c.App.Env = strings.ToLower(v)
	}
	if v, ok := getEnvStr("SERVER_ADDR"); ok {
		c.Server.Addr = v
	}
	if v, ok := getEnvStr("STORAGE_DSN"); ok {
		c.Storage.DSN = v
	}
	if v, ok := getEnvStr("SESSION_BACKEND"); ok {
		c.Session.Backend = v
	}
	if v, ok := getEnvStr("SESSION_REDIS_ADDR"); ok {
		c.Session.Redis.Addr = v
	}
	if v, ok := getEnvInt("SESSION_REDIS_DB"); ok {
		c.Session.Redis.DB = v
	}
	if v, ok := getEnvBool("SESSION_SECURE"); ok {
		c.Session.Secure = v
	}
	if v, ok := getEnvStr("SSO_CLIENT_ID"); ok {
		c.SSO.ClientID = v
	}
	if v, ok := getEnvStr("SSO_CLIENT_SECRET"); ok {
		c.SSO.ClientSecret = v
	}
	if v, ok := getEnvStr("SSO_CALLBACK_URL"); ok {
		c.SSO.CallbackURL = v
	}
	if v, ok := getEnvStr("SSO_SCOPES"); ok {
		c.SSO.Scopes = v
	}
	if v, ok := getEnvStr("MAIL_HOST"); ok {
		c.Mail.Host = v
	}
	if v, ok := getEnvInt("MAIL_PORT"); ok {
		c.Mail.Port = v
	}
	if v, ok := getEnvStr("MAIL_USER"); ok {
		c.Mail.User = v
	}
	if v, ok := getEnvStr("MAIL_PASS"); ok {
		c.Mail.Pass = v
	}
}

// Validate checks settings that have no workable default.
func (c *Config) Validate() error {
	switch c.Session.Backend {
	case "memory", "redis":
	default:
		return fmt.Errorf("config: unknown session backend %q", c.Session.Backend)
	}
	if c.Session.Backend == "redis" && c.Session.Redis.Addr == "" {
		return fmt.Errorf("config: session backend redis requires redis addr")
	}
	return nil
}
