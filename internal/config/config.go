// Package config loads the service configuration from the environment.
//
// Variables are read with github.com/caarlos0/env. A .env file in the
// working directory is loaded first by the binary.
package config

import (
	"errors"
	"fmt"
	"net/http"
	"net/netip"
	"strings"
	"time"

	"marketplace/internal/access"
	"marketplace/internal/session"

	env "github.com/caarlos0/env/v11"
)

// ConfigurationError reports a missing or invalid setting. The process
// logs it and exits before listening.
type ConfigurationError struct {
	Variable string
	Reason   string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid configuration: %s %s", e.Variable, e.Reason)
}

// Config is the full service configuration.
type Config struct {
	// AppEnv selects the environment; NODE_ENV is the fallback.
	AppEnv  string `env:"APP_ENV"`
	NodeEnv string `env:"NODE_ENV"`

	Port        int    `env:"PORT" envDefault:"5000"`
	ServiceHost string `env:"SERVICE_HOST" envDefault:"localhost"`

	Token  TokenConfig
	Cookie CookieConfig `envPrefix:"COOKIE_"`

	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envDefault:"http://localhost:5173,http://localhost:5174" envSeparator:","`

	// TrustedProxies lists the proxy IPs or CIDRs whose forwarding headers
	// are honored. Empty trusts none and client IPs come from the socket.
	TrustedProxies []string `env:"TRUSTED_PROXIES" envSeparator:","`

	// AccessPolicy is compat or hardened.
	AccessPolicy string `env:"ACCESS_POLICY" envDefault:"compat"`

	Database DatabaseConfig
	Redis    RedisConfig  `envPrefix:"REDIS_"`
	Consul   ConsulConfig `envPrefix:"CONSUL_HTTP_"`
	Login    LoginConfig  `envPrefix:"LOGIN_"`
	Server   ServerConfig `envPrefix:"SERVER_"`
	Log      LogConfig    `envPrefix:"LOG_"`
}

// TokenConfig configures the credential codec.
type TokenConfig struct {
	Secret string        `env:"ACCESS_TOKEN_SECRET"`
	TTL    time.Duration `env:"TOKEN_TTL" envDefault:"8760h"`
	Issuer string        `env:"TOKEN_ISSUER" envDefault:"marketplace"`
}

// CookieConfig overrides the environment-derived cookie transport policy.
type CookieConfig struct {
	Secure   *bool  `env:"SECURE"`
	SameSite string `env:"SAMESITE"`
	Domain   string `env:"DOMAIN"`
}

// DatabaseConfig selects the document store. An empty URL selects the
// in-memory store.
type DatabaseConfig struct {
	URL     string `env:"DATABASE_URL"`
	Migrate bool   `env:"DB_MIGRATE" envDefault:"true"`
}

// RedisConfig configures the optional job cache.
type RedisConfig struct {
	Addr     string `env:"ADDR"`
	Password string `env:"PASSWORD"`
	DB       int    `env:"DB" envDefault:"0"`
}

// ConsulConfig configures optional service registration.
type ConsulConfig struct {
	Addr  string `env:"ADDR"`
	Token string `env:"TOKEN"`
}

// LoginConfig configures the per-client login limiter.
type LoginConfig struct {
	RatePerMinute int `env:"RATE_PER_MINUTE" envDefault:"30"`
	Burst         int `env:"BURST" envDefault:"10"`
}

// ServerConfig holds http.Server timeouts.
type ServerConfig struct {
	ReadTimeout  time.Duration `env:"READ_TIMEOUT" envDefault:"15s"`
	WriteTimeout time.Duration `env:"WRITE_TIMEOUT" envDefault:"60s"`
	IdleTimeout  time.Duration `env:"IDLE_TIMEOUT" envDefault:"120s"`
}

// LogConfig configures the logger.
type LogConfig struct {
	Level  string `env:"LEVEL" envDefault:"info"`
	Format string `env:"FORMAT" envDefault:"json"`
}

// Load reads and validates the configuration from the process environment.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	return cfg, cfg.Validate()
}

// LoadFromEnvironment reads and validates the configuration from vars
// instead of the process environment.
func LoadFromEnvironment(vars map[string]string) (Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, env.Options{Environment: vars}); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	return cfg, cfg.Validate()
}

// Environment returns APP_ENV, then NODE_ENV, then "development".
func (c Config) Environment() string {
	switch {
	case c.AppEnv != "":
		return c.AppEnv
	case c.NodeEnv != "":
		return c.NodeEnv
	default:
		return "development"
	}
}

// IsProduction reports whether the production cookie transport applies.
func (c Config) IsProduction() bool {
	return strings.EqualFold(c.Environment(), "production")
}

// Mode returns the configured access policy mode.
func (c Config) Mode() (access.Mode, error) {
	mode, err := access.ParseMode(c.AccessPolicy)
	if err != nil {
		return "", &ConfigurationError{Variable: "ACCESS_POLICY", Reason: err.Error()}
	}
	return mode, nil
}

// CookiePolicy returns the environment default with any COOKIE_* overrides applied.
func (c Config) CookiePolicy() (session.Policy, error) {
	policy := session.PolicyFor(c.IsProduction())

	if c.Cookie.Secure != nil {
		policy.Secure = *c.Cookie.Secure
	}
	if c.Cookie.SameSite != "" {
		sameSite, err := session.ParseSameSite(c.Cookie.SameSite)
		if err != nil {
			return policy, &ConfigurationError{Variable: "COOKIE_SAMESITE", Reason: err.Error()}
		}
		policy.SameSite = sameSite
	}
	policy.Domain = c.Cookie.Domain

	if policy.SameSite == http.SameSiteNoneMode && !policy.Secure {
		return policy, &ConfigurationError{Variable: "COOKIE_SECURE", Reason: "must be true when COOKIE_SAMESITE is none"}
	}
	return policy, nil
}

// Validate reports every invalid setting.
func (c Config) Validate() error {
	var errs []error

	if c.Token.Secret == "" {
		errs = append(errs, &ConfigurationError{Variable: "ACCESS_TOKEN_SECRET", Reason: "is required"})
	}
	if c.Token.TTL <= 0 {
		errs = append(errs, &ConfigurationError{Variable: "TOKEN_TTL", Reason: "must be positive"})
	}
	if c.Port < 1 || c.Port > 65535 {
		errs = append(errs, &ConfigurationError{Variable: "PORT", Reason: fmt.Sprintf("%d is out of range", c.Port)})
	}
	if _, err := c.Mode(); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.CookiePolicy(); err != nil {
		errs = append(errs, err)
	}
	for _, proxy := range c.TrustedProxies {
		if _, err := netip.ParsePrefix(proxy); err == nil {
			continue
		}
		if _, err := netip.ParseAddr(proxy); err != nil {
			errs = append(errs, &ConfigurationError{Variable: "TRUSTED_PROXIES", Reason: fmt.Sprintf("%q is not an IP or CIDR", proxy)})
		}
	}
	if c.Login.RatePerMinute < 1 {
		errs = append(errs, &ConfigurationError{Variable: "LOGIN_RATE_PER_MINUTE", Reason: "must be at least 1"})
	}
	if c.Login.Burst < 1 {
		errs = append(errs, &ConfigurationError{Variable: "LOGIN_BURST", Reason: "must be at least 1"})
	}
	if len(c.CORSAllowedOrigins) == 0 {
		errs = append(errs, &ConfigurationError{Variable: "CORS_ALLOWED_ORIGINS", Reason: "must name at least one origin"})
	}
	switch strings.ToLower(c.Log.Format) {
	case "json", "text":
	default:
		errs = append(errs, &ConfigurationError{Variable: "LOG_FORMAT", Reason: fmt.Sprintf("%q is not json or text", c.Log.Format)})
	}

	return errors.Join(errs...)
}
