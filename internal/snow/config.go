package snow

import (
	"errors"
	"net"
	"net/http"
	"strings"
	"time"
)

type Config struct {
	// Required fields.
	BaseURL string // instance root, e.g. https://acme.service-now.com
	Token   string // bearer credential from the auth provider

	// AttemptTimeout bounds a single upstream attempt, independent of
	// the retry budget. The instance's gateway times out near 60s, so
	// there is no point waiting longer than that.
	AttemptTimeout time.Duration // default: 55s

	// Optional connection pool settings.
	MaxIdleConns        int // default: 100
	MaxIdleConnsPerHost int // default: 100

	// Custom HTTP client (for testing or special configs).
	HTTPClient *http.Client
}

// Validate checks required fields only.
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return errors.New("BaseURL is required")
	}
	if c.Token == "" {
		return errors.New("Token is required")
	}
	return nil
}

// WithDefaults returns a copy of Config with sane defaults applied.
func (c *Config) WithDefaults() Config {
	cfg := *c

	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	if cfg.AttemptTimeout <= 0 {
		cfg.AttemptTimeout = 55 * time.Second
	}
	if cfg.MaxIdleConns <= 0 {
		cfg.MaxIdleConns = 100
	}
	if cfg.MaxIdleConnsPerHost <= 0 {
		cfg.MaxIdleConnsPerHost = 100
	}

	return cfg
}

// defaultTransport creates an HTTP transport with connection pooling
// and reasonable timeouts for a slow instance.
func defaultTransport(cfg Config) *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        cfg.MaxIdleConns,
		MaxIdleConnsPerHost: cfg.MaxIdleConnsPerHost,
		IdleConnTimeout:     90 * time.Second,

		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
}
