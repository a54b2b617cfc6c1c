package moltbook

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-faster/errors"
)

const (
	apiKeyEnv       = "MOLTBOOK_API_KEY"
	fallbackSubmolt = "general"
	defaultTimeout  = 15000 * time.Millisecond
)

// trustedPrefix is the single allow-listed base URL prefix. Every outbound
// request must target it even if the plugin configuration is compromised or
// templated from untrusted input. Var, not const, so tests can point the
// bridge at a local backend.
var trustedPrefix = "https://www.moltbook.com/api/v1"

// Config is the plugin configuration supplied by the host runtime.
// Zero values mean "not configured"; the resolver applies defaults.
type Config struct {
	APIBase          string `json:"apiBase,omitempty"`
	APIKey           string `json:"apiKey,omitempty"`
	DefaultSubmolt   string `json:"defaultSubmolt,omitempty"`
	RequestTimeoutMs int    `json:"requestTimeoutMs,omitempty"`
}

// ConfigSource supplies the current plugin configuration. It is invoked on
// every bridged call, never cached, so host-side config changes take effect
// immediately.
type ConfigSource func() Config

// ConfigFromEnv reads the plugin configuration from process environment
// variables.
func ConfigFromEnv() Config {
	timeoutMs, _ := strconv.Atoi(os.Getenv("MOLTBOOK_TIMEOUT_MS"))
	return Config{
		APIBase:          os.Getenv("MOLTBOOK_API_BASE"),
		APIKey:           os.Getenv(apiKeyEnv),
		DefaultSubmolt:   os.Getenv("MOLTBOOK_DEFAULT_SUBMOLT"),
		RequestTimeoutMs: timeoutMs,
	}
}

// effectiveConfig is the per-call derived configuration.
type effectiveConfig struct {
	apiBase        string
	apiKey         string
	defaultSubmolt string
	timeout        time.Duration
}

// resolveConfig derives an effectiveConfig from the plugin config and the
// process environment. Pure derivation, no side effects.
func resolveConfig(cfg Config) (*effectiveConfig, error) {
	base := strings.TrimSpace(cfg.APIBase)
	if base == "" {
		base = trustedPrefix
	}
	if base != trustedPrefix && !strings.HasPrefix(base, trustedPrefix+"/") {
		return nil, errors.Wrapf(ErrUnsafeEndpoint, "%q", base)
	}

	key := strings.TrimSpace(cfg.APIKey)
	if key == "" {
		key = strings.TrimSpace(os.Getenv(apiKeyEnv))
	}
	if key == "" {
		return nil, ErrMissingCredential
	}

	timeout := defaultTimeout
	if cfg.RequestTimeoutMs > 0 {
		timeout = time.Duration(cfg.RequestTimeoutMs) * time.Millisecond
	}

	return &effectiveConfig{
		apiBase: base,
		apiKey:  key,
		// Pass-through; the post tool applies the literal fallback.
		defaultSubmolt: strings.TrimSpace(cfg.DefaultSubmolt),
		timeout:        timeout,
	}, nil
}
