// Package secretsvc provides an HTTP secret service record source with
// JWT service authentication, OpenTelemetry tracing, structured error
// handling, and configuration management for services running on the
// Tollgate edge platform.
//
// # Protocol
//
// The secret service exposes secret records over plain HTTP + JSON:
//
//	GET {base_url}/v1/records/{record_id}
//	Authorization: Bearer <HS256 service token>
//
//	200 → {"secretKey": "my-secret-key-2024", "aesKey": "0123..."}
//	404 → record does not exist
//
// Each request carries a short-lived HS256 JWT minted from the shared
// service signing key. Tokens are minted per request rather than cached:
// the caching provider in front of this source keeps request volume low,
// and per-request tokens make revocation by key rotation immediate.
//
// # Configuration
//
// Create a client using [NewClient] with a [Config]:
//
//	cfg := secretsvc.DefaultConfig()
//	cfg.SigningKey = secretsvc.Secret(os.Getenv("SECRETSVC_SIGNING_KEY"))
//	client, err := secretsvc.NewClient(ctx, *cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
// For testing, use [NewFromHTTPClient] to inject a mock or an
// httptest-backed client:
//
//	client := secretsvc.NewFromHTTPClient(srv.Client(), &cfg)
//
// # Kubernetes Integration
//
// On the Tollgate edge platform, the secret service is accessed via a
// Kubernetes Service at secret-service.tollgate-system.svc.cluster.local.
// The shared signing key is injected by the External Secrets Operator from
// Vault; the service mesh provides mTLS at the network layer.
package secretsvc

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// maxStatementTruncateLen is the maximum length for request descriptions
// recorded in OpenTelemetry trace spans. Statements longer than this are
// truncated to keep record identifiers out of telemetry systems. The value
// 100 is intentionally conservative.
const maxStatementTruncateLen = 100

// maxResponseBytes caps how much of a record response [Client.Fetch] reads.
// Secret records are a handful of short fields; anything approaching this
// limit is malformed or hostile.
const maxResponseBytes = 1 << 20 // 1 MiB

// recordPath is the URL path under which the secret service exposes
// records. Record IDs are appended path-escaped.
const recordPath = "/v1/records"

// healthPath is the unauthenticated liveness endpoint of the secret
// service, probed by [Client.Health] and at construction.
const healthPath = "/healthz"

// minSigningKeyLen is the minimum length in bytes for the HS256 service
// signing key. Shorter keys weaken the HMAC and are rejected at
// configuration time.
const minSigningKeyLen = 32

// Default settings for Kubernetes deployments. These values are tuned for
// a typical Tollgate edge platform deployment where the secret service
// runs behind a Kubernetes Service with service-mesh mTLS.
const (
	// DefaultBaseURL is the Kubernetes Service URL for the secret service
	// in the Tollgate edge platform. This resolves to the ClusterIP of
	// the secret-service Service in the tollgate-system namespace.
	DefaultBaseURL = "http://secret-service.tollgate-system.svc.cluster.local:8080"

	// DefaultServiceName is the "sub" claim in minted service tokens,
	// identifying the calling service to the secret service.
	DefaultServiceName = "tollgate-gateway"

	// DefaultIssuer is the "iss" claim in minted service tokens.
	DefaultIssuer = "tollgate-platform"

	// DefaultAudience is the "aud" claim in minted service tokens.
	DefaultAudience = "secret-service"

	// DefaultTokenTTL is the lifetime of each minted service token.
	// Tokens are minted per request, so the TTL only needs to cover
	// request latency plus clock skew between services.
	DefaultTokenTTL = 60 * time.Second

	// DefaultRequestTimeout is the end-to-end timeout for each HTTP
	// request to the secret service.
	DefaultRequestTimeout = 10 * time.Second

	// DefaultHealthTimeout is the maximum time for a health check probe
	// when the caller's context has no deadline.
	DefaultHealthTimeout = 5 * time.Second
)

// Secret is a string type that prevents accidental logging of sensitive
// values such as the service signing key. Its [Secret.String] and
// [Secret.GoString] methods return a redacted placeholder. Use
// [Secret.Value] to retrieve the actual secret value.
//
// Security: This type provides defense-in-depth against credential leakage
// in log output, error messages, and serialized configuration. It does NOT
// provide encryption at rest; use a secret manager for secret storage.
type Secret string

// redacted is the placeholder string returned by Secret's string methods.
const redacted = "[REDACTED]"

// String returns "[REDACTED]" to prevent accidental logging of the secret.
func (s Secret) String() string {
	return redacted
}

// GoString returns "[REDACTED]" for fmt.Sprintf("%#v", secret) safety.
func (s Secret) GoString() string {
	return redacted
}

// Value returns the actual secret string. Handle the returned value with
// care; avoid logging, serializing, or storing it in plaintext.
func (s Secret) Value() string {
	return string(s)
}

// MarshalText implements encoding.TextMarshaler, returning "[REDACTED]" to
// prevent the secret from appearing in JSON, YAML, or other text-based
// serialization formats.
func (s Secret) MarshalText() ([]byte, error) {
	return []byte(redacted), nil
}

// Config holds the secret service connection and authentication
// configuration. Configuration values are typically injected as
// environment variables by the External Secrets Operator on the Tollgate
// edge platform. The env struct tags document the expected environment
// variable names for each field.
type Config struct {
	// BaseURL is the base URL of the secret service (scheme, host, and
	// optional port). A trailing slash is stripped during validation.
	// Default: "http://secret-service.tollgate-system.svc.cluster.local:8080"
	// Environment variable: SECRETSVC_BASE_URL
	BaseURL string `json:"base_url,omitempty" env:"SECRETSVC_BASE_URL"`

	// ServiceName is the "sub" claim in minted service tokens. The secret
	// service uses it for per-caller authorization and audit logging.
	// Default: "tollgate-gateway"
	// Environment variable: SECRETSVC_SERVICE_NAME
	ServiceName string `json:"service_name,omitempty" env:"SECRETSVC_SERVICE_NAME"`

	// Issuer is the "iss" claim in minted service tokens.
	// Default: "tollgate-platform"
	// Environment variable: SECRETSVC_ISSUER
	Issuer string `json:"issuer,omitempty" env:"SECRETSVC_ISSUER"`

	// Audience is the "aud" claim in minted service tokens.
	// Default: "secret-service"
	// Environment variable: SECRETSVC_AUDIENCE
	Audience string `json:"audience,omitempty" env:"SECRETSVC_AUDIENCE"`

	// SigningKey is the shared HS256 key used to sign service tokens.
	// Must be at least 32 bytes. Uses the [Secret] type to prevent
	// accidental logging.
	// Environment variable: SECRETSVC_SIGNING_KEY
	SigningKey Secret `json:"-" env:"SECRETSVC_SIGNING_KEY"`

	// TokenTTL is the lifetime of each minted service token.
	// Default: 60s
	// Environment variable: SECRETSVC_TOKEN_TTL
	TokenTTL time.Duration `json:"token_ttl,omitempty" env:"SECRETSVC_TOKEN_TTL"`

	// RequestTimeout is the end-to-end timeout for each HTTP request to
	// the secret service.
	// Default: 10s
	// Environment variable: SECRETSVC_REQUEST_TIMEOUT
	RequestTimeout time.Duration `json:"request_timeout,omitempty" env:"SECRETSVC_REQUEST_TIMEOUT"`
}

// DefaultConfig returns a Config with default values suitable for the
// Tollgate edge platform Kubernetes deployment. Callers must set
// SigningKey and should override other fields as needed before passing
// the config to [NewClient].
//
// Default values:
//   - BaseURL: http://secret-service.tollgate-system.svc.cluster.local:8080
//   - ServiceName: tollgate-gateway
//   - Issuer: tollgate-platform
//   - Audience: secret-service
//   - TokenTTL: 60s
//   - RequestTimeout: 10s
func DefaultConfig() *Config {
	return &Config{
		BaseURL:        DefaultBaseURL,
		ServiceName:    DefaultServiceName,
		Issuer:         DefaultIssuer,
		Audience:       DefaultAudience,
		TokenTTL:       DefaultTokenTTL,
		RequestTimeout: DefaultRequestTimeout,
	}
}

// Validate checks the configuration for invalid values and applies
// defaults for zero-valued fields. Returns the first validation error
// encountered, or nil if the configuration is valid.
//
// Validation rules:
//   - BaseURL must parse as a URL with an http:// or https:// scheme
//     (a trailing slash is stripped)
//   - SigningKey must be at least 32 bytes
//   - ServiceName, Issuer, and Audience default when empty
//   - TokenTTL and RequestTimeout must not be negative; zero applies
//     the default
func (c *Config) Validate() error {
	c.applyDefaults()

	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return fmt.Errorf("secretsvc: config base_url is invalid: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("secretsvc: config base_url scheme must be http:// or https://, got %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("secretsvc: config base_url must include a host")
	}
	if len(c.SigningKey.Value()) < minSigningKeyLen {
		return fmt.Errorf("secretsvc: config signing_key must be at least %d bytes", minSigningKeyLen)
	}
	if c.TokenTTL < 0 {
		return fmt.Errorf("secretsvc: config token_ttl must not be negative, got %v", c.TokenTTL)
	}
	if c.RequestTimeout < 0 {
		return fmt.Errorf("secretsvc: config request_timeout must not be negative, got %v", c.RequestTimeout)
	}
	return nil
}

// applyDefaults sets default values for zero-valued fields and normalizes
// the base URL.
func (c *Config) applyDefaults() {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
	if c.ServiceName == "" {
		c.ServiceName = DefaultServiceName
	}
	if c.Issuer == "" {
		c.Issuer = DefaultIssuer
	}
	if c.Audience == "" {
		c.Audience = DefaultAudience
	}
	if c.TokenTTL == 0 {
		c.TokenTTL = DefaultTokenTTL
	}
	if c.RequestTimeout == 0 {
		c.RequestTimeout = DefaultRequestTimeout
	}
}

// truncateStatement truncates a request description to
// [maxStatementTruncateLen] runes for safe inclusion in OpenTelemetry
// trace spans. Truncated statements are suffixed with "..." to indicate
// truncation. The truncation is rune-aware to avoid splitting multi-byte
// UTF-8 characters.
func truncateStatement(s string) string {
	runes := []rune(s)
	if len(runes) <= maxStatementTruncateLen {
		return s
	}
	return string(runes[:maxStatementTruncateLen]) + "..."
}
