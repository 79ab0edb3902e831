package secretsvc

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	tgerr "github.com/tollgate/tollgate-core/pkg/errors"
	"github.com/tollgate/tollgate-core/pkg/secrets"
)

// tracerName is the OpenTelemetry instrumentation scope name for this package.
// It follows the Go module path convention for OTel instrumentation libraries.
const tracerName = "github.com/tollgate/tollgate-core/pkg/clients/secretsvc"

// bearerPrefix is the standard "Bearer " prefix for authorization tokens.
const bearerPrefix = "Bearer "

// HTTPClient abstracts the HTTP client used for secret service requests.
// This allows callers to provide custom HTTP clients with specific
// timeouts, transport settings, or middleware (e.g., for mTLS, proxy
// configuration, or request tracing), and enables dependency injection via
// [NewFromHTTPClient] for testing.
//
// The standard [http.Client] satisfies this interface.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Compile-time interface compliance checks. These ensure that *http.Client
// satisfies HTTPClient, and that *Client is a record source usable by the
// secret provider cache.
var (
	_ HTTPClient     = (*http.Client)(nil)
	_ secrets.Source = (*Client)(nil)
)

// Client is a secret-service-backed record source with OpenTelemetry
// tracing and structured error handling. It fetches secret records over
// HTTP, authenticating each request with a short-lived HS256 service token
// minted from the shared signing key.
//
// A Client is safe for concurrent use by multiple goroutines. Create one
// Client per secret service endpoint and share it across the application.
//
// Create a Client with [NewClient] for production use, or
// [NewFromHTTPClient] for testing.
type Client struct {
	httpClient HTTPClient
	config     *Config
	tracer     trace.Tracer
}

// NewClient creates a new secret service record source. It validates the
// configuration, builds an [http.Client] with the configured request
// timeout, and verifies connectivity by probing the service's liveness
// endpoint.
//
// Error codes returned:
//   - [tgerr.CodeValidation]: invalid configuration
//   - [tgerr.CodeProviderUnavailable]: cannot reach the secret service
//
// Example:
//
//	cfg := secretsvc.DefaultConfig()
//	cfg.SigningKey = secretsvc.Secret(os.Getenv("SECRETSVC_SIGNING_KEY"))
//	client, err := secretsvc.NewClient(ctx, *cfg)
//	if err != nil {
//	    return fmt.Errorf("connecting to secret service: %w", err)
//	}
//	defer client.Close()
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, tgerr.Wrap(err, tgerr.CodeValidation,
			"secretsvc: invalid configuration")
	}

	client := &Client{
		httpClient: &http.Client{Timeout: cfg.RequestTimeout},
		config:     &cfg,
		tracer:     otel.Tracer(tracerName),
	}

	// Verify connectivity with an unauthenticated liveness probe, so a
	// wrong base URL fails at startup rather than on the first fetch.
	if err := client.Health(ctx); err != nil {
		return nil, err
	}
	return client, nil
}

// NewFromHTTPClient creates a Client with a pre-existing [HTTPClient].
// This constructor is intended for testing with mock or httptest-backed
// clients and for advanced use cases where a custom transport is needed.
//
// The cfg parameter is stored but not validated; pass nil for a
// zero-value config in tests. No connectivity probe is performed.
func NewFromHTTPClient(httpClient HTTPClient, cfg *Config) *Client {
	if cfg == nil {
		cfg = &Config{}
	}
	return &Client{
		httpClient: httpClient,
		config:     cfg,
		tracer:     otel.Tracer(tracerName),
	}
}

// Fetch returns the secret record stored under the given record ID, with
// OpenTelemetry tracing. It implements [secrets.Source].
//
// Each call mints a fresh service token for the Authorization header. The
// response body is read through a 1 MiB limit; a response truncated by the
// limit fails JSON decoding and is reported as malformed.
//
// Error codes returned:
//   - [tgerr.CodeProviderNotFound]: the service has no record under the ID
//   - [tgerr.CodeProviderMalformed]: the response is not a flat JSON
//     object of string fields
//   - [tgerr.CodeInternalConfiguration]: the service rejected the minted
//     token (401/403), meaning the shared signing key is wrong
//   - [tgerr.CodeProviderUnavailable]: the service is unreachable or
//     returned an unexpected status
func (c *Client) Fetch(ctx context.Context, recordID string) (secrets.Record, error) {
	reqURL := c.recordURL(recordID)
	ctx, span := c.startSpan(ctx, "Fetch", reqURL)

	token, err := c.mintToken()
	if err != nil {
		finishSpan(span, err)
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		finishSpan(span, err)
		return nil, tgerr.Wrap(err, tgerr.CodeInternal,
			"secretsvc: record request creation failed")
	}
	req.Header.Set("Authorization", bearerPrefix+token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		finishSpan(span, err)
		return nil, wrapError(err, "secretsvc: record fetch failed")
	}
	defer func() { _ = resp.Body.Close() }()
	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))

	switch {
	case resp.StatusCode == http.StatusNotFound:
		notFoundErr := tgerr.Newf(tgerr.CodeProviderNotFound,
			"secretsvc: record %q does not exist", recordID)
		finishSpan(span, notFoundErr)
		return nil, notFoundErr
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		// The service rejected our own minted token: the shared signing
		// key is misconfigured. Retrying cannot help.
		authErr := tgerr.Newf(tgerr.CodeInternalConfiguration,
			"secretsvc: service credentials rejected with status %d", resp.StatusCode)
		finishSpan(span, authErr)
		return nil, authErr
	case resp.StatusCode != http.StatusOK:
		statusErr := tgerr.Newf(tgerr.CodeProviderUnavailable,
			"secretsvc: record fetch returned status %d", resp.StatusCode)
		finishSpan(span, statusErr)
		return nil, statusErr
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		finishSpan(span, err)
		return nil, wrapError(err, "secretsvc: record response read failed")
	}

	record, err := parseRecord(recordID, body)
	finishSpan(span, err)
	if err != nil {
		return nil, err
	}
	return record, nil
}

// Health verifies that the secret service is reachable by probing its
// liveness endpoint. The probe is unauthenticated, so it reports
// reachability independently of signing key configuration. It applies
// [DefaultHealthTimeout] if the provided context has no deadline.
//
// Returns nil if the service responds with a 2xx status, or a
// [*tgerr.Error] with code [tgerr.CodeProviderUnavailable] otherwise.
// This method is designed for use with health check endpoints and
// readiness probes.
func (c *Client) Health(ctx context.Context) error {
	probeURL := c.config.BaseURL + healthPath
	ctx, span := c.startSpan(ctx, "Health", probeURL)

	// Apply a default timeout if the caller's context has no deadline.
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, DefaultHealthTimeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, probeURL, nil)
	if err != nil {
		finishSpan(span, err)
		return tgerr.Wrap(err, tgerr.CodeInternal,
			"secretsvc: health request creation failed")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		finishSpan(span, err)
		return tgerr.Wrap(err, tgerr.CodeProviderUnavailable,
			"secretsvc: health check failed")
	}
	defer func() { _ = resp.Body.Close() }()
	// Drain the body so the underlying connection can be reused.
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))

	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		statusErr := tgerr.Newf(tgerr.CodeProviderUnavailable,
			"secretsvc: health endpoint returned status %d", resp.StatusCode)
		finishSpan(span, statusErr)
		return statusErr
	}
	finishSpan(span, nil)
	return nil
}

// Close releases idle connections held by the underlying HTTP client.
// The secret service client is otherwise stateless; Close is safe to call
// multiple times. Injected [HTTPClient] implementations without idle
// connection management are left untouched.
func (c *Client) Close() {
	if hc, ok := c.httpClient.(*http.Client); ok {
		hc.CloseIdleConnections()
	}
}

// HTTP returns the underlying [HTTPClient]. This provides access to the
// raw client for use cases not covered by the record API.
func (c *Client) HTTP() HTTPClient {
	return c.httpClient
}

// mintToken signs a fresh short-lived HS256 service token carrying the
// configured issuer, subject, and audience, with a unique jti for audit
// correlation on the secret service side.
func (c *Client) mintToken() (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Issuer:    c.config.Issuer,
		Subject:   c.config.ServiceName,
		Audience:  jwt.ClaimStrings{c.config.Audience},
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(c.config.TokenTTL)),
		ID:        uuid.NewString(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).
		SignedString([]byte(c.config.SigningKey.Value()))
	if err != nil {
		return "", tgerr.Wrap(err, tgerr.CodeInternalCrypto,
			"secretsvc: service token signing failed")
	}
	return signed, nil
}

// recordURL builds the record resource URL for a record ID. The ID is
// path-escaped so IDs containing separators cannot address other
// resources.
func (c *Client) recordURL(recordID string) string {
	return c.config.BaseURL + recordPath + "/" + url.PathEscape(recordID)
}

// parseRecord decodes a record response body into a field-to-value map.
// Record responses must be flat JSON objects with string values; anything
// else (arrays, nested objects, non-string values, truncated bodies) is
// classified as [tgerr.CodeProviderMalformed].
func parseRecord(recordID string, data []byte) (secrets.Record, error) {
	var record secrets.Record
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, tgerr.Wrapf(err, tgerr.CodeProviderMalformed,
			"secretsvc: record %q is not a flat JSON object of strings", recordID)
	}
	// JSON "null" decodes into a nil map without error.
	if len(record) == 0 {
		return nil, tgerr.Newf(tgerr.CodeProviderMalformed,
			"secretsvc: record %q has no fields", recordID)
	}
	return record, nil
}

// startSpan creates a new OpenTelemetry span with standard HTTP client
// semantic attributes. It follows the OpenTelemetry semantic conventions
// for HTTP client spans: https://opentelemetry.io/docs/specs/semconv/http/
func (c *Client) startSpan(ctx context.Context, operationName, requestURL string) (context.Context, trace.Span) {
	ctx, span := c.tracer.Start(ctx, "secretsvc."+operationName,
		trace.WithSpanKind(trace.SpanKindClient),
	)
	span.SetAttributes(
		attribute.String("peer.service", "secret-service"),
		attribute.String("http.request.method", http.MethodGet),
		attribute.String("url.full", truncateStatement(requestURL)),
	)
	return ctx, span
}

// finishSpan records an error on the span (if any) and ends it. If err is
// nil, the span status is set to OK.
func finishSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// wrapError converts a transport error to a platform [*tgerr.Error] with
// an appropriate error code. Request failures and timeouts are classified
// as [tgerr.CodeProviderUnavailable] (retryable, never cached by the
// secret provider). [context.Canceled] is classified as
// [tgerr.CodeInternal] (not retryable) because cancellation indicates the
// caller abandoned the operation, and retrying an intentionally canceled
// request is wasteful.
func wrapError(err error, message string) *tgerr.Error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return tgerr.Wrap(err, tgerr.CodeInternal, message)
	}
	return tgerr.Wrap(err, tgerr.CodeProviderUnavailable, message)
}
