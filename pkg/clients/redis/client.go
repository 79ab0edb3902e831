package redis

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	tgerr "github.com/tollgate/tollgate-core/pkg/errors"
	"github.com/tollgate/tollgate-core/pkg/secrets"
)

// tracerName is the OpenTelemetry instrumentation scope name for this package.
// It follows the Go module path convention for OTel instrumentation libraries.
const tracerName = "github.com/tollgate/tollgate-core/pkg/clients/redis"

// Cmdable defines the interface for the Redis commands the record source
// uses. This interface is satisfied by [*redis.Client] and by mock
// implementations for unit testing. It enables dependency injection via
// [NewFromClient] for testing without a real Redis instance.
//
// The interface is intentionally narrow, exposing only the operations that
// the [Client] wraps with tracing and error handling.
type Cmdable interface {
	// HGetAll returns all fields and values in a hash.
	HGetAll(ctx context.Context, key string) *redis.MapStringStringCmd

	// HSet sets field-value pairs in a hash stored at key.
	HSet(ctx context.Context, key string, values ...interface{}) *redis.IntCmd

	// Del deletes one or more keys.
	Del(ctx context.Context, keys ...string) *redis.IntCmd

	// Exists returns the number of keys that exist from the specified keys.
	Exists(ctx context.Context, keys ...string) *redis.IntCmd

	// Ping pings the Redis server.
	Ping(ctx context.Context) *redis.StatusCmd

	// Close closes the client connection.
	Close() error
}

// Compile-time interface compliance checks. These ensure that
// *redis.Client satisfies Cmdable, and that *Client is a record source
// usable by the secret provider cache.
var (
	_ Cmdable        = (*redis.Client)(nil)
	_ secrets.Source = (*Client)(nil)
)

// Client is a Redis-backed secret record source with OpenTelemetry tracing
// and structured error handling. It wraps a [Cmdable] (typically
// [*redis.Client]) and maps record operations onto Redis hash commands.
//
// A Client is safe for concurrent use by multiple goroutines. Create one
// Client per Redis instance and share it across the application.
//
// Create a Client with [NewClient] for production use, or [NewFromClient]
// for testing with mock implementations.
type Client struct {
	cmdable Cmdable
	config  *Config
	tracer  trace.Tracer
	dbIndex int
}

// NewClient creates a new Redis record source with connection pooling. It
// validates the configuration, creates a go-redis client with the
// appropriate options, and verifies connectivity with a ping.
//
// The caller must call [Client.Close] when the client is no longer needed
// to release connection resources.
//
// Error codes returned:
//   - [tgerr.CodeValidation]: invalid configuration
//   - [tgerr.CodeProviderUnavailable]: cannot connect to Redis
//
// Example:
//
//	cfg := redis.DefaultConfig()
//	cfg.Password = redis.Secret(os.Getenv("REDIS_PASSWORD"))
//	client, err := redis.NewClient(ctx, *cfg)
//	if err != nil {
//	    return fmt.Errorf("connecting to redis: %w", err)
//	}
//	defer client.Close()
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, tgerr.Wrap(err, tgerr.CodeValidation,
			"redis: invalid configuration")
	}

	var opts *redis.Options
	if cfg.URI != "" {
		var err error
		opts, err = redis.ParseURL(cfg.URI)
		if err != nil {
			return nil, tgerr.Wrap(err, tgerr.CodeValidation,
				"redis: failed to parse connection URI")
		}
		// Apply pool settings from config to parsed options.
		opts.PoolSize = cfg.PoolSize
		opts.MinIdleConns = cfg.MinIdleConns
		opts.MaxRetries = cfg.MaxRetries
		if cfg.DialTimeout > 0 {
			opts.DialTimeout = cfg.DialTimeout
		}
		if cfg.ReadTimeout > 0 {
			opts.ReadTimeout = cfg.ReadTimeout
		}
		if cfg.WriteTimeout > 0 {
			opts.WriteTimeout = cfg.WriteTimeout
		}
	} else {
		opts = &redis.Options{
			Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
			Password:     cfg.Password.Value(),
			DB:           cfg.DB,
			PoolSize:     cfg.PoolSize,
			MinIdleConns: cfg.MinIdleConns,
			MaxRetries:   cfg.MaxRetries,
			DialTimeout:  cfg.DialTimeout,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
		}
		if cfg.TLSEnabled {
			opts.TLSConfig = &tls.Config{
				MinVersion: tls.VersionTLS12,
			}
		}
	}

	rdb := redis.NewClient(opts)

	// Verify connectivity before returning the client.
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, tgerr.Wrap(err, tgerr.CodeProviderUnavailable,
			"redis: failed to connect to server")
	}

	dbIndex := cfg.DB
	if cfg.URI != "" {
		dbIndex = opts.DB
	}

	return &Client{
		cmdable: rdb,
		config:  &cfg,
		tracer:  otel.Tracer(tracerName),
		dbIndex: dbIndex,
	}, nil
}

// NewFromClient creates a Client with a pre-existing [Cmdable]. This
// constructor is intended for testing with mock implementations and for
// advanced use cases where a custom client implementation is needed.
//
// The cfg parameter is stored but not validated; pass nil for a zero-value
// config in tests. A zero-value config uses [DefaultKeyPrefix].
//
// Example (testing):
//
//	mock := &mockCmdable{}
//	client := redis.NewFromClient(mock, nil)
func NewFromClient(cmdable Cmdable, cfg *Config) *Client {
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = DefaultKeyPrefix
	}
	return &Client{
		cmdable: cmdable,
		config:  cfg,
		tracer:  otel.Tracer(tracerName),
		dbIndex: cfg.DB,
	}
}

// Fetch returns the secret record stored under the given record ID, with
// OpenTelemetry tracing. It implements [secrets.Source].
//
// Error codes returned:
//   - [tgerr.CodeProviderNotFound]: no record exists under the ID
//   - [tgerr.CodeProviderUnavailable]: Redis is unreachable or the
//     command failed
//
// Example:
//
//	record, err := client.Fetch(ctx, "edge-1")
//	if err != nil {
//	    return err
//	}
//	secret := record["secretKey"]
func (c *Client) Fetch(ctx context.Context, recordID string) (secrets.Record, error) {
	key := c.recordKey(recordID)
	ctx, span := c.startSpan(ctx, "Fetch", fmt.Sprintf("HGETALL %s", key))
	fields, err := c.cmdable.HGetAll(ctx, key).Result()
	finishSpan(span, err)
	if err != nil {
		return nil, wrapError(err, "redis: record fetch failed")
	}
	// HGETALL returns an empty map, not an error, for a missing key.
	if len(fields) == 0 {
		return nil, tgerr.Newf(tgerr.CodeProviderNotFound,
			"redis: record %q does not exist", recordID)
	}
	return secrets.Record(fields), nil
}

// StoreRecord writes a secret record under the given record ID, replacing
// any existing fields with the same names, with OpenTelemetry tracing.
// Used by provisioning tooling and tests; the gateway itself only reads.
//
// Example:
//
//	err := client.StoreRecord(ctx, "edge-1", secrets.Record{
//	    "secretKey": "my-secret-key-2024",
//	})
func (c *Client) StoreRecord(ctx context.Context, recordID string, record secrets.Record) error {
	if len(record) == 0 {
		return tgerr.New(tgerr.CodeValidation, "redis: record must have at least one field")
	}

	key := c.recordKey(recordID)
	pairs := make([]interface{}, 0, len(record)*2)
	for field, value := range record {
		pairs = append(pairs, field, value)
	}

	ctx, span := c.startSpan(ctx, "StoreRecord", fmt.Sprintf("HSET %s", key))
	err := c.cmdable.HSet(ctx, key, pairs...).Err()
	finishSpan(span, err)
	if err != nil {
		return wrapError(err, "redis: record store failed")
	}
	return nil
}

// DeleteRecord removes the record stored under the given record ID and
// reports whether a record was removed, with OpenTelemetry tracing.
//
// Example:
//
//	removed, err := client.DeleteRecord(ctx, "edge-1")
func (c *Client) DeleteRecord(ctx context.Context, recordID string) (bool, error) {
	key := c.recordKey(recordID)
	ctx, span := c.startSpan(ctx, "DeleteRecord", fmt.Sprintf("DEL %s", key))
	count, err := c.cmdable.Del(ctx, key).Result()
	finishSpan(span, err)
	if err != nil {
		return false, wrapError(err, "redis: record delete failed")
	}
	return count > 0, nil
}

// RecordExists reports whether a record exists under the given record ID,
// with OpenTelemetry tracing.
//
// Example:
//
//	exists, err := client.RecordExists(ctx, "edge-1")
func (c *Client) RecordExists(ctx context.Context, recordID string) (bool, error) {
	key := c.recordKey(recordID)
	ctx, span := c.startSpan(ctx, "RecordExists", fmt.Sprintf("EXISTS %s", key))
	count, err := c.cmdable.Exists(ctx, key).Result()
	finishSpan(span, err)
	if err != nil {
		return false, wrapError(err, "redis: record existence check failed")
	}
	return count > 0, nil
}

// Health verifies that the Redis connection is alive by executing a ping.
// It applies [DefaultHealthTimeout] if the provided context has no deadline.
//
// Returns nil if Redis is reachable, or a [*tgerr.Error] with code
// [tgerr.CodeProviderUnavailable] if the ping fails. This method is
// designed for use with health check endpoints and readiness probes.
//
// Example:
//
//	if err := client.Health(ctx); err != nil {
//	    log.Warn("redis health check failed", "error", err)
//	}
func (c *Client) Health(ctx context.Context) error {
	ctx, span := c.startSpan(ctx, "Health", "PING")

	// Apply a default timeout if the caller's context has no deadline.
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, DefaultHealthTimeout)
		defer cancel()
	}

	err := c.cmdable.Ping(ctx).Err()
	finishSpan(span, err)
	if err != nil {
		return tgerr.Wrap(err, tgerr.CodeProviderUnavailable,
			"redis: health check failed")
	}
	return nil
}

// Close releases all connection resources. After Close is called,
// the client must not be used. Close is safe to call multiple times.
func (c *Client) Close() error {
	return c.cmdable.Close()
}

// Client returns the underlying [Cmdable] interface. This provides access
// to the raw Redis client for advanced use cases that are not covered by
// the Client's methods.
//
// The returned Cmdable should not be closed directly; use [Client.Close]
// instead.
func (c *Client) Client() Cmdable {
	return c.cmdable
}

// recordKey joins the configured key prefix with a record ID.
func (c *Client) recordKey(recordID string) string {
	return c.config.KeyPrefix + recordID
}

// startSpan creates a new OpenTelemetry span with standard database semantic
// attributes. It follows the OpenTelemetry semantic conventions for database
// client spans: https://opentelemetry.io/docs/specs/semconv/database/
func (c *Client) startSpan(ctx context.Context, operationName, statement string) (context.Context, trace.Span) {
	ctx, span := c.tracer.Start(ctx, "redis."+operationName,
		trace.WithSpanKind(trace.SpanKindClient),
	)
	span.SetAttributes(
		attribute.String("db.system", "redis"),
		attribute.Int("db.redis.database_index", c.dbIndex),
		attribute.String("db.statement", truncateStatement(statement)),
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

// wrapError converts a Redis error to a platform [*tgerr.Error] with an
// appropriate error code. Command failures and timeouts are classified as
// [tgerr.CodeProviderUnavailable] (retryable, never cached by the secret
// provider). [context.Canceled] is classified as [tgerr.CodeInternal]
// (not retryable) because cancellation indicates the caller abandoned the
// operation, and retrying an intentionally canceled request is wasteful.
func wrapError(err error, message string) *tgerr.Error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return tgerr.Wrap(err, tgerr.CodeInternal, message)
	}
	return tgerr.Wrap(err, tgerr.CodeProviderUnavailable, message)
}
