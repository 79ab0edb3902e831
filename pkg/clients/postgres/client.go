// Package postgres provides a PostgreSQL-backed secret record source with
// connection pooling and OpenTelemetry tracing for services running on the
// Tollgate edge platform.
//
// # Record Layout
//
// Each secret record is stored as a set of rows in a single table (default
// "tollgate_records"), one row per field:
//
//	CREATE TABLE tollgate_records (
//	    record_id  TEXT NOT NULL,
//	    field      TEXT NOT NULL,
//	    value      TEXT NOT NULL,
//	    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
//	    PRIMARY KEY (record_id, field)
//	);
//
// [Client.Fetch] selects all rows for a record ID and returns them as a
// field-to-value map. [Client.EnsureSchema] creates the table for
// provisioning tooling and tests.
//
// # Connection Management
//
// The client uses pgxpool for connection pooling, automatically managing a
// pool of persistent connections. Connection retry for transient failures
// is handled internally by pgxpool; failed connections are replaced and the
// health check period keeps the pool healthy.
//
// # Configuration
//
// Create a client using [NewClient] with a [Config]:
//
//	cfg := postgres.DefaultConfig()
//	cfg.Password = postgres.Secret("my-password")
//	client, err := postgres.NewClient(ctx, *cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
// For testing, use [NewFromPool] to inject a mock pool:
//
//	mock, _ := pgxmock.NewPool()
//	client := postgres.NewFromPool(mock, nil)
//
// # OpenTelemetry Tracing
//
// All record operations automatically create OpenTelemetry spans with
// standard database semantic attributes (db.system, db.name, db.statement).
// SQL statements are truncated to 100 characters in spans to prevent
// sensitive data leakage.
//
// # Kubernetes Integration
//
// On the Tollgate edge platform, PostgreSQL is accessed via a Kubernetes
// Service at postgres.tollgate-system.svc.cluster.local:5432. Credentials
// are injected by the External Secrets Operator.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	tgerr "github.com/tollgate/tollgate-core/pkg/errors"
	"github.com/tollgate/tollgate-core/pkg/secrets"
)

// tracerName is the OpenTelemetry instrumentation scope name for this
// package. It follows the Go module path convention for OTel
// instrumentation libraries.
const tracerName = "github.com/tollgate/tollgate-core/pkg/clients/postgres"

// Pool defines the interface for PostgreSQL connection pool operations.
// This interface is satisfied by [*pgxpool.Pool] and by mock
// implementations such as pgxmock for unit testing. It enables dependency
// injection via [NewFromPool] for testing without a real database.
//
// All methods follow the pgx v5 API signatures exactly, ensuring that
// [*pgxpool.Pool] satisfies this interface without adaptation.
type Pool interface {
	// Query executes a SQL query that returns rows.
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)

	// QueryRow executes a SQL query that returns at most one row.
	// Errors are deferred until the returned pgx.Row is scanned.
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row

	// Exec executes a SQL statement that does not return rows
	// (INSERT, UPDATE, DELETE, DDL).
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)

	// Begin starts a new database transaction.
	Begin(ctx context.Context) (pgx.Tx, error)

	// Ping verifies the connection to the database is alive.
	Ping(ctx context.Context) error

	// Close releases all pool resources. After Close is called,
	// the pool must not be used.
	Close()
}

// Compile-time interface compliance checks. *pgxpool.Pool must satisfy
// Pool, and the client must be usable wherever a record source is
// expected.
var (
	_ Pool           = (*pgxpool.Pool)(nil)
	_ secrets.Source = (*Client)(nil)
)

// Client is a PostgreSQL-backed secret record source with connection
// pooling, OpenTelemetry tracing, and structured error handling. It wraps
// a [Pool] (typically [*pgxpool.Pool]) and adds cross-cutting concerns
// (tracing, error classification) transparently to all record operations.
//
// A Client is safe for concurrent use by multiple goroutines. Create one
// Client per database and share it across the application.
//
// Create a Client with [NewClient] for production use, or [NewFromPool]
// for testing with mock pools.
type Client struct {
	pool         Pool
	config       *Config
	tracer       trace.Tracer
	databaseName string
	table        string
}

// NewClient creates a new PostgreSQL record source with connection
// pooling. It validates the configuration, establishes the connection
// pool, configures TLS if a custom CA certificate is provided, and
// verifies connectivity with a ping.
//
// The caller must call [Client.Close] when the client is no longer needed
// to release pool resources.
//
// Error codes returned:
//   - [tgerr.CodeValidation]: invalid configuration
//   - [tgerr.CodeInternalConfiguration]: TLS setup failure
//   - [tgerr.CodeProviderUnavailable]: cannot connect to the database
//
// Example:
//
//	cfg := postgres.DefaultConfig()
//	cfg.Password = postgres.Secret(os.Getenv("POSTGRES_PASSWORD"))
//	client, err := postgres.NewClient(ctx, *cfg)
//	if err != nil {
//	    return fmt.Errorf("connecting to database: %w", err)
//	}
//	defer client.Close()
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, tgerr.Wrap(err, tgerr.CodeValidation,
			"postgres: invalid configuration")
	}

	connStr := cfg.ConnectionString()

	poolCfg, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, tgerr.Wrap(err, tgerr.CodeValidation,
			"postgres: failed to parse connection string")
	}

	// Apply pool settings from validated config.
	poolCfg.MaxConns = cfg.MaxConns
	poolCfg.MinConns = cfg.MinConns
	poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	poolCfg.MaxConnIdleTime = cfg.MaxConnIdleTime
	poolCfg.HealthCheckPeriod = cfg.HealthCheckPeriod

	// Apply custom TLS if a CA certificate is provided.
	tlsCfg, err := cfg.tlsConfig()
	if err != nil {
		return nil, tgerr.Wrap(err, tgerr.CodeInternalConfiguration,
			"postgres: failed to configure TLS")
	}
	if tlsCfg != nil {
		poolCfg.ConnConfig.TLSConfig = tlsCfg
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, tgerr.Wrap(err, tgerr.CodeProviderUnavailable,
			"postgres: failed to create connection pool")
	}

	// Verify connectivity before returning the client.
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, tgerr.Wrap(err, tgerr.CodeProviderUnavailable,
			"postgres: failed to connect to database")
	}

	// Extract database name for span attributes.
	dbName := cfg.Database
	if cfg.URI != "" {
		if u, parseErr := url.Parse(cfg.URI); parseErr == nil {
			dbName = strings.TrimPrefix(u.Path, "/")
		}
	}

	return &Client{
		pool:         pool,
		config:       &cfg,
		tracer:       otel.Tracer(tracerName),
		databaseName: dbName,
		table:        cfg.Table,
	}, nil
}

// NewFromPool creates a Client with a pre-existing [Pool]. This
// constructor is intended for testing with mock pools (e.g., pgxmock) and
// for advanced use cases where a custom pool implementation is needed.
//
// The cfg parameter is stored but not validated; pass nil for a zero-value
// config in tests, which uses [DefaultTable].
//
// Example (testing):
//
//	mock, _ := pgxmock.NewPool()
//	client := postgres.NewFromPool(mock, nil)
//	defer mock.Close()
func NewFromPool(pool Pool, cfg *Config) *Client {
	if cfg == nil {
		cfg = &Config{}
	}
	table := cfg.Table
	if table == "" {
		table = DefaultTable
	}
	return &Client{
		pool:         pool,
		config:       cfg,
		tracer:       otel.Tracer(tracerName),
		databaseName: cfg.Database,
		table:        table,
	}
}

// Fetch returns the secret record stored under the given record ID as a
// field-to-value map, implementing [secrets.Source].
//
// A record with no rows is classified as [tgerr.CodeProviderNotFound]
// rather than returned as an empty map, so the provider reports a missing
// record distinctly from a record with a missing field.
func (c *Client) Fetch(ctx context.Context, recordID string) (secrets.Record, error) {
	sql := fmt.Sprintf(
		"SELECT field, value FROM %s WHERE record_id = $1", c.table)

	ctx, span := c.startSpan(ctx, "Fetch", sql)

	rows, err := c.pool.Query(ctx, sql, recordID)
	if err != nil {
		finishSpan(span, err)
		return nil, wrapError(err, "postgres: record fetch failed")
	}
	defer rows.Close()

	record := make(secrets.Record)
	for rows.Next() {
		var field, value string
		if scanErr := rows.Scan(&field, &value); scanErr != nil {
			finishSpan(span, scanErr)
			return nil, wrapError(scanErr, "postgres: record row scan failed")
		}
		record[field] = value
	}
	if err := rows.Err(); err != nil {
		finishSpan(span, err)
		return nil, wrapError(err, "postgres: record row iteration failed")
	}
	finishSpan(span, nil)

	if len(record) == 0 {
		return nil, tgerr.Newf(tgerr.CodeProviderNotFound,
			"postgres: record %q does not exist", recordID)
	}
	return record, nil
}

// StoreRecord upserts every field of the record under the given record ID
// in a single transaction, replacing existing values for the same field
// names. Used by provisioning tooling and tests; the gateway itself only
// reads.
//
// Fields are written in sorted order so concurrent StoreRecord calls for
// the same record cannot deadlock on row lock ordering.
func (c *Client) StoreRecord(ctx context.Context, recordID string, record secrets.Record) error {
	if len(record) == 0 {
		return tgerr.New(tgerr.CodeValidation,
			"postgres: record must have at least one field")
	}

	sql := fmt.Sprintf(
		"INSERT INTO %s (record_id, field, value) VALUES ($1, $2, $3) "+
			"ON CONFLICT (record_id, field) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()",
		c.table)

	ctx, span := c.startSpan(ctx, "StoreRecord", sql)
	defer span.End()

	fields := make([]string, 0, len(record))
	for field := range record {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	tx, err := c.pool.Begin(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return wrapError(err, "postgres: record store failed to begin")
	}

	for _, field := range fields {
		if _, err := tx.Exec(ctx, sql, recordID, field, record[field]); err != nil {
			_ = tx.Rollback(ctx)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return wrapError(err, "postgres: record field upsert failed")
		}
	}

	if err := tx.Commit(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return wrapError(err, "postgres: record store failed to commit")
	}
	span.SetStatus(codes.Ok, "")
	return nil
}

// DeleteRecord removes every row of the record stored under the given
// record ID and reports whether any rows were removed.
func (c *Client) DeleteRecord(ctx context.Context, recordID string) (bool, error) {
	sql := fmt.Sprintf("DELETE FROM %s WHERE record_id = $1", c.table)

	ctx, span := c.startSpan(ctx, "DeleteRecord", sql)

	tag, err := c.pool.Exec(ctx, sql, recordID)
	finishSpan(span, err)
	if err != nil {
		return false, wrapError(err, "postgres: record delete failed")
	}
	return tag.RowsAffected() > 0, nil
}

// RecordExists reports whether any row exists for the given record ID.
func (c *Client) RecordExists(ctx context.Context, recordID string) (bool, error) {
	sql := fmt.Sprintf(
		"SELECT EXISTS (SELECT 1 FROM %s WHERE record_id = $1)", c.table)

	ctx, span := c.startSpan(ctx, "RecordExists", sql)
	defer span.End()

	var exists bool
	if err := c.pool.QueryRow(ctx, sql, recordID).Scan(&exists); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return false, wrapError(err, "postgres: record existence check failed")
	}
	span.SetStatus(codes.Ok, "")
	return exists, nil
}

// EnsureSchema creates the record table if it does not exist. Intended for
// provisioning tooling and integration tests; production deployments
// manage the schema through migrations.
func (c *Client) EnsureSchema(ctx context.Context) error {
	sql := fmt.Sprintf(
		"CREATE TABLE IF NOT EXISTS %s ("+
			"record_id TEXT NOT NULL, "+
			"field TEXT NOT NULL, "+
			"value TEXT NOT NULL, "+
			"updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(), "+
			"PRIMARY KEY (record_id, field))",
		c.table)

	ctx, span := c.startSpan(ctx, "EnsureSchema", sql)

	_, err := c.pool.Exec(ctx, sql)
	finishSpan(span, err)
	if err != nil {
		return wrapError(err, "postgres: schema creation failed")
	}
	return nil
}

// Health verifies that the database connection is alive by executing a
// ping. It applies [DefaultHealthTimeout] if the provided context has no
// deadline.
//
// Returns nil if the database is reachable, or a [*tgerr.Error] with code
// [tgerr.CodeProviderUnavailable] if the ping fails. This method is
// designed for use with health check endpoints and readiness probes.
func (c *Client) Health(ctx context.Context) error {
	ctx, span := c.startSpan(ctx, "Health", "SELECT 1")

	// Apply a default timeout if the caller's context has no deadline.
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, DefaultHealthTimeout)
		defer cancel()
	}

	err := c.pool.Ping(ctx)
	finishSpan(span, err)
	if err != nil {
		return tgerr.Wrap(err, tgerr.CodeProviderUnavailable,
			"postgres: health check failed")
	}
	return nil
}

// Close releases all connection pool resources. After Close is called,
// the client must not be used. Close is safe to call multiple times.
//
// Close waits for all acquired connections to be released before closing
// the pool. Ensure all in-flight queries have completed or their contexts
// have been canceled before calling Close.
func (c *Client) Close() {
	c.pool.Close()
}

// Pool returns the underlying [Pool] interface. This provides access to
// the raw connection pool for use cases not covered by the record API
// (migrations, CopyFrom, acquiring a raw connection).
//
// The returned Pool should not be closed directly; use [Client.Close]
// instead.
func (c *Client) Pool() Pool {
	return c.pool
}

// startSpan creates a new OpenTelemetry span with standard database
// semantic attributes. It follows the OpenTelemetry semantic conventions
// for database client spans.
func (c *Client) startSpan(ctx context.Context, operationName, sql string) (context.Context, trace.Span) {
	ctx, span := c.tracer.Start(ctx, "postgres."+operationName,
		trace.WithSpanKind(trace.SpanKindClient),
	)
	span.SetAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.name", c.databaseName),
		attribute.String("db.statement", truncateSQL(sql)),
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

// wrapError converts a database error to a [*tgerr.Error] with an
// appropriate error code. Cancellation by the caller is classified as
// internal; everything else, including deadline expiry, is a retryable
// provider failure that the caching provider will attempt again.
func wrapError(err error, message string) *tgerr.Error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return tgerr.Wrap(err, tgerr.CodeInternal, message)
	}
	return tgerr.Wrap(err, tgerr.CodeProviderUnavailable, message)
}
