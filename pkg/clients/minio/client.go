// Package minio provides a MinIO (S3-compatible) secret record source with
// OpenTelemetry tracing, structured error handling, and configuration
// management for services running on the Tollgate edge platform.
//
// # Record Layout
//
// Each secret record is stored as one JSON object in a single bucket
// (default "tollgate-records"), keyed by the record ID under a configurable
// prefix:
//
//	s3://tollgate-records/records/edge-1.json
//	{"secretKey": "my-secret-key-2024", "aesKey": "0123..."}
//
// [Client.Fetch] downloads and decodes the object into a field-to-value
// map. [Client.EnsureBucket] creates the bucket for provisioning tooling
// and integration tests.
//
// # Connection Management
//
// The MinIO client uses stateless HTTP connections. Unlike database clients,
// there is no connection pool to manage. The client is safe for concurrent
// use by multiple goroutines.
//
// # Configuration
//
// Create a client using [NewClient] with a [Config]:
//
//	cfg := minio.DefaultConfig()
//	cfg.AccessKey = "my-access-key"
//	cfg.SecretKey = minio.Secret("my-secret-key")
//	client, err := minio.NewClient(ctx, *cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
// For testing, use [NewFromStore] to inject a mock store:
//
//	mock := &mockObjectStore{}
//	client := minio.NewFromStore(mock, nil)
//
// # OpenTelemetry Tracing
//
// All record operations automatically create OpenTelemetry spans with
// standard database semantic attributes (db.system, db.name, db.statement).
// Operation descriptions are truncated to 100 characters in spans to
// prevent sensitive data leakage.
//
// # Kubernetes Integration
//
// On the Tollgate edge platform, MinIO is accessed via a Kubernetes
// Service at minio.tollgate-system.svc.cluster.local:9000. Credentials are
// injected by the External Secrets Operator from Vault. The service mesh
// provides mTLS at the network layer.
package minio

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	tgerr "github.com/tollgate/tollgate-core/pkg/errors"
	"github.com/tollgate/tollgate-core/pkg/secrets"
)

// tracerName is the OpenTelemetry instrumentation scope name for this package.
// It follows the Go module path convention for OTel instrumentation libraries.
const tracerName = "github.com/tollgate/tollgate-core/pkg/clients/minio"

// ObjectStore defines the interface for the MinIO operations the record
// source uses. This interface is satisfied by [*minio.Client] and by mock
// implementations for unit testing. It enables dependency injection via
// [NewFromStore] for testing without a real MinIO server.
//
// All methods follow the minio-go v7 API signatures exactly, ensuring that
// [*minio.Client] satisfies this interface without adaptation.
type ObjectStore interface {
	// GetObject retrieves an object from a bucket. The returned *minio.Object
	// implements io.ReadCloser and must be closed by the caller. Server-side
	// errors (including missing keys) surface on the first read, not here.
	GetObject(ctx context.Context, bucketName, objectName string, opts minio.GetObjectOptions) (*minio.Object, error)

	// PutObject uploads an object to a bucket.
	PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)

	// RemoveObject deletes an object from a bucket.
	RemoveObject(ctx context.Context, bucketName, objectName string, opts minio.RemoveObjectOptions) error

	// StatObject retrieves metadata about an object without downloading it.
	StatObject(ctx context.Context, bucketName, objectName string, opts minio.StatObjectOptions) (minio.ObjectInfo, error)

	// BucketExists checks whether a bucket exists on the server.
	BucketExists(ctx context.Context, bucketName string) (bool, error)

	// MakeBucket creates a new bucket with the given name and options.
	MakeBucket(ctx context.Context, bucketName string, opts minio.MakeBucketOptions) error
}

// Compile-time interface compliance checks. These ensure that
// *minio.Client satisfies ObjectStore, and that *Client is a record source
// usable by the secret provider cache.
var (
	_ ObjectStore    = (*minio.Client)(nil)
	_ secrets.Source = (*Client)(nil)
)

// Client is a MinIO-backed secret record source with OpenTelemetry tracing
// and structured error handling. It wraps an [ObjectStore] (typically
// [*minio.Client]) and maps record operations onto S3 object operations,
// one JSON object per record.
//
// A Client is safe for concurrent use by multiple goroutines. Create one
// Client per MinIO endpoint and share it across the application.
//
// Create a Client with [NewClient] for production use, or [NewFromStore]
// for testing with mock stores.
type Client struct {
	store  ObjectStore
	config *Config
	tracer trace.Tracer
	bucket string
}

// NewClient creates a new MinIO record source. It validates the
// configuration, creates the underlying minio.Client, and verifies
// connectivity by calling BucketExists on a health-check probe bucket.
//
// The caller should call [Client.Close] when the client is no longer needed
// (though Close is a no-op for MinIO since the client is stateless HTTP).
//
// Error codes returned:
//   - [tgerr.CodeValidation]: invalid configuration
//   - [tgerr.CodeInternalConfiguration]: client creation failure (malformed
//     endpoint or credentials)
//   - [tgerr.CodeProviderUnavailable]: cannot connect to MinIO
//
// Example:
//
//	cfg := minio.DefaultConfig()
//	cfg.AccessKey = os.Getenv("MINIO_ACCESS_KEY")
//	cfg.SecretKey = minio.Secret(os.Getenv("MINIO_SECRET_KEY"))
//	client, err := minio.NewClient(ctx, *cfg)
//	if err != nil {
//	    return fmt.Errorf("connecting to minio: %w", err)
//	}
//	defer client.Close()
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, tgerr.Wrap(err, tgerr.CodeValidation,
			"minio: invalid configuration")
	}

	minioClient, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey.Value(), ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, tgerr.Wrap(err, tgerr.CodeInternalConfiguration,
			"minio: failed to create client")
	}

	// Verify connectivity by probing with BucketExists. The bucket does
	// not need to exist; a successful API call (even returning false)
	// confirms that the MinIO server is reachable and credentials are valid.
	healthBucket := cfg.HealthBucket
	if healthBucket == "" {
		healthBucket = "health-check-probe"
	}
	if _, err := minioClient.BucketExists(ctx, healthBucket); err != nil {
		return nil, tgerr.Wrap(err, tgerr.CodeProviderUnavailable,
			"minio: failed to connect to server")
	}

	return &Client{
		store:  minioClient,
		config: &cfg,
		tracer: otel.Tracer(tracerName),
		bucket: cfg.Bucket,
	}, nil
}

// NewFromStore creates a Client with a pre-existing [ObjectStore]. This
// constructor is intended for testing with mock stores and for advanced
// use cases where a custom store implementation is needed.
//
// The cfg parameter is stored but not validated; pass nil for a zero-value
// config in tests. A zero-value config uses [DefaultBucket] with no object
// prefix.
//
// Example (testing):
//
//	mock := &mockObjectStore{}
//	client := minio.NewFromStore(mock, nil)
func NewFromStore(store ObjectStore, cfg *Config) *Client {
	if cfg == nil {
		cfg = &Config{}
	}
	bucket := cfg.Bucket
	if bucket == "" {
		bucket = DefaultBucket
	}
	return &Client{
		store:  store,
		config: cfg,
		tracer: otel.Tracer(tracerName),
		bucket: bucket,
	}
}

// Fetch returns the secret record stored under the given record ID, with
// OpenTelemetry tracing. It implements [secrets.Source].
//
// The record object is read through a 1 MiB limit; an object truncated by
// the limit fails JSON decoding and is reported as malformed.
//
// Error codes returned:
//   - [tgerr.CodeProviderNotFound]: no record object exists under the ID
//   - [tgerr.CodeProviderMalformed]: the object is not a flat JSON object
//     of string fields
//   - [tgerr.CodeProviderUnavailable]: MinIO is unreachable or the
//     request failed
func (c *Client) Fetch(ctx context.Context, recordID string) (secrets.Record, error) {
	key := c.objectKey(recordID)
	ctx, span := c.startSpan(ctx, "Fetch", fmt.Sprintf("GET %s/%s", c.bucket, key))

	obj, err := c.store.GetObject(ctx, c.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		finishSpan(span, err)
		return nil, wrapError(err, "minio: record fetch failed")
	}
	defer func() { _ = obj.Close() }()

	// GetObject is lazy: a missing key surfaces here, on the first read.
	data, err := io.ReadAll(io.LimitReader(obj, maxRecordBytes))
	if err != nil {
		finishSpan(span, err)
		if isNoSuchKey(err) {
			return nil, tgerr.Newf(tgerr.CodeProviderNotFound,
				"minio: record %q does not exist", recordID)
		}
		return nil, wrapError(err, "minio: record read failed")
	}

	record, err := parseRecord(recordID, data)
	finishSpan(span, err)
	if err != nil {
		return nil, err
	}
	return record, nil
}

// StoreRecord writes a secret record as a JSON object under the given
// record ID, replacing any existing object, with OpenTelemetry tracing.
// Used by provisioning tooling and tests; the gateway itself only reads.
//
// Example:
//
//	err := client.StoreRecord(ctx, "edge-1", secrets.Record{
//	    "secretKey": "my-secret-key-2024",
//	})
func (c *Client) StoreRecord(ctx context.Context, recordID string, record secrets.Record) error {
	if len(record) == 0 {
		return tgerr.New(tgerr.CodeValidation, "minio: record must have at least one field")
	}

	data, err := json.Marshal(record)
	if err != nil {
		return tgerr.Wrap(err, tgerr.CodeInternal, "minio: record encode failed")
	}

	key := c.objectKey(recordID)
	ctx, span := c.startSpan(ctx, "StoreRecord", fmt.Sprintf("PUT %s/%s", c.bucket, key))
	_, err = c.store.PutObject(ctx, c.bucket, key, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: "application/json"})
	finishSpan(span, err)
	if err != nil {
		return wrapError(err, "minio: record store failed")
	}
	return nil
}

// DeleteRecord removes the record object stored under the given record ID
// and reports whether an object was removed, with OpenTelemetry tracing.
//
// S3 deletes are idempotent and do not report whether the object existed,
// so existence is checked with a stat first. The check and the delete are
// not atomic; under concurrent deletes of the same record, more than one
// caller may observe true.
func (c *Client) DeleteRecord(ctx context.Context, recordID string) (bool, error) {
	key := c.objectKey(recordID)
	ctx, span := c.startSpan(ctx, "DeleteRecord", fmt.Sprintf("DELETE %s/%s", c.bucket, key))

	if _, err := c.store.StatObject(ctx, c.bucket, key, minio.StatObjectOptions{}); err != nil {
		if isNoSuchKey(err) {
			finishSpan(span, nil)
			return false, nil
		}
		finishSpan(span, err)
		return false, wrapError(err, "minio: record stat failed")
	}

	err := c.store.RemoveObject(ctx, c.bucket, key, minio.RemoveObjectOptions{})
	finishSpan(span, err)
	if err != nil {
		return false, wrapError(err, "minio: record delete failed")
	}
	return true, nil
}

// RecordExists reports whether a record object exists under the given
// record ID, with OpenTelemetry tracing.
//
// Example:
//
//	exists, err := client.RecordExists(ctx, "edge-1")
func (c *Client) RecordExists(ctx context.Context, recordID string) (bool, error) {
	key := c.objectKey(recordID)
	ctx, span := c.startSpan(ctx, "RecordExists", fmt.Sprintf("STAT %s/%s", c.bucket, key))

	_, err := c.store.StatObject(ctx, c.bucket, key, minio.StatObjectOptions{})
	if err != nil {
		if isNoSuchKey(err) {
			finishSpan(span, nil)
			return false, nil
		}
		finishSpan(span, err)
		return false, wrapError(err, "minio: record existence check failed")
	}
	finishSpan(span, nil)
	return true, nil
}

// EnsureBucket creates the record bucket if it does not exist. Intended
// for provisioning tooling and integration tests; production deployments
// manage buckets through infrastructure tooling.
//
// A concurrent EnsureBucket racing on creation is tolerated: the S3
// "BucketAlreadyOwnedByYou" response is treated as success.
func (c *Client) EnsureBucket(ctx context.Context) error {
	ctx, span := c.startSpan(ctx, "EnsureBucket", fmt.Sprintf("MAKE %s", c.bucket))

	exists, err := c.store.BucketExists(ctx, c.bucket)
	if err != nil {
		finishSpan(span, err)
		return wrapError(err, "minio: bucket existence check failed")
	}
	if !exists {
		err := c.store.MakeBucket(ctx, c.bucket, minio.MakeBucketOptions{Region: c.config.Region})
		if err != nil && minio.ToErrorResponse(err).Code != "BucketAlreadyOwnedByYou" {
			finishSpan(span, err)
			return wrapError(err, "minio: bucket creation failed")
		}
	}
	finishSpan(span, nil)
	return nil
}

// Health verifies that the MinIO server is reachable by calling BucketExists.
// The bucket does not need to exist; a successful API call confirms
// connectivity. It applies [DefaultHealthTimeout] if the provided context
// has no deadline.
//
// Returns nil if MinIO is reachable, or a [*tgerr.Error] with code
// [tgerr.CodeProviderUnavailable] if the probe fails. This method is
// designed for use with health check endpoints and readiness probes.
//
// Example:
//
//	if err := client.Health(ctx); err != nil {
//	    log.Warn("minio health check failed", "error", err)
//	}
func (c *Client) Health(ctx context.Context) error {
	ctx, span := c.startSpan(ctx, "Health", "BucketExists health-check-probe")

	// Apply a default timeout if the caller's context has no deadline.
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, DefaultHealthTimeout)
		defer cancel()
	}

	healthBucket := c.config.HealthBucket
	if healthBucket == "" {
		healthBucket = "health-check-probe"
	}

	_, err := c.store.BucketExists(ctx, healthBucket)
	finishSpan(span, err)
	if err != nil {
		return tgerr.Wrap(err, tgerr.CodeProviderUnavailable,
			"minio: health check failed")
	}
	return nil
}

// Close is a no-op for the MinIO client. Unlike database clients with
// connection pools, the MinIO client uses stateless HTTP connections that
// do not require explicit cleanup. This method is provided for interface
// consistency with the other record source packages.
//
// Close is safe to call multiple times.
func (c *Client) Close() {
	// No-op: MinIO client uses stateless HTTP connections.
	// There is no connection pool or persistent state to release.
}

// Store returns the underlying [ObjectStore] interface. This provides access
// to the raw MinIO client for use cases not covered by the record API
// (listing, presigned URLs, bucket administration).
func (c *Client) Store() ObjectStore {
	return c.store
}

// objectKey joins the configured object prefix with a record ID. Record
// objects carry a .json suffix so they are recognizable in bucket listings
// and external tooling.
func (c *Client) objectKey(recordID string) string {
	return c.config.ObjectPrefix + recordID + ".json"
}

// parseRecord decodes a record object body into a field-to-value map.
// Record objects must be flat JSON objects with string values; anything
// else (arrays, nested objects, non-string values, truncated bodies) is
// classified as [tgerr.CodeProviderMalformed].
func parseRecord(recordID string, data []byte) (secrets.Record, error) {
	var record secrets.Record
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, tgerr.Wrapf(err, tgerr.CodeProviderMalformed,
			"minio: record %q is not a flat JSON object of strings", recordID)
	}
	// JSON "null" decodes into a nil map without error.
	if len(record) == 0 {
		return nil, tgerr.Newf(tgerr.CodeProviderMalformed,
			"minio: record %q has no fields", recordID)
	}
	return record, nil
}

// isNoSuchKey reports whether err is the S3 "NoSuchKey" error response,
// returned when an object does not exist.
func isNoSuchKey(err error) bool {
	return minio.ToErrorResponse(err).Code == "NoSuchKey"
}

// startSpan creates a new OpenTelemetry span with standard database semantic
// attributes. It follows the OpenTelemetry semantic conventions for database
// client spans: https://opentelemetry.io/docs/specs/semconv/database/
func (c *Client) startSpan(ctx context.Context, operationName, statement string) (context.Context, trace.Span) {
	ctx, span := c.tracer.Start(ctx, "minio."+operationName,
		trace.WithSpanKind(trace.SpanKindClient),
	)
	span.SetAttributes(
		attribute.String("db.system", "minio"),
		attribute.String("db.name", c.bucket),
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

// wrapError converts a storage error to a platform [*tgerr.Error] with an
// appropriate error code. Request failures and timeouts are classified as
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
