package secrets

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	tgerr "github.com/tollgate/tollgate-core/pkg/errors"
)

// tracerName is the OpenTelemetry instrumentation scope name for secret
// provider spans.
const tracerName = "github.com/tollgate/tollgate-core/pkg/secrets"

// ---------------------------------------------------------------------------
// CachedConfig — configuration for the caching provider
// ---------------------------------------------------------------------------

// CachedConfig holds the configuration for [Cached].
type CachedConfig struct {
	// RecordID identifies the record fetched from the source. Every key
	// served by the provider is a field of this one record.
	RecordID string `json:"record_id" yaml:"record_id" env:"RECORD_ID"`

	// TTL is how long fetched material is served before the next Current
	// call triggers a refetch. A zero TTL disables caching entirely
	// (every call fetches). Must be non-negative. Defaults to 5 minutes.
	TTL time.Duration `json:"ttl" yaml:"ttl" env:"TTL" envDefault:"5m"`

	// FetchTimeout bounds each remote fetch with a context deadline.
	// Zero disables the bound. Must be non-negative. Defaults to
	// 10 seconds.
	FetchTimeout time.Duration `json:"fetch_timeout" yaml:"fetch_timeout" env:"FETCH_TIMEOUT" envDefault:"10s"`

	// Fields overrides how record fields decode into material. Keys
	// absent from the map fall back to [DefaultFieldSpecs].
	Fields map[Key]FieldSpec `json:"-" yaml:"-"`
}

// Validate checks the configuration for logical correctness and returns a
// *[tgerr.Error] with code [tgerr.CodeValidation] if any field is invalid.
func (c *CachedConfig) Validate() *tgerr.Error {
	if c.RecordID == "" {
		return tgerr.New(tgerr.CodeValidation, "secrets: record ID must not be empty")
	}
	if c.TTL < 0 {
		return tgerr.New(tgerr.CodeValidation, "secrets: TTL must be non-negative")
	}
	if c.FetchTimeout < 0 {
		return tgerr.New(tgerr.CodeValidation, "secrets: fetch timeout must be non-negative")
	}
	return nil
}

// DefaultCachedConfig returns a CachedConfig with the standard five-minute
// TTL and ten-second fetch timeout. RecordID must still be set by the
// caller.
func DefaultCachedConfig() CachedConfig {
	return CachedConfig{
		TTL:          5 * time.Minute,
		FetchTimeout: 10 * time.Second,
	}
}

// ---------------------------------------------------------------------------
// Cached — TTL-caching provider over a remote Source
// ---------------------------------------------------------------------------

// cacheEntry stores decoded material and the time it stops being served.
// Entries are swapped whole under the write lock so readers never observe
// a torn material/expiry pair.
type cacheEntry struct {
	material  Material
	expiresAt time.Time
}

// Cached is a Provider that fronts a remote [Source] with a per-key TTL
// cache. The first Current call for a key fetches the configured record,
// decodes the key's field, and caches the material; later calls within the
// TTL are served from memory without I/O.
//
// Concurrent callers that observe an expired entry each perform their own
// fetch; fetches are not coalesced, and the last write wins. Failed
// fetches are never cached, so the next call retries.
//
// Cached is safe for concurrent use by multiple goroutines.
type Cached struct {
	config CachedConfig
	source Source
	tracer trace.Tracer
	now    func() time.Time

	mu      sync.RWMutex
	entries map[Key]*cacheEntry
}

// Compile-time assertion that Cached implements Provider.
var _ Provider = (*Cached)(nil)

// CachedOption customizes a Cached provider.
type CachedOption func(*Cached)

// WithClock replaces the time source used for expiry decisions. Tests use
// this to drive the cache with a fake clock.
func WithClock(now func() time.Time) CachedOption {
	return func(c *Cached) { c.now = now }
}

// NewCached creates a Cached provider over the given source. The
// configuration is validated before use; an error is returned if the
// configuration is invalid or the source is nil.
func NewCached(cfg CachedConfig, source Source, opts ...CachedOption) (*Cached, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if source == nil {
		return nil, tgerr.New(tgerr.CodeValidation, "secrets: source must not be nil")
	}

	c := &Cached{
		config:  cfg,
		source:  source,
		tracer:  otel.Tracer(tracerName),
		now:     time.Now,
		entries: make(map[Key]*cacheEntry),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Current returns the material for key, serving from cache while the
// entry is fresh and refetching from the source otherwise.
//
// Fetch failures surface as PROVIDER_001 and are never cached. Malformed
// records (missing field, bad hex, wrong decoded length) surface as
// PROVIDER_002 and are not cached either; the backend operator fixes the
// record and the next call picks it up.
func (c *Cached) Current(ctx context.Context, key Key) (Material, error) {
	ctx, span := startSpan(ctx, c.tracer, "secrets.Current")
	defer span.End()
	span.SetAttributes(attribute.String("secrets.key", string(key)))

	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()
	if ok && c.now().Before(entry.expiresAt) {
		span.SetAttributes(attribute.Bool("secrets.cache_hit", true))
		return entry.material, nil
	}
	span.SetAttributes(attribute.Bool("secrets.cache_hit", false))

	// Fetch outside the lock. Concurrent expired observers each fetch;
	// the last write wins.
	material, err := c.fetch(ctx, key)
	if err != nil {
		finishSpan(span, err)
		return nil, err
	}

	c.mu.Lock()
	c.entries[key] = &cacheEntry{
		material:  material,
		expiresAt: c.now().Add(c.config.TTL),
	}
	c.mu.Unlock()

	return material, nil
}

// fetch performs one bounded source fetch and decodes the key's field.
func (c *Cached) fetch(ctx context.Context, key Key) (Material, error) {
	if c.config.FetchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.config.FetchTimeout)
		defer cancel()
	}

	record, err := c.source.Fetch(ctx, c.config.RecordID)
	if err != nil {
		if tgErr, ok := tgerr.AsError(err); ok {
			return nil, tgErr
		}
		return nil, tgerr.Wrapf(err, tgerr.CodeProviderUnavailable,
			"secrets: fetch of record %q failed", c.config.RecordID)
	}

	raw, ok := record[string(key)]
	if !ok || raw == "" {
		return nil, tgerr.Newf(tgerr.CodeProviderMalformed,
			"secrets: record %q has no field %q", c.config.RecordID, key)
	}

	return decodeField(key, raw, c.fieldSpec(key))
}

// fieldSpec resolves the decode spec for key: the config override first,
// then the package defaults, then raw with no length constraint.
func (c *Cached) fieldSpec(key Key) FieldSpec {
	if spec, ok := c.config.Fields[key]; ok {
		return spec
	}
	if spec, ok := DefaultFieldSpecs()[key]; ok {
		return spec
	}
	return FieldSpec{Encoding: EncodingRaw}
}

// ---------------------------------------------------------------------------
// Span helpers
// ---------------------------------------------------------------------------

// startSpan creates a new OpenTelemetry span with the given name. Returns
// the updated context and span.
func startSpan(ctx context.Context, tracer trace.Tracer, name string) (context.Context, trace.Span) {
	return tracer.Start(ctx, name)
}

// finishSpan records an error on the span if err is non-nil and sets the
// span status to Error.
func finishSpan(span trace.Span, err error) {
	if span == nil || err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
