package guard

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	tgerr "github.com/tollgate/tollgate-core/pkg/errors"
	"github.com/tollgate/tollgate-core/pkg/secrets"
)

const tracerName = "github.com/tollgate/tollgate-core/pkg/guard"

// ---------------------------------------------------------------------------
// Configuration
// ---------------------------------------------------------------------------

// EngineConfig holds the validation engine settings.
type EngineConfig struct {
	// Tolerance is the replay window half-width. Tokens whose timestamp
	// is further than this from the current time, in either direction,
	// are rejected. Zero accepts only the current second.
	Tolerance time.Duration `json:"tolerance" yaml:"tolerance" env:"TOLERANCE" envDefault:"300s"`
}

// Validate checks the configuration for correctness.
func (c *EngineConfig) Validate() *tgerr.Error {
	if c.Tolerance < 0 {
		return tgerr.Newf(tgerr.CodeValidation,
			"guard: tolerance must not be negative, got %s", c.Tolerance)
	}
	return nil
}

// DefaultEngineConfig returns an EngineConfig with sensible defaults.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		Tolerance: time.Duration(DefaultTolerance) * time.Second,
	}
}

// ---------------------------------------------------------------------------
// Engine
// ---------------------------------------------------------------------------

// Engine runs the full validation pipeline for one scheme at a time:
// presence, decode, secret lookup, verify, replay check, decision. An
// Engine holds no per-request state and is safe for concurrent use.
type Engine struct {
	config   EngineConfig
	provider secrets.Provider
	tracer   trace.Tracer
	now      func() time.Time
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithEngineClock overrides the engine's time source. Used in tests.
func WithEngineClock(now func() time.Time) EngineOption {
	return func(e *Engine) {
		e.now = now
	}
}

// NewEngine creates a validation engine backed by the given secret
// provider.
func NewEngine(config EngineConfig, provider secrets.Provider, opts ...EngineOption) (*Engine, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if provider == nil {
		return nil, tgerr.New(tgerr.CodeValidation, "guard: secret provider is required")
	}

	e := &Engine{
		config:   config,
		provider: provider,
		tracer:   otel.Tracer(tracerName),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// schemeKey maps a scheme onto the secret material key it verifies with.
func schemeKey(scheme Scheme) secrets.Key {
	if scheme == SchemeEncryptedEnvelope {
		return secrets.KeyAES
	}
	return secrets.KeyHMAC
}

// Evaluate runs the pipeline for one request and returns the verdict. It
// never returns an error: every failure is already folded into the
// response by [Decide]. Provider failures are logged at error level
// because they mean the gateway is rejecting traffic it cannot judge.
func (e *Engine) Evaluate(ctx context.Context, scheme Scheme, creds Credentials) EdgeResponse {
	ctx, span := startSpan(ctx, e.tracer, "guard.Evaluate",
		attribute.String("guard.scheme", scheme.String()))

	claim, err := e.validate(ctx, scheme, creds)
	if err != nil {
		if tgerr.IsServerError(err) {
			slog.ErrorContext(ctx, "token validation unavailable",
				"scheme", scheme.String(),
				"error", err)
		} else {
			slog.DebugContext(ctx, "token rejected",
				"scheme", scheme.String(),
				"code", string(tgerr.GetCode(err)))
		}
		span.SetAttributes(attribute.String("guard.deny_code", string(tgerr.GetCode(err))))
	}

	resp := Decide(scheme, claim, err)
	span.SetAttributes(attribute.Bool("guard.allow", resp.Allow))
	finishSpan(span, err)
	return resp
}

// validate runs the checks in pipeline order and stops at the first
// failure. Order matters: decoding never touches the provider, so
// malformed requests cost no secret fetch.
func (e *Engine) validate(ctx context.Context, scheme Scheme, creds Credentials) (Claim, error) {
	if !creds.present(scheme) {
		return Claim{}, tgerr.New(tgerr.CodeDecodeMissingHeader, "guard: missing required header(s)")
	}

	token, err := Decode(scheme, creds)
	if err != nil {
		return Claim{}, err
	}

	material, err := e.provider.Current(ctx, schemeKey(scheme))
	if err != nil {
		return Claim{}, err
	}

	claim, err := Verify(token, material)
	if err != nil {
		return Claim{}, err
	}

	tolerance := int64(e.config.Tolerance / time.Second)
	if err := CheckReplay(claim.Timestamp, e.now().Unix(), tolerance); err != nil {
		return Claim{}, err
	}

	return claim, nil
}

// ---------------------------------------------------------------------------
// Tracing helpers
// ---------------------------------------------------------------------------

func startSpan(ctx context.Context, tracer trace.Tracer, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

func finishSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
