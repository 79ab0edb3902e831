package guard

import (
	"context"
	"encoding/json"
	"net/http"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// UnaryServerInterceptor returns a gRPC unary interceptor that validates
// every request under the given scheme. Rejected requests fail with a
// status error; allowed requests proceed with the claim in the context.
func UnaryServerInterceptor(engine *Engine, scheme Scheme) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		ctx, err := evaluateGRPC(ctx, engine, scheme)
		if err != nil {
			return nil, err
		}
		return handler(ctx, req)
	}
}

// StreamServerInterceptor returns a gRPC stream interceptor that
// validates the stream-opening request under the given scheme.
func StreamServerInterceptor(engine *Engine, scheme Scheme) grpc.StreamServerInterceptor {
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		ctx, err := evaluateGRPC(ss.Context(), engine, scheme)
		if err != nil {
			return err
		}
		return handler(srv, &wrappedServerStream{ServerStream: ss, ctx: ctx})
	}
}

// evaluateGRPC runs the engine against incoming metadata and maps the
// verdict onto gRPC conventions.
func evaluateGRPC(ctx context.Context, engine *Engine, scheme Scheme) (context.Context, error) {
	md, _ := metadata.FromIncomingContext(ctx)
	resp := engine.Evaluate(ctx, scheme, CredentialsFromMetadata(md))
	if !resp.Allow {
		return nil, status.Error(grpcCode(resp.Status), rejectMessage(resp))
	}
	return ContextWithClaim(ctx, resp.Claim), nil
}

// grpcCode maps a reject HTTP status onto a gRPC code.
func grpcCode(httpStatus int) codes.Code {
	if httpStatus == http.StatusForbidden {
		return codes.PermissionDenied
	}
	return codes.Internal
}

// rejectMessage extracts the error message from a reject body.
func rejectMessage(resp EdgeResponse) string {
	var body map[string]string
	if err := json.Unmarshal(resp.Body, &body); err == nil && body["error"] != "" {
		return body["error"]
	}
	return "request rejected"
}

// wrappedServerStream overrides the stream context with one carrying the
// validated claim.
type wrappedServerStream struct {
	grpc.ServerStream
	ctx context.Context
}

// Context returns the claim-carrying context.
func (w *wrappedServerStream) Context() context.Context {
	return w.ctx
}
