package guard

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

type fakeServerStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (s *fakeServerStream) Context() context.Context { return s.ctx }

func guardTestUnaryInfo() *grpc.UnaryServerInfo {
	return &grpc.UnaryServerInfo{FullMethod: "/edge.v1.Gateway/Forward"}
}

func guardTestStreamInfo() *grpc.StreamServerInfo {
	return &grpc.StreamServerInfo{FullMethod: "/edge.v1.Gateway/Watch"}
}

func TestUnaryServerInterceptor_Allows(t *testing.T) {
	t.Parallel()

	engine := guardTestEngine(t, guardTestProvider(t))
	interceptor := UnaryServerInterceptor(engine, SchemeEncryptedEnvelope)

	creds := guardTestEnvelopeCreds(t, guardTestAESMaterial(t), NewPayload(guardTestNow, "d1", ""))
	ctx := metadata.NewIncomingContext(context.Background(),
		metadata.Pairs(HeaderAuthToken, creds.AuthToken))

	var handlerClaim Claim
	var handlerOK bool
	resp, err := interceptor(ctx, "request", guardTestUnaryInfo(),
		func(ctx context.Context, req any) (any, error) {
			handlerClaim, handlerOK = ClaimFromContext(ctx)
			return "response", nil
		})

	require.NoError(t, err)
	assert.Equal(t, "response", resp)
	require.True(t, handlerOK)
	assert.Equal(t, "d1", handlerClaim.Device)
	assert.Equal(t, int64(guardTestNow), handlerClaim.Timestamp)
}

func TestUnaryServerInterceptor_RejectsInvalidToken(t *testing.T) {
	t.Parallel()

	engine := guardTestEngine(t, guardTestProvider(t))
	interceptor := UnaryServerInterceptor(engine, SchemeEncryptedEnvelope)

	ctx := metadata.NewIncomingContext(context.Background(),
		metadata.Pairs(HeaderAuthToken, "a:b"))

	called := false
	_, err := interceptor(ctx, "request", guardTestUnaryInfo(),
		func(ctx context.Context, req any) (any, error) {
			called = true
			return nil, nil
		})

	require.Error(t, err)
	assert.False(t, called)
	st, ok := status.FromError(err)
	require.True(t, ok)
	assert.Equal(t, codes.PermissionDenied, st.Code())
	assert.Equal(t, "Invalid authentication token", st.Message())
}

func TestUnaryServerInterceptor_RejectsMissingMetadata(t *testing.T) {
	t.Parallel()

	engine := guardTestEngine(t, guardTestProvider(t))
	interceptor := UnaryServerInterceptor(engine, SchemeSignedTimestamp)

	_, err := interceptor(context.Background(), "request", guardTestUnaryInfo(),
		func(ctx context.Context, req any) (any, error) {
			return nil, nil
		})

	require.Error(t, err)
	st, ok := status.FromError(err)
	require.True(t, ok)
	assert.Equal(t, codes.PermissionDenied, st.Code())
	assert.Equal(t, "Missing required header(s)", st.Message())
}

func TestUnaryServerInterceptor_ProviderFailureIsInternal(t *testing.T) {
	t.Parallel()

	engine := guardTestEngine(t, &failingProvider{err: assert.AnError})
	interceptor := UnaryServerInterceptor(engine, SchemeSignedTimestamp)

	creds := guardTestSignedCreds(guardTestHMACMaterial(), "1737312000")
	ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs(
		HeaderBotToken, creds.BotToken,
		HeaderBotSignature, creds.BotSignature,
	))

	_, err := interceptor(ctx, "request", guardTestUnaryInfo(),
		func(ctx context.Context, req any) (any, error) {
			return nil, nil
		})

	require.Error(t, err)
	st, ok := status.FromError(err)
	require.True(t, ok)
	assert.Equal(t, codes.Internal, st.Code())
	assert.Equal(t, "Configuration error", st.Message())
}

func TestStreamServerInterceptor_Allows(t *testing.T) {
	t.Parallel()

	engine := guardTestEngine(t, guardTestProvider(t))
	interceptor := StreamServerInterceptor(engine, SchemeSignedTimestamp)

	creds := guardTestSignedCreds(guardTestHMACMaterial(), "1737312000")
	ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs(
		HeaderBotToken, creds.BotToken,
		HeaderBotSignature, creds.BotSignature,
	))

	var streamClaim Claim
	var streamOK bool
	err := interceptor("service", &fakeServerStream{ctx: ctx}, guardTestStreamInfo(),
		func(srv any, stream grpc.ServerStream) error {
			streamClaim, streamOK = ClaimFromContext(stream.Context())
			return nil
		})

	require.NoError(t, err)
	require.True(t, streamOK)
	assert.Equal(t, SchemeSignedTimestamp, streamClaim.Scheme)
	assert.Equal(t, int64(1737312000), streamClaim.Timestamp)
}

func TestStreamServerInterceptor_Rejects(t *testing.T) {
	t.Parallel()

	engine := guardTestEngine(t, guardTestProvider(t))
	interceptor := StreamServerInterceptor(engine, SchemeSignedTimestamp)

	ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs(
		HeaderBotToken, "1737312000",
		HeaderBotSignature, "invalid-signature-12345",
	))

	called := false
	err := interceptor("service", &fakeServerStream{ctx: ctx}, guardTestStreamInfo(),
		func(srv any, stream grpc.ServerStream) error {
			called = true
			return nil
		})

	require.Error(t, err)
	assert.False(t, called)
	st, ok := status.FromError(err)
	require.True(t, ok)
	assert.Equal(t, codes.PermissionDenied, st.Code())
	assert.Equal(t, "Invalid token", st.Message())
}

func TestGRPCCode(t *testing.T) {
	t.Parallel()

	assert.Equal(t, codes.PermissionDenied, grpcCode(403))
	assert.Equal(t, codes.Internal, grpcCode(500))
}

func TestRejectMessage_Fallback(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "request rejected", rejectMessage(EdgeResponse{Body: []byte("not-json")}))
	assert.Equal(t, "request rejected", rejectMessage(EdgeResponse{Body: []byte(`{"other":"x"}`)}))
}
