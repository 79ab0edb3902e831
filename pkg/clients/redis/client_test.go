package redis

import (
	"context"
	"errors"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	tgerr "github.com/tollgate/tollgate-core/pkg/errors"
	"github.com/tollgate/tollgate-core/pkg/secrets"
)

// ===========================================================================
// Mock Implementation
// ===========================================================================

// mockCmdable implements the Cmdable interface using testify/mock for unit
// testing. Each method delegates to mock.Called() and returns the appropriate
// go-redis command type.
type mockCmdable struct {
	mock.Mock
}

func (m *mockCmdable) HGetAll(ctx context.Context, key string) *redis.MapStringStringCmd {
	args := m.Called(ctx, key)
	return args.Get(0).(*redis.MapStringStringCmd)
}

func (m *mockCmdable) HSet(ctx context.Context, key string, values ...interface{}) *redis.IntCmd {
	args := m.Called(ctx, key, values)
	return args.Get(0).(*redis.IntCmd)
}

func (m *mockCmdable) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	args := m.Called(ctx, keys)
	return args.Get(0).(*redis.IntCmd)
}

func (m *mockCmdable) Exists(ctx context.Context, keys ...string) *redis.IntCmd {
	args := m.Called(ctx, keys)
	return args.Get(0).(*redis.IntCmd)
}

func (m *mockCmdable) Ping(ctx context.Context) *redis.StatusCmd {
	args := m.Called(ctx)
	return args.Get(0).(*redis.StatusCmd)
}

func (m *mockCmdable) Close() error {
	args := m.Called()
	return args.Error(0)
}

// ===========================================================================
// Command Result Helpers
// ===========================================================================

// newStatusCmd creates a *redis.StatusCmd with the given value or error.
func newStatusCmd(val string, err error) *redis.StatusCmd {
	cmd := redis.NewStatusCmd(context.Background())
	if err != nil {
		cmd.SetErr(err)
	} else {
		cmd.SetVal(val)
	}
	return cmd
}

// newIntCmd creates a *redis.IntCmd with the given value or error.
func newIntCmd(val int64, err error) *redis.IntCmd {
	cmd := redis.NewIntCmd(context.Background())
	if err != nil {
		cmd.SetErr(err)
	} else {
		cmd.SetVal(val)
	}
	return cmd
}

// newMapStringStringCmd creates a *redis.MapStringStringCmd with the given
// value or error.
func newMapStringStringCmd(val map[string]string, err error) *redis.MapStringStringCmd {
	cmd := redis.NewMapStringStringCmd(context.Background())
	if err != nil {
		cmd.SetErr(err)
	} else {
		cmd.SetVal(val)
	}
	return cmd
}

// ===========================================================================
// NewFromClient Tests
// ===========================================================================

// TestNewFromClient_WithConfig verifies that NewFromClient correctly
// initializes the client with the provided cmdable and config.
func TestNewFromClient_WithConfig(t *testing.T) {
	t.Parallel()
	m := new(mockCmdable)

	cfg := &Config{DB: 3, KeyPrefix: "custom:"}
	client := NewFromClient(m, cfg)

	assert.NotNil(t, client.cmdable)
	assert.Equal(t, cfg, client.config)
	assert.Equal(t, 3, client.dbIndex)
	assert.Equal(t, "custom:edge-1", client.recordKey("edge-1"))
	assert.NotNil(t, client.tracer)
}

// TestNewFromClient_NilConfig verifies that NewFromClient handles a nil
// config gracefully by initializing a zero-value Config with the default
// key prefix.
func TestNewFromClient_NilConfig(t *testing.T) {
	t.Parallel()
	m := new(mockCmdable)

	client := NewFromClient(m, nil)

	require.NotNil(t, client.config)
	assert.Equal(t, 0, client.dbIndex)
	assert.Equal(t, DefaultKeyPrefix+"edge-1", client.recordKey("edge-1"))
}

// ===========================================================================
// Fetch Tests
// ===========================================================================

// TestClient_Fetch_Success verifies that Fetch returns the hash fields as
// a record and queries the prefixed key.
func TestClient_Fetch_Success(t *testing.T) {
	t.Parallel()
	m := new(mockCmdable)
	fields := map[string]string{
		"secretKey": "my-secret-key-2024",
		"aesKey":    "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef",
	}
	m.On("HGetAll", mock.Anything, "tollgate:record:edge-1").
		Return(newMapStringStringCmd(fields, nil))

	client := NewFromClient(m, nil)
	record, err := client.Fetch(context.Background(), "edge-1")
	require.NoError(t, err)
	assert.Equal(t, secrets.Record(fields), record)

	m.AssertExpectations(t)
}

// TestClient_Fetch_CustomPrefix verifies that Fetch honors a configured
// key prefix.
func TestClient_Fetch_CustomPrefix(t *testing.T) {
	t.Parallel()
	m := new(mockCmdable)
	m.On("HGetAll", mock.Anything, "edge:secrets:edge-1").
		Return(newMapStringStringCmd(map[string]string{"secretKey": "s"}, nil))

	client := NewFromClient(m, &Config{KeyPrefix: "edge:secrets:"})
	_, err := client.Fetch(context.Background(), "edge-1")
	require.NoError(t, err)

	m.AssertExpectations(t)
}

// TestClient_Fetch_NotFound verifies that an empty hash (missing key) is
// classified as CodeProviderNotFound rather than an empty record.
func TestClient_Fetch_NotFound(t *testing.T) {
	t.Parallel()
	m := new(mockCmdable)
	m.On("HGetAll", mock.Anything, "tollgate:record:missing").
		Return(newMapStringStringCmd(map[string]string{}, nil))

	client := NewFromClient(m, nil)
	_, err := client.Fetch(context.Background(), "missing")
	require.Error(t, err)

	var tgErr *tgerr.Error
	require.True(t, errors.As(err, &tgErr), "Fetch() error type = %T, want *tgerr.Error", err)
	assert.Equal(t, tgerr.CodeProviderNotFound, tgErr.Code)
	assert.True(t, tgerr.IsProvider(err))

	m.AssertExpectations(t)
}

// TestClient_Fetch_CommandError verifies that a Redis command failure is
// classified as CodeProviderUnavailable.
func TestClient_Fetch_CommandError(t *testing.T) {
	t.Parallel()
	m := new(mockCmdable)
	m.On("HGetAll", mock.Anything, "tollgate:record:edge-1").
		Return(newMapStringStringCmd(nil, errors.New("LOADING Redis is loading the dataset in memory")))

	client := NewFromClient(m, nil)
	_, err := client.Fetch(context.Background(), "edge-1")
	require.Error(t, err)

	var tgErr *tgerr.Error
	require.True(t, errors.As(err, &tgErr), "Fetch() error type = %T, want *tgerr.Error", err)
	assert.Equal(t, tgerr.CodeProviderUnavailable, tgErr.Code)
	assert.True(t, tgerr.IsRetryable(err))

	m.AssertExpectations(t)
}

// ===========================================================================
// StoreRecord Tests
// ===========================================================================

// TestClient_StoreRecord_Success verifies that StoreRecord flattens the
// record into HSET field-value pairs under the prefixed key.
func TestClient_StoreRecord_Success(t *testing.T) {
	t.Parallel()
	m := new(mockCmdable)
	m.On("HSet", mock.Anything, "tollgate:record:edge-1", []interface{}{"secretKey", "my-secret-key-2024"}).
		Return(newIntCmd(1, nil))

	client := NewFromClient(m, nil)
	err := client.StoreRecord(context.Background(), "edge-1",
		secrets.Record{"secretKey": "my-secret-key-2024"})
	require.NoError(t, err)

	m.AssertExpectations(t)
}

// TestClient_StoreRecord_MultipleFields verifies that every record field
// is included in the HSET pairs. Pair order is not asserted because map
// iteration order is randomized.
func TestClient_StoreRecord_MultipleFields(t *testing.T) {
	t.Parallel()
	m := new(mockCmdable)
	m.On("HSet", mock.Anything, "tollgate:record:edge-1", mock.MatchedBy(func(pairs []interface{}) bool {
		return len(pairs) == 4
	})).Return(newIntCmd(2, nil))

	client := NewFromClient(m, nil)
	err := client.StoreRecord(context.Background(), "edge-1",
		secrets.Record{"secretKey": "s", "aesKey": "a"})
	require.NoError(t, err)

	m.AssertExpectations(t)
}

// TestClient_StoreRecord_EmptyRecord verifies that an empty record is
// rejected before any command is issued.
func TestClient_StoreRecord_EmptyRecord(t *testing.T) {
	t.Parallel()
	m := new(mockCmdable)

	client := NewFromClient(m, nil)
	err := client.StoreRecord(context.Background(), "edge-1", secrets.Record{})
	require.Error(t, err)
	assert.True(t, tgerr.IsValidation(err))

	m.AssertExpectations(t)
}

// TestClient_StoreRecord_CommandError verifies that an HSET failure is
// classified as CodeProviderUnavailable.
func TestClient_StoreRecord_CommandError(t *testing.T) {
	t.Parallel()
	m := new(mockCmdable)
	m.On("HSet", mock.Anything, "tollgate:record:edge-1", mock.Anything).
		Return(newIntCmd(0, errors.New("READONLY You can't write against a read only replica")))

	client := NewFromClient(m, nil)
	err := client.StoreRecord(context.Background(), "edge-1",
		secrets.Record{"secretKey": "s"})
	require.Error(t, err)

	var tgErr *tgerr.Error
	require.True(t, errors.As(err, &tgErr))
	assert.Equal(t, tgerr.CodeProviderUnavailable, tgErr.Code)

	m.AssertExpectations(t)
}

// ===========================================================================
// DeleteRecord Tests
// ===========================================================================

// TestClient_DeleteRecord_Removed verifies that DeleteRecord reports true
// when a record was removed.
func TestClient_DeleteRecord_Removed(t *testing.T) {
	t.Parallel()
	m := new(mockCmdable)
	m.On("Del", mock.Anything, []string{"tollgate:record:edge-1"}).
		Return(newIntCmd(1, nil))

	client := NewFromClient(m, nil)
	removed, err := client.DeleteRecord(context.Background(), "edge-1")
	require.NoError(t, err)
	assert.True(t, removed)

	m.AssertExpectations(t)
}

// TestClient_DeleteRecord_Missing verifies that DeleteRecord reports false
// for a record that did not exist.
func TestClient_DeleteRecord_Missing(t *testing.T) {
	t.Parallel()
	m := new(mockCmdable)
	m.On("Del", mock.Anything, []string{"tollgate:record:missing"}).
		Return(newIntCmd(0, nil))

	client := NewFromClient(m, nil)
	removed, err := client.DeleteRecord(context.Background(), "missing")
	require.NoError(t, err)
	assert.False(t, removed)

	m.AssertExpectations(t)
}

// ===========================================================================
// RecordExists Tests
// ===========================================================================

// TestClient_RecordExists verifies the boolean mapping of the EXISTS count.
func TestClient_RecordExists(t *testing.T) {
	t.Parallel()
	m := new(mockCmdable)
	m.On("Exists", mock.Anything, []string{"tollgate:record:edge-1"}).
		Return(newIntCmd(1, nil))
	m.On("Exists", mock.Anything, []string{"tollgate:record:missing"}).
		Return(newIntCmd(0, nil))

	client := NewFromClient(m, nil)

	exists, err := client.RecordExists(context.Background(), "edge-1")
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = client.RecordExists(context.Background(), "missing")
	require.NoError(t, err)
	assert.False(t, exists)

	m.AssertExpectations(t)
}

// ===========================================================================
// Health Tests
// ===========================================================================

// TestClient_Health_Success verifies that Health returns nil when the
// Redis ping succeeds.
func TestClient_Health_Success(t *testing.T) {
	t.Parallel()
	m := new(mockCmdable)
	m.On("Ping", mock.Anything).
		Return(newStatusCmd("PONG", nil))

	client := NewFromClient(m, nil)
	require.NoError(t, client.Health(context.Background()))

	m.AssertExpectations(t)
}

// TestClient_Health_Failure verifies that Health returns a *tgerr.Error
// with CodeProviderUnavailable when the Redis ping fails.
func TestClient_Health_Failure(t *testing.T) {
	t.Parallel()
	m := new(mockCmdable)
	m.On("Ping", mock.Anything).
		Return(newStatusCmd("", errors.New("connection refused")))

	client := NewFromClient(m, nil)
	healthErr := client.Health(context.Background())
	require.Error(t, healthErr)

	var tgErr *tgerr.Error
	require.True(t, errors.As(healthErr, &tgErr), "Health() error type = %T, want *tgerr.Error", healthErr)
	assert.Equal(t, tgerr.CodeProviderUnavailable, tgErr.Code)

	m.AssertExpectations(t)
}

// ===========================================================================
// Close Tests
// ===========================================================================

// TestClient_Close verifies that Close delegates to the underlying
// cmdable's Close method.
func TestClient_Close(t *testing.T) {
	t.Parallel()
	m := new(mockCmdable)
	m.On("Close").Return(nil)

	client := NewFromClient(m, nil)
	err := client.Close()
	require.NoError(t, err)

	m.AssertExpectations(t)
}

// ===========================================================================
// Client Accessor Tests
// ===========================================================================

// TestClient_ClientAccessor verifies that Client() returns the same
// cmdable instance that was injected via NewFromClient.
func TestClient_ClientAccessor(t *testing.T) {
	t.Parallel()
	m := new(mockCmdable)

	client := NewFromClient(m, nil)
	cmdable := client.Client()
	assert.NotNil(t, cmdable)
}

// ===========================================================================
// wrapError Tests
// ===========================================================================

// TestWrapError_Nil verifies that wrapError returns nil when given a nil
// error, preventing unnecessary error wrapping.
func TestWrapError_Nil(t *testing.T) {
	t.Parallel()
	result := wrapError(nil, "should not wrap")
	assert.Nil(t, result)
}

// TestWrapError_DeadlineExceeded verifies that wrapError classifies
// context.DeadlineExceeded as a retryable provider failure.
func TestWrapError_DeadlineExceeded(t *testing.T) {
	t.Parallel()
	result := wrapError(context.DeadlineExceeded, "command timed out")
	require.NotNil(t, result)
	assert.Equal(t, tgerr.CodeProviderUnavailable, result.Code)
	assert.ErrorIs(t, result, context.DeadlineExceeded)
}

// TestWrapError_ContextCanceled verifies that wrapError classifies
// context.Canceled as CodeInternal (not retryable), because cancellation
// means the caller abandoned the operation intentionally.
func TestWrapError_ContextCanceled(t *testing.T) {
	t.Parallel()
	result := wrapError(context.Canceled, "command canceled")
	require.NotNil(t, result)
	assert.Equal(t, tgerr.CodeInternal, result.Code)
	assert.ErrorIs(t, result, context.Canceled)
}

// TestWrapError_GenericError verifies that wrapError classifies generic
// Redis errors as CodeProviderUnavailable.
func TestWrapError_GenericError(t *testing.T) {
	t.Parallel()
	cause := errors.New("WRONGTYPE Operation against a key holding the wrong kind of value")
	result := wrapError(cause, "command failed")
	require.NotNil(t, result)
	assert.Equal(t, tgerr.CodeProviderUnavailable, result.Code)
	assert.ErrorIs(t, result, cause)
}

// ===========================================================================
// Error Classification Integration Tests
// ===========================================================================

// TestErrorClassification_FetchUnavailable verifies the full error
// classification pipeline: a failed fetch is retryable, is a server
// error, and is never a deny.
func TestErrorClassification_FetchUnavailable(t *testing.T) {
	t.Parallel()
	m := new(mockCmdable)
	m.On("HGetAll", mock.Anything, "tollgate:record:edge-1").
		Return(newMapStringStringCmd(nil, context.DeadlineExceeded))

	client := NewFromClient(m, nil)
	_, err := client.Fetch(context.Background(), "edge-1")
	require.Error(t, err)

	assert.True(t, tgerr.IsRetryable(err), "IsRetryable() = false, want true for fetch failure")
	assert.True(t, tgerr.IsServerError(err), "IsServerError() = false, want true for fetch failure")
	assert.False(t, tgerr.IsDeny(err), "IsDeny() = true, want false for provider failure")
}

// TestErrorClassification_NotFound verifies that a missing record is a
// provider error, which the decision layer maps to a configuration
// response rather than a deny.
func TestErrorClassification_NotFound(t *testing.T) {
	t.Parallel()
	m := new(mockCmdable)
	m.On("HGetAll", mock.Anything, "tollgate:record:missing").
		Return(newMapStringStringCmd(map[string]string{}, nil))

	client := NewFromClient(m, nil)
	_, err := client.Fetch(context.Background(), "missing")
	require.Error(t, err)

	assert.True(t, tgerr.IsProvider(err))
	assert.False(t, tgerr.IsDeny(err))
}
