package gwerrors

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHTTPStatus_MapsEachKind(t *testing.T) {
	cases := []struct {
		kind Kind
		want int
	}{
		{KindValidationError, http.StatusBadRequest},
		{KindCancellation, http.StatusRequestTimeout},
		{KindTimeout, http.StatusGatewayTimeout},
		{KindNetworkError, http.StatusBadGateway},
		{KindTlsError, http.StatusBadGateway},
		{KindProtocolError, http.StatusBadGateway},
		{KindUpstream5xx, http.StatusBadGateway},
		{KindCacheError, http.StatusInternalServerError},
		{KindBrokerError, http.StatusInternalServerError},
	}
	for _, c := range cases {
		err := &GatewayError{Kind: c.kind, Message: "boom"}
		assert.Equal(t, c.want, err.HTTPStatus(), "kind %s", c.kind)
	}
}

func TestHTTPStatus_ExplicitStatusWins(t *testing.T) {
	err := &GatewayError{Kind: KindUpstream5xx, Status: http.StatusServiceUnavailable}
	assert.Equal(t, http.StatusServiceUnavailable, err.HTTPStatus())
}

func TestError_IncludesCauseWhenPresent(t *testing.T) {
	cause := errors.New("dial tcp: connection refused")
	err := New(KindNetworkError, "execute", "upstream dial failed", cause)
	assert.Contains(t, err.Error(), "upstream dial failed")
	assert.Contains(t, err.Error(), "connection refused")
	assert.Same(t, cause, errors.Unwrap(err))
}

func TestError_OmitsCauseWhenAbsent(t *testing.T) {
	err := Validation("missing field foo")
	assert.Equal(t, "validation_error: missing field foo", err.Error())
}

func TestToEnvelope_CarriesKindAndStatus(t *testing.T) {
	err := Timeout("preprocess")
	env := err.ToEnvelope()
	assert.Equal(t, "timed out at stage \"preprocess\"", env.Error.Message)
	assert.Equal(t, "timeout", env.Error.Type)
	assert.Equal(t, http.StatusGatewayTimeout, env.Error.Code)
}

func TestIsTimeout_TrueOnlyForTimeoutKind(t *testing.T) {
	assert.True(t, IsTimeout(Timeout("execute")))
	assert.False(t, IsTimeout(Canceled("execute")))
	assert.False(t, IsTimeout(errors.New("plain error")))
}

func TestIsCanceled_TrueOnlyForCancellationKind(t *testing.T) {
	assert.True(t, IsCanceled(Canceled("execute")))
	assert.False(t, IsCanceled(Timeout("execute")))
	assert.False(t, IsCanceled(errors.New("plain error")))
}

// wrappedError exercises asGatewayError's Unwrap traversal, since most
// GatewayErrors reach callers wrapped by fmt.Errorf("%w", ...) elsewhere.
type wrappedError struct {
	inner error
}

func (w *wrappedError) Error() string { return "wrapped: " + w.inner.Error() }
func (w *wrappedError) Unwrap() error { return w.inner }

func TestIsTimeout_SeesThroughWrapping(t *testing.T) {
	wrapped := &wrappedError{inner: Timeout("execute")}
	assert.True(t, IsTimeout(wrapped))
}

func TestKindFromString_RejectsUnknownKind(t *testing.T) {
	_, err := KindFromString("not_a_real_kind")
	assert.Error(t, err)

	kind, err := KindFromString("timeout")
	assert.NoError(t, err)
	assert.Equal(t, KindTimeout, kind)
}
