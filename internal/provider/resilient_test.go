package provider

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/citation-cli/internal/resilience"
	"github.com/sells-group/citation-cli/pkg/brightlocal"
)

func fastRetry() resilience.RetryConfig {
	return resilience.RetryConfig{
		MaxAttempts:    3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     2 * time.Millisecond,
		Multiplier:     2,
	}
}

func TestResilient_RetriesTransientStatus(t *testing.T) {
	inner := new(mockReportClient)
	unavailable := &brightlocal.APIError{StatusCode: http.StatusServiceUnavailable, Message: "down"}
	inner.On("GetReportStatus", mock.Anything, "682").Return("", unavailable).Once()
	inner.On("GetReportStatus", mock.Anything, "682").Return("complete", nil).Once()

	r := NewResilient(inner, fastRetry(), nil)
	status, err := r.GetReportStatus(context.Background(), "682")

	require.NoError(t, err)
	assert.Equal(t, "complete", status)
	inner.AssertNumberOfCalls(t, "GetReportStatus", 2)
}

func TestResilient_ExhaustedRetriesAreTransient(t *testing.T) {
	inner := new(mockReportClient)
	inner.On("GetReportListings", mock.Anything, "682").
		Return(nil, &brightlocal.APIError{StatusCode: http.StatusTooManyRequests})

	r := NewResilient(inner, fastRetry(), nil)
	_, err := r.GetReportListings(context.Background(), "682")

	require.Error(t, err)
	assert.True(t, resilience.IsTransient(err))

	var te *resilience.TransientError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, http.StatusTooManyRequests, te.StatusCode)
	inner.AssertNumberOfCalls(t, "GetReportListings", 3)
}

func TestResilient_PermanentErrorNotRetried(t *testing.T) {
	inner := new(mockReportClient)
	inner.On("StartReport", mock.Anything, "682").
		Return(&brightlocal.APIError{StatusCode: http.StatusBadRequest, Message: "bad id"})

	r := NewResilient(inner, fastRetry(), nil)
	err := r.StartReport(context.Background(), "682")

	require.Error(t, err)
	assert.False(t, resilience.IsTransient(err))
	inner.AssertNumberOfCalls(t, "StartReport", 1)
}

func TestResilient_CircuitOpensAndIsNotRetried(t *testing.T) {
	inner := new(mockReportClient)
	inner.On("DeleteReport", mock.Anything, "682").
		Return(&brightlocal.APIError{StatusCode: http.StatusBadGateway})

	breaker := resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
		FailureThreshold: 2,
		ResetTimeout:     time.Hour,
	})
	r := NewResilient(inner, fastRetry(), breaker)

	err := r.DeleteReport(context.Background(), "682")
	require.Error(t, err)
	assert.True(t, errors.Is(err, resilience.ErrCircuitOpen))
	assert.True(t, resilience.IsTransient(err))
	// two real calls trip the breaker, the third attempt is rejected
	inner.AssertNumberOfCalls(t, "DeleteReport", 2)
	assert.Equal(t, resilience.CircuitOpen, breaker.State())
}
