package provider

import (
	"context"
	"errors"

	"github.com/sells-group/citation-cli/internal/model"
	"github.com/sells-group/citation-cli/internal/resilience"
	"github.com/sells-group/citation-cli/pkg/brightlocal"
)

// Resilient decorates a ReportClient with retries and a circuit breaker.
// Retryable HTTP statuses surface as *resilience.TransientError.
type Resilient struct {
	inner   ReportClient
	retry   resilience.RetryConfig
	breaker *resilience.CircuitBreaker
}

// NewResilient wraps inner. A nil breaker disables circuit breaking.
func NewResilient(inner ReportClient, retry resilience.RetryConfig, breaker *resilience.CircuitBreaker) *Resilient {
	return &Resilient{inner: inner, retry: retry, breaker: breaker}
}

func (r *Resilient) SubmitReport(ctx context.Context, rec model.AuthoritativeRecord) (string, error) {
	return call(ctx, r, "submit_report", func(ctx context.Context) (string, error) {
		return r.inner.SubmitReport(ctx, rec)
	})
}

func (r *Resilient) StartReport(ctx context.Context, reportID string) error {
	_, err := call(ctx, r, "start_report", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, r.inner.StartReport(ctx, reportID)
	})
	return err
}

func (r *Resilient) GetReportStatus(ctx context.Context, reportID string) (string, error) {
	return call(ctx, r, "get_report_status", func(ctx context.Context) (string, error) {
		return r.inner.GetReportStatus(ctx, reportID)
	})
}

func (r *Resilient) GetReportListings(ctx context.Context, reportID string) ([]model.ProviderListing, error) {
	return call(ctx, r, "get_report_listings", func(ctx context.Context) ([]model.ProviderListing, error) {
		return r.inner.GetReportListings(ctx, reportID)
	})
}

func (r *Resilient) DeleteReport(ctx context.Context, reportID string) error {
	_, err := call(ctx, r, "delete_report", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, r.inner.DeleteReport(ctx, reportID)
	})
	return err
}

func call[T any](ctx context.Context, r *Resilient, op string, fn func(context.Context) (T, error)) (T, error) {
	cfg := r.retry
	if cfg.OnRetry == nil {
		cfg.OnRetry = resilience.RetryLogger("brightlocal", op)
	}
	if cfg.ShouldRetry == nil {
		cfg.ShouldRetry = func(err error) bool {
			return !errors.Is(err, resilience.ErrCircuitOpen) && resilience.IsTransient(err)
		}
	}

	attempt := func(ctx context.Context) (T, error) {
		v, err := fn(ctx)
		return v, classify(err)
	}

	return resilience.DoVal(ctx, cfg, func(ctx context.Context) (T, error) {
		if r.breaker == nil {
			return attempt(ctx)
		}
		return resilience.ExecuteVal(ctx, r.breaker, attempt)
	})
}

// classify marks provider HTTP errors with retryable statuses as transient.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var apiErr *brightlocal.APIError
	if errors.As(err, &apiErr) && resilience.IsTransientHTTPStatus(apiErr.StatusCode) {
		return resilience.NewTransientError(err, apiErr.StatusCode)
	}
	return err
}
