// Package audit drives citation audit runs through their lifecycle:
// submit a provider report, start it, poll until complete, then reconcile
// and persist the listings.
package audit

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/citation-cli/internal/model"
	"github.com/sells-group/citation-cli/internal/provider"
	"github.com/sells-group/citation-cli/internal/reconcile"
	"github.com/sells-group/citation-cli/internal/store"
)

// Store is the persistence the orchestrator needs. store.Store satisfies it.
type Store interface {
	GetAuthoritativeRecord(ctx context.Context, locationID string) (*model.AuthoritativeRecord, error)
	CreateAuditRun(ctx context.Context, locationID, providerReportID string) (*model.AuditRun, error)
	ListAuditRuns(ctx context.Context, filter store.AuditRunFilter) ([]model.AuditRun, error)
	UpdateAuditRunStatus(ctx context.Context, id string, from, to model.AuditStatus) error
	FailAuditRun(ctx context.Context, id, reason string) error
	CompleteAuditRun(ctx context.Context, id string, listings []model.ReconciledListing, summary model.AuditSummary, completedAt time.Time) error
}

// Orchestrator runs the audit state machine against a store and a provider.
type Orchestrator struct {
	store    Store
	provider provider.ReportClient
	locker   Locker
	now      func() time.Time

	concurrency         int
	deleteAfterComplete bool
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLocker sets the per-run locker used by PollPending.
func WithLocker(l Locker) Option {
	return func(o *Orchestrator) { o.locker = l }
}

// WithConcurrency bounds how many runs PollPending processes at once.
func WithConcurrency(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.concurrency = n
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// WithDeleteAfterComplete removes the provider report once its results are
// persisted. Deletion failures are logged and ignored.
func WithDeleteAfterComplete(v bool) Option {
	return func(o *Orchestrator) { o.deleteAfterComplete = v }
}

// New creates an Orchestrator.
func New(st Store, p provider.ReportClient, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		store:       st,
		provider:    p,
		locker:      NoopLocker{},
		now:         time.Now,
		concurrency: 5,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Submit creates a provider report for the location, records a submitted
// run and starts it. A start failure still returns the run, left submitted
// for PollPending to retry.
func (o *Orchestrator) Submit(ctx context.Context, locationID string) (*model.AuditRun, error) {
	rec, err := o.store.GetAuthoritativeRecord(ctx, locationID)
	if err != nil {
		return nil, eris.Wrapf(err, "audit: load record for %s", locationID)
	}

	reportID, err := o.provider.SubmitReport(ctx, *rec)
	if err != nil {
		return nil, eris.Wrapf(err, "audit: submit report for %s", locationID)
	}

	run, err := o.store.CreateAuditRun(ctx, locationID, reportID)
	if err != nil {
		return nil, eris.Wrapf(err, "audit: create run for %s", locationID)
	}

	log := zap.L().With(zap.String("run_id", run.ID), zap.String("location_id", locationID))
	log.Info("audit run submitted", zap.String("report_id", reportID))

	if err := o.Start(ctx, run); err != nil {
		log.Warn("start failed, run left submitted", zap.Error(err))
		return run, err
	}
	return run, nil
}

// Start asks the provider to begin scanning and moves the run to running.
func (o *Orchestrator) Start(ctx context.Context, run *model.AuditRun) error {
	if !run.Status.CanTransition(model.AuditStatusRunning) {
		return eris.Wrapf(ErrInvalidRunState, "audit: start run %s in status %s", run.ID, run.Status)
	}

	if err := o.provider.StartReport(ctx, run.ProviderReportID); err != nil {
		return eris.Wrapf(err, "audit: start report %s", run.ProviderReportID)
	}
	if err := o.store.UpdateAuditRunStatus(ctx, run.ID, model.AuditStatusSubmitted, model.AuditStatusRunning); err != nil {
		return eris.Wrapf(err, "audit: mark run %s running", run.ID)
	}

	run.Status = model.AuditStatusRunning
	zap.L().Info("audit run started", zap.String("run_id", run.ID))
	return nil
}

// PollAndReconcile checks the provider report and, once it is complete,
// reconciles every listing and completes the run. It returns false with no
// side effects while the report is still in progress. Any fetch or
// persistence error leaves the run running.
func (o *Orchestrator) PollAndReconcile(ctx context.Context, run *model.AuditRun) (bool, error) {
	if run.Status != model.AuditStatusRunning {
		return false, eris.Wrapf(ErrInvalidRunState, "audit: poll run %s in status %s", run.ID, run.Status)
	}
	log := zap.L().With(zap.String("run_id", run.ID), zap.String("report_id", run.ProviderReportID))

	status, err := o.provider.GetReportStatus(ctx, run.ProviderReportID)
	if err != nil {
		return false, eris.Wrap(err, "audit: get report status")
	}
	if !IsComplete(status) {
		log.Debug("report not complete", zap.String("status", status))
		return false, nil
	}

	listings, err := o.provider.GetReportListings(ctx, run.ProviderReportID)
	if err != nil {
		return false, eris.Wrap(err, "audit: get report listings")
	}
	if err := validateListings(listings); err != nil {
		return false, err
	}

	rec, err := o.store.GetAuthoritativeRecord(ctx, run.LocationID)
	if err != nil {
		return false, eris.Wrapf(err, "audit: load record for %s", run.LocationID)
	}

	now := o.now().UTC()
	reconciled, summary := reconcile.ReconcileAll(listings, *rec, now)
	for i := range reconciled {
		reconciled[i].AuditRunID = run.ID
	}

	if err := o.store.CompleteAuditRun(ctx, run.ID, reconciled, summary, now); err != nil {
		return false, eris.Wrapf(err, "audit: complete run %s", run.ID)
	}

	run.Status = model.AuditStatusCompleted
	run.AuditSummary = summary
	run.CompletedAt = &now
	log.Info("audit run completed",
		zap.Int("total_found", summary.TotalFound),
		zap.Int("total_correct", summary.TotalCorrect),
		zap.Int("total_incorrect", summary.TotalIncorrect),
		zap.Int("total_missing", summary.TotalMissing),
	)

	if o.deleteAfterComplete {
		if err := o.provider.DeleteReport(ctx, run.ProviderReportID); err != nil {
			log.Warn("delete provider report failed", zap.Error(err))
		}
	}
	return true, nil
}

// Fail marks a submitted or running run as failed.
func (o *Orchestrator) Fail(ctx context.Context, run *model.AuditRun, reason string) error {
	if !run.Status.CanTransition(model.AuditStatusFailed) {
		return eris.Wrapf(ErrInvalidRunState, "audit: fail run %s in status %s", run.ID, run.Status)
	}
	if err := o.store.FailAuditRun(ctx, run.ID, reason); err != nil {
		return eris.Wrapf(err, "audit: fail run %s", run.ID)
	}
	run.Status = model.AuditStatusFailed
	run.Error = reason
	zap.L().Warn("audit run failed", zap.String("run_id", run.ID), zap.String("reason", reason))
	return nil
}

// IsComplete reports whether a provider status means the report is done.
// Only "complete" and "completed" count, case-insensitively.
func IsComplete(status string) bool {
	s := strings.ToLower(strings.TrimSpace(status))
	return s == "complete" || s == "completed"
}

func validateListings(listings []model.ProviderListing) error {
	for i, l := range listings {
		if strings.TrimSpace(l.Source) == "" {
			return eris.Wrapf(ErrMalformedListings, "audit: listing %d has no source", i)
		}
		if !l.ProviderStatus.Valid() {
			return eris.Wrapf(ErrMalformedListings, "audit: listing %d (%s) has status %q", i, l.Source, l.ProviderStatus)
		}
	}
	return nil
}

// isDataError reports errors that will not clear until the data changes.
func isDataError(err error) bool {
	return errors.Is(err, store.ErrNotFound) || errors.Is(err, ErrMalformedListings)
}
