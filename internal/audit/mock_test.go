package audit

import (
	"context"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/sells-group/citation-cli/internal/model"
	"github.com/sells-group/citation-cli/internal/store"
)

type mockStore struct {
	mock.Mock
}

func (m *mockStore) GetAuthoritativeRecord(ctx context.Context, locationID string) (*model.AuthoritativeRecord, error) {
	args := m.Called(ctx, locationID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.AuthoritativeRecord), args.Error(1)
}

func (m *mockStore) CreateAuditRun(ctx context.Context, locationID, providerReportID string) (*model.AuditRun, error) {
	args := m.Called(ctx, locationID, providerReportID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.AuditRun), args.Error(1)
}

func (m *mockStore) ListAuditRuns(ctx context.Context, filter store.AuditRunFilter) ([]model.AuditRun, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.AuditRun), args.Error(1)
}

func (m *mockStore) UpdateAuditRunStatus(ctx context.Context, id string, from, to model.AuditStatus) error {
	args := m.Called(ctx, id, from, to)
	return args.Error(0)
}

func (m *mockStore) FailAuditRun(ctx context.Context, id, reason string) error {
	args := m.Called(ctx, id, reason)
	return args.Error(0)
}

func (m *mockStore) CompleteAuditRun(ctx context.Context, id string, listings []model.ReconciledListing, summary model.AuditSummary, completedAt time.Time) error {
	args := m.Called(ctx, id, listings, summary, completedAt)
	return args.Error(0)
}

type mockProvider struct {
	mock.Mock
}

func (m *mockProvider) SubmitReport(ctx context.Context, rec model.AuthoritativeRecord) (string, error) {
	args := m.Called(ctx, rec)
	return args.String(0), args.Error(1)
}

func (m *mockProvider) StartReport(ctx context.Context, reportID string) error {
	args := m.Called(ctx, reportID)
	return args.Error(0)
}

func (m *mockProvider) GetReportStatus(ctx context.Context, reportID string) (string, error) {
	args := m.Called(ctx, reportID)
	return args.String(0), args.Error(1)
}

func (m *mockProvider) GetReportListings(ctx context.Context, reportID string) ([]model.ProviderListing, error) {
	args := m.Called(ctx, reportID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.ProviderListing), args.Error(1)
}

func (m *mockProvider) DeleteReport(ctx context.Context, reportID string) error {
	args := m.Called(ctx, reportID)
	return args.Error(0)
}

// memLocker is an in-process Locker that refuses keys already held.
type memLocker struct {
	mu   sync.Mutex
	held map[string]bool
}

func newMemLocker(preHeld ...string) *memLocker {
	l := &memLocker{held: map[string]bool{}}
	for _, k := range preHeld {
		l.held[k] = true
	}
	return l
}

func (l *memLocker) Obtain(_ context.Context, key string) (func(context.Context) error, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[key] {
		return nil, ErrLocked
	}
	l.held[key] = true
	return func(context.Context) error {
		l.mu.Lock()
		defer l.mu.Unlock()
		delete(l.held, key)
		return nil
	}, nil
}
