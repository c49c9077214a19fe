package monitoring

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/citation-cli/internal/model"
	"github.com/sells-group/citation-cli/internal/store"
)

// fakeRunLister returns window runs for unfiltered queries and stale runs
// for status-filtered ones.
type fakeRunLister struct {
	window  []model.AuditRun
	stale   []model.AuditRun
	err     error
	filters []store.AuditRunFilter
}

func (f *fakeRunLister) ListAuditRuns(_ context.Context, filter store.AuditRunFilter) ([]model.AuditRun, error) {
	f.filters = append(f.filters, filter)
	if f.err != nil {
		return nil, f.err
	}
	if len(filter.Statuses) > 0 {
		return f.stale, nil
	}
	return f.window, nil
}

func TestCollector_Collect(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	lister := &fakeRunLister{
		window: []model.AuditRun{
			{ID: "a", Status: model.AuditStatusCompleted, AuditSummary: model.AuditSummary{TotalFound: 4, TotalCorrect: 1, TotalIncorrect: 2, TotalMissing: 1}},
			{ID: "b", Status: model.AuditStatusCompleted, AuditSummary: model.AuditSummary{TotalFound: 3, TotalCorrect: 2, TotalIncorrect: 1}},
			{ID: "c", Status: model.AuditStatusFailed},
			{ID: "d", Status: model.AuditStatusRunning},
			{ID: "e", Status: model.AuditStatusSubmitted},
		},
		stale: []model.AuditRun{{ID: "old-1"}, {ID: "old-2"}},
	}
	c := NewCollector(lister)
	c.now = func() time.Time { return now }

	snap, err := c.Collect(context.Background(), 24, 48)
	require.NoError(t, err)

	assert.Equal(t, 5, snap.AuditTotal)
	assert.Equal(t, 2, snap.AuditCompleted)
	assert.Equal(t, 1, snap.AuditFailed)
	assert.Equal(t, 1, snap.AuditRunning)
	assert.Equal(t, 1, snap.AuditSubmitted)
	assert.InDelta(t, 1.0/3.0, snap.AuditFailRate, 1e-9)
	assert.Equal(t, 7, snap.ListingsFound)
	assert.Equal(t, 3, snap.ListingsCorrect)
	assert.Equal(t, 3, snap.ListingsIncorrect)
	assert.Equal(t, 1, snap.ListingsMissing)
	assert.InDelta(t, 0.5, snap.NAPAccuracy, 1e-9)
	assert.Equal(t, 2, snap.StaleRuns)
	assert.Equal(t, []string{"old-1", "old-2"}, snap.StaleRunIDs)
	assert.Equal(t, now, snap.CollectedAt)

	require.Len(t, lister.filters, 2)
	assert.Equal(t, now.Add(-24*time.Hour), lister.filters[0].CreatedAfter)
	assert.Equal(t, now.Add(-48*time.Hour), lister.filters[1].CreatedBefore)
	assert.Equal(t, []model.AuditStatus{model.AuditStatusSubmitted, model.AuditStatusRunning}, lister.filters[1].Statuses)
}

func TestCollector_Collect_StaleDisabled(t *testing.T) {
	lister := &fakeRunLister{}
	snap, err := NewCollector(lister).Collect(context.Background(), 24, 0)
	require.NoError(t, err)
	assert.Equal(t, 0, snap.StaleRuns)
	assert.Len(t, lister.filters, 1)
}

func TestCollector_Collect_Empty(t *testing.T) {
	snap, err := NewCollector(&fakeRunLister{}).Collect(context.Background(), 24, 48)
	require.NoError(t, err)
	assert.Equal(t, 0, snap.AuditTotal)
	assert.Zero(t, snap.AuditFailRate)
	assert.Zero(t, snap.NAPAccuracy)
}

func TestCollector_Collect_Error(t *testing.T) {
	_, err := NewCollector(&fakeRunLister{err: errors.New("db down")}).Collect(context.Background(), 24, 48)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "monitoring: list audit runs")
}
