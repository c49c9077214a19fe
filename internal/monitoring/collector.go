package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/citation-cli/internal/model"
	"github.com/sells-group/citation-cli/internal/store"
)

// MetricsSnapshot holds a point-in-time view of audit health.
type MetricsSnapshot struct {
	// Audit runs created within the lookback window.
	AuditTotal     int     `json:"audit_total"`
	AuditSubmitted int     `json:"audit_submitted"`
	AuditRunning   int     `json:"audit_running"`
	AuditCompleted int     `json:"audit_completed"`
	AuditFailed    int     `json:"audit_failed"`
	AuditFailRate  float64 `json:"audit_fail_rate"`

	// Listing totals across completed runs in the window.
	ListingsFound     int     `json:"listings_found"`
	ListingsCorrect   int     `json:"listings_correct"`
	ListingsIncorrect int     `json:"listings_incorrect"`
	ListingsMissing   int     `json:"listings_missing"`
	NAPAccuracy       float64 `json:"nap_accuracy"`

	// Non-terminal runs older than the stale cutoff, regardless of window.
	StaleRuns   int      `json:"stale_runs"`
	StaleRunIDs []string `json:"stale_run_ids,omitempty"`

	LookbackHours   int       `json:"lookback_hours"`
	StaleAfterHours int       `json:"stale_after_hours"`
	CollectedAt     time.Time `json:"collected_at"`
}

// RunLister is the store query the collector needs.
type RunLister interface {
	ListAuditRuns(ctx context.Context, filter store.AuditRunFilter) ([]model.AuditRun, error)
}

// Collector gathers metrics from the store.
type Collector struct {
	store RunLister
	now   func() time.Time
}

// NewCollector creates a new metrics collector.
func NewCollector(st RunLister) *Collector {
	return &Collector{store: st, now: time.Now}
}

const maxScan = 10000

// Collect gathers a snapshot over the lookback window and counts runs that
// have been submitted or running for longer than staleAfterHours.
func (c *Collector) Collect(ctx context.Context, lookbackHours, staleAfterHours int) (*MetricsSnapshot, error) {
	now := c.now().UTC()
	snap := &MetricsSnapshot{
		LookbackHours:   lookbackHours,
		StaleAfterHours: staleAfterHours,
		CollectedAt:     now,
	}

	runs, err := c.store.ListAuditRuns(ctx, store.AuditRunFilter{
		CreatedAfter: now.Add(-time.Duration(lookbackHours) * time.Hour),
		Limit:        maxScan,
	})
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list audit runs")
	}

	snap.AuditTotal = len(runs)
	for _, r := range runs {
		switch r.Status {
		case model.AuditStatusSubmitted:
			snap.AuditSubmitted++
		case model.AuditStatusRunning:
			snap.AuditRunning++
		case model.AuditStatusCompleted:
			snap.AuditCompleted++
			snap.ListingsFound += r.TotalFound
			snap.ListingsCorrect += r.TotalCorrect
			snap.ListingsIncorrect += r.TotalIncorrect
			snap.ListingsMissing += r.TotalMissing
		case model.AuditStatusFailed:
			snap.AuditFailed++
		}
	}

	if finished := snap.AuditCompleted + snap.AuditFailed; finished > 0 {
		snap.AuditFailRate = float64(snap.AuditFailed) / float64(finished)
	}
	if checked := snap.ListingsCorrect + snap.ListingsIncorrect; checked > 0 {
		snap.NAPAccuracy = float64(snap.ListingsCorrect) / float64(checked)
	}

	if staleAfterHours > 0 {
		stale, err := c.store.ListAuditRuns(ctx, store.AuditRunFilter{
			Statuses:      []model.AuditStatus{model.AuditStatusSubmitted, model.AuditStatusRunning},
			CreatedBefore: now.Add(-time.Duration(staleAfterHours) * time.Hour),
			OldestFirst:   true,
			Limit:         maxScan,
		})
		if err != nil {
			return nil, eris.Wrap(err, "monitoring: list stale runs")
		}
		snap.StaleRuns = len(stale)
		for _, r := range stale {
			snap.StaleRunIDs = append(snap.StaleRunIDs, r.ID)
		}
	}

	return snap, nil
}
