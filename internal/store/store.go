// Package store persists locations, audit runs and reconciled listings.
package store

import (
	"context"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/rotisserie/eris"

	"github.com/sells-group/citation-cli/internal/model"
)

var (
	// ErrNotFound is returned when the requested entity does not exist.
	ErrNotFound = eris.New("store: not found")
	// ErrStatusConflict is returned when a compare-and-set status update finds
	// the run in a different status than expected.
	ErrStatusConflict = eris.New("store: audit run status conflict")
)

// AuditRunFilter specifies criteria for listing audit runs.
type AuditRunFilter struct {
	Statuses   []model.AuditStatus `json:"statuses,omitempty"`
	LocationID string              `json:"location_id,omitempty"`
	// CreatedBefore keeps runs created strictly before the given time.
	CreatedBefore time.Time `json:"created_before,omitempty"`
	CreatedAfter  time.Time `json:"created_after,omitempty"`
	OldestFirst   bool      `json:"oldest_first,omitempty"`
	Limit         int       `json:"limit,omitempty"`
	Offset        int       `json:"offset,omitempty"`
}

// Store defines the persistence interface for citation audits.
type Store interface {
	// Locations
	UpsertLocation(ctx context.Context, loc model.Location) error
	GetLocation(ctx context.Context, id string) (*model.Location, error)
	GetAuthoritativeRecord(ctx context.Context, locationID string) (*model.AuthoritativeRecord, error)

	// Audit runs
	CreateAuditRun(ctx context.Context, locationID, providerReportID string) (*model.AuditRun, error)
	GetAuditRun(ctx context.Context, id string) (*model.AuditRun, error)
	ListAuditRuns(ctx context.Context, filter AuditRunFilter) ([]model.AuditRun, error)
	// UpdateAuditRunStatus moves a run from one status to another only if it
	// is currently in from.
	UpdateAuditRunStatus(ctx context.Context, id string, from, to model.AuditStatus) error
	// FailAuditRun marks a non-terminal run failed with a reason.
	FailAuditRun(ctx context.Context, id, reason string) error
	// CompleteAuditRun upserts the listings and marks a running run completed
	// with the summary, all in one transaction.
	CompleteAuditRun(ctx context.Context, id string, listings []model.ReconciledListing, summary model.AuditSummary, completedAt time.Time) error

	// Reconciled listings
	ListReconciledListings(ctx context.Context, locationID string) ([]model.ReconciledListing, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

const defaultListLimit = 100

// lastPerDirectory keeps the last listing for each directory, preserving the
// order in which directories first appear.
func lastPerDirectory(listings []model.ReconciledListing) []model.ReconciledListing {
	idx := make(map[string]int, len(listings))
	out := make([]model.ReconciledListing, 0, len(listings))
	for _, l := range listings {
		if i, ok := idx[l.Directory]; ok {
			out[i] = l
			continue
		}
		idx[l.Directory] = len(out)
		out = append(out, l)
	}
	return out
}

func nullableString(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

var auditRunColumns = []string{
	"id", "location_id", "provider_report_id", "status",
	"total_found", "total_correct", "total_incorrect", "total_missing",
	"error", "completed_at", "created_at", "updated_at",
}

var listingColumns = []string{
	"location_id", "audit_run_id", "directory", "listing_url", "provider_status",
	"domain_authority", "site_type",
	"expected_name", "expected_address", "expected_phone",
	"found_name", "found_address", "found_phone",
	"name_match", "address_match", "phone_match", "nap_correct",
	"status", "recommendation", "last_checked_at",
}

// auditRunQuery builds the filtered SELECT shared by both backends.
func auditRunQuery(ph squirrel.PlaceholderFormat, f AuditRunFilter) (string, []any, error) {
	q := squirrel.Select(auditRunColumns...).From("audit_runs").PlaceholderFormat(ph)

	if len(f.Statuses) > 0 {
		statuses := make([]string, len(f.Statuses))
		for i, s := range f.Statuses {
			statuses[i] = string(s)
		}
		q = q.Where(squirrel.Eq{"status": statuses})
	}
	if f.LocationID != "" {
		q = q.Where(squirrel.Eq{"location_id": f.LocationID})
	}
	if !f.CreatedBefore.IsZero() {
		q = q.Where(squirrel.Lt{"created_at": f.CreatedBefore.UTC()})
	}
	if !f.CreatedAfter.IsZero() {
		q = q.Where(squirrel.GtOrEq{"created_at": f.CreatedAfter.UTC()})
	}

	if f.OldestFirst {
		q = q.OrderBy("created_at ASC", "id ASC")
	} else {
		q = q.OrderBy("created_at DESC", "id ASC")
	}

	limit := f.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	q = q.Limit(uint64(limit))
	if f.Offset > 0 {
		q = q.Offset(uint64(f.Offset))
	}
	return q.ToSql()
}

func listingRow(l model.ReconciledListing) []any {
	return []any{
		l.LocationID, l.AuditRunID, l.Directory, l.ListingURL, string(l.ProviderStatus),
		l.DomainAuthority, l.SiteType,
		l.ExpectedName, l.ExpectedAddress, l.ExpectedPhone,
		l.FoundName, l.FoundAddress, l.FoundPhone,
		l.NameMatch, l.AddressMatch, l.PhoneMatch, l.NAPCorrect,
		string(l.Status), nullableString(l.Recommendation), l.LastCheckedAt.UTC(),
	}
}

type scannable interface {
	Scan(dest ...any) error
}

func scanListing(row scannable) (model.ReconciledListing, error) {
	var l model.ReconciledListing
	var rec *string
	err := row.Scan(
		&l.LocationID, &l.AuditRunID, &l.Directory, &l.ListingURL, &l.ProviderStatus,
		&l.DomainAuthority, &l.SiteType,
		&l.ExpectedName, &l.ExpectedAddress, &l.ExpectedPhone,
		&l.FoundName, &l.FoundAddress, &l.FoundPhone,
		&l.NameMatch, &l.AddressMatch, &l.PhoneMatch, &l.NAPCorrect,
		&l.Status, &rec, &l.LastCheckedAt,
	)
	l.Recommendation = rec
	return l, err
}

func scanAuditRun(row scannable) (*model.AuditRun, error) {
	var r model.AuditRun
	var completedAt *time.Time
	err := row.Scan(
		&r.ID, &r.LocationID, &r.ProviderReportID, &r.Status,
		&r.TotalFound, &r.TotalCorrect, &r.TotalIncorrect, &r.TotalMissing,
		&r.Error, &completedAt, &r.CreatedAt, &r.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	r.CompletedAt = completedAt
	return &r, nil
}
