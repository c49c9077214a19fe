package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/citation-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// connParams apply to every pooled connection, not just the first.
const connParams = "_time_format=sqlite&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	if strings.Contains(dsn, "?") {
		dsn += "&" + connParams
	} else {
		dsn += "?" + connParams
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db, now: time.Now}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS locations (
	id            TEXT PRIMARY KEY,
	name          TEXT NOT NULL,
	phone         TEXT NOT NULL DEFAULT '',
	address_line1 TEXT NOT NULL DEFAULT '',
	city          TEXT NOT NULL DEFAULT '',
	state         TEXT NOT NULL DEFAULT '',
	postal_code   TEXT NOT NULL DEFAULT '',
	created_at    DATETIME NOT NULL,
	updated_at    DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS audit_runs (
	id                 TEXT PRIMARY KEY,
	location_id        TEXT NOT NULL REFERENCES locations(id),
	provider_report_id TEXT NOT NULL,
	status             TEXT NOT NULL DEFAULT 'submitted',
	total_found        INTEGER NOT NULL DEFAULT 0,
	total_correct      INTEGER NOT NULL DEFAULT 0,
	total_incorrect    INTEGER NOT NULL DEFAULT 0,
	total_missing      INTEGER NOT NULL DEFAULT 0,
	error              TEXT NOT NULL DEFAULT '',
	completed_at       DATETIME,
	created_at         DATETIME NOT NULL,
	updated_at         DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS reconciled_listings (
	location_id      TEXT NOT NULL REFERENCES locations(id),
	audit_run_id     TEXT NOT NULL REFERENCES audit_runs(id),
	directory        TEXT NOT NULL,
	listing_url      TEXT NOT NULL DEFAULT '',
	provider_status  TEXT NOT NULL,
	domain_authority INTEGER NOT NULL DEFAULT 0,
	site_type        TEXT NOT NULL DEFAULT '',
	expected_name    TEXT NOT NULL DEFAULT '',
	expected_address TEXT NOT NULL DEFAULT '',
	expected_phone   TEXT NOT NULL DEFAULT '',
	found_name       TEXT NOT NULL DEFAULT '',
	found_address    TEXT NOT NULL DEFAULT '',
	found_phone      TEXT NOT NULL DEFAULT '',
	name_match       INTEGER NOT NULL,
	address_match    INTEGER NOT NULL,
	phone_match      INTEGER NOT NULL,
	nap_correct      INTEGER NOT NULL,
	status           TEXT NOT NULL,
	recommendation   TEXT,
	last_checked_at  DATETIME NOT NULL,
	PRIMARY KEY (location_id, directory)
);

CREATE INDEX IF NOT EXISTS idx_audit_runs_status ON audit_runs(status);
CREATE INDEX IF NOT EXISTS idx_audit_runs_location ON audit_runs(location_id);
CREATE INDEX IF NOT EXISTS idx_reconciled_listings_run ON reconciled_listings(audit_run_id);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) UpsertLocation(ctx context.Context, loc model.Location) error {
	now := s.now().UTC()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO locations (id, name, phone, address_line1, city, state, postal_code, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			name = excluded.name,
			phone = excluded.phone,
			address_line1 = excluded.address_line1,
			city = excluded.city,
			state = excluded.state,
			postal_code = excluded.postal_code,
			updated_at = excluded.updated_at`,
		loc.ID, loc.Name, loc.Phone, loc.AddressLine1, loc.City, loc.State, loc.PostalCode, now, now,
	)
	return eris.Wrapf(err, "sqlite: upsert location %s", loc.ID)
}

func (s *SQLiteStore) GetLocation(ctx context.Context, id string) (*model.Location, error) {
	var l model.Location
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, phone, address_line1, city, state, postal_code, created_at, updated_at FROM locations WHERE id = ?`,
		id,
	).Scan(&l.ID, &l.Name, &l.Phone, &l.AddressLine1, &l.City, &l.State, &l.PostalCode, &l.CreatedAt, &l.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: location %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get location %s", id)
	}
	return &l, nil
}

func (s *SQLiteStore) GetAuthoritativeRecord(ctx context.Context, locationID string) (*model.AuthoritativeRecord, error) {
	loc, err := s.GetLocation(ctx, locationID)
	if err != nil {
		return nil, err
	}
	rec := loc.Record()
	return &rec, nil
}

func (s *SQLiteStore) CreateAuditRun(ctx context.Context, locationID, providerReportID string) (*model.AuditRun, error) {
	id := uuid.New().String()
	now := s.now().UTC()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO audit_runs (id, location_id, provider_report_id, status, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		id, locationID, providerReportID, string(model.AuditStatusSubmitted), now, now,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: insert audit run for %s", locationID)
	}

	return &model.AuditRun{
		ID:               id,
		LocationID:       locationID,
		ProviderReportID: providerReportID,
		Status:           model.AuditStatusSubmitted,
		CreatedAt:        now,
		UpdatedAt:        now,
	}, nil
}

func (s *SQLiteStore) GetAuditRun(ctx context.Context, id string) (*model.AuditRun, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+strings.Join(auditRunColumns, ", ")+` FROM audit_runs WHERE id = ?`, id)
	r, err := scanAuditRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: audit run %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get audit run %s", id)
	}
	return r, nil
}

func (s *SQLiteStore) ListAuditRuns(ctx context.Context, filter AuditRunFilter) ([]model.AuditRun, error) {
	query, args, err := auditRunQuery(squirrel.Question, filter)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: build list audit runs")
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list audit runs")
	}
	defer rows.Close()

	var runs []model.AuditRun
	for rows.Next() {
		r, err := scanAuditRun(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan audit run")
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: list audit runs iterate")
}

func (s *SQLiteStore) UpdateAuditRunStatus(ctx context.Context, id string, from, to model.AuditStatus) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE audit_runs SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
		string(to), s.now().UTC(), id, string(from),
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update audit run status %s", id)
	}
	return s.checkTransition(ctx, s.db, res, id)
}

func (s *SQLiteStore) FailAuditRun(ctx context.Context, id, reason string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE audit_runs SET status = ?, error = ?, updated_at = ? WHERE id = ? AND status IN (?, ?)`,
		string(model.AuditStatusFailed), reason, s.now().UTC(), id,
		string(model.AuditStatusSubmitted), string(model.AuditStatusRunning),
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: fail audit run %s", id)
	}
	return s.checkTransition(ctx, s.db, res, id)
}

func (s *SQLiteStore) CompleteAuditRun(ctx context.Context, id string, listings []model.ReconciledListing, summary model.AuditSummary, completedAt time.Time) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin complete audit run")
	}
	defer tx.Rollback() //nolint:errcheck

	completedAt = completedAt.UTC()
	res, err := tx.ExecContext(ctx, `
		UPDATE audit_runs SET status = ?, total_found = ?, total_correct = ?, total_incorrect = ?,
			total_missing = ?, completed_at = ?, updated_at = ?
		WHERE id = ? AND status = ?`,
		string(model.AuditStatusCompleted), summary.TotalFound, summary.TotalCorrect,
		summary.TotalIncorrect, summary.TotalMissing, completedAt, completedAt,
		id, string(model.AuditStatusRunning),
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: complete audit run %s", id)
	}
	if err := s.checkTransition(ctx, tx, res, id); err != nil {
		return err
	}

	updates := make([]string, 0, len(listingColumns))
	for _, c := range listingColumns {
		if c != "location_id" && c != "directory" {
			updates = append(updates, c+" = excluded."+c)
		}
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO reconciled_listings (`+strings.Join(listingColumns, ", ")+`)
		VALUES (`+strings.TrimSuffix(strings.Repeat("?, ", len(listingColumns)), ", ")+`)
		ON CONFLICT (location_id, directory) DO UPDATE SET `+strings.Join(updates, ", "))
	if err != nil {
		return eris.Wrap(err, "sqlite: prepare listing upsert")
	}
	defer stmt.Close()

	for _, l := range lastPerDirectory(listings) {
		if _, err := stmt.ExecContext(ctx, listingRow(l)...); err != nil {
			return eris.Wrapf(err, "sqlite: upsert listing %s/%s", l.LocationID, l.Directory)
		}
	}

	return eris.Wrap(tx.Commit(), "sqlite: commit complete audit run")
}

func (s *SQLiteStore) ListReconciledListings(ctx context.Context, locationID string) ([]model.ReconciledListing, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+strings.Join(listingColumns, ", ")+` FROM reconciled_listings WHERE location_id = ? ORDER BY directory`,
		locationID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list listings for %s", locationID)
	}
	defer rows.Close()

	var out []model.ReconciledListing
	for rows.Next() {
		l, err := scanListing(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan listing")
		}
		out = append(out, l)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list listings iterate")
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// checkTransition maps a zero-row conditional update to ErrNotFound or
// ErrStatusConflict.
func (s *SQLiteStore) checkTransition(ctx context.Context, q queryer, res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n > 0 {
		return nil
	}

	var status string
	err = q.QueryRowContext(ctx, `SELECT status FROM audit_runs WHERE id = ?`, id).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return eris.Wrapf(ErrNotFound, "sqlite: audit run %s", id)
	}
	if err != nil {
		return eris.Wrapf(err, "sqlite: read audit run status %s", id)
	}
	return eris.Wrapf(ErrStatusConflict, "sqlite: audit run %s is %s", id, status)
}
