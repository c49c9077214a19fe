package store

import (
	"context"
	"embed"
	"errors"
	"io/fs"
	"strings"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/citation-cli/internal/db"
	"github.com/sells-group/citation-cli/internal/model"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool db.Pool
	// raw is nil when pool is a mock; goose needs a database/sql handle.
	raw *pgxpool.Pool
	now func() time.Time
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, raw: pool, now: time.Now}, nil
}

// newPostgresWithPool wraps an existing pool, used by tests.
func newPostgresWithPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool, now: time.Now}
}

// Pool returns the underlying database pool.
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

var psql = squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)

// Migrate applies the embedded goose migrations.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if s.raw == nil {
		return eris.New("postgres: migrate requires a live pool")
	}

	sqlDB := stdlib.OpenDBFromPool(s.raw)
	defer sqlDB.Close() //nolint:errcheck

	fsys, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return eris.Wrap(err, "postgres: migrations fs")
	}

	provider, err := goose.NewProvider(goose.DialectPostgres, sqlDB, fsys)
	if err != nil {
		return eris.Wrap(err, "postgres: goose provider")
	}

	results, err := provider.Up(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: migrate")
	}
	for _, r := range results {
		zap.L().Info("applied migration",
			zap.String("source", r.Source.Path),
			zap.Duration("duration", r.Duration),
		)
	}
	return nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) UpsertLocation(ctx context.Context, loc model.Location) error {
	now := s.now().UTC()
	_, err := s.pool.Exec(ctx, `
		INSERT INTO locations (id, name, phone, address_line1, city, state, postal_code, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			phone = EXCLUDED.phone,
			address_line1 = EXCLUDED.address_line1,
			city = EXCLUDED.city,
			state = EXCLUDED.state,
			postal_code = EXCLUDED.postal_code,
			updated_at = EXCLUDED.updated_at`,
		loc.ID, loc.Name, loc.Phone, loc.AddressLine1, loc.City, loc.State, loc.PostalCode, now,
	)
	return eris.Wrapf(err, "postgres: upsert location %s", loc.ID)
}

func (s *PostgresStore) GetLocation(ctx context.Context, id string) (*model.Location, error) {
	var l model.Location
	err := s.pool.QueryRow(ctx,
		`SELECT id, name, phone, address_line1, city, state, postal_code, created_at, updated_at FROM locations WHERE id = $1`,
		id,
	).Scan(&l.ID, &l.Name, &l.Phone, &l.AddressLine1, &l.City, &l.State, &l.PostalCode, &l.CreatedAt, &l.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "postgres: location %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get location %s", id)
	}
	return &l, nil
}

func (s *PostgresStore) GetAuthoritativeRecord(ctx context.Context, locationID string) (*model.AuthoritativeRecord, error) {
	loc, err := s.GetLocation(ctx, locationID)
	if err != nil {
		return nil, err
	}
	rec := loc.Record()
	return &rec, nil
}

func (s *PostgresStore) CreateAuditRun(ctx context.Context, locationID, providerReportID string) (*model.AuditRun, error) {
	id := uuid.New().String()
	now := s.now().UTC()

	_, err := s.pool.Exec(ctx,
		`INSERT INTO audit_runs (id, location_id, provider_report_id, status, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $5)`,
		id, locationID, providerReportID, string(model.AuditStatusSubmitted), now,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: insert audit run for %s", locationID)
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

func (s *PostgresStore) GetAuditRun(ctx context.Context, id string) (*model.AuditRun, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+strings.Join(auditRunColumns, ", ")+` FROM audit_runs WHERE id = $1`, id)
	r, err := scanAuditRun(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "postgres: audit run %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get audit run %s", id)
	}
	return r, nil
}

func (s *PostgresStore) ListAuditRuns(ctx context.Context, filter AuditRunFilter) ([]model.AuditRun, error) {
	query, args, err := auditRunQuery(squirrel.Dollar, filter)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: build list audit runs")
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list audit runs")
	}
	defer rows.Close()

	var runs []model.AuditRun
	for rows.Next() {
		r, err := scanAuditRun(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan audit run")
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: list audit runs iterate")
}

func (s *PostgresStore) UpdateAuditRunStatus(ctx context.Context, id string, from, to model.AuditStatus) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE audit_runs SET status = $1, updated_at = $2 WHERE id = $3 AND status = $4`,
		string(to), s.now().UTC(), id, string(from),
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update audit run status %s", id)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}
	return s.transitionError(ctx, s.pool, id)
}

func (s *PostgresStore) FailAuditRun(ctx context.Context, id, reason string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE audit_runs SET status = $1, error = $2, updated_at = $3 WHERE id = $4 AND status IN ($5, $6)`,
		string(model.AuditStatusFailed), reason, s.now().UTC(), id,
		string(model.AuditStatusSubmitted), string(model.AuditStatusRunning),
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: fail audit run %s", id)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}
	return s.transitionError(ctx, s.pool, id)
}

// CompleteAuditRun marks the run completed and bulk upserts its listings in a
// single transaction. Nothing is written unless the run is still running.
func (s *PostgresStore) CompleteAuditRun(ctx context.Context, id string, listings []model.ReconciledListing, summary model.AuditSummary, completedAt time.Time) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin complete audit run")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	completedAt = completedAt.UTC()
	tag, err := tx.Exec(ctx, `
		UPDATE audit_runs SET status = $1, total_found = $2, total_correct = $3, total_incorrect = $4,
			total_missing = $5, completed_at = $6, updated_at = $6
		WHERE id = $7 AND status = $8`,
		string(model.AuditStatusCompleted), summary.TotalFound, summary.TotalCorrect,
		summary.TotalIncorrect, summary.TotalMissing, completedAt,
		id, string(model.AuditStatusRunning),
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: complete audit run %s", id)
	}
	if tag.RowsAffected() == 0 {
		return s.transitionError(ctx, tx, id)
	}

	deduped := lastPerDirectory(listings)
	rows := make([][]any, len(deduped))
	for i, l := range deduped {
		rows[i] = listingRow(l)
	}
	if _, err := db.BulkUpsert(ctx, tx, db.UpsertConfig{
		Table:        "reconciled_listings",
		Columns:      listingColumns,
		ConflictKeys: []string{"location_id", "directory"},
	}, rows); err != nil {
		return eris.Wrapf(err, "postgres: upsert listings for run %s", id)
	}

	return eris.Wrap(tx.Commit(ctx), "postgres: commit complete audit run")
}

func (s *PostgresStore) ListReconciledListings(ctx context.Context, locationID string) ([]model.ReconciledListing, error) {
	query, args, err := psql.Select(listingColumns...).
		From("reconciled_listings").
		Where(squirrel.Eq{"location_id": locationID}).
		OrderBy("directory").
		ToSql()
	if err != nil {
		return nil, eris.Wrap(err, "postgres: build list listings")
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list listings for %s", locationID)
	}
	defer rows.Close()

	var out []model.ReconciledListing
	for rows.Next() {
		l, err := scanListing(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan listing")
		}
		out = append(out, l)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list listings iterate")
}

type rowQueryer interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// transitionError explains why a conditional update matched no rows.
func (s *PostgresStore) transitionError(ctx context.Context, q rowQueryer, id string) error {
	var status string
	err := q.QueryRow(ctx, `SELECT status FROM audit_runs WHERE id = $1`, id).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return eris.Wrapf(ErrNotFound, "postgres: audit run %s", id)
	}
	if err != nil {
		return eris.Wrapf(err, "postgres: read audit run status %s", id)
	}
	return eris.Wrapf(ErrStatusConflict, "postgres: audit run %s is %s", id, status)
}
