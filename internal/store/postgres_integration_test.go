//go:build integration

package store

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/sells-group/citation-cli/internal/model"
)

// startPostgres runs a throwaway Postgres container and returns its DSN.
func startPostgres(t *testing.T) string {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:17-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "citation",
				"POSTGRES_PASSWORD": "citation",
				"POSTGRES_DB":       "citation",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)

	return fmt.Sprintf("postgres://citation:citation@%s:%s/citation?sslmode=disable", host, port.Port())
}

func TestPostgresStore_Integration(t *testing.T) {
	ctx := context.Background()
	st, err := NewPostgres(ctx, startPostgres(t), &PoolConfig{MaxConns: 4})
	require.NoError(t, err)
	defer st.Close() //nolint:errcheck

	require.NoError(t, st.Migrate(ctx))
	// goose skips applied versions
	require.NoError(t, st.Migrate(ctx))

	require.NoError(t, st.UpsertLocation(ctx, model.Location{
		ID: "loc-1", Name: "Joe's Pizza", Phone: "5551234567",
		AddressLine1: "123 Main St", City: "Springfield", State: "IL", PostalCode: "62701",
	}))

	complete := func(directoryStatus model.ListingStatus) *model.AuditRun {
		run, err := st.CreateAuditRun(ctx, "loc-1", "682")
		require.NoError(t, err)
		require.NoError(t, st.UpdateAuditRunStatus(ctx, run.ID, model.AuditStatusSubmitted, model.AuditStatusRunning))
		require.NoError(t, st.CompleteAuditRun(ctx, run.ID, []model.ReconciledListing{
			{
				LocationID: "loc-1", AuditRunID: run.ID, Directory: "Yelp",
				ProviderStatus: model.ProviderStatusActive, Status: directoryStatus,
				LastCheckedAt: time.Now().UTC(),
			},
			{
				LocationID: "loc-1", AuditRunID: run.ID, Directory: "Yelp",
				ProviderStatus: model.ProviderStatusActive, Status: directoryStatus,
				LastCheckedAt: time.Now().UTC(),
			},
		}, model.AuditSummary{TotalFound: 2}, time.Now()))
		return run
	}

	complete(model.ListingStatusActionNeeded)
	second := complete(model.ListingStatusFound)

	listings, err := st.ListReconciledListings(ctx, "loc-1")
	require.NoError(t, err)
	require.Len(t, listings, 1)
	assert.Equal(t, second.ID, listings[0].AuditRunID)
	assert.Equal(t, model.ListingStatusFound, listings[0].Status)

	got, err := st.GetAuditRun(ctx, second.ID)
	require.NoError(t, err)
	assert.Equal(t, model.AuditStatusCompleted, got.Status)
	assert.Equal(t, 2, got.TotalFound)

	runs, err := st.ListAuditRuns(ctx, AuditRunFilter{Statuses: []model.AuditStatus{model.AuditStatusCompleted}})
	require.NoError(t, err)
	assert.Len(t, runs, 2)
}
