package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"conti/internal/core"
)

func newRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	repo, err := NewSQLiteRepository(filepath.Join(t.TempDir(), "db", "conti.db"))
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	return repo
}

func TestEmptyDatabaseIsNotFound(t *testing.T) {
	repo := newRepo(t)
	_, found, err := repo.Load(context.Background())
	require.NoError(t, err)
	assert.False(t, found)
}

func TestSaveAndLoadSnapshot(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)

	snap := core.Snapshot{
		NextID: 8,
		Entries: []core.Entry{
			{ID: 7, Amount: decimal.RequireFromString("42.10"), Payer: "Bob", Participants: []string{"Alice", "Bob"},
				Category: "Fuel", Unit: "CHF", Date: "2025-06-01"},
			{ID: 2, Amount: decimal.RequireFromString("90"), Payer: "Alice", Category: "Home", Unit: "EUR",
				Shares: core.Shares{{Participant: "Bob", Amount: decimal.NewFromInt(45)}, {Participant: "Alice", Amount: decimal.NewFromInt(45)}}},
		},
		Categories: []string{"Fuel", "Home"},
	}
	require.NoError(t, repo.Save(ctx, snap))

	got, found, err := repo.Load(ctx)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, 8, got.NextID)
	assert.Equal(t, []string{"Fuel", "Home"}, got.Categories)
	require.Len(t, got.Entries, 2)
	assert.Equal(t, 7, got.Entries[0].ID, "insertion order is kept")
	assert.Equal(t, "42.10", core.FormatAmount(got.Entries[0].Amount))
	assert.Equal(t, "Bob", got.Entries[1].Shares[0].Participant)
	assert.Nil(t, got.Entries[1].Participants)

	// a second save replaces everything
	snap.Entries = snap.Entries[:1]
	snap.NextID = 9
	require.NoError(t, repo.Save(ctx, snap))
	got, _, err = repo.Load(ctx)
	require.NoError(t, err)
	assert.Len(t, got.Entries, 1)
	assert.Equal(t, 9, got.NextID)
}

func TestMigrationsAreIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conti.db")
	require.NoError(t, RunMigrations(path))
	require.NoError(t, RunMigrations(path))
}
