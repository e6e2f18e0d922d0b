package database

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/franckalain/healthwise/internal/config"
	"github.com/franckalain/healthwise/internal/failure"
	"github.com/franckalain/healthwise/internal/models"
)

func newSQLite(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func ptr[T any](v T) *T { return &v }

// testStore exercises the Store contract shared by every driver.
func testStore(t *testing.T, store Store) {
	ctx := context.Background()

	t.Run("missing profile", func(t *testing.T) {
		p, found, err := store.GetProfile(ctx, "nobody")
		require.NoError(t, err)
		assert.False(t, found)
		assert.Equal(t, models.HealthProfile{}, p)
	})

	t.Run("profile merge", func(t *testing.T) {
		user := "user-merge"
		saved, err := store.SaveProfile(ctx, user, models.PatchFrom(models.HealthProfile{
			Name:              "Jane",
			Age:               40,
			Gender:            models.GenderFemale,
			MedicalConditions: "diabetes",
		}))
		require.NoError(t, err)
		assert.Equal(t, "Jane", saved.Name)

		// Only the supplied field changes.
		saved, err = store.SaveProfile(ctx, user, models.HealthProfilePatch{
			MedicalConditions: ptr("diabetes, hypertension"),
		})
		require.NoError(t, err)

		got, found, err := store.GetProfile(ctx, user)
		require.NoError(t, err)
		require.True(t, found)
		want := models.HealthProfile{
			Name:              "Jane",
			Age:               40,
			Gender:            models.GenderFemale,
			MedicalConditions: "diabetes, hypertension",
		}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("profile mismatch (-want +got):\n%s", diff)
		}
		assert.Equal(t, want, saved)
	})

	t.Run("profile normalized", func(t *testing.T) {
		saved, err := store.SaveProfile(ctx, "user-norm", models.HealthProfilePatch{
			Name:   ptr("  Sam "),
			Age:    ptr(-3),
			Gender: ptr(models.Gender("robot")),
		})
		require.NoError(t, err)
		assert.Equal(t, models.HealthProfile{Name: "Sam"}, saved)
	})

	t.Run("empty history", func(t *testing.T) {
		recs, err := store.RecentScans(ctx, "user-empty", 10)
		require.NoError(t, err)
		assert.NotNil(t, recs)
		assert.Empty(t, recs)

		stats, err := store.ScanStats(ctx, "user-empty")
		require.NoError(t, err)
		assert.Equal(t, models.HistoryStats{}, stats)
	})

	t.Run("history newest first", func(t *testing.T) {
		user := "user-history"
		base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
		statuses := []models.Status{models.StatusSafe, models.StatusRisky, models.StatusUnsafe, models.StatusSafe}
		for i, st := range statuses {
			rec := &models.ScanHistoryRecord{
				ProductName:  "Product " + string(rune('A'+i)),
				SafetyStatus: st,
				ScanDate:     base.Add(time.Duration(i) * time.Hour),
			}
			require.NoError(t, store.AppendScan(ctx, user, rec))
			assert.NotEmpty(t, rec.ID)
		}
		// Another user's scans stay out of this history.
		require.NoError(t, store.AppendScan(ctx, "someone-else", &models.ScanHistoryRecord{
			ProductName: "Other", SafetyStatus: models.StatusSafe, ScanDate: base,
		}))

		recs, err := store.RecentScans(ctx, user, 3)
		require.NoError(t, err)
		require.Len(t, recs, 3)
		assert.Equal(t, "Product D", recs[0].ProductName)
		assert.Equal(t, "Product C", recs[1].ProductName)
		assert.Equal(t, "Product B", recs[2].ProductName)
		assert.True(t, recs[0].ScanDate.Equal(base.Add(3*time.Hour)))
		assert.Equal(t, models.StatusUnsafe, recs[1].SafetyStatus)

		stats, err := store.ScanStats(ctx, user)
		require.NoError(t, err)
		assert.Equal(t, models.HistoryStats{Total: 4, Safe: 2, Risky: 1, Unsafe: 1}, stats)
		assert.Equal(t, 50, stats.SafePercent())

		none, err := store.RecentScans(ctx, user, 0)
		require.NoError(t, err)
		assert.NotNil(t, none)
		assert.Empty(t, none)
	})

	t.Run("rejects bad records", func(t *testing.T) {
		err := store.AppendScan(ctx, "user-bad", &models.ScanHistoryRecord{ProductName: "x", SafetyStatus: "green"})
		assert.ErrorIs(t, err, failure.ErrPersistence)

		err = store.AppendScan(ctx, "", &models.ScanHistoryRecord{ProductName: "x", SafetyStatus: models.StatusSafe})
		assert.ErrorIs(t, err, failure.ErrPersistence)
	})

	t.Run("health", func(t *testing.T) {
		assert.Equal(t, "up", store.Health(ctx)["status"])
	})
}

func TestSQLiteStore(t *testing.T) {
	testStore(t, newSQLite(t))
}

func TestSQLiteStoreSameInstantKeepsInsertOrder(t *testing.T) {
	store := newSQLite(t)
	ctx := context.Background()
	at := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	for _, name := range []string{"first", "second"} {
		require.NoError(t, store.AppendScan(ctx, "u", &models.ScanHistoryRecord{
			ProductName: name, SafetyStatus: models.StatusRisky, ScanDate: at,
		}))
	}
	recs, err := store.RecentScans(ctx, "u", 10)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "second", recs[0].ProductName)
}

func TestSQLiteStoreClosed(t *testing.T) {
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "closed.db"))
	require.NoError(t, err)
	require.NoError(t, store.Close())

	_, _, err = store.GetProfile(context.Background(), "u")
	assert.ErrorIs(t, err, failure.ErrPersistence)
	assert.Equal(t, "down", store.Health(context.Background())["status"])
}

func TestPostgresStore(t *testing.T) {
	url := os.Getenv("HEALTHWISE_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("HEALTHWISE_TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	store, err := NewPostgresStore(ctx, url)
	require.NoError(t, err)
	defer store.Close()

	_, err = store.pool.Exec(ctx, `TRUNCATE profiles, scan_results`)
	require.NoError(t, err)
	testStore(t, store)
}

func TestNewStore(t *testing.T) {
	store, err := NewStore(context.Background(), config.DatabaseConfig{
		Driver: "sqlite",
		Path:   filepath.Join(t.TempDir(), "x.db"),
	})
	require.NoError(t, err)
	assert.IsType(t, &SQLiteStore{}, store)
	require.NoError(t, store.Close())

	_, err = NewStore(context.Background(), config.DatabaseConfig{Driver: "mongo"})
	assert.ErrorContains(t, err, "unsupported database driver")

	_, err = NewStore(context.Background(), config.DatabaseConfig{Driver: "postgres"})
	assert.ErrorContains(t, err, "requires a database url")
}
