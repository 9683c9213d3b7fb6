package presetstore

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ehr/dicom-tools/internal/platform/db"
	"github.com/ehr/dicom-tools/internal/preset"
)

var errRollback = errors.New("rollback")

// inTx runs fn against a migrated database inside a transaction that is
// always rolled back. It skips unless TEST_DATABASE_URL is set.
func inTx(t *testing.T, fn func(ctx context.Context, repo Repository)) {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	pool, err := db.NewPool(ctx, url, 2, 1)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	_, err = db.NewMigrator(pool, db.Migrations()).Up(ctx)
	require.NoError(t, err)

	err = db.WithTx(ctx, pool, func(ctx context.Context) error {
		fn(ctx, NewRepoPG(pool))
		return errRollback
	})
	require.ErrorIs(t, err, errRollback)
}

func TestRepoPG(t *testing.T) {
	inTx(t, func(ctx context.Context, repo Repository) {
		p := &Preset{Name: "pg-test", Version: preset.Version10, Body: v10Body}
		require.NoError(t, repo.Save(ctx, p))
		assert.False(t, p.CreatedAt.IsZero())

		p2 := &Preset{Name: "pg-test", Version: preset.Version11, Description: "v2", Body: "version: '1.1'\nconfig: {}\n"}
		require.NoError(t, repo.Save(ctx, p2))
		assert.Equal(t, p.CreatedAt, p2.CreatedAt)

		got, err := repo.Get(ctx, "pg-test")
		require.NoError(t, err)
		assert.Equal(t, "v2", got.Description)
		assert.Equal(t, preset.Version11, got.Version)

		items, total, err := repo.List(ctx, 10, 0)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, total, 1)
		assert.NotEmpty(t, items)

		require.NoError(t, repo.Delete(ctx, "pg-test"))
		assert.ErrorIs(t, repo.Delete(ctx, "pg-test"), preset.ErrPresetNotFound)
		_, err = repo.Get(ctx, "pg-test")
		assert.ErrorIs(t, err, preset.ErrPresetNotFound)
	})
}
