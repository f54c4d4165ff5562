package store

import (
	"context"
	"database/sql"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMigrationsHaveMatchingUpAndDownFiles(t *testing.T) {
	pattern := regexp.MustCompile(`^(\d+)_.*\.(up|down)\.sql$`)

	for _, driver := range []string{DriverPostgres, DriverSQLite} {
		t.Run(driver, func(t *testing.T) {
			migrations, err := Migrations(driver)
			require.NoError(t, err)
			entries, err := fs.ReadDir(migrations, ".")
			require.NoError(t, err)

			byVersion := map[string]map[string]bool{}
			for _, entry := range entries {
				match := pattern.FindStringSubmatch(entry.Name())
				if match == nil {
					continue
				}
				if byVersion[match[1]] == nil {
					byVersion[match[1]] = map[string]bool{}
				}
				require.False(t, byVersion[match[1]][match[2]], "duplicate %s migration for version %s", match[2], match[1])
				byVersion[match[1]][match[2]] = true
			}

			require.NotEmpty(t, byVersion, "no migrations discovered")
			for version, dirs := range byVersion {
				require.True(t, dirs["up"] && dirs["down"], "version %s must include both up and down files", version)
			}
		})
	}
}

func TestApplyMigrationsIsIdempotent(t *testing.T) {
	ctx := context.Background()
	db, err := OpenSQLite(ctx, filepath.Join(t.TempDir(), "migrate.db"))
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, ApplyMigrations(ctx, db, DriverSQLite))
	require.NoError(t, ApplyMigrations(ctx, db, DriverSQLite))

	var applied int
	require.NoError(t, db.QueryRowContext(ctx, `SELECT COUNT(*) FROM schema_migrations`).Scan(&applied))
	require.Equal(t, 1, applied)
}

func TestHistoryRowsAreImmutable(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	alice, bob := mustUser(t, s, "alice"), mustUser(t, s, "bob")
	msg := mustSend(t, s, alice, bob, "first", nil)
	_, err := s.EditMessage(ctx, msg.ID, "second", alice.ID)
	require.NoError(t, err)

	_, err = s.DB().ExecContext(ctx, `UPDATE message_history SET body='tampered' WHERE message_id=$1`, msg.ID)
	require.Error(t, err)
	require.Contains(t, err.Error(), "immutable")
}

func TestMigrationsRoundTripPostgres(t *testing.T) {
	dsn := strings.TrimSpace(os.Getenv("MESSAGING_TEST_DATABASE_URL"))
	if dsn == "" {
		t.Skip("MESSAGING_TEST_DATABASE_URL is not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	db, err := Open(ctx, dsn)
	require.NoError(t, err)
	defer db.Close()

	_, err = db.ExecContext(ctx, `DROP SCHEMA IF EXISTS public CASCADE; CREATE SCHEMA public;`)
	require.NoError(t, err)

	require.NoError(t, ApplyMigrations(ctx, db, DriverPostgres))
	require.NoError(t, applyDownMigrations(ctx, db, DriverPostgres))
	_, err = db.ExecContext(ctx, `DELETE FROM schema_migrations`)
	require.NoError(t, err)
	require.NoError(t, ApplyMigrations(ctx, db, DriverPostgres))
}

func applyDownMigrations(ctx context.Context, db *sql.DB, driver string) error {
	migrations, err := Migrations(driver)
	if err != nil {
		return err
	}
	names, err := migrationNames(migrations, ".down.sql")
	if err != nil {
		return err
	}
	for i := len(names) - 1; i >= 0; i-- {
		contents, err := fs.ReadFile(migrations, names[i])
		if err != nil {
			return err
		}
		if _, err := db.ExecContext(ctx, string(contents)); err != nil {
			return err
		}
	}
	return nil
}
