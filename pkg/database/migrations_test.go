package database

import (
	"context"
	"path/filepath"
	"testing"
	"testing/fstest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := New(Config{
		Path:            filepath.Join(t.TempDir(), "test.db"),
		MaxOpenConns:    1,
		MaxIdleConns:    1,
		ConnMaxLifetime: time.Minute,
	}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestMigrator_RunMigrationsFS(t *testing.T) {
	db := openTestDB(t)
	fsys := fstest.MapFS{
		"002_second.sql": {Data: []byte(`ALTER TABLE first ADD COLUMN note TEXT;`)},
		"001_first.sql":  {Data: []byte(`CREATE TABLE first (id INTEGER PRIMARY KEY);`)},
		"README.md":      {Data: []byte(`ignored`)},
	}

	migrator := NewMigrator(db, zap.NewNop())
	require.NoError(t, migrator.RunMigrationsFS(fsys))
	require.NoError(t, migrator.RunMigrationsFS(fsys), "applied migrations are skipped")

	var names []string
	rows, err := db.Query(`SELECT name FROM schema_migrations ORDER BY version`)
	require.NoError(t, err)
	defer rows.Close()
	for rows.Next() {
		var name string
		require.NoError(t, rows.Scan(&name))
		names = append(names, name)
	}
	require.NoError(t, rows.Err())
	assert.Equal(t, []string{"first", "second"}, names)

	_, err = db.Exec(`INSERT INTO first (id, note) VALUES (1, 'x')`)
	assert.NoError(t, err)
}

func TestMigrator_FailedMigrationIsNotRecorded(t *testing.T) {
	db := openTestDB(t)
	fsys := fstest.MapFS{
		"001_broken.sql": {Data: []byte(`CREATE TABLE oops (`)},
	}

	err := NewMigrator(db, zap.NewNop()).RunMigrationsFS(fsys)
	require.Error(t, err)

	var count int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM schema_migrations`).Scan(&count))
	assert.Zero(t, count)
}

func TestMigrator_InvalidFilename(t *testing.T) {
	db := openTestDB(t)
	fsys := fstest.MapFS{
		"initial.sql": {Data: []byte(`SELECT 1;`)},
	}

	err := NewMigrator(db, zap.NewNop()).RunMigrationsFS(fsys)
	assert.ErrorContains(t, err, "invalid migration filename")
}

func TestMigrator_RejectsEditedMigration(t *testing.T) {
	db := openTestDB(t)
	migrator := NewMigrator(db, zap.NewNop())

	require.NoError(t, migrator.RunMigrationsFS(fstest.MapFS{
		"001_first.sql": {Data: []byte(`CREATE TABLE first (id INTEGER PRIMARY KEY);`)},
	}))

	err := migrator.RunMigrationsFS(fstest.MapFS{
		"001_first.sql": {Data: []byte(`CREATE TABLE first (id INTEGER PRIMARY KEY, note TEXT);`)},
	})
	assert.ErrorContains(t, err, "changed after it was applied")
}

func TestLoadMigrations(t *testing.T) {
	t.Run("sorted with checksums", func(t *testing.T) {
		migrations, err := LoadMigrations(fstest.MapFS{
			"010_later.sql":   {Data: []byte(`SELECT 2;`)},
			"002_earlier.sql": {Data: []byte(`SELECT 1;`)},
		})
		require.NoError(t, err)
		require.Len(t, migrations, 2)

		assert.Equal(t, 2, migrations[0].Version)
		assert.Equal(t, "earlier", migrations[0].Name)
		assert.Equal(t, 10, migrations[1].Version)
		assert.Len(t, migrations[0].Checksum, 64)
		assert.NotEqual(t, migrations[0].Checksum, migrations[1].Checksum)
	})

	t.Run("duplicate version", func(t *testing.T) {
		_, err := LoadMigrations(fstest.MapFS{
			"001_a.sql": {Data: []byte(`SELECT 1;`)},
			"001_b.sql": {Data: []byte(`SELECT 2;`)},
		})
		assert.ErrorContains(t, err, "share version 1")
	})
}

func TestOpen_AppliesMigrations(t *testing.T) {
	fsys := fstest.MapFS{
		"001_bills.sql": {Data: []byte(`CREATE TABLE bills (id INTEGER PRIMARY KEY);`)},
	}
	path := filepath.Join(t.TempDir(), "nested", "billing.db")

	db, err := Open(Config{Path: path, MaxOpenConns: 1}, fsys, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	assert.NoError(t, db.Health(context.Background()))
	_, err = db.Exec(`INSERT INTO bills (id) VALUES (1)`)
	assert.NoError(t, err)
}

func TestNew_RequiresPath(t *testing.T) {
	_, err := New(Config{}, zap.NewNop())
	assert.Error(t, err)
}
