package migration

import (
	"bytes"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestParseDatabaseType(t *testing.T) {
	tests := []struct {
		input    string
		expected DatabaseType
		wantErr  bool
	}{
		{"postgres", DatabaseTypePostgres, false},
		{"PostgreSQL", DatabaseTypePostgres, false},
		{"pg", DatabaseTypePostgres, false},
		{"mysql", DatabaseTypeMySQL, false},
		{"mariadb", DatabaseTypeMySQL, false},
		{"sqlite3", DatabaseTypeSQLite, false},
		{"oracle", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseDatabaseType(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestAvailable_EveryDialectHasSameVersions(t *testing.T) {
	for _, dbType := range []DatabaseType{DatabaseTypePostgres, DatabaseTypeMySQL, DatabaseTypeSQLite} {
		t.Run(string(dbType), func(t *testing.T) {
			all, err := Available(dbType)
			require.NoError(t, err)
			require.Len(t, all, 2)
			assert.Equal(t, uint(1), all[0].Version)
			assert.Equal(t, "create_reports", all[0].Name)
			assert.Equal(t, uint(2), all[1].Version)
			assert.Equal(t, "index_reports", all[1].Name)
		})
	}

	_, err := Available("oracle")
	assert.Error(t, err)
}

func TestNewMigrator_Validation(t *testing.T) {
	_, err := NewMigrator(Config{DatabaseType: DatabaseTypePostgres}, nil)
	assert.Error(t, err)

	_, err = NewMigrator(Config{DatabaseType: DatabaseTypeSQLite, DSN: "x.db"}, nil)
	assert.Error(t, err)
}

func openSQLite(t *testing.T) *Migrator {
	t.Helper()
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "reports.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	drv, err := sqlite.WithInstance(db, &sqlite.Config{MigrationsTable: DefaultTable})
	require.NoError(t, err)

	m, err := NewWithDriver(DatabaseTypeSQLite, drv, zaptest.NewLogger(t))
	require.NoError(t, err)
	return m
}

func TestMigrator_UpDownStatus(t *testing.T) {
	m := openSQLite(t)

	v, dirty, err := m.Version()
	require.NoError(t, err)
	assert.Zero(t, v)
	assert.False(t, dirty)

	require.NoError(t, m.Up())
	v, _, err = m.Version()
	require.NoError(t, err)
	assert.Equal(t, uint(2), v)

	// 重复执行为空操作
	require.NoError(t, m.Up())

	require.NoError(t, m.Down())
	statuses, err := m.Status()
	require.NoError(t, err)
	require.Len(t, statuses, 2)
	assert.True(t, statuses[0].Applied)
	assert.False(t, statuses[1].Applied)

	var buf bytes.Buffer
	require.NoError(t, PrintStatus(&buf, statuses))
	out := buf.String()
	assert.Contains(t, out, "VERSION")
	assert.Contains(t, out, "create_reports")
	assert.Contains(t, out, "applied")
	assert.Contains(t, out, "pending")

	require.NoError(t, m.Close())
}

func TestPrintStatus_Dirty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, PrintStatus(&buf, []MigrationStatus{{Version: 3, Name: "x", Applied: true, Dirty: true}}))
	assert.Contains(t, buf.String(), "dirty")
}
