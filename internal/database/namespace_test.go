package database_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/localnerve/lite/internal/catalog"
	"github.com/localnerve/lite/internal/database"
	"github.com/localnerve/lite/internal/testhelpers"
	"github.com/localnerve/lite/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestNamespaceFor(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"Case 42", "case_42"},
		{"  Acme -- Breach!  ", "acme_breach"},
		{"ALPHA.beta/Gamma", "alpha_beta_gamma"},
		{"Ünïcode Case", "n_code_case"},
		{strings.Repeat("a", 62) + "_b", strings.Repeat("a", 62)},
	}
	for _, tt := range tests {
		got, err := database.NamespaceFor(tt.name)
		require.NoError(t, err, tt.name)
		assert.Equal(t, tt.want, got, tt.name)
		assert.LessOrEqual(t, len(got), database.MaxNamespaceLength)
	}
}

func TestNamespaceFor_Errors(t *testing.T) {
	_, err := database.NamespaceFor("!!!")
	assert.True(t, errors.Is(err, types.ErrInvalidArgument))

	_, err = database.NamespaceFor("Public")
	assert.True(t, errors.Is(err, types.ErrNamespaceCollision))

	_, err = database.NamespaceFor("information schema")
	assert.True(t, errors.Is(err, types.ErrNamespaceCollision))
}

func TestCreateAndDropNamespace(t *testing.T) {
	db := testhelpers.NewSQLiteDB(t)

	require.NoError(t, db.Transaction(func(tx *gorm.DB) error {
		return database.CreateNamespace(tx, "case_one")
	}))

	exists, err := database.NamespaceExists(db, "case_one")
	require.NoError(t, err)
	assert.True(t, exists)

	for _, def := range catalog.All() {
		ok, err := database.TableExists(db, "case_one", def.Name)
		require.NoError(t, err)
		assert.True(t, ok, def.Name)
	}

	err = db.Transaction(func(tx *gorm.DB) error {
		return database.CreateNamespace(tx, "case_one")
	})
	assert.True(t, errors.Is(err, types.ErrNamespaceCollision))

	require.NoError(t, db.Transaction(func(tx *gorm.DB) error {
		return database.DropNamespace(tx, "case_one")
	}))
	exists, err = database.NamespaceExists(db, "case_one")
	require.NoError(t, err)
	assert.False(t, exists)

	// dropping again is a no-op
	require.NoError(t, database.DropNamespace(db, "case_one"))
}

func TestNamespacesAreIsolated(t *testing.T) {
	db := testhelpers.NewSQLiteDB(t)

	require.NoError(t, database.CreateNamespace(db, "a"))
	require.NoError(t, database.CreateNamespace(db, "a_b"))
	require.NoError(t, database.DropNamespace(db, "a"))

	exists, err := database.NamespaceExists(db, "a_b")
	require.NoError(t, err)
	assert.True(t, exists, "dropping a must not touch a_b")
}

func TestInsertCountAndPurge(t *testing.T) {
	db := testhelpers.NewSQLiteDB(t)
	require.NoError(t, database.CreateNamespace(db, "store"))

	rows := []map[string]interface{}{
		{"pid": int64(1), "ppid": nil, "user_name": "root", "name": "init", "command": nil, "state": nil,
			"cpu_percent": "0.50", "memory_percent": nil, "memory_rss": nil, "tty": nil, "start_time": nil,
			"run_id": "run-1", "ingested_at": nil},
		{"pid": int64(2), "ppid": int64(1), "user_name": "alice", "name": "bash", "command": nil, "state": nil,
			"cpu_percent": nil, "memory_percent": nil, "memory_rss": nil, "tty": nil, "start_time": nil,
			"run_id": "run-2", "ingested_at": nil},
	}
	require.NoError(t, database.InsertBatch(db, "store", catalog.Processes, rows))

	n, err := database.CountRows(db, "store", catalog.Processes)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	purged, err := database.DeleteRunRows(db, "store", "run-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), purged)

	counts, err := database.CountAll(db, "store")
	require.NoError(t, err)
	assert.Equal(t, int64(1), counts[catalog.Processes])
	assert.Equal(t, int64(0), counts[catalog.AuthLogs])

	_, err = database.CountRows(db, "missing", catalog.Processes)
	assert.True(t, errors.Is(err, types.ErrNotFound))
}

func TestColumnDDL(t *testing.T) {
	dec := catalog.Column{Name: "cpu_percent", Type: catalog.TypeDecimal, Scale: 2}
	assert.Equal(t, "DECIMAL(20,2)", database.ColumnDDL("postgres", dec))
	assert.Equal(t, "TINYINT(1)", database.ColumnDDL("mysql", catalog.Column{Type: catalog.TypeBoolean}))
	assert.Equal(t, "NVARCHAR(MAX)", database.ColumnDDL("sqlserver", catalog.Column{Type: catalog.TypeJSON}))
	assert.Equal(t, "TIMESTAMPTZ", database.ColumnDDL("postgres", catalog.Column{Type: catalog.TypeTimestamp}))
	assert.Equal(t, "INTEGER", database.ColumnDDL("sqlite", catalog.Column{Type: catalog.TypeInteger}))
}
