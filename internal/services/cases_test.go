package services_test

import (
	"errors"
	"testing"

	"github.com/localnerve/lite/internal/database"
	"github.com/localnerve/lite/internal/models"
	"github.com/localnerve/lite/internal/services"
	"github.com/localnerve/lite/internal/testhelpers"
	"github.com/localnerve/lite/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

func TestIncrementCounts_Concurrent(t *testing.T) {
	db := testhelpers.NewSQLiteDB(t)
	c, err := services.CreateCase(db, services.CaseInput{CaseName: "Concurrent Counts"})
	require.NoError(t, err)

	const workers, delta = 16, 7
	var g errgroup.Group
	for i := 0; i < workers; i++ {
		inTx := i%2 == 0
		g.Go(func() error {
			if inTx {
				// the ingestion path increments inside each category transaction
				return db.Transaction(func(tx *gorm.DB) error {
					return services.IncrementCounts(tx, c.ID, delta)
				})
			}
			return services.IncrementCounts(db, c.ID, delta)
		})
	}
	require.NoError(t, g.Wait())

	got, err := services.GetCase(db, c.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(workers*delta), got.RecordCount)
}

func TestIncrementCounts_Missing(t *testing.T) {
	db := testhelpers.NewSQLiteDB(t)
	err := services.IncrementCounts(db, 404, 1)
	assert.True(t, errors.Is(err, types.ErrNotFound), "got %v", err)
}

func TestCreateCase_Errors(t *testing.T) {
	db := testhelpers.NewSQLiteDB(t)
	_, err := services.CreateCase(db, services.CaseInput{CaseName: "Intrusion 7"})
	require.NoError(t, err)

	tests := []struct {
		name string
		in   services.CaseInput
		want error
	}{
		{"empty name", services.CaseInput{CaseName: "  "}, types.ErrInvalidArgument},
		{"symbols only", services.CaseInput{CaseName: "!!!"}, types.ErrInvalidArgument},
		{"bad priority", services.CaseInput{CaseName: "Other", Priority: "urgent"}, types.ErrInvalidArgument},
		{"duplicate name", services.CaseInput{CaseName: "Intrusion 7"}, types.ErrDuplicateName},
		{"same namespace", services.CaseInput{CaseName: "intrusion-7"}, types.ErrNamespaceCollision},
		{"reserved namespace", services.CaseInput{CaseName: "Public"}, types.ErrNamespaceCollision},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := services.CreateCase(db, tt.in)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
		})
	}

	page, err := services.ListCases(db, services.CaseFilter{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), page.Total)
}

func TestSetStatus(t *testing.T) {
	db := testhelpers.NewSQLiteDB(t)
	c, err := services.CreateCase(db, services.CaseInput{CaseName: "Status"})
	require.NoError(t, err)

	got, err := services.SetStatus(db, c.ID, models.CaseClosed)
	require.NoError(t, err)
	assert.Equal(t, models.CaseClosed, got.Status)

	_, err = services.SetStatus(db, c.ID, "archived")
	assert.True(t, errors.Is(err, types.ErrInvalidArgument), "got %v", err)

	_, err = services.SetStatus(db, 99, models.CaseActive)
	assert.True(t, errors.Is(err, types.ErrNotFound), "got %v", err)
}

func TestDeleteCase(t *testing.T) {
	db := testhelpers.NewSQLiteDB(t)
	c, err := services.CreateCase(db, services.CaseInput{CaseName: "Doomed"})
	require.NoError(t, err)
	_, err = services.CreateRun(db, services.RunInput{CaseID: c.ID, Filename: "triage.json"})
	require.NoError(t, err)

	deleted, err := services.DeleteCase(db, c.ID)
	require.NoError(t, err)
	assert.Equal(t, c.Namespace, deleted.Namespace)

	exists, err := database.NamespaceExists(db, c.Namespace)
	require.NoError(t, err)
	assert.False(t, exists)

	runs, err := services.ListRuns(db, c.ID, 10)
	require.NoError(t, err)
	assert.Empty(t, runs)

	_, err = services.GetCase(db, c.ID)
	assert.True(t, errors.Is(err, types.ErrNotFound), "got %v", err)

	_, err = services.DeleteCase(db, c.ID)
	assert.True(t, errors.Is(err, types.ErrNotFound), "got %v", err)
}

func TestDeleteCase_Missing(t *testing.T) {
	db := testhelpers.NewSQLiteDB(t)
	_, err := services.DeleteCase(db, 12345)
	assert.True(t, errors.Is(err, types.ErrNotFound), "got %v", err)
}
