package server_test

import (
	"context"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/localnerve/lite/internal/database"
	"github.com/localnerve/lite/internal/ingest"
	"github.com/localnerve/lite/internal/jobs"
	"github.com/localnerve/lite/internal/models"
	"github.com/localnerve/lite/internal/query"
	"github.com/localnerve/lite/internal/server"
	"github.com/localnerve/lite/internal/services"
	"github.com/localnerve/lite/internal/testhelpers"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestWithPostgres runs an ingest and query round trip against real postgres and redis containers
func TestWithPostgres(t *testing.T) {
	tc := testhelpers.RequireContainers(t, testhelpers.ContainerOptions{DBType: "postgres"})
	cfg := tc.Config
	cfg.UploadFolder = t.TempDir()

	db, err := database.Connect(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close(db) })
	read, err := database.ConnectRead(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close(read) })
	require.NoError(t, database.AutoMigrate(db))

	store, err := jobs.NewStatusStore(cfg.RedisURL)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	runner := jobs.NewRunner(db, ingest.New(db, cfg.IngestBatchSize), store, cfg.MaxConcurrentIngestions)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = runner.Shutdown(ctx)
	})

	f := &fixture{
		app: server.New(server.Options{
			Config:   cfg,
			DB:       db,
			Read:     read,
			Runner:   runner,
			Registry: prometheus.NewRegistry(),
			Quiet:    true,
		}),
		db:     db,
		runner: runner,
		cfg:    cfg,
	}

	c := f.createCase(t, "Postgres Round Trip")
	out := f.ingest(t, c, triage)
	require.NotNil(t, out.Runs[0].Report)
	assert.Equal(t, int64(3), out.Runs[0].Report.Accepted)

	// status is served from redis
	resp := f.do(t, http.MethodGet, "/api/ingestions/"+out.Runs[0].Run.RunUUID, nil, "")
	testhelpers.AssertStatus(t, resp, http.StatusOK)
	var st jobs.Status
	testhelpers.ParseJSON(t, resp, &st)
	assert.Equal(t, models.RunCompleted, st.Status)

	resp = f.do(t, http.MethodGet, fmt.Sprintf("/api/cases/%d/search?q=sshd", c.ID), nil, "")
	testhelpers.AssertStatus(t, resp, http.StatusOK)
	assert.Contains(t, testhelpers.ReadBody(t, resp), "/usr/sbin/sshd -D")

	// bare table names resolve in the case schema
	resp = f.doJSON(t, http.MethodPost, fmt.Sprintf("/api/cases/%d/sql", c.ID), `{"query":"SELECT count(*) AS n FROM processes"}`)
	testhelpers.AssertStatus(t, resp, http.StatusOK)
	var result query.SQLResult
	testhelpers.ParseJSON(t, resp, &result)
	require.Len(t, result.Rows, 1)
	assert.EqualValues(t, 2, result.Rows[0][0])

	resp = f.do(t, http.MethodGet, "/api/health", nil, "")
	testhelpers.AssertStatus(t, resp, http.StatusOK)
	var health services.HealthCheckResult
	testhelpers.ParseJSON(t, resp, &health)
	assert.Equal(t, services.HealthOK, health.Redis)

	resp = f.do(t, http.MethodDelete, fmt.Sprintf("/api/cases/%d", c.ID), nil, "")
	testhelpers.AssertStatus(t, resp, http.StatusOK)
	exists, err := database.NamespaceExists(db, c.Namespace)
	require.NoError(t, err)
	assert.False(t, exists)
}
