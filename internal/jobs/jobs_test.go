package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/localnerve/lite/internal/ingest"
	"github.com/localnerve/lite/internal/models"
	"github.com/localnerve/lite/internal/services"
	"github.com/localnerve/lite/internal/testhelpers"
	"github.com/localnerve/lite/internal/types"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type fixture struct {
	db     *gorm.DB
	runner *Runner
	store  *MemoryStatusStore
	kase   *models.Case
	dir    string
}

func setup(t *testing.T, concurrency int) *fixture {
	t.Helper()
	db := testhelpers.NewSQLiteDB(t)
	c, err := services.CreateCase(db, services.CaseInput{CaseName: "Jobs " + t.Name()})
	require.NoError(t, err)
	store := NewMemoryStatusStore()
	r := NewRunner(db, ingest.New(db, 0), store, concurrency)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = r.Shutdown(ctx)
	})
	return &fixture{db: db, runner: r, store: store, kase: c, dir: t.TempDir()}
}

func (f *fixture) file(t *testing.T, name, content string) services.RunInput {
	t.Helper()
	path := filepath.Join(f.dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return services.RunInput{CaseID: f.kase.ID, Filename: name, FilePath: path, FileSize: int64(len(content))}
}

func (f *fixture) waitFor(t *testing.T, runUUID string, terminal bool) *models.IngestionRun {
	t.Helper()
	var run *models.IngestionRun
	require.Eventually(t, func() bool {
		var err error
		run, err = services.GetRun(f.db, runUUID)
		return err == nil && run.Terminal() == terminal
	}, 5*time.Second, 10*time.Millisecond)
	return run
}

func TestRunNow(t *testing.T) {
	f := setup(t, 2)

	run, report, err := f.runner.RunNow(context.Background(),
		f.file(t, "triage.json", `{"processes":[{"pid":1},{"pid":2}],"user_accounts":[{"username":"root"}]}`))
	require.NoError(t, err)
	assert.Equal(t, models.RunCompleted, run.Status)
	assert.Equal(t, int64(3), report.Accepted)

	st, err := f.runner.Status(context.Background(), run.RunUUID)
	require.NoError(t, err)
	assert.Equal(t, models.RunCompleted, st.Status)
	assert.Equal(t, int64(3), st.Accepted)
	assert.Equal(t, int64(2), st.Categories["processes"].Accepted)
	assert.Equal(t, int64(1), st.Categories["user_accounts"].Accepted)
}

func TestRunNow_CategoryImports(t *testing.T) {
	f := setup(t, 1)

	in := f.file(t, "procs.csv", "pid,name\n10,init\n11,kthreadd\n")
	in.Category = "processes"
	run, report, err := f.runner.RunNow(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, models.RunCompleted, run.Status)
	assert.Equal(t, int64(2), report.Accepted)

	in = f.file(t, "procs.json", `[{"pid":12}]`)
	in.Category = "processes"
	_, report, err = f.runner.RunNow(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, int64(1), report.Accepted)

	in.Category = "nope"
	_, _, err = f.runner.RunNow(context.Background(), in)
	assert.True(t, errors.Is(err, types.ErrNotFound))
}

func TestSubmit(t *testing.T) {
	f := setup(t, 2)

	run, err := f.runner.Submit(context.Background(), f.file(t, "a.json", `{"processes":[{"pid":7}]}`))
	require.NoError(t, err)
	assert.Equal(t, models.RunQueued, run.Status)

	done := f.waitFor(t, run.RunUUID, true)
	assert.Equal(t, models.RunCompleted, done.Status)
	assert.Equal(t, int64(1), done.Accepted)

	c, err := services.GetCase(f.db, f.kase.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), c.RecordCount)
	assert.Equal(t, models.IngestionCompleted, c.IngestionStatus)
}

func TestSubmit_MissingFileFails(t *testing.T) {
	f := setup(t, 1)

	run, err := f.runner.Submit(context.Background(), services.RunInput{
		CaseID: f.kase.ID, Filename: "gone.json", FilePath: filepath.Join(f.dir, "gone.json"),
	})
	require.NoError(t, err)

	done := f.waitFor(t, run.RunUUID, true)
	assert.Equal(t, models.RunFailed, done.Status)
	assert.Contains(t, done.Error, "open upload")
}

func TestCancel_Queued(t *testing.T) {
	f := setup(t, 1)

	// occupy the only slot
	require.NoError(t, f.runner.sem.Acquire(context.Background(), 1))
	run, err := f.runner.Submit(context.Background(), f.file(t, "q.json", `{"processes":[{"pid":7}]}`))
	require.NoError(t, err)

	require.NoError(t, f.runner.Cancel(run.RunUUID))
	done := f.waitFor(t, run.RunUUID, true)
	assert.Equal(t, models.RunCancelled, done.Status)
	f.runner.sem.Release(1)
	require.Eventually(t, func() bool {
		f.runner.mu.Lock()
		defer f.runner.mu.Unlock()
		_, ok := f.runner.active[run.RunUUID]
		return !ok
	}, 5*time.Second, 10*time.Millisecond)

	err = f.runner.Cancel(run.RunUUID)
	assert.True(t, errors.Is(err, types.ErrInvalidArgument))

	err = f.runner.Cancel("00000000-0000-0000-0000-000000000000")
	assert.True(t, errors.Is(err, types.ErrNotFound))
}

func TestCancel_Orphaned(t *testing.T) {
	f := setup(t, 1)

	run, err := services.CreateRun(f.db, services.RunInput{CaseID: f.kase.ID, Filename: "x.json"})
	require.NoError(t, err)
	require.NoError(t, f.runner.Cancel(run.RunUUID))

	saved, err := services.GetRun(f.db, run.RunUUID)
	require.NoError(t, err)
	assert.Equal(t, models.RunCancelled, saved.Status)
}

func TestRetry(t *testing.T) {
	f := setup(t, 1)

	doc := `{"processes":[{"pid":1},{"pid":"bad"},{"pid":3}]}`
	first, _, err := f.runner.RunNow(context.Background(), f.file(t, "r.json", doc))
	require.NoError(t, err)
	require.Equal(t, models.RunPartial, first.Status)

	retried, err := f.runner.Retry(context.Background(), first.RunUUID)
	require.NoError(t, err)
	done := f.waitFor(t, retried.RunUUID, true)
	assert.Equal(t, models.RunPartial, done.Status)

	c, err := services.GetCase(f.db, f.kase.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), c.RecordCount)

	n, err := services.Recount(f.db, f.kase.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n.RecordCount)

	// the old run handed its file over
	_, err = f.runner.Retry(context.Background(), first.RunUUID)
	assert.True(t, errors.Is(err, types.ErrRunNotRetryable))

	ok, _, err := f.runner.RunNow(context.Background(), f.file(t, "ok.json", `{"processes":[{"pid":9}]}`))
	require.NoError(t, err)
	_, err = f.runner.Retry(context.Background(), ok.RunUUID)
	assert.True(t, errors.Is(err, types.ErrRunNotRetryable))
}

func TestShutdown(t *testing.T) {
	f := setup(t, 1)

	require.NoError(t, f.runner.sem.Acquire(context.Background(), 1))
	run, err := f.runner.Submit(context.Background(), f.file(t, "s.json", `{"processes":[{"pid":7}]}`))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, f.runner.Shutdown(ctx))
	f.runner.sem.Release(1)

	saved, err := services.GetRun(f.db, run.RunUUID)
	require.NoError(t, err)
	assert.Equal(t, models.RunCancelled, saved.Status)

	_, err = f.runner.Submit(context.Background(), f.file(t, "late.json", `{}`))
	assert.ErrorIs(t, err, ErrShuttingDown)
}

func TestRedisStatusStore(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := NewRedisStatusStore(client)
	defer store.Close()
	ctx := context.Background()
	require.NoError(t, store.Ping(ctx))

	sub := store.Subscribe(ctx, "run-1")
	defer sub.Close()
	_, err = sub.Receive(ctx)
	require.NoError(t, err)

	st := Status{RunUUID: "run-1", CaseID: 4, Status: models.RunRunning, Accepted: 5, UpdatedAt: time.Now().UTC()}
	require.NoError(t, store.Put(ctx, st))

	got, err := store.Get(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, int64(5), got.Accepted)
	assert.Equal(t, statusTTL, mr.TTL("lite:run:run-1"))

	msg, err := sub.ReceiveMessage(ctx)
	require.NoError(t, err)
	var ev Event
	require.NoError(t, json.Unmarshal([]byte(msg.Payload), &ev))
	assert.Equal(t, EventProgress, ev.Type)

	st.Status = models.RunCompleted
	require.NoError(t, store.Put(ctx, st))
	msg, err = sub.ReceiveMessage(ctx)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(msg.Payload), &ev))
	assert.Equal(t, EventDone, ev.Type)

	_, err = store.Get(ctx, "missing")
	assert.True(t, errors.Is(err, types.ErrNotFound))
}

func TestNewStatusStore(t *testing.T) {
	s, err := NewStatusStore("")
	require.NoError(t, err)
	assert.IsType(t, &MemoryStatusStore{}, s)

	_, err = NewStatusStore("://bad")
	assert.True(t, errors.Is(err, types.ErrInvalidArgument))

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	s, err = NewStatusStore("redis://" + mr.Addr() + "/0")
	require.NoError(t, err)
	assert.IsType(t, &RedisStatusStore{}, s)
	require.NoError(t, s.Close())
}

func TestCleanup(t *testing.T) {
	f := setup(t, 1)

	in := f.file(t, "old.json", `{"processes":[{"pid":1}]}`)
	old, _, err := f.runner.RunNow(context.Background(), in)
	require.NoError(t, err)
	fresh, _, err := f.runner.RunNow(context.Background(), f.file(t, "new.json", `{"processes":[{"pid":2}]}`))
	require.NoError(t, err)

	backdated := time.Now().UTC().Add(-40 * 24 * time.Hour)
	require.NoError(t, f.db.Model(&models.IngestionRun{}).Where("id = ?", old.ID).Update("completed_at", backdated).Error)

	c, err := NewCleanup(f.db, 30, "")
	require.NoError(t, err)
	n, err := c.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = services.GetRun(f.db, old.RunUUID)
	assert.True(t, errors.Is(err, types.ErrNotFound))
	_, err = os.Stat(in.FilePath)
	assert.True(t, os.IsNotExist(err))

	_, err = services.GetRun(f.db, fresh.RunUUID)
	assert.NoError(t, err)

	disabled, err := NewCleanup(f.db, 0, "")
	require.NoError(t, err)
	n, err = disabled.Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)

	_, err = NewCleanup(f.db, 30, "not a schedule")
	assert.Error(t, err)
}
