package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/localnerve/lite/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const triage = `{
  "processes": [
    {"pid": 123, "user_name": "root", "cpu_percent": "12.5", "name": "sshd", "command": "/usr/sbin/sshd -D"},
    {"pid": 456, "user_name": "alice", "cpu_percent": 1, "name": "bash", "command": "-bash"}
  ],
  "user_accounts": [{"username": "alice", "uid": 1000, "shell": "/bin/bash"}]
}`

func setupEnv(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("DB_TYPE", "sqlite")
	t.Setenv("DB_DATABASE", filepath.Join(dir, "lite.db"))
	t.Setenv("DB_LOG_LEVEL", "silent")
	t.Setenv("UPLOAD_FOLDER", filepath.Join(dir, "uploads"))
	t.Setenv("REDIS_URL", "")
	t.Setenv("LOG_LEVEL", "error")
	return dir
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func mustRun(t *testing.T, args ...string) string {
	t.Helper()
	out, err := run(t, args...)
	require.NoError(t, err, out)
	return out
}

func createCase(t *testing.T, name string) *models.Case {
	t.Helper()
	var c models.Case
	require.NoError(t, json.Unmarshal([]byte(mustRun(t, "--json", "cases", "create", name, "--priority", "high")), &c))
	return &c
}

func TestCatalog(t *testing.T) {
	out := mustRun(t, "catalog")
	assert.Contains(t, out, "processes")
	assert.Contains(t, out, "user_accounts")

	var defs []map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(mustRun(t, "catalog", "--json")), &defs))
	assert.NotEmpty(t, defs)
}

func TestCases(t *testing.T) {
	setupEnv(t)
	c := createCase(t, "Operation Lantern")
	assert.Equal(t, "operation_lantern", c.Namespace)
	assert.Equal(t, models.PriorityHigh, c.Priority)

	_, err := run(t, "cases", "create", "Operation Lantern")
	assert.Error(t, err)

	out := mustRun(t, "cases", "list")
	assert.Contains(t, out, "Operation Lantern")
	assert.Contains(t, out, "1 of 1 cases")

	id := fmt.Sprint(c.ID)
	out = mustRun(t, "cases", "status", id, "closed")
	assert.Contains(t, out, "now closed")

	_, err = run(t, "cases", "status", id, "shredded")
	assert.Error(t, err)

	_, err = run(t, "cases", "show", "0")
	assert.Error(t, err)
	_, err = run(t, "cases", "show", "99")
	assert.Error(t, err)

	_, err = run(t, "cases", "delete", id)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--yes")

	out = mustRun(t, "cases", "delete", id, "--yes")
	assert.Contains(t, out, "operation_lantern")
	out = mustRun(t, "cases", "list")
	assert.Contains(t, out, "0 of 0 cases")
}

func TestIngestQueryExport(t *testing.T) {
	dir := setupEnv(t)
	c := createCase(t, "Host Triage")
	id := fmt.Sprint(c.ID)

	src := filepath.Join(dir, "triage.json")
	require.NoError(t, os.WriteFile(src, []byte(triage), 0o600))

	out := mustRun(t, "ingest", id, src)
	assert.Contains(t, out, "3 accepted")

	_, err := run(t, "ingest", id, filepath.Join(dir, "missing.json"))
	assert.Error(t, err)

	out = mustRun(t, "cases", "show", id)
	assert.Contains(t, out, "Host Triage")
	assert.Contains(t, out, "triage.json")

	out = mustRun(t, "search", id, "SSHD")
	assert.Contains(t, out, "2 matches")

	out = mustRun(t, "users", id)
	assert.Contains(t, out, "alice")
	assert.Contains(t, out, "/bin/bash")

	csvPath := filepath.Join(dir, "processes.csv")
	mustRun(t, "export", id, "processes", "--format", "csv", "-o", csvPath)
	raw, err := os.ReadFile(csvPath)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "sshd")

	_, err = run(t, "export", id, "--format", "csv")
	assert.Error(t, err)

	out = mustRun(t, "export", id)
	var doc map[string][]map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out), &doc))
	assert.Len(t, doc["processes"], 2)

	// round trip the csv into a second case
	other := createCase(t, "Host Triage Copy")
	out = mustRun(t, "import", fmt.Sprint(other.ID), "processes", csvPath)
	assert.Contains(t, out, "2 accepted")

	_, err = run(t, "import", fmt.Sprint(other.ID), "bogus", csvPath)
	assert.Error(t, err)

	out = mustRun(t, "cases", "recount", fmt.Sprint(other.ID))
	assert.True(t, strings.Contains(out, "holds 2 records"), out)
}
