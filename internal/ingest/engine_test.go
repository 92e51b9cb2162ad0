package ingest_test

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/localnerve/lite/internal/catalog"
	"github.com/localnerve/lite/internal/database"
	"github.com/localnerve/lite/internal/ingest"
	"github.com/localnerve/lite/internal/models"
	"github.com/localnerve/lite/internal/services"
	"github.com/localnerve/lite/internal/testhelpers"
	"github.com/localnerve/lite/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type fixture struct {
	db     *gorm.DB
	engine *ingest.Engine
	kase   *models.Case
}

func setup(t *testing.T) *fixture {
	t.Helper()
	db := testhelpers.NewSQLiteDB(t)
	c, err := services.CreateCase(db, services.CaseInput{CaseName: "Ingest " + t.Name()})
	require.NoError(t, err)
	return &fixture{db: db, engine: ingest.New(db, 2), kase: c}
}

func (f *fixture) run(t *testing.T, doc string) (*ingest.Report, *models.IngestionRun, error) {
	t.Helper()
	run, err := services.CreateRun(f.db, services.RunInput{CaseID: f.kase.ID, Filename: "triage.json", FileSize: int64(len(doc))})
	require.NoError(t, err)
	report, err := f.engine.Run(context.Background(), run, strings.NewReader(doc))
	return report, run, err
}

func (f *fixture) rows(t *testing.T, category catalog.Category) []map[string]interface{} {
	t.Helper()
	var out []map[string]interface{}
	require.NoError(t, f.db.Table(database.TableName(f.db, f.kase.Namespace, category)).Order("id").Find(&out).Error)
	return out
}

func (f *fixture) recordCount(t *testing.T) int64 {
	t.Helper()
	c, err := services.GetCase(f.db, f.kase.ID)
	require.NoError(t, err)
	return c.RecordCount
}

func TestRun_AcceptsProcess(t *testing.T) {
	f := setup(t)

	report, run, err := f.run(t, `{"processes":[{"pid":123,"user_name":"root","cpu_percent":"12.5"}]}`)
	require.NoError(t, err)

	assert.Equal(t, models.RunCompleted, report.Status)
	assert.Equal(t, int64(1), report.Accepted)
	assert.Equal(t, int64(1), f.recordCount(t))

	rows := f.rows(t, catalog.Processes)
	require.Len(t, rows, 1)
	assert.EqualValues(t, 123, rows[0]["pid"])
	assert.Equal(t, "root", rows[0]["user_name"])
	assert.InDelta(t, 12.5, toFloat(rows[0]["cpu_percent"]), 0.0001)
	assert.Equal(t, run.RunUUID, rows[0]["run_id"])
	assert.Nil(t, rows[0]["ppid"])

	saved, err := services.GetRun(f.db, run.RunUUID)
	require.NoError(t, err)
	assert.Equal(t, models.RunCompleted, saved.Status)
	assert.Equal(t, int64(1), saved.Accepted)
	assert.NotNil(t, saved.CompletedAt)

	c, err := services.GetCase(f.db, f.kase.ID)
	require.NoError(t, err)
	assert.Equal(t, models.IngestionCompleted, c.IngestionStatus)
	assert.Equal(t, int64(1), c.TotalArtifacts)
}

func TestRun_RejectsBadRequiredField(t *testing.T) {
	f := setup(t)

	report, _, err := f.run(t, `{"processes":[{"pid":"not-a-number"}]}`)
	require.NoError(t, err)

	assert.Equal(t, models.RunPartial, report.Status)
	assert.Equal(t, int64(0), report.Accepted)
	assert.Equal(t, int64(1), report.Rejected)
	require.Len(t, report.Categories, 1)
	require.Len(t, report.Categories[0].Rejections, 1)
	assert.Equal(t, "pid", report.Categories[0].Rejections[0].Field)
	assert.Equal(t, 0, report.Categories[0].Rejections[0].Index)

	assert.Empty(t, f.rows(t, catalog.Processes))
	assert.Equal(t, int64(0), f.recordCount(t))
}

func TestRun_MixedRecords(t *testing.T) {
	f := setup(t)

	doc := `{"processes":[
		{"pid":1,"name":"init"},
		{"pid":2.5,"name":"bad"},
		"not an object",
		{"unrelated":true},
		{"PID":3,"cmdline":"/bin/sh","cpu":"0.333","start_time":1700000000},
		{"pid":4,"ppid":"x"}
	]}`
	report, _, err := f.run(t, doc)
	require.NoError(t, err)

	cr := report.Categories[0]
	assert.Equal(t, int64(3), cr.Accepted)
	assert.Equal(t, int64(3), cr.Rejected)
	assert.Equal(t, models.RunPartial, report.Status)

	want := []ingest.Rejection{
		{Index: 1, Field: "pid", Reason: `column "pid": not an integer (got 2.5)`},
		{Index: 2, Reason: "record is not an object"},
		{Index: 3, Reason: "record has no catalog fields"},
	}
	if diff := cmp.Diff(want, cr.Rejections); diff != "" {
		t.Errorf("rejections mismatch (-want +got):\n%s", diff)
	}
	require.Len(t, cr.Warnings, 1)
	assert.Contains(t, cr.Warnings[0], `"ppid"`)

	rows := f.rows(t, catalog.Processes)
	require.Len(t, rows, 3)
	assert.Equal(t, "/bin/sh", rows[1]["command"])
	assert.InDelta(t, 0.33, toFloat(rows[1]["cpu_percent"]), 0.0001)
	assert.NotNil(t, rows[1]["start_time"])
	assert.Nil(t, rows[2]["ppid"])
	assert.Equal(t, int64(3), f.recordCount(t))
}

func TestRun_Malformed(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"truncated", `{"processes":[{"pid":1}`},
		{"array top level", `[{"pid":1}]`},
		{"scalar", `42`},
		{"trailing data", `{"processes":[]} {}`},
		{"empty", ``},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := setup(t)
			report, run, err := f.run(t, tt.doc)
			assert.True(t, errors.Is(err, types.ErrMalformedInput), "got %v", err)
			assert.Equal(t, models.RunFailed, report.Status)
			assert.Empty(t, f.rows(t, catalog.Processes))

			saved, err := services.GetRun(f.db, run.RunUUID)
			require.NoError(t, err)
			assert.Equal(t, models.RunFailed, saved.Status)
			assert.NotEmpty(t, saved.Error)
		})
	}
}

func TestRun_EmptyPayload(t *testing.T) {
	f := setup(t)

	report, _, err := f.run(t, `{"hostname":"box","somethingElse":[1,2]}`)
	assert.True(t, errors.Is(err, types.ErrEmptyPayload))
	assert.Equal(t, []string{`unknown category "hostname"`, `unknown category "somethingElse"`}, report.Warnings)

	_, _, err = f.run(t, `{}`)
	assert.True(t, errors.Is(err, types.ErrEmptyPayload))
}

func TestRun_UnknownKeysWarn(t *testing.T) {
	f := setup(t)

	report, _, err := f.run(t, `{"mystery":{"a":1},"userAccounts":[{"username":"root","uid":0}]}`)
	require.NoError(t, err)
	assert.Equal(t, models.RunCompleted, report.Status)
	assert.Equal(t, []string{`unknown category "mystery"`}, report.Warnings)
	assert.Len(t, f.rows(t, catalog.UserAccounts), 1)
}

func TestRun_StorageFailureIsIsolated(t *testing.T) {
	f := setup(t)
	require.NoError(t, f.db.Exec("DROP TABLE "+database.QuotedTable(f.db, f.kase.Namespace, catalog.AuthLogs)).Error)

	doc := `{
		"processes":[{"pid":1},{"pid":2},{"pid":3}],
		"authLogs":[{"message":"Accepted password for root"},{"message":"session opened"},{"message":"x"}]
	}`
	report, _, err := f.run(t, doc)
	require.NoError(t, err)

	assert.Equal(t, models.RunPartial, report.Status)
	var auth, procs *ingest.CategoryReport
	for _, c := range report.Categories {
		switch c.Category {
		case catalog.AuthLogs:
			auth = c
		case catalog.Processes:
			procs = c
		}
	}
	require.NotNil(t, auth)
	require.NotNil(t, procs)
	assert.Equal(t, int64(3), auth.Failed)
	assert.Equal(t, int64(0), auth.Accepted)
	assert.NotEmpty(t, auth.Error)
	assert.Equal(t, int64(3), procs.Accepted)
	assert.Equal(t, int64(3), f.recordCount(t))

	// categories are reported in name order
	assert.Equal(t, catalog.AuthLogs, report.Categories[0].Category)
}

func TestRun_AllCategoriesFail(t *testing.T) {
	f := setup(t)
	require.NoError(t, f.db.Exec("DROP TABLE "+database.QuotedTable(f.db, f.kase.Namespace, catalog.Processes)).Error)

	report, run, err := f.run(t, `{"processes":[{"pid":1}]}`)
	require.NoError(t, err)
	assert.Equal(t, models.RunFailed, report.Status)

	saved, err := services.GetRun(f.db, run.RunUUID)
	require.NoError(t, err)
	assert.Equal(t, models.RunFailed, saved.Status)
	assert.Equal(t, int64(1), saved.Failed)
}

func TestRun_Cancelled(t *testing.T) {
	f := setup(t)
	run, err := services.CreateRun(f.db, services.RunInput{CaseID: f.kase.ID, Filename: "triage.json"})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	report, err := f.engine.Run(ctx, run, strings.NewReader(`{"processes":[{"pid":1}]}`))
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, models.RunCancelled, report.Status)
	assert.Empty(t, f.rows(t, catalog.Processes))
	assert.Equal(t, int64(0), f.recordCount(t))
}

func TestRun_Batches(t *testing.T) {
	f := setup(t)

	var b strings.Builder
	b.WriteString(`{"kernelModules":[`)
	for i := 0; i < 7; i++ {
		if i > 0 {
			b.WriteString(",")
		}
		b.WriteString(`{"module":"mod` + string(rune('a'+i)) + `","size":"4096"}`)
	}
	b.WriteString(`]}`)

	report, _, err := f.run(t, b.String())
	require.NoError(t, err)
	assert.Equal(t, int64(7), report.Accepted)
	assert.Len(t, f.rows(t, catalog.KernelModules), 7)
}

func TestRun_TwoKeysOneCategory(t *testing.T) {
	f := setup(t)

	report, _, err := f.run(t, `{"users":[{"username":"a"}],"userAccounts":[{"username":"b"}]}`)
	require.NoError(t, err)
	require.Len(t, report.Categories, 1)
	assert.Equal(t, []string{"users", "userAccounts"}, report.Categories[0].SourceKeys)
	assert.Equal(t, int64(2), report.Categories[0].Accepted)
}

func TestRun_Progress(t *testing.T) {
	f := setup(t)
	var seen []catalog.Category
	f.engine.Progress = func(run *models.IngestionRun, c ingest.CategoryReport) {
		seen = append(seen, c.Category)
	}

	_, _, err := f.run(t, `{"processes":[{"pid":1}],"groups":[{"name":"wheel","gid":10,"members":["root","alice"]}]}`)
	require.NoError(t, err)
	assert.Equal(t, []catalog.Category{catalog.Processes, catalog.GroupAccounts}, seen)

	rows := f.rows(t, catalog.GroupAccounts)
	require.Len(t, rows, 1)
	assert.Equal(t, `["root","alice"]`, rows[0]["members"])
}

func TestRun_Shapes(t *testing.T) {
	f := setup(t)

	doc := `{
		"browsingHistory": {
			"Default": [{"url":"https://example.com","title":"Example","visit_count":3,"last_visit_time":13300000000000000}],
			"Profile 1": {"browser":"chrome","entries":[{"url":"https://go.dev"}]}
		},
		"downloads": [{"source_profile":"Work","entries":[{"target_path":"/tmp/a.zip","url":"https://x/a.zip"}]}],
		"firewallRules": {
			"iptables": {"command":"iptables -L -n","success":true,"returncode":0,"stdout":"Chain INPUT (policy ACCEPT)"},
			"ufw": "Status: inactive"
		},
		"environmentVariables": {"variables": {"PATH":"/usr/bin","HOME":"/root"}},
		"collection_summary": {
			"collection_info": {"timestamp":"2024-03-01T10:00:00Z","hostname":"web01"},
			"statistics": {"total_sections":12,"total_files":40}
		}
	}`
	report, _, err := f.run(t, doc)
	require.NoError(t, err)
	assert.Equal(t, models.RunCompleted, report.Status, "%+v", report.Categories)

	history := f.rows(t, catalog.BrowsingHistory)
	require.Len(t, history, 2)
	assert.Equal(t, "Default", history[0]["profile"])
	assert.NotNil(t, history[0]["last_visit_time"])
	assert.Equal(t, "Profile 1", history[1]["profile"])
	assert.Equal(t, "chrome", history[1]["browser"])

	downloads := f.rows(t, catalog.Downloads)
	require.Len(t, downloads, 1)
	assert.Equal(t, "Work", downloads[0]["profile"])
	assert.Equal(t, "/tmp/a.zip", downloads[0]["file_path"])

	fw := f.rows(t, catalog.FirewallRules)
	require.Len(t, fw, 2)
	assert.Equal(t, "iptables", fw[0]["rule_type"])
	assert.Equal(t, "ufw", fw[1]["rule_type"])
	assert.Equal(t, "Status: inactive", fw[1]["stdout"])

	env := f.rows(t, catalog.EnvironmentVariables)
	require.Len(t, env, 2)
	assert.Equal(t, "HOME", env[0]["name"])
	assert.Equal(t, "/usr/bin", env[1]["value"])

	meta := f.rows(t, catalog.CollectionMetadata)
	require.Len(t, meta, 1)
	assert.Equal(t, "web01", meta[0]["hostname"])
	assert.EqualValues(t, 12, meta[0]["total_sections"])
}

func TestRun_RawOutputParsers(t *testing.T) {
	f := setup(t)

	doc := `{
		"disk_usage": {"command":"df -B1","stdout":"Filesystem 1B-blocks Used Available Use% Mounted on\n/dev/sda1 1000 400 600 40% /\ntmpfs 2000 0 2000 0% /dev/shm\n"},
		"arpCache": "? (192.168.1.1) at aa:bb:cc:dd:ee:ff [ether] on eth0\n",
		"mountedFilesystems": [{"command":"cat /proc/filesystems","stdout":"nodev\tsysfs\n\text4\n"}]
	}`
	report, _, err := f.run(t, doc)
	require.NoError(t, err)
	assert.Equal(t, models.RunCompleted, report.Status)

	disks := f.rows(t, catalog.DiskUsage)
	require.Len(t, disks, 2)
	assert.Equal(t, "/dev/sda1", disks[0]["filesystem"])
	assert.EqualValues(t, 1000, disks[0]["size_bytes"])
	assert.Equal(t, "/dev/shm", disks[1]["mounted_on"])

	arp := f.rows(t, catalog.ArpCache)
	require.Len(t, arp, 1)
	assert.Equal(t, "192.168.1.1", arp[0]["ip_address"])
	assert.Equal(t, "eth0", arp[0]["interface"])

	mounts := f.rows(t, catalog.Mounts)
	require.Len(t, mounts, 2)
	assert.Equal(t, "sysfs", mounts[0]["fs_type"])
}

func TestImportCSV(t *testing.T) {
	f := setup(t)
	run, err := services.CreateRun(f.db, services.RunInput{CaseID: f.kase.ID, Filename: "processes.csv", Category: string(catalog.Processes)})
	require.NoError(t, err)

	csvDoc := "id,pid,user_name,cpu_percent,bogus\n" +
		"9,10,root,1.25,x\n" +
		"10,,nobody,,y\n" +
		"11,12,\"smith, j\",0.5,z\n"
	report, err := f.engine.ImportCSV(context.Background(), run, catalog.Processes, strings.NewReader(csvDoc))
	require.NoError(t, err)

	assert.Equal(t, int64(2), report.Accepted)
	assert.Equal(t, int64(1), report.Rejected)
	assert.Equal(t, []string{`unknown column "bogus"`}, report.Warnings)

	rows := f.rows(t, catalog.Processes)
	require.Len(t, rows, 2)
	assert.Equal(t, "smith, j", rows[1]["user_name"])
	assert.Equal(t, int64(2), f.recordCount(t))
}

func TestImportCSV_Errors(t *testing.T) {
	f := setup(t)
	run, err := services.CreateRun(f.db, services.RunInput{CaseID: f.kase.ID, Filename: "x.csv"})
	require.NoError(t, err)

	_, err = f.engine.ImportCSV(context.Background(), run, catalog.Processes, strings.NewReader("foo,bar\n1,2\n"))
	assert.True(t, errors.Is(err, types.ErrMalformedInput))

	_, err = f.engine.ImportCSV(context.Background(), run, catalog.Category("nope"), strings.NewReader("pid\n1\n"))
	assert.True(t, errors.Is(err, types.ErrUnknownCategory))
}

func TestImportJSON(t *testing.T) {
	f := setup(t)
	run, err := services.CreateRun(f.db, services.RunInput{CaseID: f.kase.ID, Filename: "ports.json"})
	require.NoError(t, err)

	report, err := f.engine.ImportJSON(context.Background(), run, catalog.OpenPorts,
		strings.NewReader(`[{"port":22,"proto":"tcp","process":"sshd"},{"port":"http"}]`))
	require.NoError(t, err)
	assert.Equal(t, int64(1), report.Accepted)
	assert.Equal(t, int64(1), report.Rejected)

	rows := f.rows(t, catalog.OpenPorts)
	require.Len(t, rows, 1)
	assert.Equal(t, "sshd", rows[0]["process_name"])
}

func toFloat(v interface{}) float64 {
	switch t := v.(type) {
	case float64:
		return t
	case int64:
		return float64(t)
	case string:
		f, _ := strconv.ParseFloat(t, 64)
		return f
	}
	return 0
}
