package catalog

import (
	"errors"
	"testing"

	"github.com/localnerve/lite/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbeddedCatalogLoads(t *testing.T) {
	c, err := Load()
	require.NoError(t, err)
	require.Len(t, c.All(), len(Categories))

	for i, def := range c.All() {
		assert.Equal(t, Categories[i], def.Name, "catalog order follows the category list")
		assert.NotEmpty(t, def.Title)
	}
}

func TestLookup(t *testing.T) {
	tests := []struct {
		key  string
		want Category
	}{
		{"processes", Processes},
		{"userAccounts", UserAccounts},
		{"browsingHistory_data", BrowsingHistory},
		{"dpkgPackages", InstalledPackages},
		{"arpTableRaw", ArpCache},
		{"boot", Uptime},
		{"collection_summary", CollectionMetadata},
		{"kernel_modules", KernelModules},
	}
	for _, tt := range tests {
		def, err := Lookup(tt.key)
		require.NoError(t, err, tt.key)
		assert.Equal(t, tt.want, def.Name, tt.key)
	}
}

func TestLookup_CaseSensitive(t *testing.T) {
	_, err := Lookup("Processes")
	assert.True(t, errors.Is(err, types.ErrUnknownCategory))

	_, err = Lookup("not_a_category")
	assert.True(t, errors.Is(err, types.ErrUnknownCategory))
}

func TestGet_RejectsSourceKeys(t *testing.T) {
	_, err := Get(Category("userAccounts"))
	assert.ErrorIs(t, err, types.ErrUnknownCategory)

	def, err := Get(AuthLogs)
	require.NoError(t, err)
	assert.Equal(t, "Authentication Logs", def.Title)
}

func TestResolve(t *testing.T) {
	def, err := Get(Processes)
	require.NoError(t, err)

	tests := map[string]string{
		"pid":        "pid",
		"user":       "user_name",
		"owner":      "user_name",
		"cpuPercent": "cpu_percent",
		"parentPid":  "ppid",
		"cmdline":    "command",
	}
	for field, want := range tests {
		col, ok := def.Resolve(field)
		require.True(t, ok, field)
		assert.Equal(t, want, col.Name, field)
	}

	_, ok := def.Resolve("threads")
	assert.False(t, ok)
}

func TestDecimalScale(t *testing.T) {
	def, err := Get(Processes)
	require.NoError(t, err)

	col, ok := def.Column("cpu_percent")
	require.True(t, ok)
	assert.Equal(t, TypeDecimal, col.Type)
	assert.Equal(t, 2, col.Scale)

	cpu, err := Get(CPUInformation)
	require.NoError(t, err)
	mhz, _ := cpu.Column("cpu_mhz")
	assert.Equal(t, 3, mhz.Scale)
}

func TestSearchableColumns(t *testing.T) {
	def, err := Get(BrowsingHistory)
	require.NoError(t, err)

	var names []string
	for _, col := range def.SearchableColumns() {
		names = append(names, col.Name)
	}
	assert.Equal(t, []string{"url", "title"}, names)
	assert.Equal(t, ShapeProfiles, def.Shape)
}

func TestParse_Validation(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"missing categories", "version: 1\ncategories: []\n"},
		{"reserved column", `
categories:
  - name: processes
    columns:
      - {name: run_id, type: string}
`},
		{"unknown type", `
categories:
  - name: processes
    columns:
      - {name: pid, type: float}
`},
		{"bad yaml", "categories: ["},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			assert.Error(t, err)
		})
	}
}

func TestSnakeCase(t *testing.T) {
	tests := map[string]string{
		"userAccounts":  "user_accounts",
		"MemTotal":      "mem_total",
		"cpu_percent":   "cpu_percent",
		"sourceProfile": "source_profile",
		"HTTPServer":    "http_server",
		"ipv4Address":   "ipv4_address",
		"exec-start":    "exec_start",
	}
	for in, want := range tests {
		assert.Equal(t, want, SnakeCase(in), in)
	}
}
