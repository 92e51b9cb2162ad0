package catalog

// Category names an artifact category. The value is also the table name
// inside every case namespace.
type Category string

const (
	UserAccounts         Category = "user_accounts"
	Processes            Category = "processes"
	NetworkConnections   Category = "network_connections"
	SystemdServices      Category = "systemd_services"
	AuthLogs             Category = "auth_logs"
	BrowsingHistory      Category = "browsing_history"
	FirewallRules        Category = "firewall_rules"
	GroupAccounts        Category = "group_accounts"
	PasswordInfo         Category = "password_info"
	HomeDirectories      Category = "home_directories"
	SudoersRules         Category = "sudoers_rules"
	Crontabs             Category = "crontabs"
	NetworkInterfaces    Category = "network_interfaces"
	OpenPorts            Category = "open_ports"
	KernelModules        Category = "kernel_modules"
	Uptime               Category = "uptime"
	CPUInformation       Category = "cpu_information"
	MemoryInformation    Category = "memory_information"
	DiskUsage            Category = "disk_usage"
	Mounts               Category = "mounts"
	InstalledPackages    Category = "installed_packages"
	BlockDevices         Category = "block_devices"
	EnvironmentVariables Category = "environment_variables"
	Downloads            Category = "downloads"
	SearchHistory        Category = "search_history"
	BrowserExtensions    Category = "browser_extensions"
	RelevantLogFiles     Category = "relevant_log_files"
	TriggeredTasks       Category = "triggered_tasks"
	ArpCache             Category = "arp_cache"
	CollectionMetadata   Category = "collection_metadata"
)

// Categories lists every category constant. Load checks each has exactly one catalog entry.
var Categories = []Category{
	UserAccounts, Processes, NetworkConnections, SystemdServices, AuthLogs,
	BrowsingHistory, FirewallRules, GroupAccounts, PasswordInfo, HomeDirectories,
	SudoersRules, Crontabs, NetworkInterfaces, OpenPorts, KernelModules,
	Uptime, CPUInformation, MemoryInformation, DiskUsage, Mounts,
	InstalledPackages, BlockDevices, EnvironmentVariables, Downloads, SearchHistory,
	BrowserExtensions, RelevantLogFiles, TriggeredTasks, ArpCache, CollectionMetadata,
}

// ColumnType is the logical type of a catalog column
type ColumnType string

const (
	TypeString    ColumnType = "string"
	TypeInteger   ColumnType = "integer"
	TypeDecimal   ColumnType = "decimal"
	TypeBoolean   ColumnType = "boolean"
	TypeTimestamp ColumnType = "timestamp"
	TypeJSON      ColumnType = "json"
)

// Shape selects how a top-level value is normalised into records
type Shape string

const (
	ShapeRecords        Shape = "records"
	ShapeProfiles       Shape = "profiles"
	ShapeCommandOutputs Shape = "command_outputs"
	ShapeKeyValue       Shape = "key_value"
)

// Columns every category table carries in addition to its catalog columns
const (
	ColumnID         = "id"
	ColumnRunID      = "run_id"
	ColumnIngestedAt = "ingested_at"
)

// DefaultDecimalScale applies to decimal columns declared without a scale
const DefaultDecimalScale = 2
