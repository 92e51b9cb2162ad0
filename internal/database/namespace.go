package database

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/lib/pq"
	"github.com/localnerve/lite/internal/catalog"
	"github.com/localnerve/lite/internal/types"
	"gorm.io/gorm"
)

// MaxNamespaceLength is the identifier limit shared by postgres and mysql
const MaxNamespaceLength = 63

// sqlite keeps every case in one file, tables are prefixed with namespace + separator
const sqlitePrefixSeparator = "__"

var nonIdent = regexp.MustCompile(`[^a-z0-9]+`)

var reservedNamespaces = map[string]struct{}{
	"public":             {},
	"information_schema": {},
	"pg_catalog":         {},
	"pg_toast":           {},
	"mysql":              {},
	"performance_schema": {},
	"sys":                {},
	"dbo":                {},
	"guest":              {},
	"main":               {},
	"temp":               {},
}

// NamespaceFor derives the namespace of a case name.
// Lowercase, runs of other characters become one underscore, trimmed, at most 63 characters.
func NamespaceFor(caseName string) (string, error) {
	ns := nonIdent.ReplaceAllString(strings.ToLower(caseName), "_")
	ns = strings.Trim(ns, "_")
	if len(ns) > MaxNamespaceLength {
		ns = strings.TrimRight(ns[:MaxNamespaceLength], "_")
	}
	if ns == "" {
		return "", fmt.Errorf("%w: case name %q yields an empty namespace", types.ErrInvalidArgument, caseName)
	}
	if IsReservedNamespace(ns) {
		return "", fmt.Errorf("%w: %q is reserved", types.ErrNamespaceCollision, ns)
	}
	return ns, nil
}

// IsReservedNamespace reports whether ns names a system schema or database
func IsReservedNamespace(ns string) bool {
	_, ok := reservedNamespaces[ns]
	return ok
}

// Dialect returns the normalised dialect name of db
func Dialect(db *gorm.DB) string {
	if name := db.Dialector.Name(); name != "mssql" {
		return name
	}
	return "sqlserver"
}

// TableName returns the unquoted, namespace-qualified table of a category.
// It is suitable for db.Table, which quotes each dotted part.
func TableName(db *gorm.DB, ns string, category catalog.Category) string {
	if Dialect(db) == "sqlite" {
		return ns + sqlitePrefixSeparator + string(category)
	}
	return ns + "." + string(category)
}

// QuotedTable returns the quoted, namespace-qualified table for raw SQL
func QuotedTable(db *gorm.DB, ns string, category catalog.Category) string {
	return Quote(db, TableName(db, ns, category))
}

// Quote quotes an identifier for db's dialect, each dotted part separately
func Quote(db *gorm.DB, ident string) string {
	var b strings.Builder
	db.Dialector.QuoteTo(&b, ident)
	return b.String()
}

// NamespaceExists reports whether the namespace is present physically
func NamespaceExists(db *gorm.DB, ns string) (bool, error) {
	var n int64
	var err error

	switch Dialect(db) {
	case "postgres":
		err = db.Raw("SELECT COUNT(*) FROM information_schema.schemata WHERE schema_name = ?", ns).Scan(&n).Error
	case "mysql":
		err = db.Raw("SELECT COUNT(*) FROM information_schema.schemata WHERE schema_name = ?", ns).Scan(&n).Error
	case "sqlserver":
		err = db.Raw("SELECT COUNT(*) FROM sys.schemas WHERE name = ?", ns).Scan(&n).Error
	case "sqlite":
		err = db.Raw("SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name LIKE ? ESCAPE '\\'",
			escapeLike(ns+sqlitePrefixSeparator)+"%").Scan(&n).Error
	default:
		return false, fmt.Errorf("unsupported dialect %q", Dialect(db))
	}
	if err != nil {
		return false, fmt.Errorf("%w: check namespace %q: %v", types.ErrStorageFailure, ns, err)
	}
	return n > 0, nil
}

// CreateNamespace creates the namespace and every catalog table inside it.
// On mysql the DDL commits implicitly, callers must DropNamespace if a later step fails.
func CreateNamespace(tx *gorm.DB, ns string) error {
	exists, err := NamespaceExists(tx, ns)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("%w: namespace %q already exists", types.ErrNamespaceCollision, ns)
	}

	var stmt string
	switch Dialect(tx) {
	case "postgres":
		stmt = "CREATE SCHEMA " + pq.QuoteIdentifier(ns)
	case "mysql":
		stmt = "CREATE DATABASE " + Quote(tx, ns) + " CHARACTER SET utf8mb4"
	case "sqlserver":
		// CREATE SCHEMA must open its own batch
		stmt = "EXEC('CREATE SCHEMA " + Quote(tx, ns) + "')"
	}
	if stmt != "" {
		if err := tx.Exec(stmt).Error; err != nil {
			if IsNamespaceExists(err) {
				return fmt.Errorf("%w: namespace %q already exists", types.ErrNamespaceCollision, ns)
			}
			return fmt.Errorf("%w: create namespace %q: %v", types.ErrStorageFailure, ns, err)
		}
	}

	for _, def := range catalog.All() {
		if err := createCategoryTable(tx, ns, def); err != nil {
			return err
		}
	}
	return nil
}

// DropNamespace removes the namespace and every table in it. A missing namespace is not an error.
func DropNamespace(tx *gorm.DB, ns string) error {
	var stmts []string

	switch Dialect(tx) {
	case "postgres":
		stmts = append(stmts, "DROP SCHEMA IF EXISTS "+pq.QuoteIdentifier(ns)+" CASCADE")
	case "mysql":
		stmts = append(stmts, "DROP DATABASE IF EXISTS "+Quote(tx, ns))
	case "sqlserver":
		var tables []string
		if err := tx.Raw("SELECT TABLE_NAME FROM INFORMATION_SCHEMA.TABLES WHERE TABLE_SCHEMA = ?", ns).
			Scan(&tables).Error; err != nil {
			return fmt.Errorf("%w: list tables of %q: %v", types.ErrStorageFailure, ns, err)
		}
		for _, t := range tables {
			stmts = append(stmts, "DROP TABLE "+Quote(tx, ns+"."+t))
		}
		stmts = append(stmts, "IF SCHEMA_ID('"+ns+"') IS NOT NULL EXEC('DROP SCHEMA "+Quote(tx, ns)+"')")
	case "sqlite":
		var tables []string
		if err := tx.Raw("SELECT name FROM sqlite_master WHERE type = 'table' AND name LIKE ? ESCAPE '\\'",
			escapeLike(ns+sqlitePrefixSeparator)+"%").Scan(&tables).Error; err != nil {
			return fmt.Errorf("%w: list tables of %q: %v", types.ErrStorageFailure, ns, err)
		}
		for _, t := range tables {
			stmts = append(stmts, "DROP TABLE IF EXISTS "+Quote(tx, t))
		}
	default:
		return fmt.Errorf("unsupported dialect %q", Dialect(tx))
	}

	for _, stmt := range stmts {
		if err := tx.Exec(stmt).Error; err != nil {
			return fmt.Errorf("%w: drop namespace %q: %v", types.ErrStorageFailure, ns, err)
		}
	}
	return nil
}

// TableExists reports whether the category table exists in the namespace
func TableExists(db *gorm.DB, ns string, category catalog.Category) (bool, error) {
	var n int64
	var err error

	switch Dialect(db) {
	case "postgres", "mysql":
		err = db.Raw("SELECT COUNT(*) FROM information_schema.tables WHERE table_schema = ? AND table_name = ?",
			ns, string(category)).Scan(&n).Error
	case "sqlserver":
		err = db.Raw("SELECT COUNT(*) FROM INFORMATION_SCHEMA.TABLES WHERE TABLE_SCHEMA = ? AND TABLE_NAME = ?",
			ns, string(category)).Scan(&n).Error
	case "sqlite":
		err = db.Raw("SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?",
			TableName(db, ns, category)).Scan(&n).Error
	default:
		return false, fmt.Errorf("unsupported dialect %q", Dialect(db))
	}
	if err != nil {
		return false, fmt.Errorf("%w: check table %s: %v", types.ErrStorageFailure, category, err)
	}
	return n > 0, nil
}

func createCategoryTable(tx *gorm.DB, ns string, def *catalog.Definition) error {
	dialect := Dialect(tx)
	table := TableName(tx, ns, def.Name)

	cols := make([]string, 0, len(def.Cols)+3)
	cols = append(cols, Quote(tx, catalog.ColumnID)+" "+identityDDL(dialect))
	for _, col := range def.Cols {
		cols = append(cols, Quote(tx, col.Name)+" "+ColumnDDL(dialect, col))
	}
	cols = append(cols,
		Quote(tx, catalog.ColumnRunID)+" VARCHAR(36)",
		Quote(tx, catalog.ColumnIngestedAt)+" "+ColumnDDL(dialect, catalog.Column{Type: catalog.TypeTimestamp}),
	)

	stmt := fmt.Sprintf("CREATE TABLE %s (%s)", Quote(tx, table), strings.Join(cols, ", "))
	if err := tx.Exec(stmt).Error; err != nil {
		return fmt.Errorf("%w: create table %s: %v", types.ErrStorageFailure, table, err)
	}

	// sqlite index names are global to the file, elsewhere they are scoped by schema or table
	index := string(def.Name) + "_run_id_idx"
	if dialect == "sqlite" {
		index = table + "_run_id_idx"
	}
	stmt = fmt.Sprintf("CREATE INDEX %s ON %s (%s)", Quote(tx, index), Quote(tx, table), Quote(tx, catalog.ColumnRunID))
	if err := tx.Exec(stmt).Error; err != nil {
		return fmt.Errorf("%w: index table %s: %v", types.ErrStorageFailure, table, err)
	}
	return nil
}

func identityDDL(dialect string) string {
	switch dialect {
	case "postgres":
		return "BIGSERIAL PRIMARY KEY"
	case "mysql":
		return "BIGINT AUTO_INCREMENT PRIMARY KEY"
	case "sqlserver":
		return "BIGINT IDENTITY(1,1) PRIMARY KEY"
	default:
		return "INTEGER PRIMARY KEY AUTOINCREMENT"
	}
}

// ColumnDDL returns the SQL type of a catalog column for a dialect
func ColumnDDL(dialect string, col catalog.Column) string {
	switch col.Type {
	case catalog.TypeInteger:
		if dialect == "sqlite" {
			return "INTEGER"
		}
		return "BIGINT"
	case catalog.TypeDecimal:
		return fmt.Sprintf("DECIMAL(20,%d)", col.Scale)
	case catalog.TypeBoolean:
		switch dialect {
		case "mysql":
			return "TINYINT(1)"
		case "sqlserver":
			return "BIT"
		default:
			return "BOOLEAN"
		}
	case catalog.TypeTimestamp:
		switch dialect {
		case "postgres":
			return "TIMESTAMPTZ"
		case "mysql":
			return "DATETIME(6)"
		case "sqlserver":
			return "DATETIME2"
		default:
			return "DATETIME"
		}
	default:
		if dialect == "sqlserver" {
			return "NVARCHAR(MAX)"
		}
		return "TEXT"
	}
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
