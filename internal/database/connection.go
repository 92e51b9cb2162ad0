// connection.go
//
// LITE, a forensic triage case and artifact ingestion service
// Copyright (c) 2026 Alex Grant <info@localnerve.com> (https://www.localnerve.com), LocalNerve LLC
//
// This file is part of lite.
// lite is free software: you can redistribute it and/or modify it
// under the terms of the GNU Affero General Public License as published by the Free Software
// Foundation, either version 3 of the License, or (at your option) any later version.
// lite is distributed in the hope that it will be useful, but WITHOUT ANY WARRANTY;
// without even the implied warranty of MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.
// See the GNU Affero General Public License for more details.
// You should have received a copy of the GNU Affero General Public License along with lite.
// If not, see <https://www.gnu.org/licenses/>.
// Additional terms under GNU AGPL version 3 section 7:
// a) The reasonable legal notice of original copyright and author attribution must be preserved
//    by including the string: "Copyright (c) 2026 Alex Grant <info@localnerve.com> (https://www.localnerve.com), LocalNerve LLC"
//    in this material, copies, or source code of derived works.

package database

import (
	"fmt"
	"log/slog"
	"net"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	mysqldriver "github.com/go-sql-driver/mysql"
	"github.com/localnerve/lite/internal/config"
	"github.com/localnerve/lite/internal/logging"
	"github.com/localnerve/lite/internal/models"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlserver"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Credentials selects the user and pool size of a connection
type Credentials struct {
	User     string
	Password string
	Limit    int
}

// Connect establishes the read-write app pool based on the configured DB_TYPE
func Connect(cfg *config.Config) (*gorm.DB, error) {
	return open(cfg, Credentials{
		User:     cfg.DBAppUser,
		Password: cfg.DBAppPassword,
		Limit:    cfg.DBAppConnectionLimit,
	}, "app")
}

// ConnectRead establishes the query pool, optionally with a read-only database user
func ConnectRead(cfg *config.Config) (*gorm.DB, error) {
	return open(cfg, Credentials{
		User:     cfg.DBReadUser,
		Password: cfg.DBReadPassword,
		Limit:    cfg.DBReadConnectionLimit,
	}, "read")
}

// Dialector builds the gorm dialector for DB_TYPE with the given credentials
func Dialector(cfg *config.Config, creds Credentials) (gorm.Dialector, error) {
	switch cfg.DBType {
	case "mysql", "mariadb":
		mc := mysqldriver.NewConfig()
		mc.User = creds.User
		mc.Passwd = creds.Password
		mc.Net = "tcp"
		mc.Addr = net.JoinHostPort(cfg.DBHost, cfg.DBPort)
		mc.DBName = cfg.DBDatabase
		mc.ParseTime = true
		mc.Loc = time.UTC
		mc.Params = map[string]string{"charset": "utf8mb4"}
		return mysql.Open(mc.FormatDSN()), nil

	case "postgres", "postgresql":
		dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=disable TimeZone=UTC",
			cfg.DBHost,
			creds.User,
			creds.Password,
			cfg.DBDatabase,
			cfg.DBPort,
		)
		return postgres.Open(dsn), nil

	case "sqlite":
		// For SQLite, DBDatabase is the file path or a file: URI
		return sqlite.Open(sqliteDSN(cfg.DBDatabase)), nil

	case "sqlserver", "mssql":
		dsn := fmt.Sprintf("sqlserver://%s:%s@%s:%s?database=%s",
			creds.User,
			creds.Password,
			cfg.DBHost,
			cfg.DBPort,
			cfg.DBDatabase,
		)
		return sqlserver.Open(dsn), nil
	}

	return nil, fmt.Errorf("unsupported database type: %s", cfg.DBType)
}

func open(cfg *config.Config, creds Credentials, pool string) (*gorm.DB, error) {
	log := logging.New("database")

	dialector, err := Dialector(cfg, creds)
	if err != nil {
		return nil, err
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(gormLogLevel(cfg.DBLogLevel)),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s database: %w", pool, err)
	}

	// Get underlying SQL DB for connection pool configuration
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying SQL DB: %w", err)
	}

	limit := creds.Limit
	if cfg.DBType == "sqlite" {
		// one writer at a time, shared-cache memory databases need a single connection
		limit = 1
	}
	sqlDB.SetMaxOpenConns(limit)
	sqlDB.SetMaxIdleConns(max(limit/2, 1))

	log.Info("connected", slog.String("pool", pool), slog.String("type", cfg.DBType), slog.String("database", cfg.DBDatabase))

	return db, nil
}

func sqliteDSN(path string) string {
	if strings.HasPrefix(path, "file:") || path == ":memory:" {
		return path
	}
	return "file:" + path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
}

func gormLogLevel(level string) logger.LogLevel {
	switch strings.ToLower(level) {
	case "silent":
		return logger.Silent
	case "error":
		return logger.Error
	case "info", "debug":
		return logger.Info
	default:
		return logger.Warn
	}
}

// AutoMigrate runs automatic migrations for the control tables
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.Case{},
		&models.IngestionRun{},
	)
}

// Close closes the database connection
func Close(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
