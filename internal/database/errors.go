package database

import (
	"errors"
	"strings"

	mysqldriver "github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"gorm.io/gorm"
)

// postgres SQLSTATE codes
const (
	pgUniqueViolation = "23505"
	pgDuplicateSchema = "42P06"
	pgUndefinedTable  = "42P01"
)

// mysql error numbers
const (
	myDuplicateEntry = 1062
	myDBCreateExists = 1007
	myNoSuchTable    = 1146
)

// IsUniqueViolation reports whether err is a unique constraint violation on any dialect
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	if code, ok := pgCode(err); ok {
		return code == pgUniqueViolation
	}
	var myErr *mysqldriver.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == myDuplicateEntry
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint failed") ||
		strings.Contains(msg, "cannot insert duplicate key") ||
		strings.Contains(msg, "violation of unique key")
}

// IsNamespaceExists reports whether err says a schema or database already exists
func IsNamespaceExists(err error) bool {
	if err == nil {
		return false
	}
	if code, ok := pgCode(err); ok {
		return code == pgDuplicateSchema
	}
	var myErr *mysqldriver.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == myDBCreateExists
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "already exists") || strings.Contains(msg, "there is already an object named")
}

// IsMissingTable reports whether err says a table does not exist
func IsMissingTable(err error) bool {
	if err == nil {
		return false
	}
	if code, ok := pgCode(err); ok {
		return code == pgUndefinedTable
	}
	var myErr *mysqldriver.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == myNoSuchTable
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "no such table") || strings.Contains(msg, "invalid object name")
}

// ViolatedColumn guesses the column named by a unique violation message or constraint
func ViolatedColumn(err error, candidates ...string) string {
	var detail string
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		detail = pgErr.ConstraintName + " " + pgErr.Detail
	} else {
		detail = err.Error()
	}
	detail = strings.ToLower(detail)
	for _, c := range candidates {
		if strings.Contains(detail, c) {
			return c
		}
	}
	return ""
}

func pgCode(err error) (string, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code, true
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code), true
	}
	return "", false
}
