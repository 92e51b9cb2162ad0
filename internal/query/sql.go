package query

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/localnerve/lite/internal/database"
	"github.com/localnerve/lite/internal/models"
	"github.com/localnerve/lite/internal/types"
	"gorm.io/gorm"
)

// DefaultSQLLimit caps the rows returned by ReadOnlySQL
const DefaultSQLLimit = 1000

// SQLResult is the outcome of an admin query
type SQLResult struct {
	Columns   []string        `json:"columns"`
	Rows      [][]interface{} `json:"rows"`
	Truncated bool            `json:"truncated"`
}

var (
	statementStart = regexp.MustCompile(`(?i)^(select|with)\b`)
	forbiddenWords = regexp.MustCompile(`(?i)\b(insert|update|delete|merge|upsert|replace|drop|alter|create|truncate|rename|grant|revoke|attach|detach|pragma|vacuum|reindex|analyze|exec|execute|call|do|copy|lock|unlock|set|reset|into|load|handler|shutdown|kill|load_file|outfile|dumpfile|pg_sleep|pg_read_file|pg_terminate_backend|dblink|openrowset|opendatasource|xp_cmdshell|waitfor|sleep|benchmark)\b`)
	errRollback    = errors.New("rollback")
)

// CheckReadOnly rejects anything but one SELECT or WITH statement
func CheckReadOnly(query string) (string, error) {
	q := strings.TrimSpace(query)
	q = strings.TrimSpace(strings.TrimRight(q, "; \t\r\n"))
	if q == "" {
		return "", fmt.Errorf("%w: query is empty", types.ErrForbiddenQuery)
	}
	if strings.Contains(q, ";") {
		return "", fmt.Errorf("%w: only one statement is allowed", types.ErrForbiddenQuery)
	}
	if strings.Contains(q, "--") || strings.Contains(q, "/*") || strings.Contains(q, "#") {
		return "", fmt.Errorf("%w: comments are not allowed", types.ErrForbiddenQuery)
	}
	if !statementStart.MatchString(q) {
		return "", fmt.Errorf("%w: only SELECT or WITH statements are allowed", types.ErrForbiddenQuery)
	}
	if w := forbiddenWords.FindString(q); w != "" {
		return "", fmt.Errorf("%w: %q is not allowed", types.ErrForbiddenQuery, strings.ToUpper(w))
	}
	return q, nil
}

// ReadOnlySQL runs an admin query against the case inside a transaction that
// is always rolled back. Postgres and mysql also get a read-only transaction,
// sqlite runs with query_only, and postgres resolves bare table names in the case schema.
func ReadOnlySQL(ctx context.Context, db *gorm.DB, c *models.Case, query string, limit int) (*SQLResult, error) {
	if c == nil {
		return nil, fmt.Errorf("%w: case", types.ErrNotFound)
	}
	q, err := CheckReadOnly(query)
	if err != nil {
		return nil, err
	}
	if limit < 1 {
		limit = DefaultSQLLimit
	}

	dialect := database.Dialect(db)
	var opts []*sql.TxOptions
	switch dialect {
	case "postgres", "mysql":
		opts = append(opts, &sql.TxOptions{ReadOnly: true})
	}

	result := &SQLResult{Columns: []string{}, Rows: [][]interface{}{}}
	err = silent(db).WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		switch dialect {
		case "postgres":
			if err := tx.Exec("SET LOCAL search_path TO " + pq.QuoteIdentifier(c.Namespace)).Error; err != nil {
				return err
			}
		case "sqlite":
			if err := tx.Exec("PRAGMA query_only = ON").Error; err != nil {
				return err
			}
			defer tx.Exec("PRAGMA query_only = OFF")
		}

		rows, err := tx.Raw(q).Rows()
		if err != nil {
			return err
		}
		defer rows.Close()
		if result.Columns, err = rows.Columns(); err != nil {
			return err
		}
		for rows.Next() {
			if len(result.Rows) >= limit {
				result.Truncated = true
				break
			}
			dest := make([]interface{}, len(result.Columns))
			ptrs := make([]interface{}, len(dest))
			for i := range dest {
				ptrs[i] = &dest[i]
			}
			if err := rows.Scan(ptrs...); err != nil {
				return err
			}
			for i, v := range dest {
				switch t := v.(type) {
				case []byte:
					dest[i] = string(t)
				case time.Time:
					dest[i] = t.UTC()
				}
			}
			result.Rows = append(result.Rows, dest)
		}
		if err := rows.Err(); err != nil {
			return err
		}
		return errRollback
	}, opts...)

	if err != nil && !errors.Is(err, errRollback) {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", types.ErrInvalidArgument, err)
	}
	return result, nil
}
