// Package query reads the artifact tables of a case: paged listings, keyword
// search, per-user rollups, exports and admin SQL. Every operation is read-only.
package query

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/localnerve/lite/internal/catalog"
	"github.com/localnerve/lite/internal/database"
	"github.com/localnerve/lite/internal/models"
	"github.com/localnerve/lite/internal/types"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Row is one artifact row keyed by column name
type Row map[string]interface{}

var (
	idColumn         = catalog.Column{Name: catalog.ColumnID, Type: catalog.TypeInteger}
	runIDColumn      = catalog.Column{Name: catalog.ColumnRunID, Type: catalog.TypeString}
	ingestedAtColumn = catalog.Column{Name: catalog.ColumnIngestedAt, Type: catalog.TypeTimestamp}
)

// tableColumns lists every stored column of a category in table order
func tableColumns(def *catalog.Definition) []catalog.Column {
	cols := make([]catalog.Column, 0, len(def.Cols)+3)
	cols = append(cols, idColumn)
	cols = append(cols, def.Columns()...)
	return append(cols, runIDColumn, ingestedAtColumn)
}

func silent(db *gorm.DB) *gorm.DB {
	return db.Session(&gorm.Session{Logger: db.Logger.LogMode(logger.Silent)})
}

// resolve checks the case and category of a read
func resolve(c *models.Case, category string) (*catalog.Definition, error) {
	if c == nil {
		return nil, fmt.Errorf("%w: case", types.ErrNotFound)
	}
	def, err := catalog.Get(catalog.Category(category))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", types.ErrNotFound, err)
	}
	return def, nil
}

func selectList(db *gorm.DB, cols []catalog.Column) string {
	names := make([]string, len(cols))
	for i, col := range cols {
		names[i] = database.Quote(db, col.Name)
	}
	return strings.Join(names, ", ")
}

func readError(err error, c *models.Case, category string) error {
	if database.IsMissingTable(err) {
		return fmt.Errorf("%w: %s in case %d", types.ErrNotFound, category, c.ID)
	}
	return fmt.Errorf("%w: read %s: %v", types.ErrStorageFailure, category, err)
}

// scanRow reads the current row of rows into a Row, normalising driver values
func scanRow(rows *sql.Rows, cols []catalog.Column) (Row, error) {
	dest := make([]interface{}, len(cols))
	ptrs := make([]interface{}, len(cols))
	for i := range dest {
		ptrs[i] = &dest[i]
	}
	if err := rows.Scan(ptrs...); err != nil {
		return nil, err
	}
	row := make(Row, len(cols))
	for i, col := range cols {
		row[col.Name] = normalize(col, dest[i])
	}
	return row, nil
}

// normalize converts a driver value to its API representation: decimals become
// json.Number at column scale, timestamps UTC time.Time and json columns raw JSON.
func normalize(col catalog.Column, v interface{}) interface{} {
	if b, ok := v.([]byte); ok {
		v = string(b)
	}
	if v == nil {
		return nil
	}

	switch col.Type {
	case catalog.TypeInteger:
		switch t := v.(type) {
		case int64:
			return t
		case int32:
			return int64(t)
		case int:
			return int64(t)
		case float64:
			return int64(t)
		case string:
			if n, err := strconv.ParseInt(strings.TrimSpace(t), 10, 64); err == nil {
				return n
			}
		}
	case catalog.TypeDecimal:
		scale := col.Scale
		if scale <= 0 {
			scale = catalog.DefaultDecimalScale
		}
		r := new(big.Rat)
		switch t := v.(type) {
		case float64:
			r.SetFloat64(t)
		case int64:
			r.SetInt64(t)
		case string:
			if _, ok := r.SetString(strings.TrimSpace(t)); !ok {
				return t
			}
		default:
			return v
		}
		return json.Number(r.FloatString(scale))
	case catalog.TypeBoolean:
		switch t := v.(type) {
		case bool:
			return t
		case int64:
			return t != 0
		case string:
			switch strings.ToLower(t) {
			case "1", "t", "true":
				return true
			case "0", "f", "false":
				return false
			}
		}
	case catalog.TypeTimestamp:
		switch t := v.(type) {
		case time.Time:
			return t.UTC()
		case string:
			if ts, ok := parseStoredTime(t); ok {
				return ts
			}
		}
	case catalog.TypeJSON:
		if s, ok := v.(string); ok && json.Valid([]byte(s)) {
			return json.RawMessage(s)
		}
	}
	return v
}

var storedTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999 -0700 MST",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
}

// parseStoredTime reads timestamps that come back from sqlite as text
func parseStoredTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range storedTimeLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts.UTC(), true
		}
	}
	return time.Time{}, false
}

// textValue renders a normalised value as export text. NULL is the empty string.
func textValue(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case json.Number:
		return t.String()
	case json.RawMessage:
		return string(t)
	case time.Time:
		return t.Format(time.RFC3339Nano)
	case bool:
		return strconv.FormatBool(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	}
	return fmt.Sprint(v)
}
