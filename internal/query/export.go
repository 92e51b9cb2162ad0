package query

import (
	"bufio"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/localnerve/lite/internal/catalog"
	"github.com/localnerve/lite/internal/database"
	"github.com/localnerve/lite/internal/models"
	"github.com/localnerve/lite/internal/types"
	"gorm.io/gorm"
	"gorm.io/hints"
)

// Export formats
const (
	FormatCSV  = "csv"
	FormatJSON = "json"
)

// ParseFormat validates an export format, defaulting to JSON
func ParseFormat(s string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", FormatJSON:
		return FormatJSON, nil
	case FormatCSV:
		return FormatCSV, nil
	}
	return "", fmt.Errorf("%w: unsupported export format %q", types.ErrInvalidArgument, s)
}

// Export streams one category table of the case to w as CSV or a JSON array.
// Columns are the catalog columns in catalog order.
func Export(ctx context.Context, db *gorm.DB, c *models.Case, category, format string, w io.Writer) error {
	def, err := resolve(c, category)
	if err != nil {
		return err
	}
	format, err = ParseFormat(format)
	if err != nil {
		return err
	}

	bw := bufio.NewWriter(w)
	switch format {
	case FormatCSV:
		err = exportCSV(ctx, db, c, def, bw)
	default:
		err = exportJSON(ctx, db, c, def, bw)
	}
	if err != nil {
		return err
	}
	return bw.Flush()
}

// ExportCase streams every category of the case as one JSON object keyed by
// category name, a document the ingestion engine accepts as is.
func ExportCase(ctx context.Context, db *gorm.DB, c *models.Case, w io.Writer) error {
	if c == nil {
		return fmt.Errorf("%w: case", types.ErrNotFound)
	}
	bw := bufio.NewWriter(w)
	if _, err := bw.WriteString("{"); err != nil {
		return err
	}
	for i, def := range catalog.All() {
		key, err := json.Marshal(string(def.Name))
		if err != nil {
			return err
		}
		if i > 0 {
			key = append([]byte(","), key...)
		}
		if _, err := bw.Write(append(key, ':')); err != nil {
			return err
		}
		if err := exportJSON(ctx, db, c, def, bw); err != nil {
			return err
		}
	}
	if _, err := bw.WriteString("}\n"); err != nil {
		return err
	}
	return bw.Flush()
}

// eachRow runs fn for every row of a category table, ordered by id, one row at a time
func eachRow(ctx context.Context, db *gorm.DB, c *models.Case, def *catalog.Definition, fn func(Row) error) error {
	cols := def.Columns()
	rows, err := silent(db).WithContext(ctx).
		Clauses(hints.Comment("select", "lite:export")).
		Table(database.TableName(db, c.Namespace, def.Name)).
		Select(selectList(db, cols)).
		Order(database.Quote(db, catalog.ColumnID)).
		Rows()
	if err != nil {
		return readError(err, c, string(def.Name))
	}
	defer rows.Close()

	for rows.Next() {
		row, err := scanRow(rows, cols)
		if err != nil {
			return readError(err, c, string(def.Name))
		}
		if err := fn(row); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return readError(err, c, string(def.Name))
	}
	return nil
}

func exportCSV(ctx context.Context, db *gorm.DB, c *models.Case, def *catalog.Definition, w io.Writer) error {
	cw := csv.NewWriter(w)
	names := def.ColumnNames()
	if err := cw.Write(names); err != nil {
		return err
	}
	record := make([]string, len(names))
	err := eachRow(ctx, db, c, def, func(row Row) error {
		for i, name := range names {
			record[i] = textValue(row[name])
		}
		return cw.Write(record)
	})
	if err != nil {
		return err
	}
	cw.Flush()
	return cw.Error()
}

func exportJSON(ctx context.Context, db *gorm.DB, c *models.Case, def *catalog.Definition, w *bufio.Writer) error {
	names := def.ColumnNames()
	if _, err := w.WriteString("["); err != nil {
		return err
	}
	first := true
	err := eachRow(ctx, db, c, def, func(row Row) error {
		if !first {
			w.WriteString(",")
		}
		first = false
		return writeOrdered(w, names, row)
	})
	if err != nil {
		return err
	}
	_, err = w.WriteString("]")
	return err
}

// writeOrdered encodes row as a JSON object with keys in names order
func writeOrdered(w *bufio.Writer, names []string, row Row) error {
	w.WriteString("{")
	for i, name := range names {
		if i > 0 {
			w.WriteString(",")
		}
		key, _ := json.Marshal(name)
		w.Write(key)
		w.WriteString(":")
		val, err := json.Marshal(row[name])
		if err != nil {
			return fmt.Errorf("encode %s: %w", name, err)
		}
		w.Write(val)
	}
	_, err := w.WriteString("}")
	return err
}
