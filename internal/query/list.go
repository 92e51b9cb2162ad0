package query

import (
	"context"
	"fmt"
	"strings"

	"github.com/localnerve/lite/internal/catalog"
	"github.com/localnerve/lite/internal/database"
	"github.com/localnerve/lite/internal/ingest"
	"github.com/localnerve/lite/internal/models"
	"github.com/localnerve/lite/internal/types"
	"gorm.io/gorm"
	"gorm.io/hints"
)

// Paging limits for listings
const (
	DefaultPerPage = 50
	MaxPerPage     = 500
)

// ListParams selects one page of a category table
type ListParams struct {
	Page    int
	PerPage int
	// Filters are "column:value" exact-match terms
	Filters []string
	Q       string
	Sort    string
	Order   string
}

// Page is one page of artifact rows
type Page struct {
	Category catalog.Category `json:"category"`
	Columns  []string         `json:"columns"`
	Rows     []Row            `json:"rows"`
	Total    int64            `json:"total"`
	Page     int              `json:"page"`
	PerPage  int              `json:"per_page"`
	Pages    int              `json:"pages"`
}

// List returns a filtered, sorted page of a category table of the case
func List(ctx context.Context, db *gorm.DB, c *models.Case, category string, p ListParams) (*Page, error) {
	def, err := resolve(c, category)
	if err != nil {
		return nil, err
	}
	if p.PerPage < 1 {
		p.PerPage = DefaultPerPage
	}
	if p.PerPage > MaxPerPage {
		p.PerPage = MaxPerPage
	}
	if p.Page < 1 {
		p.Page = 1
	}

	cols := tableColumns(def)
	table := database.TableName(db, c.Namespace, def.Name)
	scope, err := listScope(db, def, p)
	if err != nil {
		return nil, err
	}

	var total int64
	if err := silent(db).WithContext(ctx).Table(table).Scopes(scope).Count(&total).Error; err != nil {
		return nil, readError(err, c, category)
	}

	order, err := orderBy(db, def, p.Sort, p.Order)
	if err != nil {
		return nil, err
	}

	rows, err := silent(db).WithContext(ctx).
		Clauses(hints.Comment("select", "lite:list")).
		Table(table).
		Select(selectList(db, cols)).
		Scopes(scope).
		Order(order).
		Offset((p.Page - 1) * p.PerPage).
		Limit(p.PerPage).
		Rows()
	if err != nil {
		return nil, readError(err, c, category)
	}
	defer rows.Close()

	page := &Page{
		Category: def.Name,
		Columns:  make([]string, len(cols)),
		Rows:     []Row{},
		Total:    total,
		Page:     p.Page,
		PerPage:  p.PerPage,
		Pages:    int((total + int64(p.PerPage) - 1) / int64(p.PerPage)),
	}
	for i, col := range cols {
		page.Columns[i] = col.Name
	}
	for rows.Next() {
		row, err := scanRow(rows, cols)
		if err != nil {
			return nil, readError(err, c, category)
		}
		page.Rows = append(page.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, readError(err, c, category)
	}
	return page, nil
}

// listScope applies the filter and keyword terms of a listing
func listScope(db *gorm.DB, def *catalog.Definition, p ListParams) (func(*gorm.DB) *gorm.DB, error) {
	type cond struct {
		sql  string
		args []interface{}
	}
	var conds []cond

	for _, term := range p.Filters {
		name, raw, ok := strings.Cut(term, ":")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("%w: filter %q is not column:value", types.ErrInvalidArgument, term)
		}
		col, ok := filterColumn(def, name)
		if !ok {
			return nil, fmt.Errorf("%w: unknown column %q", types.ErrInvalidArgument, name)
		}
		v, err := ingest.Coerce(col, raw)
		if err != nil {
			return nil, fmt.Errorf("%w: filter %s: %v", types.ErrInvalidArgument, name, err)
		}
		quoted := database.Quote(db, col.Name)
		if v == nil {
			conds = append(conds, cond{sql: quoted + " IS NULL"})
			continue
		}
		conds = append(conds, cond{sql: quoted + " = ?", args: []interface{}{v}})
	}

	if q := strings.TrimSpace(p.Q); q != "" {
		searchable := def.SearchableColumns()
		if len(searchable) > 0 {
			parts := make([]string, len(searchable))
			args := make([]interface{}, len(searchable))
			pattern := likePattern(q)
			for i, col := range searchable {
				parts[i] = likeExpr(db, col.Name)
				args[i] = pattern
			}
			conds = append(conds, cond{sql: "(" + strings.Join(parts, " OR ") + ")", args: args})
		}
	}

	return func(tx *gorm.DB) *gorm.DB {
		for _, c := range conds {
			tx = tx.Where(c.sql, c.args...)
		}
		return tx
	}, nil
}

func filterColumn(def *catalog.Definition, name string) (catalog.Column, bool) {
	switch name {
	case catalog.ColumnID:
		return idColumn, true
	case catalog.ColumnRunID:
		return runIDColumn, true
	case catalog.ColumnIngestedAt:
		return ingestedAtColumn, true
	}
	return def.Column(name)
}

func orderBy(db *gorm.DB, def *catalog.Definition, sort, order string) (string, error) {
	sort = strings.TrimSpace(sort)
	if sort == "" {
		sort = catalog.ColumnID
	}
	if _, ok := filterColumn(def, sort); !ok {
		return "", fmt.Errorf("%w: cannot sort by %q", types.ErrInvalidArgument, sort)
	}

	dir := "ASC"
	switch strings.ToLower(strings.TrimSpace(order)) {
	case "", "asc":
	case "desc":
		dir = "DESC"
	default:
		return "", fmt.Errorf("%w: order must be asc or desc", types.ErrInvalidArgument)
	}

	expr := database.Quote(db, sort) + " " + dir
	if sort != catalog.ColumnID {
		expr += ", " + database.Quote(db, catalog.ColumnID) + " " + dir
	}
	return expr, nil
}

// likeEscape is the LIKE escape character; '!' needs no quoting in any supported dialect
const likeEscape = "!"

func likePattern(q string) string {
	r := strings.NewReplacer(likeEscape, likeEscape+likeEscape, "%", likeEscape+"%", "_", likeEscape+"_", "[", likeEscape+"[")
	return "%" + r.Replace(strings.ToLower(q)) + "%"
}

func likeExpr(db *gorm.DB, column string) string {
	return "LOWER(" + database.Quote(db, column) + ") LIKE ? ESCAPE '" + likeEscape + "'"
}
