package query

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"github.com/localnerve/lite/internal/catalog"
	"github.com/localnerve/lite/internal/database"
	"github.com/localnerve/lite/internal/models"
	"github.com/localnerve/lite/internal/types"
	"gorm.io/gorm"
	"gorm.io/hints"
)

// Search limits
const (
	DefaultSearchLimit = 50
	MaxSearchLimit     = 500
	snippetContext     = 40
)

// SearchParams selects the keyword and categories of a search
type SearchParams struct {
	Keyword    string   `json:"keyword" query:"q"`
	Categories []string `json:"categories" query:"categories"`
	Limit      int      `json:"limit" query:"limit"`
}

// SearchHit is one matching column of one row
type SearchHit struct {
	Category catalog.Category `json:"category"`
	Column   string           `json:"column"`
	RowID    int64            `json:"row_id"`
	Snippet  string           `json:"snippet"`
}

// Search scans the searchable columns of a case for a keyword, case-insensitively
func Search(ctx context.Context, db *gorm.DB, c *models.Case, p SearchParams) ([]SearchHit, error) {
	if c == nil {
		return nil, fmt.Errorf("%w: case", types.ErrNotFound)
	}
	keyword := strings.TrimSpace(p.Keyword)
	if keyword == "" {
		return nil, fmt.Errorf("%w: keyword is required", types.ErrInvalidArgument)
	}
	limit := p.Limit
	if limit < 1 {
		limit = DefaultSearchLimit
	}
	if limit > MaxSearchLimit {
		limit = MaxSearchLimit
	}

	defs := catalog.All()
	if len(p.Categories) > 0 {
		defs = defs[:0:0]
		for _, name := range p.Categories {
			def, err := resolve(c, strings.TrimSpace(name))
			if err != nil {
				return nil, err
			}
			defs = append(defs, def)
		}
	}

	hits := []SearchHit{}
	pattern := likePattern(keyword)
	for _, def := range defs {
		if len(hits) >= limit {
			break
		}
		searchable := def.SearchableColumns()
		if len(searchable) == 0 {
			continue
		}

		cols := append([]catalog.Column{idColumn}, searchable...)
		parts := make([]string, len(searchable))
		args := make([]interface{}, len(searchable))
		for i, col := range searchable {
			parts[i] = likeExpr(db, col.Name)
			args[i] = pattern
		}

		rows, err := silent(db).WithContext(ctx).
			Clauses(hints.Comment("select", "lite:search")).
			Table(database.TableName(db, c.Namespace, def.Name)).
			Select(selectList(db, cols)).
			Where(strings.Join(parts, " OR "), args...).
			Order(database.Quote(db, catalog.ColumnID)).
			Limit(limit - len(hits)).
			Rows()
		if err != nil {
			return nil, readError(err, c, string(def.Name))
		}

		for rows.Next() {
			row, err := scanRow(rows, cols)
			if err != nil {
				rows.Close()
				return nil, readError(err, c, string(def.Name))
			}
			id, _ := row[catalog.ColumnID].(int64)
			for _, col := range searchable {
				snippet, ok := Snippet(textValue(row[col.Name]), keyword)
				if !ok {
					continue
				}
				hits = append(hits, SearchHit{Category: def.Name, Column: col.Name, RowID: id, Snippet: snippet})
				if len(hits) >= limit {
					break
				}
			}
			if len(hits) >= limit {
				break
			}
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return nil, readError(err, c, string(def.Name))
		}
	}
	return hits, nil
}

// Snippet returns the first case-insensitive match of keyword in text with
// about 40 characters of context on each side.
func Snippet(text, keyword string) (string, bool) {
	runes := []rune(text)
	kw := foldRunes([]rune(keyword))
	at := indexRunes(foldRunes(runes), kw)
	if at < 0 {
		return "", false
	}
	start := at - snippetContext
	end := at + len(kw) + snippetContext

	var b strings.Builder
	if start > 0 {
		b.WriteString("...")
	} else {
		start = 0
	}
	if end > len(runes) {
		end = len(runes)
	}
	b.WriteString(strings.TrimSpace(string(runes[start:end])))
	if end < len(runes) {
		b.WriteString("...")
	}
	return b.String(), true
}

func foldRunes(rs []rune) []rune {
	out := make([]rune, len(rs))
	for i, r := range rs {
		out[i] = unicode.ToLower(r)
	}
	return out
}

func indexRunes(s, sub []rune) int {
	if len(sub) == 0 {
		return -1
	}
	for i := 0; i+len(sub) <= len(s); i++ {
		match := true
		for j := range sub {
			if s[i+j] != sub[j] {
				match = false
				break
			}
		}
		if match {
			return i
		}
	}
	return -1
}
