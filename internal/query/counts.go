package query

import (
	"context"
	"fmt"

	"github.com/localnerve/lite/internal/catalog"
	"github.com/localnerve/lite/internal/database"
	"github.com/localnerve/lite/internal/models"
	"github.com/localnerve/lite/internal/types"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

// countConcurrency bounds the parallel COUNT queries of one case
const countConcurrency = 4

// CategoryCount is the row count of one category table
type CategoryCount struct {
	Category catalog.Category `json:"category"`
	Title    string           `json:"title"`
	Count    int64            `json:"count"`
}

// CategoryCounts counts the rows of every category table of the case, in catalog order
func CategoryCounts(ctx context.Context, db *gorm.DB, c *models.Case) ([]CategoryCount, error) {
	if c == nil {
		return nil, fmt.Errorf("%w: case", types.ErrNotFound)
	}
	defs := catalog.All()
	out := make([]CategoryCount, len(defs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(countConcurrency)
	for i, def := range defs {
		out[i] = CategoryCount{Category: def.Name, Title: def.Title}
		g.Go(func() error {
			n, err := database.CountRows(db.WithContext(gctx), c.Namespace, def.Name)
			if err != nil {
				return err
			}
			out[i].Count = n
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// Total sums the counts
func Total(counts []CategoryCount) int64 {
	var n int64
	for _, c := range counts {
		n += c.Count
	}
	return n
}
