// query.go
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

package handlers

import (
	"bufio"
	"context"
	"fmt"

	"github.com/gofiber/fiber/v2"
	"github.com/localnerve/lite/internal/catalog"
	"github.com/localnerve/lite/internal/logging"
	"github.com/localnerve/lite/internal/middleware"
	"github.com/localnerve/lite/internal/models"
	"github.com/localnerve/lite/internal/query"
	"github.com/localnerve/lite/internal/types"
	"gorm.io/gorm"
)

// QueryHandler handles the read-only artifact routes. DB is the read pool.
type QueryHandler struct {
	DB      *gorm.DB
	PerPage int
}

// SearchInput is the body of POST /search
type SearchInput struct {
	Keyword    string                 `json:"keyword"`
	Categories types.FlexList[string] `json:"categories"`
	Limit      types.FlexUint64       `json:"limit"`
}

// SQLInput is the body of POST /sql
type SQLInput struct {
	Query string           `json:"query"`
	Limit types.FlexUint64 `json:"limit"`
}

// Catalog handles GET /api/catalog
// @Summary Artifact catalog
// @Description List every artifact category with its source keys and columns
// @Tags Queries
// @Produce json
// @Success 200 {array} catalog.Definition
// @Router /catalog [get]
func (h *QueryHandler) Catalog(c *fiber.Ctx) error {
	return c.JSON(catalog.All())
}

// Categories handles GET /api/cases/:id/categories
// @Summary Record counts per category
// @Tags Queries
// @Produce json
// @Param id path int true "Case ID"
// @Success 200 {array} query.CategoryCount
// @Failure 404 {object} utils.ErrorResponseStruct
// @Router /cases/{id}/categories [get]
func (h *QueryHandler) Categories(c *fiber.Ctx) error {
	counts, err := query.CategoryCounts(c.UserContext(), h.DB, middleware.CaseFrom(c))
	if err != nil {
		return err
	}
	return c.JSON(counts)
}

// List handles GET /api/cases/:id/categories/:category
// @Summary List artifact rows
// @Description Page through one category table with exact filters, a text query and sorting
// @Tags Queries
// @Produce json
// @Param id path int true "Case ID"
// @Param category path string true "Artifact category"
// @Param page query int false "Page number"
// @Param per_page query int false "Rows per page, at most 500"
// @Param filter query []string false "column:value exact match, repeatable" collectionFormat(multi)
// @Param q query string false "Substring over searchable columns"
// @Param sort query string false "Column to sort by"
// @Param order query string false "asc or desc"
// @Success 200 {object} query.Page
// @Failure 400 {object} utils.ErrorResponseStruct
// @Failure 404 {object} utils.ErrorResponseStruct
// @Router /cases/{id}/categories/{category} [get]
func (h *QueryHandler) List(c *fiber.Ctx) error {
	page, err := queryInt(c, "page", 1)
	if err != nil {
		return err
	}
	perPage, err := queryInt(c, "per_page", h.PerPage)
	if err != nil {
		return err
	}

	result, err := query.List(c.UserContext(), h.DB, middleware.CaseFrom(c), c.Params("category"), query.ListParams{
		Page:    page,
		PerPage: perPage,
		Filters: queryAll(c, "filter"),
		Q:       c.Query("q"),
		Sort:    c.Query("sort"),
		Order:   c.Query("order"),
	})
	if err != nil {
		return err
	}
	return c.JSON(result)
}

// Export handles GET /api/cases/:id/categories/:category/export
// @Summary Export a category
// @Description Stream one category table as CSV or a JSON array
// @Tags Queries
// @Produce json,text/csv
// @Param id path int true "Case ID"
// @Param category path string true "Artifact category"
// @Param format query string false "csv or json"
// @Success 200 {file} file
// @Failure 400 {object} utils.ErrorResponseStruct
// @Failure 404 {object} utils.ErrorResponseStruct
// @Router /cases/{id}/categories/{category}/export [get]
func (h *QueryHandler) Export(c *fiber.Ctx) error {
	found := middleware.CaseFrom(c)
	category := c.Params("category")
	format, err := query.ParseFormat(c.Query("format"))
	if err != nil {
		return err
	}
	if _, err := catalog.Get(catalog.Category(category)); err != nil {
		return err
	}

	c.Attachment(fmt.Sprintf("%s_%s.%s", found.Namespace, category, format))
	if format == query.FormatCSV {
		c.Set(fiber.HeaderContentType, "text/csv; charset=utf-8")
	} else {
		c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSONCharsetUTF8)
	}
	h.stream(c, found, func(ctx context.Context, w *bufio.Writer) error {
		return query.Export(ctx, h.DB, found, category, format, w)
	})
	return nil
}

// ExportCase handles GET /api/cases/:id/export
// @Summary Export a case
// @Description Stream every category as one JSON document that can be uploaded again
// @Tags Queries
// @Produce json
// @Param id path int true "Case ID"
// @Success 200 {object} map[string]interface{}
// @Failure 404 {object} utils.ErrorResponseStruct
// @Router /cases/{id}/export [get]
func (h *QueryHandler) ExportCase(c *fiber.Ctx) error {
	found := middleware.CaseFrom(c)
	c.Attachment(found.Namespace + ".json")
	c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSONCharsetUTF8)
	h.stream(c, found, func(ctx context.Context, w *bufio.Writer) error {
		return query.ExportCase(ctx, h.DB, found, w)
	})
	return nil
}

// stream writes the body after the handler returns. Errors past this point
// can only be logged.
func (h *QueryHandler) stream(c *fiber.Ctx, found *models.Case, write func(context.Context, *bufio.Writer) error) {
	log := logging.New("export")
	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		if err := write(context.Background(), w); err != nil {
			log.Error("export stream failed", "case_id", found.ID, "error", err)
		}
		if err := w.Flush(); err != nil {
			log.Warn("export client went away", "case_id", found.ID, "error", err)
		}
	})
}

// Search handles GET /api/cases/:id/search
// @Summary Keyword search
// @Description Case-insensitive keyword search over the searchable columns of a case
// @Tags Queries
// @Produce json
// @Param id path int true "Case ID"
// @Param q query string true "Keyword"
// @Param categories query string false "Comma-separated categories"
// @Param limit query int false "Maximum hits, at most 500"
// @Success 200 {array} query.SearchHit
// @Failure 400 {object} utils.ErrorResponseStruct
// @Failure 404 {object} utils.ErrorResponseStruct
// @Router /cases/{id}/search [get]
func (h *QueryHandler) Search(c *fiber.Ctx) error {
	limit, err := queryInt(c, "limit", 0)
	if err != nil {
		return err
	}
	return h.search(c, query.SearchParams{
		Keyword:    c.Query("q"),
		Categories: parseList(c, "categories"),
		Limit:      limit,
	})
}

// SearchBody handles POST /api/cases/:id/search
// @Summary Keyword search
// @Tags Queries
// @Accept json
// @Produce json
// @Param id path int true "Case ID"
// @Param search body SearchInput true "Search"
// @Success 200 {array} query.SearchHit
// @Failure 400 {object} utils.ErrorResponseStruct
// @Failure 404 {object} utils.ErrorResponseStruct
// @Router /cases/{id}/search [post]
func (h *QueryHandler) SearchBody(c *fiber.Ctx) error {
	var in SearchInput
	if err := c.BodyParser(&in); err != nil {
		return fmt.Errorf("%w: %v", types.ErrMalformedInput, err)
	}
	return h.search(c, query.SearchParams{
		Keyword:    in.Keyword,
		Categories: in.Categories.Slice(),
		Limit:      in.Limit.IntOr(0),
	})
}

func (h *QueryHandler) search(c *fiber.Ctx, p query.SearchParams) error {
	hits, err := query.Search(c.UserContext(), h.DB, middleware.CaseFrom(c), p)
	if err != nil {
		return err
	}
	return c.JSON(hits)
}

// Users handles GET /api/cases/:id/users
// @Summary User activity
// @Description Accounts joined with their process and authentication activity
// @Tags Queries
// @Produce json
// @Param id path int true "Case ID"
// @Success 200 {array} query.UserSummary
// @Failure 404 {object} utils.ErrorResponseStruct
// @Router /cases/{id}/users [get]
func (h *QueryHandler) Users(c *fiber.Ctx) error {
	users, err := query.UserActivity(c.UserContext(), h.DB, middleware.CaseFrom(c))
	if err != nil {
		return err
	}
	return c.JSON(users)
}

// SQL handles POST /api/cases/:id/sql
// @Summary Read-only SQL
// @Description Run one SELECT statement in a read-only transaction
// @Tags Queries
// @Accept json
// @Produce json
// @Param id path int true "Case ID"
// @Param sql body SQLInput true "Statement"
// @Security CookieAuth
// @Success 200 {object} query.SQLResult
// @Failure 400 {object} utils.ErrorResponseStruct
// @Failure 403 {object} utils.ErrorResponseStruct
// @Router /cases/{id}/sql [post]
func (h *QueryHandler) SQL(c *fiber.Ctx) error {
	var in SQLInput
	if err := c.BodyParser(&in); err != nil {
		return fmt.Errorf("%w: %v", types.ErrMalformedInput, err)
	}
	result, err := query.ReadOnlySQL(c.UserContext(), h.DB, middleware.CaseFrom(c), in.Query, in.Limit.IntOr(query.DefaultSQLLimit))
	if err != nil {
		return err
	}
	return c.JSON(result)
}
