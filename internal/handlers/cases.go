// cases.go
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
	"fmt"

	"github.com/gofiber/fiber/v2"
	"github.com/localnerve/lite/internal/middleware"
	"github.com/localnerve/lite/internal/models"
	"github.com/localnerve/lite/internal/query"
	"github.com/localnerve/lite/internal/services"
	"github.com/localnerve/lite/internal/types"
	"github.com/localnerve/lite/internal/utils"
	"gorm.io/gorm"
)

// CaseHandler handles the case registry routes
type CaseHandler struct {
	DB      *gorm.DB
	Read    *gorm.DB
	PerPage int
}

// CaseDetail is a case with its record count per category
type CaseDetail struct {
	*models.Case
	Categories []query.CategoryCount `json:"categories"`
}

// StatusInput is the body of a status change
type StatusInput struct {
	Status string `json:"status"`
}

// ListCases handles GET /api/cases
// @Summary List cases
// @Description List cases, newest first, optionally filtered by status and name
// @Tags Cases
// @Produce json
// @Param status query string false "active, closed or archived"
// @Param name query string false "Case name substring"
// @Param page query int false "Page number"
// @Param per_page query int false "Cases per page"
// @Success 200 {object} services.CasePage
// @Failure 400 {object} utils.ErrorResponseStruct
// @Router /cases [get]
func (h *CaseHandler) ListCases(c *fiber.Ctx) error {
	page, err := queryInt(c, "page", 1)
	if err != nil {
		return err
	}
	perPage, err := queryInt(c, "per_page", h.PerPage)
	if err != nil {
		return err
	}

	result, err := services.ListCases(h.DB, services.CaseFilter{
		Status:  c.Query("status"),
		Name:    c.Query("name"),
		Page:    page,
		PerPage: perPage,
	})
	if err != nil {
		return err
	}
	return c.JSON(result)
}

// CreateCase handles POST /api/cases
// @Summary Create a case
// @Description Register a case and create its artifact namespace
// @Tags Cases
// @Accept json
// @Produce json
// @Param case body services.CaseInput true "New case"
// @Success 201 {object} models.Case
// @Failure 400 {object} utils.ErrorResponseStruct
// @Failure 409 {object} utils.ErrorResponseStruct
// @Router /cases [post]
func (h *CaseHandler) CreateCase(c *fiber.Ctx) error {
	var in services.CaseInput
	if err := c.BodyParser(&in); err != nil {
		return fmt.Errorf("%w: %v", types.ErrMalformedInput, err)
	}

	created, err := services.CreateCase(h.DB, in)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(created)
}

// GetCase handles GET /api/cases/:id
// @Summary Get a case
// @Description Get a case with its record count per artifact category
// @Tags Cases
// @Produce json
// @Param id path int true "Case ID"
// @Success 200 {object} CaseDetail
// @Failure 404 {object} utils.ErrorResponseStruct
// @Router /cases/{id} [get]
func (h *CaseHandler) GetCase(c *fiber.Ctx) error {
	found := middleware.CaseFrom(c)
	counts, err := query.CategoryCounts(c.UserContext(), h.Read, found)
	if err != nil {
		return err
	}
	return c.JSON(CaseDetail{Case: found, Categories: counts})
}

// UpdateCase handles PATCH /api/cases/:id
// @Summary Update a case
// @Description Change the descriptive fields of a case. Absent fields are left alone.
// @Tags Cases
// @Accept json
// @Produce json
// @Param id path int true "Case ID"
// @Param changes body services.CaseUpdate true "Changed fields"
// @Success 200 {object} models.Case
// @Failure 400 {object} utils.ErrorResponseStruct
// @Failure 404 {object} utils.ErrorResponseStruct
// @Router /cases/{id} [patch]
func (h *CaseHandler) UpdateCase(c *fiber.Ctx) error {
	var in services.CaseUpdate
	if err := c.BodyParser(&in); err != nil {
		return fmt.Errorf("%w: %v", types.ErrMalformedInput, err)
	}

	updated, err := services.UpdateCase(h.DB, middleware.CaseFrom(c).ID, in)
	if err != nil {
		return err
	}
	return c.JSON(updated)
}

// SetStatus handles PUT /api/cases/:id/status
// @Summary Change case status
// @Tags Cases
// @Accept json
// @Produce json
// @Param id path int true "Case ID"
// @Param status body StatusInput true "New status"
// @Success 200 {object} models.Case
// @Failure 400 {object} utils.ErrorResponseStruct
// @Failure 404 {object} utils.ErrorResponseStruct
// @Router /cases/{id}/status [put]
func (h *CaseHandler) SetStatus(c *fiber.Ctx) error {
	var in StatusInput
	if err := c.BodyParser(&in); err != nil {
		return fmt.Errorf("%w: %v", types.ErrMalformedInput, err)
	}

	updated, err := services.SetStatus(h.DB, middleware.CaseFrom(c).ID, in.Status)
	if err != nil {
		return err
	}
	return c.JSON(updated)
}

// DeleteCase handles DELETE /api/cases/:id
// @Summary Delete a case
// @Description Drop the case namespace, its artifacts and its ingestion runs
// @Tags Cases
// @Produce json
// @Param id path int true "Case ID"
// @Security CookieAuth
// @Success 200 {object} utils.DeletedResponseStruct
// @Failure 403 {object} utils.ErrorResponseStruct
// @Failure 404 {object} utils.ErrorResponseStruct
// @Router /cases/{id} [delete]
func (h *CaseHandler) DeleteCase(c *fiber.Ctx) error {
	deleted, err := services.DeleteCase(h.DB, middleware.CaseFrom(c).ID)
	if err != nil {
		return err
	}
	return utils.DeletedResponse(c, deleted.ID, deleted.Namespace)
}

// Recount handles POST /api/cases/:id/recount
// @Summary Recount case records
// @Description Recompute the record count of a case from its tables
// @Tags Cases
// @Produce json
// @Param id path int true "Case ID"
// @Security CookieAuth
// @Success 200 {object} models.Case
// @Failure 403 {object} utils.ErrorResponseStruct
// @Failure 404 {object} utils.ErrorResponseStruct
// @Router /cases/{id}/recount [post]
func (h *CaseHandler) Recount(c *fiber.Ctx) error {
	updated, err := services.Recount(h.DB, middleware.CaseFrom(c).ID)
	if err != nil {
		return err
	}
	return c.JSON(updated)
}
