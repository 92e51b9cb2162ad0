// stats.go
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
	"bytes"

	"github.com/gofiber/fiber/v2"
	"github.com/localnerve/lite/internal/charts"
	"github.com/localnerve/lite/internal/config"
	"github.com/localnerve/lite/internal/middleware"
	"github.com/localnerve/lite/internal/query"
	"github.com/localnerve/lite/internal/services"
	"gorm.io/gorm"
)

// StatsHandler handles the dashboard and health routes
type StatsHandler struct {
	Config *config.Config
	DB     *gorm.DB
	Read   *gorm.DB
}

// Dashboard handles GET /api/stats
// @Summary Dashboard
// @Description Case and ingestion totals across the registry
// @Tags Stats
// @Produce json
// @Success 200 {object} services.Dashboard
// @Failure 500 {object} utils.ErrorResponseStruct
// @Router /stats [get]
func (h *StatsHandler) Dashboard(c *fiber.Ctx) error {
	d, err := services.DashboardStats(h.Read)
	if err != nil {
		return err
	}
	return c.JSON(d)
}

// DashboardCharts handles GET /api/stats/charts
// @Summary Dashboard charts
// @Tags Stats
// @Produce html
// @Success 200 {string} string "HTML page"
// @Router /stats/charts [get]
func (h *StatsHandler) DashboardCharts(c *fiber.Ctx) error {
	d, err := services.DashboardStats(h.Read)
	if err != nil {
		return err
	}
	var page bytes.Buffer
	if err := charts.Dashboard(&page, d); err != nil {
		return err
	}
	c.Type("html", "utf-8")
	return c.Send(page.Bytes())
}

// CaseCharts handles GET /api/cases/:id/charts
// @Summary Case charts
// @Tags Stats
// @Produce html
// @Param id path int true "Case ID"
// @Success 200 {string} string "HTML page"
// @Failure 404 {object} utils.ErrorResponseStruct
// @Router /cases/{id}/charts [get]
func (h *StatsHandler) CaseCharts(c *fiber.Ctx) error {
	found := middleware.CaseFrom(c)
	counts, err := query.CategoryCounts(c.UserContext(), h.Read, found)
	if err != nil {
		return err
	}
	var page bytes.Buffer
	if err := charts.Case(&page, found, counts); err != nil {
		return err
	}
	c.Type("html", "utf-8")
	return c.Send(page.Bytes())
}

// Health handles GET /api/health
// @Summary Health check
// @Tags Stats
// @Produce json
// @Success 200 {object} services.HealthCheckResult
// @Failure 503 {object} services.HealthCheckResult
// @Router /health [get]
func (h *StatsHandler) Health(c *fiber.Ctx) error {
	result := services.HealthCheck(h.Config, h.DB)
	status := fiber.StatusOK
	if result.Status != "healthy" {
		status = fiber.StatusServiceUnavailable
	}
	return c.Status(status).JSON(result)
}
