// ingest.go
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
	"fmt"
	"io"
	"mime/multipart"
	"path/filepath"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/localnerve/lite/internal/catalog"
	"github.com/localnerve/lite/internal/ingest"
	"github.com/localnerve/lite/internal/jobs"
	"github.com/localnerve/lite/internal/middleware"
	"github.com/localnerve/lite/internal/models"
	"github.com/localnerve/lite/internal/services"
	"github.com/localnerve/lite/internal/types"
	"github.com/localnerve/lite/internal/utils"
	"gorm.io/gorm"
)

const defaultRunsLimit = 50

// IngestHandler handles uploads and ingestion run routes
type IngestHandler struct {
	DB             *gorm.DB
	Runner         *jobs.Runner
	UploadDir      string
	MaxUploadBytes int64
}

// RunResult is the outcome of one uploaded file
type RunResult struct {
	Run    *models.IngestionRun `json:"run,omitempty"`
	Report *ingest.Report       `json:"report,omitempty"`
	File   string               `json:"file"`
	Error  string               `json:"error,omitempty"`
}

// RunsResponse lists the runs created by an upload
type RunsResponse struct {
	Runs []RunResult `json:"runs"`
}

type source struct {
	name string
	open func() (io.ReadCloser, error)
}

// Upload handles POST /api/cases/:id/uploads
// @Summary Upload collector output
// @Description Upload one or more collector JSON documents as multipart "file"/"files" fields or
// @Description as a raw application/json body. Runs are queued unless wait=true.
// @Tags Ingestion
// @Accept mpfd,json
// @Produce json
// @Param id path int true "Case ID"
// @Param file formData file false "Collector document"
// @Param wait query bool false "Ingest before responding"
// @Param filename query string false "Name recorded for a raw body"
// @Success 200 {object} RunsResponse
// @Success 202 {object} RunsResponse
// @Failure 400 {object} utils.ErrorResponseStruct
// @Failure 422 {object} utils.ErrorResponseStruct
// @Failure 429 {object} utils.ErrorResponseStruct
// @Router /cases/{id}/uploads [post]
func (h *IngestHandler) Upload(c *fiber.Ctx) error {
	sources, err := h.sources(c, "upload.json")
	if err != nil {
		return err
	}
	return h.ingest(c, sources, "")
}

// Import handles POST /api/cases/:id/categories/:category/import
// @Summary Import one category
// @Description Import a CSV file whose header holds catalog column names, or a JSON array of records
// @Tags Ingestion
// @Accept mpfd,json,text/csv
// @Produce json
// @Param id path int true "Case ID"
// @Param category path string true "Artifact category"
// @Param file formData file false "CSV or JSON file"
// @Param wait query bool false "Ingest before responding"
// @Success 200 {object} RunsResponse
// @Success 202 {object} RunsResponse
// @Failure 400 {object} utils.ErrorResponseStruct
// @Failure 404 {object} utils.ErrorResponseStruct
// @Router /cases/{id}/categories/{category}/import [post]
func (h *IngestHandler) Import(c *fiber.Ctx) error {
	def, err := catalog.Get(catalog.Category(c.Params("category")))
	if err != nil {
		return err
	}

	name := "import.json"
	if strings.HasPrefix(c.Get(fiber.HeaderContentType), "text/csv") {
		name = "import.csv"
	}
	sources, err := h.sources(c, name)
	if err != nil {
		return err
	}
	return h.ingest(c, sources, string(def.Name))
}

// sources collects the uploaded files of a request
func (h *IngestHandler) sources(c *fiber.Ctx, rawName string) ([]source, error) {
	contentType := c.Get(fiber.HeaderContentType)

	if strings.HasPrefix(contentType, fiber.MIMEMultipartForm) {
		form, err := c.MultipartForm()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", types.ErrMalformedInput, err)
		}
		var files []*multipart.FileHeader
		files = append(files, form.File["file"]...)
		files = append(files, form.File["files"]...)
		if len(files) == 0 {
			return nil, fmt.Errorf("%w: no \"file\" or \"files\" field", types.ErrInvalidArgument)
		}

		sources := make([]source, len(files))
		for i, fh := range files {
			sources[i] = source{
				name: filepath.Base(fh.Filename),
				open: func() (io.ReadCloser, error) { return fh.Open() },
			}
		}
		return sources, nil
	}

	body := c.Body()
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, fmt.Errorf("%w: request body is empty", types.ErrEmptyPayload)
	}
	raw := append([]byte(nil), body...)
	return []source{{
		name: c.Query("filename", rawName),
		open: func() (io.ReadCloser, error) { return io.NopCloser(bytes.NewReader(raw)), nil },
	}}, nil
}

// ingest retains each source and runs it, before responding when wait=true
func (h *IngestHandler) ingest(c *fiber.Ctx, sources []source, category string) error {
	found := middleware.CaseFrom(c)
	wait := queryBool(c, "wait")

	results := make([]RunResult, 0, len(sources))
	for _, src := range sources {
		in, err := h.retain(found, src, category)
		if err != nil {
			if len(sources) == 1 {
				return err
			}
			results = append(results, RunResult{File: src.name, Error: err.Error()})
			continue
		}

		if !wait {
			run, err := h.Runner.Submit(c.UserContext(), in)
			if err != nil {
				return err
			}
			results = append(results, RunResult{Run: run, File: src.name})
			continue
		}

		run, report, err := h.Runner.RunNow(c.UserContext(), in)
		if err != nil && len(sources) == 1 {
			return err
		}
		result := RunResult{Run: run, Report: report, File: src.name}
		if err != nil {
			result.Error = err.Error()
		}
		results = append(results, result)
	}

	if wait {
		return c.JSON(RunsResponse{Runs: results})
	}
	return utils.AcceptedResponse(c, RunsResponse{Runs: results})
}

func (h *IngestHandler) retain(found *models.Case, src source, category string) (services.RunInput, error) {
	r, err := src.open()
	if err != nil {
		return services.RunInput{}, fmt.Errorf("%w: %v", types.ErrMalformedInput, err)
	}
	defer r.Close()

	runUUID := uuid.NewString()
	path, size, err := jobs.SaveUpload(h.UploadDir, found.Namespace, runUUID, src.name, r, h.MaxUploadBytes)
	if err != nil {
		return services.RunInput{}, err
	}
	return services.RunInput{
		RunUUID:  runUUID,
		CaseID:   found.ID,
		Filename: src.name,
		FilePath: path,
		FileSize: size,
		Category: category,
	}, nil
}

// ListRuns handles GET /api/cases/:id/ingestions
// @Summary List ingestion runs
// @Description List the ingestion runs of a case, newest first
// @Tags Ingestion
// @Produce json
// @Param id path int true "Case ID"
// @Param limit query int false "Maximum runs"
// @Success 200 {array} models.IngestionRun
// @Failure 404 {object} utils.ErrorResponseStruct
// @Router /cases/{id}/ingestions [get]
func (h *IngestHandler) ListRuns(c *fiber.Ctx) error {
	limit, err := queryInt(c, "limit", defaultRunsLimit)
	if err != nil {
		return err
	}
	runs, err := services.ListRuns(h.DB, middleware.CaseFrom(c).ID, limit)
	if err != nil {
		return err
	}
	return c.JSON(runs)
}

// RunStatus handles GET /api/ingestions/:run
// @Summary Ingestion run status
// @Description Live progress of a run, or its recorded outcome
// @Tags Ingestion
// @Produce json
// @Param run path string true "Run UUID"
// @Success 200 {object} jobs.Status
// @Failure 404 {object} utils.ErrorResponseStruct
// @Router /ingestions/{run} [get]
func (h *IngestHandler) RunStatus(c *fiber.Ctx) error {
	st, err := h.Runner.Status(c.UserContext(), c.Params("run"))
	if err != nil {
		return err
	}
	return c.JSON(st)
}

// CancelRun handles DELETE /api/ingestions/:run
// @Summary Cancel an ingestion run
// @Description Cancel a queued or running run. Categories already committed are kept.
// @Tags Ingestion
// @Produce json
// @Param run path string true "Run UUID"
// @Success 202 {object} jobs.Status
// @Failure 400 {object} utils.ErrorResponseStruct
// @Failure 404 {object} utils.ErrorResponseStruct
// @Router /ingestions/{run} [delete]
func (h *IngestHandler) CancelRun(c *fiber.Ctx) error {
	runUUID := c.Params("run")
	if err := h.Runner.Cancel(runUUID); err != nil {
		return err
	}
	st, err := h.Runner.Status(c.UserContext(), runUUID)
	if err != nil {
		return err
	}
	return utils.AcceptedResponse(c, st)
}

// RetryRun handles POST /api/ingestions/:run/retry
// @Summary Retry an ingestion run
// @Description Remove the rows of a failed, partial or cancelled run and ingest its retained file again. Requires the admin role.
// @Tags Ingestion
// @Produce json
// @Param run path string true "Run UUID"
// @Success 202 {object} models.IngestionRun
// @Failure 404 {object} utils.ErrorResponseStruct
// @Failure 409 {object} utils.ErrorResponseStruct
// @Router /ingestions/{run}/retry [post]
func (h *IngestHandler) RetryRun(c *fiber.Ctx) error {
	run, err := h.Runner.Retry(c.UserContext(), c.Params("run"))
	if err != nil {
		return err
	}
	return utils.AcceptedResponse(c, run)
}
