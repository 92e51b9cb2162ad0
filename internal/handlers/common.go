// common.go
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
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/localnerve/lite/internal/jobs"
	"github.com/localnerve/lite/internal/logging"
	"github.com/localnerve/lite/internal/types"
	"github.com/localnerve/lite/internal/utils"
)

// statusOf maps a domain error to its HTTP status and error type
func statusOf(err error) (int, string) {
	var custom *types.CustomError
	if errors.As(err, &custom) {
		return custom.Code, custom.Type
	}
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return fe.Code, "request"
	}

	switch {
	case errors.Is(err, types.ErrMalformedInput):
		return fiber.StatusBadRequest, "malformedInput"
	case errors.Is(err, types.ErrEmptyPayload):
		return fiber.StatusUnprocessableEntity, "emptyPayload"
	case errors.Is(err, types.ErrUnknownCategory):
		return fiber.StatusNotFound, "unknownCategory"
	case errors.Is(err, types.ErrNotFound):
		return fiber.StatusNotFound, "notFound"
	case errors.Is(err, types.ErrDuplicateName):
		return fiber.StatusConflict, "duplicateName"
	case errors.Is(err, types.ErrNamespaceCollision):
		return fiber.StatusConflict, "namespaceCollision"
	case errors.Is(err, types.ErrRunNotRetryable):
		return fiber.StatusConflict, "runNotRetryable"
	case errors.Is(err, types.ErrForbiddenQuery):
		return fiber.StatusBadRequest, "forbiddenQuery"
	case errors.Is(err, types.ErrInvalidArgument):
		return fiber.StatusBadRequest, "invalidArgument"
	case errors.Is(err, jobs.ErrShuttingDown):
		return fiber.StatusServiceUnavailable, "shuttingDown"
	case errors.Is(err, types.ErrStorageFailure):
		return fiber.StatusInternalServerError, "storage"
	}
	return fiber.StatusInternalServerError, "unknown"
}

// ErrorHandler renders every error returned from a route as the standard envelope
func ErrorHandler(c *fiber.Ctx, err error) error {
	code, errorType := statusOf(err)
	message := err.Error()

	var custom *types.CustomError
	if errors.As(err, &custom) {
		message = custom.Message
	}
	var fe *fiber.Error
	if errors.As(err, &fe) {
		message = fe.Message
	}

	if code >= fiber.StatusInternalServerError {
		logging.New("http").Error("request failed",
			"method", c.Method(), "url", c.OriginalURL(), "status", code, "error", err)
	}
	return utils.ErrorResponse(c, message, code, errorType)
}

// parseList extracts the values of a query parameter, supporting both repeated
// keys and comma-separated values. Order is kept and duplicates dropped.
func parseList(c *fiber.Ctx, key string) []string {
	seen := make(map[string]struct{})
	var values []string

	args := c.Context().QueryArgs()
	for _, raw := range args.PeekMulti(key) {
		for _, v := range strings.Split(string(raw), ",") {
			v = strings.TrimSpace(v)
			if v == "" {
				continue
			}
			if _, ok := seen[v]; ok {
				continue
			}
			seen[v] = struct{}{}
			values = append(values, v)
		}
	}
	return values
}

// queryAll returns every value of a repeated query parameter as sent
func queryAll(c *fiber.Ctx, key string) []string {
	var values []string
	for _, raw := range c.Context().QueryArgs().PeekMulti(key) {
		if len(raw) > 0 {
			values = append(values, string(raw))
		}
	}
	return values
}

// queryInt reads a positive integer query parameter, def when absent
func queryInt(c *fiber.Ctx, key string, def int) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: %s must be a non-negative integer", types.ErrInvalidArgument, key)
	}
	return n, nil
}

func queryBool(c *fiber.Ctx, key string) bool {
	v, err := strconv.ParseBool(c.Query(key))
	return err == nil && v
}
