package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/localnerve/lite/internal/jobs"
	"github.com/localnerve/lite/internal/testhelpers"
	"github.com/localnerve/lite/internal/types"
	"github.com/localnerve/lite/internal/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusOf(t *testing.T) {
	tests := []struct {
		err  error
		code int
	}{
		{fmt.Errorf("parse: %w", types.ErrMalformedInput), http.StatusBadRequest},
		{types.ErrEmptyPayload, http.StatusUnprocessableEntity},
		{fmt.Errorf("%w %q", types.ErrUnknownCategory, "x"), http.StatusNotFound},
		{fmt.Errorf("case 9: %w", types.ErrNotFound), http.StatusNotFound},
		{types.ErrDuplicateName, http.StatusConflict},
		{types.ErrNamespaceCollision, http.StatusConflict},
		{types.ErrRunNotRetryable, http.StatusConflict},
		{types.ErrForbiddenQuery, http.StatusBadRequest},
		{types.ErrInvalidArgument, http.StatusBadRequest},
		{jobs.ErrShuttingDown, http.StatusServiceUnavailable},
		{types.ErrStorageFailure, http.StatusInternalServerError},
		{errors.New("boom"), http.StatusInternalServerError},
		{fiber.NewError(http.StatusMethodNotAllowed, "nope"), http.StatusMethodNotAllowed},
		{&types.CustomError{Code: http.StatusForbidden, Type: "authorization.user"}, http.StatusForbidden},
	}
	for _, tt := range tests {
		code, _ := statusOf(tt.err)
		assert.Equal(t, tt.code, code, tt.err.Error())
	}
}

func TestErrorHandler(t *testing.T) {
	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler})
	app.Get("/missing", func(c *fiber.Ctx) error {
		return fmt.Errorf("%w: case 42", types.ErrNotFound)
	})
	app.Get("/forbidden", func(c *fiber.Ctx) error {
		return &types.CustomError{Code: http.StatusForbidden, Message: "no session", Type: "authorization.admin"}
	})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/missing?x=1", nil))
	require.NoError(t, err)
	testhelpers.AssertStatus(t, resp, http.StatusNotFound)
	var body utils.ErrorResponseStruct
	testhelpers.ParseJSON(t, resp, &body)
	assert.Equal(t, "not found: case 42", body.Message)
	assert.Equal(t, "notFound", body.Type)
	assert.Equal(t, "/missing?x=1", body.URL)
	assert.False(t, body.Ok)
	assert.NotEmpty(t, body.Timestamp)

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/forbidden", nil))
	require.NoError(t, err)
	testhelpers.AssertStatus(t, resp, http.StatusForbidden)
	testhelpers.ParseJSON(t, resp, &body)
	assert.Equal(t, "no session", body.Message)
	assert.Equal(t, "authorization.admin", body.Type)
}

func TestParseList(t *testing.T) {
	app := fiber.New()
	var got []string
	var filters []string
	app.Get("/", func(c *fiber.Ctx) error {
		got = parseList(c, "categories")
		filters = queryAll(c, "filter")
		return c.SendStatus(fiber.StatusNoContent)
	})

	_, err := app.Test(httptest.NewRequest(http.MethodGet,
		"/?categories=processes,auth_logs&categories=+user_accounts+&categories=processes&filter=name:a,b&filter=pid:1", nil))
	require.NoError(t, err)
	assert.Equal(t, []string{"processes", "auth_logs", "user_accounts"}, got)
	assert.Equal(t, []string{"name:a,b", "pid:1"}, filters)

	_, err = app.Test(httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)
	assert.Nil(t, got)
}
