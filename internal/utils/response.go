package utils

import (
	"time"

	"github.com/gofiber/fiber/v2"
)

// ErrorResponse sends the standard error envelope
func ErrorResponse(c *fiber.Ctx, message string, status int, errorType string) error {
	return c.Status(status).JSON(fiber.Map{
		"status":    status,
		"message":   message,
		"ok":        false,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"url":       c.OriginalURL(),
		"type":      errorType,
	})
}

// NotFoundResponse sends a 404 not found response
func NotFoundResponse(c *fiber.Ctx, message string) error {
	return ErrorResponse(c, message, fiber.StatusNotFound, "notFound")
}

// AcceptedResponse acknowledges work that continues in the background
func AcceptedResponse(c *fiber.Ctx, data interface{}) error {
	return c.Status(fiber.StatusAccepted).JSON(data)
}

// ErrorResponseStruct defines the schema for error responses
type ErrorResponseStruct struct {
	Status    int    `json:"status"`
	Message   string `json:"message"`
	Ok        bool   `json:"ok"`
	Timestamp string `json:"timestamp"`
	URL       string `json:"url"`
	Type      string `json:"type,omitempty"`
}

// DeletedResponseStruct defines the schema for delete responses
type DeletedResponseStruct struct {
	Message   string `json:"message"`
	Ok        bool   `json:"ok"`
	ID        uint64 `json:"id"`
	Namespace string `json:"namespace"`
	Timestamp string `json:"timestamp"`
}

// DeletedResponse sends the success envelope for a removed case
func DeletedResponse(c *fiber.Ctx, id uint64, namespace string) error {
	return c.Status(fiber.StatusOK).JSON(DeletedResponseStruct{
		Message:   "Success",
		Ok:        true,
		ID:        id,
		Namespace: namespace,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}
