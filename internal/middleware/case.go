package middleware

import (
	"fmt"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/localnerve/lite/internal/models"
	"github.com/localnerve/lite/internal/services"
	"github.com/localnerve/lite/internal/types"
	"gorm.io/gorm"
)

const caseKey = "case"

// LoadCase resolves the :id route parameter to a case and stores it in context
func LoadCase(db *gorm.DB) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := strconv.ParseUint(c.Params("id"), 10, 64)
		if err != nil || id == 0 {
			return fmt.Errorf("%w: case id %q", types.ErrInvalidArgument, c.Params("id"))
		}
		found, err := services.GetCase(db, id)
		if err != nil {
			return err
		}
		c.Locals(caseKey, found)
		return c.Next()
	}
}

// CaseFrom returns the case stored by LoadCase
func CaseFrom(c *fiber.Ctx) *models.Case {
	found, _ := c.Locals(caseKey).(*models.Case)
	return found
}
