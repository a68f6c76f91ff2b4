package middleware

import (
	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/interview-prep-api/internal/utils"
)

// RequireUser rejects requests whose token carried no usable subject. Interviews are always
// scoped to a single owner, so every interview route needs one.
func RequireUser() fiber.Handler {
	return func(c *fiber.Ctx) error {
		switch id := c.Locals("user_id").(type) {
		case uint:
			if id > 0 {
				return c.Next()
			}
		}
		return utils.SendError(c, fiber.StatusUnauthorized, "authentication required")
	}
}
