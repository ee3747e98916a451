package middleware

import (
	"strings"

	"expertvakil/server/internal/identity"
	"expertvakil/server/internal/utils"

	"github.com/gofiber/fiber/v2"
)

const (
	localUserID   = "userID"
	localUserName = "userName"
)

// Auth validates the JWT from the Authorization header, the token cookie
// or, for websocket upgrades, the token query parameter.
func Auth(j *utils.JWT) fiber.Handler {
	return func(c *fiber.Ctx) error {
		tokenString := bearer(c.Get(fiber.HeaderAuthorization))
		if tokenString == "" {
			tokenString = c.Cookies("token")
		}
		if tokenString == "" {
			tokenString = c.Query("token")
		}
		if tokenString == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"success": false,
				"error":   "Unauthorized - No token provided",
			})
		}

		claims, err := j.ValidateToken(tokenString)
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"success": false,
				"error":   "Unauthorized - Invalid token",
			})
		}

		c.Locals(localUserID, claims.UserID)
		c.Locals(localUserName, claims.Name)

		return c.Next()
	}
}

func bearer(header string) string {
	const prefix = "Bearer "
	if len(header) > len(prefix) && strings.EqualFold(header[:len(prefix)], prefix) {
		return strings.TrimSpace(header[len(prefix):])
	}
	return ""
}

// GetUserID gets user ID from context
func GetUserID(c *fiber.Ctx) string {
	userID, ok := c.Locals(localUserID).(string)
	if !ok {
		return ""
	}
	return userID
}

// GetIdentity returns the authenticated caller
func GetIdentity(c *fiber.Ctx) identity.Identity {
	name, _ := c.Locals(localUserName).(string)
	return identity.New(GetUserID(c), name)
}
