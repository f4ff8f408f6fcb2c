package middleware

import (
	"crypto/subtle"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

const (
	HeaderUserID    = "X-User-ID"
	HeaderSessionID = "X-Session-ID"

	ownerKey   = "owner"
	sessionKey = "session"
)

// BearerAuth requires "Authorization: Bearer <token>". An empty token
// disables the check.
func BearerAuth(token string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if token == "" {
			return c.Next()
		}
		auth := c.Get(fiber.HeaderAuthorization)
		const prefix = "Bearer "
		if !strings.HasPrefix(auth, prefix) || subtle.ConstantTimeCompare([]byte(auth[len(prefix):]), []byte(token)) != 1 {
			return fiber.NewError(fiber.StatusUnauthorized, "invalid or missing bearer token")
		}
		return c.Next()
	}
}

// Owner scopes the request to the user named by X-User-ID, which must be a
// UUID. X-Session-ID is optional and defaults to the user id.
func Owner() fiber.Handler {
	return func(c *fiber.Ctx) error {
		raw := strings.TrimSpace(c.Get(HeaderUserID))
		if raw == "" {
			return fiber.NewError(fiber.StatusUnauthorized, "missing "+HeaderUserID+" header")
		}
		id, err := uuid.Parse(raw)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid "+HeaderUserID+" header")
		}
		owner := id.String()

		session := strings.TrimSpace(c.Get(HeaderSessionID))
		if session == "" {
			session = owner
		}

		c.Locals(ownerKey, owner)
		c.Locals(sessionKey, session)
		return c.Next()
	}
}

// OwnerID returns the owner set by Owner, or "".
func OwnerID(c *fiber.Ctx) string {
	owner, _ := c.Locals(ownerKey).(string)
	return owner
}

func SessionID(c *fiber.Ctx) string {
	session, _ := c.Locals(sessionKey).(string)
	return session
}
