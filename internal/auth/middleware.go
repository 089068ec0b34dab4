package auth

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v3"

	"github.com/aledlb8/Mango-sub000/internal/httputil"
	"github.com/aledlb8/Mango-sub000/internal/store"
)

// TokenCookie is the cookie browser clients use as an alternative to the Authorization header.
const TokenCookie = "mango_token"

// RequestToken extracts the session token from the Authorization header, falling back to the mango_token cookie.
// Returns "" when neither carries a token.
func RequestToken(c fiber.Ctx) string {
	const prefix = "Bearer "
	if header := c.Get("Authorization"); len(header) > len(prefix) && strings.EqualFold(header[:len(prefix)], prefix) {
		return header[len(prefix):]
	}
	return c.Cookies(TokenCookie)
}

// RequireAuth returns Fiber middleware that resolves the request's session token against the store and places the
// authenticated identity in c.Locals under "userID", "user" and "token".
func RequireAuth(st store.Store) fiber.Handler {
	return func(c fiber.Ctx) error {
		token := RequestToken(c)
		if token == "" {
			return httputil.Error(c, fiber.StatusUnauthorized, "Missing authentication token")
		}

		u, err := st.SessionUser(c, token)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return httputil.Error(c, fiber.StatusUnauthorized, "Invalid or expired session")
			}
			return fmt.Errorf("resolve session: %w", err)
		}

		c.Locals("userID", u.ID)
		c.Locals("user", u)
		c.Locals("token", token)
		return c.Next()
	}
}
