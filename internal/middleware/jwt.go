package middleware

import (
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/icrc_ledger/internal/account"
)

const callerKey = "caller"

// TokenVerifier resolves a bearer token to the caller principal.
type TokenVerifier interface {
	Verify(token string) (account.Principal, error)
}

// CallerAuth resolves the caller from a bearer token. Requests without an
// Authorization header proceed as the anonymous principal; invalid tokens are
// rejected.
func CallerAuth(verifier TokenVerifier) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authz := c.Get(fiber.HeaderAuthorization)
		if authz == "" {
			c.Locals(callerKey, account.Anonymous)
			return c.Next()
		}
		if !strings.HasPrefix(strings.ToLower(authz), "bearer ") {
			return fiber.NewError(http.StatusUnauthorized, "missing bearer token")
		}
		caller, err := verifier.Verify(strings.TrimSpace(authz[len("Bearer "):]))
		if err != nil {
			return fiber.NewError(http.StatusUnauthorized, "invalid token")
		}
		c.Locals(callerKey, caller)
		return c.Next()
	}
}

// Caller returns the principal resolved by CallerAuth, anonymous if none.
func Caller(c *fiber.Ctx) account.Principal {
	if caller, ok := c.Locals(callerKey).(account.Principal); ok {
		return caller
	}
	return account.Anonymous
}
