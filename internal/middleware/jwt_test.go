package middleware

import (
	"errors"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"

	"github.com/congo-pay/icrc_ledger/internal/account"
)

type staticVerifier map[string]account.Principal

func (v staticVerifier) Verify(token string) (account.Principal, error) {
	p, ok := v[token]
	if !ok {
		return "", errors.New("unknown token")
	}
	return p, nil
}

func callerApp(t *testing.T, cache *redis.Client, limit int) *fiber.App {
	t.Helper()
	app := fiber.New()
	app.Use(CallerAuth(staticVerifier{"good": account.Principal("\x01\x02")}))
	app.Use(CallerRateLimit(cache, limit))
	handler := func(c *fiber.Ctx) error {
		return c.SendString(Caller(c).String())
	}
	app.Get("/whoami", handler)
	app.Post("/whoami", handler)
	return app
}

func callerOf(t *testing.T, app *fiber.App, method, token string) (int, string) {
	t.Helper()
	req := httptest.NewRequest(method, "/whoami", nil)
	if token != "" {
		req.Header.Set(fiber.HeaderAuthorization, token)
	}
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp.StatusCode, string(body)
}

func TestCallerAuth(t *testing.T) {
	app := callerApp(t, nil, 0)

	status, body := callerOf(t, app, fiber.MethodGet, "")
	if status != fiber.StatusOK || body != account.Anonymous.String() {
		t.Fatalf("anonymous: got %d %q", status, body)
	}

	status, body = callerOf(t, app, fiber.MethodGet, "Bearer good")
	if status != fiber.StatusOK || body != account.Principal("\x01\x02").String() {
		t.Fatalf("authenticated: got %d %q", status, body)
	}

	if status, _ = callerOf(t, app, fiber.MethodGet, "Bearer bad"); status != fiber.StatusUnauthorized {
		t.Fatalf("invalid token: expected 401 got %d", status)
	}
	if status, _ = callerOf(t, app, fiber.MethodGet, "Basic good"); status != fiber.StatusUnauthorized {
		t.Fatalf("wrong scheme: expected 401 got %d", status)
	}
}

func TestCallerRateLimit(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	defer mr.Close()
	cache := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer cache.Close()

	app := callerApp(t, cache, 2)
	for i := 0; i < 2; i++ {
		if status, _ := callerOf(t, app, fiber.MethodPost, "Bearer good"); status != fiber.StatusOK {
			t.Fatalf("request %d: expected 200 got %d", i, status)
		}
	}
	if status, _ := callerOf(t, app, fiber.MethodPost, "Bearer good"); status != fiber.StatusTooManyRequests {
		t.Fatalf("expected 429 got %d", status)
	}
	// Reads are not limited, and the anonymous bucket is separate.
	if status, _ := callerOf(t, app, fiber.MethodGet, "Bearer good"); status != fiber.StatusOK {
		t.Fatalf("read: expected 200 got %d", status)
	}
	if status, _ := callerOf(t, app, fiber.MethodPost, ""); status != fiber.StatusOK {
		t.Fatalf("anonymous: expected 200 got %d", status)
	}

	mr.FastForward(time.Minute + time.Second)
	if status, _ := callerOf(t, app, fiber.MethodPost, "Bearer good"); status != fiber.StatusOK {
		t.Fatalf("after window: expected 200 got %d", status)
	}
}
