package middleware

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"

	"github.com/congo-pay/icrc_ledger/internal/account"
	"github.com/congo-pay/icrc_ledger/internal/logging"
)

type idempotencyApp struct {
	app   *fiber.App
	calls int
}

func setupTestApp(t *testing.T) (*idempotencyApp, func()) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}

	cache := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	ta := &idempotencyApp{app: fiber.New()}
	ta.app.Use(CallerAuth(staticVerifier{
		"alice": account.Principal("\x01\x01"),
		"bob":   account.Principal("\x02\x02"),
	}))
	ta.app.Use(Idempotency(cache, time.Minute, logging.Discard()))
	ta.app.Post("/transfer", func(c *fiber.Ctx) error {
		ta.calls++
		return c.JSON(fiber.Map{"block_index": ta.calls - 1})
	})
	ta.app.Post("/unavailable", func(c *fiber.Ctx) error {
		ta.calls++
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "TemporarilyUnavailable"})
	})

	cleanup := func() {
		cache.Close()
		mr.Close()
	}
	return ta, cleanup
}

func (ta *idempotencyApp) post(t *testing.T, path, token, key, body string) (int, string, string) {
	t.Helper()
	req := httptest.NewRequest(fiber.MethodPost, path, strings.NewReader(body))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	if token != "" {
		req.Header.Set(fiber.HeaderAuthorization, "Bearer "+token)
	}
	if key != "" {
		req.Header.Set(idempotencyKeyHeader, key)
	}
	resp, err := ta.app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()
	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp.StatusCode, string(payload), resp.Header.Get(idempotentReplayHeader)
}

func TestIdempotencyPassesThroughWithoutHeader(t *testing.T) {
	ta, cleanup := setupTestApp(t)
	defer cleanup()

	for i := 0; i < 2; i++ {
		status, _, replayed := ta.post(t, "/transfer", "alice", "", `{"amount":1}`)
		if status != fiber.StatusOK || replayed != "" {
			t.Fatalf("request %d: status %d replay %q", i, status, replayed)
		}
	}
	if ta.calls != 2 {
		t.Fatalf("expected handler to run twice, ran %d times", ta.calls)
	}
}

func TestIdempotencyReturnsCachedResponse(t *testing.T) {
	ta, cleanup := setupTestApp(t)
	defer cleanup()

	status, first, _ := ta.post(t, "/transfer", "alice", "abc123", `{"amount":1}`)
	if status != fiber.StatusOK {
		t.Fatalf("first request: status %d", status)
	}

	status, second, replayed := ta.post(t, "/transfer", "alice", "abc123", `{"amount":1}`)
	if status != fiber.StatusOK || second != first || replayed != "true" {
		t.Fatalf("replay: status %d body %s replay %q", status, second, replayed)
	}
	if ta.calls != 1 {
		t.Fatalf("expected handler to run once, ran %d times", ta.calls)
	}
}

func TestIdempotencyRejectsKeyReuseWithDifferentBody(t *testing.T) {
	ta, cleanup := setupTestApp(t)
	defer cleanup()

	if status, _, _ := ta.post(t, "/transfer", "alice", "k1", `{"amount":1}`); status != fiber.StatusOK {
		t.Fatalf("first request: status %d", status)
	}
	if status, _, _ := ta.post(t, "/transfer", "alice", "k1", `{"amount":2}`); status != fiber.StatusUnprocessableEntity {
		t.Fatalf("expected 422 got %d", status)
	}
	if ta.calls != 1 {
		t.Fatalf("expected handler to run once, ran %d times", ta.calls)
	}
}

func TestIdempotencyScopesKeysPerCaller(t *testing.T) {
	ta, cleanup := setupTestApp(t)
	defer cleanup()

	ta.post(t, "/transfer", "alice", "shared", `{"amount":1}`)
	status, body, replayed := ta.post(t, "/transfer", "bob", "shared", `{"amount":1}`)
	if status != fiber.StatusOK || replayed != "" || body != `{"block_index":1}` {
		t.Fatalf("bob got alice's response: status %d body %s replay %q", status, body, replayed)
	}
}

func TestIdempotencyDoesNotStoreServerErrors(t *testing.T) {
	ta, cleanup := setupTestApp(t)
	defer cleanup()

	for i := 0; i < 2; i++ {
		status, _, replayed := ta.post(t, "/unavailable", "alice", "retry-me", `{}`)
		if status != fiber.StatusServiceUnavailable || replayed != "" {
			t.Fatalf("attempt %d: status %d replay %q", i, status, replayed)
		}
	}
	if ta.calls != 2 {
		t.Fatalf("expected both attempts to reach the handler, got %d", ta.calls)
	}
}
