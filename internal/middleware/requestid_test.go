package middleware

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

func TestRequestID(t *testing.T) {
	app := fiber.New()
	app.Use(RequestID())
	app.Get("/", func(c *fiber.Ctx) error {
		return c.SendString(RequestIDFrom(c))
	})

	send := func(header string) (string, string) {
		req := httptest.NewRequest(fiber.MethodGet, "/", nil)
		if header != "" {
			req.Header.Set(requestIDHeader, header)
		}
		resp, err := app.Test(req)
		if err != nil {
			t.Fatalf("app.Test: %v", err)
		}
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)
		return resp.Header.Get(requestIDHeader), string(body)
	}

	if header, body := send("trace-42"); header != "trace-42" || body != "trace-42" {
		t.Fatalf("expected client id echoed, got header %q body %q", header, body)
	}

	header, body := send("")
	if _, err := uuid.Parse(header); err != nil || body != header {
		t.Fatalf("expected generated uuid, got header %q body %q", header, body)
	}

	if header, _ := send(strings.Repeat("x", maxRequestIDLen+1)); len(header) > maxRequestIDLen {
		t.Fatalf("oversized id was echoed: %d bytes", len(header))
	}
}
