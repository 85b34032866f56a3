package httpapi

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/Buchi-dev/puretrack/internal/auth"
	"github.com/Buchi-dev/puretrack/internal/store"
)

func newTestApp() (*fiber.App, *AuthHandler) {
	issuer := auth.NewIssuer("test-secret", time.Hour)
	mem := store.NewMemStore()
	h := NewAuthHandler(issuer, mem)

	app := fiber.New()
	app.Post("/api/auth/login", h.Login)
	return app, h
}

func doLogin(t *testing.T, app *fiber.App, username, password string) (int, LoginResponse) {
	t.Helper()
	body, _ := json.Marshal(LoginRequest{Username: username, Password: password})
	req, _ := http.NewRequest(http.MethodPost, "/api/auth/login", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	var out LoginResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	return resp.StatusCode, out
}

func TestLoginSucceedsWithValidCredentials(t *testing.T) {
	app, _ := newTestApp()
	status, out := doLogin(t, app, "admin", "admin123")

	if status != fiber.StatusOK {
		t.Fatalf("expected 200, got %d", status)
	}
	if !out.Success || out.Token == "" {
		t.Fatalf("expected a successful login with a token, got %+v", out)
	}
}

func TestLoginRejectsWrongPassword(t *testing.T) {
	app, _ := newTestApp()
	status, out := doLogin(t, app, "admin", "wrong")

	if status != fiber.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", status)
	}
	if out.Success || out.Token != "" {
		t.Fatalf("expected a failed login with no token, got %+v", out)
	}
}

func TestLoginRejectsUnknownUser(t *testing.T) {
	app, _ := newTestApp()
	status, out := doLogin(t, app, "ghost", "whatever")

	if status != fiber.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", status)
	}
	if out.Success {
		t.Fatalf("expected an unknown username to be rejected")
	}
}
