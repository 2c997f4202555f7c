package handlers

import (
	"net/http"
	"testing"

	"github.com/rollcall/rollcall/internal/middleware"
	"github.com/rollcall/rollcall/internal/testhelpers"
)

func newAuthMux(t *testing.T) *http.ServeMux {
	t.Helper()
	hash, err := middleware.HashPassword("hunter2")
	if err != nil {
		t.Fatalf("failed to hash password: %v", err)
	}
	jwtAuth := middleware.NewJWTAuthMiddleware(&middleware.JWTAuthConfig{
		Enabled:           true,
		AdminUsername:     "admin",
		AdminPasswordHash: hash,
		JWTSecret:         "test-secret",
		JWTExpiryHours:    1,
	})

	mux := http.NewServeMux()
	NewAuthHandler(jwtAuth).SetupRoutes(mux)
	return mux
}

func TestLoginSuccess(t *testing.T) {
	mux := newAuthMux(t)

	var resp LoginResponse
	testhelpers.NewHTTPTestContext(t, "POST", "/auth/login", nil).
		WithJSONBody(LoginRequest{Username: "admin", Password: "hunter2"}).
		Execute(mux).
		AssertStatus(http.StatusOK).
		DecodeJSON(&resp)

	if resp.Token == "" {
		t.Error("expected a token")
	}
	testhelpers.AssertEqual(t, "admin", resp.Username, "username")
	// The configured expiry is one hour.
	testhelpers.AssertEqual(t, 3600, resp.ExpiresIn, "expires in")
}

func TestLoginBadPassword(t *testing.T) {
	mux := newAuthMux(t)

	testhelpers.NewHTTPTestContext(t, "POST", "/auth/login", nil).
		WithJSONBody(LoginRequest{Username: "admin", Password: "wrong"}).
		Execute(mux).
		AssertStatus(http.StatusUnauthorized)
}

func TestLoginMissingFields(t *testing.T) {
	mux := newAuthMux(t)

	testhelpers.NewHTTPTestContext(t, "POST", "/auth/login", nil).
		WithJSONBody(LoginRequest{Username: "admin"}).
		Execute(mux).
		AssertStatus(http.StatusBadRequest)
}

func TestLoginMethodNotAllowed(t *testing.T) {
	mux := newAuthMux(t)

	testhelpers.NewHTTPTestContext(t, "GET", "/auth/login", nil).
		Execute(mux).
		AssertStatus(http.StatusMethodNotAllowed)
}
