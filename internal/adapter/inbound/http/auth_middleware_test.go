package http

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alexedwards/argon2id"
)

func TestAdminAuthMiddleware_RejectsMissingKey(t *testing.T) {
	hash, err := argon2id.CreateHash("s3cret", argon2id.DefaultParams)
	if err != nil {
		t.Fatalf("CreateHash: %v", err)
	}
	store := NewAdminKeyStore(hash)

	handler := AdminAuthMiddleware(store)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodPost, "/bundles", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
}

func TestAdminAuthMiddleware_RejectsWrongKey(t *testing.T) {
	hash, _ := argon2id.CreateHash("s3cret", argon2id.DefaultParams)
	store := NewAdminKeyStore(hash)

	handler := AdminAuthMiddleware(store)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodPost, "/bundles", nil)
	req.Header.Set("Authorization", "Bearer wrong-key")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
}

func TestAdminAuthMiddleware_AllowsCorrectKey(t *testing.T) {
	hash, _ := argon2id.CreateHash("s3cret", argon2id.DefaultParams)
	store := NewAdminKeyStore(hash)

	called := false
	handler := AdminAuthMiddleware(store)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodPost, "/bundles", nil)
	req.Header.Set("Authorization", "Bearer s3cret")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if !called {
		t.Fatal("expected handler to be called")
	}
}
