package http

import (
	"context"
	"net/http"
	"strings"
	"sync"

	"github.com/alexedwards/argon2id"
)

// AdminKeyStore holds the argon2id hashes of admin API keys authorized to
// call the Bundle CRUD endpoints (InstallRules, RefreshRules). Keys are
// hashed, never stored in the clear.
type AdminKeyStore struct {
	mu     sync.RWMutex
	hashes []string
}

// NewAdminKeyStore builds a store from a set of pre-hashed argon2id keys
// (as produced by argon2id.CreateHash).
func NewAdminKeyStore(hashes ...string) *AdminKeyStore {
	return &AdminKeyStore{hashes: append([]string(nil), hashes...)}
}

// Authorized reports whether apiKey matches any hash in the store.
func (s *AdminKeyStore) Authorized(apiKey string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, hash := range s.hashes {
		if match, err := argon2id.ComparePasswordAndHash(apiKey, hash); err == nil && match {
			return true
		}
	}
	return false
}

type adminKeyContextKey struct{}

// AdminAuthMiddleware requires a Bearer API key matching one of store's
// hashes, gating the Bundle CRUD surface (spec.md §6 InstallRules/
// RefreshRules). Requests with no or an unauthorized key are rejected with
// 401 before reaching the handler.
func AdminAuthMiddleware(store *AdminKeyStore) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			auth := r.Header.Get("Authorization")
			apiKey, ok := strings.CutPrefix(auth, "Bearer ")
			if !ok || apiKey == "" || !store.Authorized(apiKey) {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), adminKeyContextKey{}, apiKey)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
